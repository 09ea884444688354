package timer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/sadopc/punchclock/internal/clock"
	"github.com/sadopc/punchclock/internal/store"
)

// fakeGateway is an in-memory store.Gateway that counts calls and can be
// told to fail a method.
type fakeGateway struct {
	mu      sync.Mutex
	entries map[string]store.TimeEntry
	seq     int
	calls   map[string]int
	fail    map[string]error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		entries: make(map[string]store.TimeEntry),
		calls:   make(map[string]int),
		fail:    make(map[string]error),
	}
}

func (g *fakeGateway) record(method string) error {
	g.calls[method]++
	return g.fail[method]
}

func (g *fakeGateway) totalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

func (g *fakeGateway) callCount(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[method]
}

func (g *fakeGateway) setFail(method string, err error) {
	g.mu.Lock()
	g.fail[method] = err
	g.mu.Unlock()
}

// seed inserts an entry directly, bypassing call accounting.
func (g *fakeGateway) seed(e store.TimeEntry) {
	g.mu.Lock()
	g.entries[e.ID] = e
	g.mu.Unlock()
}

func (g *fakeGateway) remove(id string) {
	g.mu.Lock()
	delete(g.entries, id)
	g.mu.Unlock()
}

func (g *fakeGateway) CreateEntry(ctx context.Context, ne store.NewEntry) (*store.TimeEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("CreateEntry"); err != nil {
		return nil, err
	}
	for _, e := range g.entries {
		if e.UserID == ne.UserID && e.Running() {
			return nil, fmt.Errorf("create entry: %w", store.ErrConflict)
		}
	}
	g.seq++
	e := store.TimeEntry{
		ID:          fmt.Sprintf("e%d", g.seq),
		UserID:      ne.UserID,
		Description: ne.Description,
		StartTime:   ne.StartTime,
		ProjectID:   ne.ProjectID,
		CreatedAt:   ne.StartTime,
		UpdatedAt:   ne.StartTime,
	}
	g.entries[e.ID] = e
	return &e, nil
}

func (g *fakeGateway) GetEntry(ctx context.Context, id string) (*store.TimeEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("GetEntry"); err != nil {
		return nil, err
	}
	e, ok := g.entries[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (g *fakeGateway) openLocked(userID string) []store.TimeEntry {
	var open []store.TimeEntry
	for _, e := range g.entries {
		if e.UserID == userID && e.Running() {
			open = append(open, e)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].StartTime.After(open[j].StartTime) })
	return open
}

func (g *fakeGateway) OpenEntryForUser(ctx context.Context, userID string) (*store.TimeEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("OpenEntryForUser"); err != nil {
		return nil, err
	}
	open := g.openLocked(userID)
	if len(open) == 0 {
		return nil, nil
	}
	return &open[0], nil
}

func (g *fakeGateway) ListOpenEntries(ctx context.Context, userID string) ([]store.TimeEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("ListOpenEntries"); err != nil {
		return nil, err
	}
	return g.openLocked(userID), nil
}

func (g *fakeGateway) UpdateEntry(ctx context.Context, id string, p store.EntryPatch) (*store.TimeEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("UpdateEntry"); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	e, ok := g.entries[id]
	if !ok {
		return nil, fmt.Errorf("update entry %s: %w", id, store.ErrNotFound)
	}
	if p.Closes() && !e.Running() {
		return nil, fmt.Errorf("update entry %s: %w", id, store.ErrConflict)
	}
	if err := p.CheckClose(e.StartTime); err != nil {
		return nil, err
	}
	p.Apply(&e)
	g.entries[id] = e
	return &e, nil
}

func (g *fakeGateway) DeleteEntry(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("DeleteEntry"); err != nil {
		return err
	}
	if _, ok := g.entries[id]; !ok {
		return store.ErrNotFound
	}
	delete(g.entries, id)
	return nil
}

func (g *fakeGateway) EntriesInWindow(ctx context.Context, userID string, from, to time.Time) ([]store.TimeEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("EntriesInWindow"); err != nil {
		return nil, err
	}
	var out []store.TimeEntry
	for _, e := range g.entries {
		if e.UserID == userID && !e.StartTime.Before(from) && !e.StartTime.After(to) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func newTestController(t *testing.T) (*Controller, *fakeGateway, *clock.Fake) {
	t.Helper()
	gw := newFakeGateway()
	clk := clock.NewFake(t0)
	log, _ := logtest.NewNullLogger()
	c := New(gw, "u1", WithClock(clk), WithLogger(log))
	t.Cleanup(c.Close)
	return c, gw, clk
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func ptr[T any](v T) *T { return &v }

// ============================================================
// Start
// ============================================================

func TestStartEmptyDescriptionMakesNoGatewayCalls(t *testing.T) {
	c, gw, _ := newTestController(t)
	for _, desc := range []string{"", "   ", "\t\n"} {
		_, err := c.Start(context.Background(), desc, nil)
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("Start(%q) = %v, want ErrValidation", desc, err)
		}
		if Kind(err) != KindValidation {
			t.Fatalf("expected kind validation, got %s", Kind(err))
		}
	}
	if n := gw.totalCalls(); n != 0 {
		t.Fatalf("expected zero gateway calls, got %d", n)
	}
	if c.Snapshot().Running {
		t.Fatal("controller should stay idle")
	}
}

func TestStartTransitionsToRunning(t *testing.T) {
	c, gw, clk := newTestController(t)
	snap, err := c.Start(context.Background(), "  Write report ", ptr("p1"))
	if err != nil {
		t.Fatal(err)
	}
	if !snap.Running || snap.ElapsedSeconds != 0 || snap.Description != "Write report" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.ProjectID == nil || *snap.ProjectID != "p1" {
		t.Fatal("project id should be carried")
	}
	if !snap.StartTime.Equal(t0) {
		t.Fatalf("start time should come from the clock, got %v", snap.StartTime)
	}
	if clk.Tickers() != 1 {
		t.Fatalf("expected one live ticker, got %d", clk.Tickers())
	}
	e, _ := gw.GetEntry(context.Background(), snap.EntryID)
	if !e.Running() {
		t.Fatal("stored entry should be open")
	}
}

func TestStartWhileRunningRejected(t *testing.T) {
	c, gw, clk := newTestController(t)
	ctx := context.Background()
	first, err := c.Start(ctx, "one", nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Start(ctx, "two", nil)
	if !errors.Is(err, ErrAlreadyRunning) || Kind(err) != KindAlreadyRunning {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if gw.callCount("CreateEntry") != 1 {
		t.Fatal("second start must not create an entry")
	}
	if c.Snapshot().EntryID != first.EntryID {
		t.Fatal("running entry must be unchanged")
	}
	if clk.Tickers() != 1 {
		t.Fatalf("expected one live ticker, got %d", clk.Tickers())
	}
}

func TestStartRejectsWhenStoreHasOpenEntry(t *testing.T) {
	c, gw, _ := newTestController(t)
	gw.seed(store.TimeEntry{ID: "other-tab", UserID: "u1", StartTime: t0.Add(-time.Minute)})

	_, err := c.Start(context.Background(), "work", nil)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if gw.callCount("CreateEntry") != 0 {
		t.Fatal("start must not create while the store has an open entry")
	}
	if gw.callCount("UpdateEntry") != 0 {
		t.Fatal("start must not implicitly stop the open entry")
	}
	if c.Snapshot().Running {
		t.Fatal("controller should stay idle")
	}
}

func TestStartPersistenceFailureStaysIdle(t *testing.T) {
	c, gw, clk := newTestController(t)
	gw.setFail("CreateEntry", fmt.Errorf("create entry: %w", store.ErrUnavailable))

	_, err := c.Start(context.Background(), "work", nil)
	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != "start" {
		t.Fatalf("expected PersistenceError from start, got %v", err)
	}
	if Kind(err) != KindUnavailable {
		t.Fatalf("expected kind unavailable, got %s", Kind(err))
	}
	if c.Snapshot().Running || clk.Tickers() != 0 {
		t.Fatal("failed start must leave the controller idle without a tick")
	}
}

func TestStartConflictSurfacesAsConflict(t *testing.T) {
	c, gw, _ := newTestController(t)
	gw.setFail("CreateEntry", fmt.Errorf("create entry: %w", store.ErrConflict))
	_, err := c.Start(context.Background(), "work", nil)
	if Kind(err) != KindConflict {
		t.Fatalf("expected kind conflict, got %s (%v)", Kind(err), err)
	}
}

// ============================================================
// Stop
// ============================================================

func TestStopFinalizesDuration(t *testing.T) {
	c, gw, clk := newTestController(t)
	ctx := context.Background()
	snap, err := c.Start(ctx, "work", nil)
	if err != nil {
		t.Fatal(err)
	}

	clk.Advance(61*time.Second + 400*time.Millisecond)
	e, err := c.Stop(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if e.Seconds() != 61 {
		t.Fatalf("expected duration 61, got %d", e.Seconds())
	}
	if want := snap.StartTime.Add(61 * time.Second); e.EndTime.Truncate(time.Second).Sub(want) != 0 {
		t.Fatalf("end time %v should be start + duration", e.EndTime)
	}
	if c.Snapshot().Running {
		t.Fatal("controller should be idle after stop")
	}
	if clk.Tickers() != 0 {
		t.Fatal("stop must cancel the tick")
	}

	stored, _ := gw.GetEntry(ctx, e.ID)
	if stored.Running() || stored.Seconds() != 61 {
		t.Fatalf("stored entry not finalized: %+v", stored)
	}
}

func TestStopWhenIdle(t *testing.T) {
	c, gw, _ := newTestController(t)
	_, err := c.Stop(context.Background())
	if !errors.Is(err, ErrNotRunning) || Kind(err) != KindNotRunning {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if gw.totalCalls() != 0 {
		t.Fatal("stop while idle must not touch the gateway")
	}
}

func TestStopPersistenceFailureKeepsRunning(t *testing.T) {
	c, gw, clk := newTestController(t)
	ctx := context.Background()
	before, _ := c.Start(ctx, "work", nil)
	clk.Advance(10 * time.Second)
	gw.setFail("UpdateEntry", fmt.Errorf("update: %w", store.ErrUnavailable))

	_, err := c.Stop(ctx)
	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != "stop" {
		t.Fatalf("expected PersistenceError from stop, got %v", err)
	}
	after := c.Snapshot()
	if !after.Running || after.EntryID != before.EntryID {
		t.Fatal("failed stop must leave the timer running")
	}
	if clk.Tickers() != 1 {
		t.Fatal("failed stop must keep the tick")
	}

	// Retry succeeds once the store recovers.
	gw.setFail("UpdateEntry", nil)
	e, err := c.Stop(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if e.Seconds() != 10 {
		t.Fatalf("expected duration 10, got %d", e.Seconds())
	}
}

func TestStopEntryDeletedOutOfBand(t *testing.T) {
	c, gw, clk := newTestController(t)
	ctx := context.Background()
	snap, _ := c.Start(ctx, "work", nil)
	gw.remove(snap.EntryID)

	_, err := c.Stop(ctx)
	if !errors.Is(err, store.ErrNotFound) || Kind(err) != KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if c.Snapshot().Running {
		t.Fatal("controller should drop the vanished entry")
	}
	if clk.Tickers() != 0 {
		t.Fatal("tick must be cancelled")
	}
}

func TestStopEntryClosedOutOfBand(t *testing.T) {
	c, gw, clk := newTestController(t)
	ctx := context.Background()
	snap, _ := c.Start(ctx, "work", nil)
	end := snap.StartTime.Add(5 * time.Second)
	if _, err := gw.UpdateEntry(ctx, snap.EntryID, store.EntryPatch{EndTime: &end, Duration: ptr(int64(5))}); err != nil {
		t.Fatal(err)
	}

	clk.Advance(10 * time.Second)
	_, err := c.Stop(ctx)
	if Kind(err) != KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if c.Snapshot().Running || clk.Tickers() != 0 {
		t.Fatal("controller should go idle once the entry is closed elsewhere")
	}
}

// ============================================================
// Resume
// ============================================================

func TestResumeComputesElapsed(t *testing.T) {
	c, gw, clk := newTestController(t)
	gw.seed(store.TimeEntry{ID: "open", UserID: "u1", Description: "deep work", StartTime: t0.Add(-125 * time.Second)})

	snap, err := c.Resume(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !snap.Running || snap.EntryID != "open" || snap.Description != "deep work" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.ElapsedSeconds < 125 || snap.ElapsedSeconds > 126 {
		t.Fatalf("expected elapsed in [125,126], got %d", snap.ElapsedSeconds)
	}
	if clk.Tickers() != 1 {
		t.Fatal("resume should start the tick")
	}
}

func TestResumeSubSecondTruncates(t *testing.T) {
	c, gw, _ := newTestController(t)
	gw.seed(store.TimeEntry{ID: "open", UserID: "u1", StartTime: t0.Add(-1999 * time.Millisecond)})
	snap, _ := c.Resume(context.Background())
	if snap.ElapsedSeconds != 1 {
		t.Fatalf("elapsed must be floor-truncated, got %d", snap.ElapsedSeconds)
	}
}

func TestResumeFindingNoneGoesIdle(t *testing.T) {
	c, gw, clk := newTestController(t)
	ctx := context.Background()
	snap, _ := c.Start(ctx, "work", nil)
	gw.remove(snap.EntryID)

	got, err := c.Resume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.Running {
		t.Fatal("resume with nothing open should go idle")
	}
	if clk.Tickers() != 0 {
		t.Fatal("resume finding none must cancel the tick")
	}
}

func TestResumeMultipleOpenAdoptsNewestAndWarns(t *testing.T) {
	gw := newFakeGateway()
	clk := clock.NewFake(t0)
	log, hook := logtest.NewNullLogger()
	c := New(gw, "u1", WithClock(clk), WithLogger(log))
	t.Cleanup(c.Close)

	gw.seed(store.TimeEntry{ID: "old", UserID: "u1", StartTime: t0.Add(-2 * time.Hour)})
	gw.seed(store.TimeEntry{ID: "new", UserID: "u1", StartTime: t0.Add(-time.Hour)})

	snap, err := c.Resume(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.EntryID != "new" || snap.ElapsedSeconds != 3600 {
		t.Fatalf("expected newest entry adopted, got %+v", snap)
	}

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
			if e.Data["adopted"] != "new" {
				t.Fatalf("warning should name the adopted entry: %v", e.Data)
			}
		}
	}
	if !warned {
		t.Fatal("expected a warning for multiple open entries")
	}
	if gw.callCount("UpdateEntry") != 0 {
		t.Fatal("other open entries must not be auto-closed")
	}
	stale, _ := gw.GetEntry(context.Background(), "old")
	if !stale.Running() {
		t.Fatal("ignored entry should remain open")
	}
}

func TestResumeFailureLeavesState(t *testing.T) {
	c, gw, clk := newTestController(t)
	ctx := context.Background()
	before, _ := c.Start(ctx, "work", nil)
	gw.setFail("ListOpenEntries", fmt.Errorf("list: %w", store.ErrUnavailable))

	_, err := c.Resume(ctx)
	if Kind(err) != KindUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if c.Snapshot().EntryID != before.EntryID || clk.Tickers() != 1 {
		t.Fatal("failed resume must not change state")
	}
}

func TestResumeReplacesTick(t *testing.T) {
	c, gw, clk := newTestController(t)
	gw.seed(store.TimeEntry{ID: "open", UserID: "u1", StartTime: t0})
	ctx := context.Background()
	c.Resume(ctx)
	c.Resume(ctx)
	if clk.Tickers() != 1 {
		t.Fatalf("expected exactly one live ticker, got %d", clk.Tickers())
	}
}

// ============================================================
// Tick
// ============================================================

func TestTickRefreshesElapsed(t *testing.T) {
	c, gw, clk := newTestController(t)
	ctx := context.Background()
	c.Start(ctx, "work", nil)
	calls := gw.totalCalls()

	clk.Advance(time.Second)
	waitFor(t, "first tick", func() bool { return c.Snapshot().ElapsedSeconds == 1 })
	clk.Advance(time.Second)
	waitFor(t, "second tick", func() bool { return c.Snapshot().ElapsedSeconds == 2 })

	if gw.totalCalls() != calls {
		t.Fatal("ticks must never call the gateway")
	}
}

func TestUpdatesDeliversLatest(t *testing.T) {
	c, _, clk := newTestController(t)
	c.Start(context.Background(), "work", nil)

	clk.Advance(time.Second)
	waitFor(t, "tick", func() bool { return c.Snapshot().ElapsedSeconds == 1 })

	select {
	case s := <-c.Updates():
		if !s.Running || s.ElapsedSeconds != 1 {
			t.Fatalf("expected latest snapshot, got %+v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}
}

func TestStaleTickIgnored(t *testing.T) {
	c, _, clk := newTestController(t)
	c.Start(context.Background(), "work", nil)
	clk.Set(t0.Add(30 * time.Second))

	c.advance(&tickHandle{})
	if c.Snapshot().ElapsedSeconds != 0 {
		t.Fatal("a tick from a cancelled handle must be ignored")
	}
}

// ============================================================
// Close and concurrency
// ============================================================

func TestCloseCancelsTick(t *testing.T) {
	gw := newFakeGateway()
	clk := clock.NewFake(t0)
	log, _ := logtest.NewNullLogger()
	c := New(gw, "u1", WithClock(clk), WithLogger(log))
	c.Start(context.Background(), "work", nil)

	c.Close()
	c.Close()
	if clk.Tickers() != 0 {
		t.Fatal("close must cancel the tick")
	}
	if _, err := c.Start(context.Background(), "again", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	for range c.Updates() {
	}
}

func TestSingleWriterUnderConcurrentStarts(t *testing.T) {
	c, gw, _ := newTestController(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Start(ctx, "work", nil); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if ok != 1 {
		t.Fatalf("expected exactly one successful start, got %d", ok)
	}
	if gw.callCount("CreateEntry") != 1 {
		t.Fatalf("expected one create, got %d", gw.callCount("CreateEntry"))
	}
}

func TestStartStopSequence(t *testing.T) {
	c, _, clk := newTestController(t)
	ctx := context.Background()
	running := false
	ops := []string{"start", "start", "stop", "stop", "start", "stop", "start", "start", "stop"}
	for i, op := range ops {
		clk.Advance(3 * time.Second)
		switch op {
		case "start":
			_, err := c.Start(ctx, "work", nil)
			if running && err == nil {
				t.Fatalf("op %d: start succeeded while running", i)
			}
			if !running && err != nil {
				t.Fatalf("op %d: start failed while idle: %v", i, err)
			}
			running = true
		case "stop":
			_, err := c.Stop(ctx)
			if running != (err == nil) {
				t.Fatalf("op %d: stop result %v while running=%v", i, err, running)
			}
			running = false
		}
		if c.Snapshot().Running != running {
			t.Fatalf("op %d: snapshot disagrees with expected state", i)
		}
	}
}

// ============================================================
// Error kinds
// ============================================================

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{ErrValidation, KindValidation},
		{fmt.Errorf("x: %w", store.ErrInvalid), KindValidation},
		{ErrAlreadyRunning, KindAlreadyRunning},
		{ErrNotRunning, KindNotRunning},
		{&PersistenceError{Op: "stop", Err: store.ErrNotFound}, KindNotFound},
		{&PersistenceError{Op: "start", Err: store.ErrConflict}, KindConflict},
		{&PersistenceError{Op: "start", Err: store.ErrUnavailable}, KindUnavailable},
		{&PersistenceError{Op: "start", Err: errors.New("boom")}, KindPersistence},
		{errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		if got := Kind(tc.err); got != tc.want {
			t.Errorf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
