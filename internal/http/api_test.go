package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/sadopc/punchclock/internal/clock"
	"github.com/sadopc/punchclock/internal/store"
	"github.com/sadopc/punchclock/internal/store/sqlite"
	"github.com/sadopc/punchclock/internal/timer"
)

const testSecret = "test-secret"

var t0 = time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC)

type testServer struct {
	router *gin.Engine
	store  *sqlite.Store
	clock  *clock.Fake
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := sqlite.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	clk := clock.NewFake(t0)
	log, _ := logtest.NewNullLogger()
	sessions := timer.NewSessions(st, timer.WithClock(clk), timer.WithLogger(log))
	t.Cleanup(sessions.CloseAll)

	h := NewHandler(Config{
		Sessions:  sessions,
		Gateway:   st,
		JWTSecret: testSecret,
		Clock:     clk,
		Logger:    log,
	})
	r := gin.New()
	h.RegisterRoutes(r)
	return &testServer{router: r, store: st, clock: clk}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := IssueToken(testSecret, userID, time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (%s)", w.Code, status, w.Body.String())
	}
	body := decode[map[string]string](t, w)
	if body["kind"] != kind {
		t.Fatalf("kind = %q, want %q", body["kind"], kind)
	}
	if body["error"] == "" {
		t.Fatal("error message should be set")
	}
}

func (s *testServer) seedClosed(t *testing.T, userID string, start time.Time, secs int64) *store.TimeEntry {
	t.Helper()
	ctx := context.Background()
	e, err := s.store.CreateEntry(ctx, store.NewEntry{UserID: userID, Description: "seed", StartTime: start})
	if err != nil {
		t.Fatal(err)
	}
	end := start.Add(time.Duration(secs) * time.Second)
	e, err = s.store.UpdateEntry(ctx, e.ID, store.EntryPatch{EndTime: &end, Duration: &secs})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// ============================================================
// Auth
// ============================================================

func TestHealthNeedsNoAuth(t *testing.T) {
	s := newTestServer(t)
	if w := s.do(t, http.MethodGet, "/api/health", "", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestAuthRejectsBadTokens(t *testing.T) {
	s := newTestServer(t)

	expectError(t, s.do(t, http.MethodGet, "/api/timer", "", nil), http.StatusUnauthorized, "unauthorized")

	wrong, _ := IssueToken("other-secret", "u1", time.Hour, time.Now())
	expectError(t, s.do(t, http.MethodGet, "/api/timer", wrong, nil), http.StatusUnauthorized, "unauthorized")

	expired, _ := IssueToken(testSecret, "u1", time.Minute, time.Now().Add(-time.Hour))
	expectError(t, s.do(t, http.MethodGet, "/api/timer", expired, nil), http.StatusUnauthorized, "unauthorized")

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	expectError(t, s.do(t, http.MethodGet, "/api/timer", none, nil), http.StatusUnauthorized, "unauthorized")

	noSub, _ := IssueToken(testSecret, "", time.Hour, time.Now())
	expectError(t, s.do(t, http.MethodGet, "/api/timer", noSub, nil), http.StatusUnauthorized, "unauthorized")
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	if _, err := IssueToken("", "u1", time.Hour, time.Now()); err == nil {
		t.Fatal("expected error without secret")
	}
}

// ============================================================
// Timer
// ============================================================

func TestTimerStartStop(t *testing.T) {
	s := newTestServer(t)
	tok := token(t, "u1")

	w := s.do(t, http.MethodPost, "/api/timer/start", tok, map[string]any{"description": "Write report"})
	if w.Code != http.StatusCreated {
		t.Fatalf("start status = %d: %s", w.Code, w.Body.String())
	}
	snap := decode[TimerResponse](t, w)
	if !snap.Running || snap.Description != "Write report" || snap.ElapsedSeconds != 0 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	expectError(t, s.do(t, http.MethodPost, "/api/timer/start", tok, map[string]any{"description": "again"}),
		http.StatusConflict, "already_running")

	s.clock.Advance(61 * time.Second)
	w = s.do(t, http.MethodGet, "/api/timer", tok, nil)
	if got := decode[TimerResponse](t, w); !got.Running || got.EntryID != snap.EntryID {
		t.Fatalf("timer should still be running, got %+v", got)
	}

	w = s.do(t, http.MethodPost, "/api/timer/stop", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stop status = %d: %s", w.Code, w.Body.String())
	}
	entry := decode[EntryResponse](t, w)
	if entry.Duration == nil || *entry.Duration != 61 || entry.EndTime == nil {
		t.Fatalf("unexpected stopped entry: %+v", entry)
	}

	expectError(t, s.do(t, http.MethodPost, "/api/timer/stop", tok, nil), http.StatusConflict, "not_running")
}

func TestTimerStartValidation(t *testing.T) {
	s := newTestServer(t)
	tok := token(t, "u1")
	expectError(t, s.do(t, http.MethodPost, "/api/timer/start", tok, map[string]any{"description": "  "}),
		http.StatusBadRequest, "validation")
	expectError(t, s.do(t, http.MethodPost, "/api/timer/start", tok, map[string]any{"description": "x", "project_id": "nope"}),
		http.StatusBadRequest, "validation")
}

func TestTimerStartWithOwnProject(t *testing.T) {
	s := newTestServer(t)
	p, err := s.store.CreateProject(context.Background(), "u1", "Website", "", "")
	if err != nil {
		t.Fatal(err)
	}
	w := s.do(t, http.MethodPost, "/api/timer/start", token(t, "u1"), map[string]any{"description": "x", "project_id": p.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got := decode[TimerResponse](t, w); got.ProjectID == nil || *got.ProjectID != p.ID {
		t.Fatalf("project not recorded: %+v", got)
	}

	// Another user's project is not usable.
	expectError(t, s.do(t, http.MethodPost, "/api/timer/start", token(t, "u2"), map[string]any{"description": "x", "project_id": p.ID}),
		http.StatusBadRequest, "validation")
}

func TestTimerResumesOpenEntry(t *testing.T) {
	s := newTestServer(t)
	_, err := s.store.CreateEntry(context.Background(), store.NewEntry{
		UserID: "u1", Description: "from another tab", StartTime: t0.Add(-125 * time.Second),
	})
	if err != nil {
		t.Fatal(err)
	}

	w := s.do(t, http.MethodGet, "/api/timer", token(t, "u1"), nil)
	snap := decode[TimerResponse](t, w)
	if !snap.Running || snap.ElapsedSeconds != 125 || snap.Description != "from another tab" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	w = s.do(t, http.MethodPost, "/api/timer/resume", token(t, "u1"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("resume status = %d", w.Code)
	}
}

func TestTimersAreScopedPerUser(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/timer/start", token(t, "u1"), map[string]any{"description": "mine"})

	w := s.do(t, http.MethodGet, "/api/timer", token(t, "u2"), nil)
	if decode[TimerResponse](t, w).Running {
		t.Fatal("u2 should not see u1's timer")
	}
	w = s.do(t, http.MethodPost, "/api/timer/start", token(t, "u2"), map[string]any{"description": "theirs"})
	if w.Code != http.StatusCreated {
		t.Fatalf("u2 start status = %d", w.Code)
	}
}

// ============================================================
// Entries
// ============================================================

func TestListEntriesWindow(t *testing.T) {
	s := newTestServer(t)
	tok := token(t, "u1")
	s.seedClosed(t, "u1", time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), 3600)
	s.seedClosed(t, "u1", time.Date(2024, 1, 3, 23, 30, 0, 0, time.UTC), 600)
	s.seedClosed(t, "u1", time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC), 60)
	s.seedClosed(t, "u2", time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), 60)

	w := s.do(t, http.MethodGet, "/api/entries?from=2024-01-02&to=2024-01-03", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	entries := decode[[]EntryResponse](t, w)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !entries[0].StartTime.Before(entries[1].StartTime) {
		t.Fatal("entries should be ordered by start ascending")
	}

	expectError(t, s.do(t, http.MethodGet, "/api/entries?from=2024-01-02", tok, nil), http.StatusBadRequest, "validation")
	expectError(t, s.do(t, http.MethodGet, "/api/entries?from=2024-01-05&to=2024-01-02", tok, nil), http.StatusBadRequest, "validation")
	expectError(t, s.do(t, http.MethodGet, "/api/entries?from=yesterday&to=today", tok, nil), http.StatusBadRequest, "validation")
}

func TestGetEntryOwnership(t *testing.T) {
	s := newTestServer(t)
	e := s.seedClosed(t, "u1", t0.Add(-time.Hour), 60)

	w := s.do(t, http.MethodGet, "/api/entries/"+e.ID, token(t, "u1"), nil)
	if w.Code != http.StatusOK || decode[EntryResponse](t, w).ID != e.ID {
		t.Fatalf("owner should read the entry: %d", w.Code)
	}
	expectError(t, s.do(t, http.MethodGet, "/api/entries/"+e.ID, token(t, "u2"), nil), http.StatusNotFound, "not_found")
	expectError(t, s.do(t, http.MethodGet, "/api/entries/missing", token(t, "u1"), nil), http.StatusNotFound, "not_found")
}

func TestPatchEntry(t *testing.T) {
	s := newTestServer(t)
	tok := token(t, "u1")
	e := s.seedClosed(t, "u1", t0.Add(-time.Hour), 60)

	w := s.do(t, http.MethodPatch, "/api/entries/"+e.ID, tok, map[string]any{"description": "renamed"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got := decode[EntryResponse](t, w); got.Description != "renamed" || *got.Duration != 60 {
		t.Fatalf("unexpected entry: %+v", got)
	}

	expectError(t, s.do(t, http.MethodPatch, "/api/entries/"+e.ID, tok, map[string]any{}), http.StatusBadRequest, "validation")
	expectError(t, s.do(t, http.MethodPatch, "/api/entries/"+e.ID, token(t, "u2"), map[string]any{"description": "x"}),
		http.StatusNotFound, "not_found")
}

func TestPatchRunningEntryUpdatesTimer(t *testing.T) {
	s := newTestServer(t)
	tok := token(t, "u1")
	p, err := s.store.CreateProject(context.Background(), "u1", "Alpha", "", "")
	if err != nil {
		t.Fatal(err)
	}
	w := s.do(t, http.MethodPost, "/api/timer/start", tok, map[string]any{"description": "draft"})
	snap := decode[TimerResponse](t, w)

	w = s.do(t, http.MethodPatch, "/api/entries/"+snap.EntryID, tok, map[string]any{"description": "final", "project_id": p.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	got := decode[TimerResponse](t, s.do(t, http.MethodGet, "/api/timer", tok, nil))
	if !got.Running || got.EntryID != snap.EntryID {
		t.Fatalf("timer should still run the same entry: %+v", got)
	}
	if got.Description != "final" || got.ProjectID == nil || *got.ProjectID != p.ID {
		t.Fatalf("timer should reflect the edit: %+v", got)
	}
}

func TestDeleteEntry(t *testing.T) {
	s := newTestServer(t)
	tok := token(t, "u1")
	e := s.seedClosed(t, "u1", t0.Add(-time.Hour), 60)

	expectError(t, s.do(t, http.MethodDelete, "/api/entries/"+e.ID, token(t, "u2"), nil), http.StatusNotFound, "not_found")
	if w := s.do(t, http.MethodDelete, "/api/entries/"+e.ID, tok, nil); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	expectError(t, s.do(t, http.MethodDelete, "/api/entries/"+e.ID, tok, nil), http.StatusNotFound, "not_found")
}

func TestDeleteRunningEntryStopsTimer(t *testing.T) {
	s := newTestServer(t)
	tok := token(t, "u1")
	w := s.do(t, http.MethodPost, "/api/timer/start", tok, map[string]any{"description": "oops"})
	snap := decode[TimerResponse](t, w)

	if w := s.do(t, http.MethodDelete, "/api/entries/"+snap.EntryID, tok, nil); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	w = s.do(t, http.MethodGet, "/api/timer", tok, nil)
	if decode[TimerResponse](t, w).Running {
		t.Fatal("timer should be idle after its entry is deleted")
	}
}

// ============================================================
// Stats
// ============================================================

func TestStats(t *testing.T) {
	s := newTestServer(t)
	tok := token(t, "u1")
	p, _ := s.store.CreateProject(context.Background(), "u1", "A", "", "")

	e := s.seedClosed(t, "u1", time.Date(2024, 1, 7, 9, 0, 0, 0, time.UTC), 3600)
	s.store.UpdateEntry(context.Background(), e.ID, store.EntryPatch{ProjectID: &p.ID})
	s.seedClosed(t, "u1", time.Date(2024, 1, 7, 14, 0, 0, 0, time.UTC), 1800)
	s.seedClosed(t, "u1", time.Date(2023, 12, 1, 9, 0, 0, 0, time.UTC), 999)

	w := s.do(t, http.MethodGet, "/api/stats?days=7", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	got := decode[StatsResponse](t, w)
	if got.TotalSeconds != 5400 || got.DailyTotals["2024-01-07"] != 5400 || got.ProjectTotals[p.ID] != 3600 {
		t.Fatalf("unexpected stats: %+v", got)
	}
	if len(got.Days) != 1 || got.Days[0].Date != "2024-01-07" {
		t.Fatalf("unexpected days: %+v", got.Days)
	}

	w = s.do(t, http.MethodGet, "/api/stats?from=2023-12-01&to=2023-12-01", tok, nil)
	if decode[StatsResponse](t, w).TotalSeconds != 999 {
		t.Fatal("explicit window not applied")
	}

	expectError(t, s.do(t, http.MethodGet, "/api/stats?days=0", tok, nil), http.StatusBadRequest, "validation")
	expectError(t, s.do(t, http.MethodGet, "/api/stats?days=abc", tok, nil), http.StatusBadRequest, "validation")
}

// ============================================================
// Errors
// ============================================================

func TestStoreUnavailable(t *testing.T) {
	s := newTestServer(t)
	s.store.Close()
	expectError(t, s.do(t, http.MethodGet, "/api/timer", token(t, "u1"), nil), http.StatusServiceUnavailable, "unavailable")
}

func TestStatusFor(t *testing.T) {
	cases := map[timer.ErrorKind]int{
		timer.KindValidation:     http.StatusBadRequest,
		timer.KindNotFound:       http.StatusNotFound,
		timer.KindAlreadyRunning: http.StatusConflict,
		timer.KindNotRunning:     http.StatusConflict,
		timer.KindConflict:       http.StatusConflict,
		timer.KindUnavailable:    http.StatusServiceUnavailable,
		timer.KindPersistence:    http.StatusServiceUnavailable,
		timer.KindInternal:       http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := statusFor(kind); got != want {
			t.Errorf("statusFor(%s) = %d, want %d", kind, got, want)
		}
	}
}
