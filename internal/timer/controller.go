// Package timer keeps the single active timer of a user in step with the
// store and drives a 1 Hz display tick while it runs.
package timer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sadopc/punchclock/internal/clock"
	"github.com/sadopc/punchclock/internal/store"
)

const tickInterval = time.Second

// Snapshot is the read model handed to display surfaces.
type Snapshot struct {
	Running        bool
	EntryID        string
	Description    string
	ProjectID      *string
	StartTime      time.Time
	ElapsedSeconds int64
}

type Option func(*Controller)

func WithClock(c clock.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(ctl *Controller) { ctl.log = l }
}

// Controller is the Idle/Running state machine for one user's timer.
// Commands are serialized; the state lock is never held across a gateway call.
type Controller struct {
	gw     store.Gateway
	userID string
	clock  clock.Clock
	log    logrus.FieldLogger

	op sync.Mutex

	mu      sync.Mutex
	snap    Snapshot
	tick    *tickHandle
	updates chan Snapshot
	closed  bool
}

type tickHandle struct {
	ticker clock.Ticker
	done   chan struct{}
}

func New(gw store.Gateway, userID string, opts ...Option) *Controller {
	c := &Controller{
		gw:      gw,
		userID:  userID,
		clock:   clock.Real{},
		log:     logrus.StandardLogger(),
		updates: make(chan Snapshot, 1),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.WithField("user", userID)
	return c
}

func (c *Controller) UserID() string { return c.userID }

// Snapshot returns the current read model.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Updates delivers the latest snapshot after every transition and tick.
// Only the most recent value is kept. The channel is closed by Close.
func (c *Controller) Updates() <-chan Snapshot {
	return c.updates
}

// Resume reconciles the controller with the store. With no open entry the
// controller goes Idle; otherwise it adopts the most recently started one
// and reports the time already elapsed.
func (c *Controller) Resume(ctx context.Context) (Snapshot, error) {
	c.op.Lock()
	defer c.op.Unlock()
	if err := c.checkOpen(); err != nil {
		return Snapshot{}, err
	}

	open, err := c.gw.ListOpenEntries(ctx, c.userID)
	if err != nil {
		return c.Snapshot(), &PersistenceError{Op: "resume", Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTickingLocked()
	if len(open) == 0 {
		c.snap = Snapshot{}
		c.publishLocked()
		return c.snapshotLocked(), nil
	}

	latest := 0
	for i := range open {
		if open[i].StartTime.After(open[latest].StartTime) {
			latest = i
		}
	}
	if len(open) > 1 {
		ignored := make([]string, 0, len(open)-1)
		for i := range open {
			if i != latest {
				ignored = append(ignored, open[i].ID)
			}
		}
		c.log.WithFields(logrus.Fields{
			"adopted": open[latest].ID,
			"ignored": ignored,
		}).Warn("multiple open time entries, resuming the most recent")
	}

	e := open[latest]
	c.snap = runningSnapshot(&e, c.clock.Now())
	c.startTickingLocked()
	c.publishLocked()
	return c.snapshotLocked(), nil
}

// Start opens a new entry. It never stops an existing timer: if one is open
// the call fails with ErrAlreadyRunning and the caller may Resume instead.
func (c *Controller) Start(ctx context.Context, description string, projectID *string) (Snapshot, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return c.Snapshot(), fmt.Errorf("%w: description is required", ErrValidation)
	}

	c.op.Lock()
	defer c.op.Unlock()
	if err := c.checkOpen(); err != nil {
		return Snapshot{}, err
	}
	if cur := c.Snapshot(); cur.Running {
		return cur, fmt.Errorf("%w: entry %s", ErrAlreadyRunning, cur.EntryID)
	}

	open, err := c.gw.OpenEntryForUser(ctx, c.userID)
	if err != nil {
		return c.Snapshot(), &PersistenceError{Op: "start", Err: err}
	}
	if open != nil {
		return c.Snapshot(), fmt.Errorf("%w: entry %s is open in the store", ErrAlreadyRunning, open.ID)
	}

	e, err := c.gw.CreateEntry(ctx, store.NewEntry{
		UserID:      c.userID,
		Description: description,
		StartTime:   c.clock.Now(),
		ProjectID:   projectID,
	})
	if err != nil {
		return c.Snapshot(), &PersistenceError{Op: "start", Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTickingLocked()
	c.snap = runningSnapshot(e, c.clock.Now())
	c.startTickingLocked()
	c.publishLocked()
	c.log.WithField("entry", e.ID).Info("timer started")
	return c.snapshotLocked(), nil
}

// Stop closes the running entry with end = now and a floor-truncated
// duration. On failure the controller stays Running so the call can be
// retried, except when the store reports the entry gone or already closed:
// then the controller goes Idle and the error is still returned.
func (c *Controller) Stop(ctx context.Context) (*store.TimeEntry, error) {
	c.op.Lock()
	defer c.op.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	cur := c.Snapshot()
	if !cur.Running {
		return nil, ErrNotRunning
	}

	end := c.clock.Now()
	if end.Before(cur.StartTime) {
		end = cur.StartTime
	}
	duration := clock.ElapsedSeconds(cur.StartTime, end)

	e, err := c.gw.UpdateEntry(ctx, cur.EntryID, store.EntryPatch{EndTime: &end, Duration: &duration})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConflict) {
			c.log.WithField("entry", cur.EntryID).WithError(err).Warn("running entry changed outside this timer")
			c.reset()
		}
		return nil, &PersistenceError{Op: "stop", Err: err}
	}

	c.reset()
	c.log.WithFields(logrus.Fields{"entry": e.ID, "duration": e.Seconds()}).Info("timer stopped")
	return e, nil
}

// Close cancels the tick and closes the updates channel. Later commands
// fail with ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.stopTickingLocked()
	c.closed = true
	close(c.updates)
}

func (c *Controller) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

func (c *Controller) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTickingLocked()
	c.snap = Snapshot{}
	c.publishLocked()
}

func runningSnapshot(e *store.TimeEntry, now time.Time) Snapshot {
	return Snapshot{
		Running:        true,
		EntryID:        e.ID,
		Description:    e.Description,
		ProjectID:      e.ProjectID,
		StartTime:      e.StartTime,
		ElapsedSeconds: clock.ElapsedSeconds(e.StartTime, now),
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	s := c.snap
	if s.ProjectID != nil {
		id := *s.ProjectID
		s.ProjectID = &id
	}
	return s
}

func (c *Controller) publishLocked() {
	if c.closed {
		return
	}
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- c.snapshotLocked():
	default:
	}
}

func (c *Controller) startTickingLocked() {
	h := &tickHandle{
		ticker: c.clock.NewTicker(tickInterval),
		done:   make(chan struct{}),
	}
	c.tick = h
	go c.runTick(h)
}

func (c *Controller) stopTickingLocked() {
	if c.tick == nil {
		return
	}
	close(c.tick.done)
	c.tick.ticker.Stop()
	c.tick = nil
}

func (c *Controller) runTick(h *tickHandle) {
	for {
		select {
		case <-h.done:
			return
		case <-h.ticker.C():
			c.advance(h)
		}
	}
}

// advance refreshes the elapsed readout. Ticks from a cancelled handle are
// ignored.
func (c *Controller) advance(h *tickHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tick != h || !c.snap.Running {
		return
	}
	c.snap.ElapsedSeconds = clock.ElapsedSeconds(c.snap.StartTime, c.clock.Now())
	c.publishLocked()
}
