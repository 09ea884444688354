package timer

import (
	"context"
	"sync"

	"github.com/sadopc/punchclock/internal/store"
)

// Sessions holds one Controller per user for surfaces that serve many users.
type Sessions struct {
	gw   store.Gateway
	opts []Option

	mu     sync.Mutex
	byUser map[string]*Controller
}

func NewSessions(gw store.Gateway, opts ...Option) *Sessions {
	return &Sessions{gw: gw, opts: opts, byUser: make(map[string]*Controller)}
}

// Get returns the user's controller, creating and resuming it on first use.
func (s *Sessions) Get(ctx context.Context, userID string) (*Controller, error) {
	s.mu.Lock()
	c, ok := s.byUser[userID]
	s.mu.Unlock()
	if ok {
		return c, nil
	}

	c = New(s.gw, userID, s.opts...)
	if _, err := c.Resume(ctx); err != nil {
		c.Close()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byUser[userID]; ok {
		c.Close()
		return existing, nil
	}
	s.byUser[userID] = c
	return c, nil
}

// CloseAll tears down every controller.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.byUser {
		c.Close()
		delete(s.byUser, id)
	}
}
