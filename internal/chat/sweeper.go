package chat

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper periodically marks idle users inactive and drops client ids whose
// connections are gone. A single atomic in-progress flag guarantees that a
// slow sweep and the next tick never run concurrently.
type Sweeper struct {
	service   *ChatService
	interval  time.Duration
	idleAfter time.Duration
	alive     func(clientID string) bool
	now       func() time.Time

	sweeping atomic.Bool
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper creates a sweeper over the service's entity graph. alive reports
// whether a client id still has a live connection; the transport provides it.
func NewSweeper(service *ChatService, interval, idleAfter time.Duration, alive func(clientID string) bool) *Sweeper {
	return &Sweeper{
		service:   service,
		interval:  interval,
		idleAfter: idleAfter,
		alive:     alive,
		now:       time.Now,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				if !s.sweeping.CompareAndSwap(false, true) {
					continue
				}
				s.Sweep()
				s.sweeping.Store(false)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

// Sweep performs one pass over all users, under the same lock that guards
// command-driven mutations.
func (s *Sweeper) Sweep() {
	s.service.mu.Lock()
	defer s.service.mu.Unlock()

	now := s.now()
	changed := false

	for _, user := range s.service.repo.Users() {
		for clientID := range user.ConnectedClients {
			if !s.alive(clientID) {
				user.RemoveClient(clientID)
				changed = true
			}
		}
		switch {
		case len(user.ConnectedClients) == 0 && user.Status != StatusOffline:
			user.Status = StatusOffline
			changed = true
		case user.Status == StatusActive && now.Sub(user.LastActivity) > s.idleAfter && len(user.ConnectedClients) > 0:
			user.Status = StatusInactive
			changed = true
		}
	}

	if changed {
		if err := s.service.repo.CommitChanges(); err != nil {
			log.Error().Err(err).Msg("sweep commit failed")
		}
	}
}
