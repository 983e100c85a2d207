// Package sweeper periodically submits created events whose eta has passed.
// Between ticks it can be woken early, either directly or at a given time.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Trigger is satisfied by events.Processor.
type Trigger interface {
	TriggerPendingEvents(ctx context.Context) (int, error)
}

type Config struct {
	Interval time.Duration
}

func DefaultConfig() Config {
	return Config{Interval: 10 * time.Second}
}

type Sweeper struct {
	trigger Trigger
	clock   clockwork.Clock
	config  Config

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	wakeCh    chan struct{}
	wakeMu    sync.Mutex
	wakeTimer clockwork.Timer
	wakeAt    time.Time

	statsMu  sync.Mutex
	sweeps   uint64
	lastRun  time.Time
	lastSent int
}

func New(trigger Trigger, clock clockwork.Clock, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Sweeper{
		trigger: trigger,
		clock:   clock,
		config:  cfg,
		wakeCh:  make(chan struct{}, 1),
	}
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)

	log.Info().Dur("interval", s.config.Interval).Msg("pending event sweeper started")
	return nil
}

func (s *Sweeper) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper not running")
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()

	s.wakeMu.Lock()
	if s.wakeTimer != nil {
		s.wakeTimer.Stop()
		s.wakeTimer = nil
	}
	s.wakeMu.Unlock()

	log.Info().Msg("pending event sweeper stopped")
	return nil
}

// Running reports whether the sweep loop is active.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Process immediately on start
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.Chan():
			s.sweep(ctx)
		case <-s.wakeCh:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	submitted, err := s.trigger.TriggerPendingEvents(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to trigger pending events")
	}

	s.statsMu.Lock()
	s.sweeps++
	s.lastRun = s.clock.Now()
	s.lastSent = submitted
	s.statsMu.Unlock()
}

// Wake requests a sweep as soon as possible. Calls made while a sweep is
// already pending are coalesced.
func (s *Sweeper) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// WakeAt requests a sweep at t. Only the earliest outstanding request is kept,
// since any sweep picks up everything due.
func (s *Sweeper) WakeAt(t time.Time) {
	now := s.clock.Now()
	if !t.After(now) {
		s.Wake()
		return
	}

	s.wakeMu.Lock()
	defer s.wakeMu.Unlock()
	if s.wakeTimer != nil && !s.wakeAt.After(t) {
		return
	}
	if s.wakeTimer != nil {
		s.wakeTimer.Stop()
	}
	s.wakeAt = t
	s.wakeTimer = s.clock.AfterFunc(t.Sub(now), func() {
		s.wakeMu.Lock()
		s.wakeTimer = nil
		s.wakeMu.Unlock()
		s.Wake()
	})
}

// Stats returns the number of sweeps, when the last one ran and how many
// events it submitted.
func (s *Sweeper) Stats() (sweeps uint64, lastRun time.Time, lastSubmitted int) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.sweeps, s.lastRun, s.lastSent
}
