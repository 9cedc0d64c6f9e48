package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrAlreadyStarted is returned by Start on a running scheduler.
var ErrAlreadyStarted = errors.New("scheduler: already started")

// TickFunc is invoked once per period.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
}

// Scheduler fires a tick immediately and then on a fixed period. Ticks run in
// their own goroutines, so a slow tick never delays the next one.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running sync.WaitGroup
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Start launches the loop in the background and returns immediately.
func (s *Scheduler) Start(ctx context.Context, tick TickFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		s.loop(loopCtx, tick)
	}()
	return nil
}

// Stop cancels the loop and waits for in-flight ticks to return. Safe to call repeatedly.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.running.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

// Run blocks until ctx is cancelled, then waits for in-flight ticks.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if err := s.Start(ctx, tick); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, tick TickFunc) {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	s.logger.Info().Dur("interval", s.opts.Interval).Msg("scheduler started")
	s.fire(ctx, tick, time.Now().UTC())

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case at := <-ticker.C:
			s.fire(ctx, tick, at.UTC())
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, tick TickFunc, at time.Time) {
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().Interface("panic", r).Time("at", at).Msg("tick panicked")
			}
		}()

		s.logger.Debug().Time("at", at).Msg("executing scheduled tick")
		if err := tick(ctx, at); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Time("at", at).Msg("tick execution failed")
		}
	}()
}
