package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler runs tickFn once on Start and then again each time pause has
// elapsed after the previous run finished. Runs never overlap.
type Scheduler struct {
	pause  time.Duration
	tickFn func(context.Context)
	logger *slog.Logger

	running atomic.Bool
	ticks   atomic.Int64
	lastRun atomic.Int64 // unix nanos of the last completed tick

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Status struct {
	Running bool      `json:"running"`
	Pause   string    `json:"pause"`
	Ticks   int64     `json:"ticks"`
	LastRun time.Time `json:"lastRun,omitempty"`
}

func New(pause time.Duration, tickFn func(context.Context)) (*Scheduler, error) {
	if pause <= 0 {
		return nil, errors.New("pause must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	return &Scheduler{
		pause:  pause,
		tickFn: tickFn,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}, nil
}

func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		s.logger.Info("scheduler started", "pause", s.pause.String())

		timer := time.NewTimer(0)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("scheduler stopping")
				return
			case <-timer.C:
				s.safeTick(ctx)
				timer.Reset(s.pause)
			}
		}
	}()

	return true
}

// Stop cancels the running tick, if any, and waits for it to return.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	s.logger.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) Status() Status {
	st := Status{
		Running: s.running.Load(),
		Pause:   s.pause.String(),
		Ticks:   s.ticks.Load(),
	}
	if ns := s.lastRun.Load(); ns != 0 {
		st.LastRun = time.Unix(0, ns).UTC()
	}
	return st
}

func (s *Scheduler) safeTick(ctx context.Context) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler tick panic recovered", "panic", r)
		}
		s.ticks.Add(1)
		s.lastRun.Store(time.Now().UnixNano())
	}()

	s.tickFn(ctx)
	s.logger.Info("scheduler tick completed", "duration_ms", time.Since(start).Milliseconds())
}
