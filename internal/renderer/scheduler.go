package renderer

import (
	"context"
	"sync"
	"time"
)

// Scheduler runs callbacks on the next animation-frame tick, the way a
// browser's requestAnimationFrame does.
type Scheduler interface {
	RequestFrame(fn func())
}

// ManualScheduler queues callbacks until Tick. Used by offline export and
// tests where the caller owns the clock.
type ManualScheduler struct {
	mu    sync.Mutex
	queue []func()
}

func (s *ManualScheduler) RequestFrame(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	s.mu.Unlock()
}

// Pending returns the number of callbacks waiting for the next tick.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Tick runs every callback queued before the call. Callbacks requested
// during the tick wait for the next one.
func (s *ManualScheduler) Tick() int {
	s.mu.Lock()
	queue := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, fn := range queue {
		fn()
	}
	return len(queue)
}

// TickerScheduler flushes queued callbacks at a fixed refresh rate.
type TickerScheduler struct {
	interval time.Duration

	mu    sync.Mutex
	queue []func()

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTickerScheduler(refreshRate int) *TickerScheduler {
	if refreshRate <= 0 {
		refreshRate = 60
	}
	return &TickerScheduler{interval: time.Second / time.Duration(refreshRate)}
}

func (s *TickerScheduler) RequestFrame(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	s.mu.Unlock()
}

// Start spawns the tick loop. It runs until ctx is done or Stop is called.
func (s *TickerScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *TickerScheduler) tick() {
	s.mu.Lock()
	queue := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, fn := range queue {
		fn()
	}
}

// Stop ends the tick loop and drops callbacks that never ran.
func (s *TickerScheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.queue = nil
	s.mu.Unlock()
}
