// Package loader preloads an ordered frame sequence in parallel and reports
// progress as frames resolve.
package loader

import (
	"context"
	"errors"
	"image"
	"log"
	"math"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/scrollframes/internal/config"
	"github.com/ivlev/scrollframes/internal/source"
)

// ErrClosed is returned by Start and Wait after Close.
var ErrClosed = errors.New("loader closed")

// LoadState is a snapshot of one load cycle.
type LoadState struct {
	Cycle    string
	Total    int
	Resolved int   // succeeded + failed
	Percent  int   // round(Resolved/Total*100)
	Ready    bool  // true once every slot resolved, never reverts within a cycle
	Failed   []int // 1-based frame numbers that failed
}

type Loader struct {
	src     source.Source
	workers int

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	frames *FrameSet
	state  LoadState
	done   chan struct{}
	closed bool

	// Notifications are queued under mu and delivered in order by whichever
	// goroutine finds the queue idle, never with mu held.
	queue    []LoadState
	draining bool
	subs     map[int]func(LoadState)
	nextSub  int
}

// New creates a loader. workers bounds the number of concurrent fetches;
// 0 launches every frame at once.
func New(src source.Source, workers int) *Loader {
	return &Loader{
		src:     src,
		workers: workers,
		subs:    make(map[int]func(LoadState)),
	}
}

// Subscribe registers fn for every state change and returns its detach
// function. fn runs on loader goroutines, one call at a time, in the order
// the changes happened.
func (l *Loader) Subscribe(fn func(LoadState)) (unsubscribe func()) {
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
}

// Start abandons any in-flight cycle and begins loading count frames named
// by paths. It returns immediately; progress arrives through Subscribe.
func (l *Loader) Start(ctx context.Context, count int, paths config.PathFunc) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.cancel != nil {
		l.cancel()
	}
	l.gen++
	gen := l.gen
	cctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	if count < 0 {
		count = 0
	}
	frames := newFrameSet(count)
	l.frames = frames
	l.state = LoadState{Cycle: uuid.NewString(), Total: count}
	l.done = make(chan struct{})
	state := l.snapshotLocked()
	l.notifyLocked(state)

	log.Printf("[*] Load %s: %d frames", shortID(state.Cycle), count)
	go l.run(cctx, gen, count, paths)
	return nil
}

func (l *Loader) run(ctx context.Context, gen uint64, count int, paths config.PathFunc) {
	var g errgroup.Group
	if l.workers > 0 {
		g.SetLimit(l.workers)
	}
	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			img, err := l.src.Load(ctx, paths(i+1))
			l.resolve(ctx, gen, i, img, err)
			// Individual failures never fail the barrier
			return nil
		})
	}
	g.Wait()
	if ctx.Err() != nil {
		log.Printf("[!] Load cancelled: %v", context.Cause(ctx))
		return
	}
	l.finish(ctx, gen)
}

// live reports whether gen is still the active, non-closed cycle and its
// context has not been cancelled. Callers hold l.mu.
func (l *Loader) live(ctx context.Context, gen uint64) bool {
	return !l.closed && l.gen == gen && ctx.Err() == nil
}

func (l *Loader) resolve(ctx context.Context, gen uint64, i int, img image.Image, err error) {
	l.mu.Lock()
	if !l.live(ctx, gen) {
		l.mu.Unlock()
		return
	}
	if err != nil {
		log.Printf("[!] Failed to load frame %d: %v", i+1, err)
		l.state.Failed = append(l.state.Failed, i+1)
	} else {
		l.frames.set(i, img)
	}
	l.state.Resolved++
	l.state.Percent = percent(l.state.Resolved, l.state.Total)
	l.notifyLocked(l.snapshotLocked())
}

func (l *Loader) finish(ctx context.Context, gen uint64) {
	l.mu.Lock()
	if !l.live(ctx, gen) {
		l.mu.Unlock()
		return
	}
	l.frames.freeze()
	l.state.Ready = true
	l.state.Percent = 100
	close(l.done)
	state := l.snapshotLocked()
	log.Printf("[*] Load %s ready: %d/%d frames, %d failed",
		shortID(state.Cycle), state.Resolved-len(state.Failed), state.Total, len(state.Failed))
	l.notifyLocked(state)
}

// notifyLocked is entered with l.mu held and releases it.
func (l *Loader) notifyLocked(state LoadState) {
	l.queue = append(l.queue, state)
	if l.draining {
		l.mu.Unlock()
		return
	}
	l.draining = true

	for {
		if l.closed || len(l.queue) == 0 {
			l.queue = nil
			l.draining = false
			l.mu.Unlock()
			return
		}
		next := l.queue[0]
		l.queue = l.queue[1:]
		if next.Cycle != l.state.Cycle {
			// queued by a superseded cycle
			continue
		}
		subs := make([]func(LoadState), 0, len(l.subs))
		for id := 0; id < l.nextSub; id++ {
			if fn, ok := l.subs[id]; ok {
				subs = append(subs, fn)
			}
		}
		l.mu.Unlock()

		for _, fn := range subs {
			fn(next)
		}
		l.mu.Lock()
	}
}

func (l *Loader) snapshotLocked() LoadState {
	s := l.state
	s.Failed = append([]int(nil), l.state.Failed...)
	return s
}

// State returns the current cycle snapshot.
func (l *Loader) State() LoadState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Frames returns the current cycle's frame set, non-nil after Start. Slots
// may still be empty until State().Ready; the set is frozen from then on.
func (l *Loader) Frames() *FrameSet {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames
}

// Wait blocks until the current cycle is ready.
func (l *Loader) Wait(ctx context.Context) error {
	l.mu.Lock()
	done, closed := l.done, l.closed
	l.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if done == nil {
		return errors.New("loader not started")
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close abandons the in-flight cycle. Late resolutions become no-ops and no
// further notifications are delivered.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	if l.cancel != nil {
		l.cancel()
	}
	l.subs = make(map[int]func(LoadState))
}

func percent(resolved, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(float64(resolved) / float64(total) * 100))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
