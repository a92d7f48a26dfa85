// Package input holds the externally driven signals the playback engine
// reads: scroll progress and viewport size.
package input

import (
	"math"
	"sync"
)

// ScrollSource is a continuous scroll-progress signal in [0,1].
type ScrollSource interface {
	Value() float64
	// Subscribe calls fn on every change and returns its detach function.
	Subscribe(fn func(progress float64)) (unsubscribe func())
}

// ViewportSize is the logical viewport plus its device pixel ratio.
type ViewportSize struct {
	Width, Height int
	DPR           float64
}

// ResizeSource reports viewport resizes.
type ResizeSource interface {
	Size() ViewportSize
	Subscribe(fn func(ViewportSize)) (unsubscribe func())
}

type listeners[T any] struct {
	subs map[int]func(T)
	next int
}

func (l *listeners[T]) add(fn func(T)) int {
	if l.subs == nil {
		l.subs = make(map[int]func(T))
	}
	id := l.next
	l.next++
	l.subs[id] = fn
	return id
}

func (l *listeners[T]) snapshot() []func(T) {
	out := make([]func(T), 0, len(l.subs))
	for id := 0; id < l.next; id++ {
		if fn, ok := l.subs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

// Progress is an in-memory ScrollSource, set by whoever tracks the scroll
// container. Listeners fire only when the value actually changes, one call
// at a time, and the last value delivered is always the current one. A
// listener must not call Set.
type Progress struct {
	mu    sync.Mutex
	value float64
	sent  float64 // last value delivered to listeners
	subs  listeners[float64]

	notifyMu sync.Mutex
}

func NewProgress(initial float64) *Progress {
	v := clamp01(initial)
	return &Progress{value: v, sent: v}
}

func (p *Progress) Value() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Set stores v clamped to [0,1]. NaN is ignored.
func (p *Progress) Set(v float64) {
	if math.IsNaN(v) {
		return
	}
	v = clamp01(v)

	p.mu.Lock()
	if v == p.value {
		p.mu.Unlock()
		return
	}
	p.value = v
	p.mu.Unlock()

	// a concurrent Set may have stored a newer value meanwhile; deliver
	// whatever is current so an older value is never delivered last
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	p.mu.Lock()
	cur := p.value
	if cur == p.sent {
		p.mu.Unlock()
		return
	}
	p.sent = cur
	subs := p.subs.snapshot()
	p.mu.Unlock()

	for _, fn := range subs {
		fn(cur)
	}
}

func (p *Progress) Subscribe(fn func(float64)) func() {
	p.mu.Lock()
	id := p.subs.add(fn)
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.subs.subs, id)
		p.mu.Unlock()
	}
}

// Viewport is an in-memory ResizeSource.
type Viewport struct {
	mu   sync.Mutex
	size ViewportSize
	subs listeners[ViewportSize]
}

func NewViewport(width, height int, dpr float64) *Viewport {
	return &Viewport{size: ViewportSize{Width: width, Height: height, DPR: dpr}}
}

func (v *Viewport) Size() ViewportSize {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.size
}

// Set reports a resize. Listeners fire even for an unchanged size, as a
// browser resize event would.
func (v *Viewport) Set(size ViewportSize) {
	v.mu.Lock()
	v.size = size
	subs := v.subs.snapshot()
	v.mu.Unlock()

	for _, fn := range subs {
		fn(size)
	}
}

func (v *Viewport) Subscribe(fn func(ViewportSize)) func() {
	v.mu.Lock()
	id := v.subs.add(fn)
	v.mu.Unlock()
	return func() {
		v.mu.Lock()
		delete(v.subs.subs, id)
		v.mu.Unlock()
	}
}

// ScrollProgress converts a scroll offset to progress for a container that
// starts at the top of the viewport and ends when its bottom reaches the
// viewport bottom.
func ScrollProgress(scrollTop, containerHeight, viewportHeight float64) float64 {
	span := containerHeight - viewportHeight
	if span <= 0 {
		return 0
	}
	return clamp01(scrollTop / span)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
