// Package renderer draws the frame matching a scroll position into a
// device-pixel canvas.
package renderer

import (
	"image"
	"math"
	"sync"

	"golang.org/x/image/draw"

	"github.com/ivlev/scrollframes/internal/layout"
	"github.com/ivlev/scrollframes/internal/loader"
	"github.com/ivlev/scrollframes/internal/system"
)

type Options struct {
	Mode         layout.Mode
	Interpolator draw.Interpolator // default draw.ApproxBiLinear
	Scheduler    Scheduler         // nil draws RequestRender calls synchronously
}

// Stats counts renderer work since creation.
type Stats struct {
	Draws     int // frames actually drawn
	Skipped   int // renders that hit an empty slot
	Coalesced int // requests merged into an already pending tick
	Layouts   int // fit rect recomputations
}

// Draw describes one completed draw. Canvas is only valid for the duration
// of the observer call.
type Draw struct {
	Index    int
	Progress float64
	Canvas   *image.RGBA
}

type Renderer struct {
	opts Options

	mu      sync.Mutex
	frames  *loader.FrameSet
	canvas  *image.RGBA
	rect    layout.Rect
	hasRect bool
	pending bool
	latest  float64
	closed  bool
	stats   Stats
	onDraw  []func(Draw)
}

func New(opts Options) *Renderer {
	if opts.Interpolator == nil {
		opts.Interpolator = draw.ApproxBiLinear
	}
	return &Renderer{opts: opts}
}

// OnDraw registers fn for every completed draw. fn runs with the renderer
// locked and must not call back into it.
func (r *Renderer) OnDraw(fn func(Draw)) {
	r.mu.Lock()
	r.onDraw = append(r.onDraw, fn)
	r.mu.Unlock()
}

// SetFrames hands over a completed frame set. The reference frame changes,
// so the fit rect is recomputed.
func (r *Renderer) SetFrames(fs *loader.FrameSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = fs
	r.layoutLocked()
}

// HandleResize sizes the canvas to the viewport in physical pixels
// (logical size x device pixel ratio) and recomputes the fit rect.
func (r *Renderer) HandleResize(width, height int, dpr float64) {
	if dpr <= 0 || math.IsNaN(dpr) {
		dpr = 1
	}
	pw := int(math.Round(float64(width) * dpr))
	ph := int(math.Round(float64(height) * dpr))

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	if pw <= 0 || ph <= 0 {
		r.releaseCanvasLocked()
	} else if r.canvas == nil || r.canvas.Rect.Dx() != pw || r.canvas.Rect.Dy() != ph {
		r.releaseCanvasLocked()
		r.canvas = system.GetImage(pw, ph)
		// pooled buffers keep old pixels
		draw.Draw(r.canvas, r.canvas.Rect, image.Transparent, image.Point{}, draw.Src)
	}
	r.layoutLocked()
}

func (r *Renderer) releaseCanvasLocked() {
	if r.canvas != nil {
		system.PutImage(r.canvas)
		r.canvas = nil
	}
}

func (r *Renderer) layoutLocked() {
	r.stats.Layouts++
	if r.canvas == nil {
		r.rect, r.hasRect = layout.Rect{}, false
		return
	}
	r.rect, r.hasRect = layout.FitImage(r.opts.Mode, r.canvas.Rect, r.frames.First())
}

// Render draws the frame for progress immediately. It reports whether a
// draw happened: nothing is drawn without frames, canvas or fit rect, and an
// empty slot leaves the previous frame on the canvas.
func (r *Renderer) Render(progress float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.frames.Len() == 0 || r.canvas == nil || !r.hasRect {
		return false
	}

	idx := FrameIndex(progress, r.frames.Len())
	frame := r.frames.At(idx)
	if frame == nil {
		r.stats.Skipped++
		return false
	}

	draw.Draw(r.canvas, r.canvas.Rect, image.Transparent, image.Point{}, draw.Src)
	r.opts.Interpolator.Scale(r.canvas, r.rect.Bounds(), frame, frame.Bounds(), draw.Over, nil)
	r.stats.Draws++

	d := Draw{Index: idx, Progress: progress, Canvas: r.canvas}
	for _, fn := range r.onDraw {
		fn(d)
	}
	return true
}

// RequestRender records progress and schedules at most one draw per tick.
// The draw uses whatever value is latest when the tick fires.
func (r *Renderer) RequestRender(progress float64) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.latest = progress
	if r.pending {
		r.stats.Coalesced++
		r.mu.Unlock()
		return
	}
	r.pending = true
	sched := r.opts.Scheduler
	r.mu.Unlock()

	if sched == nil {
		r.flush()
		return
	}
	sched.RequestFrame(r.flush)
}

func (r *Renderer) flush() {
	r.mu.Lock()
	if !r.pending || r.closed {
		r.mu.Unlock()
		return
	}
	r.pending = false
	progress := r.latest
	r.mu.Unlock()

	r.Render(progress)
}

// Pending reports whether a draw is scheduled for the next tick.
func (r *Renderer) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// Rect returns the cached fit rect.
func (r *Renderer) Rect() (layout.Rect, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rect, r.hasRect
}

// Size returns the canvas size in physical pixels.
func (r *Renderer) Size() image.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.canvas == nil {
		return image.Point{}
	}
	return r.canvas.Rect.Size()
}

func (r *Renderer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Snapshot copies the current canvas, nil before the first resize.
func (r *Renderer) Snapshot() *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.canvas == nil {
		return nil
	}
	out := image.NewRGBA(r.canvas.Rect)
	copy(out.Pix, r.canvas.Pix)
	return out
}

// Close drops any pending draw and releases the canvas.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.pending = false
	r.releaseCanvasLocked()
}
