// Package playback wires a scroll signal to the frame renderer and gates
// rendering on the preloader.
package playback

import (
	"context"
	"sync"

	"github.com/ivlev/scrollframes/internal/config"
	"github.com/ivlev/scrollframes/internal/input"
	"github.com/ivlev/scrollframes/internal/loader"
	"github.com/ivlev/scrollframes/internal/renderer"
)

type Options struct {
	// RedrawOnResize re-renders the current scroll position after every
	// resize once frames are ready.
	RedrawOnResize bool
	// OnLoading drives the loading indicator while frames load.
	OnLoading func(percent int)
	// OnReady fires once per load cycle, after the first frame is drawn.
	OnReady func(loader.LoadState)
}

type Controller struct {
	loader   *loader.Loader
	renderer *renderer.Renderer
	scroll   input.ScrollSource
	viewport input.ResizeSource
	opts     Options

	mu      sync.Mutex
	ready   bool
	readyCh chan struct{}
	closed  bool
	unsubs  []func()
}

// New subscribes to every source. viewport may be nil when the caller
// drives Resize directly. If viewport is set, the renderer is sized from it
// right away.
func New(l *loader.Loader, r *renderer.Renderer, scroll input.ScrollSource, viewport input.ResizeSource, opts Options) *Controller {
	c := &Controller{
		loader:   l,
		renderer: r,
		scroll:   scroll,
		viewport: viewport,
		opts:     opts,
		readyCh:  make(chan struct{}),
	}

	if viewport != nil {
		size := viewport.Size()
		r.HandleResize(size.Width, size.Height, size.DPR)
		c.unsubs = append(c.unsubs, viewport.Subscribe(func(s input.ViewportSize) {
			c.Resize(s.Width, s.Height, s.DPR)
		}))
	}
	c.unsubs = append(c.unsubs, scroll.Subscribe(c.onScroll))
	c.unsubs = append(c.unsubs, l.Subscribe(c.onLoad))

	// loader may have finished before we subscribed
	if state := l.State(); state.Ready {
		c.onLoad(state)
	}
	return c
}

// Load starts a load cycle on the controller's loader.
func (c *Controller) Load(ctx context.Context, count int, paths config.PathFunc) error {
	return c.loader.Start(ctx, count, paths)
}

func (c *Controller) onScroll(progress float64) {
	c.mu.Lock()
	active := c.ready && !c.closed
	c.mu.Unlock()

	if active {
		c.renderer.RequestRender(progress)
	}
}

func (c *Controller) onLoad(state loader.LoadState) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	if !state.Ready {
		restarted := c.ready
		if restarted {
			c.ready = false
			c.readyCh = make(chan struct{})
		}
		c.mu.Unlock()

		if restarted {
			c.renderer.SetFrames(nil)
		}
		if c.opts.OnLoading != nil {
			c.opts.OnLoading(state.Percent)
		}
		return
	}

	if c.ready {
		c.mu.Unlock()
		return
	}
	frames := c.loader.Frames()
	if state.Cycle != c.loader.State().Cycle || !frames.Frozen() {
		// a newer cycle started after this notification was queued
		c.mu.Unlock()
		return
	}
	c.ready = true
	readyCh := c.readyCh
	c.mu.Unlock()

	c.renderer.SetFrames(frames)
	// avoid a blank canvas until the first scroll event
	c.renderer.Render(c.scroll.Value())
	close(readyCh)

	if c.opts.OnReady != nil {
		c.opts.OnReady(state)
	}
}

// Resize is the resize listener: it resizes the canvas and, when enabled,
// redraws the current position.
func (c *Controller) Resize(width, height int, dpr float64) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	redraw := c.ready && c.opts.RedrawOnResize
	c.mu.Unlock()

	c.renderer.HandleResize(width, height, dpr)
	if redraw {
		c.renderer.Render(c.scroll.Value())
	}
}

// Ready reports whether the current cycle finished and was drawn.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// WaitReady blocks until the current cycle's first draw.
func (c *Controller) WaitReady(ctx context.Context) error {
	c.mu.Lock()
	ch := c.readyCh
	c.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close detaches every subscription, abandons loading and stops rendering.
// Safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	for _, fn := range unsubs {
		fn()
	}
	c.loader.Close()
	c.renderer.Close()
}
