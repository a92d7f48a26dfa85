package loader

import (
	"image"
	"sync"
)

// FrameSet is a fixed-length, index-addressable frame sequence. Slot i holds
// frame i+1 of the source naming, or nil while unresolved or after a failed
// load. The length never changes; slots are written only by the loader and
// never after the set is frozen.
type FrameSet struct {
	mu     sync.RWMutex
	slots  []image.Image
	frozen bool
}

func newFrameSet(n int) *FrameSet {
	if n < 0 {
		n = 0
	}
	return &FrameSet{slots: make([]image.Image, n)}
}

// NewFrameSet builds an already frozen set from frames. nil entries are
// kept as empty slots.
func NewFrameSet(frames []image.Image) *FrameSet {
	fs := newFrameSet(len(frames))
	copy(fs.slots, frames)
	fs.frozen = true
	return fs
}

func (fs *FrameSet) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.slots)
}

// At returns the frame at index i, or nil for an empty or out-of-range slot.
func (fs *FrameSet) At(i int) image.Image {
	if fs == nil {
		return nil
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if i < 0 || i >= len(fs.slots) {
		return nil
	}
	return fs.slots[i]
}

// First returns the first populated frame, the layout reference.
func (fs *FrameSet) First() image.Image {
	if fs == nil {
		return nil
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	for _, img := range fs.slots {
		if img != nil {
			return img
		}
	}
	return nil
}

// Populated counts non-empty slots.
func (fs *FrameSet) Populated() int {
	if fs == nil {
		return 0
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	n := 0
	for _, img := range fs.slots {
		if img != nil {
			n++
		}
	}
	return n
}

func (fs *FrameSet) Frozen() bool {
	if fs == nil {
		return false
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.frozen
}

func (fs *FrameSet) set(i int, img image.Image) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.frozen || i < 0 || i >= len(fs.slots) {
		return false
	}
	fs.slots[i] = img
	return true
}

func (fs *FrameSet) freeze() {
	fs.mu.Lock()
	fs.frozen = true
	fs.mu.Unlock()
}
