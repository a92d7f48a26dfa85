package loader

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/ivlev/scrollframes/internal/config"
)

// fakeSource serves 4x2 frames. Paths listed in fail return an error; paths
// listed in gates block until their channel is closed or ctx is done.
type fakeSource struct {
	mu        sync.Mutex
	fail      map[string]bool
	gates     map[string]chan struct{}
	requests  []string
	inFlight  int
	maxFlight int
}

func newFakeSource() *fakeSource {
	return &fakeSource{fail: map[string]bool{}, gates: map[string]chan struct{}{}}
}

func (s *fakeSource) Load(ctx context.Context, path string) (image.Image, error) {
	s.mu.Lock()
	s.requests = append(s.requests, path)
	s.inFlight++
	if s.inFlight > s.maxFlight {
		s.maxFlight = s.inFlight
	}
	gate := s.gates[path]
	fail := s.fail[path]
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else {
		time.Sleep(time.Millisecond)
	}
	if fail {
		return nil, errors.New("boom")
	}
	return image.NewRGBA(image.Rect(0, 0, 4, 2)), nil
}

func (s *fakeSource) gate(path string) chan struct{} {
	ch := make(chan struct{})
	s.mu.Lock()
	s.gates[path] = ch
	s.mu.Unlock()
	return ch
}

var paths = config.FramePath("f", ".jpg")

func waitReady(t *testing.T, l *Loader) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
}

func TestLoadAll(t *testing.T) {
	src := newFakeSource()
	l := New(src, 0)
	if err := l.Start(context.Background(), 10, paths); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitReady(t, l)

	state := l.State()
	if !state.Ready || state.Percent != 100 || state.Resolved != 10 {
		t.Errorf("Unexpected state %+v", state)
	}
	fs := l.Frames()
	if fs.Len() != 10 || fs.Populated() != 10 || !fs.Frozen() {
		t.Errorf("Unexpected frame set: len=%d populated=%d", fs.Len(), fs.Populated())
	}
	if state.Cycle == "" {
		t.Error("Expected cycle id")
	}
}

func TestLoadPathsAreOneBased(t *testing.T) {
	src := newFakeSource()
	l := New(src, 0)
	l.Start(context.Background(), 3, paths)
	waitReady(t, l)

	seen := map[string]bool{}
	for _, p := range src.requests {
		seen[p] = true
	}
	for _, want := range []string{"f001.jpg", "f002.jpg", "f003.jpg"} {
		if !seen[want] {
			t.Errorf("Expected request for %s, got %v", want, src.requests)
		}
	}
	if seen["f000.jpg"] {
		t.Error("Unexpected request for f000.jpg")
	}
}

func TestLoadPartialFailure(t *testing.T) {
	tests := []struct {
		total  int
		failed []int
	}{
		{10, nil},
		{10, []int{1}},
		{10, []int{3, 7, 10}},
		{4, []int{1, 2, 3, 4}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_of_%d", len(tt.failed), tt.total), func(t *testing.T) {
			src := newFakeSource()
			for _, n := range tt.failed {
				src.fail[paths(n)] = true
			}
			l := New(src, 0)
			l.Start(context.Background(), tt.total, paths)
			waitReady(t, l)

			state := l.State()
			if !state.Ready || state.Percent != 100 {
				t.Errorf("Expected ready at 100%%, got %+v", state)
			}
			if len(state.Failed) != len(tt.failed) {
				t.Errorf("Expected %d failures, got %v", len(tt.failed), state.Failed)
			}
			fs := l.Frames()
			if fs.Populated() != tt.total-len(tt.failed) {
				t.Errorf("Expected %d populated slots, got %d", tt.total-len(tt.failed), fs.Populated())
			}
			for _, n := range tt.failed {
				if fs.At(n-1) != nil {
					t.Errorf("Slot %d should be empty", n-1)
				}
			}
		})
	}
}

func TestProgressMonotonicAndReadyOnce(t *testing.T) {
	src := newFakeSource()
	src.fail[paths(5)] = true
	l := New(src, 3)

	var mu sync.Mutex
	var percents []int
	readyCount := 0
	l.Subscribe(func(s LoadState) {
		mu.Lock()
		defer mu.Unlock()
		percents = append(percents, s.Percent)
		if s.Ready {
			readyCount++
		}
	})

	l.Start(context.Background(), 17, paths)
	waitReady(t, l)
	// the ready notification may still be in delivery
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Fatalf("Progress decreased: %v", percents)
		}
	}
	if readyCount != 1 {
		t.Errorf("Expected exactly one ready notification, got %d", readyCount)
	}
	if percents[len(percents)-1] != 100 {
		t.Errorf("Expected final 100%%, got %v", percents)
	}
}

func TestWorkersBound(t *testing.T) {
	src := newFakeSource()
	l := New(src, 2)
	l.Start(context.Background(), 12, paths)
	waitReady(t, l)

	if src.maxFlight > 2 {
		t.Errorf("Expected at most 2 concurrent loads, got %d", src.maxFlight)
	}
}

func TestCloseSuppressesLateResolution(t *testing.T) {
	src := newFakeSource()
	gate := src.gate(paths(2))
	l := New(src, 0)

	notified := 0
	var mu sync.Mutex
	l.Subscribe(func(LoadState) {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	l.Start(context.Background(), 3, paths)
	time.Sleep(50 * time.Millisecond)

	before := l.State()
	if before.Ready {
		t.Fatal("Should not be ready while frame 2 is pending")
	}
	mu.Lock()
	notifiedBefore := notified
	mu.Unlock()

	l.Close()
	close(gate)
	time.Sleep(50 * time.Millisecond)

	after := l.State()
	if after.Resolved != before.Resolved || after.Percent != before.Percent || after.Ready {
		t.Errorf("State changed after Close: before %+v, after %+v", before, after)
	}
	if l.Frames().At(1) != nil {
		t.Error("Late frame written after Close")
	}
	mu.Lock()
	if notified != notifiedBefore {
		t.Errorf("Notifications after Close: %d -> %d", notifiedBefore, notified)
	}
	mu.Unlock()

	if err := l.Start(context.Background(), 3, paths); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestRestartAbandonsPreviousCycle(t *testing.T) {
	src := newFakeSource()
	gate := src.gate(paths(1))
	l := New(src, 0)

	l.Start(context.Background(), 4, paths)
	first := l.State().Cycle

	other := config.FramePath("g", ".png")
	l.Start(context.Background(), 2, other)
	waitReady(t, l)

	close(gate)
	time.Sleep(50 * time.Millisecond)

	state := l.State()
	if state.Cycle == first {
		t.Error("Expected a new cycle id")
	}
	if state.Total != 2 || state.Resolved != 2 || !state.Ready {
		t.Errorf("Old cycle leaked into new state: %+v", state)
	}
	if l.Frames().Len() != 2 {
		t.Errorf("Expected frame set of 2, got %d", l.Frames().Len())
	}
}

func TestParentCancelLeavesStateUntouched(t *testing.T) {
	for _, workers := range []int{0, 2} {
		t.Run(fmt.Sprintf("workers_%d", workers), func(t *testing.T) {
			src := newFakeSource()
			for n := 4; n <= 10; n++ {
				src.gate(paths(n))
			}
			l := New(src, workers)

			notified := 0
			var mu sync.Mutex
			l.Subscribe(func(LoadState) {
				mu.Lock()
				notified++
				mu.Unlock()
			})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			l.Start(ctx, 10, paths)

			deadline := time.Now().Add(5 * time.Second)
			for l.State().Resolved < 3 {
				if time.Now().After(deadline) {
					t.Fatalf("Frames 1-3 never resolved: %+v", l.State())
				}
				time.Sleep(5 * time.Millisecond)
			}
			// the third resolution may still be in delivery
			time.Sleep(20 * time.Millisecond)

			before := l.State()
			mu.Lock()
			notifiedBefore := notified
			mu.Unlock()

			cancel()
			time.Sleep(50 * time.Millisecond)

			after := l.State()
			if after.Resolved != 3 || after.Percent != 30 || len(after.Failed) != 0 || after.Ready {
				t.Errorf("State changed after cancel: before %+v, after %+v", before, after)
			}
			if l.Frames().Frozen() {
				t.Error("Cancelled cycle froze its frame set")
			}
			mu.Lock()
			if notified != notifiedBefore {
				t.Errorf("Notifications after cancel: %d -> %d", notifiedBefore, notified)
			}
			mu.Unlock()

			wctx, wcancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer wcancel()
			if err := l.Wait(wctx); !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("Wait on a cancelled cycle returned %v", err)
			}

			// a fresh cycle still loads
			l.Start(context.Background(), 2, config.FramePath("g", ".png"))
			waitReady(t, l)
			if s := l.State(); !s.Ready || s.Resolved != 2 {
				t.Errorf("Restart after cancel: %+v", s)
			}
		})
	}
}

func TestWaitBeforeStart(t *testing.T) {
	l := New(newFakeSource(), 0)
	if err := l.Wait(context.Background()); err == nil {
		t.Error("Expected error before Start")
	}
}

func TestFrameSet(t *testing.T) {
	a := image.NewRGBA(image.Rect(0, 0, 2, 2))
	fs := NewFrameSet([]image.Image{nil, a, nil})

	if fs.Len() != 3 || fs.Populated() != 1 {
		t.Errorf("Unexpected len/populated %d/%d", fs.Len(), fs.Populated())
	}
	if fs.First() != a {
		t.Error("First should skip empty slots")
	}
	if fs.At(-1) != nil || fs.At(3) != nil {
		t.Error("Out of range should be nil")
	}
	if fs.set(0, a) {
		t.Error("Frozen set accepted a write")
	}

	var empty *FrameSet
	if empty.Len() != 0 || empty.At(0) != nil || empty.First() != nil {
		t.Error("nil FrameSet should behave as empty")
	}
}
