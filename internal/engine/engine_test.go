package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ivlev/scrollframes/internal/config"
)

// indexSource returns a flat frame whose red channel encodes its 1-based
// index. Paths are "n:<index>".
type indexSource struct {
	fail map[int]bool
}

func (s *indexSource) Load(ctx context.Context, path string) (image.Image, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(path, "n:"))
	if err != nil {
		return nil, err
	}
	if s.fail[n] {
		return nil, fmt.Errorf("frame %d missing", n)
	}
	img := image.NewRGBA(image.Rect(0, 0, 16, 9))
	c := color.RGBA{R: uint8(n * 10), A: 255}
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img, nil
}

func indexPaths(n int) string { return fmt.Sprintf("n:%d", n) }

func testConfig(t *testing.T) *config.Config {
	cfg := config.Defaults()
	cfg.FrameCount = 5
	cfg.Width = 32
	cfg.Height = 18
	cfg.Steps = 9
	cfg.Interpolator = "nearest"
	cfg.OutputDir = t.TempDir()
	return &cfg
}

func run(t *testing.T, cfg *config.Config, src *indexSource) (*Report, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return NewSweepProject(cfg, src, indexPaths).Run(ctx)
}

func TestSweepWritesEveryStep(t *testing.T) {
	cfg := testConfig(t)
	rep, err := run(t, cfg, &indexSource{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if rep.Written != cfg.Steps {
		t.Errorf("Written = %d, want %d", rep.Written, cfg.Steps)
	}
	if rep.Canvas != image.Pt(32, 18) {
		t.Errorf("Canvas = %v, want 32x18", rep.Canvas)
	}

	files, _ := filepath.Glob(filepath.Join(cfg.OutputDir, "step-*.png"))
	if len(files) != cfg.Steps {
		t.Fatalf("Expected %d PNG files, got %d", cfg.Steps, len(files))
	}

	// last step is progress 1, so the last frame
	f, err := os.Open(filepath.Join(cfg.OutputDir, fmt.Sprintf("step-%04d.png", cfg.Steps-1)))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		t.Fatalf("Output is not a valid image: %v", err)
	}
	r, _, _, _ := img.At(16, 9).RGBA()
	if uint8(r>>8) != uint8(cfg.FrameCount*10) {
		t.Errorf("Last step drew red=%d, want %d", r>>8, cfg.FrameCount*10)
	}
}

func TestSweepSkipsFailedFrames(t *testing.T) {
	cfg := testConfig(t)
	rep, err := run(t, cfg, &indexSource{fail: map[int]bool{3: true}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(rep.Failed) != 1 || rep.Failed[0] != 2 {
		t.Errorf("Failed = %v, want [2]", rep.Failed)
	}
	if rep.Skipped == 0 {
		t.Error("Expected skipped draws for the missing frame")
	}
	if rep.Written+rep.Skipped != cfg.Steps {
		t.Errorf("Written %d + skipped %d != %d steps", rep.Written, rep.Skipped, cfg.Steps)
	}
}

func TestSweepNothingDrawn(t *testing.T) {
	cfg := testConfig(t)
	cfg.FrameCount = 2
	_, err := run(t, cfg, &indexSource{fail: map[int]bool{1: true, 2: true}})
	if err == nil {
		t.Fatal("Expected error when every frame failed")
	}
}

func TestSweepRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Steps = 1
	_, err := run(t, cfg, &indexSource{})
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("Expected ErrInvalid, got %v", err)
	}
}

func TestSweepBenchmarkLog(t *testing.T) {
	cfg := testConfig(t)
	cfg.ShowStats = true
	cfg.BuildVersion = "test"
	if _, err := run(t, cfg, &indexSource{}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "benchmark.log"))
	if err != nil {
		t.Fatalf("benchmark.log not written: %v", err)
	}
	if !strings.Contains(string(data), "Build: test") {
		t.Errorf("Unexpected log entry: %q", data)
	}
}

func TestSweepVideo(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	cfg := testConfig(t)
	cfg.Video = filepath.Join(cfg.OutputDir, "sweep.mp4")
	cfg.VideoEncoder = "libx264"

	rep, err := run(t, cfg, &indexSource{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rep.VideoFrames != cfg.Steps {
		t.Errorf("VideoFrames = %d, want %d", rep.VideoFrames, cfg.Steps)
	}
	if info, err := os.Stat(cfg.Video); err != nil || info.Size() == 0 {
		t.Errorf("Video not written: %v", err)
	}
}
