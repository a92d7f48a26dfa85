package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/ivlev/scrollframes/internal/config"
	"github.com/ivlev/scrollframes/internal/input"
	"github.com/ivlev/scrollframes/internal/layout"
	"github.com/ivlev/scrollframes/internal/loader"
	"github.com/ivlev/scrollframes/internal/playback"
	"github.com/ivlev/scrollframes/internal/renderer"
	"github.com/ivlev/scrollframes/internal/source"
	"github.com/ivlev/scrollframes/internal/system"
	"github.com/ivlev/scrollframes/internal/video"
)

// SweepProject прогоняет прокрутку от 0 до 1 через движок воспроизведения
// и сохраняет каждый отрисованный кадр холста в PNG.
type SweepProject struct {
	Config *config.Config
	Source source.Source
	Paths  config.PathFunc
}

type Report struct {
	Steps    int
	Written  int
	Skipped  int
	Failed   []int
	LoadTime time.Duration
	Total    time.Duration
	Canvas   image.Point
	Rect     layout.Rect
	// VideoFrames counts frames sent to the video file, when one is set.
	VideoFrames int
}

func NewSweepProject(cfg *config.Config, src source.Source, paths config.PathFunc) *SweepProject {
	if paths == nil {
		paths = cfg.Paths()
	}
	return &SweepProject{Config: cfg, Source: src, Paths: paths}
}

func (p *SweepProject) Run(ctx context.Context) (*Report, error) {
	startTime := time.Now()
	cfg := p.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mode, err := layout.ParseMode(cfg.FitMode)
	if err != nil {
		return nil, err
	}
	interp, err := renderer.ParseInterpolator(cfg.Interpolator)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, err
	}

	// Оценка памяти по размеру холста: кадры обычно того же порядка
	dpr := cfg.DPR
	if dpr <= 0 {
		dpr = 1
	}
	pw := int(math.Round(float64(cfg.Width) * dpr))
	ph := int(math.Round(float64(cfg.Height) * dpr))
	if need, _, err := system.CheckMemoryBudget(cfg.FrameCount, pw, ph); err != nil {
		log.Printf("[!] %v", err)
	} else {
		fmt.Printf("[*] Estimated frame memory: %s\n", system.HumanBytes(need))
	}

	fmt.Println("--- [SCROLL SWEEP] ---")
	fmt.Printf("[*] Frames: %d | Viewport: %dx%d @ %.2fx | Fit: %s\n", cfg.FrameCount, cfg.Width, cfg.Height, dpr, mode)
	fmt.Println("----------------------")

	sched := &renderer.ManualScheduler{}
	r := renderer.New(renderer.Options{Mode: mode, Interpolator: interp, Scheduler: sched})
	progress := input.NewProgress(0)
	viewport := input.NewViewport(cfg.Width, cfg.Height, cfg.DPR)

	report := &Report{Steps: cfg.Steps}
	step := 0
	var writeErr error
	var stream *video.Stream
	r.OnDraw(func(d renderer.Draw) {
		if stream != nil {
			if err := stream.WriteFrame(d.Canvas); err != nil {
				writeErr = errors.Join(writeErr, err)
			}
		}
		path := filepath.Join(cfg.OutputDir, fmt.Sprintf("step-%04d.png", step))
		if err := writePNG(path, d.Canvas); err != nil {
			writeErr = errors.Join(writeErr, err)
			return
		}
		report.Written++
	})

	loadStart := time.Now()
	lastPercent := -1
	l := loader.New(p.Source, cfg.Workers)
	ctrl := playback.New(l, r, progress, viewport, playback.Options{
		RedrawOnResize: cfg.RedrawOnResize,
		OnLoading: func(percent int) {
			if percent/10 != lastPercent/10 {
				fmt.Printf("[>] Loading: %d%%\n", percent)
			}
			lastPercent = percent
		},
	})
	defer ctrl.Close()

	if cfg.Video != "" {
		encoder := cfg.VideoEncoder
		if encoder == "" {
			encoder = video.BestH264Encoder()
		}
		fmt.Printf("[*] Video: %s (%s, %d fps)\n", cfg.Video, encoder, cfg.FPS)
		stream, err = video.Start(ctx, cfg.Video, video.Options{
			Size:    r.Size(),
			FPS:     cfg.FPS,
			Encoder: encoder,
			Quality: cfg.Quality,
		})
		if err != nil {
			return nil, err
		}
		defer func() {
			// рендерер должен быть остановлен до закрытия потока
			ctrl.Close()
			if stream != nil {
				stream.Close()
			}
		}()
	}

	if err := ctrl.Load(ctx, cfg.FrameCount, p.Paths); err != nil {
		return nil, err
	}
	if err := ctrl.WaitReady(ctx); err != nil {
		return nil, fmt.Errorf("loading interrupted: %w", err)
	}
	report.LoadTime = time.Since(loadStart)
	report.Failed = l.State().Failed

	// Шаг 0 отрисован при переходе в ready, дальше тикаем вручную
	for step = 1; step < cfg.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		progress.Set(float64(step) / float64(cfg.Steps-1))
		sched.Tick()
	}

	if stream != nil {
		report.VideoFrames = stream.Frames()
		err := stream.Close()
		stream = nil
		if err != nil {
			writeErr = errors.Join(writeErr, err)
		}
	}

	stats := r.Stats()
	report.Skipped = stats.Skipped
	report.Canvas = r.Size()
	report.Rect, _ = r.Rect()
	report.Total = time.Since(startTime)

	if cfg.ShowStats {
		p.printReport(report, stats)
	}
	if report.Written == 0 {
		return report, errors.Join(errors.New("no frames were drawn, check the frame paths"), writeErr)
	}
	return report, writeErr
}

func (p *SweepProject) printReport(rep *Report, stats renderer.Stats) {
	report := fmt.Sprintf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Total Time: %.2fs\n"+
			"Loading: %.2fs\n"+
			"Draws: %d (skipped %d, coalesced %d)\n"+
			"Failed Frames: %d\n"+
			"Canvas: %dx%d\n"+
			"----------------------------\n",
		p.Config.BuildVersion, rep.Total.Seconds(), rep.LoadTime.Seconds(),
		stats.Draws, stats.Skipped, stats.Coalesced, len(rep.Failed), rep.Canvas.X, rep.Canvas.Y,
	)
	fmt.Print(report)

	logEntry := fmt.Sprintf("[%s] Build: %s | Frames: %d | Steps: %d | Total: %.2fs | Load: %.2fs | Draws: %d\n",
		time.Now().Format("2006-01-02 15:04:05"),
		p.Config.BuildVersion,
		p.Config.FrameCount,
		rep.Steps,
		rep.Total.Seconds(),
		rep.LoadTime.Seconds(),
		stats.Draws,
	)

	f, err := os.OpenFile(filepath.Join(p.Config.OutputDir, "benchmark.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		f.WriteString(logEntry)
		f.Close()
	} else {
		fmt.Printf("[!] Failed to write benchmark.log: %v\n", err)
	}
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
