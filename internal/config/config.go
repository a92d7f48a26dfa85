package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	FramesBase     string  `yaml:"frames_base"`
	FrameExt       string  `yaml:"frame_ext"`
	FrameCount     int     `yaml:"frame_count"`
	Width          int     `yaml:"width"`
	Height         int     `yaml:"height"`
	DPR            float64 `yaml:"dpr"`
	FitMode        string  `yaml:"fit_mode"`
	Interpolator   string  `yaml:"interpolator"`
	Workers        int     `yaml:"workers"`
	RefreshRate    int     `yaml:"refresh_rate"`
	RedrawOnResize bool    `yaml:"redraw_on_resize"`
	Steps          int     `yaml:"steps"`
	OutputDir      string  `yaml:"output_dir"`
	DPI            int     `yaml:"dpi"`
	ListenAddr     string  `yaml:"listen_addr"`
	ShowStats      bool    `yaml:"show_stats"`
	Video          string  `yaml:"video"`
	FPS            int     `yaml:"fps"`
	VideoEncoder   string  `yaml:"video_encoder"`
	Quality        int     `yaml:"quality"`
	BuildVersion   string  `yaml:"-"`
}

// Defaults mirrors the landing page the engine was built for: 120 frames
// named frame-001.jpg ... frame-120.jpg.
func Defaults() Config {
	return Config{
		FramesBase:     "frames/frame-",
		FrameExt:       ".jpg",
		FrameCount:     120,
		Width:          1280,
		Height:         720,
		DPR:            1,
		FitMode:        "contain",
		Interpolator:   "bilinear",
		Workers:        0,
		RefreshRate:    60,
		RedrawOnResize: true,
		Steps:          120,
		OutputDir:      "output",
		DPI:            150,
		ListenAddr:     "127.0.0.1:8080",
		FPS:            30,
	}
}

// Load reads a YAML file on top of Defaults. Keys missing from the file keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Write stores cfg as YAML, used by the CLI to dump the effective settings.
func Write(cfg Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c Config) Validate() error {
	switch {
	case c.FrameCount <= 0:
		return fmt.Errorf("%w: frame_count must be positive, got %d", ErrInvalid, c.FrameCount)
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("%w: viewport %dx%d", ErrInvalid, c.Width, c.Height)
	case c.DPR < 0:
		return fmt.Errorf("%w: dpr %.2f", ErrInvalid, c.DPR)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers %d", ErrInvalid, c.Workers)
	case c.RefreshRate <= 0:
		return fmt.Errorf("%w: refresh_rate %d", ErrInvalid, c.RefreshRate)
	case c.Steps < 2:
		return fmt.Errorf("%w: steps must be at least 2, got %d", ErrInvalid, c.Steps)
	case c.Video != "" && c.FPS <= 0:
		return fmt.Errorf("%w: fps %d", ErrInvalid, c.FPS)
	case c.Quality < 0:
		return fmt.Errorf("%w: quality %d", ErrInvalid, c.Quality)
	}
	switch strings.ToLower(c.FitMode) {
	case "contain", "cover":
	default:
		return fmt.Errorf("%w: fit_mode %q (contain, cover)", ErrInvalid, c.FitMode)
	}
	switch strings.ToLower(c.Interpolator) {
	case "nearest", "bilinear", "catmullrom":
	default:
		return fmt.Errorf("%w: interpolator %q (nearest, bilinear, catmullrom)", ErrInvalid, c.Interpolator)
	}
	return nil
}

// PathFunc maps a 1-based frame number to a resource path.
type PathFunc func(n int) string

// FramePath builds base + zero padded number + ext, e.g. frame 1 of
// "frames/ezgif-frame-" is "frames/ezgif-frame-001.jpg".
func FramePath(base, ext string) PathFunc {
	if ext == "" {
		ext = ".jpg"
	}
	return func(n int) string {
		return fmt.Sprintf("%s%03d%s", base, n, ext)
	}
}

// Paths returns the resolver for the configured sequence.
func (c Config) Paths() PathFunc {
	return FramePath(c.FramesBase, c.FrameExt)
}
