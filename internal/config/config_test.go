package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFramePath(t *testing.T) {
	tests := []struct {
		base, ext string
		n         int
		want      string
	}{
		{"/frames/ezgif-frame-", ".jpg", 1, "/frames/ezgif-frame-001.jpg"},
		{"/frames/ezgif-frame-", ".jpg", 120, "/frames/ezgif-frame-120.jpg"},
		{"f", "", 7, "f007.jpg"},
		{"f", ".webp", 1000, "f1000.webp"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FramePath(tt.base, tt.ext)(tt.n); got != tt.want {
				t.Errorf("FramePath(%q, %q)(%d) = %q, want %q", tt.base, tt.ext, tt.n, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"cover", func(c *Config) { c.FitMode = "Cover" }, false},
		{"zero frames", func(c *Config) { c.FrameCount = 0 }, true},
		{"zero width", func(c *Config) { c.Width = 0 }, true},
		{"negative dpr", func(c *Config) { c.DPR = -1 }, true},
		{"negative workers", func(c *Config) { c.Workers = -2 }, true},
		{"fill mode", func(c *Config) { c.FitMode = "fill" }, true},
		{"bad interpolator", func(c *Config) { c.Interpolator = "lanczos" }, true},
		{"one step", func(c *Config) { c.Steps = 1 }, true},
		{"video without fps", func(c *Config) { c.Video = "out.mp4"; c.FPS = 0 }, true},
		{"fps ignored without video", func(c *Config) { c.FPS = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Errorf("Expected ErrInvalid, got %v", err)
				}
			} else if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.yaml")
	data := []byte("frames_base: https://cdn.example.com/seq-\nframe_count: 48\nfit_mode: cover\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.FrameCount != 48 || cfg.FitMode != "cover" {
		t.Errorf("File values not applied: %+v", cfg)
	}
	if cfg.Width != 1280 || cfg.FrameExt != ".jpg" || !cfg.RedrawOnResize {
		t.Errorf("Defaults lost: %+v", cfg)
	}
	if got := cfg.Paths()(2); got != "https://cdn.example.com/seq-002.jpg" {
		t.Errorf("Paths()(2) = %q", got)
	}
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Defaults()
	cfg.FrameCount = 33
	cfg.RedrawOnResize = false

	if err := Write(cfg, path); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	read, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if read.FrameCount != 33 || read.RedrawOnResize {
		t.Errorf("Round trip mismatch: %+v", read)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
