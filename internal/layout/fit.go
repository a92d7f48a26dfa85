// Package layout computes where a frame lands on the drawing surface.
package layout

import (
	"fmt"
	"image"
	"math"
	"strings"
)

type Mode int

const (
	// Contain fits the whole frame inside the surface, letterboxing the
	// non-matching axis.
	Contain Mode = iota
	// Cover fills the surface and crops the overflowing axis.
	Cover
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "contain", "":
		return Contain, nil
	case "cover":
		return Cover, nil
	default:
		return Contain, fmt.Errorf("unknown fit mode: %s", s)
	}
}

func (m Mode) String() string {
	if m == Cover {
		return "cover"
	}
	return "contain"
}

// Rect is a destination rectangle in surface pixels.
type Rect struct {
	X, Y          float64
	Width, Height float64
}

// Bounds rounds r to the pixel grid used by the rasterizer.
func (r Rect) Bounds() image.Rectangle {
	x0 := int(math.Round(r.X))
	y0 := int(math.Round(r.Y))
	x1 := int(math.Round(r.X + r.Width))
	y1 := int(math.Round(r.Y + r.Height))
	return image.Rect(x0, y0, x1, y1)
}

// Scale returns the ratio between the fitted and the reference width.
func (r Rect) Scale(refW float64) float64 {
	if refW <= 0 {
		return 0
	}
	return r.Width / refW
}

// Fit places a refW x refH frame on a surfaceW x surfaceH surface. ok is
// false when either size is degenerate, meaning nothing should be drawn.
func Fit(mode Mode, surfaceW, surfaceH, refW, refH float64) (r Rect, ok bool) {
	if surfaceW <= 0 || surfaceH <= 0 || refW <= 0 || refH <= 0 {
		return Rect{}, false
	}

	hRatio := surfaceW / refW
	vRatio := surfaceH / refH
	ratio := math.Min(hRatio, vRatio)
	if mode == Cover {
		ratio = math.Max(hRatio, vRatio)
	}

	w := refW * ratio
	h := refH * ratio
	return Rect{
		X:      (surfaceW - w) / 2,
		Y:      (surfaceH - h) / 2,
		Width:  w,
		Height: h,
	}, true
}

// FitImage is Fit with sizes taken from a surface and a reference frame. A
// nil reference yields ok == false.
func FitImage(mode Mode, surface image.Rectangle, ref image.Image) (Rect, bool) {
	if ref == nil {
		return Rect{}, false
	}
	b := ref.Bounds()
	return Fit(mode, float64(surface.Dx()), float64(surface.Dy()), float64(b.Dx()), float64(b.Dy()))
}
