package renderer

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/image/draw"
)

// FrameIndex maps scroll progress in [0,1] to a frame of a total-frame
// sequence: clamp(round(progress*(total-1)), 0, total-1). Out-of-range and
// NaN progress clamp to the ends.
func FrameIndex(progress float64, total int) int {
	if total <= 1 || math.IsNaN(progress) {
		return 0
	}
	last := total - 1
	idx := math.Round(progress * float64(last))
	if idx < 0 {
		return 0
	}
	if idx > float64(last) {
		return last
	}
	return int(idx)
}

// ParseInterpolator names the scaler used to draw frames into the fit rect.
func ParseInterpolator(name string) (draw.Interpolator, error) {
	switch strings.ToLower(name) {
	case "nearest":
		return draw.NearestNeighbor, nil
	case "bilinear", "":
		return draw.ApproxBiLinear, nil
	case "catmullrom":
		return draw.CatmullRom, nil
	default:
		return nil, fmt.Errorf("unknown interpolator: %s", name)
	}
}
