// Package video pipes rendered canvases into ffmpeg as raw RGBA.
package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"
	"strings"
)

// ErrSizeMismatch means a frame does not match the stream's video size.
var ErrSizeMismatch = errors.New("frame size does not match the stream")

// BestH264Encoder picks a hardware encoder when ffmpeg has one.
func BestH264Encoder() string {
	out, err := exec.Command("ffmpeg", "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}
	// Приоритеты: VideoToolbox (macOS), NVENC, затем программный libx264
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(string(out), name) {
			return name
		}
	}
	return "libx264"
}

// DefaultQuality returns a sensible quality for encoder: CRF for x264 and
// NVENC, bitrate in 100 kbit/s units for VideoToolbox.
func DefaultQuality(encoder string) int {
	switch encoder {
	case "h264_videotoolbox":
		return 75
	case "h264_nvenc":
		return 28
	default:
		return 23
	}
}

type Options struct {
	Size    image.Point
	FPS     int
	Encoder string
	Quality int
}

func buildArgs(path string, opts Options) []string {
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", opts.Size.X, opts.Size.Y),
		"-framerate", fmt.Sprintf("%d", opts.FPS),
		"-i", "-",
		// yuv420p требует четных размеров
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-pix_fmt", "yuv420p",
		"-c:v", opts.Encoder,
	}

	switch opts.Encoder {
	case "h264_videotoolbox":
		args = append(args, "-b:v", fmt.Sprintf("%dk", opts.Quality*100))
	case "h264_nvenc":
		args = append(args, "-cq", fmt.Sprintf("%d", opts.Quality))
	default: // libx264
		args = append(args, "-crf", fmt.Sprintf("%d", opts.Quality), "-preset", "medium")
	}

	return append(args, path)
}

// Stream is one running ffmpeg process fed frame by frame.
type Stream struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	output strings.Builder
	size   image.Point
	frames int
}

func Start(ctx context.Context, path string, opts Options) (*Stream, error) {
	if opts.Size.X <= 0 || opts.Size.Y <= 0 {
		return nil, fmt.Errorf("invalid video size %v", opts.Size)
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Encoder == "" {
		opts.Encoder = "libx264"
	}
	if opts.Quality <= 0 {
		opts.Quality = DefaultQuality(opts.Encoder)
	}

	s := &Stream{size: opts.Size}
	s.cmd = exec.CommandContext(ctx, "ffmpeg", buildArgs(path, opts)...)
	s.cmd.Stderr = &s.output

	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	s.stdin = stdin

	if err := s.cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}
	return s, nil
}

// WriteFrame appends img. The image must have the stream's size.
func (s *Stream) WriteFrame(img image.Image) error {
	if img.Bounds().Size() != s.size {
		return fmt.Errorf("%w: %v, want %v", ErrSizeMismatch, img.Bounds().Size(), s.size)
	}
	if err := writeRawRGBA(s.stdin, img); err != nil {
		return fmt.Errorf("write raw error: %w", err)
	}
	s.frames++
	return nil
}

func (s *Stream) Frames() int {
	return s.frames
}

// Close finishes the file and waits for ffmpeg.
func (s *Stream) Close() error {
	s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg wait error: %v, output: %s", err, s.output.String())
	}
	return nil
}

func writeRawRGBA(w io.Writer, img image.Image) error {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || rgba.Rect.Min.X != 0 || rgba.Rect.Min.Y != 0 {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Rect, img, bounds.Min, draw.Src)
	}
	_, err := w.Write(rgba.Pix)
	return err
}
