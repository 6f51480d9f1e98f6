// Package convert performs pixel-format conversion between capture and
// encoding, on a fixed-size worker pool with bounded queues.
package convert

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/smazurov/recordnode/internal/media"
)

// Converter turns a raw frame into the pool's output format.
type Converter interface {
	// Convert returns a new frame in the target format. The input
	// frame's buffer is owned by the converter for the duration of the
	// call and must not be retained.
	Convert(frame *media.VideoFrame) (*media.VideoFrame, error)
	// Name identifies the conversion backend for logging.
	Name() string
}

// Config describes one conversion.
type Config struct {
	InputFormat  media.PixelFormat
	OutputFormat media.PixelFormat
	Width        int
	Height       int
}

// NewConverter builds a converter for the config, preferring a hardware
// backend when one is available and falling back to CPU per-frame on
// hardware errors.
func NewConverter(cfg Config, logger *slog.Logger) (Converter, error) {
	cpu, err := newCPUConverter(cfg)
	if err != nil {
		return nil, err
	}

	if hw, hwErr := newAcceleratedConverter(cfg); hwErr == nil {
		logger.Info("Using accelerated converter", "backend", hw.Name())
		return newFallbackConverter(hw, cpu, logger), nil
	}

	return cpu, nil
}

// newAcceleratedConverter probes for a usable hardware conversion
// backend. Linux render nodes are the only probe today; everything else
// reports no acceleration and the pool runs CPU-only.
func newAcceleratedConverter(cfg Config) (Converter, error) {
	if _, err := os.Stat("/dev/dri/renderD128"); err != nil {
		return nil, fmt.Errorf("no render node: %w", err)
	}
	// A render node alone does not guarantee a working conversion
	// context; treat acceleration as unavailable until a backend claims
	// the device.
	return nil, fmt.Errorf("no accelerated backend for %s", cfg.OutputFormat)
}

// fallbackConverter tries the primary backend and transparently falls
// back to CPU per-frame. Conversion errors are recoverable: they are
// logged and counted, never surfaced to the pipeline.
type fallbackConverter struct {
	primary  Converter
	fallback Converter
	logger   *slog.Logger
	failures atomic.Uint64
}

func newFallbackConverter(primary, fallback Converter, logger *slog.Logger) *fallbackConverter {
	return &fallbackConverter{primary: primary, fallback: fallback, logger: logger}
}

func (c *fallbackConverter) Name() string {
	return c.primary.Name() + "+" + c.fallback.Name()
}

func (c *fallbackConverter) Convert(frame *media.VideoFrame) (*media.VideoFrame, error) {
	out, err := c.primary.Convert(frame)
	if err == nil {
		return out, nil
	}

	failures := c.failures.Add(1)
	if failures%30 == 1 {
		c.logger.Warn("Accelerated conversion failed, using CPU fallback",
			"backend", c.primary.Name(), "failures", failures, "error", err)
	}

	return c.fallback.Convert(frame)
}

// cpuConverter implements packed-RGB to planar-YUV conversion in Go.
type cpuConverter struct {
	cfg Config
}

func newCPUConverter(cfg Config) (*cpuConverter, error) {
	switch cfg.InputFormat {
	case media.PixelFormatBGRA32, media.PixelFormatRGBA32, media.PixelFormatRGB24:
	case media.PixelFormatNV12, media.PixelFormatI420:
		// Pass-through or replan only.
	default:
		return nil, fmt.Errorf("%w: unsupported input %s", media.ErrFormatNegotiation, cfg.InputFormat)
	}
	switch cfg.OutputFormat {
	case media.PixelFormatNV12, media.PixelFormatI420:
	default:
		return nil, fmt.Errorf("%w: unsupported output %s", media.ErrFormatNegotiation, cfg.OutputFormat)
	}
	return &cpuConverter{cfg: cfg}, nil
}

func (c *cpuConverter) Name() string { return "cpu" }

func (c *cpuConverter) Convert(frame *media.VideoFrame) (*media.VideoFrame, error) {
	if frame.Width != c.cfg.Width || frame.Height != c.cfg.Height {
		return nil, fmt.Errorf("%w: got %dx%d, configured %dx%d",
			media.ErrConvertFailed, frame.Width, frame.Height, c.cfg.Width, c.cfg.Height)
	}
	want := frame.Format.FrameSize(frame.Width, frame.Height)
	if want == 0 || len(frame.Data) < want {
		return nil, fmt.Errorf("%w: short buffer %d for %s %dx%d",
			media.ErrConvertFailed, len(frame.Data), frame.Format, frame.Width, frame.Height)
	}

	if frame.Format == c.cfg.OutputFormat {
		return frame, nil
	}

	out := &media.VideoFrame{
		Width:     frame.Width,
		Height:    frame.Height,
		Format:    c.cfg.OutputFormat,
		Timestamp: frame.Timestamp,
		Seq:       frame.Seq,
		Data:      make([]byte, c.cfg.OutputFormat.FrameSize(frame.Width, frame.Height)),
	}

	switch frame.Format {
	case media.PixelFormatBGRA32:
		packedToYUV(frame.Data, out, 4, 2, 1, 0)
	case media.PixelFormatRGBA32:
		packedToYUV(frame.Data, out, 4, 0, 1, 2)
	case media.PixelFormatRGB24:
		packedToYUV(frame.Data, out, 3, 0, 1, 2)
	case media.PixelFormatNV12, media.PixelFormatI420:
		replanYUV(frame, out)
	default:
		return nil, fmt.Errorf("%w: %s to %s", media.ErrConvertFailed, frame.Format, c.cfg.OutputFormat)
	}

	return out, nil
}

// packedToYUV converts packed RGB-family data to the output's planar
// layout using BT.601 integer math, averaging 2x2 blocks for chroma.
func packedToYUV(src []byte, out *media.VideoFrame, stride, rOff, gOff, bOff int) {
	w, h := out.Width, out.Height
	y := out.Data[:w*h]

	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			p := (row*w + col) * stride
			r, g, b := int(src[p+rOff]), int(src[p+gOff]), int(src[p+bOff])
			y[row*w+col] = clamp(((66*r + 129*g + 25*b + 128) >> 8) + 16)
		}
	}

	cw, ch := w/2, h/2
	for row := 0; row < ch; row++ {
		for col := 0; col < cw; col++ {
			var rSum, gSum, bSum int
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					p := ((row*2+dy)*w + col*2 + dx) * stride
					rSum += int(src[p+rOff])
					gSum += int(src[p+gOff])
					bSum += int(src[p+bOff])
				}
			}
			r, g, b := rSum/4, gSum/4, bSum/4
			u := clamp(((-38*r - 74*g + 112*b + 128) >> 8) + 128)
			v := clamp(((112*r - 94*g - 18*b + 128) >> 8) + 128)
			writeChroma(out, row, col, int(u), int(v))
		}
	}
}

// replanYUV repacks between NV12 and I420 chroma layouts.
func replanYUV(in *media.VideoFrame, out *media.VideoFrame) {
	w, h := out.Width, out.Height
	copy(out.Data[:w*h], in.Data[:w*h])

	cw, ch := w/2, h/2
	for row := 0; row < ch; row++ {
		for col := 0; col < cw; col++ {
			var u, v int
			if in.Format == media.PixelFormatNV12 {
				base := w*h + (row*cw+col)*2
				u, v = int(in.Data[base]), int(in.Data[base+1])
			} else {
				u = int(in.Data[w*h+row*cw+col])
				v = int(in.Data[w*h+cw*ch+row*cw+col])
			}
			writeChroma(out, row, col, u, v)
		}
	}
}

func writeChroma(out *media.VideoFrame, row, col, u, v int) {
	w, h := out.Width, out.Height
	cw, ch := w/2, h/2
	switch out.Format {
	case media.PixelFormatNV12:
		base := w*h + (row*cw+col)*2
		out.Data[base] = byte(u)
		out.Data[base+1] = byte(v)
	case media.PixelFormatI420:
		out.Data[w*h+row*cw+col] = byte(u)
		out.Data[w*h+cw*ch+row*cw+col] = byte(v)
	}
}

func clamp(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
