// Package media holds the raw frame and sample types shared by every
// pipeline stage, plus capture format negotiation.
package media

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatI420   PixelFormat = iota // YUV 4:2:0 planar (Y + U + V)
	PixelFormatNV12                      // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatRGB24                     // Packed RGB, 3 bytes per pixel
	PixelFormatRGBA32                    // Packed RGBA, 4 bytes per pixel
	PixelFormatBGRA32                    // Packed BGRA, 4 bytes per pixel
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "yuv420p"
	case PixelFormatNV12:
		return "nv12"
	case PixelFormatRGB24:
		return "rgb24"
	case PixelFormatRGBA32:
		return "rgba"
	case PixelFormatBGRA32:
		return "bgra"
	default:
		return "unknown"
	}
}

// BytesPerPixel returns the packed byte width, or 0 for planar formats.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case PixelFormatRGB24:
		return 3
	case PixelFormatRGBA32, PixelFormatBGRA32:
		return 4
	default:
		return 0
	}
}

// FrameSize returns the total buffer size in bytes for a frame of the
// given dimensions in this format.
func (p PixelFormat) FrameSize(width, height int) int {
	switch p {
	case PixelFormatI420, PixelFormatNV12:
		return width*height + (width/2)*(height/2)*2
	case PixelFormatRGB24:
		return width * height * 3
	case PixelFormatRGBA32, PixelFormatBGRA32:
		return width * height * 4
	default:
		return 0
	}
}

// AudioFormat represents audio sample formats.
type AudioFormat int

const (
	AudioFormatS16 AudioFormat = iota // Signed 16-bit PCM
	AudioFormatF32                    // 32-bit float
)

func (a AudioFormat) String() string {
	switch a {
	case AudioFormatS16:
		return "s16le"
	case AudioFormatF32:
		return "f32le"
	default:
		return "unknown"
	}
}

// BytesPerSample returns the number of bytes per sample for this format.
func (a AudioFormat) BytesPerSample() int {
	switch a {
	case AudioFormatS16:
		return 2
	case AudioFormatF32:
		return 4
	default:
		return 0
	}
}

// VideoFrame is a raw video frame moving through the pipeline.
// The Data buffer is exclusively owned: ownership transfers on every
// channel send and the buffer is never shared mutably between stages.
type VideoFrame struct {
	Data      []byte
	Width     int
	Height    int
	Format    PixelFormat
	Timestamp Timestamp
	Seq       uint64 // monotonic per source, correlates drop accounting
}

// Clone deep-copies the frame. Only needed when a frame must outlive
// its owner, e.g. camera fan-out to multiple consumers.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := *f
	if f.Data != nil {
		clone.Data = make([]byte, len(f.Data))
		copy(clone.Data, f.Data)
	}
	return &clone
}

// AudioChunk is a block of raw audio samples moving through the pipeline.
type AudioChunk struct {
	Data       []byte
	SampleRate int
	Channels   int
	Format     AudioFormat
	Timestamp  Timestamp
	Seq        uint64
}

// SampleCount returns the number of samples per channel in the chunk.
func (c *AudioChunk) SampleCount() int {
	denom := c.Format.BytesPerSample() * c.Channels
	if denom == 0 {
		return 0
	}
	return len(c.Data) / denom
}

// Clone deep-copies the chunk.
func (c *AudioChunk) Clone() *AudioChunk {
	clone := *c
	if c.Data != nil {
		clone.Data = make([]byte, len(c.Data))
		copy(clone.Data, c.Data)
	}
	return &clone
}

// SamplesS16 returns a checked int16 view of an S16 chunk. The length
// must be an even number of bytes; no pointer reinterpretation happens,
// samples are decoded little-endian pairwise.
func (c *AudioChunk) SamplesS16() ([]int16, bool) {
	if c.Format != AudioFormatS16 || len(c.Data)%2 != 0 {
		return nil, false
	}
	out := make([]int16, len(c.Data)/2)
	for i := range out {
		out[i] = int16(uint16(c.Data[2*i]) | uint16(c.Data[2*i+1])<<8)
	}
	return out, true
}
