// Package ffmpeg builds argument lists for the external ffmpeg binary:
// raw grabs from OS devices on the capture side and raw-to-compressed
// muxing on the encode side.
package ffmpeg

import (
	"fmt"
	"strconv"
)

// Binary is the executable name resolved from PATH.
const Binary = "ffmpeg"

// BaseArgs are the flags every invocation carries. level+info prefixes
// each stderr line with its log level so output can be parsed.
func BaseArgs() []string {
	return []string{"-hide_banner", "-loglevel", "level+info"}
}

// GrabParams describes a raw capture from an OS device. Output is
// always unencoded on stdout, ready for the conversion pool.
type GrabParams struct {
	// Backend is the ffmpeg input format: x11grab, v4l2, avfoundation,
	// alsa, pulse.
	Backend string
	// Input is backend-specific: an X display, a device path, an ALSA
	// name.
	Input string

	// Video mode. Ignored by audio backends.
	Width     int
	Height    int
	FrameRate float64
	// PixelFormat is the ffmpeg name of the raw output format, e.g.
	// "nv12" or "yuv420p".
	PixelFormat string

	// Audio mode. Ignored by video backends.
	SampleRate int
	Channels   int
}

func (p GrabParams) video() bool {
	switch p.Backend {
	case "alsa", "pulse":
		return false
	}
	return true
}

// Args renders the grab invocation.
func (p GrabParams) Args() []string {
	args := BaseArgs()

	if p.video() {
		args = append(args, "-f", p.Backend)
		if p.FrameRate > 0 {
			args = append(args, "-framerate", formatRate(p.FrameRate))
		}
		if p.Width > 0 && p.Height > 0 {
			args = append(args, "-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height))
		}
		args = append(args, "-i", p.Input)
		args = append(args, "-pix_fmt", p.PixelFormat, "-f", "rawvideo", "pipe:1")
		return args
	}

	args = append(args, "-f", p.Backend, "-sample_fmt", "s16")
	if p.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(p.SampleRate))
	}
	if p.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(p.Channels))
	}
	args = append(args, "-i", p.Input, "-f", "s16le", "pipe:1")
	return args
}

// MuxParams describes the encode side: raw video on stdin, optional
// raw audio on fd 3, compressed output on disk.
type MuxParams struct {
	Width       int
	Height      int
	FrameRate   float64
	PixelFormat string

	HasAudio   bool
	SampleRate int
	Channels   int

	// VideoOffsetArgs and AudioOffsetArgs are inserted before the
	// corresponding input to shift its timestamps, typically
	// ["-itsoffset", "0.120"] from start-skew measurement.
	VideoOffsetArgs []string
	AudioOffsetArgs []string

	Encoder string // defaults to libx264

	// SegmentSeconds > 0 selects the segment muxer with a playlist next
	// to the segments; 0 writes a single file.
	SegmentSeconds int
	OutputPath     string
	SegmentList    string
}

// Args renders the mux invocation.
func (p MuxParams) Args() []string {
	args := BaseArgs()

	args = append(args, "-use_wallclock_as_timestamps", "1")
	args = append(args, p.VideoOffsetArgs...)
	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", p.PixelFormat,
		"-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-framerate", formatRate(p.FrameRate),
		"-i", "pipe:0",
	)

	if p.HasAudio {
		args = append(args, "-thread_queue_size", "1024")
		args = append(args, p.AudioOffsetArgs...)
		args = append(args,
			"-f", "s16le",
			"-ar", strconv.Itoa(p.SampleRate),
			"-ac", strconv.Itoa(p.Channels),
			"-i", "pipe:3",
			"-map", "0:v", "-map", "1:a",
		)
	}

	encoder := p.Encoder
	if encoder == "" {
		encoder = "libx264"
	}
	args = append(args, "-c:v", encoder, "-pix_fmt", "yuv420p")
	if !isHardwareEncoder(encoder) {
		args = append(args, "-preset", "ultrafast", "-tune", "zerolatency")
	}
	args = append(args, "-g", "60")

	if p.HasAudio {
		args = append(args, "-c:a", "aac", "-b:a", "192k")
	}

	if p.SegmentSeconds > 0 {
		args = append(args,
			"-f", "segment",
			"-segment_time", strconv.Itoa(p.SegmentSeconds),
			"-reset_timestamps", "1",
		)
		if p.SegmentList != "" {
			args = append(args, "-segment_list", p.SegmentList)
		}
		args = append(args, p.OutputPath)
		return args
	}

	args = append(args, "-movflags", "+faststart", "-y", p.OutputPath)
	return args
}

func isHardwareEncoder(name string) bool {
	switch name {
	case "h264_vaapi", "hevc_vaapi", "h264_nvenc", "hevc_nvenc", "h264_videotoolbox", "hevc_videotoolbox":
		return true
	}
	return false
}

// formatRate renders a frame rate without a trailing fraction for whole
// numbers, matching what grab devices advertise.
func formatRate(rate float64) string {
	if rate == float64(int(rate)) {
		return strconv.Itoa(int(rate))
	}
	return strconv.FormatFloat(rate, 'f', 3, 64)
}
