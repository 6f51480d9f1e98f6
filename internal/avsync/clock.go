// Package avsync aligns independently started audio and video streams
// by measuring the gap between their first captured frames.
package avsync

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/recordnode/internal/media"
)

// startPollInterval is how often WaitForStartTimes re-checks the slots.
const startPollInterval = 50 * time.Millisecond

// Target names the stream an offset applies to.
type Target int

const (
	TargetNone Target = iota
	TargetVideo
	TargetAudio
)

func (t Target) String() string {
	switch t {
	case TargetVideo:
		return "video"
	case TargetAudio:
		return "audio"
	default:
		return "none"
	}
}

// Offset is the delay to apply to one stream so both line up. It is
// always assigned to the stream that started EARLIER, delaying it to
// meet the late starter.
type Offset struct {
	Target   Target
	Duration time.Duration
}

// MuxArgs renders the offset as ffmpeg input arguments.
func (o Offset) MuxArgs() []string {
	if o.Target == TargetNone {
		return nil
	}
	return []string{"-itsoffset", fmt.Sprintf("%.3f", o.Duration.Seconds())}
}

// Clock records the wall-clock instant each stream produced its first
// frame. Each slot is single-assignment: capture callbacks race to set
// it and only the first write sticks.
type Clock struct {
	mu         sync.Mutex
	videoStart *time.Time
	audioStart *time.Time
	logger     *slog.Logger
}

func NewClock(logger *slog.Logger) *Clock {
	return &Clock{logger: logger}
}

// MarkVideoStart records the first video frame's arrival. Later calls
// are ignored.
func (c *Clock) MarkVideoStart(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.videoStart == nil {
		c.videoStart = &at
		c.logger.Debug("First video frame observed", "at", at)
	}
}

// MarkAudioStart records the first audio chunk's arrival. Later calls
// are ignored.
func (c *Clock) MarkAudioStart(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.audioStart == nil {
		c.audioStart = &at
		c.logger.Debug("First audio chunk observed", "at", at)
	}
}

func (c *Clock) startTimes() (video, audio time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.videoStart == nil || c.audioStart == nil {
		return time.Time{}, time.Time{}, false
	}
	return *c.videoStart, *c.audioStart, true
}

// WaitForStartTimes polls until both streams have produced a first
// frame or the timeout passes. A stream that never starts is a capture
// failure, so the timeout maps to ErrInitTimeout.
func (c *Clock) WaitForStartTimes(timeout time.Duration) (video, audio time.Time, err error) {
	deadline := time.Now().Add(timeout)
	for {
		if v, a, ok := c.startTimes(); ok {
			return v, a, nil
		}
		if time.Now().After(deadline) {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: streams did not both start within %v",
				media.ErrInitTimeout, timeout)
		}
		time.Sleep(startPollInterval)
	}
}

// ComputeOffset waits for both start times and returns the delay for
// the earlier stream. A zero gap yields TargetNone.
func (c *Clock) ComputeOffset(timeout time.Duration) (Offset, error) {
	video, audio, err := c.WaitForStartTimes(timeout)
	if err != nil {
		return Offset{}, err
	}

	offset := computeOffset(video, audio)
	if offset.Target != TargetNone {
		c.logger.Info("Stream start skew measured",
			"target", offset.Target, "offset", offset.Duration)
	}
	return offset, nil
}

// computeOffset assigns the gap between the start instants to the
// stream that started first. Delaying the early starter makes its
// timestamps line up with the late one.
func computeOffset(video, audio time.Time) Offset {
	switch {
	case audio.After(video):
		return Offset{Target: TargetVideo, Duration: audio.Sub(video)}
	case video.After(audio):
		return Offset{Target: TargetAudio, Duration: video.Sub(audio)}
	default:
		return Offset{}
	}
}
