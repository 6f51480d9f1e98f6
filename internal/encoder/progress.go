package encoder

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/smazurov/recordnode/internal/metrics"
)

// ffmpeg emits carriage-return separated status lines on stderr:
//
//	frame=  120 fps= 30 q=23.0 size= 512KiB time=00:00:04.00 bitrate=1048.5kbits/s speed=1.01x
var (
	progressFrameRe = regexp.MustCompile(`frame=\s*(\d+)`)
	progressFPSRe   = regexp.MustCompile(`fps=\s*([\d.]+)`)
	progressSpeedRe = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

// progressTracker turns encoder status lines into gauges.
type progressTracker struct {
	sessionID string
	lastFrame uint64
}

func newProgressTracker(sessionID string) *progressTracker {
	return &progressTracker{sessionID: sessionID}
}

// Observe inspects a stderr line. Progress lines are consumed and
// reported; anything else returns false for normal log routing.
func (t *progressTracker) Observe(line string) bool {
	if !strings.Contains(line, "frame=") || !strings.Contains(line, "fps=") {
		return false
	}

	if m := progressFrameRe.FindStringSubmatch(line); m != nil {
		if frame, err := strconv.ParseUint(m[1], 10, 64); err == nil {
			t.lastFrame = frame
		}
	}
	if m := progressFPSRe.FindStringSubmatch(line); m != nil {
		if fps, err := strconv.ParseFloat(m[1], 64); err == nil {
			metrics.SetEncoderFPS(t.sessionID, fps)
		}
	}
	if m := progressSpeedRe.FindStringSubmatch(line); m != nil {
		if speed, err := strconv.ParseFloat(m[1], 64); err == nil {
			metrics.SetEncoderSpeed(t.sessionID, speed)
		}
	}
	return true
}

// Frames returns the last frame count the encoder reported.
func (t *progressTracker) Frames() uint64 {
	return t.lastFrame
}
