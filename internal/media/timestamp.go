package media

import (
	"time"
)

// ClockKind tags which clock a Timestamp was taken from.
type ClockKind int

const (
	// ClockInstant is the process-monotonic wall clock.
	ClockInstant ClockKind = iota
	// ClockDevice is a hardware presentation clock (driver ticks).
	ClockDevice
)

// Timestamp is a capture time taken from one of two independent clocks.
// Values are only comparable within the same clock; comparing across
// clocks requires the offset computed by the synchronization clock.
type Timestamp struct {
	kind ClockKind

	instant time.Time // ClockInstant

	ticks     int64 // ClockDevice: raw counter value
	frequency int64 // ClockDevice: ticks per second
}

// NewInstant returns a Timestamp on the process-monotonic clock.
func NewInstant(t time.Time) Timestamp {
	return Timestamp{kind: ClockInstant, instant: t}
}

// Now returns the current process-monotonic Timestamp.
func Now() Timestamp {
	return NewInstant(time.Now())
}

// NewDeviceClock returns a Timestamp on a hardware presentation clock.
func NewDeviceClock(ticks, frequency int64) Timestamp {
	return Timestamp{kind: ClockDevice, ticks: ticks, frequency: frequency}
}

// Kind reports which clock this timestamp belongs to.
func (t Timestamp) Kind() ClockKind { return t.kind }

// Timestamps is the per-recording reference point for each clock.
// Every source resolves its timestamps against the same reference so
// durations are comparable within a clock domain.
type Timestamps struct {
	Instant     time.Time
	DeviceTicks int64
	DeviceFreq  int64
}

// NewTimestamps captures the reference instant for a new recording.
func NewTimestamps() Timestamps {
	return Timestamps{Instant: time.Now()}
}

// DurationSince returns the elapsed time between the reference and this
// timestamp. ok is false when the timestamp's clock has no reference
// (device clock with zero frequency) or the value precedes the reference.
func (t Timestamp) DurationSince(ref Timestamps) (time.Duration, bool) {
	switch t.kind {
	case ClockInstant:
		d := t.instant.Sub(ref.Instant)
		if d < 0 {
			return 0, false
		}
		return d, true
	case ClockDevice:
		freq := t.frequency
		if freq == 0 {
			freq = ref.DeviceFreq
		}
		if freq == 0 {
			return 0, false
		}
		delta := t.ticks - ref.DeviceTicks
		if delta < 0 {
			return 0, false
		}
		return time.Duration(float64(delta) / float64(freq) * float64(time.Second)), true
	default:
		return 0, false
	}
}

// SecondsSince is DurationSince as float seconds, negative when the
// timestamp precedes the reference.
func (t Timestamp) SecondsSince(ref Timestamps) float64 {
	switch t.kind {
	case ClockInstant:
		return t.instant.Sub(ref.Instant).Seconds()
	case ClockDevice:
		freq := t.frequency
		if freq == 0 {
			freq = ref.DeviceFreq
		}
		if freq == 0 {
			return 0
		}
		return float64(t.ticks-ref.DeviceTicks) / float64(freq)
	default:
		return 0
	}
}
