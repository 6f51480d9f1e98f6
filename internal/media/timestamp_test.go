package media

import (
	"testing"
	"time"
)

func TestInstantDurationSince(t *testing.T) {
	ref := NewTimestamps()
	ts := NewInstant(ref.Instant.Add(250 * time.Millisecond))

	d, ok := ts.DurationSince(ref)
	if !ok {
		t.Fatal("expected duration to resolve")
	}
	if d != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", d)
	}
}

func TestDeviceClockDurationSince(t *testing.T) {
	ref := Timestamps{DeviceTicks: 1000, DeviceFreq: 10000}
	ts := NewDeviceClock(6000, 10000)

	d, ok := ts.DurationSince(ref)
	if !ok {
		t.Fatal("expected duration to resolve")
	}
	if d != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", d)
	}
}

func TestDeviceClockWithoutFrequency(t *testing.T) {
	ref := Timestamps{}
	ts := NewDeviceClock(6000, 0)

	if _, ok := ts.DurationSince(ref); ok {
		t.Error("expected no duration without a clock frequency")
	}
}

func TestSecondsSinceNegative(t *testing.T) {
	ref := NewTimestamps()
	ts := NewInstant(ref.Instant.Add(-100 * time.Millisecond))

	if got := ts.SecondsSince(ref); got >= 0 {
		t.Errorf("expected negative seconds for earlier timestamp, got %f", got)
	}
}

func TestSamplesS16Checked(t *testing.T) {
	chunk := &AudioChunk{Data: []byte{0x01, 0x00, 0xFF, 0xFF}, Format: AudioFormatS16, Channels: 1, SampleRate: 48000}
	samples, ok := chunk.SamplesS16()
	if !ok {
		t.Fatal("expected valid S16 view")
	}
	if samples[0] != 1 || samples[1] != -1 {
		t.Errorf("unexpected samples: %v", samples)
	}

	odd := &AudioChunk{Data: []byte{0x01}, Format: AudioFormatS16}
	if _, ok := odd.SamplesS16(); ok {
		t.Error("expected odd-length buffer to be rejected")
	}
}
