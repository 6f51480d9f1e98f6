package capture

import (
	"errors"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/smazurov/recordnode/internal/media"
)

func TestRegistryRoundTrip(t *testing.T) {
	kinds := Kinds()
	for _, want := range []string{KindSynthetic, KindScreen, KindCamera, KindMicrophone} {
		if !slices.Contains(kinds, want) {
			t.Errorf("registry missing backend %q, have %v", want, kinds)
		}
	}

	src, err := New(KindSynthetic, media.CaptureConfig{Width: 64, Height: 36, FrameRate: 30}, slog.Default())
	if err != nil {
		t.Fatalf("New synthetic failed: %v", err)
	}
	if src.Name() != KindSynthetic {
		t.Errorf("unexpected source name %q", src.Name())
	}
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New("holograph", media.CaptureConfig{}, slog.Default())
	if !errors.Is(err, media.ErrDeviceNotFound) {
		t.Errorf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestSyntheticAudioChunksAreSequenced(t *testing.T) {
	src := newSyntheticSource(media.CaptureConfig{
		Width: 64, Height: 36, FrameRate: 30,
		SystemAudio: true, SampleRate: 8000, Channels: 1,
	}, slog.Default())

	out := NewOutputs()
	defer out.Close()
	if err := src.Start(media.NewTimestamps(), out); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer src.Stop()

	// Audio carries the same per-source sequence numbers video does, so
	// drop accounting can correlate chunks.
	for want := uint64(0); want < 3; want++ {
		chunk, ok := out.Audio.RecvTimeout(time.Second)
		if !ok {
			t.Fatalf("no audio chunk %d", want)
		}
		if chunk.Seq != want {
			t.Errorf("chunk sequence = %d, want %d", chunk.Seq, want)
		}
	}
}

func TestDefaultScreenKindIsRegistered(t *testing.T) {
	if !slices.Contains(Kinds(), DefaultScreenKind()) {
		t.Errorf("default screen kind %q not registered", DefaultScreenKind())
	}
}
