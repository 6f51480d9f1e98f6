package media

import "testing"

func TestSelectFormatPrefersAspectThenResolution(t *testing.T) {
	formats := []CaptureFormat{
		{Width: 640, Height: 480, FrameRate: 30},
		{Width: 1920, Height: 1080, FrameRate: 30},
		{Width: 1280, Height: 720, FrameRate: 60},
	}

	got, err := SelectFormat(formats)
	if err != nil {
		t.Fatalf("SelectFormat failed: %v", err)
	}

	if got.Width != 1920 || got.Height != 1080 || got.FrameRate != 30 {
		t.Errorf("expected 1920x1080@30, got %s", got)
	}
}

func TestSelectFormatFrameRateTieBreak(t *testing.T) {
	formats := []CaptureFormat{
		{Width: 1280, Height: 720, FrameRate: 30},
		{Width: 1280, Height: 720, FrameRate: 60},
	}

	got, err := SelectFormat(formats)
	if err != nil {
		t.Fatalf("SelectFormat failed: %v", err)
	}

	if got.FrameRate != 60 {
		t.Errorf("expected 60fps to win the tie, got %s", got)
	}
}

func TestSelectFormatFiltersOversizedAndSlow(t *testing.T) {
	formats := []CaptureFormat{
		{Width: 3840, Height: 2160, FrameRate: 60},
		{Width: 1920, Height: 1080, FrameRate: 15},
		{Width: 1280, Height: 720, FrameRate: 30},
	}

	got, err := SelectFormat(formats)
	if err != nil {
		t.Fatalf("SelectFormat failed: %v", err)
	}

	if got.Width != 1280 {
		t.Errorf("expected only qualifying 720p format, got %s", got)
	}
}

func TestSelectFormatFallsBackWhenFilterEmpties(t *testing.T) {
	formats := []CaptureFormat{
		{Width: 3840, Height: 2160, FrameRate: 24},
		{Width: 2560, Height: 1440, FrameRate: 24},
	}

	got, err := SelectFormat(formats)
	if err != nil {
		t.Fatalf("SelectFormat failed: %v", err)
	}

	// Same aspect distance, larger resolution wins.
	if got.Width != 3840 {
		t.Errorf("expected fallback ranking over full list, got %s", got)
	}
}

func TestSelectFormatEmpty(t *testing.T) {
	if _, err := SelectFormat(nil); err == nil {
		t.Error("expected error for empty format list")
	}
}
