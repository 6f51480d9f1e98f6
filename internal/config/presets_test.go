package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func testPreset() Preset {
	return Preset{
		ID:             "desk",
		Name:           "Desk recording",
		Display:        ":0",
		Mic:            "default",
		Resolution:     "1920x1080",
		FPS:            30,
		SegmentSeconds: 60,
		OutputDir:      "/tmp/recordings",
	}
}

func TestPresetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.toml")

	pm := NewPresetManager(path)
	if err := pm.AddPreset(testPreset()); err != nil {
		t.Fatalf("AddPreset failed: %v", err)
	}

	reloaded := NewPresetManager(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	preset, ok := reloaded.GetPreset("desk")
	if !ok {
		t.Fatal("preset missing after reload")
	}
	if preset.Display != ":0" || preset.Resolution != "1920x1080" || !preset.Enabled {
		t.Errorf("unexpected preset after reload: %+v", preset)
	}
}

func TestPresetRequiresVideoInput(t *testing.T) {
	pm := NewPresetManager(filepath.Join(t.TempDir(), "presets.toml"))

	preset := testPreset()
	preset.Display = ""
	preset.Camera = ""
	if err := pm.AddPreset(preset); err == nil {
		t.Error("expected error for preset without video input")
	}
}

func TestUpdatePresetPreservesIdentity(t *testing.T) {
	pm := NewPresetManager(filepath.Join(t.TempDir(), "presets.toml"))
	if err := pm.AddPreset(testPreset()); err != nil {
		t.Fatalf("AddPreset failed: %v", err)
	}
	original, _ := pm.GetPreset("desk")

	updates := testPreset()
	updates.ID = "should-be-ignored"
	updates.FPS = 60
	if err := pm.UpdatePreset("desk", updates); err != nil {
		t.Fatalf("UpdatePreset failed: %v", err)
	}

	updated, ok := pm.GetPreset("desk")
	if !ok {
		t.Fatal("preset missing after update")
	}
	if updated.ID != "desk" || !updated.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("update must preserve ID and creation time: %+v", updated)
	}
	if updated.FPS != 60 {
		t.Errorf("expected FPS 60, got %f", updated.FPS)
	}
}

func TestRemoveMissingPreset(t *testing.T) {
	pm := NewPresetManager(filepath.Join(t.TempDir(), "presets.toml"))
	if err := pm.RemovePreset("ghost"); err == nil {
		t.Error("expected error removing unknown preset")
	}
}

func TestToPipelineConfig(t *testing.T) {
	cfg, err := testPreset().ToPipelineConfig()
	if err != nil {
		t.Fatalf("ToPipelineConfig failed: %v", err)
	}

	if cfg.Capture.Width != 1920 || cfg.Capture.Height != 1080 {
		t.Errorf("unexpected dimensions: %dx%d", cfg.Capture.Width, cfg.Capture.Height)
	}
	if !cfg.Capture.HasAudio() || cfg.Capture.SampleRate != 48000 || cfg.Capture.Channels != 2 {
		t.Errorf("expected audio defaults, got %+v", cfg.Capture)
	}
	if !strings.HasPrefix(cfg.OutputPath, "/tmp/recordings/desk-") {
		t.Errorf("unexpected output path %q", cfg.OutputPath)
	}
	if cfg.SegmentSeconds != 60 {
		t.Errorf("expected segment length 60, got %d", cfg.SegmentSeconds)
	}
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in            string
		width, height int
		wantErr       bool
	}{
		{"1920x1080", 1920, 1080, false},
		{"1280X720", 1280, 720, false},
		{"", 0, 0, false},
		{"1920", 0, 0, true},
		{"WxH", 0, 0, true},
	}

	for _, tt := range tests {
		w, h, err := parseResolution(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseResolution(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if w != tt.width || h != tt.height {
			t.Errorf("parseResolution(%q) = %dx%d, want %dx%d", tt.in, w, h, tt.width, tt.height)
		}
	}
}
