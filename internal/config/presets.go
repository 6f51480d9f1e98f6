package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/recordnode/internal/media"
	"github.com/smazurov/recordnode/internal/pipeline"
)

// Preset is a saved recording setup: which devices to capture and how
// to encode them. Presets are addressed by ID from the API and CLI.
type Preset struct {
	ID      string `toml:"id" json:"id"`
	Name    string `toml:"name" json:"name"`
	Enabled bool   `toml:"enabled" json:"enabled"`

	// Capture inputs. Display and Camera are mutually exclusive video
	// sources; Mic or SystemAudio adds an audio stream.
	Display     string `toml:"display,omitempty" json:"display,omitempty"`
	Camera      string `toml:"camera,omitempty" json:"camera,omitempty"`
	Mic         string `toml:"mic,omitempty" json:"mic,omitempty"`
	SystemAudio bool   `toml:"system_audio,omitempty" json:"system_audio,omitempty"`

	// Capture format. Resolution is "WIDTHxHEIGHT"; empty lets the
	// source pick its best mode.
	Resolution string  `toml:"resolution,omitempty" json:"resolution,omitempty"`
	FPS        float64 `toml:"fps,omitempty" json:"fps,omitempty"`
	SampleRate int     `toml:"sample_rate,omitempty" json:"sample_rate,omitempty"`
	Channels   int     `toml:"channels,omitempty" json:"channels,omitempty"`

	// Encoding.
	Encoder        string `toml:"encoder,omitempty" json:"encoder,omitempty"`
	SegmentSeconds int    `toml:"segment_seconds,omitempty" json:"segment_seconds,omitempty"`
	OutputDir      string `toml:"output_dir,omitempty" json:"output_dir,omitempty"`

	CreatedAt time.Time `toml:"created_at" json:"created_at"`
	UpdatedAt time.Time `toml:"updated_at" json:"updated_at"`
}

// PresetsFile is the on-disk layout of the presets configuration.
type PresetsFile struct {
	Version int               `toml:"version" json:"version"`
	Presets map[string]Preset `toml:"presets" json:"presets"`
}

// PresetManager owns the presets file: load, save, and CRUD. Safe for
// concurrent use by API handlers and the config watcher.
type PresetManager struct {
	mu         sync.RWMutex
	configPath string
	config     *PresetsFile
}

// NewPresetManager creates a manager for the given path, defaulting to
// presets.toml in the working directory.
func NewPresetManager(configPath string) *PresetManager {
	if configPath == "" {
		configPath = "presets.toml"
	}
	return &PresetManager{
		configPath: configPath,
		config: &PresetsFile{
			Version: 1,
			Presets: make(map[string]Preset),
		},
	}
}

// Load reads the presets file. A missing file is an empty config, not
// an error.
func (pm *PresetManager) Load() error {
	if _, err := os.Stat(pm.configPath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(pm.configPath)
	if err != nil {
		return fmt.Errorf("failed to read presets config: %w", err)
	}

	loaded := &PresetsFile{}
	if err := toml.Unmarshal(data, loaded); err != nil {
		return fmt.Errorf("failed to parse presets config: %w", err)
	}
	if loaded.Presets == nil {
		loaded.Presets = make(map[string]Preset)
	}
	if loaded.Version == 0 {
		loaded.Version = 1
	}

	pm.mu.Lock()
	pm.config = loaded
	pm.mu.Unlock()
	return nil
}

// Save writes the presets file, creating its directory if needed.
func (pm *PresetManager) Save() error {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.saveLocked()
}

func (pm *PresetManager) saveLocked() error {
	dir := filepath.Dir(pm.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(pm.config)
	if err != nil {
		return fmt.Errorf("failed to marshal presets config: %w", err)
	}
	if err := os.WriteFile(pm.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write presets config: %w", err)
	}
	return nil
}

// AddPreset validates and stores a new preset.
func (pm *PresetManager) AddPreset(preset Preset) error {
	if preset.ID == "" {
		return fmt.Errorf("preset ID cannot be empty")
	}
	if preset.Name == "" {
		preset.Name = preset.ID
	}
	if preset.Display == "" && preset.Camera == "" {
		return fmt.Errorf("preset needs a display or camera input")
	}

	now := time.Now()
	if preset.CreatedAt.IsZero() {
		preset.CreatedAt = now
	}
	preset.UpdatedAt = now
	preset.Enabled = true

	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.config.Presets[preset.ID] = preset
	return pm.saveLocked()
}

// UpdatePreset replaces an existing preset, preserving identity and
// creation time.
func (pm *PresetManager) UpdatePreset(id string, updates Preset) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	existing, exists := pm.config.Presets[id]
	if !exists {
		return fmt.Errorf("preset %s not found", id)
	}

	updates.ID = existing.ID
	updates.CreatedAt = existing.CreatedAt
	updates.UpdatedAt = time.Now()
	if updates.Name == "" {
		updates.Name = existing.Name
	}

	pm.config.Presets[id] = updates
	return pm.saveLocked()
}

// RemovePreset deletes a preset.
func (pm *PresetManager) RemovePreset(id string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.config.Presets[id]; !exists {
		return fmt.Errorf("preset %s not found", id)
	}
	delete(pm.config.Presets, id)
	return pm.saveLocked()
}

// GetPreset retrieves a preset by ID.
func (pm *PresetManager) GetPreset(id string) (Preset, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	preset, exists := pm.config.Presets[id]
	return preset, exists
}

// Replace swaps in an externally loaded preset set. Used by the config
// watcher when the file changes on disk; does not write back.
func (pm *PresetManager) Replace(presets map[string]Preset) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if presets == nil {
		presets = make(map[string]Preset)
	}
	pm.config.Presets = presets
}

// GetPresets returns a copy of all presets.
func (pm *PresetManager) GetPresets() map[string]Preset {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	out := make(map[string]Preset, len(pm.config.Presets))
	for id, p := range pm.config.Presets {
		out[id] = p
	}
	return out
}

// ToPipelineConfig turns a preset into a runnable session config. The
// output lands under the preset's directory with a timestamped name.
func (p Preset) ToPipelineConfig() (pipeline.Config, error) {
	width, height, err := parseResolution(p.Resolution)
	if err != nil {
		return pipeline.Config{}, err
	}

	dir := p.OutputDir
	if dir == "" {
		dir = "."
	}
	name := fmt.Sprintf("%s-%s.mp4", p.ID, time.Now().Format("20060102-150405"))

	cfg := pipeline.Config{
		Capture: media.CaptureConfig{
			DisplayID:   p.Display,
			CameraID:    p.Camera,
			MicID:       p.Mic,
			SystemAudio: p.SystemAudio,
			Width:       width,
			Height:      height,
			FrameRate:   p.FPS,
			Pixel:       media.PixelFormatNV12,
			SampleRate:  p.SampleRate,
			Channels:    p.Channels,
		},
		OutputPath:     filepath.Join(dir, name),
		SegmentSeconds: p.SegmentSeconds,
		Encoder:        p.Encoder,
	}
	if cfg.Capture.FrameRate == 0 {
		cfg.Capture.FrameRate = 30
	}
	if cfg.Capture.HasAudio() {
		if cfg.Capture.SampleRate == 0 {
			cfg.Capture.SampleRate = 48000
		}
		if cfg.Capture.Channels == 0 {
			cfg.Capture.Channels = 2
		}
	}
	return cfg, nil
}

// parseResolution splits "1920x1080" into its dimensions. Empty input
// yields zeros, letting the capture source choose.
func parseResolution(res string) (width, height int, err error) {
	if res == "" {
		return 0, 0, nil
	}
	parts := strings.SplitN(strings.ToLower(res), "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid resolution %q, want WIDTHxHEIGHT", res)
	}
	width, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid resolution width %q", parts[0])
	}
	height, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid resolution height %q", parts[1])
	}
	return width, height, nil
}
