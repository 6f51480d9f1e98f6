// Package capture provides the sources that feed the recording
// pipeline: screen grabs, cameras, and microphones, plus a synthetic
// source for tests and diagnostics.
package capture

import (
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"github.com/smazurov/recordnode/internal/media"
	"github.com/smazurov/recordnode/internal/router"
)

// Queue capacities between a source and the pipeline. Video buffers
// roughly two seconds at 30fps; audio stays shallow because chunks are
// large and latency matters more than completeness.
const (
	VideoQueueCapacity = 60
	AudioQueueCapacity = 4
)

// Outputs are the bounded edges a source pushes into. Callbacks must
// use TrySend so a stalled pipeline can never block an OS thread.
type Outputs struct {
	Video *router.Router[*media.VideoFrame]
	Audio *router.Router[*media.AudioChunk]
}

// NewOutputs builds the standard pipeline edges.
func NewOutputs() Outputs {
	return Outputs{
		Video: router.New[*media.VideoFrame](VideoQueueCapacity, router.DropNewest),
		Audio: router.New[*media.AudioChunk](AudioQueueCapacity, router.DropNewest),
	}
}

// Close closes both edges.
func (o Outputs) Close() {
	o.Video.Close()
	o.Audio.Close()
}

// Source produces media into its outputs between Start and Stop.
type Source interface {
	// Name identifies the backend for logging and metrics.
	Name() string
	// Formats lists the modes the source can deliver, best first.
	Formats() ([]media.CaptureFormat, error)
	// Start begins delivery. ref anchors every emitted timestamp so
	// streams from different sources stay comparable.
	Start(ref media.Timestamps, out Outputs) error
	// Stop halts delivery and releases the device. Idempotent.
	Stop() error
}

// Factory builds a source from a capture config.
type Factory func(cfg media.CaptureConfig, logger *slog.Logger) (Source, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register installs a source backend under a kind name. Later
// registrations replace earlier ones.
func Register(kind string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = factory
}

// New builds a source of the named kind.
func New(kind string, cfg media.CaptureConfig, logger *slog.Logger) (Source, error) {
	registryMu.RLock()
	factory, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no capture backend %q", media.ErrDeviceNotFound, kind)
	}
	return factory(cfg, logger)
}

// Kinds lists the registered backend names, sorted.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// DefaultScreenKind picks the platform's screen grabber, falling back
// to the synthetic pattern where no grabber exists.
func DefaultScreenKind() string {
	switch runtime.GOOS {
	case "linux", "darwin":
		return KindScreen
	default:
		return KindSynthetic
	}
}
