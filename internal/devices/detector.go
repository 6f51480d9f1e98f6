// Package devices enumerates the capture hardware a recording can use:
// displays, cameras, and microphones, with hotplug notification on
// platforms that support it.
package devices

import "context"

// Kind classifies a capture device.
type Kind string

const (
	KindDisplay    Kind = "display"
	KindCamera     Kind = "camera"
	KindMicrophone Kind = "microphone"
)

// DeviceInfo describes one attachable device.
type DeviceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
	Kind Kind   `json:"kind"`
}

// Event is a hotplug notification.
type Event struct {
	Action string // "added" or "removed"
	Device DeviceInfo
}

// Detector provides platform-specific device discovery.
type Detector interface {
	// List returns all currently available devices.
	List() ([]DeviceInfo, error)
	// Watch delivers hotplug events to fn until ctx is cancelled. The
	// initial device set is replayed as "added" events.
	Watch(ctx context.Context, fn func(Event)) error
}

// NewDetector returns the detector for the running platform.
func NewDetector() Detector {
	return newDetector()
}
