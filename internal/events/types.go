package events

import "github.com/smazurov/recordnode/internal/devices"

// Event type constants for kelindar/event.
const (
	TypeRecordingStarted uint32 = iota + 1
	TypeRecordingStopped
	TypeRecordingFailed
	TypeDeviceDiscovery
	TypeCameraAttached
	TypeCameraDetached
	TypeDropRateAlert
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// RecordingStartedEvent is published when a capture session begins
// delivering frames to the encoder.
type RecordingStartedEvent struct {
	SessionID string `json:"session_id" example:"0b8f3c1e" doc:"Recording session identifier"`
	Output    string `json:"output" example:"/var/lib/recordnode/rec.mp4" doc:"Output path"`
	HasAudio  bool   `json:"has_audio" doc:"Whether an audio stream is being recorded"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecordingStartedEvent.
func (e RecordingStartedEvent) Type() uint32 { return TypeRecordingStarted }

// RecordingStoppedEvent is published after a clean shutdown, once the
// encoder has flushed and exited.
type RecordingStoppedEvent struct {
	SessionID string  `json:"session_id" doc:"Recording session identifier"`
	Output    string  `json:"output" doc:"Output path"`
	Duration  float64 `json:"duration_seconds" doc:"Recorded duration in seconds"`
	Timestamp string  `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecordingStoppedEvent.
func (e RecordingStoppedEvent) Type() uint32 { return TypeRecordingStopped }

// RecordingFailedEvent is published when a session dies on a fatal
// pipeline error.
type RecordingFailedEvent struct {
	SessionID string `json:"session_id" doc:"Recording session identifier"`
	Error     string `json:"error" example:"capture can't keep up" doc:"Failure description"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecordingFailedEvent.
func (e RecordingFailedEvent) Type() uint32 { return TypeRecordingFailed }

// DeviceDiscoveryEvent represents device hotplug events.
type DeviceDiscoveryEvent struct {
	devices.DeviceInfo
	Action    string `json:"action" example:"added" doc:"Action type: added or removed"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceDiscoveryEvent.
func (e DeviceDiscoveryEvent) Type() uint32 { return TypeDeviceDiscovery }

// CameraAttachedEvent is published when the camera feed connects to a
// device.
type CameraAttachedEvent struct {
	DeviceID  string `json:"device_id" example:"video0" doc:"Camera device identifier"`
	Name      string `json:"name" doc:"Human-readable camera name"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraAttachedEvent.
func (e CameraAttachedEvent) Type() uint32 { return TypeCameraAttached }

// CameraDetachedEvent is published when the camera feed loses or
// releases its device.
type CameraDetachedEvent struct {
	DeviceID  string `json:"device_id" doc:"Camera device identifier"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraDetachedEvent.
func (e CameraDetachedEvent) Type() uint32 { return TypeCameraDetached }

// DropRateAlertEvent is published when a stage's windowed drop rate
// crosses the warning line, before it becomes fatal.
type DropRateAlertEvent struct {
	SessionID string  `json:"session_id" doc:"Recording session identifier"`
	Source    string  `json:"source" example:"screen" doc:"Stage reporting the drops"`
	Rate      float64 `json:"rate" example:"0.31" doc:"Windowed drop rate"`
	Dropped   int     `json:"dropped" doc:"Dropped frames in the window"`
	Total     int     `json:"total" doc:"Total frames in the window"`
	Timestamp string  `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for DropRateAlertEvent.
func (e DropRateAlertEvent) Type() uint32 { return TypeDropRateAlert }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"pipeline" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
