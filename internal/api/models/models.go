// Package models holds the API's request and response shapes.
package models

import (
	"github.com/smazurov/recordnode/internal/devices"
)

// HealthData represents health check response data
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Health status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Body HealthData
}

// VersionData represents version information
type VersionData struct {
	Version   string `json:"version" example:"1.2.3" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc123" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build date"`
	BuildID   string `json:"build_id" example:"123" doc:"Build ID"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go version used to build"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Target platform"`
}

// VersionResponse represents the version response
type VersionResponse struct {
	Body VersionData
}

// DeviceListData groups detected devices by kind.
type DeviceListData struct {
	Displays    []devices.DeviceInfo `json:"displays" doc:"Available displays"`
	Cameras     []devices.DeviceInfo `json:"cameras" doc:"Available cameras"`
	Microphones []devices.DeviceInfo `json:"microphones" doc:"Available microphones"`
}

// DeviceListResponse represents the device list response
type DeviceListResponse struct {
	Body DeviceListData
}

// SessionData describes one recording session.
type SessionData struct {
	ID              string  `json:"id" example:"0b8f3c1e-9f2a-4f7e-b1c4-2f8f4f1a2b3c" doc:"Session identifier"`
	State           string  `json:"state" example:"running" doc:"Session lifecycle state"`
	Output          string  `json:"output" example:"/var/lib/recordnode/desk-20250127-103000.mp4" doc:"Output path"`
	DurationSeconds float64 `json:"duration_seconds" doc:"Elapsed recording time"`
	Error           string  `json:"error,omitempty" doc:"Fatal error, when the session failed"`
}

// SessionResponse represents a single session response
type SessionResponse struct {
	Body SessionData
}

// SessionListResponse represents the session list response
type SessionListResponse struct {
	Body struct {
		Sessions []SessionData `json:"sessions" doc:"Tracked recording sessions"`
	}
}

// SessionMetricsData is a snapshot of one session's pipeline counters.
type SessionMetricsData struct {
	FramesCaptured  float64 `json:"frames_captured" doc:"Frames delivered by capture sources"`
	FramesConverted float64 `json:"frames_converted" doc:"Frames written to the encoder"`
	FramesDropped   float64 `json:"frames_dropped" doc:"Frames dropped across all stages"`
	DropRate        float64 `json:"drop_rate" doc:"Current windowed drop rate"`
	EncoderFPS      float64 `json:"encoder_fps" doc:"Encoder throughput in frames per second"`
	EncoderSpeed    float64 `json:"encoder_speed" doc:"Encoder speed relative to realtime"`
}

// SessionMetricsResponse represents the session metrics response
type SessionMetricsResponse struct {
	Body SessionMetricsData
}

// MessageData is a generic message payload.
type MessageData struct {
	Message string `json:"message" doc:"Human-readable result"`
}

// MessageResponse is a generic message response.
type MessageResponse struct {
	Body MessageData
}
