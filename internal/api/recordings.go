package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/recordnode/internal/api/models"
	"github.com/smazurov/recordnode/internal/camera"
	"github.com/smazurov/recordnode/internal/config"
	"github.com/smazurov/recordnode/internal/media"
	"github.com/smazurov/recordnode/internal/metrics"
	"github.com/smazurov/recordnode/internal/pipeline"
)

// StartRecordingBody selects what to record. Preset and the inline
// fields are alternatives; Preset wins when both are present.
type StartRecordingBody struct {
	Preset string `json:"preset,omitempty" example:"desk" doc:"Preset ID to record with"`

	Display     string `json:"display,omitempty" example:":0" doc:"Display to capture"`
	Camera      string `json:"camera,omitempty" example:"video0" doc:"Camera to capture"`
	Mic         string `json:"mic,omitempty" example:"default" doc:"Microphone to capture"`
	SystemAudio bool   `json:"system_audio,omitempty" doc:"Capture system audio"`

	Resolution     string  `json:"resolution,omitempty" example:"1920x1080" doc:"Capture resolution"`
	FPS            float64 `json:"fps,omitempty" example:"30" doc:"Capture frame rate"`
	Output         string  `json:"output,omitempty" doc:"Output file path"`
	SegmentSeconds int     `json:"segment_seconds,omitempty" doc:"Split output into segments of this length"`
}

// StartRecordingInput wraps the request body.
type StartRecordingInput struct {
	Body StartRecordingBody
}

// SessionIDInput is the session path parameter.
type SessionIDInput struct {
	SessionID string `path:"session_id" doc:"Recording session identifier"`
}

// registerRecordingRoutes sets up the recording session endpoints.
func (s *Server) registerRecordingRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "start-recording",
		Method:      http.MethodPost,
		Path:        "/api/recordings",
		Summary:     "Start recording",
		Description: "Start a recording session from a preset or inline capture settings",
		Tags:        []string{"recordings"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 409, 500},
	}, func(ctx context.Context, input *StartRecordingInput) (*models.SessionResponse, error) {
		cfg, err := s.sessionConfig(input.Body)
		if err != nil {
			return nil, err
		}

		p, err := s.sessions.StartSession(cfg)
		if err != nil {
			if errors.Is(err, camera.ErrFeedLocked) {
				return nil, huma.Error409Conflict("Camera is locked by another recording", err)
			}
			if errors.Is(err, media.ErrDeviceNotFound) {
				return nil, huma.Error400BadRequest("Invalid capture configuration", err)
			}
			return nil, huma.Error500InternalServerError("Failed to start recording", err)
		}

		return &models.SessionResponse{Body: sessionData(p)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-recordings",
		Method:      http.MethodGet,
		Path:        "/api/recordings",
		Summary:     "List recordings",
		Description: "List tracked recording sessions",
		Tags:        []string{"recordings"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*models.SessionListResponse, error) {
		resp := &models.SessionListResponse{}
		resp.Body.Sessions = []models.SessionData{}
		for _, p := range s.sessions.List() {
			resp.Body.Sessions = append(resp.Body.Sessions, sessionData(p))
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-recording",
		Method:      http.MethodGet,
		Path:        "/api/recordings/{session_id}",
		Summary:     "Recording status",
		Description: "Get the state of one recording session",
		Tags:        []string{"recordings"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(ctx context.Context, input *SessionIDInput) (*models.SessionResponse, error) {
		p, ok := s.sessions.Get(input.SessionID)
		if !ok {
			return nil, huma.Error404NotFound("Session not found")
		}
		return &models.SessionResponse{Body: sessionData(p)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-recording-metrics",
		Method:      http.MethodGet,
		Path:        "/api/recordings/{session_id}/metrics",
		Summary:     "Recording metrics",
		Description: "Pipeline counters for one recording session",
		Tags:        []string{"recordings"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(ctx context.Context, input *SessionIDInput) (*models.SessionMetricsResponse, error) {
		m, ok := metrics.GetSessionMetrics(input.SessionID)
		if !ok {
			return nil, huma.Error404NotFound("No metrics for session")
		}
		return &models.SessionMetricsResponse{
			Body: models.SessionMetricsData{
				FramesCaptured:  m.FramesCaptured,
				FramesConverted: m.FramesConverted,
				FramesDropped:   m.FramesDropped,
				DropRate:        m.DropRate,
				EncoderFPS:      m.EncoderFPS,
				EncoderSpeed:    m.EncoderSpeed,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-recording",
		Method:      http.MethodDelete,
		Path:        "/api/recordings/{session_id}",
		Summary:     "Stop recording",
		Description: "Stop a recording session and flush the output",
		Tags:        []string{"recordings"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 500},
	}, func(ctx context.Context, input *SessionIDInput) (*models.MessageResponse, error) {
		if err := s.sessions.StopSession(input.SessionID); err != nil {
			if errors.Is(err, media.ErrDeviceNotFound) {
				return nil, huma.Error404NotFound("Session not found")
			}
			return nil, huma.Error500InternalServerError("Recording ended with an error", err)
		}
		return &models.MessageResponse{
			Body: models.MessageData{Message: "Recording stopped"},
		}, nil
	})
}

// sessionConfig resolves the request body into a pipeline config.
func (s *Server) sessionConfig(body StartRecordingBody) (pipeline.Config, error) {
	if body.Preset != "" {
		preset, ok := s.presets.GetPreset(body.Preset)
		if !ok {
			return pipeline.Config{}, huma.Error404NotFound("Preset not found")
		}
		cfg, err := preset.ToPipelineConfig()
		if err != nil {
			return pipeline.Config{}, huma.Error400BadRequest("Invalid preset", err)
		}
		return cfg, nil
	}

	inline := config.Preset{
		ID:             "adhoc",
		Display:        body.Display,
		Camera:         body.Camera,
		Mic:            body.Mic,
		SystemAudio:    body.SystemAudio,
		Resolution:     body.Resolution,
		FPS:            body.FPS,
		SegmentSeconds: body.SegmentSeconds,
	}
	cfg, err := inline.ToPipelineConfig()
	if err != nil {
		return pipeline.Config{}, huma.Error400BadRequest("Invalid capture settings", err)
	}
	if body.Output != "" {
		cfg.OutputPath = body.Output
	}
	return cfg, nil
}

func sessionData(p *pipeline.Pipeline) models.SessionData {
	data := models.SessionData{
		ID:              p.ID,
		State:           string(p.State()),
		Output:          p.Output(),
		DurationSeconds: p.Duration().Seconds(),
	}
	if err := p.Err(); err != nil {
		data.Error = err.Error()
	}
	return data
}
