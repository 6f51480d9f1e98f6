package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/recordnode/internal/api/models"
	"github.com/smazurov/recordnode/internal/config"
)

// PresetIDInput is the preset path parameter.
type PresetIDInput struct {
	PresetID string `path:"preset_id" example:"desk" doc:"Preset identifier"`
}

// PresetInput wraps a preset body.
type PresetInput struct {
	Body config.Preset
}

// PresetUpdateInput combines the path parameter and body.
type PresetUpdateInput struct {
	PresetIDInput
	Body config.Preset
}

// PresetResponse returns one preset.
type PresetResponse struct {
	Body config.Preset
}

// PresetListResponse returns all presets.
type PresetListResponse struct {
	Body struct {
		Presets map[string]config.Preset `json:"presets" doc:"Presets keyed by ID"`
	}
}

// registerPresetRoutes sets up preset CRUD endpoints.
func (s *Server) registerPresetRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-presets",
		Method:      http.MethodGet,
		Path:        "/api/presets",
		Summary:     "List presets",
		Description: "List saved recording presets",
		Tags:        []string{"presets"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*PresetListResponse, error) {
		resp := &PresetListResponse{}
		resp.Body.Presets = s.presets.GetPresets()
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-preset",
		Method:      http.MethodGet,
		Path:        "/api/presets/{preset_id}",
		Summary:     "Get preset",
		Description: "Get one recording preset",
		Tags:        []string{"presets"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(ctx context.Context, input *PresetIDInput) (*PresetResponse, error) {
		preset, ok := s.presets.GetPreset(input.PresetID)
		if !ok {
			return nil, huma.Error404NotFound("Preset not found")
		}
		return &PresetResponse{Body: preset}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "create-preset",
		Method:      http.MethodPost,
		Path:        "/api/presets",
		Summary:     "Create preset",
		Description: "Save a new recording preset",
		Tags:        []string{"presets"},
		Security:    withAuth(),
		Errors:      []int{400, 401},
	}, func(ctx context.Context, input *PresetInput) (*PresetResponse, error) {
		if err := s.presets.AddPreset(input.Body); err != nil {
			return nil, huma.Error400BadRequest("Invalid preset", err)
		}
		preset, _ := s.presets.GetPreset(input.Body.ID)
		return &PresetResponse{Body: preset}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-preset",
		Method:      http.MethodPut,
		Path:        "/api/presets/{preset_id}",
		Summary:     "Update preset",
		Description: "Replace an existing recording preset",
		Tags:        []string{"presets"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404},
	}, func(ctx context.Context, input *PresetUpdateInput) (*PresetResponse, error) {
		if err := s.presets.UpdatePreset(input.PresetID, input.Body); err != nil {
			return nil, huma.Error404NotFound("Preset not found", err)
		}
		preset, _ := s.presets.GetPreset(input.PresetID)
		return &PresetResponse{Body: preset}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-preset",
		Method:      http.MethodDelete,
		Path:        "/api/presets/{preset_id}",
		Summary:     "Delete preset",
		Description: "Remove a recording preset",
		Tags:        []string{"presets"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(ctx context.Context, input *PresetIDInput) (*models.MessageResponse, error) {
		if err := s.presets.RemovePreset(input.PresetID); err != nil {
			return nil, huma.Error404NotFound("Preset not found", err)
		}
		return &models.MessageResponse{
			Body: models.MessageData{Message: "Preset deleted"},
		}, nil
	})
}
