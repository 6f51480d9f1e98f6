package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/recordnode/internal/api/models"
	"github.com/smazurov/recordnode/internal/camera"
	"github.com/smazurov/recordnode/internal/media"
)

// CameraInputBody names the camera to attach.
type CameraInputBody struct {
	Device string `json:"device" example:"video0" doc:"Camera device identifier" minLength:"1"`
}

// CameraInputRequest wraps the request body.
type CameraInputRequest struct {
	Body CameraInputBody
}

// CameraStatusData describes the shared camera slot.
type CameraStatusData struct {
	Attached bool   `json:"attached" doc:"Whether a camera is delivering frames"`
	DeviceID string `json:"device_id,omitempty" doc:"Attached camera identifier"`
	Name     string `json:"name,omitempty" doc:"Attached camera name"`
}

// CameraStatusResponse wraps the status body.
type CameraStatusResponse struct {
	Body CameraStatusData
}

// registerCameraRoutes sets up the shared camera slot endpoints.
func (s *Server) registerCameraRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera",
		Method:      http.MethodGet,
		Path:        "/api/camera",
		Summary:     "Camera status",
		Description: "Get the state of the shared camera slot",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*CameraStatusResponse, error) {
		resp := &CameraStatusResponse{}
		if info, ok := s.camera.Current(); ok {
			resp.Body = CameraStatusData{
				Attached: true,
				DeviceID: info.ID,
				Name:     info.Name,
			}
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-camera-input",
		Method:      http.MethodPut,
		Path:        "/api/camera/input",
		Summary:     "Attach camera",
		Description: "Switch the shared camera slot to the given device",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 409, 504},
	}, func(ctx context.Context, input *CameraInputRequest) (*CameraStatusResponse, error) {
		err := s.camera.SetInput(ctx, input.Body.Device)
		switch {
		case err == nil:
		case errors.Is(err, camera.ErrFeedLocked):
			return nil, huma.Error409Conflict("Camera is locked by a recording")
		case errors.Is(err, media.ErrInitTimeout):
			return nil, huma.Error504GatewayTimeout("Camera did not start in time", err)
		case errors.Is(err, media.ErrDeviceNotFound):
			return nil, huma.Error404NotFound("Camera not found", err)
		default:
			return nil, huma.Error400BadRequest("Failed to attach camera", err)
		}

		resp := &CameraStatusResponse{}
		if info, ok := s.camera.Current(); ok {
			resp.Body = CameraStatusData{
				Attached: true,
				DeviceID: info.ID,
				Name:     info.Name,
			}
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "remove-camera-input",
		Method:      http.MethodDelete,
		Path:        "/api/camera/input",
		Summary:     "Detach camera",
		Description: "Release the shared camera slot",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500},
	}, func(ctx context.Context, input *struct{}) (*models.MessageResponse, error) {
		if err := s.camera.RemoveInput(); err != nil {
			if errors.Is(err, camera.ErrFeedLocked) {
				return nil, huma.Error409Conflict("Camera is locked by a recording")
			}
			return nil, huma.Error500InternalServerError("Failed to detach camera", err)
		}
		return &models.MessageResponse{
			Body: models.MessageData{Message: "Camera detached"},
		}, nil
	})
}
