package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/recordnode/internal/api/models"
	"github.com/smazurov/recordnode/internal/devices"
)

// registerDeviceRoutes sets up device discovery endpoints.
func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List devices",
		Description: "Enumerate displays, cameras, and microphones available for recording",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, input *struct{}) (*models.DeviceListResponse, error) {
		all, err := s.detector.List()
		if err != nil {
			return nil, huma.Error500InternalServerError("Device enumeration failed", err)
		}

		resp := &models.DeviceListResponse{}
		resp.Body.Displays = []devices.DeviceInfo{}
		resp.Body.Cameras = []devices.DeviceInfo{}
		resp.Body.Microphones = []devices.DeviceInfo{}
		for _, d := range all {
			switch d.Kind {
			case devices.KindDisplay:
				resp.Body.Displays = append(resp.Body.Displays, d)
			case devices.KindCamera:
				resp.Body.Cameras = append(resp.Body.Cameras, d)
			case devices.KindMicrophone:
				resp.Body.Microphones = append(resp.Body.Microphones, d)
			}
		}
		return resp, nil
	})
}
