package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/recordnode/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of recording lifecycle, device, and health events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"recording-started": events.RecordingStartedEvent{},
		"recording-stopped": events.RecordingStoppedEvent{},
		"recording-failed":  events.RecordingFailedEvent{},
		"device-discovery":  events.DeviceDiscoveryEvent{},
		"camera-attached":   events.CameraAttachedEvent{},
		"camera-detached":   events.CameraDetachedEvent{},
		"drop-rate-alert":   events.DropRateAlertEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Per-connection channel; slow clients drop rather than block
		// the bus.
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.RecordingStartedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RecordingStoppedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RecordingFailedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.DeviceDiscoveryEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CameraAttachedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CameraDetachedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.DropRateAlertEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
