package api

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/recordnode/internal/api/models"
	"github.com/smazurov/recordnode/internal/camera"
	"github.com/smazurov/recordnode/internal/config"
	"github.com/smazurov/recordnode/internal/devices"
	"github.com/smazurov/recordnode/internal/events"
	"github.com/smazurov/recordnode/internal/logging"
	"github.com/smazurov/recordnode/internal/pipeline"
	"github.com/smazurov/recordnode/internal/version"
)

// Options configures the API server.
type Options struct {
	AuthUsername string
	AuthPassword string

	Sessions *pipeline.Manager
	Presets  *config.PresetManager
	EventBus *events.Bus
	Detector devices.Detector

	// Camera is the shared camera slot; camera routes are skipped when
	// it is nil.
	Camera *camera.Feed

	// PrometheusHandler serves /metrics when set.
	PrometheusHandler http.Handler
}

// Server is the Huma v2 API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	sessions   *pipeline.Manager
	presets    *config.PresetManager
	eventBus   *events.Bus
	detector   devices.Detector
	camera     *camera.Feed
	watchStop  context.CancelFunc
	logger     *slog.Logger
}

// basicAuthMiddleware creates middleware for HTTP basic authentication
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		// Skip auth for operations without security requirements
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		authHeader := ctx.Header("Authorization")
		var credentials string

		if authHeader != "" {
			const prefix = "Basic "
			if !strings.HasPrefix(authHeader, prefix) {
				ctx.SetHeader("WWW-Authenticate", `Basic realm="RecordNode API"`)
				huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid authentication type")
				return
			}
			decoded, err := base64.StdEncoding.DecodeString(authHeader[len(prefix):])
			if err != nil {
				ctx.SetHeader("WWW-Authenticate", `Basic realm="RecordNode API"`)
				huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials format", err)
				return
			}
			credentials = string(decoded)
		} else if queryAuth := ctx.Query("auth"); queryAuth != "" {
			// SSE clients cannot set headers; allow query fallback.
			decoded, err := base64.StdEncoding.DecodeString(queryAuth)
			if err != nil {
				ctx.SetHeader("WWW-Authenticate", `Basic realm="RecordNode API"`)
				huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials format", err)
				return
			}
			credentials = string(decoded)
		}

		if credentials == "" {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="RecordNode API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Authentication required")
			return
		}

		parts := strings.SplitN(credentials, ":", 2)
		if len(parts) != 2 || parts[0] != username || parts[1] != password {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="RecordNode API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		next(ctx)
	}
}

// NewServer creates the API server with Go 1.22+ native routing.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	apiConfig := huma.DefaultConfig("RecordNode API", version.String())
	apiConfig.Info.Description = "Screen, camera, and audio recording API"
	// Empty servers list makes OpenAPI use relative paths.
	apiConfig.Servers = []*huma.Server{}
	apiConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	humaAPI := humago.New(mux, apiConfig)

	server := &Server{
		api:      humaAPI,
		mux:      mux,
		options:  opts,
		sessions: opts.Sessions,
		presets:  opts.Presets,
		eventBus: opts.EventBus,
		detector: opts.Detector,
		camera:   opts.Camera,
		logger:   logging.GetLogger("api"),
	}

	humaAPI.UseMiddleware(NewCORSMiddleware(corsConfig))
	humaAPI.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		humaAPI.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	// Prometheus endpoint stays outside Huma so scrapers get the plain
	// text exposition format.
	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// GetMux returns the underlying HTTP ServeMux for additional setup
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// GetAPI returns the Huma API instance
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start runs the HTTP server on addr and begins device watching.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting RecordNode API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	if s.detector != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.watchStop = cancel
		go func() {
			err := s.detector.Watch(ctx, func(ev devices.Event) {
				s.eventBus.Publish(events.DeviceDiscoveryEvent{
					DeviceInfo: ev.Device,
					Action:     ev.Action,
					Timestamp:  time.Now().UTC().Format(time.RFC3339),
				})
			})
			if err != nil && ctx.Err() == nil {
				s.logger.Warn("Device watch failed", "error", err)
			}
		}()
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down without waiting for open connections.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	if s.watchStop != nil {
		s.watchStop()
	}
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// registerRoutes sets up all API endpoints
func (s *Server) registerRoutes() {
	// Health check endpoint - no auth required
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{}, // Empty security = no auth required
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	// Version endpoint - no auth required
	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				BuildID:   info.BuildID,
				GoVersion: info.GoVersion,
				Compiler:  info.Compiler,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerDeviceRoutes()
	s.registerRecordingRoutes()
	s.registerPresetRoutes()
	if s.camera != nil {
		s.registerCameraRoutes()
	}
	s.registerSSERoutes()
	s.registerLogRoutes()
}

// withAuth returns security requirement for basic auth
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
