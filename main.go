package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smazurov/recordnode/cmd"
	"github.com/smazurov/recordnode/internal/api"
	"github.com/smazurov/recordnode/internal/camera"
	"github.com/smazurov/recordnode/internal/config"
	"github.com/smazurov/recordnode/internal/devices"
	"github.com/smazurov/recordnode/internal/events"
	"github.com/smazurov/recordnode/internal/logging"
	"github.com/smazurov/recordnode/internal/pipeline"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Presets settings
	PresetsConfigFile string `help:"Recording preset definitions file" default:"presets.toml" toml:"presets.config_file" env:"PRESETS_CONFIG_FILE"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingPipeline string `help:"Pipeline logging level" default:"info" toml:"logging.pipeline" env:"LOGGING_PIPELINE"`
	LoggingEncoder  string `help:"Encoder logging level" default:"info" toml:"logging.encoder" env:"LOGGING_ENCODER"`
	LoggingCapture  string `help:"Capture logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingDevices  string `help:"Devices logging level" default:"info" toml:"logging.devices" env:"LOGGING_DEVICES"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func main() {
	// Create Huma CLI
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Initialize logging system
		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"pipeline": opts.LoggingPipeline,
				"encoder":  opts.LoggingEncoder,
				"capture":  opts.LoggingCapture,
				"devices":  opts.LoggingDevices,
				"api":      opts.LoggingAPI,
			},
		})

		logger := logging.GetLogger("main")

		// Create event bus for in-process event handling
		eventBus := events.New()

		// Mirror log entries onto the bus for the SSE log stream.
		var logSeq atomic.Uint64
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Seq:        logSeq.Add(1),
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		// Load recording presets
		presetManager := config.NewPresetManager(opts.PresetsConfigFile)
		if loadErr := presetManager.Load(); loadErr != nil {
			logger.Warn("Failed to load presets", "error", loadErr, "config", opts.PresetsConfigFile)
		}

		// Pick up external edits to the presets file
		presetsLoader := func(path string) (map[string]config.Preset, error) {
			pm := config.NewPresetManager(path)
			if err := pm.Load(); err != nil {
				return nil, err
			}
			return pm.GetPresets(), nil
		}
		presetsWatcher := config.NewConfigWatcher(opts.PresetsConfigFile, presetsLoader, logger)
		presetsWatcher.OnReload(func(presets map[string]config.Preset) {
			presetManager.Replace(presets)
			logger.Info("Presets reloaded", "count", len(presets))
		})

		cameraFeed := camera.NewFeed(eventBus, logging.GetLogger("devices"))
		sessions := pipeline.NewManager(eventBus, cameraFeed, logging.GetLogger("pipeline"))

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Sessions:          sessions,
			Presets:           presetManager,
			EventBus:          eventBus,
			Detector:          devices.NewDetector(),
			Camera:            cameraFeed,
			PrometheusHandler: promhttp.Handler(),
		})

		hooks.OnStart(func() {
			// Start presets watcher (non-fatal if it fails)
			if watchErr := presetsWatcher.Start(); watchErr != nil {
				logger.Warn("Failed to watch presets file, hot-reload disabled", "error", watchErr)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Stop recordings after the API stops accepting requests so
			// every output file gets flushed and finalized.
			sessions.StopAll()

			cameraFeed.Close()
			_ = presetsWatcher.Stop()
		})
	})

	// Add standalone recording command
	cli.Root().AddCommand(cmd.CreateRecordCmd())

	// Add device listing command
	cli.Root().AddCommand(cmd.CreateDevicesCmd())

	// Run the CLI
	cli.Run()
}
