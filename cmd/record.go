package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smazurov/recordnode/internal/config"
	"github.com/smazurov/recordnode/internal/events"
	"github.com/smazurov/recordnode/internal/logging"
	"github.com/smazurov/recordnode/internal/pipeline"
)

// CreateRecordCmd creates the record command.
func CreateRecordCmd() *cobra.Command {
	var presetsFile string
	var output string
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "record [preset-id]",
		Short: "Record a preset to disk",
		Long: `Runs a single recording session for the given preset without the HTTP server. ` +
			`Loads the preset from presets.toml and records until interrupted.`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			presetID := args[0]

			// Initialize minimal logging
			loggingConfig := logging.Config{
				Level:  "info",
				Format: "text",
			}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("pipeline").With("preset", presetID)

			presets := config.NewPresetManager(presetsFile)
			if err := presets.Load(); err != nil {
				logger.Error("Failed to load presets configuration", "error", err, "config", presetsFile)
				os.Exit(1)
			}

			preset, exists := presets.GetPreset(presetID)
			if !exists {
				logger.Error("Preset not found")
				os.Exit(1)
			}

			cfg, err := preset.ToPipelineConfig()
			if err != nil {
				logger.Error("Invalid preset", "error", err)
				os.Exit(1)
			}
			if output != "" {
				cfg.OutputPath = output
			}

			bus := events.New()
			session, err := pipeline.Start(cfg, bus, logger)
			if err != nil {
				logger.Error("Failed to start recording", "error", err)
				os.Exit(1)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				logger.Info("Received signal, stopping recording", "signal", sig.String())
			case <-session.Done():
			}

			if err := session.Stop(); err != nil {
				logger.Error("Recording ended with an error", "error", err)
				os.Exit(1)
			}
			if err := session.Err(); err != nil {
				logger.Error("Recording failed", "error", err)
				os.Exit(1)
			}

			logger.Info("Recording finished",
				"output", cfg.OutputPath,
				"duration", session.Duration().Round(0))
		},
	}

	cmd.Flags().StringVar(&presetsFile, "presets", "presets.toml", "Path to presets configuration file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Override the output file path")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")

	return cmd
}
