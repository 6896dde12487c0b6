package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"docchat/internal/chat"
	"docchat/internal/config"
	"docchat/internal/storage"
)

var (
	configPath string
	dataDir    string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "Chat with your documents, stored locally",
	Long: `docchat keeps chat sessions (a PDF document, its summary, and the
transcript) either in an embedded local database or in a directory tree
you choose, back up, and inspect directly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cleanup, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		settings := app.Settings()
		log.Info("docchat ready",
			"mode", app.Mode(),
			"sessions", len(app.Sessions()),
			"model", settings.Model)
		if app.Mode() == storage.ModeDirectoryNeedsPermission {
			log.Warn("Directory access needs to be re-granted; run 'docchat regrant'")
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override data directory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(modeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(regrantCmd)
}

// buildApp wires config, the embedded store, the handle manager and the
// facade, then bootstraps the orchestrator.
func buildApp(ctx context.Context) (*chat.Orchestrator, func(), error) {
	if debug {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := config.Load(configPath, debug)
	if err != nil {
		return nil, nil, err
	}
	if dataDir == "" {
		dataDir = cfg.DataDir
	}

	dbPath, err := storage.NewPathManagerAt(dataDir).GetEmbeddedDatabasePath()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}

	embedded, err := storage.NewEmbeddedStore(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open embedded store: %w", err)
	}

	handles := storage.NewHandleManager(embedded, newGrantPrompter())
	store := storage.NewStore(embedded, handles, newDirectoryPicker())

	app := chat.New(store, nil)
	if err := app.Bootstrap(ctx, cfg.DefaultSettings()); err != nil {
		store.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			log.Debug("Failed to close store", "error", err)
		}
	}
	return app, cleanup, nil
}
