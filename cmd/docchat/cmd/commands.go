package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"docchat/internal/storage"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored chat sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cleanup, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		sessions := app.Sessions()
		if len(sessions) == 0 {
			fmt.Println("No sessions.")
			return nil
		}

		for _, s := range sessions {
			doc := "-"
			if s.HasDocument() {
				doc = s.DocumentName
			}
			updated := time.UnixMilli(s.LastUpdated).Format("2006-01-02 15:04")
			fmt.Printf("%s  %-40s  %3d msgs  %s  %s\n", s.ID, s.Title, len(s.Messages), updated, doc)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export sessions as a JSON backup (document payloads stripped)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cleanup, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		out := os.Stdout
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("failed to create backup file: %w", err)
			}
			defer f.Close()
			out = f
		}
		return app.Export(out)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import sessions from a JSON backup (existing ids are skipped)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cleanup, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open backup file: %w", err)
		}
		defer f.Close()

		added, err := app.Import(cmd.Context(), f)
		if err != nil {
			return err
		}
		log.Info("Import complete", "added", added)
		return nil
	},
}

var modeCmd = &cobra.Command{
	Use:   "mode [embedded|directory]",
	Short: "Show or switch the storage mode",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cleanup, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		if len(args) == 0 {
			settings := app.Settings()
			fmt.Printf("mode: %s\n", app.Mode())
			if settings.DirectoryName != "" {
				fmt.Printf("directory: %s\n", settings.DirectoryName)
			}
			return nil
		}

		target := storage.StorageMode(args[0])
		switched, err := app.SwitchMode(cmd.Context(), target)
		if err != nil {
			if err == storage.ErrUnsupported {
				return fmt.Errorf("this environment has no directory picker; pass --dir to choose a directory")
			}
			return err
		}
		if !switched {
			log.Info("Mode switch cancelled; nothing changed")
			return nil
		}

		log.Info("Storage mode switched", "mode", app.Mode(), "sessions", len(app.Sessions()))
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow external changes to the session directory",
	Long: `watch runs until interrupted, reloading the session list whenever the
chosen directory is changed by another program, and printing the result of
each reload. Requires directory storage mode with verified access.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cleanup, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		root, ok := app.DirectoryRoot()
		if !ok {
			return fmt.Errorf("watch requires directory storage mode with access; current mode is %s", app.Mode())
		}

		watcher, err := storage.NewDirectoryWatcher(root)
		if err != nil {
			return err
		}
		defer watcher.Close()
		if err := watcher.Start(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		log.Info("Watching for external changes", "directory", root)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-watcher.Changes():
				if err := app.Reload(ctx); err != nil {
					log.Warn("Reload failed; keeping current list", "error", err)
					continue
				}
				log.Info("Reloaded after external change", "sessions", len(app.Sessions()))
			}
		}
	},
}

var regrantCmd = &cobra.Command{
	Use:   "regrant",
	Short: "Re-grant access to the previously chosen directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cleanup, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		if err := app.RegrantDirectory(cmd.Context()); err != nil {
			return err
		}
		log.Info("Directory access restored", "sessions", len(app.Sessions()))
		return nil
	},
}

func init() {
	modeCmd.Flags().StringVar(&pickedDir, "dir", "", "directory to use when switching to directory mode")
}
