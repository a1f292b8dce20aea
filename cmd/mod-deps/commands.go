package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ritzau/mod-deps/pkg/config"
	"github.com/ritzau/mod-deps/pkg/logging"
	"github.com/ritzau/mod-deps/pkg/manager"
	"github.com/ritzau/mod-deps/pkg/model"
	"github.com/ritzau/mod-deps/pkg/output"
	"github.com/ritzau/mod-deps/pkg/pubsub"
	"github.com/ritzau/mod-deps/pkg/watcher"
	"github.com/ritzau/mod-deps/pkg/web"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "mod-deps",
		Short:         "Inspect and toggle mods while keeping their dependencies satisfied",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			if cfg.WebMode {
				return serve(cmd, cfg)
			}
			return list(cmd, cfg)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default mod-deps.toml or mod-deps.yaml)")
	flags.String("dir", "mods", "Mod folder")
	flags.String("index", "", "Metadata index folder (default <dir>/.index)")
	flags.Int("workers", 4, "Number of mods parsed in parallel")
	flags.String("verbosity", "", "Log level: trace, debug, info, warn, error")
	flags.CountP("verbose", "v", "Increase log verbosity (repeatable)")
	flags.Bool("json", false, "Log as JSON")
	rootCmd.Flags().Bool("web", false, "Start the web server")
	rootCmd.Flags().Int("port", 8080, "Port for the web server")
	rootCmd.Flags().Bool("watch", false, "Rescan when the mod folder changes (with --web)")

	rootCmd.AddCommand(
		newListCmd(),
		newAffectedCmd(),
		newEnableCmd("enable", "Enable mods and everything they require", model.ActionEnable),
		newEnableCmd("disable", "Disable mods and everything that requires them", model.ActionDisable),
		newEnableCmd("toggle", "Toggle one mod with its dependencies, or several mods on their own", model.ActionToggle),
		newServeCmd(),
	)
	return rootCmd
}

// setup loads the configuration for cmd and configures logging from it
func setup(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logging.SetOutput(os.Stderr, logging.LevelFromVerbosity(cfg.Verbosity, cfg.VerboseCnt), cfg.JSON)
	return cfg, nil
}

// load creates a manager for the configured folder and waits for its first scan
func load(ctx context.Context, cfg *config.Config, publisher pubsub.Publisher) (*manager.Manager, error) {
	m := manager.New(manager.Config{
		Dir:       cfg.Dir,
		IndexDir:  cfg.IndexDir(),
		Workers:   cfg.Workers,
		Publisher: publisher,
	})
	if _, err := m.Refresh(ctx); err != nil {
		return nil, err
	}
	if err := m.WaitIdle(ctx); err != nil {
		return nil, fmt.Errorf("interrupted while parsing mods: %w", err)
	}
	return m, nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List mods with their state and dependency counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			return list(cmd, cfg)
		},
	}
}

func list(cmd *cobra.Command, cfg *config.Config) error {
	m, err := load(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	output.PrintModList(cmd.OutOrStdout(), cfg.Dir, m.Mods())
	output.PrintCycles(cmd.OutOrStdout(), m.Cycles())
	return nil
}

func newAffectedCmd() *cobra.Command {
	var action string
	cmd := &cobra.Command{
		Use:   "affected <mod>...",
		Short: "Show which other mods an action would change",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := model.ParseEnableAction(action)
			if err != nil {
				return err
			}
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			m, err := load(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			affected, err := m.Affected(args, parsed)
			if err != nil {
				return err
			}
			output.PrintAffected(cmd.OutOrStdout(), parsed, args, affected)
			return nil
		},
	}
	cmd.Flags().StringVarP(&action, "action", "a", "enable", "enable, disable or toggle")
	return cmd
}

func newEnableCmd(use, short string, action model.EnableAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <mod>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			m, err := load(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			changed, err := m.SetEnabled(cmd.Context(), args, action)
			output.PrintChanged(cmd.OutOrStdout(), changed)
			return err
		},
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and event streams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			return serve(cmd, cfg)
		},
	}
	cmd.Flags().Int("port", 8080, "Port for the web server")
	cmd.Flags().Bool("watch", false, "Rescan when the mod folder changes")
	return cmd
}

func serve(cmd *cobra.Command, cfg *config.Config) error {
	ctx := cmd.Context()
	publisher := pubsub.NewSSEPublisher()

	m := manager.New(manager.Config{
		Dir:       cfg.Dir,
		IndexDir:  cfg.IndexDir(),
		Workers:   cfg.Workers,
		Publisher: publisher,
	})
	server := web.NewServer(m, publisher)

	// The API is up while the first scan is still parsing
	if _, err := m.Refresh(ctx); err != nil {
		return err
	}

	if cfg.Watch {
		if err := startWatching(ctx, cfg, m); err != nil {
			logging.Warn("file watching disabled", "error", err)
		}
	}

	return server.Start(ctx, cfg.Port)
}

func startWatching(ctx context.Context, cfg *config.Config, m *manager.Manager) error {
	fw, err := watcher.NewFileWatcher(cfg.Dir, cfg.IndexDir())
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}

	debouncer := watcher.NewDebouncer(fw.Events(), 500*time.Millisecond, 5*time.Second)
	debouncer.Start(ctx)
	go watcher.RefreshOnChange(ctx, debouncer.Output(), m)
	return nil
}
