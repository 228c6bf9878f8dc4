package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/five82/eaglebridge/internal/app"
	"github.com/five82/eaglebridge/internal/client"
	"github.com/five82/eaglebridge/internal/logship"
	"github.com/five82/eaglebridge/internal/prefs"
	"github.com/five82/eaglebridge/internal/settings"
	"github.com/five82/eaglebridge/internal/ui"
	"github.com/five82/eaglebridge/internal/wire"
)

// initiatorEnv is a constructed Initiator plus what closes with it.
type initiatorEnv struct {
	initiator *app.Initiator
	history   *logship.History
	closer    io.Closer
	logPath   string
	prefsPath string
}

func (e *initiatorEnv) Close() error {
	err := e.initiator.Stop()
	if cerr := e.closer.Close(); err == nil {
		err = cerr
	}
	return err
}

func newInitiatorEnv(flags *globalFlags, console io.Writer) (*initiatorEnv, error) {
	cfg, err := flags.loadConfig()
	if err != nil {
		return nil, err
	}

	history := logship.NewHistory(logship.DefaultHistoryLimit, logship.DefaultClearGrace)
	outbox := logship.NewBuffer(wire.SourceInitiator, logship.DefaultBufferLimit)
	logger, closer, err := flags.setupLogger(cfg, "initiator", console, logship.Tee{Outbox: outbox, History: history})
	if err != nil {
		return nil, err
	}

	prefsPath := flags.prefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath("initiator")
	}
	initiator, err := app.NewInitiator(app.InitiatorOptions{
		Config:    cfg,
		PrefsPath: prefsPath,
		Version:   version,
		Logger:    logger,
		History:   history,
		Outbox:    outbox,
	})
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	return &initiatorEnv{
		initiator: initiator,
		history:   history,
		closer:    closer,
		logPath:   cfg.LogPath("initiator"),
		prefsPath: prefsPath,
	}, nil
}

func newInitiatorCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "initiator",
		Short: "Run the polling side headless until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newInitiatorEnv(flags, os.Stderr)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			ctx := cmd.Context()
			env.initiator.Start(ctx)
			if err := env.initiator.Connect(ctx); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "responder not reachable yet: %v\n", err)
			}
			<-ctx.Done()
			return nil
		},
	}
	cmd.AddCommand(newSetPortCmd(flags), newPushSettingsCmd(flags))
	return cmd
}

func newWatchCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the polling side with the terminal monitor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newInitiatorEnv(flags, nil)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			ctx := cmd.Context()
			env.initiator.Start(ctx)
			go func() { _ = env.initiator.Connect(ctx) }()

			p, _ := prefs.Load(env.prefsPath)
			return ui.Run(ui.Options{
				Context:    ctx,
				Controller: env.initiator,
				Store:      env.initiator.Store(),
				History:    env.history,
				ThemeName:  p.Theme,
				PrefsPath:  env.prefsPath,
				LogPath:    env.logPath,
			})
		},
	}
}

func newSetPortCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set-port <port>",
		Short: "Move both sides to a new port",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid port %q", args[0])
			}
			env, err := newInitiatorEnv(flags, os.Stderr)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			if err := env.initiator.SetPort(cmd.Context(), port); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "port set to %d\n", port)
			return nil
		},
	}
}

func newPushSettingsCmd(flags *globalFlags) *cobra.Command {
	var (
		mode     string
		folder   string
		custom   string
		addToCmp bool
	)
	cmd := &cobra.Command{
		Use:   "push-settings",
		Short: "Persist settings and mirror them to the responder",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newInitiatorEnv(flags, os.Stderr)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			snap := env.initiator.Settings()
			if cmd.Flags().Changed("mode") {
				snap.Mode = settings.ImportMode(mode)
			}
			if cmd.Flags().Changed("folder") {
				snap.ProjectAdjacentFolder = folder
			}
			if cmd.Flags().Changed("custom-path") {
				snap.CustomFolderPath = custom
			}
			if cmd.Flags().Changed("add-to-comp") {
				snap.AddToComposition = addToCmp
			}

			ctx := cmd.Context()
			if err := env.initiator.Connect(ctx); err != nil {
				return fmt.Errorf("responder not reachable on port %d: %w", env.initiator.Port(), err)
			}
			return env.initiator.PushSettings(ctx, snap)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "import mode: direct, project_adjacent or custom_folder")
	cmd.Flags().StringVar(&folder, "folder", "", "project-adjacent folder name")
	cmd.Flags().StringVar(&custom, "custom-path", "", "custom folder path")
	cmd.Flags().BoolVar(&addToCmp, "add-to-comp", true, "add imported files to the active composition")
	return cmd
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Ping the responder and print its view of the connection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			prefsPath := flags.prefsPath
			if prefsPath == "" {
				prefsPath = prefs.DefaultPath("initiator")
			}
			port := cfg.Port
			if p, _ := prefs.Load(prefsPath); p.Port.LastUpdated > 0 {
				port = p.Port.Port
			}
			c, err := client.NewClient(cfg.Host, port)
			if err != nil {
				return err
			}
			return printStatus(cmd.Context(), cmd.OutOrStdout(), c)
		},
	}
}

func printStatus(ctx context.Context, out io.Writer, c *client.Client) error {
	ping, err := c.Ping(ctx)
	if err != nil {
		return fmt.Errorf("port %d: %s: %w", c.Port(), wire.Label(err), err)
	}
	status, err := c.FetchStatus(ctx)
	if err != nil {
		return fmt.Errorf("port %d: %w", c.Port(), err)
	}
	fmt.Fprintf(out, "service   %s %s\n", ping.Service, ping.Version)
	fmt.Fprintf(out, "port      %d\n", c.Port())
	fmt.Fprintf(out, "connected %t\n", status.Connected)
	fmt.Fprintf(out, "clients   %d\n", status.Clients)
	if status.PeerPort > 0 {
		fmt.Fprintf(out, "peer port %d\n", status.PeerPort)
	}
	return nil
}
