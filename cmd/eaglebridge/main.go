package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/five82/eaglebridge/internal/config"
	"github.com/five82/eaglebridge/internal/logging"
	"github.com/five82/eaglebridge/internal/logship"
)

var version = "dev"

type globalFlags struct {
	configPath string
	prefsPath  string
	logLevel   string
	noColor    bool
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gin.SetMode(gin.ReleaseMode)

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "eaglebridge: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "eaglebridge",
		Short:         "Local HTTP bridge between an asset manager and a compositor",
		Long:          `eaglebridge connects a listening Responder with a polling Initiator over loopback HTTP, negotiating ports on both sides.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ~/.config/eaglebridge/config.toml)")
	root.PersistentFlags().StringVar(&flags.prefsPath, "prefs", "", "preferences file (default ~/.config/eaglebridge/<side>.toml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override the configured log level")
	root.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "disable colored console output")

	root.AddCommand(
		newResponderCmd(flags),
		newInitiatorCmd(flags),
		newWatchCmd(flags),
		newStatusCmd(flags),
		newLogsCmd(flags),
	)
	return root
}

// loadConfig reads the config file and applies the --log-level override.
func (f *globalFlags) loadConfig() (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if f.logLevel != "" {
		level, err := logging.ParseLevel(f.logLevel)
		if err != nil {
			return config.Config{}, err
		}
		cfg.LogLevel = level
	}
	return cfg, nil
}

// setupLogger builds the side's logger. A nil console keeps the terminal
// free for the monitor.
func (f *globalFlags) setupLogger(cfg config.Config, side string, console io.Writer, mirror logship.Sink) (*slog.Logger, io.Closer, error) {
	logger, closer, err := logging.Setup(logging.Options{
		Level:    cfg.LogLevel,
		Console:  console,
		NoColor:  f.noColor,
		FilePath: cfg.LogPath(side),
		Mirror:   mirror,
		Attrs:    []slog.Attr{slog.String("side", side)},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("setup logging: %w", err)
	}
	slog.SetDefault(logger)
	return logger, closer, nil
}
