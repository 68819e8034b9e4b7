// Command horizon serves and drives the conversational turn orchestrator.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ent0n29/horizon/internal/config"
	horizonotel "github.com/ent0n29/horizon/internal/otel"
)

// Version is injected via ldflags at build time.
var Version = "dev"

func resolvedVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

var tracer = horizonotel.Tracer("github.com/ent0n29/horizon/cmd/horizon")

// cli holds state shared by every subcommand of one invocation.
type cli struct {
	cfg          config.Config
	logLevel     string
	logFormat    string
	otelEnabled  bool
	otelShutdown func(context.Context) error
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "horizon",
		Short:         "Conversational turn orchestration for project data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = c.logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.LogFormat = c.logFormat
			}
			if cmd.Flags().Changed("otel") {
				cfg.OtelEnabled = c.otelEnabled
			}
			c.cfg = cfg
			setupLogging(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

			shutdown, err := horizonotel.Setup("horizon", resolvedVersion(), cfg.OtelEnabled)
			if err != nil {
				return fmt.Errorf("initializing OpenTelemetry: %w", err)
			}
			c.otelShutdown = shutdown
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			c.flushTelemetry()
		},
	}
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&c.logFormat, "log-format", "console", "log format (console, json)")
	root.PersistentFlags().BoolVar(&c.otelEnabled, "otel", false, "export traces to stderr")

	root.AddCommand(
		newServeCmd(c),
		newAskCmd(c),
		newHistoryCmd(c),
		newForgetCmd(c),
		newValidateSQLCmd(c),
	)
	return root
}

func (c *cli) flushTelemetry() {
	if c.otelShutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.otelShutdown(ctx)
	c.otelShutdown = nil
}

// setupLogging points the global logger at w. Logs never go to stdout so
// command output stays pipeable.
func setupLogging(w io.Writer, level, format string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if strings.EqualFold(format, "json") {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "horizon: %v\n", err)
		os.Exit(1)
	}
}
