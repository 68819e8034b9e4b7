package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ent0n29/horizon/internal/app"
	"github.com/ent0n29/horizon/internal/memory"
	"github.com/ent0n29/horizon/internal/observability"
	"github.com/ent0n29/horizon/internal/safety"
)

func newAskCmd(c *cli) *cobra.Command {
	var chatID string
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Run one turn and print the response envelope",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, span := tracer.Start(cmd.Context(), "ask", trace.WithAttributes(attribute.String("chat.id", chatID)))
			defer span.End()

			built, err := app.Build(ctx, c.cfg, app.WithMetrics(observability.NewMetricsWith(prometheus.NewRegistry(), c.cfg.MetricsNamespace)))
			if err != nil {
				return err
			}
			defer built.Cleanup()

			resp, err := built.Orchestrator.Run(ctx, chatID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&chatID, "chat", "cli", "chat id the turn belongs to")
	return cmd
}

// openTier opens only the memory tiers, for commands that never run a turn.
func openTier(cmd *cobra.Command, c *cli) (*memory.Tier, error) {
	durable, err := memory.NewDurableStore(cmd.Context(), c.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}
	cache, err := memory.NewCache(c.cfg.CacheURL, c.cfg.CacheWindow, c.cfg.CacheTTL)
	if err != nil {
		_ = durable.Close()
		return nil, fmt.Errorf("cache init failed: %w", err)
	}
	return memory.NewTier(durable, cache, memory.WithWindow(c.cfg.CacheWindow)), nil
}

func newHistoryCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "history [chat-id]",
		Short: "Print the full history of a chat, payloads included",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := openTier(cmd, c)
			if err != nil {
				return err
			}
			defer tier.Close()

			records, err := tier.Full(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if records == nil {
				records = []memory.Record{}
			}
			return printJSON(cmd.OutOrStdout(), records)
		},
	}
}

func newForgetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "forget [chat-id]",
		Short: "Delete a chat from the durable store and the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := openTier(cmd, c)
			if err != nil {
				return err
			}
			defer tier.Close()

			if err := tier.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forgot %s\n", args[0])
			return nil
		},
	}
}

var errQueryRejected = errors.New("query rejected")

func newValidateSQLCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-sql [statement]",
		Short: "Check a statement against the read-only query rules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := safety.ParsePolicy(c.cfg.SQLUnboundedPolicy)
			if err != nil {
				return err
			}
			res := safety.New(c.cfg.SQLMaxLimit, policy).Check(strings.Join(args, " "))
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.OK {
				return errQueryRejected
			}
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
