package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/snow-ghost/assistant/core"
	"github.com/snow-ghost/assistant/pkg/config"
	"github.com/snow-ghost/assistant/pkg/observability"
	"github.com/snow-ghost/assistant/pkg/orchestrator"
)

func newAskCmd() *cobra.Command {
	var (
		difficulty string
		asJSON     bool
		trace      bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := core.ParseDifficulty(difficulty)
			if err != nil {
				return err
			}

			cfg := config.Load()
			if err := cfg.Validate(); err != nil {
				return err
			}

			obs, err := observability.NewManager(observability.Config{
				ServiceName:    "assistant",
				ServiceVersion: version,
				LogLevel:       cfg.LogLevel,
				LogFormat:      cfg.LogFormat,
				Registerer:     prometheus.NewRegistry(),
			})
			if err != nil {
				return err
			}

			a, err := newApp(cfg, obs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			req := orchestrator.Request{
				Question:   strings.Join(args, " "),
				Difficulty: d,
			}
			if trace {
				req.Observer = func(e core.TimelineEvent) { printEvent(out, e) }
			}

			state := a.orchestrator.Run(cmd.Context(), req)
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(state)
			}

			fmt.Fprintln(out, state.FinalAnswer)
			return nil
		},
	}

	cmd.Flags().StringVarP(&difficulty, "difficulty", "d", "easy", "easy or hard")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full final state as JSON")
	cmd.Flags().BoolVar(&trace, "trace", false, "print timeline events as they happen")
	return cmd
}

func printEvent(w io.Writer, e core.TimelineEvent) {
	line := fmt.Sprintf("[%s] %s", e.Timestamp.Format("15:04:05.000"), e.Kind)
	if e.Tool != "" {
		line += " " + e.Tool.String()
	}
	if e.Status != "" {
		line += " (" + string(e.Status) + ")"
	}
	if e.Detail != "" {
		line += " " + e.Detail
	}
	if e.Reason != "" {
		line += ": " + e.Reason
	}
	fmt.Fprintln(w, line)
}
