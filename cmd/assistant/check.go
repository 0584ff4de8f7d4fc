package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snow-ghost/assistant/pkg/config"
	"github.com/snow-ghost/assistant/pkg/fallback"
	"github.com/snow-ghost/assistant/pkg/logging"
	"github.com/snow-ghost/assistant/pkg/patterns"
)

func newCheckConfigCmd() *cobra.Command {
	var fallbackPath, patternsPath string

	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the fallback and pattern files and print the resolved chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if fallbackPath == "" {
				fallbackPath = cfg.FallbackConfig
			}
			if patternsPath == "" {
				patternsPath = cfg.PatternsConfig
			}
			out := cmd.OutOrStdout()

			fb, err := fallback.NewResolver(fallbackPath, fallback.WithLogger(logging.NewNop())).Load(true)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "fallback (%s)\n", fb.Source)
			fmt.Fprintf(out, "  enabled=%t max_retries=%d validation_enabled=%t validation_retries=%d\n",
				fb.Enabled, fb.MaxRetries, fb.ValidationEnabled, fb.ValidationRetries)
			for _, qt := range fb.QuestionTypes() {
				fmt.Fprintf(out, "  %-18s %v\n", qt, fb.Chain(qt))
			}
			for _, w := range fb.Warnings {
				fmt.Fprintf(out, "  warning: %s\n", w)
			}

			set, err := patterns.Load(patternsPath, logging.NewNop())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "patterns (%d)\n", len(set.Patterns()))
			for _, p := range set.Patterns() {
				fmt.Fprintf(out, "  %-26s priority=%-3d %v\n", p.Name, p.Priority, p.Tools)
			}

			return cfg.Validate()
		},
	}

	cmd.Flags().StringVar(&fallbackPath, "fallback", "", "fallback file (defaults to FALLBACK_CONFIG)")
	cmd.Flags().StringVar(&patternsPath, "patterns", "", "pattern file (defaults to PATTERNS_CONFIG)")
	return cmd
}
