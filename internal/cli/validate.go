package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"trivia-board-service/internal/domain"
	"trivia-board-service/internal/ingest"
	"trivia-board-service/internal/probe"
)

// NewValidateCmd checks a question file offline and prints the report.
func NewValidateCmd() *cobra.Command {
	var withProbe, allowPrivate bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "validate <file.csv>",
		Short: "Validate a question CSV without starting the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			var prober ingest.Prober
			if withProbe {
				prober = probe.New(probe.Options{Timeout: timeout, AllowPrivate: allowPrivate})
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			res, err := ingest.New(prober).Ingest(ctx, string(data))
			if err != nil {
				return err
			}

			printReport(cmd.OutOrStdout(), filepath.Base(args[0]), res.Report)
			if !res.Report.Accepted {
				return fmt.Errorf("%s rejected", args[0])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withProbe, "probe", false, "check that image URLs respond")
	cmd.Flags().BoolVar(&allowPrivate, "allow-private", false, "let probes reach loopback and internal hosts")
	cmd.Flags().DurationVar(&timeout, "probe-timeout", 5*time.Second, "per-request probe timeout")
	return cmd
}

func printReport(w io.Writer, name string, report domain.ValidationReport) {
	fmt.Fprintf(w, "%s: %s\n", name, report.Message)
	for _, d := range report.Details {
		fmt.Fprintf(w, "  %s\n", d)
	}
	if report.Accepted {
		fmt.Fprintf(w, "  %d questions in %d categories\n", report.QuestionCount, report.CategoryCount)
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
}
