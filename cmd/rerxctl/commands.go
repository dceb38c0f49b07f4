package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"rerfiler/internal/filing/builder"
	"rerfiler/internal/filing/models"
	"rerfiler/internal/filing/rerx"
	"rerfiler/internal/platform/bootstrap"
)

func loadReport(path string) (*models.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	return &report, nil
}

// newBuildCmd builds the batch document from a report JSON file without
// touching transport or storage. Preflight runs as part of the build, so a
// non-zero exit means the report would be routed to review.
func newBuildCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "build <report.json>",
		Short: "Build and preflight a batch document without filing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			report, err := loadReport(args[0])
			if err != nil {
				return err
			}

			docBuilder := builder.New(bootstrap.NewBuilderConfig(cfg), builder.WithLogger(logger))
			sub := &models.Submission{ActivitySeq: 1}

			batch, summary, err := docBuilder.Build(report, sub)
			if err != nil {
				if reasons := builder.FailureReasons(err); len(reasons) > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "preflight failed:\n  %s\n", strings.Join(reasons, "\n  "))
				}
				return err
			}

			data, err := batch.Marshal()
			if err != nil {
				return err
			}

			if out != "" {
				if err := os.WriteFile(out, data, 0o600); err != nil {
					return fmt.Errorf("write document: %w", err)
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
			}

			fmt.Fprintf(cmd.ErrOrStderr(),
				"built activity %d: %d transferee(s), %d transferor(s), %d associated person(s), %d payment detail(s), %d parties total\n",
				summary.ActivitySeq, summary.Transferees, summary.Transferors,
				summary.AssociatedPersons, summary.PaymentDetails, summary.Parties)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write the document to a file instead of stdout")
	return cmd
}

// newValidateCmd parses an already-built document and re-runs preflight
// against it, for inspecting documents produced elsewhere or archived
// outbound artifacts.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <document.xml>",
		Short: "Parse a batch document and run preflight checks against it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}

			batch, err := rerx.Parse(data)
			if err != nil {
				return fmt.Errorf("parse document: %w", err)
			}

			if pf := builder.Preflight(batch, cfg.MinFilingDate, time.Now().UTC()); pf != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "preflight failed:\n  %s\n", strings.Join(pf.Reasons, "\n  "))
				return fmt.Errorf("%d preflight violation(s)", len(pf.Reasons))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d activity(ies), form type %s\n", len(batch.Activities), batch.FormTypeCode)
			return nil
		},
	}
}

// newCheckCmd verifies transport connectivity by listing the response
// directory, the least intrusive authenticated operation available.
func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-connection",
		Short: "Verify transport connectivity and credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			tc, err := bootstrap.NewTransport(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.TransportTimeout)
			defer cancel()

			names, err := tc.List(ctx, "inbound")
			if err != nil {
				return fmt.Errorf("list responses: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s transport reachable, %d file(s) in response directory\n",
				cfg.TransportBackend, len(names))
			return nil
		},
	}
}

// newFileCmd runs a one-shot filing for a report JSON file against the
// configured store and transport.
func newFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "file <report.json>",
		Short: "File a report through the full pipeline once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			report, err := loadReport(args[0])
			if err != nil {
				return err
			}

			app, err := bootstrap.New(cfg, logger, false)
			if err != nil {
				return err
			}
			defer app.Close()

			app.Reports.Put(report)

			sub, err := app.Service.File(cmd.Context(), report.ID)
			if sub != nil {
				printSubmission(cmd, sub)
			}
			return err
		},
	}
}

// newPollCmd runs one poll pass for a submitted report. The stored schedule
// still applies; a poll before the next scheduled time is a no-op.
func newPollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll <report-id>",
		Short: "Poll once for responses to a submitted report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			reportID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("report id: %w", err)
			}

			app, err := bootstrap.New(cfg, logger, false)
			if err != nil {
				return err
			}
			defer app.Close()

			sub, err := app.Service.Poll(cmd.Context(), reportID)
			if sub != nil {
				printSubmission(cmd, sub)
			}
			return err
		},
	}
}

func printSubmission(cmd *cobra.Command, sub *models.Submission) {
	fmt.Fprintf(cmd.OutOrStdout(), "report %s: %s", sub.ReportID, sub.Status)
	if sub.Filename != "" {
		fmt.Fprintf(cmd.OutOrStdout(), " (%s)", sub.Filename)
	}
	if sub.ReceiptID != "" {
		fmt.Fprintf(cmd.OutOrStdout(), " receipt=%s", sub.ReceiptID)
	}
	if sub.ReviewReason != "" {
		fmt.Fprintf(cmd.OutOrStdout(), " review: %s", sub.ReviewReason)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	for _, reason := range sub.Errors {
		fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", reason)
	}
}
