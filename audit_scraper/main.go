package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"sparcs/logging"
)

const envPrefix = "SPARCS"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCommand builds the scraper. The bare command scrapes the audit
// reports; `compliance` pulls the compliance PDFs and `all` runs both.
// Every flag is persistent so each subcommand sees the same viper keys, and
// may also be set through SPARCS_<FLAG>.
func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "audit_scraper",
		Short:         "Download SPARCS audit report tables as CSV files",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: runWith(v, func(ctx context.Context, s *Scraper) error {
			_, err := s.Run(ctx, v.GetString("url"), v.GetString("out-dir"))
			return err
		}),
	}

	flags := root.PersistentFlags()
	flags.String("url", defaultListingURL, "Listing page that links to the audit reports")
	flags.String("out-dir", defaultOutDir, "Directory receiving one CSV per report")
	flags.String("compliance-url", defaultComplianceURL, "Page that links to the compliance PDFs")
	flags.String("pdf-dir", defaultPDFDir, "Directory receiving the compliance PDFs")
	flags.Int("workers", defaultWorkers, "Pages fetched concurrently")
	flags.Float64("rate", defaultRate, "Requests per second (0 = unlimited)")
	flags.Duration("timeout", defaultTimeout, "Per-request timeout")
	flags.String("log-level", "info", "debug|info|warn|error")
	flags.String("log-format", string(logging.FormatConsole), "console|json")
	v.BindPFlags(flags)

	root.AddCommand(
		&cobra.Command{
			Use:   "compliance",
			Short: "Download the yearly compliance report PDFs",
			Args:  cobra.NoArgs,
			RunE: runWith(v, func(ctx context.Context, s *Scraper) error {
				_, err := s.PullCompliancePDFs(ctx, v.GetString("compliance-url"), v.GetString("pdf-dir"))
				return err
			}),
		},
		&cobra.Command{
			Use:   "all",
			Short: "Compliance PDFs, then audit reports; stops at the first failure",
			Args:  cobra.NoArgs,
			RunE: runWith(v, func(ctx context.Context, s *Scraper) error {
				return s.RunPipeline(ctx, PipelineConfig{
					ComplianceURL: v.GetString("compliance-url"),
					PDFDir:        v.GetString("pdf-dir"),
					AuditURL:      v.GetString("url"),
					OutDir:        v.GetString("out-dir"),
				})
			}),
		},
	)
	return root
}

// runWith builds the logger and Scraper from v before calling fn.
func runWith(v *viper.Viper, fn func(context.Context, *Scraper) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		logger, err := logging.New(v.GetString("log-level"), logging.Format(v.GetString("log-format")))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return err
		}
		defer logger.Sync()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		s := NewScraper(&http.Client{Timeout: v.GetDuration("timeout")},
			v.GetInt("workers"), v.GetFloat64("rate"), logger)
		if err := fn(ctx, s); err != nil {
			logger.Error("scrape failed", zap.Error(err))
			return err
		}
		return nil
	}
}
