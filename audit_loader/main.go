package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"sparcs/logging"
)

const (
	defaultInputGlob  = "output/*.csv"
	defaultOutputFile = "audit_reports.parquet"
	envPrefix         = "SPARCS"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCommand wires the convert and load-pg subcommands. Every flag can
// also be set through SPARCS_<FLAG> (dashes become underscores).
func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "audit_loader",
		Short:         "Reshape SPARCS audit-report CSVs into Parquet and load them into PostgreSQL",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "info", "debug|info|warn|error")
	root.PersistentFlags().String("log-format", string(logging.FormatConsole), "console|json")
	v.BindPFlags(root.PersistentFlags())

	root.AddCommand(newConvertCommand(v), newLoadPgCommand(v))
	return root
}

func newConvertCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "CSV files (wide, one column per month) → long-format Parquet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(v)
			if err != nil {
				return err
			}
			defer logger.Sync()

			_, err = convert(v.GetString("input"), v.GetString("output"), logger)
			if err != nil {
				logger.Error("convert failed", zap.Error(err))
			}
			return err
		},
	}
	cmd.Flags().String("input", defaultInputGlob, "Glob matching the input CSV files")
	cmd.Flags().String("output", defaultOutputFile, "Output Parquet file (overwritten)")
	v.BindPFlags(cmd.Flags())
	return cmd
}

func newLoadPgCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load-pg",
		Short: "Parquet → PostgreSQL (audit_report_submissions)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(v)
			if err != nil {
				return err
			}
			defer logger.Sync()

			connStr := v.GetString("pg")
			if connStr == "" {
				err := fmt.Errorf("--pg (or %s_PG) is required", envPrefix)
				logger.Error("load failed", zap.Error(err))
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			_, err = loadParquetToPg(ctx, v.GetString("parquet"), connStr, v.GetInt("batch"), logger)
			if err != nil {
				logger.Error("load failed", zap.Error(err))
			}
			return err
		},
	}
	cmd.Flags().String("parquet", defaultOutputFile, "Input Parquet file")
	cmd.Flags().String("pg", "", "PostgreSQL connection string")
	cmd.Flags().Int("batch", defaultPgBatchSize, "Rows per COPY transaction")
	v.BindPFlags(cmd.Flags())
	return cmd
}

func newLogger(v *viper.Viper) (*zap.Logger, error) {
	logger, err := logging.New(v.GetString("log-level"), logging.Format(v.GetString("log-format")))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}
	return logger, nil
}
