package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openbi/kbic/pkg/convert"
	"github.com/openbi/kbic/pkg/observability"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	convertTarget     string
	convertDialect    string
	convertStrategy   string
	convertCatalog    string
	convertSchema     string
	convertStrict     bool
	convertSkipStruct bool
	convertOutputDir  string
)

//nolint:gochecknoglobals // Cobra commands are typically global
var convertCmd = &cobra.Command{
	Use:   "convert [files...]",
	Short: "Convert KBI documents to a target format",
	Long: `Convert one or more KBI YAML documents to the target format.
Output is written to stdout, or one file per input with --output-dir.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().StringVarP(&convertTarget, "target", "t", "dax", "target format (dax, sql, metrics)")
	convertCmd.Flags().StringVar(&convertDialect, "dialect", "", "SQL dialect (standard, postgresql, mysql, sqlserver, snowflake, bigquery, databricks)")
	convertCmd.Flags().StringVar(&convertStrategy, "strategy", "", "DAX generation strategy (basic, smart, tree)")
	convertCmd.Flags().StringVar(&convertCatalog, "catalog", "", "catalog for metrics-store sources")
	convertCmd.Flags().StringVar(&convertSchema, "schema", "", "schema for metrics-store sources")
	convertCmd.Flags().BoolVar(&convertStrict, "strict", false, "fail on unresolved variables and per-measure errors")
	convertCmd.Flags().BoolVar(&convertSkipStruct, "skip-structures", false, "do not expand structure compositions")
	convertCmd.Flags().StringVarP(&convertOutputDir, "output-dir", "o", "", "write one output file per input instead of stdout")
}

func runConvert(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	config, err := LoadCLIConfig(cfgFile)
	if err != nil {
		return err
	}

	if config.MetricsAddr != "" {
		observability.StartMetricsServer(config.MetricsAddr)
	}

	target, err := convert.ParseFormat(convertTarget)
	if err != nil {
		return err
	}

	cfg := buildConvertConfig(config)

	registry := convert.NewDefaultRegistry(logger)

	requests := make([]*convert.Request, 0, len(args))

	for _, path := range args {
		data, readErr := os.ReadFile(path) //nolint:gosec // User-provided input file path
		if readErr != nil {
			return fmt.Errorf("failed to read %s: %w", path, readErr)
		}

		requests = append(requests, &convert.Request{
			SourceFormat: convert.FormatYAML,
			TargetFormat: target,
			InputData:    data,
			Config:       cfg,
		})
	}

	responses, failures := convert.ConvertBatch(cmd.Context(), registry, requests, cfg.Concurrency)

	for _, failure := range failures {
		logger.WithError(failure.Err).WithField("file", args[failure.Index]).Error("Conversion failed")
	}

	for i, resp := range responses {
		if resp == nil {
			continue
		}

		for _, warning := range resp.Warnings {
			logger.WithField("file", args[i]).Warn(warning)
		}

		if err := writeOutput(args[i], target, resp); err != nil {
			return err
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("%d of %d conversions failed", len(failures), len(requests))
	}

	return nil
}

func buildConvertConfig(config *CLIConfig) convert.Config {
	cfg := config.Convert

	if convertDialect != "" {
		cfg.Dialect = convertDialect
	}
	if convertStrategy != "" {
		cfg.Strategy = convertStrategy
	}
	if convertCatalog != "" {
		cfg.Catalog = convertCatalog
	}
	if convertSchema != "" {
		cfg.Schema = convertSchema
	}
	if convertStrict {
		cfg.Strict = true
	}
	if convertSkipStruct {
		skip := false
		cfg.ProcessStructures = &skip
	}

	return cfg
}

var outputExtensions = map[convert.Format]string{
	convert.FormatDAX:     ".dax",
	convert.FormatSQL:     ".sql",
	convert.FormatMetrics: ".yml",
}

func writeOutput(inputPath string, target convert.Format, resp *convert.Response) error {
	if convertOutputDir == "" {
		fmt.Printf("# %s (%s measures: %d)\n%s\n\n", inputPath, target, resp.Metadata.Measures, resp.OutputData.Formatted)

		return nil
	}

	if err := os.MkdirAll(convertOutputDir, 0o750); err != nil {
		return err
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outPath := filepath.Join(convertOutputDir, base+outputExtensions[target])

	if err := os.WriteFile(outPath, []byte(resp.OutputData.Formatted), 0o600); err != nil {
		return err
	}

	logger.WithField("output", outPath).Info("Wrote conversion output")

	return nil
}
