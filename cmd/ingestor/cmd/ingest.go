package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang-statement-ingestion/cmd/ingestor/config"
	"golang-statement-ingestion/internal/ingest"
	"golang-statement-ingestion/internal/reporter"
	"golang-statement-ingestion/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the ingest command
var (
	statementFiles []string
	inputFormat    string
	profileName    string
	profileFile    string
	strictMode     bool
	concurrency    int
	preferLatest   bool
	seedFile       string
	seedChecksums  []string
	outputFormat   string
	outputFile     string
	showProgress   bool
	timeoutSecs    int
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Normalize and deduplicate bank statement files",
	Long: `Ingest parses one or more statement files, normalizes every row into
the canonical transaction shape, and collapses duplicates by checksum.

Malformed rows become diagnostics on the report rather than aborting the
run; use --strict to stop at the first malformed row instead.

Examples:
  # Single CSV with the standard profile
  ingestor ingest --files statements.csv

  # Multiple files, mixed formats, JSON output
  ingestor ingest --files jan.csv,feb.ofx --output-format json --output-file result.json

  # Custom provider profile document
  ingestor ingest --files export.csv --profile-file profiles/mybank.json

  # Drop transactions already ingested in earlier runs
  ingestor ingest --files feb.csv --seed-file ingested.checksums

  # Fail fast on any malformed row
  ingestor ingest --files statements.csv --strict`,

	PreRunE: validateIngestFlags,
	RunE:    runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	// Required flags
	ingestCmd.Flags().StringSliceVarP(&statementFiles, "files", "i", []string{}, "comma-separated paths to statement files (required)")

	// Input flags
	ingestCmd.Flags().StringVar(&inputFormat, "format", "auto", "input format: csv, ofx, auto")
	ingestCmd.Flags().StringVarP(&profileName, "profile", "p", "standard", "predefined provider profile for CSV input")
	ingestCmd.Flags().StringVar(&profileFile, "profile-file", "", "path to a provider profile document (JSON), overrides --profile")

	// Pipeline flags
	ingestCmd.Flags().BoolVar(&strictMode, "strict", false, "stop at the first malformed row instead of collecting diagnostics")
	ingestCmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "number of files parsed concurrently")
	ingestCmd.Flags().BoolVar(&preferLatest, "prefer-latest", true, "resolve duplicate ties between synthesized IDs in favor of the most recent observation")
	ingestCmd.Flags().StringVar(&seedFile, "seed-file", "", "file of checksums from earlier runs (one per line)")
	ingestCmd.Flags().StringSliceVar(&seedChecksums, "seed-checksums", []string{}, "comma-separated checksums from earlier runs")

	// Output flags
	ingestCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	ingestCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")

	// UI flags
	ingestCmd.Flags().BoolVar(&showProgress, "progress", false, "show progress indicators")
	ingestCmd.Flags().IntVar(&timeoutSecs, "timeout", 0, "overall timeout in seconds (0 disables)")

	// Mark required flags
	ingestCmd.MarkFlagRequired("files")

	// Bind flags to viper
	viper.BindPFlag("files", ingestCmd.Flags().Lookup("files"))
	viper.BindPFlag("format", ingestCmd.Flags().Lookup("format"))
	viper.BindPFlag("profile", ingestCmd.Flags().Lookup("profile"))
	viper.BindPFlag("profile-file", ingestCmd.Flags().Lookup("profile-file"))
	viper.BindPFlag("strict", ingestCmd.Flags().Lookup("strict"))
	viper.BindPFlag("concurrency", ingestCmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("prefer-latest", ingestCmd.Flags().Lookup("prefer-latest"))
	viper.BindPFlag("seed-file", ingestCmd.Flags().Lookup("seed-file"))
	viper.BindPFlag("seed-checksums", ingestCmd.Flags().Lookup("seed-checksums"))
	viper.BindPFlag("output-format", ingestCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", ingestCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("progress", ingestCmd.Flags().Lookup("progress"))
	viper.BindPFlag("timeout", ingestCmd.Flags().Lookup("timeout"))
}

func validateIngestFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file)
	statementFiles = viper.GetStringSlice("files")
	inputFormat = viper.GetString("format")
	profileName = viper.GetString("profile")
	profileFile = viper.GetString("profile-file")
	strictMode = viper.GetBool("strict")
	concurrency = viper.GetInt("concurrency")
	preferLatest = viper.GetBool("prefer-latest")
	seedFile = viper.GetString("seed-file")
	seedChecksums = viper.GetStringSlice("seed-checksums")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	showProgress = viper.GetBool("progress")
	timeoutSecs = viper.GetInt("timeout")

	if len(statementFiles) == 0 {
		return fmt.Errorf("at least one statement file is required")
	}

	for i, file := range statementFiles {
		if err := validateFileExists(file, fmt.Sprintf("statement file %d", i+1)); err != nil {
			return err
		}
	}

	if profileFile != "" {
		if err := validateFileExists(profileFile, "profile document"); err != nil {
			return err
		}
	}

	if seedFile != "" {
		if err := validateFileExists(seedFile, "seed checksum file"); err != nil {
			return err
		}
	}

	appConfig := buildAppConfig()
	if err := appConfig.Validate(); err != nil {
		return err
	}

	return nil
}

func buildAppConfig() *config.AppConfig {
	appConfig := config.DefaultAppConfig()
	appConfig.Files = statementFiles
	appConfig.Format = inputFormat
	appConfig.ProfileName = profileName
	appConfig.ProfileFile = profileFile
	appConfig.Strict = strictMode
	appConfig.Concurrency = concurrency
	appConfig.PreferLatest = preferLatest
	appConfig.SeedFile = seedFile
	appConfig.SeedChecksums = seedChecksums
	appConfig.OutputFormat = outputFormat
	appConfig.OutputFile = outputFile
	if verbose {
		appConfig.LogLevel = "debug"
	}
	return appConfig
}

func runIngest(cmd *cobra.Command, args []string) error {
	errorHandler := NewCLIErrorHandler()

	exitCode := func() int {
		appConfig := buildAppConfig()

		log, err := logger.NewLogger(appConfig.LoggerConfig())
		if err != nil {
			return errorHandler.HandleError(err)
		}
		logger.SetGlobalLogger(log)

		pipelineConfig, err := appConfig.BuildPipelineConfig()
		if err != nil {
			return errorHandler.HandleError(err)
		}
		if showProgress {
			pipelineConfig.ProgressInterval = 2 * time.Second
		}

		request, err := appConfig.BuildRequest()
		if err != nil {
			return errorHandler.HandleError(err)
		}

		service, err := ingest.NewService(pipelineConfig)
		if err != nil {
			return errorHandler.HandleError(err)
		}

		ctx := context.Background()
		if timeoutSecs > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSecs)*time.Second)
			defer cancel()
		}

		result, err := service.ProcessIngestion(ctx, request)
		if err != nil {
			return errorHandler.HandleError(err)
		}

		if err := writeReport(result, appConfig); err != nil {
			return errorHandler.HandleError(err)
		}

		return 0
	}()

	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

// writeReport renders the ingestion result to the configured destination
func writeReport(result *ingest.IngestionResult, appConfig *config.AppConfig) error {
	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{
		Format:             reporter.ReportFormat(appConfig.OutputFormat),
		IncludeDiagnostics: true,
		IncludeGroups:      true,
		MaxDiagnostics:     10,
	})
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if appConfig.OutputFile != "" {
		f, err := os.Create(appConfig.OutputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	return generator.GenerateReport(result, w)
}

// validateFileExists checks that a flag-supplied file exists and is readable
func validateFileExists(path, description string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s not found: %s", description, path)
		}
		if os.IsPermission(err) {
			return fmt.Errorf("permission denied reading %s: %s", description, path)
		}
		return fmt.Errorf("cannot access %s %s: %w", description, path, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, path)
	}

	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	return nil
}
