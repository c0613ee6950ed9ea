// Package config assembles the ingestor CLI configuration from flags,
// environment variables, and optional profile documents on disk.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang-statement-ingestion/internal/dedupe"
	"golang-statement-ingestion/internal/ingest"
	"golang-statement-ingestion/internal/parsers"
	"golang-statement-ingestion/internal/profiles"
	"golang-statement-ingestion/pkg/errors"
	"golang-statement-ingestion/pkg/logger"
)

// AppConfig holds the full runtime configuration of one ingestor invocation
type AppConfig struct {
	// Input
	Files       []string
	Format      string
	ProfileName string
	ProfileFile string

	// Pipeline behavior
	Strict        bool
	Concurrency   int
	PreferLatest  bool
	SeedFile      string
	SeedChecksums []string

	// Output
	OutputFormat string
	OutputFile   string

	// Logging
	LogLevel  string
	LogFormat string
}

// DefaultAppConfig returns the default CLI configuration
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Format:       string(ingest.FormatAuto),
		ProfileName:  "standard",
		Concurrency:  4,
		PreferLatest: true,
		OutputFormat: "console",
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// Validate checks the configuration before the pipeline runs
func (c *AppConfig) Validate() error {
	if len(c.Files) == 0 {
		return fmt.Errorf("at least one statement file is required")
	}

	switch ingest.StatementFormat(c.Format) {
	case ingest.FormatCSV, ingest.FormatOFX, ingest.FormatAuto:
	default:
		return fmt.Errorf("unsupported format %q (use csv, ofx, or auto)", c.Format)
	}

	switch c.OutputFormat {
	case "console", "json", "csv":
	default:
		return fmt.Errorf("unsupported output format %q (use console, json, or csv)", c.OutputFormat)
	}

	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}

	if c.ProfileFile == "" && c.ProfileName != "" && profiles.GetProfile(c.ProfileName) == nil {
		return fmt.Errorf("unknown profile %q", c.ProfileName)
	}

	return nil
}

// LoggerConfig builds the logger configuration
func (c *AppConfig) LoggerConfig() *logger.Config {
	return &logger.Config{
		Level:  logger.Level(c.LogLevel),
		Format: logger.Format(c.LogFormat),
		Output: logger.StderrOutput,
	}
}

// ResolveProfile returns the provider profile governing CSV input: the
// document at ProfileFile when given, otherwise the predefined profile
// named by ProfileName
func (c *AppConfig) ResolveProfile() (*profiles.CsvProfile, error) {
	if c.ProfileFile != "" {
		raw, err := os.ReadFile(c.ProfileFile)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.FileError(errors.CodeFileNotFound, c.ProfileFile, err)
			}
			return nil, errors.FileError(errors.CodeFilePermission, c.ProfileFile, err)
		}
		return profiles.ResolveProfile(raw)
	}

	profile := profiles.GetProfile(c.ProfileName)
	if profile == nil {
		return nil, errors.ProfileError(errors.CodeInvalidProfile, "profile", c.ProfileName, nil)
	}
	return profile, nil
}

// LoadSeedChecksums merges the inline seed checksums with the contents of
// the seed file (one checksum per line, blank lines and # comments ignored)
func (c *AppConfig) LoadSeedChecksums() ([]string, error) {
	checksums := append([]string(nil), c.SeedChecksums...)

	if c.SeedFile == "" {
		return checksums, nil
	}

	f, err := os.Open(c.SeedFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, c.SeedFile, err)
		}
		return nil, errors.FileError(errors.CodeFilePermission, c.SeedFile, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		checksums = append(checksums, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, c.SeedFile, err)
	}

	return checksums, nil
}

// BuildPipelineConfig assembles the ingestion pipeline configuration
func (c *AppConfig) BuildPipelineConfig() (*ingest.Config, error) {
	seeds, err := c.LoadSeedChecksums()
	if err != nil {
		return nil, err
	}

	return &ingest.Config{
		Concurrency:   c.Concurrency,
		Strict:        c.Strict,
		ParserOptions: parsers.DefaultParserOptions(),
		Dedupe: &dedupe.Config{
			PreferLatestObservation: c.PreferLatest,
		},
		SeedChecksums: seeds,
	}, nil
}

// BuildRequest assembles the ingestion request from the configured files
func (c *AppConfig) BuildRequest() (*ingest.IngestionRequest, error) {
	var profile *profiles.CsvProfile
	if c.ProfileFile != "" {
		resolved, err := c.ResolveProfile()
		if err != nil {
			return nil, err
		}
		profile = resolved
	}

	request := &ingest.IngestionRequest{
		Files: make([]ingest.StatementFile, 0, len(c.Files)),
	}

	for _, path := range c.Files {
		request.Files = append(request.Files, ingest.StatementFile{
			Path:        path,
			Format:      ingest.StatementFormat(c.Format),
			ProfileName: c.ProfileName,
			Profile:     profile,
		})
	}

	return request, nil
}
