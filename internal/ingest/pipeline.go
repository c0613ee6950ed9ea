// Package ingest orchestrates the statement ingestion pipeline: it fans
// statement files out to format parsers, normalizes the surviving rows, and
// funnels everything through one deduplication pass.
//
// The pipeline is stateless between runs. Partial success is the normal
// operating mode: malformed rows and unparseable files become diagnostics on
// the result, never silent drops, and the rest of the batch keeps flowing.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang-statement-ingestion/internal/dedupe"
	"golang-statement-ingestion/internal/models"
	"golang-statement-ingestion/internal/normalizer"
	"golang-statement-ingestion/internal/parsers"
	"golang-statement-ingestion/internal/profiles"
	"golang-statement-ingestion/pkg/errors"
	"golang-statement-ingestion/pkg/logger"
)

// StatementFormat identifies the wire format of a statement file
type StatementFormat string

const (
	FormatCSV  StatementFormat = "csv"
	FormatOFX  StatementFormat = "ofx"
	FormatAuto StatementFormat = "auto"
)

// StatementFile describes one input file of an ingestion request
type StatementFile struct {
	Path   string
	Format StatementFormat

	// ProfileName selects a predefined provider profile for CSV input.
	// Profile, when set, overrides it with an already-resolved profile.
	ProfileName string
	Profile     *profiles.CsvProfile
}

// Config holds pipeline configuration
type Config struct {
	// Concurrency caps how many files are parsed at once.
	Concurrency int

	// Strict aborts the whole run on the first malformed row or failed
	// file instead of recording diagnostics and continuing.
	Strict bool

	ParserOptions *parsers.ParserOptions
	Dedupe        *dedupe.Config

	// SeedChecksums marks transactions from earlier runs; incoming
	// matches are dropped as historical duplicates.
	SeedChecksums []string

	// ProgressInterval throttles progress logging; zero disables it.
	ProgressInterval time.Duration
}

// DefaultConfig returns the default pipeline configuration
func DefaultConfig() *Config {
	return &Config{
		Concurrency:   4,
		Strict:        false,
		ParserOptions: parsers.DefaultParserOptions(),
		Dedupe:        dedupe.DefaultConfig(),
	}
}

// Validate checks if the pipeline configuration is valid
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.ParserOptions != nil {
		if err := c.ParserOptions.Validate(); err != nil {
			return fmt.Errorf("invalid parser options: %w", err)
		}
	}
	if c.Dedupe != nil {
		if err := c.Dedupe.Validate(); err != nil {
			return fmt.Errorf("invalid dedupe config: %w", err)
		}
	}
	return nil
}

// IngestionRequest describes one pipeline run
type IngestionRequest struct {
	Files []StatementFile
}

// Validate checks if the request can be processed
func (r *IngestionRequest) Validate() error {
	if len(r.Files) == 0 {
		return fmt.Errorf("at least one statement file is required")
	}
	for i, file := range r.Files {
		if strings.TrimSpace(file.Path) == "" {
			return fmt.Errorf("file %d has an empty path", i)
		}
		switch file.Format {
		case FormatCSV, FormatOFX, FormatAuto, "":
		default:
			return fmt.Errorf("file %s has unsupported format %q", file.Path, file.Format)
		}
	}
	return nil
}

// DiagnosticStage identifies where in the pipeline a diagnostic arose
type DiagnosticStage string

const (
	StageFile          DiagnosticStage = "file"
	StageParse         DiagnosticStage = "parse"
	StageNormalization DiagnosticStage = "normalization"
)

// RowDiagnostic records one non-fatal failure with its provenance
type RowDiagnostic struct {
	Source  string          `json:"source"`
	Line    int             `json:"line,omitempty"`
	Stage   DiagnosticStage `json:"stage"`
	Message string          `json:"message"`
}

// FileStats summarizes one file's trip through parse and normalization
type FileStats struct {
	Source     string              `json:"source"`
	Format     StatementFormat     `json:"format"`
	Profile    string              `json:"profile,omitempty"`
	Parse      *parsers.ParseStats `json:"-"`
	Parsed     int                 `json:"parsed"`
	Normalized int                 `json:"normalized"`
	Rejected   int                 `json:"rejected"`
	Failed     bool                `json:"failed,omitempty"`
}

// IngestionResult is the outcome of one pipeline run
type IngestionResult struct {
	Outcome     *dedupe.Outcome  `json:"outcome"`
	Diagnostics []*RowDiagnostic `json:"diagnostics,omitempty"`
	Files       []*FileStats     `json:"files"`
	ProcessedAt time.Time        `json:"processed_at"`
	Duration    time.Duration    `json:"duration"`
}

// Service runs ingestion requests
type Service struct {
	config *Config
	logger logger.Logger
}

// NewService creates an ingestion service
func NewService(config *Config) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.ParserOptions == nil {
		config.ParserOptions = parsers.DefaultParserOptions()
	}
	config.ParserOptions.Strict = config.Strict

	if err := config.Validate(); err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "ingest_service_setup", err)
	}

	return &Service{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("ingest_service"),
	}, nil
}

// fileResult carries one file's contribution back to the merge step
type fileResult struct {
	transactions []*models.NormalizedBankTransaction
	diagnostics  []*RowDiagnostic
	stats        *FileStats
	err          *errors.IngestError
}

// ProcessIngestion runs the full pipeline for a request: concurrent per-file
// parse and normalization, a deterministic merge in file-submission order,
// then a single deduplication pass over the merged stream.
func (s *Service) ProcessIngestion(ctx context.Context, request *IngestionRequest) (*IngestionResult, error) {
	start := time.Now()

	if request == nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "ingestion",
			fmt.Errorf("request cannot be nil"))
	}
	if err := request.Validate(); err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "ingestion", err)
	}

	s.logger.WithFields(logger.Fields{
		"files":       len(request.Files),
		"concurrency": s.config.Concurrency,
		"strict":      s.config.Strict,
	}).Info("Starting ingestion run")

	progress := logger.NewProgressTracker(logger.ProgressConfig{
		Operation:   "statement_files",
		Total:       int64(len(request.Files)),
		LogInterval: s.config.ProgressInterval,
		Logger:      s.logger,
	})

	results := make([]*fileResult, len(request.Files))
	semaphore := make(chan struct{}, s.config.Concurrency)
	var wg sync.WaitGroup

	for i, file := range request.Files {
		wg.Add(1)
		go func(index int, file StatementFile) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			results[index] = s.processFile(ctx, file)
			progress.Increment()
		}(i, file)
	}

	wg.Wait()
	progress.Complete()

	// Merge in file-submission order so the dedupe observation order, and
	// with it the output order, is deterministic across runs.
	var merged []*models.NormalizedBankTransaction
	result := &IngestionResult{
		Files:       make([]*FileStats, 0, len(results)),
		ProcessedAt: start.UTC(),
	}

	for _, fr := range results {
		result.Files = append(result.Files, fr.stats)
		result.Diagnostics = append(result.Diagnostics, fr.diagnostics...)

		if fr.err != nil {
			if s.config.Strict {
				result.Duration = time.Since(start)
				return result, fr.err
			}
			continue
		}
		merged = append(merged, fr.transactions...)
	}

	engine, err := dedupe.NewEngine(s.config.Dedupe)
	if err != nil {
		return nil, err
	}
	engine.Seed(s.config.SeedChecksums)

	outcome, err := engine.Dedupe(merged)
	if err != nil {
		return nil, err
	}

	result.Outcome = outcome
	result.Duration = time.Since(start)

	s.logger.WithFields(logger.Fields{
		"files":       len(request.Files),
		"input":       outcome.Metrics.Input,
		"kept":        outcome.Metrics.Kept,
		"dropped":     outcome.Metrics.Dropped,
		"diagnostics": len(result.Diagnostics),
		"duration":    result.Duration.String(),
	}).Info("Ingestion run completed")

	return result, nil
}

// processFile parses and normalizes one statement file
func (s *Service) processFile(ctx context.Context, file StatementFile) *fileResult {
	fr := &fileResult{
		stats: &FileStats{Source: file.Path},
	}

	fail := func(err *errors.IngestError) *fileResult {
		fr.err = err
		fr.stats.Failed = true
		fr.diagnostics = append(fr.diagnostics, &RowDiagnostic{
			Source:  file.Path,
			Stage:   StageFile,
			Message: err.Error(),
		})
		s.logger.WithError(err).WithField("source", file.Path).Error("Statement file failed")
		return fr
	}

	f, err := os.Open(file.Path)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return fail(errors.FileError(errors.CodeFileNotFound, file.Path, err))
		case os.IsPermission(err):
			return fail(errors.FileError(errors.CodeFilePermission, file.Path, err))
		default:
			return fail(errors.FileError(errors.CodeFileCorrupted, file.Path, err))
		}
	}
	defer f.Close()

	format := file.Format
	if format == "" || format == FormatAuto {
		format = detectFormat(file.Path)
	}
	fr.stats.Format = format

	profile, ierr := s.resolveProfile(file, format)
	if ierr != nil {
		return fail(ierr)
	}
	fr.stats.Profile = profile.Name

	var (
		records    []*models.RawRecord
		parseStats *parsers.ParseStats
		parseErr   error
	)

	err = logger.TimedOperation(fmt.Sprintf("parse %s", filepath.Base(file.Path)), s.logger, func() error {
		switch format {
		case FormatOFX:
			parser, perr := parsers.NewOFXParser(s.config.ParserOptions)
			if perr != nil {
				return perr
			}
			records, parseStats, parseErr = parser.ParseRecordsWithContext(ctx, f, file.Path)
		default:
			parser, perr := parsers.NewCSVParser(profile, s.config.ParserOptions)
			if perr != nil {
				return perr
			}
			records, parseStats, parseErr = parser.ParseRecordsWithContext(ctx, f, file.Path)
		}
		return nil
	})
	if err != nil {
		return fail(errors.WrapIfNeeded(err, errors.CategoryInternal, errors.CodeUnexpectedError, "parser setup failed"))
	}

	fr.stats.Parse = parseStats
	if parseStats != nil {
		fr.stats.Parsed = parseStats.RecordsParsed
		for _, rowErr := range parseStats.Errors {
			fr.diagnostics = append(fr.diagnostics, &RowDiagnostic{
				Source:  file.Path,
				Line:    rowErr.Line,
				Stage:   StageParse,
				Message: rowErr.Error(),
			})
		}
	}

	if parseErr != nil {
		ierr := errors.WrapIfNeeded(parseErr, errors.CategoryParse, errors.CodeInvalidFormat, "statement parse failed")
		// In strict mode a truncating row error is fatal for the run; in
		// lenient mode only whole-file failures (nothing parseable) are.
		if s.config.Strict || len(records) == 0 {
			return fail(ierr)
		}
	}

	norm, nerr := normalizer.NewNormalizer(profile)
	if nerr != nil {
		return fail(errors.WrapIfNeeded(nerr, errors.CategoryProfile, errors.CodeInvalidProfile, "normalizer setup failed"))
	}

	transactions, rejected := norm.NormalizeAll(records)
	fr.stats.Normalized = len(transactions)
	fr.stats.Rejected = len(rejected)

	for _, rec := range rejected {
		fr.diagnostics = append(fr.diagnostics, &RowDiagnostic{
			Source:  rec.Record.Source,
			Line:    rec.Record.Line,
			Stage:   StageNormalization,
			Message: rec.Err.Error(),
		})
	}

	if s.config.Strict && len(rejected) > 0 {
		fr.err = rejected[0].Err
		fr.stats.Failed = true
		return fr
	}

	fr.transactions = transactions
	return fr
}

// resolveProfile picks the profile governing a file's normalization
func (s *Service) resolveProfile(file StatementFile, format StatementFormat) (*profiles.CsvProfile, *errors.IngestError) {
	if format == FormatOFX {
		return profiles.OFXProfile(), nil
	}

	if file.Profile != nil {
		if err := file.Profile.Validate(); err != nil {
			return nil, errors.WrapIfNeeded(err, errors.CategoryProfile, errors.CodeInvalidProfile, "invalid profile")
		}
		return file.Profile, nil
	}

	name := file.ProfileName
	if name == "" {
		name = "standard"
	}
	profile := profiles.GetProfile(name)
	if profile == nil {
		return nil, errors.ProfileError(errors.CodeInvalidProfile, "profile", name, nil).
			WithSuggestion(fmt.Sprintf("use one of the predefined profiles: %s", strings.Join(profileNames(), ", ")))
	}
	return profile, nil
}

func profileNames() []string {
	all := profiles.ListProfiles()
	names := make([]string, 0, len(all))
	for _, p := range all {
		names = append(names, p.Name)
	}
	return names
}

// detectFormat infers the statement format from the file extension
func detectFormat(path string) StatementFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ofx", ".qfx":
		return FormatOFX
	default:
		return FormatCSV
	}
}
