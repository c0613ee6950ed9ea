// Package reporter renders ingestion results for people and machines:
// a console summary for operators, JSON for downstream systems, and CSV for
// spreadsheet review of the canonical transaction stream.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang-statement-ingestion/internal/ingest"
	"golang-statement-ingestion/internal/models"
	"golang-statement-ingestion/pkg/errors"
	"golang-statement-ingestion/pkg/logger"
)

// ReportFormat represents the output format for reports
type ReportFormat string

const (
	FormatConsole ReportFormat = "console"
	FormatJSON    ReportFormat = "json"
	FormatCSV     ReportFormat = "csv"
)

// ReportConfig holds configuration for report generation
type ReportConfig struct {
	Format ReportFormat

	// IncludeDiagnostics adds the per-row diagnostics to the report.
	IncludeDiagnostics bool

	// IncludeGroups adds the duplicate group detail to the report.
	IncludeGroups bool

	// MaxDiagnostics caps how many diagnostics the console report prints;
	// zero means all.
	MaxDiagnostics int
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:             FormatConsole,
		IncludeDiagnostics: true,
		IncludeGroups:      true,
		MaxDiagnostics:     10,
	}
}

// Validate checks if the report configuration is valid
func (c *ReportConfig) Validate() error {
	switch c.Format {
	case FormatConsole, FormatJSON, FormatCSV:
	default:
		return fmt.Errorf("invalid report format: %s", c.Format)
	}
	if c.MaxDiagnostics < 0 {
		return fmt.Errorf("max diagnostics cannot be negative, got %d", c.MaxDiagnostics)
	}
	return nil
}

// ReportGenerator renders ingestion results
type ReportGenerator struct {
	config *ReportConfig
	logger logger.Logger
}

// NewReportGenerator creates a report generator
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "report_generator_setup", err)
	}

	return &ReportGenerator{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("reporter"),
	}, nil
}

// GenerateReport writes the ingestion result to the writer in the
// configured format
func (rg *ReportGenerator) GenerateReport(result *ingest.IngestionResult, w io.Writer) error {
	if result == nil {
		return errors.InternalError(errors.CodeUnexpectedError, "report_generation",
			fmt.Errorf("result cannot be nil"))
	}

	rg.logger.WithField("format", rg.config.Format).Debug("Generating ingestion report")

	switch rg.config.Format {
	case FormatJSON:
		return rg.writeJSON(result, w)
	case FormatCSV:
		return rg.writeCSV(result, w)
	default:
		return rg.writeConsole(result, w)
	}
}

// jsonReport is the machine-readable report shape
type jsonReport struct {
	Summary     jsonSummary                         `json:"summary"`
	Transactions []*models.NormalizedBankTransaction `json:"transactions"`
	Groups      interface{}                         `json:"duplicate_groups,omitempty"`
	Diagnostics interface{}                         `json:"diagnostics,omitempty"`
	Files       []*ingest.FileStats                 `json:"files"`
}

type jsonSummary struct {
	Input       int    `json:"input"`
	Kept        int    `json:"kept"`
	Dropped     int    `json:"dropped"`
	SeedDropped int    `json:"seed_dropped,omitempty"`
	Diagnostics int    `json:"diagnostics"`
	ProcessedAt string `json:"processed_at"`
	Duration    string `json:"duration"`
}

func (rg *ReportGenerator) writeJSON(result *ingest.IngestionResult, w io.Writer) error {
	report := jsonReport{
		Summary: jsonSummary{
			Input:       result.Outcome.Metrics.Input,
			Kept:        result.Outcome.Metrics.Kept,
			Dropped:     result.Outcome.Metrics.Dropped,
			SeedDropped: result.Outcome.Metrics.SeedDropped,
			Diagnostics: len(result.Diagnostics),
			ProcessedAt: result.ProcessedAt.Format("2006-01-02T15:04:05Z07:00"),
			Duration:    result.Duration.String(),
		},
		Transactions: result.Outcome.Transactions,
		Files:        result.Files,
	}

	if rg.config.IncludeGroups && len(result.Outcome.Groups) > 0 {
		report.Groups = result.Outcome.Groups
	}
	if rg.config.IncludeDiagnostics && len(result.Diagnostics) > 0 {
		report.Diagnostics = result.Diagnostics
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "json_report_encoding", err)
	}
	return nil
}

// csvHeader is the column order of the CSV report
var csvHeader = []string{
	"transaction_id", "account_id", "amount_minor", "currency",
	"posted_date", "transaction_date", "description", "source_reference",
	"checksum", "is_void",
}

func (rg *ReportGenerator) writeCSV(result *ingest.IngestionResult, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(csvHeader); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "csv_report_writing", err)
	}

	for _, tx := range result.Outcome.Transactions {
		row := []string{
			tx.TransactionID,
			tx.AccountID,
			strconv.FormatInt(tx.AmountMinor, 10),
			tx.Currency,
			tx.PostedDate.Format(models.DateLayout),
			tx.TransactionDate.Format(models.DateLayout),
			tx.Description,
			tx.SourceReference,
			tx.Checksum,
			strconv.FormatBool(tx.IsVoid),
		}
		if err := writer.Write(row); err != nil {
			return errors.InternalError(errors.CodeUnexpectedError, "csv_report_writing", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "csv_report_writing", err)
	}
	return nil
}

func (rg *ReportGenerator) writeConsole(result *ingest.IngestionResult, w io.Writer) error {
	metrics := result.Outcome.Metrics

	fmt.Fprintln(w, "Statement Ingestion Report")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "Processed at: %s\n", result.ProcessedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Duration:     %s\n", result.Duration)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  Input transactions:  %d\n", metrics.Input)
	fmt.Fprintf(w, "  Kept (canonical):    %d\n", metrics.Kept)
	fmt.Fprintf(w, "  Dropped duplicates:  %d\n", metrics.Dropped)
	if metrics.SeedDropped > 0 {
		fmt.Fprintf(w, "  Historical matches:  %d\n", metrics.SeedDropped)
	}
	fmt.Fprintf(w, "  Diagnostics:         %d\n", len(result.Diagnostics))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Files:")
	for _, fs := range result.Files {
		status := "ok"
		if fs.Failed {
			status = "FAILED"
		}
		fmt.Fprintf(w, "  %-40s %-6s parsed=%d normalized=%d rejected=%d\n",
			fs.Source, status, fs.Parsed, fs.Normalized, fs.Rejected)
	}

	if rg.config.IncludeGroups && len(result.Outcome.Groups) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Duplicate groups (%d):\n", len(result.Outcome.Groups))
		for _, group := range result.Outcome.Groups {
			survivor := "none (historical)"
			if group.Canonical != nil {
				survivor = group.Canonical.TransactionID
			}
			fmt.Fprintf(w, "  %s  occurrences=%d survivor=%s discarded=%s\n",
				shortChecksum(group.Checksum), len(group.Occurrences), survivor,
				strings.Join(group.DiscardedIDs, ","))
		}
	}

	if rg.config.IncludeDiagnostics && len(result.Diagnostics) > 0 {
		fmt.Fprintln(w)
		limit := len(result.Diagnostics)
		if rg.config.MaxDiagnostics > 0 && rg.config.MaxDiagnostics < limit {
			limit = rg.config.MaxDiagnostics
		}
		fmt.Fprintf(w, "Diagnostics (%d of %d):\n", limit, len(result.Diagnostics))
		for _, diag := range result.Diagnostics[:limit] {
			if diag.Line > 0 {
				fmt.Fprintf(w, "  [%s] %s:%d %s\n", diag.Stage, diag.Source, diag.Line, diag.Message)
			} else {
				fmt.Fprintf(w, "  [%s] %s %s\n", diag.Stage, diag.Source, diag.Message)
			}
		}
	}

	return nil
}

// shortChecksum abbreviates a checksum for console display
func shortChecksum(checksum string) string {
	if len(checksum) > 12 {
		return checksum[:12]
	}
	return checksum
}
