package parsers

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang-statement-ingestion/internal/models"
	"golang-statement-ingestion/internal/profiles"
	"golang-statement-ingestion/pkg/errors"
	"golang-statement-ingestion/pkg/logger"
)

// CSVParser extracts raw records from a provider CSV export using a
// resolved profile
type CSVParser struct {
	profile *profiles.CsvProfile
	opts    *ParserOptions
	logger  logger.Logger
}

// NewCSVParser creates a CSV parser for the given resolved profile
func NewCSVParser(profile *profiles.CsvProfile, opts *ParserOptions) (*CSVParser, error) {
	if profile == nil {
		return nil, errors.ProfileError(errors.CodeInvalidProfile, "profile", nil,
			fmt.Errorf("profile cannot be nil"))
	}

	if err := profile.Validate(); err != nil {
		return nil, err
	}

	if opts == nil {
		opts = DefaultParserOptions()
	}

	if err := opts.Validate(); err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "csv_parser_setup", err)
	}

	log := logger.GetGlobalLogger().WithComponent("csv_parser")
	log.WithFields(logger.Fields{
		"profile":   profile.Name,
		"delimiter": string(profile.Delimiter),
		"strict":    opts.Strict,
	}).Debug("Created CSV parser")

	return &CSVParser{
		profile: profile,
		opts:    opts,
		logger:  log,
	}, nil
}

// columnPlan maps canonical fields to resolved column positions for one file
type columnPlan map[string]int

// ParseRecords parses a CSV statement export into raw records.
// A required profile-mapped column missing from the header fails the whole
// file before any row is emitted; malformed rows are collected in the stats
// (or stop the parse in strict mode).
func (cp *CSVParser) ParseRecords(r io.Reader, source string) ([]*models.RawRecord, *ParseStats, error) {
	return cp.ParseRecordsWithContext(context.Background(), r, source)
}

// ParseRecordsWithContext parses records with cancellation support
func (cp *CSVParser) ParseRecordsWithContext(ctx context.Context, r io.Reader, source string) ([]*models.RawRecord, *ParseStats, error) {
	cp.logger.WithFields(logger.Fields{
		"source":    source,
		"profile":   cp.profile.Name,
		"operation": "parse_records",
	}).Info("Starting CSV parsing")

	stats := NewParseStats()

	data, err := readInput(r, source, cp.opts)
	if err != nil {
		cp.logger.WithError(err).WithField("source", source).Error("Failed to read statement input")
		return nil, stats, err
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = cp.profile.Delimiter
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	line := 0

	plan, headerWidth, err := cp.resolveColumns(reader, source, &line)
	if err != nil {
		cp.logger.WithError(err).WithField("source", source).Error("Failed to resolve profile columns against header")
		return nil, stats, err
	}

	var records []*models.RawRecord

	for {
		if isCancelled(ctx) {
			cp.logger.Warn("CSV parsing was cancelled")
			return records, stats, errors.InternalError(
				errors.CodeUnexpectedError,
				"csv_parsing",
				fmt.Errorf("parsing cancelled by context"),
			)
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++

		if err != nil {
			rowErr := &RowError{
				Line:    line,
				Message: "unreadable row",
				Err:     errors.ParseError(errors.CodeMalformedRow, source, line, "", "", err),
			}
			stats.AddError(rowErr)
			if cp.opts.Strict {
				stats.Truncated = true
				stats.TruncatedLine = line
				return records, stats, rowErr.Err
			}
			continue
		}

		if cp.opts.SkipEmptyRows && isEmptyRow(row) {
			continue
		}

		if rowErr := cp.checkRowShape(row, headerWidth, plan, source, line); rowErr != nil {
			stats.AddError(rowErr)
			if cp.opts.Strict {
				stats.Truncated = true
				stats.TruncatedLine = line
				return records, stats, rowErr.Err
			}
			continue
		}

		record := models.NewRawRecord(source, line)
		for field, index := range plan {
			if index < len(row) {
				record.Set(field, strings.TrimSpace(row[index]))
			}
		}

		records = append(records, record)
		stats.RecordsParsed++
	}

	stats.TotalLines = line

	cp.logger.WithFields(logger.Fields{
		"source":         source,
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
		"error_count":    stats.ErrorCount,
	}).Info("CSV parsing completed")

	if stats.HasErrors() {
		cp.logger.WithField("sample_errors", stats.GetSampleErrors(3)).Warn("Encountered malformed rows during parsing")
	}

	return records, stats, nil
}

// resolveColumns matches the profile's source columns against the header
// row (case-insensitively) and returns the canonical-field-to-index plan.
// Headerless files resolve numeric mapping values as column indices.
func (cp *CSVParser) resolveColumns(reader *csv.Reader, source string, line *int) (columnPlan, int, error) {
	plan := make(columnPlan)

	if !cp.profile.HasHeader {
		width := 0
		for _, field := range cp.profile.MappedFields() {
			column, _ := cp.profile.SourceColumn(field)
			index, err := strconv.Atoi(column)
			if err != nil || index < 0 {
				return nil, 0, errors.ProfileError(errors.CodeInvalidProfile, field, column, err).
					WithSuggestion("headerless profiles must map fields to non-negative column indices")
			}
			plan[field] = index
			if index+1 > width {
				width = index + 1
			}
		}
		return plan, width, nil
	}

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, 0, errors.ParseError(
				errors.CodeInvalidFormat,
				source,
				1,
				"header",
				"",
				fmt.Errorf("file is empty"),
			).WithSuggestion("ensure the file contains a header row and data rows")
		}
		return nil, 0, errors.ParseError(errors.CodeInvalidFormat, source, 1, "header", "", err)
	}
	*line = 1

	headerIndex := make(map[string]int, len(header))
	for i, name := range header {
		headerIndex[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, field := range cp.profile.MappedFields() {
		column, _ := cp.profile.SourceColumn(field)
		index, ok := headerIndex[strings.ToLower(column)]
		if !ok {
			if isRequiredField(field) {
				missing = append(missing, column)
			}
			continue
		}
		plan[field] = index
	}

	if len(missing) > 0 {
		return nil, 0, errors.ParseError(
			errors.CodeMissingColumn,
			source,
			1,
			strings.Join(missing, ", "),
			"",
			nil,
		).WithSuggestion(fmt.Sprintf("the header must contain these profile-mapped columns: %s", strings.Join(missing, ", ")))
	}

	return plan, len(header), nil
}

// checkRowShape rejects rows too short to cover the mapped columns
func (cp *CSVParser) checkRowShape(row []string, headerWidth int, plan columnPlan, source string, line int) *RowError {
	for field, index := range plan {
		if index >= len(row) {
			if !isRequiredField(field) {
				continue
			}
			return &RowError{
				Line:    line,
				Field:   field,
				Message: fmt.Sprintf("row has %d columns, required column %d is missing", len(row), index+1),
				Err: errors.ParseError(errors.CodeMalformedRow, source, line, field, "",
					fmt.Errorf("row has %d of %d expected columns", len(row), headerWidth)),
			}
		}
	}
	return nil
}

func isRequiredField(field string) bool {
	for _, required := range models.RequiredFields {
		if field == required {
			return true
		}
	}
	return false
}

// ParseRecordsCallback receives batches of raw records during streaming
type ParseRecordsCallback func([]*models.RawRecord) error

// ParseRecordsStream parses records in streaming mode with batching, for
// large exports where the caller consumes rows incrementally
func (cp *CSVParser) ParseRecordsStream(
	ctx context.Context,
	r io.Reader,
	source string,
	batchSize int,
	callback ParseRecordsCallback,
) (*ParseStats, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if ctx == nil {
		ctx = context.Background()
	}

	records, stats, err := cp.ParseRecordsWithContext(ctx, r, source)
	if err != nil && len(records) == 0 {
		return stats, err
	}

	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		if cbErr := callback(records[start:end]); cbErr != nil {
			return stats, fmt.Errorf("callback error: %w", cbErr)
		}
	}

	return stats, err
}
