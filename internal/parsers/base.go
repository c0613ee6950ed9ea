// Package parsers provides the format-specific readers that turn raw
// statement bytes into sequences of canonical raw records.
//
// Two formats are supported:
//   - CSV, driven by a resolved provider profile (column mapping, date
//     format, delimiter). PDF-derived statements arrive as CSV too; the
//     upstream converter owns the extraction.
//   - OFX, which carries its own schema and needs no profile.
//
// Both parsers share the same contract: records are yielded once, in file
// order, with row-level failures collected in ParseStats rather than
// aborting the file. Strict mode stops at the first malformed row after
// emitting everything parseable before it, so the caller can decide whether
// a partial file is a hard failure or a partial success.
package parsers

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang-statement-ingestion/pkg/errors"
)

// RowError represents a recoverable error on a single statement row
type RowError struct {
	Line    int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *RowError) Error() string {
	if e.Field != "" {
		if e.Err != nil {
			return fmt.Sprintf("row error at line %d (%s='%s'): %s: %v",
				e.Line, e.Field, e.Value, e.Message, e.Err)
		}
		return fmt.Sprintf("row error at line %d (%s='%s'): %s",
			e.Line, e.Field, e.Value, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("row error at line %d: %s: %v", e.Line, e.Message, e.Err)
	}
	return fmt.Sprintf("row error at line %d: %s", e.Line, e.Message)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// ParserOptions holds behavior options shared by all format parsers
type ParserOptions struct {
	// Strict stops parsing at the first malformed row instead of
	// collecting it and continuing.
	Strict bool

	SkipEmptyRows    bool
	MaxFieldSize     int
	ValidateEncoding bool
}

// DefaultParserOptions returns options with sensible defaults
func DefaultParserOptions() *ParserOptions {
	return &ParserOptions{
		Strict:           false,
		SkipEmptyRows:    true,
		MaxFieldSize:     1000000, // 1MB per field
		ValidateEncoding: true,
	}
}

// Validate checks if the parser options are valid
func (o *ParserOptions) Validate() error {
	if o.MaxFieldSize < 0 {
		return fmt.Errorf("max field size cannot be negative, got %d", o.MaxFieldSize)
	}
	return nil
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	TotalLines    int
	RecordsParsed int
	ErrorCount    int
	Errors        []*RowError

	// Truncated is set when strict mode stopped the parse before the end
	// of the file. Everything parseable before the stopping point has
	// already been emitted.
	Truncated     bool
	TruncatedLine int
}

// NewParseStats creates a new ParseStats instance
func NewParseStats() *ParseStats {
	return &ParseStats{
		Errors: make([]*RowError, 0),
	}
}

// AddError adds a row error to the parsing statistics
func (ps *ParseStats) AddError(err *RowError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors returns true if there were any row-level errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	s := fmt.Sprintf("Parsed %d lines, %d records, %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.ErrorCount)
	if ps.Truncated {
		s += fmt.Sprintf(" (stopped at line %d)", ps.TruncatedLine)
	}
	return s
}

// GetSampleErrors returns a sample of the row errors for logging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if len(ps.Errors) == 0 {
		return nil
	}

	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}

	return samples
}

// readInput drains the raw statement bytes, strips a UTF-8 BOM, and
// optionally validates the encoding of the leading lines
func readInput(r io.Reader, source string, opts *ParserOptions) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, source, err)
	}

	data = stripBOM(data)

	if opts.ValidateEncoding {
		if line, ok := firstInvalidUTF8Line(data); ok {
			return nil, errors.ParseError(
				errors.CodeEncodingError,
				source,
				line,
				"encoding",
				"",
				fmt.Errorf("invalid UTF-8 encoding detected"),
			)
		}
	}

	return data, nil
}

// stripBOM removes a leading UTF-8 byte order mark
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// firstInvalidUTF8Line scans the leading lines of the input and returns the
// 1-based line number of the first invalid one
func firstInvalidUTF8Line(data []byte) (int, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() && lineNum < 100 {
		lineNum++
		if !utf8.Valid(scanner.Bytes()) {
			return lineNum, true
		}
	}

	return 0, false
}

// isCancelled checks the parse context without blocking
func isCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// isEmptyRow checks if all fields in a row are empty or whitespace
func isEmptyRow(row []string) bool {
	for _, field := range row {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
