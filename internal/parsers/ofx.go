package parsers

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"golang-statement-ingestion/internal/models"
	"golang-statement-ingestion/pkg/errors"
	"golang-statement-ingestion/pkg/logger"
)

// OFXParser extracts raw records from OFX statement downloads. OFX embeds
// its schema in the format, so no provider profile is needed; the implicit
// profiles.OFXProfile governs date layout and amount scaling downstream.
//
// The parser handles the SGML flavor of OFX (no closing tags on leaf
// elements), which is what banks actually serve; the XML flavor parses the
// same way since closing leaf tags are simply ignored.
type OFXParser struct {
	opts   *ParserOptions
	logger logger.Logger
}

// NewOFXParser creates an OFX statement parser
func NewOFXParser(opts *ParserOptions) (*OFXParser, error) {
	if opts == nil {
		opts = DefaultParserOptions()
	}

	if err := opts.Validate(); err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "ofx_parser_setup", err)
	}

	log := logger.GetGlobalLogger().WithComponent("ofx_parser")
	log.WithField("strict", opts.Strict).Debug("Created OFX parser")

	return &OFXParser{
		opts:   opts,
		logger: log,
	}, nil
}

// ofxTransaction accumulates the fields of one STMTTRN block
type ofxTransaction struct {
	startLine int
	fitID     string
	amount    string
	posted    string
	user      string
	name      string
	memo      string
	refNum    string
	currency  string
}

// ParseRecords parses an OFX statement into raw records
func (op *OFXParser) ParseRecords(r io.Reader, source string) ([]*models.RawRecord, *ParseStats, error) {
	return op.ParseRecordsWithContext(context.Background(), r, source)
}

// ParseRecordsWithContext parses records with cancellation support
func (op *OFXParser) ParseRecordsWithContext(ctx context.Context, r io.Reader, source string) ([]*models.RawRecord, *ParseStats, error) {
	op.logger.WithFields(logger.Fields{
		"source":    source,
		"operation": "parse_records",
	}).Info("Starting OFX parsing")

	stats := NewParseStats()

	data, err := readInput(r, source, op.opts)
	if err != nil {
		op.logger.WithError(err).WithField("source", source).Error("Failed to read statement input")
		return nil, stats, err
	}

	var (
		records    []*models.RawRecord
		current    *ofxTransaction
		curDef     string
		accountID  string
		inAcctFrom bool
		inCurrency bool
	)

	finalize := func() {
		record := models.NewRawRecord(source, current.startLine)
		record.Set(models.FieldTransactionID, current.fitID)
		record.Set(models.FieldAccountID, accountID)
		record.Set(models.FieldAmount, current.amount)
		record.Set(models.FieldPostedDate, ofxDate(current.posted))
		if current.user != "" {
			record.Set(models.FieldTransactionDate, ofxDate(current.user))
		}
		record.Set(models.FieldDescription, joinDescription(current.name, current.memo))
		if current.refNum != "" {
			record.Set(models.FieldSourceReference, current.refNum)
		}
		currency := current.currency
		if currency == "" {
			currency = curDef
		}
		record.Set(models.FieldCurrency, currency)

		records = append(records, record)
		stats.RecordsParsed++
		current = nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		if isCancelled(ctx) {
			op.logger.Warn("OFX parsing was cancelled")
			return records, stats, errors.InternalError(
				errors.CodeUnexpectedError,
				"ofx_parsing",
				fmt.Errorf("parsing cancelled by context"),
			)
		}

		line++
		text := scanner.Text()

		for _, token := range splitTags(text) {
			tag := strings.ToUpper(token.name)

			switch tag {
			case "STMTTRN":
				if current != nil {
					rowErr := op.unterminatedBlock(current, source, stats)
					if op.opts.Strict {
						stats.Truncated = true
						stats.TruncatedLine = line
						stats.TotalLines = line
						return records, stats, rowErr.Err
					}
				}
				current = &ofxTransaction{startLine: line}
			case "/STMTTRN":
				if current != nil {
					finalize()
				}
			case "CURRENCY", "ORIGCURRENCY":
				inCurrency = true
			case "/CURRENCY", "/ORIGCURRENCY":
				inCurrency = false
			case "BANKACCTFROM", "CCACCTFROM":
				inAcctFrom = true
			case "/BANKACCTFROM", "/CCACCTFROM":
				inAcctFrom = false
			case "CURDEF":
				curDef = token.value
			case "ACCTID":
				if inAcctFrom {
					accountID = token.value
				}
			case "CURSYM":
				if inCurrency && current != nil {
					current.currency = token.value
				}
			default:
				if current == nil {
					continue
				}
				switch tag {
				case "FITID":
					current.fitID = token.value
				case "TRNAMT":
					current.amount = token.value
				case "DTPOSTED":
					current.posted = token.value
				case "DTUSER", "DTAVAIL":
					current.user = token.value
				case "NAME", "PAYEE":
					current.name = token.value
				case "MEMO":
					current.memo = token.value
				case "REFNUM", "CHECKNUM":
					current.refNum = token.value
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return records, stats, errors.FileError(errors.CodeFileCorrupted, source, err)
	}

	stats.TotalLines = line

	if current != nil {
		rowErr := op.unterminatedBlock(current, source, stats)
		if op.opts.Strict {
			stats.Truncated = true
			stats.TruncatedLine = current.startLine
			return records, stats, rowErr.Err
		}
	}

	op.logger.WithFields(logger.Fields{
		"source":         source,
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
		"error_count":    stats.ErrorCount,
	}).Info("OFX parsing completed")

	return records, stats, nil
}

// unterminatedBlock records a STMTTRN block with no closing tag
func (op *OFXParser) unterminatedBlock(tx *ofxTransaction, source string, stats *ParseStats) *RowError {
	rowErr := &RowError{
		Line:    tx.startLine,
		Message: "unterminated STMTTRN block",
		Err: errors.ParseError(errors.CodeMalformedRow, source, tx.startLine, "STMTTRN", "",
			fmt.Errorf("transaction block opened at line %d has no closing tag", tx.startLine)),
	}
	stats.AddError(rowErr)
	op.logger.WithField("line", tx.startLine).Warn("Dropping unterminated OFX transaction block")
	return rowErr
}

// tagToken is one SGML tag with its trailing leaf value, if any
type tagToken struct {
	name  string
	value string
}

// splitTags extracts the tags on one line. OFX leaf values run from the
// closing '>' to the next '<' or end of line.
func splitTags(line string) []tagToken {
	var tokens []tagToken

	for {
		open := strings.IndexByte(line, '<')
		if open < 0 {
			break
		}
		gt := strings.IndexByte(line[open:], '>')
		if gt < 0 {
			break
		}
		gt += open

		name := strings.TrimSpace(line[open+1 : gt])
		rest := line[gt+1:]

		end := strings.IndexByte(rest, '<')
		var value string
		if end < 0 {
			value = rest
			line = ""
		} else {
			value = rest[:end]
			line = rest[end:]
		}

		if name != "" {
			tokens = append(tokens, tagToken{
				name:  name,
				value: strings.TrimSpace(unescapeOFX(value)),
			})
		}

		if line == "" {
			break
		}
	}

	return tokens
}

// unescapeOFX decodes the three entities the OFX spec allows in values
func unescapeOFX(s string) string {
	if !strings.ContainsRune(s, '&') {
		return s
	}
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&amp;", "&")
	return s
}

// ofxDate reduces an OFX timestamp (YYYYMMDDHHMMSS.XXX[gmt offset]) to its
// calendar-date prefix
func ofxDate(s string) string {
	digits := 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		digits++
	}
	if digits >= 8 {
		return s[:8]
	}
	return s
}

// joinDescription merges the NAME and MEMO fields into one memo string
func joinDescription(name, memo string) string {
	switch {
	case name == "":
		return memo
	case memo == "":
		return name
	default:
		return name + " " + memo
	}
}
