// Package models defines the canonical data types flowing through the
// statement ingestion pipeline: raw field-value records produced by the
// format parsers and the normalized bank transactions they become.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical calendar-date layout used in output and
// checksum derivation.
const DateLayout = "2006-01-02"

// Canonical field names used as RawRecord keys and profile mapping keys.
const (
	FieldTransactionID   = "transaction_id"
	FieldAccountID       = "account_id"
	FieldAmount          = "amount"
	FieldCurrency        = "currency"
	FieldDescription     = "description"
	FieldPostedDate      = "posted_date"
	FieldTransactionDate = "transaction_date"
	FieldSourceReference = "source_reference"
	FieldChecksum        = "checksum"
	FieldVoid            = "void"
)

// RequiredFields lists the canonical fields every source must provide.
var RequiredFields = []string{
	FieldAccountID,
	FieldAmount,
	FieldCurrency,
	FieldPostedDate,
}

// OptionalFields lists the canonical fields a source may omit.
var OptionalFields = []string{
	FieldTransactionID,
	FieldDescription,
	FieldTransactionDate,
	FieldSourceReference,
	FieldChecksum,
	FieldVoid,
}

// RawRecord is a single statement row as extracted by a format parser:
// a mapping from canonical field name to the raw string value, plus
// provenance for diagnostics.
type RawRecord struct {
	Fields map[string]string `json:"fields"`
	Source string            `json:"source"`
	Line   int               `json:"line"`
}

// NewRawRecord creates an empty RawRecord for the given source position
func NewRawRecord(source string, line int) *RawRecord {
	return &RawRecord{
		Fields: make(map[string]string),
		Source: source,
		Line:   line,
	}
}

// Get returns the trimmed value for a canonical field, with presence
func (r *RawRecord) Get(field string) (string, bool) {
	value, ok := r.Fields[field]
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// Set stores a raw field value under its canonical name
func (r *RawRecord) Set(field, value string) {
	r.Fields[field] = value
}

// NormalizedBankTransaction is the canonical unit of pipeline output.
// A record that exits the normalizer always has a valid amount, currency,
// posted date, and checksum; normalization either fully succeeds or rejects
// the record.
type NormalizedBankTransaction struct {
	TransactionID   string    `json:"transaction_id"`
	AccountID       string    `json:"account_id"`
	AmountMinor     int64     `json:"amount_minor"`
	Currency        string    `json:"currency"`
	PostedDate      time.Time `json:"posted_date"`
	TransactionDate time.Time `json:"transaction_date"`
	Description     string    `json:"description"`
	SourceReference string    `json:"source_reference,omitempty"`
	Checksum        string    `json:"checksum"`
	IsVoid          bool      `json:"is_void"`

	// SyntheticID marks a transaction ID generated by the normalizer
	// because the source supplied none. Synthetic IDs never win identity
	// tie-breaks against provider-supplied ones.
	SyntheticID bool `json:"synthetic_id,omitempty"`
}

// Validate performs basic validation on the normalized transaction
func (t *NormalizedBankTransaction) Validate() error {
	if strings.TrimSpace(t.TransactionID) == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}

	if strings.TrimSpace(t.AccountID) == "" {
		return fmt.Errorf("account ID cannot be empty")
	}

	if len(t.Currency) != 3 {
		return fmt.Errorf("currency must be a three-letter code, got %q", t.Currency)
	}

	if t.PostedDate.IsZero() {
		return fmt.Errorf("posted date cannot be zero")
	}

	if strings.TrimSpace(t.Checksum) == "" {
		return fmt.Errorf("checksum cannot be empty")
	}

	return nil
}

// String returns a string representation of the transaction
func (t *NormalizedBankTransaction) String() string {
	return fmt.Sprintf("NormalizedBankTransaction{ID: %s, Account: %s, Amount: %d %s, Posted: %s, Void: %t}",
		t.TransactionID, t.AccountID, t.AmountMinor, t.Currency,
		t.PostedDate.Format(DateLayout), t.IsVoid)
}

// IsCredit returns true if the transaction is an inflow
func (t *NormalizedBankTransaction) IsCredit() bool {
	return t.AmountMinor > 0
}

// IsDebit returns true if the transaction is an outflow
func (t *NormalizedBankTransaction) IsDebit() bool {
	return t.AmountMinor < 0
}

// MarshalJSON implements custom JSON marshaling with calendar dates
func (t *NormalizedBankTransaction) MarshalJSON() ([]byte, error) {
	type Alias NormalizedBankTransaction
	return json.Marshal(&struct {
		PostedDate      string `json:"posted_date"`
		TransactionDate string `json:"transaction_date"`
		*Alias
	}{
		PostedDate:      t.PostedDate.Format(DateLayout),
		TransactionDate: t.TransactionDate.Format(DateLayout),
		Alias:           (*Alias)(t),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling with calendar dates
func (t *NormalizedBankTransaction) UnmarshalJSON(data []byte) error {
	type Alias NormalizedBankTransaction
	aux := &struct {
		PostedDate      string `json:"posted_date"`
		TransactionDate string `json:"transaction_date"`
		*Alias
	}{
		Alias: (*Alias)(t),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	t.PostedDate, err = time.Parse(DateLayout, aux.PostedDate)
	if err != nil {
		return fmt.Errorf("invalid posted date: %w", err)
	}

	if aux.TransactionDate != "" {
		t.TransactionDate, err = time.Parse(DateLayout, aux.TransactionDate)
		if err != nil {
			return fmt.Errorf("invalid transaction date: %w", err)
		}
	}

	return nil
}

// Equals compares two transactions for full field equality
func (t *NormalizedBankTransaction) Equals(other *NormalizedBankTransaction) bool {
	if other == nil {
		return false
	}

	return t.TransactionID == other.TransactionID &&
		t.AccountID == other.AccountID &&
		t.AmountMinor == other.AmountMinor &&
		t.Currency == other.Currency &&
		t.PostedDate.Equal(other.PostedDate) &&
		t.TransactionDate.Equal(other.TransactionDate) &&
		t.Description == other.Description &&
		t.Checksum == other.Checksum &&
		t.IsVoid == other.IsVoid
}

// ParseMinorAmount parses a textual amount and scales it into signed integer
// minor units. The amount must scale to a whole number of minor units;
// "12.345" with factor 100 is rejected rather than rounded.
func ParseMinorAmount(s string, minorFactor int64) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("amount string cannot be empty")
	}

	// Strip common currency symbols and thousand separators
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	scaled := d.Mul(decimal.NewFromInt(minorFactor))
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount '%s' does not scale to whole minor units with factor %d", s, minorFactor)
	}

	return scaled.IntPart(), nil
}

// ParseVoidFlag parses a textual void indicator. Empty input defaults to
// false; unrecognized values are an error.
func ParseVoidFlag(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "f", "no", "n", "0":
		return false, nil
	case "true", "t", "yes", "y", "1", "void", "voided":
		return true, nil
	default:
		return false, fmt.Errorf("invalid void flag '%s'", s)
	}
}

// CanonicalDescription canonicalizes a free-text memo for checksum
// derivation: lowercased, with runs of whitespace collapsed to single
// spaces. Cosmetic differences between two exports of the same transaction
// must not change its identity.
func CanonicalDescription(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
