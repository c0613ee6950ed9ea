package normalizer

import (
	"testing"
	"time"

	"golang-statement-ingestion/internal/models"
	"golang-statement-ingestion/internal/profiles"
	"golang-statement-ingestion/pkg/errors"
)

func testProfile() *profiles.CsvProfile {
	return &profiles.CsvProfile{
		Name: "test",
		ColumnMapping: map[string]string{
			models.FieldAccountID:  "account",
			models.FieldAmount:     "amount",
			models.FieldCurrency:   "currency",
			models.FieldPostedDate: "date",
		},
		DateFormat:        "YYYY-MM-DD",
		AmountMinorFactor: 100,
		Delimiter:         ',',
		HasHeader:         true,
	}
}

func fullRecord() *models.RawRecord {
	record := models.NewRawRecord("test.csv", 2)
	record.Set(models.FieldTransactionID, "TX001")
	record.Set(models.FieldAccountID, "ACC-1")
	record.Set(models.FieldAmount, "12.34")
	record.Set(models.FieldCurrency, "usd")
	record.Set(models.FieldPostedDate, "2024-01-15")
	record.Set(models.FieldDescription, "Coffee Shop")
	return record
}

func TestNormalizeFullRecord(t *testing.T) {
	norm, err := NewNormalizer(testProfile())
	if err != nil {
		t.Fatalf("failed to create normalizer: %v", err)
	}

	tx, ierr := norm.Normalize(fullRecord())
	if ierr != nil {
		t.Fatalf("normalize failed: %v", ierr)
	}

	if tx.TransactionID != "TX001" {
		t.Errorf("expected provider ID TX001, got %q", tx.TransactionID)
	}
	if tx.SyntheticID {
		t.Error("provider-supplied ID must not be flagged synthetic")
	}
	if tx.AmountMinor != 1234 {
		t.Errorf("expected 1234 minor units, got %d", tx.AmountMinor)
	}
	if tx.Currency != "USD" {
		t.Errorf("expected uppercased currency USD, got %q", tx.Currency)
	}

	expected := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if !tx.PostedDate.Equal(expected) {
		t.Errorf("expected posted date %s, got %s", expected, tx.PostedDate)
	}
	// Transaction date falls back to the posted date.
	if !tx.TransactionDate.Equal(expected) {
		t.Errorf("expected transaction date fallback %s, got %s", expected, tx.TransactionDate)
	}

	if tx.Checksum == "" {
		t.Error("expected a derived checksum")
	}
	if tx.IsVoid {
		t.Error("expected void to default to false")
	}
}

func TestNormalizeSynthesizesID(t *testing.T) {
	norm, err := NewNormalizer(testProfile())
	if err != nil {
		t.Fatalf("failed to create normalizer: %v", err)
	}

	record := fullRecord()
	record.Set(models.FieldTransactionID, "")

	tx, ierr := norm.Normalize(record)
	if ierr != nil {
		t.Fatalf("normalize failed: %v", ierr)
	}

	if tx.TransactionID == "" {
		t.Fatal("expected a synthesized transaction ID")
	}
	if !tx.SyntheticID {
		t.Error("synthesized IDs must be flagged synthetic")
	}
}

func TestNormalizeRejections(t *testing.T) {
	norm, err := NewNormalizer(testProfile())
	if err != nil {
		t.Fatalf("failed to create normalizer: %v", err)
	}

	tests := []struct {
		name         string
		mutate       func(*models.RawRecord)
		expectedCode errors.ErrorCode
	}{
		{
			name:         "missing account",
			mutate:       func(r *models.RawRecord) { r.Set(models.FieldAccountID, "") },
			expectedCode: errors.CodeMissingField,
		},
		{
			name:         "invalid amount",
			mutate:       func(r *models.RawRecord) { r.Set(models.FieldAmount, "twelve") },
			expectedCode: errors.CodeInvalidAmount,
		},
		{
			name:         "sub-minor amount",
			mutate:       func(r *models.RawRecord) { r.Set(models.FieldAmount, "12.345") },
			expectedCode: errors.CodeInvalidAmount,
		},
		{
			name:         "unknown currency",
			mutate:       func(r *models.RawRecord) { r.Set(models.FieldCurrency, "ZZZ") },
			expectedCode: errors.CodeInvalidCurrency,
		},
		{
			name:         "wrong date layout",
			mutate:       func(r *models.RawRecord) { r.Set(models.FieldPostedDate, "15/01/2024") },
			expectedCode: errors.CodeInvalidDate,
		},
		{
			name:         "bad void flag",
			mutate:       func(r *models.RawRecord) { r.Set(models.FieldVoid, "perhaps") },
			expectedCode: errors.CodeInvalidFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := fullRecord()
			tt.mutate(record)

			tx, ierr := norm.Normalize(record)
			if ierr == nil {
				t.Fatalf("expected rejection, got transaction %s", tx)
			}
			if ierr.Code != tt.expectedCode {
				t.Errorf("expected code %s, got %s", tt.expectedCode, ierr.Code)
			}
			if ierr.Context["line"] != 2 {
				t.Errorf("expected provenance line 2 in error context, got %v", ierr.Context["line"])
			}
		})
	}
}

func TestNormalizeAllPartitions(t *testing.T) {
	norm, err := NewNormalizer(testProfile())
	if err != nil {
		t.Fatalf("failed to create normalizer: %v", err)
	}

	good := fullRecord()
	bad := fullRecord()
	bad.Set(models.FieldCurrency, "ZZZ")
	alsoGood := fullRecord()
	alsoGood.Set(models.FieldAmount, "-1.00")

	records := []*models.RawRecord{good, bad, alsoGood}
	transactions, rejected := norm.NormalizeAll(records)

	// Every input ends up exactly once in one of the two partitions.
	if len(transactions)+len(rejected) != len(records) {
		t.Errorf("partition mismatch: %d + %d != %d", len(transactions), len(rejected), len(records))
	}
	if len(rejected) != 1 {
		t.Fatalf("expected 1 rejection, got %d", len(rejected))
	}
	if rejected[0].Err.Code != errors.CodeInvalidCurrency {
		t.Errorf("expected currency rejection, got %s", rejected[0].Err.Code)
	}
}

func TestNormalizeChecksumPassThrough(t *testing.T) {
	norm, err := NewNormalizer(testProfile())
	if err != nil {
		t.Fatalf("failed to create normalizer: %v", err)
	}

	record := fullRecord()
	record.Set(models.FieldChecksum, "precomputed-identity")

	tx, ierr := norm.Normalize(record)
	if ierr != nil {
		t.Fatalf("normalize failed: %v", ierr)
	}
	if tx.Checksum != "precomputed-identity" {
		t.Errorf("expected the supplied checksum to pass through, got %q", tx.Checksum)
	}
}

func TestNormalizeSeparateTransactionDate(t *testing.T) {
	norm, err := NewNormalizer(testProfile())
	if err != nil {
		t.Fatalf("failed to create normalizer: %v", err)
	}

	record := fullRecord()
	record.Set(models.FieldTransactionDate, "2024-01-13")

	tx, ierr := norm.Normalize(record)
	if ierr != nil {
		t.Fatalf("normalize failed: %v", ierr)
	}

	expected := time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC)
	if !tx.TransactionDate.Equal(expected) {
		t.Errorf("expected transaction date %s, got %s", expected, tx.TransactionDate)
	}
}

func TestDeriveChecksumStability(t *testing.T) {
	posted := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	base := DeriveChecksum("ACC-1", posted, 1234, "USD", "Coffee Shop Purchase")

	// Cosmetic description differences must not change identity.
	if got := DeriveChecksum("ACC-1", posted, 1234, "USD", "  coffee   SHOP purchase "); got != base {
		t.Error("expected whitespace and case differences to collide")
	}

	// Any substantive field change must change identity.
	variants := []string{
		DeriveChecksum("ACC-2", posted, 1234, "USD", "Coffee Shop Purchase"),
		DeriveChecksum("ACC-1", posted.AddDate(0, 0, 1), 1234, "USD", "Coffee Shop Purchase"),
		DeriveChecksum("ACC-1", posted, 1235, "USD", "Coffee Shop Purchase"),
		DeriveChecksum("ACC-1", posted, 1234, "EUR", "Coffee Shop Purchase"),
		DeriveChecksum("ACC-1", posted, 1234, "USD", "Tea Shop Purchase"),
	}
	for i, variant := range variants {
		if variant == base {
			t.Errorf("variant %d unexpectedly collided with the base checksum", i)
		}
	}

	if len(base) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(base))
	}
}

func TestNormalizeCurrency(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		valid    bool
	}{
		{"usd", "USD", true},
		{" EUR ", "EUR", true},
		{"jpy", "JPY", true},
		{"ZZZ", "ZZZ", false},
		{"", "", false},
		{"DOLLARS", "DOLLARS", false},
	}

	for _, tt := range tests {
		t.Run("input_"+tt.input, func(t *testing.T) {
			code, ok := NormalizeCurrency(tt.input)
			if ok != tt.valid {
				t.Errorf("input %q: expected valid=%t, got %t", tt.input, tt.valid, ok)
			}
			if code != tt.expected {
				t.Errorf("input %q: expected code %q, got %q", tt.input, tt.expected, code)
			}
		})
	}
}
