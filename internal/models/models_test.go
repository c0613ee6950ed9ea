package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseMinorAmount(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		minorFactor int64
		expected    int64
		expectError bool
	}{
		{
			name:        "two decimal places",
			input:       "12.34",
			minorFactor: 100,
			expected:    1234,
		},
		{
			name:        "whole number",
			input:       "100",
			minorFactor: 100,
			expected:    10000,
		},
		{
			name:        "negative amount",
			input:       "-45.67",
			minorFactor: 100,
			expected:    -4567,
		},
		{
			name:        "currency symbol and thousand separators",
			input:       "$1,234.56",
			minorFactor: 100,
			expected:    123456,
		},
		{
			name:        "zero decimal currency",
			input:       "1500",
			minorFactor: 1,
			expected:    1500,
		},
		{
			name:        "single decimal place",
			input:       "9.5",
			minorFactor: 100,
			expected:    950,
		},
		{
			name:        "too many decimal places",
			input:       "12.345",
			minorFactor: 100,
			expectError: true,
		},
		{
			name:        "empty string",
			input:       "",
			minorFactor: 100,
			expectError: true,
		},
		{
			name:        "not a number",
			input:       "abc",
			minorFactor: 100,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseMinorAmount(tt.input, tt.minorFactor)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for input %q, got %d", tt.input, result)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error for input %q: %v", tt.input, err)
			}
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestParseVoidFlag(t *testing.T) {
	tests := []struct {
		input       string
		expected    bool
		expectError bool
	}{
		{input: "", expected: false},
		{input: "false", expected: false},
		{input: "No", expected: false},
		{input: "0", expected: false},
		{input: "true", expected: true},
		{input: "YES", expected: true},
		{input: "1", expected: true},
		{input: "void", expected: true},
		{input: "VOIDED", expected: true},
		{input: "maybe", expectError: true},
	}

	for _, tt := range tests {
		t.Run("input_"+tt.input, func(t *testing.T) {
			result, err := ParseVoidFlag(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for input %q", tt.input)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error for input %q: %v", tt.input, err)
			}
			if result != tt.expected {
				t.Errorf("input %q: expected %t, got %t", tt.input, tt.expected, result)
			}
		})
	}
}

func TestCanonicalDescription(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "mixed case collapsed",
			input:    "COFFEE  Shop   Purchase",
			expected: "coffee shop purchase",
		},
		{
			name:     "leading and trailing whitespace",
			input:    "  Grocery Store  ",
			expected: "grocery store",
		},
		{
			name:     "tabs and newlines",
			input:    "wire\ttransfer\nincoming",
			expected: "wire transfer incoming",
		},
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanonicalDescription(tt.input); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestNormalizedBankTransactionValidate(t *testing.T) {
	valid := func() *NormalizedBankTransaction {
		return &NormalizedBankTransaction{
			TransactionID: "TX001",
			AccountID:     "ACC-1",
			AmountMinor:   1234,
			Currency:      "USD",
			PostedDate:    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			Checksum:      "abc123",
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid transaction failed validation: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*NormalizedBankTransaction)
	}{
		{"empty transaction ID", func(tx *NormalizedBankTransaction) { tx.TransactionID = "" }},
		{"empty account ID", func(tx *NormalizedBankTransaction) { tx.AccountID = " " }},
		{"bad currency length", func(tx *NormalizedBankTransaction) { tx.Currency = "US" }},
		{"zero posted date", func(tx *NormalizedBankTransaction) { tx.PostedDate = time.Time{} }},
		{"empty checksum", func(tx *NormalizedBankTransaction) { tx.Checksum = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := valid()
			tt.mutate(tx)
			if err := tx.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestNormalizedBankTransactionJSONRoundTrip(t *testing.T) {
	original := &NormalizedBankTransaction{
		TransactionID:   "TX001",
		AccountID:       "ACC-1",
		AmountMinor:     -4599,
		Currency:        "EUR",
		PostedDate:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		TransactionDate: time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC),
		Description:     "Card payment",
		Checksum:        "deadbeef",
		IsVoid:          true,
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded NormalizedBankTransaction
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !decoded.Equals(original) {
		t.Errorf("round trip changed the transaction:\noriginal: %s\ndecoded:  %s", original, &decoded)
	}
}

func TestRawRecordGet(t *testing.T) {
	record := NewRawRecord("statements.csv", 3)
	record.Set(FieldAmount, "  12.34 ")
	record.Set(FieldDescription, "   ")

	if value, ok := record.Get(FieldAmount); !ok || value != "12.34" {
		t.Errorf("expected trimmed value '12.34' present, got %q (%t)", value, ok)
	}

	// Whitespace-only values count as absent.
	if value, ok := record.Get(FieldDescription); ok {
		t.Errorf("expected blank field to be absent, got %q", value)
	}

	if _, ok := record.Get(FieldCurrency); ok {
		t.Error("expected unset field to be absent")
	}
}
