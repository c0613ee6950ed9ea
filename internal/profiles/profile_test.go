package profiles

import (
	"testing"

	"golang-statement-ingestion/internal/models"
	"golang-statement-ingestion/pkg/errors"
)

func validMapping() map[string]string {
	return map[string]string{
		models.FieldAccountID:  "account",
		models.FieldAmount:     "amount",
		models.FieldCurrency:   "ccy",
		models.FieldPostedDate: "date",
	}
}

func TestCsvProfileValidate(t *testing.T) {
	tests := []struct {
		name         string
		profile      *CsvProfile
		expectError  bool
		expectedCode errors.ErrorCode
	}{
		{
			name: "minimal valid profile",
			profile: &CsvProfile{
				Name:              "test",
				ColumnMapping:     validMapping(),
				DateFormat:        "YYYY-MM-DD",
				AmountMinorFactor: 100,
			},
		},
		{
			name: "missing required mapping",
			profile: &CsvProfile{
				Name: "test",
				ColumnMapping: map[string]string{
					models.FieldAccountID: "account",
					models.FieldAmount:    "amount",
					models.FieldCurrency:  "ccy",
				},
				DateFormat:        "YYYY-MM-DD",
				AmountMinorFactor: 100,
			},
			expectError:  true,
			expectedCode: errors.CodeMissingRequiredField,
		},
		{
			name: "unknown canonical field",
			profile: &CsvProfile{
				Name: "test",
				ColumnMapping: func() map[string]string {
					m := validMapping()
					m["balance"] = "balance"
					return m
				}(),
				DateFormat:        "YYYY-MM-DD",
				AmountMinorFactor: 100,
			},
			expectError:  true,
			expectedCode: errors.CodeInvalidProfile,
		},
		{
			name: "unsupported date format",
			profile: &CsvProfile{
				Name:              "test",
				ColumnMapping:     validMapping(),
				DateFormat:        "DD MMM YYYY",
				AmountMinorFactor: 100,
			},
			expectError:  true,
			expectedCode: errors.CodeInvalidDateFormat,
		},
		{
			name: "zero minor factor",
			profile: &CsvProfile{
				Name:              "test",
				ColumnMapping:     validMapping(),
				DateFormat:        "YYYY-MM-DD",
				AmountMinorFactor: 0,
			},
			expectError:  true,
			expectedCode: errors.CodeInvalidMinorFactor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()

			if !tt.expectError {
				if err != nil {
					t.Fatalf("unexpected validation error: %v", err)
				}
				return
			}

			if err == nil {
				t.Fatal("expected validation error, got nil")
			}

			ingestErr, ok := errors.AsIngestError(err)
			if !ok {
				t.Fatalf("expected IngestError, got %T", err)
			}
			if ingestErr.Code != tt.expectedCode {
				t.Errorf("expected code %s, got %s", tt.expectedCode, ingestErr.Code)
			}
		})
	}
}

func TestResolveProfile(t *testing.T) {
	t.Run("defaults applied", func(t *testing.T) {
		doc := `{
			"name": "mybank",
			"column_mapping": {
				"account_id": "Account",
				"amount": "Amount",
				"currency": "Currency",
				"posted_date": "Date"
			}
		}`

		profile, err := ResolveProfile([]byte(doc))
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}

		if profile.DateFormat != DefaultDateFormat {
			t.Errorf("expected default date format, got %s", profile.DateFormat)
		}
		if profile.AmountMinorFactor != DefaultMinorFactor {
			t.Errorf("expected default minor factor, got %d", profile.AmountMinorFactor)
		}
		if profile.Delimiter != ',' {
			t.Errorf("expected comma delimiter, got %q", profile.Delimiter)
		}
		if !profile.HasHeader {
			t.Error("expected has_header to default to true")
		}
	})

	t.Run("explicit settings", func(t *testing.T) {
		doc := `{
			"name": "eu-bank",
			"column_mapping": {
				"account_id": "IBAN",
				"amount": "Betrag",
				"currency": "Waehrung",
				"posted_date": "Buchungstag"
			},
			"date_format": "DD.MM.YYYY",
			"amount_minor_factor": 1,
			"delimiter": ";",
			"has_header": false
		}`

		profile, err := ResolveProfile([]byte(doc))
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}

		if profile.Delimiter != ';' {
			t.Errorf("expected semicolon delimiter, got %q", profile.Delimiter)
		}
		if profile.AmountMinorFactor != 1 {
			t.Errorf("expected minor factor 1, got %d", profile.AmountMinorFactor)
		}
		if profile.HasHeader {
			t.Error("expected has_header false")
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		if _, err := ResolveProfile([]byte(`{not json`)); err == nil {
			t.Error("expected error for invalid JSON")
		}
	})

	t.Run("multi-character delimiter", func(t *testing.T) {
		doc := `{
			"name": "bad",
			"column_mapping": {
				"account_id": "a", "amount": "b", "currency": "c", "posted_date": "d"
			},
			"delimiter": "||"
		}`
		if _, err := ResolveProfile([]byte(doc)); err == nil {
			t.Error("expected error for multi-character delimiter")
		}
	})

	t.Run("missing required mapping rejected", func(t *testing.T) {
		doc := `{"name": "bad", "column_mapping": {"amount": "Amount"}}`
		if _, err := ResolveProfile([]byte(doc)); err == nil {
			t.Error("expected error for missing required mappings")
		}
	})
}

func TestPredefinedProfiles(t *testing.T) {
	for _, profile := range ListProfiles() {
		t.Run(profile.Name, func(t *testing.T) {
			if err := profile.Validate(); err != nil {
				t.Errorf("predefined profile %s failed validation: %v", profile.Name, err)
			}
			if got := GetProfile(profile.Name); got != profile {
				t.Errorf("GetProfile(%q) did not return the predefined profile", profile.Name)
			}
		})
	}

	if GetProfile("no-such-profile") != nil {
		t.Error("expected nil for unknown profile name")
	}
}

func TestOFXProfile(t *testing.T) {
	profile := OFXProfile()
	if err := profile.Validate(); err != nil {
		t.Fatalf("OFX profile failed validation: %v", err)
	}
	if profile.DateLayout() != "20060102" {
		t.Errorf("expected compact date layout, got %s", profile.DateLayout())
	}
	if profile.HasHeader {
		t.Error("OFX profile must not expect a header")
	}
}

func TestMappedFieldsOrder(t *testing.T) {
	profile := StandardProfile
	fields := profile.MappedFields()

	if len(fields) < len(models.RequiredFields) {
		t.Fatalf("expected at least %d mapped fields, got %d", len(models.RequiredFields), len(fields))
	}

	// Required fields come first, in their declared order.
	for i, required := range models.RequiredFields {
		if fields[i] != required {
			t.Errorf("position %d: expected %s, got %s", i, required, fields[i])
		}
	}
}
