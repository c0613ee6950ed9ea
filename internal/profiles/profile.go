// Package profiles resolves provider mapping configurations into validated
// CSV profiles.
//
// A profile describes how one institution's CSV export maps onto the
// canonical field set: which source column backs each canonical field, how
// dates are written, and how textual amounts scale into integer minor units.
// Profiles are immutable once resolved; resolve once per provider and reuse
// the value across parse calls.
package profiles

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang-statement-ingestion/internal/models"
	"golang-statement-ingestion/pkg/errors"
)

// Provider-facing date format patterns mapped to Go time layouts.
var dateLayouts = map[string]string{
	"YYYY-MM-DD": "2006-01-02",
	"MM/DD/YYYY": "01/02/2006",
	"DD/MM/YYYY": "02/01/2006",
	"DD-MM-YYYY": "02-01-2006",
	"YYYY/MM/DD": "2006/01/02",
	"YYYYMMDD":   "20060102",
	"DD.MM.YYYY": "02.01.2006",
}

// DefaultDateFormat is used when a profile omits dateFormat.
const DefaultDateFormat = "YYYY-MM-DD"

// DefaultMinorFactor converts two-decimal currency amounts to minor units.
const DefaultMinorFactor = 100

// CsvProfile describes how one provider's CSV export maps to the canonical
// schema
type CsvProfile struct {
	Name              string            `json:"name"`
	ColumnMapping     map[string]string `json:"column_mapping"`
	DateFormat        string            `json:"date_format"`
	AmountMinorFactor int64             `json:"amount_minor_factor"`
	Delimiter         rune              `json:"-"`
	HasHeader         bool              `json:"has_header"`
	Description       string            `json:"description,omitempty"`
}

// SupportedDateFormats returns the accepted provider-facing date patterns
func SupportedDateFormats() []string {
	formats := make([]string, 0, len(dateLayouts))
	for pattern := range dateLayouts {
		formats = append(formats, pattern)
	}
	return formats
}

// Validate checks that every required canonical field has a non-empty
// mapping, the date format is a supported pattern, and the minor factor is
// a positive integer
func (p *CsvProfile) Validate() error {
	if p.ColumnMapping == nil {
		return errors.ProfileError(errors.CodeInvalidProfile, "column_mapping", nil, nil)
	}

	for _, field := range models.RequiredFields {
		if strings.TrimSpace(p.ColumnMapping[field]) == "" {
			return errors.ProfileError(errors.CodeMissingRequiredField, field, nil, nil)
		}
	}

	for field, column := range p.ColumnMapping {
		if !isCanonicalField(field) {
			return errors.ProfileError(errors.CodeInvalidProfile, field, column, nil).
				WithSuggestion("map only canonical field names; see the profile schema")
		}
	}

	if _, ok := dateLayouts[p.DateFormat]; !ok {
		return errors.ProfileError(errors.CodeInvalidDateFormat, models.FieldPostedDate, p.DateFormat, nil)
	}

	if p.AmountMinorFactor <= 0 {
		return errors.ProfileError(errors.CodeInvalidMinorFactor, models.FieldAmount, p.AmountMinorFactor, nil)
	}

	return nil
}

// DateLayout returns the Go time layout for the profile's date format.
// Validate must have accepted the profile first.
func (p *CsvProfile) DateLayout() string {
	return dateLayouts[p.DateFormat]
}

// SourceColumn returns the source column mapped to a canonical field
func (p *CsvProfile) SourceColumn(field string) (string, bool) {
	column, ok := p.ColumnMapping[field]
	column = strings.TrimSpace(column)
	return column, ok && column != ""
}

// MappedFields returns the canonical fields the profile maps, required
// fields first, in stable order
func (p *CsvProfile) MappedFields() []string {
	var fields []string
	for _, field := range models.RequiredFields {
		if _, ok := p.SourceColumn(field); ok {
			fields = append(fields, field)
		}
	}
	for _, field := range models.OptionalFields {
		if _, ok := p.SourceColumn(field); ok {
			fields = append(fields, field)
		}
	}
	return fields
}

func isCanonicalField(field string) bool {
	for _, known := range models.RequiredFields {
		if field == known {
			return true
		}
	}
	for _, known := range models.OptionalFields {
		if field == known {
			return true
		}
	}
	return false
}

// rawProfileConfig is the wire shape of a provider profile document as
// supplied by the profile store
type rawProfileConfig struct {
	Name              string            `json:"name"`
	ColumnMapping     map[string]string `json:"column_mapping"`
	DateFormat        string            `json:"date_format,omitempty"`
	AmountMinorFactor *int64            `json:"amount_minor_factor,omitempty"`
	Delimiter         string            `json:"delimiter,omitempty"`
	HasHeader         *bool             `json:"has_header,omitempty"`
	Description       string            `json:"description,omitempty"`
}

// ResolveProfile parses a raw provider profile document (JSON) and validates
// it into a CsvProfile. Resolution is pure: it never defaults a required
// mapping, and a document that fails validation yields no profile.
func ResolveProfile(raw []byte) (*CsvProfile, error) {
	var doc rawProfileConfig
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.ProfileError(errors.CodeInvalidProfile, "document", string(raw), err).
			WithSuggestion("ensure the profile document is valid JSON")
	}

	profile := &CsvProfile{
		Name:              doc.Name,
		ColumnMapping:     doc.ColumnMapping,
		DateFormat:        doc.DateFormat,
		AmountMinorFactor: DefaultMinorFactor,
		Delimiter:         ',',
		HasHeader:         true,
		Description:       doc.Description,
	}

	if profile.DateFormat == "" {
		profile.DateFormat = DefaultDateFormat
	}

	if doc.AmountMinorFactor != nil {
		profile.AmountMinorFactor = *doc.AmountMinorFactor
	}

	if doc.Delimiter != "" {
		runes := []rune(doc.Delimiter)
		if len(runes) != 1 {
			return nil, errors.ProfileError(errors.CodeInvalidProfile, "delimiter", doc.Delimiter, nil).
				WithSuggestion("use a single-character delimiter")
		}
		profile.Delimiter = runes[0]
	}

	if doc.HasHeader != nil {
		profile.HasHeader = *doc.HasHeader
	}

	if err := profile.Validate(); err != nil {
		return nil, err
	}

	return profile, nil
}

// Predefined profiles for common provider formats
var (
	// StandardProfile matches exports that already use canonical column names
	StandardProfile = &CsvProfile{
		Name: "standard",
		ColumnMapping: map[string]string{
			models.FieldTransactionID:   "transaction_id",
			models.FieldAccountID:       "account_id",
			models.FieldAmount:          "amount",
			models.FieldCurrency:        "currency",
			models.FieldDescription:     "description",
			models.FieldPostedDate:      "posted_date",
			models.FieldTransactionDate: "transaction_date",
			models.FieldSourceReference: "source_reference",
			models.FieldVoid:            "void",
		},
		DateFormat:        "YYYY-MM-DD",
		AmountMinorFactor: 100,
		Delimiter:         ',',
		HasHeader:         true,
		Description:       "Standard statement export with canonical column names",
	}

	// USRetailProfile matches a common US retail-bank export layout
	USRetailProfile = &CsvProfile{
		Name: "us-retail",
		ColumnMapping: map[string]string{
			models.FieldTransactionID: "reference_number",
			models.FieldAccountID:     "account_number",
			models.FieldAmount:        "transaction_amount",
			models.FieldCurrency:      "currency_code",
			models.FieldDescription:   "transaction_description",
			models.FieldPostedDate:    "posting_date",
		},
		DateFormat:        "MM/DD/YYYY",
		AmountMinorFactor: 100,
		Delimiter:         ',',
		HasHeader:         true,
		Description:       "US retail bank export with MM/DD/YYYY dates",
	}

	// EUSemicolonProfile matches semicolon-delimited European exports
	EUSemicolonProfile = &CsvProfile{
		Name: "eu-semicolon",
		ColumnMapping: map[string]string{
			models.FieldTransactionID:   "ref",
			models.FieldAccountID:       "iban",
			models.FieldAmount:          "betrag",
			models.FieldCurrency:        "waehrung",
			models.FieldDescription:     "verwendungszweck",
			models.FieldPostedDate:      "buchungstag",
			models.FieldTransactionDate: "valutadatum",
		},
		DateFormat:        "DD.MM.YYYY",
		AmountMinorFactor: 100,
		Delimiter:         ';',
		HasHeader:         true,
		Description:       "Semicolon-delimited European export with DD.MM.YYYY dates",
	}
)

// GetProfile returns a predefined profile by name
func GetProfile(name string) *CsvProfile {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "standard":
		return StandardProfile
	case "us-retail":
		return USRetailProfile
	case "eu-semicolon":
		return EUSemicolonProfile
	default:
		return nil
	}
}

// ListProfiles returns all predefined profiles
func ListProfiles() []*CsvProfile {
	return []*CsvProfile{StandardProfile, USRetailProfile, EUSemicolonProfile}
}

// OFXProfile returns the implicit profile for OFX input. OFX embeds its
// schema in the format, so only the date layout and amount scaling apply;
// there is no column mapping to resolve.
func OFXProfile() *CsvProfile {
	return &CsvProfile{
		Name: "ofx",
		ColumnMapping: map[string]string{
			models.FieldTransactionID:   models.FieldTransactionID,
			models.FieldAccountID:       models.FieldAccountID,
			models.FieldAmount:          models.FieldAmount,
			models.FieldCurrency:        models.FieldCurrency,
			models.FieldDescription:     models.FieldDescription,
			models.FieldPostedDate:      models.FieldPostedDate,
			models.FieldTransactionDate: models.FieldTransactionDate,
			models.FieldSourceReference: models.FieldSourceReference,
		},
		DateFormat:        "YYYYMMDD",
		AmountMinorFactor: DefaultMinorFactor,
		Delimiter:         ',',
		HasHeader:         false,
		Description:       "Implicit profile for OFX statement blocks",
	}
}

// String returns a short description of the profile
func (p *CsvProfile) String() string {
	return fmt.Sprintf("CsvProfile{Name: %s, Fields: %d, DateFormat: %s, MinorFactor: %d}",
		p.Name, len(p.ColumnMapping), p.DateFormat, p.AmountMinorFactor)
}
