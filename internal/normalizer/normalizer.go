// Package normalizer converts raw statement records into canonical
// normalized bank transactions.
//
// Normalization is all-or-nothing per record: a record either yields a fully
// valid transaction (amount in minor units, ISO currency, calendar dates,
// checksum) or is rejected with a structured error naming the offending
// field. Rejections never abort the batch.
package normalizer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"golang-statement-ingestion/internal/models"
	"golang-statement-ingestion/internal/profiles"
	"golang-statement-ingestion/pkg/errors"
	"golang-statement-ingestion/pkg/logger"
)

// Normalizer converts raw records into normalized transactions using the
// date layout and amount scaling of a resolved profile
type Normalizer struct {
	profile *profiles.CsvProfile
	logger  logger.Logger
}

// NewNormalizer creates a normalizer bound to a resolved profile
func NewNormalizer(profile *profiles.CsvProfile) (*Normalizer, error) {
	if profile == nil {
		return nil, errors.ProfileError(errors.CodeInvalidProfile, "profile", nil,
			fmt.Errorf("profile cannot be nil"))
	}

	if err := profile.Validate(); err != nil {
		return nil, err
	}

	return &Normalizer{
		profile: profile,
		logger:  logger.GetGlobalLogger().WithComponent("normalizer"),
	}, nil
}

// RecordError pairs a rejected raw record with the normalization error that
// rejected it
type RecordError struct {
	Record *models.RawRecord
	Err    *errors.IngestError
}

// Normalize converts one raw record into a normalized transaction
func (n *Normalizer) Normalize(record *models.RawRecord) (*models.NormalizedBankTransaction, *errors.IngestError) {
	if record == nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "normalize",
			fmt.Errorf("record cannot be nil"))
	}

	for _, field := range models.RequiredFields {
		if _, ok := record.Get(field); !ok {
			return nil, n.reject(record,
				errors.NormalizationError(errors.CodeMissingField, field, nil, nil))
		}
	}

	rawAmount, _ := record.Get(models.FieldAmount)
	amountMinor, err := models.ParseMinorAmount(rawAmount, n.profile.AmountMinorFactor)
	if err != nil {
		return nil, n.reject(record,
			errors.NormalizationError(errors.CodeInvalidAmount, models.FieldAmount, rawAmount, err))
	}

	rawCurrency, _ := record.Get(models.FieldCurrency)
	currency, ok := NormalizeCurrency(rawCurrency)
	if !ok {
		return nil, n.reject(record,
			errors.NormalizationError(errors.CodeInvalidCurrency, models.FieldCurrency, rawCurrency, nil))
	}

	rawPosted, _ := record.Get(models.FieldPostedDate)
	postedDate, err := n.parseDate(rawPosted)
	if err != nil {
		return nil, n.reject(record,
			errors.NormalizationError(errors.CodeInvalidDate, models.FieldPostedDate, rawPosted, err))
	}

	// Transaction date falls back to the posted date when the source has
	// no separate initiation date.
	transactionDate := postedDate
	if rawTxDate, ok := record.Get(models.FieldTransactionDate); ok {
		transactionDate, err = n.parseDate(rawTxDate)
		if err != nil {
			return nil, n.reject(record,
				errors.NormalizationError(errors.CodeInvalidDate, models.FieldTransactionDate, rawTxDate, err))
		}
	}

	isVoid := false
	if rawVoid, ok := record.Get(models.FieldVoid); ok {
		isVoid, err = models.ParseVoidFlag(rawVoid)
		if err != nil {
			return nil, n.reject(record,
				errors.NormalizationError(errors.CodeInvalidFormat, models.FieldVoid, rawVoid, err))
		}
	}

	tx := &models.NormalizedBankTransaction{
		AccountID:       mustGet(record, models.FieldAccountID),
		AmountMinor:     amountMinor,
		Currency:        currency,
		PostedDate:      postedDate,
		TransactionDate: transactionDate,
		IsVoid:          isVoid,
	}

	if description, ok := record.Get(models.FieldDescription); ok {
		tx.Description = description
	}

	if reference, ok := record.Get(models.FieldSourceReference); ok {
		tx.SourceReference = reference
	}

	if id, ok := record.Get(models.FieldTransactionID); ok {
		tx.TransactionID = id
	} else {
		tx.TransactionID = uuid.NewString()
		tx.SyntheticID = true
	}

	// A checksum supplied by the source (re-ingestion of our own output)
	// passes through; otherwise identity is derived from content.
	if supplied, ok := record.Get(models.FieldChecksum); ok {
		tx.Checksum = supplied
	} else {
		tx.Checksum = DeriveChecksum(tx.AccountID, tx.PostedDate, tx.AmountMinor, tx.Currency, tx.Description)
	}

	if err := tx.Validate(); err != nil {
		return nil, n.reject(record,
			errors.InternalError(errors.CodeUnexpectedError, "normalize", err))
	}

	return tx, nil
}

// NormalizeAll converts a batch of raw records, collecting per-record
// rejections instead of aborting. Output order matches input order.
func (n *Normalizer) NormalizeAll(records []*models.RawRecord) ([]*models.NormalizedBankTransaction, []*RecordError) {
	transactions := make([]*models.NormalizedBankTransaction, 0, len(records))
	var rejected []*RecordError

	for _, record := range records {
		tx, err := n.Normalize(record)
		if err != nil {
			rejected = append(rejected, &RecordError{Record: record, Err: err})
			continue
		}
		transactions = append(transactions, tx)
	}

	if len(rejected) > 0 {
		n.logger.WithFields(logger.Fields{
			"profile":    n.profile.Name,
			"normalized": len(transactions),
			"rejected":   len(rejected),
		}).Warn("Rejected records during normalization")
	}

	return transactions, rejected
}

// parseDate parses a calendar date in the profile's layout and truncates it
// to a date-only UTC value
func (n *Normalizer) parseDate(s string) (time.Time, error) {
	t, err := time.Parse(n.profile.DateLayout(), s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// reject annotates a normalization error with the record's provenance
func (n *Normalizer) reject(record *models.RawRecord, err *errors.IngestError) *errors.IngestError {
	return err.
		WithContext("source", record.Source).
		WithContext("line", record.Line)
}

func mustGet(record *models.RawRecord, field string) string {
	value, _ := record.Get(field)
	return value
}
