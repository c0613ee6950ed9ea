package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"golang-statement-ingestion/internal/models"
)

// DeriveChecksum computes the content-derived identity of a transaction:
// the lowercase hex SHA-256 digest of the pipe-joined canonical tuple
// (account, posted date, minor amount, currency, canonical description).
//
// Provider transaction IDs are deliberately excluded. Two exports of the
// same underlying transaction must collide here even when one export lacks
// an ID or formats the memo differently.
func DeriveChecksum(accountID string, postedDate time.Time, amountMinor int64, currency, description string) string {
	payload := strings.Join([]string{
		accountID,
		postedDate.Format(models.DateLayout),
		strconv.FormatInt(amountMinor, 10),
		currency,
		models.CanonicalDescription(description),
	}, "|")

	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
