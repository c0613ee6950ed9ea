// Package dedupe collapses normalized transactions that share a checksum
// into a single canonical survivor per identity.
//
// Grouping is stateless within a run: two transactions are duplicates iff
// their checksums are equal. The engine can optionally be seeded with
// checksums from earlier runs, in which case matching incoming transactions
// are dropped as historical duplicates with no survivor in this run's
// output.
package dedupe

import (
	"fmt"

	"golang-statement-ingestion/internal/models"
	"golang-statement-ingestion/pkg/errors"
	"golang-statement-ingestion/pkg/logger"
)

// Config holds deduplication behavior options
type Config struct {
	// PreferLatestObservation resolves canonical-selection ties between
	// occurrences that all carry synthetic transaction IDs in favor of the
	// most recently observed one. Provider-supplied IDs always resolve to
	// the earliest observation.
	PreferLatestObservation bool
}

// DefaultConfig returns the default deduplication configuration
func DefaultConfig() *Config {
	return &Config{
		PreferLatestObservation: true,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}
	return nil
}

// DuplicateGroup describes one checksum that matched more than one
// observation. Canonical is nil when every occurrence was dropped against a
// seeded historical checksum.
type DuplicateGroup struct {
	Checksum     string                              `json:"checksum"`
	Canonical    *models.NormalizedBankTransaction   `json:"canonical,omitempty"`
	Occurrences  []*models.NormalizedBankTransaction `json:"occurrences"`
	DiscardedIDs []string                            `json:"discarded_ids"`
}

// Metrics summarizes one deduplication pass. Kept plus Dropped always
// equals Input.
type Metrics struct {
	Input       int `json:"input"`
	Kept        int `json:"kept"`
	Dropped     int `json:"dropped"`
	SeedDropped int `json:"seed_dropped"`
}

// Outcome is the result of one deduplication pass
type Outcome struct {
	// Transactions holds the canonical survivors in first-seen order.
	Transactions []*models.NormalizedBankTransaction `json:"transactions"`
	Groups       []*DuplicateGroup                   `json:"duplicate_groups,omitempty"`
	Metrics      Metrics                             `json:"metrics"`
}

// Engine performs checksum-based deduplication
type Engine struct {
	config *Config
	seeded map[string]struct{}
	logger logger.Logger
}

// NewEngine creates a deduplication engine
func NewEngine(config *Config) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "dedupe_engine_setup", err)
	}

	return &Engine{
		config: config,
		seeded: make(map[string]struct{}),
		logger: logger.GetGlobalLogger().WithComponent("dedupe_engine"),
	}, nil
}

// Seed registers checksums from earlier ingestion runs. Incoming
// transactions matching a seeded checksum are dropped with no survivor.
func (e *Engine) Seed(checksums []string) {
	for _, checksum := range checksums {
		if checksum != "" {
			e.seeded[checksum] = struct{}{}
		}
	}

	if len(checksums) > 0 {
		e.logger.WithField("seeded_total", len(e.seeded)).Debug("Seeded historical checksums")
	}
}

// Dedupe collapses the input into canonical survivors. The input order is
// the observation order; survivors appear in the order their checksum was
// first observed.
func (e *Engine) Dedupe(transactions []*models.NormalizedBankTransaction) (*Outcome, error) {
	outcome := &Outcome{
		Transactions: make([]*models.NormalizedBankTransaction, 0, len(transactions)),
		Metrics:      Metrics{Input: len(transactions)},
	}

	groupIndex := make(map[string]*DuplicateGroup)
	var groupOrder []string

	for _, tx := range transactions {
		if tx == nil {
			return nil, errors.InternalError(errors.CodeUnexpectedError, "dedupe",
				fmt.Errorf("nil transaction in dedupe input"))
		}
		if tx.Checksum == "" {
			return nil, errors.InternalError(errors.CodeUnexpectedError, "dedupe",
				fmt.Errorf("transaction %s has no checksum", tx.TransactionID))
		}

		group, seen := groupIndex[tx.Checksum]
		if !seen {
			group = &DuplicateGroup{Checksum: tx.Checksum}
			groupIndex[tx.Checksum] = group
			groupOrder = append(groupOrder, tx.Checksum)
		}
		group.Occurrences = append(group.Occurrences, tx)
	}

	for _, checksum := range groupOrder {
		group := groupIndex[checksum]

		if _, historical := e.seeded[checksum]; historical {
			for _, tx := range group.Occurrences {
				group.DiscardedIDs = append(group.DiscardedIDs, tx.TransactionID)
			}
			outcome.Metrics.Dropped += len(group.Occurrences)
			outcome.Metrics.SeedDropped += len(group.Occurrences)
			outcome.Groups = append(outcome.Groups, group)
			continue
		}

		canonical := e.selectCanonical(group.Occurrences)
		group.Canonical = canonical

		for _, tx := range group.Occurrences {
			if tx != canonical && tx.TransactionID != canonical.TransactionID {
				group.DiscardedIDs = append(group.DiscardedIDs, tx.TransactionID)
			}
		}

		outcome.Transactions = append(outcome.Transactions, canonical)
		outcome.Metrics.Kept++
		outcome.Metrics.Dropped += len(group.Occurrences) - 1

		if len(group.Occurrences) > 1 {
			outcome.Groups = append(outcome.Groups, group)
		}
	}

	e.logger.WithFields(logger.Fields{
		"input":        outcome.Metrics.Input,
		"kept":         outcome.Metrics.Kept,
		"dropped":      outcome.Metrics.Dropped,
		"seed_dropped": outcome.Metrics.SeedDropped,
		"groups":       len(outcome.Groups),
	}).Info("Deduplication completed")

	return outcome, nil
}

// selectCanonical picks the surviving occurrence of a duplicate group. The
// candidate set is first narrowed to the occurrences whose void flag matches
// the group majority, then within that set:
//  1. an occurrence with a description beats one without
//  2. a provider-supplied transaction ID beats a synthetic one
//  3. remaining ties go to the earliest observation; when every candidate
//     carries a synthetic ID the config may prefer the latest instead
//
// The survivor is always one of the input records, never a composite.
func (e *Engine) selectCanonical(occurrences []*models.NormalizedBankTransaction) *models.NormalizedBankTransaction {
	candidates := voidMajority(occurrences)

	selected := candidates[0]
	for _, challenger := range candidates[1:] {
		if e.beats(challenger, selected) {
			selected = challenger
		}
	}
	return selected
}

// voidMajority narrows a group to the occurrences whose void flag matches
// the majority vote, ties resolved by the latest observation's flag
func voidMajority(occurrences []*models.NormalizedBankTransaction) []*models.NormalizedBankTransaction {
	voided := 0
	for _, tx := range occurrences {
		if tx.IsVoid {
			voided++
		}
	}

	verdict := occurrences[len(occurrences)-1].IsVoid
	if active := len(occurrences) - voided; voided != active {
		verdict = voided > active
	}

	matching := make([]*models.NormalizedBankTransaction, 0, len(occurrences))
	for _, tx := range occurrences {
		if tx.IsVoid == verdict {
			matching = append(matching, tx)
		}
	}
	return matching
}

// beats reports whether the challenger should replace the currently
// selected occurrence. The challenger is always the later observation.
func (e *Engine) beats(challenger, selected *models.NormalizedBankTransaction) bool {
	challengerDesc := challenger.Description != ""
	selectedDesc := selected.Description != ""
	if challengerDesc != selectedDesc {
		return challengerDesc
	}

	if challenger.SyntheticID != selected.SyntheticID {
		return selected.SyntheticID
	}

	// Provider-supplied IDs give a stable first-seen order, so the earliest
	// observation wins outright. Only all-synthetic ties are configurable.
	if challenger.SyntheticID {
		return e.config.PreferLatestObservation
	}
	return false
}
