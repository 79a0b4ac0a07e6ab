package importer

import (
	"context"
	"errors"
	"fmt"

	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/models"
	"fjacquet/stmt-ledger/internal/parsererror"
	"fjacquet/stmt-ledger/internal/tagging"
)

// SuggestTags returns the tag proposals for a transaction without
// applying them.
func (i *Importer) SuggestTags(ctx context.Context, transactionID string) ([]tagging.Proposal, error) {
	tx, err := i.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", transactionID, err)
	}
	return i.engine.Suggest(ctx, tx)
}

// ApplyTags links the given tags to a transaction as manual tags and
// returns how many links were created.
func (i *Importer) ApplyTags(ctx context.Context, transactionID string, tagIDs []string) (int, error) {
	tx, err := i.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return 0, fmt.Errorf("failed to load transaction %s: %w", transactionID, err)
	}
	return i.ledger.ApplyTags(ctx, tx, tagIDs)
}

// RemoveTag unlinks a tag from a transaction.
func (i *Importer) RemoveTag(ctx context.Context, transactionID, tagID string) (bool, error) {
	tx, err := i.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return false, fmt.Errorf("failed to load transaction %s: %w", transactionID, err)
	}
	return i.ledger.RemoveTag(ctx, tx, tagID)
}

// AutoTagResult summarizes an AutoTagAll run.
type AutoTagResult struct {
	Transactions int `json:"transactions"`
	Enriched     int `json:"enriched"`
	Tagged       int `json:"tagged"`
	Links        int `json:"links"`
}

// AutoTagAll enriches and auto-tags every untagged transaction of
// ownerID. It holds the owner's import lock while it runs.
func (i *Importer) AutoTagAll(ctx context.Context, ownerID string) (AutoTagResult, error) {
	var res AutoTagResult
	unlock, err := i.locks.lock(ctx, ownerID)
	if err != nil {
		return res, err
	}
	defer unlock()

	txs, err := i.repo.ListUntagged(ctx, ownerID)
	if err != nil {
		return res, fmt.Errorf("failed to list untagged transactions: %w", err)
	}
	res.Transactions = len(txs)

	for k := range txs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		tx := &txs[k]
		if !tx.HasMerchant() {
			enriched, _, err := i.extractor.Enrich(ctx, tx)
			switch {
			case errors.Is(err, parsererror.ErrEnrichmentAmbiguous):
				// tagged without a merchant
			case err != nil:
				return res, err
			default:
				if enriched.HasMerchant() {
					res.Enriched++
				}
				tx = enriched
			}
		}

		assigned, err := i.engine.Apply(ctx, tx)
		if err != nil {
			return res, err
		}
		created := 0
		for _, a := range assigned {
			if a.Created {
				created++
			}
		}
		if created > 0 {
			res.Tagged++
			res.Links += created
		}
	}

	i.logger.Info("Auto-tagged untagged transactions",
		logging.F(logging.FieldOwner, ownerID),
		logging.F(logging.FieldCount, res.Transactions),
		logging.F("tagged", res.Tagged),
		logging.F("links", res.Links))
	return res, nil
}

// Transaction returns one transaction with its tag names.
func (i *Importer) Transaction(ctx context.Context, transactionID string) (*models.Transaction, []string, error) {
	tx, err := i.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load transaction %s: %w", transactionID, err)
	}
	tags, err := i.ledger.Tags(ctx, tx.ID)
	if err != nil {
		return nil, nil, err
	}
	return tx, tags, nil
}
