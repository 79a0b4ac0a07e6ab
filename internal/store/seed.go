package store

import (
	"context"
	"fmt"

	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/models"
	"fjacquet/stmt-ledger/internal/repository"
	"fjacquet/stmt-ledger/internal/textutils"
)

// SeedResult counts what Seed created.
type SeedResult struct {
	Merchants   int
	Patterns    int
	DefaultTags int
}

// Seed creates the known merchants with their patterns and default tags.
// Rows that already exist are left untouched, so Seed can run on every start.
func Seed(ctx context.Context, repo repository.MerchantRepository, t *Tables, logger logging.Logger) (SeedResult, error) {
	var res SeedResult
	for _, km := range t.Merchants {
		m, created, err := repo.EnsureMerchant(ctx, &models.Merchant{
			NormalizedName: textutils.Fold(km.Name),
			DisplayName:    km.Name,
			Category:       km.Category,
			Website:        km.Website,
		})
		if err != nil {
			return res, fmt.Errorf("failed to seed merchant %s: %w", km.Name, err)
		}
		if created {
			res.Merchants++
		}

		for _, p := range km.Patterns {
			pattern := p.Pattern
			if p.Kind != models.PatternRegex {
				pattern = textutils.Fold(pattern)
			}
			added, err := repo.AddPattern(ctx, &models.MerchantPattern{
				MerchantID: m.ID,
				Kind:       p.Kind,
				Pattern:    pattern,
				Priority:   p.Priority,
			})
			if err != nil {
				return res, fmt.Errorf("failed to seed pattern %q for %s: %w", p.Pattern, km.Name, err)
			}
			if added {
				res.Patterns++
			}
		}

		for _, d := range km.Tags {
			confidence := d.Confidence
			if confidence == 0 {
				confidence = t.MerchantTagConfidence
			}
			added, err := repo.AddDefaultTag(ctx, &models.MerchantDefaultTag{
				MerchantID: m.ID,
				TagName:    models.NormalizeTagName(d.Name),
				Confidence: confidence,
				Priority:   d.Priority,
			})
			if err != nil {
				return res, fmt.Errorf("failed to seed default tag %s for %s: %w", d.Name, km.Name, err)
			}
			if added {
				res.DefaultTags++
			}
		}
	}

	if res != (SeedResult{}) {
		logger.Info("Seeded known merchants",
			logging.F("merchants", res.Merchants),
			logging.F("patterns", res.Patterns),
			logging.F("default_tags", res.DefaultTags))
	}
	return res, nil
}
