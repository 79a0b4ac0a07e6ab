// Package ledger is the only writer of tag links, usage counters and
// synonyms. Usage counters change in the same repository transaction as
// the link they count, so they always equal the number of links.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/models"
	"fjacquet/stmt-ledger/internal/parsererror"
	"fjacquet/stmt-ledger/internal/repository"
)

// Ledger applies and removes tags.
type Ledger struct {
	tags   repository.TagRepository
	logger logging.Logger
}

// New returns a Ledger over tags.
func New(tags repository.TagRepository, logger logging.Logger) *Ledger {
	return &Ledger{tags: tags, logger: logger}
}

// EnsureTag returns the owner's tag for name, creating it when needed. A
// name recorded as an active synonym resolves to its canonical tag instead.
func (l *Ledger) EnsureTag(ctx context.Context, ownerID, name string) (*models.Tag, error) {
	normalized := models.NormalizeTagName(name)
	if normalized == "" {
		return nil, &parsererror.ValidationError{Field: "tag name", Reason: fmt.Sprintf("%q is empty", name)}
	}

	canonical, err := l.canonical(ctx, ownerID, normalized)
	if err != nil {
		return nil, err
	}
	if canonical != nil {
		return canonical, nil
	}

	tag, created, err := l.tags.EnsureTag(ctx, &models.Tag{
		OwnerID:     ownerID,
		Name:        normalized,
		DisplayName: models.TagDisplayName(normalized),
		Color:       models.TagColor(normalized),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure tag %s: %w", normalized, err)
	}
	if created {
		l.logger.Debug("Created tag",
			logging.F(logging.FieldOwner, ownerID),
			logging.F(logging.FieldTag, normalized))
	}
	return tag, nil
}

// CanonicalName maps a tag name to the name of its canonical tag, or to
// its normalized form when no synonym is recorded.
func (l *Ledger) CanonicalName(ctx context.Context, ownerID, name string) (string, error) {
	normalized := models.NormalizeTagName(name)
	canonical, err := l.canonical(ctx, ownerID, normalized)
	if err != nil {
		return "", err
	}
	if canonical != nil {
		return canonical.Name, nil
	}
	return normalized, nil
}

// canonical follows the synonym chain starting at normalized and returns
// the tag it ends on, or nil when normalized is not a synonym.
func (l *Ledger) canonical(ctx context.Context, ownerID, normalized string) (*models.Tag, error) {
	var tag *models.Tag
	visited := map[string]bool{normalized: true}
	for name := normalized; ; name = tag.Name {
		syn, err := l.tags.FindSynonym(ctx, ownerID, name)
		if errors.Is(err, repository.ErrNotFound) {
			return tag, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up synonym %s: %w", name, err)
		}
		next, err := l.tags.GetTag(ctx, syn.CanonicalTagID)
		if err != nil {
			return nil, fmt.Errorf("failed to load canonical tag of %s: %w", name, err)
		}
		if visited[next.Name] {
			l.logger.Warn("Synonym cycle",
				logging.F(logging.FieldOwner, ownerID),
				logging.F(logging.FieldTag, normalized))
			return next, nil
		}
		visited[next.Name] = true
		tag = next
	}
}

// resolve loads tagID for ownerID and follows a synonym redirect.
func (l *Ledger) resolve(ctx context.Context, ownerID, tagID string) (*models.Tag, error) {
	tag, err := l.tags.GetTag(ctx, tagID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tag %s: %w", tagID, err)
	}
	if tag.OwnerID != ownerID {
		return nil, &parsererror.ValidationError{Field: "tag", Reason: fmt.Sprintf("tag %s belongs to another owner", tagID)}
	}
	canonical, err := l.canonical(ctx, ownerID, tag.Name)
	if err != nil {
		return nil, err
	}
	if canonical != nil && canonical.ID != tag.ID {
		return canonical, nil
	}
	return tag, nil
}

// ApplyTag links tx to the tag. It is a no-op when any link between the
// two already exists, whatever its source. Confidence is dropped for
// manual links. It reports whether a link was created.
func (l *Ledger) ApplyTag(ctx context.Context, tx *models.Transaction, tagID string, source models.TagSource, confidence *float64) (bool, error) {
	tag, err := l.resolve(ctx, tx.OwnerID, tagID)
	if err != nil {
		return false, err
	}
	if !source.IsAutomatic() {
		confidence = nil
	}

	link := &models.TransactionTag{
		TransactionID: tx.ID,
		TagID:         tag.ID,
		Source:        source,
		Confidence:    confidence,
	}
	if err := link.Validate(); err != nil {
		return false, &parsererror.ValidationError{Field: "tag link", Reason: err.Error()}
	}

	created, err := l.tags.LinkTag(ctx, link)
	if err != nil {
		return false, fmt.Errorf("failed to link tag %s: %w", tag.Name, err)
	}
	if created {
		l.logger.Debug("Applied tag",
			logging.F(logging.FieldTransactionID, tx.ID),
			logging.F(logging.FieldTag, tag.Name),
			logging.F(logging.FieldSource, string(source)))
	}
	return created, nil
}

// RemoveTag deletes the link between tx and the tag if there is one. It
// reports whether a link was removed.
func (l *Ledger) RemoveTag(ctx context.Context, tx *models.Transaction, tagID string) (bool, error) {
	tag, err := l.resolve(ctx, tx.OwnerID, tagID)
	if err != nil {
		return false, err
	}
	removed, err := l.tags.UnlinkTag(ctx, tx.ID, tag.ID)
	if err != nil {
		return false, fmt.Errorf("failed to unlink tag %s: %w", tag.Name, err)
	}
	if removed {
		l.logger.Debug("Removed tag",
			logging.F(logging.FieldTransactionID, tx.ID),
			logging.F(logging.FieldTag, tag.Name))
	}
	return removed, nil
}

// ApplyTags links tx to each tag as a manual assignment and returns how
// many links were created.
func (l *Ledger) ApplyTags(ctx context.Context, tx *models.Transaction, tagIDs []string) (int, error) {
	created := 0
	for _, id := range tagIDs {
		ok, err := l.ApplyTag(ctx, tx, id, models.SourceManual, nil)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// RecordSynonym records that synonym means the canonical tag. If synonym
// already exists as a separate tag, its links move onto the canonical tag.
// It returns the number of links moved.
func (l *Ledger) RecordSynonym(ctx context.Context, ownerID, synonym, canonicalTagID string, source models.SynonymSource, confidence float64) (int, error) {
	name := models.NormalizeTagName(synonym)
	if name == "" {
		return 0, &parsererror.ValidationError{Field: "synonym", Reason: "empty synonym"}
	}
	if confidence < 0 || confidence > 1 {
		return 0, &parsererror.ValidationError{Field: "synonym confidence", Reason: fmt.Sprintf("%.2f outside [0,1]", confidence)}
	}

	canonical, err := l.tags.GetTag(ctx, canonicalTagID)
	if err != nil {
		return 0, fmt.Errorf("failed to load canonical tag %s: %w", canonicalTagID, err)
	}
	if canonical.OwnerID != ownerID {
		return 0, &parsererror.ValidationError{Field: "canonical tag", Reason: "belongs to another owner"}
	}
	// point at the end of the chain; this also refuses cycles
	end, err := l.canonical(ctx, ownerID, canonical.Name)
	if err != nil {
		return 0, err
	}
	if end != nil {
		canonical = end
	}
	if canonical.Name == name {
		return 0, &parsererror.ValidationError{Field: "synonym", Reason: fmt.Sprintf("%s is the canonical name", name)}
	}
	if source == "" {
		source = models.SynonymManual
	}

	if err := l.tags.SaveSynonym(ctx, &models.TagSynonym{
		OwnerID:        ownerID,
		Synonym:        name,
		CanonicalTagID: canonical.ID,
		Source:         source,
		Confidence:     confidence,
		IsActive:       true,
	}); err != nil {
		return 0, fmt.Errorf("failed to save synonym %s: %w", name, err)
	}

	alias, err := l.tags.FindTagByName(ctx, ownerID, name)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up tag %s: %w", name, err)
	}

	moved, err := l.tags.MergeTags(ctx, alias.ID, canonical.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to merge %s into %s: %w", name, canonical.Name, err)
	}
	l.logger.Info("Merged synonym tag",
		logging.F(logging.FieldOwner, ownerID),
		logging.F(logging.FieldTag, canonical.Name),
		logging.F("synonym", name),
		logging.F(logging.FieldCount, moved))
	return moved, nil
}

// Tags returns the names of the tags linked to tx, in link order.
func (l *Ledger) Tags(ctx context.Context, transactionID string) ([]string, error) {
	links, err := l.tags.TransactionTags(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tags of %s: %w", transactionID, err)
	}
	names := make([]string, 0, len(links))
	for _, link := range links {
		tag, err := l.tags.GetTag(ctx, link.TagID)
		if err != nil {
			return nil, fmt.Errorf("failed to load tag %s: %w", link.TagID, err)
		}
		names = append(names, tag.Name)
	}
	return names, nil
}

// ParseTagNames splits a comma separated list of tag names.
func ParseTagNames(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		if n := models.NormalizeTagName(part); n != "" {
			names = append(names, n)
		}
	}
	return names
}
