package sqlrepo

import (
	"context"
	"database/sql"
	"fmt"

	"fjacquet/stmt-ledger/internal/models"

	"github.com/google/uuid"
)

const tagColumns = `id, owner_id, name, display_name, color, usage_count, created_at`

func (s *Store) GetTag(ctx context.Context, id string) (*models.Tag, error) {
	return scanTag(s.queryRow(ctx, s.db, `SELECT `+tagColumns+` FROM tags WHERE id = ?`, id))
}

func (s *Store) FindTagByName(ctx context.Context, ownerID, name string) (*models.Tag, error) {
	return scanTag(s.queryRow(ctx, s.db, `SELECT `+tagColumns+` FROM tags WHERE owner_id = ? AND name = ?`, ownerID, name))
}

func (s *Store) EnsureTag(ctx context.Context, t *models.Tag) (*models.Tag, bool, error) {
	id := t.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = now()
	}
	res, err := s.exec(ctx, s.db, `INSERT INTO tags (`+tagColumns+`)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT (owner_id, name) DO NOTHING`,
		id, t.OwnerID, t.Name, t.DisplayName, t.Color, timestampArg(createdAt))
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert tag: %w", err)
	}
	created, err := affected(res)
	if err != nil {
		return nil, false, err
	}
	stored, err := s.FindTagByName(ctx, t.OwnerID, t.Name)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *Store) ListTags(ctx context.Context, ownerID string) ([]models.Tag, error) {
	rows, err := s.query(ctx, s.db, `SELECT `+tagColumns+` FROM tags WHERE owner_id = ? ORDER BY name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var out []models.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTag(row scanner) (*models.Tag, error) {
	var (
		t         models.Tag
		createdAt timeValue
	)
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.DisplayName, &t.Color, &t.UsageCount, &createdAt); err != nil {
		return nil, notFound(err)
	}
	t.CreatedAt = createdAt.Time
	return &t, nil
}

func (s *Store) LinkTag(ctx context.Context, link *models.TransactionTag) (bool, error) {
	if err := link.Validate(); err != nil {
		return false, err
	}
	createdAt := link.CreatedAt
	if createdAt.IsZero() {
		createdAt = now()
	}

	var linked bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, `INSERT INTO transaction_tags (transaction_id, tag_id, source, confidence, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (transaction_id, tag_id) DO NOTHING`,
			link.TransactionID, link.TagID, string(link.Source), nullFloat(link.Confidence), timestampArg(createdAt))
		if err != nil {
			return fmt.Errorf("failed to link tag: %w", err)
		}
		if linked, err = affected(res); err != nil || !linked {
			return err
		}
		_, err = s.exec(ctx, tx, `UPDATE tags SET usage_count = usage_count + 1 WHERE id = ?`, link.TagID)
		if err != nil {
			return fmt.Errorf("failed to update tag usage: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if linked {
		link.CreatedAt = createdAt
	}
	return linked, nil
}

func (s *Store) UnlinkTag(ctx context.Context, transactionID, tagID string) (bool, error) {
	var removed bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, `DELETE FROM transaction_tags WHERE transaction_id = ? AND tag_id = ?`, transactionID, tagID)
		if err != nil {
			return fmt.Errorf("failed to unlink tag: %w", err)
		}
		if removed, err = affected(res); err != nil || !removed {
			return err
		}
		_, err = s.exec(ctx, tx, `UPDATE tags SET usage_count = usage_count - 1 WHERE id = ? AND usage_count > 0`, tagID)
		if err != nil {
			return fmt.Errorf("failed to update tag usage: %w", err)
		}
		return nil
	})
	return removed, err
}

func (s *Store) TransactionTags(ctx context.Context, transactionID string) ([]models.TransactionTag, error) {
	rows, err := s.query(ctx, s.db, `SELECT transaction_id, tag_id, source, confidence, created_at
		FROM transaction_tags WHERE transaction_id = ?
		ORDER BY created_at, tag_id`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction tags: %w", err)
	}
	defer rows.Close()

	var out []models.TransactionTag
	for rows.Next() {
		var (
			l          models.TransactionTag
			source     string
			confidence sql.NullFloat64
			createdAt  timeValue
		)
		if err := rows.Scan(&l.TransactionID, &l.TagID, &source, &confidence, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction tag: %w", err)
		}
		l.Source = models.TagSource(source)
		l.Confidence = floatPtr(confidence)
		l.CreatedAt = createdAt.Time
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) CountLinks(ctx context.Context, tagID string) (int, error) {
	var n int
	err := s.queryRow(ctx, s.db, `SELECT COUNT(*) FROM transaction_tags WHERE tag_id = ?`, tagID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}
	return n, nil
}

func (s *Store) MergeTags(ctx context.Context, fromTagID, toTagID string) (int, error) {
	var moved int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range []string{fromTagID, toTagID} {
			var found string
			if err := s.queryRow(ctx, tx, `SELECT id FROM tags WHERE id = ?`, id).Scan(&found); err != nil {
				return fmt.Errorf("failed to merge tags: tag %s: %w", id, notFound(err))
			}
		}
		if fromTagID == toTagID {
			return nil
		}

		res, err := s.exec(ctx, tx, `INSERT INTO transaction_tags (transaction_id, tag_id, source, confidence, created_at)
			SELECT transaction_id, CAST(? AS TEXT), source, confidence, created_at FROM transaction_tags WHERE tag_id = ?
			ON CONFLICT (transaction_id, tag_id) DO NOTHING`, toTagID, fromTagID)
		if err != nil {
			return fmt.Errorf("failed to move tag links: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		moved = int(n)

		if _, err := s.exec(ctx, tx, `DELETE FROM transaction_tags WHERE tag_id = ?`, fromTagID); err != nil {
			return fmt.Errorf("failed to drop merged links: %w", err)
		}
		if _, err := s.exec(ctx, tx, `UPDATE tags SET usage_count = 0 WHERE id = ?`, fromTagID); err != nil {
			return fmt.Errorf("failed to update tag usage: %w", err)
		}
		if _, err := s.exec(ctx, tx, `UPDATE tags SET usage_count = usage_count + ? WHERE id = ?`, moved, toTagID); err != nil {
			return fmt.Errorf("failed to update tag usage: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}

const synonymColumns = `id, owner_id, synonym, canonical_tag_id, source, confidence, is_active, created_at`

func (s *Store) FindSynonym(ctx context.Context, ownerID, synonym string) (*models.TagSynonym, error) {
	row := s.queryRow(ctx, s.db, `SELECT `+synonymColumns+` FROM tag_synonyms
		WHERE owner_id = ? AND synonym = ? AND is_active = ?`, ownerID, synonym, true)
	return scanSynonym(row)
}

func (s *Store) SaveSynonym(ctx context.Context, syn *models.TagSynonym) error {
	id := syn.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := syn.CreatedAt
	if createdAt.IsZero() {
		createdAt = now()
	}
	_, err := s.exec(ctx, s.db, `INSERT INTO tag_synonyms (`+synonymColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, synonym) DO UPDATE SET
			canonical_tag_id = excluded.canonical_tag_id,
			source = excluded.source,
			confidence = excluded.confidence,
			is_active = excluded.is_active`,
		id, syn.OwnerID, syn.Synonym, syn.CanonicalTagID, string(syn.Source), syn.Confidence, syn.IsActive,
		timestampArg(createdAt))
	if err != nil {
		return fmt.Errorf("failed to save synonym: %w", err)
	}

	var stored timeValue
	err = s.queryRow(ctx, s.db, `SELECT id, created_at FROM tag_synonyms WHERE owner_id = ? AND synonym = ?`,
		syn.OwnerID, syn.Synonym).Scan(&syn.ID, &stored)
	if err != nil {
		return fmt.Errorf("failed to read synonym: %w", err)
	}
	syn.CreatedAt = stored.Time
	return nil
}

func (s *Store) ListSynonyms(ctx context.Context, ownerID string) ([]models.TagSynonym, error) {
	rows, err := s.query(ctx, s.db, `SELECT `+synonymColumns+` FROM tag_synonyms
		WHERE owner_id = ? ORDER BY synonym`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query synonyms: %w", err)
	}
	defer rows.Close()

	var out []models.TagSynonym
	for rows.Next() {
		syn, err := scanSynonym(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *syn)
	}
	return out, rows.Err()
}

func scanSynonym(row scanner) (*models.TagSynonym, error) {
	var (
		syn       models.TagSynonym
		source    string
		createdAt timeValue
	)
	err := row.Scan(&syn.ID, &syn.OwnerID, &syn.Synonym, &syn.CanonicalTagID, &source, &syn.Confidence,
		&syn.IsActive, &createdAt)
	if err != nil {
		return nil, notFound(err)
	}
	syn.Source = models.SynonymSource(source)
	syn.CreatedAt = createdAt.Time
	return &syn, nil
}
