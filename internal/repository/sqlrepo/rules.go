package sqlrepo

import (
	"context"
	"encoding/json"
	"fmt"

	"fjacquet/stmt-ledger/internal/models"

	"github.com/google/uuid"
)

const ruleColumns = `id, owner_id, name, description, priority, condition_json, tag_ids, confidence, is_active, created_at`

func (s *Store) CreateRule(ctx context.Context, r *models.TaggingRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	tagIDs, err := json.Marshal(r.TagIDs)
	if err != nil {
		return fmt.Errorf("failed to encode rule tags: %w", err)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now()
	}
	_, err = s.exec(ctx, s.db, `INSERT INTO tagging_rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.OwnerID, r.Name, nullString(r.Description), r.Priority, r.Condition, string(tagIDs),
		r.Confidence, r.IsActive, timestampArg(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

func (s *Store) ListRules(ctx context.Context, ownerID string, activeOnly bool) ([]models.TaggingRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM tagging_rules WHERE owner_id = ?`
	args := []any{ownerID}
	if activeOnly {
		query += ` AND is_active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY priority DESC, created_at, id`

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var out []models.TaggingRule
	for rows.Next() {
		var (
			r           models.TaggingRule
			description *string
			tagIDs      string
			createdAt   timeValue
		)
		err := rows.Scan(&r.ID, &r.OwnerID, &r.Name, &description, &r.Priority, &r.Condition, &tagIDs,
			&r.Confidence, &r.IsActive, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		if description != nil {
			r.Description = *description
		}
		if err := json.Unmarshal([]byte(tagIDs), &r.TagIDs); err != nil {
			return nil, fmt.Errorf("rule %s: malformed tag list: %w", r.ID, err)
		}
		r.CreatedAt = createdAt.Time
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) HasApplication(ctx context.Context, ruleID, transactionID string) (bool, error) {
	var n int
	err := s.queryRow(ctx, s.db, `SELECT COUNT(*) FROM rule_applications WHERE rule_id = ? AND transaction_id = ?`,
		ruleID, transactionID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check rule application: %w", err)
	}
	return n > 0, nil
}

func (s *Store) RecordApplication(ctx context.Context, app *models.RuleApplication) (bool, error) {
	if app.AppliedAt.IsZero() {
		app.AppliedAt = now()
	}
	res, err := s.exec(ctx, s.db, `INSERT INTO rule_applications (rule_id, transaction_id, applied_at)
		VALUES (?, ?, ?)
		ON CONFLICT (rule_id, transaction_id) DO NOTHING`,
		app.RuleID, app.TransactionID, timestampArg(app.AppliedAt))
	if err != nil {
		return false, fmt.Errorf("failed to record rule application: %w", err)
	}
	return affected(res)
}
