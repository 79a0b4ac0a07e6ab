package sqlrepo

import (
	"context"
	"database/sql"
	"fmt"

	"fjacquet/stmt-ledger/internal/models"

	"github.com/google/uuid"
)

const merchantColumns = `id, normalized_name, display_name, category, logo_url, website, created_at`

func (s *Store) GetMerchant(ctx context.Context, id string) (*models.Merchant, error) {
	return scanMerchant(s.queryRow(ctx, s.db, `SELECT `+merchantColumns+` FROM merchants WHERE id = ?`, id))
}

func (s *Store) FindMerchantByName(ctx context.Context, normalizedName string) (*models.Merchant, error) {
	return scanMerchant(s.queryRow(ctx, s.db, `SELECT `+merchantColumns+` FROM merchants WHERE normalized_name = ?`, normalizedName))
}

func (s *Store) EnsureMerchant(ctx context.Context, m *models.Merchant) (*models.Merchant, bool, error) {
	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = now()
	}
	res, err := s.exec(ctx, s.db, `INSERT INTO merchants (`+merchantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (normalized_name) DO NOTHING`,
		id, m.NormalizedName, m.DisplayName,
		nullString(m.Category), nullString(m.LogoURL), nullString(m.Website), timestampArg(createdAt))
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert merchant: %w", err)
	}
	created, err := affected(res)
	if err != nil {
		return nil, false, err
	}
	stored, err := s.FindMerchantByName(ctx, m.NormalizedName)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *Store) ListMerchants(ctx context.Context) ([]models.Merchant, error) {
	rows, err := s.query(ctx, s.db, `SELECT `+merchantColumns+` FROM merchants ORDER BY normalized_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query merchants: %w", err)
	}
	defer rows.Close()

	var out []models.Merchant
	for rows.Next() {
		m, err := scanMerchant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanMerchant(row scanner) (*models.Merchant, error) {
	var (
		m                       models.Merchant
		category, logo, website sql.NullString
		createdAt               timeValue
	)
	if err := row.Scan(&m.ID, &m.NormalizedName, &m.DisplayName, &category, &logo, &website, &createdAt); err != nil {
		return nil, notFound(err)
	}
	m.Category = category.String
	m.LogoURL = logo.String
	m.Website = website.String
	m.CreatedAt = createdAt.Time
	return &m, nil
}

func (s *Store) AddPattern(ctx context.Context, p *models.MerchantPattern) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	res, err := s.exec(ctx, s.db, `INSERT INTO merchant_patterns (id, merchant_id, kind, pattern, priority)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (merchant_id, kind, pattern) DO NOTHING`,
		id, p.MerchantID, string(p.Kind), p.Pattern, p.Priority)
	if err != nil {
		return false, fmt.Errorf("failed to add pattern: %w", err)
	}
	added, err := affected(res)
	if err != nil {
		return false, err
	}
	if !added {
		err = s.queryRow(ctx, s.db, `SELECT id FROM merchant_patterns WHERE merchant_id = ? AND kind = ? AND pattern = ?`,
			p.MerchantID, string(p.Kind), p.Pattern).Scan(&id)
		if err != nil {
			return false, fmt.Errorf("failed to read pattern: %w", err)
		}
	}
	p.ID = id
	return added, nil
}

func (s *Store) ListPatterns(ctx context.Context) ([]models.MerchantPattern, error) {
	rows, err := s.query(ctx, s.db, `SELECT id, merchant_id, kind, pattern, priority
		FROM merchant_patterns ORDER BY priority DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var out []models.MerchantPattern
	for rows.Next() {
		var (
			p    models.MerchantPattern
			kind string
		)
		if err := rows.Scan(&p.ID, &p.MerchantID, &kind, &p.Pattern, &p.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		p.Kind = models.PatternKind(kind)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) AddDefaultTag(ctx context.Context, d *models.MerchantDefaultTag) (bool, error) {
	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	res, err := s.exec(ctx, s.db, `INSERT INTO merchant_default_tags (id, merchant_id, tag_name, confidence, priority)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (merchant_id, tag_name) DO NOTHING`,
		id, d.MerchantID, d.TagName, d.Confidence, d.Priority)
	if err != nil {
		return false, fmt.Errorf("failed to add default tag: %w", err)
	}
	added, err := affected(res)
	if err != nil {
		return false, err
	}
	if !added {
		err = s.queryRow(ctx, s.db, `SELECT id FROM merchant_default_tags WHERE merchant_id = ? AND tag_name = ?`,
			d.MerchantID, d.TagName).Scan(&id)
		if err != nil {
			return false, fmt.Errorf("failed to read default tag: %w", err)
		}
	}
	d.ID = id
	return added, nil
}

func (s *Store) DefaultTags(ctx context.Context, merchantID string) ([]models.MerchantDefaultTag, error) {
	rows, err := s.query(ctx, s.db, `SELECT id, merchant_id, tag_name, confidence, priority
		FROM merchant_default_tags WHERE merchant_id = ?
		ORDER BY priority DESC, tag_name`, merchantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query default tags: %w", err)
	}
	defer rows.Close()

	var out []models.MerchantDefaultTag
	for rows.Next() {
		var d models.MerchantDefaultTag
		if err := rows.Scan(&d.ID, &d.MerchantID, &d.TagName, &d.Confidence, &d.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan default tag: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const storeColumns = `id, merchant_id, store_identifier, name, address, city, postal_code, country,
	latitude, longitude, created_at`

func (s *Store) EnsureStore(ctx context.Context, st *models.Store) (*models.Store, bool, error) {
	id := st.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := st.CreatedAt
	if createdAt.IsZero() {
		createdAt = now()
	}
	res, err := s.exec(ctx, s.db, `INSERT INTO stores (`+storeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (merchant_id, store_identifier) DO NOTHING`,
		id, st.MerchantID, st.Identifier, nullString(st.Name), nullString(st.Address), nullString(st.City),
		nullString(st.PostalCode), nullString(st.Country), nullFloat(st.Latitude), nullFloat(st.Longitude),
		timestampArg(createdAt))
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert store: %w", err)
	}
	created, err := affected(res)
	if err != nil {
		return nil, false, err
	}
	stored, err := scanStore(s.queryRow(ctx, s.db, `SELECT `+storeColumns+` FROM stores
		WHERE merchant_id = ? AND store_identifier = ?`, st.MerchantID, st.Identifier))
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *Store) ListStores(ctx context.Context, merchantID string) ([]models.Store, error) {
	rows, err := s.query(ctx, s.db, `SELECT `+storeColumns+` FROM stores
		WHERE merchant_id = ? ORDER BY store_identifier`, merchantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stores: %w", err)
	}
	defer rows.Close()

	var out []models.Store
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func scanStore(row scanner) (*models.Store, error) {
	var (
		st                  models.Store
		name, address, city sql.NullString
		postalCode, country sql.NullString
		latitude, longitude sql.NullFloat64
		createdAt           timeValue
	)
	err := row.Scan(&st.ID, &st.MerchantID, &st.Identifier, &name, &address, &city, &postalCode, &country,
		&latitude, &longitude, &createdAt)
	if err != nil {
		return nil, notFound(err)
	}
	st.Name = name.String
	st.Address = address.String
	st.City = city.String
	st.PostalCode = postalCode.String
	st.Country = country.String
	st.Latitude = floatPtr(latitude)
	st.Longitude = floatPtr(longitude)
	st.CreatedAt = createdAt.Time
	return &st, nil
}
