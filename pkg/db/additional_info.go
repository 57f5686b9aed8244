package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const infoColumns = `id, entity_type, entity_id, field_name, field_value, field_type, version, active,
	created_date, last_modified_date, deactivated_date`

func scanInfo(r rowScanner) (AdditionalInfo, error) {
	var (
		ai          AdditionalInfo
		deactivated sql.NullTime
	)
	err := r.Scan(&ai.ID, &ai.EntityType, &ai.EntityID, &ai.FieldName, &ai.FieldValue, &ai.FieldType,
		&ai.Version, &ai.Active, &ai.CreatedDate, &ai.LastModifiedDate, &deactivated)
	if err != nil {
		return AdditionalInfo{}, err
	}
	ai.DeactivatedDate = nullTimePtr(deactivated)
	return ai, nil
}

func (s *Store) oneInfo(ctx context.Context, query string, args ...any) (*AdditionalInfo, error) {
	ai, err := scanInfo(s.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan additional info: %w", err)
	}
	return &ai, nil
}

// ActiveInfo returns the active row for key, or nil, nil.
func (s *Store) ActiveInfo(ctx context.Context, key InfoKey) (*AdditionalInfo, error) {
	return s.oneInfo(ctx, `SELECT `+infoColumns+` FROM additional_info
		WHERE entity_type = ? AND entity_id = ? AND field_name = ? AND active = 1`,
		key.EntityType, key.EntityID, key.FieldName)
}

// LatestInfo returns the most recently created row for key regardless of
// the active flag, or nil, nil.
func (s *Store) LatestInfo(ctx context.Context, key InfoKey) (*AdditionalInfo, error) {
	return s.oneInfo(ctx, `SELECT `+infoColumns+` FROM additional_info
		WHERE entity_type = ? AND entity_id = ? AND field_name = ?
		ORDER BY created_date DESC, id DESC LIMIT 1`,
		key.EntityType, key.EntityID, key.FieldName)
}

// InfoHistory returns every row for key, oldest version first.
func (s *Store) InfoHistory(ctx context.Context, key InfoKey) ([]AdditionalInfo, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+infoColumns+` FROM additional_info
		WHERE entity_type = ? AND entity_id = ? AND field_name = ?
		ORDER BY version, id`, key.EntityType, key.EntityID, key.FieldName)
	if err != nil {
		return nil, fmt.Errorf("query additional info history: %w", err)
	}
	return collectInfo(rows)
}

// ActiveInfoForEntity returns every active field attached to one entity.
func (s *Store) ActiveInfoForEntity(ctx context.Context, entityType string, entityID int64) ([]AdditionalInfo, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+infoColumns+` FROM additional_info
		WHERE entity_type = ? AND entity_id = ? AND active = 1
		ORDER BY field_name`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("query additional info: %w", err)
	}
	return collectInfo(rows)
}

// ActiveInfoByField returns every active row for a field name across entities.
func (s *Store) ActiveInfoByField(ctx context.Context, entityType, fieldName string) ([]AdditionalInfo, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+infoColumns+` FROM additional_info
		WHERE entity_type = ? AND field_name = ? AND active = 1
		ORDER BY entity_id`, entityType, fieldName)
	if err != nil {
		return nil, fmt.Errorf("query additional info by field: %w", err)
	}
	return collectInfo(rows)
}

// InsertInfo stores a new row and sets ai.ID.
func (s *Store) InsertInfo(ctx context.Context, ai *AdditionalInfo) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO additional_info (entity_type, entity_id, field_name, field_value, field_type, version,
			active, created_date, last_modified_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ai.EntityType, ai.EntityID, ai.FieldName, ai.FieldValue, ai.FieldType, ai.Version, ai.Active,
		ai.CreatedDate, ai.LastModifiedDate)
	if err != nil {
		return fmt.Errorf("insert additional info %s/%d/%s: %w", ai.EntityType, ai.EntityID, ai.FieldName, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("additional info row id: %w", err)
	}
	ai.ID = id
	return nil
}

// DeactivateInfo retires an active row. ErrStaleVersion if it was no longer active.
func (s *Store) DeactivateInfo(ctx context.Context, id int64, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE additional_info SET active = 0, deactivated_date = ?, last_modified_date = ?
		WHERE id = ? AND active = 1
	`, at, at, id)
	if err != nil {
		return fmt.Errorf("deactivate additional info %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate additional info %d: %w", id, err)
	}
	if n != 1 {
		return ErrStaleVersion
	}
	return nil
}

func collectInfo(rows *sql.Rows) ([]AdditionalInfo, error) {
	defer rows.Close()
	var out []AdditionalInfo
	for rows.Next() {
		ai, err := scanInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan additional info: %w", err)
		}
		out = append(out, ai)
	}
	return out, rows.Err()
}
