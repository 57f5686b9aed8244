package db

import (
	"context"
	"fmt"
)

// InsertAuditQuery is the statement batch writers use for trade_audit rows.
const InsertAuditQuery = `INSERT OR IGNORE INTO trade_audit (id, event, trade_id, version, status, actor, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

// InsertAudit stores a single audit record.
func (s *Store) InsertAudit(ctx context.Context, r AuditRecord) error {
	if _, err := s.q.ExecContext(ctx, InsertAuditQuery,
		r.ID, r.Event, r.TradeID, r.Version, r.Status, r.Actor, r.CreatedAt); err != nil {
		return fmt.Errorf("insert audit %s: %w", r.ID, err)
	}
	return nil
}

// AuditTrail returns the recorded lifecycle events for a trade, oldest first.
func (s *Store) AuditTrail(ctx context.Context, tradeID int64) ([]AuditRecord, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, event, trade_id, version, status, actor, created_at
		FROM trade_audit WHERE trade_id = ? ORDER BY created_at, rowid
	`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("query audit %d: %w", tradeID, err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var r AuditRecord
		if err := rows.Scan(&r.ID, &r.Event, &r.TradeID, &r.Version, &r.Status, &r.Actor, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
