package db

import (
	"context"
	"fmt"
)

// NextSequenceValue atomically advances the named counter and returns the new value.
// The first call for a name returns base.
func (s *Store) NextSequenceValue(ctx context.Context, name string, base int64) (int64, error) {
	var v int64
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO sequences (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value
	`, name, base).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("next %s: %w", name, err)
	}
	return v, nil
}

// SetSequenceFloor makes sure the next value handed out is greater than floor.
func (s *Store) SetSequenceFloor(ctx context.Context, name string, floor int64) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO sequences (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = MAX(value, excluded.value)
	`, name, floor)
	if err != nil {
		return fmt.Errorf("set %s floor: %w", name, err)
	}
	return nil
}
