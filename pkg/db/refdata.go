package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ----------------------------------------
// Reference data
// ----------------------------------------

// FindRefByName looks up a reference row by kind and name (case-insensitive).
// Returns nil, nil when no row matches.
func (s *Store) FindRefByName(ctx context.Context, kind, name string) (*RefEntity, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT kind, id, name, active FROM reference_data
		WHERE kind = ? AND name = ? COLLATE NOCASE
		ORDER BY id LIMIT 1
	`, kind, name)
	return scanRef(row)
}

// FindRefByID looks up a reference row by kind and id. Returns nil, nil when missing.
func (s *Store) FindRefByID(ctx context.Context, kind string, id int64) (*RefEntity, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT kind, id, name, active FROM reference_data WHERE kind = ? AND id = ?
	`, kind, id)
	return scanRef(row)
}

// RefExistsActive reports whether an active reference row with this id exists.
func (s *Store) RefExistsActive(ctx context.Context, kind string, id int64) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM reference_data WHERE kind = ? AND id = ? AND active = 1
	`, kind, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check %s %d: %w", kind, id, err)
	}
	return n > 0, nil
}

// ListRefs returns every row of a kind ordered by id.
func (s *Store) ListRefs(ctx context.Context, kind string) ([]RefEntity, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT kind, id, name, active FROM reference_data WHERE kind = ? ORDER BY id
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", kind, err)
	}
	defer rows.Close()

	var out []RefEntity
	for rows.Next() {
		var r RefEntity
		if err := rows.Scan(&r.Kind, &r.ID, &r.Name, &r.Active); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertRef inserts or updates a reference row keyed by (kind, id).
func (s *Store) UpsertRef(ctx context.Context, r RefEntity) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO reference_data (kind, id, name, active) VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET name = excluded.name, active = excluded.active
	`, r.Kind, r.ID, r.Name, r.Active)
	if err != nil {
		return fmt.Errorf("upsert %s %d: %w", r.Kind, r.ID, err)
	}
	return nil
}

func scanRef(row *sql.Row) (*RefEntity, error) {
	var r RefEntity
	if err := row.Scan(&r.Kind, &r.ID, &r.Name, &r.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan reference: %w", err)
	}
	return &r, nil
}

// ----------------------------------------
// Users
// ----------------------------------------

const userColumns = `id, login_id, first_name, last_name, password_hash, user_profile, active, created_at, updated_at`

// UserByLogin returns the user with this login id, or nil, nil.
func (s *Store) UserByLogin(ctx context.Context, loginID string) (*User, error) {
	return scanUser(s.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE login_id = ? COLLATE NOCASE`, loginID))
}

// UserByID returns the user with this id, or nil, nil.
func (s *Store) UserByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(s.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// UserByFirstName returns the first user with this first name, or nil, nil.
func (s *Store) UserByFirstName(ctx context.Context, firstName string) (*User, error) {
	return scanUser(s.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE first_name = ? COLLATE NOCASE ORDER BY id LIMIT 1`, firstName))
}

// UserExistsActive reports whether an active user with this id exists.
func (s *Store) UserExistsActive(ctx context.Context, id int64) (bool, error) {
	var n int
	if err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM users WHERE id = ? AND active = 1`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("check user %d: %w", id, err)
	}
	return n > 0, nil
}

// UpsertUser inserts or updates a user keyed by id. An empty hash keeps the stored one.
func (s *Store) UpsertUser(ctx context.Context, u User) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO users (id, login_id, first_name, last_name, password_hash, user_profile, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			login_id = excluded.login_id,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			password_hash = CASE WHEN excluded.password_hash = '' THEN users.password_hash ELSE excluded.password_hash END,
			user_profile = excluded.user_profile,
			active = excluded.active,
			updated_at = CURRENT_TIMESTAMP
	`, u.ID, u.LoginID, u.FirstName, u.LastName, u.PasswordHash, u.Profile, u.Active)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.LoginID, err)
	}
	return nil
}

// ListUsers returns all users ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.LoginID, &u.FirstName, &u.LastName, &u.PasswordHash,
			&u.Profile, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.LoginID, &u.FirstName, &u.LastName, &u.PasswordHash,
		&u.Profile, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
