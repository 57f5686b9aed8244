// Package refdata loads reference data and users from YAML and resolves
// name-or-id references against the store.
package refdata

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"tradebook-core/pkg/db"
)

//go:embed seed.yaml
var defaultSeed []byte

// Entry is one reference row in the seed file.
type Entry struct {
	ID     int64  `yaml:"id"`
	Name   string `yaml:"name"`
	Active *bool  `yaml:"active"`
}

// SeedUser is one user in the seed file. Password is plain text and hashed on sync.
type SeedUser struct {
	ID        int64  `yaml:"id"`
	LoginID   string `yaml:"login_id"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Password  string `yaml:"password"`
	Profile   string `yaml:"profile"`
	Active    *bool  `yaml:"active"`
}

// Seed is the top-level YAML structure.
type Seed struct {
	Reference map[string][]Entry `yaml:"reference"`
	Users     []SeedUser         `yaml:"users"`
}

// LoadSeed reads a seed file; an empty path returns the embedded default.
func LoadSeed(path string) (*Seed, error) {
	data := defaultSeed
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read seed %s: %w", path, err)
		}
		data = b
	}
	return ParseSeed(data)
}

// ParseSeed decodes and sanity-checks seed YAML.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	known := make(map[string]bool, len(db.Kinds))
	for _, k := range db.Kinds {
		known[k] = true
	}
	normalized := make(map[string][]Entry, len(seed.Reference))
	for kind, entries := range seed.Reference {
		k := strings.ToUpper(strings.TrimSpace(kind))
		if !known[k] {
			return nil, fmt.Errorf("unknown reference kind %q", kind)
		}
		for _, e := range entries {
			if e.ID <= 0 || strings.TrimSpace(e.Name) == "" {
				return nil, fmt.Errorf("%s entry needs a positive id and a name (got id=%d name=%q)", k, e.ID, e.Name)
			}
		}
		normalized[k] = append(normalized[k], entries...)
	}
	seed.Reference = normalized

	for _, u := range seed.Users {
		if u.ID <= 0 || strings.TrimSpace(u.LoginID) == "" {
			return nil, fmt.Errorf("user needs a positive id and a login_id (got id=%d login=%q)", u.ID, u.LoginID)
		}
	}
	return &seed, nil
}

// Sync upserts the seed into the database in one transaction.
func Sync(ctx context.Context, database *db.Database, seed *Seed) error {
	// Hash outside the transaction; bcrypt is slow and the tx holds the only connection.
	users := make([]db.User, 0, len(seed.Users))
	for _, su := range seed.Users {
		u := db.User{
			ID:        su.ID,
			LoginID:   strings.ToLower(strings.TrimSpace(su.LoginID)),
			FirstName: su.FirstName,
			LastName:  su.LastName,
			Profile:   strings.ToUpper(strings.TrimSpace(su.Profile)),
			Active:    isActive(su.Active),
		}
		if su.Password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(su.Password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash password for %s: %w", su.LoginID, err)
			}
			u.PasswordHash = string(hash)
		}
		users = append(users, u)
	}

	return database.WithTx(ctx, func(s *db.Store) error {
		for kind, entries := range seed.Reference {
			for _, e := range entries {
				if err := s.UpsertRef(ctx, db.RefEntity{
					Kind:   kind,
					ID:     e.ID,
					Name:   strings.TrimSpace(e.Name),
					Active: isActive(e.Active),
				}); err != nil {
					return err
				}
			}
		}
		for _, u := range users {
			if err := s.UpsertUser(ctx, u); err != nil {
				return err
			}
		}
		return nil
	})
}

func isActive(v *bool) bool {
	return v == nil || *v
}
