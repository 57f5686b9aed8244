// Package settlement keeps versioned additional fields on entities, the
// settlement instructions of a trade being the main one.
package settlement

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"tradebook-core/internal/apperr"
	"tradebook-core/pkg/db"
)

const (
	EntityTypeTrade             = "TRADE"
	FieldSettlementInstructions = "SETTLEMENT_INSTRUCTIONS"
	FieldTypeString             = "STRING"

	// MaxSearchLength caps the text accepted by instruction searches.
	MaxSearchLength = 200
)

var (
	allowedInstructions = regexp.MustCompile(`^[a-zA-Z0-9\s.,:\-/()#$&%*+']{10,500}$`)
	searchStrip         = regexp.MustCompile(`[^a-zA-Z0-9\s.,-]`)
)

// Store is the slice of pkg/db the versioner needs. Both the plain store and a
// transaction store satisfy it.
type Store interface {
	ActiveInfo(ctx context.Context, key db.InfoKey) (*db.AdditionalInfo, error)
	LatestInfo(ctx context.Context, key db.InfoKey) (*db.AdditionalInfo, error)
	InfoHistory(ctx context.Context, key db.InfoKey) ([]db.AdditionalInfo, error)
	ActiveInfoForEntity(ctx context.Context, entityType string, entityID int64) ([]db.AdditionalInfo, error)
	InsertInfo(ctx context.Context, ai *db.AdditionalInfo) error
	DeactivateInfo(ctx context.Context, id int64, at time.Time) error
}

// Versioner writes append-only versions: an update retires the active row and
// inserts the next version.
type Versioner struct {
	store Store
	now   func() time.Time
}

// New returns a versioner over store.
func New(store Store) *Versioner {
	return &Versioner{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock returns a copy that stamps rows with now.
func (v *Versioner) WithClock(now func() time.Time) *Versioner {
	cp := *v
	cp.now = now
	return &cp
}

// TradeKey addresses the settlement instructions of one trade row.
func TradeKey(tradeRowID int64) db.InfoKey {
	return db.InfoKey{EntityType: EntityTypeTrade, EntityID: tradeRowID, FieldName: FieldSettlementInstructions}
}

// Upsert stores value as the new active version of key.
func (v *Versioner) Upsert(ctx context.Context, key db.InfoKey, value, fieldType string) (*db.AdditionalInfo, error) {
	now := v.now()
	existing, err := v.store.ActiveInfo(ctx, key)
	if err != nil {
		return nil, err
	}

	version := 1
	if existing != nil {
		if err := v.store.DeactivateInfo(ctx, existing.ID, now); err != nil {
			return nil, fmt.Errorf("retire %s/%d/%s v%d: %w", key.EntityType, key.EntityID, key.FieldName, existing.Version, err)
		}
		version = existing.Version + 1
	}
	if fieldType == "" {
		fieldType = FieldTypeString
	}

	info := &db.AdditionalInfo{
		EntityType:       key.EntityType,
		EntityID:         key.EntityID,
		FieldName:        key.FieldName,
		FieldValue:       value,
		FieldType:        fieldType,
		Version:          version,
		Active:           true,
		CreatedDate:      now,
		LastModifiedDate: now,
	}
	if err := v.store.InsertInfo(ctx, info); err != nil {
		return nil, err
	}
	return info, nil
}

// Get returns the active value of key, or "" when there is none.
func (v *Versioner) Get(ctx context.Context, key db.InfoKey) (string, bool, error) {
	info, err := v.store.ActiveInfo(ctx, key)
	if err != nil || info == nil {
		return "", false, err
	}
	return info.FieldValue, true, nil
}

// GetByEntityPrimaryKey returns the most recently written value of key even if
// it is no longer active. Amendments use it to read the previous trade row.
func (v *Versioner) GetByEntityPrimaryKey(ctx context.Context, key db.InfoKey) (string, bool, error) {
	info, err := v.store.LatestInfo(ctx, key)
	if err != nil || info == nil {
		return "", false, err
	}
	return info.FieldValue, true, nil
}

// Remove deactivates the active row of key. It is a no-op when none exists.
func (v *Versioner) Remove(ctx context.Context, key db.InfoKey) error {
	info, err := v.store.ActiveInfo(ctx, key)
	if err != nil || info == nil {
		return err
	}
	return v.store.DeactivateInfo(ctx, info.ID, v.now())
}

// ListActive returns the active fields of one entity.
func (v *Versioner) ListActive(ctx context.Context, entityType string, entityID int64) ([]db.AdditionalInfo, error) {
	return v.store.ActiveInfoForEntity(ctx, entityType, entityID)
}

// History returns every version of key, oldest first.
func (v *Versioner) History(ctx context.Context, key db.InfoKey) ([]db.AdditionalInfo, error) {
	return v.store.InfoHistory(ctx, key)
}

// SaveInstructions versions the settlement instructions of a trade row.
// Blank text is ignored.
func (v *Versioner) SaveInstructions(ctx context.Context, tradeRowID int64, text string) error {
	if tradeRowID == 0 || strings.TrimSpace(text) == "" {
		return nil
	}
	_, err := v.Upsert(ctx, TradeKey(tradeRowID), text, FieldTypeString)
	return err
}

// Instructions returns the active settlement instructions of a trade row.
func (v *Versioner) Instructions(ctx context.Context, tradeRowID int64) (string, error) {
	s, _, err := v.Get(ctx, TradeKey(tradeRowID))
	return s, err
}

// ValidateInstructions checks text against the allowed character set and length.
func ValidateInstructions(text string) error {
	if !allowedInstructions.MatchString(text) {
		return apperr.Malformed("Settlement instructions contain prohibited special characters or do not meet length requirements.")
	}
	return nil
}

// SanitizeSearch truncates text and drops characters outside the search
// alphabet. The result may be empty.
func SanitizeSearch(text string) string {
	if len(text) > MaxSearchLength {
		text = text[:MaxSearchLength]
	}
	return strings.TrimSpace(searchStrip.ReplaceAllString(text, ""))
}
