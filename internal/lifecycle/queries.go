package lifecycle

import (
	"context"

	"tradebook-core/internal/apperr"
	"tradebook-core/internal/privilege"
	"tradebook-core/internal/settlement"
	"tradebook-core/pkg/db"
)

// Get returns the active version of tradeID with its settlement instructions.
func (m *Manager) Get(ctx context.Context, caller string, tradeID int64) (*db.Trade, error) {
	if err := m.authorize(ctx, caller, privilege.View); err != nil {
		return nil, err
	}
	t, err := m.activeTrade(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if t.SettlementInstructions, err = m.versioner(m.db.Store()).Instructions(ctx, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

// History returns every version of tradeID, oldest first.
func (m *Manager) History(ctx context.Context, caller string, tradeID int64) ([]db.Trade, error) {
	if err := m.authorize(ctx, caller, privilege.View); err != nil {
		return nil, err
	}
	versions, err := m.db.Store().TradeVersions(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, apperr.NotFound("Trade not found: %d", tradeID)
	}
	return versions, nil
}

// AuditTrail returns the recorded lifecycle events of tradeID.
func (m *Manager) AuditTrail(ctx context.Context, caller string, tradeID int64) ([]db.AuditRecord, error) {
	if err := m.authorize(ctx, caller, privilege.View); err != nil {
		return nil, err
	}
	return m.db.Store().AuditTrail(ctx, tradeID)
}

// FindAll pages through active trades.
func (m *Manager) FindAll(ctx context.Context, caller string, page db.PageRequest) (db.TradePage, error) {
	return m.Search(ctx, caller, db.TradeFilter{}, page)
}

// Search pages through trades matching filter.
func (m *Manager) Search(ctx context.Context, caller string, filter db.TradeFilter, page db.PageRequest) (db.TradePage, error) {
	if err := m.authorize(ctx, caller, privilege.View); err != nil {
		return db.TradePage{}, err
	}
	return m.db.Store().SearchTrades(ctx, filter, page)
}

// SearchBySettlementInstructions finds active trades whose active
// instructions contain text, ignoring case. Text is sanitised first; nothing
// left means no matches.
func (m *Manager) SearchBySettlementInstructions(ctx context.Context, caller, text string) ([]db.Trade, error) {
	if err := m.authorize(ctx, caller, privilege.View); err != nil {
		return nil, err
	}
	if len(text) > settlement.MaxSearchLength {
		m.log.WithField("caller", caller).Warn("settlement search text truncated")
	}
	needle := settlement.SanitizeSearch(text)
	if needle == "" {
		return []db.Trade{}, nil
	}
	return m.db.Store().SearchTradesBySettlement(ctx, needle)
}
