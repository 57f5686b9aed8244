package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"tradebook-core/internal/apperr"
	"tradebook-core/internal/events"
	"tradebook-core/internal/monitor"
	"tradebook-core/internal/privilege"
	"tradebook-core/internal/settlement"
	"tradebook-core/internal/trade"
	"tradebook-core/pkg/db"
)

// Create books version 1 of a new trade. A zero TradeID is replaced by the
// next id from the sequence. The status defaults to NEW.
func (m *Manager) Create(ctx context.Context, caller string, in trade.Input) (*db.Trade, error) {
	ctx, span := m.startSpan(ctx, "lifecycle.create", caller, in.TradeID)
	defer span.End()
	defer monitor.NewTimer(m.metrics.LifecycleLatency).Stop()

	fail := func(id int64, err error) (*db.Trade, error) {
		return nil, m.fail(span, monitor.OpCreate, caller, id, err)
	}

	if err := m.authorize(ctx, caller, privilege.Create); err != nil {
		return fail(in.TradeID, err)
	}
	p, err := m.prepare(ctx, caller, in)
	if err != nil {
		return fail(in.TradeID, err)
	}
	if err := m.validate(ctx, p.in); err != nil {
		return fail(in.TradeID, err)
	}
	instructions, err := checkInstructions(in.SettlementInstructions)
	if err != nil {
		return fail(in.TradeID, err)
	}

	status := db.Ref{ID: p.in.TradeStatus.ID, Name: p.in.TradeStatus.Name}
	if status.IsZero() {
		if status, err = m.statusRef(ctx, db.StatusNew); err != nil {
			return fail(in.TradeID, err)
		}
	}

	tradeID := in.TradeID
	if tradeID == 0 {
		if tradeID, err = m.ids.Next(ctx); err != nil {
			return fail(0, fmt.Errorf("assign trade id: %w", err))
		}
		m.log.WithField("trade_id", tradeID).Debug("generated trade id")
	}

	unlock := m.locks.Lock(tradeID)
	defer unlock()

	now := m.now()
	row := p.newVersion(tradeID, 1, status, now)
	err = m.withTx(ctx, func(tx *db.Store) error {
		if err := tx.InsertTrade(ctx, &row); err != nil {
			return err
		}
		if err := storeLegs(ctx, tx, &row, p.legs, now); err != nil {
			return err
		}
		return m.versioner(tx).SaveInstructions(ctx, row.ID, instructions)
	})
	if err != nil {
		return fail(tradeID, storageError(tradeID, err))
	}

	row.SettlementInstructions = instructions
	m.succeed(span, monitor.OpCreate, events.EventTradeCreated, caller, &row)
	return &row, nil
}

// Amend retires the active version of tradeID and books version+1 with
// status AMENDED. Settlement instructions in the request are applied only for
// TRADER_SALES callers; otherwise the previous value is carried forward.
func (m *Manager) Amend(ctx context.Context, caller string, tradeID int64, in trade.Input) (*db.Trade, error) {
	ctx, span := m.startSpan(ctx, "lifecycle.amend", caller, tradeID)
	defer span.End()
	defer monitor.NewTimer(m.metrics.LifecycleLatency).Stop()

	fail := func(err error) (*db.Trade, error) {
		return nil, m.fail(span, monitor.OpAmend, caller, tradeID, err)
	}

	if err := m.authorize(ctx, caller, privilege.Amend); err != nil {
		return fail(err)
	}
	p, err := m.prepare(ctx, caller, in)
	if err != nil {
		return fail(err)
	}
	if err := m.validate(ctx, p.in); err != nil {
		return fail(err)
	}
	amended, err := m.statusRef(ctx, db.StatusAmended)
	if err != nil {
		return fail(err)
	}

	var newInstructions string
	if in.SettlementInstructions != nil && strings.TrimSpace(*in.SettlementInstructions) != "" {
		canEdit, err := m.access.HasAnyRole(ctx, caller, privilege.ProfileTraderSales)
		if err != nil {
			return fail(err)
		}
		if canEdit {
			if newInstructions, err = checkInstructions(in.SettlementInstructions); err != nil {
				return fail(err)
			}
		} else {
			m.log.WithFields(logrus.Fields{"caller": caller, "trade_id": tradeID}).
				Warn("settlement instructions ignored: caller lacks TRADER_SALES")
		}
	}

	unlock := m.locks.Lock(tradeID)
	defer unlock()

	current, err := m.activeTrade(ctx, tradeID)
	if err != nil {
		return fail(err)
	}
	if isClosed(current.TradeStatus.Name) {
		return fail(apperr.Conflict("Trade %d is %s and cannot be amended.", tradeID, current.TradeStatus.Name))
	}

	now := m.now()
	row := p.newVersion(tradeID, current.Version+1, amended, now)
	err = m.withTx(ctx, func(tx *db.Store) error {
		if err := tx.DeactivateTrade(ctx, current.ID, current.Version, now); err != nil {
			return err
		}
		if err := tx.InsertTrade(ctx, &row); err != nil {
			return err
		}
		if err := storeLegs(ctx, tx, &row, p.legs, now); err != nil {
			return err
		}

		si := m.versioner(tx)
		previous, _, err := si.GetByEntityPrimaryKey(ctx, settlement.TradeKey(current.ID))
		if err != nil {
			return err
		}
		if err := si.Remove(ctx, settlement.TradeKey(current.ID)); err != nil {
			return err
		}
		row.SettlementInstructions = previous
		if newInstructions != "" {
			row.SettlementInstructions = newInstructions
		}
		return si.SaveInstructions(ctx, row.ID, row.SettlementInstructions)
	})
	if err != nil {
		return fail(storageError(tradeID, err))
	}

	m.succeed(span, monitor.OpAmend, events.EventTradeAmended, caller, &row)
	return &row, nil
}

// Terminate marks the active version TERMINATED in place.
func (m *Manager) Terminate(ctx context.Context, caller string, tradeID int64) (*db.Trade, error) {
	return m.closeOut(ctx, caller, tradeID, db.StatusTerminated, events.EventTradeTerminated, monitor.OpTerminate)
}

// Cancel marks the active version CANCELLED in place. It is guarded by the
// TERMINATE privilege.
func (m *Manager) Cancel(ctx context.Context, caller string, tradeID int64) (*db.Trade, error) {
	return m.closeOut(ctx, caller, tradeID, db.StatusCancelled, events.EventTradeCancelled, monitor.OpCancel)
}

// Delete is a soft delete: the trade is cancelled.
func (m *Manager) Delete(ctx context.Context, caller string, tradeID int64) (*db.Trade, error) {
	return m.Cancel(ctx, caller, tradeID)
}

func (m *Manager) closeOut(ctx context.Context, caller string, tradeID int64, statusName string, ev events.Event, op string) (*db.Trade, error) {
	ctx, span := m.startSpan(ctx, "lifecycle."+op, caller, tradeID)
	defer span.End()
	defer monitor.NewTimer(m.metrics.LifecycleLatency).Stop()

	fail := func(err error) (*db.Trade, error) {
		return nil, m.fail(span, op, caller, tradeID, err)
	}

	if err := m.authorize(ctx, caller, privilege.Terminate); err != nil {
		return fail(err)
	}

	unlock := m.locks.Lock(tradeID)
	defer unlock()

	current, err := m.activeTrade(ctx, tradeID)
	if err != nil {
		return fail(err)
	}
	if isClosed(current.TradeStatus.Name) {
		return fail(apperr.Conflict("Trade %d is already %s.", tradeID, current.TradeStatus.Name))
	}
	status, err := m.statusRef(ctx, statusName)
	if err != nil {
		return fail(err)
	}

	now := m.now()
	err = m.withTx(ctx, func(tx *db.Store) error {
		return tx.UpdateTradeStatus(ctx, current.ID, status.ID, now)
	})
	if err != nil {
		return fail(storageError(tradeID, err))
	}

	current.TradeStatus = status
	current.LastTouchTimestamp = now
	if current.SettlementInstructions, err = m.versioner(m.db.Store()).Instructions(ctx, current.ID); err != nil {
		return fail(err)
	}
	m.succeed(span, op, ev, caller, current)
	return current, nil
}

func isClosed(status string) bool {
	return strings.EqualFold(status, db.StatusTerminated) || strings.EqualFold(status, db.StatusCancelled)
}

// UpdateSettlementInstructions versions new instructions for the active
// version of tradeID. Only TRADER_SALES callers may do this.
func (m *Manager) UpdateSettlementInstructions(ctx context.Context, caller string, tradeID int64, text string) (*db.Trade, error) {
	ctx, span := m.startSpan(ctx, "lifecycle.settlement", caller, tradeID)
	defer span.End()
	defer monitor.NewTimer(m.metrics.LifecycleLatency).Stop()

	fail := func(err error) (*db.Trade, error) {
		return nil, m.fail(span, monitor.OpSettle, caller, tradeID, err)
	}

	allowed, err := m.access.HasAnyRole(ctx, caller, privilege.ProfileTraderSales)
	if err != nil {
		return fail(err)
	}
	if !allowed {
		return fail(apperr.Denied(caller, "update settlement instructions for"))
	}
	if err := settlement.ValidateInstructions(text); err != nil {
		return fail(err)
	}

	unlock := m.locks.Lock(tradeID)
	defer unlock()

	current, err := m.activeTrade(ctx, tradeID)
	if err != nil {
		return fail(err)
	}

	now := m.now()
	err = m.withTx(ctx, func(tx *db.Store) error {
		if err := m.versioner(tx).SaveInstructions(ctx, current.ID, text); err != nil {
			return err
		}
		return tx.TouchTrade(ctx, current.ID, now)
	})
	if err != nil {
		return fail(storageError(tradeID, err))
	}

	current.SettlementInstructions = text
	current.LastTouchTimestamp = now
	m.succeed(span, monitor.OpSettle, events.EventSettlementUpdated, caller, current)
	return current, nil
}

func (m *Manager) versioner(s settlement.Store) *settlement.Versioner {
	return settlement.New(s).WithClock(m.now)
}
