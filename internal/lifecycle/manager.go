// Package lifecycle books trades and moves them through their versioned
// states: create, amend, terminate and cancel.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tradebook-core/internal/apperr"
	"tradebook-core/internal/events"
	"tradebook-core/internal/monitor"
	"tradebook-core/internal/privilege"
	"tradebook-core/internal/refdata"
	"tradebook-core/internal/sequence"
	"tradebook-core/internal/validation"
	"tradebook-core/pkg/db"
)

const tracerName = "tradebook-core/lifecycle"

// Deps are the collaborators of a Manager. Bus, Metrics, Logger and Clock are
// optional.
type Deps struct {
	DB         *db.Database
	Refs       *refdata.Resolver
	Privileges *privilege.Engine
	Validator  *validation.Validator
	IDs        sequence.Generator
	Bus        *events.Bus
	Metrics    *monitor.SystemMetrics
	Logger     *logrus.Entry
	Clock      func() time.Time
}

// Manager runs the trade lifecycle. Every mutating call takes the caller's
// login id explicitly and runs in a single transaction.
type Manager struct {
	db        *db.Database
	refs      *refdata.Resolver
	access    *privilege.Engine
	validator *validation.Validator
	ids       sequence.Generator
	bus       *events.Bus
	metrics   *monitor.SystemMetrics
	log       *logrus.Entry
	tracer    trace.Tracer
	locks     *tradeLocks
	now       func() time.Time
}

// NewManager wires a manager.
func NewManager(d Deps) *Manager {
	m := &Manager{
		db:        d.DB,
		refs:      d.Refs,
		access:    d.Privileges,
		validator: d.Validator,
		ids:       d.IDs,
		bus:       d.Bus,
		metrics:   d.Metrics,
		log:       d.Logger,
		tracer:    otel.Tracer(tracerName),
		locks:     newTradeLocks(),
		now:       d.Clock,
	}
	if m.metrics == nil {
		m.metrics = monitor.NewSystemMetrics()
	}
	if m.log == nil {
		m.log = logrus.NewEntry(logrus.StandardLogger())
	}
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}
	return m
}

// authorize fails with an AuthorizationFailure unless caller may run op.
func (m *Manager) authorize(ctx context.Context, caller string, op privilege.Operation) error {
	ok, err := m.access.Authorize(ctx, caller, string(op))
	if err != nil {
		return fmt.Errorf("authorize %s for %s: %w", op, caller, err)
	}
	if !ok {
		return apperr.Denied(caller, string(op))
	}
	return nil
}

// statusRef resolves a required trade status row.
func (m *Manager) statusRef(ctx context.Context, name string) (db.Ref, error) {
	ref, err := m.refs.ResolveRef(ctx, db.KindTradeStatus, refdata.ByName(name))
	if err != nil {
		return db.Ref{}, err
	}
	if ref.IsZero() {
		return db.Ref{}, apperr.NotFound("%s status not found", name)
	}
	return ref, nil
}

// activeTrade loads the live version of tradeID outside any transaction.
func (m *Manager) activeTrade(ctx context.Context, tradeID int64) (*db.Trade, error) {
	t, err := m.db.Store().ActiveTrade(ctx, tradeID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("Trade not found: %d", tradeID)
	}
	return t, err
}

// storageError maps store sentinels to domain errors.
func storageError(tradeID int64, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrDuplicateTradeID):
		return apperr.Wrap(apperr.KindConflict, err, "Trade %d already has an active version.", tradeID)
	case errors.Is(err, db.ErrStaleVersion):
		return apperr.Wrap(apperr.KindConflict, err, "Trade %d was modified concurrently; reload and retry.", tradeID)
	default:
		return err
	}
}

// startSpan opens a span tagged with the caller and trade id.
func (m *Manager) startSpan(ctx context.Context, name, caller string, tradeID int64) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("caller", caller),
		attribute.Int64("trade_id", tradeID),
	))
}

// fail records a failed operation and returns err unchanged.
func (m *Manager) fail(span trace.Span, op, caller string, tradeID int64, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	kind := apperr.KindOf(err)
	switch kind {
	case apperr.KindValidation:
		m.metrics.IncrementValidationFailures()
	case apperr.KindAuthorization:
		m.metrics.IncrementAuthFailures()
	case apperr.KindConflict:
		m.metrics.IncrementConflicts()
	case apperr.KindInternal:
		m.metrics.IncrementErrors()
	}

	entry := m.log.WithFields(logrus.Fields{"op": op, "caller": caller, "trade_id": tradeID, "kind": kind})
	if kind == apperr.KindInternal {
		entry.WithError(err).Error("trade operation failed")
	} else {
		entry.Warn(err.Error())
	}

	if m.bus != nil && (kind == apperr.KindAuthorization || kind == apperr.KindValidation) {
		m.bus.Publish(events.EventTradeRejected, events.TradeEvent{
			ID:        uuid.NewString(),
			Event:     events.EventTradeRejected,
			TradeID:   tradeID,
			Actor:     caller,
			Reason:    err.Error(),
			Timestamp: m.now(),
		})
	}
	return err
}

// succeed counts, logs and publishes a completed operation.
func (m *Manager) succeed(span trace.Span, op string, ev events.Event, caller string, t *db.Trade) {
	span.SetAttributes(attribute.Int("version", t.Version), attribute.String("status", t.TradeStatus.Name))
	m.metrics.IncrementOperation(op)
	m.log.WithFields(logrus.Fields{
		"op": op, "caller": caller, "trade_id": t.TradeID, "version": t.Version, "status": t.TradeStatus.Name,
	}).Info("trade " + op + " completed")

	if m.bus == nil {
		return
	}
	m.bus.Publish(ev, events.TradeEvent{
		ID:        uuid.NewString(),
		Event:     ev,
		TradeID:   t.TradeID,
		Version:   t.Version,
		Status:    t.TradeStatus.Name,
		Book:      t.Book.Name,
		Actor:     caller,
		Timestamp: m.now(),
	})
}

// withTx runs fn in one database transaction and records its duration.
func (m *Manager) withTx(ctx context.Context, fn func(tx *db.Store) error) error {
	defer monitor.NewTimer(m.metrics.DBLatency).Stop()
	return m.db.WithTx(ctx, fn)
}
