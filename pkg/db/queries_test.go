package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, ApplyMigrations(database))
	return database
}

func seedRefs(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	for _, r := range []RefEntity{
		{Kind: KindBook, ID: 1, Name: "FX-BOOK-1", Active: true},
		{Kind: KindBook, ID: 2, Name: "RATES-BOOK-1", Active: true},
		{Kind: KindCounterparty, ID: 1, Name: "BigBank", Active: true},
		{Kind: KindTradeStatus, ID: 1, Name: StatusNew, Active: true},
		{Kind: KindTradeStatus, ID: 2, Name: StatusAmended, Active: true},
	} {
		require.NoError(t, s.UpsertRef(ctx, r))
	}
	require.NoError(t, s.UpsertUser(ctx, User{ID: 1, LoginID: "alice", FirstName: "Alice", Profile: "TRADER_SALES", Active: true}))
}

func sampleTrade(tradeID int64, version int, now time.Time) *Trade {
	day := time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC)
	return &Trade{
		TradeID:            tradeID,
		Version:            version,
		TradeDate:          day,
		StartDate:          day,
		MaturityDate:       day.AddDate(1, 0, 0),
		Book:               Ref{ID: 1},
		Counterparty:       Ref{ID: 1},
		TradeStatus:        Ref{ID: 1},
		TraderUser:         Ref{ID: 1},
		Active:             true,
		CreatedDate:        now,
		LastTouchTimestamp: now,
	}
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	database := newTestDB(t)
	require.NoError(t, ApplyMigrations(database))
}

func TestReferenceLookups(t *testing.T) {
	database := newTestDB(t)
	s := database.Store()
	seedRefs(t, s)
	ctx := context.Background()

	ref, err := s.FindRefByName(ctx, KindBook, "fx-book-1")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, int64(1), ref.ID)

	missing, err := s.FindRefByName(ctx, KindBook, "NOPE")
	require.NoError(t, err)
	assert.Nil(t, missing)

	ok, err := s.RefExistsActive(ctx, KindBook, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.UpsertRef(ctx, RefEntity{Kind: KindBook, ID: 2, Name: "RATES-BOOK-1", Active: false}))
	ok, err = s.RefExistsActive(ctx, KindBook, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	u, err := s.UserByLogin(ctx, "ALICE")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "TRADER_SALES", u.Profile)
}

func TestTradeRoundTripWithLegsAndCashflows(t *testing.T) {
	database := newTestDB(t)
	s := database.Store()
	seedRefs(t, s)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	tr := sampleTrade(10000, 1, now)
	require.NoError(t, s.InsertTrade(ctx, tr))

	leg := &TradeLeg{
		TradeRowID: tr.ID, LegNumber: 1, Notional: decimal.NewFromInt(10_000_000),
		Rate: decimal.NewNullDecimal(decimal.RequireFromString("3.5")), LegType: "Fixed", PayReceive: "Pay",
		Currency: "USD", Active: true, CreatedDate: now,
	}
	require.NoError(t, s.InsertLeg(ctx, leg))
	cf := &Cashflow{
		LegID: leg.ID, ValueDate: time.Date(2025, 4, 17, 0, 0, 0, 0, time.UTC),
		PaymentValue: decimal.RequireFromString("87500"), Rate: leg.Rate, PayRec: "Pay", Active: true, CreatedDate: now,
	}
	require.NoError(t, s.InsertCashflow(ctx, cf))

	got, err := s.ActiveTrade(ctx, 10000)
	require.NoError(t, err)
	assert.Equal(t, "FX-BOOK-1", got.Book.Name)
	assert.Equal(t, "BigBank", got.Counterparty.Name)
	assert.Equal(t, StatusNew, got.TradeStatus.Name)
	assert.Equal(t, "alice", got.TraderUser.Name)
	assert.True(t, got.TradeDate.Equal(tr.TradeDate))
	require.Len(t, got.Legs, 1)
	assert.True(t, got.Legs[0].Notional.Equal(decimal.NewFromInt(10_000_000)))
	assert.True(t, got.Legs[0].IsFixed())
	require.Len(t, got.Legs[0].Cashflows, 1)
	assert.True(t, got.Legs[0].Cashflows[0].PaymentValue.Equal(decimal.NewFromInt(87500)))

	_, err = s.ActiveTrade(ctx, 99999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOnlyOneActiveVersionPerTrade(t *testing.T) {
	database := newTestDB(t)
	s := database.Store()
	seedRefs(t, s)
	ctx := context.Background()
	now := time.Now().UTC()

	v1 := sampleTrade(10000, 1, now)
	require.NoError(t, s.InsertTrade(ctx, v1))

	// A second live version is rejected by the partial unique index.
	assert.ErrorIs(t, s.InsertTrade(ctx, sampleTrade(10000, 2, now)), ErrDuplicateTradeID)

	require.NoError(t, s.DeactivateTrade(ctx, v1.ID, 1, now))
	assert.ErrorIs(t, s.DeactivateTrade(ctx, v1.ID, 1, now), ErrStaleVersion)

	require.NoError(t, s.InsertTrade(ctx, sampleTrade(10000, 2, now)))
	versions, err := s.TradeVersions(ctx, 10000)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.False(t, versions[0].Active)
	assert.NotNil(t, versions[0].DeactivatedDate)
	assert.True(t, versions[1].Active)
}

func TestWithTxRollsBack(t *testing.T) {
	database := newTestDB(t)
	seedRefs(t, database.Store())
	ctx := context.Background()

	boom := errors.New("boom")
	err := database.WithTx(ctx, func(tx *Store) error {
		require.NoError(t, tx.InsertTrade(ctx, sampleTrade(10000, 1, time.Now().UTC())))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	exists, err := database.Store().ActiveTradeExists(ctx, 10000)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSequenceStartsAtBase(t *testing.T) {
	database := newTestDB(t)
	s := database.Store()
	ctx := context.Background()

	first, err := s.NextSequenceValue(ctx, "trade_id", 10000)
	require.NoError(t, err)
	second, err := s.NextSequenceValue(ctx, "trade_id", 10000)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), first)
	assert.Equal(t, int64(10001), second)

	require.NoError(t, s.SetSequenceFloor(ctx, "trade_id", 20000))
	third, err := s.NextSequenceValue(ctx, "trade_id", 10000)
	require.NoError(t, err)
	assert.Equal(t, int64(20001), third)
}

func TestSearchTradesFiltersAndPages(t *testing.T) {
	database := newTestDB(t)
	s := database.Store()
	seedRefs(t, s)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := int64(0); i < 5; i++ {
		tr := sampleTrade(10000+i, 1, now)
		if i%2 == 1 {
			tr.Book = Ref{ID: 2}
		}
		require.NoError(t, s.InsertTrade(ctx, tr))
	}

	page, err := s.SearchTrades(ctx, TradeFilter{Book: "fx-book-1"}, PageRequest{Size: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(10000), page.Items[0].TradeID)

	page, err = s.SearchTrades(ctx, TradeFilter{}, PageRequest{Page: 1, Size: 2, Sort: "tradeId", Desc: true})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, int64(10002), page.Items[0].TradeID)

	_, err = s.TradesByTraderOn(ctx, 0, now)
	assert.ErrorIs(t, err, ErrUserIDRequired)
}

func TestAdditionalInfoVersioning(t *testing.T) {
	database := newTestDB(t)
	s := database.Store()
	ctx := context.Background()
	now := time.Now().UTC()
	key := InfoKey{EntityType: "TRADE", EntityID: 1, FieldName: "SETTLEMENT_INSTRUCTIONS"}

	v1 := &AdditionalInfo{EntityType: key.EntityType, EntityID: key.EntityID, FieldName: key.FieldName,
		FieldValue: "first value", FieldType: "STRING", Version: 1, Active: true, CreatedDate: now, LastModifiedDate: now}
	require.NoError(t, s.InsertInfo(ctx, v1))

	dup := *v1
	assert.Error(t, s.InsertInfo(ctx, &dup), "second active row for the same key must be rejected")

	later := now.Add(time.Second)
	require.NoError(t, s.DeactivateInfo(ctx, v1.ID, later))
	v2 := &AdditionalInfo{EntityType: key.EntityType, EntityID: key.EntityID, FieldName: key.FieldName,
		FieldValue: "second value", FieldType: "STRING", Version: 2, Active: true, CreatedDate: later, LastModifiedDate: later}
	require.NoError(t, s.InsertInfo(ctx, v2))

	active, err := s.ActiveInfo(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "second value", active.FieldValue)

	history, err := s.InfoHistory(ctx, key)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].Active)
	assert.NotNil(t, history[0].DeactivatedDate)
}

func TestAuditTrail(t *testing.T) {
	database := newTestDB(t)
	s := database.Store()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.InsertAudit(ctx, AuditRecord{ID: "a", Event: "trade.created", TradeID: 10000, Version: 1, Status: StatusNew, Actor: "alice", CreatedAt: now}))
	require.NoError(t, s.InsertAudit(ctx, AuditRecord{ID: "b", Event: "trade.amended", TradeID: 10000, Version: 2, Status: StatusAmended, Actor: "alice", CreatedAt: now.Add(time.Second)}))
	// Duplicate ids are ignored.
	require.NoError(t, s.InsertAudit(ctx, AuditRecord{ID: "a", Event: "trade.created", TradeID: 10000, Version: 1, CreatedAt: now}))

	trail, err := s.AuditTrail(ctx, 10000)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "trade.amended", trail[1].Event)
}
