// Package dashboard aggregates a trader's blotter and summary views.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"tradebook-core/internal/apperr"
	"tradebook-core/internal/privilege"
	"tradebook-core/pkg/db"
)

// Statuses counted in the portfolio summary.
var summaryStatuses = []string{db.StatusLive, db.StatusNew, db.StatusAmended}

// TradeSource is the read side of the trade store.
type TradeSource interface {
	SearchTrades(ctx context.Context, f db.TradeFilter, p db.PageRequest) (db.TradePage, error)
	ListTrades(ctx context.Context, f db.TradeFilter) ([]db.Trade, error)
	TradesByTraderOn(ctx context.Context, traderID int64, day time.Time) ([]db.Trade, error)
}

// UserSource maps a login id to a user row.
type UserSource interface {
	UserByLogin(ctx context.Context, loginID string) (*db.User, error)
}

// Authorizer answers privilege questions.
type Authorizer interface {
	Authorize(ctx context.Context, loginID, operation string) (bool, error)
}

// PortfolioSummary aggregates a trader's live book.
type PortfolioSummary struct {
	TraderID           int64                      `json:"traderId"`
	TotalTrades        int                        `json:"totalTrades"`
	CountByStatus      map[string]int             `json:"tradeCountByStatus"`
	CountByType        map[string]int             `json:"tradeCountByType"`
	CountByCounterpart map[string]int             `json:"tradeCountByCounterparty"`
	NotionalByCurrency map[string]decimal.Decimal `json:"totalNotionalByCurrency"`
	TotalNotional      decimal.Decimal            `json:"totalNotional"`
	GeneratedAt        time.Time                  `json:"generatedAt"`
}

// DailySummary is today's activity compared with yesterday.
type DailySummary struct {
	TraderID            int64           `json:"traderId"`
	ReportDate          string          `json:"reportDate"`
	TodaysTradeCount    int             `json:"todaysTradeCount"`
	TodaysTotalNotional decimal.Decimal `json:"todaysTotalNotional"`
	YesterdayTradeCount int             `json:"yesterdayTradeCount"`
	TradeCountChange    int             `json:"vsYesterdayTradeCountChange"`
	BookActivitySummary map[string]int  `json:"bookActivitySummary"`
}

// Service serves dashboard views for the calling trader.
type Service struct {
	trades TradeSource
	users  UserSource
	access Authorizer
	log    *logrus.Entry
	now    func() time.Time
}

// New builds a Service. A nil clock means time.Now in UTC.
func New(trades TradeSource, users UserSource, access Authorizer, logger *logrus.Entry, now func() time.Time) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{trades: trades, users: users, access: access, log: logger, now: now}
}

// traderID authorizes caller for VIEW and returns their user id.
func (s *Service) traderID(ctx context.Context, caller string) (int64, error) {
	ok, err := s.access.Authorize(ctx, caller, string(privilege.View))
	if err != nil {
		return 0, fmt.Errorf("authorize view for %s: %w", caller, err)
	}
	if !ok {
		return 0, apperr.Denied(caller, string(privilege.View))
	}
	u, err := s.users.UserByLogin(ctx, caller)
	if err != nil {
		return 0, fmt.Errorf("load user %s: %w", caller, err)
	}
	if u == nil {
		return 0, apperr.NotFound("Trader not found for login: %s", caller)
	}
	return u.ID, nil
}

// MyTrades pages through the caller's active trades.
func (s *Service) MyTrades(ctx context.Context, caller string, page db.PageRequest) (db.TradePage, error) {
	id, err := s.traderID(ctx, caller)
	if err != nil {
		return db.TradePage{}, err
	}
	s.log.WithFields(logrus.Fields{"trader_id": id, "page": page.Page, "size": page.Size}).Debug("my trades")
	return s.trades.SearchTrades(ctx, db.TradeFilter{TraderUserID: id}, page)
}

// BookTrades pages through the caller's active trades in one book.
func (s *Service) BookTrades(ctx context.Context, caller string, bookID int64, page db.PageRequest) (db.TradePage, error) {
	id, err := s.traderID(ctx, caller)
	if err != nil {
		return db.TradePage{}, err
	}
	if bookID <= 0 {
		return db.TradePage{}, apperr.Malformed("Invalid book id: %d", bookID)
	}
	return s.trades.SearchTrades(ctx, db.TradeFilter{TraderUserID: id, BookID: bookID}, page)
}

// Portfolio summarises the caller's active LIVE, NEW and AMENDED trades.
// Notional is the absolute leg notional summed per leg currency.
func (s *Service) Portfolio(ctx context.Context, caller string) (*PortfolioSummary, error) {
	id, err := s.traderID(ctx, caller)
	if err != nil {
		return nil, err
	}
	trades, err := s.trades.ListTrades(ctx, db.TradeFilter{TraderUserID: id, Statuses: summaryStatuses})
	if err != nil {
		return nil, err
	}

	sum := &PortfolioSummary{
		TraderID:           id,
		TotalTrades:        len(trades),
		CountByStatus:      map[string]int{},
		CountByType:        map[string]int{},
		CountByCounterpart: map[string]int{},
		NotionalByCurrency: map[string]decimal.Decimal{},
		TotalNotional:      decimal.Zero,
		GeneratedAt:        s.now(),
	}
	for _, t := range trades {
		sum.CountByStatus[label(t.TradeStatus.Name)]++
		sum.CountByType[label(t.TradeType.Name)]++
		sum.CountByCounterpart[label(t.Counterparty.Name)]++
		for _, leg := range t.Legs {
			ccy := label(leg.Currency)
			abs := leg.Notional.Abs()
			sum.NotionalByCurrency[ccy] = sum.NotionalByCurrency[ccy].Add(abs)
			sum.TotalNotional = sum.TotalNotional.Add(abs)
		}
	}
	return sum, nil
}

// Daily reports the caller's trades dated today against yesterday.
func (s *Service) Daily(ctx context.Context, caller string) (*DailySummary, error) {
	id, err := s.traderID(ctx, caller)
	if err != nil {
		return nil, err
	}
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	todays, err := s.trades.TradesByTraderOn(ctx, id, today)
	if err != nil {
		return nil, err
	}
	yesterdays, err := s.trades.TradesByTraderOn(ctx, id, today.AddDate(0, 0, -1))
	if err != nil {
		return nil, err
	}

	out := &DailySummary{
		TraderID:            id,
		ReportDate:          today.Format(db.DateLayout),
		TodaysTradeCount:    len(todays),
		TodaysTotalNotional: decimal.Zero,
		YesterdayTradeCount: len(yesterdays),
		TradeCountChange:    len(todays) - len(yesterdays),
		BookActivitySummary: map[string]int{},
	}
	for _, t := range todays {
		out.BookActivitySummary["Book-"+label(t.Book.Name)]++
		for _, leg := range t.Legs {
			out.TodaysTotalNotional = out.TodaysTotalNotional.Add(leg.Notional.Abs())
		}
	}
	return out, nil
}

func label(name string) string {
	if strings.TrimSpace(name) == "" {
		return "UNKNOWN"
	}
	return name
}
