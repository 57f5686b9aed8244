package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tradebook-core/internal/apperr"
	"tradebook-core/pkg/db"
)

// pathTradeID parses :id, writing a 400 on failure.
func pathTradeID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, string(apperr.KindMalformedInput), "invalid "+name+": "+c.Param(name))
		return 0, false
	}
	return id, true
}

// pageRequest reads page, size and sort ("field" or "field,desc").
func pageRequest(c *gin.Context) db.PageRequest {
	var p db.PageRequest
	p.Page, _ = strconv.Atoi(c.DefaultQuery("page", "0"))
	p.Size, _ = strconv.Atoi(c.DefaultQuery("size", "20"))
	if sort := c.Query("sort"); sort != "" {
		field, dir, _ := strings.Cut(sort, ",")
		p.Sort = strings.TrimSpace(field)
		p.Desc = strings.EqualFold(strings.TrimSpace(dir), "desc")
	}
	return p
}

func queryDate(c *gin.Context, key string) (time.Time, bool) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(db.DateLayout, v)
	if err != nil {
		badRequest(c, string(apperr.KindMalformedInput), "invalid "+key+", expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}

func (s *Server) listTrades(c *gin.Context) {
	page, err := s.Trades.FindAll(c.Request.Context(), CurrentUserID(c), pageRequest(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPageResponse(page))
}

// searchTrades filters by counterparty, book, trader id, status and a trade
// date range.
func (s *Server) searchTrades(c *gin.Context) {
	filter := db.TradeFilter{
		Counterparty: strings.TrimSpace(c.Query("counterparty")),
		Book:         strings.TrimSpace(c.Query("book")),
	}
	if trader := c.Query("trader"); trader != "" {
		id, err := strconv.ParseInt(trader, 10, 64)
		if err != nil {
			badRequest(c, string(apperr.KindMalformedInput), "invalid trader id: "+trader)
			return
		}
		filter.TraderUserID = id
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		filter.Statuses = []string{status}
	}
	var ok bool
	if filter.TradeDateFrom, ok = queryDate(c, "startDate"); !ok {
		return
	}
	if filter.TradeDateTo, ok = queryDate(c, "endDate"); !ok {
		return
	}

	page, err := s.Trades.Search(c.Request.Context(), CurrentUserID(c), filter, pageRequest(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPageResponse(page))
}

func (s *Server) getTrade(c *gin.Context) {
	id, ok := pathTradeID(c, "id")
	if !ok {
		return
	}
	t, err := s.Trades.Get(c.Request.Context(), CurrentUserID(c), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTradeResponse(*t))
}

func (s *Server) getTradeHistory(c *gin.Context) {
	id, ok := pathTradeID(c, "id")
	if !ok {
		return
	}
	versions, err := s.Trades.History(c.Request.Context(), CurrentUserID(c), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTradeResponses(versions))
}

func (s *Server) getTradeAudit(c *gin.Context) {
	id, ok := pathTradeID(c, "id")
	if !ok {
		return
	}
	trail, err := s.Trades.AuditTrail(c.Request.Context(), CurrentUserID(c), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]gin.H, 0, len(trail))
	for _, r := range trail {
		out = append(out, gin.H{
			"id": r.ID, "event": r.Event, "tradeId": r.TradeID, "version": r.Version,
			"status": r.Status, "actor": r.Actor, "createdAt": r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) bindTrade(c *gin.Context) (TradeRequest, bool) {
	var req TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, string(apperr.KindMalformedInput), "invalid request payload: "+err.Error())
		return req, false
	}
	return req, true
}

func (s *Server) createTrade(c *gin.Context) {
	req, ok := s.bindTrade(c)
	if !ok {
		return
	}
	t, err := s.Trades.Create(c.Request.Context(), CurrentUserID(c), req.toInput())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toTradeResponse(*t))
}

func (s *Server) amendTrade(c *gin.Context) {
	id, ok := pathTradeID(c, "id")
	if !ok {
		return
	}
	req, ok := s.bindTrade(c)
	if !ok {
		return
	}
	if req.TradeID != 0 && req.TradeID != id {
		badRequest(c, string(apperr.KindMalformedInput), "Trade ID in path must match Trade ID in request body")
		return
	}
	req.TradeID = id

	t, err := s.Trades.Amend(c.Request.Context(), CurrentUserID(c), id, req.toInput())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTradeResponse(*t))
}

func (s *Server) deleteTrade(c *gin.Context) {
	id, ok := pathTradeID(c, "id")
	if !ok {
		return
	}
	if _, err := s.Trades.Delete(c.Request.Context(), CurrentUserID(c), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) terminateTrade(c *gin.Context) {
	id, ok := pathTradeID(c, "id")
	if !ok {
		return
	}
	t, err := s.Trades.Terminate(c.Request.Context(), CurrentUserID(c), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTradeResponse(*t))
}

func (s *Server) cancelTrade(c *gin.Context) {
	id, ok := pathTradeID(c, "id")
	if !ok {
		return
	}
	t, err := s.Trades.Cancel(c.Request.Context(), CurrentUserID(c), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTradeResponse(*t))
}

func (s *Server) updateSettlementInstructions(c *gin.Context) {
	id, ok := pathTradeID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Instructions string `json:"instructions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, string(apperr.KindMalformedInput), "invalid request payload")
		return
	}
	t, err := s.Trades.UpdateSettlementInstructions(c.Request.Context(), CurrentUserID(c), id, req.Instructions)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTradeResponse(*t))
}

func (s *Server) searchSettlementInstructions(c *gin.Context) {
	trades, err := s.Trades.SearchBySettlementInstructions(c.Request.Context(), CurrentUserID(c), c.Query("instructions"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTradeResponses(trades))
}

func (s *Server) myTrades(c *gin.Context) {
	page, err := s.Dashboard.MyTrades(c.Request.Context(), CurrentUserID(c), pageRequest(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPageResponse(page))
}

func (s *Server) bookTrades(c *gin.Context) {
	bookID, ok := pathTradeID(c, "bookId")
	if !ok {
		return
	}
	page, err := s.Dashboard.BookTrades(c.Request.Context(), CurrentUserID(c), bookID, pageRequest(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPageResponse(page))
}

func (s *Server) portfolioSummary(c *gin.Context) {
	sum, err := s.Dashboard.Portfolio(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) dailySummary(c *gin.Context) {
	sum, err := s.Dashboard.Daily(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// listReference returns every row of a reference kind, active or not.
func (s *Server) listReference(c *gin.Context) {
	kind := strings.ToUpper(strings.ReplaceAll(c.Param("kind"), "-", "_"))
	known := false
	for _, k := range db.Kinds {
		if k == kind {
			known = true
			break
		}
	}
	if !known {
		s.writeError(c, apperr.NotFound("Unknown reference data kind: %s", c.Param("kind")))
		return
	}
	rows, err := s.Refs.ListRefs(c.Request.Context(), kind)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		out = append(out, gin.H{"id": r.ID, "name": r.Name, "active": r.Active})
	}
	c.JSON(http.StatusOK, out)
}
