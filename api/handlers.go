package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"kwh-exchange/domain"
	"kwh-exchange/matching"
)

var orderIDGen = matching.NewIDGenerator("o")

func toOrderResponse(o domain.OrderSnapshot) orderResponse {
	return orderResponse{
		ID: o.ID, Owner: o.Owner, Side: o.Side.String(),
		Quantity: int64(o.Quantity), Price: int64(o.Price), Filled: int64(o.Filled),
		Status: o.Status.String(), CreatedAt: o.CreatedAt, ExpiresAt: o.ExpiresAt,
	}
}

func toTradeResponse(t domain.TradeMatch) tradeResponse {
	return tradeResponse{
		ID: t.ID, BuyOrderID: t.BuyOrderID, SellOrderID: t.SellOrderID,
		Buyer: t.Buyer, Seller: t.Seller, Quantity: int64(t.Quantity), Price: int64(t.Price),
		ExecutedAt: t.ExecutedAt,
	}
}

// submitOrder implements `POST /orders`.
func (s *Server) submitOrder(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromRequest(r)
	if owner == "" {
		writeError(w, http.StatusUnauthorized, "missing X-Owner-ID")
		return
	}

	var req submitOrderRequest
	if err := jsonDecode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	side, err := parseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	typ := domain.OrderTypeLimit
	if req.Type == "market" {
		typ = domain.OrderTypeMarket
	}

	now := time.Now()
	var expiresAt time.Time
	if req.ExpiresIn > 0 {
		expiresAt = now.Add(time.Duration(req.ExpiresIn) * time.Second)
	}

	order := domain.NewOrder(orderIDGen.Next(), owner, side, typ, domain.Price(req.Price), domain.Quantity(req.Quantity), now, expiresAt)

	timer := newInternalTimer()
	_, err = s.engine.AddOrder(order)
	s.metrics.RecordOrderLatency(s.engine.Symbol(), timer.elapsedMs())
	if err != nil {
		writeError(w, statusForDomainError(err), err.Error())
		return
	}
	s.metrics.RecordOrderAccepted(s.engine.Symbol(), side, typ)

	snap, _ := s.engine.GetOrder(order.ID)
	writeJSON(w, http.StatusCreated, toOrderResponse(snap))
}

// cancelOrder implements `DELETE /orders/{id}` (`cancel_order`).
func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromRequest(r)
	if owner == "" {
		writeError(w, http.StatusUnauthorized, "missing X-Owner-ID")
		return
	}
	id := chi.URLParam(r, "id")

	refunded, err := s.engine.CancelOrder(id, owner)
	if err != nil {
		writeError(w, statusForDomainError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cancelOrderResponse{ID: id, Status: domain.OrderStatusCancelled.String(), Refunded: int64(refunded)})
}

// getOrder implements `GET /orders/{id}`.
func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if snap, ok := s.engine.GetOrder(id); ok {
		writeJSON(w, http.StatusOK, toOrderResponse(snap))
		return
	}
	snap, err := s.store.GetOrderByID(r.Context(), id)
	if err != nil {
		writeError(w, statusForDomainError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(snap))
}

// listMyOrders implements `GET /orders` (`list_my_orders`).
func (s *Server) listMyOrders(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromRequest(r)
	if owner == "" {
		writeError(w, http.StatusUnauthorized, "missing X-Owner-ID")
		return
	}
	limit, offset := pagination(r)
	orders, err := s.store.ListOrdersByOwner(r.Context(), owner, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

// getDepth implements `GET /market/depth`.
func (s *Server) getDepth(w http.ResponseWriter, r *http.Request) {
	levels := s.bookCfg.DepthMaxLevels
	if lv := r.URL.Query().Get("levels"); lv != "" {
		if n, err := strconv.Atoi(lv); err == nil && n > 0 && n < levels {
			levels = n
		}
	}
	bids, asks := s.engine.Depth(levels)
	resp := depthResponse{TS: time.Now()}
	for _, l := range bids {
		resp.Bids = append(resp.Bids, priceLevelResponse{Price: int64(l.Price), Quantity: int64(l.Quantity), Orders: l.Orders})
	}
	for _, l := range asks {
		resp.Asks = append(resp.Asks, priceLevelResponse{Price: int64(l.Price), Quantity: int64(l.Quantity), Orders: l.Orders})
	}
	s.metrics.SetOrderbookDepth(s.engine.Symbol(), "bid", len(resp.Bids))
	s.metrics.SetOrderbookDepth(s.engine.Symbol(), "ask", len(resp.Asks))
	writeJSON(w, http.StatusOK, resp)
}

// getMarketStats implements `GET /market/stats` (`get_market_stats`).
func (s *Server) getMarketStats(w http.ResponseWriter, r *http.Request) {
	timeframe := r.URL.Query().Get("timeframe")
	window := parseTimeframe(timeframe)

	trades, err := s.store.TradesSince(r.Context(), time.Now().Add(-window))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	stats := marketStatsResponse{Timeframe: timeframe, Trades: len(trades)}
	var notionalSum, volumeSum float64
	for i := range trades {
		t := trades[i]
		stats.Volume += int64(t.Quantity)
		notional, _ := t.Notional().Float64()
		notionalSum += notional
		volumeSum += float64(t.Quantity)
		stats.LastPrice = int64(t.Price)
	}
	if volumeSum > 0 {
		stats.VWAP = notionalSum / volumeSum
	}

	bid, ask := s.engine.BestBidAsk()
	if bid > 0 && ask > 0 {
		mid := float64(bid+ask) / 2
		stats.SpreadBps = float64(ask-bid) / mid * 10000
		s.metrics.SetSpreadBps(s.engine.Symbol(), stats.SpreadBps)
	}
	writeJSON(w, http.StatusOK, stats)
}

// getClearingPrice implements `GET /market/clearing-price`
// (`get_clearing_price`).
func (s *Server) getClearingPrice(w http.ResponseWriter, r *http.Request) {
	trade, err := s.store.LatestTrade(r.Context())
	if err != nil {
		writeError(w, statusForDomainError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, clearingPriceResponse{Price: int64(trade.Price), TS: trade.ExecutedAt})
}

// listRecentTrades implements `GET /market/trades/recent`.
func (s *Server) listRecentTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if lv := r.URL.Query().Get("limit"); lv != "" {
		if n, err := strconv.Atoi(lv); err == nil && n > 0 {
			limit = n
		}
	}
	trades, err := s.store.ListTrades(r.Context(), limit, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]tradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, toTradeResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// adminControl implements `POST /admin/control`. Gated by a shared admin
// token since this process does no general authentication or authorization.
func (s *Server) adminControl(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AdminToken == "" || r.Header.Get("X-Admin-Token") != s.cfg.AdminToken {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var req adminControlRequest
	if err := jsonDecode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	switch req.Action {
	case "pause":
		s.engine.Pause()
		writeJSON(w, http.StatusOK, adminControlResponse{Action: req.Action, Report: "market paused"})
	case "resume":
		trades := s.engine.Resume()
		writeJSON(w, http.StatusOK, adminControlResponse{Action: req.Action, Report: tradeCountReport(len(trades))})
	case "trigger_match":
		trades := s.engine.TriggerMatch()
		writeJSON(w, http.StatusOK, adminControlResponse{Action: req.Action, Report: tradeCountReport(len(trades))})
	case "clear_expired":
		ids := s.engine.ExpireDue(time.Now())
		writeJSON(w, http.StatusOK, adminControlResponse{Action: req.Action, Report: expiredCountReport(len(ids))})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

func tradeCountReport(n int) string {
	if n == 1 {
		return "1 trade executed"
	}
	return strconv.Itoa(n) + " trades executed"
}

func expiredCountReport(n int) string {
	if n == 1 {
		return "1 order expired"
	}
	return strconv.Itoa(n) + " orders expired"
}

func pagination(r *http.Request) (limit, offset int) {
	limit, offset = 50, 0
	if lv := r.URL.Query().Get("limit"); lv != "" {
		if n, err := strconv.Atoi(lv); err == nil && n > 0 {
			limit = n
		}
	}
	if ov := r.URL.Query().Get("offset"); ov != "" {
		if n, err := strconv.Atoi(ov); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func parseTimeframe(tf string) time.Duration {
	switch tf {
	case "1h":
		return time.Hour
	case "24h", "":
		return 24 * time.Hour
	case "7d":
		return 7 * 24 * time.Hour
	default:
		if d, err := time.ParseDuration(tf); err == nil {
			return d
		}
		return 24 * time.Hour
	}
}

func parseSide(s string) (domain.Side, error) {
	switch s {
	case "buy":
		return domain.SideBuy, nil
	case "sell":
		return domain.SideSell, nil
	default:
		return 0, domain.ErrUnknownSide
	}
}

type internalTimer struct{ start time.Time }

func newInternalTimer() internalTimer { return internalTimer{start: time.Now()} }

func (t internalTimer) elapsedMs() float64 {
	return float64(time.Since(t.start).Microseconds()) / 1000.0
}

func jsonDecode(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
