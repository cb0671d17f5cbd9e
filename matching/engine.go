package matching

import (
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"kwh-exchange/domain"
	"kwh-exchange/eventbus"
	"kwh-exchange/orderbook"
)

// JournalWriter is the durability seam the engine writes through before a
// mutation becomes externally visible. Required ordering per mutation:
// journal append, then order book mutation, then event publication.
type JournalWriter interface {
	Append(entry domain.JournalEntry) error
}

// EventPublisher is the event-bus seam the engine publishes through. A nil
// publisher is fine (tests, benchmarks): events are simply not emitted.
type EventPublisher interface {
	Publish(kind eventbus.Kind, payload interface{}) eventbus.Event
}

// Engine is a single-market, single-writer matching engine. Every mutation
// and every consistent read is serialized through cmdCh to one goroutine
// that owns the order book exclusively — an actor, not a lock. This
// guarantees no interleaving of match steps with concurrent cancel/add/
// expire of the same order and no torn filled/remaining.
type Engine struct {
	symbol     string
	book       *orderbook.OrderBook
	journal    JournalWriter
	bus        EventPublisher
	tradeIDGen *IDGenerator
	seqCounter uint64

	cmdCh chan func()
	stopCh chan struct{}

	tickInterval time.Duration
	paused       atomic.Bool
	halted       atomic.Bool
	clock        func() time.Time
}

// NewEngine creates a matching engine for one market. Start must be called
// before any other method will return.
func NewEngine(symbol string, journal JournalWriter, bus EventPublisher, tickInterval time.Duration) *Engine {
	return &Engine{
		symbol:       symbol,
		book:         orderbook.NewOrderBook(symbol),
		journal:      journal,
		bus:          bus,
		tradeIDGen:   NewIDGenerator("T"),
		cmdCh:        make(chan func(), 4096),
		stopCh:       make(chan struct{}),
		tickInterval: tickInterval,
		clock:        time.Now,
	}
}

func (e *Engine) Symbol() string { return e.symbol }

// nextSeq assigns the next insertion-order counter value. Only called from
// the engine's single-writer goroutine, so a plain increment is safe.
func (e *Engine) nextSeq() uint64 {
	e.seqCounter++
	return e.seqCounter
}

// Start runs the engine's command loop in a dedicated, OS-thread-pinned
// goroutine so cache locality and scheduling overhead stay predictable
// under load.
func (e *Engine) Start() {
	go e.run()
}

// Stop halts the command loop. Pending commands already enqueued are
// dropped; callers blocked in submit will hang if Stop races a submit, so
// Stop should only be called once no further calls are in flight.
func (e *Engine) Stop() {
	close(e.stopCh)
}

func (e *Engine) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case cmd := <-e.cmdCh:
			cmd()
		case <-ticker.C:
			if !e.paused.Load() {
				e.drainMatches()
			}
		}
	}
}

// submit runs fn on the engine's owning goroutine and blocks until it
// completes, giving the caller a consistent view of the book without
// taking a lock itself.
func (e *Engine) submit(fn func()) {
	done := make(chan struct{})
	e.cmdCh <- func() {
		fn()
		close(done)
	}
	<-done
}

// AddOrder validates, journals, and applies an incoming order, matching it
// immediately against any crossing resting orders. A limit order that is
// not fully filled rests in the book; a market order never rests — if it
// matches nothing at all it is rejected with ErrNoLiquidity.
func (e *Engine) AddOrder(order *domain.Order) ([]*domain.TradeMatch, error) {
	var trades []*domain.TradeMatch
	var err error
	e.submit(func() {
		trades, err = e.addOrderLocked(order)
	})
	return trades, err
}

func (e *Engine) addOrderLocked(order *domain.Order) ([]*domain.TradeMatch, error) {
	if err := validateNewOrder(order, e.clock()); err != nil {
		return nil, err
	}
	if _, exists := e.book.GetOrder(order.ID); exists {
		return nil, domain.ErrDuplicateID
	}
	if e.halted.Load() {
		return nil, domain.ErrEngineHalted
	}
	if e.paused.Load() {
		return nil, domain.ErrMarketPaused
	}

	if order.Type == domain.OrderTypeLimit {
		order.Seq = e.nextSeq()
	}

	if err := e.appendJournal(domain.JournalAdd, order.Snapshot()); err != nil {
		return nil, err
	}

	if order.Type == domain.OrderTypeMarket {
		trades := e.matchMarketOrder(order)
		if len(trades) == 0 {
			return nil, domain.ErrNoLiquidity
		}
		return trades, nil
	}

	if err := e.book.AddOrder(order); err != nil {
		return nil, err
	}
	e.publish(eventbus.KindOrderAdded, eventbus.OrderAddedPayload{Order: order.Snapshot()})

	if e.crosses() {
		return e.drainMatches(), nil
	}
	return nil, nil
}

func validateNewOrder(order *domain.Order, now time.Time) error {
	if order.Type == domain.OrderTypeLimit && order.Price <= 0 {
		return domain.ErrInvalidPrice
	}
	if order.Quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	if !order.ExpiresAt.IsZero() && !order.ExpiresAt.After(now) {
		return domain.ErrExpired
	}
	return nil
}

// CancelOrder removes a resting order on behalf of its owner, returning the
// remaining (refunded) quantity.
func (e *Engine) CancelOrder(orderID, owner string) (domain.Quantity, error) {
	var refund domain.Quantity
	var err error
	e.submit(func() {
		refund, err = e.cancelOrderLocked(orderID, owner)
	})
	return refund, err
}

func (e *Engine) cancelOrderLocked(orderID, owner string) (domain.Quantity, error) {
	order, exists := e.book.GetOrder(orderID)
	if !exists {
		return 0, domain.ErrNotFound
	}
	if order.Owner != owner {
		return 0, domain.ErrNotOwner
	}
	if order.Status.Terminal() {
		return 0, domain.ErrAlreadyTerminal
	}
	if e.halted.Load() {
		return 0, domain.ErrEngineHalted
	}

	refund := order.Remaining()
	if err := e.appendJournal(domain.JournalCancel, order.Snapshot()); err != nil {
		return 0, err
	}

	cancelled, err := e.book.CancelOrder(orderID)
	if err != nil {
		return 0, err
	}

	e.publish(eventbus.KindOrderRemoved, eventbus.OrderRemovedPayload{
		OrderID: cancelled.ID, Reason: eventbus.ReasonCancel, Remaining: refund, Order: cancelled.Snapshot(),
	})
	return refund, nil
}

// ExpireDue removes every resting order whose ExpiresAt is at or before
// now, returning their IDs.
func (e *Engine) ExpireDue(now time.Time) []string {
	var expired []string
	e.submit(func() {
		for _, order := range e.book.AllOrders() {
			if order.ExpiresAt.IsZero() || order.ExpiresAt.After(now) {
				continue
			}
			if err := e.appendJournal(domain.JournalExpire, order.Snapshot()); err != nil {
				continue
			}
			o, err := e.book.ExpireOrder(order.ID)
			if err != nil {
				continue
			}
			expired = append(expired, o.ID)
			e.publish(eventbus.KindOrderRemoved, eventbus.OrderRemovedPayload{
				OrderID: o.ID, Reason: eventbus.ReasonExpire, Remaining: o.Remaining(), Order: o.Snapshot(),
			})
		}
	})
	return expired
}

// TriggerMatch runs an explicit drain (the admin trigger_match action).
// Idempotent: calling it on a non-crossing book returns nil.
func (e *Engine) TriggerMatch() []*domain.TradeMatch {
	var trades []*domain.TradeMatch
	e.submit(func() {
		if e.paused.Load() || e.halted.Load() {
			return
		}
		trades = e.drainMatches()
	})
	return trades
}

// Pause stops the engine from draining matches. Cancel and reads continue.
func (e *Engine) Pause() {
	e.submit(func() { e.paused.Store(true) })
}

// Resume re-enables draining and immediately runs one. A no-op while halted.
func (e *Engine) Resume() []*domain.TradeMatch {
	var trades []*domain.TradeMatch
	e.submit(func() {
		e.paused.Store(false)
		if e.halted.Load() {
			return
		}
		trades = e.drainMatches()
	})
	return trades
}

func (e *Engine) Paused() bool { return e.paused.Load() }

// Halted reports whether a journal write failure has tripped the engine
// into its refuse-writes state. Only an operator restart clears it.
func (e *Engine) Halted() bool { return e.halted.Load() }

// Depth returns a consistent top-N depth snapshot of both sides.
func (e *Engine) Depth(levels int) (bids, asks []orderbook.PriceLevel) {
	e.submit(func() {
		bids, asks = e.book.GetDepth(levels)
	})
	return
}

// BestBidAsk returns a consistent read of the best bid and ask.
func (e *Engine) BestBidAsk() (bid, ask domain.Price) {
	e.submit(func() {
		bid, ask = e.book.GetBestBid(), e.book.GetBestAsk()
	})
	return
}

// GetOrder returns a snapshot of a resting order.
func (e *Engine) GetOrder(orderID string) (domain.OrderSnapshot, bool) {
	var snap domain.OrderSnapshot
	var ok bool
	e.submit(func() {
		if o, exists := e.book.GetOrder(orderID); exists {
			snap = o.Snapshot()
			ok = true
		}
	})
	return snap, ok
}

// Snapshot captures every resting order for the snapshot/recovery package.
func (e *Engine) Snapshot() domain.Snapshot {
	var snap domain.Snapshot
	e.submit(func() {
		orders := e.book.AllOrders()
		snapshots := make([]domain.OrderSnapshot, len(orders))
		for i, o := range orders {
			snapshots[i] = o.Snapshot()
		}
		snap = domain.Snapshot{Timestamp: e.clock(), Orders: snapshots}
	})
	return snap
}

// LoadSnapshot seeds the book directly from a durable snapshot, restoring
// each order's fill progress and status as captured. Used only during
// recovery, before Replay and before the engine accepts live traffic.
func (e *Engine) LoadSnapshot(snap domain.Snapshot) {
	e.submit(func() {
		for _, os := range snap.Orders {
			order := domain.NewOrder(os.ID, os.Owner, os.Side, os.Type, os.Price, os.Quantity, os.CreatedAt, os.ExpiresAt)
			order.Seq = os.Seq
			order.Filled = os.Filled
			order.Status = os.Status
			if os.Seq > e.seqCounter {
				e.seqCounter = os.Seq
			}
			if os.Status.Terminal() {
				continue
			}
			e.book.AddOrder(order)
		}
	})
}

// Replay re-applies one already-durable journal entry to the book, without
// re-appending it to the journal or publishing events — used only during
// recovery to fast-forward past a snapshot's watermark.
func (e *Engine) Replay(entry domain.JournalEntry) error {
	var err error
	e.submit(func() {
		switch entry.Kind {
		case domain.JournalAdd:
			var snap domain.OrderSnapshot
			if jerr := json.Unmarshal(entry.Payload, &snap); jerr != nil {
				err = jerr
				return
			}
			if snap.Type == domain.OrderTypeMarket {
				return // market orders never rested; nothing to replay
			}
			order := domain.NewOrder(snap.ID, snap.Owner, snap.Side, snap.Type, snap.Price, snap.Quantity, snap.CreatedAt, snap.ExpiresAt)
			order.Seq = snap.Seq
			if snap.Seq > e.seqCounter {
				e.seqCounter = snap.Seq
			}
			err = e.book.AddOrder(order)
		case domain.JournalCancel:
			var snap domain.OrderSnapshot
			if jerr := json.Unmarshal(entry.Payload, &snap); jerr != nil {
				err = jerr
				return
			}
			_, err = e.book.CancelOrder(snap.ID)
			err = nil // order may already be gone if this entry predates a snapshot watermark
		case domain.JournalExpire:
			var snap domain.OrderSnapshot
			if jerr := json.Unmarshal(entry.Payload, &snap); jerr != nil {
				err = jerr
				return
			}
			_, _ = e.book.ExpireOrder(snap.ID)
		case domain.JournalFill:
			var trade domain.TradeMatch
			if jerr := json.Unmarshal(entry.Payload, &trade); jerr != nil {
				err = jerr
				return
			}
			e.replayFill(&trade)
		}
	})
	return err
}

func (e *Engine) replayFill(trade *domain.TradeMatch) {
	buy, ok := e.book.GetOrder(trade.BuyOrderID)
	if !ok {
		return
	}
	sell, ok := e.book.GetOrder(trade.SellOrderID)
	if !ok {
		return
	}
	buy.Fill(trade.Quantity)
	sell.Fill(trade.Quantity)
	if buy.IsFilled() {
		e.book.RemoveMatched(buy.ID)
	}
	if sell.IsFilled() {
		e.book.RemoveMatched(sell.ID)
	}
}

// crosses reports whether the book currently has best_bid >= best_ask.
func (e *Engine) crosses() bool {
	bid, ask := e.book.GetBestBid(), e.book.GetBestAsk()
	return bid != 0 && ask != 0 && bid >= ask
}

// drainMatches repeatedly executes the oldest-bid-vs-oldest-ask trade while
// the book crosses. Both orders are already resting; price is always the
// ask side's price per the documented price-improvement-for-the-buyer rule.
func (e *Engine) drainMatches() []*domain.TradeMatch {
	var trades []*domain.TradeMatch
	for e.crosses() {
		buyLevel := e.book.GetBestBuyLevel()
		sellLevel := e.book.GetBestSellLevel()
		if buyLevel == nil || sellLevel == nil || buyLevel.Orders.Len() == 0 || sellLevel.Orders.Len() == 0 {
			break
		}

		buy := buyLevel.Orders.Front().Value.(*domain.Order)
		sell := sellLevel.Orders.Front().Value.(*domain.Order)

		trade := e.executeTrade(buy, sell, sell.Price, buy.Seq < sell.Seq)
		trades = append(trades, trade)

		if buy.IsFilled() {
			e.removeFilled(buy)
		}
		if sell.IsFilled() {
			e.removeFilled(sell)
		}
	}
	return trades
}

// matchMarketOrder matches an incoming market order directly against the
// opposite side of the book. It never rests; execution price is the
// resting order's price, since a market order has none of its own.
func (e *Engine) matchMarketOrder(incoming *domain.Order) []*domain.TradeMatch {
	var trades []*domain.TradeMatch
	for !incoming.IsFilled() {
		var level *orderbook.PriceLevel_
		if incoming.Side == domain.SideBuy {
			level = e.book.GetBestSellLevel()
		} else {
			level = e.book.GetBestBuyLevel()
		}
		if level == nil || level.Orders.Len() == 0 {
			break
		}

		resting := level.Orders.Front().Value.(*domain.Order)

		var trade *domain.TradeMatch
		if incoming.Side == domain.SideBuy {
			trade = e.executeTrade(incoming, resting, resting.Price, false)
		} else {
			trade = e.executeTrade(resting, incoming, resting.Price, true)
		}
		trades = append(trades, trade)

		if resting.IsFilled() {
			e.removeFilled(resting)
		}
	}
	return trades
}

func (e *Engine) removeFilled(order *domain.Order) {
	if _, ok := e.book.RemoveMatched(order.ID); ok {
		e.publish(eventbus.KindOrderRemoved, eventbus.OrderRemovedPayload{
			OrderID: order.ID, Reason: eventbus.ReasonFilled, Remaining: 0, Order: order.Snapshot(),
		})
	}
}

// publishOrderUpdate reports a resting limit order's fill progress after a
// trade that left it open. Market orders never rest and are excluded;
// removeFilled already covers an order that the trade just completed.
func (e *Engine) publishOrderUpdate(order *domain.Order) {
	if order.Type != domain.OrderTypeLimit || order.IsFilled() {
		return
	}
	e.publish(eventbus.KindOrderUpdated, eventbus.OrderUpdatedPayload{Order: order.Snapshot()})
}

func (e *Engine) executeTrade(buy, sell *domain.Order, price domain.Price, isBuyerMaker bool) *domain.TradeMatch {
	qty := buy.Remaining()
	if r := sell.Remaining(); r < qty {
		qty = r
	}

	buy.Fill(qty)
	sell.Fill(qty)

	trade := &domain.TradeMatch{
		ID:           e.tradeIDGen.Next(),
		BuyOrderID:   buy.ID,
		SellOrderID:  sell.ID,
		Buyer:        buy.Owner,
		Seller:       sell.Owner,
		Quantity:     qty,
		Price:        price,
		ExecutedAt:   e.clock(),
		IsBuyerMaker: isBuyerMaker,
	}

	e.appendJournal(domain.JournalFill, trade)
	buy.Fill(qty)
	sell.Fill(qty)
	e.publish(eventbus.KindTradeExecuted, eventbus.TradeExecutedPayload{Trade: *trade})
	e.publishOrderUpdate(buy)
	e.publishOrderUpdate(sell)
	return trade
}

// appendJournal writes one entry to the durable journal. Any failure here is
// fatal-class: it trips the engine into the halted state and every call from
// this point on, including this one, surfaces ErrEngineHalted rather than
// the underlying ErrJournalWrite, which never escapes this function.
func (e *Engine) appendJournal(kind domain.JournalEntryKind, payload interface{}) error {
	if e.journal == nil {
		return nil
	}
	if e.halted.Load() {
		return domain.ErrEngineHalted
	}
	data, err := json.Marshal(payload)
	if err != nil {
		e.halt(fmt.Errorf("%w: %v", domain.ErrJournalWrite, err))
		return domain.ErrEngineHalted
	}
	entry := domain.JournalEntry{Kind: kind, Payload: data, Timestamp: e.clock()}
	if err := e.journal.Append(entry); err != nil {
		e.halt(fmt.Errorf("%w: %v", domain.ErrJournalWrite, err))
		return domain.ErrEngineHalted
	}
	return nil
}

// halt trips the refuse-writes state once, logging the cause that tripped
// it. Only the engine's own goroutine calls this, so no extra locking.
func (e *Engine) halt(cause error) {
	if e.halted.Swap(true) {
		return
	}
	log.Error().Err(cause).Str("symbol", e.symbol).Msg("journal write failed, engine refusing further writes")
}

func (e *Engine) publish(kind eventbus.Kind, payload interface{}) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(kind, payload)
}

// Registry manages one Engine per market symbol. The core design is
// single-market; Registry is the seam a multi-market deployment would use,
// per market sharing the same settlement pipeline and ledger client. The
// read path is lock-free (atomic.Value load); creating a new market's
// engine is the rare, mutex-guarded, copy-on-write path.
type Registry struct {
	engines      atomic.Value // map[string]*Engine
	mu           sync.Mutex
	journal      JournalWriter
	bus          EventPublisher
	tickInterval time.Duration
}

// NewRegistry creates an empty registry. journal and bus are shared by
// every engine it creates.
func NewRegistry(journal JournalWriter, bus EventPublisher, tickInterval time.Duration) *Registry {
	r := &Registry{journal: journal, bus: bus, tickInterval: tickInterval}
	r.engines.Store(make(map[string]*Engine))
	return r
}

// Get returns the engine for a symbol, starting a new one if this is the
// first time the symbol has been seen.
func (r *Registry) Get(symbol string) *Engine {
	engines := r.engines.Load().(map[string]*Engine)
	if e, ok := engines[symbol]; ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	engines = r.engines.Load().(map[string]*Engine)
	if e, ok := engines[symbol]; ok {
		return e
	}

	engine := NewEngine(symbol, r.journal, r.bus, r.tickInterval)
	engine.Start()

	next := make(map[string]*Engine, len(engines)+1)
	for k, v := range engines {
		next[k] = v
	}
	next[symbol] = engine
	r.engines.Store(next)

	return engine
}

// Symbols lists every market the registry has created an engine for.
func (r *Registry) Symbols() []string {
	engines := r.engines.Load().(map[string]*Engine)
	out := make([]string, 0, len(engines))
	for k := range engines {
		out = append(out, k)
	}
	return out
}
