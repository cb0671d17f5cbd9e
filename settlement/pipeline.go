// Package settlement carries each executed trade from Pending through to a
// Confirmed or Failed record on the external ledger.
package settlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"kwh-exchange/domain"
	"kwh-exchange/eventbus"
	"kwh-exchange/journal"
	"kwh-exchange/ledger"
)

// Config tunes the pipeline's worker pool and retry policy. MaxAttempts
// through PollInterval mirror config.SettlementConfig so cmd/server can pass
// them straight through; FeeRate comes from config.MarketConfig.
type Config struct {
	MaxAttempts         int
	BaseDelay           time.Duration
	ConfirmationTimeout time.Duration
	Workers             int
	PollInterval        time.Duration
	FeeRate             decimal.Decimal
}

// Pipeline is the worker pool that drains Pending settlements: claim via
// atomic conditional update, submit to the ledger client, retry on
// transient failure with linear backoff, fail permanently once attempts
// are exhausted.
type Pipeline struct {
	store  *journal.Store
	ledger ledger.Client
	bus    *eventbus.Bus
	cfg    Config
	clock  func() time.Time
	idGen  func() string

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPipeline constructs a Pipeline. bus may be nil (no settlement events
// published). idGen generates settlement IDs (a UUID or similar); clock
// defaults to time.Now if nil.
func NewPipeline(store *journal.Store, client ledger.Client, bus *eventbus.Bus, cfg Config, idGen func() string, clock func() time.Time) *Pipeline {
	if clock == nil {
		clock = time.Now
	}
	return &Pipeline{store: store, ledger: client, bus: bus, cfg: cfg, clock: clock, idGen: idGen, stopCh: make(chan struct{})}
}

// RecordTrade creates the one Settlement row a freshly executed trade is
// owed. Exactly-once is enforced by the store's UNIQUE constraint on
// trade_id.
func (p *Pipeline) RecordTrade(ctx context.Context, trade domain.TradeMatch) error {
	fee, sellerReceives := ComputeFee(trade, p.cfg.FeeRate)
	now := p.clock()
	st := NewPending(p.idGen(), trade.ID, fee, sellerReceives, now)
	return p.store.RecordTradeAndSettlement(ctx, trade, st)
}

// Start launches the configured number of worker goroutines, each polling
// for pending settlements independently.
func (p *Pipeline) Start(ctx context.Context) {
	workers := p.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx)
	}
}

// Stop signals all workers to exit and waits for them to drain.
func (p *Pipeline) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Pipeline) runWorker(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.processOne(ctx)
		}
	}
}

// processOne claims and processes at most one Pending settlement. Returning
// with nothing claimed (ErrNoPendingSettlement) is the normal idle case.
func (p *Pipeline) processOne(ctx context.Context) {
	now := p.clock()
	st, err := p.store.ClaimNextPending(ctx, now)
	if errors.Is(err, journal.ErrNoPendingSettlement) {
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("settlement: claim pending failed")
		return
	}

	p.publishTransition(st.ID, domain.SettlementPending, domain.SettlementProcessing, st.TradeID, "")

	trade, err := p.store.GetTrade(ctx, st.TradeID)
	if err != nil {
		p.fail(ctx, st, "load trade: "+err.Error(), now)
		return
	}

	submitCtx, cancel := context.WithTimeout(ctx, p.cfg.ConfirmationTimeout)
	outcome := p.ledger.Submit(submitCtx, trade.ID, trade.Buyer, trade.Seller, trade.Quantity, trade.Price, st.Fee)
	cancel()

	switch outcome.Kind {
	case ledger.Accepted, ledger.AlreadyExists:
		confirmed := markConfirmed(st, outcome.Tx, p.clock())
		if err := p.store.UpdateSettlement(ctx, confirmed); err != nil {
			log.Error().Err(err).Str("settlement_id", st.ID).Msg("settlement: persist confirmed failed")
			return
		}
		p.publishTransition(st.ID, domain.SettlementProcessing, domain.SettlementConfirmed, st.TradeID, outcome.Tx)
	case ledger.Permanent:
		p.fail(ctx, st, outcome.Err.Error(), now)
	case ledger.Transient:
		p.retry(ctx, st, outcome.Err, now)
	}
}

func (p *Pipeline) retry(ctx context.Context, st domain.Settlement, cause error, now time.Time) {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	if !st.CanRetry(p.cfg.MaxAttempts) {
		p.fail(ctx, st, reason, now)
		return
	}

	retried := markRetry(st, reason, now)
	if err := p.store.UpdateSettlement(ctx, retried); err != nil {
		log.Error().Err(err).Str("settlement_id", st.ID).Msg("settlement: persist retry failed")
		return
	}
	p.publishTransition(st.ID, domain.SettlementProcessing, domain.SettlementPending, st.TradeID, "")

	delay := backoffDelay(p.cfg.BaseDelay, st.Attempts)
	log.Warn().Str("settlement_id", st.ID).Int("attempts", st.Attempts).Dur("backoff", delay).Msg("settlement: transient failure, will retry")
	time.Sleep(delay)
}

func (p *Pipeline) fail(ctx context.Context, st domain.Settlement, reason string, now time.Time) {
	failed := markFailed(st, reason, now)
	if err := p.store.UpdateSettlement(ctx, failed); err != nil {
		log.Error().Err(err).Str("settlement_id", st.ID).Msg("settlement: persist failed-state failed")
		return
	}
	p.publishTransition(st.ID, domain.SettlementProcessing, domain.SettlementFailed, st.TradeID, "")
}

func (p *Pipeline) publishTransition(settlementID string, from, to domain.SettlementState, tradeID, ledgerTx string) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.KindSettlementStateChanged, eventbus.SettlementStateChangedPayload{
		SettlementID: settlementID, TradeID: tradeID, From: from, To: to, LedgerTx: ledgerTx,
	})
}

// ReplayFailed resets a Failed settlement back to Pending with a clean
// attempt counter, for admin-triggered manual replay.
func (p *Pipeline) ReplayFailed(ctx context.Context, settlementID string, st domain.Settlement, now time.Time) error {
	st.State = domain.SettlementPending
	st.Attempts = 0
	st.LastError = ""
	st.UpdatedAt = now
	return p.store.UpdateSettlement(ctx, st)
}
