// Command server runs one exchange process: it loads configuration, recovers
// the matching engine from the durable store, and serves the REST/WebSocket
// API until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"kwh-exchange/api"
	"kwh-exchange/config"
	"kwh-exchange/domain"
	"kwh-exchange/eventbus"
	"kwh-exchange/journal"
	"kwh-exchange/ledger"
	"kwh-exchange/matching"
	"kwh-exchange/metrics"
	"kwh-exchange/settlement"
)

// eventQueueCapacity bounds how many events a bus subscriber can lag behind
// before events start getting dropped for it. The API's WebSocket hub, the
// settlement recorder, and the order persister below are all subscribers.
const eventQueueCapacity = 4096

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("KWH_CONFIG_PATH"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfgPath).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setupLogging(cfg.Logging)

	log.Info().Str("market", cfg.Market.Symbol).Str("listen_addr", cfg.API.ListenAddr).Msg("starting kwh-exchange")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := journal.Open(ctx, cfg.Store.DSN, cfg.Store.MaxOpenConns)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open durable store")
	}
	defer store.Close()

	policy := journal.FsyncBatched
	if cfg.Store.JournalFsync == string(journal.FsyncPerMutation) {
		policy = journal.FsyncPerMutation
	}
	jrnl := journal.NewJournal(store, policy, cfg.Store.JournalBatchWin)
	entryWriter := journal.NewEntryWriter(jrnl)

	collector := metrics.GetCollector()
	bus := eventbus.NewBus(eventQueueCapacity, func(subscriberID uint64, seq uint64, kind eventbus.Kind) {
		collector.RecordEventBusDrop(string(kind))
		log.Warn().Uint64("subscriber", subscriberID).Uint64("seq", seq).Str("kind", string(kind)).Msg("event bus dropped event for slow subscriber")
	})

	engine := matching.NewEngine(cfg.Market.Symbol, entryWriter, bus, cfg.Market.MatchTick)

	log.Info().Msg("recovering matching engine from durable store")
	if err := journal.Recover(ctx, store, engine); err != nil {
		log.Fatal().Err(err).Msg("recovery failed")
	}
	if faults, err := journal.Reconcile(ctx, store, engine); err != nil {
		log.Fatal().Err(err).Msg("reconciliation failed")
	} else if len(faults) > 0 {
		for _, f := range faults {
			log.Error().Str("order_id", f.OrderID).Str("reason", f.Reason).Msg("reconciliation fault")
		}
		log.Fatal().Int("faults", len(faults)).Msg("book failed to reconcile against durable store after recovery")
	}
	engine.Start()
	defer engine.Stop()

	ledgerClient := newLedgerClient(cfg.Ledger)
	pipeline := settlement.NewPipeline(store, ledgerClient, bus, settlement.Config{
		MaxAttempts:         cfg.Settlement.MaxAttempts,
		BaseDelay:           cfg.Settlement.BaseDelay,
		ConfirmationTimeout: cfg.Settlement.ConfirmationTimeout,
		Workers:             cfg.Settlement.Workers,
		PollInterval:        cfg.Settlement.PollInterval,
		FeeRate:             decimal.NewFromFloat(cfg.Market.FeeRate),
	}, matching.NewIDGenerator("s").Next, nil)
	pipeline.Start(ctx)
	defer pipeline.Stop()

	go recordTrades(ctx, bus, pipeline)
	go persistOrders(ctx, bus, store)
	go takeSnapshots(ctx, store, engine, cfg.Snapshot)

	server := api.NewServer(engine, store, bus, cfg.API, cfg.Book, cfg.WS)
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	case err := <-serverErrCh:
		if err != nil {
			log.Error().Err(err).Msg("api server exited unexpectedly")
		}
		cancel()
	}

	log.Info().Msg("shutting down")
}

func setupLogging(cfg config.LoggingConfig) {
	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func newLedgerClient(cfg config.LedgerConfig) ledger.Client {
	if cfg.DryRun {
		log.Warn().Msg("ledger.dry_run enabled: settlements confirm against an in-memory stub, not a real ledger")
		return ledger.NewStubClient(nil)
	}
	return ledger.NewHTTPClient(cfg.BaseURL, cfg.Timeout)
}

// recordTrades creates the settlement row owed to every executed trade as
// soon as the matching engine publishes it. This is the only bus subscriber
// that feeds the settlement pipeline; everything else on the bus is an
// observer.
func recordTrades(ctx context.Context, bus *eventbus.Bus, pipeline *settlement.Pipeline) {
	id, events := bus.Subscribe()
	defer bus.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Kind != eventbus.KindTradeExecuted {
				continue
			}
			payload, ok := evt.Payload.(eventbus.TradeExecutedPayload)
			if !ok {
				continue
			}
			if err := pipeline.RecordTrade(ctx, payload.Trade); err != nil {
				log.Error().Err(err).Str("trade_id", payload.Trade.ID).Msg("failed to record settlement for trade")
			}
		}
	}
}

// persistOrders mirrors every resting order's lifecycle into the durable
// store: inserted on OrderAdded, fill progress updated on OrderUpdated
// (partial fills) and OrderRemoved (cancel/expire/fill-to-completion). This
// is what keeps the orders table non-empty for list_my_orders, the
// durable-order fallback in getOrder, and the post-recovery reconciliation
// check.
func persistOrders(ctx context.Context, bus *eventbus.Bus, store *journal.Store) {
	id, events := bus.Subscribe()
	defer bus.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			snap, ok := orderSnapshotFromEvent(evt)
			if !ok {
				continue
			}
			if err := store.UpsertOrder(ctx, snap, time.Now()); err != nil {
				log.Error().Err(err).Str("order_id", snap.ID).Msg("failed to persist order")
			}
		}
	}
}

func orderSnapshotFromEvent(evt eventbus.Event) (domain.OrderSnapshot, bool) {
	switch p := evt.Payload.(type) {
	case eventbus.OrderAddedPayload:
		return p.Order, true
	case eventbus.OrderUpdatedPayload:
		return p.Order, true
	case eventbus.OrderRemovedPayload:
		return p.Order, true
	default:
		return domain.OrderSnapshot{}, false
	}
}

// takeSnapshots persists the engine's book on a fixed interval so recovery
// after a restart only has to replay the journal entries written since the
// latest one.
func takeSnapshots(ctx context.Context, store *journal.Store, engine *matching.Engine, cfg config.SnapshotConfig) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := engine.Snapshot()
			if err := store.InsertSnapshot(ctx, snap, cfg.Retention); err != nil {
				log.Error().Err(err).Uint64("seq", snap.Seq).Msg("failed to persist snapshot")
				continue
			}
			log.Debug().Uint64("seq", snap.Seq).Int("orders", len(snap.Orders)).Msg("snapshot persisted")
		}
	}
}
