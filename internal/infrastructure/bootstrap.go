package infrastructure

import (
	"context"

	"adledger/internal/config"
	"adledger/internal/gateway"
	"adledger/internal/model"
	"adledger/internal/repository"
	"adledger/internal/service"
	transportHTTP "adledger/internal/transport/http"
	transportNATS "adledger/internal/transport/nats"
	"adledger/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the
// application. Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	db, err := connectPostgres(cfg.DSN())
	if err != nil {
		return nil, nil, err
	}

	rdb, err := connectRedis(cfg.RedisAddr())
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	var cleanupFns []func()
	cleanupFns = append(cleanupFns, func() {
		db.Close()
		_ = rdb.Close()
	})

	nc, err := connectNats(cfg.NatsAddr())
	if err != nil {
		return nil, runCleanup(cleanupFns), err
	}
	cleanupFns = append(cleanupFns, nc.Close)

	// ── Wiring ────────────────────────────────────────────────────────────
	store := repository.NewStore(db, rdb)

	collab := gateway.NewHTTPCollaborators(cfg.SpendSourceURL, cfg.PaymentURL, cfg.PlatformURL)
	payments := gateway.NewBreakerGateway(collab, cfg.GatewayTimeout)
	platform := gateway.NewRetryingPlatform(collab, cfg.GatewayTimeout)
	notifier := gateway.NewNatsNotifier(nc)
	usage := gateway.NewNatsUsageReporter(nc)

	engine := service.NewEngine(store, collab, payments, platform, notifier, usage, service.Params{
		LowBalanceDays:     cfg.LowBalanceDays,
		TopUpDays:          cfg.TopUpDays,
		MinCharge:          model.Money(cfg.MinChargeCents),
		GraceWindow:        cfg.GraceWindow,
		SettlementHour:     cfg.SettlementHour,
		SpendFetchAttempts: cfg.SpendFetchAttempts,
		EstimateWindowDays: cfg.EstimateWindowDays,
		GatewayTimeout:     cfg.GatewayTimeout,
	})

	servers := []Server{
		worker.NewSettlementWorker(engine, cfg.SettlementSweepTick),
		worker.NewReconcileWorker(engine, cfg.ReconcileInterval),
		transportNATS.NewHandler(engine, nc),
	}
	if addr, apiErr := cfg.ApiAddr(); apiErr == nil {
		servers = append(servers, transportHTTP.NewServer(addr, engine))
	}

	return NewApp(servers), runCleanup(cleanupFns), nil
}

// runCleanup returns a single function that calls all cleanup functions in
// reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
