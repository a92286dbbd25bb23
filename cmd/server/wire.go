package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	accesshandler "medvault/internal/access/handler"
	"medvault/internal/access/idempotency"
	accessmetrics "medvault/internal/access/metrics"
	accessservice "medvault/internal/access/service"
	accessstore "medvault/internal/access/store"
	"medvault/internal/audit"
	jwttoken "medvault/internal/jwt_token"
	"medvault/internal/ledger"
	"medvault/internal/platform/config"
	"medvault/internal/platform/database"
	"medvault/internal/platform/health"
	"medvault/internal/platform/kafka/producer"
	"medvault/internal/platform/metrics"
	"medvault/internal/platform/redis"
	"medvault/internal/platform/tracer"
	recordshandler "medvault/internal/records/handler"
	recordsmetrics "medvault/internal/records/metrics"
	recordsservice "medvault/internal/records/service"
	recordstore "medvault/internal/records/store"
	httptransport "medvault/internal/transport/http"
	"medvault/internal/vault"
	vaultmetrics "medvault/internal/vault/metrics"
	vaultstore "medvault/internal/vault/store"
	verificationhandler "medvault/internal/verification/handler"
	verificationmetrics "medvault/internal/verification/metrics"
	verificationservice "medvault/internal/verification/service"
	"medvault/migrations"
	"medvault/pkg/platform/circuit"
	"medvault/pkg/platform/middleware/request"
)

const auditBufferSize = 1024

// app holds everything main starts and stops.
type app struct {
	handler     http.Handler
	idempotency *idempotency.InMemory
	pool        *database.Pool
	redis       *redis.Client
	closers     []func() error
}

// stores groups the per-module persistence chosen from config.
type stores struct {
	records  recordsservice.Store
	keys     vault.Store
	access   accessservice.Store
	accessTx accessservice.StoreTx
	audit    audit.Store
}

func build(ctx context.Context, cfg config.Server, log *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close(log)
		}
	}()

	reg := metrics.New()
	checks := health.New(cfg.Environment)
	accessMetrics := accessmetrics.New(reg)

	st, err := a.buildStores(ctx, cfg, log, accessMetrics, checks)
	if err != nil {
		return nil, err
	}

	ledgerClient, err := a.buildLedger(cfg, log, reg, checks)
	if err != nil {
		return nil, err
	}

	wrapper, err := vault.NewWrapper(cfg.Vault.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	keyVault := vault.New(st.keys, wrapper,
		vault.WithMetrics(vaultmetrics.New(reg)),
		vault.WithLogger(log),
	)

	idem, err := a.buildIdempotency(ctx, cfg, reg, checks)
	if err != nil {
		return nil, err
	}

	publisher, err := a.buildAudit(cfg, log, st.audit, checks)
	if err != nil {
		return nil, err
	}

	records := recordsservice.New(st.records, keyVault, ledgerClient,
		recordsservice.WithMetrics(recordsmetrics.New(reg)),
		recordsservice.WithAuditor(publisher),
		recordsservice.WithLogger(log),
	)
	access := accessservice.New(st.access, st.records, keyVault,
		accessservice.WithTx(st.accessTx),
		accessservice.WithIdempotency(idem),
		accessservice.WithAuditor(publisher),
		accessservice.WithMetrics(accessMetrics),
		accessservice.WithLogger(log),
	)
	verifier := verificationservice.New(st.records, ledgerClient,
		verificationservice.WithTimeout(cfg.Ledger.VerifyTimeout),
		verificationservice.WithTracer(tracer.NewOTel()),
		verificationservice.WithMetrics(verificationmetrics.New(reg)),
		verificationservice.WithLogger(log),
	)

	proxies, err := parseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.TokenTTL)
	a.handler = httptransport.NewRouter(httptransport.Config{
		Logger:         log,
		Validator:      jwttoken.NewJWTServiceAdapter(jwtService),
		Health:         checks,
		Metrics:        reg.Handler(),
		RequestMetrics: request.NewMetrics(reg),
		TrustedProxies: proxies,
		RequestTimeout: cfg.RequestTimeout,
		Modules: []httptransport.Module{
			recordshandler.New(records, log),
			accesshandler.New(access, log),
			verificationhandler.New(verifier, log),
			audit.NewHandler(publisher, log),
		},
	})
	return a, nil
}

func (a *app) buildStores(ctx context.Context, cfg config.Server, log *slog.Logger, m *accessmetrics.Metrics, checks *health.Handler) (stores, error) {
	pool, err := database.New(cfg.Database)
	if err != nil {
		return stores{}, fmt.Errorf("database: %w", err)
	}
	if pool == nil {
		log.Info("DATABASE_URL not set, using in-memory stores")
		access := accessstore.New()
		return stores{
			records:  recordstore.New(),
			keys:     vaultstore.New(),
			access:   access,
			accessTx: accessservice.NewShardedTx(access, m),
			audit:    audit.NewInMemoryStore(),
		}, nil
	}

	a.pool = pool
	a.closers = append(a.closers, pool.Close)
	if err := database.Migrate(ctx, pool.DB(), migrations.FS, log); err != nil {
		return stores{}, fmt.Errorf("migrate: %w", err)
	}
	checks.RegisterCheck("database", pool.Health)

	db := pool.DB()
	return stores{
		records:  recordstore.NewPostgres(db),
		keys:     vaultstore.NewPostgres(db),
		access:   accessstore.NewPostgres(db),
		accessTx: newAccessPostgresTx(db),
		audit:    audit.NewPostgresStore(db),
	}, nil
}

func (a *app) buildLedger(cfg config.Server, log *slog.Logger, reg *metrics.Registry, checks *health.Handler) (ledger.Client, error) {
	var (
		backend ledger.Client
		ping    func(context.Context) error
	)
	switch cfg.Ledger.Mode {
	case config.LedgerHTTP:
		client := ledger.NewHTTPClient(ledger.HTTPClientConfig{
			BaseURL: cfg.Ledger.URL,
			Timeout: cfg.Ledger.Timeout,
		})
		backend, ping = client, client.Ping
	default:
		chain, err := ledger.OpenChain(cfg.Ledger.DataDir)
		if err != nil {
			return nil, fmt.Errorf("ledger: %w", err)
		}
		a.closers = append(a.closers, chain.Close)
		backend = chain
	}

	resilient := ledger.NewResilient(backend,
		ledger.WithBreaker(circuit.New("ledger")),
		ledger.WithMetrics(ledger.NewMetrics(reg)),
		ledger.WithTracer(tracer.NewOTel()),
		ledger.WithLogger(log),
	)
	checks.RegisterCheck("ledger", func(ctx context.Context) error {
		if err := resilient.Ready(ctx); err != nil {
			return err
		}
		if ping != nil {
			return ping(ctx)
		}
		return nil
	})
	return resilient, nil
}

func (a *app) buildIdempotency(ctx context.Context, cfg config.Server, reg *metrics.Registry, checks *health.Handler) (idempotency.Store, error) {
	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	if rc == nil {
		a.idempotency = idempotency.NewInMemory(cfg.IdempotencyTTL)
		return a.idempotency, nil
	}
	a.redis = rc
	a.closers = append(a.closers, rc.Close)
	rc.RegisterMetrics(reg)
	checks.RegisterCheck("redis", rc.Health)
	return idempotency.NewRedis(rc.Client, cfg.IdempotencyTTL), nil
}

func (a *app) buildAudit(cfg config.Server, log *slog.Logger, store audit.Store, checks *health.Handler) (*audit.Publisher, error) {
	opts := []audit.PublisherOption{
		audit.WithAsyncBuffer(auditBufferSize),
		audit.WithPublisherLogger(log),
	}
	if cfg.Kafka.Brokers != "" {
		p, err := producer.New(producer.DefaultConfig(cfg.Kafka.Brokers), log)
		if err != nil {
			return nil, fmt.Errorf("kafka: %w", err)
		}
		a.closers = append(a.closers, p.Close)
		checks.RegisterCheck("kafka", p.Ping)
		opts = append(opts, audit.WithSink(audit.NewKafkaSink(p, cfg.Kafka.AuditTopic)))
	}
	publisher := audit.NewPublisher(store, opts...)
	// Drain before the producer and the database close.
	a.closers = append(a.closers, func() error {
		publisher.Close()
		return nil
	})
	return publisher, nil
}

// recordPoolStats samples database and redis pool gauges until ctx ends.
func (a *app) recordPoolStats(ctx context.Context, every time.Duration) error {
	if a.pool == nil && a.redis == nil {
		return nil
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if a.pool != nil {
				a.pool.RecordPoolStats()
			}
			if a.redis != nil {
				a.redis.RecordPoolStats()
			}
		}
	}
}

// close releases resources in reverse order of acquisition.
func (a *app) close(log *slog.Logger) {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	if err := errors.Join(errs...); err != nil {
		log.Error("shutdown cleanup failed", "error", err)
	}
}

func parseTrustedProxies(raw []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(raw))
	for _, s := range raw {
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			addr, addrErr := netip.ParseAddr(s)
			if addrErr != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: %q: %w", s, err)
			}
			prefix = netip.PrefixFrom(addr, addr.BitLen())
		}
		out = append(out, prefix)
	}
	return out, nil
}
