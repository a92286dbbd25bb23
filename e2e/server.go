package e2e

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	accesshandler "medvault/internal/access/handler"
	accessservice "medvault/internal/access/service"
	accessstore "medvault/internal/access/store"
	"medvault/internal/audit"
	jwttoken "medvault/internal/jwt_token"
	"medvault/internal/ledger"
	"medvault/internal/platform/health"
	recordshandler "medvault/internal/records/handler"
	recordsservice "medvault/internal/records/service"
	recordstore "medvault/internal/records/store"
	httptransport "medvault/internal/transport/http"
	"medvault/internal/vault"
	vaultstore "medvault/internal/vault/store"
	verificationhandler "medvault/internal/verification/handler"
	verificationservice "medvault/internal/verification/service"
	"medvault/pkg/platform/circuit"
	"medvault/pkg/platform/middleware/request"
)

const signingKey = "e2e-signing-key"

// flakyLedger lets scenarios take the ledger node offline.
type flakyLedger struct {
	next ledger.Client
	down atomic.Bool
}

func (l *flakyLedger) Anchor(ctx context.Context, fingerprint string) (string, error) {
	if l.down.Load() {
		return "", ledger.NewError(ledger.CategoryUnavailable, "anchor", "node offline", nil)
	}
	return l.next.Anchor(ctx, fingerprint)
}

func (l *flakyLedger) Check(ctx context.Context, ref, fingerprint string) (ledger.CheckResult, error) {
	if l.down.Load() {
		return ledger.CheckResult{}, ledger.NewError(ledger.CategoryUnavailable, "check", "node offline", nil)
	}
	return l.next.Check(ctx, ref, fingerprint)
}

// stack is one in-memory medvault behind an httptest server.
type stack struct {
	server    *httptest.Server
	ledger    *flakyLedger
	chain     *ledger.Chain
	publisher *audit.Publisher
	tokens    *jwttoken.JWTService
}

func startStack() (*stack, error) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()

	chain, err := ledger.NewMemChain()
	if err != nil {
		return nil, err
	}
	flaky := &flakyLedger{next: chain}
	ledgerClient := ledger.NewResilient(flaky,
		ledger.WithBreaker(circuit.New("ledger", circuit.WithFailureThreshold(100))),
		ledger.WithLogger(log),
	)

	wrapper, err := vault.NewWrapper([]byte(strings.Repeat("e", 32)))
	if err != nil {
		return nil, err
	}
	keys := vault.New(vaultstore.New(), wrapper, vault.WithLogger(log))
	records := recordstore.New()
	requests := accessstore.New()
	publisher := audit.NewPublisher(audit.NewInMemoryStore(), audit.WithPublisherLogger(log))

	recordsSvc := recordsservice.New(records, keys, ledgerClient,
		recordsservice.WithAuditor(publisher),
		recordsservice.WithLogger(log),
	)
	accessSvc := accessservice.New(requests, records, keys,
		accessservice.WithAuditor(publisher),
		accessservice.WithLogger(log),
	)
	verifySvc := verificationservice.New(records, ledgerClient,
		verificationservice.WithTimeout(2*time.Second),
		verificationservice.WithLogger(log),
	)

	tokens := jwttoken.NewJWTService(signingKey, "medvault", time.Hour)
	router := httptransport.NewRouter(httptransport.Config{
		Logger:         log,
		Validator:      jwttoken.NewJWTServiceAdapter(tokens),
		Health:         health.New("test"),
		RequestMetrics: request.NewMetrics(reg),
		RequestTimeout: 10 * time.Second,
		Modules: []httptransport.Module{
			recordshandler.New(recordsSvc, log),
			accesshandler.New(accessSvc, log),
			verificationhandler.New(verifySvc, log),
			audit.NewHandler(publisher, log),
		},
	})

	return &stack{
		server:    httptest.NewServer(router),
		ledger:    flaky,
		chain:     chain,
		publisher: publisher,
		tokens:    tokens,
	}, nil
}

func (s *stack) close() {
	s.server.Close()
	s.publisher.Close()
	_ = s.chain.Close()
}
