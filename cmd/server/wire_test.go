package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "medvault/internal/jwt_token"
	"medvault/internal/platform/config"
	id "medvault/pkg/domain"
)

func testConfig(t *testing.T) config.Server {
	return config.Server{
		Addr:           ":0",
		Environment:    "test",
		JWTSigningKey:  "wire-test-key",
		JWTIssuer:      "medvault",
		TokenTTL:       time.Minute,
		RequestTimeout: 5 * time.Second,
		IdempotencyTTL: time.Hour,
		Ledger: config.LedgerConfig{
			Mode:          config.LedgerEmbedded,
			DataDir:       t.TempDir(),
			Timeout:       time.Second,
			VerifyTimeout: time.Second,
		},
		Vault: config.VaultConfig{MasterKey: []byte(strings.Repeat("m", 32))},
	}
}

func TestBuildInMemory(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig(t)
	a, err := build(context.Background(), cfg, log)
	require.NoError(t, err)
	defer a.close(log)

	require.NotNil(t, a.idempotency, "in-memory idempotency expected without REDIS_URL")
	assert.Nil(t, a.pool)
	assert.Nil(t, a.redis)

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, serve(httptest.NewRequest(http.MethodGet, "/health/ready", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(httptest.NewRequest(http.MethodGet, "/metrics", nil)).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(httptest.NewRequest(http.MethodGet, "/records", nil)).Code)

	token, err := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.TokenTTL).
		GenerateAccessToken(context.Background(), id.Caller{SubjectID: id.NewSubjectID(), Role: id.RolePatient})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := serve(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"records":[]}`, rec.Body.String())
}

func TestBuildRejectsBadProxies(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig(t)
	cfg.TrustedProxies = []string{"not-an-ip"}
	_, err := build(context.Background(), cfg, log)
	assert.ErrorContains(t, err, "TRUSTED_PROXIES")
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := parseTrustedProxies([]string{"10.0.0.0/8", "192.168.1.7", "::1"})
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.7/32"),
		netip.MustParsePrefix("::1/128"),
	}, got)
}
