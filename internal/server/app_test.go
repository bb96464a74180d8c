package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/oab-process-sync/internal/auth"
	"github.com/JakeFAU/oab-process-sync/internal/capture"
	"github.com/JakeFAU/oab-process-sync/internal/config"
	memorystorage "github.com/JakeFAU/oab-process-sync/internal/storage/memory"
)

const testSecret = "0123456789abcdef-test"

func memoryConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Auth.JWTSecret = testSecret
	cfg.Worker.Concurrency = 1
	cfg.Worker.RateLimit.DefaultRPS = 0
	cfg.Progress.MaxBatchWait = 10 * time.Millisecond
	cfg.Storage.Backend = config.BackendMemory
	return cfg
}

type oneCaseScraper struct{}

func (oneCaseScraper) SearchByOAB(context.Context, capture.ScrapeRequest) (capture.ScrapeResult, error) {
	return capture.ScrapeResult{Cases: []capture.CapturedCase{{
		NumeroProcesso: "8000123-45.2024.8.05.0001",
		Partes:         []capture.CapturedParty{{Tipo: "AUTOR", Nome: "Maria de Souza"}},
	}}}, nil
}

func (oneCaseScraper) SubmitCaptcha(context.Context, capture.CaptchaSubmission) (capture.ScrapeResult, error) {
	return capture.ScrapeResult{}, nil
}

func TestBuildServeRunsCaptureInProcess(t *testing.T) {
	t.Parallel()

	cfg := memoryConfig(t)
	app, err := Build(context.Background(), cfg, RoleServe, zap.NewNop(), Options{
		Scraper:    oneCaseScraper{},
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	workersDone := make(chan struct{})
	go func() {
		app.dispatch.Run(ctx)
		close(workersDone)
	}()
	t.Cleanup(func() {
		cancel()
		<-workersDone
		require.NoError(t, app.Close(context.Background()))
	})

	verifier, err := auth.NewVerifier([]byte(testSecret), "", 0)
	require.NoError(t, err)
	token, err := verifier.Issue(auth.Principal{TenantID: "tenant-1", UsuarioID: "user-1", Role: auth.RoleLawyer}, time.Hour)
	require.NoError(t, err)

	handler := app.Handler()
	call := func(method, target, body string) (int, map[string]any) {
		req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		var out map[string]any
		_ = json.Unmarshal(rr.Body.Bytes(), &out)
		return rr.Code, out
	}

	code, _ := call(http.MethodPost, "/v1/sync", `{"oab":"12345BA"}`)
	require.Equal(t, http.StatusAccepted, code)

	require.Eventually(t, func() bool {
		_, out := call(http.MethodGet, "/v1/sync/status", "")
		status, ok := out["status"].(map[string]any)
		return ok && status["status"] == string(capture.StatusSuccess)
	}, 2*time.Second, 10*time.Millisecond)

	audit, ok := app.audit.(*memorystorage.AuditStore)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		return len(audit.Entries()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestBuildRejectsInvalidRoles(t *testing.T) {
	t.Parallel()

	noSecret := memoryConfig(t)
	noSecret.Auth.JWTSecret = ""

	noScraper := memoryConfig(t)

	memoryWorker := memoryConfig(t)

	tests := []struct {
		name string
		cfg  config.Config
		role Role
		opts Options
		want string
	}{
		{name: "serve without secret", cfg: noSecret, role: RoleServe, opts: Options{Scraper: oneCaseScraper{}}, want: "jwt_secret"},
		{name: "in-process workers without scraper", cfg: noScraper, role: RoleServe, want: "scraper.base_url"},
		{name: "worker on memory queue", cfg: memoryWorker, role: RoleWorker, opts: Options{Scraper: oneCaseScraper{}}, want: "queue.backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			app, err := Build(context.Background(), tt.cfg, tt.role, zap.NewNop(), tt.opts)
			require.Error(t, err)
			assert.Nil(t, app)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
