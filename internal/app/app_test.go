package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/procura-app/procura/internal/observability"
	"github.com/procura-app/procura/internal/procurement"
	"github.com/procura-app/procura/internal/shared"
	"github.com/procura-app/procura/internal/snapshot"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"STATE_DRIVER", "STATE_KEY", "ARCHIVE_DRIVER", "ARCHIVE_DIR", "RATE_LIMIT_PER_MINUTE", "APP_ENV"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.StateDriver)
	require.Equal(t, snapshot.DefaultKey, cfg.StateKey)
	require.Equal(t, "fs", cfg.ArchiveDriver)
	require.Equal(t, 120, cfg.RateLimitPerMinute)
	require.False(t, cfg.IsProduction())
}

func TestConfigValidate(t *testing.T) {
	base := Config{StateDriver: "memory", StateKey: "k", ArchiveDriver: "fs", ArchiveDir: "var"}
	require.NoError(t, base.Validate())

	cases := map[string]func(c *Config){
		"unknown state driver":   func(c *Config) { c.StateDriver = "etcd" },
		"sqlite without path":    func(c *Config) { c.StateDriver = "sqlite"; c.SQLitePath = "" },
		"fs without dir":         func(c *Config) { c.ArchiveDir = "" },
		"s3 without bucket":      func(c *Config) { c.ArchiveDriver = "s3" },
		"unknown archive driver": func(c *Config) { c.ArchiveDriver = "gcs" },
		"empty key":              func(c *Config) { c.StateKey = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestConfigValidateWorker(t *testing.T) {
	cfg := Config{StateDriver: "memory", StateKey: "k", ArchiveDriver: "fs", ArchiveDir: "var"}
	require.NoError(t, cfg.Validate())
	require.Error(t, cfg.ValidateWorker())

	for _, driver := range []string{"redis", "postgres"} {
		cfg.StateDriver = driver
		require.NoError(t, cfg.ValidateWorker(), driver)
	}
	cfg.StateDriver = "sqlite"
	cfg.SQLitePath = "state.db"
	require.NoError(t, cfg.ValidateWorker())

	cfg.ArchiveDriver = "gcs"
	require.Error(t, cfg.ValidateWorker())
}

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Config{LogFormat: "json", AppEnv: "production"}, &buf).Info("hello", slog.String("k", "v"))
	require.True(t, strings.HasPrefix(buf.String(), "{"))
	require.Contains(t, buf.String(), `"k":"v"`)

	buf.Reset()
	newLogger(&Config{LogFormat: "pretty", AppEnv: "production"}, &buf).Debug("hidden")
	require.Empty(t, buf.String())
}

func TestOpenResourcesLocalDrivers(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		StateDriver:   "sqlite",
		StateKey:      "k",
		SQLitePath:    filepath.Join(dir, "state.db"),
		ArchiveDriver: "fs",
		ArchiveDir:    filepath.Join(dir, "exports"),
	}
	res, err := OpenResources(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	require.IsType(t, &snapshot.SQLite{}, res.Backend)
	require.IsType(t, &shared.AuditTrail{}, res.Audit)
	require.NotNil(t, res.Archive)
	require.Nil(t, res.Redis)
	require.Nil(t, res.Postgres)
	require.NoError(t, res.Close())
}

func TestRouterServesHealthAPIAndProblems(t *testing.T) {
	cfg := &Config{RateLimitPerMinute: 1000}
	svc := procurement.NewService(snapshot.NewMemory(), procurement.WithLogger(discardLogger()))
	require.NoError(t, svc.Hydrate(context.Background()))

	router := NewRouter(RouterParams{
		Logger:             discardLogger(),
		Config:             cfg,
		ProcurementHandler: procurement.NewHandler(discardLogger(), svc, procurement.HandlerDeps{}),
		Metrics:            observability.NewMetrics(),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/availability", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"disponibilidadeGlobal":0}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "procura_http_requests_total")
}
