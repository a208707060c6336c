package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/config"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/consent"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/ledger"
)

const decideBody = `{"features":{"ApplicantIncome":60000,"CoapplicantIncome":10000,"LoanAmount":800000,"Loan_Amount_Term":180,"Credit_History":1}}`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trusai.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func noEnv(string) string { return "" }

func TestRunServesAndShutsDown(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
listen_addr: ":9999"
db:
  driver: sqlite
  dsn: "file:`+filepath.ToSlash(filepath.Join(dir, "ledger.db"))+`"
scorer:
  model_path: ../../models/loan_v1.yaml
fairness:
  dataset_path: ../../data/reference_population.csv
  interval: 1h
admin:
  token: from-config
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	getenv := func(key string) string {
		if key == "TRUSAI_ADMIN_TOKEN" {
			return "from-env"
		}
		return ""
	}
	listen := func(srv *http.Server) error {
		if srv.Addr != ":9999" {
			t.Errorf("expected addr from config, got %s", srv.Addr)
		}
		res := httptest.NewRecorder()
		srv.Handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/decide", strings.NewReader(decideBody)))
		if res.Code != http.StatusOK {
			t.Errorf("decide: %d %s", res.Code, res.Body.String())
		}

		req := httptest.NewRequest(http.MethodPost, "/v1/governance/model/pause", nil)
		req.Header.Set("Authorization", "Bearer from-env")
		res = httptest.NewRecorder()
		srv.Handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Errorf("pause with env token: %d", res.Code)
		}

		cancel()
		return http.ErrServerClosed
	}

	done := make(chan error, 1)
	go func() { done <- run(ctx, []string{"-config", path}, getenv, listen) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}

func TestRunListenError(t *testing.T) {
	listenErr := errors.New("listen failed")
	listen := func(*http.Server) error { return listenErr }

	path := writeConfig(t, "scorer:\n  model_path: ../../models/loan_v1.yaml\n")
	err := run(context.Background(), []string{"-config", path}, noEnv, listen)
	if !errors.Is(err, listenErr) {
		t.Fatalf("expected listen error, got %v", err)
	}
}

func TestRunConfigFromEnv(t *testing.T) {
	path := writeConfig(t, "scorer:\n  model_path: ../../models/loan_v1.yaml\n")
	getenv := func(key string) string {
		switch key {
		case "TRUSAI_CONFIG_PATH":
			return path
		case "TRUSAI_LISTEN_ADDR":
			return "127.0.0.1:1234"
		}
		return ""
	}
	var addr string
	listen := func(srv *http.Server) error {
		addr = srv.Addr
		return errors.New("stop")
	}
	_ = run(context.Background(), nil, getenv, listen)
	if addr != "127.0.0.1:1234" {
		t.Fatalf("expected env listen addr, got %q", addr)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "db:\n  driver: oracle\n")
	if err := run(context.Background(), []string{"-config", path}, noEnv, nil); err == nil {
		t.Fatalf("expected config error")
	}
	if err := run(context.Background(), []string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}, noEnv, nil); err == nil {
		t.Fatalf("expected missing config error")
	}
	if err := run(context.Background(), []string{"-nope"}, noEnv, nil); err == nil {
		t.Fatalf("expected flag error")
	}
}

func TestBuildAppMissingModel(t *testing.T) {
	cfg := config.Default()
	cfg.Scorer.ModelPath = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := buildApp(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Fatalf("expected model load error")
	}
}

func TestOpenConsentStoreBackends(t *testing.T) {
	ctx := context.Background()
	records := ledger.NewInMemoryStore()

	s, closeFn, err := openConsentStore(ctx, config.ConsentConfig{Backend: config.ConsentBackendDB}, records)
	if err != nil {
		t.Fatalf("db backend: %v", err)
	}
	_ = closeFn()
	if _, ok := s.(*consent.DBStore); !ok {
		t.Fatalf("expected db store, got %T", s)
	}

	s, closeFn, err = openConsentStore(ctx, config.ConsentConfig{Backend: config.ConsentBackendFile, Path: filepath.Join(t.TempDir(), "consent.json")}, records)
	if err != nil {
		t.Fatalf("file backend: %v", err)
	}
	_ = closeFn()
	if _, ok := s.(*consent.FileStore); !ok {
		t.Fatalf("expected file store, got %T", s)
	}

	mr := miniredis.RunT(t)
	s, closeFn, err = openConsentStore(ctx, config.ConsentConfig{Backend: config.ConsentBackendRedis, Redis: config.RedisConfig{Addr: mr.Addr()}}, records)
	if err != nil {
		t.Fatalf("redis backend: %v", err)
	}
	defer func() { _ = closeFn() }()
	if err := s.Save(ctx, consent.State{"Behaviour / Digital Data": false}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists(consent.DefaultRedisKey) {
		t.Fatalf("expected consent key in redis")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "b", "c"); got != "b" {
		t.Fatalf("expected b, got %q", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
