package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/api"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/auth"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/config"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/consent"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/decision"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/fairness"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/features"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/ledger"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/ledger/ledgerdb"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/scorer"
	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

type app struct {
	server           *http.Server
	service          *api.DecisionService
	monitor          *fairness.Monitor
	fairnessInterval time.Duration
	logger           *zap.Logger
	closers          []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
}

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{logger: logger, fairnessInterval: cfg.Fairness.Interval}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	store, closeStore, err := ledgerdb.Open(ctx, cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStore)
	l := ledger.New(store, logger.Named("ledger"))

	consentStore, closeConsent, err := openConsentStore(ctx, cfg.Consent, store)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeConsent)

	catalog := consent.DefaultCatalog()
	if cfg.CatalogPath != "" {
		if catalog, err = consent.LoadCatalog(cfg.CatalogPath); err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
	}
	registry := consent.NewRegistry(catalog, consentStore, logger.Named("consent"))
	enforcer := consent.NewEnforcer(catalog, store, logger.Named("consent"))

	var dataset *fairness.Dataset
	if cfg.Fairness.DatasetPath != "" {
		if dataset, err = fairness.LoadCSV(cfg.Fairness.DatasetPath); err != nil {
			return nil, fmt.Errorf("load reference dataset: %w", err)
		}
	}

	model, info, err := loadScorer(cfg.Scorer, dataset)
	if err != nil {
		return nil, err
	}

	pipeline, err := decision.New(decision.Config{
		Scorer:        model,
		Registry:      registry,
		Enforcer:      enforcer,
		Ledger:        l,
		ScorerTimeout: cfg.Scorer.Timeout,
		Logger:        logger.Named("decision"),
	})
	if err != nil {
		return nil, err
	}

	if dataset != nil {
		a.monitor = fairness.NewMonitor(fairness.MonitorConfig{
			Dataset:   dataset,
			Scorer:    model,
			Attribute: cfg.Fairness.SensitiveAttribute,
			Thresholds: fairness.Thresholds{
				DisparateImpactMin:  cfg.Fairness.DisparateImpactMin,
				ParityDifferenceMax: cfg.Fairness.ParityDifferenceMax,
			},
			Recorder: l,
			Logger:   logger.Named("fairness"),
		})
	}

	a.service, err = api.NewDecisionService(api.NewDecisionServiceInput{
		Pipeline:  pipeline,
		Registry:  registry,
		Enforcer:  enforcer,
		Ledger:    l,
		Fairness:  a.monitor,
		Logger:    logger.Named("api"),
		ModelInfo: &info,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Admin.Token == "" {
		logger.Warn("admin token not set; governance mutations are disabled")
	}
	h := &api.Handler{
		Auth:    auth.NewOperatorAuthenticator(cfg.Admin.Token),
		Service: a.service,
		Logger:  logger.Named("http"),
	}
	a.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return a, nil
}

func openConsentStore(ctx context.Context, cfg config.ConsentConfig, records consent.RecordStore) (consent.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.ConsentBackendFile:
		return consent.NewFileStore(cfg.Path), noop, nil
	case config.ConsentBackendRedis:
		client, err := consent.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("dial redis: %w", err)
		}
		return consent.NewRedisStore(client, cfg.Redis.Key), client.Close, nil
	default:
		return consent.NewDBStore(records), noop, nil
	}
}

// loadScorer builds the linear scorer. The explainer background comes from
// the reference dataset when one is configured.
func loadScorer(cfg config.ScorerConfig, dataset *fairness.Dataset) (*scorer.Linear, types.ModelInfo, error) {
	loaded, err := scorer.LoadModel(cfg.ModelPath)
	if err != nil {
		return nil, types.ModelInfo{}, fmt.Errorf("load model: %w", err)
	}
	var background []*features.Vector
	if dataset != nil {
		if background, err = dataset.Sample(cfg.BackgroundSize); err != nil {
			return nil, types.ModelInfo{}, fmt.Errorf("background sample: %w", err)
		}
	}
	linear, err := scorer.NewLinear(loaded.Model, background)
	if err != nil {
		return nil, types.ModelInfo{}, err
	}
	return linear, loaded.Info(), nil
}
