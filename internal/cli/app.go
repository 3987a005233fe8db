package cli

import (
	"fmt"

	"attendsync/internal/config"
	"attendsync/internal/connectivity"
	"attendsync/internal/exporter"
	"attendsync/internal/queue"
	"attendsync/internal/scan"
	"attendsync/internal/store"
	"attendsync/internal/submit"
	"attendsync/internal/syncer"
)

// app holds the constructed components shared by the commands. Everything is
// built explicitly from config and passed down; no globals.
type app struct {
	cfg          config.App
	store        *store.Store
	redis        *store.Redis // nil for the in-memory queue backend
	triggers     queue.Queue
	monitor      *connectivity.StaticMonitor
	executor     *submit.Executor
	orchestrator *scan.Orchestrator
	reconciler   *syncer.Reconciler
	exporter     *exporter.Exporter
}

func buildApp() (*app, error) {
	cfg := config.Load()

	st, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}

	a := &app{cfg: cfg, store: st}

	if cfg.QueueBackend == "redis" {
		a.redis = store.NewRedis(cfg.RedisAddr)
		a.triggers = queue.NewRedisQueue(a.redis.Client, "")
	} else {
		a.triggers = queue.NewInMemory(16)
	}

	a.monitor = connectivity.NewStaticMonitor(cfg.NetworkProfile)
	a.executor = submit.NewExecutor(cfg.SubmitTimeout, cfg.InsecureSkipVerify)
	a.orchestrator = scan.NewOrchestrator(cfg.BaseURL, cfg.ValidityWindowMin, st, a.executor, nil)

	gate := connectivity.NewGate(a.monitor, st.LastURL, cfg.ProbeFallbackHost, cfg.ProbePort, cfg.ProbeTimeout)
	a.reconciler = syncer.New(st, a.executor, gate, syncer.RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		Base:        cfg.RetryBase,
		Cap:         cfg.RetryCap,
	})

	a.exporter = exporter.New(st, cfg.ExportDir)
	return a, nil
}

func (a *app) close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.redis != nil && a.redis.Client != nil {
		_ = a.redis.Client.Close()
	}
}
