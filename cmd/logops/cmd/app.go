package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dbsmedya/logops/internal/chat"
	"github.com/dbsmedya/logops/internal/config"
	"github.com/dbsmedya/logops/internal/joblog"
	"github.com/dbsmedya/logops/internal/lifecycle"
	"github.com/dbsmedya/logops/internal/llm"
	"github.com/dbsmedya/logops/internal/logger"
	"github.com/dbsmedya/logops/internal/region"
	"github.com/dbsmedya/logops/internal/sqlguard"
)

// app holds the wired components shared by the serve, chat, regions and
// job-logs commands.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	control *sql.DB
	regions *region.Manager
	jobs    *joblog.Service
	engine  *lifecycle.Engine
	orch    *chat.Orchestrator
}

// buildApp loads configuration and wires the full component stack. The
// control database is optional: when unreachable the region manager falls
// back to the static config and chat history is not persisted.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat)

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	var control *sql.DB
	var store *region.Store
	var chatStore *chat.Store
	if cfg.Control.Host != "" {
		db, err := sql.Open("mysql", region.BuildDSN(&cfg.Control))
		if err == nil {
			err = db.PingContext(ctx)
		}
		if err != nil {
			log.Warnf("control database unavailable, continuing without it: %v", err)
		} else {
			control = db
			store = region.NewStore(control)
			chatStore = chat.NewStore(control)
		}
	}

	regions := region.NewManager(store, cfg, log)
	engine := lifecycle.NewEngine(joblog.NewLogger(log), cfg.Retention, log)
	guard := sqlguard.NewExecutor(log)

	client := llm.NewClient(cfg.LLM, log)
	if client == nil {
		log.Info("no LLM API key configured, using rule-based intent routing")
	}

	orch := chat.NewOrchestrator(regions, engine, guard, client, chatStore, log)

	return &app{
		cfg:     cfg,
		log:     log,
		control: control,
		regions: regions,
		jobs:    joblog.NewService(log),
		engine:  engine,
		orch:    orch,
	}, nil
}

// Close disposes every open database handle.
func (a *app) Close() {
	if err := a.regions.Close(); err != nil {
		a.log.Warnf("error closing region engines: %v", err)
	}
	if a.control != nil {
		if err := a.control.Close(); err != nil {
			a.log.Warnf("error closing control database: %v", err)
		}
	}
	a.log.Sync()
}

// regionDB connects the region if needed and vends its engine.
func (a *app) regionDB(ctx context.Context, name string) (*sql.DB, error) {
	db, err := a.regions.DB(name)
	if err == nil {
		return db, nil
	}
	if err := a.regions.Connect(ctx, name); err != nil {
		return nil, err
	}
	return a.regions.DB(name)
}
