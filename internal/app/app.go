package app

import (
	"context"
	"log/slog"

	"casetimer/internal/adapter/api"
	"casetimer/internal/adapter/memory"
	msql "casetimer/internal/adapter/mysql"
	"casetimer/internal/config"
	"casetimer/internal/domain"
	"casetimer/internal/migrate"
	"casetimer/internal/ports"
	"casetimer/internal/timer"
	"casetimer/internal/usecase"
)

// App wires the backend: repository, use case and REST server.
type App struct {
	log    *slog.Logger
	cfg    config.Config
	uc     *usecase.TimeTrackingUseCase
	closer func() error
}

// New builds the backend. With a MySQL DSN configured, migrations run first
// and records are stored in MySQL; otherwise they live in memory.
func New(ctx context.Context, log *slog.Logger, cfg config.Config) (*App, error) {
	var (
		repo   ports.Repository
		closer = func() error { return nil }
	)
	if cfg.MySQL.DSN != "" {
		n, err := migrate.Run(ctx, cfg.MySQL.DSN, log)
		if err != nil {
			return nil, err
		}
		log.Info("migrations done", slog.Int("applied", n))
		pool := msql.Pool{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		}
		db, err := msql.NewClient(ctx, cfg.MySQL.DSN, pool, log)
		if err != nil {
			return nil, err
		}
		repo, closer = db, db.Close
	} else {
		log.Warn("MYSQL_DSN not set, keeping time tracking in memory")
		repo = memory.NewRepository()
	}
	return NewWithRepository(log, cfg, repo, closer), nil
}

// NewWithRepository builds the backend on an existing repository.
func NewWithRepository(log *slog.Logger, cfg config.Config, repo ports.Repository, closer func() error) *App {
	if closer == nil {
		closer = func() error { return nil }
	}
	uc := &usecase.TimeTrackingUseCase{
		Log:  log,
		Repo: repo,
	}
	return &App{log: log, cfg: cfg, uc: uc, closer: closer}
}

func (a *App) Close() error { return a.closer() }

// NewStageTimer builds a timer that talks to the configured API and binds it
// to caseID and stage. Either may be empty for a local-only timer.
func NewStageTimer(ctx context.Context, log *slog.Logger, cfg config.Config, caseID string, stage domain.Stage, opts ...timer.Option) *timer.StageTimer {
	// No token means an open backend: send no Authorization header.
	var tokens ports.TokenSource
	if cfg.API.Token != "" {
		tokens = ports.StaticToken(cfg.API.Token)
	}
	client := api.NewClient(cfg.API.BaseURL, tokens, log)
	base := []timer.Option{
		timer.WithLogger(log),
		timer.WithTickInterval(cfg.Timer.TickInterval),
	}
	if cfg.Timer.ActorID != "" || cfg.Timer.ActorName != "" {
		base = append(base, timer.WithActor(cfg.Timer.ActorID, cfg.Timer.ActorName))
	}
	t := timer.New(client, append(base, opts...)...)
	t.Bind(ctx, caseID, stage)
	return t
}
