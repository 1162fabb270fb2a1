package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/bubelovv/fcp-bot/internal/config"
	"github.com/bubelovv/fcp-bot/internal/github"
	"github.com/bubelovv/fcp-bot/internal/httpserver"
	"github.com/bubelovv/fcp-bot/internal/migrations"
	"github.com/bubelovv/fcp-bot/internal/repository"
	"github.com/bubelovv/fcp-bot/internal/roster"
	"github.com/bubelovv/fcp-bot/internal/service"
	"github.com/bubelovv/fcp-bot/internal/storage/postgres"
	"github.com/bubelovv/fcp-bot/internal/sweep"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	httpServer *httpserver.Server
	sweep      *sweep.Sweep
	db         *pgxpool.Pool
	svc        *service.Service
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	db, err := postgres.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}

	if err := migrations.Run(ctx, cfg.DatabaseURL, logger); err != nil {
		db.Close()
		return nil, err
	}

	gh := github.NewClient(cfg.GithubAPIURL, cfg.GithubToken, cfg.GithubRepo, logger)
	timers := repository.New(db)
	team := roster.NewCache(gh, cfg.GithubOrg, cfg.GithubTeam, cfg.RosterTTL, logger)

	svc := service.New(service.Config{
		BotUser:     cfg.GithubBotUser,
		Labels:      cfg.Labels,
		FCPWindow:   cfg.FCPWindow,
		QuorumRatio: cfg.QuorumRatio,
	}, gh, timers, team, logger)

	sw, err := sweep.New(cfg.SweepInterval, svc, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	server := httpserver.New(cfg.HTTPPort, logger, svc, cfg.WebhookPath, cfg.WebhookSecret)

	return &App{
		cfg:        cfg,
		logger:     logger,
		httpServer: server,
		sweep:      sw,
		db:         db,
		svc:        svc,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.db.Close()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Backfill timer rows for FCPs that were mid-flight at the last
	// shutdown; everything else is re-derived per evaluation.
	if err := a.svc.Bootstrap(ctx); err != nil {
		a.logger.Warn("bootstrap scrape failed, sweep will retry affected proposals", zap.Error(err))
	}

	a.sweep.Start()
	defer a.sweep.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.httpServer.Start()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			return err
		}

		return <-errCh
	case err := <-errCh:
		return err
	}
}
