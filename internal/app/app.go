// Package app builds the object graph shared by the API server and ledgerctl.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/agency-ledger/internal/config"
	"github.com/josh-kwaku/agency-ledger/internal/fx"
	"github.com/josh-kwaku/agency-ledger/internal/ledger"
	"github.com/josh-kwaku/agency-ledger/internal/lock"
	"github.com/josh-kwaku/agency-ledger/internal/notify"
	"github.com/josh-kwaku/agency-ledger/internal/repository"
	"github.com/josh-kwaku/agency-ledger/internal/service"
	"github.com/josh-kwaku/agency-ledger/internal/service/accounts"
	"github.com/josh-kwaku/agency-ledger/internal/service/settlement"
)

type App struct {
	DB    *sql.DB
	Redis *redis.Client

	Users       *repository.UserRepository
	Charts      *repository.ChartAccountRepository
	Tasks       *repository.PostingTaskRepository
	Idempotency *repository.IdempotencyRepository

	Accounts   *service.AccountService
	Rates      *fx.Resolver
	Poster     *ledger.Poster
	Settlement *settlement.Service
	Retry      *service.PostingRetryProcessor

	closers []func() error
}

// New connects to Postgres and, depending on config, Redis and Pub/Sub.
// Close releases them in reverse order.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{}

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		ConnectRetries:  cfg.DBConnectRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.LockBackend == "redis" {
		rdb, err := lock.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		a.Redis = rdb
		a.closers = append(a.closers, rdb.Close)
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL)
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.NotifyBackend == "pubsub" {
		ps, err := notify.NewPubSubNotifier(ctx, cfg.PubSubProjectID, cfg.PubSubTopic, cfg.PubSubCredsFile)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		a.closers = append(a.closers, ps.Close)
		notifier = ps
	}

	if cfg.AllowFallbackRate {
		logger.Warn("hard-coded fx fallback rate enabled", "rate", cfg.FallbackRate)
	}
	a.Rates = fx.NewResolver(repository.NewExchangeRateRepository(db), fx.Options{
		RoundingPlaces: cfg.RoundingPlaces,
		AllowFallback:  cfg.AllowFallbackRate,
		FallbackRate:   decimal.NewFromFloat(cfg.FallbackRate),
	})

	a.Users = repository.NewUserRepository(db)
	a.Charts = repository.NewChartAccountRepository(db)
	a.Tasks = repository.NewPostingTaskRepository(db)
	a.Idempotency = repository.NewIdempotencyRepository(db)

	accountRepo := repository.NewAccountRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	a.Poster = ledger.NewPoster(ledgerRepo, accountRepo, cfg.RoundingPlaces)
	a.Accounts = service.NewAccountService(db, accountRepo)

	a.Settlement = settlement.NewService(settlement.Deps{
		DB:         db,
		Payments:   repository.NewPaymentRepository(db),
		Debts:      repository.NewOperatorPaymentRepository(db),
		Movements:  ledgerRepo,
		Cash:       repository.NewCashMovementRepository(db),
		Events:     repository.NewPaymentEventRepository(db),
		Tasks:      a.Tasks,
		Operations: repository.NewOperationRepository(db),
		Accounts:   accountRepo,
		Rates:      a.Rates,
		Locator:    accounts.NewLocator(a.Charts, accountRepo),
		Poster:     a.Poster,
		Locker:     locker,
		Notifier:   notifier,
	}, cfg.RoundingPlaces)

	a.Retry = service.NewPostingRetryProcessor(a.Tasks, a.Settlement, a.Idempotency,
		logger.With("component", "posting_retry"), cfg.RetryInterval, cfg.RetryMaxAttempts)

	logger.Info("ledger wired",
		"lock_backend", cfg.LockBackend,
		"notify_backend", cfg.NotifyBackend,
		"rounding_places", cfg.RoundingPlaces,
	)
	return a, nil
}

// Close waits for pending notifications before closing connections.
func (a *App) Close() error {
	if a.Settlement != nil {
		a.Settlement.Wait()
	}
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
