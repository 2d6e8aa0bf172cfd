package main

import (
	"context"
	"net/http"

	"github.com/josh-kwaku/agency-ledger/internal/config"
	"github.com/josh-kwaku/agency-ledger/internal/handler"
	"github.com/josh-kwaku/agency-ledger/internal/middleware"
	"github.com/josh-kwaku/agency-ledger/internal/repository"
)

type idempotencyStore interface {
	Get(ctx context.Context, scope, key string) (*repository.StoredResponse, error)
	Save(ctx context.Context, resp *repository.StoredResponse) error
}

type routerDeps struct {
	cfg         *config.Config
	payments    *handler.PaymentHandler
	operators   *handler.OperatorHandler
	accounts    *handler.AccountHandler
	fx          *handler.FXHandler
	auth        *handler.AuthHandler
	health      *handler.HealthHandler
	idempotency idempotencyStore
}

func newRouter(d routerDeps) http.Handler {
	authed := middleware.Auth(d.cfg.JWTSecret)
	idem := middleware.Idempotency(d.idempotency, d.cfg.IdempotencyTTL)

	// read routes need a token; write routes also need an Idempotency-Key
	read := func(h http.HandlerFunc) http.Handler { return authed(h) }
	write := func(h http.HandlerFunc) http.Handler { return authed(idem(h)) }

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", d.health.Liveness)
	mux.HandleFunc("GET /health/ready", d.health.Readiness)

	mux.HandleFunc("POST /api/v1/auth/login", d.auth.Login)

	mux.Handle("POST /api/v1/payments", write(d.payments.Create))
	mux.Handle("GET /api/v1/payments/{id}", read(d.payments.Get))
	mux.Handle("GET /api/v1/payments/{id}/events", read(d.payments.History))
	mux.Handle("POST /api/v1/payments/{id}/settle", write(d.payments.Settle))
	mux.Handle("DELETE /api/v1/payments/{id}", write(d.payments.Delete))

	mux.Handle("POST /api/v1/operator-payments", write(d.operators.CreateDebt))
	mux.Handle("GET /api/v1/operator-payments/{id}", read(d.operators.GetDebt))
	mux.Handle("GET /api/v1/operator-payments/{id}/balance", read(d.operators.DebtBalance))
	mux.Handle("GET /api/v1/operators/{id}/debts", read(d.operators.ListDebts))
	mux.Handle("POST /api/v1/operators/{id}/settlements", write(d.operators.SettleBulk))

	mux.Handle("GET /api/v1/operations/{id}/balance", read(d.operators.OperationBalance))
	mux.Handle("GET /api/v1/operations/{id}/payments", read(d.payments.ListForOperation))

	mux.Handle("POST /api/v1/accounts", write(d.accounts.Create))
	mux.Handle("GET /api/v1/accounts", read(d.accounts.List))
	mux.Handle("GET /api/v1/accounts/{id}", read(d.accounts.Get))
	mux.Handle("PATCH /api/v1/accounts/{id}", write(d.accounts.Update))
	mux.Handle("GET /api/v1/accounts/{id}/balance", read(d.accounts.Balance))
	mux.Handle("GET /api/v1/accounts/{id}/movements", read(d.accounts.Movements))

	mux.Handle("GET /api/v1/fx/rates", read(d.fx.GetRate))
	mux.Handle("POST /api/v1/fx/rates", write(d.fx.RecordRate))

	return middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))
}
