package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
)

const (
	retryBatchSize = 10
	// claimLease bounds how long a crashed worker can hold a task.
	claimLease = 5 * time.Minute
)

type postingTaskRepo interface {
	Claim(ctx context.Context, limit int, lease time.Duration) ([]domain.PostingTask, error)
	MarkDone(ctx context.Context, id uuid.UUID) error
	RecordFailure(ctx context.Context, id uuid.UUID, lastError string, maxAttempts int) error
}

type fxEvaluator interface {
	EvaluateFX(ctx context.Context, paymentID uuid.UUID) (*domain.LedgerMovement, error)
}

type idempotencyCleaner interface {
	CleanExpired(ctx context.Context) (int64, error)
}

// PostingRetryProcessor drains posting tasks that failed after their payment
// was settled, such as an FX evaluation that had no rate at the time.
type PostingRetryProcessor struct {
	tasks       postingTaskRepo
	evaluator   fxEvaluator
	idempotency idempotencyCleaner
	logger      *slog.Logger
	interval    time.Duration
	maxAttempts int
}

func NewPostingRetryProcessor(
	tasks postingTaskRepo,
	evaluator fxEvaluator,
	idempotency idempotencyCleaner,
	logger *slog.Logger,
	interval time.Duration,
	maxAttempts int,
) *PostingRetryProcessor {
	return &PostingRetryProcessor{
		tasks:       tasks,
		evaluator:   evaluator,
		idempotency: idempotency,
		logger:      logger,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

func (p *PostingRetryProcessor) Start(ctx context.Context) {
	p.logger.Info("posting retry processor started", "interval", p.interval, "max_attempts", p.maxAttempts)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("posting retry processor stopped")
			return
		case <-ticker.C:
			if _, err := p.RunOnce(ctx); err != nil {
				p.logger.Error("posting retry poll failed", "error", err)
			}
			p.cleanIdempotency(ctx)
		}
	}
}

// RunOnce claims one batch of pending tasks and returns how many completed.
// Each task runs outside the claim so the evaluator can take payment locks
// without holding any queue row.
func (p *PostingRetryProcessor) RunOnce(ctx context.Context) (int, error) {
	tasks, err := p.tasks.Claim(ctx, retryBatchSize, claimLease)
	if err != nil {
		return 0, fmt.Errorf("RunOnce: %w", err)
	}

	done := 0
	for _, task := range tasks {
		ok, err := p.processTask(ctx, task)
		if err != nil {
			return done, fmt.Errorf("RunOnce: task %s: %w", task.ID, err)
		}
		if ok {
			done++
		}
	}
	return done, nil
}

func (p *PostingRetryProcessor) processTask(ctx context.Context, task domain.PostingTask) (bool, error) {
	log := p.logger.With("posting_task_id", task.ID, "payment_id", task.PaymentID, "kind", task.Kind)

	var runErr error
	switch task.Kind {
	case domain.PostingTaskFXEvaluation:
		var m *domain.LedgerMovement
		m, runErr = p.evaluator.EvaluateFX(ctx, task.PaymentID)
		if runErr == nil && m != nil {
			log.Info("deferred fx difference posted", "ledger_movement_id", m.ID, "type", m.Type)
		}
	default:
		runErr = fmt.Errorf("unknown task kind %q", task.Kind)
	}

	var err error
	if runErr != nil {
		log.Warn("posting task failed", "attempt", task.Attempts+1, "error", runErr)
		err = p.tasks.RecordFailure(ctx, task.ID, runErr.Error(), p.maxAttempts)
	} else {
		err = p.tasks.MarkDone(ctx, task.ID)
	}
	if errors.Is(err, domain.ErrNotFound) {
		// The payment was deleted while the task ran.
		log.Info("posting task removed before completion")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return runErr == nil, nil
}

func (p *PostingRetryProcessor) cleanIdempotency(ctx context.Context) {
	if p.idempotency == nil {
		return
	}
	n, err := p.idempotency.CleanExpired(ctx)
	if err != nil {
		p.logger.Error("failed to clean idempotency cache", "error", err)
		return
	}
	if n > 0 {
		p.logger.Info("cleaned expired idempotency entries", "count", n)
	}
}
