package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
)

const postingTaskColumns = `id, payment_id, kind, status, attempts, last_error, created_at, updated_at`

type PostingTaskRepository struct {
	db *sql.DB
}

func NewPostingTaskRepository(db *sql.DB) *PostingTaskRepository {
	return &PostingTaskRepository{db: db}
}

// Enqueue schedules a task, or puts an existing one for the same payment and
// kind back to pending.
func (r *PostingTaskRepository) Enqueue(ctx context.Context, task *domain.PostingTask) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO posting_tasks (id, payment_id, kind, status, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $6)
		ON CONFLICT (payment_id, kind) DO UPDATE SET
			status = EXCLUDED.status,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at`,
		task.ID, task.PaymentID, task.Kind, domain.PostingTaskStatusPending, task.LastError, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Enqueue: %w", err)
	}
	return nil
}

// Claim marks up to limit pending tasks as running and returns them. A task
// left running longer than lease is treated as abandoned and claimed again.
// The claim commits on its own so no row lock outlives this statement.
func (r *PostingTaskRepository) Claim(ctx context.Context, limit int, lease time.Duration) ([]domain.PostingTask, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE posting_tasks SET status = $1, updated_at = now()
		WHERE id IN (
			SELECT id FROM posting_tasks
			WHERE status = $2 OR (status = $1 AND updated_at < now() - make_interval(secs => $3))
			ORDER BY created_at LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+postingTaskColumns,
		domain.PostingTaskStatusRunning, domain.PostingTaskStatusPending, lease.Seconds(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("Claim: %w", err)
	}
	defer rows.Close()

	var tasks []domain.PostingTask
	for rows.Next() {
		t, err := scanPostingTask(rows)
		if err != nil {
			return nil, fmt.Errorf("Claim: scan: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Claim: rows: %w", err)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	return tasks, nil
}

// MarkDone closes a claimed task. It returns ErrNotFound when the task was
// removed while it ran.
func (r *PostingTaskRepository) MarkDone(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE posting_tasks SET status = $1, attempts = attempts + 1, last_error = NULL, updated_at = now()
		WHERE id = $2 AND status = $3`,
		domain.PostingTaskStatusDone, id, domain.PostingTaskStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("MarkDone: %w", err)
	}
	return expectOneRow(res, "MarkDone")
}

// RecordFailure bumps the attempt counter of a claimed task and hands it back
// to the queue, or parks it as failed once maxAttempts is reached.
func (r *PostingTaskRepository) RecordFailure(ctx context.Context, id uuid.UUID, lastError string, maxAttempts int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE posting_tasks SET
			attempts = attempts + 1,
			last_error = $1,
			status = CASE WHEN attempts + 1 >= $2 THEN $3 ELSE $4 END,
			updated_at = now()
		WHERE id = $5 AND status = $6`,
		lastError, maxAttempts, domain.PostingTaskStatusFailed, domain.PostingTaskStatusPending,
		id, domain.PostingTaskStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("RecordFailure: %w", err)
	}
	return expectOneRow(res, "RecordFailure")
}

// RequeueFailed moves every failed task back to pending with a fresh budget.
func (r *PostingTaskRepository) RequeueFailed(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE posting_tasks SET status = $1, attempts = 0, updated_at = now() WHERE status = $2`,
		domain.PostingTaskStatusPending, domain.PostingTaskStatusFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("RequeueFailed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("RequeueFailed: rows affected: %w", err)
	}
	return n, nil
}

func (r *PostingTaskRepository) GetByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.PostingTask, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postingTaskColumns+` FROM posting_tasks WHERE payment_id = $1 ORDER BY created_at`, paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByPayment: %w", err)
	}
	defer rows.Close()

	var tasks []domain.PostingTask
	for rows.Next() {
		t, err := scanPostingTask(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByPayment: scan: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByPayment: rows: %w", err)
	}
	return tasks, nil
}

func (r *PostingTaskRepository) DeleteByPayment(ctx context.Context, tx *sql.Tx, paymentID uuid.UUID) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM posting_tasks WHERE payment_id = $1`, paymentID)
	if err != nil {
		return 0, fmt.Errorf("DeleteByPayment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteByPayment: rows affected: %w", err)
	}
	return n, nil
}

func scanPostingTask(s scanner) (*domain.PostingTask, error) {
	var t domain.PostingTask
	err := s.Scan(&t.ID, &t.PaymentID, &t.Kind, &t.Status, &t.Attempts, &t.LastError, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
