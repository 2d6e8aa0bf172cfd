package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// StoredResponse is the first response produced for an idempotency key.
// Scope is the authenticated user id, so two users may reuse the same key.
type StoredResponse struct {
	Scope        string
	Key          string
	RequestPath  string
	RequestHash  string
	StatusCode   int
	ResponseBody []byte
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

type IdempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(db *sql.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// Get returns nil without error when the key is unknown or expired.
func (r *IdempotencyRepository) Get(ctx context.Context, scope, key string) (*StoredResponse, error) {
	var e StoredResponse
	err := r.db.QueryRowContext(ctx,
		`SELECT scope, idempotency_key, request_path, request_hash, status_code, response_body, created_at, expires_at
		FROM idempotency_keys
		WHERE scope = $1 AND idempotency_key = $2 AND expires_at > now()`,
		scope, key,
	).Scan(&e.Scope, &e.Key, &e.RequestPath, &e.RequestHash, &e.StatusCode, &e.ResponseBody, &e.CreatedAt, &e.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &e, nil
}

// Save keeps the first response stored for a key. An expired row for the
// same key is replaced.
func (r *IdempotencyRepository) Save(ctx context.Context, resp *StoredResponse) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (scope, idempotency_key, request_path, request_hash, status_code, response_body, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (scope, idempotency_key) DO UPDATE
		SET request_path = EXCLUDED.request_path,
			request_hash = EXCLUDED.request_hash,
			status_code = EXCLUDED.status_code,
			response_body = EXCLUDED.response_body,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
		WHERE idempotency_keys.expires_at <= now()`,
		resp.Scope, resp.Key, resp.RequestPath, resp.RequestHash, resp.StatusCode, resp.ResponseBody, resp.CreatedAt, resp.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) CleanExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE expires_at < now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("CleanExpired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("CleanExpired: rows affected: %w", err)
	}
	return n, nil
}
