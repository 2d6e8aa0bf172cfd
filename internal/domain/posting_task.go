package domain

import (
	"time"

	"github.com/google/uuid"
)

type PostingTaskKind string

const (
	PostingTaskFXEvaluation PostingTaskKind = "fx_evaluation"
)

type PostingTaskStatus string

const (
	PostingTaskStatusPending PostingTaskStatus = "pending"
	PostingTaskStatusRunning PostingTaskStatus = "running"
	PostingTaskStatusDone    PostingTaskStatus = "done"
	PostingTaskStatusFailed  PostingTaskStatus = "failed"
)

type PostingTask struct {
	ID        uuid.UUID
	PaymentID uuid.UUID
	Kind      PostingTaskKind
	Status    PostingTaskStatus
	Attempts  int
	LastError *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
