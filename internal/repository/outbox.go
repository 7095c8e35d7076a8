package repository

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/failsworth/returnbase/internal/workflow"
)

type TaskStatus string

const (
	TaskStatusCreated    TaskStatus = "CREATED"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusFailed     TaskStatus = "FAILED"
	TaskStatusDone       TaskStatus = "DONE"
)

type OutboxTask struct {
	ID          uuid.UUID       `db:"id"`
	Status      TaskStatus      `db:"status"`
	Payload     json.RawMessage `db:"payload"`
	Topic       string          `db:"topic"`
	Attempts    int             `db:"attempts"`
	LastError   *string         `db:"last_error"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
	CompletedAt *time.Time      `db:"completed_at"`
}

// TransitionEvent is the payload published for every applied status change.
type TransitionEvent struct {
	TenantID   string          `json:"tenant_id"`
	ReturnID   string          `json:"return_id"`
	FromStatus workflow.Status `json:"from_status"`
	ToStatus   workflow.Status `json:"to_status"`
	UserID     string          `json:"user_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}
