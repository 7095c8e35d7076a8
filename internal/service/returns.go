//go:generate mockgen -source ./returns.go -destination=./mocks/returns.go -package=mock_service
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/failsworth/returnbase/internal/db"
	"github.com/failsworth/returnbase/internal/metrics"
	"github.com/failsworth/returnbase/internal/repository"
	"github.com/failsworth/returnbase/internal/workflow"
)

// ErrInvalidTransition is the service-level translation of a false
// CanTransition result; handlers map it to a 409.
var ErrInvalidTransition = errors.New("invalid status transition")

type ReturnsRepository interface {
	Create(ctx context.Context, tenantID string, ret *repository.ReturnRequest) (string, error)
	GetByID(ctx context.Context, tenantID, id string) (*repository.ReturnRequest, error)
	List(ctx context.Context, tenantID string, page, limit int) ([]*repository.ReturnRequest, error)
	ListByStatus(ctx context.Context, tenantID string, status workflow.Status) ([]*repository.ReturnRequest, error)
	Count(ctx context.Context, tenantID string) (int64, error)
	UpdateStatus(ctx context.Context, tenantID, id string, from, to workflow.Status) error
}

type OrdersRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*repository.Order, error)
}

type AuditLogRepository interface {
	Append(ctx context.Context, tenantID string, entry workflow.AuditLogEntry) (string, error)
	HistoryFor(ctx context.Context, tenantID, returnID string) ([]workflow.AuditLogEntry, error)
}

type OutboxRepository interface {
	CreateTx(ctx context.Context, tx db.Tx, task *repository.OutboxTask) error
}

type Returns struct {
	db      db.DB
	returns ReturnsRepository
	orders  OrdersRepository
	audit   AuditLogRepository
	outbox  OutboxRepository
	rules   []workflow.Rule
	topic   string
	log     *zap.Logger
}

func NewReturns(
	database db.DB,
	returns ReturnsRepository,
	orders OrdersRepository,
	audit AuditLogRepository,
	outbox OutboxRepository,
	rules []workflow.Rule,
	topic string,
	log *zap.Logger,
) *Returns {
	return &Returns{
		db:      database,
		returns: returns,
		orders:  orders,
		audit:   audit,
		outbox:  outbox,
		rules:   rules,
		topic:   topic,
		log:     log,
	}
}

// Create stores a new return request and runs the merchant rules against it
// to propose an initial decision. A proposed decision other than requested is
// applied as a regular transition immediately after insert, so the audit
// trail always starts at requested.
func (s *Returns) Create(ctx context.Context, tenantID string, ret *repository.ReturnRequest) (*repository.ReturnRequest, *workflow.SimulationResult, error) {
	order, err := s.orders.GetByID(ctx, tenantID, ret.OrderID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load order %s: %w", ret.OrderID, err)
	}

	ret.Status = workflow.StatusRequested
	now := time.Now().UTC()
	ret.CreatedAt = now
	ret.UpdatedAt = now
	id, err := s.returns.Create(ctx, tenantID, ret)
	if err != nil {
		return nil, nil, err
	}
	ret.ID = id
	metrics.ReturnsCreatedTotal.Inc()

	sim := workflow.Simulate(s.rules, workflow.SimulationInput{
		Reason:        ret.Reason,
		RefundAmount:  ret.RefundAmount,
		OrderPlacedAt: order.PlacedAt,
	})

	if sim.Decision != workflow.StatusRequested && workflow.CanTransition(workflow.StatusRequested, sim.Decision) {
		notes := "auto-decided by rule: " + sim.MatchedRule
		if err := s.ApplyTransition(ctx, tenantID, id, sim.Decision, notes, ""); err != nil {
			return nil, nil, err
		}
		ret.Status = sim.Decision
	}

	return ret, &sim, nil
}

// ApplyTransition validates and applies one status change. The status write
// is conditional on the status the caller was shown; losing that race
// surfaces repository.ErrStatusConflict instead of silently overwriting.
func (s *Returns) ApplyTransition(ctx context.Context, tenantID, returnID string, to workflow.Status, notes, userID string) error {
	ret, err := s.returns.GetByID(ctx, tenantID, returnID)
	if err != nil {
		return err
	}

	if !workflow.CanTransition(ret.Status, to) {
		metrics.TransitionsRejectedTotal.WithLabelValues("invalid_transition").Inc()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ret.Status, to)
	}

	if err := s.returns.UpdateStatus(ctx, tenantID, returnID, ret.Status, to); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			metrics.TransitionsRejectedTotal.WithLabelValues("status_conflict").Inc()
		}
		return err
	}

	entry := workflow.NewAuditLogEntry(returnID, ret.Status, to, notes, userID)
	if _, err := s.audit.Append(ctx, tenantID, entry); err != nil {
		return fmt.Errorf("transition applied but audit append failed: %w", err)
	}

	if err := s.enqueueEvent(ctx, tenantID, entry); err != nil {
		return fmt.Errorf("transition applied but event enqueue failed: %w", err)
	}

	metrics.TransitionsAppliedTotal.WithLabelValues(string(to)).Inc()
	s.log.Info("transition applied",
		zap.String("tenant_id", tenantID),
		zap.String("return_id", returnID),
		zap.String("from", string(ret.Status)),
		zap.String("to", string(to)))
	return nil
}

func (s *Returns) enqueueEvent(ctx context.Context, tenantID string, entry workflow.AuditLogEntry) error {
	payload, err := json.Marshal(repository.TransitionEvent{
		TenantID:   tenantID,
		ReturnID:   entry.ReturnID,
		FromStatus: entry.FromStatus,
		ToStatus:   entry.ToStatus,
		UserID:     entry.UserID,
		Timestamp:  entry.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to encode transition event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for outbox task: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	task := &repository.OutboxTask{Payload: payload, Topic: s.topic}
	if err := s.outbox.CreateTx(ctx, tx, task); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Returns) Get(ctx context.Context, tenantID, returnID string) (*repository.ReturnRequest, error) {
	return s.returns.GetByID(ctx, tenantID, returnID)
}

func (s *Returns) List(ctx context.Context, tenantID string, page, limit int) ([]*repository.ReturnRequest, int64, error) {
	returns, err := s.returns.List(ctx, tenantID, page, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.returns.Count(ctx, tenantID)
	if err != nil {
		return nil, 0, err
	}
	return returns, total, nil
}

func (s *Returns) ListByStatus(ctx context.Context, tenantID string, status workflow.Status) ([]*repository.ReturnRequest, error) {
	return s.returns.ListByStatus(ctx, tenantID, status)
}

func (s *Returns) History(ctx context.Context, tenantID, returnID string) ([]workflow.AuditLogEntry, error) {
	return s.audit.HistoryFor(ctx, tenantID, returnID)
}

// AllowedTransitions exposes the legal next statuses for one return so the
// merchant UI can render only actionable buttons.
func (s *Returns) AllowedTransitions(ctx context.Context, tenantID, returnID string) ([]workflow.Status, error) {
	ret, err := s.returns.GetByID(ctx, tenantID, returnID)
	if err != nil {
		return nil, err
	}
	return workflow.AllowedTransitions(ret.Status), nil
}
