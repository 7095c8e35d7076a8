package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	mock_database "github.com/failsworth/returnbase/internal/db/mocks"
	"github.com/failsworth/returnbase/internal/repository"
	"github.com/failsworth/returnbase/internal/service"
	mock_service "github.com/failsworth/returnbase/internal/service/mocks"
	"github.com/failsworth/returnbase/internal/workflow"
)

type deps struct {
	db      *mock_database.MockDB
	tx      *mock_database.MockTx
	returns *mock_service.MockReturnsRepository
	orders  *mock_service.MockOrdersRepository
	audit   *mock_service.MockAuditLogRepository
	outbox  *mock_service.MockOutboxRepository
}

func newService(t *testing.T, rules []workflow.Rule) (*service.Returns, deps) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	d := deps{
		db:      mock_database.NewMockDB(ctrl),
		tx:      mock_database.NewMockTx(ctrl),
		returns: mock_service.NewMockReturnsRepository(ctrl),
		orders:  mock_service.NewMockOrdersRepository(ctrl),
		audit:   mock_service.NewMockAuditLogRepository(ctrl),
		outbox:  mock_service.NewMockOutboxRepository(ctrl),
	}
	svc := service.NewReturns(d.db, d.returns, d.orders, d.audit, d.outbox,
		rules, "return-status-events", zap.NewNop())
	return svc, d
}

// expectEnqueue wires the outbox transaction for one applied transition.
func expectEnqueue(d deps) {
	d.db.EXPECT().BeginTx(gomock.Any()).Return(d.tx, nil)
	d.outbox.EXPECT().CreateTx(gomock.Any(), d.tx, gomock.Any()).Return(nil)
	d.tx.EXPECT().Commit(gomock.Any()).Return(nil)
	d.tx.EXPECT().Rollback(gomock.Any()).Return(nil).AnyTimes()
}

func TestApplyTransition_HappyPath(t *testing.T) {
	ctx := context.Background()
	svc, d := newService(t, nil)

	d.returns.EXPECT().
		GetByID(ctx, "T1", "r1").
		Return(&repository.ReturnRequest{ID: "r1", Status: workflow.StatusRequested}, nil)
	d.returns.EXPECT().
		UpdateStatus(ctx, "T1", "r1", workflow.StatusRequested, workflow.StatusApproved).
		Return(nil)
	d.audit.EXPECT().
		Append(ctx, "T1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, entry workflow.AuditLogEntry) (string, error) {
			assert.Equal(t, "r1", entry.ReturnID)
			assert.Equal(t, workflow.StatusRequested, entry.FromStatus)
			assert.Equal(t, workflow.StatusApproved, entry.ToStatus)
			assert.Equal(t, "looks fine", entry.Notes)
			assert.Equal(t, "agent-7", entry.UserID)
			assert.False(t, entry.Timestamp.IsZero())
			return "a1", nil
		})
	expectEnqueue(d)

	err := svc.ApplyTransition(ctx, "T1", "r1", workflow.StatusApproved, "looks fine", "agent-7")
	require.NoError(t, err)
}

func TestApplyTransition_InvalidEdge(t *testing.T) {
	ctx := context.Background()
	svc, d := newService(t, nil)

	// requested has no edge to received; nothing past the read may run.
	d.returns.EXPECT().
		GetByID(ctx, "T1", "r1").
		Return(&repository.ReturnRequest{ID: "r1", Status: workflow.StatusRequested}, nil)

	err := svc.ApplyTransition(ctx, "T1", "r1", workflow.StatusReceived, "", "")
	assert.ErrorIs(t, err, service.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "requested -> received")
}

func TestApplyTransition_NoBackwardEdge(t *testing.T) {
	ctx := context.Background()
	svc, d := newService(t, nil)

	d.returns.EXPECT().
		GetByID(ctx, "T1", "r1").
		Return(&repository.ReturnRequest{ID: "r1", Status: workflow.StatusApproved}, nil)

	err := svc.ApplyTransition(ctx, "T1", "r1", workflow.StatusRequested, "", "")
	assert.ErrorIs(t, err, service.ErrInvalidTransition)
}

func TestApplyTransition_TerminalStates(t *testing.T) {
	ctx := context.Background()

	for _, terminal := range []workflow.Status{workflow.StatusResolved, workflow.StatusDenied} {
		svc, d := newService(t, nil)
		d.returns.EXPECT().
			GetByID(ctx, "T1", "r1").
			Return(&repository.ReturnRequest{ID: "r1", Status: terminal}, nil)

		err := svc.ApplyTransition(ctx, "T1", "r1", workflow.StatusRequested, "", "")
		assert.ErrorIs(t, err, service.ErrInvalidTransition,
			"no transition may leave %s", terminal)
	}
}

func TestApplyTransition_ConflictPropagates(t *testing.T) {
	ctx := context.Background()
	svc, d := newService(t, nil)

	d.returns.EXPECT().
		GetByID(ctx, "T1", "r1").
		Return(&repository.ReturnRequest{ID: "r1", Status: workflow.StatusRequested}, nil)
	// A concurrent writer moved the record between the read and the write;
	// neither an audit entry nor an outbox task may be produced.
	d.returns.EXPECT().
		UpdateStatus(ctx, "T1", "r1", workflow.StatusRequested, workflow.StatusApproved).
		Return(repository.ErrStatusConflict)

	err := svc.ApplyTransition(ctx, "T1", "r1", workflow.StatusApproved, "", "")
	assert.ErrorIs(t, err, repository.ErrStatusConflict)
}

func TestCreate_DefaultsToRequested(t *testing.T) {
	ctx := context.Background()
	svc, d := newService(t, nil)

	d.orders.EXPECT().
		GetByID(ctx, "T1", "o1").
		Return(&repository.Order{ID: "o1", PlacedAt: time.Now().UTC()}, nil)
	d.returns.EXPECT().
		Create(ctx, "T1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, ret *repository.ReturnRequest) (string, error) {
			assert.Equal(t, workflow.StatusRequested, ret.Status)
			assert.False(t, ret.CreatedAt.IsZero())
			assert.False(t, ret.UpdatedAt.IsZero())
			return "r1", nil
		})

	ret, sim, err := svc.Create(ctx, "T1", &repository.ReturnRequest{
		OrderID: "o1",
		Reason:  "changed_mind",
	})
	require.NoError(t, err)
	assert.Equal(t, "r1", ret.ID)
	assert.Equal(t, workflow.StatusRequested, ret.Status)
	assert.Equal(t, workflow.StatusRequested, sim.Decision)
	assert.Empty(t, sim.MatchedRule)
}

func TestCreate_RuleAutoApproves(t *testing.T) {
	ctx := context.Background()
	rules := []workflow.Rule{{
		Name:              "auto-approve-defects",
		Decision:          workflow.StatusApproved,
		Reasons:           []string{"defective", "damaged"},
		MaxDaysSinceOrder: 30,
	}}
	svc, d := newService(t, rules)

	d.orders.EXPECT().
		GetByID(ctx, "T1", "o1").
		Return(&repository.Order{ID: "o1", PlacedAt: time.Now().UTC().Add(-48 * time.Hour)}, nil)
	d.returns.EXPECT().
		Create(ctx, "T1", gomock.Any()).
		Return("r1", nil)

	// The auto-decision replays as a regular transition so the audit trail
	// still starts at requested.
	d.returns.EXPECT().
		GetByID(ctx, "T1", "r1").
		Return(&repository.ReturnRequest{ID: "r1", Status: workflow.StatusRequested}, nil)
	d.returns.EXPECT().
		UpdateStatus(ctx, "T1", "r1", workflow.StatusRequested, workflow.StatusApproved).
		Return(nil)
	d.audit.EXPECT().
		Append(ctx, "T1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, entry workflow.AuditLogEntry) (string, error) {
			assert.Contains(t, entry.Notes, "auto-decided by rule: auto-approve-defects")
			return "a1", nil
		})
	expectEnqueue(d)

	ret, sim, err := svc.Create(ctx, "T1", &repository.ReturnRequest{
		OrderID: "o1",
		Reason:  "defective",
	})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusApproved, ret.Status)
	assert.Equal(t, "auto-approve-defects", sim.MatchedRule)
}

func TestCreate_OrderMissing(t *testing.T) {
	ctx := context.Background()
	svc, d := newService(t, nil)

	d.orders.EXPECT().
		GetByID(ctx, "T1", "o-missing").
		Return(nil, repository.ErrObjectNotFound)

	_, _, err := svc.Create(ctx, "T1", &repository.ReturnRequest{OrderID: "o-missing"})
	assert.ErrorIs(t, err, repository.ErrObjectNotFound)
}

func TestEnqueueEvent_PayloadShape(t *testing.T) {
	ctx := context.Background()
	svc, d := newService(t, nil)

	d.returns.EXPECT().
		GetByID(ctx, "T1", "r1").
		Return(&repository.ReturnRequest{ID: "r1", Status: workflow.StatusInTransit}, nil)
	d.returns.EXPECT().
		UpdateStatus(ctx, "T1", "r1", workflow.StatusInTransit, workflow.StatusReceived).
		Return(nil)
	d.audit.EXPECT().Append(ctx, "T1", gomock.Any()).Return("a1", nil)

	d.db.EXPECT().BeginTx(gomock.Any()).Return(d.tx, nil)
	d.outbox.EXPECT().
		CreateTx(gomock.Any(), d.tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ interface{}, task *repository.OutboxTask) error {
			assert.Equal(t, "return-status-events", task.Topic)

			var event repository.TransitionEvent
			require.NoError(t, json.Unmarshal(task.Payload, &event))
			assert.Equal(t, "T1", event.TenantID)
			assert.Equal(t, "r1", event.ReturnID)
			assert.Equal(t, workflow.StatusInTransit, event.FromStatus)
			assert.Equal(t, workflow.StatusReceived, event.ToStatus)
			return nil
		})
	d.tx.EXPECT().Commit(gomock.Any()).Return(nil)
	d.tx.EXPECT().Rollback(gomock.Any()).Return(nil).AnyTimes()

	err := svc.ApplyTransition(ctx, "T1", "r1", workflow.StatusReceived, "", "")
	require.NoError(t, err)
}

func TestList_ReturnsTotal(t *testing.T) {
	ctx := context.Background()
	svc, d := newService(t, nil)

	d.returns.EXPECT().
		List(ctx, "T1", 2, 10).
		Return([]*repository.ReturnRequest{{ID: "r1"}}, nil)
	d.returns.EXPECT().
		Count(ctx, "T1").
		Return(int64(11), nil)

	returns, total, err := svc.List(ctx, "T1", 2, 10)
	require.NoError(t, err)
	assert.Len(t, returns, 1)
	assert.Equal(t, int64(11), total)
}

func TestAllowedTransitions(t *testing.T) {
	ctx := context.Background()
	svc, d := newService(t, nil)

	d.returns.EXPECT().
		GetByID(ctx, "T1", "r1").
		Return(&repository.ReturnRequest{ID: "r1", Status: workflow.StatusReceived}, nil)

	allowed, err := svc.AllowedTransitions(ctx, "T1", "r1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []workflow.Status{workflow.StatusResolved, workflow.StatusDenied}, allowed)
}
