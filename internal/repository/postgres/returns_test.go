package postgres_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	mock_database "github.com/failsworth/returnbase/internal/db/mocks"
	"github.com/failsworth/returnbase/internal/repository"
	"github.com/failsworth/returnbase/internal/repository/postgres"
	"github.com/failsworth/returnbase/internal/workflow"
)

func TestReturnsRepo_UpdateStatus_ConditionalWrite(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mock_database.NewMockDB(ctrl)
	repo := postgres.NewReturnsRepo(mockDB, zap.NewNop())

	mockDB.EXPECT().
		Exec(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, args ...interface{}) (pgconn.CommandTag, error) {
			var filter map[string]interface{}
			require.NoError(t, json.Unmarshal(args[1].([]byte), &filter))
			assert.Equal(t, "T1", filter["tenant_id"])
			assert.Equal(t, "r1", filter["id"])
			// The expected current status rides in the filter, which is what
			// makes a stale write miss instead of clobbering.
			assert.Equal(t, "requested", filter["status"])
			return pgconn.CommandTag("UPDATE 1"), nil
		})

	err := repo.UpdateStatus(ctx, "T1", "r1", workflow.StatusRequested, workflow.StatusApproved)
	require.NoError(t, err)
}

func TestReturnsRepo_UpdateStatus_Conflict(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mock_database.NewMockDB(ctrl)
	repo := postgres.NewReturnsRepo(mockDB, zap.NewNop())

	// Another writer already moved the record, so the conditional update
	// matches nothing.
	mockDB.EXPECT().
		Exec(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(pgconn.CommandTag("UPDATE 0"), nil)

	err := repo.UpdateStatus(ctx, "T1", "r1", workflow.StatusRequested, workflow.StatusApproved)
	assert.ErrorIs(t, err, repository.ErrStatusConflict)
}

func TestReturnsRepo_Create_StampsFreshTimestamps(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mock_database.NewMockDB(ctrl)
	repo := postgres.NewReturnsRepo(mockDB, zap.NewNop())

	mockDB.EXPECT().
		Exec(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, args ...interface{}) (pgconn.CommandTag, error) {
			var stored map[string]interface{}
			require.NoError(t, json.Unmarshal(args[2].([]byte), &stored))

			// A freshly built request has zero timestamps; the stored
			// document must carry a real stamp, identical to the column.
			docStamp, err := time.Parse(time.RFC3339Nano, stored["created_at"].(string))
			require.NoError(t, err)
			assert.False(t, docStamp.IsZero())
			assert.True(t, docStamp.Equal(args[3].(time.Time)))

			updStamp, err := time.Parse(time.RFC3339Nano, stored["updated_at"].(string))
			require.NoError(t, err)
			assert.False(t, updStamp.IsZero())
			return pgconn.CommandTag("INSERT 0 1"), nil
		})

	_, err := repo.Create(ctx, "T1", &repository.ReturnRequest{
		OrderID: "o1",
		Status:  workflow.StatusRequested,
		Reason:  "defective",
	})
	require.NoError(t, err)
}

func TestReturnsRepo_GetByID_Decodes(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mock_database.NewMockDB(ctrl)
	repo := postgres.NewReturnsRepo(mockDB, zap.NewNop())

	raw, err := json.Marshal(repository.Document{
		"id":             "r1",
		"tenant_id":      "T1",
		"order_id":       "o1",
		"customer_email": "x@y.com",
		"status":         "approved",
		"reason":         "defective",
		"refund_amount":  19.99,
		"items_to_return": []repository.ReturnItem{
			{SKU: "SKU-1", Quantity: 2},
		},
	})
	require.NoError(t, err)

	mockDB.EXPECT().
		ExecQueryRow(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(fakeRow{raw: raw})

	ret, err := repo.GetByID(ctx, "T1", "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", ret.ID)
	assert.Equal(t, workflow.StatusApproved, ret.Status)
	assert.Equal(t, 19.99, ret.RefundAmount)
	require.Len(t, ret.Items, 1)
	assert.Equal(t, "SKU-1", ret.Items[0].SKU)
	assert.Equal(t, 2, ret.Items[0].Quantity)
}

func TestReturnsRepo_GetByID_RejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mock_database.NewMockDB(ctrl)
	repo := postgres.NewReturnsRepo(mockDB, zap.NewNop())

	raw, err := json.Marshal(repository.Document{
		"id":     "r1",
		"status": "teleported",
	})
	require.NoError(t, err)

	mockDB.EXPECT().
		ExecQueryRow(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(fakeRow{raw: raw})

	_, err = repo.GetByID(ctx, "T1", "r1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}

func TestReturnsRepo_ListByStatus_FiltersInQuery(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mock_database.NewMockDB(ctrl)
	repo := postgres.NewReturnsRepo(mockDB, zap.NewNop())

	mockDB.EXPECT().
		Select(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ interface{}, _ string, args ...interface{}) error {
			var filter map[string]interface{}
			require.NoError(t, json.Unmarshal(args[1].([]byte), &filter))
			assert.Equal(t, "denied", filter["status"])
			assert.Equal(t, "T1", filter["tenant_id"])
			return nil
		})

	returns, err := repo.ListByStatus(ctx, "T1", workflow.StatusDenied)
	require.NoError(t, err)
	assert.Empty(t, returns)
}

func TestReturnsRepo_TenantRequired(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mock_database.NewMockDB(ctrl)
	repo := postgres.NewReturnsRepo(mockDB, zap.NewNop())

	_, err := repo.GetByID(ctx, "", "r1")
	assert.ErrorIs(t, err, repository.ErrTenantRequired)

	err = repo.UpdateStatus(ctx, "", "r1", workflow.StatusRequested, workflow.StatusApproved)
	assert.ErrorIs(t, err, repository.ErrTenantRequired)
}
