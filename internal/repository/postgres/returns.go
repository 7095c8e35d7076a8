package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/failsworth/returnbase/internal/db"
	"github.com/failsworth/returnbase/internal/repository"
	"github.com/failsworth/returnbase/internal/workflow"
)

// ReturnsRepo stores return requests. All tenant scoping is delegated to the
// collection base; this layer only adds entity queries and the typed decode
// at the boundary.
type ReturnsRepo struct {
	c *Collection
}

func NewReturnsRepo(database db.DB, log *zap.Logger) *ReturnsRepo {
	return &ReturnsRepo{c: NewCollection(database, "returns", log)}
}

func decodeReturn(doc repository.Document) (*repository.ReturnRequest, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode return document: %w", err)
	}
	var ret repository.ReturnRequest
	if err := json.Unmarshal(raw, &ret); err != nil {
		return nil, fmt.Errorf("malformed return document: %w", err)
	}
	if !workflow.ValidStatus(ret.Status) {
		return nil, fmt.Errorf("malformed return document: unknown status %q", ret.Status)
	}
	return &ret, nil
}

func encodeReturn(ret *repository.ReturnRequest) (repository.Document, error) {
	raw, err := json.Marshal(ret)
	if err != nil {
		return nil, fmt.Errorf("failed to encode return request: %w", err)
	}
	var doc repository.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode return request: %w", err)
	}
	dropZeroTimestamps(ret.CreatedAt, ret.UpdatedAt, doc)
	return doc, nil
}

// dropZeroTimestamps removes unset timestamps from an encoded document. A
// zero time round-trips as a year-1 string, which would read as "present" and
// defeat the insert-time stamping.
func dropZeroTimestamps(createdAt, updatedAt time.Time, doc repository.Document) {
	if createdAt.IsZero() {
		delete(doc, "created_at")
	}
	if updatedAt.IsZero() {
		delete(doc, "updated_at")
	}
}

func (r *ReturnsRepo) Create(ctx context.Context, tenantID string, ret *repository.ReturnRequest) (string, error) {
	doc, err := encodeReturn(ret)
	if err != nil {
		return "", err
	}
	return r.c.InsertOne(ctx, doc, tenantID)
}

func (r *ReturnsRepo) GetByID(ctx context.Context, tenantID, id string) (*repository.ReturnRequest, error) {
	doc, err := r.c.FindOne(ctx, repository.Query{"id": id}, tenantID)
	if err != nil {
		return nil, err
	}
	return decodeReturn(doc)
}

func (r *ReturnsRepo) List(ctx context.Context, tenantID string, page, limit int) ([]*repository.ReturnRequest, error) {
	if page < 1 {
		page = 1
	}
	return r.find(ctx, tenantID, repository.Query{}, repository.FindOptions{
		Limit: limit,
		Skip:  (page - 1) * limit,
		Sort:  []repository.SortKey{{Field: "created_at", Desc: true}},
	})
}

func (r *ReturnsRepo) ListByStatus(ctx context.Context, tenantID string, status workflow.Status) ([]*repository.ReturnRequest, error) {
	return r.find(ctx, tenantID, repository.Query{"status": status}, repository.FindOptions{
		Sort: []repository.SortKey{{Field: "created_at", Desc: true}},
	})
}

func (r *ReturnsRepo) ListByCustomerEmail(ctx context.Context, tenantID, email string) ([]*repository.ReturnRequest, error) {
	return r.find(ctx, tenantID, repository.Query{"customer_email": email}, repository.FindOptions{
		Sort: []repository.SortKey{{Field: "created_at", Desc: true}},
	})
}

func (r *ReturnsRepo) find(ctx context.Context, tenantID string, query repository.Query, opts repository.FindOptions) ([]*repository.ReturnRequest, error) {
	docs, err := r.c.FindMany(ctx, query, tenantID, opts)
	if err != nil {
		return nil, err
	}
	returns := make([]*repository.ReturnRequest, 0, len(docs))
	for _, doc := range docs {
		ret, err := decodeReturn(doc)
		if err != nil {
			return nil, err
		}
		returns = append(returns, ret)
	}
	return returns, nil
}

func (r *ReturnsRepo) Count(ctx context.Context, tenantID string) (int64, error) {
	return r.c.CountDocuments(ctx, repository.Query{}, tenantID)
}

// UpdateStatus applies a conditional status write: the record must still be
// in `from` for the write to land. A zero-row result means a concurrent
// writer moved the record first and surfaces as ErrStatusConflict rather
// than a silent no-op.
func (r *ReturnsRepo) UpdateStatus(ctx context.Context, tenantID, id string, from, to workflow.Status) error {
	modified, err := r.c.UpdateOne(ctx,
		repository.Query{"id": id, "status": from},
		repository.Document{"status": to},
		tenantID, false,
	)
	if err != nil {
		return err
	}
	if !modified {
		return repository.ErrStatusConflict
	}
	return nil
}
