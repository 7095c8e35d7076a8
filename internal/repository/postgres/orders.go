package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/failsworth/returnbase/internal/db"
	"github.com/failsworth/returnbase/internal/repository"
)

type OrdersRepo struct {
	c *Collection
}

func NewOrdersRepo(database db.DB, log *zap.Logger) *OrdersRepo {
	return &OrdersRepo{c: NewCollection(database, "orders", log)}
}

func decodeOrder(doc repository.Document) (*repository.Order, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order document: %w", err)
	}
	var order repository.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("malformed order document: %w", err)
	}
	return &order, nil
}

func (r *OrdersRepo) Create(ctx context.Context, tenantID string, order *repository.Order) (string, error) {
	raw, err := json.Marshal(order)
	if err != nil {
		return "", fmt.Errorf("failed to encode order: %w", err)
	}
	var doc repository.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("failed to encode order: %w", err)
	}
	dropZeroTimestamps(order.CreatedAt, order.UpdatedAt, doc)
	return r.c.InsertOne(ctx, doc, tenantID)
}

func (r *OrdersRepo) GetByID(ctx context.Context, tenantID, id string) (*repository.Order, error) {
	doc, err := r.c.FindOne(ctx, repository.Query{"id": id}, tenantID)
	if err != nil {
		return nil, err
	}
	return decodeOrder(doc)
}

func (r *OrdersRepo) ListByCustomerEmail(ctx context.Context, tenantID, email string) ([]*repository.Order, error) {
	docs, err := r.c.FindMany(ctx, repository.Query{"customer_email": email}, tenantID, repository.FindOptions{
		Sort: []repository.SortKey{{Field: "placed_at", Desc: true}},
	})
	if err != nil {
		return nil, err
	}
	orders := make([]*repository.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := decodeOrder(doc)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// CreatedBetween is the analytics window query: orders placed in [from, to),
// filtered in memory because range predicates do not compile to jsonb
// containment.
func (r *OrdersRepo) CreatedBetween(ctx context.Context, tenantID string, from, to time.Time) ([]*repository.Order, error) {
	docs, err := r.c.FindMany(ctx, repository.Query{}, tenantID, repository.FindOptions{
		Sort: []repository.SortKey{{Field: "placed_at", Desc: false}},
	})
	if err != nil {
		return nil, err
	}
	orders := make([]*repository.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := decodeOrder(doc)
		if err != nil {
			return nil, err
		}
		if order.PlacedAt.Before(from) || !order.PlacedAt.Before(to) {
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}
