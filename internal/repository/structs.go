package repository

import (
	"errors"
	"time"

	"github.com/failsworth/returnbase/internal/workflow"
)

var (
	ErrObjectNotFound = errors.New("not found")
	ErrTenantRequired = errors.New("tenant_id is required")

	// ErrStatusConflict means a conditional status write found the record no
	// longer in the status the caller validated against: a concurrent writer
	// got there first.
	ErrStatusConflict = errors.New("status changed concurrently")
)

// Document is a schemaless record as stored in a collection.
type Document = map[string]interface{}

// Query matches documents by top-level field equality.
type Query = map[string]interface{}

type SortKey struct {
	Field string
	Desc  bool
}

type FindOptions struct {
	Limit int
	Skip  int
	Sort  []SortKey
}

type ReturnItem struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	SKU         string  `json:"sku"`
}

type ReturnRequest struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenant_id"`
	OrderID       string          `json:"order_id"`
	CustomerEmail string          `json:"customer_email"`
	CustomerName  string          `json:"customer_name"`
	Status        workflow.Status `json:"status"`
	Items         []ReturnItem    `json:"items_to_return"`
	RefundAmount  float64         `json:"refund_amount"`
	Reason        string          `json:"reason"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type Order struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	OrderNumber   string    `json:"order_number"`
	CustomerEmail string    `json:"customer_email"`
	CustomerName  string    `json:"customer_name"`
	TotalAmount   float64   `json:"total_amount"`
	PlacedAt      time.Time `json:"placed_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Tenant is the one entity that is not tenant-scoped: there is no owning
// tenant of a tenant. Records are keyed by their own id and carry an
// is_active flag instead.
type Tenant struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ShopDomain string    `json:"shop_domain"`
	APIKeyHash string    `json:"api_key_hash"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
