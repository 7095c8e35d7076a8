package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/failsworth/returnbase/internal/db"
	"github.com/failsworth/returnbase/internal/repository"
)

// TenantsRepo is the one repository that is not tenant-scoped: tenant records
// have no owning tenant. Lookups are keyed by the tenant's own id and only
// ever see active records.
type TenantsRepo struct {
	db  db.DB
	log *zap.Logger
}

func NewTenantsRepo(database db.DB, log *zap.Logger) *TenantsRepo {
	return &TenantsRepo{db: database, log: log.With(zap.String("collection", "tenants"))}
}

// Create stores a tenant and hashes the presented API key; the plaintext key
// never touches storage.
func (r *TenantsRepo) Create(ctx context.Context, tenant *repository.Tenant, apiKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash api key: %w", err)
	}

	stored := *tenant
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	stored.APIKeyHash = string(hash)
	stored.IsActive = true

	raw, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("failed to encode tenant: %w", err)
	}

	r.log.Info("insert_one", zap.String("id", stored.ID))

	_, err = r.db.Exec(ctx,
		"INSERT INTO tenants (id, doc, created_at, updated_at) VALUES ($1, $2, $3, $4)",
		stored.ID, raw, stored.CreatedAt, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert tenant: %w", err)
	}
	return stored.ID, nil
}

func (r *TenantsRepo) GetByID(ctx context.Context, id string) (*repository.Tenant, error) {
	var raw []byte
	err := r.db.ExecQueryRow(ctx,
		"SELECT doc FROM tenants WHERE id = $1 AND doc @> '{\"is_active\": true}'::jsonb",
		id,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	var tenant repository.Tenant
	if err := json.Unmarshal(raw, &tenant); err != nil {
		return nil, fmt.Errorf("malformed tenant document: %w", err)
	}
	return &tenant, nil
}

func (r *TenantsRepo) ListActive(ctx context.Context) ([]*repository.Tenant, error) {
	var rows []struct {
		Doc []byte `db:"doc"`
	}
	err := r.db.Select(ctx, &rows,
		"SELECT doc FROM tenants WHERE doc @> '{\"is_active\": true}'::jsonb ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	tenants := make([]*repository.Tenant, 0, len(rows))
	for _, row := range rows {
		var tenant repository.Tenant
		if err := json.Unmarshal(row.Doc, &tenant); err != nil {
			return nil, fmt.Errorf("malformed tenant document: %w", err)
		}
		tenants = append(tenants, &tenant)
	}
	return tenants, nil
}

// Deactivate soft-disables a tenant; records are never physically deleted.
func (r *TenantsRepo) Deactivate(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tenants SET doc = doc || '{"is_active": false}'::jsonb, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}

// VerifyAPIKey loads the tenant and compares the presented key against the
// stored bcrypt hash.
func (r *TenantsRepo) VerifyAPIKey(ctx context.Context, id, apiKey string) (*repository.Tenant, error) {
	tenant, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(tenant.APIKeyHash), []byte(apiKey)); err != nil {
		return nil, fmt.Errorf("invalid api key for tenant %s: %w", id, err)
	}
	return tenant, nil
}
