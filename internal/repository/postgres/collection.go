package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"go.uber.org/zap"

	"github.com/failsworth/returnbase/internal/db"
	"github.com/failsworth/returnbase/internal/metrics"
	"github.com/failsworth/returnbase/internal/repository"
)

// Collection is the single choke point for all tenant-scoped document access.
// Every method requires an explicit tenant id, injects it into the final SQL
// itself and never trusts the caller's query or document to carry it. Each
// collection maps to one table: (id, tenant_id, doc jsonb, created_at,
// updated_at).
type Collection struct {
	db    db.DB
	table string
	log   *zap.Logger
}

func NewCollection(database db.DB, table string, log *zap.Logger) *Collection {
	return &Collection{
		db:    database,
		table: table,
		log:   log.With(zap.String("collection", table)),
	}
}

func (c *Collection) requireTenant(tenantID string) error {
	if tenantID == "" {
		return repository.ErrTenantRequired
	}
	return nil
}

// compileFilter turns a query into the jsonb containment argument. The
// tenant id is force-merged over whatever the caller supplied, so a crafted
// query cannot widen or redirect the scope.
func compileFilter(query repository.Query, tenantID string) ([]byte, error) {
	filter := make(repository.Query, len(query)+1)
	for k, v := range query {
		filter[k] = v
	}
	filter["tenant_id"] = tenantID

	raw, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to compile query filter: %w", err)
	}
	return raw, nil
}

func (c *Collection) FindOne(ctx context.Context, query repository.Query, tenantID string) (repository.Document, error) {
	if err := c.requireTenant(tenantID); err != nil {
		return nil, err
	}

	c.log.Debug("find_one",
		zap.String("tenant_id", tenantID),
		zap.Any("query", repository.Redact(query)))

	filter, err := compileFilter(query, tenantID)
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = c.db.ExecQueryRow(ctx,
		fmt.Sprintf("SELECT doc FROM %s WHERE tenant_id = $1 AND doc @> $2::jsonb LIMIT 1", c.table),
		tenantID, filter,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		metrics.RepositoryErrorsTotal.WithLabelValues("find_one").Inc()
		return nil, fmt.Errorf("failed to find document in %s: %w", c.table, err)
	}

	var doc repository.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document from %s: %w", c.table, err)
	}
	return doc, nil
}

func (c *Collection) FindMany(ctx context.Context, query repository.Query, tenantID string, opts repository.FindOptions) ([]repository.Document, error) {
	if err := c.requireTenant(tenantID); err != nil {
		return nil, err
	}

	c.log.Debug("find_many",
		zap.String("tenant_id", tenantID),
		zap.Any("query", repository.Redact(query)),
		zap.Int("limit", opts.Limit),
		zap.Int("skip", opts.Skip))

	filter, err := compileFilter(query, tenantID)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf("SELECT doc FROM %s WHERE tenant_id = $1 AND doc @> $2::jsonb", c.table)
	args := []interface{}{tenantID, filter}

	if len(opts.Sort) > 0 {
		keys := make([]string, 0, len(opts.Sort))
		for _, s := range opts.Sort {
			if !validSortField(s.Field) {
				return nil, fmt.Errorf("invalid sort field %q", s.Field)
			}
			dir := "ASC"
			if s.Desc {
				dir = "DESC"
			}
			keys = append(keys, fmt.Sprintf("doc->>'%s' %s", s.Field, dir))
		}
		sql += " ORDER BY " + strings.Join(keys, ", ")
	}

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Skip > 0 {
		args = append(args, opts.Skip)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var rows []struct {
		Doc []byte `db:"doc"`
	}
	if err := c.db.Select(ctx, &rows, sql, args...); err != nil {
		metrics.RepositoryErrorsTotal.WithLabelValues("find_many").Inc()
		return nil, fmt.Errorf("failed to find documents in %s: %w", c.table, err)
	}

	docs := make([]repository.Document, 0, len(rows))
	for _, row := range rows {
		var doc repository.Document
		if err := json.Unmarshal(row.Doc, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document from %s: %w", c.table, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (c *Collection) CountDocuments(ctx context.Context, query repository.Query, tenantID string) (int64, error) {
	if err := c.requireTenant(tenantID); err != nil {
		return 0, err
	}

	c.log.Debug("count_documents",
		zap.String("tenant_id", tenantID),
		zap.Any("query", repository.Redact(query)))

	filter, err := compileFilter(query, tenantID)
	if err != nil {
		return 0, err
	}

	var count int64
	err = c.db.ExecQueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE tenant_id = $1 AND doc @> $2::jsonb", c.table),
		tenantID, filter,
	).Scan(&count)
	if err != nil {
		metrics.RepositoryErrorsTotal.WithLabelValues("count_documents").Inc()
		return 0, fmt.Errorf("failed to count documents in %s: %w", c.table, err)
	}
	return count, nil
}

func (c *Collection) InsertOne(ctx context.Context, doc repository.Document, tenantID string) (string, error) {
	if err := c.requireTenant(tenantID); err != nil {
		return "", err
	}

	stored := make(repository.Document, len(doc)+3)
	for k, v := range doc {
		stored[k] = v
	}

	// The tenant id always comes from the parameter; a document carrying a
	// different one is overwritten, never trusted.
	stored["tenant_id"] = tenantID

	id, _ := stored["id"].(string)
	if id == "" {
		id = uuid.New().String()
		stored["id"] = id
	}

	now := time.Now().UTC()
	createdAt := now
	switch v := stored["created_at"].(type) {
	case time.Time:
		if v.IsZero() {
			stored["created_at"] = now
		} else {
			createdAt = v
		}
	case string:
		// Decoded documents round-trip timestamps as RFC3339 strings; a
		// zero time means the caller never set one.
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil && !t.IsZero() {
			createdAt = t
		} else {
			stored["created_at"] = now
		}
	default:
		stored["created_at"] = now
	}
	stored["updated_at"] = now

	// Document contents may carry PII, so the log line stays id-only.
	c.log.Info("insert_one",
		zap.String("tenant_id", tenantID),
		zap.String("id", id))

	raw, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("failed to encode document for %s: %w", c.table, err)
	}

	_, err = c.db.Exec(ctx,
		fmt.Sprintf("INSERT INTO %s (id, tenant_id, doc, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)", c.table),
		id, tenantID, raw, createdAt, now,
	)
	if err != nil {
		metrics.RepositoryErrorsTotal.WithLabelValues("insert_one").Inc()
		return "", fmt.Errorf("failed to insert document into %s: %w", c.table, err)
	}
	return id, nil
}

func (c *Collection) UpdateOne(ctx context.Context, query repository.Query, set repository.Document, tenantID string, upsert bool) (bool, error) {
	if err := c.requireTenant(tenantID); err != nil {
		return false, err
	}

	now := time.Now().UTC()
	patch := make(repository.Document, len(set)+1)
	for k, v := range set {
		patch[k] = v
	}
	// updated_at is stamped whether or not the caller asked for it.
	patch["updated_at"] = now
	delete(patch, "tenant_id")

	c.log.Info("update_one",
		zap.String("tenant_id", tenantID),
		zap.Any("query", repository.Redact(query)),
		zap.Strings("fields", fieldNames(set)))

	filter, err := compileFilter(query, tenantID)
	if err != nil {
		return false, err
	}
	rawPatch, err := json.Marshal(patch)
	if err != nil {
		return false, fmt.Errorf("failed to encode update for %s: %w", c.table, err)
	}

	tag, err := c.db.Exec(ctx,
		fmt.Sprintf(`UPDATE %[1]s SET doc = doc || $3::jsonb, updated_at = $4
            WHERE ctid = (SELECT ctid FROM %[1]s WHERE tenant_id = $1 AND doc @> $2::jsonb LIMIT 1)`, c.table),
		tenantID, filter, rawPatch, now,
	)
	if err != nil {
		metrics.RepositoryErrorsTotal.WithLabelValues("update_one").Inc()
		return false, fmt.Errorf("failed to update document in %s: %w", c.table, err)
	}

	modified := tag.RowsAffected() > 0
	c.log.Info("update_one result",
		zap.String("tenant_id", tenantID),
		zap.Int64("modified", tag.RowsAffected()))

	if !modified && upsert {
		doc := make(repository.Document, len(query)+len(set))
		for k, v := range query {
			doc[k] = v
		}
		for k, v := range set {
			doc[k] = v
		}
		if _, err := c.InsertOne(ctx, doc, tenantID); err != nil {
			return false, err
		}
		return true, nil
	}
	return modified, nil
}

func (c *Collection) DeleteOne(ctx context.Context, query repository.Query, tenantID string) (bool, error) {
	if err := c.requireTenant(tenantID); err != nil {
		return false, err
	}

	c.log.Info("delete_one",
		zap.String("tenant_id", tenantID),
		zap.Any("query", repository.Redact(query)))

	filter, err := compileFilter(query, tenantID)
	if err != nil {
		return false, err
	}

	tag, err := c.db.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %[1]s
            WHERE ctid = (SELECT ctid FROM %[1]s WHERE tenant_id = $1 AND doc @> $2::jsonb LIMIT 1)`, c.table),
		tenantID, filter,
	)
	if err != nil {
		metrics.RepositoryErrorsTotal.WithLabelValues("delete_one").Inc()
		return false, fmt.Errorf("failed to delete document from %s: %w", c.table, err)
	}

	c.log.Info("delete_one result",
		zap.String("tenant_id", tenantID),
		zap.Int64("deleted", tag.RowsAffected()))
	return tag.RowsAffected() > 0, nil
}

// Sort fields are interpolated into the ORDER BY expression, so only plain
// identifier characters are accepted.
func validSortField(field string) bool {
	if field == "" {
		return false
	}
	for _, r := range field {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

func fieldNames(doc repository.Document) []string {
	names := make([]string, 0, len(doc))
	for k := range doc {
		names = append(names, k)
	}
	return names
}
