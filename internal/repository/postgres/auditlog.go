package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/failsworth/returnbase/internal/db"
	"github.com/failsworth/returnbase/internal/repository"
	"github.com/failsworth/returnbase/internal/workflow"
)

// AuditLogRepo persists workflow audit entries as regular tenant-scoped
// documents. Entries are append-only: there is no update or delete path.
type AuditLogRepo struct {
	c *Collection
}

func NewAuditLogRepo(database db.DB, log *zap.Logger) *AuditLogRepo {
	return &AuditLogRepo{c: NewCollection(database, "audit_logs", log)}
}

func (r *AuditLogRepo) Append(ctx context.Context, tenantID string, entry workflow.AuditLogEntry) (string, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("failed to encode audit entry: %w", err)
	}
	var doc repository.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("failed to encode audit entry: %w", err)
	}
	return r.c.InsertOne(ctx, doc, tenantID)
}

// HistoryFor returns every recorded transition of one return, oldest first,
// which reconstructs its full status history.
func (r *AuditLogRepo) HistoryFor(ctx context.Context, tenantID, returnID string) ([]workflow.AuditLogEntry, error) {
	docs, err := r.c.FindMany(ctx, repository.Query{"return_id": returnID}, tenantID, repository.FindOptions{
		Sort: []repository.SortKey{{Field: "timestamp", Desc: false}},
	})
	if err != nil {
		return nil, err
	}

	entries := make([]workflow.AuditLogEntry, 0, len(docs))
	for _, doc := range docs {
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to encode audit document: %w", err)
		}
		var entry workflow.AuditLogEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("malformed audit document: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
