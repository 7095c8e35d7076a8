package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/failsworth/returnbase/internal/audit"
)

type contextKey string

const tenantIDKey contextKey = "tenant_id"

// TenantFromContext returns the tenant id resolved by the auth middleware.
func TenantFromContext(ctx context.Context) string {
	id, _ := ctx.Value(tenantIDKey).(string)
	return id
}

// tenantAuthMiddleware resolves the tenant from the X-Tenant-ID header and
// authenticates the presented X-API-Key against the tenant's stored hash.
// Cached tenants are verified locally; misses fall through to storage and
// warm the cache on success.
func (s *Server) tenantAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get("X-Tenant-ID")
		apiKey := r.Header.Get("X-API-Key")
		if tenantID == "" || apiKey == "" {
			respondError(w, http.StatusUnauthorized, "Missing tenant credentials")
			return
		}

		if cached, ok := s.cache.Get(tenantID); ok {
			if err := bcrypt.CompareHashAndPassword([]byte(cached.APIKeyHash), []byte(apiKey)); err != nil {
				respondError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
		} else {
			tenant, err := s.tenants.VerifyAPIKey(r.Context(), tenantID, apiKey)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			s.cache.Set(tenant)
		}

		ctx := context.WithValue(r.Context(), tenantIDKey, tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// auditMiddleware records one audit event per request. Only identifiers and
// statuses go into the event; request bodies may carry PII and are not
// captured.
func (s *Server) auditMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		event := audit.Event{
			Timestamp: time.Now().UTC(),
			TenantID:  r.Header.Get("X-Tenant-ID"),
			Method:    r.Method,
			Path:      r.URL.Path,
			ReturnID:  returnIDFromPath(r.URL.Path),
		}

		wrw := newResponseWriterWrapper(w)
		next.ServeHTTP(wrw, r)

		event.StatusCode = wrw.StatusCode()
		s.recorder.Record(r.Context(), event)
	})
}

func returnIDFromPath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "returns" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriterWrapper(w http.ResponseWriter) *responseWriterWrapper {
	return &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriterWrapper) StatusCode() int {
	return w.statusCode
}

func decodeBody(r *http.Request, dest interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dest)
}
