//go:generate mockgen -source ./server.go -destination=./mocks/server.go -package=mock_server
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/failsworth/returnbase/internal/audit"
	"github.com/failsworth/returnbase/internal/repository"
	"github.com/failsworth/returnbase/internal/workflow"
)

type ReturnsService interface {
	Create(ctx context.Context, tenantID string, ret *repository.ReturnRequest) (*repository.ReturnRequest, *workflow.SimulationResult, error)
	ApplyTransition(ctx context.Context, tenantID, returnID string, to workflow.Status, notes, userID string) error
	Get(ctx context.Context, tenantID, returnID string) (*repository.ReturnRequest, error)
	List(ctx context.Context, tenantID string, page, limit int) ([]*repository.ReturnRequest, int64, error)
	ListByStatus(ctx context.Context, tenantID string, status workflow.Status) ([]*repository.ReturnRequest, error)
	History(ctx context.Context, tenantID, returnID string) ([]workflow.AuditLogEntry, error)
	AllowedTransitions(ctx context.Context, tenantID, returnID string) ([]workflow.Status, error)
}

type OrdersService interface {
	GetByID(ctx context.Context, tenantID, id string) (*repository.Order, error)
}

type TenantAuthenticator interface {
	VerifyAPIKey(ctx context.Context, id, apiKey string) (*repository.Tenant, error)
}

type TenantCache interface {
	Get(tenantID string) (*repository.Tenant, bool)
	Set(tenant *repository.Tenant)
}

type Server struct {
	returns  ReturnsService
	orders   OrdersService
	tenants  TenantAuthenticator
	cache    TenantCache
	recorder *audit.Recorder
	log      *zap.Logger
	server   *http.Server
}

func New(returns ReturnsService, orders OrdersService, tenants TenantAuthenticator, cache TenantCache, recorder *audit.Recorder, log *zap.Logger) *Server {
	return &Server{
		returns:  returns,
		orders:   orders,
		tenants:  tenants,
		cache:    cache,
		recorder: recorder,
		log:      log,
	}
}

func (s *Server) Run(ctx context.Context, port string) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.recorder.Start(ctx)

	s.log.Info("server starting", zap.String("port", port))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	s.recorder.Shutdown(ctx)

	s.log.Info("server shutdown completed")
	return nil
}

func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /returns", s.handleCreateReturn)
	mux.HandleFunc("GET /returns", s.handleListReturns)
	mux.HandleFunc("GET /returns/{id}", s.handleGetReturn)
	mux.HandleFunc("PUT /returns/{id}/status", s.handleUpdateReturnStatus)
	mux.HandleFunc("GET /returns/{id}/history", s.handleReturnHistory)
	mux.HandleFunc("GET /returns/{id}/transitions", s.handleAllowedTransitions)
	mux.HandleFunc("GET /orders/{id}", s.handleGetOrder)

	handler := s.auditMiddleware(s.tenantAuthMiddleware(mux))

	// Metrics bypass tenant auth; scrapers carry no tenant context.
	root := http.NewServeMux()
	root.Handle("/metrics", promhttp.Handler())
	root.Handle("/", handler)

	return root
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
