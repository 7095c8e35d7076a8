package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/failsworth/returnbase/internal/repository"
	"github.com/failsworth/returnbase/internal/service"
	"github.com/failsworth/returnbase/internal/workflow"
)

func (s *Server) handleCreateReturn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID       string                  `json:"order_id"`
		CustomerEmail string                  `json:"customer_email"`
		CustomerName  string                  `json:"customer_name"`
		Items         []repository.ReturnItem `json:"items_to_return"`
		RefundAmount  float64                 `json:"refund_amount"`
		Reason        string                  `json:"reason"`
		Notes         string                  `json:"notes"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.OrderID == "" {
		respondError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	tenantID := TenantFromContext(r.Context())
	ret := &repository.ReturnRequest{
		OrderID:       req.OrderID,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		Items:         req.Items,
		RefundAmount:  req.RefundAmount,
		Reason:        req.Reason,
		Notes:         req.Notes,
	}

	created, sim, err := s.returns.Create(r.Context(), tenantID, ret)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			respondError(w, http.StatusNotFound, "Order not found")
			return
		}
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"return":   created,
		"decision": sim.Decision,
		"trace":    sim.Trace,
	})
}

func (s *Server) handleListReturns(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantFromContext(r.Context())

	if status := r.URL.Query().Get("status"); status != "" {
		if !workflow.ValidStatus(workflow.Status(status)) {
			respondError(w, http.StatusBadRequest, "Unknown status")
			return
		}
		returns, err := s.returns.ListByStatus(r.Context(), tenantID, workflow.Status(status))
		if err != nil {
			s.respondServiceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"returns": returns})
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)

	returns, total, err := s.returns.List(r.Context(), tenantID, page, limit)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"returns": returns,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

func (s *Server) handleGetReturn(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantFromContext(r.Context())
	ret, err := s.returns.Get(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ret)
}

func (s *Server) handleUpdateReturnStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
		UserID string `json:"user_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tenantID := TenantFromContext(r.Context())
	err := s.returns.ApplyTransition(r.Context(), tenantID, r.PathValue("id"),
		workflow.Status(req.Status), req.Notes, req.UserID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Status updated successfully"})
}

func (s *Server) handleReturnHistory(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantFromContext(r.Context())
	history, err := s.returns.History(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

func (s *Server) handleAllowedTransitions(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantFromContext(r.Context())
	allowed, err := s.returns.AllowedTransitions(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"transitions": allowed})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantFromContext(r.Context())
	order, err := s.orders.GetByID(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrObjectNotFound):
		respondError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, service.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrStatusConflict):
		respondError(w, http.StatusConflict, "Return was modified concurrently, please retry")
	case errors.Is(err, repository.ErrTenantRequired):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
