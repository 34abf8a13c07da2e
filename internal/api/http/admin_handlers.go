package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"membership-backend/internal/domain"
	"membership-backend/internal/logger"
	"membership-backend/internal/service"
)

const maxBodySize = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil {
		return domain.NewValidationError("body", "malformed JSON body")
	}
	return nil
}

func queryInt32(r *http.Request, name string) int32 {
	v, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 32)
	if err != nil {
		return 0
	}
	return int32(v)
}

// retryOnConflict runs fn a second time when the first attempt lost an
// optimistic write. The second conflict is returned to the caller.
func retryOnConflict[T any](op string, fn func() (T, error)) (T, error) {
	v, err := fn()
	if errors.Is(err, domain.ErrConflict) {
		logger.Info("Retrying after write conflict", "operation", op)
		return fn()
	}
	return v, err
}

type listResponse[T any] struct {
	Items    []T   `json:"items"`
	Total    int32 `json:"total"`
	Page     int32 `json:"page"`
	PageSize int32 `json:"page_size"`
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	filter := domain.RequestFilter{
		Status:   domain.RequestStatus(r.URL.Query().Get("status")),
		Page:     queryInt32(r, "page"),
		PageSize: queryInt32(r, "page_size"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, r, domain.NewValidationError("status", "unknown status"))
		return
	}
	filter = filter.Normalize()

	items, total, err := s.Lifecycle.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.MembershipRequest{}
	}
	writeJSON(w, http.StatusOK, listResponse[domain.MembershipRequest]{Items: items, Total: total, Page: filter.Page, PageSize: filter.PageSize})
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.Lifecycle.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	var in domain.PaymentInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if in.IdempotencyKey == "" {
		in.IdempotencyKey = r.Header.Get(idempotencyHeader)
	}

	id := mux.Vars(r)["id"]
	req, err := retryOnConflict("pay", func() (*domain.MembershipRequest, error) {
		return s.Lifecycle.Pay(r.Context(), id, adminFrom(r.Context()), in)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type approveResponse struct {
	*domain.ApprovalArtifacts
	TemporaryPassword string   `json:"temporary_password,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`
}

// handleApprove is not retried on conflict: losing the claim means another
// admin is approving the same request.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var decision domain.ApprovalDecision
	if err := decodeJSON(w, r, &decision); err != nil {
		writeError(w, r, err)
		return
	}

	artifacts, err := s.Lifecycle.Approve(r.Context(), mux.Vars(r)["id"], adminFrom(r.Context()), decision)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := approveResponse{ApprovalArtifacts: artifacts, TemporaryPassword: artifacts.TemporaryPassword}
	for _, warning := range artifacts.Warnings {
		resp.Warnings = append(resp.Warnings, warning.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var body reasonRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	id := mux.Vars(r)["id"]
	out, err := retryOnConflict("reject", func() (*service.Outcome, error) {
		return s.Lifecycle.Reject(r.Context(), id, adminFrom(r.Context()), body.Reason)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type correctionsRequest struct {
	Lines []string `json:"lines"`
}

func (s *Server) handleRequestCorrections(w http.ResponseWriter, r *http.Request) {
	var body correctionsRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	id := mux.Vars(r)["id"]
	issued, err := retryOnConflict("request_corrections", func() (*domain.IssuedCode, error) {
		return s.Lifecycle.RequestCorrections(r.Context(), id, adminFrom(r.Context()), body.Lines)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issued)
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request) {
	var body reasonRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	id := mux.Vars(r)["id"]
	req, err := retryOnConflict("reopen", func() (*domain.MembershipRequest, error) {
		return s.Lifecycle.Reopen(r.Context(), id, adminFrom(r.Context()), body.Reason)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type regenerateRequest struct {
	Confirmed bool `json:"confirmed"`
}

func (s *Server) handleRegenerateCode(w http.ResponseWriter, r *http.Request) {
	var body regenerateRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	id := mux.Vars(r)["id"]
	issued, err := retryOnConflict("regenerate_code", func() (*domain.IssuedCode, error) {
		return s.Lifecycle.RegenerateCode(r.Context(), id, adminFrom(r.Context()), body.Confirmed)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issued)
}

type deleteRequest struct {
	Matricule string `json:"matricule"`
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var body deleteRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	id := mux.Vars(r)["id"]
	_, err := retryOnConflict("delete", func() (struct{}, error) {
		return struct{}{}, s.Lifecycle.Delete(r.Context(), id, adminFrom(r.Context()), body.Matricule)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetryArtifacts(w http.ResponseWriter, r *http.Request) {
	artifacts, err := s.Lifecycle.RetryArtifacts(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := approveResponse{ApprovalArtifacts: artifacts}
	for _, warning := range artifacts.Warnings {
		resp.Warnings = append(resp.Warnings, warning.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	filter := domain.RequestFilter{Page: queryInt32(r, "page"), PageSize: queryInt32(r, "page_size")}.Normalize()
	notes, total, err := s.Notifications.GetNotifications(r.Context(), mux.Vars(r)["memberId"], filter.Page, filter.PageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if notes == nil {
		notes = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, listResponse[domain.Notification]{Items: notes, Total: total, Page: filter.Page, PageSize: filter.PageSize})
}

type markReadRequest struct {
	MemberID string `json:"member_id"`
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	var body markReadRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if body.MemberID == "" {
		writeError(w, r, domain.NewValidationError("member_id", "is required"))
		return
	}
	if err := s.Notifications.MarkAsRead(r.Context(), body.MemberID, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
