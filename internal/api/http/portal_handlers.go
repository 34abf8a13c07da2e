package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"membership-backend/internal/domain"
	"membership-backend/internal/security"
)

// portalView is what an applicant sees of their own request. It leaves out
// payments and decision identities.
type portalView struct {
	Matricule          string               `json:"matricule"`
	Status             domain.RequestStatus `json:"status"`
	IsPaid             bool                 `json:"is_paid"`
	ReviewNote         string               `json:"review_note,omitempty"`
	MotifReject        string               `json:"motif_reject,omitempty"`
	SecurityCodeExpiry *time.Time           `json:"security_code_expiry,omitempty"`
	MemberNumber       string               `json:"member_number,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

func newPortalView(req *domain.MembershipRequest) portalView {
	return portalView{
		Matricule:          req.Matricule,
		Status:             req.Status,
		IsPaid:             req.IsPaid,
		ReviewNote:         req.ReviewNote,
		MotifReject:        req.MotifReject,
		SecurityCodeExpiry: req.SecurityCodeExpiry,
		MemberNumber:       req.MemberNumber,
		CreatedAt:          req.CreatedAt,
		UpdatedAt:          req.UpdatedAt,
	}
}

type submitResponse struct {
	ID        string               `json:"id"`
	Matricule string               `json:"matricule"`
	Status    domain.RequestStatus `json:"status"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload domain.RequestPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	req, err := s.Lifecycle.Submit(r.Context(), payload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{ID: req.ID, Matricule: req.Matricule, Status: req.Status})
}

func (s *Server) handleGetPortalRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.Lifecycle.GetByMatricule(r.Context(), mux.Vars(r)["matricule"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPortalView(req))
}

type verifyRequest struct {
	Code string `json:"code"`
}

type verifyResponse struct {
	Result       domain.VerifyResult    `json:"result"`
	SessionToken string                 `json:"session_token"`
	ExpiresAt    time.Time              `json:"expires_at"`
	ReviewNote   string                 `json:"review_note,omitempty"`
	Payload      *domain.RequestPayload `json:"payload"`
}

// handleVerifyCode opens a correction session. The current payload is only
// returned once the code has been proven.
func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var body verifyRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	req, err := s.Lifecycle.GetByMatricule(r.Context(), mux.Vars(r)["matricule"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.Lifecycle.VerifyCode(r.Context(), req.ID, body.Code)
	if err == nil {
		err = result.Err()
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, err := s.Tokens.GenerateCorrectionToken(req.ID, security.NormalizeCode(body.Code), s.CorrectionSessionTTL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	payload := req.Payload()
	writeJSON(w, http.StatusOK, verifyResponse{
		Result:       result,
		SessionToken: token,
		ExpiresAt:    time.Now().Add(s.CorrectionSessionTTL),
		ReviewNote:   req.ReviewNote,
		Payload:      &payload,
	})
}

func (s *Server) handleSubmitCorrections(w http.ResponseWriter, r *http.Request) {
	var payload domain.RequestPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	req, err := s.Lifecycle.GetByMatricule(r.Context(), mux.Vars(r)["matricule"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	claims, err := s.Tokens.ValidateCorrectionToken(sessionTokenFrom(r.Context()), req.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := retryOnConflict("submit_corrections", func() (*domain.MembershipRequest, error) {
		return s.Lifecycle.SubmitCorrections(r.Context(), req.ID, claims.Code, payload)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPortalView(updated))
}

func (s *Server) handleListGeo(w http.ResponseWriter, r *http.Request) {
	level := domain.GeoLevel(mux.Vars(r)["level"])
	if !level.Valid() {
		writeError(w, r, domain.NewValidationError("level", "unknown geographic level"))
		return
	}

	entries, err := s.Geo.ListChildren(r.Context(), level, r.URL.Query().Get("parent"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.GeoEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleListMembershipTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.Lifecycle.ListMembershipTypes(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	active := make([]domain.MembershipType, 0, len(types))
	for _, t := range types {
		if t.Active {
			active = append(active, t)
		}
	}
	writeJSON(w, http.StatusOK, active)
}
