package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membership-backend/internal/domain"
	"membership-backend/internal/idempotency"
	"membership-backend/internal/message"
	"membership-backend/internal/metrics"
	"membership-backend/internal/repository/memory"
	"membership-backend/internal/security"
	"membership-backend/internal/service"
	"membership-backend/internal/storage"
)

const (
	testSecret  = "a-test-secret-that-is-long-enough-123"
	testTypeID  = "type-standard"
	testBaseURL = "http://localhost:8080/api/v1/files"
)

var testAdmin = domain.AdminIdentity{ID: "admin-3", Name: "Patrick Kabila"}

type testEnv struct {
	router     http.Handler
	store      *memory.Store
	tokens     security.TokenManager
	adminToken string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	types := memory.NewMembershipTypeRepository(
		domain.MembershipType{ID: testTypeID, Name: "Membre actif", Fee: 10300, DurationMonths: 12, Active: true},
		domain.MembershipType{ID: "type-closed", Name: "Membre fondateur", Fee: 10300, DurationMonths: 12, Active: false},
	)
	store.MembershipTypeRepository = types
	geo := memory.NewGeoRepository()
	geo.Add(domain.GeoLevelProvince, domain.GeoEntry{ID: "kin", Name: "Kinshasa"})
	geo.Add(domain.GeoLevelCity, domain.GeoEntry{ID: "gombe", Name: "Gombe", ParentID: "kin"})
	store.GeoRepository = geo

	blobs, err := storage.NewLocalBlobStore(testBaseURL, t.TempDir())
	require.NoError(t, err)
	composer, err := message.NewComposer()
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	orchestrator := service.NewApprovalOrchestrator(
		store.MemberRepository,
		store.SubscriptionRepository,
		store.ReferenceRepository,
		store.NotificationRepository,
		store.MembershipRequestRepository,
		blobs,
		composer,
		m,
		"MBR",
		5*time.Second,
	)
	lifecycle := service.NewRequestLifecycle(service.LifecycleDeps{
		Requests:      store.MembershipRequestRepository,
		Types:         types,
		Members:       store.MemberRepository,
		Subscriptions: store.SubscriptionRepository,
		Ledger:        service.NewPaymentLedger(10300),
		Orchestrator:  orchestrator,
		Codes:         security.NewSecurityCodeIssuer(72 * time.Hour),
		Limiter:       security.NewMemoryLimiter(5, 15*time.Minute),
		Composer:      composer,
		Blobs:         blobs,
		Emails:        service.NopEmailDispatcher{},
		Metrics:       m,
	}, service.LifecycleSettings{
		ClaimTTL:        2 * time.Minute,
		MatriculePrefix: "ADH",
		Region:          "CD",
		PortalURL:       "https://adhesion.example.com",
	})

	tokens := security.NewTokenManager(testSecret)
	adminToken, err := tokens.GenerateAdminToken(testAdmin, time.Hour)
	require.NoError(t, err)

	srv := NewServer(Deps{
		Lifecycle:     lifecycle,
		Notifications: service.NewNotificationService(store.NotificationRepository),
		Geo:           geo,
		Blobs:         blobs,
		Tokens:        tokens,
		Idempotency:   idempotency.NewMemoryStore(time.Hour),
		Metrics:       m,
		Gatherer:      reg,
	})
	return &testEnv{router: srv.Router(), store: store, tokens: tokens, adminToken: adminToken}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func applicantPayload() domain.RequestPayload {
	return domain.RequestPayload{
		Identity: domain.Identity{
			FirstName:   "Esther",
			LastName:    "Kalonji",
			Gender:      "F",
			BirthDate:   "1988-11-02",
			BirthPlace:  "Kananga",
			Nationality: "congolaise",
			Phone:       "0812345678",
			Email:       "esther.kalonji@example.com",
		},
		Address: domain.Address{
			Province: "Kinshasa",
			City:     "Gombe",
			Street:   "4 boulevard du 30 Juin",
		},
		Documents: domain.Documents{PhotoURL: testBaseURL + "/photo.jpg"},
	}
}

func cashPayment() domain.PaymentInput {
	return domain.PaymentInput{
		Amount:        10300,
		Mode:          domain.PaymentModeCash,
		Justification: "paid at the desk, receipt 0042",
		IsFee:         true,
	}
}

func (e *testEnv) submit(t *testing.T) submitResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/requests", "", applicantPayload())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[submitResponse](t, rec)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", domain.NewValidationError("phone", "invalid"), http.StatusBadRequest},
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"transition", &domain.TransitionError{Transition: domain.TransitionPay, From: domain.RequestStatusApproved}, http.StatusConflict},
		{"conflict", errors.Join(errors.New("update"), domain.ErrConflict), http.StatusConflict},
		{"in flight", idempotency.ErrInFlight, http.StatusConflict},
		{"incorrect code", domain.ErrCodeIncorrect, http.StatusUnprocessableEntity},
		{"expired code", domain.ErrCodeExpired, http.StatusUnprocessableEntity},
		{"used code", domain.ErrCodeAlreadyUsed, http.StatusUnprocessableEntity},
		{"attempts", domain.ErrTooManyAttempts, http.StatusTooManyRequests},
		{"approval", &domain.ApprovalError{Step: "account", Err: errors.New("db down")}, http.StatusBadGateway},
		{"invariant", &domain.InvariantError{Field: "processed_by_id", Value: "system"}, http.StatusInternalServerError},
		{"expired token", security.ErrExpiredToken, http.StatusUnauthorized},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := statusFor(tt.err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestAdminRoutesRequireAdminToken(t *testing.T) {
	env := newTestEnv(t)

	t.Run("Missing token", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/requests", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Correction session token", func(t *testing.T) {
		token, err := env.tokens.GenerateCorrectionToken("req-1", "123456", time.Minute)
		require.NoError(t, err)
		rec := env.do(t, http.MethodGet, "/api/v1/requests", token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Admin token", func(t *testing.T) {
		env.submit(t)
		rec := env.do(t, http.MethodGet, "/api/v1/requests?status=pending", env.adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		list := decode[listResponse[domain.MembershipRequest]](t, rec)
		assert.Equal(t, int32(1), list.Total)
		assert.Equal(t, int32(20), list.PageSize)
	})

	t.Run("Unknown status filter", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/requests?status=archived", env.adminToken, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t)
	payload := applicantPayload()
	payload.Identity.Phone = "not a phone"

	rec := env.do(t, http.MethodPost, "/api/v1/requests", "", payload)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorResponse](t, rec)
	assert.Equal(t, "validation", body.Error)
	assert.NotEmpty(t, body.Field)
}

func TestCorrectionRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	sub := env.submit(t)

	rec := env.do(t, http.MethodPost, "/api/v1/requests/"+sub.ID+"/corrections", env.adminToken,
		correctionsRequest{Lines: []string{"La photo est floue"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	issued := decode[domain.IssuedCode](t, rec)
	require.Len(t, issued.Code, 6)
	assert.Contains(t, issued.WhatsAppLink, "https://wa.me/243812345678")

	portal := decode[portalView](t, env.do(t, http.MethodGet, "/api/v1/portal/requests/"+sub.Matricule, "", nil))
	assert.Equal(t, domain.RequestStatusUnderReview, portal.Status)
	assert.Equal(t, "La photo est floue", portal.ReviewNote)

	verifyPath := "/api/v1/portal/requests/" + sub.Matricule + "/verify"
	correctionsPath := "/api/v1/portal/requests/" + sub.Matricule + "/corrections"

	wrong := "000000"
	if issued.Code == wrong {
		wrong = "111111"
	}
	rec = env.do(t, http.MethodPost, verifyPath, "", verifyRequest{Code: wrong})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, string(domain.VerifyCodeIncorrect), decode[errorResponse](t, rec).Error)

	display := issued.Code[0:2] + "-" + issued.Code[2:4] + "-" + issued.Code[4:6]
	rec = env.do(t, http.MethodPost, verifyPath, "", verifyRequest{Code: display})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	session := decode[verifyResponse](t, rec)
	assert.Equal(t, domain.VerifyValid, session.Result)
	require.NotNil(t, session.Payload)
	assert.Equal(t, "Esther", session.Payload.Identity.FirstName)

	corrected := applicantPayload()
	corrected.Documents.PhotoURL = testBaseURL + "/photo-nette.jpg"

	rec = env.do(t, http.MethodPost, correctionsPath, "", corrected)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "no session")

	rec = env.do(t, http.MethodPost, correctionsPath, env.adminToken, corrected)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "admin token is not a session")

	rec = env.do(t, http.MethodPost, correctionsPath, session.SessionToken, corrected)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.RequestStatusPending, decode[portalView](t, rec).Status)

	stored, err := env.store.MembershipRequestRepository.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, corrected.Documents.PhotoURL, stored.Documents.PhotoURL)

	rec = env.do(t, http.MethodPost, correctionsPath, session.SessionToken, corrected)
	assert.Equal(t, http.StatusConflict, rec.Code, "request is no longer under review")
}

func TestVerifyCodeAttemptLimit(t *testing.T) {
	env := newTestEnv(t)
	sub := env.submit(t)
	rec := env.do(t, http.MethodPost, "/api/v1/requests/"+sub.ID+"/corrections", env.adminToken,
		correctionsRequest{Lines: []string{"Adresse incomplète"}})
	require.Equal(t, http.StatusOK, rec.Code)
	issued := decode[domain.IssuedCode](t, rec)

	wrong := "000000"
	if issued.Code == wrong {
		wrong = "111111"
	}
	path := "/api/v1/portal/requests/" + sub.Matricule + "/verify"
	for i := 0; i < 5; i++ {
		rec = env.do(t, http.MethodPost, path, "", verifyRequest{Code: wrong})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	}
	rec = env.do(t, http.MethodPost, path, "", verifyRequest{Code: issued.Code})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestPaymentIdempotencyKey(t *testing.T) {
	env := newTestEnv(t)
	sub := env.submit(t)
	path := "/api/v1/requests/" + sub.ID + "/payments"

	first := env.do(t, http.MethodPost, path, env.adminToken, cashPayment(), idempotencyHeader, "pay-001")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	second := env.do(t, http.MethodPost, path, env.adminToken, cashPayment(), idempotencyHeader, "pay-001")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	stored, err := env.store.MembershipRequestRepository.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Payments, 1)
	assert.True(t, stored.IsPaid)
	assert.Equal(t, testAdmin.ID, stored.Payments[0].AcceptedByID)
}

func TestApproveAndNotifications(t *testing.T) {
	env := newTestEnv(t)
	sub := env.submit(t)

	rec := env.do(t, http.MethodPost, "/api/v1/requests/"+sub.ID+"/approve", env.adminToken,
		domain.ApprovalDecision{MembershipTypeID: testTypeID, IdentityArtifactURL: testBaseURL + "/id.jpg"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unpaid request")

	rec = env.do(t, http.MethodPost, "/api/v1/requests/"+sub.ID+"/payments", env.adminToken, cashPayment())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/v1/requests/"+sub.ID+"/approve", env.adminToken,
		domain.ApprovalDecision{MembershipTypeID: testTypeID, IdentityArtifactURL: testBaseURL + "/id.jpg"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[approveResponse](t, rec)
	require.NotNil(t, approved.Request)
	assert.Equal(t, domain.RequestStatusApproved, approved.Request.Status)
	assert.Equal(t, testAdmin.ID, approved.Request.ProcessedByID)
	assert.NotEmpty(t, approved.TemporaryPassword)
	assert.True(t, strings.HasPrefix(approved.CredentialsDocURL, testBaseURL+"/"))
	assert.Empty(t, approved.Warnings)

	key := strings.TrimPrefix(approved.CredentialsDocURL, testBaseURL+"/")
	rec = env.do(t, http.MethodGet, "/api/v1/files/"+key, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	rec = env.do(t, http.MethodGet, "/api/v1/members/"+approved.Account.ID+"/notifications", env.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	notes := decode[listResponse[domain.Notification]](t, rec)
	require.Len(t, notes.Items, 1)

	rec = env.do(t, http.MethodPost, "/api/v1/notifications/"+notes.Items[0].ID+"/read", env.adminToken,
		markReadRequest{MemberID: approved.Account.ID})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/requests/"+sub.ID+"/approve", env.adminToken,
		domain.ApprovalDecision{MembershipTypeID: testTypeID, IdentityArtifactURL: testBaseURL + "/id.jpg"})
	assert.Equal(t, http.StatusConflict, rec.Code, "already approved")
}

func TestRejectReopenDelete(t *testing.T) {
	env := newTestEnv(t)
	sub := env.submit(t)
	base := "/api/v1/requests/" + sub.ID

	rec := env.do(t, http.MethodPost, base+"/reject", env.adminToken, reasonRequest{Reason: "Dossier incomplet"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[service.Outcome](t, rec)
	assert.Equal(t, domain.RequestStatusRejected, out.Request.Status)
	assert.Contains(t, out.WhatsAppLink, "https://wa.me/")

	rec = env.do(t, http.MethodPost, base+"/reopen", env.adminToken, reasonRequest{Reason: "Pièce reçue"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.RequestStatusPending, decode[domain.MembershipRequest](t, rec).Status)

	rec = env.do(t, http.MethodPost, base+"/reject", env.adminToken, reasonRequest{Reason: "Doublon"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, base, env.adminToken, deleteRequest{Matricule: "ADH-0000-XXXXXX"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, base, env.adminToken, deleteRequest{Matricule: sub.Matricule})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, base, env.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFilesAndLookups(t *testing.T) {
	env := newTestEnv(t)

	t.Run("Upload and download", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/files", strings.NewReader("%PDF-1.4 fake"))
		req.Header.Set("Content-Type", "application/pdf")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		up := decode[uploadResponse](t, rec)

		rec = env.do(t, http.MethodGet, strings.TrimPrefix(up.URL, "http://localhost:8080"), "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "%PDF-1.4 fake", rec.Body.String())
		assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	})

	t.Run("Upload rejects other types", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/files", strings.NewReader("<html>"))
		req.Header.Set("Content-Type", "text/html")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Missing file", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/files/nope.pdf", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Geo children", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/geo/city?parent=kin", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		entries := decode[[]domain.GeoEntry](t, rec)
		require.Len(t, entries, 1)
		assert.Equal(t, "Gombe", entries[0].Name)

		rec = env.do(t, http.MethodGet, "/api/v1/geo/planet", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Only active membership types", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/membership-types", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		types := decode[[]domain.MembershipType](t, rec)
		require.Len(t, types, 1)
		assert.Equal(t, testTypeID, types[0].ID)
	})

	t.Run("Metrics", func(t *testing.T) {
		env.do(t, http.MethodGet, "/api/v1/health", "", nil)
		rec := env.do(t, http.MethodGet, "/metrics", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "membership_http_request_duration_seconds")
	})
}

func TestApproveKeepsTemporaryPasswordOutOfStorage(t *testing.T) {
	env := newTestEnv(t)
	sub := env.submit(t)
	rec := env.do(t, http.MethodPost, "/api/v1/requests/"+sub.ID+"/payments", env.adminToken, cashPayment())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	path := "/api/v1/requests/" + sub.ID + "/approve"
	decision := domain.ApprovalDecision{MembershipTypeID: testTypeID, IdentityArtifactURL: testBaseURL + "/id.jpg"}
	first := env.do(t, http.MethodPost, path, env.adminToken, decision, idempotencyHeader, "approve-001")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	approved := decode[approveResponse](t, first)
	password := approved.TemporaryPassword
	require.NotEmpty(t, password)

	t.Run("Credentials document", func(t *testing.T) {
		key := strings.TrimPrefix(approved.CredentialsDocURL, testBaseURL+"/")
		rec := env.do(t, http.MethodGet, "/api/v1/files/"+key, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), approved.Request.MemberNumber)
		assert.NotContains(t, rec.Body.String(), password)
	})

	t.Run("Replayed response", func(t *testing.T) {
		replay := env.do(t, http.MethodPost, path, env.adminToken, decision, idempotencyHeader, "approve-001")
		require.Equal(t, http.StatusOK, replay.Code)
		assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
		assert.NotContains(t, replay.Body.String(), password)
		assert.NotContains(t, replay.Body.String(), "temporary_password")
		replayed := decode[approveResponse](t, replay)
		require.NotNil(t, replayed.Request)
		assert.Equal(t, approved.Request.MemberNumber, replayed.Request.MemberNumber)
		assert.Equal(t, approved.CredentialsDocURL, replayed.CredentialsDocURL)
	})
}

func TestIdempotencyKeyIsScopedToAdmin(t *testing.T) {
	env := newTestEnv(t)
	sub := env.submit(t)
	other, err := env.tokens.GenerateAdminToken(domain.AdminIdentity{ID: "admin-7", Name: "Esther Ilunga"}, time.Hour)
	require.NoError(t, err)

	path := "/api/v1/requests/" + sub.ID + "/corrections"
	body := correctionsRequest{Lines: []string{"Photo floue"}}
	first := env.do(t, http.MethodPost, path, env.adminToken, body, idempotencyHeader, "corr-001")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	again := env.do(t, http.MethodPost, path, env.adminToken, body, idempotencyHeader, "corr-001")
	assert.Equal(t, "true", again.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), again.Body.String())

	rec := env.do(t, http.MethodPost, path, other, body, idempotencyHeader, "corr-001")
	assert.Empty(t, rec.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, http.StatusConflict, rec.Code, "already under review")
	assert.NotContains(t, rec.Body.String(), decode[domain.IssuedCode](t, first).Code)
}
