package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"membership-backend/internal/idempotency"
	"membership-backend/internal/metrics"
	"membership-backend/internal/repository"
	"membership-backend/internal/security"
	"membership-backend/internal/service"
	"membership-backend/internal/storage"
)

const defaultMaxUploadSize = 10 << 20

type Deps struct {
	Lifecycle            service.RequestLifecycle
	Notifications        service.NotificationService
	Geo                  repository.GeoRepository
	Blobs                storage.BlobStore
	Tokens               security.TokenManager
	Idempotency          idempotency.Store
	Metrics              *metrics.Metrics
	Gatherer             prometheus.Gatherer
	CorrectionSessionTTL time.Duration
	MaxUploadSize        int64
}

type Server struct {
	Deps
}

func NewServer(deps Deps) *Server {
	if deps.CorrectionSessionTTL <= 0 {
		deps.CorrectionSessionTTL = 30 * time.Minute
	}
	if deps.MaxUploadSize <= 0 {
		deps.MaxUploadSize = defaultMaxUploadSize
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{Deps: deps}
}

// Router registers every named route under /api/v1. Route names are the keys
// of config.RouteSecurityConfig.
func (s *Server) Router() *mux.Router {
	root := mux.NewRouter()
	root.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := root.PathPrefix("/api/v1").Subrouter()
	api.Use(s.recoverMiddleware, s.instrumentMiddleware, s.authMiddleware, s.idempotencyMiddleware)

	// Applicant portal
	api.HandleFunc("/requests", s.handleSubmit).Methods(http.MethodPost).Name("SubmitRequest")
	api.HandleFunc("/portal/requests/{matricule}", s.handleGetPortalRequest).Methods(http.MethodGet).Name("GetPortalRequest")
	api.HandleFunc("/portal/requests/{matricule}/verify", s.handleVerifyCode).Methods(http.MethodPost).Name("VerifyCode")
	api.HandleFunc("/portal/requests/{matricule}/corrections", s.handleSubmitCorrections).Methods(http.MethodPost).Name("SubmitCorrections")
	api.HandleFunc("/geo/{level}", s.handleListGeo).Methods(http.MethodGet).Name("ListGeo")
	api.HandleFunc("/membership-types", s.handleListMembershipTypes).Methods(http.MethodGet).Name("ListMembershipType")
	api.HandleFunc("/files", s.handleUpload).Methods(http.MethodPost).Name("UploadFile")
	api.HandleFunc("/files/{key}", s.handleDownload).Methods(http.MethodGet).Name("DownloadFile")
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet).Name("Health")

	// Admin console
	api.HandleFunc("/requests", s.handleListRequests).Methods(http.MethodGet).Name("ListRequests")
	api.HandleFunc("/requests/{id}", s.handleGetRequest).Methods(http.MethodGet).Name("GetRequest")
	api.HandleFunc("/requests/{id}", s.handleDelete).Methods(http.MethodDelete).Name("DeleteRequest")
	api.HandleFunc("/requests/{id}/payments", s.handlePay).Methods(http.MethodPost).Name("RecordPayment")
	api.HandleFunc("/requests/{id}/approve", s.handleApprove).Methods(http.MethodPost).Name("ApproveRequest")
	api.HandleFunc("/requests/{id}/reject", s.handleReject).Methods(http.MethodPost).Name("RejectRequest")
	api.HandleFunc("/requests/{id}/corrections", s.handleRequestCorrections).Methods(http.MethodPost).Name("RequestCorrections")
	api.HandleFunc("/requests/{id}/reopen", s.handleReopen).Methods(http.MethodPost).Name("ReopenRequest")
	api.HandleFunc("/requests/{id}/code/regenerate", s.handleRegenerateCode).Methods(http.MethodPost).Name("RegenerateCode")
	api.HandleFunc("/requests/{id}/artifacts/retry", s.handleRetryArtifacts).Methods(http.MethodPost).Name("RetryApprovalArtifacts")
	api.HandleFunc("/members/{memberId}/notifications", s.handleListNotifications).Methods(http.MethodGet).Name("ListMemberNotifications")
	api.HandleFunc("/notifications/{id}/read", s.handleMarkNotificationRead).Methods(http.MethodPost).Name("MarkNotificationRead")

	return root
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
