package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"membership-backend/internal/config"
	"membership-backend/internal/domain"
	"membership-backend/internal/idempotency"
	"membership-backend/internal/logger"
	"membership-backend/internal/security"
)

type contextKey string

const (
	ctxAdmin        contextKey = "admin"
	ctxSessionToken contextKey = "session_token"
)

const idempotencyHeader = "Idempotency-Key"

// replayRedactions lists, per route, response fields never written to the
// idempotency store. A replay returns the response without them.
var replayRedactions = map[string][]string{
	"ApproveRequest": {"temporary_password"},
}

func redactBody(body []byte, fields []string) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	for _, f := range fields {
		delete(doc, f)
	}
	return json.Marshal(doc)
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		return route.GetName()
	}
	return ""
}

func adminFrom(ctx context.Context) domain.AdminIdentity {
	admin, _ := ctx.Value(ctxAdmin).(domain.AdminIdentity)
	return admin
}

func sessionTokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(ctxSessionToken).(string)
	return token
}

func bearerToken(r *http.Request) (string, error) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", security.ErrInvalidToken
	}
	return strings.TrimSpace(token), nil
}

// authMiddleware enforces the security level configured for the matched
// route. Correction-session tokens are bound to a request, so they are only
// extracted here and validated by the handler once the request is resolved.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		level := config.GetSecurityLevel(routeName(r))
		if level == config.SecurityPublic {
			next.ServeHTTP(w, r)
			return
		}

		token, err := bearerToken(r)
		if err != nil {
			logger.Warn("Unauthorized access - missing token", "route", routeName(r))
			writeError(w, r, err)
			return
		}

		ctx := r.Context()
		switch level {
		case config.SecurityCorrection:
			ctx = context.WithValue(ctx, ctxSessionToken, token)
		default:
			claims, err := s.Tokens.ValidateAdminToken(token)
			if err != nil {
				logger.Warn("Unauthorized access - invalid token", "route", routeName(r), "error", err)
				if errors.Is(err, domain.ErrValidation) {
					err = security.ErrInvalidToken
				}
				writeError(w, r, err)
				return
			}
			ctx = context.WithValue(ctx, ctxAdmin, claims.Admin())
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// responseRecorder keeps the status and, when buffering, a copy of the body.
type responseRecorder struct {
	http.ResponseWriter
	status int
	buf    *bytes.Buffer
}

func (rec *responseRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *responseRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	if rec.buf != nil {
		rec.buf.Write(b)
	}
	return rec.ResponseWriter.Write(b)
}

func (s *Server) instrumentMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		s.Metrics.ObserveHTTP(routeName(r), strconv.Itoa(rec.status), start)
		logger.Debug("HTTP request", "method", r.Method, "route", routeName(r), "status", rec.status, "duration", time.Since(start))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				logger.Error("Panic in HTTP handler", "route", routeName(r), "panic", p)
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "Internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// idempotencyMiddleware replays the stored response of a side-effecting
// request carrying an Idempotency-Key already seen on the same path from the
// same admin. Server errors are not stored so the caller can retry them.
func (s *Server) idempotencyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(idempotencyHeader)
		if s.Idempotency == nil || key == "" || (r.Method != http.MethodPost && r.Method != http.MethodDelete) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		scope := routeName(r)
		if admin := adminFrom(ctx); admin.ID != "" {
			scope += ":" + admin.ID
		}
		scoped := scope + ":" + r.URL.Path + ":" + key
		stored, err := s.Idempotency.Begin(ctx, scoped)
		switch {
		case errors.Is(err, idempotency.ErrInFlight):
			writeError(w, r, err)
			return
		case err != nil:
			logger.Warn("Idempotency store unavailable, serving without replay protection", "error", err)
			next.ServeHTTP(w, r)
			return
		case stored != nil:
			w.Header().Set("Content-Type", stored.ContentType)
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(stored.Status)
			_, _ = w.Write(stored.Body)
			return
		}

		rec := &responseRecorder{ResponseWriter: w, buf: &bytes.Buffer{}}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		// the handler may have been cancelled with the client
		bg := context.WithoutCancel(ctx)
		if rec.status >= http.StatusInternalServerError {
			if err := s.Idempotency.Abort(bg, scoped); err != nil {
				logger.Warn("Failed to release idempotency key", "error", err)
			}
			return
		}
		body := rec.buf.Bytes()
		if fields, ok := replayRedactions[routeName(r)]; ok {
			if body, err = redactBody(body, fields); err != nil {
				logger.Warn("Response not redactable, releasing idempotency key", "route", routeName(r), "error", err)
				if err := s.Idempotency.Abort(bg, scoped); err != nil {
					logger.Warn("Failed to release idempotency key", "error", err)
				}
				return
			}
		}
		err = s.Idempotency.Complete(bg, scoped, idempotency.Record{
			Status:      rec.status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        body,
		})
		if err != nil {
			logger.Warn("Failed to store idempotent response", "error", err)
		}
	})
}
