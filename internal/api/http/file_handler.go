package http

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gorilla/mux"

	"membership-backend/internal/domain"
	"membership-backend/internal/logger"
	"membership-backend/internal/storage"
)

var uploadContentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}

type uploadResponse struct {
	URL string `json:"url"`
}

// handleUpload stores an applicant document (photo, ID scan, signature) and
// returns the URL to reference in the submission payload.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	contentType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !uploadContentTypes[contentType] {
		writeError(w, r, domain.NewValidationError("content_type", "only JPEG, PNG or PDF documents are accepted"))
		return
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r.Body, s.MaxUploadSize+1))
	if err != nil {
		writeError(w, r, domain.NewValidationError("body", "failed to read upload"))
		return
	}
	if n == 0 {
		writeError(w, r, domain.NewValidationError("body", "empty upload"))
		return
	}
	if n > s.MaxUploadSize {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "too_large", Message: "File exceeds the maximum upload size"})
		return
	}

	url, err := s.Blobs.Store(r.Context(), buf.Bytes(), contentType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{URL: url})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	file, contentType, err := s.Blobs.Open(r.Context(), key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warn("Blob download refused", "key", key, "error", err)
		}
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "File not found"})
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, file); err != nil {
		logger.Warn("Blob download interrupted", "key", key, "error", err)
	}
}
