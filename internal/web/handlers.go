package web

// handlers.go implements the conversion API endpoints.
//
// Response shapes:
//
//	POST /convert        {"status", "message", "downloadUrl"}
//	POST /validate       {"is_valid", "message", "file_size", "file_type"}
//	GET  /download/{id}  application/xml attachment
//	GET  /health         {"status", "version", "timestamp"}
//	errors               {"detail": "..."}

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/convertx/internal/core"
	"github.com/JonMunkholm/convertx/internal/logging"
)

// requestData is the optional JSON envelope accepted by /convert alongside
// the bare form fields.
type requestData struct {
	HeaderFields json.RawMessage `json:"header_fields"`
	SheetName    string          `json:"sheet_name"`
}

// handleRoot reports liveness at the bare root path.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Backend is running",
	})
}

// handleHealth reports service health and the active schema version.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"version":   s.cfg.Document.SchemaVersion,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleConvert accepts a multipart upload and returns a download link for
// the converted document.
// The request body is deliberately not capped here: the converter counts
// the upload against the size limit itself, so an oversized file gets a
// size-limit rejection rather than a truncated-body parse failure.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, core.NewInputError("no file provided"))
		return
	}
	defer file.Close()

	headerFields := []byte(r.FormValue("header_fields"))
	sheet := r.FormValue("sheet_name")

	// The request_data envelope wins over bare form fields when present.
	if raw := r.FormValue("request_data"); raw != "" {
		var rd requestData
		if err := json.Unmarshal([]byte(raw), &rd); err != nil {
			s.respondError(w, r, core.WrapInputError(err, "invalid request_data"))
			return
		}
		if len(rd.HeaderFields) > 0 {
			headerFields = rd.HeaderFields
		}
		if rd.SheetName != "" {
			sheet = rd.SheetName
		}
	}

	res, err := s.converter.Convert(r.Context(), core.ConvertRequest{
		Filename:     header.Filename,
		Content:      file,
		Sheet:        sheet,
		HeaderFields: headerFields,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "success",
		"message":     "File converted successfully",
		"downloadUrl": s.cfg.Server.Route("/download/" + res.ArtifactID.String()),
	})
}

// handleValidate runs the pre-flight checks without producing an artifact.
// Rejections are reported in the response body, not as HTTP errors.
// Like handleConvert, the body is not capped: the validator measures the
// whole upload so an oversized file reports its real size.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	filename := ""
	var content io.Reader

	file, header, err := r.FormFile("file")
	if err == nil {
		defer file.Close()
		filename = header.Filename
		content = file
	} else {
		content = nopReader{}
	}

	res, err := s.validator.Validate(filename, content)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"is_valid":  res.IsValid,
		"message":   res.Message,
		"file_size": res.Size,
		"file_type": res.Type,
	})
}

// handleDownload streams the converted document as an XML attachment.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "artifactID")
	id, err := uuid.Parse(raw)
	if err != nil {
		s.respondError(w, r, &core.NotFoundError{Resource: "artifact", Name: raw})
		return
	}

	rc, meta, err := s.store.Open(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer rc.Close()

	if s.index != nil {
		if err := s.index.MarkDownloaded(r.Context(), id); err != nil {
			logging.FromContext(r.Context()).Warn("marking download failed",
				slog.String("artifact_id", id.String()),
				slog.String("error", err.Error()))
		}
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="converted_%s.xml"`, id))
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))

	if _, err := io.Copy(w, rc); err != nil {
		// Headers are sent; all we can do is log.
		logging.FromContext(r.Context()).Error("streaming artifact failed",
			slog.String("artifact_id", id.String()),
			slog.String("error", err.Error()))
	}
}

// handleConversions lists recent conversions from the audit index.
func (s *Server) handleConversions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	type entryJSON struct {
		ArtifactID       string     `json:"artifactId"`
		Filename         string     `json:"filename"`
		Sheet            string     `json:"sheet,omitempty"`
		Rows             int        `json:"rows"`
		Columns          int        `json:"columns"`
		Bytes            int64      `json:"bytes"`
		CreatedAt        time.Time  `json:"createdAt"`
		DownloadCount    int        `json:"downloadCount"`
		LastDownloadedAt *time.Time `json:"lastDownloadedAt,omitempty"`
	}

	out := []entryJSON{}
	if s.index != nil {
		entries, err := s.index.Recent(r.Context(), limit)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		for _, e := range entries {
			out = append(out, entryJSON{
				ArtifactID:       e.ArtifactID.String(),
				Filename:         e.Filename,
				Sheet:            e.Sheet,
				Rows:             e.Rows,
				Columns:          e.Columns,
				Bytes:            e.Bytes,
				CreatedAt:        e.CreatedAt,
				DownloadCount:    e.DownloadCount,
				LastDownloadedAt: e.LastDownloadedAt,
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"conversions": out})
}

// respondError maps a pipeline error onto the HTTP taxonomy and writes the
// {"detail": ...} shape. Caller mistakes keep their own message; internal
// failures are logged in full and reported through the support-code mapping
// so internals never leak to the client.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.FromContext(r.Context())

	switch {
	case core.IsInputError(err):
		log.Info("request rejected", slog.String("error", err.Error()))
		writeDetail(w, http.StatusBadRequest, err.Error())
	case core.IsNotFound(err):
		log.Info("resource not found", slog.String("error", err.Error()))
		writeDetail(w, http.StatusNotFound, core.MapError(err).Message)
	default:
		log.Error("request failed", slog.String("error", err.Error()))
		writeDetail(w, http.StatusInternalServerError, core.FormatUserError(err))
	}
}

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", slog.String("error", err.Error()))
	}
}

// writeDetail writes the error response shape.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// nopReader is an empty upload body for validate requests without a file.
type nopReader struct{}

func (nopReader) Read([]byte) (int, error) { return 0, io.EOF }
