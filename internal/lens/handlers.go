package lens

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/yen-lens/internal/converter"
	"github.com/zombor/yen-lens/internal/i18n"
)

// maxUploadSize allows high-resolution phone photos
const maxUploadSize = int64(50 << 20)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleConvert converts a manually entered Yen amount
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount json.RawMessage `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Accept both "1000" and 1000
	input := string(req.Amount)
	var quoted string
	if err := json.Unmarshal(req.Amount, &quoted); err == nil {
		input = quoted
	}

	conversion, err := s.service.Convert(r.Context(), input)
	if err != nil {
		if errors.Is(err, converter.ErrInvalidAmount) {
			writeError(w, s.tr.T(i18n.InvalidAmount), http.StatusBadRequest)
			return
		}
		slog.Error("Error converting amount", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, conversion)
}

// contentTypeFor falls back to the file extension when the part has no type
func contentTypeFor(header string, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleUploadScan analyzes an uploaded photo
func (s *Server) handleUploadScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "File is too large. Maximum size is 50MB.", http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file", http.StatusInternalServerError)
		return
	}

	contentType := contentTypeFor(header.Header.Get("Content-Type"), header.Filename)
	scan, err := s.service.AnalyzeImage(r.Context(), SourceUpload, header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error analyzing upload", "filename", header.Filename, "error", err)
		if errors.Is(err, ErrInvalidImage) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, s.tr.T(i18n.AnalysisFailed), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, scan)
}

// historyError maps history lookups to a status code
func historyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrHistoryDisabled):
		writeError(w, "Scan history is disabled", http.StatusNotFound)
	case errors.Is(err, ErrScanNotFound):
		writeError(w, "Scan not found", http.StatusNotFound)
	default:
		slog.Error("Error reading scan history", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleListScans returns the scan history
func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	scans, err := s.service.ListScans()
	if err != nil {
		historyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scans)
}

// handleGetScan returns a single scan
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	scan, err := s.service.GetScan(r.PathValue("id"))
	if err != nil {
		historyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scan)
}

// handleGetScanImage returns the stored JPEG of a scan
func (s *Server) handleGetScanImage(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.GetScanImage(r.PathValue("id"))
	if err != nil {
		historyError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(data)
}

// handleDeleteScan deletes a scan
func (s *Server) handleDeleteScan(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteScan(r.PathValue("id")); err != nil {
		historyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeTransition answers with the machine state, 409 when the event was ignored
func (s *Server) writeTransition(w http.ResponseWriter, accepted bool) {
	code := http.StatusOK
	if !accepted {
		code = http.StatusConflict
	}
	writeJSON(w, code, s.machine.State())
}

func (s *Server) handleCameraState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.machine.State())
}

func (s *Server) handleCameraStart(w http.ResponseWriter, r *http.Request) {
	s.writeTransition(w, s.machine.Start(r.Context()))
}

func (s *Server) handleCameraScan(w http.ResponseWriter, r *http.Request) {
	s.writeTransition(w, s.machine.Scan(r.Context()))
}

func (s *Server) handleCameraReset(w http.ResponseWriter, r *http.Request) {
	s.machine.Reset()
	writeJSON(w, http.StatusOK, s.machine.State())
}
