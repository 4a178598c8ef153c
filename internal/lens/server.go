package lens

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/zombor/yen-lens/internal/capture"
	"github.com/zombor/yen-lens/internal/i18n"
)

const shutdownTimeout = 10 * time.Second

// Server handles HTTP requests for conversions, scans and the camera
type Server struct {
	service   *Service
	machine   *capture.Machine
	tr        *i18n.Translator
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a Server. machine may be nil when no camera is configured.
func NewServer(service *Service, machine *capture.Machine, tr *i18n.Translator, basicAuth BasicAuth) *Server {
	return NewServerWithMux(service, machine, tr, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a Server with a custom mux for testing
func NewServerWithMux(service *Service, machine *capture.Machine, tr *i18n.Translator, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	if tr == nil {
		tr = i18n.New("")
	}
	s := &Server{
		service:   service,
		machine:   machine,
		tr:        tr,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Yen Lens"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// requireCamera answers 404 when no camera is configured
func (s *Server) requireCamera(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.machine == nil {
			writeError(w, "Camera not configured", http.StatusNotFound)
			return
		}
		next(w, r)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all routes, most specific first
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/convert", s.requireAuth(s.handleConvert))

	s.mux.HandleFunc("GET /api/scans/{id}/image", s.requireAuth(s.handleGetScanImage))
	s.mux.HandleFunc("GET /api/scans/{id}", s.requireAuth(s.handleGetScan))
	s.mux.HandleFunc("DELETE /api/scans/{id}", s.requireAuth(s.handleDeleteScan))
	s.mux.HandleFunc("GET /api/scans", s.requireAuth(s.handleListScans))
	s.mux.HandleFunc("POST /api/scans", s.requireAuth(s.handleUploadScan))

	s.mux.HandleFunc("GET /api/camera", s.requireAuth(s.requireCamera(s.handleCameraState)))
	s.mux.HandleFunc("POST /api/camera/start", s.requireAuth(s.requireCamera(s.handleCameraStart)))
	s.mux.HandleFunc("POST /api/camera/scan", s.requireAuth(s.requireCamera(s.handleCameraScan)))
	s.mux.HandleFunc("POST /api/camera/reset", s.requireAuth(s.requireCamera(s.handleCameraReset)))

	s.mux.HandleFunc("GET /index.html", s.requireAuth(s.handleIndex))
	s.mux.HandleFunc("GET /{$}", s.requireAuth(s.handleIndex))
}

// ServeHTTP applies CORS to every request, answering preflights directly
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.mux.ServeHTTP(w, r)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
