// Package server exposes scans over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mrz1836/hdscan/internal/metrics"
	"github.com/mrz1836/hdscan/internal/output"
	"github.com/mrz1836/hdscan/internal/service/scan"
	scanerr "github.com/mrz1836/hdscan/pkg/errors"
)

// Route paths.
const (
	PathScan    = "/api/v1/scan"
	PathHealth  = "/healthz"
	PathMetrics = "/metrics"
)

// maxBodyBytes bounds a scan request body. A 24 word phrase is well under 1 KiB.
const maxBodyBytes = 16 << 10

// Scanner runs one scan request.
type Scanner interface {
	Scan(ctx context.Context, input string) (*scan.Report, error)
}

// Config configures the HTTP server.
type Config struct {
	Listen          string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// ShowPrivateKeys includes WIF keys in responses.
	ShowPrivateKeys bool
}

// ScanRequest is the body of POST /api/v1/scan. An empty key generates a
// new wallet.
type ScanRequest struct {
	Key string `json:"key"`
}

// Server serves scan requests. Each request runs its own discovery; nothing
// is shared between requests except metrics and the sweep guard behind the
// scanner.
type Server struct {
	cfg     Config
	scanner Scanner
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	handler http.Handler
}

// New creates a server. A nil logger discards logs; nil metrics uses
// metrics.Global.
func New(cfg Config, scanner Scanner, log logrus.FieldLogger, m *metrics.Metrics) *Server {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	if m == nil {
		m = metrics.Global
	}

	s := &Server{cfg: cfg, scanner: scanner, log: log, metrics: m}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathScan, s.handleScan)
	mux.HandleFunc("GET "+PathHealth, s.handleHealth)
	mux.Handle("GET "+PathMetrics, m.Handler())
	s.handler = s.withRequestID(mux)

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe listens on cfg.Listen and serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return scanerr.WithDetails(scanerr.WithCause(scanerr.ErrConfigInvalid, err), map[string]string{"server.listen": s.cfg.Listen})
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled, then shuts down gracefully,
// letting in-flight scans finish within ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", ln.Addr().String()).Info("http server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.log.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return err
	}
	<-errCh
	return nil
}

type ctxKey struct{}

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))

		s.metrics.RecordHTTPRequest(routeLabel(r.URL.Path), rec.status)
		s.log.WithFields(logrus.Fields{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(start).String(),
		}).Info("request")
	})
}

// routeLabel keeps the metrics path label bounded.
func routeLabel(path string) string {
	switch path {
	case PathScan, PathHealth, PathMetrics:
		return path
	default:
		return "other"
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, scanerr.WithSuggestion(
			scanerr.WithDetails(scanerr.ErrInvalidInput, map[string]string{"body": "must be a JSON object with a \"key\" string"}),
			`send {"key": "<mnemonic or WIF>"}`,
		))
		return
	}

	rep, err := s.scanner.Scan(r.Context(), strings.TrimSpace(req.Key))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if !s.cfg.ShowPrivateKeys {
		rep = rep.Redacted()
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.WithFields(logrus.Fields{
			"request_id": RequestID(r.Context()),
			"code":       scanerr.Code(err),
		}).Error(err.Error())
	}
	writeJSON(w, status, output.NewErrorOutput(err))
}

// StatusFor maps an error to an HTTP status through its exit code.
func StatusFor(err error) int {
	if errors.Is(err, scanerr.ErrScanCanceled) {
		return http.StatusServiceUnavailable
	}
	switch scanerr.ExitCode(err) {
	case scanerr.ExitInput:
		return http.StatusBadRequest
	case scanerr.ExitNotFound:
		return http.StatusNotFound
	case scanerr.ExitUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
