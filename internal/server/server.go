package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	spec "github.com/linskybing/device-arbiter/api/config/v1"
	"github.com/linskybing/device-arbiter/internal/scheduler"
)

// Server exposes a Scheduler over HTTP on a unix socket.
type Server struct {
	scheduler *scheduler.Scheduler
	gatherer  prometheus.Gatherer

	poolMu sync.RWMutex
	pool   []scheduler.DeviceDescriptor
}

// New returns a Server arbitrating over pool. gatherer may be nil, in which
// case /metrics is not served.
func New(s *scheduler.Scheduler, pool []scheduler.DeviceDescriptor, gatherer prometheus.Gatherer) *Server {
	return &Server{scheduler: s, pool: pool, gatherer: gatherer}
}

// SetPool replaces the default device pool. Existing reservations are kept.
func (s *Server) SetPool(pool []scheduler.DeviceDescriptor) {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	s.pool = pool
}

// Pool returns the default device pool.
func (s *Server) Pool() []scheduler.DeviceDescriptor {
	s.poolMu.RLock()
	defer s.poolMu.RUnlock()
	return s.pool
}

// Handler returns the HTTP handler serving the arbiter API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/select", s.selectHandler)
	mux.HandleFunc("/release", s.releaseHandler)
	mux.HandleFunc("/status", s.statusHandler)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Serve listens on socketPath until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, socketPath string) error {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return fmt.Errorf("error creating socket directory: %w", err)
	}
	_ = os.Remove(socketPath)
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("error listening on %s: %w", socketPath, err)
	}
	defer os.Remove(socketPath)

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(l)
	}()
	klog.InfoS("Arbiter listening", "socket", socketPath)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) selectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req SelectRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, statusForDecodeError(err), err.Error())
		return
	}
	precision, err := spec.ParsePrecision(req.Precision)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	devices := req.Devices
	if len(devices) == 0 {
		devices = s.Pool()
	}

	requestID := uuid.NewString()
	d, err := s.scheduler.Select(r.Context(), devices, precision, req.Importance)
	if err != nil {
		klog.InfoS("select failed", "request", requestID, "precision", precision, "importance", req.Importance, "err", err)
		writeError(w, statusForError(err), err.Error())
		return
	}
	klog.InfoS("select", "request", requestID, "precision", precision, "importance", req.Importance, "device", d.UniqueName)
	writeJSON(w, http.StatusOK, SelectResponse{RequestID: requestID, Device: d})
}

func (s *Server) releaseHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req ReleaseRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, statusForDecodeError(err), err.Error())
		return
	}
	if req.UniqueName == "" {
		writeError(w, http.StatusBadRequest, "uniqueName is required")
		return
	}
	s.scheduler.Release(req.Importance, req.UniqueName)
	klog.InfoS("release", "importance", req.Importance, "device", req.UniqueName)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		FallbackPolicy: s.scheduler.FallbackPolicy(),
		Devices:        s.Pool(),
		Reservations:   s.scheduler.Snapshot(),
	})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, scheduler.ErrInvalidPool):
		return http.StatusBadRequest
	case errors.Is(err, scheduler.ErrNoCapableDevice):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrDevicesExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

// MaxRequestBytes bounds the size of a request body.
var MaxRequestBytes int64 = 1 << 20

func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func statusForDecodeError(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
