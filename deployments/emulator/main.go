package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
)

var (
	sockPath = flag.String("sock", "/var/run/device-arbiter/capabilities.sock", "unix socket path to listen on")
)

// Capabilities maps a device unique name or class to the precisions it runs.
type Capabilities map[string][]string

type server struct {
	mu   sync.Mutex
	caps Capabilities
}

// parseCapabilities reads "key=P1,P2;key2=P3". An entry with no precisions
// declares a device that supports none.
func parseCapabilities(env string) Capabilities {
	caps := make(Capabilities)
	for _, entry := range strings.Split(env, ";") {
		key, list, ok := strings.Cut(strings.TrimSpace(entry), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		precisions := []string{}
		for _, p := range strings.Split(list, ",") {
			p = strings.ToUpper(strings.TrimSpace(p))
			if p != "" {
				precisions = append(precisions, p)
			}
		}
		caps[key] = precisions
	}
	return caps
}

func newServer() *server {
	s := &server{caps: parseCapabilities(os.Getenv("EMULATOR_CAPABILITIES"))}
	if len(s.caps) == 0 {
		s.caps["dGPU"] = []string{"FP32", "FP16", "INT8", "BIN"}
		s.caps["iGPU"] = []string{"FP32", "FP16", "BIN"}
		s.caps["VPU"] = []string{"FP32", "FP16"}
		s.caps["VPUX"] = []string{"INT8"}
	}
	return s
}

// lookup prefers an entry for the unique name over one for the class.
func (s *server) lookup(name, class string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.caps[name]; ok && name != "" {
		return p, true
	}
	p, ok := s.caps[class]
	return p, ok
}

func (s *server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		p, ok := s.lookup(q.Get("name"), q.Get("class"))
		if !ok {
			http.Error(w, "unknown device", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(p)
	case http.MethodPost:
		var req struct {
			Key        string   `json:"key"`
			Precisions []string `json:"precisions"`
		}
		if err := readJSON(r.Body, &req); err != nil || req.Key == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req.Precisions == nil {
			req.Precisions = []string{}
		}
		s.mu.Lock()
		s.caps[req.Key] = req.Precisions
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.caps)
}

func readJSON(r io.Reader, v interface{}) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func (s *server) handler() http.Handler {
	h := http.NewServeMux()
	h.HandleFunc("/capabilities", s.handleCapabilities)
	h.HandleFunc("/status", s.handleStatus)
	return h
}

func main() {
	flag.Parse()
	if *sockPath == "" {
		log.Fatal("sock path required")
	}
	s := newServer()
	d := path.Dir(*sockPath)
	if err := os.MkdirAll(d, 0755); err != nil {
		log.Fatalf("mkdir: %v", err)
	}
	_ = os.Remove(*sockPath)
	ln, err := net.Listen("unix", *sockPath)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	log.Printf("listening on unix socket %s", *sockPath)
	if err := http.Serve(ln, s.handler()); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
