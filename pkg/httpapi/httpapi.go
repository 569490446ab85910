// Package httpapi exposes the six query-surface methods of a built
// *program.Program as a mux-routed debug HTTP API, the replacement for
// the dropped grpc/protobuf query surface.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"k8s.io/klog/v2"

	"github.com/Azure/netreach/pkg/program"
)

const (
	EdgesPath           = "/edges"
	ReachIsolatePath    = "/reach-isolate"
	CrosscheckPath      = "/crosscheck"
	SystemIsolationPath = "/system-isolation"
	ShadowPath          = "/shadow"
	ConflictPath        = "/conflict"
)

// Server serves HTTP handlers over a single built Program, one request
// at a time, since Program is not safe for concurrent use. It does not
// rebuild the program per request; callers that want a fresh descriptor
// snapshot reflected must construct a new Server.
type Server struct {
	listeningAddress string
	router           *mux.Router
	program          *program.Program
}

// New returns a Server that will listen on addr once started.
func New(addr string, p *program.Program) *Server {
	s := &Server{listeningAddress: addr, program: p}
	s.router = mux.NewRouter()
	var mu sync.Mutex
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			defer mu.Unlock()
			next.ServeHTTP(w, r)
		})
	})
	s.router.HandleFunc(EdgesPath, s.edgesHandler).Methods(http.MethodGet)
	s.router.HandleFunc(ReachIsolatePath, s.reachIsolateHandler).Methods(http.MethodGet)
	s.router.HandleFunc(CrosscheckPath, s.crosscheckHandler).Methods(http.MethodGet)
	s.router.HandleFunc(SystemIsolationPath, s.systemIsolationHandler).Methods(http.MethodGet)
	s.router.HandleFunc(ShadowPath, s.shadowHandler).Methods(http.MethodGet)
	s.router.HandleFunc(ConflictPath, s.conflictHandler).Methods(http.MethodGet)
	return s
}

// ListenAndServe blocks serving the registered routes.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Handler: s.router,
		Addr:    s.listeningAddress,
	}
	klog.Infof("Starting reach debug HTTP API on %s...", s.listeningAddress)
	return srv.ListenAndServe()
}

func (s *Server) edgesHandler(w http.ResponseWriter, r *http.Request) {
	pairs, err := s.program.AllEdges(r.Context())
	writeJSON(w, pairs, err)
}

func (s *Server) reachIsolateHandler(w http.ResponseWriter, r *http.Request) {
	reachable, isolated, err := s.program.AllReachIsolate(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, struct {
		Reachable []int `json:"reachable"`
		Isolated  []int `json:"isolated"`
	}{reachable, isolated}, nil)
}

func (s *Server) crosscheckHandler(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")
	if label == "" {
		http.Error(w, "query parameter \"label\" is required", http.StatusBadRequest)
		return
	}
	violating, err := s.program.UserCrosscheck(r.Context(), label)
	writeJSON(w, violating, err)
}

func (s *Server) systemIsolationHandler(w http.ResponseWriter, r *http.Request) {
	podParam := r.URL.Query().Get("pod")
	podIdx, err := strconv.Atoi(podParam)
	if err != nil {
		http.Error(w, fmt.Sprintf("query parameter \"pod\" must be an integer: %v", err), http.StatusBadRequest)
		return
	}
	isolated, err := s.program.SystemIsolation(r.Context(), podIdx)
	writeJSON(w, isolated, err)
}

func (s *Server) shadowHandler(w http.ResponseWriter, r *http.Request) {
	pairs, err := s.program.PolicyShadow(r.Context())
	writeJSON(w, pairs, err)
}

func (s *Server) conflictHandler(w http.ResponseWriter, r *http.Request) {
	pairs, err := s.program.PolicyConflict(r.Context())
	writeJSON(w, pairs, err)
}

func writeJSON(w http.ResponseWriter, v interface{}, err error) {
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		klog.Errorf("reach: failed to write response: %v", encErr)
	}
}
