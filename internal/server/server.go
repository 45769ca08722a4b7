// Package server handles the HTTP API for the artwork store.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"

	internal_raft "github.com/ASHISH26940/artstore/internal/raft"
	"github.com/ASHISH26940/artstore/internal/service"
)

// RPCPath is the single route all save/load actions are posted to.
const RPCPath = "/r"

// NotFoundMessage is the body of a load for an unknown id.
const NotFoundMessage = "sorry that id does not exist"

// RecordService is what the server needs from the service layer.
// By depending on an interface, we can easily fake it in tests.
type RecordService interface {
	Save(ctx context.Context, version int32, data string) (int64, error)
	Load(ctx context.Context, id int64) (string, error)
}

// Cluster lets new nodes join a replicated deployment.
type Cluster interface {
	Join(nodeID, addr string) error
}

// Server is the HTTP server for the artwork store.
type Server struct {
	service RecordService
	cluster Cluster
	page    *template.Template
	logger  hclog.Logger
	router  *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithCluster enables the /join route.
func WithCluster(c Cluster) Option {
	return func(s *Server) { s.cluster = c }
}

// WithPage replaces the built-in page template.
func WithPage(t *template.Template) Option {
	return func(s *Server) { s.page = t }
}

// WithLogger sets the logger requests are logged to.
func WithLogger(l hclog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a new Server instance.
func New(svc RecordService, opts ...Option) *Server {
	s := &Server{
		service: svc,
		logger:  hclog.NewNullLogger(),
		router:  mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.page == nil {
		s.page = template.Must(LoadPage(context.Background(), ""))
	}
	s.registerRoutes()
	return s
}

// ServeHTTP makes our Server a standard http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// registerRoutes sets up the HTTP routing for the server.
func (s *Server) registerRoutes() {
	s.router.Use(s.withRequestLogging)
	s.router.HandleFunc("/", s.handlePage).Methods(http.MethodGet, http.MethodHead)
	s.router.HandleFunc(RPCPath, s.handleRPC).Methods(http.MethodPost)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.cluster != nil {
		s.router.HandleFunc("/join", s.handleJoin).Methods(http.MethodPost)
	}
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.page.Execute(&buf, pageData{Title: "Artboard", RPCPath: RPCPath}); err != nil {
		loggerFrom(r).Error("render page", "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := w.Write(buf.Bytes())
	logError(r, err)
}

// handleRPC is the dispatcher for every action posted to /r.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	switch action := r.FormValue("action"); action {
	case "save":
		s.handleSave(w, r)
	case "load":
		s.handleLoad(w, r)
	default:
		loggerFrom(r).Debug("unknown action", "action", action)
		w.WriteHeader(http.StatusConflict)
	}
}

// handleSave stores the posted data and answers with its new id.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	version, err := service.ParseVersion(r.FormValue("version"))
	if err != nil {
		s.conflict(w, r, "save", err)
		return
	}
	id, err := s.service.Save(r.Context(), version, r.FormValue("data"))
	if err != nil {
		s.conflict(w, r, "save", err)
		return
	}
	loggerFrom(r).Debug("saved artwork", "id", id, "version", version)
	logError(r, writeJSON(w, saveResponse{ID: id}, http.StatusOK))
}

// handleLoad answers with the stored payload exactly as it was saved.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	id, err := service.ParseID(r.FormValue("id"))
	if err != nil {
		s.conflict(w, r, "load", err)
		return
	}
	data, err := s.service.Load(r.Context(), id)
	var notFound *service.NotFoundError
	if errors.As(err, &notFound) {
		loggerFrom(r).Debug("artwork not found", "id", id)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusConflict)
		_, err := w.Write([]byte(NotFoundMessage))
		logError(r, err)
		return
	}
	if err != nil {
		s.conflict(w, r, "load", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write([]byte(data))
	logError(r, err)
}

// conflict answers a failed action with a bare 409.
func (s *Server) conflict(w http.ResponseWriter, r *http.Request, action string, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		loggerFrom(r).Debug("rejected request", "action", action, "error", err)
	} else {
		loggerFrom(r).Error("action failed", "action", action, "error", err)
	}
	w.WriteHeader(http.StatusConflict)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	logError(r, writeJSON(w, map[string]bool{"ok": true}, http.StatusOK))
}

// handleJoin adds a new node to the Raft cluster.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var joinReq struct {
		NodeID string `json:"node_id"`
		Addr   string `json:"addr"`
	}
	if err := json.NewDecoder(r.Body).Decode(&joinReq); err != nil {
		http.Error(w, "Invalid join request body", http.StatusBadRequest)
		return
	}
	if joinReq.NodeID == "" || joinReq.Addr == "" {
		http.Error(w, "Missing node_id or addr in join request", http.StatusBadRequest)
		return
	}

	logger := loggerFrom(r)
	logger.Info("received join request", "node_id", joinReq.NodeID, "addr", joinReq.Addr)

	err := s.cluster.Join(joinReq.NodeID, joinReq.Addr)
	if errors.Is(err, internal_raft.ErrNotLeader) {
		http.Error(w, "Can only join a cluster via the leader node", http.StatusForbidden)
		return
	}
	if err != nil {
		logger.Error("failed to add voter", "node_id", joinReq.NodeID, "error", err)
		http.Error(w, "Failed to add node to cluster: "+err.Error(), http.StatusInternalServerError)
		return
	}

	logger.Info("added node to the cluster", "node_id", joinReq.NodeID)
	w.WriteHeader(http.StatusOK)
}

type saveResponse struct {
	ID int64 `json:"id"`
}

// writeJSON writes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, v any, status int) error {
	body, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(body)
	return err
}

// logError logs all non-nil errors
func logError(r *http.Request, err error) {
	if err != nil {
		loggerFrom(r).Warn("write response", "error", err)
	}
}
