// Package api exposes the workspace core over a local HTTP surface so
// shells (CLI, desktop webview) can drive it. State reads return the
// store's current copies; mutations go through the same operations the
// embedded callers use.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/loomworks/loom/go/pkg/workspace/feedback"
	"github.com/loomworks/loom/go/pkg/workspace/model"
	"github.com/loomworks/loom/go/pkg/workspace/store"
	"github.com/loomworks/loom/go/pkg/workspace/stream"
	syncctl "github.com/loomworks/loom/go/pkg/workspace/sync"
)

// Server wires the workspace core into HTTP handlers.
type Server struct {
	ws       *store.Workspace
	engine   *stream.Engine
	syncer   *syncctl.Controller
	recorder *feedback.Recorder
	log      *zap.Logger
}

// Options carries the Server collaborators. Gatherer may be nil to skip
// the metrics endpoint.
type Options struct {
	Workspace *store.Workspace
	Engine    *stream.Engine
	Syncer    *syncctl.Controller
	Recorder  *feedback.Recorder
	Logger    *zap.Logger
	Gatherer  prometheus.Gatherer
}

// NewRouter builds the workspace HTTP router.
func NewRouter(opts Options) *mux.Router {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{
		ws:       opts.Workspace,
		engine:   opts.Engine,
		syncer:   opts.Syncer,
		recorder: opts.Recorder,
		log:      opts.Logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	state := r.PathPrefix("/api/state").Subrouter()
	state.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	state.HandleFunc("/config", s.handlePutConfig).Methods(http.MethodPut)
	state.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	state.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	state.HandleFunc("/sessions/{id}/select", s.handleSelectSession).Methods(http.MethodPost)
	state.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	state.HandleFunc("/knowledge-bases", s.handleListKnowledgeBases).Methods(http.MethodGet)
	state.HandleFunc("/knowledge-bases/{id}/toggle", s.handleToggleKnowledgeBase).Methods(http.MethodPost)
	state.HandleFunc("/agents", s.handleListAgents).Methods(http.MethodGet)
	state.HandleFunc("/agents/{id}/select", s.handleSelectAgent).Methods(http.MethodPost)
	state.HandleFunc("/tool-servers", s.handleListToolServers).Methods(http.MethodGet)

	r.HandleFunc("/api/chat/submit", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/api/chat/stop", s.handleStop).Methods(http.MethodPost)
	r.HandleFunc("/api/feedback", s.handleFeedback).Methods(http.MethodPost)
	r.HandleFunc("/api/sync", s.handleSync).Methods(http.MethodPost)

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn("response encoding failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ws.Config().Sanitized())
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var cfg model.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.ws.SetConfig(cfg)
	s.writeJSON(w, http.StatusOK, s.ws.Config().Sanitized())
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"sessions": s.ws.Sessions(),
		"active":   s.ws.ActiveSessionID(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusCreated, s.ws.CreateSession())
}

func (s *Server) handleSelectSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.ws.SelectSession(r.Context(), id)
	if s.ws.ActiveSessionID() != id {
		s.writeError(w, http.StatusNotFound, errSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s.ws.DeleteSession(r.Context(), mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListKnowledgeBases(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"knowledge_bases": s.ws.KnowledgeBases(),
		"selected":        s.ws.SelectedKnowledgeBaseIDs(),
	})
}

func (s *Server) handleToggleKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	s.ws.ToggleKnowledgeBase(mux.Vars(r)["id"])
	s.writeJSON(w, http.StatusOK, map[string]any{
		"selected": s.ws.SelectedKnowledgeBaseIDs(),
	})
}

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	active := ""
	if agent, ok := s.ws.ActiveAgent(); ok {
		active = agent.ID
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"agents": s.ws.Agents(),
		"active": active,
	})
}

func (s *Server) handleSelectAgent(w http.ResponseWriter, r *http.Request) {
	s.ws.SetActiveAgent(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListToolServers(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"tool_servers": s.ws.ToolServers(),
	})
}

type submitRequest struct {
	SessionID     string `json:"session_id"`
	Query         string `json:"query"`
	WebSearch     bool   `json:"web_search"`
	DeepReasoning bool   `json:"deep_reasoning"`
	SQLMode       bool   `json:"sql_mode"`
	DataSourceID  string `json:"data_source_id"`
	Retry         bool   `json:"retry"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.SessionID == "" {
		req.SessionID = s.ws.ActiveSessionID()
	}
	if req.Query == "" && !req.Retry {
		s.writeError(w, http.StatusBadRequest, errEmptyQuery)
		return
	}

	sessionID, messageID, err := s.engine.Submit(req.SessionID, req.Query, stream.Options{
		WebSearch:     req.WebSearch,
		DeepReasoning: req.DeepReasoning,
		SQLMode:       req.SQLMode,
		DataSourceID:  req.DataSourceID,
		RetryQuery:    req.Retry,
	})
	if err != nil {
		// The precondition warning already landed in the session.
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"session_id": sessionID,
			"message_id": messageID,
			"error":      err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"session_id": sessionID,
		"message_id": messageID,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.engine.Stop()
	w.WriteHeader(http.StatusNoContent)
}

type feedbackRequest struct {
	SessionID    string `json:"session_id"`
	MessageIndex int    `json:"message_index"`
	IsPositive   bool   `json:"is_positive"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.SessionID == "" {
		req.SessionID = s.ws.ActiveSessionID()
	}
	if err := s.recorder.Record(req.SessionID, req.MessageIndex, req.IsPositive); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	err := s.syncer.Run(r.Context())
	resp := map[string]string{"state": s.syncer.State().String()}
	if err != nil {
		resp["degraded"] = err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}
