// ABOUTME: Thin chi-based HTTP surface over the task queue, agent registry, board, and node store.
// ABOUTME: One chi.Router with a middleware stack and nested route groups, all handlers returning JSON.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/voidlux/voidlux/internal/agentreg"
	"github.com/voidlux/voidlux/internal/board"
	"github.com/voidlux/voidlux/internal/lamport"
	"github.com/voidlux/voidlux/internal/store"
	"github.com/voidlux/voidlux/internal/swarm"
	"github.com/voidlux/voidlux/internal/task"
)

// Server is the HTTP surface component, mounted on
// every node so operators and tooling can inspect and drive the swarm
// without speaking the gossip wire protocol directly.
type Server struct {
	router   chi.Router
	queue    *task.Queue
	agents   *agentreg.Registry
	board    *board.Board
	store    *store.Store
	clock    *lamport.Clock
	selfNode string
}

// New builds the HTTP surface bound to the node's local components.
func New(q *task.Queue, agents *agentreg.Registry, b *board.Board, st *store.Store, clock *lamport.Clock, selfNode string) *Server {
	s := &Server{queue: q, agents: agents, board: b, store: st, clock: clock, selfNode: selfNode}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", s.handleListTasks)
		r.Post("/", s.handleCreateTask)
		r.Route("/{taskID}", func(r chi.Router) {
			r.Get("/", s.handleGetTask)
			r.Post("/claim", s.handleClaimTask)
			r.Post("/cancel", s.handleCancelTask)
		})
	})

	r.Route("/agents", func(r chi.Router) {
		r.Get("/", s.handleListAgents)
		r.Post("/", s.handleRegisterAgent)
	})

	r.Route("/nodes", func(r chi.Router) {
		r.Get("/", s.handleListNodes)
	})

	r.Route("/board", func(r chi.Router) {
		r.Get("/", s.handleListBoard)
		r.Post("/", s.handlePostBoard)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "node_id": s.selfNode})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"node_id":      s.selfNode,
		"lamport_time": s.clock.Peek(),
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	var (
		tasks []swarm.Task
		err   error
	)
	if status != "" {
		tasks, err = s.queue.ListByStatus(swarm.TaskStatus(status))
	} else {
		tasks, err = s.queue.List()
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

type createTaskRequest struct {
	Title               string   `json:"title"`
	Description          string   `json:"description"`
	ProjectPath          string   `json:"project_path"`
	Context              string   `json:"context"`
	WorkInstructions     string   `json:"work_instructions"`
	AcceptanceCriteria   string   `json:"acceptance_criteria"`
	RequiredCapabilities []string `json:"required_capabilities"`
	Complexity           string   `json:"complexity"`
	TestCommand          string   `json:"test_command"`
	ParentID             *string  `json:"parent_id"`
	DependsOn            []string `json:"depends_on"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	now := time.Now().UTC()
	t := swarm.Task{
		ID:                   uuid.NewString(),
		Title:                req.Title,
		Description:          req.Description,
		ProjectPath:          req.ProjectPath,
		Context:              req.Context,
		WorkInstructions:     req.WorkInstructions,
		AcceptanceCriteria:   req.AcceptanceCriteria,
		RequiredCapabilities: req.RequiredCapabilities,
		Complexity:           swarm.Complexity(req.Complexity),
		TestCommand:          req.TestCommand,
		ParentID:             req.ParentID,
		DependsOn:            req.DependsOn,
		CreatedAt:            now,
		UpdatedAt:            now,
		LamportTS:            s.clock.Tick(),
	}
	if err := s.queue.Submit(task.CreateTask{Task: t}); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	t, err := s.queue.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type claimRequest struct {
	AgentID string `json:"agent_id"`
}

func (s *Server) handleClaimTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	claim := task.ClaimTask{
		TaskID:    id,
		AgentID:   req.AgentID,
		NodeID:    s.selfNode,
		LamportTS: s.clock.Tick(),
	}
	if err := s.queue.Submit(claim); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "claimed"})
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	if err := s.queue.Submit(task.CancelTask{TaskID: id}); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.agents.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

type registerAgentRequest struct {
	Name          string   `json:"name"`
	Tool          string   `json:"tool"`
	Model         string   `json:"model"`
	ProjectPath   string   `json:"project_path"`
	Capabilities  []string `json:"capabilities"`
	MaxConcurrent int      `json:"max_concurrent_tasks"`
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a, err := s.agents.Register(req.Name, req.Tool, req.Model, req.ProjectPath, req.Capabilities, req.MaxConcurrent)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.store.ListNodes()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleListBoard(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	msgs, err := s.board.List(channel)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

type postBoardRequest struct {
	Channel string `json:"channel"`
	AgentID string `json:"agent_id"`
	TaskID  string `json:"task_id"`
	Body    string `json:"body"`
}

func (s *Server) handlePostBoard(w http.ResponseWriter, r *http.Request) {
	var req postBoardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	m, err := s.board.Post(req.Channel, req.AgentID, req.TaskID, req.Body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}
