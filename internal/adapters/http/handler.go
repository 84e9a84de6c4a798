package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PabloGalante/robovibe-agent/internal/adapters/sse"
	"github.com/PabloGalante/robovibe-agent/internal/app/conversation"
	"github.com/PabloGalante/robovibe-agent/internal/domain"
	"github.com/PabloGalante/robovibe-agent/internal/observability"
)

const maxBodyBytes = 1 << 20

type Server struct {
	svc *conversation.Service
}

func NewServer(svc *conversation.Service) http.Handler {
	s := &Server{svc: svc}

	r := chi.NewRouter()
	r.Use(withRequestID)
	r.Use(withLogging)
	r.Use(middleware.Recoverer)
	r.Use(withCORS)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(observability.Registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/stream-chat", s.handleStreamChat)

		r.Get("/conversations", s.handleListConversations)
		r.Delete("/conversations/{id}", s.handleResetConversation)
		r.Get("/conversation-history/{id}", s.handleHistory)
		r.Get("/plans/{id}", s.handlePlans)

		r.Get("/file-tree", s.handleFileTree)
		r.Get("/mcp-status", s.handleStatus)

		r.Get("/settings", s.handleGetSettings)
		r.Post("/settings", s.handleUpdateSettings)

		r.Post("/create-backup", s.handleCreateBackup)
		r.Get("/backups", s.handleListBackups)
	})

	return r
}

// DTOs

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type chatResponse struct {
	Reply          string `json:"reply"`
	ConversationID string `json:"conversation_id"`
}

type settingsRequest struct {
	MCPURL       *string `json:"mcp_url"`
	Theme        *string `json:"theme"`
	GeminiAPIKey *string `json:"gemini_api_key"`
}

type historyResponse struct {
	Success        bool              `json:"success"`
	ConversationID string            `json:"conversation_id"`
	History        []*domain.Message `json:"history"`
}

// Handlers

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChat(w, r)
	if !ok {
		return
	}

	out, err := s.svc.Chat(r.Context(), domain.ConversationID(req.ConversationID), req.Message)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Reply:          out.Reply,
		ConversationID: string(out.ConversationID),
	})
}

// handleStreamChat relays one turn as server-sent events. Once the headers
// are out every failure travels in-band as an error record.
func (s *Server) handleStreamChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChat(w, r)
	if !ok {
		return
	}

	id, events := s.svc.StreamChat(r.Context(), domain.ConversationID(req.ConversationID), req.Message)
	w.Header().Set("X-Conversation-ID", string(id))
	sse.SetHeaders(w)
	w.WriteHeader(http.StatusOK)

	if err := sse.Pump(r.Context(), w, events); err != nil {
		observability.LoggerFromContext(r.Context()).Info("stream ended early", "conversation_id", id, "error", err)
	}
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	ids, err := s.svc.Conversations(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": ids})
}

func (s *Server) handleResetConversation(w http.ResponseWriter, r *http.Request) {
	id := domain.ConversationID(chi.URLParam(r, "id"))
	if err := s.svc.Reset(r.Context(), id); err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msgs, err := s.svc.History(r.Context(), domain.ConversationID(id), queryLimit(r))
	if err != nil {
		internalError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Success: true, ConversationID: id, History: msgs})
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	recs, err := s.svc.Plans(r.Context(), domain.ConversationID(chi.URLParam(r, "id")), queryLimit(r))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if recs == nil {
		recs = []*domain.PlanRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": recs})
}

func (s *Server) handleFileTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.svc.FileTree(r.Context())
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tree": tree})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"connected": s.svc.Status(r.Context())})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Settings(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": view})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid JSON body"})
		return
	}

	patch := domain.SettingsPatch{
		MCPURL:       req.MCPURL,
		Theme:        req.Theme,
		GeminiAPIKey: req.GeminiAPIKey,
	}
	if err := s.svc.UpdateSettings(r.Context(), patch); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	path, err := s.svc.Backup(r.Context())
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "backup_path": path})
}

func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Backups(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backups": list})
}

// Helpers

func decodeChat(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return req, false
	}
	if strings.TrimSpace(req.Message) == "" {
		badRequest(w, "message is required")
		return req, false
	}
	return req, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var remote *domain.RemoteError
	var abandoned *domain.PlanAbandonedError
	switch {
	case errors.Is(err, domain.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConversationBusy):
		return http.StatusConflict
	case errors.Is(err, conversation.ErrUnavailable),
		errors.Is(err, domain.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrUnreachable),
		errors.As(err, &remote),
		errors.As(err, &abandoned):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg)
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
