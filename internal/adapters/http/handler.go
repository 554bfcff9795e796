package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PabloGalante/stacks/internal/app/conversation"
	"github.com/PabloGalante/stacks/internal/app/export"
	"github.com/PabloGalante/stacks/internal/app/insights"
	"github.com/PabloGalante/stacks/internal/app/semantic"
	"github.com/PabloGalante/stacks/internal/domain"
	"github.com/PabloGalante/stacks/internal/observability"
)

const maxBodyBytes = 64 << 10

type Server struct {
	svc      *conversation.Service
	insights *insights.Service
	searcher *semantic.Searcher

	auth    *authenticator
	limiter *limiterPool
}

type Options struct {
	// SigningKeys verify X-User-Signature. Empty trusts X-User-ID as is.
	SigningKeys    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewServer(
	svc *conversation.Service,
	insightsSvc *insights.Service,
	searcher *semantic.Searcher,
	opts Options,
) http.Handler {
	s := &Server{
		svc:      svc,
		insights: insightsSvc,
		searcher: searcher,
		auth:     newAuthenticator(opts.SigningKeys),
		limiter:  newLimiterPool(opts.RateLimitRPS, opts.RateLimitBurst, 10*time.Minute),
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /stack-types", s.handleStackTypes)

	// /stacks → create (POST), list (GET)
	mux.Handle("POST /stacks", s.authed(s.limited(s.handleCreateStack)))
	mux.Handle("GET /stacks", s.authed(s.handleListStacks))

	// /stacks/{id} and its sub-resources
	mux.Handle("GET /stacks/{id}", s.authed(s.handleGetStack))
	mux.Handle("GET /stacks/{id}/messages", s.authed(s.handleGetMessages))
	mux.Handle("POST /stacks/{id}/message", s.authed(s.limited(s.handleSendMessage)))
	mux.Handle("PATCH /stacks/{id}/message/{messageId}", s.authed(s.limited(s.handleEditMessage)))
	mux.Handle("POST /stacks/{id}/complete", s.authed(s.handleComplete))
	mux.Handle("GET /stacks/{id}/export", s.authed(s.handleExport))

	mux.Handle("GET /search", s.authed(s.handleSearch))
	mux.Handle("GET /insights", s.authed(s.limited(s.handleInsights)))
	mux.Handle("GET /analytics", s.authed(s.handleAnalytics))

	return chainMiddlewares(mux,
		withMetrics,
		withLogging,
		withRecover,
		withCORS,
		withRequestID,
	)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type createStackRequest struct {
	Title     string `json:"title"`
	StackType string `json:"stackType"`
	Domain    string `json:"domain"`
	Subject   string `json:"subject"`
}

type createStackResponse struct {
	SessionID string          `json:"sessionId"`
	Session   sessionResponse `json:"session"`
	Message   messageResponse `json:"message"`
}

type sessionResponse struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	Title           string     `json:"title"`
	StackType       string     `json:"stackType"`
	Domain          string     `json:"domain"`
	Subject         string     `json:"subject"`
	CurrentQuestion int        `json:"currentQuestion"`
	TotalQuestions  int        `json:"totalQuestions"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	CompletedAt     *time.Time `json:"completedAt"`
}

type messageResponse struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"sessionId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	QuestionNumber *int      `json:"questionNumber"`
	CreatedAt      time.Time `json:"createdAt"`
}

type contentRequest struct {
	Content string `json:"content"`
}

type sendMessageResponse struct {
	Session          sessionResponse `json:"session"`
	UserMessage      messageResponse `json:"userMessage"`
	AssistantMessage messageResponse `json:"assistantMessage"`
}

type editMessageResponse struct {
	Session sessionResponse `json:"session"`
	Message messageResponse `json:"message"`
	Removed int             `json:"removed"`
}

type getStackResponse struct {
	Session sessionResponse `json:"session"`
}

type messagesResponse struct {
	Session  sessionResponse   `json:"session"`
	Messages []messageResponse `json:"messages"`
}

type stackTypeResponse struct {
	Type           string `json:"type"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	TotalQuestions int    `json:"totalQuestions"`
}

type searchMatchResponse struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"sessionId"`
	TextPreview string            `json:"textPreview"`
	Metadata    map[string]string `json:"metadata"`
	CreatedAt   time.Time         `json:"createdAt"`
	Score       float64           `json:"score"`
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStackTypes(w http.ResponseWriter, r *http.Request) {
	flows := s.svc.StackTypes()
	out := make([]stackTypeResponse, 0, len(flows))
	for _, f := range flows {
		out = append(out, stackTypeResponse{
			Type:           string(f.Type),
			Name:           f.Name,
			Description:    f.Description,
			TotalQuestions: f.Total(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"stackTypes": out})
}

func (s *Server) handleCreateStack(w http.ResponseWriter, r *http.Request) {
	var req createStackRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	out, err := s.svc.StartStack(r.Context(), conversation.StartStackInput{
		UserID:    userFromContext(r.Context()),
		Title:     req.Title,
		StackType: req.StackType,
		Domain:    req.Domain,
		Subject:   req.Subject,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createStackResponse{
		SessionID: string(out.Session.ID),
		Session:   s.toSessionResponse(out.Session),
		Message:   toMessageResponse(out.Opening),
	})
}

func (s *Server) handleListStacks(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	sessions, err := s.svc.ListStacks(r.Context(), userFromContext(r.Context()), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, s.toSessionResponse(sess))
	}
	writeJSON(w, http.StatusOK, map[string]any{"stacks": out})
}

func (s *Server) handleGetStack(w http.ResponseWriter, r *http.Request) {
	session, err := s.svc.GetStack(r.Context(), pathSession(r), userFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, getStackResponse{Session: s.toSessionResponse(session)})
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	session, msgs, err := s.svc.GetTimeline(r.Context(), pathSession(r), userFromContext(r.Context()), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{
		Session:  s.toSessionResponse(session),
		Messages: toMessagesResponse(msgs),
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	out, err := s.svc.SendMessage(r.Context(), conversation.SendMessageInput{
		SessionID: pathSession(r),
		UserID:    userFromContext(r.Context()),
		Text:      req.Content,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sendMessageResponse{
		Session:          s.toSessionResponse(out.Session),
		UserMessage:      toMessageResponse(out.UserMessage),
		AssistantMessage: toMessageResponse(out.AssistantMessage),
	})
}

func (s *Server) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	out, err := s.svc.EditMessage(r.Context(), conversation.EditMessageInput{
		SessionID: pathSession(r),
		UserID:    userFromContext(r.Context()),
		MessageID: domain.MessageID(r.PathValue("messageId")),
		Text:      req.Content,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, editMessageResponse{
		Session: s.toSessionResponse(out.Session),
		Message: toMessageResponse(out.Message),
		Removed: out.Removed,
	})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	session, err := s.svc.CompleteStack(r.Context(), pathSession(r), userFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, getStackResponse{Session: s.toSessionResponse(session)})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	session, doc, err := s.svc.ExportStack(r.Context(), pathSession(r), userFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(session)))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := map[string]string{
		"stack_type": q.Get("stackType"),
		"role":       q.Get("role"),
		"domain":     q.Get("domain"),
	}

	matches, err := s.searcher.Search(r.Context(), userFromContext(r.Context()), q.Get("q"), filter, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]searchMatchResponse, 0, len(matches))
	for _, m := range matches {
		out = append(out, searchMatchResponse{
			ID:          m.ID,
			SessionID:   string(m.SessionID),
			TextPreview: m.TextPreview,
			Metadata:    m.Metadata,
			CreatedAt:   m.CreatedAt,
			Score:       m.Score,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": out})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	report, err := s.insights.Insights(r.Context(), userFromContext(r.Context()), r.URL.Query().Get("topic"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := s.insights.Analytics(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ─────────────────────────────────────────────
// Conversation Helpers
// ─────────────────────────────────────────────

func pathSession(r *http.Request) domain.SessionID {
	return domain.SessionID(r.PathValue("id"))
}

func (s *Server) toSessionResponse(sess *domain.Session) sessionResponse {
	total := 0
	for _, f := range s.svc.StackTypes() {
		if f.Type == sess.StackType {
			total = f.Total()
		}
	}
	return sessionResponse{
		ID:              string(sess.ID),
		UserID:          string(sess.UserID),
		Title:           sess.Title,
		StackType:       string(sess.StackType),
		Domain:          string(sess.Domain),
		Subject:         sess.Subject,
		CurrentQuestion: sess.CurrentQuestion,
		TotalQuestions:  total,
		Status:          string(sess.Status),
		CreatedAt:       sess.CreatedAt,
		UpdatedAt:       sess.UpdatedAt,
		CompletedAt:     sess.CompletedAt,
	}
}

func toMessageResponse(m *domain.Message) messageResponse {
	return messageResponse{
		ID:             string(m.ID),
		SessionID:      string(m.SessionID),
		Role:           string(m.Author),
		Content:        m.Text,
		QuestionNumber: m.QuestionNumber,
		CreatedAt:      m.CreatedAt,
	}
}

func toMessagesResponse(msgs []*domain.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		badRequest(w, "invalid JSON body")
		return false
	}
	return true
}

func queryInt(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		badRequest(w, key+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Errorw("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps an error to its HTTP status and the message shown to the
// caller. Internal details are never exposed.
func statusFor(err error) (int, string) {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest, err.Error()
	case domain.KindConflict:
		return http.StatusBadRequest, domain.ErrSessionAlreadyCompleted.Error()
	case domain.KindNotFound:
		if errors.Is(err, domain.ErrMessageNotFound) {
			return http.StatusNotFound, domain.ErrMessageNotFound.Error()
		}
		return http.StatusNotFound, domain.ErrSessionNotFound.Error()
	case domain.KindAccessDenied:
		return http.StatusForbidden, domain.ErrAccessDenied.Error()
	case domain.KindUnauthenticated:
		return http.StatusUnauthorized, domain.ErrUnauthenticated.Error()
	case domain.KindRateLimited:
		return http.StatusTooManyRequests, domain.ErrRateLimited.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}
