package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/mockinterview/internal/apperr"
	"github.com/ent0n29/mockinterview/internal/config"
	"github.com/ent0n29/mockinterview/internal/interview"
	"github.com/ent0n29/mockinterview/internal/observability"
	"github.com/ent0n29/mockinterview/internal/reliability"
	"github.com/ent0n29/mockinterview/internal/session"
)

// Interviews is the session state machine as seen by the HTTP layer.
type Interviews interface {
	Start(ctx context.Context, role, level string) (interview.StartResult, error)
	SubmitAnswer(ctx context.Context, sessionID, candidateText string) (string, error)
	End(ctx context.Context, sessionID string) (session.Report, error)
	GetReport(ctx context.Context, sessionID string) (session.Report, error)
	Transcript(ctx context.Context, sessionID string) (session.Session, []session.Turn, error)
}

type Server struct {
	cfg        config.Config
	interviews Interviews
	metrics    *observability.Metrics
	logger     *zap.Logger
	upgrader   websocket.Upgrader
	now        func() time.Time
}

func New(cfg config.Config, interviews Interviews, metrics *observability.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:        cfg,
		interviews: interviews,
		metrics:    metrics,
		logger:     logger.Named("httpapi"),
		now:        func() time.Time { return time.Now().UTC() },
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers may only drive an interview socket from the same origin.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/", s.handleRoot)
	r.Get("/api/health", s.handleRoot)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Route("/api/interview", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Post("/answer", s.handleAnswer)
		r.Post("/end", s.handleEnd)
		r.Get("/report/{id}", s.handleReport)
		r.Get("/{id}/report", s.handleReport)
		r.Get("/session/{id}", s.handleTranscript)
		r.Get("/ws", s.handleInterviewWS)
	})

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "mock interview API is running",
		"status":  "healthy",
		"time":    s.now().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type startRequest struct {
	Role  string `json:"role"`
	Level string `json:"level"`
}

type startResponse struct {
	SessionID   string `json:"sessionId"`
	InterviewID string `json:"interviewId"`
	Question    string `json:"question"`
}

// answerRequest accepts both the current field names and the older
// interviewId/userAnswer pair.
type answerRequest struct {
	SessionID     string `json:"sessionId"`
	InterviewID   string `json:"interviewId"`
	CandidateText string `json:"candidateText"`
	UserAnswer    string `json:"userAnswer"`
}

func (r answerRequest) id() string   { return firstNonEmpty(r.SessionID, r.InterviewID) }
func (r answerRequest) text() string { return firstNonEmpty(r.CandidateText, r.UserAnswer) }

type questionResponse struct {
	Question string `json:"question"`
}

type reportView struct {
	session.Report
	OverallScore float64 `json:"overallScore"`
}

func newReportView(r session.Report) reportView {
	return reportView{Report: r, OverallScore: r.OverallScore()}
}

type endResponse struct {
	Message string     `json:"message"`
	Report  reportView `json:"report"`
}

type reportResponse struct {
	SessionID string     `json:"sessionId"`
	Report    reportView `json:"report"`
}

type transcriptResponse struct {
	Session session.Session `json:"session"`
	History []session.Turn  `json:"history"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, string(apperr.InvalidInput), err.Error(), false)
		return
	}
	if strings.TrimSpace(req.Level) != "" && !s.cfg.LevelAllowed(req.Level) {
		s.respondAppError(w, r, apperr.Newf(apperr.InvalidInput, "level must be one of: %s", strings.Join(s.cfg.AllowedLevels, ", ")))
		return
	}

	res, err := s.interviews.Start(r.Context(), req.Role, req.Level)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, startResponse{
		SessionID:   res.SessionID,
		InterviewID: res.SessionID,
		Question:    res.Question,
	})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, string(apperr.InvalidInput), err.Error(), false)
		return
	}

	question, err := s.interviews.SubmitAnswer(r.Context(), req.id(), req.text())
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, questionResponse{Question: question})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, string(apperr.InvalidInput), err.Error(), false)
		return
	}

	report, err := s.interviews.End(r.Context(), req.id())
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, endResponse{
		Message: "Interview ended and evaluated successfully.",
		Report:  newReportView(report),
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	report, err := s.interviews.GetReport(r.Context(), id)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reportResponse{SessionID: id, Report: newReportView(report)})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sess, history, err := s.interviews.Transcript(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transcriptResponse{Session: sess, History: history})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(started)),
		)
	})
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

var errEmptyBody = errors.New("empty body")

const maxBodyBytes = 1 << 20

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string, retryable bool) {
	respondJSON(w, status, errorResponse{Error: message, Code: code, Retryable: retryable})
}

// respondAppError maps an apperr kind onto a status. Only the caller-safe
// message is written; the cause goes to the log.
func (s *Server) respondAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.String("kind", string(kind)),
			zap.Error(rootCause(err)),
		)
	}
	respondError(w, status, string(kind), apperr.Message(err), reliability.IsRetryable(err))
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.InvalidInput, apperr.AlreadyEnded:
		return http.StatusBadRequest
	case apperr.NotFound, apperr.ReportNotReady:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// rootCause walks past apperr wrappers to the provider or store error.
func rootCause(err error) error {
	for {
		var e *apperr.Error
		if !errors.As(err, &e) || e.Cause() == nil {
			return err
		}
		err = e.Cause()
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
