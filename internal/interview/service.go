// Package interview is the session state machine: it owns the lifecycle of a
// mock interview from the first question to the attached evaluation report.
package interview

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/mockinterview/internal/apperr"
	"github.com/ent0n29/mockinterview/internal/completion"
	"github.com/ent0n29/mockinterview/internal/evaluation"
	"github.com/ent0n29/mockinterview/internal/policy"
	"github.com/ent0n29/mockinterview/internal/prompt"
	"github.com/ent0n29/mockinterview/internal/session"
	"github.com/ent0n29/mockinterview/internal/store"
)

// Completer produces the next interviewer question.
type Completer interface {
	Complete(ctx context.Context, messages []prompt.Message, mode completion.Mode) (string, error)
}

// Evaluator turns a full history into a validated report.
type Evaluator interface {
	Evaluate(ctx context.Context, history []session.Turn) (evaluation.Result, error)
}

// Observer receives lifecycle events (started, answered, ended and their
// _failed variants) plus the elapsed time of each start, answer and end call.
type Observer interface {
	ObserveSessionEvent(event string)
	ObserveOperation(op string, elapsed time.Duration, failed bool)
}

type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the session id source.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithObserver attaches lifecycle metrics.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.observer = o
	}
}

type Service struct {
	store     store.Store
	completer Completer
	evaluator Evaluator
	locks     *session.Locker
	logger    *zap.Logger
	observer  Observer
	now       func() time.Time
	newID     func() string
}

// StartResult is returned by Start.
type StartResult struct {
	SessionID string
	Question  string
}

func New(st store.Store, completer Completer, evaluator Evaluator, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:     st,
		completer: completer,
		evaluator: evaluator,
		locks:     session.NewLocker(),
		logger:    logger.Named("interview"),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates a session and asks the first question. A failed completion
// leaves the session in Created; callers retry by starting a new session.
func (s *Service) Start(ctx context.Context, role, level string) (_ StartResult, err error) {
	role = strings.TrimSpace(role)
	level = strings.TrimSpace(level)
	if role == "" || level == "" {
		return StartResult{}, apperr.New(apperr.InvalidInput, "role and level are required")
	}
	defer s.timed("start", time.Now(), &err)

	sess := session.Session{
		ID:        s.newID(),
		Role:      role,
		Level:     level,
		State:     session.StateCreated,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return StartResult{}, apperr.Wrap(apperr.Internal, "failed to create session", err)
	}

	unlock, err := s.lock(ctx, sess.ID)
	if err != nil {
		return StartResult{}, err
	}
	defer unlock()

	messages := prompt.BuildMessageList(prompt.BuildInterviewerPrompt(role, level), nil, prompt.StartCue)
	question, err := s.completer.Complete(ctx, messages, completion.ModeFreeform)
	if err != nil {
		s.event("start_failed")
		s.logger.Warn("first question failed",
			zap.String("session_id", sess.ID),
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err),
		)
		return StartResult{}, apperr.Wrap(apperr.GenerationFailed, "failed to generate interview question", err)
	}
	question = strings.TrimSpace(question)

	if err := s.store.AppendTurns(ctx, sess.ID, session.StateInProgress, session.Turn{
		Speaker:   session.SpeakerInterviewer,
		Content:   question,
		CreatedAt: s.now(),
	}); err != nil {
		return StartResult{}, apperr.Wrap(apperr.Internal, "failed to record question", err)
	}

	s.event("started")
	s.logger.Info("interview started",
		zap.String("session_id", sess.ID),
		zap.String("role", role),
		zap.String("level", level),
	)
	return StartResult{SessionID: sess.ID, Question: question}, nil
}

// SubmitAnswer records the candidate's answer together with the next question.
// Both turns are committed only when the completion succeeds.
func (s *Service) SubmitAnswer(ctx context.Context, sessionID, candidateText string) (_ string, err error) {
	sessionID = strings.TrimSpace(sessionID)
	candidateText = strings.TrimSpace(candidateText)
	if sessionID == "" || candidateText == "" {
		return "", apperr.New(apperr.InvalidInput, "session id and answer are required")
	}
	defer s.timed("answer", time.Now(), &err)

	unlock, err := s.lock(ctx, sessionID)
	if err != nil {
		return "", err
	}
	defer unlock()

	sess, history, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return "", err
	}

	answeredAt := s.now()
	messages := prompt.BuildMessageList(prompt.BuildInterviewerPrompt(sess.Role, sess.Level), history, candidateText)
	question, err := s.completer.Complete(ctx, messages, completion.ModeFreeform)
	if err != nil {
		s.event("answer_failed")
		s.logger.Warn("next question failed",
			zap.String("session_id", sessionID),
			zap.Int("turns", len(history)),
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err),
		)
		return "", apperr.Wrap(apperr.GenerationFailed, "failed to generate next question", err)
	}
	question = strings.TrimSpace(question)

	if err := s.store.AppendTurns(ctx, sessionID, session.StateInProgress,
		session.Turn{Speaker: session.SpeakerCandidate, Content: candidateText, CreatedAt: answeredAt},
		session.Turn{Speaker: session.SpeakerInterviewer, Content: question, CreatedAt: s.now()},
	); err != nil {
		return "", apperr.Wrap(apperr.Internal, "failed to record answer", err)
	}

	s.event("answered")
	s.logger.Debug("answer recorded",
		zap.String("session_id", sessionID),
		zap.Int("turns", len(history)+2),
		zap.String("answer_preview", policy.PreviewForLog(candidateText, 120)),
	)
	return question, nil
}

// End evaluates the interview and attaches the report. On failure the session
// stays InProgress and End may be called again.
func (s *Service) End(ctx context.Context, sessionID string) (_ session.Report, err error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return session.Report{}, apperr.New(apperr.InvalidInput, "session id is required")
	}
	defer s.timed("end", time.Now(), &err)

	unlock, err := s.lock(ctx, sessionID)
	if err != nil {
		return session.Report{}, err
	}
	defer unlock()

	_, history, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return session.Report{}, err
	}

	result, err := s.evaluator.Evaluate(ctx, history)
	if err != nil {
		s.event("end_failed")
		s.logger.Warn("evaluation failed",
			zap.String("session_id", sessionID),
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err),
		)
		var typed *apperr.Error
		if errors.As(err, &typed) {
			return session.Report{}, err
		}
		return session.Report{}, apperr.Wrap(apperr.GenerationFailed, "failed to evaluate interview", err)
	}

	if err := s.store.AttachReport(ctx, sessionID, result.Report, s.now()); err != nil {
		return session.Report{}, apperr.Wrap(apperr.Internal, "failed to store report", err)
	}

	s.event("ended")
	s.logger.Info("interview ended",
		zap.String("session_id", sessionID),
		zap.Int("turns", len(history)),
		zap.Int("corrections", len(result.Corrections)),
		zap.Float64("overall_score", result.Report.OverallScore()),
	)
	return result.Report.Clone(), nil
}

// GetReport returns the stored report of an ended session.
func (s *Service) GetReport(ctx context.Context, sessionID string) (session.Report, error) {
	sess, err := s.load(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		return session.Report{}, err
	}
	if sess.State != session.StateEnded || sess.Report == nil {
		return session.Report{}, apperr.New(apperr.ReportNotReady, "report is not ready")
	}
	return sess.Report.Clone(), nil
}

// Transcript returns the session and its ordered history.
func (s *Service) Transcript(ctx context.Context, sessionID string) (session.Session, []session.Turn, error) {
	sessionID = strings.TrimSpace(sessionID)
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return session.Session{}, nil, err
	}
	history, err := s.store.History(ctx, sessionID)
	if err != nil {
		return session.Session{}, nil, storeErr(err, "failed to load history")
	}
	return sess, history, nil
}

func (s *Service) lock(ctx context.Context, sessionID string) (func(), error) {
	unlock, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "request cancelled while waiting for session", err)
	}
	return unlock, nil
}

// activeSession loads a session that can accept turns, with its history.
func (s *Service) activeSession(ctx context.Context, sessionID string) (session.Session, []session.Turn, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return session.Session{}, nil, err
	}
	switch sess.State {
	case session.StateEnded:
		return session.Session{}, nil, apperr.New(apperr.AlreadyEnded, "interview has already ended")
	case session.StateCreated:
		return session.Session{}, nil, apperr.New(apperr.InvalidInput, "interview has not started")
	}
	history, err := s.store.History(ctx, sessionID)
	if err != nil {
		return session.Session{}, nil, storeErr(err, "failed to load history")
	}
	return sess, history, nil
}

func (s *Service) load(ctx context.Context, sessionID string) (session.Session, error) {
	if sessionID == "" {
		return session.Session{}, apperr.New(apperr.NotFound, "interview not found")
	}
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return session.Session{}, storeErr(err, "failed to load session")
	}
	return sess, nil
}

func storeErr(err error, msg string) error {
	if errors.Is(err, session.ErrNotFound) {
		return apperr.Wrap(apperr.NotFound, "interview not found", err)
	}
	return apperr.Wrap(apperr.Internal, msg, err)
}

func (s *Service) event(name string) {
	if s.observer != nil {
		s.observer.ObserveSessionEvent(name)
	}
}

// timed reports one operation call. Errors the caller caused, such as an
// unknown or already ended session, are not counted as failures.
func (s *Service) timed(op string, started time.Time, errp *error) {
	if s.observer == nil {
		return
	}
	failed := false
	if err := *errp; err != nil {
		switch apperr.KindOf(err) {
		case apperr.InvalidInput, apperr.NotFound, apperr.AlreadyEnded:
		default:
			failed = true
		}
	}
	s.observer.ObserveOperation(op, time.Since(started), failed)
}
