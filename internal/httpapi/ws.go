package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/mockinterview/internal/apperr"
	"github.com/ent0n29/mockinterview/internal/protocol"
	"github.com/ent0n29/mockinterview/internal/reliability"
	"github.com/ent0n29/mockinterview/internal/session"
)

const (
	wsWriteTimeout = 10 * time.Second
	// Long enough to cover an evaluation round trip.
	wsReadTimeout = 5 * time.Minute
)

func (s *Server) handleInterviewWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, string(apperr.InvalidInput), "query parameter session_id is required", false)
		return
	}

	sess, history, err := s.interviews.Transcript(r.Context(), sessionID)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.sessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 16)
	outbound := make(chan any, 16)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		s.runConnection(ctx, sess, history, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					s.logger.Debug("ws write failed", zap.String("session_id", sessionID), zap.Error(err))
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.wsMessage("outbound", t)
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			errEvent := protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      string(apperr.InvalidInput),
				Detail:    err.Error(),
			}
			select {
			case outbound <- errEvent:
			default:
				// Keep websocket writes single-threaded; drop if outbound queue is saturated.
				s.wsMessage("dropped", protocol.TypeErrorEvent)
			}
			continue
		}

		if t, ok := messageTypeOf(parsed); ok {
			s.wsMessage("inbound", t)
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	close(inbound)
	<-runDone
	cancel()
	<-writerDone
	s.sessionEvent("ws_disconnected")
}

// runConnection applies client frames to the session one at a time. It
// replays the current question (or the report) on connect.
func (s *Server) runConnection(ctx context.Context, sess session.Session, history []session.Turn, inbound <-chan any, outbound chan<- any) {
	send := func(msg any) bool {
		select {
		case outbound <- msg:
			return true
		case <-ctx.Done():
			return false
		}
	}

	send(protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: sess.ID,
		Code:      "session_state",
		Detail:    string(sess.State),
	})
	switch {
	case sess.State == session.StateEnded && sess.Report != nil:
		send(reportEvent(sess.ID, *sess.Report))
	case len(history) > 0 && history[len(history)-1].Speaker == session.SpeakerInterviewer:
		send(protocol.InterviewerQuestion{
			Type:      protocol.TypeInterviewerQuestion,
			SessionID: sess.ID,
			Text:      history[len(history)-1].Content,
		})
	}

	for msg := range inbound {
		switch m := msg.(type) {
		case protocol.ClientAnswer:
			question, err := s.interviews.SubmitAnswer(ctx, sess.ID, m.Text)
			if err != nil {
				send(errorEvent(sess.ID, err))
				continue
			}
			send(protocol.InterviewerQuestion{
				Type:      protocol.TypeInterviewerQuestion,
				SessionID: sess.ID,
				Text:      question,
			})
		case protocol.ClientControl:
			report, err := s.interviews.End(ctx, sess.ID)
			if err != nil {
				send(errorEvent(sess.ID, err))
				continue
			}
			send(reportEvent(sess.ID, report))
		}
	}
}

func reportEvent(sessionID string, report session.Report) protocol.EvaluationReport {
	return protocol.EvaluationReport{
		Type:         protocol.TypeEvaluationReport,
		SessionID:    sessionID,
		Report:       report,
		OverallScore: report.OverallScore(),
	}
}

func errorEvent(sessionID string, err error) protocol.ErrorEvent {
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      string(apperr.KindOf(err)),
		Retryable: reliability.IsRetryable(err),
		Detail:    apperr.Message(err),
	}
}

func (s *Server) sessionEvent(event string) {
	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues(event).Inc()
	}
}

func (s *Server) wsMessage(direction string, t protocol.MessageType) {
	if s.metrics != nil {
		s.metrics.ObserveWSMessage(direction, string(t))
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientAnswer:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.InterviewerQuestion:
		return m.Type, true
	case protocol.EvaluationReport:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
