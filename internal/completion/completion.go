// Package completion is the single boundary between the interview core and the
// language-model backend. It makes exactly one outbound call per Complete and
// maps every provider failure onto an apperr kind.
package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ent0n29/mockinterview/internal/apperr"
	"github.com/ent0n29/mockinterview/internal/policy"
	"github.com/ent0n29/mockinterview/internal/prompt"
)

// Mode selects what shape of reply the caller expects.
type Mode string

const (
	ModeFreeform   Mode = "freeform"
	ModeStructured Mode = "structured"
)

// Request is what a Backend receives.
type Request struct {
	Messages    []prompt.Message
	Model       string
	Temperature *float64
	JSON        bool
}

// Backend performs one raw completion call. Implementations return
// *StatusError for non-success responses and plain transport errors otherwise.
type Backend interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// Observer receives one observation per Complete call.
type Observer interface {
	ObserveCompletion(mode string, outcome string, elapsed time.Duration)
}

// Config is the explicit backend configuration. There is no package-level client.
type Config struct {
	Provider          string
	BaseURL           string
	APIKey            string
	GeminiAPIKey      string
	Model             string
	Temperature       float64
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

const (
	DefaultBaseURL     = "https://api.cerebras.ai/v1"
	DefaultModel       = "llama3.1-8b"
	DefaultTemperature = 0.7
	DefaultTimeout     = 60 * time.Second
	maxLogPreview      = 200
)

// Gateway wraps a Backend with a deadline, rate limiting and error mapping.
type Gateway struct {
	backend     Backend
	model       string
	temperature float64
	timeout     time.Duration
	limiter     *rate.Limiter
	logger      *zap.Logger
	observer    Observer
}

func NewGateway(backend Backend, cfg Config, logger *zap.Logger, observer Observer) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Gateway{
		backend:     backend,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     timeout,
		limiter:     limiter,
		logger:      logger.Named("completion"),
		observer:    observer,
	}
}

// Backend returns the wrapped backend.
func (g *Gateway) Backend() Backend { return g.backend }

// Complete sends messages to the backend once. In structured mode the returned
// text is guaranteed to be a single JSON object.
func (g *Gateway) Complete(ctx context.Context, messages []prompt.Message, mode Mode) (string, error) {
	if len(messages) == 0 {
		return "", apperr.New(apperr.Internal, "completion request has no messages")
	}
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			g.observe(mode, "rate_limited", started)
			return "", apperr.Wrap(apperr.UpstreamUnavailable, "completion backend is busy, try again later", err)
		}
	}

	req := Request{Messages: messages, Model: g.model, JSON: mode == ModeStructured}
	if mode == ModeFreeform {
		t := g.temperature
		req.Temperature = &t
	}

	raw, err := g.backend.Complete(ctx, req)
	if err != nil {
		mapped := classify(err)
		g.observe(mode, string(apperr.KindOf(mapped)), started)
		g.logger.Warn("completion failed",
			zap.String("backend", g.backend.Name()),
			zap.String("mode", string(mode)),
			zap.String("kind", string(apperr.KindOf(mapped))),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		return "", mapped
	}

	text := strings.TrimSpace(raw)
	if text == "" {
		g.observe(mode, string(apperr.MalformedResponse), started)
		return "", apperr.New(apperr.MalformedResponse, "completion backend returned an empty reply")
	}

	if mode == ModeStructured {
		if !isJSONObject(text) {
			repaired, ok := ExtractObject(text)
			if !ok {
				g.observe(mode, string(apperr.MalformedResponse), started)
				g.logger.Warn("structured completion is not a JSON object",
					zap.String("backend", g.backend.Name()),
					zap.String("response_preview", policy.PreviewForLog(text, maxLogPreview)),
				)
				return "", apperr.New(apperr.MalformedResponse, "completion backend did not return a JSON object")
			}
			g.logger.Debug("repaired structured completion", zap.Int("original_length", len(text)), zap.Int("repaired_length", len(repaired)))
			text = repaired
		}
	}

	g.observe(mode, "ok", started)
	g.logger.Debug("completion ok",
		zap.String("backend", g.backend.Name()),
		zap.String("mode", string(mode)),
		zap.Int("messages", len(messages)),
		zap.Duration("elapsed", time.Since(started)),
		zap.String("response_preview", policy.PreviewForLog(text, maxLogPreview)),
	)
	return text, nil
}

func (g *Gateway) observe(mode Mode, outcome string, started time.Time) {
	if g.observer == nil {
		return
	}
	g.observer.ObserveCompletion(string(mode), outcome, time.Since(started))
}

// classify maps backend errors onto caller-facing kinds. Provider text stays
// in the wrapped cause only.
func classify(err error) error {
	var typed *apperr.Error
	if errors.As(err, &typed) {
		return typed
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return apperr.Wrap(apperr.UpstreamRejected, "completion backend rejected the request", err)
	}
	if errors.Is(err, ErrEmptyResponse) || errors.Is(err, ErrUndecodableResponse) {
		return apperr.Wrap(apperr.MalformedResponse, "completion backend returned an unreadable reply", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.UpstreamUnavailable, "completion backend timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return apperr.Wrap(apperr.UpstreamUnavailable, "completion request was cancelled", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperr.Wrap(apperr.UpstreamUnavailable, "completion backend is unreachable", err)
	}
	return apperr.Wrap(apperr.UpstreamUnavailable, "completion backend is unavailable", err)
}

func isJSONObject(text string) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal([]byte(text), &obj) == nil
}
