// Package evaluation turns a finished interview into a validated Report.
//
// The model's reply is never trusted as-is: Parse validates it against the
// report schema and returns either a normalized Report or a MalformedResponse
// error. Scores that are numeric but out of range or fractional are repaired
// and recorded as corrections; anything structurally wrong is rejected.
package evaluation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/mockinterview/internal/completion"
	"github.com/ent0n29/mockinterview/internal/policy"
	"github.com/ent0n29/mockinterview/internal/prompt"
	"github.com/ent0n29/mockinterview/internal/session"
)

// Completer is the part of the completion gateway the evaluator needs.
type Completer interface {
	Complete(ctx context.Context, messages []prompt.Message, mode completion.Mode) (string, error)
}

// CorrectionObserver counts field repairs.
type CorrectionObserver interface {
	ObserveCorrection(field string)
}

type Evaluator struct {
	completer Completer
	logger    *zap.Logger
	observer  CorrectionObserver
}

func New(completer Completer, logger *zap.Logger, observer CorrectionObserver) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		completer: completer,
		logger:    logger.Named("evaluation"),
		observer:  observer,
	}
}

// Evaluate asks the backend for a structured assessment of history and
// validates it. Errors are apperr kinds from the gateway or MalformedResponse.
func (e *Evaluator) Evaluate(ctx context.Context, history []session.Turn) (Result, error) {
	started := time.Now()
	raw, err := e.completer.Complete(ctx, prompt.EvaluationMessages(history), completion.ModeStructured)
	if err != nil {
		return Result{}, err
	}

	result, err := Parse(raw)
	if err != nil {
		e.logger.Warn("evaluation rejected",
			zap.Error(err),
			zap.Int("turns", len(history)),
			zap.String("response_preview", policy.PreviewForLog(raw, 300)),
		)
		return Result{}, err
	}

	for _, c := range result.Corrections {
		e.logger.Warn("evaluation field corrected",
			zap.String("field", c.Field),
			zap.String("original", c.Original),
			zap.String("corrected", c.Corrected),
			zap.String("reason", c.Reason),
		)
		if e.observer != nil {
			e.observer.ObserveCorrection(c.Field)
		}
	}
	e.logger.Debug("evaluation parsed",
		zap.Int("turns", len(history)),
		zap.Int("corrections", len(result.Corrections)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}
