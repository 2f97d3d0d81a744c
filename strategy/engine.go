package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/domresolve/domquery"
	"github.com/hazyhaar/domresolve/selector"
)

// Engine runs a selector's strategies in priority order against a DOM
// query capability and returns the best outcome.
type Engine struct {
	metrics *Metrics
	logger  *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics shares an external metrics accumulator.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine builds a resolution engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Metrics exposes the engine's accumulator.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// Resolve attempts the selector's strategies highest priority first.
// The first success at or above the selector's confidence threshold
// wins immediately. If every strategy falls short, the best success is
// still returned so callers can decide what to do with a weak match.
// With no success at all the result aggregates each strategy's reason.
func (e *Engine) Resolve(ctx context.Context, sel *selector.SemanticSelector, q domquery.Capability) selector.SelectorResult {
	start := time.Now()
	if err := sel.Validate(); err != nil {
		return selector.Failure(sel.Name, "", err.Error(), time.Since(start))
	}

	var (
		best    selector.SelectorResult
		hasBest bool
		reasons []string
	)
	for _, cfg := range sel.OrderedStrategies() {
		st, err := New(cfg)
		if err != nil {
			e.logger.Warn("strategy: skipping invalid config",
				"selector", sel.Name, "strategy", cfg.ID, "error", err)
			reasons = append(reasons, fmt.Sprintf("%s: %v", cfg.ID, err))
			continue
		}

		res := st.AttemptResolution(ctx, sel, q)
		e.metrics.Record(cfg.Type, res.Success, res.ResolutionTime)

		if !res.Success {
			reasons = append(reasons, fmt.Sprintf("%s(%s): %s", cfg.ID, cfg.Type, res.FailureReason))
			continue
		}
		if res.Confidence >= sel.ConfidenceThreshold {
			e.logger.Debug("strategy: resolved",
				"selector", sel.Name, "strategy", cfg.ID,
				"confidence", res.Confidence, "elapsed", res.ResolutionTime)
			return res
		}
		reasons = append(reasons, fmt.Sprintf("%s(%s): confidence %.3f below threshold %.3f",
			cfg.ID, cfg.Type, res.Confidence, sel.ConfidenceThreshold))
		if !hasBest || res.Confidence > best.Confidence {
			best, hasBest = res, true
		}
	}

	if hasBest {
		e.logger.Debug("strategy: best effort below threshold",
			"selector", sel.Name, "confidence", best.Confidence)
		return best
	}

	reason := "no strategy produced an element"
	if len(reasons) > 0 {
		reason = strings.Join(reasons, "; ")
	}
	res := selector.Failure(sel.Name, "", reason, time.Since(start))
	e.logger.Debug("strategy: resolution failed", "selector", sel.Name, "reason", reason)
	return res
}
