// Package classify turns raw chat messages into structured trading signals.
// A cheap keyword pre-filter runs before the configured backend so obviously
// non-trading chatter never spends an external call. Backend failures degrade
// to an Unparseable signal plus a ClassificationError for the caller to log;
// they never escape this boundary.
package classify

import (
	"context"
	"errors"
	"fmt"

	"tradeagent/pkg/intake"
	"tradeagent/pkg/llm"
	"tradeagent/pkg/signal"
)

// backend is the classification strategy behind the adapter.
type backend interface {
	name() string
	classify(ctx context.Context, msg intake.Message) (signal.Signal, error)
}

// Classifier is the classification adapter.
type Classifier struct {
	cfg     *Config
	backend backend
}

// New builds a Classifier for cfg.Backend. The llm client is only required
// when the llm backend is selected.
func New(cfg *Config, client llm.LLMClient) (*Classifier, error) {
	if cfg == nil {
		return nil, errors.New("classify: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var b backend
	switch cfg.Backend {
	case BackendLLM:
		lb, err := newLLMBackend(cfg, client)
		if err != nil {
			return nil, err
		}
		b = lb
	case BackendRules:
		b = newRuleBackend(cfg)
	default:
		return nil, fmt.Errorf("classify: unknown backend %q", cfg.Backend)
	}
	return &Classifier{cfg: cfg, backend: b}, nil
}

// Backend reports which backend the classifier runs.
func (c *Classifier) Backend() string { return c.backend.name() }

// Classify maps one message onto a Signal. The returned signal is always
// usable: on any failure it is the Unparseable degenerate form and the error
// carries the cause for logging.
func (c *Classifier) Classify(ctx context.Context, msg intake.Message) (signal.Signal, error) {
	if err := msg.Validate(); err != nil {
		return signal.Unparseable(msg.SourceID, msg.ObservedAt), newClassificationError(c.backend.name(), err)
	}
	if c.cfg.Prefilter && !prefilterPass(msg.Text) {
		return signal.Unparseable(msg.SourceID, msg.ObservedAt), nil
	}
	sig, err := c.backend.classify(ctx, msg)
	if err != nil {
		return signal.Unparseable(msg.SourceID, msg.ObservedAt), err
	}
	return sig, nil
}
