package classify

import (
	"context"
	"fmt"

	"tradeagent/pkg/intake"
	"tradeagent/pkg/llm"
	"tradeagent/pkg/signal"
)

// llmBackend sends the message to the structured-output endpoint and maps
// the returned contract into a Signal.
type llmBackend struct {
	cfg      *Config
	client   llm.LLMClient
	renderer *PromptRenderer
}

func newLLMBackend(cfg *Config, client llm.LLMClient) (*llmBackend, error) {
	if client == nil {
		return nil, fmt.Errorf("classify: llm backend requires a client")
	}
	renderer, err := NewPromptRenderer(cfg, cfg.PromptTemplate)
	if err != nil {
		return nil, err
	}
	return &llmBackend{cfg: cfg, client: client, renderer: renderer}, nil
}

func (b *llmBackend) name() string { return BackendLLM }

func (b *llmBackend) classify(ctx context.Context, msg intake.Message) (signal.Signal, error) {
	systemPrompt, err := b.renderer.SystemPrompt()
	if err != nil {
		return signal.Unparseable(msg.SourceID, msg.ObservedAt), newClassificationError(BackendLLM, err)
	}

	temperature := 0.1
	req := &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: b.renderer.UserPrompt(msg)},
		},
		Temperature: &temperature,
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
	defer cancel()

	var out signalContract
	if _, err := b.client.ChatStructured(callCtx, req, &out); err != nil {
		return signal.Unparseable(msg.SourceID, msg.ObservedAt), newClassificationError(BackendLLM, err)
	}

	sig := mapSignalContract(out, b.cfg.DefaultPartialFraction, msg.SourceID, msg.ObservedAt)
	if err := sig.Validate(); err != nil {
		return signal.Unparseable(msg.SourceID, msg.ObservedAt), newClassificationError(BackendLLM, err)
	}
	return sig, nil
}
