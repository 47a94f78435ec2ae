package classify

import (
	"fmt"
	"strings"

	"tradeagent/pkg/confkit"
	"tradeagent/pkg/intake"
	"tradeagent/pkg/llm"
)

// defaultTemplateRel is the repo-relative path of the built-in prompt.
const defaultTemplateRel = "etc/prompts/classifier/default_prompt.tmpl"

// PromptInputs contains dynamic data injected into the classifier prompt template.
type PromptInputs struct {
	DefaultPartialPercent int
}

// PromptRenderer renders the classifier system prompt from a template file.
type PromptRenderer struct {
	cfg *Config
	tpl *llm.PromptTemplate
}

// NewPromptRenderer constructs a renderer. An empty templatePath falls back
// to the prompt shipped under etc/prompts/classifier.
func NewPromptRenderer(cfg *Config, templatePath string) (*PromptRenderer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("classify: prompt renderer requires config")
	}
	if strings.TrimSpace(templatePath) == "" {
		p, err := confkit.ProjectPath(defaultTemplateRel)
		if err != nil {
			return nil, fmt.Errorf("classify: resolve default prompt template: %w", err)
		}
		templatePath = p
	}
	tpl, err := llm.NewPromptTemplate(templatePath)
	if err != nil {
		return nil, err
	}
	return &PromptRenderer{
		cfg: cfg,
		tpl: tpl,
	}, nil
}

// SystemPrompt renders the system prompt describing the extraction contract.
func (r *PromptRenderer) SystemPrompt() (string, error) {
	if r == nil || r.tpl == nil {
		return "", fmt.Errorf("classify: prompt renderer not initialised")
	}

	payload := struct {
		Config *Config
		PromptInputs
	}{
		Config: r.cfg,
		PromptInputs: PromptInputs{
			DefaultPartialPercent: int(r.cfg.DefaultPartialFraction * 100),
		},
	}

	return r.tpl.Render(payload)
}

// UserPrompt formats the message under classification, attaching channel
// context when the feed provides it.
func (r *PromptRenderer) UserPrompt(msg intake.Message) string {
	var b strings.Builder
	if msg.Channel != "" {
		fmt.Fprintf(&b, "Channel: %s\n", msg.Channel)
	}
	if msg.Author != "" {
		fmt.Fprintf(&b, "Author: %s\n", msg.Author)
	}
	if b.Len() > 0 {
		b.WriteString("Message:\n")
	}
	b.WriteString(msg.Text)
	return b.String()
}

// Digest returns the underlying template digest for observability.
func (r *PromptRenderer) Digest() string {
	if r == nil || r.tpl == nil {
		return ""
	}
	return r.tpl.Digest()
}
