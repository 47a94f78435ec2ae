package llm

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// PromptTemplate is a text/template loaded from disk once at construction.
// The classifier renders its system prompt through one; templates are
// immutable after load, so a prompt change means a restart.
type PromptTemplate struct {
	path   string
	tmpl   *template.Template
	digest string
}

// NewPromptTemplate reads and parses the template at path. Missing template
// keys are errors, not blanks: a prompt silently rendered with holes is
// worse than failing at startup.
func NewPromptTemplate(path string) (*PromptTemplate, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("prompt template path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt template %q: %w", path, err)
	}

	tmpl, err := template.New(filepath.Base(path)).Option("missingkey=error").Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %q: %w", path, err)
	}

	sum := sha256.Sum256(data)
	return &PromptTemplate{
		path:   path,
		tmpl:   tmpl,
		digest: hex.EncodeToString(sum[:]),
	}, nil
}

// Render executes the template with data.
func (t *PromptTemplate) Render(data any) (string, error) {
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute prompt template %q: %w", t.path, err)
	}
	return buf.String(), nil
}

// Digest returns the sha256 of the template file content, used to tag which
// prompt revision produced a classification.
func (t *PromptTemplate) Digest() string { return t.digest }
