package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveModelID(t *testing.T) {
	cases := []struct {
		name  string
		alias string
		cfg   ModelConfig
		want  string
	}{
		{
			name:  "alias expands through the model table",
			alias: "classifier",
			cfg:   ModelConfig{Provider: "openai", ModelName: "gpt-4o-mini"},
			want:  "openai/gpt-4o-mini",
		},
		{
			name:  "qualified alias passes through",
			alias: "openai/gpt-4o",
			cfg:   ModelConfig{Provider: "anthropic", ModelName: "other"},
			want:  "openai/gpt-4o",
		},
		{
			name:  "no table entry uses the alias as model name",
			alias: "gpt-4o-mini",
			cfg:   ModelConfig{},
			want:  "gpt-4o-mini",
		},
		{
			name:  "qualified model name skips the provider prefix",
			alias: "classifier",
			cfg:   ModelConfig{Provider: "openai", ModelName: "openai/gpt-4o-mini"},
			want:  "openai/gpt-4o-mini",
		},
		{
			name:  "whitespace trimmed",
			alias: "  classifier  ",
			cfg:   ModelConfig{Provider: " openai ", ModelName: " gpt-4o-mini "},
			want:  "openai/gpt-4o-mini",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ResolveModelID(tc.alias, tc.cfg))
		})
	}
}
