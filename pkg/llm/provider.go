package llm

import "strings"

// ResolveModelID expands a model alias from the config's model table into
// the provider/model form the gateway expects. An alias that already names
// a provider passes through untouched; an alias with no table entry is used
// as the model name itself.
func ResolveModelID(alias string, cfg ModelConfig) string {
	alias = strings.TrimSpace(alias)
	if strings.Contains(alias, "/") {
		return alias
	}

	name := strings.TrimSpace(cfg.ModelName)
	if name == "" {
		name = alias
	}
	if provider := strings.TrimSpace(cfg.Provider); provider != "" && !strings.Contains(name, "/") {
		return provider + "/" + name
	}
	return name
}
