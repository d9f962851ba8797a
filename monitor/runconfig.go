package monitor

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DecodeRunConfig parses the YAML config blob attached to a run. An empty
// blob decodes to an empty config. Mapping keys are converted to strings at
// every depth so the config can be encoded as JSON.
func DecodeRunConfig(blob string) (map[string]any, error) {
	cfg := map[string]any{}
	if strings.TrimSpace(blob) == "" {
		return cfg, nil
	}

	var doc any
	if err := yaml.Unmarshal([]byte(blob), &doc); err != nil {
		return nil, &ConfigParseError{Err: err}
	}
	if doc == nil {
		return cfg, nil
	}
	if m, ok := stringKeys(doc).(map[string]any); ok {
		return m, nil
	}
	return nil, &ConfigParseError{Err: errors.New("run config must be a mapping")}
}

// stringKeys rewrites maps with non-string keys, as produced for keys like
// `1:` or `true:`, into map[string]any
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = stringKeys(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = stringKeys(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = stringKeys(val)
		}
		return t
	}
	return v
}
