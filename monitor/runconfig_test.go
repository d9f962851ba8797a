package monitor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRunConfig(t *testing.T) {
	cfg, err := DecodeRunConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg)

	cfg, err = DecodeRunConfig("# only a comment\n")
	require.NoError(t, err)
	assert.Empty(t, cfg)

	cfg, err = DecodeRunConfig("solids:\n  load:\n    config:\n      path: /tmp/in.csv\n")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"solids": map[string]any{
			"load": map[string]any{"config": map[string]any{"path": "/tmp/in.csv"}},
		},
	}, cfg)
}

func TestDecodeRunConfigErrors(t *testing.T) {
	_, err := DecodeRunConfig("key: [unclosed")
	assert.ErrorIs(t, err, ErrConfigParse)

	_, err = DecodeRunConfig("- a\n- b\n")
	assert.ErrorIs(t, err, ErrConfigParse)
	assert.Contains(t, err.Error(), "mapping")
}

func TestDecodeRunConfigStringifiesKeys(t *testing.T) {
	cfg, err := DecodeRunConfig("resources:\n  1: a\n  true: b\nsteps:\n  - 2: c\n")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"resources": map[string]any{"1": "a", "true": "b"},
		"steps":     []any{map[string]any{"2": "c"}},
	}, cfg)

	_, err = json.Marshal(cfg)
	assert.NoError(t, err)

	cfg, err = DecodeRunConfig("1: top\n")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"1": "top"}, cfg)
}
