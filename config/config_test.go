package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/eduassist/tutorbridge/rag"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithoutConfigFileOrEnv(t *testing.T) {
	t.Setenv("TUTORBRIDGE_CONFIG", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DefaultEmbeddingModel, cfg.EmbeddingModel)
	require.Equal(t, DefaultLLMModel, cfg.LLMModel)
	require.Equal(t, DefaultSearchK, cfg.DefaultSearchK)
	require.Equal(t, rag.LogLevelInfo, cfg.LogLevel)
	require.True(t, cfg.UseHybridAgent)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("TUTORBRIDGE_CONFIG", "")
	t.Setenv("LLM_MODEL", "gpt-4o")
	t.Setenv("DEFAULT_SEARCH_K", "8")
	t.Setenv("USE_HYBRID_AGENT", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "gpt-4o", cfg.LLMModel)
	require.Equal(t, 8, cfg.DefaultSearchK)
	require.False(t, cfg.UseHybridAgent)
	require.Equal(t, rag.LogLevelDebug, cfg.LogLevel)
}

func TestLoadFileOverriddenByEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tutorbridge.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"LLMModel":"from-file","DefaultSearchK":6}`), 0o644))
	t.Setenv("TUTORBRIDGE_CONFIG", path)
	t.Setenv("DEFAULT_SEARCH_K", "10")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.LLMModel)
	require.Equal(t, 10, cfg.DefaultSearchK)
}

func TestSaveWritesReadableJSON(t *testing.T) {
	cfg := &Config{LLMModel: "gpt-4o-mini", DefaultSearchK: 4}
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	require.NoError(t, cfg.Save(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "gpt-4o-mini")
}
