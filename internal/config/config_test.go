package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.IDPrefix != "pkm_" {
		t.Errorf("expected IDPrefix=pkm_, got %s", cfg.IDPrefix)
	}
	if cfg.Duplicates.OnCollision != "prompt" {
		t.Errorf("expected OnCollision=prompt, got %s", cfg.Duplicates.OnCollision)
	}
	if cfg.GetFetchTimeout() != 12*time.Second {
		t.Errorf("expected fetch timeout 12s, got %v", cfg.GetFetchTimeout())
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("CARDCAT_TSV_URL", "")
	t.Setenv("CARDCAT_API_URL", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "cardcat.yaml")

	cfg := DefaultConfig()
	cfg.Source.TSVURL = "https://docs.example.com/pub?output=tsv"
	cfg.Source.APIURL = "https://script.example.com/exec"
	cfg.Duplicates.OnCollision = "merge"

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Source, loaded.Source)
	assert.Equal(t, "merge", loaded.Duplicates.OnCollision)
	assert.Equal(t, cfg.Server.ExemptHosts, loaded.Server.ExemptHosts)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8787", cfg.Server.Addr)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("source: [unclosed"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate(), "no source configured")

	cfg.Source.TSVURL = "file:///tmp/cards.tsv"
	assert.NoError(t, cfg.Validate())

	cfg.Source.TSVURL = "cards.tsv"
	assert.NoError(t, cfg.Validate())

	cfg.Source.APIURL = "ftp://example.com/x"
	assert.Error(t, cfg.Validate())

	cfg.Source.APIURL = "https://script.example.com/exec"
	cfg.Duplicates.OnCollision = "ask"
	assert.Error(t, cfg.Validate())

	cfg.Duplicates.OnCollision = "discard"
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.HasWriteEndpoint())
}

func TestConfig_Durations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Net.FetchTimeout = "not-a-duration"
	cfg.Net.SearchDebounce = "-5ms"
	cfg.Net.NoticeDuration = "1s"

	assert.Equal(t, 12*time.Second, cfg.GetFetchTimeout())
	assert.Equal(t, 120*time.Millisecond, cfg.GetSearchDebounce())
	assert.Equal(t, time.Second, cfg.GetNoticeDuration())
	assert.Equal(t, 180*time.Millisecond, cfg.GetRetryDelay())
}

func TestLoggingConfig(t *testing.T) {
	lc := LoggingConfig{DebugMode: true, Format: "json", Categories: map[string]bool{"search": false}}
	assert.False(t, lc.IsCategoryEnabled("search"))
	assert.True(t, lc.IsCategoryEnabled("load"))

	s := lc.Settings()
	assert.True(t, s.JSONFormat)
	assert.True(t, s.DebugMode)

	lc.DebugMode = false
	assert.False(t, lc.IsCategoryEnabled("load"))
}
