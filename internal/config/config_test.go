package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visa2any/fareguard/internal/dataType"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeRuleFiles(t *testing.T, dir, protection string) {
	t.Helper()
	writeFile(t, filepath.Join(dir, "Protection.yml"), protection)
	writeFile(t, filepath.Join(dir, "KnownBots.conf"), "# search engines\ngooglebot\nbingbot\n")
	writeFile(t, filepath.Join(dir, "ScraperSignatures.conf"), "python-requests\ncurl/\n")
}

func TestLoadMainConfig(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "config", "fareguard.yml"), `
port: "9000"
debug: true
store: memory
screen_header: "X-Screen"
`)

	cfg, err := LoadMainConfig(base)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "X-Screen", cfg.ScreenHeader)
	assert.Equal(t, "/fareguard", cfg.OpsPath, "unset fields keep their defaults")
	assert.Equal(t, "Fareguard-Timezone", cfg.TimezoneHeader)
}

func TestLoadMainConfig_RejectsUnknownStore(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "config", "fareguard.yml"), "store: cassandra\n")

	_, err := LoadMainConfig(base)
	assert.Error(t, err)
}

func TestLoadMainConfig_RedisRequiresAddr(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "config", "fareguard.yml"), "store: redis\n")

	_, err := LoadMainConfig(base)
	assert.Error(t, err)
}

func TestLoadMainConfig_MissingFile(t *testing.T) {
	_, err := LoadMainConfig(t.TempDir())
	assert.Error(t, err)
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	writeRuleFiles(t, dir, `
Detection:
  secret_key: "rule-file-secret"
  cache_ttl: 120
  auto_block: false
  thresholds:
    block: 90
    challenge: 60
    monitor: 25
RateLimit:
  search: 30/1m
  api: 100/1m
  page: 200/5m
`)
	writeFile(t, filepath.Join(dir, "IP_BlockList.conf"), "# abusers\n203.0.113.0/24\n198.51.100.9\n")

	rs, err := LoadRules(dir)
	require.NoError(t, err)

	assert.Equal(t, "rule-file-secret", rs.Detection.SecretKey)
	assert.Equal(t, int64(120), rs.Detection.CacheTTL)
	assert.False(t, rs.Detection.AutoBlock)
	assert.Equal(t, dataType.Thresholds{Block: 90, Challenge: 60, Monitor: 25}, rs.Detection.Thresholds)
	assert.Equal(t, dataType.DefaultScoreWeights(), rs.Detection.Weights, "unset weights keep their defaults")

	require.Len(t, rs.RateBudgets, 3)
	assert.Equal(t, dataType.RateBudget{Limit: 30, Window: time.Minute}, rs.RateBudgets[dataType.ClassSearch])
	assert.Equal(t, dataType.RateBudget{Limit: 200, Window: 5 * time.Minute}, rs.RateBudgets[dataType.ClassPage])

	assert.Equal(t, []string{"googlebot", "bingbot"}, rs.KnownBots)
	assert.Equal(t, []string{"python-requests", "curl/"}, rs.ScraperSignatures)

	assert.True(t, rs.StaticBlockTrie.SearchString("203.0.113.77"))
	assert.True(t, rs.StaticBlockTrie.SearchString("198.51.100.9"))
	assert.False(t, rs.StaticBlockTrie.SearchString("198.51.100.10"))
}

func TestLoadRules_SecretFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	writeRuleFiles(t, dir, "Detection:\n  cache_ttl: 60\n")
	t.Setenv("FAREGUARD_SECRET_KEY", "env-secret")

	rs, err := LoadRules(dir)
	require.NoError(t, err)
	assert.Equal(t, "env-secret", rs.Detection.SecretKey)
}

func TestLoadRules_MissingSecretIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeRuleFiles(t, dir, "Detection:\n  cache_ttl: 60\n")
	t.Setenv("FAREGUARD_SECRET_KEY", "")

	_, err := LoadRules(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing secret")
}

func TestLoadRules_InvalidRate(t *testing.T) {
	dir := t.TempDir()
	writeRuleFiles(t, dir, `
Detection:
  secret_key: "s"
RateLimit:
  search: not-a-rate
`)

	_, err := LoadRules(dir)
	assert.Error(t, err)
}

func TestLoadRules_MissingDenyListIsOptional(t *testing.T) {
	dir := t.TempDir()
	writeRuleFiles(t, dir, "Detection:\n  secret_key: \"s\"\n")

	rs, err := LoadRules(dir)
	require.NoError(t, err)
	assert.False(t, rs.StaticBlockTrie.SearchString("203.0.113.1"))
}

func TestLoadRules_MissingProtectionFile(t *testing.T) {
	_, err := LoadRules(t.TempDir())
	assert.Error(t, err)
}
