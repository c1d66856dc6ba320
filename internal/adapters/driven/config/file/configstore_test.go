package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o600))
	return dir
}

func TestNewConfigStore_MissingFileYieldsDefaults(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	settings, err := store.Settings()
	require.NoError(t, err)

	require.NotNil(t, settings.Source("nvd"))
	assert.True(t, settings.Source("nvd").Enabled)
	assert.Equal(t, domain.TierPrimary, settings.Source("nvd").Tier)
	assert.Equal(t, domain.TierSecondary, settings.Source("osv").Tier)
	assert.False(t, settings.Source("ghsa").Enabled)

	assert.Equal(t, domain.DefaultCacheTTL, settings.Pipeline.CacheTTL)
	assert.Equal(t, domain.DefaultMaxRetries, settings.Pipeline.MaxRetries)
	assert.Equal(t, domain.DefaultRetrievalCap, settings.Pipeline.RetrievalCap)
}

func TestNewConfigStore_FullFile(t *testing.T) {
	dir := writeConfig(t, `
[[sources]]
name = "nvd"
tier = 1
api_key = "secret"
timeout_seconds = 20

[[sources]]
name = "feed"
tier = 3
base_url = "https://acme.example/security.xml"

[[backends]]
id = "cloud"
provider = "anthropic"
extract_model = "claude-3-5-haiku-latest"
synthesize_model = "claude-sonnet-4-5"
api_key = "sk-test"

[[backends]]
id = "local"
provider = "ollama"
extract_model = "llama3.2"
synthesize_model = "llama3.2"

[pipeline]
cache_ttl_minutes = 30
max_retries = 1
reference_cap = 5
retrieval_cap = 3
request_deadline_seconds = 45
backend_order = ["cloud", "local"]
`)

	store, err := NewConfigStore(dir)
	require.NoError(t, err)
	settings, err := store.Settings()
	require.NoError(t, err)

	require.Len(t, settings.Sources, 2)
	nvd := settings.Source("nvd")
	require.NotNil(t, nvd)
	assert.True(t, nvd.Enabled)
	assert.Equal(t, "secret", nvd.APIKey)
	assert.Equal(t, 20*time.Second, nvd.Timeout)
	assert.Equal(t, "https://acme.example/security.xml", settings.Source("feed").BaseURL)

	require.Len(t, settings.Backends, 2)
	cloud := settings.Backend("cloud")
	require.NotNil(t, cloud)
	assert.Equal(t, domain.AIProviderAnthropic, cloud.Provider)
	assert.Equal(t, "claude-3-5-haiku-latest", cloud.ExtractModel)
	assert.True(t, cloud.IsConfigured())

	assert.Equal(t, 30*time.Minute, settings.Pipeline.CacheTTL)
	assert.Equal(t, 1, settings.Pipeline.MaxRetries)
	assert.Equal(t, 5, settings.Pipeline.ReferenceCap)
	assert.Equal(t, 3, settings.Pipeline.RetrievalCap)
	assert.Equal(t, 45*time.Second, settings.Pipeline.RequestDeadline)
	assert.Equal(t, []string{"cloud", "local"}, settings.Pipeline.BackendOrder)
}

func TestNewConfigStore_EnvCredentialExpansion(t *testing.T) {
	t.Setenv("VULNBRIEF_TEST_KEY", "from-env")
	dir := writeConfig(t, `
[[sources]]
name = "ghsa"
tier = 3
api_key = "env:VULNBRIEF_TEST_KEY"
`)

	store, err := NewConfigStore(dir)
	require.NoError(t, err)
	settings, err := store.Settings()
	require.NoError(t, err)

	assert.Equal(t, "from-env", settings.Source("ghsa").APIKey)
}

func TestNewConfigStore_DefaultBackendOrderIsDeclarationOrder(t *testing.T) {
	dir := writeConfig(t, `
[[backends]]
id = "local"
provider = "ollama"

[[backends]]
id = "cloud"
provider = "openai"
api_key = "sk"
`)

	store, err := NewConfigStore(dir)
	require.NoError(t, err)
	settings, err := store.Settings()
	require.NoError(t, err)

	assert.Equal(t, []string{"local", "cloud"}, settings.Pipeline.BackendOrder)
}

func TestNewConfigStore_RejectsUnknownProvider(t *testing.T) {
	dir := writeConfig(t, `
[[backends]]
id = "weird"
provider = "frontier"
`)

	_, err := NewConfigStore(dir)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNewConfigStore_RejectsInvalidTier(t *testing.T) {
	dir := writeConfig(t, `
[[sources]]
name = "nvd"
tier = 7
`)

	_, err := NewConfigStore(dir)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNewConfigStore_RejectsUnknownBackendInOrder(t *testing.T) {
	dir := writeConfig(t, `
[[backends]]
id = "local"
provider = "ollama"

[pipeline]
backend_order = ["local", "ghost"]
`)

	_, err := NewConfigStore(dir)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNewConfigStore_DisabledSource(t *testing.T) {
	dir := writeConfig(t, `
[[sources]]
name = "osv"
tier = 2
enabled = false
`)

	store, err := NewConfigStore(dir)
	require.NoError(t, err)
	settings, err := store.Settings()
	require.NoError(t, err)

	assert.False(t, settings.Source("osv").Enabled)
}
