package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
	"github.com/custodia-labs/vulnbrief/internal/core/ports/driven"
)

// Ensure ConfigStore implements the interface.
var _ driven.ConfigStore = (*ConfigStore)(nil)

// envPrefix marks a config value to be resolved from the environment, so
// credentials never have to live in the file itself.
const envPrefix = "env:"

// ConfigStore is a file-based implementation of driven.ConfigStore using
// TOML. The file is read once at construction; a missing file yields the
// built-in defaults.
type ConfigStore struct {
	filePath string
	settings *domain.Settings
}

// fileConfig is the on-disk TOML schema.
type fileConfig struct {
	Sources  []sourceConfig  `toml:"sources"`
	Backends []backendConfig `toml:"backends"`
	Pipeline pipelineConfig  `toml:"pipeline"`
}

type sourceConfig struct {
	Name           string `toml:"name"`
	Enabled        *bool  `toml:"enabled"`
	Tier           int    `toml:"tier"`
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type backendConfig struct {
	ID              string `toml:"id"`
	Provider        string `toml:"provider"`
	ExtractModel    string `toml:"extract_model"`
	SynthesizeModel string `toml:"synthesize_model"`
	APIKey          string `toml:"api_key"`
	BaseURL         string `toml:"base_url"`
}

type pipelineConfig struct {
	CacheTTLMinutes        int      `toml:"cache_ttl_minutes"`
	MaxRetries             *int     `toml:"max_retries"`
	ReferenceCap           int      `toml:"reference_cap"`
	RetrievalCap           int      `toml:"retrieval_cap"`
	RequestDeadlineSeconds int      `toml:"request_deadline_seconds"`
	BackendOrder           []string `toml:"backend_order"`
}

// NewConfigStore creates a TOML-based config store.
// If configDir is empty, defaults to ~/.vulnbrief/config.toml.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".vulnbrief")
	}

	s := &ConfigStore{filePath: filepath.Join(configDir, "config.toml")}

	var raw fileConfig
	data, err := os.ReadFile(s.filePath)
	switch {
	case os.IsNotExist(err):
		// No file means defaults.
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", s.filePath, err)
		}
	}

	settings, err := resolve(raw)
	if err != nil {
		return nil, err
	}
	s.settings = settings
	return s, nil
}

// Settings returns the resolved configuration.
func (s *ConfigStore) Settings() (*domain.Settings, error) {
	return s.settings, nil
}

// Path returns the config file location.
func (s *ConfigStore) Path() string {
	return s.filePath
}

// defaultSources returns the built-in source roster: both public advisory
// databases plus the exploited-vulnerabilities catalog, all enabled.
func defaultSources() []domain.SourceSettings {
	return []domain.SourceSettings{
		{Name: "nvd", Enabled: true, Tier: domain.TierPrimary},
		{Name: "osv", Enabled: true, Tier: domain.TierSecondary},
		{Name: "ghsa", Enabled: false, Tier: domain.TierEnrichment},
		{Name: "kev", Enabled: true, Tier: domain.TierEnrichment},
		{Name: "feed", Enabled: false, Tier: domain.TierEnrichment},
		{Name: "mirror", Enabled: false, Tier: domain.TierEnrichment},
	}
}

// resolve projects the raw file schema into domain settings, filling
// defaults and expanding env: credential references.
func resolve(raw fileConfig) (*domain.Settings, error) {
	settings := &domain.Settings{
		Pipeline: domain.DefaultPipelineSettings(),
	}

	if len(raw.Sources) == 0 {
		settings.Sources = defaultSources()
	}
	for _, src := range raw.Sources {
		if src.Name == "" {
			return nil, fmt.Errorf("%w: source without name", domain.ErrInvalidInput)
		}
		resolved := domain.SourceSettings{
			Name:    src.Name,
			Enabled: src.Enabled == nil || *src.Enabled,
			Tier:    domain.Tier(src.Tier),
			BaseURL: src.BaseURL,
			APIKey:  expandEnv(src.APIKey),
			Timeout: time.Duration(src.TimeoutSeconds) * time.Second,
		}
		if resolved.Tier < domain.TierPrimary || resolved.Tier > domain.TierEnrichment {
			return nil, fmt.Errorf("%w: source %s has invalid tier %d", domain.ErrInvalidInput, src.Name, src.Tier)
		}
		settings.Sources = append(settings.Sources, resolved)
	}

	for _, be := range raw.Backends {
		if be.ID == "" {
			return nil, fmt.Errorf("%w: backend without id", domain.ErrInvalidInput)
		}
		provider := domain.AIProvider(strings.ToLower(be.Provider))
		if !provider.IsValid() {
			return nil, fmt.Errorf("%w: backend %s has unknown provider %q", domain.ErrInvalidInput, be.ID, be.Provider)
		}
		settings.Backends = append(settings.Backends, domain.BackendSettings{
			ID:              be.ID,
			Provider:        provider,
			ExtractModel:    be.ExtractModel,
			SynthesizeModel: be.SynthesizeModel,
			APIKey:          expandEnv(be.APIKey),
			BaseURL:         be.BaseURL,
		})
	}

	if raw.Pipeline.CacheTTLMinutes > 0 {
		settings.Pipeline.CacheTTL = time.Duration(raw.Pipeline.CacheTTLMinutes) * time.Minute
	}
	if raw.Pipeline.MaxRetries != nil && *raw.Pipeline.MaxRetries >= 0 {
		settings.Pipeline.MaxRetries = *raw.Pipeline.MaxRetries
	}
	if raw.Pipeline.ReferenceCap > 0 {
		settings.Pipeline.ReferenceCap = raw.Pipeline.ReferenceCap
	}
	if raw.Pipeline.RetrievalCap > 0 {
		settings.Pipeline.RetrievalCap = raw.Pipeline.RetrievalCap
	}
	if raw.Pipeline.RequestDeadlineSeconds > 0 {
		settings.Pipeline.RequestDeadline = time.Duration(raw.Pipeline.RequestDeadlineSeconds) * time.Second
	}
	settings.Pipeline.BackendOrder = raw.Pipeline.BackendOrder

	// Default preference order is declaration order.
	if len(settings.Pipeline.BackendOrder) == 0 {
		for _, be := range settings.Backends {
			settings.Pipeline.BackendOrder = append(settings.Pipeline.BackendOrder, be.ID)
		}
	}
	for _, id := range settings.Pipeline.BackendOrder {
		if settings.Backend(id) == nil {
			return nil, fmt.Errorf("%w: backend_order names unknown backend %q", domain.ErrInvalidInput, id)
		}
	}

	return settings, nil
}

// expandEnv resolves "env:VAR" values from the environment.
func expandEnv(value string) string {
	if rest, ok := strings.CutPrefix(value, envPrefix); ok {
		return os.Getenv(rest)
	}
	return value
}
