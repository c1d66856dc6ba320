package domain

import "time"

// AIProvider identifies a generation backend provider.
type AIProvider string

// Available generation providers.
const (
	// AIProviderOllama is a local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is the OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is the Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"
)

// IsValid returns true if the provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// SourceSettings configures one source fetcher.
type SourceSettings struct {
	// Name is the fetcher identifier (e.g. "nvd", "osv", "kev").
	Name string

	// Enabled toggles the fetcher. Disabled fetchers are skipped entirely.
	Enabled bool

	// Tier assigns the fetcher's priority class.
	Tier Tier

	// BaseURL overrides the provider endpoint (empty = provider default).
	BaseURL string

	// APIKey is the provider credential, when required.
	APIKey string

	// Timeout is the per-request timeout (zero = client default).
	Timeout time.Duration
}

// BackendSettings configures one generation backend.
type BackendSettings struct {
	// ID is the backend identifier used in the preference list.
	ID string

	// Provider selects the adapter implementation.
	Provider AIProvider

	// Model requested for the extract phase.
	ExtractModel string

	// Model requested for the synthesize phase.
	SynthesizeModel string

	// APIKey is the backend credential, when required.
	APIKey string

	// BaseURL overrides the API endpoint (empty = provider default).
	BaseURL string
}

// IsConfigured reports whether the backend has the credentials it needs.
func (b *BackendSettings) IsConfigured() bool {
	if !b.Provider.IsValid() {
		return false
	}
	if b.Provider.RequiresAPIKey() && b.APIKey == "" {
		return false
	}
	return true
}

// Default pipeline tuning values.
const (
	DefaultCacheTTL        = time.Hour
	DefaultMaxRetries      = 3
	DefaultRetrievalCap    = 5
	DefaultRequestDeadline = 90 * time.Second
)

// PipelineSettings holds the cross-cutting knobs resolved once at startup.
type PipelineSettings struct {
	// CacheTTL is how long cached HTTP payloads stay fresh.
	CacheTTL time.Duration

	// MaxRetries is the retry budget per HTTP request (attempts = retries+1).
	MaxRetries int

	// ReferenceCap bounds the merged reference list.
	ReferenceCap int

	// RetrievalCap bounds the related-advisory context set.
	RetrievalCap int

	// RequestDeadline bounds one whole aggregation request. In-flight
	// fetches past the deadline are abandoned.
	RequestDeadline time.Duration

	// BackendOrder is the generation fallback preference, first is best.
	BackendOrder []string
}

// Settings is the full static configuration, resolved once at startup and
// treated as read-only thereafter.
type Settings struct {
	Sources  []SourceSettings
	Backends []BackendSettings
	Pipeline PipelineSettings
}

// DefaultPipelineSettings returns the tuning defaults.
func DefaultPipelineSettings() PipelineSettings {
	return PipelineSettings{
		CacheTTL:        DefaultCacheTTL,
		MaxRetries:      DefaultMaxRetries,
		ReferenceCap:    DefaultReferenceCap,
		RetrievalCap:    DefaultRetrievalCap,
		RequestDeadline: DefaultRequestDeadline,
	}
}

// Source returns the settings for a named source, or nil if absent.
func (s *Settings) Source(name string) *SourceSettings {
	for i := range s.Sources {
		if s.Sources[i].Name == name {
			return &s.Sources[i]
		}
	}
	return nil
}

// Backend returns the settings for a backend id, or nil if absent.
func (s *Settings) Backend(id string) *BackendSettings {
	for i := range s.Backends {
		if s.Backends[i].ID == id {
			return &s.Backends[i]
		}
	}
	return nil
}
