package driven

import "github.com/custodia-labs/vulnbrief/internal/core/domain"

// ConfigStore supplies the static configuration, resolved once at startup.
// The core treats the returned settings as a read-only map; live reload is
// deliberately unsupported.
type ConfigStore interface {
	// Settings returns the resolved configuration.
	Settings() (*domain.Settings, error)
}
