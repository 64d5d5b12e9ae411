package luminote

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed config/catalog.yaml
var catalogYAML []byte

// The catalog is MODEL METADATA: default models, key prefixes and limits
// shown to users by config validation and the CLI. Providers are the source
// of truth; an unknown model is never rejected, it gets the provider's
// fallback capabilities.

// CatalogFile is the on-disk catalog format.
type CatalogFile struct {
	Version     string                     `yaml:"version"`
	LastUpdated string                     `yaml:"last_updated"`
	Providers   map[string]ProviderCatalog `yaml:"providers"`
}

// ProviderCatalog describes one provider.
type ProviderCatalog struct {
	DisplayName  string                       `yaml:"display_name"`
	KeyPrefix    string                       `yaml:"key_prefix"`
	DefaultModel string                       `yaml:"default_model"`
	Fallback     ModelCapabilities            `yaml:"fallback"`
	Models       map[string]ModelCapabilities `yaml:"models"` // keyed by model prefix
}

// Catalog holds provider metadata.
type Catalog struct {
	providers map[ProviderID]ProviderCatalog
	mu        sync.RWMutex
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the catalog loaded from the embedded YAML (singleton)
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		defaultCatalog = &Catalog{providers: make(map[ProviderID]ProviderCatalog)}
		if err := defaultCatalog.load(catalogYAML); err != nil {
			// Don't panic: capability lookups fall back to zero values
			slog.Warn("failed to load embedded provider catalog", "error", err)
		}
	})
	return defaultCatalog
}

// NewCatalog parses a catalog from YAML.
func NewCatalog(data []byte) (*Catalog, error) {
	c := &Catalog{providers: make(map[ProviderID]ProviderCatalog)}
	if err := c.load(data); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) load(data []byte) error {
	var file CatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to unmarshal catalog: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for name, provider := range file.Providers {
		c.providers[ProviderID(name).Normalize()] = provider
	}
	return nil
}

// LoadFromFile merges providers from a YAML file over the current entries.
func (c *Catalog) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}
	return c.load(data)
}

// Provider returns the catalog entry for a provider.
func (c *Catalog) Provider(id ProviderID) (ProviderCatalog, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.providers[id.Normalize()]
	return p, ok
}

// Providers returns the catalogued provider IDs, sorted.
func (c *Catalog) Providers() []ProviderID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]ProviderID, 0, len(c.providers))
	for id := range c.providers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// DefaultModel returns the model used when a request names none.
func (c *Catalog) DefaultModel(id ProviderID) string {
	p, _ := c.Provider(id)
	return p.DefaultModel
}

// ResolveModel returns model, or the provider default when model is empty.
func (c *Catalog) ResolveModel(id ProviderID, model string) string {
	if model != "" {
		return model
	}
	return c.DefaultModel(id)
}

// Capabilities returns the capabilities of the longest model prefix that
// matches model, or the provider fallback. known is false for the fallback.
func (c *Catalog) Capabilities(id ProviderID, model string) (caps ModelCapabilities, known bool) {
	p, ok := c.Provider(id)
	if !ok {
		return ModelCapabilities{}, false
	}

	best := -1
	for prefix, mc := range p.Models {
		if strings.HasPrefix(model, prefix) && len(prefix) > best {
			caps, best = mc, len(prefix)
		}
	}
	if best < 0 {
		return p.Fallback, false
	}
	return caps, true
}

// CheckKeyPrefix reports whether apiKey carries the provider's expected
// prefix. Providers without a prefix accept any key.
func (c *Catalog) CheckKeyPrefix(id ProviderID, apiKey string) bool {
	p, _ := c.Provider(id)
	return p.KeyPrefix == "" || strings.HasPrefix(apiKey, p.KeyPrefix)
}
