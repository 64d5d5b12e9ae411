package luminote

import (
	"slices"
	"strings"
	"sync"
)

// ProviderID represents a unique provider identifier.
// Using a typed constant prevents typos and provides compile-time safety.
type ProviderID string

// Known provider identifiers
const (
	// ProviderAnthropic is Anthropic's Claude API
	ProviderAnthropic ProviderID = "anthropic"

	// ProviderOpenAI is OpenAI's GPT API
	ProviderOpenAI ProviderID = "openai"

	// ProviderMock is the offline mock provider for testing
	ProviderMock ProviderID = "mock"
)

// String returns the string representation of the provider ID
func (p ProviderID) String() string {
	return string(p)
}

// IsValid returns true if the provider ID is a known provider
func (p ProviderID) IsValid() bool {
	switch p {
	case ProviderAnthropic, ProviderOpenAI, ProviderMock:
		return true
	default:
		return false
	}
}

// Normalize lower-cases and trims the identifier.
func (p ProviderID) Normalize() ProviderID {
	return ProviderID(strings.ToLower(strings.TrimSpace(string(p))))
}

// Factory builds a Translator. Providers take the API key per call (BYOK),
// so factories carry no credentials.
type Factory func() Translator

// Registry maps provider identifiers to factories.
type Registry struct {
	factories map[ProviderID]Factory
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[ProviderID]Factory)}
}

// Register adds or replaces a provider.
func (r *Registry) Register(id ProviderID, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id.Normalize()] = factory
}

// Get returns a translator for the provider, or an UNSUPPORTED_PROVIDER
// TranslationError listing the registered providers.
func (r *Registry) Get(id ProviderID) (Translator, error) {
	r.mu.RLock()
	factory, ok := r.factories[id.Normalize()]
	r.mu.RUnlock()

	if !ok {
		return nil, NewUnsupportedProviderError(string(id), r.Names())
	}
	return factory(), nil
}

// Has returns true if the provider is registered.
func (r *Registry) Has(id ProviderID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[id.Normalize()]
	return ok
}

// Names returns the registered provider identifiers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for id := range r.factories {
		names = append(names, id.String())
	}
	slices.Sort(names)
	return names
}
