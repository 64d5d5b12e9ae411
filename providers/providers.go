// Package providers wires the built-in translation providers into a registry.
package providers

import (
	"github.com/haowjy/luminote-go"
	"github.com/haowjy/luminote-go/providers/anthropic"
	"github.com/haowjy/luminote-go/providers/lorem"
	"github.com/haowjy/luminote-go/providers/openai"
)

// DefaultRegistry returns a registry with anthropic, openai and the mock
// provider registered.
func DefaultRegistry() *luminote.Registry {
	registry := luminote.NewRegistry()
	registry.Register(luminote.ProviderAnthropic, func() luminote.Translator { return anthropic.NewProvider() })
	registry.Register(luminote.ProviderOpenAI, func() luminote.Translator { return openai.NewProvider() })
	registry.Register(luminote.ProviderMock, func() luminote.Translator { return lorem.NewProvider() })
	return registry
}
