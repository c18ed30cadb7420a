package oracle

import (
	"context"
	"fmt"
	"sync"
)

// ProviderMessage is a chat message handed to an LLM provider.
type ProviderMessage struct {
	Role    string
	Content string
}

// GenerateResult contains the provider's text output and token usage when
// available.
type GenerateResult struct {
	Text         string
	PromptTokens int
	OutputTokens int
	TotalTokens  int
	Model        string
}

// LLM is the minimal chat generation interface oracle providers implement.
type LLM interface {
	// Name returns the provider name (e.g., "openai").
	Name() string
	// Generate creates a completion from a list of messages.
	Generate(ctx context.Context, messages []ProviderMessage, opts map[string]any) (GenerateResult, error)
}

// Factory constructs an LLM from provider-specific config.
type Factory func(ctx context.Context, cfg map[string]any) (LLM, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// RegisterProvider registers an LLM factory under a provider name.
func RegisterProvider(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("oracle: empty provider name")
	}
	if f == nil {
		return fmt.Errorf("oracle: nil factory for %q", name)
	}
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := factories[name]; exists {
		return fmt.Errorf("oracle: provider %q already registered", name)
	}
	factories[name] = f
	return nil
}

// ResolveProvider gets a registered factory by name.
func ResolveProvider(name string) (Factory, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// Providers returns the names of all registered factories.
func Providers() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for n := range factories {
		out = append(out, n)
	}
	return out
}
