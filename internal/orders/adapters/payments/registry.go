package payments

import (
	"fmt"
	"strings"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
)

// Registry resolves payment providers by method and webhook parsers by provider name.
type Registry struct {
	providers map[domain.PaymentMethod]ports.PaymentProvider
	parsers   map[string]ports.WebhookParser
}

// NewRegistry registers providers under their method. Providers that parse
// webhooks are also reachable by the method name.
func NewRegistry(providers ...ports.PaymentProvider) *Registry {
	r := &Registry{
		providers: make(map[domain.PaymentMethod]ports.PaymentProvider),
		parsers:   make(map[string]ports.WebhookParser),
	}
	for _, p := range providers {
		r.providers[p.Method()] = p
		if parser, ok := p.(ports.WebhookParser); ok {
			r.parsers[string(p.Method())] = parser
		}
	}
	return r
}

// Alias makes a webhook parser reachable under an additional name, such as the provider's brand.
func (r *Registry) Alias(name string, method domain.PaymentMethod) *Registry {
	if parser, ok := r.parsers[string(method)]; ok {
		r.parsers[strings.ToLower(name)] = parser
	}
	return r
}

func (r *Registry) Provider(method domain.PaymentMethod) (ports.PaymentProvider, error) {
	p, ok := r.providers[method]
	if !ok {
		return nil, fmt.Errorf("payment provider %q: %w", method, domain.ErrNotFound)
	}
	return p, nil
}

func (r *Registry) WebhookParser(name string) (ports.WebhookParser, error) {
	p, ok := r.parsers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("webhook provider %q: %w", name, domain.ErrNotFound)
	}
	return p, nil
}
