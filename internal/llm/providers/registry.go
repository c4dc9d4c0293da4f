package providers

import (
	"net/http"
	"sync"

	"github.com/shadabshaukat/spaces-ai/internal/config"
	"github.com/shadabshaukat/spaces-ai/internal/llm"
)

// Registry resolves provider names to clients so callers can honor a
// per-request llm_provider override. Each named provider is built once on
// first use and reused; an empty name resolves to the configured default.
type Registry struct {
	cfg        config.Config
	httpClient *http.Client

	mu    sync.Mutex
	built map[string]llm.Provider
}

func NewRegistry(cfg config.Config, httpClient *http.Client) *Registry {
	return &Registry{cfg: cfg, httpClient: httpClient, built: map[string]llm.Provider{}}
}

// Provider returns the client for name, constructing it on first use.
func (r *Registry) Provider(name string) (llm.Provider, error) {
	if name == "" {
		name = r.cfg.LLMClient.Provider
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.built[name]; ok {
		return p, nil
	}
	cfg := r.cfg
	cfg.LLMClient.Provider = name
	p, err := Build(cfg, r.httpClient)
	if err != nil {
		return nil, err
	}
	r.built[name] = p
	return p, nil
}
