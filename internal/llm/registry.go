package llm

import (
  "fmt"
  "strings"
  "sync"
)

// Registry maps provider prefixes to Backend implementations. Selection is
// driven by the Model value object, never by string branching at call sites.
type Registry struct {
  mu          sync.RWMutex
  backends    map[string]Backend
}

func NewRegistry() *Registry {
  return &Registry{backends: make(map[string]Backend)}
}

func (r *Registry) Register(provider string, b Backend) {
  provider = strings.ToLower(strings.TrimSpace(provider))
  r.mu.Lock()
  defer r.mu.Unlock()
  r.backends[provider] = b
}

func (r *Registry) Get(model Model) (Backend, error) {
  provider := strings.ToLower(model.Provider())
  r.mu.RLock()
  b, ok := r.backends[provider]
  r.mu.RUnlock()
  if !ok {
    return nil, fmt.Errorf("unknown model provider: %q", provider)
  }
  return b, nil
}
