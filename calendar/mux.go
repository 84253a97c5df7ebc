// Package calendar keeps the calendar providers known to the application.
package calendar

import (
	"fmt"
	"sort"
	"sync"

	"github.com/guilherme-santos/compasssync/internal"
)

type Mux struct {
	mu        sync.RWMutex
	providers map[string]internal.Provider
}

var _ internal.Mux = (*Mux)(nil)

func NewMux() *Mux {
	return &Mux{
		providers: make(map[string]internal.Provider),
	}
}

func (m *Mux) Get(platform string) (internal.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	provider, ok := m.providers[platform]
	if !ok {
		return nil, fmt.Errorf("calendar %q is not implemented", platform)
	}
	return provider, nil
}

func (m *Mux) Register(platform string, provider internal.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.providers[platform] = provider
}

// Platforms returns the registered platforms in order.
func (m *Mux) Platforms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	platforms := make([]string, 0, len(m.providers))
	for p := range m.providers {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)
	return platforms
}
