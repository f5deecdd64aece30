// pkg/sync/registry.go
package sync

import (
	"fmt"
)

// adapterRegistry holds all registered system adapters
var adapterRegistry = make(map[string]SystemAdapter)

// RegisterAdapter registers a system adapter in the global registry.
func RegisterAdapter(adapter SystemAdapter) {
	adapterRegistry[adapter.Name()] = adapter
}

// GetAdapter retrieves an adapter by name.
func GetAdapter(name string) (SystemAdapter, error) {
	adapter, exists := adapterRegistry[name]
	if !exists {
		return nil, fmt.Errorf("no system adapter registered with name: %s", name)
	}
	return adapter, nil
}

// ListAdapters returns all registered adapter names.
func ListAdapters() []string {
	names := make([]string, 0, len(adapterRegistry))
	for name := range adapterRegistry {
		names = append(names, name)
	}
	return names
}
