// Package exchange is the dynamic-registration boundary between the
// Supervisor and the per-exchange connector.Factory implementations. Each
// exchange subpackage registers its Factory from an init func, so adding
// support for a new venue never touches this package.
package exchange

import (
	"fmt"
	"sync"

	"cryptostream/connector"
	"cryptostream/model"
)

var (
	mu        sync.RWMutex
	factories = make(map[model.ExchangeID]connector.Factory)
)

// Register adds a Factory for the given exchange id. Called from each
// exchange subpackage's init func.
func Register(f connector.Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[f.Exchange()] = f
}

// Lookup returns the registered Factory for an exchange id.
func Lookup(id model.ExchangeID) (connector.Factory, error) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := factories[id]
	if !ok {
		return nil, fmt.Errorf("exchange: no connector registered for %q", id)
	}
	return f, nil
}

// Supported lists every currently registered exchange id.
func Supported() []model.ExchangeID {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]model.ExchangeID, 0, len(factories))
	for id := range factories {
		out = append(out, id)
	}
	return out
}
