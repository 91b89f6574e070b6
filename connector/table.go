package connector

import (
	"sync"

	"cryptostream/model"
)

// Table is the routing table installed during the subscribe handshake and
// consulted by a Transformer for the life of one connection. It is built
// once per ExchangeStream and never shared across exchanges or
// connections, so no synchronization would strictly be required; the
// mutex guards against a Transformer being read from a different
// goroutine than the one draining the socket (e.g. metrics/debug
// introspection), which costs nothing on the hot path.
type Table struct {
	mu   sync.RWMutex
	byID map[model.SubscriptionID]model.Subscription
}

// NewTable builds an empty routing table.
func NewTable() *Table {
	return &Table{byID: make(map[model.SubscriptionID]model.Subscription)}
}

// Install registers id -> sub. Install is called only during the
// Subscribing phase, once per Request returned by Connector.Requests, so
// the mapping is injective by construction: the handshake never installs
// the same id twice for a given connection.
func (t *Table) Install(id model.SubscriptionID, sub model.Subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[id] = sub
}

// Resolve implements Router.
func (t *Table) Resolve(id model.SubscriptionID) (model.Instrument, model.Subscription, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sub, ok := t.byID[id]
	if !ok {
		return model.Instrument{}, model.Subscription{}, false
	}
	return sub.Instrument, sub, true
}

// Len reports how many routes are installed.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

// InstallRoute implements the routing-table half of the Transformer
// interface; exchange Transformers embed *Table to get it for free.
func (t *Table) InstallRoute(id model.SubscriptionID, sub model.Subscription) {
	t.Install(id, sub)
}
