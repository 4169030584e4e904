package collection

import (
	"sort"

	"github.com/aretw0/introspection"
)

// StoreState exposes internal state for observability.
type StoreState struct {
	Entities   int            `json:"entities"`
	Version    uint64         `json:"version"`
	InFlight   int            `json:"in_flight"`
	Loaded     bool           `json:"loaded"`
	LoadError  string         `json:"load_error,omitempty"`
	ReadOnly   bool           `json:"read_only"`
	Pending    map[string]int `json:"pending,omitempty"`
	Aliases    int            `json:"aliases"`
	Tombstones []string       `json:"tombstones,omitempty"`
	Listeners  int            `json:"listeners"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	s.mu.RLock()
	st := StoreState{
		Entities: len(s.entities),
		Version:  s.version,
		InFlight: s.inflight,
		Loaded:   s.loaded,
		ReadOnly: s.opts.readOnly,
		Aliases:  len(s.aliases),
	}
	if s.loadErr != nil {
		st.LoadError = s.loadErr.Error()
	}
	for id, e := range s.meta {
		if e.pending > 0 {
			if st.Pending == nil {
				st.Pending = make(map[string]int)
			}
			st.Pending[id] = e.pending
		}
	}
	for id := range s.tombstones {
		st.Tombstones = append(st.Tombstones, id)
	}
	s.mu.RUnlock()

	sort.Strings(st.Tombstones)

	s.lmu.RLock()
	st.Listeners = len(s.listeners)
	s.lmu.RUnlock()
	return st
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "collection"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
