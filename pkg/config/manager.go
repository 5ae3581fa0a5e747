package config

import "sync"

// Manager resolves the parameter set for each generation call. It holds the
// provider's defaults and the instance configuration supplied at construction;
// Resolve folds per-call overrides on top.
//
// Manager is safe for concurrent use. Resolution never mutates any layer.
type Manager struct {
	mu       sync.RWMutex
	defaults Params
	instance Params
}

// NewManager creates a Manager from provider defaults and instance
// configuration. Either layer may be nil.
func NewManager(defaults, instance Params) *Manager {
	return &Manager{
		defaults: defaults.Clone(),
		instance: instance.Clone(),
	}
}

// Get returns the merged value for a parameter: the instance layer wins over
// defaults. The bool is false when neither layer has the parameter.
func (m *Manager) Get(key Param) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if v, ok := m.instance[key]; ok && v != nil {
		return v, true
	}
	v, ok := m.defaults[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// GetString returns the merged parameter as a string, or def when unset.
func (m *Manager) GetString(key Param, def string) string {
	if s, ok := m.Snapshot().String(key); ok {
		return s
	}
	return def
}

// GetFloat returns the merged parameter as a float64, or def when unset.
func (m *Manager) GetFloat(key Param, def float64) float64 {
	if f, ok := m.Snapshot().Float(key); ok {
		return f
	}
	return def
}

// GetInt returns the merged parameter as an int, or def when unset.
func (m *Manager) GetInt(key Param, def int) int {
	if n, ok := m.Snapshot().Int(key); ok {
		return n
	}
	return def
}

// Set updates a single parameter in the instance layer.
func (m *Manager) Set(key Param, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.instance == nil {
		m.instance = Params{}
	}
	m.instance[key] = value
}

// Update merges the given parameters into the instance layer. nil values are
// skipped so they cannot mask defaults.
func (m *Manager) Update(p Params) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.instance == nil {
		m.instance = Params{}
	}
	for k, v := range p {
		if v == nil {
			continue
		}
		m.instance[k] = v
	}
}

// Snapshot returns a copy of the merged defaults and instance layers. The
// caller may mutate the result freely.
func (m *Manager) Snapshot() Params {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.defaults.Clone()
	for k, v := range m.instance {
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}

// Resolve merges per-call overrides on top of the defaults and instance
// layers and returns the resulting parameter set. Precedence, lowest to
// highest: defaults, instance, overrides. The result is a fresh map with a
// one-call lifetime; no layer is modified.
func (m *Manager) Resolve(overrides Params) Params {
	out := m.Snapshot()
	for k, v := range overrides {
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}
