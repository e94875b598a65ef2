// SPDX-License-Identifier: MIT
//
// Package params holds the tunable parameter model shared by server and
// client. A Model is immutable: every mutator returns a new Model and leaves
// the receiver untouched, so a snapshot handed to a renderer or an animator
// can be read without locks while the owning reactor derives the next one.
package params

import (
	"bbbtune/internal/errs"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
)

// Model is an immutable set of named parameters.
type Model struct {
	params  map[string]Param
	version uint64
}

// Entry pairs a key with its parameter for ordered iteration.
type Entry struct {
	Key string
	Param
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{params: map[string]Param{}}
}

func (m *Model) derive() *Model {
	return &Model{params: maps.Clone(m.params), version: m.version + 1}
}

// Register adds a parameter whose value starts at def.
func (m *Model) Register(key string, def, min, max float64, units string, scale Scale) (*Model, error) {
	if _, ok := m.params[key]; ok {
		return nil, fmt.Errorf("params: %s: %w", key, errs.ErrDuplicateKey)
	}
	p := Param{Value: def, Min: min, Max: max, Default: def, Units: units, Scale: scale}
	if err := p.validate(key); err != nil {
		return nil, err
	}
	next := m.derive()
	next.params[key] = p
	return next, nil
}

// Get returns a copy of the named parameter.
func (m *Model) Get(key string) (Param, error) {
	p, ok := m.params[key]
	if !ok {
		return Param{}, fmt.Errorf("params: %s: %w", key, errs.ErrUnknownKey)
	}
	return p, nil
}

// Set stores a raw value. Values outside the parameter's bounds are
// rejected rather than clamped.
func (m *Model) Set(key string, value float64) (*Model, error) {
	p, err := m.Get(key)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(value) {
		return nil, fmt.Errorf("params: %s: NaN value: %w", key, errs.ErrInvalidArgument)
	}
	if !p.Contains(value) {
		return nil, fmt.Errorf("params: %s: %v outside [%v, %v]: %w", key, value, p.Min, p.Max, errs.ErrOutOfRange)
	}
	p.Value = value
	next := m.derive()
	next.params[key] = p
	return next, nil
}

// SetFromPercent stores the value at the normalized position percent.
func (m *Model) SetFromPercent(key string, percent float64) (*Model, error) {
	p, err := m.Get(key)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(percent) || percent < 0 || percent > 1 {
		return nil, fmt.Errorf("params: %s: percent %v outside [0, 1]: %w", key, percent, errs.ErrInvalidArgument)
	}
	p.Value = p.ValueAt(percent)
	next := m.derive()
	next.params[key] = p
	return next, nil
}

// SetValues applies several raw values at once. Either all of them are
// applied or none.
func (m *Model) SetValues(values map[string]float64) (*Model, error) {
	next := m
	for _, key := range slices.Sorted(maps.Keys(values)) {
		var err error
		if next, err = next.Set(key, values[key]); err != nil {
			return nil, err
		}
	}
	if next == m {
		return m, nil
	}
	next.version = m.version + 1
	return next, nil
}

// PercentOf returns the normalized position of the current value.
func (m *Model) PercentOf(key string) (float64, error) {
	p, err := m.Get(key)
	if err != nil {
		return 0, err
	}
	return p.Percent(), nil
}

// Value returns the raw value of key, or def when the key is unknown.
func (m *Model) Value(key string, def float64) float64 {
	if p, ok := m.params[key]; ok {
		return p.Value
	}
	return def
}

// Snapshot returns an independent copy of every parameter keyed by name.
// It is also the wire form served at GET /params.
func (m *Model) Snapshot() map[string]Param {
	return maps.Clone(m.params)
}

// Keys returns the parameter names in sorted order.
func (m *Model) Keys() []string {
	return slices.Sorted(maps.Keys(m.params))
}

// Entries returns every parameter ordered by key.
func (m *Model) Entries() []Entry {
	out := make([]Entry, 0, len(m.params))
	for _, k := range m.Keys() {
		out = append(out, Entry{Key: k, Param: m.params[k]})
	}
	return out
}

// Len is the number of registered parameters.
func (m *Model) Len() int { return len(m.params) }

// Version increases by one on every derived model.
func (m *Model) Version() uint64 { return m.version }

// FromWire builds a model from a snapshot received from a peer. Every entry
// is validated the same way Register validates it.
func FromWire(snapshot map[string]Param) (*Model, error) {
	m := NewModel()
	for key, p := range snapshot {
		if err := p.validate(key); err != nil {
			return nil, err
		}
		m.params[key] = p
	}
	return m, nil
}

// MarshalJSON encodes the snapshot.
func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.params)
}
