// Package storage provides the console's persisted key→string slots.
//
// A slot holds one opaque string. Callers own the encoding of what they
// put in a slot; the store never interprets values.
package storage

import (
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned by Get when a slot has never been written.
var ErrNotFound = errors.New("storage: slot not found")

// Slots is a flat key→string store.
type Slots interface {
	Get(slot string) (string, error)
	Set(slot, value string) error
	Close() error
}

// Memory is an in-process Slots implementation. The zero value is not
// usable; call NewMemory.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
	// FailWrites makes every Set fail, for exercising write-error paths.
	FailWrites bool
}

func NewMemory() *Memory {
	return &Memory{values: map[string]string{}}
}

func (m *Memory) Get(slot string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[slot]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *Memory) Set(slot, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return errors.New("storage: memory store is read-only")
	}
	m.values[slot] = value
	return nil
}

// Names lists written slots in sorted order.
func (m *Memory) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.values))
	for name := range m.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Memory) Close() error { return nil }
