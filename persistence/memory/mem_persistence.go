// Package mem_persistence is the in-memory persistence.Store backend: a
// plain nested map guarded by a mutex, grounded on the teacher's own
// MemPersistence (persistence/memory/mem_persistence.go), narrowed to the
// Kind/addr/targets shape this engine's driver produces.
package mem_persistence

import (
	"sync"

	P "github.com/lxyhome-bit/indirect-jmp/persistence"
)

type MemPersistence struct {
	mu   sync.Mutex
	data map[P.Kind]map[uint64]map[uint64]struct{}
}

// New constructs an empty MemPersistence.
func New() (*MemPersistence, error) {
	return &MemPersistence{data: make(map[P.Kind]map[uint64]map[uint64]struct{})}, nil
}

func (m *MemPersistence) Set(kind P.Kind, addr uint64, targets []uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byAddr, ok := m.data[kind]
	if !ok {
		byAddr = make(map[uint64]map[uint64]struct{})
		m.data[kind] = byAddr
	}
	set, ok := byAddr[addr]
	if !ok {
		set = make(map[uint64]struct{})
		byAddr[addr] = set
	}
	for _, t := range targets {
		set[t] = struct{}{}
	}
	return nil
}

func (m *MemPersistence) Get(kind P.Kind, addr uint64) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.data[kind][addr]
	if !ok {
		return nil, nil
	}
	out := make([]uint64, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	return out, nil
}

func (m *MemPersistence) All(kind P.Kind) (map[uint64][]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint64][]uint64, len(m.data[kind]))
	for addr, set := range m.data[kind] {
		targets := make([]uint64, 0, len(set))
		for t := range set {
			targets = append(targets, t)
		}
		out[addr] = targets
	}
	return out, nil
}
