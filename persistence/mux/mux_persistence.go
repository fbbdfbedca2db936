// Package mux_persistence fans a Set out to every backing persistence.Store
// and answers reads from the first backend that doesn't decline with
// persistence.ErrNotImplemented, grounded on the teacher's own
// MuxPersistence (persistence/mux/mux_persistence.go).
package mux_persistence

import (
	P "github.com/lxyhome-bit/indirect-jmp/persistence"
)

type MuxPersistence struct {
	others []P.Store
}

// New constructs a new MuxPersistence instance.
func New(others ...P.Store) (*MuxPersistence, error) {
	return &MuxPersistence{others: others}, nil
}

func (m *MuxPersistence) Set(kind P.Kind, addr uint64, targets []uint64) error {
	var ret error
	for _, p := range m.others {
		if e := p.Set(kind, addr, targets); e != P.ErrNotImplemented && e != nil {
			ret = e
		}
	}
	return ret
}

func (m *MuxPersistence) Get(kind P.Kind, addr uint64) ([]uint64, error) {
	var ret error
	for _, p := range m.others {
		v, e := p.Get(kind, addr)
		if e != P.ErrNotImplemented && e != nil {
			ret = e
			continue
		}
		if e != P.ErrNotImplemented {
			return v, nil
		}
	}
	return nil, ret
}

func (m *MuxPersistence) All(kind P.Kind) (map[uint64][]uint64, error) {
	var ret error
	for _, p := range m.others {
		v, e := p.All(kind)
		if e != P.ErrNotImplemented && e != nil {
			ret = e
			continue
		}
		if e != P.ErrNotImplemented {
			return v, nil
		}
	}
	return nil, ret
}
