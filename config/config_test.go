package config

import (
	"testing"

	"github.com/lxyhome-bit/indirect-jmp/persistence"
)

func TestMakeDefaultPersistenceSetThenGetRoundTrips(t *testing.T) {
	store, err := MakeDefaultPersistence()
	if err != nil {
		t.Fatalf("MakeDefaultPersistence: %s", err)
	}

	const loc, target = 0x1000, 0x2000
	if err := store.Set(persistence.IndirectJump, loc, []uint64{target}); err != nil {
		t.Fatalf("Set: %s", err)
	}

	got, err := store.Get(persistence.IndirectJump, loc)
	if err != nil {
		t.Fatalf("Get: %s", err)
	}
	if len(got) != 1 || got[0] != target {
		t.Fatalf("Get = %v, want [%#x] (the memory backend should answer, the logging backend only traces)", got, target)
	}
}

func TestMakeDefaultPersistenceUnknownAddrIsEmpty(t *testing.T) {
	store, err := MakeDefaultPersistence()
	if err != nil {
		t.Fatalf("MakeDefaultPersistence: %s", err)
	}
	got, err := store.Get(persistence.Vfunc, 0xdeadbeef)
	if err != nil {
		t.Fatalf("Get: %s", err)
	}
	if len(got) != 0 {
		t.Fatalf("Get on an unknown addr = %v, want empty", got)
	}
}
