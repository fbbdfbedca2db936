package artifacts

import "testing"

func TestNewLoggingArtifactCollectionNeverFails(t *testing.T) {
	coll, err := NewLoggingArtifactCollection()
	if err != nil {
		t.Fatalf("NewLoggingArtifactCollection: %s", err)
	}
	if err := coll.AddIndirectJump(0x1000, 0x2000); err != nil {
		t.Fatalf("AddIndirectJump: %s", err)
	}
	if err := coll.AddJumpTableEntry(0x3000, 2, 0x3010); err != nil {
		t.Fatalf("AddJumpTableEntry: %s", err)
	}
	if err := coll.AddVfuncEdge(0x4000, 0x5000); err != nil {
		t.Fatalf("AddVfuncEdge: %s", err)
	}
}
