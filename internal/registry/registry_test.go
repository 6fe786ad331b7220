package registry

import (
	"testing"

	"lanhub/internal/protocolerr"
)

func TestRegisterMonotonicUIDs(t *testing.T) {
	r := New()
	var uids []uint64
	for _, name := range []string{"a", "b", "c"} {
		uid, err := r.Register(name)
		if err != nil {
			t.Fatalf("register %q: %v", name, err)
		}
		uids = append(uids, uid)
	}
	for i := 1; i < len(uids); i++ {
		if uids[i] <= uids[i-1] {
			t.Fatalf("uids not strictly increasing: %v", uids)
		}
	}
	if uids[0] != 1 {
		t.Fatalf("first uid = %d, want 1", uids[0])
	}
}

func TestRegisterEmptyName(t *testing.T) {
	r := New()
	if _, err := r.Register(""); err != protocolerr.ErrNameEmpty {
		t.Fatalf("err = %v, want ErrNameEmpty", err)
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	r := New()
	uid, _ := r.Register("a")
	r.Unregister(uid)
	r.Unregister(uid) // must not panic

	if _, ok := r.Lookup(uid); ok {
		t.Fatalf("lookup succeeded after unregister")
	}
}

func TestSnapshotReflectsRegistrations(t *testing.T) {
	r := New()
	uidA, _ := r.Register("A")
	uidB, _ := r.Register("B")

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("len(snapshot) = %d, want 2", len(snap))
	}
	if snap[0].UID != uidA || snap[1].UID != uidB {
		t.Fatalf("snapshot not in uid order: %+v", snap)
	}

	r.Unregister(uidA)
	snap = r.Snapshot()
	if len(snap) != 1 || snap[0].UID != uidB {
		t.Fatalf("snapshot after unregister = %+v", snap)
	}
}

func TestLookupUnknown(t *testing.T) {
	r := New()
	if _, ok := r.Lookup(999); ok {
		t.Fatalf("lookup of unknown uid succeeded")
	}
}
