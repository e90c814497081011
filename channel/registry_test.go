package channel

import (
	"testing"
	"time"
)

func TestNewSeedsDefaultChannelFirst(t *testing.T) {
	r := New()
	added := r.Added()
	if len(added) != 1 || added[0].Name != DefaultName {
		t.Fatalf("Added() = %+v, want [#mchat]", added)
	}
}

func TestDefaultChannelNotRemovable(t *testing.T) {
	r := New()
	if err := r.Del(DefaultName); err != ErrProtected {
		t.Errorf("Del(#mchat) = %v, want ErrProtected", err)
	}
}

func TestCannotRemoveCurrentChannel(t *testing.T) {
	r := New()
	r.Add("#dev", "230.0.0.2", 9010)
	r.SetCurrent("#dev", true)

	if err := r.Del("#dev"); err != ErrInUse {
		t.Errorf("Del(current) = %v, want ErrInUse", err)
	}

	r.SetCurrent("", false)
	if err := r.Del("#dev"); err != nil {
		t.Errorf("Del(#dev) after disconnect = %v, want nil", err)
	}
}

func TestAddAdoptsFromDiscovered(t *testing.T) {
	r := New()
	r.UpdateDiscovered("#dev", "230.0.0.2", 9010, time.Now())

	c, err := r.Add("#dev", "", 0)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if c.Address != "230.0.0.2" || c.Port != 9010 {
		t.Errorf("Add() = %+v, want adopted discovered fields", c)
	}
	if _, ok := r.AddedByName("#dev"); !ok {
		t.Errorf("AddedByName(#dev) not found after Add")
	}
}

func TestAddWithoutDiscoveredFails(t *testing.T) {
	r := New()
	if _, err := r.Add("#ghost", "", 0); err != ErrNotFound {
		t.Errorf("Add() = %v, want ErrNotFound", err)
	}
}

func TestChannelIDStability(t *testing.T) {
	a := ID("#dev", "230.0.0.2", 9010)
	b := ID("#dev", "230.0.0.2", 9010)
	if a != b {
		t.Errorf("ID() not deterministic: %d != %d", a, b)
	}

	// FNV-1a by hand for the same inputs, per spec's exact offset/prime.
	const offset32 = 0x811c9dc5
	const prime32 = 0x01000193
	h := uint32(offset32)
	for _, b := range []byte("#dev") {
		h ^= uint32(b)
		h *= prime32
	}
	for _, b := range []byte("230.0.0.2") {
		h ^= uint32(b)
		h *= prime32
	}
	h ^= uint32(9010) & 0xff
	h *= prime32
	h ^= uint32(9010>>8) & 0xff
	h *= prime32

	if a != h {
		t.Errorf("ID() = %d, want %d (hand-computed FNV-1a)", a, h)
	}
}

func TestUpdateDiscoveredDedupesByID(t *testing.T) {
	r := New()
	t0 := time.Unix(1000, 0)
	t1 := t0.Add(5 * time.Second)

	r.UpdateDiscovered("#dev", "230.0.0.2", 9010, t0)
	r.UpdateDiscovered("#dev", "230.0.0.2", 9010, t1)

	discovered := r.Discovered()
	if len(discovered) != 1 {
		t.Fatalf("len(Discovered()) = %d, want 1", len(discovered))
	}
	if !discovered[0].LastSeen.Equal(t1) {
		t.Errorf("LastSeen = %v, want refreshed to %v", discovered[0].LastSeen, t1)
	}
}

func TestDiscoveredExpiry(t *testing.T) {
	r := New()
	t0 := time.Unix(1000, 0)
	r.UpdateDiscovered("#dev", "230.0.0.2", 9010, t0)

	const cdscInterval = 10 * time.Second
	const maxAge = 5 * cdscInterval // 50s, per spec.

	r.ExpireDiscovered(maxAge, t0.Add(maxAge-time.Millisecond))
	if len(r.Discovered()) != 1 {
		t.Errorf("channel expired early")
	}

	r.ExpireDiscovered(maxAge, t0.Add(maxAge+time.Millisecond))
	if len(r.Discovered()) != 0 {
		t.Errorf("channel survived past expiry")
	}
}
