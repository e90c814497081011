// Package peer implements the peer table: the mapping from a sender's
// source IPv4 address to the last-seen presence descriptor for that peer,
// as maintained by the text and common receive workers and swept for
// expiry by the common receive worker's tick.
package peer

import (
	"net/netip"
	"sync"
	"time"
)

// Peer is a last-seen presence descriptor. Identity is SourceAddress.
type Peer struct {
	Nickname      string
	Channel       string
	LastSeen      time.Time
	SourceAddress netip.Addr
}

// Table is a mutex-guarded mapping from source address to Peer. The zero
// value is not usable; construct with New.
type Table struct {
	mu    sync.RWMutex
	peers map[netip.Addr]Peer
	nowFn func() time.Time
}

// New returns an empty Table.
func New() *Table {
	return &Table{
		peers: make(map[netip.Addr]Peer),
		nowFn: time.Now,
	}
}

// Query returns the Peer last recorded for addr, if any.
func (t *Table) Query(addr netip.Addr) (Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[addr]
	return p, ok
}

// Update records a sighting of addr with the given nickname and channel,
// stamping LastSeen with the table's clock. Calling Update repeatedly for
// the same addr leaves exactly one entry, with the most recently observed
// nickname and channel and a monotonically non-decreasing LastSeen.
func (t *Table) Update(addr netip.Addr, nickname, channel string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[addr] = Peer{
		Nickname:      nickname,
		Channel:       channel,
		LastSeen:      t.nowFn(),
		SourceAddress: addr,
	}
}

// Expire removes every peer whose LastSeen is older than maxAge relative to
// the table's clock.
func (t *Table) Expire(maxAge time.Duration) {
	now := t.nowFn()
	t.mu.Lock()
	defer t.mu.Unlock()
	for addr, p := range t.peers {
		if now.Sub(p.LastSeen) > maxAge {
			delete(t.peers, addr)
		}
	}
}

// Snapshot returns a caller-owned copy of every peer currently in the
// table, in no particular order.
func (t *Table) Snapshot() []Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p)
	}
	return out
}

// Len returns the current number of tracked peers.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}

// SetClock overrides the table's time source. Used by tests to exercise
// expiry boundaries without sleeping.
func (t *Table) SetClock(nowFn func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nowFn = nowFn
}
