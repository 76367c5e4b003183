package discovery

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"tarun-kavipurapu/lanfetch/pkg/protocol"
)

// PeerRecord is what we know about one discovered device.
// Address comes from the datagram's source; Port and Protocol from its payload.
type PeerRecord struct {
	Device    protocol.DeviceInfo
	Version   string
	Address   string
	Port      uint16
	Protocol  protocol.Protocol
	Download  bool
	FirstSeen time.Time
	LastSeen  time.Time
}

// HostPort returns address:port for dialing the peer's API.
func (p PeerRecord) HostPort() string {
	return net.JoinHostPort(p.Address, strconv.Itoa(int(p.Port)))
}

// BaseURL returns the root of the peer's HTTP API.
func (p PeerRecord) BaseURL() string {
	proto := p.Protocol
	if proto == "" {
		proto = protocol.ProtocolHTTP
	}
	return fmt.Sprintf("%s://%s", proto, p.HostPort())
}

func (p PeerRecord) String() string {
	mode := "upload"
	if p.Download {
		mode = "download"
	}
	return fmt.Sprintf("%s @%s [%s]", p.Device, p.BaseURL(), mode)
}

// UpsertResult tells whether an upsert created, refreshed or skipped a record.
type UpsertResult int

const (
	Ignored UpsertResult = iota
	Added
	Updated
)

func (r UpsertResult) String() string {
	switch r {
	case Added:
		return "added"
	case Updated:
		return "updated"
	default:
		return "ignored"
	}
}

// Registry holds at most one PeerRecord per fingerprint and never one for
// the local device.
type Registry struct {
	mu    sync.RWMutex
	self  string
	peers map[string]*PeerRecord
	now   func() time.Time
}

// NewRegistry creates an empty registry that rejects selfFingerprint.
func NewRegistry(selfFingerprint string) *Registry {
	return &Registry{
		self:  selfFingerprint,
		peers: make(map[string]*PeerRecord),
		now:   time.Now,
	}
}

// Upsert inserts rec or overwrites the record with the same fingerprint.
// FirstSeen survives refreshes; LastSeen is set to now.
func (r *Registry) Upsert(rec PeerRecord) (PeerRecord, UpsertResult) {
	fp := rec.Device.Fingerprint
	if fp == "" || fp == r.self {
		return PeerRecord{}, Ignored
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	rec.LastSeen = now
	if existing, ok := r.peers[fp]; ok {
		rec.FirstSeen = existing.FirstSeen
		*existing = rec
		return rec, Updated
	}

	rec.FirstSeen = now
	r.peers[fp] = &rec
	return rec, Added
}

// Get returns a copy of the record for fingerprint.
func (r *Registry) Get(fingerprint string) (PeerRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[fingerprint]
	if !ok {
		return PeerRecord{}, false
	}
	return *p, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Snapshot copies the registry contents.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(Snapshot, len(r.peers))
	for fp, p := range r.peers {
		out[fp] = *p
	}
	return out
}

// Snapshot maps fingerprint to the record as it was when the copy was taken.
type Snapshot map[string]PeerRecord

// Sorted returns records in order of first sighting.
func (s Snapshot) Sorted() []PeerRecord {
	out := make([]PeerRecord, 0, len(s))
	for _, p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].FirstSeen.Before(out[j].FirstSeen)
		}
		return out[i].Device.Fingerprint < out[j].Device.Fingerprint
	})
	return out
}

// Find matches query against fingerprint, then alias (case-insensitive),
// then address.
func (s Snapshot) Find(query string) (PeerRecord, bool) {
	if p, ok := s[query]; ok {
		return p, true
	}
	sorted := s.Sorted()
	for _, p := range sorted {
		if strings.EqualFold(p.Device.Alias, query) {
			return p, true
		}
	}
	for _, p := range sorted {
		if p.Address == query || p.HostPort() == query {
			return p, true
		}
	}
	return PeerRecord{}, false
}
