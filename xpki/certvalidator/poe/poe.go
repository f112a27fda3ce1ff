// Package poe implements the proof-of-existence bookkeeping used by
// long-term certificate validation: a claim that a given byte string (a
// certificate, a CRL, an OCSP response) existed no later than a given time.
package poe

import (
	"crypto"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/go-phorce/pkixvalidator/xpki/certutil"
	"github.com/juju/errors"
)

// Digest is the 32-byte SHA-256 digest of a piece of POE-tracked data.
type Digest [sha256.Size]byte

// DigestOf returns the POE digest of data.
func DigestOf(data []byte) Digest {
	var d Digest
	copy(d[:], certutil.SHA256(data))
	return d
}

// String renders the digest in the {alg}:{hex} form Entries serialize to.
func (d Digest) String() string {
	return certutil.HashAlgoToStr(crypto.SHA256) + ":" + hex.EncodeToString(d[:])
}

// ParseDigest parses the {alg}:{hex} form produced by Digest.String. Only
// 32-byte SHA-256 digests are accepted.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	h, raw, err := certutil.ParseHexDigestWithPrefix(s)
	if err != nil {
		return d, errors.Trace(err)
	}
	if h.Size() != sha256.Size || len(raw) != sha256.Size {
		return d, errors.Errorf("poe: digest must be %d bytes, got %d", sha256.Size, len(raw))
	}
	copy(d[:], raw)
	return d, nil
}

// Entry is one registered (digest, time) pair.
type Entry struct {
	Digest Digest
	Time   time.Time
}

// Map is a mapping digest -> earliest known existence time. Registering a
// later time for an already-known digest is a no-op; registering an earlier
// time lowers the stored value. Map is safe for concurrent use.
type Map struct {
	mu    sync.Mutex
	clock func() time.Time
	byKey map[Digest]time.Time
}

// New returns an empty POE map. clock defaults to time.Now when nil; tests
// may override it to make "access registers now" deterministic.
func New(clock func() time.Time) *Map {
	if clock == nil {
		clock = time.Now
	}
	return &Map{clock: clock, byKey: make(map[Digest]time.Time)}
}

// Register stores dt for digest if dt is earlier than any previously
// registered time, or if digest has never been seen. Returns the resulting
// (possibly unchanged) stored time.
func (m *Map) Register(digest Digest, dt time.Time) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byKey[digest]
	if !ok || dt.Before(cur) {
		m.byKey[digest] = dt
		return dt
	}
	return cur
}

// RegisterData hashes data and registers dt for its digest.
func (m *Map) RegisterData(data []byte, dt time.Time) Digest {
	d := DigestOf(data)
	m.Register(d, dt)
	return d
}

// Get returns the stored time for digest. If the digest has never been
// registered, this call registers the current clock time as a side effect
// and returns it: an access without a known POE time is itself taken as
// proof the data exists now.
func (m *Map) Get(digest Digest) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.byKey[digest]; ok {
		return t
	}
	now := m.clock()
	m.byKey[digest] = now
	return now
}

// Peek returns the stored time without the registering side effect of Get.
func (m *Map) Peek(digest Digest) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byKey[digest]
	return t, ok
}

// Entries returns all (digest, time) pairs, for serialization.
func (m *Map) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.byKey))
	for d, t := range m.byKey {
		out = append(out, Entry{Digest: d, Time: t})
	}
	return out
}

// Merge folds other into m, keeping the pointwise minimum time per digest.
// Merging a map with itself is the identity.
func (m *Map) Merge(other *Map) {
	if other == nil {
		return
	}
	for _, e := range other.Entries() {
		m.Register(e.Digest, e.Time)
	}
}

// Load rebuilds a Map from previously serialized entries, applying the same
// pointwise-minimum rule as Register.
func Load(clock func() time.Time, entries []Entry) (*Map, error) {
	m := New(clock)
	for _, e := range entries {
		if e.Time.IsZero() {
			return nil, errors.Errorf("poe: entry for digest %x has zero time", e.Digest)
		}
		m.Register(e.Digest, e.Time)
	}
	return m, nil
}
