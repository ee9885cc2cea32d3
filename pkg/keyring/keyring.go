// Package keyring implements the provider's signing key store: a rotating
// set of asymmetric signing keys plus a pair of permanent symmetric keys,
// published as an immutable snapshot so token signing never observes a
// half-finished rotation.
package keyring

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Kind identifies a key family. Signing key selection happens per family.
type Kind string

const (
	RSA        Kind = "RSA"
	ECP256     Kind = "EC-P256"
	ECP384     Kind = "EC-P384"
	ECP521     Kind = "EC-P521"
	HMACSHA256 Kind = "HMAC-SHA256"
	AES128     Kind = "AES-128"
	AES256     Kind = "AES-256"
)

// Use mirrors the JWK "use" parameter.
type Use string

const (
	UseSignature  Use = "sig"
	UseEncryption Use = "enc"
)

// Fixed identifiers for the permanent keys. Rotating keys derive their id
// from the RFC 7638 thumbprint of their material instead.
const (
	KeyIDHMAC           = "hmac"
	KeyIDSubjectEncrypt = "subject-encrypt"
)

// ErrKeyNotFound reports that no key satisfies a selection. For signing key
// selection this is a configuration defect: the provider must not issue
// tokens without a complete key set.
var ErrKeyNotFound = errors.New("keyring: key not found")

// Key couples JWK material with its lifecycle metadata.
type Key struct {
	Kind      Kind
	Use       Use
	JWK       jwk.Key
	CreatedAt time.Time
	Permanent bool
}

// ID returns the key identifier (kid).
func (k Key) ID() string { return k.JWK.KeyID() }

// snapshot is an immutable view of the key set. Readers grab the whole thing
// with a single atomic load; Rotate builds a replacement and swaps it in.
type snapshot struct {
	keys    []Key
	byID    map[string]Key
	current map[Kind]Key
}

func (s *snapshot) index() {
	s.byID = make(map[string]Key, len(s.keys))
	for _, k := range s.keys {
		s.byID[k.ID()] = k
	}
}

type Config struct {
	// RetentionPeriod is how long a retired key stays resolvable by kid for
	// verification of previously issued tokens. Defaults to 28 days.
	RetentionPeriod time.Duration

	// RSABits is the modulus size for rotating RSA keys. Defaults to 2048.
	RSABits int

	// Now overrides the clock, for retention tests. nil means time.Now.
	Now func() time.Time
}

// Keyring is the signing key store. All read operations work on the current
// snapshot and never block; Rotate and InitPermanentKeys serialize behind a
// mutex and publish a fresh snapshot atomically.
type Keyring struct {
	retention time.Duration
	rsaBits   int
	nowFn     func() time.Time

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

func New(cfg Config) *Keyring {
	if cfg.RetentionPeriod <= 0 {
		cfg.RetentionPeriod = 28 * 24 * time.Hour
	}
	if cfg.RSABits == 0 {
		cfg.RSABits = 2048
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	r := &Keyring{
		retention: cfg.RetentionPeriod,
		rsaBits:   cfg.RSABits,
		nowFn:     cfg.Now,
	}

	empty := &snapshot{current: map[Kind]Key{}}
	empty.index()
	r.snap.Store(empty)
	return r
}

// InitPermanentKeys generates the fixed-id HMAC signing key and subject
// encryption key if they do not exist yet. Safe to call on every startup.
func (r *Keyring) InitPermanentKeys() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.snap.Load()
	if _, ok := prev.byID[KeyIDHMAC]; ok {
		return nil
	}

	now := r.nowFn()

	hmacKey, err := generateOctetKey(32, HMACSHA256, UseSignature, KeyIDHMAC, now)
	if err != nil {
		return err
	}
	subjectKey, err := generateOctetKey(32, AES256, UseEncryption, KeyIDSubjectEncrypt, now)
	if err != nil {
		return err
	}
	hmacKey.Permanent = true
	subjectKey.Permanent = true

	next := &snapshot{
		keys:    append([]Key{hmacKey, subjectKey}, prev.keys...),
		current: prev.current,
	}
	next.index()
	r.snap.Store(next)
	return nil
}

// Rotate generates a fresh rotating batch (RSA-2048, EC P-256/P-384/P-521
// signature keys and an AES-128 encryption key), promotes it to current,
// demotes the previous batch to verification-only, and purges retired keys
// whose retention window has elapsed. A generation failure leaves the
// previous snapshot fully intact.
func (r *Keyring) Rotate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFn()

	batch, err := generateRotatingBatch(r.rsaBits, now)
	if err != nil {
		return err
	}

	prev := r.snap.Load()
	cutoff := now.Add(-r.retention)

	next := &snapshot{
		keys:    append([]Key{}, batch...),
		current: make(map[Kind]Key, len(batch)),
	}
	for _, k := range batch {
		next.current[k.Kind] = k
	}
	for _, k := range prev.keys {
		if k.Permanent || k.CreatedAt.After(cutoff) {
			next.keys = append(next.keys, k)
		}
	}
	next.index()

	r.snap.Store(next)
	return nil
}

// SelectSigningKey returns the current signature key of the given family.
func (r *Keyring) SelectSigningKey(kind Kind) (Key, error) {
	key, ok := r.snap.Load().current[kind]
	if !ok || key.Use != UseSignature {
		return Key{}, ErrKeyNotFound
	}
	return key, nil
}

// FindByKeyID resolves a key by kid. Retired keys stay resolvable until
// their retention window lapses; permanent keys always resolve.
func (r *Keyring) FindByKeyID(kid string) (Key, bool) {
	key, ok := r.snap.Load().byID[kid]
	return key, ok
}

// FindAll returns the public halves of all asymmetric keys as a JWK set for
// publication. Symmetric keys carry secret material only and are never
// published.
func (r *Keyring) FindAll() (jwk.Set, error) {
	set := jwk.NewSet()
	for _, k := range r.snap.Load().keys {
		if k.Kind == HMACSHA256 || k.Kind == AES128 || k.Kind == AES256 {
			continue
		}
		pub, err := jwk.PublicKeyOf(k.JWK)
		if err != nil {
			return nil, err
		}
		if err := set.AddKey(pub); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// All returns every key currently held, including retired and permanent
// keys. Useful for introspection and tests.
func (r *Keyring) All() []Key {
	keys := r.snap.Load().keys
	out := make([]Key, len(keys))
	copy(out, keys)
	return out
}
