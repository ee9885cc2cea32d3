package keyring

import (
	"sync"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/stretchr/testify/require"
)

// testKeyring builds a keyring with a controllable clock and small RSA keys
// so rotation-heavy tests stay fast.
func testKeyring(t *testing.T, now *time.Time) *Keyring {
	t.Helper()
	return New(Config{
		RetentionPeriod: 28 * 24 * time.Hour,
		RSABits:         2048,
		Now:             func() time.Time { return *now },
	})
}

func TestInitPermanentKeys(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := testKeyring(t, &now)

	require.NoError(t, r.InitPermanentKeys())

	t.Run("permanent keys have fixed ids", func(t *testing.T) {
		hmacKey, ok := r.FindByKeyID(KeyIDHMAC)
		require.True(t, ok)
		require.Equal(t, HMACSHA256, hmacKey.Kind)
		require.Equal(t, UseSignature, hmacKey.Use)
		require.True(t, hmacKey.Permanent)

		subjectKey, ok := r.FindByKeyID(KeyIDSubjectEncrypt)
		require.True(t, ok)
		require.Equal(t, AES256, subjectKey.Kind)
		require.Equal(t, UseEncryption, subjectKey.Use)
		require.True(t, subjectKey.Permanent)
	})

	t.Run("calling again does not mint new keys", func(t *testing.T) {
		before, _ := r.FindByKeyID(KeyIDHMAC)
		require.NoError(t, r.InitPermanentKeys())
		after, _ := r.FindByKeyID(KeyIDHMAC)
		require.Equal(t, before.JWK, after.JWK)
		require.Len(t, r.All(), 2)
	})
}

func TestRotate(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := testKeyring(t, &now)
	require.NoError(t, r.InitPermanentKeys())
	require.NoError(t, r.Rotate())

	t.Run("batch covers every rotating kind", func(t *testing.T) {
		for _, kind := range []Kind{RSA, ECP256, ECP384, ECP521} {
			key, err := r.SelectSigningKey(kind)
			require.NoError(t, err)
			require.Equal(t, kind, key.Kind)
			require.Equal(t, UseSignature, key.Use)
			require.NotEmpty(t, key.ID())
		}
	})

	t.Run("encryption key is not selectable for signing", func(t *testing.T) {
		_, err := r.SelectSigningKey(AES128)
		require.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("rotating keys use thumbprint kids", func(t *testing.T) {
		key, err := r.SelectSigningKey(RSA)
		require.NoError(t, err)
		require.NotEqual(t, KeyIDHMAC, key.ID())
		// RFC 7638 thumbprints are 32 bytes, base64url encoded
		require.Len(t, key.ID(), 43)
	})

	t.Run("rotation replaces current but retains previous for lookup", func(t *testing.T) {
		previous, err := r.SelectSigningKey(RSA)
		require.NoError(t, err)

		now = now.Add(24 * time.Hour)
		require.NoError(t, r.Rotate())

		current, err := r.SelectSigningKey(RSA)
		require.NoError(t, err)
		require.NotEqual(t, previous.ID(), current.ID())

		retained, ok := r.FindByKeyID(previous.ID())
		require.True(t, ok)
		require.Equal(t, previous.ID(), retained.ID())
	})

	t.Run("keys past retention are purged, permanent keys survive", func(t *testing.T) {
		stale, err := r.SelectSigningKey(RSA)
		require.NoError(t, err)

		now = now.Add(29 * 24 * time.Hour)
		require.NoError(t, r.Rotate())

		_, ok := r.FindByKeyID(stale.ID())
		require.False(t, ok)

		_, ok = r.FindByKeyID(KeyIDHMAC)
		require.True(t, ok)
		_, ok = r.FindByKeyID(KeyIDSubjectEncrypt)
		require.True(t, ok)
	})
}

func TestSelectSigningKeyEmpty(t *testing.T) {
	t.Parallel()

	now := time.Now()
	r := testKeyring(t, &now)

	_, err := r.SelectSigningKey(RSA)
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestFindAll(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := testKeyring(t, &now)
	require.NoError(t, r.InitPermanentKeys())
	require.NoError(t, r.Rotate())

	set, err := r.FindAll()
	require.NoError(t, err)

	// 4 asymmetric keys; the symmetric HMAC, AES-128, and AES-256 keys must
	// never be published.
	require.Equal(t, 4, set.Len())

	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		require.True(t, ok)
		require.NotEqual(t, jwa.OctetSeq, key.KeyType())

		// Published keys must be public halves only.
		_, isPrivate := r.FindByKeyID(key.KeyID())
		require.True(t, isPrivate)
	}
}

func TestConcurrentReadDuringRotate(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	r := New(Config{
		RSABits: 2048,
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		},
	})
	require.NoError(t, r.InitPermanentKeys())
	require.NoError(t, r.Rotate())

	rotateErr := make(chan error, 1)
	go func() {
		for i := 0; i < 5; i++ {
			mu.Lock()
			now = now.Add(time.Hour)
			mu.Unlock()
			if err := r.Rotate(); err != nil {
				rotateErr <- err
				return
			}
		}
		rotateErr <- nil
	}()

	// Readers must always observe a complete batch, never a partial one.
	for {
		select {
		case err := <-rotateErr:
			require.NoError(t, err)
			return
		default:
			key, err := r.SelectSigningKey(RSA)
			require.NoError(t, err)
			require.Equal(t, RSA, key.Kind)
			_, ok := r.FindByKeyID(KeyIDHMAC)
			require.True(t, ok)
		}
	}
}
