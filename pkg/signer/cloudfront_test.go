package signer

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resource = "https://d111111abcdef8.cloudfront.net/renditions/0b6f/index.m3u8"

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return k
}

func TestNewCloudFrontSignerRequiresCredentials(t *testing.T) {
	_, err := NewCloudFrontSigner("", newKey(t))
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = NewCloudFrontSigner("K1", nil)
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestSignAndVerify(t *testing.T) {
	key := newKey(t)
	s, err := NewCloudFrontSigner("K1", key)
	require.NoError(t, err)

	issued := time.Unix(1700000000, 0)
	expires := issued.Add(5 * time.Hour)
	signed, err := s.Sign(resource, expires)
	require.NoError(t, err)

	u, err := url.Parse(signed.URL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "1700018000", q.Get("Expires"))
	assert.Equal(t, "K1", q.Get("Key-Pair-Id"))
	assert.Equal(t, "SHA256", q.Get("Hash-Algorithm"))
	assert.NotContains(t, signed.Signature, "+")
	assert.NotContains(t, signed.Signature, "/")
	assert.NotContains(t, signed.Signature, "=")
	assert.Equal(t, expires.UTC(), signed.ExpiresAt)

	keys := map[string]*rsa.PublicKey{"K1": &key.PublicKey}

	t.Run("valid before expiry", func(t *testing.T) {
		v := NewVerifier(keys, func() time.Time { return expires.Add(-time.Second) })
		got, err := v.Verify(signed.URL)
		require.NoError(t, err)
		assert.Equal(t, resource, got)
	})

	t.Run("valid at expiry", func(t *testing.T) {
		v := NewVerifier(keys, func() time.Time { return expires })
		_, err := v.Verify(signed.URL)
		assert.NoError(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		v := NewVerifier(keys, func() time.Time { return expires.Add(time.Second) })
		_, err := v.Verify(signed.URL)
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("expired within the same second", func(t *testing.T) {
		for _, d := range []time.Duration{time.Nanosecond, 900 * time.Millisecond} {
			v := NewVerifier(keys, func() time.Time { return expires.Add(d) })
			_, err := v.Verify(signed.URL)
			assert.ErrorIs(t, err, ErrExpired, "now = expiresAt+%s", d)
		}
	})

	t.Run("tampered resource", func(t *testing.T) {
		v := NewVerifier(keys, func() time.Time { return issued })
		_, err := v.Verify(strings.Replace(signed.URL, "0b6f", "ffff", 1))
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("extended expiry", func(t *testing.T) {
		v := NewVerifier(keys, func() time.Time { return issued })
		_, err := v.Verify(strings.Replace(signed.URL, "Expires=1700018000", "Expires=1800000000", 1))
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("other key", func(t *testing.T) {
		other := newKey(t)
		v := NewVerifier(map[string]*rsa.PublicKey{"K1": &other.PublicKey}, func() time.Time { return issued })
		_, err := v.Verify(signed.URL)
		assert.ErrorIs(t, err, ErrBadSignature)
	})
}

func TestLoadPrivateKey(t *testing.T) {
	key := newKey(t)

	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	got, err := LoadPrivateKey("", string(pkcs1))
	require.NoError(t, err)
	assert.True(t, key.Equal(got))

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pkcs8 := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	got, err = LoadPrivateKey("", string(pkcs8))
	require.NoError(t, err)
	assert.True(t, key.Equal(got))

	_, err = LoadPrivateKey("", "")
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = LoadPrivateKey("/does/not/exist.pem", "")
	assert.ErrorIs(t, err, ErrMissingCredentials)
}
