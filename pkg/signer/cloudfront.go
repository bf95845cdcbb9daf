package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMissingCredentials key pair id or private key not available
	ErrMissingCredentials = errors.New("signing credentials unavailable")
	// ErrExpired signed url used after its expiry
	ErrExpired = errors.New("signed url expired")
	// ErrBadSignature signature does not match resource and expiry
	ErrBadSignature = errors.New("signed url signature mismatch")
)

const hashAlgorithm = "SHA256"

// cloudfront 的 url-safe base64 替換規則
var urlSafe = strings.NewReplacer("+", "-", "=", "_", "/", "~")
var urlUnsafe = strings.NewReplacer("-", "+", "_", "=", "~", "/")

// Signed one signed url
type Signed struct {
	URL       string
	Signature string
	ExpiresAt time.Time
}

// CloudFrontSigner canned policy signer
type CloudFrontSigner struct {
	keyPairID string
	key       *rsa.PrivateKey
}

// NewCloudFrontSigner keyPairID and key are both required
func NewCloudFrontSigner(keyPairID string, key *rsa.PrivateKey) (*CloudFrontSigner, error) {
	if strings.TrimSpace(keyPairID) == "" || key == nil {
		return nil, ErrMissingCredentials
	}
	return &CloudFrontSigner{keyPairID: keyPairID, key: key}, nil
}

// LoadPrivateKey read a PKCS#1 or PKCS#8 RSA key, pemData wins over path
func LoadPrivateKey(path, pemData string) (*rsa.PrivateKey, error) {
	raw := []byte(pemData)
	if len(raw) == 0 {
		if path == "" {
			return nil, ErrMissingCredentials
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMissingCredentials, err)
		}
		raw = b
	}
	return ParsePrivateKey(raw)
}

// ParsePrivateKey decode a PEM RSA private key
func ParsePrivateKey(raw []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrMissingCredentials)
	}
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingCredentials, err)
	}
	k, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: key is not RSA", ErrMissingCredentials)
	}
	return k, nil
}

// Sign resourceURL valid until expiresAt
func (s *CloudFrontSigner) Sign(resourceURL string, expiresAt time.Time) (Signed, error) {
	expires := expiresAt.Unix()
	digest := sha256.Sum256(cannedPolicy(resourceURL, expires))

	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return Signed{}, fmt.Errorf("sign %s: %w", resourceURL, err)
	}
	encoded := urlSafe.Replace(base64.StdEncoding.EncodeToString(sig))

	q := url.Values{}
	q.Set("Expires", strconv.FormatInt(expires, 10))
	q.Set("Signature", encoded)
	q.Set("Key-Pair-Id", s.keyPairID)
	q.Set("Hash-Algorithm", hashAlgorithm)

	sep := "?"
	if strings.Contains(resourceURL, "?") {
		sep = "&"
	}
	return Signed{
		URL:       resourceURL + sep + q.Encode(),
		Signature: encoded,
		ExpiresAt: time.Unix(expires, 0).UTC(),
	}, nil
}

func cannedPolicy(resource string, expires int64) []byte {
	return []byte(fmt.Sprintf(`{"Statement":[{"Resource":"%s","Condition":{"DateLessThan":{"AWS:EpochTime":%d}}}]}`, resource, expires))
}

// Verifier check urls produced by CloudFrontSigner
type Verifier struct {
	keys map[string]*rsa.PublicKey
	now  func() time.Time
}

// NewVerifier keys by key pair id
func NewVerifier(keys map[string]*rsa.PublicKey, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{keys: keys, now: now}
}

// Verify returns the resource url when signature and expiry hold
func (v *Verifier) Verify(signedURL string) (string, error) {
	u, err := url.Parse(signedURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	q := u.Query()

	expires, err := strconv.ParseInt(q.Get("Expires"), 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: bad Expires", ErrBadSignature)
	}
	if q.Get("Hash-Algorithm") != hashAlgorithm {
		return "", fmt.Errorf("%w: unsupported hash algorithm", ErrBadSignature)
	}
	pub, ok := v.keys[q.Get("Key-Pair-Id")]
	if !ok {
		return "", fmt.Errorf("%w: unknown key pair", ErrBadSignature)
	}
	sig, err := base64.StdEncoding.DecodeString(urlUnsafe.Replace(q.Get("Signature")))
	if err != nil {
		return "", fmt.Errorf("%w: bad encoding", ErrBadSignature)
	}

	for _, k := range []string{"Expires", "Signature", "Key-Pair-Id", "Hash-Algorithm"} {
		q.Del(k)
	}
	u.RawQuery = q.Encode()
	resource := u.String()

	digest := sha256.Sum256(cannedPolicy(resource, expires))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return "", ErrBadSignature
	}
	if v.now().After(time.Unix(expires, 0)) {
		return "", ErrExpired
	}
	return resource, nil
}
