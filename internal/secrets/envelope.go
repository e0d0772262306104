// internal/secrets/envelope.go
//
// Versioned authenticated envelope for tenant credentials at rest.
// Layout: {"version":1,"algorithm":"AES-256-GCM","nonce":...,"authTag":...,
// "ciphertext":...} with every binary field base64-encoded. A fresh 96-bit
// nonce is drawn per encryption; the 128-bit GCM tag is stored separately so
// the stored form stays self-describing.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	appErrors "github.com/mailkite/campaign-engine/internal/errors"
)

const (
	EnvelopeVersion   = 1
	EnvelopeAlgorithm = "AES-256-GCM"

	masterKeyLen = 32
	nonceLen     = 12
	tagLen       = 16
)

type Envelope struct {
	Version    int    `json:"version"`
	Algorithm  string `json:"algorithm"`
	Nonce      string `json:"nonce"`
	AuthTag    string `json:"authTag"`
	Ciphertext string `json:"ciphertext"`
}

// Encrypt seals plaintext under the 32-byte master key and returns a fresh
// envelope. The nonce is random per call and never reused.
func Encrypt(plaintext string, key []byte) (*Envelope, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ct := sealed[:len(sealed)-tagLen]
	tag := sealed[len(sealed)-tagLen:]

	return &Envelope{
		Version:    EnvelopeVersion,
		Algorithm:  EnvelopeAlgorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		AuthTag:    base64.StdEncoding.EncodeToString(tag),
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
	}, nil
}

// Decrypt opens the envelope and verifies its authentication tag. Tag failure
// surfaces as an IntegrityError and is never silently ignored.
func (e *Envelope) Decrypt(key []byte) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	if e.Version != EnvelopeVersion || e.Algorithm != EnvelopeAlgorithm {
		return "", appErrors.NewIntegrityError(
			fmt.Sprintf("unsupported envelope version=%d algorithm=%q", e.Version, e.Algorithm))
	}

	nonce, err := base64.StdEncoding.DecodeString(e.Nonce)
	if err != nil || len(nonce) != nonceLen {
		return "", appErrors.NewIntegrityError("malformed nonce")
	}
	tag, err := base64.StdEncoding.DecodeString(e.AuthTag)
	if err != nil || len(tag) != tagLen {
		return "", appErrors.NewIntegrityError("malformed auth tag")
	}
	ct, err := base64.StdEncoding.DecodeString(e.Ciphertext)
	if err != nil {
		return "", appErrors.NewIntegrityError("malformed ciphertext")
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	plain, err := gcm.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", appErrors.NewIntegrityError("authentication failed")
	}
	return string(plain), nil
}

// Encode returns the JSON form stored in the tenant_secrets table.
func (e *Envelope) Encode() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseEnvelope reports whether raw is a stored versioned envelope. Values
// that do not parse fall through to the legacy or plaintext paths.
func ParseEnvelope(raw string) (*Envelope, bool) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{") {
		return nil, false
	}
	var e Envelope
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, false
	}
	if e.Version == 0 || e.Algorithm == "" || e.Nonce == "" || e.Ciphertext == "" {
		return nil, false
	}
	return &e, true
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func checkKey(key []byte) error {
	if len(key) != masterKeyLen {
		return appErrors.NewConfigurationError(
			fmt.Sprintf("master key must be %d bytes, got %d", masterKeyLen, len(key)))
	}
	return nil
}
