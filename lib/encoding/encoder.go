// Package encoding implements the integrity and confidentiality primitives
// for component snapshots.
//
// It supports two modes:
//   - Checksum (default): HMAC-SHA256 over a canonical JSON serialization,
//     attached to the open snapshot - visible but tamper-proof
//   - Sealed: AES-256-GCM over a msgpack-packed snapshot - fully opaque
package encoding

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Sentinel errors for payload verification.
var (
	// ErrCorruptPayload indicates a checksum that is missing, malformed, or
	// does not match the payload. This is a trust-boundary failure, distinct
	// from a parse error.
	ErrCorruptPayload = errors.New("encoding: corrupt payload")

	// ErrSealedPayload indicates a sealed payload that could not be opened
	// (truncated, tampered, or encrypted under a different key).
	ErrSealedPayload = errors.New("encoding: sealed payload could not be opened")
)

// Codec derives checksums and seals snapshots under a single server-held key.
type Codec struct {
	key []byte
	gcm cipher.AEAD
}

// New creates a codec from the given key.
// Keys shorter than 32 bytes are stretched with SHA-256.
func New(key []byte) (*Codec, error) {
	if len(key) < 32 {
		h := sha256.Sum256(key)
		key = h[:]
	}

	block, err := aes.NewCipher(key[:32])
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Codec{
		key: key,
		gcm: gcm,
	}, nil
}

// Canonical serializes v to deterministic JSON. Map keys are emitted in
// sorted order, so the same logical value always yields the same bytes.
// Checksums are computed over this form.
func Canonical(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Checksum returns the hex HMAC-SHA256 digest of payload.
func (c *Codec) Checksum(payload []byte) string {
	mac := hmac.New(sha256.New, c.key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyChecksum recomputes the digest of payload and compares it to sum in
// constant time. A missing or mismatched sum returns ErrCorruptPayload.
func (c *Codec) VerifyChecksum(payload []byte, sum string) error {
	if sum == "" {
		return fmt.Errorf("%w: checksum missing", ErrCorruptPayload)
	}

	submitted, err := hex.DecodeString(sum)
	if err != nil {
		return fmt.Errorf("%w: checksum malformed", ErrCorruptPayload)
	}

	mac := hmac.New(sha256.New, c.key)
	mac.Write(payload)
	expected := mac.Sum(nil)

	if !hmac.Equal(submitted, expected) {
		return fmt.Errorf("%w: checksum mismatch", ErrCorruptPayload)
	}

	return nil
}

// Seal packs v with msgpack and encrypts it with AES-256-GCM.
// The result is opaque to clients; GCM authentication replaces the checksum.
func (c *Codec) Seal(v any) (string, error) {
	packed, err := msgpack.Marshal(v)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	ciphertext := c.gcm.Seal(nonce, nonce, packed, nil)
	return base64.RawURLEncoding.EncodeToString(ciphertext), nil
}

// Unseal decrypts and unpacks a sealed payload into out.
func (c *Codec) Unseal(sealed string, out any) error {
	ciphertext, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSealedPayload, err)
	}

	if len(ciphertext) < c.gcm.NonceSize() {
		return fmt.Errorf("%w: ciphertext too short", ErrSealedPayload)
	}

	nonce := ciphertext[:c.gcm.NonceSize()]
	ciphertext = ciphertext[c.gcm.NonceSize():]

	packed, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSealedPayload, err)
	}

	if err := msgpack.Unmarshal(packed, out); err != nil {
		return fmt.Errorf("%w: %v", ErrSealedPayload, err)
	}

	return nil
}
