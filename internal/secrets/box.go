package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// envelope is the stored form of an encrypted value.
type envelope struct {
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Box encrypts and decrypts short secret strings with AES-256-GCM.
// A nil *Box is a valid passthrough: Seal and Open return the input
// unchanged, so callers never branch on whether encryption at rest is
// configured.
type Box struct {
	aead cipher.AEAD
}

func New(key []byte) (*Box, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("secret box key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Box{aead: aead}, nil
}

func NewFromBase64(b64 string) (*Box, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, fmt.Errorf("decode secret box key: %w", err)
	}
	return New(raw)
}

// Seal encrypts plaintext into an envelope JSON string.
func (b *Box) Seal(plaintext string) (string, error) {
	if b == nil {
		return plaintext, nil
	}
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	ciphertext := b.aead.Seal(nil, nonce, []byte(plaintext), nil)

	out, err := json.Marshal(envelope{
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	})
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return string(out), nil
}

// Open decrypts an envelope JSON string. Values that are not envelopes
// (rows written before encryption was enabled) pass through verbatim.
func (b *Box) Open(raw string) (string, error) {
	if b == nil || !isEnvelope(raw) {
		return raw, nil
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return "", fmt.Errorf("unmarshal envelope: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func isEnvelope(raw string) bool {
	if !strings.HasPrefix(strings.TrimSpace(raw), "{") {
		return false
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return false
	}
	return env.Nonce != "" && env.Ciphertext != ""
}
