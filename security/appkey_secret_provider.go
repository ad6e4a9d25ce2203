// Package security seals tenant tokens at rest with an application key.
package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-feishu/core"
)

const (
	envelopePrefix    = "feishu.secret.v1:"
	envelopeAlgorithm = "aes-256-gcm"
	defaultKeyID      = "app-key"
)

type envelope struct {
	KeyID      string `json:"kid"`
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type appKey struct {
	id      string
	version int
	aead    cipher.AEAD
}

type Option func(*AppKeySecretProvider) error

// AppKeySecretProvider encrypts with the current key and decrypts with the
// current key or any retired key added through WithRetiredKey.
type AppKeySecretProvider struct {
	current appKey
	retired []appKey
}

func WithKeyID(id string) Option {
	return func(provider *AppKeySecretProvider) error {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			provider.current.id = trimmed
		}
		return nil
	}
}

func WithVersion(version int) Option {
	return func(provider *AppKeySecretProvider) error {
		if version > 0 {
			provider.current.version = version
		}
		return nil
	}
}

// WithRetiredKey keeps an older key readable during rotation.
func WithRetiredKey(id string, version int, keyMaterial []byte) Option {
	return func(provider *AppKeySecretProvider) error {
		key, err := newAppKey(id, version, keyMaterial)
		if err != nil {
			return err
		}
		provider.retired = append(provider.retired, key)
		return nil
	}
}

func NewAppKeySecretProvider(keyMaterial []byte, opts ...Option) (*AppKeySecretProvider, error) {
	current, err := newAppKey(defaultKeyID, 1, keyMaterial)
	if err != nil {
		return nil, err
	}
	provider := &AppKeySecretProvider{current: current}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(provider); err != nil {
			return nil, err
		}
	}
	return provider, nil
}

func NewAppKeySecretProviderFromString(key string, opts ...Option) (*AppKeySecretProvider, error) {
	return NewAppKeySecretProvider([]byte(key), opts...)
}

func (p *AppKeySecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	nonce := make([]byte, p.current.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}
	data, err := json.Marshal(envelope{
		KeyID:      p.current.id,
		Version:    p.current.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(p.current.aead.Seal(nil, nonce, plaintext, nil)),
	})
	if err != nil {
		return nil, fmt.Errorf("security: encode envelope: %w", err)
	}
	return append([]byte(envelopePrefix), data...), nil
}

func (p *AppKeySecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if !IsSealed(ciphertext) {
		return nil, fmt.Errorf("security: invalid ciphertext envelope prefix")
	}
	var parsed envelope
	if err := json.Unmarshal(bytes.TrimPrefix(ciphertext, []byte(envelopePrefix)), &parsed); err != nil {
		return nil, fmt.Errorf("security: decode envelope: %w", err)
	}
	if parsed.Algorithm != envelopeAlgorithm {
		return nil, fmt.Errorf("security: unsupported algorithm %q", parsed.Algorithm)
	}
	key, ok := p.keyFor(parsed.KeyID, parsed.Version)
	if !ok {
		return nil, fmt.Errorf("security: no key for %q version %d", parsed.KeyID, parsed.Version)
	}
	nonce, err := base64.StdEncoding.DecodeString(parsed.Nonce)
	if err != nil {
		return nil, fmt.Errorf("security: decode nonce: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(parsed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("security: decode ciphertext payload: %w", err)
	}
	if len(nonce) != key.aead.NonceSize() {
		return nil, fmt.Errorf("security: invalid nonce size")
	}
	plaintext, err := key.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func (p *AppKeySecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.current.id
}

func (p *AppKeySecretProvider) Version() int {
	if p == nil {
		return 0
	}
	return p.current.version
}

func (p *AppKeySecretProvider) keyFor(id string, version int) (appKey, bool) {
	candidates := append([]appKey{p.current}, p.retired...)
	for _, key := range candidates {
		if key.id == strings.TrimSpace(id) && key.version == version {
			return key, true
		}
	}
	return appKey{}, false
}

// IsSealed reports whether value carries the envelope prefix.
func IsSealed(value []byte) bool {
	return bytes.HasPrefix(value, []byte(envelopePrefix))
}

func newAppKey(id string, version int, keyMaterial []byte) (appKey, error) {
	material := bytes.TrimSpace(keyMaterial)
	if len(material) == 0 {
		return appKey{}, fmt.Errorf("security: key material is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return appKey{}, fmt.Errorf("security: key id is required")
	}
	if version <= 0 {
		return appKey{}, fmt.Errorf("security: key version must be positive")
	}
	block, err := aes.NewCipher(normalizeKey(material))
	if err != nil {
		return appKey{}, fmt.Errorf("security: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return appKey{}, fmt.Errorf("security: create gcm: %w", err)
	}
	return appKey{id: id, version: version, aead: aead}, nil
}

// normalizeKey uses 16, 24 or 32 byte material as is and hashes anything
// else down to an AES-256 key.
func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	return sum[:]
}

var _ core.SecretProvider = (*AppKeySecretProvider)(nil)
