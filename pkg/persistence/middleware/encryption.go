package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/aretw0/wabuilder/pkg/ports"
)

// sealedPrefix marks a secret encrypted by this middleware.
const sealedPrefix = "enc:v1:"

// ErrKeySize is returned when a key is not 32 bytes long.
var ErrKeySize = errors.New("encryption key must be 32 bytes (AES-256)")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.ConfigStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts the WhatsApp
// credentials of every record (access token, webhook token, app secret) using
// AES-GCM. Plaintext values already stored are read as is and sealed on the next Put.
func NewEncryptionMiddleware(config EncryptionConfig) (ConfigMiddleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, ErrKeySize
	}
	for _, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, fmt.Errorf("fallback key: %w", ErrKeySize)
		}
	}
	return func(next ports.ConfigStore) ports.ConfigStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}, nil
}

// ParseKey decodes a base64 key as accepted by EncryptionConfig.
func ParseKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, ErrKeySize
	}
	return key, nil
}

func secrets(cfg *domain.BotConfig) []*string {
	return []*string{&cfg.AccessToken, &cfg.WebhookToken, &cfg.AppSecret}
}

func (m *encryptionMiddleware) Put(ctx context.Context, cfg *domain.BotConfig) error {
	sealed := *cfg
	for _, s := range secrets(&sealed) {
		if *s == "" || strings.HasPrefix(*s, sealedPrefix) {
			continue
		}
		ciphertext, err := encrypt([]byte(*s), m.config.ActiveKey)
		if err != nil {
			return fmt.Errorf("failed to encrypt secret: %w", err)
		}
		*s = sealedPrefix + base64.StdEncoding.EncodeToString(ciphertext)
	}

	if err := m.next.Put(ctx, &sealed); err != nil {
		return err
	}
	cfg.Modified = sealed.Modified
	return nil
}

func (m *encryptionMiddleware) Get(ctx context.Context, name string) (*domain.BotConfig, error) {
	cfg, err := m.next.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, s := range secrets(cfg) {
		if !strings.HasPrefix(*s, sealedPrefix) {
			continue
		}
		ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(*s, sealedPrefix))
		if err != nil {
			return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
		}
		plain, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt secret of %q: %w", name, err)
		}
		*s = string(plain)
	}
	return cfg, nil
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *encryptionMiddleware) Delete(ctx context.Context, name string) error {
	return m.next.Delete(ctx, name)
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	// Try active key first
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	// Try fallbacks in order
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertextBytes := ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertextBytes, nil)
}
