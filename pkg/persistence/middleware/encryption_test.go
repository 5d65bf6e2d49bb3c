package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aretw0/wabuilder/pkg/adapters/memory"
	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/aretw0/wabuilder/pkg/persistence/middleware"
	"github.com/aretw0/wabuilder/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func encrypted(t *testing.T, next ports.ConfigStore, cfg middleware.EncryptionConfig) ports.ConfigStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	if err != nil {
		t.Fatalf("NewEncryptionMiddleware failed: %v", err)
	}
	return mw(next)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunConfigStoreContract(t, encrypted(t, memory.NewConfigStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlyingStore := memory.NewConfigStore()
	secureStore := encrypted(t, underlyingStore, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	original := &domain.BotConfig{Name: "bot", AccessToken: "EAAG-token", AppSecret: "app-secret", PhoneID: "42"}

	// 1. Put
	if err := secureStore.Put(ctx, original); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if original.AccessToken != "EAAG-token" {
		t.Fatal("Put must not modify the caller's record")
	}

	// 2. Verify underlying store directly (should be encrypted)
	stored, err := underlyingStore.Get(ctx, "bot")
	if err != nil {
		t.Fatalf("Underlying get failed: %v", err)
	}
	if strings.Contains(stored.AccessToken, "EAAG") || !strings.HasPrefix(stored.AccessToken, "enc:v1:") {
		t.Fatalf("Expected access token to be sealed, found: %v", stored.AccessToken)
	}
	if stored.WebhookToken != "" {
		t.Errorf("Empty secrets should stay empty, got %q", stored.WebhookToken)
	}
	if stored.PhoneID != "42" {
		t.Errorf("Non-secret fields should be stored in clear, got %q", stored.PhoneID)
	}

	// 3. Get via middleware (should be decrypted)
	loaded, err := secureStore.Get(ctx, "bot")
	if err != nil {
		t.Fatalf("Get via middleware failed: %v", err)
	}
	if loaded.AccessToken != "EAAG-token" || loaded.AppSecret != "app-secret" {
		t.Errorf("Expected decrypted secrets, got %q / %q", loaded.AccessToken, loaded.AppSecret)
	}
}

func TestEncryptionMiddleware_PlaintextMigration(t *testing.T) {
	underlyingStore := memory.NewConfigStore()
	ctx := context.Background()
	if err := underlyingStore.Put(ctx, &domain.BotConfig{Name: "old", AccessToken: "legacy"}); err != nil {
		t.Fatal(err)
	}

	secureStore := encrypted(t, underlyingStore, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	cfg, err := secureStore.Get(ctx, "old")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cfg.AccessToken != "legacy" {
		t.Errorf("Expected plaintext value to pass through, got %q", cfg.AccessToken)
	}
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlyingStore := memory.NewConfigStore()
	ctx := context.Background()
	oldKey := generateKey(t)
	newKey := generateKey(t)

	if err := encrypted(t, underlyingStore, middleware.EncryptionConfig{ActiveKey: oldKey}).Put(ctx, &domain.BotConfig{Name: "bot", AppSecret: "s"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// New key only: fail secure.
	if _, err := encrypted(t, underlyingStore, middleware.EncryptionConfig{ActiveKey: newKey}).Get(ctx, "bot"); err == nil {
		t.Fatal("Expected decryption failure without the old key")
	}

	// New key with old key as fallback.
	cfg, err := encrypted(t, underlyingStore, middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}}).Get(ctx, "bot")
	if err != nil {
		t.Fatalf("Get with fallback failed: %v", err)
	}
	if cfg.AppSecret != "s" {
		t.Errorf("Expected 's', got %q", cfg.AppSecret)
	}
}

func TestEncryptionMiddleware_Keys(t *testing.T) {
	if _, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")}); !errors.Is(err, middleware.ErrKeySize) {
		t.Errorf("Expected ErrKeySize, got %v", err)
	}

	key := generateKey(t)
	parsed, err := middleware.ParseKey(base64.StdEncoding.EncodeToString(key))
	if err != nil || string(parsed) != string(key) {
		t.Errorf("ParseKey roundtrip failed: %v", err)
	}
	if _, err := middleware.ParseKey("not base64!"); err == nil {
		t.Error("Expected error for invalid base64")
	}
}
