package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/wabuilder/pkg/adapters/memory"
	"github.com/aretw0/wabuilder/pkg/persistence/middleware"
	"github.com/aretw0/wabuilder/pkg/ports"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlyingCache := memory.NewSessionCache()
	// Mask keys containing "password" or "cpf"
	mw, err := middleware.NewPIIMiddleware([]string{"password", "cpf"})
	if err != nil {
		t.Fatal(err)
	}
	secureCache := mw(underlyingCache)

	ctx := context.Background()
	data := map[string]any{
		"name":          "Ann",
		"user_password": "secret123",
		"details": map[string]any{
			"address":    "123 St",
			"cpf_number": "999.999.999-99",
		},
	}

	if err := secureCache.Store(ctx, "fpw:props:263770000001", data, 0); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if data["user_password"] != "secret123" {
		t.Error("Store must not modify the caller's map")
	}

	stored, err := underlyingCache.Load(ctx, "fpw:props:263770000001")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if stored["name"] != "Ann" {
		t.Errorf("Expected name to be kept, got %v", stored["name"])
	}
	if stored["user_password"] != middleware.Mask {
		t.Errorf("Expected password to be masked, got %v", stored["user_password"])
	}
	details := stored["details"].(map[string]any)
	if details["cpf_number"] != middleware.Mask || details["address"] != "123 St" {
		t.Errorf("Unexpected nested values: %v", details)
	}
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	if _, err := middleware.NewPIIMiddleware([]string{"(["}); err == nil {
		t.Fatal("Expected error for invalid pattern")
	}
}

func TestPIIMiddleware_Contract(t *testing.T) {
	mw, err := middleware.NewPIIMiddleware([]string{"password"})
	if err != nil {
		t.Fatal(err)
	}
	ports.RunSessionCacheContract(t, mw(memory.NewSessionCache()))
}
