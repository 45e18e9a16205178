package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENV", "test")

	cfg := LoadConfig()

	if cfg.ServerPort != 4000 {
		t.Fatalf("expected default port 4000, got %d", cfg.ServerPort)
	}
	if cfg.StoreBackend != StoreBackendDynamoDB {
		t.Fatalf("expected dynamodb backend, got %q", cfg.StoreBackend)
	}
	if cfg.StoreTimeout != 10*time.Second {
		t.Fatalf("expected 10s store timeout, got %s", cfg.StoreTimeout)
	}
	if cfg.DynamoDB.TableName != "TenantsTable" || cfg.DynamoDB.Region != "ap-south-1" {
		t.Fatalf("unexpected dynamodb defaults: %+v", cfg.DynamoDB)
	}
	if cfg.Auth.Required {
		t.Fatalf("auth must not be enforced by default")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "Memory")
	t.Setenv("STORE_TIMEOUT", "3s")
	t.Setenv("AUTH_REQUIRED", "true")
	t.Setenv("CORS_ORIGINS", "http://a.test, *.elasticbeanstalk.com,,")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := LoadConfig()

	if cfg.ServerPort != 9090 {
		t.Fatalf("expected PORT to win, got %d", cfg.ServerPort)
	}
	if cfg.StoreBackend != StoreBackendMemory {
		t.Fatalf("expected memory backend, got %q", cfg.StoreBackend)
	}
	if cfg.StoreTimeout != 3*time.Second {
		t.Fatalf("expected 3s, got %s", cfg.StoreTimeout)
	}
	if !cfg.Auth.Required {
		t.Fatalf("expected auth to be required")
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "*.elasticbeanstalk.com" {
		t.Fatalf("unexpected origins: %v", cfg.CORSOrigins)
	}
	if cfg.Redis.DB != 0 {
		t.Fatalf("invalid int should fall back to default, got %d", cfg.Redis.DB)
	}
}
