package cmd

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
)

func TestAuthLogin(t *testing.T) {
	SetupTest(t)

	output, err := ExecuteCommandWithStdin("live_0123456789abcdefghij\n", "auth", "login")
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	AssertContains(t, output, "Authenticated successfully")

	stored, err := keyring.Get(serviceName, keyringUser)
	if err != nil {
		t.Fatalf("Key not stored in keyring: %v", err)
	}
	if stored != "live_0123456789abcdefghij" {
		t.Errorf("Unexpected stored key %q", stored)
	}
}

func TestAuthLoginRejectsShortKey(t *testing.T) {
	SetupTest(t)

	if _, err := ExecuteCommandWithStdin("short\n", "auth", "login"); err == nil {
		t.Error("Expected error for short key")
	}
}

func TestAuthStatus(t *testing.T) {
	SetupTest(t)

	output, err := ExecuteCommand("auth", "status")
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	AssertContains(t, output, "test_key...cdef")
	AssertContains(t, output, "Project: seatwise-test")
	AssertNotContains(t, output, "test_key_0123456789abcdef")
}

func TestGetAPIKeyOrder(t *testing.T) {
	SetupTest(t)
	viper.Set("api_key", "from_config_key")

	if got := GetAPIKey(); got != "from_config_key" {
		t.Errorf("Expected config fallback, got %q", got)
	}

	if err := keyring.Set(serviceName, keyringUser, "from_keyring_key"); err != nil {
		t.Fatalf("keyring.Set: %v", err)
	}
	if got := GetAPIKey(); got != "from_keyring_key" {
		t.Errorf("Expected keyring to win over config, got %q", got)
	}

	t.Setenv("SEATCTL_API_KEY", "from_env_key")
	if got := GetAPIKey(); got != "from_env_key" {
		t.Errorf("Expected env key to win, got %q", got)
	}
}

func TestConfigSetAndGet(t *testing.T) {
	SetupTest(t)

	output, err := ExecuteCommand("config", "set", "database", "licensing")
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	AssertContains(t, output, "Set database = licensing")

	output, err = ExecuteCommand("config", "get", "database")
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	AssertContains(t, output, "licensing")
}

func TestConfigSetRejectsBatchSize(t *testing.T) {
	SetupTest(t)

	if _, err := ExecuteCommand("config", "set", "batch_size", "1000"); err == nil {
		t.Error("Expected error for batch_size above the Firestore limit")
	}
}

func TestConfigListRedactsKey(t *testing.T) {
	SetupTest(t)

	output, err := ExecuteCommand("config", "list")
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	AssertContains(t, output, "api_key = test_key...cdef")
}

func TestConfigSetRejectsUnknownKey(t *testing.T) {
	SetupTest(t)

	if _, err := ExecuteCommand("config", "set", "workspace_id", "ws_1"); err == nil {
		t.Error("Expected error for unknown key")
	}
	_, err := ExecuteCommand("config", "set", "api_key", "live_0123456789abcdefghij")
	if err == nil {
		t.Fatal("Expected api_key to be refused")
	}
	AssertContains(t, err.Error(), "auth login")
}

func TestConfigSetLogLevel(t *testing.T) {
	SetupTest(t)

	if _, err := ExecuteCommand("config", "set", "log_level", "loud"); err == nil {
		t.Error("Expected error for invalid log level")
	}
	if _, err := ExecuteCommand("config", "set", "log_level", "debug"); err != nil {
		t.Errorf("Command failed: %v", err)
	}
}
