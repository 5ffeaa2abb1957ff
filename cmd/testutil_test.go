package cmd

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"

	"github.com/seatwise/seatctl/internal/identity"
	"github.com/seatwise/seatctl/internal/store"
)

// TestServer wraps httptest.Server with helper methods
type TestServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewTestServer creates a mock API server
func NewTestServer() *TestServer {
	ts := &TestServer{
		Handlers: make(map[string]http.HandlerFunc),
	}

	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
			return
		}

		key := r.Method + " " + r.URL.Path
		if handler, ok := ts.Handlers[key]; ok {
			handler(w, r)
			return
		}

		// Default 404
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Not found: " + key})
	}))

	return ts
}

// Handle registers a handler for a method + path
func (ts *TestServer) Handle(method, path string, handler http.HandlerFunc) {
	ts.Handlers[method+" "+path] = handler
}

// HandleJSON registers a handler that returns JSON
func (ts *TestServer) HandleJSON(method, path string, status int, response interface{}) {
	ts.Handle(method, path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(response)
	})
}

// TestConfig holds test configuration
type TestConfig struct {
	Server    *TestServer
	Store     *store.Memory
	ConfigDir string
}

// SetupTest creates a test environment backed by an in-memory store
func SetupTest(t *testing.T) *TestConfig {
	t.Helper()

	// Reset viper for each test
	viper.Reset()
	keyring.MockInit()

	server := NewTestServer()
	mem := store.NewMemory()

	configDir := t.TempDir()
	t.Setenv("HOME", configDir)
	t.Setenv("SEATCTL_API_KEY", "")
	t.Setenv("NO_COLOR", "1")

	viper.Set("api_url", server.URL)
	viper.Set("project_id", "seatwise-test")

	origStore, origAuth := openStore, openAuthResolver
	openStore = func(ctx context.Context) (store.Store, error) { return mem, nil }
	openAuthResolver = func(ctx context.Context) (identity.Resolver, error) {
		return identity.Directory{}, nil
	}

	tc := &TestConfig{
		Server:    server,
		Store:     mem,
		ConfigDir: configDir,
	}
	t.Cleanup(func() {
		server.Close()
		openStore, openAuthResolver = origStore, origAuth
		viper.Reset()
	})
	return tc
}

// resetFlags restores every flag to its default so state does not leak
// between commands executed in the same process.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			def := strings.Trim(f.DefValue, "[]")
			if def == "" {
				sv.Replace([]string{})
			} else {
				sv.Replace(strings.Split(def, ","))
			}
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// ExecuteCommand runs a CLI command and returns output
func ExecuteCommand(args ...string) (string, error) {
	// Keyring won't work in tests
	viper.Set("api_key", "test_key_0123456789abcdef")
	resetFlags(rootCmd)

	// Capture stdout since commands use fmt.Print directly
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	done := make(chan []byte)
	go func() {
		out, _ := io.ReadAll(r)
		done <- out
	}()

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	// Restore stdout and read captured output
	w.Close()
	os.Stdout = oldStdout
	out := <-done

	// Reset args for next test
	rootCmd.SetArgs([]string{})

	return string(out), err
}

// ExecuteCommandWithStdin runs a command with simulated stdin
func ExecuteCommandWithStdin(stdin string, args ...string) (string, error) {
	oldStdin := os.Stdin
	r, w, _ := os.Pipe()
	w.WriteString(stdin)
	w.Close()
	os.Stdin = r
	defer func() { os.Stdin = oldStdin }()

	return ExecuteCommand(args...)
}

// AssertContains checks if output contains expected string
func AssertContains(t *testing.T, output, expected string) {
	t.Helper()
	if !strings.Contains(output, expected) {
		t.Errorf("Output missing expected string %q\nGot: %s", expected, output)
	}
}

// AssertNotContains checks if output does NOT contain unexpected string
func AssertNotContains(t *testing.T, output, unexpected string) {
	t.Helper()
	if strings.Contains(output, unexpected) {
		t.Errorf("Output unexpectedly contains %q\nGot: %s", unexpected, output)
	}
}

// seedOrg loads a small organization with one of each problem into mem:
// alice holds two licenses, bob is a duplicate of alice, carol has no
// license, lic_4 belongs to a deleted member and dave's userId is stale.
func seedOrg(mem *store.Memory) {
	mem.Put("organizations", "org_1", map[string]any{"name": "Acme", "ownerId": "uid_alice"})
	mem.Put("subscriptions", "sub_1", map[string]any{"organizationId": "org_1", "status": "active", "quantity": 4})

	mem.Put("users", "uid_alice", map[string]any{"email": "alice@acme.io", "organizationId": "org_1"})
	mem.Put("users", "uid_carol", map[string]any{"email": "carol@acme.io", "organizationId": "org_1"})
	mem.Put("users", "uid_dave", map[string]any{"email": "dave@acme.io"})

	mem.Put("teamMembers", "tm_alice", map[string]any{
		"organizationId": "org_1", "email": "alice@acme.io", "userId": "uid_alice",
		"status": "active", "licenseId": "lic_1", "hasLicense": true,
		"createdAt": "2024-01-01T00:00:00Z",
	})
	mem.Put("teamMembers", "tm_bob", map[string]any{
		"organizationId": "org_1", "email": "Alice@Acme.io ", "status": "active",
		"createdAt": "2024-03-01T00:00:00Z",
	})
	mem.Put("teamMembers", "tm_carol", map[string]any{
		"organizationId": "org_1", "email": "carol@acme.io", "userId": "uid_carol", "status": "active",
		"createdAt": "2024-02-01T00:00:00Z",
	})
	mem.Put("teamMembers", "tm_dave", map[string]any{
		"organizationId": "org_1", "email": "dave@acme.io", "userId": "legacy_dave",
		"status": "active", "licenseId": "lic_3", "hasLicense": true,
		"createdAt": "2024-01-15T00:00:00Z",
	})

	mem.Put("licenses", "lic_1", map[string]any{
		"organizationId": "org_1", "status": "assigned", "assignedTo": "tm_alice",
		"assignedToUserId": "uid_alice", "assignedEmail": "alice@acme.io", "tier": "pro",
	})
	mem.Put("licenses", "lic_2", map[string]any{
		"organizationId": "org_1", "status": "assigned", "assignedTo": "tm_alice",
		"assignedToUserId": "uid_alice", "assignedEmail": "alice@acme.io", "tier": "pro",
	})
	mem.Put("licenses", "lic_3", map[string]any{
		"organizationId": "org_1", "status": "assigned", "assignedTo": "tm_dave",
		"assignedToUserId": "legacy_dave", "assignedEmail": "dave@acme.io", "tier": "pro",
	})
	mem.Put("licenses", "lic_4", map[string]any{
		"organizationId": "org_1", "status": "assigned", "memberId": "tm_gone", "tier": "pro",
	})

	mem.Put("payments", "pay_1", map[string]any{"organizationId": "org_1"})
	mem.Put("invoices", "inv_1", map[string]any{"organizationId": "org_1"})
	mem.Put("invoices", "inv_2", map[string]any{"organizationId": "org_1"})
}
