package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTokenStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets", "token")

	s, err := NewTokenStore(path)
	if err != nil {
		t.Fatalf("NewTokenStore failed: %v", err)
	}
	if _, err := s.Header(); !errors.Is(err, ErrNoToken) {
		t.Errorf("Expected ErrNoToken for empty store, got %v", err)
	}

	if err := s.Set("  abc.def.ghi \n"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	h, err := s.Header()
	if err != nil {
		t.Fatalf("Header failed: %v", err)
	}
	if h.Get("Authorization") != "Bearer abc.def.ghi" {
		t.Errorf("Unexpected header %q", h.Get("Authorization"))
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Token file missing: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("Expected 0600 permissions, got %o", info.Mode().Perm())
	}

	reopened, err := NewTokenStore(path)
	if err != nil || reopened.Token() != "abc.def.ghi" {
		t.Errorf("Expected token to persist, got %q, %v", reopened.Token(), err)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if s.Token() != "" {
		t.Error("Expected empty token after Clear")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected token file to be removed, got %v", err)
	}
	if err := s.Set("   "); err == nil {
		t.Error("Expected error for blank token")
	}
}

func TestTokenStoreWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	s, err := NewTokenStore(path)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()

	// Give the watcher a moment to register the directory.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err := os.WriteFile(path, []byte("external-token\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if s.Token() == "external-token" {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if s.Token() != "external-token" {
		t.Errorf("Expected watcher to reload token, got %q", s.Token())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Watch did not stop after cancel")
	}
}
