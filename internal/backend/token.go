package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"concertcal/internal/config"
	appLog "concertcal/internal/log"
)

// TokenStore keeps the backend JWT in memory, backed by a single file.
type TokenStore struct {
	path string

	mu    sync.RWMutex
	token string
}

// NewTokenStore opens the store at path. A missing file is not an error;
// the store simply starts empty.
func NewTokenStore(path string) (*TokenStore, error) {
	if path == "" {
		return nil, errors.New("backend: token file path is empty")
	}
	s := &TokenStore{path: filepath.Clean(path)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file.
func (s *TokenStore) Path() string {
	return s.path
}

// Token returns the stored token or "".
func (s *TokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Set stores token in memory and on disk (0600).
func (s *TokenStore) Set(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("backend: empty token")
	}
	if err := config.WriteFileAtomic(s.path, []byte(token+"\n"), ".concertcal-token-*.tmp"); err != nil {
		return fmt.Errorf("backend: save token: %w", err)
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Clear forgets the token and removes the file.
func (s *TokenStore) Clear() error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("backend: remove token: %w", err)
	}
	return nil
}

// Reload re-reads the token file.
func (s *TokenStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.mu.Lock()
			s.token = ""
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("backend: read token: %w", err)
	}
	s.mu.Lock()
	s.token = strings.TrimSpace(string(data))
	s.mu.Unlock()
	return nil
}

// Header returns the Authorization header for the stored token.
func (s *TokenStore) Header() (http.Header, error) {
	token := s.Token()
	if token == "" {
		return nil, ErrNoToken
	}
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+token)
	return h, nil
}

// Watch reloads the token whenever the file is written, replaced or
// removed by another process, until ctx is done. The parent directory is
// watched because atomic writes replace the file.
func (s *TokenStore) Watch(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("backend: token dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("backend: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("backend: watch %s: %w", dir, err)
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := s.Reload(); err != nil {
				appLog.Error("token reload failed", err, "path", s.path)
				continue
			}
			appLog.Info("token reloaded", "path", s.path, "present", s.Token() != "")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			appLog.Error("token watcher error", err, "path", s.path)
		case <-ctx.Done():
			return nil
		}
	}
}
