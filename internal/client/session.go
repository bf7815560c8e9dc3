package client

import (
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// TokenStore persists the session token between runs.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// Session holds the one auth token of the process. Login and logout replace
// it wholesale.
type Session struct {
	mu    sync.RWMutex
	token string
	store TokenStore
}

// NewSession loads any persisted token. A nil store keeps the token in memory only.
func NewSession(store TokenStore) *Session {
	s := &Session{store: store}
	if store != nil {
		token, err := store.Load()
		if err != nil {
			log.Println("[WARN] Failed to load saved session:", err)
		}
		s.token = token
	}
	return s
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	if s.store != nil {
		if err := s.store.Save(token); err != nil {
			log.Println("[WARN] Failed to save session:", err)
		}
	}
}

func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	if s.store != nil {
		if err := s.store.Clear(); err != nil {
			log.Println("[WARN] Failed to clear session:", err)
		}
	}
}

// FileTokenStore keeps the token in a small YAML file readable only by the owner.
type FileTokenStore struct {
	Path string
}

type sessionFile struct {
	Token string `yaml:"token"`
}

func (f FileTokenStore) Load() (string, error) {
	data, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var sf sessionFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return "", err
	}
	return sf.Token, nil
}

func (f FileTokenStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(sessionFile{Token: token})
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, data, 0o600)
}

func (f FileTokenStore) Clear() error {
	err := os.Remove(f.Path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
