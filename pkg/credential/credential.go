// Package credential stores repository credentials for the CLI.
//
// Credentials live as one JSON file per repository under a private config
// directory (0700 dir, 0600 files) and are attached to [feed.Repository]
// values at runtime. They are never written to the repository registry.
//
// # Usage
//
//	store, err := credential.NewFileStore("") // ~/.config/psresget/credentials/
//	if err != nil {
//	    return err
//	}
//	repos, err = store.Attach(ctx, repos)
package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	perrors "github.com/matzehuels/psresget/pkg/errors"
	"github.com/matzehuels/psresget/pkg/feed"
)

// FileStore is a file-based credential store.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
}

// NewFileStore creates a credential store rooted at baseDir.
// If baseDir is empty, defaults to ~/.config/psresget/credentials/
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		baseDir = filepath.Join(home, ".config", "psresget", "credentials")
	}
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("create credential dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Repository names are case-insensitive, so files are keyed by the
// lowercase name.
func (s *FileStore) path(repo string) string {
	return filepath.Join(s.baseDir, strings.ToLower(repo)+".json")
}

// Get returns the credential stored for repo, or nil if none exists.
func (s *FileStore) Get(ctx context.Context, repo string) (*feed.Credential, error) {
	if err := perrors.ValidateRepositoryName(repo); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(repo))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credential file: %w", err)
	}

	var cred feed.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("parse credential: %w", err)
	}
	return &cred, nil
}

// Set stores cred for repo, replacing any previous credential.
func (s *FileStore) Set(ctx context.Context, repo string, cred feed.Credential) error {
	if err := perrors.ValidateRepositoryName(repo); err != nil {
		return err
	}
	if cred.APIKey == "" && cred.Username == "" {
		return perrors.New(perrors.ErrCodeInvalidInput, "credential needs a username or an API key").
			WithRepository(repo)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	if err := os.WriteFile(s.path(repo), data, 0o600); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	return nil
}

// Delete removes the credential for repo. Deleting a missing credential is
// not an error.
func (s *FileStore) Delete(ctx context.Context, repo string) error {
	if err := perrors.ValidateRepositoryName(repo); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(repo)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credential file: %w", err)
	}
	return nil
}

// Attach returns a copy of repos with stored credentials filled in.
// Repositories that already carry a credential keep it.
func (s *FileStore) Attach(ctx context.Context, repos []feed.Repository) ([]feed.Repository, error) {
	out := make([]feed.Repository, len(repos))
	for i, repo := range repos {
		out[i] = repo
		if repo.Credential != nil {
			continue
		}
		cred, err := s.Get(ctx, repo.Name)
		if err != nil {
			return nil, err
		}
		out[i].Credential = cred
	}
	return out, nil
}

// Path returns the base directory for credential files.
func (s *FileStore) Path() string {
	return s.baseDir
}
