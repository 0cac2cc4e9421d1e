package google

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/teemow/mailreader/internal/logging"
)

// TokenStore persists the TokenSet between process runs.
type TokenStore interface {
	// LoadToken returns the stored set, or false when there is none usable.
	// A missing or unreadable token is not an error.
	LoadToken() (*TokenSet, bool)
	// SaveToken replaces the stored set.
	SaveToken(*TokenSet) error
}

// FileTokenStore keeps the token as JSON in a single file.
type FileTokenStore struct {
	path   string
	logger *slog.Logger
}

// NewFileTokenStore returns a store backed by path.
func NewFileTokenStore(path string, logger *slog.Logger) *FileTokenStore {
	return &FileTokenStore{
		path:   path,
		logger: logging.WithComponent(logger, "token_store"),
	}
}

// Path returns the token file location.
func (s *FileTokenStore) Path() string {
	return s.path
}

func (s *FileTokenStore) LoadToken() (*TokenSet, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("no token file, authorization required", "path", s.path)
		} else {
			s.logger.Debug("token file unreadable, authorization required", "path", s.path, logging.Err(err))
		}
		return nil, false
	}

	var set TokenSet
	if err := json.Unmarshal(data, &set); err != nil {
		s.logger.Debug("token file malformed, authorization required", "path", s.path, logging.Err(err))
		return nil, false
	}
	if !set.usable() {
		s.logger.Debug("token file holds no token, authorization required", "path", s.path)
		return nil, false
	}

	s.logger.Debug("loaded token",
		"path", s.path,
		"access_token", logging.SanitizeToken(set.AccessToken),
		"expiry", set.Expiry)
	return &set, true
}

// SaveToken writes the set to a temporary file next to the target and renames
// it into place, so readers see either the old or the new token in full.
func (s *FileTokenStore) SaveToken(set *TokenSet) error {
	if set == nil {
		return errors.New("nil token")
	}
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary token file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once the rename succeeded
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to restrict token file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close token file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}

	s.logger.Debug("saved token", "path", s.path, "access_token", logging.SanitizeToken(set.AccessToken))
	return nil
}
