// Package credentials persists broker/provider API keys to a single
// chmod-0600 YAML file. Grounded on the
// SessionManager (internal/trading/engine/engine_v1/session), which owns
// a mutex over a single filesystem path the same way; the file layout
// here is a flat key/value map instead of a run-folder tree.
package credentials

import (
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/rxtech-lab/argo-trading/internal/logging"
	"github.com/rxtech-lab/argo-trading/pkg/errors"
)

// filePerm restricts the credential file to the owner: it holds API
// secrets in plaintext, matching the "credentials at rest
// in plaintext, protected by filesystem permissions" note in the ambient
// stack.
const filePerm = 0o600

// Store is a mutex-guarded key/value credential file.
type Store struct {
	mu sync.Mutex
	path string
	log *logging.Logger
	data map[string]map[string]string // provider -> key -> value
}

// NewStore creates a Store backed by path; the file is created on first
// Set if it doesn't already exist.
func NewStore(path string, log *logging.Logger) *Store {
	return &Store{path: path, log: log.Component("credentials"), data: make(map[string]map[string]string)}
}

// Load reads the credential file from disk, replacing in-memory state. A
// missing file is not an error: Load leaves the store empty.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "reading credential file %s", s.path)
	}

	data := make(map[string]map[string]string)
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "parsing credential file %s", s.path)
	}

	s.data = data

	return nil
}

// Get returns the named key for provider, or ErrCodeInsufficientCreds if
// missing.
func (s *Store) Get(provider, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, ok := s.data[provider]
	if !ok {
		return "", errors.Newf(errors.ErrCodeInsufficientCreds, "no credentials stored for provider %s", provider)
	}

	value, ok := creds[key]
	if !ok {
		return "", errors.Newf(errors.ErrCodeInsufficientCreds, "credential %s missing for provider %s", key, provider)
	}

	return value, nil
}

// Set writes key=value for provider and persists the whole file with
// filePerm, creating parent directories as needed.
func (s *Store) Set(provider, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data[provider] == nil {
		s.data[provider] = make(map[string]string)
	}

	s.data[provider][key] = value

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "creating credential directory")
	}

	raw, err := yaml.Marshal(s.data)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "marshaling credentials")
	}

	if err := os.WriteFile(s.path, raw, filePerm); err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "writing credential file %s", s.path)
	}

	s.log.Info("credential stored")

	return nil
}

// Providers lists every provider with at least one stored credential.
func (s *Store) Providers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.data))
	for p := range s.data {
		out = append(out, p)
	}

	return out
}
