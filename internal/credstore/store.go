// Package credstore persists the access/refresh credential pair.
//
// The session layer depends only on the Store interface; the concrete
// backend (bbolt file, sqlite file or process memory) is chosen by
// configuration. A missing key is the logged-out state and is never an
// error.
package credstore

import (
	"errors"
	"fmt"
	"strings"
)

// Keys of the credential pair.
const (
	KeyAccess  = "access"
	KeyRefresh = "refresh"
)

// Backend names accepted by Open.
const (
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

var ErrUnknownBackend = errors.New("unknown credential store backend")

// Store is a small synchronous key-value store.
type Store interface {
	// Get returns the value for key, or "" when the key is absent.
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
}

// Backend is a Store that owns an underlying resource.
type Backend interface {
	Store
	Close() error
}

// Open opens the named backend. path is ignored for the memory backend.
func Open(kind, path string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case BackendBolt, "":
		return OpenBolt(path)
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}
}

// Tokens reads both halves of the credential pair. Read failures are
// reported as an empty value, matching the logged-out state.
func Tokens(s Store) (access, refresh string) {
	access, _ = s.Get(KeyAccess)
	refresh, _ = s.Get(KeyRefresh)
	return access, refresh
}

// SaveTokens stores a full credential pair.
func SaveTokens(s Store, access, refresh string) error {
	if err := s.Set(KeyAccess, access); err != nil {
		return fmt.Errorf("saving access token: %w", err)
	}
	if err := s.Set(KeyRefresh, refresh); err != nil {
		return fmt.Errorf("saving refresh token: %w", err)
	}
	return nil
}

// Clear removes both credentials. Both removals are attempted even if
// the first one fails.
func Clear(s Store) error {
	return errors.Join(s.Remove(KeyAccess), s.Remove(KeyRefresh))
}

// LoggedIn reports whether both credentials are present.
func LoggedIn(s Store) bool {
	access, refresh := Tokens(s)
	return access != "" && refresh != ""
}
