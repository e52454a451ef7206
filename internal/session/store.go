// Package session persists the playback state between page loads.
//
// Two backends exist: a SQLite database (the default when built with cgo)
// and a JSON document on an afero filesystem. Both store a single record
// under Namespace and never fail a Load: missing or corrupt data yields the
// defaults.
package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/alvarorichard/animebinge/internal/models"
)

// Store is the durable key-value surface used by the page controller
type Store interface {
	// Load returns the stored state merged over the defaults
	Load(ctx context.Context) models.PlaybackState
	// Save writes the whole state; the last write wins
	Save(ctx context.Context, state models.PlaybackState) error
	// Reset removes the stored record
	Reset(ctx context.Context) error
	Close() error
}

// Backend names accepted by Open
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

var (
	ErrUnknownBackend = errors.New("unknown session store backend")
	ErrStoreClosed    = errors.New("session store closed")
)

// Options selects and configures a backend
type Options struct {
	Backend string
	// Path is the database file or JSON document path. Empty uses DefaultPath.
	Path string
	// Fs is used by the file backend; nil means the OS filesystem
	Fs afero.Fs
}

// DefaultDir returns the per-user data directory
func DefaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "animebinge")
}

// DefaultPath returns the default location for a backend
func DefaultPath(backend string) string {
	if backend == BackendFile {
		return filepath.Join(DefaultDir(), "state.json")
	}
	return filepath.Join(DefaultDir(), "state.db")
}

// Open builds the configured backend. Without cgo the sqlite backend falls
// back to the file backend.
func Open(opts Options) (Store, error) {
	backend := opts.Backend
	if backend == "" {
		backend = BackendSQLite
	}
	if backend == BackendSQLite && !SQLiteAvailable {
		backend = BackendFile
		if filepath.Ext(opts.Path) == ".db" {
			opts.Path = ""
		}
	}

	path := opts.Path
	if path == "" {
		path = DefaultPath(backend)
	}

	switch backend {
	case BackendSQLite:
		return openSQLite(path)
	case BackendFile:
		fs := opts.Fs
		if fs == nil {
			fs = afero.NewOsFs()
		}
		return NewFileStore(fs, path), nil
	default:
		return nil, ErrUnknownBackend
	}
}
