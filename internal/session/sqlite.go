//go:build cgo

package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/alvarorichard/animebinge/internal/models"
	"github.com/alvarorichard/animebinge/internal/util"
)

// SQLiteAvailable reports whether the binary was built with the sqlite backend
const SQLiteAvailable = true

const (
	busyTimeout       = 5000 // ms
	walAutoCheckpoint = 1000 // pages
	maxOpenConns      = 2
)

// SQLiteStore keeps the state in a single-row-per-namespace table
type SQLiteStore struct {
	mu       sync.Mutex
	db       *sql.DB
	upsertPS *sql.Stmt
	getPS    *sql.Stmt
	deletePS *sql.Stmt
}

func openSQLite(path string) (Store, error) {
	return NewSQLiteStore(path)
}

// NewSQLiteStore opens (and creates when needed) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", buildDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	if dbPath == ":memory:" {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := initializeDatabase(db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			util.Warn("Error closing database", "error", closeErr)
		}
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.prepareStatements(); err != nil {
		if closeErr := s.Close(); closeErr != nil {
			util.Warn("Error closing database", "error", closeErr)
		}
		return nil, err
	}
	return s, nil
}

func buildDSN(dbPath string) string {
	if dbPath == ":memory:" {
		return "file::memory:?_busy_timeout=5000"
	}
	// Windows paths need forward slashes inside the URI form
	if runtime.GOOS == "windows" {
		dbPath = strings.ReplaceAll(dbPath, "\\", "/")
	}
	return fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_synchronous=NORMAL&_wal_autocheckpoint=%d&_busy_timeout=%d&_mode=rwc",
		dbPath,
		walAutoCheckpoint,
		busyTimeout,
	)
}

func initializeDatabase(db *sql.DB) error {
	schema := `CREATE TABLE IF NOT EXISTS session_state (
		key        TEXT    PRIMARY KEY,
		value      TEXT    NOT NULL,
		updated_at INTEGER NOT NULL
	);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.upsertPS, err = s.db.Prepare(`INSERT INTO session_state (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("upsert preparation failed: %w", err)
	}

	s.getPS, err = s.db.Prepare(`SELECT value FROM session_state WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("get preparation failed: %w", err)
	}

	s.deletePS, err = s.db.Prepare(`DELETE FROM session_state WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("delete preparation failed: %w", err)
	}
	return nil
}

// Load returns the stored state or the defaults
func (s *SQLiteStore) Load(ctx context.Context) models.PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.getPS == nil {
		return models.DefaultPlaybackState()
	}

	var value string
	err := s.getPS.QueryRowContext(ctx, Namespace).Scan(&value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			util.Warn("Session state query failed, using defaults", "error", err)
		}
		return models.DefaultPlaybackState()
	}

	state, ok := Decode([]byte(value))
	if !ok {
		util.Warn("Session state corrupt, using defaults")
	}
	return state
}

// Save upserts the state record
func (s *SQLiteStore) Save(ctx context.Context, state models.PlaybackState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.upsertPS == nil {
		return ErrStoreClosed
	}

	encoded, err := Encode(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if _, err := s.upsertPS.ExecContext(ctx, Namespace, string(encoded), time.Now().Unix()); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Reset deletes the state record
func (s *SQLiteStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deletePS == nil {
		return ErrStoreClosed
	}
	_, err := s.deletePS.ExecContext(ctx, Namespace)
	return err
}

// Close releases statements and the database handle
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var finalErr error
	closeStmt := func(stmt *sql.Stmt, name string) {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				finalErr = fmt.Errorf("%s statement close error: %w", name, err)
			}
		}
	}

	closeStmt(s.upsertPS, "upsert")
	closeStmt(s.getPS, "get")
	closeStmt(s.deletePS, "delete")
	s.upsertPS, s.getPS, s.deletePS = nil, nil, nil

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			finalErr = fmt.Errorf("database close error: %w", err)
		}
		s.db = nil
	}
	return finalErr
}
