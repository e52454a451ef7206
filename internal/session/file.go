package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/alvarorichard/animebinge/internal/models"
	"github.com/alvarorichard/animebinge/internal/util"
)

// FileStore keeps the state as a JSON document keyed by Namespace
type FileStore struct {
	mu     sync.Mutex
	fs     afero.Fs
	path   string
	closed bool
}

// NewFileStore creates a store writing to path on fs
func NewFileStore(fs afero.Fs, path string) *FileStore {
	return &FileStore{fs: fs, path: path}
}

// document is the on-disk layout; other namespaces are preserved on write
type document map[string]json.RawMessage

func (s *FileStore) readDocument() (document, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decode state document")
	}
	return doc, nil
}

// Load returns the stored state or the defaults
func (s *FileStore) Load(_ context.Context) models.PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		if !os.IsNotExist(err) {
			util.Warn("Session state unreadable, using defaults", "path", s.path, "error", err)
		}
		return models.DefaultPlaybackState()
	}

	state, ok := Decode(doc[Namespace])
	if !ok && doc[Namespace] != nil {
		util.Warn("Session state corrupt, using defaults", "path", s.path)
	}
	return state
}

// Save writes the document through a temp file and rename
func (s *FileStore) Save(_ context.Context, state models.PlaybackState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	doc, err := s.readDocument()
	if err != nil {
		doc = make(document, 1)
	}

	encoded, err := Encode(state)
	if err != nil {
		return errors.Wrap(err, "encode state")
	}
	doc[Namespace] = encoded

	return s.writeDocument(doc)
}

// Reset removes the playback namespace from the document
func (s *FileStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return s.fs.Remove(s.path)
	}
	delete(doc, Namespace)
	return s.writeDocument(doc)
}

// Close marks the store closed
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FileStore) writeDocument(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode state document")
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "create state directory")
	}

	tmp := s.path + ".tmp-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	if err := afero.WriteFile(s.fs, tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "write state file")
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return errors.Wrap(err, "replace state file")
	}
	return nil
}
