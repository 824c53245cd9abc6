package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"learningodyssey/internal/adventure"
)

type fileStoreDocument struct {
	Records map[string]Record `json:"records"`
	Active  map[string]string `json:"active"`
}

// FileStore keeps records in memory and mirrors them to a JSON file on
// disk via the teacher's atomic temp-file-then-rename discipline, so a
// crash mid-write never corrupts the on-disk copy. It is the durable
// fallback for deployments that want persistence across restarts without
// standing up Redis.
type FileStore struct {
	mu     sync.Mutex
	doc    fileStoreDocument
	path   string
	logger *slog.Logger
}

func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store: file store path is empty")
	}
	fs := &FileStore{
		doc: fileStoreDocument{
			Records: make(map[string]Record),
			Active:  make(map[string]string),
		},
		path:   path,
		logger: logger,
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) load() error {
	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create dir: %w", err)
	}

	data, err := os.ReadFile(fs.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if fs.logger != nil {
			fs.logger.Warn("file store: read failed, starting empty", slog.String("error", err.Error()))
		}
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	var doc fileStoreDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		if fs.logger != nil {
			fs.logger.Warn("file store: unmarshal failed, starting empty", slog.String("error", err.Error()))
		}
		return nil
	}
	if doc.Records != nil {
		fs.doc.Records = doc.Records
	}
	if doc.Active != nil {
		fs.doc.Active = doc.Active
	}
	return nil
}

func (fs *FileStore) persistLocked() error {
	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create dir: %w", err)
	}

	data, err := json.MarshalIndent(fs.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal document: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(fs.path)+".tmp")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, fs.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: rename temp file: %w", err)
	}
	return nil
}

func (fs *FileStore) Store(ctx context.Context, state *adventure.AdventureState, environment, clientUUID string, isComplete bool) (string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	stateID, ok := fs.doc.Active[clientUUID]
	if !ok {
		stateID = uuid.NewString()
	}

	snap := recordFrom(state)
	rec := Record{
		StateID:     stateID,
		Environment: environment,
		UserID:      stringifyUserID(snap),
		ClientUUID:  clientUUID,
		IsComplete:  isComplete,
		Snapshot:    snap,
		UpdatedAt:   time.Now().UTC(),
	}
	if existing, ok := fs.doc.Records[stateID]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else {
		rec.CreatedAt = rec.UpdatedAt
	}

	fs.doc.Records[stateID] = rec
	if isComplete {
		delete(fs.doc.Active, clientUUID)
	} else {
		fs.doc.Active[clientUUID] = stateID
	}

	if err := fs.persistLocked(); err != nil {
		return "", err
	}
	return stateID, nil
}

func (fs *FileStore) Load(ctx context.Context, stateID string) (Record, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	rec, ok := fs.doc.Records[stateID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (fs *FileStore) ActiveForClient(ctx context.Context, clientUUID string) (string, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	stateID, ok := fs.doc.Active[clientUUID]
	return stateID, ok, nil
}
