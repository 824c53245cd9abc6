package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"learningodyssey/internal/adventure"
)

func testState() *adventure.AdventureState {
	s := adventure.New(10, nil, "a tinker in a patched coat")
	s.Metadata["user_id"] = 42
	s.AppendChapter(adventure.Chapter{ChapterNumber: 1, ChapterType: adventure.ChapterStory, Content: "once upon a time"})
	return s
}

func TestMemoryStoreStoreIsIdempotentPerClientUntilComplete(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()
	state := testState()

	id1, err := s.Store(ctx, state, "development", "client-1", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id2, err := s.Store(ctx, state, "development", "client-1", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected idempotent state_id until is_complete, got %q then %q", id1, id2)
	}

	if _, err := s.Store(ctx, state, "development", "client-1", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, err := s.ActiveForClient(ctx, "client-1"); err != nil || ok {
		t.Fatalf("expected no active adventure after completion, ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreLoadRoundTrip(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()
	state := testState()

	id, err := s.Store(ctx, state, "production", "client-9", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap, err := s.Load(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.UserID != "42" {
		t.Fatalf("expected stringified user id %q, got %q", "42", snap.UserID)
	}
	if snap.Environment != "production" || snap.ClientUUID != "client-9" {
		t.Fatalf("unexpected identity fields: %+v", snap)
	}
	if len(snap.Snapshot.Chapters) != 1 || snap.Snapshot.Chapters[0].Content != "once upon a time" {
		t.Fatalf("unexpected chapters in snapshot: %+v", snap.Snapshot.Chapters)
	}
}

func TestMemoryStoreLoadMissingReturnsNotFound(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	if _, err := s.Load(context.Background(), "nonexistent"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStorePersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "adventures.json")
	ctx := context.Background()

	fs1, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	state := testState()
	id, err := fs1.Store(ctx, state, "development", "client-7", false)
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	fs2, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("reload file store: %v", err)
	}
	snap, err := fs2.Load(ctx, id)
	if err != nil {
		t.Fatalf("load after reload: %v", err)
	}
	if snap.ClientUUID != "client-7" {
		t.Fatalf("unexpected snapshot after reload: %+v", snap)
	}
	activeID, ok, err := fs2.ActiveForClient(ctx, "client-7")
	if err != nil || !ok || activeID != id {
		t.Fatalf("expected active pointer to survive reload, got %q ok=%v err=%v", activeID, ok, err)
	}
}

func TestFileStoreClearsActiveOnComplete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "adventures.json")
	ctx := context.Background()

	fs, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	state := testState()
	if _, err := fs.Store(ctx, state, "development", "client-3", false); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := fs.Store(ctx, state, "development", "client-3", true); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, ok, err := fs.ActiveForClient(ctx, "client-3"); err != nil || ok {
		t.Fatalf("expected no active adventure after completion, ok=%v err=%v", ok, err)
	}
}
