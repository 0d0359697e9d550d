package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fusedchat/fusedchat/ai-core/internal/store"
	"github.com/fusedchat/fusedchat/ai-core/pkg/models"
)

// newTestStore creates a fresh in-memory store with no persistence.
func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s := store.NewMemoryStore("")
	t.Cleanup(func() { s.Close() })
	return s
}

// ─── Document CRUD ───────────────────────────────────────────

func TestDocumentCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &models.Document{
		ID:         "doc-1",
		Name:       "notes.txt",
		UserID:     "u1",
		ChunkCount: 4,
		SizeChars:  2048,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}

	got, err := s.GetDocument(ctx, "u1", "doc-1")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if got.Name != "notes.txt" || got.ChunkCount != 4 {
		t.Errorf("GetDocument() = %+v, want name notes.txt with 4 chunks", got)
	}

	got.ChunkCount = 7
	if err := s.UpdateDocument(ctx, got); err != nil {
		t.Fatalf("UpdateDocument() error = %v", err)
	}
	got, _ = s.GetDocument(ctx, "u1", "doc-1")
	if got.ChunkCount != 7 {
		t.Errorf("After update, ChunkCount = %d, want 7", got.ChunkCount)
	}

	if err := s.DeleteDocument(ctx, "u1", "doc-1"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	if _, err := s.GetDocument(ctx, "u1", "doc-1"); err == nil {
		t.Error("GetDocument() after delete should return error, got nil")
	}
}

func TestDocumentNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetDocument(ctx, "u1", "missing")
	var notFound *store.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want *ErrNotFound", err)
	}
}

func TestListDocumentsScopedToUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i, name := range []string{"a.txt", "b.txt", "c.txt"} {
		s.CreateDocument(ctx, &models.Document{
			ID: name, Name: name, UserID: "u1",
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		})
	}
	s.CreateDocument(ctx, &models.Document{ID: "x", Name: "x.txt", UserID: "u2", CreatedAt: now})

	docs, err := s.ListDocuments(ctx, "u1")
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("ListDocuments() returned %d, want 3", len(docs))
	}
	if docs[0].Name != "c.txt" {
		t.Errorf("ListDocuments()[0] = %q, want newest first", docs[0].Name)
	}
}

// ─── Session CRUD ────────────────────────────────────────────

func TestSessionCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &models.Session{
		ID:     "sess-1",
		UserID: "u1",
		Title:  "physics questions",
		History: []models.ChatMessage{
			{Role: models.RoleUser, Text: "what is momentum?"},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	got, err := s.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if len(got.History) != 1 {
		t.Fatalf("History has %d messages, want 1", len(got.History))
	}

	// Mutating the returned copy must not affect stored state.
	got.History[0].Text = "mutated"
	fresh, _ := s.GetSession(ctx, "sess-1")
	if fresh.History[0].Text != "what is momentum?" {
		t.Error("GetSession() must return a defensive copy of history")
	}

	got.History = append(got.History, models.ChatMessage{Role: models.RoleModel, Text: "p = mv"})
	got.History[0].Text = "what is momentum?"
	if err := s.UpdateSession(ctx, got); err != nil {
		t.Fatalf("UpdateSession() error = %v", err)
	}
	fresh, _ = s.GetSession(ctx, "sess-1")
	if len(fresh.History) != 2 {
		t.Errorf("After update, history has %d messages, want 2", len(fresh.History))
	}

	if err := s.DeleteSession(ctx, "sess-1"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, err := s.GetSession(ctx, "sess-1"); err == nil {
		t.Error("GetSession() after delete should return error, got nil")
	}
}

func TestListSessionsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		s.CreateSession(ctx, &models.Session{
			ID:        string(rune('a' + i)),
			UserID:    "u1",
			UpdatedAt: now.Add(time.Duration(i) * time.Second),
		})
	}

	sessions, err := s.ListSessions(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("ListSessions() returned %d, want 3", len(sessions))
	}
	if sessions[0].ID != "e" {
		t.Errorf("ListSessions()[0] = %q, want most recently updated first", sessions[0].ID)
	}
}

// ─── Close / Snapshot ───────────────────────────────────────

func TestCloseFlushAndReload(t *testing.T) {
	dir := t.TempDir()
	s := store.NewMemoryStore(dir)

	ctx := context.Background()
	s.CreateDocument(ctx, &models.Document{ID: "keep", Name: "keep.txt", UserID: "u1"})

	// Close should flush to disk.
	s.Close()

	s2 := store.NewMemoryStore(dir)
	defer s2.Close()

	got, err := s2.GetDocument(ctx, "u1", "keep")
	if err != nil {
		t.Fatalf("After reopen, GetDocument() error = %v", err)
	}
	if got.Name != "keep.txt" {
		t.Errorf("After reopen, document name = %q, want keep.txt", got.Name)
	}
}
