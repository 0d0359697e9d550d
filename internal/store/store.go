// Package store persists document metadata and chat sessions. The
// in-memory implementation with JSON snapshots is the default; handler
// code depends only on the Store interface.
package store

import (
	"context"

	"github.com/fusedchat/fusedchat/ai-core/pkg/models"
)

// Store is the metadata storage surface used by the API layer. Chunk
// vectors live in the vector index, not here.
type Store interface {
	DocumentStore
	SessionStore

	// Ping checks that the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases resources and flushes pending writes.
	Close() error
}

// DocumentStore manages uploaded document records.
type DocumentStore interface {
	ListDocuments(ctx context.Context, userID string) ([]models.Document, error)
	GetDocument(ctx context.Context, userID, id string) (*models.Document, error)
	CreateDocument(ctx context.Context, doc *models.Document) error
	UpdateDocument(ctx context.Context, doc *models.Document) error
	DeleteDocument(ctx context.Context, userID, id string) error
}

// SessionStore manages multi-turn chat sessions.
type SessionStore interface {
	ListSessions(ctx context.Context, userID string, limit int) ([]models.Session, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	CreateSession(ctx context.Context, session *models.Session) error
	UpdateSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, id string) error
}

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}
