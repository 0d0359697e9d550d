// Package store — in-memory Store implementation with optional
// file-based snapshot persistence so data survives restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fusedchat/fusedchat/ai-core/pkg/models"
	"github.com/rs/zerolog/log"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Documents map[string]*models.Document `json:"documents"` // key: user_id:id
	Sessions  map[string]*models.Session  `json:"sessions"`  // key: id
}

// MemoryStore implements Store with in-memory maps. When constructed
// with a data directory, it debounces writes into a JSON snapshot file
// and reloads it on startup.
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[string]*models.Document // key: user_id:id
	sessions  map[string]*models.Session  // key: id

	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // stops the save goroutine
}

// NewMemoryStore creates an in-memory store. A non-empty dataDir
// enables snapshot persistence to <dataDir>/data.json.
func NewMemoryStore(dataDir string) *MemoryStore {
	m := &MemoryStore{
		documents: make(map[string]*models.Document),
		sessions:  make(map[string]*models.Session),
		saveCh:    make(chan struct{}, 1),
		doneCh:    make(chan struct{}),
	}

	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("cannot create data dir, persistence disabled")
		} else {
			m.snapshotPath = filepath.Join(dataDir, "data.json")
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("memory store configured")
	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// already pending
	}
}

// saveLoop debounces save requests to at most one write per 500ms.
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond)
			m.saveSnapshot()
		}
	}
}

func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	data, err := json.MarshalIndent(snapshot{
		Documents: m.documents,
		Sessions:  m.sessions,
	}, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity.
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("failed to rename snapshot")
		return
	}
	log.Debug().Str("path", m.snapshotPath).Msg("snapshot saved")
}

func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("no snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Documents != nil {
		m.documents = snap.Documents
	}
	if snap.Sessions != nil {
		m.sessions = snap.Sessions
	}
	log.Info().
		Int("documents", len(m.documents)).
		Int("sessions", len(m.sessions)).
		Str("path", m.snapshotPath).
		Msg("snapshot loaded")
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops the save goroutine and flushes a final snapshot. Safe to
// call more than once.
func (m *MemoryStore) Close() error {
	select {
	case <-m.doneCh:
		return nil
	default:
		close(m.doneCh)
	}
	if m.snapshotPath != "" {
		m.saveSnapshot()
	}
	log.Info().Msg("memory store closed")
	return nil
}

func docKey(userID, id string) string {
	return userID + ":" + id
}

// ── Document Store ──────────────────────────────────────────

func (m *MemoryStore) ListDocuments(_ context.Context, userID string) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.Document
	for _, d := range m.documents {
		if d.UserID == userID {
			result = append(result, *d)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) GetDocument(_ context.Context, userID, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[docKey(userID, id)]
	if !ok {
		return nil, &ErrNotFound{Entity: "document", Key: id}
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) CreateDocument(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	cp := *doc
	m.documents[docKey(doc.UserID, doc.ID)] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateDocument(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	k := docKey(doc.UserID, doc.ID)
	if _, ok := m.documents[k]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "document", Key: doc.ID}
	}
	cp := *doc
	m.documents[k] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteDocument(_ context.Context, userID, id string) error {
	m.mu.Lock()
	k := docKey(userID, id)
	if _, ok := m.documents[k]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "document", Key: id}
	}
	delete(m.documents, k)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Session Store ───────────────────────────────────────────

func (m *MemoryStore) ListSessions(_ context.Context, userID string, limit int) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			result = append(result, *s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "session", Key: id}
	}
	cp := *s
	cp.History = append([]models.ChatMessage(nil), s.History...)
	return &cp, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	cp := *session
	cp.History = append([]models.ChatMessage(nil), session.History...)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = cp.CreatedAt
	}
	m.sessions[session.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateSession(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	if _, ok := m.sessions[session.ID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "session", Key: session.ID}
	}
	cp := *session
	cp.History = append([]models.ChatMessage(nil), session.History...)
	cp.UpdatedAt = time.Now().UTC()
	m.sessions[session.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.sessions[id]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "session", Key: id}
	}
	delete(m.sessions, id)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
