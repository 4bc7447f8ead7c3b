package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"chatd/internal/engine"
	"chatd/internal/store"
	"chatd/pkg/types"
)

// Manager maps session ids to live Session objects, backed by the store.
// Live sessions are cached so concurrent requests against the same id
// share one in-memory history and one per-session exchange queue.
type Manager struct {
	mu   sync.RWMutex
	live map[string]*Session

	store   *store.Store
	engines *engine.Manager
	gate    *engine.Gate
	log     zerolog.Logger
}

// NewManager returns a session manager over the given collaborators.
func NewManager(st *store.Store, engines *engine.Manager, gate *engine.Gate, log zerolog.Logger) *Manager {
	return &Manager{
		live:    make(map[string]*Session),
		store:   st,
		engines: engines,
		gate:    gate,
		log:     log,
	}
}

func (m *Manager) newSession(row store.ChatSession) *Session {
	return &Session{
		id:            row.ID,
		userID:        row.UserID,
		createdAt:     row.CreatedAt,
		lastMessageAt: row.LastMessageAt,
		store:         m.store,
		engines:       m.engines,
		gate:          m.gate,
		log:           m.log,
	}
}

// CreateSession persists a new session owned by userID and returns a live
// session with empty history. The user row is created on first contact.
func (m *Manager) CreateSession(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, ErrValidation("user_id is required")
	}
	if _, err := m.store.EnsureUser(ctx, userID); err != nil {
		return nil, err
	}
	row, err := m.store.CreateSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	sess := m.newSession(row)

	m.mu.Lock()
	m.live[sess.id] = sess
	m.mu.Unlock()
	m.log.Info().Str("session", sess.id).Str("user", userID).Msg("session created")
	return sess, nil
}

// GetSession returns the live session for id, materializing it from the
// store (history included) on first access.
func (m *Manager) GetSession(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrValidation("session id is required")
	}

	m.mu.RLock()
	sess, ok := m.live[id]
	m.mu.RUnlock()
	if ok {
		return sess, nil
	}

	row, found, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrSessionNotFound(id)
	}
	sess = m.newSession(row)
	if err := sess.loadHistory(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	// Another request may have materialized the session concurrently;
	// keep the first one so in-memory history stays singular.
	if existing, ok := m.live[id]; ok {
		sess = existing
	} else {
		m.live[id] = sess
	}
	m.mu.Unlock()
	return sess, nil
}

// ListSessionsForUser returns summaries of userID's sessions, most
// recently active first (creation time substitutes for sessions that have
// no messages yet).
func (m *Manager) ListSessionsForUser(ctx context.Context, userID string) ([]types.SessionSummary, error) {
	if userID == "" {
		return nil, ErrValidation("user_id is required")
	}
	rows, err := m.store.ListSessionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]types.SessionSummary, len(rows))
	for i, r := range rows {
		out[i] = types.SessionSummary{
			SessionID:     r.ID,
			CreatedAt:     r.CreatedAt,
			LastMessageAt: r.LastMessageAt,
		}
	}
	return out, nil
}

// DeleteSession removes the session and its messages, and evicts the live
// object. Unknown ids are a no-op.
func (m *Manager) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return ErrValidation("session id is required")
	}
	if err := m.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.live, id)
	m.mu.Unlock()
	m.log.Info().Str("session", id).Msg("session deleted")
	return nil
}

// Evict drops a live session from the cache without touching the store.
// The next GetSession reloads it from persisted history.
func (m *Manager) Evict(id string) {
	m.mu.Lock()
	delete(m.live, id)
	m.mu.Unlock()
}
