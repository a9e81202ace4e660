// Package player manages listening sessions: one playback controller per
// open book, created on demand and torn down on close or server shutdown.
package player

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/clayworth/gapless/internal/logger"
	"github.com/clayworth/gapless/internal/playback"
)

// ErrNoSession indicates an operation on a book with no open session.
var ErrNoSession = errors.New("no open session for book")

// HandleFactory creates one decode handle. Called twice per session: the
// playback engine drives a pair.
type HandleFactory func() playback.Handle

// Session is one open book: its controller plus the most recent published
// snapshot and error.
type Session struct {
	BookID     uuid.UUID
	Controller *playback.Controller

	mu        sync.RWMutex
	lastState playback.PublicState
	lastErr   error
}

func (s *Session) publishState(state playback.PublicState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastState = state
}

func (s *Session) publishError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}

// State returns the most recent published snapshot.
func (s *Session) State() playback.PublicState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastState
}

// LastError returns the most recent asynchronous playback error, if any.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// ClearError drops the recorded error, typically after a successful retry.
func (s *Session) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = nil
}

// Manager owns all live sessions. One session per book; opening an already
// open book returns the existing session.
type Manager struct {
	metadata playback.MetadataSource
	resolver playback.ResolverFactory
	handles  HandleFactory
	cfg      playback.Config

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// NewManager creates a session manager.
func NewManager(metadata playback.MetadataSource, resolver playback.ResolverFactory, handles HandleFactory, cfg playback.Config) *Manager {
	return &Manager{
		metadata: metadata,
		resolver: resolver,
		handles:  handles,
		cfg:      cfg,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Open creates a session for the book and loads its first chunk. If the
// book is already open the existing session is returned untouched.
func (m *Manager) Open(ctx context.Context, bookID uuid.UUID) (*Session, error) {
	m.mu.Lock()
	if session, ok := m.sessions[bookID]; ok {
		m.mu.Unlock()
		return session, nil
	}

	session := &Session{BookID: bookID}
	session.Controller = playback.NewController(
		m.metadata, m.resolver, m.handles(), m.handles(), m.cfg,
		session.publishState, session.publishError)
	m.sessions[bookID] = session
	m.mu.Unlock()

	if err := session.Controller.Open(ctx, bookID); err != nil {
		m.Close(bookID)
		return nil, err
	}

	logger.Log.Info().
		Str("book_id", bookID.String()).
		Float64("duration", session.Controller.TotalVirtualDuration()).
		Msg("Listening session opened")

	return session, nil
}

// Get returns the open session for a book.
func (m *Manager) Get(bookID uuid.UUID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[bookID]
	return session, ok
}

// Close tears down the session for a book. Closing a book with no session
// returns ErrNoSession.
func (m *Manager) Close(bookID uuid.UUID) error {
	m.mu.Lock()
	session, ok := m.sessions[bookID]
	delete(m.sessions, bookID)
	m.mu.Unlock()

	if !ok {
		return ErrNoSession
	}
	session.Controller.Close()

	logger.Log.Info().
		Str("book_id", bookID.String()).
		Msg("Listening session closed")
	return nil
}

// Stop closes every open session. Called on server shutdown.
func (m *Manager) Stop() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[uuid.UUID]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Controller.Close()
	}
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
