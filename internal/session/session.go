// Package session tracks multi-turn conversations and rewrites
// follow-up questions into standalone queries.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// Turn is one completed question/answer exchange.
type Turn struct {
	Index             int
	Question          string
	RewrittenQuery    string
	RetrievedChunkIDs []string
	Answer            string
}

// Session is an append-only record of a conversation. Turns are never
// mutated after they are appended.
type Session struct {
	id string

	turnMu sync.Mutex

	mu    sync.Mutex
	turns []Turn
}

// BeginTurn serializes turn handling on this session: a second
// BeginTurn blocks until EndTurn releases the first. Turns on
// different sessions are independent.
func (s *Session) BeginTurn() { s.turnMu.Lock() }

// EndTurn releases the hold taken by BeginTurn.
func (s *Session) EndTurn() { s.turnMu.Unlock() }

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Turns returns a copy of the completed turns in order.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Append records a completed turn, assigning its index.
func (s *Session) Append(t Turn) Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Index = len(s.turns)
	s.turns = append(s.turns, t)
	return t
}

// Len returns the number of completed turns.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Registry holds live sessions keyed by ID.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session with the given ID, creating it if
// needed. A blank ID creates a session under a fresh UUID.
func (r *Registry) GetOrCreate(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := &Session{id: id}
	r.sessions[id] = s
	return s
}

// Get returns the session with the given ID, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}
