// internal/game/registry.go
package game

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stratum/internal/core"
	"stratum/internal/models"
)

// Registry owns the id → session map for all live sessions. It is the only
// structure mutated by multiple concurrent callers (queue matcher,
// tournament engine, inbound client events), so it carries its own lock,
// decoupled from the per-session locks: the registry never calls into a
// session while holding its own mutex.
type Registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session

	logger *logrus.Logger

	// PersistFn and OnComplete are stamped onto every created session.
	PersistFn  func(rec models.CompletedGame)
	OnComplete func(rec models.CompletedGame)
}

func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		logger:   logger,
	}
}

// Create builds a session from params, wires the terminal callbacks, and
// registers it.
func (r *Registry) Create(p SessionParams) (*Session, error) {
	if p.Logger == nil {
		p.Logger = r.logger
	}
	s, err := NewSession(p)
	if err != nil {
		return nil, err
	}
	s.PersistFn = r.PersistFn
	s.OnComplete = func(rec models.CompletedGame) {
		r.Archive(rec.SessionID)
		if r.OnComplete != nil {
			r.OnComplete(rec)
		}
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	count := len(r.sessions)
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{
			"session": s.ID,
			"white":   p.White.ID,
			"black":   p.Black.ID,
			"tc":      p.TimeControl.Key(),
			"live":    count,
		}).Info("session created")
	}
	return s, nil
}

// Get resolves a live session.
func (r *Registry) Get(id uuid.UUID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, core.NotFoundf("session %s", id)
	}
	return s, nil
}

// Archive drops a terminal session from the live map. Idempotent.
func (r *Registry) Archive(id uuid.UUID) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// ForPlayer returns every live session seating the player.
func (r *Registry) ForPlayer(playerID uuid.UUID) []*Session {
	r.mu.Lock()
	candidates := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		candidates = append(candidates, s)
	}
	r.mu.Unlock()

	var out []*Session
	for _, s := range candidates {
		if _, ok := s.ColorOf(playerID); ok {
			out = append(out, s)
		}
	}
	return out
}

// DisconnectPlayer starts the reconnection grace timer in every room the
// player occupied. Called when a client's transport drops.
func (r *Registry) DisconnectPlayer(playerID uuid.UUID) {
	for _, s := range r.ForPlayer(playerID) {
		s.HandleDisconnect(playerID)
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
