// internal/handlers/game_server.go
package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stratum/internal/cache"
	"stratum/internal/config"
	"stratum/internal/database"
	"stratum/internal/game"
	"stratum/internal/models"
)

// room tracks the live websocket connections for one session. Broadcast
// closures read from here instead of the session's seats, so they never
// touch the session lock.
type room struct {
	mu    sync.Mutex
	conns map[uuid.UUID]*websocket.Conn
	// seen marks players who have connected at least once, so a later
	// connect is routed through reconnection handling.
	seen map[uuid.UUID]bool
}

// GameServer wires the session registry to websocket rooms and persistence.
type GameServer struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*room

	Registry *game.Registry
	Oracle   game.RulesOracle

	cfg    *config.Config
	logger *logrus.Logger
}

func NewGameServer(registry *game.Registry, oracle game.RulesOracle, cfg *config.Config, logger *logrus.Logger) *GameServer {
	gs := &GameServer{
		rooms:    make(map[uuid.UUID]*room),
		Registry: registry,
		Oracle:   oracle,
		cfg:      cfg,
		logger:   logger,
	}
	registry.PersistFn = gs.persistCompleted
	return gs
}

// CreateSession launches a session for a matched pair and wires its
// broadcasts to the session's room. Suits the matchmaking queue's creator
// hook and the tournament engine's launcher.
func (gs *GameServer) CreateSession(white, black *models.Player, tc models.TimeControl, rated bool, tournamentID *uuid.UUID, round int) (*game.Session, error) {
	sess, err := gs.Registry.Create(game.SessionParams{
		White:          white,
		Black:          black,
		TimeControl:    tc,
		Rated:          rated,
		TournamentID:   tournamentID,
		RoundNumber:    round,
		Oracle:         gs.Oracle,
		ReconnectGrace: gs.cfg.Session.ReconnectGrace(),
		RatingCfg:      gs.cfg.Rating,
		Logger:         gs.logger,
	})
	if err != nil {
		return nil, err
	}

	gs.mu.Lock()
	gs.rooms[sess.ID] = &room{
		conns: make(map[uuid.UUID]*websocket.Conn),
		seen:  make(map[uuid.UUID]bool),
	}
	gs.mu.Unlock()

	sess.BroadcastFn = gs.broadcastFunc(sess.ID)
	sess.BroadcastToPlayerFn = gs.broadcastToPlayerFunc(sess.ID)
	return sess, nil
}

// CloseRoom drops the connection map once a session is archived.
func (gs *GameServer) CloseRoom(sessionID uuid.UUID) {
	gs.mu.Lock()
	delete(gs.rooms, sessionID)
	gs.mu.Unlock()
}

func (gs *GameServer) roomFor(sessionID uuid.UUID) *room {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return gs.rooms[sessionID]
}

func (gs *GameServer) joinRoom(sessionID, playerID uuid.UUID, c *websocket.Conn) (reconnect bool) {
	rm := gs.roomFor(sessionID)
	if rm == nil {
		return false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	reconnect = rm.seen[playerID]
	rm.seen[playerID] = true
	rm.conns[playerID] = c
	return reconnect
}

func (gs *GameServer) leaveRoom(sessionID, playerID uuid.UUID, c *websocket.Conn) {
	rm := gs.roomFor(sessionID)
	if rm == nil {
		return
	}
	rm.mu.Lock()
	// Only remove if this exact connection is still registered; a reconnect
	// may have replaced it already.
	if rm.conns[playerID] == c {
		delete(rm.conns, playerID)
	}
	rm.mu.Unlock()
}

// broadcastFunc builds a session broadcast callback. The session fires it
// while holding its own lock, so the closure only touches room state and
// hands the socket writes to a goroutine.
func (gs *GameServer) broadcastFunc(sessionID uuid.UUID) func(ev game.Event) {
	return func(ev game.Event) {
		rm := gs.roomFor(sessionID)
		if rm == nil {
			return
		}
		rm.mu.Lock()
		conns := make([]*websocket.Conn, 0, len(rm.conns))
		for _, c := range rm.conns {
			conns = append(conns, c)
		}
		rm.mu.Unlock()

		go func() {
			for _, c := range conns {
				writeEvent(c, ev, gs.logger)
			}
		}()
	}
}

func (gs *GameServer) broadcastToPlayerFunc(sessionID uuid.UUID) func(playerID uuid.UUID, ev game.Event) {
	return func(playerID uuid.UUID, ev game.Event) {
		rm := gs.roomFor(sessionID)
		if rm == nil {
			return
		}
		rm.mu.Lock()
		c := rm.conns[playerID]
		rm.mu.Unlock()
		if c == nil {
			return
		}
		go writeEvent(c, ev, gs.logger)
	}
}

// persistCompleted writes the completed-game record; a failed write parks
// the record on the Redis retry list for the drain worker.
func (gs *GameServer) persistCompleted(rec models.CompletedGame) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := database.PersistCompletedGame(ctx, rec); err != nil {
		gs.logger.WithFields(logrus.Fields{
			"session_id": rec.SessionID,
			"error":      err,
		}).Error("persist failed, parking record for retry")
		if qErr := cache.EnqueueFailedPersist(ctx, rec); qErr != nil {
			gs.logger.WithFields(logrus.Fields{
				"session_id": rec.SessionID,
				"error":      qErr,
			}).Error("failed to park record on retry queue")
		}
	}
}
