// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"stratum/internal/auth"
	"stratum/internal/game"
	"stratum/internal/middleware"
	"stratum/internal/models"
)

// ClientMessage is the envelope for incoming game websocket messages.
type ClientMessage struct {
	Type string `json:"type"`

	// Move carries the payload for move:make.
	Move *models.MoveRequest `json:"move,omitempty"`

	// Accept is the answer for draw:response.
	Accept *bool `json:"accept,omitempty"`
}

// GameWSHandler upgrades the HTTP connection for a session at
// /game/ws/{session_id}, authenticates the player, verifies the seat, and
// runs the read loop until the connection drops.
func GameWSHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idStr := strings.TrimPrefix(r.URL.Path, "/game/ws/")
		if i := strings.IndexByte(idStr, '/'); i >= 0 {
			idStr = idStr[:i]
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"game"},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept failed for %s: %v", r.URL.Path, err)
			return
		}
		defer c.CloseNow()

		if c.Subprotocol() != "game" {
			c.Close(BadSubprotocolError, "client must speak the game subprotocol")
			return
		}

		sessionID, err := uuid.Parse(idStr)
		if err != nil {
			c.Close(InvalidSessionIDError, "malformed session id")
			return
		}
		sess, err := gs.Registry.Get(sessionID)
		if err != nil {
			c.Close(InvalidSessionIDError, "session does not exist")
			return
		}

		playerID, err := auth.PlayerIDFromRequest(r)
		if err != nil {
			c.Close(InvalidAuthTokenError, "authentication failed")
			return
		}
		if _, seated := sess.ColorOf(playerID); !seated {
			c.Close(NotSeatedError, "player is not seated in this session")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		reconnect := gs.joinRoom(sessionID, playerID, c)
		if reconnect {
			err = sess.HandleReconnect(playerID, c)
		} else {
			err = sess.AttachConn(playerID, c)
			if err == nil {
				// First join: hand the player the opening state.
				snap := sess.Snapshot()
				writeEvent(c, game.Event{
					Type:      game.EventGameJoined,
					RoomID:    sessionID,
					Snapshot:  &snap,
					Timestamp: time.Now(),
				}, logger)
			}
		}
		if err != nil {
			c.Close(websocket.StatusPolicyViolation, "seat attach failed")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		readErr := readClientMessages(ctx, c, sess, playerID, logger)

		gs.leaveRoom(sessionID, playerID, c)
		sess.HandleDisconnect(playerID)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, readErr)
	}
}

// readClientMessages pumps messages off the socket and routes them to the
// session. The session serializes internally, so no lock is taken here;
// operation errors become error events back to the sender rather than
// closing the connection.
func readClientMessages(ctx context.Context, c *websocket.Conn, sess *game.Session, playerID uuid.UUID, logger *logrus.Logger) error {
	limiter := rate.NewLimiter(rate.Every(100*time.Millisecond), 10)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		msgType, data, err := c.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sendWsError(ctx, c, sess.ID, "invalid JSON payload", logger)
			continue
		}

		switch msg.Type {
		case "game:join":
			// Seat is already attached on upgrade; just replay the state.
			snap := sess.Snapshot()
			writeEvent(c, game.Event{
				Type:      game.EventGameJoined,
				RoomID:    sess.ID,
				Snapshot:  &snap,
				Timestamp: time.Now(),
			}, logger)

		case "move:make":
			if msg.Move == nil {
				sendWsError(ctx, c, sess.ID, "move:make requires a move payload", logger)
				continue
			}
			if _, err := sess.SubmitMove(ctx, playerID, *msg.Move); err != nil {
				sendWsError(ctx, c, sess.ID, err.Error(), logger)
			}

		case "game:resign":
			if err := sess.Resign(playerID); err != nil {
				sendWsError(ctx, c, sess.ID, err.Error(), logger)
			}

		case "draw:offer":
			if err := sess.OfferDraw(playerID); err != nil {
				sendWsError(ctx, c, sess.ID, err.Error(), logger)
			}

		case "draw:response":
			if msg.Accept == nil {
				sendWsError(ctx, c, sess.ID, "draw:response requires accept", logger)
				continue
			}
			if err := sess.RespondDraw(playerID, *msg.Accept); err != nil {
				sendWsError(ctx, c, sess.ID, err.Error(), logger)
			}

		case "game:state":
			snap := sess.Snapshot()
			writeEvent(c, game.Event{
				Type:      game.EventGameState,
				RoomID:    sess.ID,
				Snapshot:  &snap,
				Timestamp: time.Now(),
			}, logger)

		case "ping":
			writeRaw(ctx, c, map[string]string{"type": "pong"}, logger)

		default:
			sendWsError(ctx, c, sess.ID, "unknown message type: "+msg.Type, logger)
		}
	}
}

// writeEvent marshals and sends one event with a write timeout.
func writeEvent(c *websocket.Conn, ev game.Event, logger *logrus.Logger) {
	if c == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Errorf("failed to marshal %s event: %v", ev.Type, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Write(ctx, websocket.MessageText, data); err != nil {
		logger.Warnf("failed to write %s event: %v", ev.Type, err)
	}
}

func writeRaw(ctx context.Context, c *websocket.Conn, v interface{}, logger *logrus.Logger) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("failed to marshal ws message: %v", err)
		return
	}
	wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Write(wctx, websocket.MessageText, data); err != nil {
		logger.Warnf("failed to write ws message: %v", err)
	}
}

func sendWsError(ctx context.Context, c *websocket.Conn, roomID uuid.UUID, message string, logger *logrus.Logger) {
	writeRaw(ctx, c, game.Event{
		Type:      game.EventError,
		RoomID:    roomID,
		Message:   message,
		Timestamp: time.Now(),
	}, logger)
}
