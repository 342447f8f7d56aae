// internal/handlers/game_ws_test.go
package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratum/internal/auth"
	"stratum/internal/config"
	"stratum/internal/game"
	"stratum/internal/models"
)

type stubOracle struct{}

func (stubOracle) InitialBoard() string { return "initial" }

func (stubOracle) Apply(_ context.Context, board string, _ models.Color, _ models.MoveRequest) (game.RuleOutcome, error) {
	return game.RuleOutcome{Board: board}, nil
}

func wsTestServer(t *testing.T) (*httptest.Server, *GameServer) {
	t.Helper()
	auth.Init()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	gs := NewGameServer(game.NewRegistry(logger), stubOracle{}, config.Default(), logger)
	srv := httptest.NewServer(GameWSHandler(logger, gs))
	t.Cleanup(srv.Close)
	return srv, gs
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

// closeStatusOnRead drains the socket until the server closes it and
// returns the close code.
func closeStatusOnRead(t *testing.T, c *websocket.Conn) websocket.StatusCode {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	require.Error(t, err)
	return websocket.CloseStatus(err)
}

func TestGameWSRejectionCloseCodes(t *testing.T) {
	srv, gs := wsTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	white := &models.Player{ID: uuid.New(), Username: "w", Rating: 1500}
	black := &models.Player{ID: uuid.New(), Username: "b", Rating: 1500}
	sess, err := gs.CreateSession(white, black, models.TimeControl{InitialSec: 300, IncrementSec: 3}, false, nil, 0)
	require.NoError(t, err)

	dial := func(t *testing.T, path string, opts *websocket.DialOptions) *websocket.Conn {
		t.Helper()
		c, _, err := websocket.Dial(ctx, wsURL(srv, path), opts)
		require.NoError(t, err)
		t.Cleanup(func() { c.CloseNow() })
		return c
	}
	gameProto := &websocket.DialOptions{Subprotocols: []string{"game"}}

	t.Run("wrong subprotocol", func(t *testing.T) {
		c := dial(t, "/game/ws/"+sess.ID.String(), nil)
		assert.Equal(t, websocket.StatusCode(BadSubprotocolError), closeStatusOnRead(t, c))
	})

	t.Run("malformed session id", func(t *testing.T) {
		c := dial(t, "/game/ws/not-a-uuid", gameProto)
		assert.Equal(t, websocket.StatusCode(InvalidSessionIDError), closeStatusOnRead(t, c))
	})

	t.Run("unknown session", func(t *testing.T) {
		c := dial(t, "/game/ws/"+uuid.NewString(), gameProto)
		assert.Equal(t, websocket.StatusCode(InvalidSessionIDError), closeStatusOnRead(t, c))
	})

	t.Run("missing token", func(t *testing.T) {
		c := dial(t, "/game/ws/"+sess.ID.String(), gameProto)
		assert.Equal(t, websocket.StatusCode(InvalidAuthTokenError), closeStatusOnRead(t, c))
	})

	t.Run("not seated", func(t *testing.T) {
		outsider, err := auth.CreateJWT(uuid.NewString())
		require.NoError(t, err)
		c := dial(t, "/game/ws/"+sess.ID.String()+"?token="+outsider, gameProto)
		assert.Equal(t, websocket.StatusCode(NotSeatedError), closeStatusOnRead(t, c))
	})
}
