// internal/game/session.go
package game

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stratum/internal/config"
	"stratum/internal/core"
	"stratum/internal/models"
	"stratum/internal/rating"
)

// Seat is one side's presence in a session.
type Seat struct {
	Player    *models.Player
	Conn      *websocket.Conn
	Connected bool
}

// SessionParams carries everything needed to start a session. Pairing has
// already happened, so the session begins directly in Active.
type SessionParams struct {
	White, Black *models.Player
	TimeControl  models.TimeControl
	Rated        bool

	TournamentID *uuid.UUID
	RoundNumber  int

	Oracle         RulesOracle
	ReconnectGrace time.Duration
	RatingCfg      config.RatingConfig

	Logger *logrus.Logger
}

// Session is the per-match state machine. It is a single-writer resource:
// every mutating operation (move, resign, draw response, clock expiry,
// disconnect, reconnect, abort) serializes on mu, so a move and a clock
// expiry can never both complete the session.
type Session struct {
	ID uuid.UUID

	mu sync.Mutex

	seats       map[models.Color]*Seat
	timeControl models.TimeControl
	rated       bool

	tournamentID *uuid.UUID
	roundNumber  int

	ledger *Ledger
	clock  *Clock

	status      models.SessionStatus
	result      models.Result
	termination models.Termination

	// drawOfferBy is the side with a pending draw offer, if any. An offer is
	// implicitly withdrawn by any subsequent move or resignation; a fresh
	// offer replaces the old one.
	drawOfferBy *models.Color

	clockTimer  *time.Timer
	graceTimers map[models.Color]*time.Timer
	graceGen    map[models.Color]int

	grace     time.Duration
	ratingCfg config.RatingConfig

	startedAt   time.Time
	completedAt time.Time

	logger *logrus.Logger

	// BroadcastFn sends an event to every connected seat; set by the ws
	// layer once a connection attaches. Nil means no broadcast.
	BroadcastFn func(ev Event)

	// BroadcastToPlayerFn sends an event to one player only.
	BroadcastToPlayerFn func(playerID uuid.UUID, ev Event)

	// PersistFn receives the completed-game record for storage. Called once,
	// asynchronously, only for Completed sessions (aborted games are never
	// persisted as scored games). The implementation is responsible for
	// idempotent upserts and retry.
	PersistFn func(rec models.CompletedGame)

	// OnComplete is invoked once for every terminal transition, completed or
	// aborted; the registry and tournament engine hang off this.
	OnComplete func(rec models.CompletedGame)
}

// NewSession builds an Active session with running clocks.
func NewSession(p SessionParams) (*Session, error) {
	if p.White == nil || p.Black == nil || p.White.ID == p.Black.ID {
		return nil, core.Validationf("a session requires two distinct players")
	}
	id, _ := uuid.NewRandom()
	now := time.Now()
	s := &Session{
		ID: id,
		seats: map[models.Color]*Seat{
			models.White: {Player: p.White},
			models.Black: {Player: p.Black},
		},
		timeControl:  p.TimeControl,
		rated:        p.Rated,
		tournamentID: p.TournamentID,
		roundNumber:  p.RoundNumber,
		ledger:       NewLedger(id, p.Oracle),
		clock:        NewClock(p.TimeControl),
		status:       models.StatusActive,
		result:       models.ResultUnterminated,
		graceTimers:  make(map[models.Color]*time.Timer),
		graceGen:     make(map[models.Color]int),
		grace:        p.ReconnectGrace,
		ratingCfg:    p.RatingCfg,
		startedAt:    now,
		logger:       p.Logger,
	}
	s.clock.Start(now)
	s.mu.Lock()
	s.scheduleClockExpiryLocked(now)
	s.mu.Unlock()
	return s, nil
}

// ColorOf maps a player id to a seat color.
func (s *Session) ColorOf(playerID uuid.UUID) (models.Color, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.colorOfLocked(playerID)
}

func (s *Session) colorOfLocked(playerID uuid.UUID) (models.Color, bool) {
	for c, seat := range s.seats {
		if seat.Player.ID == playerID {
			return c, true
		}
	}
	return "", false
}

// Players returns both player records, white first.
func (s *Session) Players() (white, black models.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.seats[models.White].Player, *s.seats[models.Black].Player
}

// TournamentID returns the owning tournament, if any, and the round number.
func (s *Session) TournamentID() (*uuid.UUID, int) {
	return s.tournamentID, s.roundNumber
}

// Status returns the current lifecycle state.
func (s *Session) Status() models.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// AttachConn registers a player's websocket connection and marks the seat
// connected. Used on initial join; reconnection goes through
// HandleReconnect so grace timers are cancelled.
func (s *Session) AttachConn(playerID uuid.UUID, conn *websocket.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	color, ok := s.colorOfLocked(playerID)
	if !ok {
		return core.NotFoundf("player %s is not seated in session %s", playerID, s.ID)
	}
	seat := s.seats[color]
	seat.Conn = conn
	seat.Connected = true
	pid := playerID
	s.fireEventLocked(Event{Type: EventPlayerJoined, RoomID: s.ID, PlayerID: &pid, Timestamp: time.Now()})
	return nil
}

// SubmitMove validates turn order, consults the ledger (and through it the
// rules oracle), presses the clock, and applies any terminal verdict.
func (s *Session) SubmitMove(ctx context.Context, playerID uuid.UUID, req models.MoveRequest) (models.Move, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return models.Move{}, core.Statef("session %s is %s", s.ID, s.status)
	}
	color, ok := s.colorOfLocked(playerID)
	if !ok {
		return models.Move{}, core.NotFoundf("player %s is not seated in session %s", playerID, s.ID)
	}
	if s.ledger.ToMove() != color {
		return models.Move{}, core.Validationf("not %s's turn", color)
	}

	now := time.Now()
	// The flag may have fallen between the timer firing and this move
	// arriving; the expiry wins.
	if s.clock.Expired(now) {
		expired := s.clock.Active()
		_ = s.completeLocked(models.WinFor(expired.Opponent()), models.TerminationTime, models.StatusCompleted)
		return models.Move{}, core.Statef("session %s is %s", s.ID, s.status)
	}

	thinkTime := now.Sub(s.startedAt)
	if last := s.ledger.Len(); last > 0 {
		thinkTime = now.Sub(s.ledger.moves[last-1].PlayedAt)
	}

	move, verdict, err := s.ledger.Append(ctx, color, req, thinkTime, now)
	if err != nil {
		return models.Move{}, err
	}

	s.clock.Press(now)
	s.drawOfferBy = nil // a move withdraws any pending offer

	pid := playerID
	s.fireEventLocked(Event{Type: EventMoveMade, RoomID: s.ID, PlayerID: &pid, Move: &move, Timestamp: now})

	if verdict.Over {
		if err := s.completeLocked(verdict.Result, verdict.Termination, models.StatusCompleted); err != nil {
			return move, err
		}
		return move, nil
	}

	s.scheduleClockExpiryLocked(now)
	return move, nil
}

// Resign completes the session in the opponent's favor.
func (s *Session) Resign(playerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return core.Statef("session %s is %s", s.ID, s.status)
	}
	color, ok := s.colorOfLocked(playerID)
	if !ok {
		return core.NotFoundf("player %s is not seated in session %s", playerID, s.ID)
	}
	s.drawOfferBy = nil
	return s.completeLocked(models.WinFor(color.Opponent()), models.TerminationResignation, models.StatusCompleted)
}

// OfferDraw records a pending draw offer and notifies the room.
func (s *Session) OfferDraw(playerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return core.Statef("session %s is %s", s.ID, s.status)
	}
	color, ok := s.colorOfLocked(playerID)
	if !ok {
		return core.NotFoundf("player %s is not seated in session %s", playerID, s.ID)
	}
	s.drawOfferBy = &color
	pid := playerID
	s.fireEventLocked(Event{Type: EventDrawOffered, RoomID: s.ID, PlayerID: &pid, Timestamp: time.Now()})
	return nil
}

// RespondDraw accepts or declines the opponent's pending offer. Accepting
// completes the session as an agreed draw; declining clears the offer.
func (s *Session) RespondDraw(playerID uuid.UUID, accept bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return core.Statef("session %s is %s", s.ID, s.status)
	}
	color, ok := s.colorOfLocked(playerID)
	if !ok {
		return core.NotFoundf("player %s is not seated in session %s", playerID, s.ID)
	}
	if s.drawOfferBy == nil || *s.drawOfferBy != color.Opponent() {
		return core.Validationf("no pending draw offer from opponent")
	}
	s.drawOfferBy = nil
	if !accept {
		pid := playerID
		s.fireEventLocked(Event{Type: EventDrawDeclined, RoomID: s.ID, PlayerID: &pid, Timestamp: time.Now()})
		return nil
	}
	return s.completeLocked(models.ResultDraw, models.TerminationAgreedDraw, models.StatusCompleted)
}

// HandleDisconnect marks the seat disconnected and starts a reconnection
// grace timer. The session status does not change; if the timer elapses
// before a reconnect, the disconnected side forfeits by abandonment.
func (s *Session) HandleDisconnect(playerID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	color, ok := s.colorOfLocked(playerID)
	if !ok {
		return
	}
	seat := s.seats[color]
	if !seat.Connected {
		return
	}
	seat.Connected = false
	seat.Conn = nil

	pid := playerID
	s.fireEventLocked(Event{Type: EventPlayerDisconnected, RoomID: s.ID, PlayerID: &pid, Timestamp: time.Now()})

	if s.status.Terminal() {
		return
	}

	s.graceGen[color]++
	gen := s.graceGen[color]
	c := color
	s.graceTimers[color] = time.AfterFunc(s.grace, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		// Stale if the player reconnected or the session ended first.
		if s.graceGen[c] != gen || s.seats[c].Connected || s.status.Terminal() {
			return
		}
		s.logf(logrus.InfoLevel, "session %s: %s grace expired, forfeiting by abandonment", s.ID, c)
		_ = s.completeLocked(models.WinFor(c.Opponent()), models.TerminationAbandonment, models.StatusCompleted)
	})
}

// HandleReconnect restores a seat within the grace window. Move history and
// clocks are untouched; the player receives a fresh state snapshot.
func (s *Session) HandleReconnect(playerID uuid.UUID, conn *websocket.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	color, ok := s.colorOfLocked(playerID)
	if !ok {
		return core.NotFoundf("player %s is not seated in session %s", playerID, s.ID)
	}
	seat := s.seats[color]
	seat.Conn = conn
	seat.Connected = true

	s.graceGen[color]++
	if t := s.graceTimers[color]; t != nil {
		t.Stop()
		delete(s.graceTimers, color)
	}

	pid := playerID
	s.fireEventLocked(Event{Type: EventPlayerReconnected, RoomID: s.ID, PlayerID: &pid, Timestamp: time.Now()})

	snap := s.snapshotLocked(time.Now())
	s.fireEventToPlayerLocked(playerID, Event{Type: EventGameState, RoomID: s.ID, Snapshot: &snap, Timestamp: time.Now()})
	return nil
}

// Abort cancels a session before any move was made. Aborted sessions are
// unrated and never persisted as scored games.
func (s *Session) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return core.Statef("session %s is %s", s.ID, s.status)
	}
	if s.ledger.Len() > 0 {
		return core.Statef("session %s cannot abort after the first move", s.ID)
	}
	return s.completeLocked(models.ResultUnterminated, models.TerminationAborted, models.StatusAborted)
}

// Snapshot returns the current session view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(time.Now())
}

func (s *Session) snapshotLocked(now time.Time) Snapshot {
	var offer *models.Color
	if s.drawOfferBy != nil {
		c := *s.drawOfferBy
		offer = &c
	}
	return Snapshot{
		RoomID:       s.ID,
		Status:       s.status,
		Result:       s.result,
		Termination:  s.termination,
		White:        *s.seats[models.White].Player,
		Black:        *s.seats[models.Black].Player,
		TimeControl:  s.timeControl,
		Rated:        s.rated,
		TurnNumber:   s.ledger.Len(),
		ToMove:       s.ledger.ToMove(),
		Board:        s.ledger.Board(),
		Moves:        s.ledger.Moves(),
		WhiteClockMs: s.clock.Remaining(models.White, now).Milliseconds(),
		BlackClockMs: s.clock.Remaining(models.Black, now).Milliseconds(),
		DrawOfferBy:  offer,
	}
}

// scheduleClockExpiryLocked arms the flag-fall callback for the side to
// move. The captured move count guards against stale timers: if another
// move lands first, the callback is a no-op.
func (s *Session) scheduleClockExpiryLocked(now time.Time) {
	if s.clockTimer != nil {
		s.clockTimer.Stop()
	}
	turn := s.ledger.Len()
	s.clockTimer = time.AfterFunc(s.clock.Deadline(now), func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.status.Terminal() || s.ledger.Len() != turn {
			return
		}
		if !s.clock.Expired(time.Now()) {
			return
		}
		expired := s.clock.Active()
		s.logf(logrus.InfoLevel, "session %s: %s flag fell", s.ID, expired)
		_ = s.completeLocked(models.WinFor(expired.Opponent()), models.TerminationTime, models.StatusCompleted)
	})
}

func (s *Session) cancelTimersLocked() {
	if s.clockTimer != nil {
		s.clockTimer.Stop()
		s.clockTimer = nil
	}
	for c, t := range s.graceTimers {
		t.Stop()
		delete(s.graceTimers, c)
		s.graceGen[c]++
	}
}

// completeLocked is the single terminal transition. It fires at most once;
// any later attempt returns ErrState. Terminal side effects: stop clocks,
// cancel timers, compute and apply rating changes for rated completed games,
// broadcast game:over, and hand the completed record to persistence and the
// completion callback.
func (s *Session) completeLocked(result models.Result, term models.Termination, status models.SessionStatus) error {
	if s.status.Terminal() {
		return core.Statef("session %s already %s", s.ID, s.status)
	}
	now := time.Now()
	s.status = status
	s.result = result
	s.termination = term
	s.completedAt = now
	s.clock.Stop(now)
	s.cancelTimersLocked()

	white := s.seats[models.White].Player
	black := s.seats[models.Black].Player

	var changes []models.RatingChange
	if status == models.StatusCompleted && s.rated {
		if wScore, bScore, ok := rating.ScoresFor(result); ok {
			wc := rating.Compute(*white, *black, wScore, s.ratingCfg, now)
			bc := rating.Compute(*black, *white, bScore, s.ratingCfg, now)
			wc.SessionID = s.ID
			bc.SessionID = s.ID
			rating.Apply(white, wc, wScore)
			rating.Apply(black, bc, bScore)
			changes = []models.RatingChange{wc, bc}
		}
	}

	rec := models.CompletedGame{
		SessionID:     s.ID,
		WhiteID:       white.ID,
		BlackID:       black.ID,
		TimeControl:   s.timeControl,
		Rated:         s.rated,
		Status:        status,
		Result:        result,
		Termination:   term,
		Moves:         s.ledger.Moves(),
		RatingChanges: changes,
		TournamentID:  s.tournamentID,
		RoundNumber:   s.roundNumber,
		StartedAt:     s.startedAt,
		CompletedAt:   now,
	}

	var winner *uuid.UUID
	if c, ok := result.Winner(); ok {
		id := s.seats[c].Player.ID
		winner = &id
	}
	s.fireEventLocked(Event{
		Type:        EventGameOver,
		RoomID:      s.ID,
		Result:      result,
		Termination: term,
		Winner:      winner,
		Timestamp:   now,
	})

	s.logf(logrus.InfoLevel, "session %s terminal: %s (%s)", s.ID, result, term)

	if s.PersistFn != nil && status == models.StatusCompleted {
		go s.PersistFn(rec)
	}
	if s.OnComplete != nil {
		go s.OnComplete(rec)
	}
	return nil
}

// fireEventLocked broadcasts to the room; assumes the session lock is held.
func (s *Session) fireEventLocked(ev Event) {
	if s.BroadcastFn != nil {
		s.BroadcastFn(ev)
	}
}

func (s *Session) fireEventToPlayerLocked(playerID uuid.UUID, ev Event) {
	if s.BroadcastToPlayerFn != nil {
		s.BroadcastToPlayerFn(playerID, ev)
	}
}

func (s *Session) logf(level logrus.Level, format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Logf(level, format, args...)
	}
}
