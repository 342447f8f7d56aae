// internal/game/ledger.go
package game

import (
	"context"
	"time"

	"github.com/google/uuid"

	"stratum/internal/core"
	"stratum/internal/models"
)

// Verdict is the ledger's terminal judgment after a move.
type Verdict struct {
	Over        bool
	Result      models.Result
	Termination models.Termination
}

// Ledger is the authoritative, append-only move sequence for one session.
// It owns turn numbering and color alternation, delegates legality to the
// rules oracle, and derives terminal conditions after each append. The
// session serializes access; the ledger itself is not locked.
type Ledger struct {
	sessionID uuid.UUID
	oracle    RulesOracle

	board  string
	toMove models.Color
	moves  []models.Move
}

func NewLedger(sessionID uuid.UUID, oracle RulesOracle) *Ledger {
	return &Ledger{
		sessionID: sessionID,
		oracle:    oracle,
		board:     oracle.InitialBoard(),
		toMove:    models.White,
	}
}

// Append validates and records one move, returning the stored entry and the
// termination verdict. The move is immutable once appended.
func (l *Ledger) Append(ctx context.Context, color models.Color, req models.MoveRequest, thinkTime time.Duration, now time.Time) (models.Move, Verdict, error) {
	if !color.Valid() {
		return models.Move{}, Verdict{}, core.Validationf("unknown color %q", color)
	}
	if color != l.toMove {
		return models.Move{}, Verdict{}, core.Validationf("not %s's turn", color)
	}

	out, err := l.oracle.Apply(ctx, l.board, color, req)
	if err != nil {
		return models.Move{}, Verdict{}, err
	}

	move := models.Move{
		TurnNumber: len(l.moves) + 1,
		Color:      color,
		Card:       req.Card,
		From:       req.From,
		To:         req.To,
		Captured:   out.Captured,
		Flags:      out.Flags,
		Notation:   out.Notation,
		ThinkTime:  thinkTime,
		Board:      out.Board,
		PlayedAt:   now,
	}
	l.moves = append(l.moves, move)
	l.board = out.Board
	l.toMove = l.toMove.Opponent()

	return move, evaluateTermination(out.Conditions, color), nil
}

// evaluateTermination maps oracle-reported board conditions to a verdict in
// a fixed priority order: vertex-control win, saturation draw, exhaustion
// draw, reverser rule. Exactly one outcome fires; the order is policy and
// must not change, or simultaneous triggers become ambiguous. The check flag
// never terminates the game.
func evaluateTermination(cond BoardConditions, mover models.Color) Verdict {
	switch {
	case cond.VertexControl:
		return Verdict{Over: true, Result: models.WinFor(mover), Termination: models.TerminationVertexControl}
	case cond.Saturated:
		return Verdict{Over: true, Result: models.ResultDraw, Termination: models.TerminationSaturation}
	case cond.CardsExhausted:
		return Verdict{Over: true, Result: models.ResultDraw, Termination: models.TerminationExhaustion}
	case cond.ReverserRule:
		return Verdict{Over: true, Result: models.WinFor(mover), Termination: models.TerminationReverser}
	}
	return Verdict{Result: models.ResultUnterminated}
}

// Len is the number of recorded moves.
func (l *Ledger) Len() int { return len(l.moves) }

// ToMove is the color whose turn it is.
func (l *Ledger) ToMove() models.Color { return l.toMove }

// Board is the current position snapshot.
func (l *Ledger) Board() string { return l.board }

// Moves returns a copy of the move sequence.
func (l *Ledger) Moves() []models.Move {
	out := make([]models.Move, len(l.moves))
	copy(out, l.moves)
	return out
}
