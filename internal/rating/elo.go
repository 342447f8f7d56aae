// internal/rating/elo.go
package rating

import (
	"math"
	"time"

	"stratum/internal/config"
	"stratum/internal/models"
)

// Score is the actual score a player takes from a game: 1 for a win, 0.5 for
// a draw, 0 for a loss.
type Score float64

const (
	ScoreWin  Score = 1.0
	ScoreDraw Score = 0.5
	ScoreLoss Score = 0.0
)

// ScoresFor maps a session result to the (white, black) score pair. The ok
// return is false for unterminated results, which carry no rating update.
func ScoresFor(result models.Result) (white, black Score, ok bool) {
	switch result {
	case models.ResultWhiteWin:
		return ScoreWin, ScoreLoss, true
	case models.ResultBlackWin:
		return ScoreLoss, ScoreWin, true
	case models.ResultDraw:
		return ScoreDraw, ScoreDraw, true
	}
	return 0, 0, false
}

// Expected is the logistic expected score for a player against an opponent:
// E = 1 / (1 + 10^((Ro-Rp)/400)).
func Expected(playerRating, opponentRating int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(opponentRating-playerRating)/400.0))
}

// KFactor selects the provisional or established multiplier for a player.
func KFactor(p models.Player, cfg config.RatingConfig) int {
	if p.GamesPlayed < cfg.ProvisionalGames {
		return cfg.KProvisional
	}
	return cfg.KEstablished
}

// Compute produces the rating change for one player of a completed rated
// game. It is pure and deterministic: identical inputs always yield the
// identical record, and the record is reproducible from its own stored
// before-state, K-factor and scores. Callers must guarantee at-most-once
// invocation per game per player; the session's terminal-transition guard
// provides that.
func Compute(player, opponent models.Player, actual Score, cfg config.RatingConfig, completedAt time.Time) models.RatingChange {
	k := KFactor(player, cfg)
	expected := Expected(player.Rating, opponent.Rating)
	delta := int(math.Round(float64(k) * (float64(actual) - expected)))

	return models.RatingChange{
		PlayerID:    player.ID,
		Before:      player.Rating,
		After:       player.Rating + delta,
		KFactor:     k,
		Expected:    expected,
		Actual:      float64(actual),
		Provisional: player.GamesPlayed+1 < cfg.ProvisionalGames,
		CompletedAt: completedAt,
	}
}

// Apply folds a rating change and its score into the player record: rating,
// peak, game counters and the provisional flag. The change must have been
// computed from this player's current state.
func Apply(p *models.Player, rc models.RatingChange, actual Score) {
	p.Rating = rc.After
	if p.Rating > p.PeakRating {
		p.PeakRating = p.Rating
	}
	p.GamesPlayed++
	switch actual {
	case ScoreWin:
		p.Wins++
	case ScoreDraw:
		p.Draws++
	case ScoreLoss:
		p.Losses++
	}
	p.Provisional = rc.Provisional
}
