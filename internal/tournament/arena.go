// internal/tournament/arena.go
package tournament

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stratum/internal/models"
)

// arenaPass runs on the gocron interval and pairs waiting arena players in
// every in-progress arena. Acceptance uses the same widening band policy as
// the matchmaking queue, scoped to the arena's participants.
func (e *Engine) arenaPass() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	for _, st := range e.tournaments {
		if st.model.Format != models.FormatArena || st.model.Status != models.TournamentInProgress {
			continue
		}
		e.pairArenaLocked(st, now)
	}
}

type arenaCandidate struct {
	player *models.TournamentPlayer
	since  time.Time
}

func (e *Engine) pairArenaLocked(st *state, now time.Time) {
	if len(st.waiting) < 2 {
		return
	}

	candidates := make([]arenaCandidate, 0, len(st.waiting))
	for pid, since := range st.waiting {
		p, ok := st.participants[pid]
		if !ok || p.Withdrawn {
			delete(st.waiting, pid)
			continue
		}
		candidates = append(candidates, arenaCandidate{player: p, since: since})
	}
	// Longest-waiting first.
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].since.Equal(candidates[j].since) {
			return candidates[i].since.Before(candidates[j].since)
		}
		return candidates[i].player.PlayerID.String() < candidates[j].player.PlayerID.String()
	})

	var round *models.TournamentRound
	for i, c := range candidates {
		if _, waiting := st.waiting[c.player.PlayerID]; !waiting {
			continue
		}
		opponent := e.pickArenaOpponentLocked(st, candidates[i+1:], c, now)
		if opponent == nil {
			continue
		}
		delete(st.waiting, c.player.PlayerID)
		delete(st.waiting, opponent.PlayerID)

		w, b := colorOrder(c.player, opponent)
		blackID := b.PlayerID
		pairing := models.Pairing{White: w.PlayerID, Black: &blackID, Result: models.ResultUnterminated}

		if round == nil {
			round = &models.TournamentRound{Number: len(st.rounds) + 1}
		}
		launched, err := e.launchBoardLocked(st, pairing, round.Number)
		if err != nil {
			e.logger.WithFields(logrus.Fields{
				"tournament_id": st.model.ID,
				"error":         err,
			}).Error("arena board launch failed")
			// Requeue both with their original wait so the band keeps growing.
			st.waiting[c.player.PlayerID] = c.since
			st.waiting[opponent.PlayerID] = now
			continue
		}
		round.Pairings = append(round.Pairings, launched)
	}
	if round != nil {
		st.rounds = append(st.rounds, round)
		st.model.CurrentRound = round.Number
	}
}

// pickArenaOpponentLocked finds the first waiting opponent inside both
// players' acceptance bands, preferring anyone other than the previous
// opponent so back-to-back rematches only happen as a last resort.
func (e *Engine) pickArenaOpponentLocked(st *state, rest []arenaCandidate, c arenaCandidate, now time.Time) *models.TournamentPlayer {
	var fallback *models.TournamentPlayer
	cBand := e.arenaBand(now.Sub(c.since))
	for _, other := range rest {
		if _, waiting := st.waiting[other.player.PlayerID]; !waiting {
			continue
		}
		diff := c.player.Rating - other.player.Rating
		if diff < 0 {
			diff = -diff
		}
		if diff > cBand || diff > e.arenaBand(now.Sub(other.since)) {
			continue
		}
		if st.lastOpponent[c.player.PlayerID] == other.player.PlayerID {
			if fallback == nil {
				fallback = other.player
			}
			continue
		}
		return other.player
	}
	return fallback
}

func (e *Engine) arenaBand(waited time.Duration) int {
	band := e.mmCfg.BandBase + int(waited.Seconds())*e.mmCfg.BandGrowthPerSec
	if band > e.mmCfg.BandMax {
		band = e.mmCfg.BandMax
	}
	return band
}

// applyArenaResultLocked scores a finished arena board and puts both
// players back in the waiting pool.
func (e *Engine) applyArenaResultLocked(st *state, rec models.CompletedGame) {
	_, pairing := st.findPairingLocked(rec.SessionID)
	if pairing == nil || pairing.Settled() {
		return
	}
	pairing.Result = rec.Result
	pairing.Termination = rec.Termination

	white := st.participants[pairing.White]
	black := st.participants[*pairing.Black]
	wPts, bPts := boardScore(pairing.Result)
	white.Score += wPts
	black.Score += bPts

	if st.lastOpponent == nil {
		st.lastOpponent = make(map[uuid.UUID]uuid.UUID)
	}
	st.lastOpponent[white.PlayerID] = black.PlayerID
	st.lastOpponent[black.PlayerID] = white.PlayerID

	now := time.Now()
	if st.model.Status == models.TournamentInProgress {
		if !white.Withdrawn {
			st.waiting[white.PlayerID] = now
		}
		if !black.Withdrawn {
			st.waiting[black.PlayerID] = now
		}
	}
}
