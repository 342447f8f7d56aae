// internal/tournament/pairing.go
package tournament

import (
	"sort"

	"github.com/google/uuid"

	"stratum/internal/models"
)

// pairKey identifies an unordered player pair for repeat-opponent checks.
type pairKey struct {
	lo, hi uuid.UUID
}

func keyFor(a, b uuid.UUID) pairKey {
	if a.String() < b.String() {
		return pairKey{lo: a, hi: b}
	}
	return pairKey{lo: b, hi: a}
}

// activePlayers filters and returns participants still in contention.
func activePlayers(players map[uuid.UUID]*models.TournamentPlayer) []*models.TournamentPlayer {
	var out []*models.TournamentPlayer
	for _, p := range players {
		if !p.Withdrawn && !p.Eliminated {
			out = append(out, p)
		}
	}
	return out
}

// byStanding orders by score desc, then rating desc, with the id as a
// deterministic tail.
func byStanding(ps []*models.TournamentPlayer) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Score != ps[j].Score {
			return ps[i].Score > ps[j].Score
		}
		if ps[i].Rating != ps[j].Rating {
			return ps[i].Rating > ps[j].Rating
		}
		return ps[i].PlayerID.String() < ps[j].PlayerID.String()
	})
}

// colorOrder decides who takes white on a board: the side with the smaller
// white surplus. Ties go to the first (higher-standing) player.
func colorOrder(a, b *models.TournamentPlayer) (white, black *models.TournamentPlayer) {
	if a.WhiteGames-a.BlackGames > b.WhiteGames-b.BlackGames {
		return b, a
	}
	return a, b
}

// SwissPairings pairs participants sorted by score then rating, walking down
// the list and taking for each leader the first opponent not yet played.
// Only when no fresh opponent exists is a repeat allowed, so the same two
// players never meet twice while alternative valid pairings exist. On an odd
// field the lowest-standing player without a previous bye sits out; a repeat
// bye happens only once everyone has had one.
func SwissPairings(players map[uuid.UUID]*models.TournamentPlayer, played map[pairKey]bool, byes map[uuid.UUID]bool) ([]models.Pairing, *uuid.UUID) {
	active := activePlayers(players)
	byStanding(active)

	var byeID *uuid.UUID
	if len(active)%2 == 1 {
		idx := len(active) - 1
		for i := len(active) - 1; i >= 0; i-- {
			if !byes[active[i].PlayerID] {
				idx = i
				break
			}
		}
		id := active[idx].PlayerID
		byeID = &id
		active = append(active[:idx], active[idx+1:]...)
	}

	used := make(map[uuid.UUID]bool)
	var pairings []models.Pairing

	for i, p := range active {
		if used[p.PlayerID] {
			continue
		}
		var opponent *models.TournamentPlayer
		// First pass: nearest unplayed opponent below in the standings.
		for _, cand := range active[i+1:] {
			if used[cand.PlayerID] || played[keyFor(p.PlayerID, cand.PlayerID)] {
				continue
			}
			opponent = cand
			break
		}
		// Fallback: any free opponent, repeat allowed.
		if opponent == nil {
			for _, cand := range active[i+1:] {
				if !used[cand.PlayerID] {
					opponent = cand
					break
				}
			}
		}
		if opponent == nil {
			continue
		}
		used[p.PlayerID] = true
		used[opponent.PlayerID] = true

		w, b := colorOrder(p, opponent)
		blackID := b.PlayerID
		pairings = append(pairings, models.Pairing{White: w.PlayerID, Black: &blackID, Result: models.ResultUnterminated})
	}

	return pairings, byeID
}

// RoundRobinSchedule produces the full circle-method schedule: every
// unordered pair exactly once across n-1 rounds for even n, or n rounds
// with one bye per round for odd n.
func RoundRobinSchedule(ids []uuid.UUID) [][]models.Pairing {
	n := len(ids)
	if n < 2 {
		return nil
	}
	ring := make([]uuid.UUID, len(ids))
	copy(ring, ids)

	odd := n%2 == 1
	if odd {
		ring = append(ring, uuid.Nil) // placeholder opponent marks the bye
		n++
	}

	rounds := make([][]models.Pairing, 0, n-1)
	for r := 0; r < n-1; r++ {
		var pairings []models.Pairing
		for i := 0; i < n/2; i++ {
			a, b := ring[i], ring[n-1-i]
			switch {
			case a == uuid.Nil:
				pairings = append(pairings, models.Pairing{White: b, Result: models.ResultUnterminated})
			case b == uuid.Nil:
				pairings = append(pairings, models.Pairing{White: a, Result: models.ResultUnterminated})
			default:
				// Alternate colors round by round so nobody plays one color
				// throughout.
				white, black := a, b
				if r%2 == 1 {
					white, black = b, a
				}
				blackID := black
				pairings = append(pairings, models.Pairing{White: white, Black: &blackID, Result: models.ResultUnterminated})
			}
		}
		rounds = append(rounds, pairings)

		// Rotate all but the first position.
		last := ring[n-1]
		copy(ring[2:], ring[1:n-1])
		ring[1] = last
	}
	return rounds
}

// SeedBracket builds the first elimination round from rating-sorted seeds:
// seed 1 meets the lowest seed, seed 2 the next lowest, and so on. When the
// field is not a power of two, the top seeds receive first-round byes.
func SeedBracket(players []*models.TournamentPlayer) []models.Pairing {
	seeds := make([]*models.TournamentPlayer, len(players))
	copy(seeds, players)
	sort.Slice(seeds, func(i, j int) bool {
		if seeds[i].Rating != seeds[j].Rating {
			return seeds[i].Rating > seeds[j].Rating
		}
		return seeds[i].PlayerID.String() < seeds[j].PlayerID.String()
	})

	size := 1
	for size < len(seeds) {
		size *= 2
	}

	var pairings []models.Pairing
	for i := 0; i < size/2; i++ {
		top := seeds[i]
		bottomIdx := size - 1 - i
		if bottomIdx >= len(seeds) {
			// Bye for the top seed.
			pairings = append(pairings, models.Pairing{White: top.PlayerID, Result: models.ResultUnterminated})
			continue
		}
		bottom := seeds[bottomIdx]
		w, b := colorOrder(top, bottom)
		blackID := b.PlayerID
		pairings = append(pairings, models.Pairing{White: w.PlayerID, Black: &blackID, Result: models.ResultUnterminated})
	}
	return pairings
}

// PairAdvancers pairs a list of advancing players in order, giving the odd
// one out a bye.
func PairAdvancers(players []*models.TournamentPlayer) []models.Pairing {
	var pairings []models.Pairing
	for i := 0; i+1 < len(players); i += 2 {
		w, b := colorOrder(players[i], players[i+1])
		blackID := b.PlayerID
		pairings = append(pairings, models.Pairing{White: w.PlayerID, Black: &blackID, Result: models.ResultUnterminated})
	}
	if len(players)%2 == 1 {
		pairings = append(pairings, models.Pairing{White: players[len(players)-1].PlayerID, Result: models.ResultUnterminated})
	}
	return pairings
}
