// internal/tournament/tiebreak.go
package tournament

import (
	"sort"

	"github.com/google/uuid"

	"stratum/internal/models"
)

// boardScore returns the points each color earned on a finished board.
func boardScore(result models.Result) (white, black float64) {
	switch result {
	case models.ResultWhiteWin:
		return 1, 0
	case models.ResultBlackWin:
		return 0, 1
	case models.ResultDraw:
		return 0.5, 0.5
	default:
		return 0, 0
	}
}

// ComputeTieBreaks fills Buchholz (sum of opponents' final scores) and
// Sonneborn-Berger (sum of defeated opponents' scores plus half the scores
// of drawn opponents) for every participant from the recorded rounds. Byes
// contribute nothing to either tie-break.
func ComputeTieBreaks(players map[uuid.UUID]*models.TournamentPlayer, rounds []*models.TournamentRound) {
	for _, p := range players {
		p.Buchholz = 0
		p.SonnebornBerger = 0
	}
	for _, round := range rounds {
		for _, pairing := range round.Pairings {
			if pairing.Black == nil {
				continue
			}
			white, okW := players[pairing.White]
			black, okB := players[*pairing.Black]
			if !okW || !okB {
				continue
			}
			wPts, bPts := boardScore(pairing.Result)

			white.Buchholz += black.Score
			black.Buchholz += white.Score
			white.SonnebornBerger += wPts * black.Score
			black.SonnebornBerger += bPts * white.Score
		}
	}
}

// SortStandings orders participants by score, then Buchholz, then
// Sonneborn-Berger, then rating, and returns the sorted slice.
func SortStandings(players map[uuid.UUID]*models.TournamentPlayer) []models.TournamentPlayer {
	out := make([]models.TournamentPlayer, 0, len(players))
	for _, p := range players {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Buchholz != out[j].Buchholz {
			return out[i].Buchholz > out[j].Buchholz
		}
		if out[i].SonnebornBerger != out[j].SonnebornBerger {
			return out[i].SonnebornBerger > out[j].SonnebornBerger
		}
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].PlayerID.String() < out[j].PlayerID.String()
	})
	return out
}
