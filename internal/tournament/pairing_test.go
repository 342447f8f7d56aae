// internal/tournament/pairing_test.go
package tournament

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratum/internal/models"
)

func participants(ratings ...int) map[uuid.UUID]*models.TournamentPlayer {
	out := make(map[uuid.UUID]*models.TournamentPlayer, len(ratings))
	for i, r := range ratings {
		id, _ := uuid.NewRandom()
		out[id] = &models.TournamentPlayer{
			PlayerID: id,
			Username: string(rune('a' + i)),
			Rating:   r,
		}
	}
	return out
}

func TestSwissPairingsAvoidRepeats(t *testing.T) {
	players := participants(1600, 1500, 1400, 1300)
	played := make(map[pairKey]bool)

	// Pair three rounds and verify no pair ever appears twice; with four
	// players and three rounds every player must meet every other exactly
	// once.
	seen := make(map[pairKey]int)
	for round := 0; round < 3; round++ {
		pairings, bye := SwissPairings(players, played, map[uuid.UUID]bool{})
		require.Nil(t, bye)
		require.Len(t, pairings, 2)
		for _, p := range pairings {
			require.NotNil(t, p.Black)
			k := keyFor(p.White, *p.Black)
			seen[k]++
			played[k] = true
			players[p.White].WhiteGames++
			players[*p.Black].BlackGames++
		}
	}

	assert.Len(t, seen, 6)
	for k, n := range seen {
		assert.Equalf(t, 1, n, "pair %v met %d times", k, n)
	}
}

func TestSwissPairingsOddFieldGetsBye(t *testing.T) {
	players := participants(1600, 1500, 1400, 1300, 1200)
	pairings, bye := SwissPairings(players, map[pairKey]bool{}, map[uuid.UUID]bool{})

	require.NotNil(t, bye)
	assert.Len(t, pairings, 2)
	for _, p := range pairings {
		assert.NotEqual(t, *bye, p.White)
		assert.NotEqual(t, *bye, *p.Black)
	}
}

func TestSwissPairingsByeRotates(t *testing.T) {
	players := participants(1600, 1500, 1400, 1300, 1200)
	played := make(map[pairKey]bool)
	byes := make(map[uuid.UUID]bool)

	// Five players, five rounds: each round's bye must land on a fresh
	// player until everyone has sat out once.
	for round := 0; round < 5; round++ {
		pairings, bye := SwissPairings(players, played, byes)
		require.NotNil(t, bye)
		assert.Falsef(t, byes[*bye], "round %d repeated a bye", round+1)
		byes[*bye] = true
		for _, p := range pairings {
			played[keyFor(p.White, *p.Black)] = true
		}
	}
	assert.Len(t, byes, 5)
}

func TestSwissPairingsSkipWithdrawn(t *testing.T) {
	players := participants(1600, 1500, 1400, 1300)
	for _, p := range players {
		if p.Rating == 1500 {
			p.Withdrawn = true
		}
	}
	pairings, bye := SwissPairings(players, map[pairKey]bool{}, map[uuid.UUID]bool{})
	require.NotNil(t, bye)
	require.Len(t, pairings, 1)
	for _, p := range players {
		if p.Withdrawn {
			assert.NotEqual(t, p.PlayerID, pairings[0].White)
			assert.NotEqual(t, p.PlayerID, *pairings[0].Black)
			assert.NotEqual(t, p.PlayerID, *bye)
		}
	}
}

func TestRoundRobinCoversEveryPairOnce(t *testing.T) {
	for _, n := range []int{4, 5, 7, 8} {
		ids := make([]uuid.UUID, n)
		for i := range ids {
			ids[i], _ = uuid.NewRandom()
		}
		rounds := RoundRobinSchedule(ids)

		wantRounds := n - 1
		if n%2 == 1 {
			wantRounds = n
		}
		require.Lenf(t, rounds, wantRounds, "n=%d", n)

		seen := make(map[pairKey]int)
		byes := make(map[uuid.UUID]int)
		for _, round := range rounds {
			inRound := make(map[uuid.UUID]bool)
			for _, p := range round {
				if p.Bye() {
					byes[p.White]++
					inRound[p.White] = true
					continue
				}
				seen[keyFor(p.White, *p.Black)]++
				inRound[p.White] = true
				inRound[*p.Black] = true
			}
			assert.Lenf(t, inRound, n, "n=%d: every player appears each round", n)
		}

		assert.Lenf(t, seen, n*(n-1)/2, "n=%d", n)
		for k, c := range seen {
			assert.Equalf(t, 1, c, "n=%d pair %v", n, k)
		}
		if n%2 == 1 {
			assert.Lenf(t, byes, n, "n=%d: everyone gets exactly one bye", n)
			for _, c := range byes {
				assert.Equal(t, 1, c)
			}
		} else {
			assert.Empty(t, byes)
		}
	}
}

func TestSeedBracketTopSeedMeetsBottom(t *testing.T) {
	players := participants(2000, 1800, 1600, 1400)
	var list []*models.TournamentPlayer
	for _, p := range players {
		list = append(list, p)
	}
	pairings := SeedBracket(list)
	require.Len(t, pairings, 2)

	ratingOf := func(id uuid.UUID) int { return players[id].Rating }
	for _, p := range pairings {
		require.NotNil(t, p.Black)
		hi, lo := ratingOf(p.White), ratingOf(*p.Black)
		if hi < lo {
			hi, lo = lo, hi
		}
		assert.Equal(t, 3400, hi+lo) // 2000v1400 and 1800v1600
	}
}

func TestSeedBracketByesForNonPowerOfTwo(t *testing.T) {
	players := participants(2000, 1800, 1600, 1400, 1200, 1000)
	var list []*models.TournamentPlayer
	for _, p := range players {
		list = append(list, p)
	}
	pairings := SeedBracket(list) // bracket of 8, two byes

	byes := 0
	for _, p := range pairings {
		if p.Bye() {
			byes++
			// Byes go to the highest seeds.
			assert.GreaterOrEqual(t, players[p.White].Rating, 1800)
		}
	}
	assert.Equal(t, 2, byes)
	assert.Len(t, pairings, 4)
}

func TestComputeTieBreaks(t *testing.T) {
	a, _ := uuid.NewRandom()
	b, _ := uuid.NewRandom()
	c, _ := uuid.NewRandom()
	d, _ := uuid.NewRandom()

	players := map[uuid.UUID]*models.TournamentPlayer{
		a: {PlayerID: a, Score: 2},
		b: {PlayerID: b, Score: 2},
		c: {PlayerID: c, Score: 1},
		d: {PlayerID: d, Score: 1},
	}
	rounds := []*models.TournamentRound{
		{Number: 1, Pairings: []models.Pairing{
			{White: a, Black: &b, Result: models.ResultWhiteWin},
			{White: c, Black: &d, Result: models.ResultDraw},
		}},
		{Number: 2, Pairings: []models.Pairing{
			{White: b, Black: &c, Result: models.ResultWhiteWin},
			{White: d, Black: &a, Result: models.ResultBlackWin},
		}},
	}
	ComputeTieBreaks(players, rounds)

	// a played b (2) and d (1): Buchholz 3, beat both: SB = 2 + 1 = 3.
	assert.InDelta(t, 3.0, players[a].Buchholz, 1e-9)
	assert.InDelta(t, 3.0, players[a].SonnebornBerger, 1e-9)
	// b played a (2) and c (1): Buchholz 3, beat only c: SB = 1.
	assert.InDelta(t, 3.0, players[b].Buchholz, 1e-9)
	assert.InDelta(t, 1.0, players[b].SonnebornBerger, 1e-9)
	// c played d (1) and b (2): Buchholz 3, drew d: SB = 0.5.
	assert.InDelta(t, 3.0, players[c].Buchholz, 1e-9)
	assert.InDelta(t, 0.5, players[c].SonnebornBerger, 1e-9)

	standings := SortStandings(players)
	// a and b tie on score and Buchholz; Sonneborn-Berger puts a first.
	assert.Equal(t, a, standings[0].PlayerID)
	assert.Equal(t, b, standings[1].PlayerID)
}
