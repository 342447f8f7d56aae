// internal/database/tournament.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"stratum/internal/core"
	"stratum/internal/models"
)

// UpsertTournament writes the tournament header row. Keyed by id so the
// engine can snapshot freely.
func UpsertTournament(ctx context.Context, t models.Tournament) error {
	query := `
		INSERT INTO tournaments (id, name, format, status, initial_sec, increment_sec,
		                         rated, round_count, current_round, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, round_count = EXCLUDED.round_count,
		    current_round = EXCLUDED.current_round`
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query,
			t.ID, t.Name, t.Format, t.Status,
			t.TimeControl.InitialSec, t.TimeControl.IncrementSec,
			t.Rated, t.RoundCount, t.CurrentRound, t.CreatedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert tournament %s: %w", t.ID, err)
	}
	return nil
}

// UpsertStandings writes the participant rows for a tournament in a single
// transaction, replacing scores and tie-breaks.
func UpsertStandings(ctx context.Context, tournamentID uuid.UUID, standings []models.TournamentPlayer) error {
	query := `
		INSERT INTO tournament_players (tournament_id, player_id, username, rating, score,
		                                buchholz, sonneborn_berger, white_games, black_games,
		                                withdrawn, eliminated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tournament_id, player_id) DO UPDATE
		SET score = EXCLUDED.score, buchholz = EXCLUDED.buchholz,
		    sonneborn_berger = EXCLUDED.sonneborn_berger,
		    white_games = EXCLUDED.white_games, black_games = EXCLUDED.black_games,
		    withdrawn = EXCLUDED.withdrawn, eliminated = EXCLUDED.eliminated`
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, p := range standings {
			if _, err := tx.Exec(ctx, query,
				tournamentID, p.PlayerID, p.Username, p.Rating, p.Score,
				p.Buchholz, p.SonnebornBerger, p.WhiteGames, p.BlackGames,
				p.Withdrawn, p.Eliminated); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert standings for %s: %w", tournamentID, err)
	}
	return nil
}

// GetTournament loads one tournament header row.
func GetTournament(ctx context.Context, id uuid.UUID) (*models.Tournament, error) {
	var t models.Tournament
	query := `
		SELECT id, name, format, status, initial_sec, increment_sec, rated,
		       round_count, current_round, created_at
		FROM tournaments WHERE id = $1`
	err := DB.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.Format, &t.Status,
		&t.TimeControl.InitialSec, &t.TimeControl.IncrementSec, &t.Rated,
		&t.RoundCount, &t.CurrentRound, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.NotFoundf("tournament %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get tournament: %w", err)
	}
	return &t, nil
}
