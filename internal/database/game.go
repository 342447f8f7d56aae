// internal/database/game.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"stratum/internal/core"
	"stratum/internal/models"
)

// PersistCompletedGame writes a terminal game record. Every statement is an
// upsert keyed by the session id, so redelivering the same record (after a
// storage hiccup and retry) changes nothing. Player counters are only
// touched when the rating-change row is inserted for the first time.
func PersistCompletedGame(ctx context.Context, rec models.CompletedGame) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		gameQuery := `
			INSERT INTO games (id, white_id, black_id, initial_sec, increment_sec, rated,
			                   status, result, termination, tournament_id, round_number,
			                   started_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO UPDATE
			SET status = EXCLUDED.status, result = EXCLUDED.result,
			    termination = EXCLUDED.termination, completed_at = EXCLUDED.completed_at`
		if _, err := tx.Exec(ctx, gameQuery,
			rec.SessionID, rec.WhiteID, rec.BlackID,
			rec.TimeControl.InitialSec, rec.TimeControl.IncrementSec, rec.Rated,
			rec.Status, rec.Result, rec.Termination,
			rec.TournamentID, rec.RoundNumber,
			rec.StartedAt, rec.CompletedAt); err != nil {
			return fmt.Errorf("upsert game: %w", err)
		}

		moveQuery := `
			INSERT INTO moves (session_id, turn_number, color, card, origin, destination,
			                   captured, notation, board, think_time_ms, played_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (session_id, turn_number) DO NOTHING`
		for _, mv := range rec.Moves {
			if _, err := tx.Exec(ctx, moveQuery,
				rec.SessionID, mv.TurnNumber, mv.Color, mv.Card, mv.From, mv.To,
				mv.Captured, mv.Notation, mv.Board, mv.ThinkTime.Milliseconds(),
				mv.PlayedAt); err != nil {
				return fmt.Errorf("upsert move %d: %w", mv.TurnNumber, err)
			}
		}

		ratingQuery := `
			INSERT INTO rating_changes (session_id, player_id, rating_before, rating_after,
			                            k_factor, expected, actual, provisional, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (session_id, player_id) DO NOTHING`
		for _, rc := range rec.RatingChanges {
			ct, err := tx.Exec(ctx, ratingQuery,
				rc.SessionID, rc.PlayerID, rc.Before, rc.After,
				rc.KFactor, rc.Expected, rc.Actual, rc.Provisional, rc.CompletedAt)
			if err != nil {
				return fmt.Errorf("upsert rating change: %w", err)
			}
			// First delivery of this change: roll the player row forward.
			if ct.RowsAffected() > 0 {
				if err := applyRatingTx(ctx, tx, rc); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist game %s: %w", rec.SessionID, err)
	}
	return nil
}

func applyRatingTx(ctx context.Context, tx pgx.Tx, rc models.RatingChange) error {
	query := `
		UPDATE players
		SET rating = $2,
		    peak_rating = GREATEST(peak_rating, $2),
		    games_played = games_played + 1,
		    wins = wins + $3,
		    draws = draws + $4,
		    losses = losses + $5,
		    provisional = $6
		WHERE id = $1`
	var win, draw, loss int
	switch rc.Actual {
	case 1:
		win = 1
	case 0.5:
		draw = 1
	default:
		loss = 1
	}
	if _, err := tx.Exec(ctx, query, rc.PlayerID, rc.After, win, draw, loss, rc.Provisional); err != nil {
		return fmt.Errorf("apply rating to player %s: %w", rc.PlayerID, err)
	}
	return nil
}

// GetCompletedGame loads one archived game with its moves and rating
// changes.
func GetCompletedGame(ctx context.Context, sessionID uuid.UUID) (*models.CompletedGame, error) {
	var rec models.CompletedGame
	gameQuery := `
		SELECT id, white_id, black_id, initial_sec, increment_sec, rated,
		       status, result, termination, tournament_id, round_number,
		       started_at, completed_at
		FROM games WHERE id = $1`
	err := DB.QueryRow(ctx, gameQuery, sessionID).Scan(
		&rec.SessionID, &rec.WhiteID, &rec.BlackID,
		&rec.TimeControl.InitialSec, &rec.TimeControl.IncrementSec, &rec.Rated,
		&rec.Status, &rec.Result, &rec.Termination,
		&rec.TournamentID, &rec.RoundNumber,
		&rec.StartedAt, &rec.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.NotFoundf("game %s not found", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get game: %w", err)
	}

	moveQuery := `
		SELECT turn_number, color, card, origin, destination, captured, notation, board, think_time_ms, played_at
		FROM moves WHERE session_id = $1 ORDER BY turn_number`
	rows, err := DB.Query(ctx, moveQuery, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get moves: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var mv models.Move
		var thinkMs int64
		if err := rows.Scan(&mv.TurnNumber, &mv.Color, &mv.Card, &mv.From, &mv.To,
			&mv.Captured, &mv.Notation, &mv.Board, &thinkMs, &mv.PlayedAt); err != nil {
			return nil, fmt.Errorf("scan move: %w", err)
		}
		mv.ThinkTime = time.Duration(thinkMs) * time.Millisecond
		rec.Moves = append(rec.Moves, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moves: %w", err)
	}

	rcQuery := `
		SELECT session_id, player_id, rating_before, rating_after, k_factor, expected, actual, provisional, completed_at
		FROM rating_changes WHERE session_id = $1`
	rcRows, err := DB.Query(ctx, rcQuery, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get rating changes: %w", err)
	}
	defer rcRows.Close()
	for rcRows.Next() {
		var rc models.RatingChange
		if err := rcRows.Scan(&rc.SessionID, &rc.PlayerID, &rc.Before, &rc.After,
			&rc.KFactor, &rc.Expected, &rc.Actual, &rc.Provisional, &rc.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan rating change: %w", err)
		}
		rec.RatingChanges = append(rec.RatingChanges, rc)
	}
	if err := rcRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rating changes: %w", err)
	}
	return &rec, nil
}

// ListGamesForPlayer returns the most recent archived games for one player.
func ListGamesForPlayer(ctx context.Context, playerID uuid.UUID, limit int) ([]models.CompletedGame, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, white_id, black_id, initial_sec, increment_sec, rated,
		       status, result, termination, tournament_id, round_number,
		       started_at, completed_at
		FROM games
		WHERE white_id = $1 OR black_id = $1
		ORDER BY completed_at DESC
		LIMIT $2`
	rows, err := DB.Query(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var out []models.CompletedGame
	for rows.Next() {
		var rec models.CompletedGame
		if err := rows.Scan(
			&rec.SessionID, &rec.WhiteID, &rec.BlackID,
			&rec.TimeControl.InitialSec, &rec.TimeControl.IncrementSec, &rec.Rated,
			&rec.Status, &rec.Result, &rec.Termination,
			&rec.TournamentID, &rec.RoundNumber,
			&rec.StartedAt, &rec.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate games: %w", err)
	}
	return out, nil
}

// ListRatingChangesForPlayer returns the player's rating history, oldest
// first, so the sequence chains: each entry's Before equals the previous
// entry's After.
func ListRatingChangesForPlayer(ctx context.Context, playerID uuid.UUID, limit int) ([]models.RatingChange, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT session_id, player_id, rating_before, rating_after, k_factor, expected, actual, provisional, completed_at
		FROM rating_changes
		WHERE player_id = $1
		ORDER BY completed_at ASC
		LIMIT $2`
	rows, err := DB.Query(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list rating changes: %w", err)
	}
	defer rows.Close()

	var out []models.RatingChange
	for rows.Next() {
		var rc models.RatingChange
		if err := rows.Scan(&rc.SessionID, &rc.PlayerID, &rc.Before, &rc.After,
			&rc.KFactor, &rc.Expected, &rc.Actual, &rc.Provisional, &rc.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan rating change: %w", err)
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rating changes: %w", err)
	}
	return out, nil
}
