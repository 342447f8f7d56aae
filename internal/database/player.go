// internal/database/player.go
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

// CreatePlayer inserts a new player row. The ID is assigned here.
func CreatePlayer(ctx context.Context, player *models.Player) error {
	if player.ID != uuid.Nil {
		return core.Validationf("player ID must be unset")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate player id: %w", err)
	}
	player.ID = id

	query := `
		INSERT INTO players (id, username, rating, peak_rating, games_played, wins, draws, losses, provisional, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query,
			player.ID, player.Username, player.Rating, player.PeakRating,
			player.GamesPlayed, player.Wins, player.Draws, player.Losses,
			player.Provisional, player.Active)
		return err
	})
	if err != nil {
		return fmt.Errorf("create player: %w", err)
	}
	return nil
}

// GetPlayerByID loads one player row.
func GetPlayerByID(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	var p models.Player
	query := `
		SELECT id, username, rating, peak_rating, games_played, wins, draws, losses, provisional, active
		FROM players WHERE id = $1`
	err := DB.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Username, &p.Rating, &p.PeakRating,
		&p.GamesPlayed, &p.Wins, &p.Draws, &p.Losses,
		&p.Provisional, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.NotFoundf("player %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get player by id: %w", err)
	}
	return &p, nil
}

// GetPlayerByUsername loads one player row by name.
func GetPlayerByUsername(ctx context.Context, username string) (*models.Player, error) {
	var p models.Player
	query := `
		SELECT id, username, rating, peak_rating, games_played, wins, draws, losses, provisional, active
		FROM players WHERE username = $1`
	err := DB.QueryRow(ctx, query, username).Scan(
		&p.ID, &p.Username, &p.Rating, &p.PeakRating,
		&p.GamesPlayed, &p.Wins, &p.Draws, &p.Losses,
		&p.Provisional, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.NotFoundf("player %q not found", username)
	}
	if err != nil {
		return nil, fmt.Errorf("get player by username: %w", err)
	}
	return &p, nil
}
