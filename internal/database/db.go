// internal/database/db.go
package database

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	_ "github.com/joho/godotenv/autoload"
)

var DB *pgxpool.Pool

// ConnectDB builds the pool from the environment. POSTGRES_DSN wins when
// set; otherwise the connection string is assembled from the usual parts.
func ConnectDB(ctx context.Context) error {
	connStr := os.Getenv("POSTGRES_DSN")
	if connStr == "" {
		connStr = fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
			os.Getenv("POSTGRES_USER"),
			os.Getenv("POSTGRES_PASSWORD"),
			os.Getenv("PG_HOST"),
			os.Getenv("PG_PORT"),
			os.Getenv("POSTGRES_DB"),
		)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping database: %w", err)
	}
	DB = pool
	logrus.Info("database connected")
	return nil
}

func CloseDB() {
	if DB != nil {
		DB.Close()
	}
}
