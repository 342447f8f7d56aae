// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"stratum/internal/auth"
	"stratum/internal/cache"
	"stratum/internal/config"
	"stratum/internal/database"
	"stratum/internal/game"
	"stratum/internal/handlers"
	"stratum/internal/matchmaking"
	"stratum/internal/middleware"
	"stratum/internal/models"
	"stratum/internal/tournament"
)

func main() {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	cfg, err := config.Load(os.Getenv("STRATUM_CONFIG"))
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	if priv, pub := os.Getenv("JWT_PRIVATE_KEY_PATH"), os.Getenv("JWT_PUBLIC_KEY_PATH"); priv != "" && pub != "" {
		if err := auth.InitFromPath(priv, pub); err != nil {
			logger.Fatalf("auth keys: %v", err)
		}
	} else {
		auth.Init()
	}

	ctx := context.Background()
	if err := database.ConnectDB(ctx); err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer database.CloseDB()

	if err := cache.ConnectRedis(); err != nil {
		logger.Fatalf("redis: %v", err)
	}

	oracleURL := os.Getenv("ORACLE_URL")
	if oracleURL == "" {
		oracleURL = "http://localhost:9090"
	}
	oracle, err := game.NewHTTPOracle(oracleURL)
	if err != nil {
		logger.Fatalf("rules oracle: %v", err)
	}

	registry := game.NewRegistry(logger)
	gs := handlers.NewGameServer(registry, oracle, cfg, logger)

	engine := tournament.NewEngine(cfg.Tournament, cfg.Matchmaking,
		func(white, black *models.Player, tc models.TimeControl, rated bool, tournamentID uuid.UUID, round int) (uuid.UUID, error) {
			tid := tournamentID
			sess, err := gs.CreateSession(white, black, tc, rated, &tid, round)
			if err != nil {
				return uuid.Nil, err
			}
			return sess.ID, nil
		}, logger)

	registry.OnComplete = func(rec models.CompletedGame) {
		gs.CloseRoom(rec.SessionID)
		engine.HandleResult(rec)
	}

	stats := matchmaking.NewWaitStats(cache.Rdb, cfg.Matchmaking.WaitSampleSize)
	queue := matchmaking.NewQueue(cfg.Matchmaking, stats,
		func(white, black *models.Player, tc models.TimeControl) error {
			_, err := gs.CreateSession(white, black, tc, true, nil, 0)
			return err
		}, logger)

	if err := queue.Start(); err != nil {
		logger.Fatalf("matchmaking: %v", err)
	}
	defer queue.Stop()

	if err := engine.Start(); err != nil {
		logger.Fatalf("tournament engine: %v", err)
	}
	defer engine.Stop()

	go retryLoop(ctx, logger)

	mux := http.NewServeMux()
	withLog := middleware.LogMiddleware(logger)

	mux.Handle("/healthz", withLog(http.HandlerFunc(handlers.HealthzHandler)))

	// player endpoints
	mux.Handle("/player/create", withLog(handlers.CreatePlayerHandler(cfg.Rating.InitialRating)))
	mux.Handle("/player/games/", withLog(http.HandlerFunc(handlers.PlayerGamesHandler)))
	mux.Handle("/player/ratings/", withLog(http.HandlerFunc(handlers.PlayerRatingsHandler)))
	mux.Handle("/player/", withLog(http.HandlerFunc(handlers.GetPlayerHandler)))

	// matchmaking endpoints
	qh := handlers.NewQueueHandlers(queue, logger)
	mux.Handle("/queue/enqueue", withLog(http.HandlerFunc(qh.Enqueue)))
	mux.Handle("/queue/cancel", withLog(http.HandlerFunc(qh.Cancel)))
	mux.Handle("/queue/status", withLog(http.HandlerFunc(qh.Status)))

	// session endpoints
	mux.Handle("/game/ws/", withLog(handlers.GameWSHandler(logger, gs)))
	mux.Handle("/session/active", withLog(handlers.SessionsForPlayerHandler(gs)))
	mux.Handle("/session/abort/", withLog(handlers.SessionAbortHandler(gs)))
	mux.Handle("/session/", withLog(handlers.SessionStateHandler(gs)))

	// tournament endpoints
	th := handlers.NewTournamentHandlers(engine, logger)
	mux.Handle("/tournament/create", withLog(http.HandlerFunc(th.Create)))
	mux.Handle("/tournament/list", withLog(http.HandlerFunc(th.List)))
	mux.Handle("/tournament/info/", withLog(http.HandlerFunc(th.Info)))
	mux.Handle("/tournament/open/", withLog(th.OpenRegistration()))
	mux.Handle("/tournament/close/", withLog(th.CloseRegistration()))
	mux.Handle("/tournament/start/", withLog(th.Start()))
	mux.Handle("/tournament/finish/", withLog(th.FinishArena()))
	mux.Handle("/tournament/cancel/", withLog(th.Cancel()))
	mux.Handle("/tournament/register/", withLog(http.HandlerFunc(th.Register)))
	mux.Handle("/tournament/withdraw/", withLog(http.HandlerFunc(th.Withdraw)))
	mux.Handle("/tournament/round/", withLog(http.HandlerFunc(th.NextRound)))
	mux.Handle("/tournament/standings/", withLog(http.HandlerFunc(th.Standings)))
	mux.Handle("/tournament/rounds/", withLog(http.HandlerFunc(th.Rounds)))

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		errc <- srv.ListenAndServe()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		logger.Errorf("server error: %v", err)
	case sig := <-sigs:
		logger.Infof("received %v, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

// retryLoop periodically replays completed-game records whose database
// write failed. The writes are idempotent upserts, so replays are safe.
func retryLoop(ctx context.Context, logger *logrus.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := cache.DrainFailedPersists(ctx, database.PersistCompletedGame, logger)
			if err != nil {
				logger.Warnf("persist retry drain stopped: %v", err)
			}
			if n > 0 {
				logger.Infof("replayed %d parked game records", n)
			}
		}
	}
}
