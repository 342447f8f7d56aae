// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"stratum/internal/models"
)

// Config holds the service tunables. Service-level settings (addresses, DSNs)
// come from the environment; game/rating/matchmaking policy comes from the
// yaml file so operators can retune without a rebuild.
type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Rating RatingConfig `yaml:"rating"`

	Matchmaking MatchmakingConfig `yaml:"matchmaking"`

	Session SessionConfig `yaml:"session"`

	Tournament TournamentConfig `yaml:"tournament"`

	// TimeControls are the queueable buckets.
	TimeControls []models.TimeControl `yaml:"time_controls" validate:"min=1,dive"`
}

// RatingConfig is the rating engine's configuration surface. The constants
// are tunable; the update formula is not.
type RatingConfig struct {
	KProvisional     int `yaml:"k_provisional" validate:"gt=0"`
	KEstablished     int `yaml:"k_established" validate:"gt=0"`
	ProvisionalGames int `yaml:"provisional_games" validate:"gt=0"`
	InitialRating    int `yaml:"initial_rating" validate:"gt=0"`
}

type MatchmakingConfig struct {
	// Acceptance band starts at BandBase rating points and widens by
	// BandGrowthPerSec for every second waited, capped at BandMax.
	BandBase         int `yaml:"band_base" validate:"gt=0"`
	BandGrowthPerSec int `yaml:"band_growth_per_sec" validate:"gte=0"`
	BandMax          int `yaml:"band_max" validate:"gt=0"`

	PassIntervalMs int `yaml:"pass_interval_ms" validate:"gt=0"`

	// WaitSampleSize bounds the per-band history used for wait estimates.
	WaitSampleSize int `yaml:"wait_sample_size" validate:"gt=0"`
}

func (m MatchmakingConfig) PassInterval() time.Duration {
	return time.Duration(m.PassIntervalMs) * time.Millisecond
}

type SessionConfig struct {
	// ReconnectGraceSec is how long a disconnected side has to return
	// before forfeiting by abandonment.
	ReconnectGraceSec int `yaml:"reconnect_grace_sec" validate:"gt=0"`
}

func (s SessionConfig) ReconnectGrace() time.Duration {
	return time.Duration(s.ReconnectGraceSec) * time.Second
}

type TournamentConfig struct {
	// ByeScore is awarded to an unpaired swiss participant. Full point by
	// default.
	ByeScore float64 `yaml:"bye_score" validate:"gte=0"`

	// ArenaPassIntervalMs drives the continuous arena pairing job.
	ArenaPassIntervalMs int `yaml:"arena_pass_interval_ms" validate:"gt=0"`
}

func (t TournamentConfig) ArenaPassInterval() time.Duration {
	return time.Duration(t.ArenaPassIntervalMs) * time.Millisecond
}

// Default returns the built-in configuration. Load starts from this, so a
// partial yaml file only overrides what it mentions.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Rating = RatingConfig{
		KProvisional:     32,
		KEstablished:     16,
		ProvisionalGames: 20,
		InitialRating:    1200,
	}
	cfg.Matchmaking = MatchmakingConfig{
		BandBase:         100,
		BandGrowthPerSec: 5,
		BandMax:          600,
		PassIntervalMs:   250,
		WaitSampleSize:   50,
	}
	cfg.Session = SessionConfig{ReconnectGraceSec: 60}
	cfg.Tournament = TournamentConfig{ByeScore: 1.0, ArenaPassIntervalMs: 1000}
	cfg.TimeControls = []models.TimeControl{
		{InitialSec: 180, IncrementSec: 2},
		{InitialSec: 300, IncrementSec: 3},
		{InitialSec: 600, IncrementSec: 5},
	}
	return cfg
}

// Load reads the yaml file at path (skipped if path is empty or the file is
// absent), applies env overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if addr := strings.TrimSpace(os.Getenv("STRATUM_ADDR")); addr != "" {
		cfg.Server.Addr = addr
	} else if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Server.Addr = ":" + port
	}
}
