// internal/tournament/engine.go
package tournament

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stratum/internal/config"
	"stratum/internal/core"
	"stratum/internal/models"
)

// SessionLauncher starts a game between two participants and returns the
// session id. The engine never talks to the game registry directly.
type SessionLauncher func(white, black *models.Player, tc models.TimeControl, rated bool, tournamentID uuid.UUID, round int) (uuid.UUID, error)

// state is the engine's in-memory record of one tournament.
type state struct {
	model Tournament

	participants map[uuid.UUID]*models.TournamentPlayer
	records      map[uuid.UUID]*models.Player

	rounds []*models.TournamentRound
	played map[pairKey]bool
	byes   map[uuid.UUID]bool

	// Elimination bracket order. Winners advance in bracket position, so
	// the lists stay ordered across rounds.
	winnersBracket []uuid.UUID
	losersBracket  []uuid.UUID
	grandFinal     bool

	// Arena participants waiting for their next board, by enqueue time,
	// and each player's previous opponent for rematch avoidance.
	waiting      map[uuid.UUID]time.Time
	lastOpponent map[uuid.UUID]uuid.UUID

	schedule [][]models.Pairing // round robin only, fixed at start
}

// Tournament aliases the model so callers get a value copy from Get.
type Tournament = models.Tournament

// Engine owns every tournament's lifecycle: registration, round pairing,
// result intake and final standings. One mutex guards all tournaments;
// pairing math is pure and fast, so contention stays low.
type Engine struct {
	mu sync.Mutex

	cfg   config.TournamentConfig
	mmCfg config.MatchmakingConfig

	tournaments map[uuid.UUID]*state
	launch      SessionLauncher

	scheduler gocron.Scheduler
	logger    *logrus.Logger
}

func NewEngine(cfg config.TournamentConfig, mmCfg config.MatchmakingConfig, launch SessionLauncher, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		cfg:         cfg,
		mmCfg:       mmCfg,
		tournaments: make(map[uuid.UUID]*state),
		launch:      launch,
		logger:      logger,
	}
}

// Start launches the arena pairing job. Safe to call once at boot.
func (e *Engine) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("tournament scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(e.cfg.ArenaPassInterval()),
		gocron.NewTask(e.arenaPass),
	)
	if err != nil {
		return fmt.Errorf("schedule arena pass: %w", err)
	}
	e.scheduler = sched
	sched.Start()
	return nil
}

func (e *Engine) Stop() {
	if e.scheduler != nil {
		_ = e.scheduler.Shutdown()
	}
}

// Create registers a new tournament in the upcoming state. RoundCount is
// only meaningful for swiss; other formats derive their round structure.
func (e *Engine) Create(name string, format models.TournamentFormat, tc models.TimeControl, rated bool, roundCount int) (Tournament, error) {
	if name == "" {
		return Tournament{}, core.Validationf("tournament name is required")
	}
	if !format.Valid() {
		return Tournament{}, core.Validationf("unknown tournament format %q", format)
	}
	if format == models.FormatSwiss && roundCount < 1 {
		return Tournament{}, core.Validationf("swiss tournaments need at least one round")
	}

	id, _ := uuid.NewRandom()
	st := &state{
		model: Tournament{
			ID:          id,
			Name:        name,
			Format:      format,
			Status:      models.TournamentUpcoming,
			TimeControl: tc,
			Rated:       rated,
			RoundCount:  roundCount,
			CreatedAt:   time.Now(),
		},
		participants: make(map[uuid.UUID]*models.TournamentPlayer),
		records:      make(map[uuid.UUID]*models.Player),
		played:       make(map[pairKey]bool),
		byes:         make(map[uuid.UUID]bool),
		waiting:      make(map[uuid.UUID]time.Time),
	}

	e.mu.Lock()
	e.tournaments[id] = st
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"tournament_id": id,
		"format":        format,
		"name":          name,
	}).Info("tournament created")
	return st.model, nil
}

// Get returns a copy of the tournament record.
func (e *Engine) Get(id uuid.UUID) (Tournament, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.stateLocked(id)
	if err != nil {
		return Tournament{}, err
	}
	return st.model, nil
}

func (e *Engine) stateLocked(id uuid.UUID) (*state, error) {
	st, ok := e.tournaments[id]
	if !ok {
		return nil, core.NotFoundf("tournament %s not found", id)
	}
	return st, nil
}

// OpenRegistration moves upcoming -> registration_open.
func (e *Engine) OpenRegistration(id uuid.UUID) error {
	return e.transition(id, models.TournamentUpcoming, models.TournamentRegistrationOpen)
}

// CloseRegistration moves registration_open -> registration_closed.
func (e *Engine) CloseRegistration(id uuid.UUID) error {
	return e.transition(id, models.TournamentRegistrationOpen, models.TournamentRegistrationClosed)
}

func (e *Engine) transition(id uuid.UUID, from, to models.TournamentStatus) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.stateLocked(id)
	if err != nil {
		return err
	}
	if st.model.Status != from {
		return core.Statef("tournament %s is %s, expected %s", id, st.model.Status, from)
	}
	st.model.Status = to
	return nil
}

// Register adds a player while registration is open. Registering twice is a
// conflict.
func (e *Engine) Register(id uuid.UUID, player *models.Player) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.stateLocked(id)
	if err != nil {
		return err
	}
	if st.model.Status != models.TournamentRegistrationOpen {
		return core.Statef("tournament %s is not accepting registrations", id)
	}
	if _, dup := st.participants[player.ID]; dup {
		return core.Conflictf("player %s is already registered", player.ID)
	}
	st.participants[player.ID] = &models.TournamentPlayer{
		PlayerID: player.ID,
		Username: player.Username,
		Rating:   player.Rating,
	}
	st.records[player.ID] = player
	return nil
}

// Withdraw removes a participant. Before the start this deletes the entry;
// afterwards the player is flagged withdrawn and skipped by future pairings,
// with already-played boards left standing.
func (e *Engine) Withdraw(id, playerID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.stateLocked(id)
	if err != nil {
		return err
	}
	p, ok := st.participants[playerID]
	if !ok {
		return core.NotFoundf("player %s is not registered", playerID)
	}
	switch st.model.Status {
	case models.TournamentRegistrationOpen, models.TournamentRegistrationClosed:
		delete(st.participants, playerID)
		delete(st.records, playerID)
	case models.TournamentInProgress:
		if p.Withdrawn {
			return core.Statef("player %s has already withdrawn", playerID)
		}
		p.Withdrawn = true
		delete(st.waiting, playerID)
	default:
		return core.Statef("tournament %s is %s", id, st.model.Status)
	}
	return nil
}

// StartTournament moves registration_closed -> in_progress and prepares the
// format-specific structure. Swiss and elimination rounds are then driven by
// StartNextRound; arena pairing begins immediately on the pass job.
func (e *Engine) StartTournament(id uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.stateLocked(id)
	if err != nil {
		return err
	}
	if st.model.Status != models.TournamentRegistrationClosed {
		return core.Statef("tournament %s is %s, expected %s", id, st.model.Status, models.TournamentRegistrationClosed)
	}
	if len(st.participants) < 2 {
		return core.Validationf("tournament %s needs at least two players", id)
	}

	switch st.model.Format {
	case models.FormatRoundRobin:
		ids := make([]uuid.UUID, 0, len(st.participants))
		for _, p := range SortStandings(st.participants) {
			ids = append(ids, p.PlayerID)
		}
		st.schedule = RoundRobinSchedule(ids)
		st.model.RoundCount = len(st.schedule)
	case models.FormatSingleElimination, models.FormatDoubleElimination:
		st.model.RoundCount = 0 // open-ended until the bracket resolves
	case models.FormatArena:
		st.model.RoundCount = 0
		now := time.Now()
		for pid := range st.participants {
			st.waiting[pid] = now
		}
	}

	st.model.Status = models.TournamentInProgress
	e.logger.WithFields(logrus.Fields{
		"tournament_id": id,
		"players":       len(st.participants),
	}).Info("tournament started")
	return nil
}

// StartNextRound generates and launches the next round's boards. Not valid
// for arena tournaments, whose pairing is continuous.
func (e *Engine) StartNextRound(id uuid.UUID) (*models.TournamentRound, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.stateLocked(id)
	if err != nil {
		return nil, err
	}
	if st.model.Status != models.TournamentInProgress {
		return nil, core.Statef("tournament %s is %s", id, st.model.Status)
	}
	if st.model.Format == models.FormatArena {
		return nil, core.Validationf("arena tournaments pair continuously")
	}
	if n := len(st.rounds); n > 0 && !st.rounds[n-1].Complete {
		return nil, core.Statef("round %d is still in progress", n)
	}

	var (
		pairings []models.Pairing
		bye      *uuid.UUID
	)
	switch st.model.Format {
	case models.FormatSwiss:
		if len(st.rounds) >= st.model.RoundCount {
			return nil, core.Statef("all %d rounds have been played", st.model.RoundCount)
		}
		pairings, bye = SwissPairings(st.participants, st.played, st.byes)
	case models.FormatRoundRobin:
		if len(st.rounds) >= len(st.schedule) {
			return nil, core.Statef("the schedule is exhausted")
		}
		pairings = st.filterScheduled(st.schedule[len(st.rounds)])
	case models.FormatSingleElimination:
		pairings, err = st.nextSingleElimRound()
	case models.FormatDoubleElimination:
		pairings, err = st.nextDoubleElimRound()
	}
	if err != nil {
		return nil, err
	}
	if len(pairings) == 0 && bye == nil {
		return nil, core.Statef("no pairable players remain")
	}

	round := &models.TournamentRound{Number: len(st.rounds) + 1}
	for _, pairing := range pairings {
		if pairing.Bye() {
			e.awardByeLocked(st, pairing.White)
			round.Pairings = append(round.Pairings, pairing)
			continue
		}
		launched, lerr := e.launchBoardLocked(st, pairing, round.Number)
		if lerr != nil {
			return nil, lerr
		}
		round.Pairings = append(round.Pairings, launched)
	}
	if bye != nil {
		e.awardByeLocked(st, *bye)
		round.Pairings = append(round.Pairings, models.Pairing{White: *bye, Result: models.ResultUnterminated})
	}

	st.rounds = append(st.rounds, round)
	st.model.CurrentRound = round.Number
	e.checkRoundCompleteLocked(st, round)

	e.logger.WithFields(logrus.Fields{
		"tournament_id": id,
		"round":         round.Number,
		"boards":        len(round.Pairings),
	}).Info("round started")
	return round, nil
}

func (e *Engine) launchBoardLocked(st *state, pairing models.Pairing, round int) (models.Pairing, error) {
	white := st.records[pairing.White]
	black := st.records[*pairing.Black]
	if white == nil || black == nil {
		return pairing, core.Statef("participant record missing for board %s vs %s", pairing.White, *pairing.Black)
	}
	sid, err := e.launch(white, black, st.model.TimeControl, st.model.Rated, st.model.ID, round)
	if err != nil {
		return pairing, fmt.Errorf("launch board: %w", err)
	}
	pairing.SessionID = sid
	st.played[keyFor(pairing.White, *pairing.Black)] = true
	st.participants[pairing.White].WhiteGames++
	st.participants[*pairing.Black].BlackGames++
	return pairing, nil
}

// awardByeLocked credits a bye. Swiss byes score ByeScore; elimination byes
// simply advance the player.
func (e *Engine) awardByeLocked(st *state, playerID uuid.UUID) {
	st.byes[playerID] = true
	switch st.model.Format {
	case models.FormatSwiss, models.FormatRoundRobin:
		if p, ok := st.participants[playerID]; ok {
			p.Score += e.cfg.ByeScore
		}
	case models.FormatSingleElimination, models.FormatDoubleElimination:
		if p, ok := st.participants[playerID]; ok && p.InLosersBracket {
			st.losersBracket = append(st.losersBracket, playerID)
		} else {
			st.winnersBracket = append(st.winnersBracket, playerID)
		}
	}
}

// filterScheduled drops boards whose players have withdrawn since the
// schedule was fixed; a remaining opponent gets a bye instead.
func (st *state) filterScheduled(scheduled []models.Pairing) []models.Pairing {
	alive := func(id uuid.UUID) bool {
		p, ok := st.participants[id]
		return ok && !p.Withdrawn
	}
	var out []models.Pairing
	for _, pairing := range scheduled {
		if pairing.Bye() {
			if alive(pairing.White) {
				out = append(out, pairing)
			}
			continue
		}
		wAlive, bAlive := alive(pairing.White), alive(*pairing.Black)
		switch {
		case wAlive && bAlive:
			out = append(out, pairing)
		case wAlive:
			out = append(out, models.Pairing{White: pairing.White, Result: models.ResultUnterminated})
		case bAlive:
			out = append(out, models.Pairing{White: *pairing.Black, Result: models.ResultUnterminated})
		}
	}
	return out
}

// nextSingleElimRound seeds round one from ratings, then pairs the previous
// round's winners in bracket order.
func (st *state) nextSingleElimRound() ([]models.Pairing, error) {
	if len(st.rounds) == 0 {
		active := activePlayers(st.participants)
		pairings := SeedBracket(active)
		return pairings, nil
	}
	var advancers []*models.TournamentPlayer
	for _, id := range st.winnersBracket {
		if p, ok := st.participants[id]; ok && !p.Withdrawn && !p.Eliminated {
			advancers = append(advancers, p)
		}
	}
	if len(advancers) < 2 {
		return nil, core.Statef("the bracket has resolved")
	}
	st.winnersBracket = nil
	return PairAdvancers(advancers), nil
}

// nextDoubleElimRound runs the winners and losers brackets side by side.
// When each bracket is down to one player, the grand final decides it.
func (st *state) nextDoubleElimRound() ([]models.Pairing, error) {
	if len(st.rounds) == 0 {
		active := activePlayers(st.participants)
		return SeedBracket(active), nil
	}

	lookup := func(ids []uuid.UUID) []*models.TournamentPlayer {
		var out []*models.TournamentPlayer
		for _, id := range ids {
			if p, ok := st.participants[id]; ok && !p.Withdrawn && !p.Eliminated {
				out = append(out, p)
			}
		}
		return out
	}
	winners := lookup(st.winnersBracket)
	losers := lookup(st.losersBracket)

	if len(winners) == 1 && len(losers) == 1 {
		st.winnersBracket, st.losersBracket = nil, nil
		st.grandFinal = true
		w, l := winners[0], losers[0]
		white, black := colorOrder(w, l)
		blackID := black.PlayerID
		return []models.Pairing{{White: white.PlayerID, Black: &blackID, Result: models.ResultUnterminated}}, nil
	}
	if len(winners)+len(losers) < 2 {
		return nil, core.Statef("the bracket has resolved")
	}

	st.winnersBracket, st.losersBracket = nil, nil
	pairings := PairAdvancers(winners)
	pairings = append(pairings, PairAdvancers(losers)...)
	return pairings, nil
}

// HandleResult ingests a finished board. Wire this to the game registry's
// completion hook; non-tournament games are ignored.
func (e *Engine) HandleResult(rec models.CompletedGame) {
	if rec.TournamentID == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.tournaments[*rec.TournamentID]
	if !ok {
		return
	}

	if st.model.Format == models.FormatArena {
		e.applyArenaResultLocked(st, rec)
		return
	}

	round, pairing := st.findPairingLocked(rec.SessionID)
	if pairing == nil {
		e.logger.WithFields(logrus.Fields{
			"tournament_id": st.model.ID,
			"session_id":    rec.SessionID,
		}).Warn("result for unknown board")
		return
	}
	if pairing.Settled() {
		return // duplicate delivery
	}
	pairing.Result = rec.Result
	pairing.Termination = rec.Termination
	e.applyBoardScoreLocked(st, *pairing)
	e.checkRoundCompleteLocked(st, round)
}

func (st *state) findPairingLocked(sessionID uuid.UUID) (*models.TournamentRound, *models.Pairing) {
	for _, round := range st.rounds {
		for i := range round.Pairings {
			if round.Pairings[i].SessionID == sessionID {
				return round, &round.Pairings[i]
			}
		}
	}
	return nil, nil
}

func (e *Engine) applyBoardScoreLocked(st *state, pairing models.Pairing) {
	if pairing.Bye() {
		return
	}
	white := st.participants[pairing.White]
	black := st.participants[*pairing.Black]
	wPts, bPts := boardScore(pairing.Result)
	white.Score += wPts
	black.Score += bPts

	if st.model.Format != models.FormatSingleElimination && st.model.Format != models.FormatDoubleElimination {
		return
	}

	winner, decisive := pairing.Result.Winner()
	if !decisive {
		switch pairing.Result {
		case models.ResultDraw:
			// A drawn elimination board advances the higher seed.
			if white.Rating >= black.Rating {
				e.advanceLocked(st, white, black)
			} else {
				e.advanceLocked(st, black, white)
			}
		default:
			// Aborted board: both players return to their own bracket
			// for a re-pair.
			st.rejoinBracketLocked(white)
			st.rejoinBracketLocked(black)
		}
		return
	}
	if winner == models.White {
		e.advanceLocked(st, white, black)
	} else {
		e.advanceLocked(st, black, white)
	}
}

func (st *state) rejoinBracketLocked(p *models.TournamentPlayer) {
	if p.InLosersBracket {
		st.losersBracket = append(st.losersBracket, p.PlayerID)
		return
	}
	st.winnersBracket = append(st.winnersBracket, p.PlayerID)
}

func (e *Engine) advanceLocked(st *state, winner, loser *models.TournamentPlayer) {
	st.winnersBracket = append(st.winnersBracket, winner.PlayerID)
	switch {
	case st.model.Format == models.FormatSingleElimination:
		loser.Eliminated = true
	case st.grandFinal:
		loser.Eliminated = true
	case loser.InLosersBracket:
		loser.Eliminated = true
	default:
		loser.InLosersBracket = true
		st.losersBracket = append(st.losersBracket, loser.PlayerID)
	}
	// Keep the losers bracket list free of advanced winners.
	if winner.InLosersBracket {
		st.winnersBracket = st.winnersBracket[:len(st.winnersBracket)-1]
		st.losersBracket = append(st.losersBracket, winner.PlayerID)
	}
}

func (e *Engine) checkRoundCompleteLocked(st *state, round *models.TournamentRound) {
	for _, pairing := range round.Pairings {
		if !pairing.Bye() && !pairing.Settled() {
			return
		}
	}
	round.Complete = true

	if e.tournamentOverLocked(st) {
		e.finishLocked(st)
	}
}

func (e *Engine) tournamentOverLocked(st *state) bool {
	switch st.model.Format {
	case models.FormatSwiss:
		return len(st.rounds) >= st.model.RoundCount
	case models.FormatRoundRobin:
		return len(st.rounds) >= len(st.schedule)
	case models.FormatSingleElimination:
		return len(st.winnersBracket) == 1 && len(activePlayers(st.participants)) == 1
	case models.FormatDoubleElimination:
		return len(activePlayers(st.participants)) == 1
	}
	return false
}

func (e *Engine) finishLocked(st *state) {
	ComputeTieBreaks(st.participants, st.rounds)
	st.model.Status = models.TournamentCompleted
	e.logger.WithFields(logrus.Fields{
		"tournament_id": st.model.ID,
		"rounds":        len(st.rounds),
	}).Info("tournament completed")
}

// FinishArena closes an arena tournament and freezes its standings.
func (e *Engine) FinishArena(id uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.stateLocked(id)
	if err != nil {
		return err
	}
	if st.model.Format != models.FormatArena {
		return core.Validationf("tournament %s is not an arena", id)
	}
	if st.model.Status != models.TournamentInProgress {
		return core.Statef("tournament %s is %s", id, st.model.Status)
	}
	st.waiting = make(map[uuid.UUID]time.Time)
	e.finishLocked(st)
	return nil
}

// Cancel aborts a tournament in any non-terminal state.
func (e *Engine) Cancel(id uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.stateLocked(id)
	if err != nil {
		return err
	}
	switch st.model.Status {
	case models.TournamentCompleted, models.TournamentCancelled:
		return core.Statef("tournament %s is already %s", id, st.model.Status)
	}
	st.model.Status = models.TournamentCancelled
	st.waiting = make(map[uuid.UUID]time.Time)
	return nil
}

// Standings returns participants ordered by score, Buchholz,
// Sonneborn-Berger, then rating.
func (e *Engine) Standings(id uuid.UUID) ([]models.TournamentPlayer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.stateLocked(id)
	if err != nil {
		return nil, err
	}
	// Keep tie-breaks live for in-progress views.
	ComputeTieBreaks(st.participants, st.rounds)
	return SortStandings(st.participants), nil
}

// Rounds returns the generated rounds so far.
func (e *Engine) Rounds(id uuid.UUID) ([]models.TournamentRound, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.stateLocked(id)
	if err != nil {
		return nil, err
	}
	out := make([]models.TournamentRound, 0, len(st.rounds))
	for _, r := range st.rounds {
		out = append(out, *r)
	}
	return out, nil
}

// List returns every tournament record.
func (e *Engine) List() []Tournament {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Tournament, 0, len(e.tournaments))
	for _, st := range e.tournaments {
		out = append(out, st.model)
	}
	return out
}
