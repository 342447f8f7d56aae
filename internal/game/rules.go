// internal/game/rules.go
package game

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"stratum/internal/core"
	"stratum/internal/models"
)

// BoardConditions are the terminal-condition signals the rules oracle reports
// after applying a move. The ledger maps them to a verdict in a fixed
// priority order; the oracle itself never decides how the game ends.
type BoardConditions struct {
	VertexControl  bool `json:"vertex_control"`
	Saturated      bool `json:"saturated"`
	CardsExhausted bool `json:"cards_exhausted"`
	ReverserRule   bool `json:"reverser_rule"`
}

// RuleOutcome is the oracle's answer for a legal move.
type RuleOutcome struct {
	Captured   string            `json:"captured,omitempty"`
	Flags      models.MoveFlags  `json:"flags"`
	Notation   string            `json:"notation"`
	Board      string            `json:"board"`
	Conditions BoardConditions   `json:"conditions"`
}

// RulesOracle is the external board-legality collaborator. The core never
// judges whether a card move is legal on the board; it asks the oracle and
// records what comes back.
type RulesOracle interface {
	// InitialBoard returns the starting position snapshot.
	InitialBoard() string

	// Apply validates req against board for the moving color and returns the
	// outcome. An illegal move returns an error wrapping core.ErrValidation.
	Apply(ctx context.Context, board string, mover models.Color, req models.MoveRequest) (RuleOutcome, error)
}

// HTTPOracle talks to a rules oracle service over JSON.
type HTTPOracle struct {
	BaseURL string
	Client  *http.Client

	initialBoard string
}

// NewHTTPOracle fetches the starting position once and returns a ready
// client.
func NewHTTPOracle(baseURL string) (*HTTPOracle, error) {
	o := &HTTPOracle{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
	resp, err := o.Client.Get(baseURL + "/board/initial")
	if err != nil {
		return nil, fmt.Errorf("fetch initial board: %w", err)
	}
	defer resp.Body.Close()
	var body struct {
		Board string `json:"board"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode initial board: %w", err)
	}
	o.initialBoard = body.Board
	return o, nil
}

func (o *HTTPOracle) InitialBoard() string { return o.initialBoard }

// Apply posts the position and move to the oracle. A 422 response means the
// move is illegal and surfaces as a validation error to the submitting
// client; any other non-200 is an internal failure.
func (o *HTTPOracle) Apply(ctx context.Context, board string, mover models.Color, req models.MoveRequest) (RuleOutcome, error) {
	payload := struct {
		Board string             `json:"board"`
		Mover models.Color       `json:"mover"`
		Move  models.MoveRequest `json:"move"`
	}{board, mover, req}

	data, err := json.Marshal(payload)
	if err != nil {
		return RuleOutcome{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/move/apply", bytes.NewReader(data))
	if err != nil {
		return RuleOutcome{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(httpReq)
	if err != nil {
		return RuleOutcome{}, fmt.Errorf("rules oracle request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out RuleOutcome
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return RuleOutcome{}, fmt.Errorf("decode oracle outcome: %w", err)
		}
		return out, nil
	case http.StatusUnprocessableEntity:
		var body struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Message == "" {
			body.Message = "illegal move"
		}
		return RuleOutcome{}, core.Validationf("%s", body.Message)
	default:
		return RuleOutcome{}, fmt.Errorf("rules oracle returned status %d", resp.StatusCode)
	}
}
