package model

import (
	"encoding/json"
	"time"
)

// User represents a registered user.
type User struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	ProviderID  string    `json:"provider_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Match represents a two-player battle.
type Match struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	CreatorID        string        `json:"creator_id"`
	Status           string        `json:"status"` // waiting, active, finished
	Winner           string        `json:"winner,omitempty"`
	Seed             int64         `json:"seed"`
	TurnDuration     string        `json:"turn_duration"`
	DecisionDuration string        `json:"decision_duration"`
	CreatedAt        time.Time     `json:"created_at"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	FinishedAt       *time.Time    `json:"finished_at,omitempty"`
	Players          []MatchPlayer `json:"players,omitempty"`
}

// MatchPlayer represents a player's membership in a match. The attacker
// side takes the first turn.
type MatchPlayer struct {
	MatchID  string    `json:"match_id"`
	UserID   string    `json:"user_id"`
	Side     string    `json:"side,omitempty"` // attacker or defender
	JoinedAt time.Time `json:"joined_at"`
}

// Turn represents one player turn (or the deployment step) of a match.
// StateBefore is the snapshot the turn started from; StateAfter is filled
// when the turn resolves. Committed actions replay on top of StateBefore.
type Turn struct {
	ID          string          `json:"id"`
	MatchID     string          `json:"match_id"`
	BattleRound int             `json:"battle_round"`
	TurnNumber  int             `json:"turn_number"`
	Phase       string          `json:"phase"`
	StateBefore json.RawMessage `json:"state_before"`
	StateAfter  json.RawMessage `json:"state_after,omitempty"`
	Deadline    time.Time       `json:"deadline"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ActionRecord is one committed action within a turn: the request as
// submitted plus the diffs and dice the engine produced for it. Seq orders
// records for deterministic replay.
type ActionRecord struct {
	ID         string          `json:"id"`
	TurnID     string          `json:"turn_id"`
	Seq        int64           `json:"seq"`
	Player     string          `json:"player"`
	ActionType string          `json:"action_type"`
	Payload    json.RawMessage `json:"payload"`
	Changes    json.RawMessage `json:"changes,omitempty"`
	Dice       json.RawMessage `json:"dice,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Message represents an in-match chat message.
type Message struct {
	ID          string    `json:"id"`
	MatchID     string    `json:"match_id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id,omitempty"` // empty = visible to both players
	Content     string    `json:"content"`
	TurnID      string    `json:"turn_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
