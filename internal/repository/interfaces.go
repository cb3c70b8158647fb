package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/freeeve/measured-violence/internal/model"
)

// UserRepository defines user data operations.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error)
	Upsert(ctx context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) error
}

// MatchRepository defines match and player data operations.
type MatchRepository interface {
	Create(ctx context.Context, name, creatorID string, seed int64, turnDur, decisionDur string) (*model.Match, error)
	FindByID(ctx context.Context, id string) (*model.Match, error)
	ListOpen(ctx context.Context) ([]model.Match, error)
	ListByUser(ctx context.Context, userID string) ([]model.Match, error)
	ListFinished(ctx context.Context) ([]model.Match, error)
	ListActive(ctx context.Context) ([]model.Match, error)
	Join(ctx context.Context, matchID, userID string) error
	PlayerCount(ctx context.Context, matchID string) (int, error)
	AssignSides(ctx context.Context, matchID string, sides map[string]string) error
	SetFinished(ctx context.Context, matchID, winner string) error
	Delete(ctx context.Context, matchID string) error
}

// TurnRepository defines turn and action data operations.
type TurnRepository interface {
	CreateTurn(ctx context.Context, matchID string, battleRound, turnNumber int, phase string, stateBefore json.RawMessage, deadline time.Time) (*model.Turn, error)
	CurrentTurn(ctx context.Context, matchID string) (*model.Turn, error)
	ListTurns(ctx context.Context, matchID string) ([]model.Turn, error)
	ResolveTurn(ctx context.Context, turnID string, stateAfter json.RawMessage) error
	SaveAction(ctx context.Context, rec *model.ActionRecord) (*model.ActionRecord, error)
	ActionsByTurn(ctx context.Context, turnID string) ([]model.ActionRecord, error)
	ListExpired(ctx context.Context) ([]model.Turn, error)
}

// MessageRepository defines match chat operations.
type MessageRepository interface {
	Create(ctx context.Context, matchID, senderID, recipientID, content, turnID string) (*model.Message, error)
	ListByMatch(ctx context.Context, matchID, userID string) ([]model.Message, error)
}

// MatchCache defines live match state operations (Redis).
type MatchCache interface {
	SetSnapshot(ctx context.Context, matchID string, state json.RawMessage) error
	GetSnapshot(ctx context.Context, matchID string) (json.RawMessage, error)
	NextSeq(ctx context.Context, matchID string) (int64, error)
	SetTurnTimer(ctx context.Context, matchID string, deadline time.Time) error
	ClearTurnTimer(ctx context.Context, matchID string) error
	SetDecisionTimer(ctx context.Context, matchID string, deadline time.Time) error
	ClearDecisionTimer(ctx context.Context, matchID string) error
	DeleteMatchData(ctx context.Context, matchID string) error
}
