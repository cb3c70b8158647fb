package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/freeeve/measured-violence/internal/model"
	"github.com/freeeve/measured-violence/internal/repository"
	"github.com/freeeve/measured-violence/pkg/skirmish"
)

var (
	ErrMatchNotFound   = errors.New("match not found")
	ErrMatchNotWaiting = errors.New("match is not in waiting status")
	ErrMatchFull       = errors.New("match already has 2 players")
	ErrNotEnough       = errors.New("need exactly 2 players to start")
	ErrNotCreator      = errors.New("only the creator can do this")
	ErrMatchNotActive  = errors.New("match is not active")
	ErrAlreadyJoined   = errors.New("already joined this match")
	ErrNotInMatch      = errors.New("you are not in this match")
)

// Sides. The attacker takes the first turn.
const (
	SideAttacker = "attacker"
	SideDefender = "defender"
)

// MatchService handles match lifecycle operations.
type MatchService struct {
	matchRepo repository.MatchRepository
	turnRepo  repository.TurnRepository
	cache     repository.MatchCache

	// Server-wide clock defaults, applied when a match is created without
	// explicit durations.
	defaultTurnDur     string
	defaultDecisionDur string
}

// NewMatchService creates a MatchService. The duration arguments accept Go
// duration strings and back any match that does not set its own clocks.
func NewMatchService(matchRepo repository.MatchRepository, turnRepo repository.TurnRepository, cache repository.MatchCache, turnDur, decisionDur string) *MatchService {
	return &MatchService{
		matchRepo:          matchRepo,
		turnRepo:           turnRepo,
		cache:              cache,
		defaultTurnDur:     toPgInterval(turnDur, "24 hours"),
		defaultDecisionDur: toPgInterval(decisionDur, "5 minutes"),
	}
}

// CreateMatch creates a new match in "waiting" status. The creator joins
// automatically. A zero seed is replaced with a random one so replays stay
// reproducible from the stored value.
func (s *MatchService) CreateMatch(ctx context.Context, name, creatorID string, seed int64, turnDur, decisionDur string) (*model.Match, error) {
	turnDur = toPgInterval(turnDur, s.defaultTurnDur)
	decisionDur = toPgInterval(decisionDur, s.defaultDecisionDur)
	if seed == 0 {
		seed = rand.Int63()
	}

	match, err := s.matchRepo.Create(ctx, name, creatorID, seed, turnDur, decisionDur)
	if err != nil {
		return nil, err
	}
	if err := s.matchRepo.Join(ctx, match.ID, creatorID); err != nil {
		return nil, err
	}
	return s.matchRepo.FindByID(ctx, match.ID)
}

// JoinMatch adds a second player to a waiting match.
func (s *MatchService) JoinMatch(ctx context.Context, matchID, userID string) error {
	match, err := s.matchRepo.FindByID(ctx, matchID)
	if err != nil {
		return err
	}
	if match == nil {
		return ErrMatchNotFound
	}
	if match.Status != "waiting" {
		return ErrMatchNotWaiting
	}

	for _, p := range match.Players {
		if p.UserID == userID {
			return ErrAlreadyJoined
		}
	}

	count, err := s.matchRepo.PlayerCount(ctx, matchID)
	if err != nil {
		return err
	}
	if count >= 2 {
		return ErrMatchFull
	}

	return s.matchRepo.Join(ctx, matchID, userID)
}

// StartMatch assigns sides, builds the opening snapshot, and creates the
// first turn with a deadline.
func (s *MatchService) StartMatch(ctx context.Context, matchID, userID string) (*model.Match, error) {
	match, err := s.matchRepo.FindByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, ErrMatchNotFound
	}
	if match.Status != "waiting" {
		return nil, ErrMatchNotWaiting
	}
	if match.CreatorID != userID {
		return nil, ErrNotCreator
	}
	if len(match.Players) != 2 {
		return nil, ErrNotEnough
	}

	// Random side assignment; the attacker deploys and acts first.
	first, second := match.Players[0].UserID, match.Players[1].UserID
	if rand.Intn(2) == 1 {
		first, second = second, first
	}
	sides := map[string]string{first: SideAttacker, second: SideDefender}
	if err := s.matchRepo.AssignSides(ctx, matchID, sides); err != nil {
		return nil, err
	}

	gs := skirmish.NewDemoGame(matchID, uint64(match.Seed), first, second)
	stateJSON, err := skirmish.EncodeSnapshot(gs)
	if err != nil {
		return nil, fmt.Errorf("encode initial snapshot: %w", err)
	}

	deadline := time.Now().Add(parseDuration(match.TurnDuration))
	turn, err := s.turnRepo.CreateTurn(ctx, matchID, gs.Meta.BattleRound, gs.Meta.TurnNumber, string(gs.Meta.Phase), stateJSON, deadline)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetSnapshot(ctx, matchID, stateJSON); err != nil {
		return nil, fmt.Errorf("cache initial snapshot: %w", err)
	}
	if err := s.cache.SetTurnTimer(ctx, matchID, turn.Deadline); err != nil {
		return nil, fmt.Errorf("set turn timer: %w", err)
	}

	return s.matchRepo.FindByID(ctx, matchID)
}

// GetMatch returns a match by ID.
func (s *MatchService) GetMatch(ctx context.Context, matchID string) (*model.Match, error) {
	match, err := s.matchRepo.FindByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, ErrMatchNotFound
	}
	return match, nil
}

// ListMatches returns open matches, the user's matches, or finished ones.
func (s *MatchService) ListMatches(ctx context.Context, userID string, filter string) ([]model.Match, error) {
	switch filter {
	case "my":
		return s.matchRepo.ListByUser(ctx, userID)
	case "finished":
		return s.matchRepo.ListFinished(ctx)
	default:
		return s.matchRepo.ListOpen(ctx)
	}
}

// DeleteMatch removes a waiting match. Only the creator can delete.
func (s *MatchService) DeleteMatch(ctx context.Context, matchID, userID string) error {
	match, err := s.matchRepo.FindByID(ctx, matchID)
	if err != nil {
		return err
	}
	if match == nil {
		return ErrMatchNotFound
	}
	if match.Status != "waiting" {
		return ErrMatchNotWaiting
	}
	if match.CreatorID != userID {
		return ErrNotCreator
	}
	return s.matchRepo.Delete(ctx, matchID)
}

// StopMatch ends an active match without a winner. Only the creator can stop.
func (s *MatchService) StopMatch(ctx context.Context, matchID, userID string) (*model.Match, error) {
	match, err := s.matchRepo.FindByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, ErrMatchNotFound
	}
	if match.Status != "active" {
		return nil, ErrMatchNotActive
	}
	if match.CreatorID != userID {
		return nil, ErrNotCreator
	}
	if err := s.matchRepo.SetFinished(ctx, matchID, ""); err != nil {
		return nil, err
	}
	if err := s.cache.DeleteMatchData(ctx, matchID); err != nil {
		return nil, err
	}
	return s.matchRepo.FindByID(ctx, matchID)
}

// toPgInterval converts Go-style duration strings (e.g. "5m", "1h") to
// PostgreSQL interval format. Returns defaultVal if input is empty or
// unparseable.
func toPgInterval(s, defaultVal string) string {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	totalSeconds := int(d.Seconds())
	if totalSeconds < 60 {
		return fmt.Sprintf("%d seconds", totalSeconds)
	}
	return fmt.Sprintf("%d minutes", totalSeconds/60)
}

// parseDuration converts Postgres interval strings like "24:00:00" or Go
// duration strings like "5m" to time.Duration.
func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d
	}
	// Try HH:MM:SS format from PostgreSQL
	parts := strings.Split(s, ":")
	if len(parts) == 3 {
		h, e1 := strconv.Atoi(parts[0])
		m, e2 := strconv.Atoi(parts[1])
		sec, e3 := strconv.Atoi(parts[2])
		if e1 == nil && e2 == nil && e3 == nil {
			return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second
		}
	}
	return 24 * time.Hour
}
