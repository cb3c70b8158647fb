package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/freeeve/measured-violence/internal/model"
)

type mockMatchRepo struct {
	matches map[string]*model.Match
	players map[string][]model.MatchPlayer
}

func newMockMatchRepo() *mockMatchRepo {
	return &mockMatchRepo{
		matches: make(map[string]*model.Match),
		players: make(map[string][]model.MatchPlayer),
	}
}

func (m *mockMatchRepo) Create(_ context.Context, name, creatorID string, seed int64, turnDur, decisionDur string) (*model.Match, error) {
	match := &model.Match{
		ID:               fmt.Sprintf("match-%d", len(m.matches)+1),
		Name:             name,
		CreatorID:        creatorID,
		Status:           "waiting",
		Seed:             seed,
		TurnDuration:     turnDur,
		DecisionDuration: decisionDur,
		CreatedAt:        time.Now(),
	}
	m.matches[match.ID] = match
	return match, nil
}

func (m *mockMatchRepo) FindByID(_ context.Context, id string) (*model.Match, error) {
	match, ok := m.matches[id]
	if !ok {
		return nil, nil
	}
	cp := *match
	cp.Players = m.players[id]
	return &cp, nil
}

func (m *mockMatchRepo) ListOpen(_ context.Context) ([]model.Match, error) {
	var result []model.Match
	for _, match := range m.matches {
		if match.Status == "waiting" {
			result = append(result, *match)
		}
	}
	return result, nil
}

func (m *mockMatchRepo) ListByUser(_ context.Context, userID string) ([]model.Match, error) {
	seen := make(map[string]bool)
	var result []model.Match
	for matchID, players := range m.players {
		for _, p := range players {
			if p.UserID == userID && !seen[matchID] {
				if match, ok := m.matches[matchID]; ok {
					result = append(result, *match)
					seen[matchID] = true
				}
			}
		}
	}
	return result, nil
}

func (m *mockMatchRepo) ListFinished(_ context.Context) ([]model.Match, error) {
	var result []model.Match
	for _, match := range m.matches {
		if match.Status == "finished" {
			cp := *match
			cp.Players = m.players[match.ID]
			result = append(result, cp)
		}
	}
	return result, nil
}

func (m *mockMatchRepo) ListActive(_ context.Context) ([]model.Match, error) {
	var result []model.Match
	for _, match := range m.matches {
		if match.Status == "active" {
			cp := *match
			cp.Players = m.players[match.ID]
			result = append(result, cp)
		}
	}
	return result, nil
}

func (m *mockMatchRepo) Join(_ context.Context, matchID, userID string) error {
	m.players[matchID] = append(m.players[matchID], model.MatchPlayer{
		MatchID:  matchID,
		UserID:   userID,
		JoinedAt: time.Now(),
	})
	return nil
}

func (m *mockMatchRepo) PlayerCount(_ context.Context, matchID string) (int, error) {
	return len(m.players[matchID]), nil
}

func (m *mockMatchRepo) AssignSides(_ context.Context, matchID string, sides map[string]string) error {
	players := m.players[matchID]
	for i := range players {
		if side, ok := sides[players[i].UserID]; ok {
			players[i].Side = side
		}
	}
	m.players[matchID] = players
	if match, ok := m.matches[matchID]; ok {
		match.Status = "active"
		now := time.Now()
		match.StartedAt = &now
	}
	return nil
}

func (m *mockMatchRepo) SetFinished(_ context.Context, matchID, winner string) error {
	if match, ok := m.matches[matchID]; ok {
		match.Status = "finished"
		match.Winner = winner
	}
	return nil
}

func (m *mockMatchRepo) Delete(_ context.Context, matchID string) error {
	delete(m.matches, matchID)
	delete(m.players, matchID)
	return nil
}

type mockTurnRepo struct {
	turns   []*model.Turn
	actions map[string][]model.ActionRecord
	seq     int
}

func newMockTurnRepo() *mockTurnRepo {
	return &mockTurnRepo{actions: make(map[string][]model.ActionRecord)}
}

func (m *mockTurnRepo) CreateTurn(_ context.Context, matchID string, battleRound, turnNumber int, phase string, stateBefore json.RawMessage, deadline time.Time) (*model.Turn, error) {
	m.seq++
	t := &model.Turn{
		ID:          fmt.Sprintf("turn-%d", m.seq),
		MatchID:     matchID,
		BattleRound: battleRound,
		TurnNumber:  turnNumber,
		Phase:       phase,
		StateBefore: stateBefore,
		Deadline:    deadline,
		CreatedAt:   time.Now(),
	}
	m.turns = append(m.turns, t)
	return t, nil
}

func (m *mockTurnRepo) CurrentTurn(_ context.Context, matchID string) (*model.Turn, error) {
	for i := len(m.turns) - 1; i >= 0; i-- {
		t := m.turns[i]
		if t.MatchID == matchID && t.ResolvedAt == nil {
			return t, nil
		}
	}
	return nil, nil
}

func (m *mockTurnRepo) ListTurns(_ context.Context, matchID string) ([]model.Turn, error) {
	var result []model.Turn
	for _, t := range m.turns {
		if t.MatchID == matchID {
			result = append(result, *t)
		}
	}
	return result, nil
}

func (m *mockTurnRepo) ResolveTurn(_ context.Context, turnID string, stateAfter json.RawMessage) error {
	for _, t := range m.turns {
		if t.ID == turnID {
			t.StateAfter = stateAfter
			now := time.Now()
			t.ResolvedAt = &now
			return nil
		}
	}
	return nil
}

func (m *mockTurnRepo) SaveAction(_ context.Context, rec *model.ActionRecord) (*model.ActionRecord, error) {
	saved := *rec
	saved.ID = fmt.Sprintf("action-%s-%d", rec.TurnID, rec.Seq)
	saved.CreatedAt = time.Now()
	m.actions[rec.TurnID] = append(m.actions[rec.TurnID], saved)
	return &saved, nil
}

func (m *mockTurnRepo) ActionsByTurn(_ context.Context, turnID string) ([]model.ActionRecord, error) {
	return m.actions[turnID], nil
}

func (m *mockTurnRepo) ListExpired(_ context.Context) ([]model.Turn, error) {
	var result []model.Turn
	now := time.Now()
	for _, t := range m.turns {
		if t.ResolvedAt == nil && t.Deadline.Before(now) {
			result = append(result, *t)
		}
	}
	return result, nil
}

// mockCache implements repository.MatchCache for testing.
type mockCache struct {
	states    map[string]json.RawMessage
	seqs      map[string]int64
	timers    map[string]time.Time
	decisions map[string]time.Time
}

func newMockCache() *mockCache {
	return &mockCache{
		states:    make(map[string]json.RawMessage),
		seqs:      make(map[string]int64),
		timers:    make(map[string]time.Time),
		decisions: make(map[string]time.Time),
	}
}

func (c *mockCache) SetSnapshot(_ context.Context, matchID string, state json.RawMessage) error {
	c.states[matchID] = state
	return nil
}

func (c *mockCache) GetSnapshot(_ context.Context, matchID string) (json.RawMessage, error) {
	return c.states[matchID], nil
}

func (c *mockCache) NextSeq(_ context.Context, matchID string) (int64, error) {
	c.seqs[matchID]++
	return c.seqs[matchID], nil
}

func (c *mockCache) SetTurnTimer(_ context.Context, matchID string, deadline time.Time) error {
	c.timers[matchID] = deadline
	return nil
}

func (c *mockCache) ClearTurnTimer(_ context.Context, matchID string) error {
	delete(c.timers, matchID)
	return nil
}

func (c *mockCache) SetDecisionTimer(_ context.Context, matchID string, deadline time.Time) error {
	c.decisions[matchID] = deadline
	return nil
}

func (c *mockCache) ClearDecisionTimer(_ context.Context, matchID string) error {
	delete(c.decisions, matchID)
	return nil
}

func (c *mockCache) DeleteMatchData(_ context.Context, matchID string) error {
	delete(c.states, matchID)
	delete(c.seqs, matchID)
	delete(c.timers, matchID)
	delete(c.decisions, matchID)
	return nil
}

// recordingBroadcaster captures broadcast events for assertions.
type recordingBroadcaster struct {
	events []broadcastEvent
}

type broadcastEvent struct {
	MatchID string
	Type    string
	Data    any
}

func (b *recordingBroadcaster) BroadcastMatchEvent(matchID, eventType string, data any) {
	b.events = append(b.events, broadcastEvent{MatchID: matchID, Type: eventType, Data: data})
}

func (b *recordingBroadcaster) has(eventType string) bool {
	for _, e := range b.events {
		if e.Type == eventType {
			return true
		}
	}
	return false
}
