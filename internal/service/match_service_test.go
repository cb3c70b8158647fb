package service

import (
	"context"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"24h", 24 * time.Hour},
		{"12h", 12 * time.Hour},
		{"1h30m", 90 * time.Minute},
		{"", 24 * time.Hour},
		{"24:00:00", 24 * time.Hour},
		{"00:05:00", 5 * time.Minute},
		{"bogus", 24 * time.Hour},
	}
	for _, tt := range tests {
		got := parseDuration(tt.input)
		if got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestToPgInterval(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "24 hours"},
		{"48h", "2880 minutes"},
		{"5m", "5 minutes"},
		{"30s", "30 seconds"},
		{"bogus", "24 hours"},
	}
	for _, tt := range tests {
		got := toPgInterval(tt.input, "24 hours")
		if got != tt.want {
			t.Errorf("toPgInterval(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func newTestMatchService() (*MatchService, *mockMatchRepo, *mockTurnRepo, *mockCache) {
	matchRepo := newMockMatchRepo()
	turnRepo := newMockTurnRepo()
	cache := newMockCache()
	svc := NewMatchService(matchRepo, turnRepo, cache, "24h", "5m")
	return svc, matchRepo, turnRepo, cache
}

func TestCreateMatch(t *testing.T) {
	svc, matchRepo, _, _ := newTestMatchService()

	match, err := svc.CreateMatch(context.Background(), "Test Match", "user-1", 42, "", "")
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	if match.Name != "Test Match" {
		t.Errorf("expected name 'Test Match', got %s", match.Name)
	}
	if match.Status != "waiting" {
		t.Errorf("expected status 'waiting', got %s", match.Status)
	}
	if match.Seed != 42 {
		t.Errorf("expected seed 42, got %d", match.Seed)
	}
	if match.TurnDuration != "1440 minutes" {
		t.Errorf("expected default turn duration '1440 minutes', got %s", match.TurnDuration)
	}

	// Creator auto-joined
	players := matchRepo.players[match.ID]
	if len(players) != 1 || players[0].UserID != "user-1" {
		t.Errorf("expected creator joined, got %+v", players)
	}
}

func TestCreateMatchRandomSeed(t *testing.T) {
	svc, _, _, _ := newTestMatchService()

	match, err := svc.CreateMatch(context.Background(), "Seeded", "user-1", 0, "", "")
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	if match.Seed == 0 {
		t.Error("expected a random seed to replace zero")
	}
}

func TestJoinMatch(t *testing.T) {
	svc, matchRepo, _, _ := newTestMatchService()
	match, _ := svc.CreateMatch(context.Background(), "Test", "user-1", 1, "", "")

	if err := svc.JoinMatch(context.Background(), match.ID, "user-2"); err != nil {
		t.Fatalf("JoinMatch: %v", err)
	}
	if len(matchRepo.players[match.ID]) != 2 {
		t.Fatalf("expected 2 players, got %d", len(matchRepo.players[match.ID]))
	}
}

func TestJoinMatchNotFound(t *testing.T) {
	svc, _, _, _ := newTestMatchService()

	if err := svc.JoinMatch(context.Background(), "nonexistent", "user-1"); err != ErrMatchNotFound {
		t.Errorf("expected ErrMatchNotFound, got %v", err)
	}
}

func TestJoinMatchAlreadyJoined(t *testing.T) {
	svc, _, _, _ := newTestMatchService()
	match, _ := svc.CreateMatch(context.Background(), "Test", "user-1", 1, "", "")

	if err := svc.JoinMatch(context.Background(), match.ID, "user-1"); err != ErrAlreadyJoined {
		t.Errorf("expected ErrAlreadyJoined, got %v", err)
	}
}

func TestJoinMatchFull(t *testing.T) {
	svc, _, _, _ := newTestMatchService()
	match, _ := svc.CreateMatch(context.Background(), "Test", "user-1", 1, "", "")
	if err := svc.JoinMatch(context.Background(), match.ID, "user-2"); err != nil {
		t.Fatalf("JoinMatch: %v", err)
	}

	if err := svc.JoinMatch(context.Background(), match.ID, "user-3"); err != ErrMatchFull {
		t.Errorf("expected ErrMatchFull, got %v", err)
	}
}

func TestStartMatch(t *testing.T) {
	svc, matchRepo, turnRepo, cache := newTestMatchService()
	match, _ := svc.CreateMatch(context.Background(), "Test", "user-1", 7, "", "")
	svc.JoinMatch(context.Background(), match.ID, "user-2")

	started, err := svc.StartMatch(context.Background(), match.ID, "user-1")
	if err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	if started.Status != "active" {
		t.Errorf("expected status 'active', got %s", started.Status)
	}

	// Both players got sides, one attacker one defender.
	sides := map[string]int{}
	for _, p := range matchRepo.players[match.ID] {
		sides[p.Side]++
	}
	if sides[SideAttacker] != 1 || sides[SideDefender] != 1 {
		t.Errorf("expected one attacker and one defender, got %v", sides)
	}

	// First turn row created in deployment with a deadline.
	turn, _ := turnRepo.CurrentTurn(context.Background(), match.ID)
	if turn == nil {
		t.Fatal("expected an unresolved turn after start")
	}
	if turn.Phase != "deployment" || turn.BattleRound != 1 || turn.TurnNumber != 1 {
		t.Errorf("unexpected first turn: %+v", turn)
	}
	if !turn.Deadline.After(time.Now()) {
		t.Error("expected a future deadline")
	}

	// Snapshot cached and turn timer set.
	if cache.states[match.ID] == nil {
		t.Error("expected cached snapshot")
	}
	if _, ok := cache.timers[match.ID]; !ok {
		t.Error("expected turn timer set")
	}
}

func TestStartMatchRequiresTwoPlayers(t *testing.T) {
	svc, _, _, _ := newTestMatchService()
	match, _ := svc.CreateMatch(context.Background(), "Test", "user-1", 1, "", "")

	if _, err := svc.StartMatch(context.Background(), match.ID, "user-1"); err != ErrNotEnough {
		t.Errorf("expected ErrNotEnough, got %v", err)
	}
}

func TestStartMatchOnlyCreator(t *testing.T) {
	svc, _, _, _ := newTestMatchService()
	match, _ := svc.CreateMatch(context.Background(), "Test", "user-1", 1, "", "")
	svc.JoinMatch(context.Background(), match.ID, "user-2")

	if _, err := svc.StartMatch(context.Background(), match.ID, "user-2"); err != ErrNotCreator {
		t.Errorf("expected ErrNotCreator, got %v", err)
	}
}

func TestDeleteMatchOnlyWaiting(t *testing.T) {
	svc, _, _, _ := newTestMatchService()
	match, _ := svc.CreateMatch(context.Background(), "Test", "user-1", 1, "", "")
	svc.JoinMatch(context.Background(), match.ID, "user-2")
	svc.StartMatch(context.Background(), match.ID, "user-1")

	if err := svc.DeleteMatch(context.Background(), match.ID, "user-1"); err != ErrMatchNotWaiting {
		t.Errorf("expected ErrMatchNotWaiting, got %v", err)
	}
}

func TestStopMatch(t *testing.T) {
	svc, _, _, cache := newTestMatchService()
	match, _ := svc.CreateMatch(context.Background(), "Test", "user-1", 1, "", "")
	svc.JoinMatch(context.Background(), match.ID, "user-2")
	svc.StartMatch(context.Background(), match.ID, "user-1")

	stopped, err := svc.StopMatch(context.Background(), match.ID, "user-1")
	if err != nil {
		t.Fatalf("StopMatch: %v", err)
	}
	if stopped.Status != "finished" {
		t.Errorf("expected status 'finished', got %s", stopped.Status)
	}
	if cache.states[match.ID] != nil {
		t.Error("expected cached data deleted")
	}
}
