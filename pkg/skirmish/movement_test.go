package skirmish

import "testing"

// positionsFor builds a destination list shifting every living model of
// the unit by (dx, dy).
func positionsFor(u *Unit, dx, dy float64) []Position {
	var out []Position
	for i := range u.Models {
		if !u.Models[i].Alive {
			continue
		}
		p := *u.Models[i].Position
		out = append(out, Position{X: p.X + dx, Y: p.Y + dy})
	}
	return out
}

func TestMoveWithinAllowance(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	u := testUnitAt("a1", "p1", 5, 5, 5, 2)
	gs := testState(PhaseMovement, u, testUnitAt("b1", "p2", 5, 25, 5, 2))

	mustProcess(t, e, gs, Action{Type: ActionMoveUnit, Player: "p1", UnitID: "a1", Positions: positionsFor(u, 0, 5)})
	if !u.Flags[FlagMoved] {
		t.Error("moved flag not set")
	}
	if u.Models[0].Position.Y != 10 {
		t.Errorf("model 0 at y=%v, want 10", u.Models[0].Position.Y)
	}
}

func TestMoveBeyondAllowanceRejected(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	u := testUnitAt("a1", "p1", 5, 5, 5, 2) // M6
	gs := testState(PhaseMovement, u, testUnitAt("b1", "p2", 5, 25, 5, 2))

	v := e.ValidateAction(gs, Action{Type: ActionMoveUnit, Player: "p1", UnitID: "a1", Positions: positionsFor(u, 0, 7)})
	if v.Valid {
		t.Error("7\" move with M6 must be rejected")
	}
}

func TestMoveCannotEnterEngagementRange(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	u := testUnitAt("a1", "p1", 5, 5, 1, 2)
	enemy := testUnitAt("b1", "p2", 5, 10, 1, 2)
	gs := testState(PhaseMovement, u, enemy)

	v := e.ValidateAction(gs, Action{Type: ActionMoveUnit, Player: "p1", UnitID: "a1", Positions: []Position{{X: 5, Y: 9.5}}})
	if v.Valid {
		t.Error("a normal move must not end within engagement range")
	}
}

func TestMoveBreakingCoherencyRejected(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	u := testUnitAt("a1", "p1", 5, 5, 2, 2)
	gs := testState(PhaseMovement, u, testUnitAt("b1", "p2", 5, 25, 2, 2))

	v := e.ValidateAction(gs, Action{Type: ActionMoveUnit, Player: "p1", UnitID: "a1",
		Positions: []Position{{X: 5, Y: 8}, {X: 11, Y: 8}}})
	if v.Valid {
		t.Error("move breaking coherency must be rejected")
	}
}

func TestEngagedUnitMayOnlyFallBack(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	u := testUnitAt("a1", "p1", 5, 5, 1, 2)
	enemy := testUnitAt("b1", "p2", 5, 6.5, 1, 2) // 0.5" apart base to base
	gs := testState(PhaseMovement, u, enemy)

	v := e.ValidateAction(gs, Action{Type: ActionMoveUnit, Player: "p1", UnitID: "a1", Positions: []Position{{X: 5, Y: 3}}})
	if v.Valid {
		t.Error("engaged unit must not make a normal move")
	}
	mustProcess(t, e, gs, Action{Type: ActionFallBack, Player: "p1", UnitID: "a1", Positions: []Position{{X: 5, Y: 3}}})
	if !u.Flags[FlagFellBack] {
		t.Error("fell_back flag not set")
	}
}

func TestFallBackRequiresEngagement(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	u := testUnitAt("a1", "p1", 5, 5, 1, 2)
	gs := testState(PhaseMovement, u, testUnitAt("b1", "p2", 5, 25, 1, 2))

	v := e.ValidateAction(gs, Action{Type: ActionFallBack, Player: "p1", UnitID: "a1", Positions: []Position{{X: 5, Y: 3}}})
	if v.Valid {
		t.Error("fall back requires starting in engagement range")
	}
}

func TestAdvanceSetsBothFlags(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	u := testUnitAt("a1", "p1", 5, 5, 5, 2)
	gs := testState(PhaseMovement, u, testUnitAt("b1", "p2", 5, 25, 5, 2))

	// Destination within the base move, so any advance roll carries it.
	mustProcess(t, e, gs, Action{Type: ActionAdvance, Player: "p1", UnitID: "a1", Positions: positionsFor(u, 0, 6)})
	if !u.Flags[FlagMoved] || !u.Flags[FlagAdvanced] {
		t.Errorf("flags = %v, want moved and advanced", u.Flags)
	}
}

func TestUnitMovesOnceRejectsSecondMove(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	u := testUnitAt("a1", "p1", 5, 5, 5, 2)
	gs := testState(PhaseMovement, u, testUnitAt("b1", "p2", 5, 25, 5, 2))

	mustProcess(t, e, gs, Action{Type: ActionMoveUnit, Player: "p1", UnitID: "a1", Positions: positionsFor(u, 0, 3)})
	v := e.ValidateAction(gs, Action{Type: ActionMoveUnit, Player: "p1", UnitID: "a1", Positions: positionsFor(u, 0, 2)})
	if v.Valid {
		t.Error("a unit may only move once per movement phase")
	}
}

func TestEndMovementBlockedByUnactedUnits(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	u := testUnitAt("a1", "p1", 5, 5, 5, 2)
	gs := testState(PhaseMovement, u, testUnitAt("b1", "p2", 5, 25, 5, 2))

	if v := e.ValidateAction(gs, Action{Type: ActionEndMovement, Player: "p1"}); v.Valid {
		t.Error("phase must not end while units have not acted or been skipped")
	}
	mustProcess(t, e, gs, Action{Type: ActionSkipUnit, Player: "p1", UnitID: "a1"})
	res := mustProcess(t, e, gs, Action{Type: ActionEndMovement, Player: "p1"})
	if !res.PhaseComplete {
		t.Error("expected phase completion")
	}
}

func TestTallTerrainTaxesPath(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	u := testUnitAt("a1", "p1", 5, 5, 1, 2)
	gs := testState(PhaseMovement, u, testUnitAt("b1", "p2", 5, 25, 1, 2))
	gs.Board.Terrain = []TerrainFeature{
		{ID: "wall", Footprint: Rect{X: 0, Y: 7, W: 44, H: 1}, Height: 3},
	}

	// 5" straight move crossing a 3"-tall wall costs 5 + 2*3 = 11 > M6.
	v := e.ValidateAction(gs, Action{Type: ActionMoveUnit, Player: "p1", UnitID: "a1", Positions: []Position{{X: 5, Y: 10}}})
	if v.Valid {
		t.Error("crossing tall terrain must add climbing cost")
	}

	// A flyer ignores the wall.
	u.Meta.Keywords = append(u.Meta.Keywords, KwFly)
	v = e.ValidateAction(gs, Action{Type: ActionMoveUnit, Player: "p1", UnitID: "a1", Positions: []Position{{X: 5, Y: 10}}})
	if !v.Valid {
		t.Errorf("flyer should ignore terrain height: %v", v.Errors)
	}
}

func TestReserveArrival(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	u := testUnitAt("a1", "p1", 5, 5, 3, 2)
	u.Status = StatusReserves
	for i := range u.Models {
		u.Models[i].Position = nil
	}
	u.Meta.Keywords = append(u.Meta.Keywords, KwDeepStrike)
	enemy := testUnitAt("b1", "p2", 5, 25, 3, 2)
	gs := testState(PhaseMovement, u, enemy)

	arrive := Action{Type: ActionDeployUnit, Player: "p1", UnitID: "a1",
		Positions: []Position{{X: 20, Y: 5}, {X: 21.5, Y: 5}, {X: 23, Y: 5}}}

	if v := e.ValidateAction(gs, arrive); v.Valid {
		t.Error("reserves must not arrive in battle round 1")
	}
	gs.Meta.BattleRound = 2

	tooClose := arrive
	tooClose.Positions = []Position{{X: 5, Y: 20}, {X: 6.5, Y: 20}, {X: 8, Y: 20}}
	if v := e.ValidateAction(gs, tooClose); v.Valid {
		t.Error("reserves must respect the clearance distance from enemies")
	}

	mustProcess(t, e, gs, arrive)
	if u.Status != StatusDeployed {
		t.Errorf("status = %s, want deployed", u.Status)
	}
	if !u.Flags[FlagMoved] {
		t.Error("arriving reserves count as having moved")
	}
}
