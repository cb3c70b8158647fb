package skirmish

import "testing"

func undeployedUnit(id, player string, models int) *Unit {
	u := testUnitAt(id, player, 0, 0, models, 2)
	u.Status = StatusUndeployed
	for i := range u.Models {
		u.Models[i].Position = nil
	}
	return u
}

func TestDeploymentInsideZone(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	u := undeployedUnit("a1", "p1", 2)
	gs := testState(PhaseDeployment, u)

	outside := Action{Type: ActionDeployUnit, Player: "p1", UnitID: "a1",
		Positions: []Position{{X: 5, Y: 15}, {X: 6.5, Y: 15}}}
	if v := e.ValidateAction(gs, outside); v.Valid {
		t.Error("deployment outside the zone must be rejected")
	}

	mustProcess(t, e, gs, Action{Type: ActionDeployUnit, Player: "p1", UnitID: "a1",
		Positions: []Position{{X: 5, Y: 5}, {X: 6.5, Y: 5}}})
	if u.Status != StatusDeployed {
		t.Errorf("status = %s, want deployed", u.Status)
	}
	if u.Models[0].Position == nil || u.Models[0].Position.X != 5 {
		t.Errorf("position not written: %+v", u.Models[0].Position)
	}
}

func TestDeployToReservesNeedsKeyword(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	u := undeployedUnit("a1", "p1", 2)
	gs := testState(PhaseDeployment, u)

	toReserves := Action{Type: ActionDeployUnit, Player: "p1", UnitID: "a1", ToReserves: true}
	if v := e.ValidateAction(gs, toReserves); v.Valid {
		t.Error("unit without the reserve keyword must deploy on the board")
	}

	u.Meta.Keywords = append(u.Meta.Keywords, KwDeepStrike)
	mustProcess(t, e, gs, toReserves)
	if u.Status != StatusReserves {
		t.Errorf("status = %s, want reserves", u.Status)
	}
}

func TestEndDeploymentRequiresAllUnitsPlaced(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	u1 := undeployedUnit("a1", "p1", 2)
	u2 := undeployedUnit("b1", "p2", 2)
	gs := testState(PhaseDeployment, u1, u2)

	if v := e.ValidateAction(gs, Action{Type: ActionEndDeployment, Player: "p1"}); v.Valid {
		t.Error("deployment must not end with undeployed units")
	}

	mustProcess(t, e, gs, Action{Type: ActionDeployUnit, Player: "p1", UnitID: "a1",
		Positions: []Position{{X: 5, Y: 5}, {X: 6.5, Y: 5}}})
	mustProcess(t, e, gs, Action{Type: ActionDeployUnit, Player: "p2", UnitID: "b1",
		Positions: []Position{{X: 5, Y: 25}, {X: 6.5, Y: 25}}})

	res := mustProcess(t, e, gs, Action{Type: ActionEndDeployment, Player: "p1"})
	if !res.PhaseComplete {
		t.Error("expected phase completion")
	}
	mustAdvance(t, e, gs)
	if gs.Meta.Phase != PhaseCommand {
		t.Errorf("phase = %s, want command after deployment", gs.Meta.Phase)
	}
}

func TestBattleShockTest(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	u := testUnitAt("a1", "p1", 5, 5, 5, 2)
	// 2 of 5 alive: below half strength.
	for i := 0; i < 3; i++ {
		u.Models[i].Alive = false
		u.Models[i].CurrentWounds = 0
	}
	healthy := testUnitAt("a2", "p1", 15, 5, 5, 2)
	gs := testState(PhaseMorale, u, healthy)

	if v := e.ValidateAction(gs, Action{Type: ActionBattleShock, Player: "p1", UnitID: "a2"}); v.Valid {
		t.Error("unit at full strength must not test")
	}
	if v := e.ValidateAction(gs, Action{Type: ActionEndMorale, Player: "p1"}); v.Valid {
		t.Error("morale phase must not end before required tests")
	}

	res := mustProcess(t, e, gs, Action{Type: ActionBattleShock, Player: "p1", UnitID: "a1"})
	if !u.Flags[FlagShockTested] {
		t.Error("shock_tested flag not set")
	}
	if len(res.Dice) != 1 {
		t.Fatalf("expected one 2d6 record, got %d", len(res.Dice))
	}
	total := res.Dice[0].Successes
	if shocked := u.Flags[FlagBattleShocked]; shocked != (total < u.Meta.Leadership) {
		t.Errorf("battle_shocked = %v with roll %d vs Ld %d", shocked, total, u.Meta.Leadership)
	}

	mustProcess(t, e, gs, Action{Type: ActionEndMorale, Player: "p1"})
}

func TestScoringAwardsObjectives(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	holder := testUnitAt("a1", "p1", 10, 15, 5, 2) // OC 2 each, on the objective
	contester := testUnitAt("b1", "p2", 11, 15, 1, 2)
	gs := testState(PhaseScoring, holder, contester)
	gs.Board.Objectives = []Objective{{ID: "obj", Position: Position{X: 10, Y: 15}, Radius: 3}}

	mustProcess(t, e, gs, Action{Type: ActionEndScoring, Player: "p1"})
	if got := gs.Players["p1"].VictoryPoints; got != 5 {
		t.Errorf("victory points = %d, want 5 (10 OC vs 2)", got)
	}
	if gs.Players["p2"].VictoryPoints != 0 {
		t.Error("inactive player must not score this phase")
	}
}

func TestBattleShockedUnitsDoNotControl(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	holder := testUnitAt("a1", "p1", 10, 15, 5, 2)
	holder.Flags[FlagBattleShocked] = true
	contester := testUnitAt("b1", "p2", 11, 15, 1, 2)
	gs := testState(PhaseScoring, holder, contester)
	gs.Board.Objectives = []Objective{{ID: "obj", Position: Position{X: 10, Y: 15}, Radius: 3}}

	mustProcess(t, e, gs, Action{Type: ActionEndScoring, Player: "p1"})
	if got := gs.Players["p1"].VictoryPoints; got != 0 {
		t.Errorf("victory points = %d, want 0 (shocked units have no control)", got)
	}
}

func TestScoringCapPerPhase(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	units := []*Unit{
		testUnitAt("a1", "p1", 5, 15, 5, 2),
		testUnitAt("a2", "p1", 20, 15, 5, 2),
		testUnitAt("a3", "p1", 31, 15, 5, 2),
		testUnitAt("a4", "p1", 36, 10, 5, 2),
	}
	gs := testState(PhaseScoring, units...)
	gs.Board.Objectives = []Objective{
		{ID: "o1", Position: Position{X: 6, Y: 15}, Radius: 3},
		{ID: "o2", Position: Position{X: 21, Y: 15}, Radius: 3},
		{ID: "o3", Position: Position{X: 32, Y: 15}, Radius: 3},
		{ID: "o4", Position: Position{X: 37, Y: 10}, Radius: 3},
	}

	mustProcess(t, e, gs, Action{Type: ActionEndScoring, Player: "p1"})
	if got := gs.Players["p1"].VictoryPoints; got != e.Config().ObjectiveVPCap {
		t.Errorf("victory points = %d, want capped at %d", got, e.Config().ObjectiveVPCap)
	}
}

func TestEffectExpiryBoundaries(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	gs := testState(PhaseShooting, testUnitAt("a1", "p1", 5, 5, 5, 2))
	gs.Effects = []ActiveEffect{
		{SourceID: "s1", TargetUnit: "a1", Entries: []EffectEntry{{Type: EffectHitBonus, Value: 1}}, Expiry: ExpiryEndOfPhase},
		{SourceID: "s2", TargetUnit: "a1", Entries: []EffectEntry{{Type: EffectCover}}, Expiry: ExpiryEndOfTurn},
		{SourceID: "s3", TargetUnit: "a1", Entries: []EffectEntry{{Type: EffectFeelNoPain, Value: 6}}, Expiry: ExpiryEndOfBattle},
	}

	mustProcess(t, e, gs, Action{Type: ActionEndShooting, Player: "p1"})
	mustAdvance(t, e, gs) // shooting -> charge: end_of_phase clears
	if len(gs.Effects) != 2 {
		t.Fatalf("effects after phase exit = %d, want 2", len(gs.Effects))
	}

	for gs.Meta.Phase != PhaseScoring {
		skipAll(t, e, gs)
		mustProcess(t, e, gs, Action{Type: endAction(gs.Meta.Phase), Player: "p1"})
		mustAdvance(t, e, gs)
	}
	mustProcess(t, e, gs, Action{Type: ActionEndScoring, Player: "p1"})
	mustAdvance(t, e, gs) // turn hands over: end_of_turn clears
	if len(gs.Effects) != 1 {
		t.Fatalf("effects after turn end = %d, want 1", len(gs.Effects))
	}
	if gs.Effects[0].SourceID != "s3" {
		t.Errorf("surviving effect = %s, want the end-of-battle one", gs.Effects[0].SourceID)
	}
}
