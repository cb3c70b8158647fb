package skirmish

import "testing"

func catalogEngine() *Engine {
	return NewEngine(DefaultConfig(), DefaultStratagems())
}

func TestUseStratagemDeductsCP(t *testing.T) {
	e := catalogEngine()
	gs := testState(PhaseCommand, testUnitAt("a1", "p1", 5, 5, 5, 2))
	gs.Units["a1"].Models[0].CurrentWounds = 1

	mustProcess(t, e, gs, Action{Type: ActionUseStratagem, Player: "p1", StratagemID: "field_triage", StratagemTarget: "a1"})
	if got := gs.Players["p1"].CommandPoints; got != 2 {
		t.Errorf("command points = %d, want 2 after paying 1", got)
	}
	if gs.Units["a1"].Models[0].CurrentWounds != 2 {
		t.Errorf("heal not applied: %d wounds", gs.Units["a1"].Models[0].CurrentWounds)
	}
}

func TestStratagemRejectedWithoutCP(t *testing.T) {
	e := catalogEngine()
	gs := testState(PhaseCommand, testUnitAt("a1", "p1", 5, 5, 5, 2))
	gs.Players["p1"].CommandPoints = 0

	res, err := e.ProcessAction(gs, Action{Type: ActionUseStratagem, Player: "p1", StratagemID: "field_triage", StratagemTarget: "a1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid {
		t.Error("stratagem must be rejected when unaffordable")
	}
}

func TestOncePerBattleScope(t *testing.T) {
	e := catalogEngine()
	gs := testState(PhaseCommand,
		testUnitAt("a1", "p1", 5, 5, 5, 2),
		testUnitAt("b1", "p2", 5, 25, 5, 2),
	)
	gs.Players["p1"].CommandPoints = 10

	use := Action{Type: ActionUseStratagem, Player: "p1", StratagemID: "orbital_strike", StratagemTarget: "b1"}
	mustProcess(t, e, gs, use)

	res, err := e.ProcessAction(gs, use)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid {
		t.Error("once-per-battle stratagem allowed twice")
	}

	// Still blocked in a later turn.
	gs.Meta.TurnNumber = 3
	res, _ = e.ProcessAction(gs, use)
	if res.Valid {
		t.Error("once-per-battle must span turns")
	}
}

func TestOncePerTurnRecursNextTurn(t *testing.T) {
	e := catalogEngine()
	gs := testState(PhaseMovement, testUnitAt("a1", "p1", 5, 5, 5, 2))
	gs.Players["p1"].CommandPoints = 10

	use := Action{Type: ActionUseStratagem, Player: "p1", StratagemID: "surge_forward", StratagemTarget: "a1"}
	mustProcess(t, e, gs, use)

	if res, _ := e.ProcessAction(gs, use); res.Valid {
		t.Error("once-per-turn stratagem allowed twice in one turn")
	}

	gs.Meta.TurnNumber = 3 // two turns later, p1's turn again
	if v := e.ValidateAction(gs, use); !v.Valid {
		t.Errorf("once-per-turn must recur on a later turn: %v", v.Errors)
	}
}

func TestStratagemTimingWindows(t *testing.T) {
	e := catalogEngine()
	gs := testState(PhaseShooting, testUnitAt("a1", "p1", 5, 5, 5, 2))

	// Movement-phase stratagem out of phase.
	v := e.ValidateAction(gs, Action{Type: ActionUseStratagem, Player: "p1", StratagemID: "surge_forward", StratagemTarget: "a1"})
	if v.Valid {
		t.Error("movement stratagem must be rejected in the shooting phase")
	}
	// Own-turn stratagem on the opponent's turn.
	v = e.ValidateAction(gs, Action{Type: ActionUseStratagem, Player: "p2", StratagemID: "focused_fire", StratagemTarget: "a1"})
	if v.Valid {
		t.Error("own-turn stratagem must be rejected for the inactive player")
	}
	// Reactive stratagems are never playable proactively.
	v = e.ValidateAction(gs, Action{Type: ActionUseStratagem, Player: "p1", StratagemID: "brace_for_impact", StratagemTarget: "a1"})
	if v.Valid {
		t.Error("reactive stratagem must not be playable outside its window")
	}
}

func TestStratagemTargetFilter(t *testing.T) {
	e := catalogEngine()
	gs := testState(PhaseCommand,
		testUnitAt("a1", "p1", 5, 5, 5, 2),
		testUnitAt("b1", "p2", 5, 25, 5, 2),
	)

	v := e.ValidateAction(gs, Action{Type: ActionUseStratagem, Player: "p1", StratagemID: "field_triage", StratagemTarget: "b1"})
	if v.Valid {
		t.Error("own-unit stratagem must not target an enemy")
	}
	v = e.ValidateAction(gs, Action{Type: ActionUseStratagem, Player: "p1", StratagemID: "field_triage"})
	if v.Valid {
		t.Error("targeted stratagem requires a target")
	}
}

func TestReactiveWindowSuspendsAndResumes(t *testing.T) {
	e := catalogEngine()
	attacker := testUnitAt("a1", "p1", 5, 5, 5, 2)
	defender := testUnitAt("b1", "p2", 5, 25, 5, 2)
	gs := testState(PhaseShooting, attacker, defender)

	shoot := Action{Type: ActionShoot, Player: "p1", UnitID: "a1", TargetUnitID: "b1"}
	res := mustProcess(t, e, gs, shoot)
	if !res.AwaitingDecision {
		t.Fatal("expected suspension for the defender's reactive window")
	}
	if gs.Pending == nil || gs.Pending.Decider != "p2" {
		t.Fatalf("pending decision not stored: %+v", gs.Pending)
	}
	if gs.Units["a1"].Flags[FlagHasShot] {
		t.Error("attack must not resolve before the decision")
	}

	// Any action except the reactive pair is rejected while suspended.
	if v := e.ValidateAction(gs, Action{Type: ActionEndShooting, Player: "p1"}); v.Valid {
		t.Error("non-reactive action accepted during suspension")
	}
	if v := e.ValidateAction(gs, Action{Type: ActionReactiveDecline, Player: "p1"}); v.Valid {
		t.Error("only the decider may respond")
	}

	cpBefore := gs.Players["p2"].CommandPoints
	res = mustProcess(t, e, gs, Action{Type: ActionReactiveUse, Player: "p2", StratagemID: "brace_for_impact", StratagemTarget: "b1"})
	if gs.Pending != nil {
		t.Error("pending decision must clear on resume")
	}
	if !gs.Units["a1"].Flags[FlagHasShot] {
		t.Error("suspended attack must resolve after the decision")
	}
	if got := gs.Players["p2"].CommandPoints; got != cpBefore-1 {
		t.Errorf("defender CP = %d, want %d", got, cpBefore-1)
	}
	if res.AwaitingDecision {
		t.Error("resumed result must not re-suspend")
	}
}

func TestReactiveDeclineResolvesAttack(t *testing.T) {
	e := catalogEngine()
	gs := testState(PhaseShooting,
		testUnitAt("a1", "p1", 5, 5, 5, 2),
		testUnitAt("b1", "p2", 5, 25, 5, 2),
	)

	mustProcess(t, e, gs, Action{Type: ActionShoot, Player: "p1", UnitID: "a1", TargetUnitID: "b1"})
	cpBefore := gs.Players["p2"].CommandPoints

	mustProcess(t, e, gs, Action{Type: ActionReactiveDecline, Player: "p2"})
	if gs.Pending != nil {
		t.Error("pending decision must clear on decline")
	}
	if !gs.Units["a1"].Flags[FlagHasShot] {
		t.Error("attack must resolve after decline")
	}
	if gs.Players["p2"].CommandPoints != cpBefore {
		t.Error("decline must not cost command points")
	}
}

func TestOncePerPhaseScopeAcrossWindows(t *testing.T) {
	e := catalogEngine()
	first := testUnitAt("a1", "p1", 5, 5, 5, 2)
	second := testUnitAt("a2", "p1", 10, 5, 5, 2)
	defender := testUnitAt("b1", "p2", 5, 25, 5, 2)
	gs := testState(PhaseShooting, first, second, defender)

	mustProcess(t, e, gs, Action{Type: ActionShoot, Player: "p1", UnitID: "a1", TargetUnitID: "b1"})
	mustProcess(t, e, gs, Action{Type: ActionReactiveUse, Player: "p2", StratagemID: "brace_for_impact", StratagemTarget: "b1"})

	// A second window in the same phase still opens for the remaining
	// reactives, but the once-per-phase entry is withheld.
	res := mustProcess(t, e, gs, Action{Type: ActionShoot, Player: "p1", UnitID: "a2", TargetUnitID: "b1"})
	if !res.AwaitingDecision {
		t.Fatal("expected a window for the remaining reactive stratagems")
	}
	for _, id := range gs.Pending.Offered {
		if id == "brace_for_impact" {
			t.Error("once-per-phase stratagem offered twice in one phase")
		}
	}
	v := e.ValidateAction(gs, Action{Type: ActionReactiveUse, Player: "p2", StratagemID: "brace_for_impact", StratagemTarget: "b1"})
	if v.Valid {
		t.Error("once-per-phase stratagem accepted twice in one phase")
	}
	mustProcess(t, e, gs, Action{Type: ActionReactiveDecline, Player: "p2"})

	// The same phase of a later turn is a new occurrence.
	gs.Meta.TurnNumber = 3
	first.Flags = map[string]bool{}
	res = mustProcess(t, e, gs, Action{Type: ActionShoot, Player: "p1", UnitID: "a1", TargetUnitID: "b1"})
	if !res.AwaitingDecision {
		t.Fatal("expected a reactive window in the later turn")
	}
	offered := false
	for _, id := range gs.Pending.Offered {
		if id == "brace_for_impact" {
			offered = true
		}
	}
	if !offered {
		t.Error("once-per-phase stratagem must recur in a later turn's phase")
	}
	mustProcess(t, e, gs, Action{Type: ActionReactiveUse, Player: "p2", StratagemID: "brace_for_impact", StratagemTarget: "b1"})
}

func TestNoWindowWithoutAffordableStratagem(t *testing.T) {
	e := catalogEngine()
	gs := testState(PhaseShooting,
		testUnitAt("a1", "p1", 5, 5, 5, 2),
		testUnitAt("b1", "p2", 5, 25, 5, 2),
	)
	gs.Players["p2"].CommandPoints = 0

	res := mustProcess(t, e, gs, Action{Type: ActionShoot, Player: "p1", UnitID: "a1", TargetUnitID: "b1"})
	if res.AwaitingDecision {
		t.Error("no window should open when the defender cannot pay")
	}
	if !gs.Units["a1"].Flags[FlagHasShot] {
		t.Error("attack should resolve immediately")
	}
}

func TestRestoreCPInstant(t *testing.T) {
	e := catalogEngine()
	gs := testState(PhaseCommand, testUnitAt("a1", "p1", 5, 5, 5, 2))

	mustProcess(t, e, gs, Action{Type: ActionUseStratagem, Player: "p1", StratagemID: "strategic_reserves"})
	if got := gs.Players["p1"].CommandPoints; got != 4 {
		t.Errorf("command points = %d, want 4 (3 - 0 cost + 1 restored)", got)
	}
}
