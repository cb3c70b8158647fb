package skirmish

import "testing"

func TestShootResolvesAndFlags(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil) // empty catalog: no reactive window
	attacker := testUnitAt("a1", "p1", 5, 5, 5, 2)
	defender := testUnitAt("b1", "p2", 5, 25, 5, 2)
	gs := testState(PhaseShooting, attacker, defender)

	before := totalWounds(defender)
	res := mustProcess(t, e, gs, Action{Type: ActionShoot, Player: "p1", UnitID: "a1", TargetUnitID: "b1"})
	if !attacker.Flags[FlagHasShot] {
		t.Error("has_shot flag not set")
	}
	if totalWounds(defender) > before {
		t.Error("defender gained wounds")
	}
	if len(res.Dice) == 0 {
		t.Error("shooting must produce a dice audit")
	}
}

func TestShootOutOfRangeRejected(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	attacker := testUnitAt("a1", "p1", 2, 2, 1, 2)
	defender := testUnitAt("b1", "p2", 42, 28, 1, 2) // ~47" away, rifle is 24"
	gs := testState(PhaseShooting, attacker, defender)
	gs.Board.Width, gs.Board.Height = 60, 60

	v := e.ValidateAction(gs, Action{Type: ActionShoot, Player: "p1", UnitID: "a1", TargetUnitID: "b1"})
	if v.Valid {
		t.Error("out-of-range target must be rejected")
	}
}

func TestObscuringTerrainBlocksShooting(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	attacker := testUnitAt("a1", "p1", 5, 5, 1, 2)
	defender := testUnitAt("b1", "p2", 5, 25, 1, 2)
	gs := testState(PhaseShooting, attacker, defender)
	gs.Board.Terrain = []TerrainFeature{
		{ID: "ruin", Footprint: Rect{X: 0, Y: 14, W: 44, H: 2}, Height: 5, Obscuring: true},
	}

	v := e.ValidateAction(gs, Action{Type: ActionShoot, Player: "p1", UnitID: "a1", TargetUnitID: "b1"})
	if v.Valid {
		t.Error("target behind obscuring terrain must be rejected")
	}
}

func TestAdvancedUnitShootsAssaultOnly(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	attacker := testUnitAt("a1", "p1", 5, 5, 1, 2)
	attacker.Meta.Weapons = append(attacker.Meta.Weapons,
		WeaponProfile{Name: "assault carbine", Kind: "ranged", Range: 18, Attacks: "2", Skill: 4, Strength: 4, AP: 0, Damage: "1", Keywords: []string{KwAssault}})
	attacker.Flags[FlagAdvanced] = true
	defender := testUnitAt("b1", "p2", 5, 15, 1, 2)
	gs := testState(PhaseShooting, attacker, defender)

	v := e.ValidateAction(gs, Action{Type: ActionShoot, Player: "p1", UnitID: "a1", TargetUnitID: "b1", WeaponName: "rifle"})
	if v.Valid {
		t.Error("non-assault weapon must be rejected after advancing")
	}
	v = e.ValidateAction(gs, Action{Type: ActionShoot, Player: "p1", UnitID: "a1", TargetUnitID: "b1", WeaponName: "assault carbine"})
	if !v.Valid {
		t.Errorf("assault weapon should fire after advancing: %v", v.Errors)
	}
}

func TestFellBackUnitCannotShoot(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	attacker := testUnitAt("a1", "p1", 5, 5, 1, 2)
	attacker.Flags[FlagFellBack] = true
	defender := testUnitAt("b1", "p2", 5, 15, 1, 2)
	gs := testState(PhaseShooting, attacker, defender)

	if v := e.ValidateAction(gs, Action{Type: ActionShoot, Player: "p1", UnitID: "a1", TargetUnitID: "b1"}); v.Valid {
		t.Error("unit that fell back must not shoot")
	}

	// An eligibility effect lifts the restriction.
	gs.Effects = []ActiveEffect{
		{SourceID: "s", TargetUnit: "a1", Entries: []EffectEntry{{Type: EffectShootAfterFall}}, Expiry: ExpiryEndOfTurn},
	}
	if v := e.ValidateAction(gs, Action{Type: ActionShoot, Player: "p1", UnitID: "a1", TargetUnitID: "b1"}); !v.Valid {
		t.Errorf("shoot-after-fall-back effect should lift the restriction: %v", v.Errors)
	}
}

func TestEngagedUnitShootsPistolsOnly(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	attacker := testUnitAt("a1", "p1", 5, 5, 1, 2)
	attacker.Meta.Weapons = append(attacker.Meta.Weapons,
		WeaponProfile{Name: "sidearm", Kind: "ranged", Range: 12, Attacks: "1", Skill: 3, Strength: 4, AP: 0, Damage: "1", Keywords: []string{KwPistol}})
	engaged := testUnitAt("b1", "p2", 5, 6.5, 1, 2)
	distant := testUnitAt("b2", "p2", 5, 20, 1, 2)
	gs := testState(PhaseShooting, attacker, engaged, distant)

	if v := e.ValidateAction(gs, Action{Type: ActionShoot, Player: "p1", UnitID: "a1", TargetUnitID: "b1", WeaponName: "rifle"}); v.Valid {
		t.Error("non-pistol weapon must be rejected in engagement range")
	}
	if v := e.ValidateAction(gs, Action{Type: ActionShoot, Player: "p1", UnitID: "a1", TargetUnitID: "b2", WeaponName: "sidearm"}); v.Valid {
		t.Error("engaged unit must only shoot units it is engaged with")
	}
	if v := e.ValidateAction(gs, Action{Type: ActionShoot, Player: "p1", UnitID: "a1", TargetUnitID: "b1", WeaponName: "sidearm"}); !v.Valid {
		t.Errorf("pistol should fire at the engaged unit: %v", v.Errors)
	}
}

func TestShootingTwiceRejected(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	attacker := testUnitAt("a1", "p1", 5, 5, 5, 2)
	defender := testUnitAt("b1", "p2", 5, 25, 5, 2)
	gs := testState(PhaseShooting, attacker, defender)

	mustProcess(t, e, gs, Action{Type: ActionShoot, Player: "p1", UnitID: "a1", TargetUnitID: "b1"})
	if v := e.ValidateAction(gs, Action{Type: ActionShoot, Player: "p1", UnitID: "a1", TargetUnitID: "b1"}); v.Valid {
		t.Error("a unit shoots once per phase")
	}
}

func TestDestroyedUnitCannotBeTargeted(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	attacker := testUnitAt("a1", "p1", 5, 5, 5, 2)
	defender := testUnitAt("b1", "p2", 5, 25, 1, 2)
	defender.Status = StatusDestroyed
	defender.Models[0].Alive = false
	defender.Models[0].CurrentWounds = 0
	gs := testState(PhaseShooting, attacker, defender)

	if v := e.ValidateAction(gs, Action{Type: ActionShoot, Player: "p1", UnitID: "a1", TargetUnitID: "b1"}); v.Valid {
		t.Error("destroyed unit must not be a target")
	}
}
