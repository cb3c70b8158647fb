package skirmish

import "fmt"

// DefaultStratagems returns the bundled stratagem catalog. Every entry is
// pure data over the effect primitives; the engine resolves them with no
// per-stratagem code.
func DefaultStratagems() []StratagemDef {
	return []StratagemDef{
		{
			ID:      "brace_for_impact",
			Name:    "Brace for Impact",
			Cost:    1,
			Timing:  Timing{Turn: TurnEither, Trigger: TriggerTargetedByShooting},
			OncePer: OncePerPhase,
			Target:  TargetFilter{OwnUnit: true},
			Effects: []EffectEntry{
				{Type: EffectHitPenalty, Value: 1},
			},
			Expiry: ExpiryEndOfPhase,
		},
		{
			ID:      "desperate_parry",
			Name:    "Desperate Parry",
			Cost:    1,
			Timing:  Timing{Turn: TurnEither, Trigger: TriggerTargetedByFight},
			OncePer: OncePerPhase,
			Target:  TargetFilter{OwnUnit: true},
			Effects: []EffectEntry{
				{Type: EffectWoundPenalty, Value: 1},
			},
			Expiry: ExpiryEndOfPhase,
		},
		{
			ID:      "go_to_ground",
			Name:    "Go to Ground",
			Cost:    1,
			Timing:  Timing{Turn: TurnEither, Trigger: TriggerTargetedByShooting},
			OncePer: OncePerTurn,
			Target:  TargetFilter{OwnUnit: true, Keyword: KwInfantry},
			Effects: []EffectEntry{
				{Type: EffectCover},
				{Type: EffectInvulnSave, Value: 6},
			},
			Expiry: ExpiryEndOfPhase,
		},
		{
			ID:      "focused_fire",
			Name:    "Focused Fire",
			Cost:    1,
			Timing:  Timing{Turn: TurnOwn, Phases: []Phase{PhaseShooting}},
			OncePer: OncePerTurn,
			Target:  TargetFilter{OwnUnit: true},
			Effects: []EffectEntry{
				{Type: EffectHitBonus, Value: 1},
			},
			Expiry: ExpiryEndOfPhase,
		},
		{
			ID:      "murderous_intent",
			Name:    "Murderous Intent",
			Cost:    2,
			Timing:  Timing{Turn: TurnOwn, Phases: []Phase{PhaseShooting, PhaseFight}},
			OncePer: OncePerTurn,
			Target:  TargetFilter{OwnUnit: true},
			Effects: []EffectEntry{
				{Type: EffectCritHitAt, Value: 5},
				{Type: EffectGrantKeyword, Param: KwLethalHits},
			},
			Expiry: ExpiryEndOfPhase,
		},
		{
			ID:      "surge_forward",
			Name:    "Surge Forward",
			Cost:    1,
			Timing:  Timing{Turn: TurnOwn, Phases: []Phase{PhaseMovement}},
			OncePer: OncePerTurn,
			Target:  TargetFilter{OwnUnit: true},
			Effects: []EffectEntry{
				{Type: EffectMoveBonus, Value: 2},
			},
			Expiry: ExpiryEndOfPhase,
		},
		{
			ID:      "reckless_charge",
			Name:    "Reckless Charge",
			Cost:    1,
			Timing:  Timing{Turn: TurnOwn, Phases: []Phase{PhaseCharge}},
			OncePer: OncePerTurn,
			Target:  TargetFilter{OwnUnit: true},
			Effects: []EffectEntry{
				{Type: EffectRerollCharge},
			},
			Expiry: ExpiryEndOfPhase,
		},
		{
			ID:      "orbital_strike",
			Name:    "Orbital Strike",
			Cost:    2,
			Timing:  Timing{Turn: TurnOwn, Phases: []Phase{PhaseCommand}},
			OncePer: OncePerBattle,
			Target:  TargetFilter{EnemyUnit: true},
			Effects: []EffectEntry{
				{Type: EffectDirectDamage, Param: "D3"},
			},
		},
		{
			ID:      "field_triage",
			Name:    "Field Triage",
			Cost:    1,
			Timing:  Timing{Turn: TurnOwn, Phases: []Phase{PhaseCommand}},
			OncePer: OncePerTurn,
			Target:  TargetFilter{OwnUnit: true, Keyword: KwInfantry},
			Effects: []EffectEntry{
				{Type: EffectHealModel, Value: 3},
			},
		},
		{
			ID:      "strategic_reserves",
			Name:    "Strategic Reserves",
			Cost:    0,
			Timing:  Timing{Turn: TurnOwn, Phases: []Phase{PhaseCommand}},
			OncePer: OncePerBattle,
			Target:  TargetFilter{},
			Effects: []EffectEntry{
				{Type: EffectRestoreCP, Value: 1},
			},
		},
	}
}

// demoBoard is a standard small battlefield: two long-edge deployment
// zones, a central obscuring ruin flanked by cover, three objectives.
func demoBoard(p1, p2 string) Board {
	return Board{
		Width:  44,
		Height: 30,
		DeploymentZones: map[string]Rect{
			p1: {X: 0, Y: 0, W: 44, H: 8},
			p2: {X: 0, Y: 22, W: 44, H: 8},
		},
		Terrain: []TerrainFeature{
			{ID: "central_ruin", Footprint: Rect{X: 18, Y: 12, W: 8, H: 6}, Height: 4, Obscuring: true, Cover: true},
			{ID: "west_crates", Footprint: Rect{X: 6, Y: 13, W: 4, H: 4}, Height: 1.5, Cover: true},
			{ID: "east_crates", Footprint: Rect{X: 34, Y: 13, W: 4, H: 4}, Height: 1.5, Cover: true},
		},
		Objectives: []Objective{
			{ID: "obj_west", Position: Position{X: 10, Y: 15}, Radius: 3},
			{ID: "obj_center", Position: Position{X: 22, Y: 15}, Radius: 3},
			{ID: "obj_east", Position: Position{X: 34, Y: 15}, Radius: 3},
		},
	}
}

func newUnit(id, player string, meta UnitMeta, models int, wounds int, base float64) *Unit {
	u := &Unit{
		ID:     id,
		Player: player,
		Status: StatusUndeployed,
		Meta:   meta,
		Flags:  map[string]bool{},
	}
	for i := 0; i < models; i++ {
		u.Models = append(u.Models, Model{
			ID:            fmt.Sprintf("%s_m%d", id, i),
			Wounds:        wounds,
			CurrentWounds: wounds,
			Alive:         true,
			Base:          base,
		})
	}
	return u
}

// demoArmy builds one side's demo roster: a line squad, a melee squad, a
// deep-striking skirmisher team, and a walker.
func demoArmy(prefix, player string) []*Unit {
	strike := UnitMeta{
		Name:             "Strike Team",
		Move:             6,
		Toughness:        4,
		Save:             3,
		Leadership:       7,
		ObjectiveControl: 2,
		Keywords:         []string{KwInfantry},
		Weapons: []WeaponProfile{
			{Name: "bolt rifle", Kind: "ranged", Range: 24, Attacks: "2", Skill: 3, Strength: 4, AP: -1, Damage: "1"},
			{Name: "combat blade", Kind: "melee", Attacks: "2", Skill: 3, Strength: 4, AP: 0, Damage: "1"},
		},
	}
	breachers := UnitMeta{
		Name:             "Breacher Squad",
		Move:             6,
		Toughness:        4,
		Save:             3,
		Leadership:       7,
		ObjectiveControl: 2,
		Keywords:         []string{KwInfantry},
		Weapons: []WeaponProfile{
			{Name: "heavy pistol", Kind: "ranged", Range: 12, Attacks: "1", Skill: 3, Strength: 4, AP: -1, Damage: "1", Keywords: []string{KwPistol}},
			{Name: "chainblade", Kind: "melee", Attacks: "3", Skill: 3, Strength: 4, AP: -1, Damage: "1"},
		},
		Abilities: []EffectEntry{
			{Type: EffectChargeAfterAdv},
		},
	}
	reapers := UnitMeta{
		Name:             "Void Reapers",
		Move:             7,
		Toughness:        4,
		Save:             4,
		InvulnSave:       5,
		Leadership:       7,
		ObjectiveControl: 1,
		Keywords:         []string{KwInfantry, KwDeepStrike, KwFly},
		Weapons: []WeaponProfile{
			{Name: "fusion torch", Kind: "ranged", Range: 12, Attacks: "1", Skill: 3, Strength: 9, AP: -4, Damage: "D6", Keywords: []string{KwAssault}},
			{Name: "power talons", Kind: "melee", Attacks: "3", Skill: 3, Strength: 5, AP: -2, Damage: "1", Keywords: []string{KwDevastating}},
		},
	}
	walker := UnitMeta{
		Name:             "Sentinel Walker",
		Move:             8,
		Toughness:        9,
		Save:             3,
		Leadership:       8,
		ObjectiveControl: 3,
		Keywords:         []string{KwVehicle},
		Weapons: []WeaponProfile{
			{Name: "battle cannon", Kind: "ranged", Range: 48, Attacks: "D6", Skill: 4, Strength: 9, AP: -2, Damage: "3", Keywords: []string{KwHeavy}},
			{Name: "flamer array", Kind: "ranged", Range: 12, Attacks: "D6", Skill: 4, Strength: 5, AP: 0, Damage: "1", Keywords: []string{KwTorrent, KwIgnoresCover}},
			{Name: "crushing limbs", Kind: "melee", Attacks: "4", Skill: 4, Strength: 8, AP: -1, Damage: "2"},
		},
		Abilities: []EffectEntry{
			{Type: EffectFeelNoPain, Value: 6},
		},
	}
	return []*Unit{
		newUnit(prefix+"_strike", player, strike, 5, 2, 0.5),
		newUnit(prefix+"_breachers", player, breachers, 5, 2, 0.5),
		newUnit(prefix+"_reapers", player, reapers, 3, 2, 0.5),
		newUnit(prefix+"_walker", player, walker, 1, 11, 1.5),
	}
}

// NewDemoGame assembles a ready-to-deploy two-player game state with the
// bundled board and armies. The first player deploys and takes the first
// turn.
func NewDemoGame(gameID string, seed uint64, p1, p2 string) *GameState {
	gs := &GameState{
		Meta: Meta{
			GameID:       gameID,
			Phase:        PhaseDeployment,
			TurnNumber:   1,
			BattleRound:  1,
			ActivePlayer: p1,
			FirstPlayer:  p1,
			Version:      1,
			Seed:         seed,
		},
		Units: map[string]*Unit{},
		Board: demoBoard(p1, p2),
		Players: map[string]*PlayerState{
			p1: {CommandPoints: 3, StratagemUses: map[string]int{}},
			p2: {CommandPoints: 3, StratagemUses: map[string]int{}},
		},
	}
	for _, u := range append(demoArmy("a", p1), demoArmy("b", p2)...) {
		gs.Units[u.ID] = u
	}
	return gs
}
