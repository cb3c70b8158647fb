// Package skirmish implements the rules resolution and turn-sequencing
// engine for a two-player turn-based miniatures battle. The package is
// pure: it holds no global state, never mutates a caller's GameState
// directly, and communicates every mutation through the diff list on an
// ActionResult.
package skirmish

import (
	"sort"
	"strings"
)

// Phase identifies a step in the battle round sequence.
type Phase string

const (
	PhaseDeployment Phase = "deployment"
	PhaseCommand    Phase = "command"
	PhaseMovement   Phase = "movement"
	PhaseShooting   Phase = "shooting"
	PhaseCharge     Phase = "charge"
	PhaseFight      Phase = "fight"
	PhaseMorale     Phase = "morale"
	PhaseScoring    Phase = "scoring"
	PhaseEnded      Phase = "ended"
)

// phaseOrder is the in-turn sequence after deployment. Scoring wraps back
// to Command for the other player.
var phaseOrder = []Phase{
	PhaseCommand, PhaseMovement, PhaseShooting, PhaseCharge,
	PhaseFight, PhaseMorale, PhaseScoring,
}

// UnitStatus is the lifecycle state of a unit.
type UnitStatus string

const (
	StatusUndeployed UnitStatus = "undeployed"
	StatusReserves   UnitStatus = "reserves"
	StatusDeployed   UnitStatus = "deployed"
	StatusDestroyed  UnitStatus = "destroyed"
)

// Per-turn unit flags. Flags are reset once at the owning player's turn
// start (Command phase enter) and must never leak into a later turn.
const (
	FlagMoved         = "moved"
	FlagAdvanced      = "advanced"
	FlagFellBack      = "fell_back"
	FlagHasShot       = "has_shot"
	FlagCharged       = "charged"
	FlagHasFought     = "has_fought"
	FlagBattleShocked = "battle_shocked"
	FlagShockTested   = "shock_tested"
)

// Meta carries game-level bookkeeping. It is the `meta` object of the
// persisted snapshot layout and the part of state the phase machine owns.
type Meta struct {
	GameID       string `json:"game_id"`
	Phase        Phase  `json:"phase"`
	TurnNumber   int    `json:"turn_number"`
	BattleRound  int    `json:"battle_round"`
	ActivePlayer string `json:"active_player"`
	FirstPlayer  string `json:"first_player"`
	Version      int    `json:"version"`
	Seed         uint64 `json:"seed"`
	RollCount    uint64 `json:"roll_count"`
	Winner       string `json:"winner,omitempty"`
}

// GameState is the root aggregate. It is owned by the caller/host; the
// engine operates on it per call and never retains it between calls.
type GameState struct {
	Meta    Meta                    `json:"meta"`
	Units   map[string]*Unit        `json:"units"`
	Board   Board                   `json:"board"`
	Players map[string]*PlayerState `json:"players"`
	Effects []ActiveEffect          `json:"effects,omitempty"`
	Pending *PendingDecision        `json:"pending,omitempty"`
	History []HistoryEntry          `json:"history,omitempty"`
}

// PlayerState tracks the per-player spendable resource pool and score.
type PlayerState struct {
	CommandPoints int            `json:"command_points"`
	VictoryPoints int            `json:"victory_points"`
	StratagemUses map[string]int `json:"stratagem_uses,omitempty"`
}

// HistoryEntry is one committed action in the audit log.
type HistoryEntry struct {
	BattleRound int        `json:"battle_round"`
	TurnNumber  int        `json:"turn_number"`
	Phase       Phase      `json:"phase"`
	Player      string     `json:"player"`
	Action      ActionType `json:"action"`
	Summary     string     `json:"summary,omitempty"`
}

// Unit is a group of models acting together.
type Unit struct {
	ID     string          `json:"id"`
	Player string          `json:"player"`
	Status UnitStatus      `json:"status"`
	Models []Model         `json:"models"`
	Flags  map[string]bool `json:"flags,omitempty"`
	Meta   UnitMeta        `json:"meta"`
}

// UnitMeta is the immutable stat line and loadout of a unit. Resolution
// reads it alongside runtime modifiers but never writes to it.
type UnitMeta struct {
	Name             string          `json:"name"`
	Move             float64         `json:"move"`
	Toughness        int             `json:"toughness"`
	Save             int             `json:"save"`
	InvulnSave       int             `json:"invuln_save,omitempty"` // 0 = none
	Leadership       int             `json:"leadership"`
	ObjectiveControl int             `json:"objective_control"`
	Keywords         []string        `json:"keywords,omitempty"`
	Weapons          []WeaponProfile `json:"weapons,omitempty"`
	// Abilities are passive unit traits expressed with the same effect
	// primitives stratagems use (e.g. a built-in feel-no-pain or
	// invulnerable save). They are always in force.
	Abilities []EffectEntry `json:"abilities,omitempty"`
}

// Model is a single miniature within a unit.
type Model struct {
	ID            string    `json:"id"`
	Position      *Position `json:"position,omitempty"` // nil until deployed
	Wounds        int       `json:"wounds"`
	CurrentWounds int       `json:"current_wounds"`
	Alive         bool      `json:"alive"`
	Base          float64   `json:"base"` // base radius in inches
}

// WeaponProfile is immutable reference data for one weapon.
type WeaponProfile struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"` // "ranged" or "melee"
	Range    float64  `json:"range,omitempty"`
	Attacks  string   `json:"attacks"` // dice expression: "2", "D6", "2D6+1"
	Skill    int      `json:"skill"`   // to-hit threshold (2-6)
	Strength int      `json:"strength"`
	AP       int      `json:"ap"` // negative worsens saves
	Damage   string   `json:"damage"`
	Keywords []string `json:"keywords,omitempty"`
}

// Weapon keywords recognized by the resolution engine.
const (
	KwAssault      = "assault"
	KwHeavy        = "heavy"
	KwPistol       = "pistol"
	KwTorrent      = "torrent"
	KwLethalHits   = "lethal hits"
	KwSustainedIts = "sustained hits" // profile carries "sustained hits N"
	KwDevastating  = "devastating wounds"
	KwIgnoresCover = "ignores cover"
	KwTwinLinked   = "twin-linked"
)

// Unit keywords recognized by movement and charge rules.
const (
	KwFly        = "fly"
	KwInfantry   = "infantry"
	KwVehicle    = "vehicle"
	KwDeepStrike = "deep strike"
)

// WeaponByName returns the named weapon profile, or nil.
func (u *Unit) WeaponByName(name string) *WeaponProfile {
	for i := range u.Meta.Weapons {
		if u.Meta.Weapons[i].Name == name {
			return &u.Meta.Weapons[i]
		}
	}
	return nil
}

// HasKeyword reports whether the unit carries the given keyword.
func (u *Unit) HasKeyword(kw string) bool {
	return hasKeyword(u.Meta.Keywords, kw)
}

// HasKeyword reports whether the weapon carries the given keyword,
// matching "sustained hits 2" against "sustained hits".
func (w *WeaponProfile) HasKeyword(kw string) bool {
	return hasKeyword(w.Keywords, kw)
}

// AliveModels returns the number of living models in the unit.
func (u *Unit) AliveModels() int {
	n := 0
	for i := range u.Models {
		if u.Models[i].Alive {
			n++
		}
	}
	return n
}

// StartingStrength returns the number of models the unit began with.
func (u *Unit) StartingStrength() int {
	return len(u.Models)
}

// BelowHalfStrength reports whether fewer than half the starting models
// remain alive.
func (u *Unit) BelowHalfStrength() bool {
	return u.AliveModels()*2 < u.StartingStrength()
}

// IsOnBoard reports whether the unit is deployed with at least one model
// still alive.
func (u *Unit) IsOnBoard() bool {
	return u.Status == StatusDeployed && u.AliveModels() > 0
}

// UnitsOf returns the ids of all units belonging to a player, in
// deterministic (sorted) order.
func (gs *GameState) UnitsOf(player string) []string {
	var ids []string
	for id, u := range gs.Units {
		if u.Player == player {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// UnitIDs returns all unit ids in deterministic order.
func (gs *GameState) UnitIDs() []string {
	ids := make([]string, 0, len(gs.Units))
	for id := range gs.Units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Opponent returns the other player's id in a two-player game.
func (gs *GameState) Opponent(player string) string {
	for id := range gs.Players {
		if id != player {
			return id
		}
	}
	return ""
}

// EnemyUnitsOnBoard returns deployed, living enemy units of the given
// player in deterministic order.
func (gs *GameState) EnemyUnitsOnBoard(player string) []*Unit {
	var units []*Unit
	for _, id := range gs.UnitIDs() {
		u := gs.Units[id]
		if u.Player != player && u.IsOnBoard() {
			units = append(units, u)
		}
	}
	return units
}

// Clone returns a deep copy of the GameState. The engine processes every
// action against a clone so a failed resolution leaves the caller's state
// untouched and no partial diffs escape.
func (gs *GameState) Clone() *GameState {
	c := &GameState{
		Meta:  gs.Meta,
		Board: gs.Board.clone(),
	}
	if gs.Units != nil {
		c.Units = make(map[string]*Unit, len(gs.Units))
		for id, u := range gs.Units {
			c.Units[id] = u.clone()
		}
	}
	if gs.Players != nil {
		c.Players = make(map[string]*PlayerState, len(gs.Players))
		for id, p := range gs.Players {
			c.Players[id] = p.clone()
		}
	}
	if gs.Effects != nil {
		c.Effects = make([]ActiveEffect, len(gs.Effects))
		for i := range gs.Effects {
			c.Effects[i] = gs.Effects[i].clone()
		}
	}
	if gs.Pending != nil {
		p := gs.Pending.clone()
		c.Pending = &p
	}
	if gs.History != nil {
		c.History = make([]HistoryEntry, len(gs.History))
		copy(c.History, gs.History)
	}
	return c
}

func (u *Unit) clone() *Unit {
	c := *u
	c.Models = make([]Model, len(u.Models))
	for i := range u.Models {
		c.Models[i] = u.Models[i]
		if u.Models[i].Position != nil {
			p := *u.Models[i].Position
			c.Models[i].Position = &p
		}
	}
	if u.Flags != nil {
		c.Flags = make(map[string]bool, len(u.Flags))
		for k, v := range u.Flags {
			c.Flags[k] = v
		}
	}
	// Meta is treated as immutable; the slices inside are shared.
	return &c
}

func (p *PlayerState) clone() *PlayerState {
	c := *p
	if p.StratagemUses != nil {
		c.StratagemUses = make(map[string]int, len(p.StratagemUses))
		for k, v := range p.StratagemUses {
			c.StratagemUses[k] = v
		}
	}
	return &c
}

func hasKeyword(keywords []string, kw string) bool {
	for _, k := range keywords {
		lk := strings.ToLower(k)
		if lk == kw || strings.HasPrefix(lk, kw+" ") {
			return true
		}
	}
	return false
}
