package skirmish

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ActionType enumerates the closed set of actions the engine accepts.
type ActionType string

const (
	ActionDeployUnit      ActionType = "DEPLOY_UNIT"
	ActionEndDeployment   ActionType = "END_DEPLOYMENT"
	ActionUseStratagem    ActionType = "USE_STRATAGEM"
	ActionEndCommand      ActionType = "END_COMMAND"
	ActionMoveUnit        ActionType = "MOVE_UNIT"
	ActionAdvance         ActionType = "ADVANCE"
	ActionFallBack        ActionType = "FALL_BACK"
	ActionSkipUnit        ActionType = "SKIP_UNIT"
	ActionEndMovement     ActionType = "END_MOVEMENT"
	ActionShoot           ActionType = "SHOOT"
	ActionEndShooting     ActionType = "END_SHOOTING"
	ActionDeclareCharge   ActionType = "DECLARE_CHARGE"
	ActionEndCharge       ActionType = "END_CHARGE"
	ActionFight           ActionType = "FIGHT"
	ActionEndFight        ActionType = "END_FIGHT"
	ActionBattleShock     ActionType = "BATTLE_SHOCK_TEST"
	ActionEndMorale       ActionType = "END_MORALE"
	ActionEndScoring      ActionType = "END_SCORING"
	ActionReactiveUse     ActionType = "REACTIVE_USE"
	ActionReactiveDecline ActionType = "REACTIVE_DECLINE"
)

// Action is a single player request against the game state. The fields
// beyond Type/Player are a closed tagged union: each action type reads
// only the fields it documents and ignores the rest.
type Action struct {
	Type   ActionType `json:"type"`
	Player string     `json:"player"`

	// DEPLOY_UNIT, MOVE_UNIT, ADVANCE, FALL_BACK, SKIP_UNIT, SHOOT,
	// DECLARE_CHARGE, FIGHT, BATTLE_SHOCK_TEST
	UnitID string `json:"actor_unit_id,omitempty"`

	// DEPLOY_UNIT, MOVE_UNIT, ADVANCE, FALL_BACK, DECLARE_CHARGE:
	// destination per alive model, in model order.
	Positions []Position `json:"positions,omitempty"`

	// DEPLOY_UNIT: place into reserves instead of on the board.
	ToReserves bool `json:"to_reserves,omitempty"`

	// SHOOT, FIGHT
	TargetUnitID string `json:"target_unit_id,omitempty"`
	// SHOOT, FIGHT: restrict to one weapon; empty means every eligible one.
	WeaponName string `json:"weapon_name,omitempty"`

	// DECLARE_CHARGE
	TargetUnitIDs []string `json:"target_unit_ids,omitempty"`

	// USE_STRATAGEM, REACTIVE_USE
	StratagemID string `json:"stratagem_id,omitempty"`
	// USE_STRATAGEM: unit the stratagem is applied to (when it targets one).
	StratagemTarget string `json:"stratagem_target,omitempty"`
}

// Change is a single state mutation. Paths address the state via dotted
// segments (e.g. "units.U1.flags.advanced"); the diff list is the sole
// channel through which the engine mutates state.
type Change struct {
	Op    string `json:"op"` // always "set"
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// DiceRecord is the audit record of one dice roll group.
type DiceRecord struct {
	Context          string   `json:"context"`
	RollsRaw         []int    `json:"rolls_raw"`
	Successes        int      `json:"successes"`
	ModifiersApplied []string `json:"modifiers_applied,omitempty"`
}

// ActionResult is the outcome of validating and processing one action.
type ActionResult struct {
	Valid   bool     `json:"valid"`
	Success bool     `json:"success"`
	Errors  []string `json:"errors,omitempty"`
	Error   string   `json:"error,omitempty"`

	Changes []Change     `json:"changes,omitempty"`
	Dice    []DiceRecord `json:"dice,omitempty"`

	// PhaseComplete marks that the phase finished; the driver invokes
	// AdvancePhase to transition the state.
	PhaseComplete bool `json:"phase_complete,omitempty"`
	// AwaitingDecision marks a reactive suspension point: the only
	// acceptable follow-up actions are REACTIVE_USE and REACTIVE_DECLINE.
	AwaitingDecision bool `json:"awaiting_decision,omitempty"`
	// GameOver marks that the battle ended; Meta.Winner carries the result.
	GameOver bool `json:"game_over,omitempty"`
}

// Validation is the outcome of the pure validate step.
type Validation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ActionDescriptor advertises a legal action type to callers building
// affordances. The list is informative, not authoritative: validation
// still runs on submission.
type ActionDescriptor struct {
	Type        ActionType `json:"type"`
	Player      string     `json:"player"`
	UnitIDs     []string   `json:"unit_ids,omitempty"`
	Description string     `json:"description,omitempty"`
}

func invalid(errs ...string) ActionResult {
	return ActionResult{Valid: false, Errors: errs}
}

func processingFailure(format string, args ...any) ActionResult {
	return ActionResult{Valid: true, Success: false, Error: fmt.Sprintf(format, args...)}
}

// ApplyChanges applies a diff list to the caller-owned state, in order.
// The authority applies the diffs it produced; replicas apply received
// diffs verbatim. Values may arrive as decoded JSON (float64 numbers,
// maps for structs); both forms are accepted.
func ApplyChanges(gs *GameState, changes []Change) error {
	for _, ch := range changes {
		if ch.Op != "set" {
			return fmt.Errorf("unsupported change op %q at %s", ch.Op, ch.Path)
		}
		if err := applySet(gs, ch.Path, ch.Value); err != nil {
			return fmt.Errorf("apply %s: %w", ch.Path, err)
		}
	}
	return nil
}

func applySet(gs *GameState, path string, value any) error {
	seg := strings.Split(path, ".")
	switch seg[0] {
	case "meta":
		return applyMetaSet(gs, seg, value)
	case "units":
		return applyUnitSet(gs, seg, value)
	case "players":
		return applyPlayerSet(gs, seg, value)
	case "effects":
		if len(seg) != 1 {
			return fmt.Errorf("effects path must be whole-list")
		}
		var effects []ActiveEffect
		if err := decodeInto(value, &effects); err != nil {
			return err
		}
		gs.Effects = effects
		return nil
	case "pending":
		if len(seg) != 1 {
			return fmt.Errorf("pending path must be whole-value")
		}
		if value == nil {
			gs.Pending = nil
			return nil
		}
		var pd PendingDecision
		if err := decodeInto(value, &pd); err != nil {
			return err
		}
		gs.Pending = &pd
		return nil
	case "history":
		if len(seg) != 2 {
			return fmt.Errorf("history path must be history.<index>")
		}
		idx, err := strconv.Atoi(seg[1])
		if err != nil || idx < 0 || idx > len(gs.History) {
			return fmt.Errorf("bad history index %q", seg[1])
		}
		var entry HistoryEntry
		if err := decodeInto(value, &entry); err != nil {
			return err
		}
		if idx == len(gs.History) {
			gs.History = append(gs.History, entry)
		} else {
			gs.History[idx] = entry
		}
		return nil
	default:
		return fmt.Errorf("unknown path root %q", seg[0])
	}
}

func applyMetaSet(gs *GameState, seg []string, value any) error {
	if len(seg) != 2 {
		return fmt.Errorf("meta path must have one field segment")
	}
	switch seg[1] {
	case "phase":
		s, err := toString(value)
		if err != nil {
			return err
		}
		gs.Meta.Phase = Phase(s)
	case "turn_number":
		n, err := toInt(value)
		if err != nil {
			return err
		}
		gs.Meta.TurnNumber = n
	case "battle_round":
		n, err := toInt(value)
		if err != nil {
			return err
		}
		gs.Meta.BattleRound = n
	case "active_player":
		s, err := toString(value)
		if err != nil {
			return err
		}
		gs.Meta.ActivePlayer = s
	case "winner":
		s, err := toString(value)
		if err != nil {
			return err
		}
		gs.Meta.Winner = s
	case "roll_count":
		n, err := toUint64(value)
		if err != nil {
			return err
		}
		gs.Meta.RollCount = n
	default:
		return fmt.Errorf("unknown meta field %q", seg[1])
	}
	return nil
}

func applyUnitSet(gs *GameState, seg []string, value any) error {
	if len(seg) < 3 {
		return fmt.Errorf("unit path too short")
	}
	u, ok := gs.Units[seg[1]]
	if !ok {
		return fmt.Errorf("unknown unit %q", seg[1])
	}
	switch seg[2] {
	case "status":
		s, err := toString(value)
		if err != nil {
			return err
		}
		u.Status = UnitStatus(s)
		return nil
	case "flags":
		if len(seg) == 3 {
			// Whole-map replacement, used by turn-start flag resets.
			var flags map[string]bool
			if err := decodeInto(value, &flags); err != nil {
				return err
			}
			u.Flags = flags
			return nil
		}
		b, err := toBool(value)
		if err != nil {
			return err
		}
		if u.Flags == nil {
			u.Flags = make(map[string]bool)
		}
		u.Flags[seg[3]] = b
		return nil
	case "models":
		if len(seg) != 5 {
			return fmt.Errorf("model path must be units.<id>.models.<i>.<field>")
		}
		idx, err := strconv.Atoi(seg[3])
		if err != nil || idx < 0 || idx >= len(u.Models) {
			return fmt.Errorf("bad model index %q", seg[3])
		}
		m := &u.Models[idx]
		switch seg[4] {
		case "current_wounds":
			n, err := toInt(value)
			if err != nil {
				return err
			}
			m.CurrentWounds = n
		case "alive":
			b, err := toBool(value)
			if err != nil {
				return err
			}
			m.Alive = b
		case "position":
			if value == nil {
				m.Position = nil
				return nil
			}
			var p Position
			if err := decodeInto(value, &p); err != nil {
				return err
			}
			m.Position = &p
		default:
			return fmt.Errorf("unknown model field %q", seg[4])
		}
		return nil
	default:
		return fmt.Errorf("unknown unit field %q", seg[2])
	}
}

func applyPlayerSet(gs *GameState, seg []string, value any) error {
	if len(seg) < 3 {
		return fmt.Errorf("player path too short")
	}
	p, ok := gs.Players[seg[1]]
	if !ok {
		return fmt.Errorf("unknown player %q", seg[1])
	}
	switch seg[2] {
	case "command_points":
		n, err := toInt(value)
		if err != nil {
			return err
		}
		p.CommandPoints = n
	case "victory_points":
		n, err := toInt(value)
		if err != nil {
			return err
		}
		p.VictoryPoints = n
	case "stratagem_uses":
		if len(seg) != 4 {
			return fmt.Errorf("stratagem_uses path must name a usage key")
		}
		n, err := toInt(value)
		if err != nil {
			return err
		}
		if p.StratagemUses == nil {
			p.StratagemUses = make(map[string]int)
		}
		p.StratagemUses[seg[3]] = n
	default:
		return fmt.Errorf("unknown player field %q", seg[2])
	}
	return nil
}

// decodeInto converts a value that may be a decoded-JSON form (map/slice)
// or the native struct into dst via a JSON round trip.
func decodeInto(value any, dst any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

func toString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		if st, ok := v.(Phase); ok {
			return string(st), nil
		}
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}

func toBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T", v)
	}
	return b, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int:
		return uint64(n), nil
	case int64:
		return uint64(n), nil
	case float64:
		return uint64(n), nil
	case json.Number:
		i, err := n.Int64()
		return uint64(i), err
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}
