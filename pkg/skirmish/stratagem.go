package skirmish

import (
	"fmt"
	"strings"
)

// TurnSide restricts a stratagem to the owner's turn, the opponent's, or
// either.
type TurnSide string

const (
	TurnOwn      TurnSide = "own"
	TurnOpponent TurnSide = "opponent"
	TurnEither   TurnSide = "either"
)

// Reactive trigger windows. A definition with a trigger is offered when
// resolution reaches that sub-step instead of being playable proactively.
const (
	TriggerTargetedByShooting = "targeted_by_shooting"
	TriggerTargetedByFight    = "targeted_by_fight"
)

// Timing is the window in which a definition may be used.
type Timing struct {
	Turn    TurnSide `json:"turn"`
	Phases  []Phase  `json:"phases,omitempty"` // empty = any phase
	Trigger string   `json:"trigger,omitempty"`
}

// OnceScope is the recurrence restriction of a definition.
type OnceScope string

const (
	OncePerPhase  OnceScope = "phase"
	OncePerTurn   OnceScope = "turn"
	OncePerBattle OnceScope = "battle"
	OnceUnlimited OnceScope = ""
)

// TargetFilter constrains which unit a definition may be applied to.
type TargetFilter struct {
	OwnUnit   bool   `json:"own_unit,omitempty"`
	EnemyUnit bool   `json:"enemy_unit,omitempty"`
	Keyword   string `json:"keyword,omitempty"`
}

// StratagemDef is a data-only rule exception: a cost, a timing window, a
// target filter, a recurrence restriction, and a list of effect primitive
// invocations. Adding a stratagem is adding a catalog entry; the engine
// needs no new code.
type StratagemDef struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Cost    int           `json:"cost"`
	Timing  Timing        `json:"timing"`
	OncePer OnceScope     `json:"once_per,omitempty"`
	Target  TargetFilter  `json:"target"`
	Effects []EffectEntry `json:"effects"`
	Expiry  ExpiryScope   `json:"expiry,omitempty"`
}

// usageKey identifies one occurrence of a definition's recurrence scope.
// Turn numbers are globally unique, so "phase" keys recur when the same
// phase comes around in a later turn.
func usageKey(def StratagemDef, meta Meta) string {
	switch def.OncePer {
	case OncePerBattle:
		return def.ID
	case OncePerTurn:
		return fmt.Sprintf("%s|t%d", def.ID, meta.TurnNumber)
	case OncePerPhase:
		return fmt.Sprintf("%s|t%d|%s", def.ID, meta.TurnNumber, meta.Phase)
	default:
		return ""
	}
}

// timingMatches reports whether the definition's window covers the current
// phase for the given player, considering whose turn it is.
func timingMatches(def StratagemDef, gs *GameState, player string, trigger string) bool {
	if def.Timing.Trigger != trigger {
		return false
	}
	switch def.Timing.Turn {
	case TurnOwn:
		if gs.Meta.ActivePlayer != player {
			return false
		}
	case TurnOpponent:
		if gs.Meta.ActivePlayer == player {
			return false
		}
	}
	if len(def.Timing.Phases) == 0 {
		return true
	}
	for _, p := range def.Timing.Phases {
		if p == gs.Meta.Phase {
			return true
		}
	}
	return false
}

// usableStratagems returns catalog ids the player could legally pay for
// right now in the given trigger window ("" = proactive).
func (e *Engine) usableStratagems(gs *GameState, player, trigger string) []string {
	p, ok := gs.Players[player]
	if !ok {
		return nil
	}
	var ids []string
	for _, id := range e.stratOrder {
		def := e.stratagems[id]
		if !timingMatches(def, gs, player, trigger) {
			continue
		}
		if def.Cost > p.CommandPoints {
			continue
		}
		if key := usageKey(def, gs.Meta); key != "" && p.StratagemUses[key] > 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (e *Engine) validateUseStratagem(gs *GameState, a Action) []string {
	var errs []string
	def, ok := e.stratagems[a.StratagemID]
	if !ok {
		return []string{fmt.Sprintf("unknown stratagem %q", a.StratagemID)}
	}
	if !timingMatches(def, gs, a.Player, "") {
		errs = append(errs, fmt.Sprintf("%s cannot be used in the %s phase of this turn", def.Name, gs.Meta.Phase))
	}
	p := gs.Players[a.Player]
	if def.Cost > p.CommandPoints {
		errs = append(errs, fmt.Sprintf("%s costs %dCP but only %d available", def.Name, def.Cost, p.CommandPoints))
	}
	if key := usageKey(def, gs.Meta); key != "" && p.StratagemUses[key] > 0 {
		errs = append(errs, fmt.Sprintf("%s already used this %s", def.Name, def.OncePer))
	}
	errs = append(errs, validateStratagemTarget(gs, def, a.Player, a.StratagemTarget)...)
	return errs
}

func validateStratagemTarget(gs *GameState, def StratagemDef, player, targetID string) []string {
	if !def.Target.OwnUnit && !def.Target.EnemyUnit {
		return nil
	}
	if targetID == "" {
		return []string{fmt.Sprintf("%s requires a target unit", def.Name)}
	}
	u, ok := gs.Units[targetID]
	if !ok {
		return []string{fmt.Sprintf("unknown unit %q", targetID)}
	}
	var errs []string
	if !u.IsOnBoard() {
		errs = append(errs, fmt.Sprintf("unit %s is not on the board", targetID))
	}
	if def.Target.OwnUnit && u.Player != player {
		errs = append(errs, fmt.Sprintf("%s must target a friendly unit", def.Name))
	}
	if def.Target.EnemyUnit && u.Player == player {
		errs = append(errs, fmt.Sprintf("%s must target an enemy unit", def.Name))
	}
	if def.Target.Keyword != "" && !u.HasKeyword(strings.ToLower(def.Target.Keyword)) {
		errs = append(errs, fmt.Sprintf("%s requires a %s unit", def.Name, def.Target.Keyword))
	}
	return errs
}

func (e *Engine) processUseStratagem(m *mutator, a Action) (ActionResult, error) {
	def := e.stratagems[a.StratagemID]
	if err := m.payAndRecordUse(def, a.Player); err != nil {
		return ActionResult{}, err
	}
	if err := m.applyDefinition(def, a.Player, a.StratagemTarget); err != nil {
		return processingFailure("apply %s: %v", def.Name, err), nil
	}
	return ActionResult{Success: true}, nil
}

// payAndRecordUse deducts the definition's cost and records the scope
// occurrence. Deduction happens only here, after all validation passed.
func (m *mutator) payAndRecordUse(def StratagemDef, player string) error {
	p := m.gs.Players[player]
	remaining := p.CommandPoints - def.Cost
	if remaining < 0 {
		return faultf("resource-pool", "stratagem %s accepted with insufficient CP", def.ID)
	}
	m.set(fmt.Sprintf("players.%s.command_points", player), remaining)
	if key := usageKey(def, m.gs.Meta); key != "" {
		m.set(fmt.Sprintf("players.%s.stratagem_uses.%s", player, key), p.StratagemUses[key]+1)
	}
	return nil
}

// applyDefinition expands a definition into state mutations: persistent
// entries become one ActiveEffect carrying the whole entry list; instant
// entries resolve immediately.
func (m *mutator) applyDefinition(def StratagemDef, player, targetID string) error {
	var persistent []EffectEntry
	for _, entry := range def.Effects {
		if !instantEffects[entry.Type] {
			persistent = append(persistent, entry)
			continue
		}
		if err := m.applyInstant(entry, player, targetID, def.Name); err != nil {
			return err
		}
	}
	if len(persistent) > 0 {
		if targetID == "" {
			return fmt.Errorf("definition %s grants persistent effects but has no target", def.ID)
		}
		expiry := def.Expiry
		if expiry == "" {
			expiry = ExpiryEndOfPhase
		}
		effects := append(append([]ActiveEffect(nil), m.gs.Effects...), ActiveEffect{
			SourceID:    def.ID,
			TargetUnit:  targetID,
			Entries:     persistent,
			Expiry:      expiry,
			CreatedTurn: m.gs.Meta.TurnNumber,
		})
		m.set("effects", effects)
	}
	return nil
}

func (m *mutator) applyInstant(entry EffectEntry, player, targetID, source string) error {
	switch entry.Type {
	case EffectDirectDamage:
		u, ok := m.gs.Units[targetID]
		if !ok {
			return fmt.Errorf("direct damage target %q not found", targetID)
		}
		dmg, err := m.roller.RollExpr(entry.Param, fmt.Sprintf("%s: direct damage vs %s", source, targetID))
		if err != nil {
			return err
		}
		m.applyDirectDamage(u, dmg, source)
		return nil
	case EffectHealModel:
		u, ok := m.gs.Units[targetID]
		if !ok {
			return fmt.Errorf("heal target %q not found", targetID)
		}
		m.healWorstModel(u, entry.Value)
		return nil
	case EffectRestoreCP:
		p := m.gs.Players[player]
		m.set(fmt.Sprintf("players.%s.command_points", player), p.CommandPoints+entry.Value)
		return nil
	default:
		return fmt.Errorf("effect %s is not an instant primitive", entry.Type)
	}
}

// openReactiveWindow checks whether the opposing side holds an affordable
// reactive definition for the trigger; if so it suspends the action by
// writing the pending decision into state and returns true.
func (m *mutator) openReactiveWindow(trigger, decider string, resuming Action) bool {
	if m.resumed {
		return false
	}
	offered := m.eng.usableStratagems(m.gs, decider, trigger)
	if len(offered) == 0 {
		return false
	}
	m.set("pending", &PendingDecision{
		Window:   trigger,
		Decider:  decider,
		Offered:  offered,
		Resuming: resuming,
	})
	return true
}

func (e *Engine) validateReactive(gs *GameState, a Action) []string {
	pd := gs.Pending
	switch a.Type {
	case ActionReactiveUse:
		if a.Player != pd.Decider {
			return []string{fmt.Sprintf("the pending decision belongs to %s", pd.Decider)}
		}
		for _, id := range pd.Offered {
			if id == a.StratagemID {
				def := e.stratagems[id]
				return validateStratagemTarget(gs, def, a.Player, a.StratagemTarget)
			}
		}
		return []string{fmt.Sprintf("stratagem %q is not offered in this window", a.StratagemID)}
	case ActionReactiveDecline:
		if a.Player != pd.Decider {
			return []string{fmt.Sprintf("the pending decision belongs to %s", pd.Decider)}
		}
		return nil
	default:
		return []string{fmt.Sprintf("a reactive decision is pending; only %s or %s are accepted", ActionReactiveUse, ActionReactiveDecline)}
	}
}

// processReactive applies or declines the pending stratagem, clears the
// suspension, and resumes the stored action on the same mutator so the
// combined diffs come back in one result.
func (e *Engine) processReactive(m *mutator, a Action) (ActionResult, error) {
	pd := *m.gs.Pending
	if a.Type == ActionReactiveUse {
		def := e.stratagems[a.StratagemID]
		if err := m.payAndRecordUse(def, a.Player); err != nil {
			return ActionResult{}, err
		}
		target := a.StratagemTarget
		if target == "" {
			target = pd.Resuming.TargetUnitID
		}
		if err := m.applyDefinition(def, a.Player, target); err != nil {
			return processingFailure("apply %s: %v", def.Name, err), nil
		}
	}
	m.set("pending", nil)
	m.resumed = true
	return e.phases[m.gs.Meta.Phase].process(m, pd.Resuming)
}
