package skirmish

import "fmt"

// skipFlag marks a unit explicitly skipped for the given phase. Skip
// flags are per-turn flags and reset with the rest at turn start.
func skipFlag(p Phase) string {
	return "skipped_" + string(p)
}

// actedInPhase reports whether the unit already acted or was skipped in
// the current phase.
func actedInPhase(u *Unit, p Phase) bool {
	if u.Flags[skipFlag(p)] {
		return true
	}
	switch p {
	case PhaseMovement:
		return u.Flags[FlagMoved] || u.Flags[FlagAdvanced] || u.Flags[FlagFellBack]
	case PhaseShooting:
		return u.Flags[FlagHasShot]
	case PhaseCharge:
		return u.Flags[FlagCharged] || u.Flags["charge_failed"]
	case PhaseFight:
		return u.Flags[FlagHasFought]
	case PhaseMorale:
		return u.Flags[FlagShockTested]
	}
	return false
}

// inEngagement reports whether the unit has any enemy unit within the
// engagement range.
func inEngagement(gs *GameState, cfg Config, u *Unit) bool {
	if !u.IsOnBoard() {
		return false
	}
	for _, enemy := range gs.EnemyUnitsOnBoard(u.Player) {
		if unitDistance(u, enemy) <= cfg.EngagementRange {
			return true
		}
	}
	return false
}

// resetTurnFlags clears all per-turn flags on a player's units. Called
// exactly once per owning player's turn start, so stale flags never leak
// into a later turn's resolution.
func (m *mutator) resetTurnFlags(player string) {
	for _, id := range m.gs.UnitsOf(player) {
		if len(m.gs.Units[id].Flags) > 0 {
			m.set(fmt.Sprintf("units.%s.flags", id), map[string]bool{})
		}
	}
}

// validateEndPhase checks the END_<PHASE> preconditions shared by all
// phases: the active player ends the phase, and every eligible unit has
// acted or been explicitly skipped.
func validateEndPhase(e *Engine, gs *GameState, a Action, expect ActionType, remaining func() []string) []string {
	var errs []string
	if a.Type != expect {
		return []string{fmt.Sprintf("action %s is not legal during the %s phase", a.Type, gs.Meta.Phase)}
	}
	if a.Player != gs.Meta.ActivePlayer {
		errs = append(errs, fmt.Sprintf("only the active player (%s) may end the phase", gs.Meta.ActivePlayer))
	}
	if ids := remaining(); len(ids) > 0 {
		errs = append(errs, fmt.Sprintf("units still eligible to act: %v (act or skip them first)", ids))
	}
	return errs
}

// validateSkip checks a SKIP_UNIT action against a phase's eligibility
// predicate.
func validateSkip(gs *GameState, a Action, eligible func(*Unit) bool) []string {
	u, ok := gs.Units[a.UnitID]
	if !ok {
		return []string{fmt.Sprintf("unknown unit %q", a.UnitID)}
	}
	var errs []string
	if u.Player != a.Player {
		errs = append(errs, fmt.Sprintf("unit %s belongs to %s", a.UnitID, u.Player))
	}
	if actedInPhase(u, gs.Meta.Phase) {
		errs = append(errs, fmt.Sprintf("unit %s already acted this phase", a.UnitID))
	}
	if len(errs) == 0 && !eligible(u) {
		errs = append(errs, fmt.Sprintf("unit %s has nothing to skip this phase", a.UnitID))
	}
	return errs
}

func (m *mutator) processSkip(a Action) (ActionResult, error) {
	m.set(fmt.Sprintf("units.%s.flags.%s", a.UnitID, skipFlag(m.gs.Meta.Phase)), true)
	return ActionResult{Success: true}, nil
}

func phaseComplete() (ActionResult, error) {
	return ActionResult{Success: true, PhaseComplete: true}, nil
}

// --- Deployment ---

type deploymentPhase struct{}

func (deploymentPhase) enter(m *mutator) {}

func (deploymentPhase) exit(m *mutator) {
	m.clearEffects(ExpiryEndOfPhase)
}

func (deploymentPhase) available(e *Engine, gs *GameState) []ActionDescriptor {
	var descs []ActionDescriptor
	for _, pid := range playerIDs(gs) {
		var ids []string
		for _, id := range gs.UnitsOf(pid) {
			if gs.Units[id].Status == StatusUndeployed {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			descs = append(descs, ActionDescriptor{Type: ActionDeployUnit, Player: pid, UnitIDs: ids})
		}
	}
	if len(descs) == 0 {
		descs = append(descs, ActionDescriptor{Type: ActionEndDeployment, Player: gs.Meta.ActivePlayer})
	}
	return descs
}

func (deploymentPhase) validate(e *Engine, gs *GameState, a Action) []string {
	switch a.Type {
	case ActionDeployUnit:
		return validateDeploy(e, gs, a)
	case ActionEndDeployment:
		return validateEndPhase(e, gs, a, ActionEndDeployment, func() []string {
			var ids []string
			for _, id := range gs.UnitIDs() {
				if gs.Units[id].Status == StatusUndeployed {
					ids = append(ids, id)
				}
			}
			return ids
		})
	default:
		return []string{fmt.Sprintf("action %s is not legal during the deployment phase", a.Type)}
	}
}

func validateDeploy(e *Engine, gs *GameState, a Action) []string {
	u, ok := gs.Units[a.UnitID]
	if !ok {
		return []string{fmt.Sprintf("unknown unit %q", a.UnitID)}
	}
	var errs []string
	if u.Player != a.Player {
		errs = append(errs, fmt.Sprintf("unit %s belongs to %s", a.UnitID, u.Player))
	}
	if u.Status != StatusUndeployed {
		errs = append(errs, fmt.Sprintf("unit %s is already %s", a.UnitID, u.Status))
	}
	if a.ToReserves {
		if !u.HasKeyword(KwDeepStrike) {
			errs = append(errs, fmt.Sprintf("unit %s cannot be placed in reserves", a.UnitID))
		}
		return errs
	}
	zone, ok := gs.Board.DeploymentZones[a.Player]
	if !ok {
		errs = append(errs, fmt.Sprintf("no deployment zone defined for %s", a.Player))
		return errs
	}
	errs = append(errs, validatePlacement(e, gs, u, a.Positions, &zone)...)
	return errs
}

// validatePlacement checks a full set of model positions: one per model,
// on the board, inside the zone when given, and in unit coherency.
func validatePlacement(e *Engine, gs *GameState, u *Unit, positions []Position, zone *Rect) []string {
	var errs []string
	if len(positions) != len(u.Models) {
		return []string{fmt.Sprintf("unit %s needs %d positions, got %d", u.ID, len(u.Models), len(positions))}
	}
	bases := make([]float64, len(positions))
	for i, p := range positions {
		bases[i] = u.Models[i].Base
		if !gs.Board.OnBoard(p) {
			errs = append(errs, fmt.Sprintf("model %d of %s is off the board", i, u.ID))
		}
		if zone != nil && !zone.Contains(p) {
			errs = append(errs, fmt.Sprintf("model %d of %s is outside the deployment zone", i, u.ID))
		}
	}
	if !coherent(positions, bases, e.cfg.Coherency) {
		errs = append(errs, fmt.Sprintf("unit %s would not be in coherency", u.ID))
	}
	return errs
}

func (deploymentPhase) process(m *mutator, a Action) (ActionResult, error) {
	switch a.Type {
	case ActionDeployUnit:
		u := m.gs.Units[a.UnitID]
		if a.ToReserves {
			m.set(fmt.Sprintf("units.%s.status", a.UnitID), string(StatusReserves))
			return ActionResult{Success: true}, nil
		}
		m.placeUnit(u, a.Positions)
		return ActionResult{Success: true}, nil
	case ActionEndDeployment:
		return phaseComplete()
	}
	return processingFailure("unhandled deployment action %s", a.Type), nil
}

// placeUnit writes the model positions and marks the unit deployed.
func (m *mutator) placeUnit(u *Unit, positions []Position) {
	for i := range positions {
		p := positions[i]
		m.set(fmt.Sprintf("units.%s.models.%d.position", u.ID, i), &p)
	}
	m.set(fmt.Sprintf("units.%s.status", u.ID), string(StatusDeployed))
}

// --- Command ---

type commandPhase struct{}

// enter grants the turn's command points and performs the once-per-turn
// flag reset for the player whose turn begins.
func (commandPhase) enter(m *mutator) {
	player := m.gs.Meta.ActivePlayer
	m.resetTurnFlags(player)
	gain := m.eng.cfg.CommandPointGain
	if gain > 0 {
		p := m.gs.Players[player]
		m.set(fmt.Sprintf("players.%s.command_points", player), p.CommandPoints+gain)
	}
}

func (commandPhase) exit(m *mutator) {
	m.clearEffects(ExpiryEndOfPhase)
}

func (commandPhase) available(e *Engine, gs *GameState) []ActionDescriptor {
	return []ActionDescriptor{
		{Type: ActionEndCommand, Player: gs.Meta.ActivePlayer},
	}
}

func (commandPhase) validate(e *Engine, gs *GameState, a Action) []string {
	return validateEndPhase(e, gs, a, ActionEndCommand, func() []string { return nil })
}

func (commandPhase) process(m *mutator, a Action) (ActionResult, error) {
	return phaseComplete()
}

// --- Morale ---

type moralePhase struct{}

func (moralePhase) enter(m *mutator) {}

func (moralePhase) exit(m *mutator) {
	m.clearEffects(ExpiryEndOfPhase)
}

// shockTestRequired reports whether the unit must take a battle-shock
// test this morale phase.
func shockTestRequired(gs *GameState, u *Unit) bool {
	return u.Player == gs.Meta.ActivePlayer && u.IsOnBoard() && u.BelowHalfStrength()
}

func (moralePhase) available(e *Engine, gs *GameState) []ActionDescriptor {
	var ids []string
	for _, id := range gs.UnitsOf(gs.Meta.ActivePlayer) {
		u := gs.Units[id]
		if shockTestRequired(gs, u) && !actedInPhase(u, PhaseMorale) {
			ids = append(ids, id)
		}
	}
	descs := []ActionDescriptor{}
	if len(ids) > 0 {
		descs = append(descs, ActionDescriptor{Type: ActionBattleShock, Player: gs.Meta.ActivePlayer, UnitIDs: ids})
	}
	descs = append(descs, ActionDescriptor{Type: ActionEndMorale, Player: gs.Meta.ActivePlayer})
	return descs
}

func (moralePhase) validate(e *Engine, gs *GameState, a Action) []string {
	switch a.Type {
	case ActionBattleShock:
		u, ok := gs.Units[a.UnitID]
		if !ok {
			return []string{fmt.Sprintf("unknown unit %q", a.UnitID)}
		}
		var errs []string
		if u.Player != a.Player {
			errs = append(errs, fmt.Sprintf("unit %s belongs to %s", a.UnitID, u.Player))
		}
		if a.Player != gs.Meta.ActivePlayer {
			errs = append(errs, "battle-shock tests are taken on the owning player's turn")
		}
		if !shockTestRequired(gs, u) {
			errs = append(errs, fmt.Sprintf("unit %s is not required to test", a.UnitID))
		}
		if actedInPhase(u, PhaseMorale) {
			errs = append(errs, fmt.Sprintf("unit %s already tested this phase", a.UnitID))
		}
		return errs
	case ActionEndMorale:
		return validateEndPhase(e, gs, a, ActionEndMorale, func() []string {
			var ids []string
			for _, id := range gs.UnitsOf(gs.Meta.ActivePlayer) {
				u := gs.Units[id]
				if shockTestRequired(gs, u) && !actedInPhase(u, PhaseMorale) {
					ids = append(ids, id)
				}
			}
			return ids
		})
	default:
		return []string{fmt.Sprintf("action %s is not legal during the morale phase", a.Type)}
	}
}

func (moralePhase) process(m *mutator, a Action) (ActionResult, error) {
	switch a.Type {
	case ActionBattleShock:
		u := m.gs.Units[a.UnitID]
		total := m.roller.Sum2D6(fmt.Sprintf("%s: battle-shock test (Ld %d)", u.ID, u.Meta.Leadership), nil)
		m.set(fmt.Sprintf("units.%s.flags.%s", u.ID, FlagShockTested), true)
		if total < u.Meta.Leadership {
			m.set(fmt.Sprintf("units.%s.flags.%s", u.ID, FlagBattleShocked), true)
		}
		return ActionResult{Success: true}, nil
	case ActionEndMorale:
		return phaseComplete()
	}
	return processingFailure("unhandled morale action %s", a.Type), nil
}

// --- Scoring ---

type scoringPhase struct{}

func (scoringPhase) enter(m *mutator) {}

func (scoringPhase) exit(m *mutator) {
	m.clearEffects(ExpiryEndOfPhase)
}

func (scoringPhase) available(e *Engine, gs *GameState) []ActionDescriptor {
	return []ActionDescriptor{
		{Type: ActionEndScoring, Player: gs.Meta.ActivePlayer},
	}
}

func (scoringPhase) validate(e *Engine, gs *GameState, a Action) []string {
	return validateEndPhase(e, gs, a, ActionEndScoring, func() []string { return nil })
}

// process scores objective control for the active player: each objective
// is controlled by the side with the higher objective-control total
// within its radius; battle-shocked units contribute nothing.
func (scoringPhase) process(m *mutator, a Action) (ActionResult, error) {
	player := m.gs.Meta.ActivePlayer
	scored := 0
	for _, obj := range m.gs.Board.Objectives {
		own, enemy := 0, 0
		for _, id := range m.gs.UnitIDs() {
			u := m.gs.Units[id]
			if !u.IsOnBoard() || u.Flags[FlagBattleShocked] {
				continue
			}
			oc := objectiveControlWithin(u, obj)
			if u.Player == player {
				own += oc
			} else {
				enemy += oc
			}
		}
		if own > enemy && own > 0 {
			scored += m.eng.cfg.ObjectiveVP
		}
	}
	if scored > m.eng.cfg.ObjectiveVPCap {
		scored = m.eng.cfg.ObjectiveVPCap
	}
	if scored > 0 {
		p := m.gs.Players[player]
		m.set(fmt.Sprintf("players.%s.victory_points", player), p.VictoryPoints+scored)
	}
	res, err := phaseComplete()
	return res, err
}

func objectiveControlWithin(u *Unit, obj Objective) int {
	total := 0
	for i := range u.Models {
		mod := &u.Models[i]
		if !mod.Alive || mod.Position == nil {
			continue
		}
		if mod.Position.Distance(obj.Position) <= obj.Radius+mod.Base {
			total += u.Meta.ObjectiveControl
		}
	}
	return total
}
