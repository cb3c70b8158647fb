package skirmish

import "fmt"

type movementPhase struct{}

func (movementPhase) enter(m *mutator) {}

func (movementPhase) exit(m *mutator) {
	m.clearEffects(ExpiryEndOfPhase)
}

// aliveIndexes returns the model indexes a movement position list maps
// onto: positions are given for living models only, in model order.
func aliveIndexes(u *Unit) []int {
	var idx []int
	for i := range u.Models {
		if u.Models[i].Alive {
			idx = append(idx, i)
		}
	}
	return idx
}

// moveAllowance is the unit's base move plus any active move bonuses.
func moveAllowance(gs *GameState, u *Unit) float64 {
	return u.Meta.Move + float64(sumModifier(gs, u, EffectMoveBonus))
}

func movable(gs *GameState, u *Unit) bool {
	return u.Player == gs.Meta.ActivePlayer && u.IsOnBoard() && !actedInPhase(u, PhaseMovement)
}

// reservesMayArrive reports whether the unit can arrive from reserves
// this movement phase.
func reservesMayArrive(gs *GameState, u *Unit) bool {
	return u.Player == gs.Meta.ActivePlayer && u.Status == StatusReserves && gs.Meta.BattleRound >= 2
}

func (movementPhase) available(e *Engine, gs *GameState) []ActionDescriptor {
	var moveIDs, fallIDs, arriveIDs []string
	for _, id := range gs.UnitsOf(gs.Meta.ActivePlayer) {
		u := gs.Units[id]
		if reservesMayArrive(gs, u) {
			arriveIDs = append(arriveIDs, id)
		}
		if !movable(gs, u) {
			continue
		}
		if inEngagement(gs, e.cfg, u) {
			fallIDs = append(fallIDs, id)
		} else {
			moveIDs = append(moveIDs, id)
		}
	}
	var descs []ActionDescriptor
	if len(moveIDs) > 0 {
		descs = append(descs,
			ActionDescriptor{Type: ActionMoveUnit, Player: gs.Meta.ActivePlayer, UnitIDs: moveIDs},
			ActionDescriptor{Type: ActionAdvance, Player: gs.Meta.ActivePlayer, UnitIDs: moveIDs},
		)
	}
	if len(fallIDs) > 0 {
		descs = append(descs, ActionDescriptor{Type: ActionFallBack, Player: gs.Meta.ActivePlayer, UnitIDs: fallIDs})
	}
	if len(arriveIDs) > 0 {
		descs = append(descs, ActionDescriptor{Type: ActionDeployUnit, Player: gs.Meta.ActivePlayer, UnitIDs: arriveIDs, Description: "arrive from reserves"})
	}
	if len(moveIDs)+len(fallIDs) > 0 {
		descs = append(descs, ActionDescriptor{Type: ActionSkipUnit, Player: gs.Meta.ActivePlayer, UnitIDs: append(moveIDs, fallIDs...)})
	}
	descs = append(descs, ActionDescriptor{Type: ActionEndMovement, Player: gs.Meta.ActivePlayer})
	return descs
}

func (movementPhase) validate(e *Engine, gs *GameState, a Action) []string {
	switch a.Type {
	case ActionMoveUnit, ActionAdvance, ActionFallBack:
		return validateMove(e, gs, a)
	case ActionDeployUnit:
		return validateReserveArrival(e, gs, a)
	case ActionSkipUnit:
		return validateSkip(gs, a, func(u *Unit) bool { return movable(gs, u) })
	case ActionEndMovement:
		return validateEndPhase(e, gs, a, ActionEndMovement, func() []string {
			var ids []string
			for _, id := range gs.UnitsOf(gs.Meta.ActivePlayer) {
				if movable(gs, gs.Units[id]) {
					ids = append(ids, id)
				}
			}
			return ids
		})
	default:
		return []string{fmt.Sprintf("action %s is not legal during the movement phase", a.Type)}
	}
}

func validateMove(e *Engine, gs *GameState, a Action) []string {
	u, ok := gs.Units[a.UnitID]
	if !ok {
		return []string{fmt.Sprintf("unknown unit %q", a.UnitID)}
	}
	var errs []string
	if u.Player != a.Player {
		errs = append(errs, fmt.Sprintf("unit %s belongs to %s", a.UnitID, u.Player))
	}
	if a.Player != gs.Meta.ActivePlayer {
		errs = append(errs, "units move on their owner's turn")
	}
	if !u.IsOnBoard() {
		errs = append(errs, fmt.Sprintf("unit %s is not on the board", a.UnitID))
	}
	if actedInPhase(u, PhaseMovement) {
		errs = append(errs, fmt.Sprintf("unit %s already moved this phase", a.UnitID))
	}
	if len(errs) > 0 {
		return errs
	}

	engaged := inEngagement(gs, e.cfg, u)
	if a.Type == ActionFallBack && !engaged {
		errs = append(errs, fmt.Sprintf("unit %s is not in engagement range and cannot fall back", a.UnitID))
	}
	if a.Type != ActionFallBack && engaged {
		errs = append(errs, fmt.Sprintf("unit %s is in engagement range and may only fall back", a.UnitID))
	}

	errs = append(errs, validateMovePlacement(e, gs, u, a.Positions)...)
	if len(errs) > 0 {
		return errs
	}

	// Normal moves are bounded by the move characteristic now; an advance
	// adds its roll at resolution time, so only the upper bound is checked
	// here.
	allowance := moveAllowance(gs, u)
	if a.Type == ActionAdvance {
		allowance += 6
	}
	errs = append(errs, validatePathLengths(e, gs, u, a.Positions, allowance)...)
	return errs
}

// validateMovePlacement checks destination positions shared by every move
// kind: one per living model, on the board, in coherency, and clear of
// enemy engagement range.
func validateMovePlacement(e *Engine, gs *GameState, u *Unit, positions []Position) []string {
	alive := aliveIndexes(u)
	if len(positions) != len(alive) {
		return []string{fmt.Sprintf("unit %s needs %d positions (one per living model), got %d", u.ID, len(alive), len(positions))}
	}
	var errs []string
	bases := make([]float64, len(positions))
	for k, p := range positions {
		bases[k] = u.Models[alive[k]].Base
		if !gs.Board.OnBoard(p) {
			errs = append(errs, fmt.Sprintf("model %d of %s would leave the board", alive[k], u.ID))
		}
		for _, enemy := range gs.EnemyUnitsOnBoard(u.Player) {
			if modelToUnitDistance(p, bases[k], enemy) <= e.cfg.EngagementRange {
				errs = append(errs, fmt.Sprintf("model %d of %s would end within engagement range of %s", alive[k], u.ID, enemy.ID))
				break
			}
		}
	}
	if !coherent(positions, bases, e.cfg.Coherency) {
		errs = append(errs, fmt.Sprintf("unit %s would not be in coherency", u.ID))
	}
	return errs
}

// validatePathLengths checks each model's terrain-adjusted path against
// the allowance.
func validatePathLengths(e *Engine, gs *GameState, u *Unit, positions []Position, allowance float64) []string {
	var errs []string
	fly := u.HasKeyword(KwFly)
	alive := aliveIndexes(u)
	for k, p := range positions {
		mod := &u.Models[alive[k]]
		if mod.Position == nil {
			continue
		}
		cost := pathCost(gs.Board, *mod.Position, p, e.cfg.TallTerrain, fly)
		if cost > allowance+1e-9 {
			errs = append(errs, fmt.Sprintf("model %d of %s moves %.1f\" but may move %.1f\"", alive[k], u.ID, cost, allowance))
		}
	}
	return errs
}

func validateReserveArrival(e *Engine, gs *GameState, a Action) []string {
	u, ok := gs.Units[a.UnitID]
	if !ok {
		return []string{fmt.Sprintf("unknown unit %q", a.UnitID)}
	}
	var errs []string
	if u.Player != a.Player {
		errs = append(errs, fmt.Sprintf("unit %s belongs to %s", a.UnitID, u.Player))
	}
	if a.Player != gs.Meta.ActivePlayer {
		errs = append(errs, "reserves arrive on their owner's turn")
	}
	if u.Status != StatusReserves {
		errs = append(errs, fmt.Sprintf("unit %s is not in reserves", a.UnitID))
	}
	if gs.Meta.BattleRound < 2 {
		errs = append(errs, "reserves cannot arrive in the first battle round")
	}
	if len(errs) > 0 {
		return errs
	}
	errs = append(errs, validatePlacement(e, gs, u, a.Positions, nil)...)
	for i, p := range a.Positions {
		for _, enemy := range gs.EnemyUnitsOnBoard(u.Player) {
			if modelToUnitDistance(p, u.Models[i].Base, enemy) < e.cfg.ReserveClearance {
				errs = append(errs, fmt.Sprintf("model %d of %s would arrive within %.0f\" of %s", i, u.ID, e.cfg.ReserveClearance, enemy.ID))
				break
			}
		}
	}
	return errs
}

func (movementPhase) process(m *mutator, a Action) (ActionResult, error) {
	switch a.Type {
	case ActionMoveUnit:
		u := m.gs.Units[a.UnitID]
		m.applyMove(u, a.Positions)
		m.set(fmt.Sprintf("units.%s.flags.%s", u.ID, FlagMoved), true)
		return ActionResult{Success: true}, nil
	case ActionAdvance:
		return m.processAdvance(a)
	case ActionFallBack:
		u := m.gs.Units[a.UnitID]
		m.applyMove(u, a.Positions)
		m.set(fmt.Sprintf("units.%s.flags.%s", u.ID, FlagFellBack), true)
		return ActionResult{Success: true}, nil
	case ActionDeployUnit:
		u := m.gs.Units[a.UnitID]
		m.placeUnit(u, a.Positions)
		m.set(fmt.Sprintf("units.%s.flags.%s", u.ID, FlagMoved), true)
		return ActionResult{Success: true}, nil
	case ActionSkipUnit:
		return m.processSkip(a)
	case ActionEndMovement:
		return phaseComplete()
	}
	return processingFailure("unhandled movement action %s", a.Type), nil
}

// processAdvance rolls the advance distance and resolves the move against
// the increased allowance. A roll too low for the declared destinations
// fails the action without consuming the unit's activation.
func (m *mutator) processAdvance(a Action) (ActionResult, error) {
	u := m.gs.Units[a.UnitID]
	rolls := m.roller.D6(1, fmt.Sprintf("%s: advance roll", u.ID), 0, nil)
	allowance := moveAllowance(m.gs, u) + float64(rolls[0])
	if errs := validatePathLengths(m.eng, m.gs, u, a.Positions, allowance); len(errs) > 0 {
		return processingFailure("advance roll of %d is insufficient: %s", rolls[0], errs[0]), nil
	}
	m.applyMove(u, a.Positions)
	m.set(fmt.Sprintf("units.%s.flags.%s", u.ID, FlagMoved), true)
	m.set(fmt.Sprintf("units.%s.flags.%s", u.ID, FlagAdvanced), true)
	return ActionResult{Success: true}, nil
}

// applyMove writes new positions for the unit's living models.
func (m *mutator) applyMove(u *Unit, positions []Position) {
	alive := aliveIndexes(u)
	for k := range positions {
		p := positions[k]
		m.set(fmt.Sprintf("units.%s.models.%d.position", u.ID, alive[k]), &p)
	}
}
