package skirmish

import (
	"fmt"
	"math"
)

type chargePhase struct{}

func (chargePhase) enter(m *mutator) {}

func (chargePhase) exit(m *mutator) {
	m.clearEffects(ExpiryEndOfPhase)
}

const flagChargeFailed = "charge_failed"

// baseContactEpsilon is the slack allowed when checking base-to-base
// contact, covering float noise in supplied coordinates.
const baseContactEpsilon = 0.05

func chargeable(e *Engine, gs *GameState, u *Unit) bool {
	if u.Player != gs.Meta.ActivePlayer || !u.IsOnBoard() || actedInPhase(u, PhaseCharge) {
		return false
	}
	if u.Flags[FlagFellBack] {
		return false
	}
	if u.Flags[FlagAdvanced] && !unitHas(gs, u, EffectChargeAfterAdv) {
		return false
	}
	if inEngagement(gs, e.cfg, u) {
		return false
	}
	for _, enemy := range gs.EnemyUnitsOnBoard(u.Player) {
		if unitDistance(u, enemy) <= e.cfg.ChargeRange {
			return true
		}
	}
	return false
}

func (chargePhase) available(e *Engine, gs *GameState) []ActionDescriptor {
	var ids []string
	for _, id := range gs.UnitsOf(gs.Meta.ActivePlayer) {
		if chargeable(e, gs, gs.Units[id]) {
			ids = append(ids, id)
		}
	}
	var descs []ActionDescriptor
	if len(ids) > 0 {
		descs = append(descs,
			ActionDescriptor{Type: ActionDeclareCharge, Player: gs.Meta.ActivePlayer, UnitIDs: ids},
			ActionDescriptor{Type: ActionSkipUnit, Player: gs.Meta.ActivePlayer, UnitIDs: ids},
		)
	}
	descs = append(descs, ActionDescriptor{Type: ActionEndCharge, Player: gs.Meta.ActivePlayer})
	return descs
}

func (chargePhase) validate(e *Engine, gs *GameState, a Action) []string {
	switch a.Type {
	case ActionDeclareCharge:
		return validateCharge(e, gs, a)
	case ActionSkipUnit:
		return validateSkip(gs, a, func(u *Unit) bool { return chargeable(e, gs, u) })
	case ActionEndCharge:
		return validateEndPhase(e, gs, a, ActionEndCharge, func() []string {
			var ids []string
			for _, id := range gs.UnitsOf(gs.Meta.ActivePlayer) {
				if chargeable(e, gs, gs.Units[id]) {
					ids = append(ids, id)
				}
			}
			return ids
		})
	default:
		return []string{fmt.Sprintf("action %s is not legal during the charge phase", a.Type)}
	}
}

func validateCharge(e *Engine, gs *GameState, a Action) []string {
	u, ok := gs.Units[a.UnitID]
	if !ok {
		return []string{fmt.Sprintf("unknown unit %q", a.UnitID)}
	}
	var errs []string
	if u.Player != a.Player {
		errs = append(errs, fmt.Sprintf("unit %s belongs to %s", a.UnitID, u.Player))
	}
	if a.Player != gs.Meta.ActivePlayer {
		errs = append(errs, "charges are declared on the owner's turn")
	}
	if !u.IsOnBoard() {
		errs = append(errs, fmt.Sprintf("unit %s is not on the board", a.UnitID))
	}
	if actedInPhase(u, PhaseCharge) {
		errs = append(errs, fmt.Sprintf("unit %s already charged this phase", a.UnitID))
	}
	if u.Flags[FlagFellBack] {
		errs = append(errs, fmt.Sprintf("unit %s fell back this turn and cannot charge", a.UnitID))
	}
	if u.Flags[FlagAdvanced] && !unitHas(gs, u, EffectChargeAfterAdv) {
		errs = append(errs, fmt.Sprintf("unit %s advanced this turn and cannot charge", a.UnitID))
	}
	if inEngagement(gs, e.cfg, u) {
		errs = append(errs, fmt.Sprintf("unit %s is already in engagement range", a.UnitID))
	}
	if len(a.TargetUnitIDs) == 0 {
		errs = append(errs, "a charge must declare at least one target")
	}
	for _, tid := range a.TargetUnitIDs {
		t, ok := gs.Units[tid]
		if !ok {
			errs = append(errs, fmt.Sprintf("unknown target unit %q", tid))
			continue
		}
		if t.Player == a.Player {
			errs = append(errs, fmt.Sprintf("charge target %s is a friendly unit", tid))
		}
		if !t.IsOnBoard() {
			errs = append(errs, fmt.Sprintf("charge target %s is not on the board", tid))
		}
		if t.IsOnBoard() && unitDistance(u, t) > e.cfg.ChargeRange {
			errs = append(errs, fmt.Sprintf("charge target %s is beyond %.0f\"", tid, e.cfg.ChargeRange))
		}
	}
	if len(errs) > 0 {
		return errs
	}

	alive := aliveIndexes(u)
	if len(a.Positions) != len(alive) {
		return []string{fmt.Sprintf("unit %s needs %d positions (one per living model), got %d", u.ID, len(alive), len(a.Positions))}
	}
	bases := make([]float64, len(a.Positions))
	for k, p := range a.Positions {
		bases[k] = u.Models[alive[k]].Base
		if !gs.Board.OnBoard(p) {
			errs = append(errs, fmt.Sprintf("model %d of %s would leave the board", alive[k], u.ID))
		}
	}
	if !coherent(a.Positions, bases, e.cfg.Coherency) {
		errs = append(errs, fmt.Sprintf("unit %s would not be in coherency", u.ID))
	}
	return errs
}

// chargeOutcome checks the declared end positions against a rolled charge
// distance. A non-empty reason means the charge fails with that roll.
func chargeOutcome(e *Engine, gs *GameState, u *Unit, a Action, roll int) string {
	alive := aliveIndexes(u)
	fly := u.HasKeyword(KwFly)
	dist := float64(roll)

	// Every model's path fits within the rolled distance.
	for k, p := range a.Positions {
		mod := &u.Models[alive[k]]
		if pathCost(gs.Board, *mod.Position, p, e.cfg.TallTerrain, fly) > dist+1e-9 {
			return fmt.Sprintf("model %d cannot reach its position within %d\"", alive[k], roll)
		}
	}

	declared := make(map[string]bool, len(a.TargetUnitIDs))
	for _, tid := range a.TargetUnitIDs {
		declared[tid] = true
	}

	// The unit ends within engagement range of every declared target and
	// of no other enemy unit.
	for _, tid := range a.TargetUnitIDs {
		t := gs.Units[tid]
		reached := false
		for k, p := range a.Positions {
			if modelToUnitDistance(p, u.Models[alive[k]].Base, t) <= e.cfg.EngagementRange {
				reached = true
				break
			}
		}
		if !reached {
			return fmt.Sprintf("the unit would not reach engagement range of declared target %s", tid)
		}
	}
	for _, enemy := range gs.EnemyUnitsOnBoard(u.Player) {
		if declared[enemy.ID] {
			continue
		}
		for k, p := range a.Positions {
			if modelToUnitDistance(p, u.Models[alive[k]].Base, enemy) <= e.cfg.EngagementRange {
				return fmt.Sprintf("the move would end within engagement range of undeclared unit %s", enemy.ID)
			}
		}
	}

	// Base contact is mandatory only when some model could reach a
	// contact spot that keeps the rest of the move legal. A contact spot
	// that falls off the board or inside an undeclared enemy's engagement
	// range does not count.
	contact, possible := false, false
	for k, p := range a.Positions {
		mod := &u.Models[alive[k]]
		for _, tid := range a.TargetUnitIDs {
			t := gs.Units[tid]
			if modelToUnitDistance(p, mod.Base, t) <= baseContactEpsilon {
				contact = true
			}
			if !possible && legalContactReachable(e, gs, u, mod, t, declared, dist, fly) {
				possible = true
			}
		}
	}
	if possible && !contact {
		return "a model could reach base contact and must end there"
	}
	return ""
}

// legalContactReachable reports whether the model could end in base
// contact with the target within the rolled distance without leaving the
// board or ending within engagement range of an undeclared enemy. Contact
// spots are sampled around each target model's base.
func legalContactReachable(e *Engine, gs *GameState, u *Unit, mod *Model, t *Unit, declared map[string]bool, dist float64, fly bool) bool {
	const samples = 16
	for j := range t.Models {
		tm := &t.Models[j]
		if !tm.Alive || tm.Position == nil {
			continue
		}
		gap := mod.Base + tm.Base
		for s := 0; s < samples; s++ {
			angle := 2 * math.Pi * float64(s) / samples
			cp := Position{
				X: tm.Position.X + gap*math.Cos(angle),
				Y: tm.Position.Y + gap*math.Sin(angle),
			}
			if !gs.Board.OnBoard(cp) {
				continue
			}
			if pathCost(gs.Board, *mod.Position, cp, e.cfg.TallTerrain, fly) > dist+1e-9 {
				continue
			}
			legal := true
			for _, enemy := range gs.EnemyUnitsOnBoard(u.Player) {
				if declared[enemy.ID] {
					continue
				}
				if modelToUnitDistance(cp, mod.Base, enemy) <= e.cfg.EngagementRange {
					legal = false
					break
				}
			}
			if legal {
				return true
			}
		}
	}
	return false
}

func (chargePhase) process(m *mutator, a Action) (ActionResult, error) {
	switch a.Type {
	case ActionDeclareCharge:
		return m.processCharge(a)
	case ActionSkipUnit:
		return m.processSkip(a)
	case ActionEndCharge:
		return phaseComplete()
	}
	return processingFailure("unhandled charge action %s", a.Type), nil
}

// processCharge rolls the charge distance and either executes the move or
// records the failed attempt. A reroll effect grants one second roll when
// the first cannot carry the declared move.
func (m *mutator) processCharge(a Action) (ActionResult, error) {
	u := m.gs.Units[a.UnitID]
	roll := m.roller.Sum2D6(fmt.Sprintf("%s: charge roll", u.ID), nil)
	reason := chargeOutcome(m.eng, m.gs, u, a, roll)
	if reason != "" && unitHas(m.gs, u, EffectRerollCharge) {
		roll = m.roller.Sum2D6(fmt.Sprintf("%s: charge roll (reroll)", u.ID), nil)
		reason = chargeOutcome(m.eng, m.gs, u, a, roll)
	}
	if reason != "" {
		m.set(fmt.Sprintf("units.%s.flags.%s", u.ID, flagChargeFailed), true)
		return ActionResult{Success: true}, nil
	}
	m.applyMove(u, a.Positions)
	m.set(fmt.Sprintf("units.%s.flags.%s", u.ID, FlagCharged), true)
	return ActionResult{Success: true}, nil
}
