package skirmish

import "fmt"

type fightPhase struct{}

func (fightPhase) enter(m *mutator) {}

func (fightPhase) exit(m *mutator) {
	m.clearEffects(ExpiryEndOfPhase)
}

func meleeWeapons(u *Unit, weaponName string) []*WeaponProfile {
	var out []*WeaponProfile
	for i := range u.Meta.Weapons {
		w := &u.Meta.Weapons[i]
		if w.Kind != "melee" {
			continue
		}
		if weaponName != "" && w.Name != weaponName {
			continue
		}
		out = append(out, w)
	}
	return out
}

// fightEligible covers units of either player: any engaged unit with a
// melee weapon fights during the phase.
func fightEligible(e *Engine, gs *GameState, u *Unit) bool {
	return u.IsOnBoard() &&
		!actedInPhase(u, PhaseFight) &&
		len(meleeWeapons(u, "")) > 0 &&
		inEngagement(gs, e.cfg, u)
}

// chargedDueToFight reports whether any unit that charged this turn still
// has its fight activation pending. Chargers fight before all other units.
func chargedDueToFight(e *Engine, gs *GameState) bool {
	for _, id := range gs.UnitIDs() {
		u := gs.Units[id]
		if u.Flags[FlagCharged] && fightEligible(e, gs, u) {
			return true
		}
	}
	return false
}

func (fightPhase) available(e *Engine, gs *GameState) []ActionDescriptor {
	chargedFirst := chargedDueToFight(e, gs)
	var descs []ActionDescriptor
	for _, pid := range playerIDs(gs) {
		var fightIDs, skipIDs []string
		for _, id := range gs.UnitsOf(pid) {
			u := gs.Units[id]
			if !fightEligible(e, gs, u) {
				continue
			}
			skipIDs = append(skipIDs, id)
			if !chargedFirst || u.Flags[FlagCharged] {
				fightIDs = append(fightIDs, id)
			}
		}
		if len(fightIDs) > 0 {
			descs = append(descs, ActionDescriptor{Type: ActionFight, Player: pid, UnitIDs: fightIDs})
		}
		if len(skipIDs) > 0 {
			descs = append(descs, ActionDescriptor{Type: ActionSkipUnit, Player: pid, UnitIDs: skipIDs})
		}
	}
	descs = append(descs, ActionDescriptor{Type: ActionEndFight, Player: gs.Meta.ActivePlayer})
	return descs
}

func (fightPhase) validate(e *Engine, gs *GameState, a Action) []string {
	switch a.Type {
	case ActionFight:
		return validateFight(e, gs, a)
	case ActionSkipUnit:
		return validateSkip(gs, a, func(u *Unit) bool { return fightEligible(e, gs, u) })
	case ActionEndFight:
		return validateEndPhase(e, gs, a, ActionEndFight, func() []string {
			var ids []string
			for _, id := range gs.UnitIDs() {
				if fightEligible(e, gs, gs.Units[id]) {
					ids = append(ids, id)
				}
			}
			return ids
		})
	default:
		return []string{fmt.Sprintf("action %s is not legal during the fight phase", a.Type)}
	}
}

func validateFight(e *Engine, gs *GameState, a Action) []string {
	u, ok := gs.Units[a.UnitID]
	if !ok {
		return []string{fmt.Sprintf("unknown unit %q", a.UnitID)}
	}
	var errs []string
	if u.Player != a.Player {
		errs = append(errs, fmt.Sprintf("unit %s belongs to %s", a.UnitID, u.Player))
	}
	if !u.IsOnBoard() {
		errs = append(errs, fmt.Sprintf("unit %s is not on the board", a.UnitID))
	}
	if actedInPhase(u, PhaseFight) {
		errs = append(errs, fmt.Sprintf("unit %s already fought this phase", a.UnitID))
	}
	if !u.Flags[FlagCharged] && chargedDueToFight(e, gs) {
		errs = append(errs, fmt.Sprintf("unit %s must wait: units that charged fight first", a.UnitID))
	}
	if !inEngagement(gs, e.cfg, u) {
		errs = append(errs, fmt.Sprintf("unit %s is not in engagement range", a.UnitID))
	}
	target, ok := gs.Units[a.TargetUnitID]
	if !ok {
		return append(errs, fmt.Sprintf("unknown target unit %q", a.TargetUnitID))
	}
	if target.Player == a.Player {
		errs = append(errs, fmt.Sprintf("unit %s cannot fight a friendly unit", a.UnitID))
	}
	if !target.IsOnBoard() {
		errs = append(errs, fmt.Sprintf("target unit %s is not on the board", a.TargetUnitID))
	}
	if len(errs) > 0 {
		return errs
	}
	if unitDistance(u, target) > e.cfg.EngagementRange {
		errs = append(errs, fmt.Sprintf("target unit %s is outside engagement range of %s", a.TargetUnitID, a.UnitID))
	}
	if len(meleeWeapons(u, a.WeaponName)) == 0 {
		if a.WeaponName != "" {
			errs = append(errs, fmt.Sprintf("weapon %q is not a melee weapon of %s", a.WeaponName, a.UnitID))
		} else {
			errs = append(errs, fmt.Sprintf("unit %s has no melee weapons", a.UnitID))
		}
	}
	return errs
}

func (fightPhase) process(m *mutator, a Action) (ActionResult, error) {
	switch a.Type {
	case ActionFight:
		u := m.gs.Units[a.UnitID]
		target := m.gs.Units[a.TargetUnitID]
		if m.openReactiveWindow(TriggerTargetedByFight, target.Player, a) {
			return ActionResult{Success: true, AwaitingDecision: true}, nil
		}
		if err := m.resolveAttacks(u, target, meleeWeapons(u, a.WeaponName), true); err != nil {
			return processingFailure("resolve fight: %v", err), nil
		}
		m.set(fmt.Sprintf("units.%s.flags.%s", u.ID, FlagHasFought), true)
		return ActionResult{Success: true}, nil
	case ActionSkipUnit:
		return m.processSkip(a)
	case ActionEndFight:
		return phaseComplete()
	}
	return processingFailure("unhandled fight action %s", a.Type), nil
}
