package skirmish

import "fmt"

type shootingPhase struct{}

func (shootingPhase) enter(m *mutator) {}

func (shootingPhase) exit(m *mutator) {
	m.clearEffects(ExpiryEndOfPhase)
}

// eligibleRangedWeapons filters the unit's ranged weapons by this turn's
// movement history: units that fell back cannot shoot, units that
// advanced may only fire assault weapons, and units in engagement range
// may only fire pistols. Effects can lift the first two restrictions.
func eligibleRangedWeapons(e *Engine, gs *GameState, u *Unit) []*WeaponProfile {
	if u.Flags[FlagFellBack] && !unitHas(gs, u, EffectShootAfterFall) {
		return nil
	}
	advanced := u.Flags[FlagAdvanced] && !unitHas(gs, u, EffectShootAfterAdv)
	engaged := inEngagement(gs, e.cfg, u)
	var out []*WeaponProfile
	for i := range u.Meta.Weapons {
		w := &u.Meta.Weapons[i]
		if w.Kind != "ranged" {
			continue
		}
		if advanced && !w.HasKeyword(KwAssault) {
			continue
		}
		if engaged && !w.HasKeyword(KwPistol) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// weaponsBearing narrows eligible weapons to those that can actually
// reach the target: in range, with line of sight, and (for a shooter in
// engagement) only at a unit it is engaged with.
func weaponsBearing(e *Engine, gs *GameState, u, target *Unit, weaponName string) ([]*WeaponProfile, string) {
	weapons := eligibleRangedWeapons(e, gs, u)
	if weaponName != "" {
		var named []*WeaponProfile
		for _, w := range weapons {
			if w.Name == weaponName {
				named = append(named, w)
			}
		}
		if len(named) == 0 {
			return nil, fmt.Sprintf("weapon %q is not an eligible ranged weapon of %s", weaponName, u.ID)
		}
		weapons = named
	}
	if len(weapons) == 0 {
		return nil, fmt.Sprintf("unit %s has no eligible ranged weapons", u.ID)
	}
	if inEngagement(gs, e.cfg, u) && unitDistance(u, target) > e.cfg.EngagementRange {
		return nil, fmt.Sprintf("unit %s is in engagement range and may only shoot units it is engaged with", u.ID)
	}
	if !hasLineOfSight(gs.Board, u, target) {
		return nil, fmt.Sprintf("unit %s has no line of sight to %s", u.ID, target.ID)
	}
	dist := unitDistance(u, target)
	var inRange []*WeaponProfile
	for _, w := range weapons {
		if dist <= w.Range {
			inRange = append(inRange, w)
		}
	}
	if len(inRange) == 0 {
		return nil, fmt.Sprintf("no eligible weapon of %s is in range of %s", u.ID, target.ID)
	}
	return inRange, ""
}

func shootable(e *Engine, gs *GameState, u *Unit) bool {
	if u.Player != gs.Meta.ActivePlayer || !u.IsOnBoard() || actedInPhase(u, PhaseShooting) {
		return false
	}
	for _, enemy := range gs.EnemyUnitsOnBoard(u.Player) {
		if weapons, _ := weaponsBearing(e, gs, u, enemy, ""); len(weapons) > 0 {
			return true
		}
	}
	return false
}

func (shootingPhase) available(e *Engine, gs *GameState) []ActionDescriptor {
	var ids []string
	for _, id := range gs.UnitsOf(gs.Meta.ActivePlayer) {
		if shootable(e, gs, gs.Units[id]) {
			ids = append(ids, id)
		}
	}
	var descs []ActionDescriptor
	if len(ids) > 0 {
		descs = append(descs,
			ActionDescriptor{Type: ActionShoot, Player: gs.Meta.ActivePlayer, UnitIDs: ids},
			ActionDescriptor{Type: ActionSkipUnit, Player: gs.Meta.ActivePlayer, UnitIDs: ids},
		)
	}
	descs = append(descs, ActionDescriptor{Type: ActionEndShooting, Player: gs.Meta.ActivePlayer})
	return descs
}

func (shootingPhase) validate(e *Engine, gs *GameState, a Action) []string {
	switch a.Type {
	case ActionShoot:
		return validateShoot(e, gs, a)
	case ActionSkipUnit:
		return validateSkip(gs, a, func(u *Unit) bool { return shootable(e, gs, u) })
	case ActionEndShooting:
		return validateEndPhase(e, gs, a, ActionEndShooting, func() []string {
			var ids []string
			for _, id := range gs.UnitsOf(gs.Meta.ActivePlayer) {
				if shootable(e, gs, gs.Units[id]) {
					ids = append(ids, id)
				}
			}
			return ids
		})
	default:
		return []string{fmt.Sprintf("action %s is not legal during the shooting phase", a.Type)}
	}
}

func validateShoot(e *Engine, gs *GameState, a Action) []string {
	u, ok := gs.Units[a.UnitID]
	if !ok {
		return []string{fmt.Sprintf("unknown unit %q", a.UnitID)}
	}
	var errs []string
	if u.Player != a.Player {
		errs = append(errs, fmt.Sprintf("unit %s belongs to %s", a.UnitID, u.Player))
	}
	if a.Player != gs.Meta.ActivePlayer {
		errs = append(errs, "units shoot on their owner's turn")
	}
	if !u.IsOnBoard() {
		errs = append(errs, fmt.Sprintf("unit %s is not on the board", a.UnitID))
	}
	if actedInPhase(u, PhaseShooting) {
		errs = append(errs, fmt.Sprintf("unit %s already shot this phase", a.UnitID))
	}
	target, ok := gs.Units[a.TargetUnitID]
	if !ok {
		return append(errs, fmt.Sprintf("unknown target unit %q", a.TargetUnitID))
	}
	if target.Player == a.Player {
		errs = append(errs, fmt.Sprintf("unit %s cannot shoot a friendly unit", a.UnitID))
	}
	if !target.IsOnBoard() {
		errs = append(errs, fmt.Sprintf("target unit %s is not on the board", a.TargetUnitID))
	}
	if len(errs) > 0 {
		return errs
	}
	if _, reason := weaponsBearing(e, gs, u, target, a.WeaponName); reason != "" {
		errs = append(errs, reason)
	}
	return errs
}

func (shootingPhase) process(m *mutator, a Action) (ActionResult, error) {
	switch a.Type {
	case ActionShoot:
		u := m.gs.Units[a.UnitID]
		target := m.gs.Units[a.TargetUnitID]
		// Defensive stratagems interrupt before dice are rolled.
		if m.openReactiveWindow(TriggerTargetedByShooting, target.Player, a) {
			return ActionResult{Success: true, AwaitingDecision: true}, nil
		}
		weapons, reason := weaponsBearing(m.eng, m.gs, u, target, a.WeaponName)
		if reason != "" {
			return processingFailure("%s", reason), nil
		}
		if err := m.resolveAttacks(u, target, weapons, false); err != nil {
			return processingFailure("resolve shooting: %v", err), nil
		}
		m.set(fmt.Sprintf("units.%s.flags.%s", u.ID, FlagHasShot), true)
		return ActionResult{Success: true}, nil
	case ActionSkipUnit:
		return m.processSkip(a)
	case ActionEndShooting:
		return phaseComplete()
	}
	return processingFailure("unhandled shooting action %s", a.Type), nil
}
