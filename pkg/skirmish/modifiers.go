package skirmish

import "fmt"

// netModifier clamps the sum of all stacked roll modifiers to the hard
// ±1 cap. The cap holds regardless of how many sources contribute.
func netModifier(raw int) int {
	if raw > 1 {
		return 1
	}
	if raw < -1 {
		return -1
	}
	return raw
}

// checkedNet applies the cap and verifies the invariant independently of
// how the sum was produced; a violation is an integrity fault, not a
// silent clamp of already-applied math.
func checkedNet(raw int, context string) int {
	net := netModifier(raw)
	if net < -1 || net > 1 {
		panic(faultf("modifier-cap", "net %s modifier %d outside [-1,1]", context, net))
	}
	return net
}

// passiveEntries returns the unit's passive ability entries of a type.
func passiveEntries(u *Unit, t EffectType) []EffectEntry {
	var entries []EffectEntry
	for _, e := range u.Meta.Abilities {
		if e.Type == t {
			entries = append(entries, e)
		}
	}
	return entries
}

// sumModifier totals passive and active entries of a type on a unit.
func sumModifier(gs *GameState, u *Unit, t EffectType) int {
	sum := gs.sumEffectValues(u.ID, t)
	for _, e := range passiveEntries(u, t) {
		sum += e.Value
	}
	return sum
}

// unitHas reports whether a unit has the effect type from either a
// passive ability or an active effect.
func unitHas(gs *GameState, u *Unit, t EffectType) bool {
	return gs.hasEffect(u.ID, t) || len(passiveEntries(u, t)) > 0
}

// bestThreshold returns the best (lowest) 2-6 threshold for a type across
// passive abilities and active effects, or 0 when none apply.
func bestThreshold(gs *GameState, u *Unit, t EffectType) int {
	best := gs.bestEffectThreshold(u.ID, t)
	for _, e := range passiveEntries(u, t) {
		if e.Value >= 2 && e.Value <= 6 {
			if best == 0 || e.Value < best {
				best = e.Value
			}
		}
	}
	return best
}

// hitModifier computes the capped net to-hit modifier for an attack and
// the audit labels of the sources that contributed.
func hitModifier(gs *GameState, attacker, defender *Unit, w *WeaponProfile, weaponKeywords []string) (int, []string) {
	raw := 0
	var labels []string
	if b := sumModifier(gs, attacker, EffectHitBonus); b != 0 {
		raw += b
		labels = append(labels, fmt.Sprintf("+%d to hit (effects on %s)", b, attacker.ID))
	}
	if p := sumModifier(gs, defender, EffectHitPenalty); p != 0 {
		raw -= p
		labels = append(labels, fmt.Sprintf("-%d to hit (effects on %s)", p, defender.ID))
	}
	if hasKeyword(weaponKeywords, KwHeavy) && stationary(attacker) {
		raw++
		labels = append(labels, "+1 to hit (heavy, remained stationary)")
	}
	net := checkedNet(raw, "to-hit")
	if net != raw {
		labels = append(labels, fmt.Sprintf("net capped at %+d", net))
	}
	return net, labels
}

// woundModifier computes the capped net to-wound modifier.
func woundModifier(gs *GameState, attacker, defender *Unit) (int, []string) {
	raw := 0
	var labels []string
	if b := sumModifier(gs, attacker, EffectWoundBonus); b != 0 {
		raw += b
		labels = append(labels, fmt.Sprintf("+%d to wound (effects on %s)", b, attacker.ID))
	}
	if p := sumModifier(gs, defender, EffectWoundPenalty); p != 0 {
		raw -= p
		labels = append(labels, fmt.Sprintf("-%d to wound (effects on %s)", p, defender.ID))
	}
	net := checkedNet(raw, "to-wound")
	if net != raw {
		labels = append(labels, fmt.Sprintf("net capped at %+d", net))
	}
	return net, labels
}

// woundThreshold is the standard strength-versus-toughness ratio table.
func woundThreshold(strength, toughness int) int {
	switch {
	case strength >= 2*toughness:
		return 2
	case strength > toughness:
		return 3
	case strength == toughness:
		return 4
	case strength*2 <= toughness:
		return 6
	default:
		return 5
	}
}

// effectiveThreshold shifts a base threshold by a net modifier, keeping
// it inside the rollable 2-6 band. The unmodified-1/unmodified-6 rule is
// applied at roll time, not here.
func effectiveThreshold(base, net int) int {
	t := base - net
	if t < 2 {
		t = 2
	}
	if t > 6 {
		t = 6
	}
	return t
}

// saveThreshold resolves the defender's best save against a weapon:
// armor save modified by AP, cover, and save bonuses, against the
// invulnerable save which ignores AP and cover entirely. Returns the
// threshold (7 = no save possible) and whether the invulnerable was used.
func saveThreshold(gs *GameState, defender *Unit, ap int, cover bool, ignoresCover bool) (int, bool) {
	armor := defender.Meta.Save - ap // ap is negative or zero
	if cover && !ignoresCover {
		armor--
	}
	armor -= sumModifier(gs, defender, EffectSaveBonus)
	if armor < 2 {
		armor = 2
	}
	if armor > 6 {
		armor = 7
	}
	invuln := defender.Meta.InvulnSave
	if eff := bestThreshold(gs, defender, EffectInvulnSave); eff != 0 && (invuln == 0 || eff < invuln) {
		invuln = eff
	}
	if invuln != 0 && invuln < armor {
		return invuln, true
	}
	return armor, false
}

// critThreshold returns the attacker's critical threshold for the given
// override effect type, defaulting to 6.
func critThreshold(gs *GameState, u *Unit, t EffectType) int {
	if th := bestThreshold(gs, u, t); th != 0 {
		return th
	}
	return 6
}

// feelNoPain returns the defender's damage mitigation threshold, or 0.
func feelNoPain(gs *GameState, u *Unit) int {
	return bestThreshold(gs, u, EffectFeelNoPain)
}

// stationary reports whether the unit has not moved this turn.
func stationary(u *Unit) bool {
	return !u.Flags[FlagMoved] && !u.Flags[FlagAdvanced] && !u.Flags[FlagFellBack] && !u.Flags[FlagCharged]
}
