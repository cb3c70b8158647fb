package skirmish

import (
	"fmt"
	"strconv"
	"strings"
)

// resolveAttacks runs the fixed attack sequence for each weapon
// assignment: attack count, to-hit, to-wound, saves, damage allocation,
// feel-no-pain. All randomness goes through the mutator's roller and all
// state changes through its diff recorder.
func (m *mutator) resolveAttacks(attacker, defender *Unit, weapons []*WeaponProfile, melee bool) error {
	granted := m.gs.grantedKeywords(attacker.ID)
	for _, e := range passiveEntries(attacker, EffectGrantKeyword) {
		if e.Param != "" {
			granted = append(granted, e.Param)
		}
	}
	for _, w := range weapons {
		if defender.AliveModels() == 0 {
			return nil
		}
		if err := m.resolveWeapon(attacker, defender, w, granted, melee); err != nil {
			return err
		}
	}
	return nil
}

func (m *mutator) resolveWeapon(attacker, defender *Unit, w *WeaponProfile, granted []string, melee bool) error {
	keywords := append(append([]string(nil), w.Keywords...), granted...)
	label := fmt.Sprintf("%s %s vs %s", attacker.ID, w.Name, defender.ID)

	// Stage 1: attack count, rolled per attacking model.
	attacks := 0
	for i := 0; i < attacker.AliveModels(); i++ {
		n, err := m.roller.RollExpr(w.Attacks, label+": attacks")
		if err != nil {
			return fmt.Errorf("attacks expression: %w", err)
		}
		attacks += n
	}
	if attacks <= 0 {
		return nil
	}

	// Stage 2-3: to-hit with capped modifiers and critical classification.
	hits, autoWounds := m.rollHits(attacker, defender, w, keywords, attacks, label)

	// Stage 4: to-wound.
	wounds, bypassSave := m.rollWounds(attacker, defender, w, keywords, hits, label)
	wounds += autoWounds

	// Stage 5: saving throws.
	unsaved := m.rollSaves(attacker, defender, w, keywords, wounds, melee, label)

	// Stage 6-7: damage allocation with feel-no-pain, strictly to the
	// most-damaged living model first.
	fnp := feelNoPain(m.gs, defender)
	damageBonus := sumModifier(m.gs, attacker, EffectDamageBonus)
	for i := 0; i < unsaved; i++ {
		if defender.AliveModels() == 0 {
			break
		}
		dmg, err := m.roller.RollExpr(w.Damage, label+": damage")
		if err != nil {
			return fmt.Errorf("damage expression: %w", err)
		}
		m.allocateAttackDamage(defender, dmg+damageBonus, fnp, label)
	}
	// Devastating wounds bypass the save stage and resolve as direct
	// damage, sharing the first-class bypass path.
	for i := 0; i < bypassSave; i++ {
		if defender.AliveModels() == 0 {
			break
		}
		dmg, err := m.roller.RollExpr(w.Damage, label+": devastating damage")
		if err != nil {
			return fmt.Errorf("damage expression: %w", err)
		}
		m.applyDirectDamage(defender, dmg+damageBonus, label)
	}
	return nil
}

// rollHits returns the number of ordinary hits and the number of critical
// hits converted to automatic wounds by lethal hits.
func (m *mutator) rollHits(attacker, defender *Unit, w *WeaponProfile, keywords []string, attacks int, label string) (hits, autoWounds int) {
	if hasKeyword(keywords, KwTorrent) {
		// Torrent weapons hit automatically; no roll, no criticals.
		return attacks, 0
	}
	net, labels := hitModifier(m.gs, attacker, defender, w, keywords)
	threshold := effectiveThreshold(w.Skill, net)
	critAt := critThreshold(m.gs, attacker, EffectCritHitAt)
	sustained := 0
	if hasKeyword(keywords, KwSustainedIts) {
		sustained = keywordValue(keywords, KwSustainedIts, 1)
	}
	lethal := hasKeyword(keywords, KwLethalHits)

	rolls := m.roller.D6Crit(attacks, label+": to hit", threshold, critAt, labels)
	if unitHas(m.gs, attacker, EffectRerollHits) {
		rolls = m.rerollFailures(rolls, threshold, critAt, label+": to hit (reroll)")
	}
	for _, roll := range rolls {
		crit := roll >= critAt
		if !crit && !countsAsSuccess(roll, threshold) {
			continue
		}
		if crit {
			hits += sustained
			if lethal {
				autoWounds++
				continue
			}
		}
		hits++
	}
	return hits, autoWounds
}

// rollWounds returns ordinary wounds (which proceed to saves) and
// critical wounds diverted past the save stage by devastating wounds.
func (m *mutator) rollWounds(attacker, defender *Unit, w *WeaponProfile, keywords []string, hits int, label string) (wounds, bypassSave int) {
	if hits <= 0 {
		return 0, 0
	}
	strength := w.Strength + sumModifier(m.gs, attacker, EffectStrengthBonus)
	net, labels := woundModifier(m.gs, attacker, defender)
	threshold := effectiveThreshold(woundThreshold(strength, defender.Meta.Toughness), net)
	critAt := critThreshold(m.gs, attacker, EffectCritWoundAt)
	devastating := hasKeyword(keywords, KwDevastating)

	rolls := m.roller.D6Crit(hits, label+": to wound", threshold, critAt, labels)
	if unitHas(m.gs, attacker, EffectRerollWounds) || hasKeyword(keywords, KwTwinLinked) {
		rolls = m.rerollFailures(rolls, threshold, critAt, label+": to wound (reroll)")
	}
	for _, roll := range rolls {
		crit := roll >= critAt
		if !crit && !countsAsSuccess(roll, threshold) {
			continue
		}
		if crit && devastating {
			bypassSave++
			continue
		}
		wounds++
	}
	return wounds, bypassSave
}

// rollSaves returns the number of unsaved wounds.
func (m *mutator) rollSaves(attacker, defender *Unit, w *WeaponProfile, keywords []string, wounds int, melee bool, label string) int {
	if wounds <= 0 {
		return 0
	}
	ap := w.AP - sumModifier(m.gs, attacker, EffectAPBonus)
	cover := false
	if !melee {
		cover = inCoverFrom(m.gs.Board, attacker, defender) || gsHasCover(m.gs, defender)
	}
	threshold, usedInvuln := saveThreshold(m.gs, defender, ap, cover, hasKeyword(keywords, KwIgnoresCover))
	if threshold > 6 {
		// No save possible; every wound goes through.
		return wounds
	}
	var labels []string
	if cover {
		labels = append(labels, "cover")
	}
	if usedInvuln {
		labels = append(labels, "invulnerable save")
	}
	rolls := m.roller.D6(wounds, label+": saves", threshold, labels)
	unsaved := 0
	for _, roll := range rolls {
		if !countsAsSuccess(roll, threshold) {
			unsaved++
		}
	}
	return unsaved
}

// rerollFailures rerolls each failed die once, keeping successes and
// criticals from the first roll.
func (m *mutator) rerollFailures(rolls []int, threshold, critAt int, context string) []int {
	failed := 0
	for _, r := range rolls {
		if r < critAt && !countsAsSuccess(r, threshold) {
			failed++
		}
	}
	if failed == 0 {
		return rolls
	}
	rerolled := m.roller.D6Crit(failed, context, threshold, critAt, nil)
	out := make([]int, 0, len(rolls))
	j := 0
	for _, r := range rolls {
		if r < critAt && !countsAsSuccess(r, threshold) {
			out = append(out, rerolled[j])
			j++
		} else {
			out = append(out, r)
		}
	}
	return out
}

func gsHasCover(gs *GameState, u *Unit) bool {
	return unitHas(gs, u, EffectCover)
}

// mostDamagedAliveIndex returns the index of the living model that must
// take the next wound: the most already-damaged one, before any
// undamaged model. Allocation order is a strict invariant.
func mostDamagedAliveIndex(u *Unit) int {
	best, bestWounds := -1, 0
	for i := range u.Models {
		mod := &u.Models[i]
		if !mod.Alive {
			continue
		}
		if best == -1 || mod.CurrentWounds < bestWounds {
			best, bestWounds = i, mod.CurrentWounds
		}
	}
	return best
}

// allocateAttackDamage applies one attack's damage to a single model.
// Excess damage beyond that model's remaining wounds is lost; it never
// spills to the next model.
func (m *mutator) allocateAttackDamage(u *Unit, dmg, fnp int, context string) {
	if dmg <= 0 {
		return
	}
	dmg = m.mitigateDamage(u, dmg, fnp, context)
	idx := mostDamagedAliveIndex(u)
	if idx < 0 || dmg <= 0 {
		return
	}
	m.woundModel(u, idx, dmg)
}

// applyDirectDamage applies damage with no save of any kind, point by
// point across the unit. Feel-no-pain mitigation applies identically to
// normal damage; wound allocation follows the same strict priority.
func (m *mutator) applyDirectDamage(u *Unit, dmg int, context string) {
	if dmg <= 0 {
		return
	}
	dmg = m.mitigateDamage(u, dmg, feelNoPain(m.gs, u), context)
	for dmg > 0 {
		idx := mostDamagedAliveIndex(u)
		if idx < 0 {
			return
		}
		take := u.Models[idx].CurrentWounds
		if take > dmg {
			take = dmg
		}
		m.woundModel(u, idx, take)
		dmg -= take
	}
}

// mitigateDamage rolls feel-no-pain per point of damage and returns the
// points that go through.
func (m *mutator) mitigateDamage(u *Unit, dmg, fnp int, context string) int {
	if fnp < 2 || fnp > 6 || dmg <= 0 {
		return dmg
	}
	rolls := m.roller.D6(dmg, context+": feel no pain", fnp, nil)
	for _, roll := range rolls {
		if countsAsSuccess(roll, fnp) {
			dmg--
		}
	}
	return dmg
}

// woundModel reduces a model's wound pool, clamped at zero; the model
// dies exactly when its pool empties.
func (m *mutator) woundModel(u *Unit, idx, dmg int) {
	mod := &u.Models[idx]
	remaining := mod.CurrentWounds - dmg
	if remaining < 0 {
		remaining = 0
	}
	if remaining > mod.Wounds {
		panic(faultf("wound-clamp", "unit %s model %d would exceed wound pool", u.ID, idx))
	}
	m.set(fmt.Sprintf("units.%s.models.%d.current_wounds", u.ID, idx), remaining)
	if remaining == 0 && mod.Alive {
		m.set(fmt.Sprintf("units.%s.models.%d.alive", u.ID, idx), false)
	}
	if u.AliveModels() == 0 && u.Status == StatusDeployed {
		m.set(fmt.Sprintf("units.%s.status", u.ID), string(StatusDestroyed))
	}
}

// healWorstModel restores wounds to the most damaged living model.
func (m *mutator) healWorstModel(u *Unit, n int) {
	idx := mostDamagedAliveIndex(u)
	if idx < 0 || n <= 0 {
		return
	}
	mod := &u.Models[idx]
	healed := mod.CurrentWounds + n
	if healed > mod.Wounds {
		healed = mod.Wounds
	}
	m.set(fmt.Sprintf("units.%s.models.%d.current_wounds", u.ID, idx), healed)
}

// keywordValue extracts the trailing integer of a parameterized keyword
// such as "sustained hits 2", with a default when absent.
func keywordValue(keywords []string, kw string, def int) int {
	for _, k := range keywords {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, kw+" ") {
			if n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(lk, kw+" "))); err == nil {
				return n
			}
		}
	}
	return def
}
