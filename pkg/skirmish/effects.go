package skirmish

// EffectType enumerates the effect primitives. Stratagem and ability
// definitions compose these; no rule gets bespoke resolution code.
type EffectType string

const (
	// Persistent primitives: applying one creates an ActiveEffect that
	// modifies later resolution until its expiry boundary clears it.
	EffectInvulnSave     EffectType = "invuln_save"      // Value: save threshold
	EffectFeelNoPain     EffectType = "feel_no_pain"     // Value: mitigation threshold
	EffectCover          EffectType = "cover"            // target counts as in cover
	EffectHitBonus       EffectType = "hit_bonus"        // Value: +N to attacker's hit rolls
	EffectHitPenalty     EffectType = "hit_penalty"      // Value: -N to incoming hit rolls
	EffectWoundBonus     EffectType = "wound_bonus"      // Value: +N to attacker's wound rolls
	EffectWoundPenalty   EffectType = "wound_penalty"    // Value: -N to incoming wound rolls
	EffectSaveBonus      EffectType = "save_bonus"       // Value: +N to target's saves
	EffectCritHitAt      EffectType = "crit_hit_at"      // Value: lowered critical-hit threshold
	EffectCritWoundAt    EffectType = "crit_wound_at"    // Value: lowered critical-wound threshold
	EffectGrantKeyword   EffectType = "grant_keyword"    // Param: weapon keyword granted to attacker
	EffectRerollHits     EffectType = "reroll_hits"      // reroll failed hit rolls
	EffectRerollWounds   EffectType = "reroll_wounds"    // reroll failed wound rolls
	EffectRerollCharge   EffectType = "reroll_charge"    // reroll the charge distance
	EffectMoveBonus      EffectType = "move_bonus"       // Value: +N" movement
	EffectStrengthBonus  EffectType = "strength_bonus"   // Value: +N weapon strength
	EffectAPBonus        EffectType = "ap_bonus"         // Value: +N armor penetration
	EffectDamageBonus    EffectType = "damage_bonus"     // Value: +N damage per unsaved wound
	EffectShootAfterFall EffectType = "shoot_after_fall" // eligibility: may shoot after falling back
	EffectChargeAfterAdv EffectType = "charge_after_adv" // eligibility: may charge after advancing
	EffectShootAfterAdv  EffectType = "shoot_after_adv"  // eligibility: non-assault weapons ok after advancing

	// Instant primitives: applying one mutates state immediately and
	// leaves nothing behind to clear.
	EffectDirectDamage EffectType = "direct_damage" // Param: dice expression of mortal damage
	EffectHealModel    EffectType = "heal_model"    // Value: wounds restored to worst-hurt model
	EffectRestoreCP    EffectType = "restore_cp"    // Value: command points refunded
)

// instantEffects marks the primitives that resolve immediately instead of
// persisting as an ActiveEffect. The distinction is explicit per type.
var instantEffects = map[EffectType]bool{
	EffectDirectDamage: true,
	EffectHealModel:    true,
	EffectRestoreCP:    true,
}

// ExpiryScope is the boundary at which a persistent effect is cleared.
// The phase that owns the boundary clears it during exit.
type ExpiryScope string

const (
	ExpiryEndOfPhase  ExpiryScope = "end_of_phase"
	ExpiryEndOfTurn   ExpiryScope = "end_of_turn"
	ExpiryEndOfBattle ExpiryScope = "end_of_battle"
)

// EffectEntry is one primitive invocation inside a definition.
type EffectEntry struct {
	Type  EffectType `json:"type"`
	Value int        `json:"value,omitempty"`
	Param string     `json:"param,omitempty"`
}

// ActiveEffect is a persistent effect applied to a unit. It records which
// definition created it so expiry can remove exactly what was applied,
// with no per-definition cleanup code.
type ActiveEffect struct {
	SourceID    string        `json:"source_id"` // stratagem or ability id
	TargetUnit  string        `json:"target_unit"`
	Entries     []EffectEntry `json:"entries"`
	Expiry      ExpiryScope   `json:"expiry"`
	CreatedTurn int           `json:"created_turn"`
}

func (e ActiveEffect) clone() ActiveEffect {
	c := e
	c.Entries = make([]EffectEntry, len(e.Entries))
	copy(c.Entries, e.Entries)
	return c
}

// PendingDecision is the explicit suspension state for a reactive window.
// While non-nil on the GameState, the phase accepts only REACTIVE_USE and
// REACTIVE_DECLINE; the stored action resumes once decided.
type PendingDecision struct {
	Window   string   `json:"window"`   // e.g. "targeted_by_shooting"
	Decider  string   `json:"decider"`  // player who must respond
	Offered  []string `json:"offered"`  // stratagem ids usable right now
	Resuming Action   `json:"resuming"` // the suspended action
}

func (p PendingDecision) clone() PendingDecision {
	c := p
	c.Offered = append([]string(nil), p.Offered...)
	if p.Resuming.Positions != nil {
		c.Resuming.Positions = append([]Position(nil), p.Resuming.Positions...)
	}
	if p.Resuming.TargetUnitIDs != nil {
		c.Resuming.TargetUnitIDs = append([]string(nil), p.Resuming.TargetUnitIDs...)
	}
	return c
}

// effectsOn returns all persistent effect entries of the given type
// currently applied to the unit.
func (gs *GameState) effectsOn(unitID string, t EffectType) []EffectEntry {
	var entries []EffectEntry
	for i := range gs.Effects {
		if gs.Effects[i].TargetUnit != unitID {
			continue
		}
		for _, e := range gs.Effects[i].Entries {
			if e.Type == t {
				entries = append(entries, e)
			}
		}
	}
	return entries
}

// hasEffect reports whether the unit currently has at least one entry of
// the given effect type.
func (gs *GameState) hasEffect(unitID string, t EffectType) bool {
	return len(gs.effectsOn(unitID, t)) > 0
}

// sumEffectValues totals the Value fields of all entries of a type on a
// unit. Callers clamp the result where the rules cap stacking.
func (gs *GameState) sumEffectValues(unitID string, t EffectType) int {
	sum := 0
	for _, e := range gs.effectsOn(unitID, t) {
		sum += e.Value
	}
	return sum
}

// bestEffectThreshold returns the lowest (best) threshold among entries of
// the given type on a unit, or 0 when none apply. Used for invulnerable
// saves, feel-no-pain, and critical thresholds where only the best source
// counts.
func (gs *GameState) bestEffectThreshold(unitID string, t EffectType) int {
	best := 0
	for _, e := range gs.effectsOn(unitID, t) {
		if e.Value < 2 || e.Value > 6 {
			continue
		}
		if best == 0 || e.Value < best {
			best = e.Value
		}
	}
	return best
}

// grantedKeywords returns weapon keywords granted to the unit's attacks by
// active effects.
func (gs *GameState) grantedKeywords(unitID string) []string {
	var kws []string
	for _, e := range gs.effectsOn(unitID, EffectGrantKeyword) {
		if e.Param != "" {
			kws = append(kws, e.Param)
		}
	}
	return kws
}

// expiredEffects partitions the active effects, returning those that
// survive the given boundary. end_of_phase effects expire at any phase
// exit; end_of_turn effects expire when the turn's Scoring phase exits.
func expiredEffects(effects []ActiveEffect, boundary ExpiryScope) []ActiveEffect {
	var kept []ActiveEffect
	for _, e := range effects {
		switch {
		case e.Expiry == ExpiryEndOfPhase:
			// cleared at every phase boundary
		case e.Expiry == ExpiryEndOfTurn && boundary == ExpiryEndOfTurn:
			// cleared at turn end
		default:
			kept = append(kept, e)
		}
	}
	return kept
}
