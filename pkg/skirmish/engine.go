package skirmish

import (
	"fmt"
	"sort"
)

// Config holds the rule constants the engine operates under. All
// distances are in inches.
type Config struct {
	MaxBattleRounds  int     // battle ends after this round completes
	EngagementRange  float64 // melee proximity threshold
	Coherency        float64 // max separation between unit models
	TallTerrain      float64 // terrain above this height costs climbing
	ChargeRange      float64 // max distance at which a charge may be declared
	ReserveClearance float64 // min distance from enemies for arriving reserves
	CommandPointGain int     // CP granted at each own Command phase
	ObjectiveVP      int     // VP per controlled objective at Scoring
	ObjectiveVPCap   int     // max VP scored in one Scoring phase
}

// DefaultConfig returns the standard mission configuration.
func DefaultConfig() Config {
	return Config{
		MaxBattleRounds:  5,
		EngagementRange:  1,
		Coherency:        2,
		TallTerrain:      2,
		ChargeRange:      12,
		ReserveClearance: 9,
		CommandPointGain: 1,
		ObjectiveVP:      5,
		ObjectiveVPCap:   15,
	}
}

// Engine is the stateless rules service. It owns only its configuration
// and stratagem catalog; all game state is passed per call and mutated
// exclusively through returned diffs.
type Engine struct {
	cfg        Config
	stratagems map[string]StratagemDef
	stratOrder []string
	phases     map[Phase]phaseHandler
}

// NewEngine creates an engine with the given config and stratagem catalog.
func NewEngine(cfg Config, catalog []StratagemDef) *Engine {
	e := &Engine{
		cfg:        cfg,
		stratagems: make(map[string]StratagemDef, len(catalog)),
	}
	for _, def := range catalog {
		e.stratagems[def.ID] = def
		e.stratOrder = append(e.stratOrder, def.ID)
	}
	e.phases = map[Phase]phaseHandler{
		PhaseDeployment: deploymentPhase{},
		PhaseCommand:    commandPhase{},
		PhaseMovement:   movementPhase{},
		PhaseShooting:   shootingPhase{},
		PhaseCharge:     chargePhase{},
		PhaseFight:      fightPhase{},
		PhaseMorale:     moralePhase{},
		PhaseScoring:    scoringPhase{},
	}
	return e
}

// Config returns the engine's rule constants.
func (e *Engine) Config() Config { return e.cfg }

// Stratagem returns a catalog entry by id.
func (e *Engine) Stratagem(id string) (StratagemDef, bool) {
	def, ok := e.stratagems[id]
	return def, ok
}

// phaseHandler is the per-phase validate/process pipeline. validate is
// pure; process works on the mutator's cloned state and records diffs.
type phaseHandler interface {
	available(e *Engine, gs *GameState) []ActionDescriptor
	validate(e *Engine, gs *GameState, a Action) []string
	process(m *mutator, a Action) (ActionResult, error)
	enter(m *mutator)
	exit(m *mutator)
}

// mutator wraps a cloned GameState during processing. Every mutation goes
// through set, which applies to the clone and records the diff, keeping
// the clone and the change list in lockstep.
type mutator struct {
	eng     *Engine
	gs      *GameState
	roller  *Roller
	changes []Change
	resumed bool // true while resuming a suspended action
}

func (m *mutator) set(path string, value any) {
	if err := applySet(m.gs, path, value); err != nil {
		// A path the engine itself produced must always apply.
		panic(faultf("diff-path", "engine produced unappliable change %s: %v", path, err))
	}
	m.changes = append(m.changes, Change{Op: "set", Path: path, Value: value})
}

// AvailableActions enumerates legal action types for the current phase.
// The list builds caller affordances and is not authoritative.
func (e *Engine) AvailableActions(gs *GameState) []ActionDescriptor {
	if gs.Meta.Phase == PhaseEnded {
		return nil
	}
	if gs.Pending != nil {
		return []ActionDescriptor{
			{Type: ActionReactiveUse, Player: gs.Pending.Decider, Description: "use an offered reactive stratagem"},
			{Type: ActionReactiveDecline, Player: gs.Pending.Decider, Description: "decline the reactive window"},
		}
	}
	h, ok := e.phases[gs.Meta.Phase]
	if !ok {
		return nil
	}
	descs := h.available(e, gs)
	if ids := e.usableStratagems(gs, gs.Meta.ActivePlayer, ""); len(ids) > 0 {
		descs = append(descs, ActionDescriptor{
			Type:        ActionUseStratagem,
			Player:      gs.Meta.ActivePlayer,
			Description: fmt.Sprintf("usable stratagems: %v", ids),
		})
	}
	return descs
}

// ValidateAction is the pure validation step: no mutation, one error
// message per violated rule so a caller can display all reasons at once.
func (e *Engine) ValidateAction(gs *GameState, a Action) Validation {
	errs := e.validateAction(gs, a)
	return Validation{Valid: len(errs) == 0, Errors: errs}
}

func (e *Engine) validateAction(gs *GameState, a Action) []string {
	if gs.Meta.Phase == PhaseEnded {
		return []string{"the battle has ended"}
	}
	if a.Player == "" {
		return []string{"action must name the acting player"}
	}
	if _, ok := gs.Players[a.Player]; !ok {
		return []string{fmt.Sprintf("unknown player %q", a.Player)}
	}
	if gs.Pending != nil {
		return e.validateReactive(gs, a)
	}
	switch a.Type {
	case ActionReactiveUse, ActionReactiveDecline:
		return []string{"no reactive decision is pending"}
	case ActionUseStratagem:
		return e.validateUseStratagem(gs, a)
	}
	h, ok := e.phases[gs.Meta.Phase]
	if !ok {
		return []string{fmt.Sprintf("no handler for phase %q", gs.Meta.Phase)}
	}
	return h.validate(e, gs, a)
}

// ProcessAction validates then resolves one action against the state,
// returning the resulting diffs and dice audit. The caller's state is
// never mutated; the caller applies the returned changes. A non-nil error
// is a data-integrity fault and aborts the action.
func (e *Engine) ProcessAction(gs *GameState, a Action) (res ActionResult, err error) {
	if errs := e.validateAction(gs, a); len(errs) > 0 {
		return invalid(errs...), nil
	}
	if err := checkIntegrity(gs); err != nil {
		return ActionResult{}, err
	}

	work := gs.Clone()
	m := &mutator{eng: e, gs: work, roller: NewRoller(work.Meta)}

	defer func() {
		if r := recover(); r != nil {
			if fe, ok := r.(*FaultError); ok {
				res, err = ActionResult{}, fe
				return
			}
			panic(r)
		}
	}()

	if gs.Pending != nil {
		res, err = e.processReactive(m, a)
	} else if a.Type == ActionUseStratagem {
		res, err = e.processUseStratagem(m, a)
	} else {
		res, err = e.phases[work.Meta.Phase].process(m, a)
	}
	if err != nil {
		return ActionResult{}, err
	}
	if !res.Success {
		// Processing failure: no partial diffs escape.
		res.Valid = true
		res.Changes, res.Dice = nil, nil
		return res, nil
	}

	if m.roller.Count() != work.Meta.RollCount {
		m.set("meta.roll_count", m.roller.Count())
	}
	m.appendHistory(a, res)

	res.Valid = true
	res.Changes = m.changes
	res.Dice = m.roller.Records()
	return res, nil
}

func (m *mutator) appendHistory(a Action, res ActionResult) {
	entry := HistoryEntry{
		BattleRound: m.gs.Meta.BattleRound,
		TurnNumber:  m.gs.Meta.TurnNumber,
		Phase:       m.gs.Meta.Phase,
		Player:      a.Player,
		Action:      a.Type,
	}
	if res.AwaitingDecision {
		entry.Summary = "suspended for reactive decision"
	}
	m.set(fmt.Sprintf("history.%d", len(m.gs.History)), entry)
}

// AdvancePhase is invoked by the driver after it observes a phase-complete
// result: it exits the current phase, transitions the turn/round
// bookkeeping, and enters the next phase, returning the diffs.
func (e *Engine) AdvancePhase(gs *GameState) (ActionResult, error) {
	if gs.Meta.Phase == PhaseEnded {
		return invalid("the battle has ended"), nil
	}
	if gs.Pending != nil {
		return invalid("a reactive decision is pending"), nil
	}
	if err := checkIntegrity(gs); err != nil {
		return ActionResult{}, err
	}

	work := gs.Clone()
	m := &mutator{eng: e, gs: work, roller: NewRoller(work.Meta)}

	current := work.Meta.Phase
	h, ok := e.phases[current]
	if !ok {
		return invalid(fmt.Sprintf("no handler for phase %q", current)), nil
	}
	h.exit(m)

	next, turnEnds := nextPhase(current)
	if turnEnds {
		// Scoring completed: clear end-of-turn effects and hand over.
		m.clearEffects(ExpiryEndOfTurn)
		finishing := work.Meta.ActivePlayer
		m.set("meta.active_player", work.Opponent(finishing))
		m.set("meta.turn_number", work.Meta.TurnNumber+1)
		if finishing != work.Meta.FirstPlayer {
			round := work.Meta.BattleRound + 1
			if round > e.cfg.MaxBattleRounds {
				winner := leaderByVictoryPoints(work)
				m.set("meta.winner", winner)
				m.set("meta.phase", string(PhaseEnded))
				return ActionResult{Valid: true, Success: true, GameOver: true, Changes: m.changes}, nil
			}
			m.set("meta.battle_round", round)
		}
	}

	m.set("meta.phase", string(next))
	e.phases[next].enter(m)
	return ActionResult{Valid: true, Success: true, Changes: m.changes, Dice: m.roller.Records()}, nil
}

// nextPhase returns the phase following the given one and whether the
// player turn ends at this boundary.
func nextPhase(p Phase) (Phase, bool) {
	if p == PhaseDeployment {
		return PhaseCommand, false
	}
	for i, ph := range phaseOrder {
		if ph == p {
			if i == len(phaseOrder)-1 {
				return PhaseCommand, true
			}
			return phaseOrder[i+1], false
		}
	}
	return PhaseCommand, false
}

func leaderByVictoryPoints(gs *GameState) string {
	winner, best, tie := "", -1, false
	for _, id := range playerIDs(gs) {
		vp := gs.Players[id].VictoryPoints
		switch {
		case vp > best:
			winner, best, tie = id, vp, false
		case vp == best:
			tie = true
		}
	}
	if tie {
		return ""
	}
	return winner
}

func playerIDs(gs *GameState) []string {
	ids := make([]string, 0, len(gs.Players))
	for id := range gs.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// clearEffects drops expired effects at a boundary and records the diff
// when anything changed.
func (m *mutator) clearEffects(boundary ExpiryScope) {
	kept := expiredEffects(m.gs.Effects, boundary)
	if len(kept) != len(m.gs.Effects) {
		m.set("effects", kept)
	}
}

// checkIntegrity rejects states that violate hard invariants before any
// resolution runs against them.
func checkIntegrity(gs *GameState) error {
	if gs.Units == nil {
		return faultf("state-shape", "units map is nil")
	}
	if gs.Players == nil {
		return faultf("state-shape", "players map is nil")
	}
	for id, u := range gs.Units {
		for i := range u.Models {
			mod := &u.Models[i]
			if mod.CurrentWounds < 0 || mod.CurrentWounds > mod.Wounds {
				return faultf("wound-clamp", "unit %s model %d has current_wounds %d of %d", id, i, mod.CurrentWounds, mod.Wounds)
			}
			if mod.Alive != (mod.CurrentWounds > 0) {
				return faultf("alive-flag", "unit %s model %d alive=%v with current_wounds %d", id, i, mod.Alive, mod.CurrentWounds)
			}
		}
	}
	for id, p := range gs.Players {
		if p.CommandPoints < 0 {
			return faultf("resource-pool", "player %s has negative command points", id)
		}
	}
	return nil
}
