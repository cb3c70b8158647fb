package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/measured-violence/internal/model"
	"github.com/freeeve/measured-violence/internal/repository"
	"github.com/freeeve/measured-violence/pkg/skirmish"
)

var (
	ErrNoCurrentTurn = errors.New("match has no unresolved turn")
	ErrStateFault    = errors.New("game state integrity fault")
)

// advancePhaseRecord is the action_type recorded for engine-driven phase
// transitions, so a turn's action log replays to the exact resolved state.
const advancePhaseRecord = "ADVANCE_PHASE"

// maxAutoActions bounds the auto-advance loop on turn expiry. A full player
// turn is well under this many actions.
const maxAutoActions = 200

// ActionService resolves player actions against the rules engine and
// persists the committed diffs and dice audit.
type ActionService struct {
	matchRepo   repository.MatchRepository
	turnRepo    repository.TurnRepository
	cache       repository.MatchCache
	broadcaster Broadcaster
	engine      *skirmish.Engine

	// matchLocks prevents concurrent resolution for the same match. Action
	// submission, the keyspace listener, and the poller can all fire at
	// once; without locking two of them would commit conflicting diffs.
	matchLocks sync.Map
}

// NewActionService creates an ActionService with the standard mission rules.
func NewActionService(
	matchRepo repository.MatchRepository,
	turnRepo repository.TurnRepository,
	cache repository.MatchCache,
	broadcaster Broadcaster,
) *ActionService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &ActionService{
		matchRepo:   matchRepo,
		turnRepo:    turnRepo,
		cache:       cache,
		broadcaster: broadcaster,
		engine:      skirmish.NewEngine(skirmish.DefaultConfig(), skirmish.DefaultStratagems()),
	}
}

// matchLock returns the mutex for a given match ID.
func (s *ActionService) matchLock(matchID string) *sync.Mutex {
	v, _ := s.matchLocks.LoadOrStore(matchID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// SubmitAction resolves one action for a player. The player field of the
// payload is overwritten with the authenticated user, so a client can never
// act for the opponent. Invalid or failed actions come back in the result
// with no state change; a non-nil error means infrastructure or an engine
// integrity fault.
func (s *ActionService) SubmitAction(ctx context.Context, matchID, userID string, payload json.RawMessage) (*skirmish.ActionResult, error) {
	mu := s.matchLock(matchID)
	mu.Lock()
	defer mu.Unlock()

	match, turn, err := s.activeMatch(ctx, matchID, userID)
	if err != nil {
		return nil, err
	}

	gs, err := s.loadState(ctx, matchID, turn)
	if err != nil {
		return nil, err
	}

	var a skirmish.Action
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, fmt.Errorf("parse action: %w", err)
	}
	a.Player = userID

	res, err := s.engine.ProcessAction(gs, a)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateFault, err)
	}
	if !res.Valid || !res.Success {
		return &res, nil
	}

	if err := s.commit(ctx, turn, gs, a, res); err != nil {
		return nil, err
	}

	if err := s.handleDecisionTimer(ctx, match, gs, res); err != nil {
		return nil, err
	}

	done := false
	if res.PhaseComplete {
		done, err = s.advance(ctx, match, turn, gs)
		if err != nil {
			return nil, err
		}
	}
	if !done {
		if err := s.saveSnapshot(ctx, matchID, gs); err != nil {
			return nil, err
		}
	}
	return &res, nil
}

// AvailableActions returns the legal action affordances for the current
// state of a match.
func (s *ActionService) AvailableActions(ctx context.Context, matchID, userID string) ([]skirmish.ActionDescriptor, error) {
	_, turn, err := s.activeMatch(ctx, matchID, userID)
	if err != nil {
		return nil, err
	}
	gs, err := s.loadState(ctx, matchID, turn)
	if err != nil {
		return nil, err
	}
	return s.engine.AvailableActions(gs), nil
}

// ValidateAction runs the pure validation step without committing anything.
func (s *ActionService) ValidateAction(ctx context.Context, matchID, userID string, payload json.RawMessage) (*skirmish.Validation, error) {
	_, turn, err := s.activeMatch(ctx, matchID, userID)
	if err != nil {
		return nil, err
	}
	gs, err := s.loadState(ctx, matchID, turn)
	if err != nil {
		return nil, err
	}
	var a skirmish.Action
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, fmt.Errorf("parse action: %w", err)
	}
	a.Player = userID
	v := s.engine.ValidateAction(gs, a)
	return &v, nil
}

// GetState returns the live snapshot for a match the user plays in.
func (s *ActionService) GetState(ctx context.Context, matchID, userID string) (json.RawMessage, error) {
	_, turn, err := s.activeMatch(ctx, matchID, userID)
	if err != nil {
		return nil, err
	}
	gs, err := s.loadState(ctx, matchID, turn)
	if err != nil {
		return nil, err
	}
	return skirmish.EncodeSnapshot(gs)
}

// activeMatch loads the match and its unresolved turn, checking that the
// match is active and the user plays in it.
func (s *ActionService) activeMatch(ctx context.Context, matchID, userID string) (*model.Match, *model.Turn, error) {
	match, err := s.matchRepo.FindByID(ctx, matchID)
	if err != nil {
		return nil, nil, err
	}
	if match == nil {
		return nil, nil, ErrMatchNotFound
	}
	if match.Status != "active" {
		return nil, nil, ErrMatchNotActive
	}
	member := false
	for _, p := range match.Players {
		if p.UserID == userID {
			member = true
			break
		}
	}
	if !member {
		return nil, nil, ErrNotInMatch
	}

	turn, err := s.turnRepo.CurrentTurn(ctx, matchID)
	if err != nil {
		return nil, nil, err
	}
	if turn == nil {
		return nil, nil, ErrNoCurrentTurn
	}
	return match, turn, nil
}

// loadState returns the live game state, from the Redis snapshot or, after
// a cache loss, by replaying the current turn's committed diffs over its
// opening snapshot.
func (s *ActionService) loadState(ctx context.Context, matchID string, turn *model.Turn) (*skirmish.GameState, error) {
	stateJSON, err := s.cache.GetSnapshot(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if stateJSON != nil {
		return skirmish.DecodeSnapshot(stateJSON)
	}
	log.Warn().Str("matchId", matchID).Str("turnId", turn.ID).Msg("Snapshot missing, replaying turn actions")
	return s.replayTurn(ctx, turn)
}

// replayTurn rebuilds the live state from the turn's state_before plus the
// diff list of every committed action, in sequence order.
func (s *ActionService) replayTurn(ctx context.Context, turn *model.Turn) (*skirmish.GameState, error) {
	gs, err := skirmish.DecodeSnapshot(turn.StateBefore)
	if err != nil {
		return nil, fmt.Errorf("decode turn state: %w", err)
	}
	recs, err := s.turnRepo.ActionsByTurn(ctx, turn.ID)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if len(rec.Changes) == 0 {
			continue
		}
		var changes []skirmish.Change
		if err := json.Unmarshal(rec.Changes, &changes); err != nil {
			return nil, fmt.Errorf("parse changes for action %s: %w", rec.ID, err)
		}
		if err := skirmish.ApplyChanges(gs, changes); err != nil {
			return nil, fmt.Errorf("replay action %s: %w", rec.ID, err)
		}
	}
	return gs, nil
}

// commit applies the result's diffs, persists the action record, and
// broadcasts it. The snapshot is written separately once per submission.
func (s *ActionService) commit(ctx context.Context, turn *model.Turn, gs *skirmish.GameState, a skirmish.Action, res skirmish.ActionResult) error {
	if err := skirmish.ApplyChanges(gs, res.Changes); err != nil {
		return fmt.Errorf("%w: %v", ErrStateFault, err)
	}

	seq, err := s.cache.NextSeq(ctx, gs.Meta.GameID)
	if err != nil {
		return err
	}
	payloadJSON, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	changesJSON, err := json.Marshal(res.Changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}
	var diceJSON json.RawMessage
	if len(res.Dice) > 0 {
		diceJSON, err = json.Marshal(res.Dice)
		if err != nil {
			return fmt.Errorf("marshal dice: %w", err)
		}
	}

	rec := &model.ActionRecord{
		TurnID:     turn.ID,
		Seq:        seq,
		Player:     a.Player,
		ActionType: string(a.Type),
		Payload:    payloadJSON,
		Changes:    changesJSON,
		Dice:       diceJSON,
	}
	if _, err := s.turnRepo.SaveAction(ctx, rec); err != nil {
		return err
	}

	s.broadcaster.BroadcastMatchEvent(gs.Meta.GameID, "action_processed", map[string]any{
		"seq":     seq,
		"player":  a.Player,
		"type":    string(a.Type),
		"changes": res.Changes,
		"dice":    res.Dice,
		"phase":   string(gs.Meta.Phase),
	})
	return nil
}

// handleDecisionTimer starts the reactive-decision clock when an action
// suspends, and clears it once the decision resolves.
func (s *ActionService) handleDecisionTimer(ctx context.Context, match *model.Match, gs *skirmish.GameState, res skirmish.ActionResult) error {
	if res.AwaitingDecision && gs.Pending != nil {
		deadline := time.Now().Add(parseDuration(match.DecisionDuration))
		if err := s.cache.SetDecisionTimer(ctx, match.ID, deadline); err != nil {
			return err
		}
		s.broadcaster.BroadcastMatchEvent(match.ID, "awaiting_decision", map[string]any{
			"decider":  gs.Pending.Decider,
			"window":   gs.Pending.Window,
			"deadline": deadline.Format(time.RFC3339),
		})
		return nil
	}
	return s.cache.ClearDecisionTimer(ctx, match.ID)
}

// advance runs one engine phase transition and persists it. Returns true
// when the player turn handed over or the battle ended; in both cases the
// snapshot and turn rows have been written.
func (s *ActionService) advance(ctx context.Context, match *model.Match, turn *model.Turn, gs *skirmish.GameState) (bool, error) {
	adv, err := s.engine.AdvancePhase(gs)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStateFault, err)
	}
	if !adv.Valid {
		log.Warn().Str("matchId", match.ID).Strs("errors", adv.Errors).Msg("Phase advance rejected")
		return false, nil
	}

	transition := skirmish.Action{Type: skirmish.ActionType(advancePhaseRecord)}
	if err := s.commitAdvance(ctx, turn, gs, transition, adv); err != nil {
		return false, err
	}

	if adv.GameOver {
		return true, s.finishMatch(ctx, match, turn, gs)
	}

	// AdvancePhase only lands on Command at a turn handover (from Scoring)
	// or when deployment completes; both close the current turn row.
	if gs.Meta.Phase == skirmish.PhaseCommand {
		return true, s.handOverTurn(ctx, match, turn, gs)
	}

	s.broadcaster.BroadcastMatchEvent(match.ID, "phase_changed", map[string]any{
		"phase":         string(gs.Meta.Phase),
		"battle_round":  gs.Meta.BattleRound,
		"turn_number":   gs.Meta.TurnNumber,
		"active_player": gs.Meta.ActivePlayer,
	})
	return false, nil
}

// commitAdvance records an engine-driven transition in the action log so
// replays include it.
func (s *ActionService) commitAdvance(ctx context.Context, turn *model.Turn, gs *skirmish.GameState, a skirmish.Action, res skirmish.ActionResult) error {
	if err := skirmish.ApplyChanges(gs, res.Changes); err != nil {
		return fmt.Errorf("%w: %v", ErrStateFault, err)
	}
	seq, err := s.cache.NextSeq(ctx, gs.Meta.GameID)
	if err != nil {
		return err
	}
	changesJSON, err := json.Marshal(res.Changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}
	var diceJSON json.RawMessage
	if len(res.Dice) > 0 {
		diceJSON, err = json.Marshal(res.Dice)
		if err != nil {
			return fmt.Errorf("marshal dice: %w", err)
		}
	}
	rec := &model.ActionRecord{
		TurnID:     turn.ID,
		Seq:        seq,
		Player:     "",
		ActionType: advancePhaseRecord,
		Payload:    json.RawMessage(`{}`),
		Changes:    changesJSON,
		Dice:       diceJSON,
	}
	_, err = s.turnRepo.SaveAction(ctx, rec)
	return err
}

// handOverTurn resolves the current turn row, opens the next one with a
// fresh deadline, and restarts the turn timer.
func (s *ActionService) handOverTurn(ctx context.Context, match *model.Match, turn *model.Turn, gs *skirmish.GameState) error {
	stateJSON, err := skirmish.EncodeSnapshot(gs)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.turnRepo.ResolveTurn(ctx, turn.ID, stateJSON); err != nil {
		return err
	}

	deadline := time.Now().Add(parseDuration(match.TurnDuration))
	next, err := s.turnRepo.CreateTurn(ctx, match.ID, gs.Meta.BattleRound, gs.Meta.TurnNumber, string(gs.Meta.Phase), stateJSON, deadline)
	if err != nil {
		return err
	}
	if err := s.cache.SetSnapshot(ctx, match.ID, stateJSON); err != nil {
		return err
	}
	if err := s.cache.SetTurnTimer(ctx, match.ID, next.Deadline); err != nil {
		return err
	}

	log.Info().Str("matchId", match.ID).
		Int("battleRound", gs.Meta.BattleRound).
		Int("turnNumber", gs.Meta.TurnNumber).
		Str("activePlayer", gs.Meta.ActivePlayer).
		Time("deadline", next.Deadline).
		Msg("Turn handed over")

	s.broadcaster.BroadcastMatchEvent(match.ID, "turn_changed", map[string]any{
		"battle_round":  gs.Meta.BattleRound,
		"turn_number":   gs.Meta.TurnNumber,
		"active_player": gs.Meta.ActivePlayer,
		"phase":         string(gs.Meta.Phase),
		"deadline":      next.Deadline.Format(time.RFC3339),
	})
	return nil
}

// finishMatch resolves the final turn, records the winner, and tears down
// the cached match data.
func (s *ActionService) finishMatch(ctx context.Context, match *model.Match, turn *model.Turn, gs *skirmish.GameState) error {
	stateJSON, err := skirmish.EncodeSnapshot(gs)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.turnRepo.ResolveTurn(ctx, turn.ID, stateJSON); err != nil {
		return err
	}
	if err := s.matchRepo.SetFinished(ctx, match.ID, gs.Meta.Winner); err != nil {
		return err
	}

	log.Info().Str("matchId", match.ID).Str("winner", gs.Meta.Winner).Msg("Match ended")

	s.broadcaster.BroadcastMatchEvent(match.ID, "match_ended", map[string]any{
		"winner": gs.Meta.Winner,
	})
	return s.cache.DeleteMatchData(ctx, match.ID)
}

func (s *ActionService) saveSnapshot(ctx context.Context, matchID string, gs *skirmish.GameState) error {
	stateJSON, err := skirmish.EncodeSnapshot(gs)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.cache.SetSnapshot(ctx, matchID, stateJSON)
}

// ExpireTurn handles a turn deadline passing: the server plays out the rest
// of the active player's turn with the conservative defaults (skip every
// unit, take required morale tests, decline reactive windows) until the
// turn hands over. A match still in deployment cannot be defaulted and is
// finished as abandoned.
func (s *ActionService) ExpireTurn(ctx context.Context, matchID string) error {
	mu := s.matchLock(matchID)
	mu.Lock()
	defer mu.Unlock()

	match, err := s.matchRepo.FindByID(ctx, matchID)
	if err != nil || match == nil {
		return fmt.Errorf("find match: %w", err)
	}
	if match.Status != "active" {
		log.Info().Str("matchId", matchID).Str("status", match.Status).Msg("Skipping expiry for non-active match")
		return nil
	}

	turn, err := s.turnRepo.CurrentTurn(ctx, matchID)
	if err != nil || turn == nil {
		return fmt.Errorf("current turn: %w", err)
	}
	// Guard against a stale expiry racing a turn that already handed over.
	if time.Now().Before(turn.Deadline) {
		log.Debug().Str("matchId", matchID).Time("deadline", turn.Deadline).Msg("Turn deadline not yet reached, skipping")
		return nil
	}

	gs, err := s.loadState(ctx, matchID, turn)
	if err != nil {
		return err
	}

	log.Info().Str("matchId", matchID).Str("phase", string(gs.Meta.Phase)).
		Int("battleRound", gs.Meta.BattleRound).Int("turnNumber", gs.Meta.TurnNumber).
		Msg("Turn deadline expired, auto-advancing")

	// Deployment has no default placement; an abandoned deployment ends
	// the match without a winner.
	if gs.Meta.Phase == skirmish.PhaseDeployment {
		return s.abandonMatch(ctx, match, turn, gs)
	}

	for i := 0; i < maxAutoActions; i++ {
		a, ok := s.autoAction(gs)
		if !ok {
			break
		}
		res, err := s.engine.ProcessAction(gs, a)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStateFault, err)
		}
		if !res.Valid || !res.Success {
			log.Warn().Str("matchId", matchID).Str("type", string(a.Type)).
				Strs("errors", res.Errors).Str("error", res.Error).
				Msg("Auto action rejected, stopping expiry advance")
			break
		}
		if err := s.commit(ctx, turn, gs, a, res); err != nil {
			return err
		}
		if res.PhaseComplete {
			done, err := s.advance(ctx, match, turn, gs)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
	return s.saveSnapshot(ctx, matchID, gs)
}

// autoAction picks the default action for the current state: decline a
// pending reactive window, take a required battle-shock test, skip an
// unacted unit, or end the phase.
func (s *ActionService) autoAction(gs *skirmish.GameState) (skirmish.Action, bool) {
	if gs.Pending != nil {
		return skirmish.Action{Type: skirmish.ActionReactiveDecline, Player: gs.Pending.Decider}, true
	}
	var end *skirmish.ActionDescriptor
	for _, d := range s.engine.AvailableActions(gs) {
		d := d
		switch d.Type {
		case skirmish.ActionBattleShock, skirmish.ActionSkipUnit:
			if len(d.UnitIDs) > 0 {
				return skirmish.Action{Type: d.Type, Player: d.Player, UnitID: d.UnitIDs[0]}, true
			}
		case skirmish.ActionEndCommand, skirmish.ActionEndMovement, skirmish.ActionEndShooting,
			skirmish.ActionEndCharge, skirmish.ActionEndFight, skirmish.ActionEndMorale, skirmish.ActionEndScoring:
			if end == nil {
				end = &d
			}
		}
	}
	if end != nil {
		return skirmish.Action{Type: end.Type, Player: end.Player}, true
	}
	return skirmish.Action{}, false
}

// abandonMatch finishes a match that timed out before deployment completed.
func (s *ActionService) abandonMatch(ctx context.Context, match *model.Match, turn *model.Turn, gs *skirmish.GameState) error {
	stateJSON, err := skirmish.EncodeSnapshot(gs)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.turnRepo.ResolveTurn(ctx, turn.ID, stateJSON); err != nil {
		return err
	}
	if err := s.matchRepo.SetFinished(ctx, match.ID, ""); err != nil {
		return err
	}
	log.Info().Str("matchId", match.ID).Msg("Match abandoned during deployment")
	s.broadcaster.BroadcastMatchEvent(match.ID, "match_ended", map[string]any{
		"winner": "",
		"reason": "deployment_timeout",
	})
	return s.cache.DeleteMatchData(ctx, match.ID)
}

// ExpireDecision handles the reactive-decision clock running out: the
// window is declined on the decider's behalf and play resumes.
func (s *ActionService) ExpireDecision(ctx context.Context, matchID string) error {
	mu := s.matchLock(matchID)
	mu.Lock()
	defer mu.Unlock()

	match, err := s.matchRepo.FindByID(ctx, matchID)
	if err != nil || match == nil {
		return fmt.Errorf("find match: %w", err)
	}
	if match.Status != "active" {
		return nil
	}
	turn, err := s.turnRepo.CurrentTurn(ctx, matchID)
	if err != nil || turn == nil {
		return fmt.Errorf("current turn: %w", err)
	}
	gs, err := s.loadState(ctx, matchID, turn)
	if err != nil {
		return err
	}
	if gs.Pending == nil {
		return s.cache.ClearDecisionTimer(ctx, matchID)
	}

	log.Info().Str("matchId", matchID).Str("decider", gs.Pending.Decider).
		Msg("Decision deadline expired, declining reactive window")

	a := skirmish.Action{Type: skirmish.ActionReactiveDecline, Player: gs.Pending.Decider}
	res, err := s.engine.ProcessAction(gs, a)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStateFault, err)
	}
	if !res.Valid || !res.Success {
		log.Warn().Str("matchId", matchID).Strs("errors", res.Errors).Msg("Auto decline rejected")
		return nil
	}
	if err := s.commit(ctx, turn, gs, a, res); err != nil {
		return err
	}
	if err := s.cache.ClearDecisionTimer(ctx, matchID); err != nil {
		return err
	}
	if res.PhaseComplete {
		done, err := s.advance(ctx, match, turn, gs)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return s.saveSnapshot(ctx, matchID, gs)
}

// RecoverActiveMatches rehydrates Redis state for all active matches from
// Postgres. Called on server startup to restore snapshots and timers lost
// during a restart.
func (s *ActionService) RecoverActiveMatches(ctx context.Context) error {
	matches, err := s.matchRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active matches: %w", err)
	}
	if len(matches) == 0 {
		log.Info().Msg("No active matches to recover")
		return nil
	}

	log.Info().Int("count", len(matches)).Msg("Recovering active matches after restart")

	for _, match := range matches {
		turn, err := s.turnRepo.CurrentTurn(ctx, match.ID)
		if err != nil {
			log.Error().Err(err).Str("matchId", match.ID).Msg("Failed to get current turn during recovery")
			continue
		}
		if turn == nil {
			log.Warn().Str("matchId", match.ID).Msg("Active match has no current turn, skipping")
			continue
		}

		gs, err := s.replayTurn(ctx, turn)
		if err != nil {
			log.Error().Err(err).Str("matchId", match.ID).Msg("Failed to replay turn during recovery")
			continue
		}
		if err := s.saveSnapshot(ctx, match.ID, gs); err != nil {
			log.Error().Err(err).Str("matchId", match.ID).Msg("Failed to restore snapshot")
			continue
		}

		if time.Now().Before(turn.Deadline) {
			if err := s.cache.SetTurnTimer(ctx, match.ID, turn.Deadline); err != nil {
				log.Error().Err(err).Str("matchId", match.ID).Msg("Failed to restore turn timer")
			}
		}

		// A suspended decision gets a fresh window rather than an instant
		// timeout after the restart.
		if gs.Pending != nil {
			deadline := time.Now().Add(parseDuration(match.DecisionDuration))
			if err := s.cache.SetDecisionTimer(ctx, match.ID, deadline); err != nil {
				log.Error().Err(err).Str("matchId", match.ID).Msg("Failed to restore decision timer")
			}
		}

		log.Info().Str("matchId", match.ID).Str("phase", string(gs.Meta.Phase)).
			Int("battleRound", gs.Meta.BattleRound).Int("turnNumber", gs.Meta.TurnNumber).
			Time("deadline", turn.Deadline).
			Msg("Recovered match state")
	}
	return nil
}
