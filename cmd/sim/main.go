// Command sim plays scripted battles offline: both sides deploy in fixed
// lines and fire everything that bears, with reactive windows declined.
// Useful for eyeballing the dice audit, checking balance drift after rule
// changes, and reproducing a battle from its seed.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/measured-violence/pkg/skirmish"
)

const maxActionsPerBattle = 2000

func main() {
	var (
		seed     int64
		numGames int
		jsonOut  bool
		verbose  bool
	)
	flag.Int64Var(&seed, "seed", 1, "Base seed (battle i uses seed+i)")
	flag.IntVar(&numGames, "n", 1, "Number of battles to run")
	flag.BoolVar(&jsonOut, "json", false, "Output results as JSON")
	flag.BoolVar(&verbose, "v", false, "Log every dice roll group")
	flag.Parse()

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	eng := skirmish.NewEngine(skirmish.DefaultConfig(), skirmish.DefaultStratagems())

	results := make([]*battleResult, 0, numGames)
	wins := map[string]int{}
	for i := 0; i < numGames; i++ {
		res, err := runBattle(eng, seed+int64(i))
		if err != nil {
			log.Error().Err(err).Int64("seed", seed+int64(i)).Msg("Battle aborted")
			continue
		}
		results = append(results, res)
		wins[res.Winner]++
		log.Info().Int64("seed", res.Seed).Str("winner", res.Winner).
			Int("redVP", res.VictoryPoints["red"]).Int("blueVP", res.VictoryPoints["blue"]).
			Int("actions", res.Actions).Uint64("rolls", res.Rolls).
			Msg("Battle finished")
	}

	if jsonOut {
		json.NewEncoder(os.Stdout).Encode(results)
		return
	}
	fmt.Printf("battles: %d  red: %d  blue: %d  draws: %d\n",
		len(results), wins["red"], wins["blue"], wins[""])
}

// battleResult summarizes one completed battle.
type battleResult struct {
	Seed          int64          `json:"seed"`
	Winner        string         `json:"winner"` // "" for a draw
	VictoryPoints map[string]int `json:"victory_points"`
	Actions       int            `json:"actions"`
	Rolls         uint64         `json:"rolls"`
}

func runBattle(eng *skirmish.Engine, seed int64) (*battleResult, error) {
	gs := skirmish.NewDemoGame(fmt.Sprintf("sim-%d", seed), uint64(seed), "red", "blue")

	actions := 0
	for actions < maxActionsPerBattle {
		a, ok := nextAction(eng, gs)
		if !ok {
			return nil, fmt.Errorf("no action available in phase %s", gs.Meta.Phase)
		}
		res, err := eng.ProcessAction(gs, a)
		if err != nil {
			return nil, fmt.Errorf("process %s: %w", a.Type, err)
		}
		if !res.Valid {
			return nil, fmt.Errorf("scripted action %s rejected: %v", a.Type, res.Errors)
		}
		if !res.Success {
			return nil, fmt.Errorf("scripted action %s failed: %s", a.Type, res.Error)
		}
		if err := skirmish.ApplyChanges(gs, res.Changes); err != nil {
			return nil, fmt.Errorf("apply %s: %w", a.Type, err)
		}
		actions++
		logDice(a, res.Dice)

		for res.PhaseComplete {
			adv, err := eng.AdvancePhase(gs)
			if err != nil {
				return nil, fmt.Errorf("advance from %s: %w", gs.Meta.Phase, err)
			}
			if !adv.Valid {
				return nil, fmt.Errorf("advance rejected: %v", adv.Errors)
			}
			if err := skirmish.ApplyChanges(gs, adv.Changes); err != nil {
				return nil, fmt.Errorf("apply advance: %w", err)
			}
			logDice(skirmish.Action{Type: "ADVANCE_PHASE"}, adv.Dice)
			if adv.GameOver {
				return &battleResult{
					Seed:   seed,
					Winner: gs.Meta.Winner,
					VictoryPoints: map[string]int{
						"red":  gs.Players["red"].VictoryPoints,
						"blue": gs.Players["blue"].VictoryPoints,
					},
					Actions: actions,
					Rolls:   gs.Meta.RollCount,
				}, nil
			}
			res = adv
		}
	}
	return nil, fmt.Errorf("battle did not finish within %d actions", maxActionsPerBattle)
}

func logDice(a skirmish.Action, dice []skirmish.DiceRecord) {
	for _, d := range dice {
		log.Debug().Str("action", string(a.Type)).Str("context", d.Context).
			Ints("rolls", d.RollsRaw).Int("successes", d.Successes).
			Strs("modifiers", d.ModifiersApplied).
			Msg("Dice")
	}
}

// line builds count positions spaced 1.5" apart along x.
func line(count int, startX, y float64) []skirmish.Position {
	positions := make([]skirmish.Position, count)
	for i := range positions {
		positions[i] = skirmish.Position{X: startX + float64(i)*1.5, Y: y}
	}
	return positions
}

// deployment spots per unit: reapers start in reserves and drop near the
// home edge once the second battle round opens them up.
var deploySpots = map[string][]skirmish.Position{
	"a_strike":    line(5, 4, 7),
	"a_breachers": line(5, 14, 7),
	"a_walker":    line(1, 30, 7),
	"b_strike":    line(5, 4, 23),
	"b_breachers": line(5, 14, 23),
	"b_walker":    line(1, 30, 23),
}

var dropSpots = map[string][]skirmish.Position{
	"a_reapers": line(3, 4, 2),
	"b_reapers": line(3, 4, 28),
}

// nextAction picks the scripted action for the current state. The script
// declines every reactive window, deploys the fixed lines, shoots and
// fights everything that bears, takes required battle-shock tests, and
// otherwise skips units and ends phases.
func nextAction(eng *skirmish.Engine, gs *skirmish.GameState) (skirmish.Action, bool) {
	if gs.Pending != nil {
		return skirmish.Action{Type: skirmish.ActionReactiveDecline, Player: gs.Pending.Decider}, true
	}

	var end *skirmish.ActionDescriptor
	for _, d := range eng.AvailableActions(gs) {
		d := d
		switch d.Type {
		case skirmish.ActionDeployUnit:
			if a, ok := deployAction(eng, gs, d); ok {
				return a, true
			}
		case skirmish.ActionShoot, skirmish.ActionFight:
			if a, ok := targetedAction(eng, gs, d); ok {
				return a, true
			}
		case skirmish.ActionBattleShock:
			if len(d.UnitIDs) > 0 {
				return skirmish.Action{Type: d.Type, Player: d.Player, UnitID: d.UnitIDs[0]}, true
			}
		case skirmish.ActionSkipUnit:
			if len(d.UnitIDs) > 0 {
				return skirmish.Action{Type: d.Type, Player: d.Player, UnitID: d.UnitIDs[0]}, true
			}
		case skirmish.ActionEndDeployment, skirmish.ActionEndCommand, skirmish.ActionEndMovement,
			skirmish.ActionEndShooting, skirmish.ActionEndCharge, skirmish.ActionEndFight,
			skirmish.ActionEndMorale, skirmish.ActionEndScoring:
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

// deployAction handles both initial deployment and reserve arrivals. A drop
// that validates as blocked (enemies too close) stays in reserves for now.
func deployAction(eng *skirmish.Engine, gs *skirmish.GameState, d skirmish.ActionDescriptor) (skirmish.Action, bool) {
	for _, id := range d.UnitIDs {
		var a skirmish.Action
		if spots, ok := dropSpots[id]; ok {
			if gs.Units[id].Status == skirmish.StatusUndeployed {
				return skirmish.Action{Type: d.Type, Player: d.Player, UnitID: id, ToReserves: true}, true
			}
			a = skirmish.Action{Type: d.Type, Player: d.Player, UnitID: id, Positions: spots}
		} else {
			a = skirmish.Action{Type: d.Type, Player: d.Player, UnitID: id, Positions: deploySpots[id]}
		}
		if v := eng.ValidateAction(gs, a); v.Valid {
			return a, true
		}
	}
	return skirmish.Action{}, false
}

// targetedAction finds the first enemy unit the actor may legally engage.
func targetedAction(eng *skirmish.Engine, gs *skirmish.GameState, d skirmish.ActionDescriptor) (skirmish.Action, bool) {
	for _, id := range d.UnitIDs {
		for _, enemy := range gs.EnemyUnitsOnBoard(d.Player) {
			a := skirmish.Action{Type: d.Type, Player: d.Player, UnitID: id, TargetUnitID: enemy.ID}
			if v := eng.ValidateAction(gs, a); v.Valid {
				return a, true
			}
		}
	}
	return skirmish.Action{}, false
}
