package skirmish

import (
	"encoding/json"
	"fmt"
)

// EncodeSnapshot serializes the full game state for persistence or
// replication. The layout is the documented snapshot shape: meta, units,
// board, players, plus the optional effects/pending/history sections.
func EncodeSnapshot(gs *GameState) ([]byte, error) {
	if err := validateSnapshot(gs); err != nil {
		return nil, err
	}
	return json.Marshal(gs)
}

// DecodeSnapshot parses and validates a persisted snapshot. Optional
// sections may be absent; the required sections must be present and
// structurally sound or the snapshot is rejected.
func DecodeSnapshot(data []byte) (*GameState, error) {
	var gs GameState
	if err := json.Unmarshal(data, &gs); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if err := validateSnapshot(&gs); err != nil {
		return nil, err
	}
	return &gs, nil
}

func validateSnapshot(gs *GameState) error {
	if gs.Meta.GameID == "" {
		return fmt.Errorf("snapshot missing meta.game_id")
	}
	if gs.Meta.Phase == "" {
		return fmt.Errorf("snapshot missing meta.phase")
	}
	if gs.Units == nil {
		return fmt.Errorf("snapshot missing units")
	}
	if gs.Players == nil {
		return fmt.Errorf("snapshot missing players")
	}
	if len(gs.Players) != 2 {
		return fmt.Errorf("snapshot must carry exactly 2 players, has %d", len(gs.Players))
	}
	if gs.Board.Width <= 0 || gs.Board.Height <= 0 {
		return fmt.Errorf("snapshot board has non-positive dimensions")
	}
	if gs.Meta.ActivePlayer != "" {
		if _, ok := gs.Players[gs.Meta.ActivePlayer]; !ok {
			return fmt.Errorf("snapshot meta.active_player %q is not a player", gs.Meta.ActivePlayer)
		}
		// Round accounting compares the finishing player to first_player,
		// so it must name a player whenever a turn order exists.
		if _, ok := gs.Players[gs.Meta.FirstPlayer]; !ok {
			return fmt.Errorf("snapshot meta.first_player %q is not a player", gs.Meta.FirstPlayer)
		}
	}
	for id, u := range gs.Units {
		if u == nil {
			return fmt.Errorf("snapshot unit %q is null", id)
		}
		if u.ID != "" && u.ID != id {
			return fmt.Errorf("snapshot unit key %q disagrees with id %q", id, u.ID)
		}
		if _, ok := gs.Players[u.Player]; !ok {
			return fmt.Errorf("snapshot unit %q belongs to unknown player %q", id, u.Player)
		}
		if len(u.Models) == 0 {
			return fmt.Errorf("snapshot unit %q has no models", id)
		}
	}
	return checkIntegrity(gs)
}
