package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/freeeve/measured-violence/internal/model"
)

// TurnRepo handles turn and action database operations.
type TurnRepo struct {
	db *sql.DB
}

// NewTurnRepo creates a TurnRepo.
func NewTurnRepo(db *sql.DB) *TurnRepo {
	return &TurnRepo{db: db}
}

// CreateTurn inserts a new turn.
func (r *TurnRepo) CreateTurn(ctx context.Context, matchID string, battleRound, turnNumber int, phase string, stateBefore json.RawMessage, deadline time.Time) (*model.Turn, error) {
	var t model.Turn
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO turns (match_id, battle_round, turn_number, phase, state_before, deadline)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, match_id, battle_round, turn_number, phase, state_before, deadline, created_at`,
		matchID, battleRound, turnNumber, phase, stateBefore, deadline,
	).Scan(&t.ID, &t.MatchID, &t.BattleRound, &t.TurnNumber, &t.Phase, &t.StateBefore, &t.Deadline, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create turn: %w", err)
	}
	return &t, nil
}

// CurrentTurn returns the latest unresolved turn for a match.
func (r *TurnRepo) CurrentTurn(ctx context.Context, matchID string) (*model.Turn, error) {
	var t model.Turn
	var stateAfter sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, match_id, battle_round, turn_number, phase, state_before, state_after, deadline, resolved_at, created_at
		 FROM turns WHERE match_id = $1 AND resolved_at IS NULL
		 ORDER BY created_at DESC LIMIT 1`, matchID,
	).Scan(&t.ID, &t.MatchID, &t.BattleRound, &t.TurnNumber, &t.Phase, &t.StateBefore, &stateAfter, &t.Deadline, &t.ResolvedAt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current turn: %w", err)
	}
	if stateAfter.Valid {
		t.StateAfter = json.RawMessage(stateAfter.String)
	}
	return &t, nil
}

// ListTurns returns all turns for a match in play order.
func (r *TurnRepo) ListTurns(ctx context.Context, matchID string) ([]model.Turn, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, match_id, battle_round, turn_number, phase, state_before, state_after, deadline, resolved_at, created_at
		 FROM turns WHERE match_id = $1
		 ORDER BY turn_number, created_at`, matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []model.Turn
	for rows.Next() {
		var t model.Turn
		var stateAfter sql.NullString
		if err := rows.Scan(&t.ID, &t.MatchID, &t.BattleRound, &t.TurnNumber, &t.Phase, &t.StateBefore, &stateAfter, &t.Deadline, &t.ResolvedAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if stateAfter.Valid {
			t.StateAfter = json.RawMessage(stateAfter.String)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// ResolveTurn marks a turn as resolved and stores the resulting state.
func (r *TurnRepo) ResolveTurn(ctx context.Context, turnID string, stateAfter json.RawMessage) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE turns SET state_after = $1, resolved_at = now() WHERE id = $2`,
		stateAfter, turnID,
	)
	if err != nil {
		return fmt.Errorf("resolve turn: %w", err)
	}
	return nil
}

// SaveAction inserts one committed action record.
func (r *TurnRepo) SaveAction(ctx context.Context, rec *model.ActionRecord) (*model.ActionRecord, error) {
	var saved model.ActionRecord
	var changes, dice sql.NullString
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO actions (turn_id, seq, player, action_type, payload, changes, dice)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, turn_id, seq, player, action_type, payload, changes, dice, created_at`,
		rec.TurnID, rec.Seq, rec.Player, rec.ActionType, rec.Payload, nullJSON(rec.Changes), nullJSON(rec.Dice),
	).Scan(&saved.ID, &saved.TurnID, &saved.Seq, &saved.Player, &saved.ActionType, &saved.Payload, &changes, &dice, &saved.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("save action: %w", err)
	}
	if changes.Valid {
		saved.Changes = json.RawMessage(changes.String)
	}
	if dice.Valid {
		saved.Dice = json.RawMessage(dice.String)
	}
	return &saved, nil
}

// ActionsByTurn returns all committed actions for a turn in sequence order.
func (r *TurnRepo) ActionsByTurn(ctx context.Context, turnID string) ([]model.ActionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, turn_id, seq, player, action_type, payload, changes, dice, created_at
		 FROM actions WHERE turn_id = $1 ORDER BY seq`, turnID,
	)
	if err != nil {
		return nil, fmt.Errorf("actions by turn: %w", err)
	}
	defer rows.Close()

	var recs []model.ActionRecord
	for rows.Next() {
		var rec model.ActionRecord
		var changes, dice sql.NullString
		if err := rows.Scan(&rec.ID, &rec.TurnID, &rec.Seq, &rec.Player, &rec.ActionType, &rec.Payload, &changes, &dice, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		if changes.Valid {
			rec.Changes = json.RawMessage(changes.String)
		}
		if dice.Valid {
			rec.Dice = json.RawMessage(dice.String)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ListExpired returns the latest unresolved turn per match where the deadline has passed.
// Uses DISTINCT ON so a stale older row never shadows the live one.
func (r *TurnRepo) ListExpired(ctx context.Context) ([]model.Turn, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT ON (t.match_id) t.id, t.match_id, t.battle_round, t.turn_number, t.phase, t.state_before, t.deadline, t.created_at
		 FROM turns t
		 JOIN matches m ON m.id = t.match_id
		 WHERE t.resolved_at IS NULL AND t.deadline < now() AND m.status = 'active'
		 ORDER BY t.match_id, t.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list expired turns: %w", err)
	}
	defer rows.Close()

	var turns []model.Turn
	for rows.Next() {
		var t model.Turn
		if err := rows.Scan(&t.ID, &t.MatchID, &t.BattleRound, &t.TurnNumber, &t.Phase, &t.StateBefore, &t.Deadline, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan expired turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
