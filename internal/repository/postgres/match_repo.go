package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/freeeve/measured-violence/internal/model"
)

// MatchRepo handles match and match_player database operations.
type MatchRepo struct {
	db *sql.DB
}

// NewMatchRepo creates a MatchRepo.
func NewMatchRepo(db *sql.DB) *MatchRepo {
	return &MatchRepo{db: db}
}

// Create inserts a new match.
func (r *MatchRepo) Create(ctx context.Context, name, creatorID string, seed int64, turnDur, decisionDur string) (*model.Match, error) {
	var m model.Match
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO matches (name, creator_id, seed, turn_duration, decision_duration)
		 VALUES ($1, $2, $3, $4::interval, $5::interval)
		 RETURNING id, name, creator_id, status, seed, turn_duration, decision_duration, created_at`,
		name, creatorID, seed, turnDur, decisionDur,
	).Scan(&m.ID, &m.Name, &m.CreatorID, &m.Status, &m.Seed, &m.TurnDuration, &m.DecisionDuration, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}
	return &m, nil
}

// FindByID returns a match by ID with its players.
func (r *MatchRepo) FindByID(ctx context.Context, id string) (*model.Match, error) {
	var m model.Match
	var winner sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, creator_id, status, winner, seed, turn_duration, decision_duration,
		        created_at, started_at, finished_at
		 FROM matches WHERE id = $1`, id,
	).Scan(&m.ID, &m.Name, &m.CreatorID, &m.Status, &winner, &m.Seed, &m.TurnDuration, &m.DecisionDuration,
		&m.CreatedAt, &m.StartedAt, &m.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find match: %w", err)
	}
	m.Winner = winner.String

	players, err := r.ListPlayers(ctx, id)
	if err != nil {
		return nil, err
	}
	m.Players = players
	return &m, nil
}

// ListOpen returns matches in "waiting" status.
func (r *MatchRepo) ListOpen(ctx context.Context) ([]model.Match, error) {
	return r.list(ctx,
		`SELECT id, name, creator_id, status, winner, seed, turn_duration, decision_duration,
		        created_at, started_at, finished_at
		 FROM matches WHERE status = 'waiting' ORDER BY created_at DESC LIMIT 50`)
}

// ListByUser returns all matches a user is part of (as player or creator).
func (r *MatchRepo) ListByUser(ctx context.Context, userID string) ([]model.Match, error) {
	return r.list(ctx,
		`SELECT DISTINCT m.id, m.name, m.creator_id, m.status, m.winner, m.seed, m.turn_duration, m.decision_duration,
		        m.created_at, m.started_at, m.finished_at
		 FROM matches m LEFT JOIN match_players mp ON m.id = mp.match_id AND mp.user_id = $1
		 WHERE mp.user_id = $1 OR m.creator_id = $1
		 ORDER BY m.created_at DESC LIMIT 50`, userID)
}

// ListFinished returns finished matches, most recent first.
func (r *MatchRepo) ListFinished(ctx context.Context) ([]model.Match, error) {
	return r.list(ctx,
		`SELECT id, name, creator_id, status, winner, seed, turn_duration, decision_duration,
		        created_at, started_at, finished_at
		 FROM matches WHERE status = 'finished' ORDER BY finished_at DESC LIMIT 100`)
}

// ListActive returns all matches with status 'active', including their players.
func (r *MatchRepo) ListActive(ctx context.Context) ([]model.Match, error) {
	matches, err := r.list(ctx,
		`SELECT id, name, creator_id, status, winner, seed, turn_duration, decision_duration,
		        created_at, started_at, finished_at
		 FROM matches WHERE status = 'active' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	for i := range matches {
		players, err := r.ListPlayers(ctx, matches[i].ID)
		if err != nil {
			return nil, err
		}
		matches[i].Players = players
	}
	return matches, nil
}

func (r *MatchRepo) list(ctx context.Context, query string, args ...any) ([]model.Match, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var matches []model.Match
	for rows.Next() {
		var m model.Match
		var winner sql.NullString
		if err := rows.Scan(&m.ID, &m.Name, &m.CreatorID, &m.Status, &winner, &m.Seed, &m.TurnDuration, &m.DecisionDuration,
			&m.CreatedAt, &m.StartedAt, &m.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		m.Winner = winner.String
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Join adds a player to a match.
func (r *MatchRepo) Join(ctx context.Context, matchID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO match_players (match_id, user_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		matchID, userID,
	)
	if err != nil {
		return fmt.Errorf("join match: %w", err)
	}
	return nil
}

// ListPlayers returns all players in a match.
func (r *MatchRepo) ListPlayers(ctx context.Context, matchID string) ([]model.MatchPlayer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT match_id, user_id, side, joined_at FROM match_players WHERE match_id = $1 ORDER BY joined_at`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var players []model.MatchPlayer
	for rows.Next() {
		var p model.MatchPlayer
		var side sql.NullString
		if err := rows.Scan(&p.MatchID, &p.UserID, &side, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		p.Side = side.String
		players = append(players, p)
	}
	return players, rows.Err()
}

// PlayerCount returns the number of players in a match.
func (r *MatchRepo) PlayerCount(ctx context.Context, matchID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM match_players WHERE match_id = $1`, matchID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("player count: %w", err)
	}
	return count, nil
}

// AssignSides assigns attacker/defender to the players and activates the match.
func (r *MatchRepo) AssignSides(ctx context.Context, matchID string, sides map[string]string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for userID, side := range sides {
		_, err := tx.ExecContext(ctx,
			`UPDATE match_players SET side = $1 WHERE match_id = $2 AND user_id = $3`,
			side, matchID, userID,
		)
		if err != nil {
			return fmt.Errorf("assign side: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE matches SET status = 'active', started_at = now() WHERE id = $1`, matchID,
	)
	if err != nil {
		return fmt.Errorf("update match status: %w", err)
	}

	return tx.Commit()
}

// SetFinished marks a match as finished. Winner may be empty for a tie.
func (r *MatchRepo) SetFinished(ctx context.Context, matchID, winner string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE matches SET status = 'finished', winner = $1, finished_at = now() WHERE id = $2`,
		nullStr(winner), matchID,
	)
	if err != nil {
		return fmt.Errorf("set finished: %w", err)
	}
	return nil
}

// Delete removes a match and all associated data (cascades to players, turns, actions, messages).
func (r *MatchRepo) Delete(ctx context.Context, matchID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM matches WHERE id = $1`, matchID)
	if err != nil {
		return fmt.Errorf("delete match: %w", err)
	}
	return nil
}
