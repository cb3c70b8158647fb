package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/freeeve/measured-violence/internal/model"
)

// MessageRepo handles match chat database operations.
type MessageRepo struct {
	db *sql.DB
}

// NewMessageRepo creates a MessageRepo.
func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create inserts a new message. RecipientID may be empty for messages
// visible to both players.
func (r *MessageRepo) Create(ctx context.Context, matchID, senderID, recipientID, content, turnID string) (*model.Message, error) {
	var m model.Message
	var recip, turn sql.NullString
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO messages (match_id, sender_id, recipient_id, content, turn_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, match_id, sender_id, recipient_id, content, turn_id, created_at`,
		matchID, senderID, nullStr(recipientID), content, nullStr(turnID),
	).Scan(&m.ID, &m.MatchID, &m.SenderID, &recip, &m.Content, &turn, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	m.RecipientID = recip.String
	m.TurnID = turn.String
	return &m, nil
}

// ListByMatch returns messages visible to a user in a match: open messages
// plus private ones sent to or from them.
func (r *MessageRepo) ListByMatch(ctx context.Context, matchID, userID string) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, match_id, sender_id, COALESCE(recipient_id::text, ''), content, COALESCE(turn_id::text, ''), created_at
		 FROM messages
		 WHERE match_id = $1 AND (recipient_id IS NULL OR sender_id = $2 OR recipient_id = $2)
		 ORDER BY created_at`, matchID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.MatchID, &m.SenderID, &m.RecipientID, &m.Content, &m.TurnID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
