package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key patterns for Redis match state.
func snapshotKey(matchID string) string { return "match:" + matchID + ":state" }
func seqKey(matchID string) string      { return "match:" + matchID + ":seq" }
func timerKey(matchID string) string    { return "match:" + matchID + ":timer" }
func decisionKey(matchID string) string { return "match:" + matchID + ":decision" }

// SetSnapshot stores the live game-state snapshot JSON.
func (c *Client) SetSnapshot(ctx context.Context, matchID string, state json.RawMessage) error {
	return c.rdb.Set(ctx, snapshotKey(matchID), []byte(state), 0).Err()
}

// GetSnapshot retrieves the live game-state snapshot JSON.
func (c *Client) GetSnapshot(ctx context.Context, matchID string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, snapshotKey(matchID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return json.RawMessage(data), nil
}

// NextSeq returns the next action sequence number for a match. Sequence
// numbers order committed actions so replicas replay diffs deterministically.
func (c *Client) NextSeq(ctx context.Context, matchID string) (int64, error) {
	n, err := c.rdb.Incr(ctx, seqKey(matchID)).Result()
	if err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return n, nil
}

// deadlineGracePeriod is the extra time after the displayed deadline before
// expiry handling triggers, giving players a few seconds of leeway.
const deadlineGracePeriod = 5 * time.Second

// SetTurnTimer creates a turn timer key with a TTL. When the key expires,
// Redis keyspace notifications trigger turn expiry handling.
func (c *Client) SetTurnTimer(ctx context.Context, matchID string, deadline time.Time) error {
	return c.setExpiryKey(ctx, timerKey(matchID), deadline)
}

// ClearTurnTimer removes the turn timer for a match.
func (c *Client) ClearTurnTimer(ctx context.Context, matchID string) error {
	return c.rdb.Del(ctx, timerKey(matchID)).Err()
}

// SetDecisionTimer creates a timer for a pending reactive decision. On
// expiry the server declines the window on the decider's behalf.
func (c *Client) SetDecisionTimer(ctx context.Context, matchID string, deadline time.Time) error {
	return c.setExpiryKey(ctx, decisionKey(matchID), deadline)
}

// ClearDecisionTimer removes the pending-decision timer for a match.
func (c *Client) ClearDecisionTimer(ctx context.Context, matchID string) error {
	return c.rdb.Del(ctx, decisionKey(matchID)).Err()
}

func (c *Client) setExpiryKey(ctx context.Context, key string, deadline time.Time) error {
	ttl := time.Until(deadline) + deadlineGracePeriod
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.rdb.Set(ctx, key, deadline.Unix(), ttl).Err()
}

// DeleteMatchData removes all Redis data for a match (on match end).
func (c *Client) DeleteMatchData(ctx context.Context, matchID string) error {
	keys := []string{snapshotKey(matchID), seqKey(matchID), timerKey(matchID), decisionKey(matchID)}
	return c.rdb.Del(ctx, keys...).Err()
}
