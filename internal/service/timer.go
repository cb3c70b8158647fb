package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/measured-violence/internal/repository"
)

// TimerListener listens for Redis keyspace notifications on expired timer
// keys and triggers turn or decision expiry when a match clock runs out.
// Also runs a polling fallback to catch expirations if keyspace
// notifications are unavailable.
type TimerListener struct {
	rdb       *redis.Client
	actionSvc *ActionService
	turnRepo  repository.TurnRepository
}

// NewTimerListener creates a TimerListener.
func NewTimerListener(rdb *redis.Client, actionSvc *ActionService, turnRepo repository.TurnRepository) *TimerListener {
	return &TimerListener{rdb: rdb, actionSvc: actionSvc, turnRepo: turnRepo}
}

// Start begins listening for expired key events and runs a polling fallback.
func (t *TimerListener) Start(ctx context.Context) {
	go t.listenKeyspace(ctx)
	t.pollExpiredTurns(ctx)
}

// listenKeyspace subscribes to Redis keyspace notifications for expired keys.
func (t *TimerListener) listenKeyspace(ctx context.Context) {
	pubsub := t.rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	defer pubsub.Close()

	log.Info().Msg("Timer listener started, listening for expired keys")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			t.handleExpiry(ctx, msg.Payload)
		}
	}
}

// pollExpiredTurns periodically checks for turns past their deadline and
// expires them.
func (t *TimerListener) pollExpiredTurns(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	log.Info().Msg("Turn deadline poller started (10s interval)")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Turn deadline poller stopped")
			return
		case <-ticker.C:
			t.checkExpiredTurns(ctx)
		}
	}
}

// checkExpiredTurns finds active turns past their deadline and expires them.
func (t *TimerListener) checkExpiredTurns(ctx context.Context) {
	turns, err := t.turnRepo.ListExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list expired turns")
		return
	}
	if len(turns) > 0 {
		log.Info().Int("count", len(turns)).Msg("Poller found expired turns")
	}
	for _, turn := range turns {
		log.Info().Str("matchId", turn.MatchID).Str("phase", turn.Phase).
			Int("battleRound", turn.BattleRound).Int("turnNumber", turn.TurnNumber).
			Time("deadline", turn.Deadline).Msg("Poller expiring turn")
		if err := t.actionSvc.ExpireTurn(ctx, turn.MatchID); err != nil {
			log.Error().Err(err).Str("matchId", turn.MatchID).Msg("Turn expiry failed from poller")
		}
	}
}

// handleExpiry processes an expired key. Only acts on match timer and
// decision keys.
func (t *TimerListener) handleExpiry(ctx context.Context, key string) {
	if !strings.HasPrefix(key, "match:") {
		return
	}
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return
	}
	matchID := parts[1]

	switch parts[2] {
	case "timer":
		log.Info().Str("matchId", matchID).Msg("Turn timer expired, auto-advancing")
		if err := t.actionSvc.ExpireTurn(ctx, matchID); err != nil {
			log.Error().Err(err).Str("matchId", matchID).Msg("Turn expiry failed after timer expiry")
		}
	case "decision":
		log.Info().Str("matchId", matchID).Msg("Decision timer expired, auto-declining")
		if err := t.actionSvc.ExpireDecision(ctx, matchID); err != nil {
			log.Error().Err(err).Str("matchId", matchID).Msg("Decision expiry failed after timer expiry")
		}
	}
}
