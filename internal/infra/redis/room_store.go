package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"riddle-league/internal/app"
	"riddle-league/internal/domain"
	"riddle-league/internal/infra/memory"
)

// DefaultUpdatesChannel is the Pub/Sub channel used when none is configured.
const DefaultUpdatesChannel = "leaderboard:updates"

var _ app.RoomRepository = (*RoomStore)(nil)

// RoomStore shares leaderboard updates across instances. Publish goes out on a
// Redis channel; every instance, the publisher included, relays what it
// receives into its own local rooms.
type RoomStore struct {
	client  *redis.Client
	channel string
	pubsub  *redis.PubSub
	local   *memory.RoomStore
	logger  *zap.Logger
	done    chan struct{}
}

// NewRoomStore subscribes to channel and starts relaying. Close stops it.
func NewRoomStore(ctx context.Context, client *redis.Client, channel string, logger *zap.Logger) (*RoomStore, error) {
	if channel == "" {
		channel = DefaultUpdatesChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pubsub := client.Subscribe(ctx, channel)
	// Wait for the subscription to be confirmed so no publish is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	s := &RoomStore{
		client:  client,
		channel: channel,
		pubsub:  pubsub,
		local:   memory.NewRoomStore(),
		logger:  logger,
		done:    make(chan struct{}),
	}
	go s.relay(pubsub.Channel())
	return s, nil
}

func (s *RoomStore) relay(messages <-chan *redis.Message) {
	defer close(s.done)
	for msg := range messages {
		var lb domain.Leaderboard
		if err := json.Unmarshal([]byte(msg.Payload), &lb); err != nil {
			s.logger.Warn("decode leaderboard update", zap.String("channel", msg.Channel), zap.Error(err))
			continue
		}
		_ = s.local.Publish(context.Background(), lb)
	}
}

func (s *RoomStore) Subscribe(competitionID string, initial domain.Leaderboard) (<-chan domain.Leaderboard, func()) {
	return s.local.Subscribe(competitionID, initial)
}

// Publish broadcasts lb to all instances. If Redis is unreachable, local
// subscribers still get it and the error is returned.
func (s *RoomStore) Publish(ctx context.Context, lb domain.Leaderboard) error {
	payload, err := json.Marshal(lb)
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		_ = s.local.Publish(ctx, lb)
		return fmt.Errorf("publish leaderboard %s: %w", lb.CompetitionID, err)
	}
	return nil
}

// Active reports whether this instance has live subscribers for competitionID.
func (s *RoomStore) Active(competitionID string) bool {
	return s.local.Active(competitionID)
}

// Close unsubscribes and waits for the relay to drain.
func (s *RoomStore) Close() error {
	err := s.pubsub.Close()
	<-s.done
	return err
}
