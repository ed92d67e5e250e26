// Package conversation gives the evaluation pipeline its read access to the
// chat application's message history, plus the evidence-window helpers the
// scorers share.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/model"
	logx "github.com/ensemble-chat/server/pkg/logger"
)

// RedisStore reads (and, for the chat app's writer path, appends) messages
// in Redis. Each channel keeps one list; each agent keeps a parallel list of
// its own messages so agent-scoped windows avoid a channel scan.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisStore creates the store. A non-positive ttl disables expiry.
func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) channelKey(channelID string) string {
	return fmt.Sprintf("channel:%s:messages", channelID)
}

func (s *RedisStore) agentKey(agentID string) string {
	return fmt.Sprintf("agent:%s:messages", agentID)
}

// AddMessage appends a message to its channel list and the author's list.
func (s *RedisStore) AddMessage(ctx context.Context, channelID string, msg model.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		logx.Error().Err(err).Str("channelID", channelID).Msg("failed to marshal message")
		return fmt.Errorf("marshal message: %w", err)
	}

	for _, key := range []string{s.channelKey(channelID), s.agentKey(msg.UserID)} {
		if err := s.rdb.RPush(ctx, key, b).Err(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to push message to redis")
			return errx.WrapRedis(err)
		}
		if s.ttl > 0 {
			if err := s.rdb.Expire(ctx, key, s.ttl).Err(); err != nil {
				logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
				return errx.WrapRedis(err)
			}
		}
	}
	return nil
}

// AgentMessages returns the agent's own messages inside the window, oldest first.
func (s *RedisStore) AgentMessages(ctx context.Context, agentID string, window model.Window) ([]model.Message, error) {
	return s.load(ctx, s.agentKey(agentID), window)
}

// ChannelMessages returns the channel's messages inside the window, oldest first.
func (s *RedisStore) ChannelMessages(ctx context.Context, channelID string, window model.Window) ([]model.Message, error) {
	return s.load(ctx, s.channelKey(channelID), window)
}

func (s *RedisStore) load(ctx context.Context, key string, window model.Window) ([]model.Message, error) {
	rows, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return []model.Message{}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load messages from redis")
		return nil, errx.WrapRedis(err)
	}

	msgs := make([]model.Message, 0, len(rows))
	for i, row := range rows {
		var m model.Message
		if err := json.Unmarshal([]byte(row), &m); err != nil {
			logx.Error().Err(err).Str("key", key).Int("index", i).Msg("failed to unmarshal message")
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		msgs = append(msgs, m)
	}
	return ApplyWindow(msgs, window), nil
}

var _ model.ConversationStore = (*RedisStore)(nil)
