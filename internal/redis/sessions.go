package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stats-tracker/internal/config"
	"github.com/stats-tracker/internal/domain"
)

// SessionTracker keeps the last update of every player in Redis so several
// tracker instances share one view of who is online
type SessionTracker struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewSessionTracker connects to Redis and creates a tracker
func NewSessionTracker(cfg *config.RedisConfig, logger *slog.Logger) (*SessionTracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewSessionTrackerFromClient(client, cfg.KeyPrefix, logger), nil
}

// NewSessionTrackerFromClient wraps an existing client
func NewSessionTrackerFromClient(client *redis.Client, prefix string, logger *slog.Logger) *SessionTracker {
	return &SessionTracker{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// Close closes the Redis connection
func (t *SessionTracker) Close() error {
	return t.client.Close()
}

// indexKey returns the key of the sorted set ordering players by last update
func (t *SessionTracker) indexKey() string {
	return fmt.Sprintf("%s:sessions", t.prefix)
}

// sessionKey returns the key of the hash holding one player's session
func (t *SessionTracker) sessionKey(name string) string {
	return fmt.Sprintf("%s:session:%s", t.prefix, name)
}

// Touch records session as the player's latest state
func (t *SessionTracker) Touch(ctx context.Context, session domain.Session) error {
	pipe := t.client.TxPipeline()
	pipe.ZAdd(ctx, t.indexKey(), redis.Z{
		Score:  float64(session.LastUpdate.UnixMilli()),
		Member: session.Name,
	})
	pipe.HSet(ctx, t.sessionKey(session.Name),
		"user_id", session.UserID,
		"level", session.Level,
		"beli", session.Beli,
		"session_id", session.SessionID,
		"last_update", session.LastUpdate.Format(time.RFC3339Nano),
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

// Count returns the number of distinct players seen
func (t *SessionTracker) Count(ctx context.Context) (int64, error) {
	count, err := t.client.ZCard(ctx, t.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return count, nil
}

// List returns every session, most recently updated first
func (t *SessionTracker) List(ctx context.Context) ([]domain.Session, error) {
	names, err := t.client.ZRevRange(ctx, t.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	if len(names) == 0 {
		return nil, nil
	}

	pipe := t.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(names))
	for i, name := range names {
		cmds[i] = pipe.HGetAll(ctx, t.sessionKey(name))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("reading sessions: %w", err)
	}

	sessions := make([]domain.Session, 0, len(names))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// Hash expired or was deleted between the two reads
			continue
		}
		sessions = append(sessions, parseSession(names[i], fields))
	}
	return sessions, nil
}

// Reset forgets every session
func (t *SessionTracker) Reset(ctx context.Context) error {
	names, err := t.client.ZRange(ctx, t.indexKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	keys := make([]string, 0, len(names)+1)
	keys = append(keys, t.indexKey())
	for _, name := range names {
		keys = append(keys, t.sessionKey(name))
	}

	if err := t.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("resetting sessions: %w", err)
	}
	return nil
}

func parseSession(name string, fields map[string]string) domain.Session {
	userID, _ := strconv.ParseInt(fields["user_id"], 10, 64)
	level, _ := strconv.ParseInt(fields["level"], 10, 64)
	beli, _ := strconv.ParseInt(fields["beli"], 10, 64)
	lastUpdate, _ := time.Parse(time.RFC3339Nano, fields["last_update"])

	return domain.Session{
		Name:       name,
		UserID:     userID,
		Level:      level,
		Beli:       beli,
		SessionID:  fields["session_id"],
		LastUpdate: lastUpdate,
	}
}
