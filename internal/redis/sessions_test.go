package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stats-tracker/internal/domain"
	"github.com/stats-tracker/internal/session"
)

func newTestTracker(t *testing.T) *SessionTracker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSessionTrackerFromClient(client, "test", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSessionTrackerTouchAndList(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)
	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	require.NoError(t, tr.Touch(ctx, domain.Session{Name: "Luffy", UserID: 1, Level: 500, Beli: 100000, SessionID: "s1", LastUpdate: base}))
	require.NoError(t, tr.Touch(ctx, domain.Session{Name: "Zoro", UserID: 2, Level: 450, LastUpdate: base.Add(time.Minute)}))
	require.NoError(t, tr.Touch(ctx, domain.Session{Name: "Luffy", UserID: 1, Level: 501, Beli: 120000, SessionID: "s1", LastUpdate: base.Add(2 * time.Minute)}))

	count, err := tr.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	list, err := tr.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "Luffy", list[0].Name)
	assert.EqualValues(t, 501, list[0].Level)
	assert.EqualValues(t, 120000, list[0].Beli)
	assert.Equal(t, "s1", list[0].SessionID)
	assert.True(t, base.Add(2*time.Minute).Equal(list[0].LastUpdate))
	assert.Equal(t, "Zoro", list[1].Name)
}

func TestSessionTrackerReset(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	require.NoError(t, tr.Touch(ctx, domain.Session{Name: "Nami", LastUpdate: time.Now()}))
	require.NoError(t, tr.Reset(ctx))

	count, err := tr.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	list, err := tr.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	// Reset on an empty tracker is fine
	require.NoError(t, tr.Reset(ctx))
}

func TestSessionTrackerMatchesMemoryTracker(t *testing.T) {
	properties := gopter.NewProperties(nil)
	ctx := context.Background()

	properties.Property("redis and memory trackers count the same players", prop.ForAll(
		func(names []string) bool {
			redisTracker := newTestTracker(t)
			memTracker := session.NewMemoryTracker()
			now := time.Now()

			for i, name := range names {
				s := domain.Session{Name: name, Level: int64(i), LastUpdate: now.Add(time.Duration(i) * time.Second)}
				if err := redisTracker.Touch(ctx, s); err != nil {
					return false
				}
				if err := memTracker.Touch(ctx, s); err != nil {
					return false
				}
			}

			rc, err := redisTracker.Count(ctx)
			if err != nil {
				return false
			}
			mc, err := memTracker.Count(ctx)
			if err != nil {
				return false
			}
			return rc == mc
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
