// Package storetest holds the behaviour every service.Store backend must share
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stats-tracker/internal/domain"
	"github.com/stats-tracker/internal/service"
)

// base is a fixed, microsecond-aligned instant every backend can round-trip
var base = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// Run exercises a fresh store from newStore in every subtest
func Run(t *testing.T, newStore func(t *testing.T) service.Store) {
	t.Run("latest snapshot", func(t *testing.T) { testLatestSnapshot(t, newStore(t)) })
	t.Run("latest snapshot tie", func(t *testing.T) { testLatestSnapshotTie(t, newStore(t)) })
	t.Run("missing account", func(t *testing.T) { testMissingAccount(t, newStore(t)) })
	t.Run("upsert ability", func(t *testing.T) { testUpsertAbility(t, newStore(t)) })
	t.Run("replace items", func(t *testing.T) { testReplaceItems(t, newStore(t)) })
	t.Run("latest snapshots", func(t *testing.T) { testLatestSnapshots(t, newStore(t)) })
	t.Run("aggregates", func(t *testing.T) { testAggregates(t, newStore(t)) })
	t.Run("progress events", func(t *testing.T) { testProgressEvents(t, newStore(t)) })
	t.Run("delete all", func(t *testing.T) { testDeleteAll(t, newStore(t)) })
}

func snapshot(name string, level int64, at time.Time) domain.Snapshot {
	return domain.Snapshot{
		PlayerName:    name,
		UserID:        42,
		Level:         level,
		Beli:          level * 100,
		Fragments:     level * 2,
		Bounty:        7,
		Honor:         3,
		EquippedFruit: "Gomu Gomu",
		FightingStyle: "Combat",
		SessionID:     "session-" + name,
		CreatedAt:     at,
	}
}

func insert(t *testing.T, s service.Store, snap domain.Snapshot) int64 {
	t.Helper()
	id, err := s.InsertSnapshot(context.Background(), snap)
	require.NoError(t, err)
	return id
}

func testLatestSnapshot(t *testing.T, s service.Store) {
	ctx := context.Background()
	insert(t, s, snapshot("Luffy", 10, base))
	insert(t, s, snapshot("Luffy", 20, base.Add(time.Minute)))
	insert(t, s, snapshot("Zoro", 30, base.Add(30*time.Second)))

	got, err := s.LatestSnapshot(ctx, "Luffy")
	require.NoError(t, err)

	want := snapshot("Luffy", 20, base.Add(time.Minute))
	assert.NotZero(t, got.ID)
	assert.Equal(t, want.PlayerName, got.PlayerName)
	assert.Equal(t, want.UserID, got.UserID)
	assert.Equal(t, want.Level, got.Level)
	assert.Equal(t, want.Beli, got.Beli)
	assert.Equal(t, want.Fragments, got.Fragments)
	assert.Equal(t, want.Bounty, got.Bounty)
	assert.Equal(t, want.Honor, got.Honor)
	assert.Equal(t, want.EquippedFruit, got.EquippedFruit)
	assert.Equal(t, want.FightingStyle, got.FightingStyle)
	assert.Equal(t, want.SessionID, got.SessionID)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", got.CreatedAt, want.CreatedAt)
}

func testLatestSnapshotTie(t *testing.T, s service.Store) {
	insert(t, s, snapshot("Nami", 1, base))
	insert(t, s, snapshot("Nami", 2, base))

	got, err := s.LatestSnapshot(context.Background(), "Nami")
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Level)
}

func testMissingAccount(t *testing.T, s service.Store) {
	_, err := s.LatestSnapshot(context.Background(), "Nobody")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.True(t, domain.IsNotFoundError(err))
}

func testUpsertAbility(t *testing.T, s service.Store) {
	ctx := context.Background()
	fist := domain.AbilityOwnership{PlayerName: "Luffy", UserID: 1, StyleName: "Fist", Owned: true, UpdatedAt: base}
	karate := domain.AbilityOwnership{PlayerName: "Luffy", UserID: 1, StyleName: "Karate", Owned: true, UpdatedAt: base}
	other := domain.AbilityOwnership{PlayerName: "Zoro", UserID: 2, StyleName: "Fist", Owned: true, UpdatedAt: base}

	require.NoError(t, s.UpsertAbility(ctx, fist))
	require.NoError(t, s.UpsertAbility(ctx, karate))
	require.NoError(t, s.UpsertAbility(ctx, other))

	fist.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, s.UpsertAbility(ctx, fist))

	abilities, err := s.ListAbilities(ctx, "Luffy")
	require.NoError(t, err)
	require.Len(t, abilities, 2)

	byName := map[string]domain.AbilityOwnership{}
	for _, a := range abilities {
		byName[a.StyleName] = a
	}
	assert.True(t, byName["Fist"].Owned)
	assert.True(t, byName["Karate"].Owned)
	assert.True(t, base.Add(time.Hour).Equal(byName["Fist"].UpdatedAt))

	all, err := s.ListAllAbilities(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func testReplaceItems(t *testing.T, s service.Store) {
	ctx := context.Background()
	legendary := "Legendary"

	first := []domain.Item{
		{PlayerName: "Zoro", ItemName: "Wado Ichimonji", ItemType: domain.ItemTypeSword, Rarity: &legendary, CreatedAt: base},
		{PlayerName: "Zoro", ItemName: "Flintlock", ItemType: domain.ItemTypeGun, CreatedAt: base},
	}
	require.NoError(t, s.ReplaceItems(ctx, "Zoro", first))
	require.NoError(t, s.ReplaceItems(ctx, "Usopp", []domain.Item{
		{PlayerName: "Usopp", ItemName: "Kabuto", ItemType: domain.ItemTypeGun, CreatedAt: base},
	}))

	items, err := s.ListItems(ctx, "Zoro")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Wado Ichimonji", items[0].ItemName)
	require.NotNil(t, items[0].Rarity)
	assert.Equal(t, legendary, *items[0].Rarity)
	assert.Nil(t, items[1].Rarity)

	require.NoError(t, s.ReplaceItems(ctx, "Zoro", []domain.Item{
		{PlayerName: "Zoro", ItemName: "Enma", ItemType: domain.ItemTypeSword, CreatedAt: base.Add(time.Minute)},
	}))

	items, err = s.ListItems(ctx, "Zoro")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Enma", items[0].ItemName)

	// An empty set clears the player's items and leaves others alone
	require.NoError(t, s.ReplaceItems(ctx, "Zoro", nil))
	items, err = s.ListItems(ctx, "Zoro")
	require.NoError(t, err)
	assert.Empty(t, items)

	all, err := s.ListAllItems(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Usopp", all[0].PlayerName)
}

func testLatestSnapshots(t *testing.T, s service.Store) {
	ctx := context.Background()
	insert(t, s, snapshot("Old", 1, base.Add(-2*time.Hour)))
	insert(t, s, snapshot("Luffy", 10, base.Add(-3*time.Hour)))
	insert(t, s, snapshot("Luffy", 11, base.Add(-10*time.Minute)))
	insert(t, s, snapshot("Zoro", 20, base.Add(-5*time.Minute)))

	all, err := s.LatestSnapshots(ctx, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"Zoro", "Luffy", "Old"}, names(all))
	assert.EqualValues(t, 11, all[1].Level)
	assert.True(t, base.Add(-10*time.Minute).Equal(all[1].LastUpdate))

	recent, err := s.LatestSnapshots(ctx, base.Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Zoro", "Luffy"}, names(recent))

	limited, err := s.LatestSnapshots(ctx, time.Time{}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Zoro", "Luffy"}, names(limited))

	// The window bound is exclusive
	edge, err := s.LatestSnapshots(ctx, base.Add(-5*time.Minute), 0)
	require.NoError(t, err)
	assert.Empty(t, edge)
}

func testAggregates(t *testing.T, s service.Store) {
	ctx := context.Background()

	players, err := s.CountPlayers(ctx, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, players)

	avg, err := s.AverageLevel(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, avg)

	insert(t, s, snapshot("Luffy", 10, base.Add(-2*time.Hour)))
	insert(t, s, snapshot("Luffy", 20, base.Add(-time.Minute)))
	insert(t, s, snapshot("Zoro", 25, base.Add(-time.Minute)))

	players, err = s.CountPlayers(ctx, time.Time{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, players)

	active, err := s.CountPlayers(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, active)

	snapshots, err := s.CountSnapshots(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, snapshots)

	avg, err = s.AverageLevel(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 22.5, avg, 0.001)
}

func testProgressEvents(t *testing.T, s service.Store) {
	ctx := context.Background()

	id, err := s.InsertProgressEvent(ctx, domain.ProgressEvent{
		PlayerName: "Luffy",
		UserID:     1,
		EventType:  "level_up",
		OldValue:   "499",
		NewValue:   "500",
		CreatedAt:  base,
	})
	require.NoError(t, err)
	assert.NotZero(t, id)

	events, err := s.ListProgressEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "level_up", events[0].EventType)
	assert.Equal(t, "500", events[0].NewValue)
	assert.True(t, base.Equal(events[0].CreatedAt))
}

func testDeleteAll(t *testing.T, s service.Store) {
	ctx := context.Background()
	insert(t, s, snapshot("Luffy", 10, base))
	require.NoError(t, s.UpsertAbility(ctx, domain.AbilityOwnership{PlayerName: "Luffy", StyleName: "Fist", Owned: true, UpdatedAt: base}))
	require.NoError(t, s.ReplaceItems(ctx, "Luffy", []domain.Item{{PlayerName: "Luffy", ItemName: "Katana", ItemType: domain.ItemTypeSword, CreatedAt: base}}))
	_, err := s.InsertProgressEvent(ctx, domain.ProgressEvent{PlayerName: "Luffy", EventType: "level_up", CreatedAt: base})
	require.NoError(t, err)

	require.NoError(t, s.DeleteAll(ctx))

	snapshots, err := s.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshots)

	abilities, err := s.ListAllAbilities(ctx)
	require.NoError(t, err)
	assert.Empty(t, abilities)

	items, err := s.ListAllItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	events, err := s.ListProgressEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)

	count, err := s.CountSnapshots(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func names(accounts []domain.AccountSummary) []string {
	out := make([]string, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.Name)
	}
	return out
}
