package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/stats-tracker/internal/clock"
	"github.com/stats-tracker/internal/config"
	"github.com/stats-tracker/internal/domain"
	"github.com/stats-tracker/internal/feed"
	"github.com/stats-tracker/internal/metrics"
)

const pingMessage = "Blox Fruits Tracker Online!"

// Store is the persistence gateway over the four record kinds
type Store interface {
	InsertSnapshot(ctx context.Context, snapshot domain.Snapshot) (int64, error)
	UpsertAbility(ctx context.Context, ability domain.AbilityOwnership) error
	ReplaceItems(ctx context.Context, playerName string, items []domain.Item) error
	InsertProgressEvent(ctx context.Context, event domain.ProgressEvent) (int64, error)

	// LatestSnapshots returns the newest snapshot of every player updated
	// after since, newest first. A zero since disables the window and a
	// limit <= 0 disables truncation
	LatestSnapshots(ctx context.Context, since time.Time, limit int) ([]domain.AccountSummary, error)
	// LatestSnapshot returns domain.ErrAccountNotFound when the player has no rows
	LatestSnapshot(ctx context.Context, playerName string) (*domain.Snapshot, error)
	ListAbilities(ctx context.Context, playerName string) ([]domain.AbilityOwnership, error)
	ListItems(ctx context.Context, playerName string) ([]domain.Item, error)

	// CountPlayers counts distinct names updated after since (zero: all time)
	CountPlayers(ctx context.Context, since time.Time) (int64, error)
	CountSnapshots(ctx context.Context) (int64, error)
	// AverageLevel averages level over snapshots after since, 0 when none
	AverageLevel(ctx context.Context, since time.Time) (float64, error)

	ListSnapshots(ctx context.Context) ([]domain.Snapshot, error)
	ListAllAbilities(ctx context.Context) ([]domain.AbilityOwnership, error)
	ListAllItems(ctx context.Context) ([]domain.Item, error)
	ListProgressEvents(ctx context.Context) ([]domain.ProgressEvent, error)

	DeleteAll(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// SessionTracker remembers the last update of every player seen
type SessionTracker interface {
	Touch(ctx context.Context, session domain.Session) error
	Count(ctx context.Context) (int64, error)
	List(ctx context.Context) ([]domain.Session, error)
	Reset(ctx context.Context) error
}

// Broadcaster pushes live activity to connected dashboards
type Broadcaster interface {
	BroadcastActivity(entry domain.ActivityEntry)
	BroadcastCleared()
}

// TrackerService ingests stat snapshots and answers dashboard queries
type TrackerService struct {
	store    Store
	activity *feed.Feed
	sessions SessionTracker
	hub      Broadcaster
	clock    clock.Clock
	config   *config.QueryConfig
	logger   *slog.Logger

	validate *validator.Validate
	printer  *message.Printer

	mu     sync.Mutex
	lastTS time.Time
}

// NewTrackerService creates a new tracker service
func NewTrackerService(
	store Store,
	activity *feed.Feed,
	sessions SessionTracker,
	clk clock.Clock,
	cfg *config.QueryConfig,
	logger *slog.Logger,
) *TrackerService {
	return &TrackerService{
		store:    store,
		activity: activity,
		sessions: sessions,
		clock:    clk,
		config:   cfg,
		logger:   logger,
		validate: validator.New(),
		printer:  message.NewPrinter(language.English),
	}
}

// SetHub sets the broadcaster notified on every ingestion and clear
func (s *TrackerService) SetHub(hub Broadcaster) {
	s.hub = hub
}

// nextTimestamp returns the clock time, never earlier than the previous one
func (s *TrackerService) nextTimestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().Truncate(time.Microsecond)
	if now.Before(s.lastTS) {
		now = s.lastTS
	}
	s.lastTS = now
	return now
}

// Ingest persists one snapshot payload and records it in the activity feed
func (s *TrackerService) Ingest(ctx context.Context, payload domain.StatsPayload) (*domain.IngestResult, error) {
	if err := s.validate.Struct(payload); err != nil {
		metrics.IngestFailuresTotal.WithLabelValues(metrics.ReasonValidation).Inc()
		return nil, domain.ErrMissingPlayerName
	}

	start := time.Now()
	now := s.nextTimestamp()
	stored := now.UTC()

	snapshot := domain.Snapshot{
		PlayerName:    payload.PlayerName,
		UserID:        int64(payload.UserID),
		Level:         int64(payload.Level),
		Beli:          int64(payload.Beli),
		Fragments:     int64(payload.Fragments),
		Bounty:        int64(payload.Bounty),
		Honor:         int64(payload.Honor),
		EquippedFruit: payload.EquippedFruit,
		FightingStyle: payload.FightingStyle,
		SessionID:     payload.SessionID,
		CreatedAt:     stored,
	}
	if _, err := s.store.InsertSnapshot(ctx, snapshot); err != nil {
		return nil, s.storageFailure("saving snapshot", err)
	}

	if payload.FightingStyles != nil {
		for _, style := range payload.FightingStyles.Owned {
			ability := domain.AbilityOwnership{
				PlayerName: payload.PlayerName,
				UserID:     int64(payload.UserID),
				StyleName:  style,
				Owned:      true,
				UpdatedAt:  stored,
			}
			if err := s.store.UpsertAbility(ctx, ability); err != nil {
				return nil, s.storageFailure("saving fighting style", err)
			}
		}
	}

	if payload.Items != nil {
		items := make([]domain.Item, 0, len(payload.Items.Swords)+len(payload.Items.Guns))
		for _, name := range payload.Items.Swords {
			items = append(items, s.item(payload, name, domain.ItemTypeSword, stored))
		}
		for _, name := range payload.Items.Guns {
			items = append(items, s.item(payload, name, domain.ItemTypeGun, stored))
		}
		if err := s.store.ReplaceItems(ctx, payload.PlayerName, items); err != nil {
			return nil, s.storageFailure("saving items", err)
		}
	}

	metrics.IngestLatency.Observe(time.Since(start).Seconds())
	metrics.SnapshotsIngestedTotal.Inc()

	entry := domain.ActivityEntry{
		Timestamp:  now.Format("15:04:05"),
		PlayerName: payload.PlayerName,
		Message:    s.activityMessage(payload),
	}
	s.activity.Append(entry)
	metrics.ActivityFeedSize.Set(float64(s.activity.Len()))

	session := domain.Session{
		Name:       payload.PlayerName,
		UserID:     int64(payload.UserID),
		Level:      int64(payload.Level),
		Beli:       int64(payload.Beli),
		SessionID:  payload.SessionID,
		LastUpdate: now,
	}
	if err := s.sessions.Touch(ctx, session); err != nil {
		s.logger.Warn("failed to update session tracker", "player", payload.PlayerName, "error", err)
	}

	if s.hub != nil {
		s.hub.BroadcastActivity(entry)
	}

	s.logger.Info("stats received",
		"player", payload.PlayerName,
		"user_id", int64(payload.UserID),
		"level", int64(payload.Level),
		"beli", int64(payload.Beli),
		"fragments", int64(payload.Fragments),
		"fighting_style", payload.FightingStyle,
	)

	return &domain.IngestResult{
		Timestamp: now,
		Player:    payload.PlayerName,
	}, nil
}

func (s *TrackerService) item(payload domain.StatsPayload, name, itemType string, at time.Time) domain.Item {
	return domain.Item{
		PlayerName: payload.PlayerName,
		UserID:     int64(payload.UserID),
		ItemName:   name,
		ItemType:   itemType,
		CreatedAt:  at,
	}
}

// activityMessage renders e.g. "Level 500 - 100,000 Beli"
func (s *TrackerService) activityMessage(payload domain.StatsPayload) string {
	return fmt.Sprintf("Level %d - %s Beli", int64(payload.Level), s.printer.Sprintf("%d", int64(payload.Beli)))
}

func (s *TrackerService) storageFailure(op string, err error) error {
	metrics.IngestFailuresTotal.WithLabelValues(metrics.ReasonStorage).Inc()
	return domain.NewStorageError(op, err)
}

// Roster returns the latest state of every player updated within window.
// A window <= 0 uses the configured active window
func (s *TrackerService) Roster(ctx context.Context, window time.Duration) ([]domain.AccountSummary, error) {
	if window <= 0 {
		window = s.config.ActiveWindow
	}
	since := s.clock.Now().Add(-window).UTC()

	accounts, err := s.store.LatestSnapshots(ctx, since, 0)
	if err != nil {
		return nil, domain.NewStorageError("listing active players", err)
	}
	return nonNil(accounts), nil
}

// RecentAccounts returns the most recently updated players across all history
func (s *TrackerService) RecentAccounts(ctx context.Context, limit int) (*domain.RecentAccounts, error) {
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	if limit > s.config.MaxLimit {
		limit = s.config.MaxLimit
	}

	accounts, err := s.store.LatestSnapshots(ctx, time.Time{}, limit)
	if err != nil {
		return nil, domain.NewStorageError("listing recent accounts", err)
	}

	total, err := s.store.CountPlayers(ctx, time.Time{})
	if err != nil {
		return nil, domain.NewStorageError("counting players", err)
	}

	return &domain.RecentAccounts{
		Accounts:   nonNil(accounts),
		TotalCount: total,
		Showing:    len(accounts),
	}, nil
}

// AccountDetail returns a player's latest snapshot with its styles and items
func (s *TrackerService) AccountDetail(ctx context.Context, playerName string) (*domain.AccountDetail, error) {
	snapshot, err := s.store.LatestSnapshot(ctx, playerName)
	if err != nil {
		if domain.IsNotFoundError(err) {
			return nil, err
		}
		return nil, domain.NewStorageError("getting account", err)
	}

	abilities, err := s.store.ListAbilities(ctx, playerName)
	if err != nil {
		return nil, domain.NewStorageError("listing fighting styles", err)
	}

	items, err := s.store.ListItems(ctx, playerName)
	if err != nil {
		return nil, domain.NewStorageError("listing items", err)
	}

	detail := &domain.AccountDetail{
		Name:           snapshot.PlayerName,
		UserID:         snapshot.UserID,
		Level:          snapshot.Level,
		Beli:           snapshot.Beli,
		Fragments:      snapshot.Fragments,
		FightingStyle:  snapshot.FightingStyle,
		EquippedFruit:  snapshot.EquippedFruit,
		Bounty:         snapshot.Bounty,
		Honor:          snapshot.Honor,
		SessionID:      snapshot.SessionID,
		LastUpdate:     snapshot.CreatedAt,
		FightingStyles: make([]domain.OwnedStyle, 0, len(abilities)),
		Items:          make([]domain.HeldItem, 0, len(items)),
	}
	for _, a := range abilities {
		detail.FightingStyles = append(detail.FightingStyles, domain.OwnedStyle{Name: a.StyleName, Owned: a.Owned})
	}
	for _, it := range items {
		detail.Items = append(detail.Items, domain.HeldItem{Name: it.ItemName, Type: it.ItemType, Rarity: it.Rarity})
	}

	return detail, nil
}

// AggregateCounts returns all-time totals and figures for the active window
func (s *TrackerService) AggregateCounts(ctx context.Context) (*domain.AggregateCounts, error) {
	since := s.clock.Now().Add(-s.config.ActiveWindow).UTC()

	players, err := s.store.CountPlayers(ctx, time.Time{})
	if err != nil {
		return nil, domain.NewStorageError("counting players", err)
	}

	updates, err := s.store.CountSnapshots(ctx)
	if err != nil {
		return nil, domain.NewStorageError("counting snapshots", err)
	}

	avg, err := s.store.AverageLevel(ctx, since)
	if err != nil {
		return nil, domain.NewStorageError("averaging level", err)
	}

	active, err := s.store.CountPlayers(ctx, since)
	if err != nil {
		return nil, domain.NewStorageError("counting active players", err)
	}

	return &domain.AggregateCounts{
		TotalPlayers: players,
		TotalUpdates: updates,
		AvgLevel:     int64(avg),
		ActiveNow:    active,
	}, nil
}

// Dashboard collects the roster, counts and latest activity in one call
func (s *TrackerService) Dashboard(ctx context.Context) (*domain.Dashboard, error) {
	counts, err := s.AggregateCounts(ctx)
	if err != nil {
		return nil, err
	}

	roster, err := s.Roster(ctx, 0)
	if err != nil {
		return nil, err
	}

	return &domain.Dashboard{
		Counts:        *counts,
		ActivePlayers: roster,
		RecentUpdates: s.RecentActivity(s.config.DashboardFeed),
		GeneratedAt:   s.clock.Now(),
	}, nil
}

// RecentActivity returns up to n of the newest feed entries, oldest first
func (s *TrackerService) RecentActivity(n int) []domain.ActivityEntry {
	return s.activity.Last(n)
}

// ExportAll dumps every table
func (s *TrackerService) ExportAll(ctx context.Context) (*domain.Export, error) {
	snapshots, err := s.store.ListSnapshots(ctx)
	if err != nil {
		return nil, domain.NewStorageError("exporting snapshots", err)
	}

	abilities, err := s.store.ListAllAbilities(ctx)
	if err != nil {
		return nil, domain.NewStorageError("exporting fighting styles", err)
	}

	items, err := s.store.ListAllItems(ctx)
	if err != nil {
		return nil, domain.NewStorageError("exporting items", err)
	}

	events, err := s.store.ListProgressEvents(ctx)
	if err != nil {
		return nil, domain.NewStorageError("exporting progress log", err)
	}

	return &domain.Export{
		ExportTime:     s.clock.Now(),
		PlayerStats:    nonNil(snapshots),
		FightingStyles: nonNil(abilities),
		PlayerItems:    nonNil(items),
		ProgressLog:    nonNil(events),
	}, nil
}

// ClearAll deletes every stored row and resets the in-memory state
func (s *TrackerService) ClearAll(ctx context.Context) error {
	if err := s.store.DeleteAll(ctx); err != nil {
		return domain.NewStorageError("clearing data", err)
	}

	s.activity.Reset()
	metrics.ActivityFeedSize.Set(0)

	if err := s.sessions.Reset(ctx); err != nil {
		s.logger.Warn("failed to reset session tracker", "error", err)
	}

	if s.hub != nil {
		s.hub.BroadcastCleared()
	}

	s.logger.Info("all tracking data cleared")
	return nil
}

// Ping reports liveness and the number of players seen by the session tracker
func (s *TrackerService) Ping(ctx context.Context) (*domain.PingInfo, error) {
	active, err := s.sessions.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting sessions: %w", err)
	}

	return &domain.PingInfo{
		Message:       pingMessage,
		Timestamp:     s.clock.Now().Format(time.DateTime),
		ActivePlayers: active,
	}, nil
}

// Sessions returns the session tracker contents, most recent first
func (s *TrackerService) Sessions(ctx context.Context) ([]domain.Session, error) {
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return nonNil(sessions), nil
}

// Ready checks that the store is reachable
func (s *TrackerService) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
