package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/stats-tracker/internal/config"
	"github.com/stats-tracker/internal/domain"
	"github.com/stats-tracker/internal/sqlite/migrations"
)

// Store keeps every record kind in a single SQLite file
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewStore opens the database at cfg.Path and applies the bundled schema.
// Path can be ":memory:" for a throwaway database
func NewStore(cfg *config.SQLiteConfig, logger *slog.Logger) (*Store, error) {
	db, err := OpenConnection(cfg.Path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	logger.Info("sqlite store ready", "path", cfg.Path)
	return &Store{
		db:     db,
		path:   cfg.Path,
		logger: logger,
	}, nil
}

// OpenConnection opens and configures a SQLite connection.
// The pool is pinned to one connection so writes serialize in the driver and
// an in-memory database is shared by every query
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return db, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertSnapshot appends one snapshot row and returns its id
func (s *Store) InsertSnapshot(ctx context.Context, snapshot domain.Snapshot) (int64, error) {
	query := `
		INSERT INTO player_stats (player_name, user_id, level, beli, fragments, bounty, honor,
			equipped_fruit, fighting_style, session_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		snapshot.PlayerName,
		snapshot.UserID,
		snapshot.Level,
		snapshot.Beli,
		snapshot.Fragments,
		snapshot.Bounty,
		snapshot.Honor,
		snapshot.EquippedFruit,
		snapshot.FightingStyle,
		snapshot.SessionID,
		toNanos(snapshot.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting snapshot: %w", err)
	}
	return result.LastInsertId()
}

// UpsertAbility records a fighting style, replacing any earlier row for the
// same player and style
func (s *Store) UpsertAbility(ctx context.Context, ability domain.AbilityOwnership) error {
	query := `
		INSERT INTO fighting_styles (player_name, user_id, style_name, owned, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(player_name, style_name)
		DO UPDATE SET user_id = excluded.user_id, owned = excluded.owned, updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		ability.PlayerName,
		ability.UserID,
		ability.StyleName,
		ability.Owned,
		toNanos(ability.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting fighting style: %w", err)
	}
	return nil
}

// ReplaceItems swaps the player's whole item set for items
func (s *Store) ReplaceItems(ctx context.Context, playerName string, items []domain.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM player_items WHERE player_name = ?`, playerName); err != nil {
		return fmt.Errorf("deleting items: %w", err)
	}

	query := `
		INSERT INTO player_items (player_name, user_id, item_name, item_type, rarity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	for _, item := range items {
		_, err := tx.ExecContext(ctx, query,
			playerName,
			item.UserID,
			item.ItemName,
			item.ItemType,
			item.Rarity,
			toNanos(item.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing items: %w", err)
	}
	return nil
}

// InsertProgressEvent appends one progress event and returns its id
func (s *Store) InsertProgressEvent(ctx context.Context, event domain.ProgressEvent) (int64, error) {
	query := `
		INSERT INTO progress_log (player_name, user_id, event_type, old_value, new_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		event.PlayerName,
		event.UserID,
		event.EventType,
		event.OldValue,
		event.NewValue,
		toNanos(event.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting progress event: %w", err)
	}
	return result.LastInsertId()
}

// LatestSnapshots returns the newest snapshot of every player updated after since
func (s *Store) LatestSnapshots(ctx context.Context, since time.Time, limit int) ([]domain.AccountSummary, error) {
	query := `
		SELECT player_name, user_id, level, beli, fragments, fighting_style, equipped_fruit, created_at
		FROM (
			SELECT id, player_name, user_id, level, beli, fragments, fighting_style, equipped_fruit, created_at,
				ROW_NUMBER() OVER (PARTITION BY player_name ORDER BY created_at DESC, id DESC) AS rn
			FROM player_stats
			WHERE created_at > ?
		)
		WHERE rn = 1
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	// SQLite treats a negative LIMIT as no limit
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, query, sinceNanos(since), limit)
	if err != nil {
		return nil, fmt.Errorf("listing latest snapshots: %w", err)
	}
	defer rows.Close()

	var accounts []domain.AccountSummary
	for rows.Next() {
		var a domain.AccountSummary
		var createdAt int64
		err := rows.Scan(
			&a.Name,
			&a.UserID,
			&a.Level,
			&a.Beli,
			&a.Fragments,
			&a.FightingStyle,
			&a.EquippedFruit,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		a.LastUpdate = fromNanos(createdAt)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// LatestSnapshot returns the player's newest snapshot
func (s *Store) LatestSnapshot(ctx context.Context, playerName string) (*domain.Snapshot, error) {
	query := snapshotColumns + `
		WHERE player_name = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	snapshot, err := scanSnapshot(s.db.QueryRowContext(ctx, query, playerName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("getting latest snapshot: %w", err)
	}
	return &snapshot, nil
}

// ListAbilities returns the player's fighting styles in insertion order
func (s *Store) ListAbilities(ctx context.Context, playerName string) ([]domain.AbilityOwnership, error) {
	return s.queryAbilities(ctx, abilityColumns+` WHERE player_name = ? ORDER BY id`, playerName)
}

// ListAllAbilities returns every fighting style row
func (s *Store) ListAllAbilities(ctx context.Context) ([]domain.AbilityOwnership, error) {
	return s.queryAbilities(ctx, abilityColumns+` ORDER BY id`)
}

// ListItems returns the player's items in insertion order
func (s *Store) ListItems(ctx context.Context, playerName string) ([]domain.Item, error) {
	return s.queryItems(ctx, itemColumns+` WHERE player_name = ? ORDER BY id`, playerName)
}

// ListAllItems returns every item row
func (s *Store) ListAllItems(ctx context.Context) ([]domain.Item, error) {
	return s.queryItems(ctx, itemColumns+` ORDER BY id`)
}

// CountPlayers counts distinct player names updated after since
func (s *Store) CountPlayers(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT player_name) FROM player_stats WHERE created_at > ?`,
		sinceNanos(since),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting players: %w", err)
	}
	return count, nil
}

// CountSnapshots counts every snapshot row
func (s *Store) CountSnapshots(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM player_stats`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting snapshots: %w", err)
	}
	return count, nil
}

// AverageLevel averages the level of snapshots taken after since
func (s *Store) AverageLevel(ctx context.Context, since time.Time) (float64, error) {
	var avg float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(level), 0) FROM player_stats WHERE created_at > ?`,
		sinceNanos(since),
	).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("averaging level: %w", err)
	}
	return avg, nil
}

// ListSnapshots returns every snapshot row in insertion order
func (s *Store) ListSnapshots(ctx context.Context) ([]domain.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, snapshotColumns+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []domain.Snapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, rows.Err()
}

// ListProgressEvents returns every progress event in insertion order
func (s *Store) ListProgressEvents(ctx context.Context) ([]domain.ProgressEvent, error) {
	query := `
		SELECT id, player_name, user_id, event_type, old_value, new_value, created_at
		FROM progress_log
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing progress events: %w", err)
	}
	defer rows.Close()

	var events []domain.ProgressEvent
	for rows.Next() {
		var e domain.ProgressEvent
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.PlayerName, &e.UserID, &e.EventType, &e.OldValue, &e.NewValue, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning progress event: %w", err)
		}
		e.CreatedAt = fromNanos(createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

// DeleteAll empties all four tables in one transaction
func (s *Store) DeleteAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"player_stats", "fighting_styles", "player_items", "progress_log"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing clear: %w", err)
	}
	return nil
}

const snapshotColumns = `
	SELECT id, player_name, user_id, level, beli, fragments, bounty, honor,
		equipped_fruit, fighting_style, session_id, created_at
	FROM player_stats
`

const abilityColumns = `
	SELECT id, player_name, user_id, style_name, owned, updated_at
	FROM fighting_styles
`

const itemColumns = `
	SELECT id, player_name, user_id, item_name, item_type, rarity, created_at
	FROM player_items
`

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (domain.Snapshot, error) {
	var snapshot domain.Snapshot
	var createdAt int64
	err := row.Scan(
		&snapshot.ID,
		&snapshot.PlayerName,
		&snapshot.UserID,
		&snapshot.Level,
		&snapshot.Beli,
		&snapshot.Fragments,
		&snapshot.Bounty,
		&snapshot.Honor,
		&snapshot.EquippedFruit,
		&snapshot.FightingStyle,
		&snapshot.SessionID,
		&createdAt,
	)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snapshot.CreatedAt = fromNanos(createdAt)
	return snapshot, nil
}

func (s *Store) queryAbilities(ctx context.Context, query string, args ...any) ([]domain.AbilityOwnership, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing fighting styles: %w", err)
	}
	defer rows.Close()

	var abilities []domain.AbilityOwnership
	for rows.Next() {
		var a domain.AbilityOwnership
		var updatedAt int64
		if err := rows.Scan(&a.ID, &a.PlayerName, &a.UserID, &a.StyleName, &a.Owned, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning fighting style: %w", err)
		}
		a.UpdatedAt = fromNanos(updatedAt)
		abilities = append(abilities, a)
	}
	return abilities, rows.Err()
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var it domain.Item
		var rarity sql.NullString
		var createdAt int64
		if err := rows.Scan(&it.ID, &it.PlayerName, &it.UserID, &it.ItemName, &it.ItemType, &rarity, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		if rarity.Valid {
			it.Rarity = &rarity.String
		}
		it.CreatedAt = fromNanos(createdAt)
		items = append(items, it)
	}
	return items, rows.Err()
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// sinceNanos maps a zero time to the smallest bound so every row matches
func sinceNanos(since time.Time) int64 {
	if since.IsZero() {
		return math.MinInt64
	}
	return toNanos(since)
}
