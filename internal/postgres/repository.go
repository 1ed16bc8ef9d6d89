package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stats-tracker/internal/config"
	"github.com/stats-tracker/internal/domain"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return NewRepositoryFromPool(pool, logger), nil
}

// NewRepositoryFromPool wraps an existing pool
func NewRepositoryFromPool(pool *pgxpool.Pool, logger *slog.Logger) *Repository {
	return &Repository{
		pool:   pool,
		logger: logger,
	}
}

// Close closes the database connection pool
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// Ping checks the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS player_stats (
			id BIGSERIAL PRIMARY KEY,
			player_name TEXT NOT NULL,
			user_id BIGINT NOT NULL DEFAULT 0,
			level BIGINT NOT NULL DEFAULT 0,
			beli BIGINT NOT NULL DEFAULT 0,
			fragments BIGINT NOT NULL DEFAULT 0,
			bounty BIGINT NOT NULL DEFAULT 0,
			honor BIGINT NOT NULL DEFAULT 0,
			equipped_fruit TEXT NOT NULL DEFAULT '',
			fighting_style TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS fighting_styles (
			id BIGSERIAL PRIMARY KEY,
			player_name TEXT NOT NULL,
			user_id BIGINT NOT NULL DEFAULT 0,
			style_name TEXT NOT NULL,
			owned BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(player_name, style_name)
		)`,
		`CREATE TABLE IF NOT EXISTS player_items (
			id BIGSERIAL PRIMARY KEY,
			player_name TEXT NOT NULL,
			user_id BIGINT NOT NULL DEFAULT 0,
			item_name TEXT NOT NULL,
			item_type TEXT NOT NULL,
			rarity TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS progress_log (
			id BIGSERIAL PRIMARY KEY,
			player_name TEXT NOT NULL,
			user_id BIGINT NOT NULL DEFAULT 0,
			event_type TEXT NOT NULL,
			old_value TEXT NOT NULL DEFAULT '',
			new_value TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_player_stats_player ON player_stats(player_name, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_player_stats_created ON player_stats(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_player_items_player ON player_items(player_name)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// InsertSnapshot appends one snapshot row and returns its id
func (r *Repository) InsertSnapshot(ctx context.Context, snapshot domain.Snapshot) (int64, error) {
	query := `
		INSERT INTO player_stats (player_name, user_id, level, beli, fragments, bounty, honor,
			equipped_fruit, fighting_style, session_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	var id int64
	err := r.pool.QueryRow(ctx, query,
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
		snapshot.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting snapshot: %w", err)
	}
	return id, nil
}

// UpsertAbility inserts or updates a player's fighting style
func (r *Repository) UpsertAbility(ctx context.Context, ability domain.AbilityOwnership) error {
	query := `
		INSERT INTO fighting_styles (player_name, user_id, style_name, owned, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (player_name, style_name)
		DO UPDATE SET user_id = $2, owned = $4, updated_at = $5
	`
	_, err := r.pool.Exec(ctx, query,
		ability.PlayerName,
		ability.UserID,
		ability.StyleName,
		ability.Owned,
		ability.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting fighting style: %w", err)
	}
	return nil
}

// ReplaceItems deletes the player's items and inserts the new set in one transaction
func (r *Repository) ReplaceItems(ctx context.Context, playerName string, items []domain.Item) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM player_items WHERE player_name = $1`, playerName); err != nil {
			return fmt.Errorf("deleting items: %w", err)
		}
		if len(items) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		query := `
			INSERT INTO player_items (player_name, user_id, item_name, item_type, rarity, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		for _, item := range items {
			batch.Queue(query, playerName, item.UserID, item.ItemName, item.ItemType, item.Rarity, item.CreatedAt)
		}

		br := tx.SendBatch(ctx, batch)
		for range items {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("inserting item: %w", err)
			}
		}
		return br.Close()
	})
}

// InsertProgressEvent records a progression change
func (r *Repository) InsertProgressEvent(ctx context.Context, event domain.ProgressEvent) (int64, error) {
	query := `
		INSERT INTO progress_log (player_name, user_id, event_type, old_value, new_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	var id int64
	err := r.pool.QueryRow(ctx, query,
		event.PlayerName,
		event.UserID,
		event.EventType,
		event.OldValue,
		event.NewValue,
		event.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("recording progress event: %w", err)
	}
	return id, nil
}

// LatestSnapshots returns the newest snapshot of every player updated after since
func (r *Repository) LatestSnapshots(ctx context.Context, since time.Time, limit int) ([]domain.AccountSummary, error) {
	query := `
		WITH ranked AS (
			SELECT id, player_name, user_id, level, beli, fragments, fighting_style, equipped_fruit, created_at,
				   ROW_NUMBER() OVER (PARTITION BY player_name ORDER BY created_at DESC, id DESC) AS rn
			FROM player_stats
			WHERE $1::timestamptz IS NULL OR created_at > $1
		)
		SELECT player_name, user_id, level, beli, fragments, fighting_style, equipped_fruit, created_at
		FROM ranked
		WHERE rn = 1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	// LIMIT NULL returns every row
	var limitArg *int
	if limit > 0 {
		limitArg = &limit
	}

	rows, err := r.pool.Query(ctx, query, sinceArg(since), limitArg)
	if err != nil {
		return nil, fmt.Errorf("listing latest snapshots: %w", err)
	}
	defer rows.Close()

	var accounts []domain.AccountSummary
	for rows.Next() {
		var a domain.AccountSummary
		err := rows.Scan(
			&a.Name,
			&a.UserID,
			&a.Level,
			&a.Beli,
			&a.Fragments,
			&a.FightingStyle,
			&a.EquippedFruit,
			&a.LastUpdate,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		a.LastUpdate = a.LastUpdate.UTC()
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// LatestSnapshot returns the player's newest snapshot
func (r *Repository) LatestSnapshot(ctx context.Context, playerName string) (*domain.Snapshot, error) {
	query := snapshotColumns + `
		WHERE player_name = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	snapshot, err := scanSnapshot(r.pool.QueryRow(ctx, query, playerName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("getting latest snapshot: %w", err)
	}
	return &snapshot, nil
}

// ListAbilities returns the player's fighting styles
func (r *Repository) ListAbilities(ctx context.Context, playerName string) ([]domain.AbilityOwnership, error) {
	return r.queryAbilities(ctx, abilityColumns+` WHERE player_name = $1 ORDER BY id`, playerName)
}

// ListAllAbilities returns every fighting style row
func (r *Repository) ListAllAbilities(ctx context.Context) ([]domain.AbilityOwnership, error) {
	return r.queryAbilities(ctx, abilityColumns+` ORDER BY id`)
}

// ListItems returns the player's items
func (r *Repository) ListItems(ctx context.Context, playerName string) ([]domain.Item, error) {
	return r.queryItems(ctx, itemColumns+` WHERE player_name = $1 ORDER BY id`, playerName)
}

// ListAllItems returns every item row
func (r *Repository) ListAllItems(ctx context.Context) ([]domain.Item, error) {
	return r.queryItems(ctx, itemColumns+` ORDER BY id`)
}

// CountPlayers returns the number of distinct players updated after since
func (r *Repository) CountPlayers(ctx context.Context, since time.Time) (int64, error) {
	query := `SELECT COUNT(DISTINCT player_name) FROM player_stats WHERE $1::timestamptz IS NULL OR created_at > $1`
	var count int64
	if err := r.pool.QueryRow(ctx, query, sinceArg(since)).Scan(&count); err != nil {
		return 0, fmt.Errorf("getting player count: %w", err)
	}
	return count, nil
}

// CountSnapshots returns the total number of snapshot rows
func (r *Repository) CountSnapshots(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM player_stats`).Scan(&count); err != nil {
		return 0, fmt.Errorf("getting snapshot count: %w", err)
	}
	return count, nil
}

// AverageLevel averages the level of snapshots taken after since
func (r *Repository) AverageLevel(ctx context.Context, since time.Time) (float64, error) {
	query := `SELECT COALESCE(AVG(level), 0)::float8 FROM player_stats WHERE $1::timestamptz IS NULL OR created_at > $1`
	var avg float64
	if err := r.pool.QueryRow(ctx, query, sinceArg(since)).Scan(&avg); err != nil {
		return 0, fmt.Errorf("averaging level: %w", err)
	}
	return avg, nil
}

// ListSnapshots returns every snapshot row
func (r *Repository) ListSnapshots(ctx context.Context) ([]domain.Snapshot, error) {
	rows, err := r.pool.Query(ctx, snapshotColumns+` ORDER BY id`)
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

// ListProgressEvents returns every progress event
func (r *Repository) ListProgressEvents(ctx context.Context) ([]domain.ProgressEvent, error) {
	query := `
		SELECT id, player_name, user_id, event_type, old_value, new_value, created_at
		FROM progress_log
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing progress events: %w", err)
	}
	defer rows.Close()

	var events []domain.ProgressEvent
	for rows.Next() {
		var e domain.ProgressEvent
		if err := rows.Scan(&e.ID, &e.PlayerName, &e.UserID, &e.EventType, &e.OldValue, &e.NewValue, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning progress event: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// DeleteAll clears all four tables in one transaction
func (r *Repository) DeleteAll(ctx context.Context) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, table := range []string{"player_stats", "fighting_styles", "player_items", "progress_log"} {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}
		return nil
	})
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

func scanSnapshot(row pgx.Row) (domain.Snapshot, error) {
	var s domain.Snapshot
	err := row.Scan(
		&s.ID,
		&s.PlayerName,
		&s.UserID,
		&s.Level,
		&s.Beli,
		&s.Fragments,
		&s.Bounty,
		&s.Honor,
		&s.EquippedFruit,
		&s.FightingStyle,
		&s.SessionID,
		&s.CreatedAt,
	)
	if err != nil {
		return domain.Snapshot{}, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

func (r *Repository) queryAbilities(ctx context.Context, query string, args ...any) ([]domain.AbilityOwnership, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing fighting styles: %w", err)
	}
	defer rows.Close()

	var abilities []domain.AbilityOwnership
	for rows.Next() {
		var a domain.AbilityOwnership
		if err := rows.Scan(&a.ID, &a.PlayerName, &a.UserID, &a.StyleName, &a.Owned, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning fighting style: %w", err)
		}
		a.UpdatedAt = a.UpdatedAt.UTC()
		abilities = append(abilities, a)
	}
	return abilities, rows.Err()
}

func (r *Repository) queryItems(ctx context.Context, query string, args ...any) ([]domain.Item, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.ID, &it.PlayerName, &it.UserID, &it.ItemName, &it.ItemType, &it.Rarity, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		it.CreatedAt = it.CreatedAt.UTC()
		items = append(items, it)
	}
	return items, rows.Err()
}

// sinceArg maps a zero time to NULL, which disables the window
func sinceArg(since time.Time) *time.Time {
	if since.IsZero() {
		return nil
	}
	return &since
}
