package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"bili_bot/internal/model"
	"bili_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

const selectColumns = `SELECT subscriber_id, creator_id, last_seen_item, is_live, filter_types, filter_patterns, created_at
	 FROM subscriptions`

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serialises writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get returns the subscription stored under key.
func (s *SQLite) Get(ctx context.Context, key model.Key) (*model.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		selectColumns+` WHERE subscriber_id = ? AND creator_id = ?`,
		key.SubscriberID, key.CreatorID,
	)
	return scanSubscription(row)
}

// List returns the subscriptions of one subscriber in creation order.
func (s *SQLite) List(ctx context.Context, subscriberID string) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE subscriber_id = ? ORDER BY id`, subscriberID,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSubscriptions(rows)
}

// ListAll returns every subscription.
func (s *SQLite) ListAll(ctx context.Context) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSubscriptions(rows)
}

// ListSubscribers returns the distinct subscriber ids.
func (s *SQLite) ListSubscribers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subscriber_id FROM subscriptions GROUP BY subscriber_id ORDER BY MIN(id)`,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Put inserts a subscription or replaces the existing one for the same key.
// CreatedAt is filled in for new records.
func (s *SQLite) Put(ctx context.Context, sub *model.Subscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	types, patterns, err := encodeFilters(sub)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (subscriber_id, creator_id, last_seen_item, is_live, filter_types, filter_patterns, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (subscriber_id, creator_id) DO UPDATE SET
		   last_seen_item = excluded.last_seen_item,
		   is_live = excluded.is_live,
		   filter_types = excluded.filter_types,
		   filter_patterns = excluded.filter_patterns`,
		sub.SubscriberID, sub.CreatorID, sub.LastSeenItemID, boolToInt(sub.IsLive),
		types, patterns, sub.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// Update applies fn to the stored record inside a transaction.
func (s *SQLite) Update(ctx context.Context, key model.Key, fn UpdateFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		selectColumns+` WHERE subscriber_id = ? AND creator_id = ?`,
		key.SubscriberID, key.CreatorID,
	)
	sub, err := scanSubscription(row)
	if err != nil {
		return err
	}

	if err := fn(sub); err != nil {
		return err
	}
	// The key is not part of the mutable state.
	sub.SubscriberID, sub.CreatorID = key.SubscriberID, key.CreatorID

	types, patterns, err := encodeFilters(sub)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE subscriptions SET last_seen_item = ?, is_live = ?, filter_types = ?, filter_patterns = ?
		 WHERE subscriber_id = ? AND creator_id = ?`,
		sub.LastSeenItemID, boolToInt(sub.IsLive), types, patterns, key.SubscriberID, key.CreatorID,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Delete removes one subscription.
func (s *SQLite) Delete(ctx context.Context, key model.Key) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE subscriber_id = ? AND creator_id = ?`,
		key.SubscriberID, key.CreatorID,
	)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSubscriber removes all subscriptions of a subscriber.
func (s *SQLite) DeleteSubscriber(ctx context.Context, subscriberID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE subscriber_id = ?`, subscriberID)
	if err != nil {
		return 0, fmt.Errorf("delete subscriber: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeFilters(sub *model.Subscription) (string, string, error) {
	types := sub.FilterTypes
	if types == nil {
		types = []model.FilterType{}
	}
	patterns := sub.FilterPatterns
	if patterns == nil {
		patterns = []string{}
	}
	t, err := json.Marshal(types)
	if err != nil {
		return "", "", fmt.Errorf("encode filter types: %w", err)
	}
	p, err := json.Marshal(patterns)
	if err != nil {
		return "", "", fmt.Errorf("encode filter patterns: %w", err)
	}
	return string(t), string(p), nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubscription(row scannable) (*model.Subscription, error) {
	var sub model.Subscription
	var isLive int
	var types, patterns, created string
	err := row.Scan(&sub.SubscriberID, &sub.CreatorID, &sub.LastSeenItemID, &isLive, &types, &patterns, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	sub.IsLive = isLive == 1
	if err := json.Unmarshal([]byte(types), &sub.FilterTypes); err != nil {
		return nil, fmt.Errorf("decode filter types: %w", err)
	}
	if err := json.Unmarshal([]byte(patterns), &sub.FilterPatterns); err != nil {
		return nil, fmt.Errorf("decode filter patterns: %w", err)
	}
	if len(sub.FilterTypes) == 0 {
		sub.FilterTypes = nil
	}
	if len(sub.FilterPatterns) == 0 {
		sub.FilterPatterns = nil
	}
	sub.CreatedAt, _ = time.Parse(timeLayout, created)
	return &sub, nil
}

func scanSubscriptions(rows *sql.Rows) ([]model.Subscription, error) {
	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}
