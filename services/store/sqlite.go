package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"pricesentry/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS tracked_items (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id            INTEGER NOT NULL,
	source_url          TEXT    NOT NULL,
	title               TEXT    NOT NULL,
	target_price        TEXT    NOT NULL,
	current_price       TEXT,
	last_notified_price TEXT,
	last_state          TEXT    NOT NULL DEFAULT '',
	active              INTEGER NOT NULL DEFAULT 1,
	created_at          TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(owner_id, source_url)
);
CREATE INDEX IF NOT EXISTS idx_items_owner  ON tracked_items(owner_id);
CREATE INDEX IF NOT EXISTS idx_items_active ON tracked_items(active);

CREATE TABLE IF NOT EXISTS price_observations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	item_id     INTEGER NOT NULL REFERENCES tracked_items(id) ON DELETE CASCADE,
	price       TEXT    NOT NULL,
	observed_at TIMESTAMP NOT NULL,
	source      TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_item ON price_observations(item_id, observed_at);
`

// SQLiteStore implements Store on an embedded sqlite database
type SQLiteStore struct {
	db  *sql.DB
	log *logger.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; one connection avoids lock churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db, log: logger.ForStore()}, nil
}

// CreateItem inserts a tracked item and returns its id
func (s *SQLiteStore) CreateItem(ctx context.Context, item TrackedItem) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tracked_items (owner_id, source_url, title, target_price, current_price, last_state, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.OwnerID, item.SourceURL, item.Title, item.TargetPrice.String(),
		priceOrNil(item.CurrentPrice), item.LastState, item.Active,
	)
	if err != nil {
		return 0, fmt.Errorf("create item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create item id: %w", err)
	}
	s.log.Debug().Int64("item_id", id).Int64("owner_id", item.OwnerID).Msg("Item created")
	return id, nil
}

// GetItem returns a tracked item by id
func (s *SQLiteStore) GetItem(ctx context.Context, id int64) (*TrackedItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, source_url, title, target_price, current_price, last_notified_price, last_state, active
		 FROM tracked_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}
	return item, nil
}

// ListActiveItems returns all active items in id order
func (s *SQLiteStore) ListActiveItems(ctx context.Context) ([]TrackedItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, source_url, title, target_price, current_price, last_notified_price, last_state, active
		 FROM tracked_items WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active items: %w", err)
	}
	defer rows.Close()

	var items []TrackedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// CountByOwner counts the items registered by one owner
func (s *SQLiteStore) CountByOwner(ctx context.Context, ownerID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tracked_items WHERE owner_id = ?`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count items for owner %d: %w", ownerID, err)
	}
	return count, nil
}

// UpdateTargetPrice changes the threshold of an item
func (s *SQLiteStore) UpdateTargetPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tracked_items SET target_price = ? WHERE id = ?`, price.String(), id)
	if err != nil {
		return fmt.Errorf("update target price for item %d: %w", id, err)
	}
	return nil
}

// DeleteItem removes an item; observations cascade
func (s *SQLiteStore) DeleteItem(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tracked_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	return nil
}

// AppendObservation records a price point for an item
func (s *SQLiteStore) AppendObservation(ctx context.Context, itemID int64, price decimal.Decimal, source string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO price_observations (item_id, price, observed_at, source) VALUES (?, ?, ?, ?)`,
		itemID, price.String(), time.Now().UTC(), source)
	if err != nil {
		return fmt.Errorf("append observation for item %d: %w", itemID, err)
	}
	return nil
}

// LatestObservation returns the most recently appended observation, insert id
// breaking ties between equal timestamps
func (s *SQLiteStore) LatestObservation(ctx context.Context, itemID int64) (*PriceObservation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, item_id, price, observed_at, source FROM price_observations
		 WHERE item_id = ? ORDER BY observed_at DESC, id DESC LIMIT 1`, itemID)

	var (
		obs      PriceObservation
		priceStr string
	)
	err := row.Scan(&obs.ID, &obs.ItemID, &priceStr, &obs.ObservedAt, &obs.Source)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest observation for item %d: %w", itemID, err)
	}
	obs.Price, err = decimal.NewFromString(priceStr)
	if err != nil {
		return nil, fmt.Errorf("decode observation price %q: %w", priceStr, err)
	}
	return &obs, nil
}

// SetCurrentPrice updates the last fetched price of an item
func (s *SQLiteStore) SetCurrentPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tracked_items SET current_price = ? WHERE id = ?`, price.String(), id)
	if err != nil {
		return fmt.Errorf("set current price for item %d: %w", id, err)
	}
	return nil
}

// SetNotificationState records which notification was last sent
func (s *SQLiteStore) SetNotificationState(ctx context.Context, id int64, state string, lastNotified *decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tracked_items SET last_state = ?, last_notified_price = ? WHERE id = ?`,
		state, priceOrNil(lastNotified), id)
	if err != nil {
		return fmt.Errorf("set notification state for item %d: %w", id, err)
	}
	return nil
}

// Close releases the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner covers *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*TrackedItem, error) {
	var (
		item        TrackedItem
		targetStr   string
		currentStr  sql.NullString
		notifiedStr sql.NullString
	)
	err := row.Scan(&item.ID, &item.OwnerID, &item.SourceURL, &item.Title,
		&targetStr, &currentStr, &notifiedStr, &item.LastState, &item.Active)
	if err != nil {
		return nil, err
	}

	item.TargetPrice, err = decimal.NewFromString(targetStr)
	if err != nil {
		return nil, fmt.Errorf("decode target price %q: %w", targetStr, err)
	}
	if item.CurrentPrice, err = nullPrice(currentStr); err != nil {
		return nil, err
	}
	if item.LastNotifiedPrice, err = nullPrice(notifiedStr); err != nil {
		return nil, err
	}
	return &item, nil
}

func nullPrice(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	price, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, fmt.Errorf("decode price %q: %w", v.String, err)
	}
	return &price, nil
}

func priceOrNil(price *decimal.Decimal) any {
	if price == nil {
		return nil
	}
	return price.String()
}
