package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kitchen-display/internal/display"
	"kitchen-display/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const lowStockQuery = `
	SELECT m.id AS menu_item_id,
	       m.name,
	       s.current_stock,
	       s.min_stock,
	       s.current_stock / s.min_stock * 100 AS percent_remaining,
	       ARRAY(
	           SELECT i.name
	           FROM recipe_ingredients ri
	           JOIN ingredients i ON i.id = ri.ingredient_id
	           WHERE ri.menu_item_id = m.id AND i.current_stock < i.min_stock
	           ORDER BY i.name
	       ) AS low_ingredients
	FROM menu_items m
	JOIN menu_item_stock s ON s.menu_item_id = m.id
	WHERE s.min_stock > 0 AND s.current_stock / s.min_stock * 100 < $1
	ORDER BY percent_remaining, m.id`

// GetLowStockItems returns menu items whose stock is below thresholdPercent of their minimum
func (s *Store) GetLowStockItems(ctx context.Context, thresholdPercent int) ([]models.StockLevel, error) {
	var levels []models.StockLevel
	if err := s.db.SelectContext(ctx, &levels, lowStockQuery, thresholdPercent); err != nil {
		return nil, fmt.Errorf("failed to query low stock items: %w", err)
	}
	return levels, nil
}

type prepTimeRow struct {
	Station    models.Station `db:"station"`
	AvgSeconds float64        `db:"avg_seconds"`
}

// AveragePrepTimes returns the mean preparing->ready duration per station over items finished since
func (s *Store) AveragePrepTimes(ctx context.Context, since time.Time) (display.PrepTimes, error) {
	var rows []prepTimeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT COALESCE(NULLIF(LOWER(TRIM(station)), ''), 'main') AS station,
		       AVG(EXTRACT(EPOCH FROM (ready_at - preparing_at)))::float8 AS avg_seconds
		FROM order_items
		WHERE preparing_at IS NOT NULL AND ready_at IS NOT NULL AND ready_at >= $1
		GROUP BY 1`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query prep times: %w", err)
	}

	out := make(display.PrepTimes, len(rows))
	for _, r := range rows {
		out[r.Station] = time.Duration(r.AvgSeconds * float64(time.Second))
	}
	return out, nil
}
