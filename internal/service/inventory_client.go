package service

import (
	"context"
	"fmt"
	"time"

	"kitchen-display/internal/models"
	"kitchen-display/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type lowStockStore interface {
	GetLowStockItems(ctx context.Context, thresholdPercent int) ([]models.StockLevel, error)
}

type stockCache interface {
	GetStockLevels(ctx context.Context, threshold int) ([]models.StockLevel, bool, error)
	CacheStockLevels(ctx context.Context, threshold int, levels []models.StockLevel, ttl time.Duration) error
	InvalidateStock(ctx context.Context, threshold int) error
}

// InventoryClient reads low-stock levels (fast path via Redis, DB fallback)
type InventoryClient struct {
	store  lowStockStore
	cache  stockCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewInventoryClient creates a new inventory client. cache may be nil.
func NewInventoryClient(store lowStockStore, cache stockCache, ttl time.Duration) *InventoryClient {
	return &InventoryClient{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		logger: util.GetLogger(),
	}
}

// GetLowStockItems returns menu items below thresholdPercent of their minimum stock
func (ic *InventoryClient) GetLowStockItems(ctx context.Context, thresholdPercent int) ([]models.StockLevel, error) {
	ctx, span := util.StartSpan(ctx, "InventoryClient.GetLowStockItems",
		attribute.Int("threshold", thresholdPercent))
	defer span.End()

	if ic.cache != nil {
		levels, hit, err := ic.cache.GetStockLevels(ctx, thresholdPercent)
		if err != nil {
			ic.logger.Warn("Redis stock lookup failed, falling back to DB",
				zap.Int("threshold", thresholdPercent),
				zap.Error(err))
		} else if hit {
			return levels, nil
		}
	}

	levels, err := ic.store.GetLowStockItems(ctx, thresholdPercent)
	if err != nil {
		return nil, fmt.Errorf("failed to get low stock items: %w", err)
	}

	if ic.cache != nil {
		if err := ic.cache.CacheStockLevels(ctx, thresholdPercent, levels, ic.ttl); err != nil {
			ic.logger.Warn("Failed to cache stock levels",
				zap.Int("threshold", thresholdPercent),
				zap.Error(err))
		}
	}

	return levels, nil
}

// Invalidate drops the cached levels so the next read hits the database
func (ic *InventoryClient) Invalidate(ctx context.Context, thresholdPercent int) error {
	if ic.cache == nil {
		return nil
	}
	return ic.cache.InvalidateStock(ctx, thresholdPercent)
}
