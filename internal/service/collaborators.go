package service

import (
	"context"
	"errors"
	"time"

	"kitchen-display/internal/display"
	"kitchen-display/internal/models"
	"kitchen-display/internal/snapshot"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrItemNotFound         = errors.New("order item not found")
	ErrConfirmationRequired = errors.New("low stock: operator confirmation required")
	ErrMutationRejected     = errors.New("remote update rejected")
	ErrKitchenNotFound      = errors.New("kitchen not found")
	ErrInvalidKitchen       = errors.New("invalid kitchen configuration")
	ErrBulkInProgress       = errors.New("bulk action already in progress")
)

// OrderSource is the order service boundary
type OrderSource interface {
	GetOrders(ctx context.Context, statuses []models.OrderStatus) ([]models.Order, error)
	UpdateItemStatus(ctx context.Context, orderID, itemID int64, status models.ItemStatus) error
	UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error
}

// StockSource is the inventory boundary
type StockSource interface {
	GetLowStockItems(ctx context.Context, thresholdPercent int) ([]models.StockLevel, error)
	Invalidate(ctx context.Context, thresholdPercent int) error
}

// PrepTimeSource supplies average preparation times per station
type PrepTimeSource interface {
	AveragePrepTimes(ctx context.Context, since time.Time) (display.PrepTimes, error)
}

// Locker guards bulk actions across display terminals
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// EventPublisher announces successful kitchen mutations
type EventPublisher interface {
	PublishOrderStatusUpdated(ctx context.Context, orderID int64, orderNumber string) error
}

// Checkpoint persists the last successfully fetched snapshot
type Checkpoint interface {
	Save(snap *snapshot.Snapshot) error
}

// Promoter promotes orders whose items have all reached ready or served
type Promoter interface {
	PromoteDue(ctx context.Context) int
}

// StockRefresher schedules an asynchronous stock-only refresh
type StockRefresher interface {
	RequestStockRefresh()
}
