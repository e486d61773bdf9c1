package service

import (
	"context"
	"sync"
	"time"

	"kitchen-display/internal/display"
	"kitchen-display/internal/models"
	"kitchen-display/internal/snapshot"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type fakeOrders struct {
	mu sync.Mutex

	getOrdersFn   func(ctx context.Context, statuses []models.OrderStatus) ([]models.Order, error)
	updateItemFn  func(ctx context.Context, orderID, itemID int64, status models.ItemStatus) error
	updateOrderFn func(ctx context.Context, orderID int64, status models.OrderStatus) error

	getCalls    int
	itemCalls   []int64
	orderCalls  []models.OrderStatus
	lastFilters []models.OrderStatus
}

func (f *fakeOrders) GetOrders(ctx context.Context, statuses []models.OrderStatus) ([]models.Order, error) {
	f.mu.Lock()
	f.getCalls++
	f.lastFilters = statuses
	f.mu.Unlock()
	if f.getOrdersFn != nil {
		return f.getOrdersFn(ctx, statuses)
	}
	return nil, nil
}

func (f *fakeOrders) UpdateItemStatus(ctx context.Context, orderID, itemID int64, status models.ItemStatus) error {
	f.mu.Lock()
	f.itemCalls = append(f.itemCalls, itemID)
	f.mu.Unlock()
	if f.updateItemFn != nil {
		return f.updateItemFn(ctx, orderID, itemID, status)
	}
	return nil
}

func (f *fakeOrders) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	f.mu.Lock()
	f.orderCalls = append(f.orderCalls, status)
	f.mu.Unlock()
	if f.updateOrderFn != nil {
		return f.updateOrderFn(ctx, orderID, status)
	}
	return nil
}

func (f *fakeOrders) calls() (get int, items []int64, orders []models.OrderStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls, append([]int64(nil), f.itemCalls...), append([]models.OrderStatus(nil), f.orderCalls...)
}

type fakeStock struct {
	mu          sync.Mutex
	getFn       func(ctx context.Context, threshold int) ([]models.StockLevel, error)
	invalidated int
}

func (f *fakeStock) GetLowStockItems(ctx context.Context, threshold int) ([]models.StockLevel, error) {
	if f.getFn != nil {
		return f.getFn(ctx, threshold)
	}
	return nil, nil
}

func (f *fakeStock) Invalidate(ctx context.Context, threshold int) error {
	f.mu.Lock()
	f.invalidated++
	f.mu.Unlock()
	return nil
}

func (f *fakeStock) invalidations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invalidated
}

type fakePrep struct {
	times display.PrepTimes
	err   error
}

func (f *fakePrep) AveragePrepTimes(ctx context.Context, since time.Time) (display.PrepTimes, error) {
	return f.times, f.err
}

type fakeCheckpoint struct {
	saved []*snapshot.Snapshot
}

func (f *fakeCheckpoint) Save(snap *snapshot.Snapshot) error {
	f.saved = append(f.saved, snap)
	return nil
}

type fakeRefresher struct {
	requests int
}

func (f *fakeRefresher) RequestStockRefresh() { f.requests++ }

type fakeLocker struct {
	held     bool
	acquired int
	released int
}

func (f *fakeLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if f.held {
		return "", false, nil
	}
	f.acquired++
	return "token", true, nil
}

func (f *fakeLocker) ReleaseLock(ctx context.Context, key, token string) error {
	f.released++
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	orders []int64
}

func (f *fakePublisher) PublishOrderStatusUpdated(ctx context.Context, orderID int64, orderNumber string) error {
	f.mu.Lock()
	f.orders = append(f.orders, orderID)
	f.mu.Unlock()
	return nil
}

func menuID(id int64) *int64 { return &id }

func testItem(id int64, station models.Station, status models.ItemStatus) models.OrderItem {
	return models.OrderItem{ID: id, OrderID: 1, Name: "item", Quantity: 1, Station: station, Status: status}
}

func testOrder(id int64, age time.Duration, items ...models.OrderItem) models.Order {
	for i := range items {
		items[i].OrderID = id
	}
	return models.Order{
		ID:          id,
		OrderNumber: "K-100",
		TableNumber: "12",
		Status:      models.OrderStatusPreparing,
		CreatedAt:   testNow.Add(-age),
		Items:       items,
	}
}

func stockAt(menuItemID int64, pct int64) models.StockSnapshot {
	return models.NewStockSnapshot([]models.StockLevel{{
		MenuItemID:       menuItemID,
		Name:             "Salmon",
		CurrentStock:     decimal.NewFromInt(pct),
		MinStock:         decimal.NewFromInt(100),
		PercentRemaining: decimal.NewFromInt(pct),
	}})
}

func seededStore(stock models.StockSnapshot, orders ...models.Order) *snapshot.Store {
	s := snapshot.NewStore()
	s.Replace(orders, stock, nil, testNow)
	return s
}

type fakePromoter struct {
	calls int
}

func (f *fakePromoter) PromoteDue(ctx context.Context) int {
	f.calls++
	return 0
}
