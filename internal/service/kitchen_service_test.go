package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"kitchen-display/internal/display"
	"kitchen-display/internal/models"
	"kitchen-display/internal/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type kitchenFixture struct {
	snaps     *snapshot.Store
	orders    *fakeOrders
	refresher *fakeRefresher
	locker    *fakeLocker
	publisher *fakePublisher
	svc       *KitchenService
}

func newKitchenFixture(stock models.StockSnapshot, orders ...models.Order) *kitchenFixture {
	f := &kitchenFixture{
		snaps:     seededStore(stock, orders...),
		orders:    &fakeOrders{},
		refresher: &fakeRefresher{},
		locker:    &fakeLocker{},
		publisher: &fakePublisher{},
	}
	f.svc = NewKitchenService(f.snaps, f.orders, f.refresher, f.locker, f.publisher, KitchenServiceConfig{
		RemoteTimeout: time.Second,
		Parallelism:   2,
		BulkLockTTL:   time.Second,
	})
	return f
}

func (f *kitchenFixture) itemStatus(t *testing.T, orderID, itemID int64) models.ItemStatus {
	o, ok := f.snaps.Current().Order(orderID)
	require.True(t, ok)
	return o.Items[o.FindItem(itemID)].Status
}

func TestUpdateItemStatusApplied(t *testing.T) {
	f := newKitchenFixture(nil, testOrder(1, time.Minute,
		testItem(10, models.StationGrill, models.ItemStatusPending),
		testItem(11, models.StationSalad, models.ItemStatusPending),
	))

	res, err := f.svc.UpdateItemStatus(context.Background(), 1, 10, models.ItemStatusPreparing, false)
	require.NoError(t, err)
	assert.Equal(t, display.OutcomeApplied, res.Outcome)
	assert.Equal(t, models.ItemStatusPreparing, res.Status)
	assert.False(t, res.NoOp)
	assert.False(t, res.OrderPromoted)

	assert.Equal(t, models.ItemStatusPreparing, f.itemStatus(t, 1, 10))
	_, items, orders := f.orders.calls()
	assert.Equal(t, []int64{10}, items)
	assert.Empty(t, orders)
	assert.Equal(t, 1, f.refresher.requests, "preparing requests a stock refresh")
	assert.Equal(t, []int64{1}, f.publisher.orders)
}

func TestUpdateItemStatusIdempotent(t *testing.T) {
	f := newKitchenFixture(nil, testOrder(1, time.Minute,
		testItem(10, models.StationGrill, models.ItemStatusPreparing),
		testItem(11, models.StationGrill, models.ItemStatusPreparing),
	))
	ctx := context.Background()

	_, err := f.svc.UpdateItemStatus(ctx, 1, 10, models.ItemStatusReady, false)
	require.NoError(t, err)
	before := f.snaps.Current()

	res, err := f.svc.UpdateItemStatus(ctx, 1, 10, models.ItemStatusReady, false)
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Equal(t, before.Version, f.snaps.Current().Version)

	res, err = f.svc.UpdateItemStatus(ctx, 1, 10, models.ItemStatusPending, false)
	require.NoError(t, err)
	assert.True(t, res.NoOp, "backwards moves are no-ops")

	_, items, _ := f.orders.calls()
	assert.Equal(t, []int64{10}, items)
	assert.Equal(t, 0, f.refresher.requests)
}

func TestUpdateItemStatusRollsBackOnRejection(t *testing.T) {
	f := newKitchenFixture(nil, testOrder(1, time.Minute,
		testItem(10, models.StationGrill, models.ItemStatusPending),
	))
	remote := errors.New("order service unavailable")
	f.orders.updateItemFn = func(ctx context.Context, orderID, itemID int64, status models.ItemStatus) error {
		return remote
	}

	_, err := f.svc.UpdateItemStatus(context.Background(), 1, 10, models.ItemStatusPreparing, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMutationRejected)
	assert.ErrorIs(t, err, remote)
	assert.Equal(t, models.ItemStatusPending, f.itemStatus(t, 1, 10))
	assert.Equal(t, 0, f.refresher.requests)
	assert.Empty(t, f.publisher.orders)
}

func TestUpdateItemStatusLowStockNeedsConfirmation(t *testing.T) {
	it := testItem(10, models.StationGrill, models.ItemStatusPending)
	it.MenuItemID = menuID(42)
	f := newKitchenFixture(stockAt(42, 8), testOrder(1, time.Minute, it))
	ctx := context.Background()

	res, err := f.svc.UpdateItemStatus(ctx, 1, 10, models.ItemStatusPreparing, false)
	assert.ErrorIs(t, err, ErrConfirmationRequired)
	require.NotNil(t, res)
	require.NotNil(t, res.Advisory)
	assert.True(t, res.Advisory.RequiresConfirmation)
	assert.Equal(t, models.ItemStatusPending, f.itemStatus(t, 1, 10))
	_, items, _ := f.orders.calls()
	assert.Empty(t, items)

	res, err = f.svc.UpdateItemStatus(ctx, 1, 10, models.ItemStatusPreparing, true)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusPreparing, res.Status)
	assert.Equal(t, models.ItemStatusPreparing, f.itemStatus(t, 1, 10))
}

func TestUpdateItemStatusLowStockAdvisoryOnly(t *testing.T) {
	it := testItem(10, models.StationGrill, models.ItemStatusPending)
	it.MenuItemID = menuID(42)
	f := newKitchenFixture(stockAt(42, 15), testOrder(1, time.Minute, it))

	res, err := f.svc.UpdateItemStatus(context.Background(), 1, 10, models.ItemStatusPreparing, false)
	require.NoError(t, err)
	require.NotNil(t, res.Advisory)
	assert.Equal(t, display.AdvisoryLow, res.Advisory.Level)
	assert.False(t, res.Advisory.RequiresConfirmation)
}

func TestUpdateItemStatusErrors(t *testing.T) {
	f := newKitchenFixture(nil, testOrder(1, time.Minute,
		testItem(10, models.StationGrill, models.ItemStatusCancelled),
	))
	ctx := context.Background()

	_, err := f.svc.UpdateItemStatus(ctx, 2, 10, models.ItemStatusReady, false)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = f.svc.UpdateItemStatus(ctx, 1, 99, models.ItemStatusReady, false)
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = f.svc.UpdateItemStatus(ctx, 1, 10, models.ItemStatusPreparing, false)
	assert.ErrorIs(t, err, display.ErrInvalidTransition)

	_, err = f.svc.UpdateItemStatus(ctx, 1, 10, models.ItemStatus("burnt"), false)
	assert.ErrorIs(t, err, display.ErrUnknownStatus)
}

func TestLastItemReadyPromotesOrder(t *testing.T) {
	f := newKitchenFixture(nil, testOrder(1, time.Minute,
		testItem(10, models.StationGrill, models.ItemStatusReady),
		testItem(11, models.StationSalad, models.ItemStatusPreparing),
	))

	res, err := f.svc.UpdateItemStatus(context.Background(), 1, 11, models.ItemStatusReady, false)
	require.NoError(t, err)
	assert.True(t, res.OrderPromoted)
	assert.Equal(t, models.OrderStatusReady, res.OrderStatus)

	o, _ := f.snaps.Current().Order(1)
	assert.Equal(t, models.OrderStatusReady, o.Status)
	_, _, orders := f.orders.calls()
	assert.Equal(t, []models.OrderStatus{models.OrderStatusReady}, orders)
}

func TestPromotionRejectedRollsBackOrder(t *testing.T) {
	f := newKitchenFixture(nil, testOrder(1, time.Minute,
		testItem(10, models.StationGrill, models.ItemStatusPreparing),
	))
	f.orders.updateOrderFn = func(ctx context.Context, orderID int64, status models.OrderStatus) error {
		return errors.New("conflict")
	}

	res, err := f.svc.UpdateItemStatus(context.Background(), 1, 10, models.ItemStatusReady, false)
	assert.ErrorIs(t, err, ErrMutationRejected)
	require.NotNil(t, res)
	assert.False(t, res.OrderPromoted)
	assert.Equal(t, models.ItemStatusReady, res.Status)

	o, _ := f.snaps.Current().Order(1)
	assert.Equal(t, models.OrderStatusPreparing, o.Status)
	assert.Equal(t, models.ItemStatusReady, o.Items[0].Status)
}

func TestMarkAllReadyPartialFailure(t *testing.T) {
	f := newKitchenFixture(nil, testOrder(1, time.Minute,
		testItem(10, models.StationGrill, models.ItemStatusPending),
		testItem(11, models.StationSalad, models.ItemStatusPreparing),
		testItem(12, models.StationDessert, models.ItemStatusPending),
	))
	f.orders.updateItemFn = func(ctx context.Context, orderID, itemID int64, status models.ItemStatus) error {
		if itemID == 11 {
			return errors.New("timeout")
		}
		return nil
	}

	res, err := f.svc.MarkAllReady(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 12}, res.Updated)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, int64(11), res.Failed[0].ItemID)
	assert.False(t, res.OrderPromoted)

	assert.Equal(t, models.ItemStatusReady, f.itemStatus(t, 1, 10))
	assert.Equal(t, models.ItemStatusPreparing, f.itemStatus(t, 1, 11))
	assert.Equal(t, models.ItemStatusReady, f.itemStatus(t, 1, 12))
	_, _, orders := f.orders.calls()
	assert.Empty(t, orders)
	assert.Equal(t, 1, f.locker.acquired)
	assert.Equal(t, 1, f.locker.released)
	assert.Equal(t, 1, f.refresher.requests, "pending items started preparing")
}

func TestMarkAllReadyPromotes(t *testing.T) {
	f := newKitchenFixture(nil, testOrder(1, time.Minute,
		testItem(10, models.StationGrill, models.ItemStatusPending),
		testItem(11, models.StationSalad, models.ItemStatusReady),
		testItem(12, models.StationDessert, models.ItemStatusPreparing),
	))

	res, err := f.svc.MarkAllReady(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 12}, res.Updated)
	assert.Empty(t, res.Failed)
	assert.True(t, res.OrderPromoted)
	assert.Equal(t, models.OrderStatusReady, res.OrderStatus)

	_, items, _ := f.orders.calls()
	assert.ElementsMatch(t, []int64{10, 12}, items, "ready items are not resent")
}

func TestMarkAllReadyAllFail(t *testing.T) {
	f := newKitchenFixture(nil, testOrder(1, time.Minute,
		testItem(10, models.StationGrill, models.ItemStatusPending),
	))
	f.orders.updateItemFn = func(ctx context.Context, orderID, itemID int64, status models.ItemStatus) error {
		return errors.New("down")
	}

	res, err := f.svc.MarkAllReady(context.Background(), 1)
	assert.ErrorIs(t, err, ErrMutationRejected)
	require.NotNil(t, res)
	assert.Len(t, res.Failed, 1)
	assert.Equal(t, models.ItemStatusPending, f.itemStatus(t, 1, 10))
	assert.Equal(t, 0, f.refresher.requests)
}

func TestMarkAllReadyLocked(t *testing.T) {
	f := newKitchenFixture(nil, testOrder(1, time.Minute,
		testItem(10, models.StationGrill, models.ItemStatusPending),
	))
	f.locker.held = true

	_, err := f.svc.MarkAllReady(context.Background(), 1)
	assert.ErrorIs(t, err, ErrBulkInProgress)
	_, items, _ := f.orders.calls()
	assert.Empty(t, items)

	_, err = f.svc.MarkAllReady(context.Background(), 7)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestSkipFromPendingPassesStockGate(t *testing.T) {
	it := testItem(10, models.StationGrill, models.ItemStatusPending)
	it.MenuItemID = menuID(42)
	f := newKitchenFixture(stockAt(42, 5), testOrder(1, time.Minute, it))
	ctx := context.Background()

	for _, target := range []models.ItemStatus{models.ItemStatusReady, models.ItemStatusServed} {
		res, err := f.svc.UpdateItemStatus(ctx, 1, 10, target, false)
		assert.ErrorIs(t, err, ErrConfirmationRequired, target)
		require.NotNil(t, res)
		require.NotNil(t, res.Advisory)
		assert.Equal(t, display.AdvisoryCritical, res.Advisory.Level)
	}
	assert.Equal(t, models.ItemStatusPending, f.itemStatus(t, 1, 10))
	_, items, _ := f.orders.calls()
	assert.Empty(t, items)
	assert.Equal(t, 0, f.refresher.requests)

	res, err := f.svc.UpdateItemStatus(ctx, 1, 10, models.ItemStatusReady, true)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusReady, res.Status)
	assert.True(t, res.OrderPromoted)
	assert.Equal(t, 1, f.refresher.requests, "skipping past preparing still refreshes stock")
}

func TestCancelPendingSkipsStockGate(t *testing.T) {
	it := testItem(10, models.StationGrill, models.ItemStatusPending)
	it.MenuItemID = menuID(42)
	f := newKitchenFixture(stockAt(42, 5), testOrder(1, time.Minute, it))

	res, err := f.svc.UpdateItemStatus(context.Background(), 1, 10, models.ItemStatusCancelled, false)
	require.NoError(t, err)
	assert.Nil(t, res.Advisory)
	assert.Equal(t, 0, f.refresher.requests)
}

func TestDuplicateClickPromotesFinishedOrder(t *testing.T) {
	f := newKitchenFixture(nil, testOrder(1, time.Minute,
		testItem(10, models.StationGrill, models.ItemStatusReady),
		testItem(11, models.StationSalad, models.ItemStatusReady),
	))

	res, err := f.svc.UpdateItemStatus(context.Background(), 1, 11, models.ItemStatusReady, false)
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.True(t, res.OrderPromoted)
	assert.Equal(t, models.OrderStatusReady, res.OrderStatus)

	_, items, orders := f.orders.calls()
	assert.Empty(t, items)
	assert.Equal(t, []models.OrderStatus{models.OrderStatusReady}, orders)
	assert.Equal(t, []int64{1}, f.publisher.orders)
}

func TestPromoteDueRetriesRejectedPromotion(t *testing.T) {
	f := newKitchenFixture(nil,
		testOrder(1, time.Minute, testItem(10, models.StationGrill, models.ItemStatusPreparing)),
		testOrder(2, time.Minute, testItem(20, models.StationGrill, models.ItemStatusPending)),
	)
	ctx := context.Background()
	f.orders.updateOrderFn = func(ctx context.Context, orderID int64, status models.OrderStatus) error {
		return errors.New("conflict")
	}

	_, err := f.svc.UpdateItemStatus(ctx, 1, 10, models.ItemStatusReady, false)
	assert.ErrorIs(t, err, ErrMutationRejected)
	assert.Equal(t, 0, f.svc.PromoteDue(ctx))

	f.orders.updateOrderFn = nil
	assert.Equal(t, 1, f.svc.PromoteDue(ctx))

	o, _ := f.snaps.Current().Order(1)
	assert.Equal(t, models.OrderStatusReady, o.Status)
	o, _ = f.snaps.Current().Order(2)
	assert.Equal(t, models.OrderStatusPreparing, o.Status)
	assert.Equal(t, 0, f.svc.PromoteDue(ctx), "already promoted")
}

func TestRefreshPromotesOrderAfterPartialMarkAllReady(t *testing.T) {
	f := newKitchenFixture(nil, testOrder(1, time.Minute,
		testItem(10, models.StationGrill, models.ItemStatusPending),
		testItem(11, models.StationSalad, models.ItemStatusPreparing),
		testItem(12, models.StationDessert, models.ItemStatusPending),
	))
	ctx := context.Background()
	f.orders.updateItemFn = func(ctx context.Context, orderID, itemID int64, status models.ItemStatus) error {
		if itemID == 11 {
			return errors.New("timeout")
		}
		return nil
	}

	res, err := f.svc.MarkAllReady(ctx, 1)
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.False(t, res.OrderPromoted)

	// the order service later reports every item ready
	f.orders.updateItemFn = nil
	f.orders.getOrdersFn = func(ctx context.Context, statuses []models.OrderStatus) ([]models.Order, error) {
		return []models.Order{testOrder(1, time.Minute,
			testItem(10, models.StationGrill, models.ItemStatusReady),
			testItem(11, models.StationSalad, models.ItemStatusReady),
			testItem(12, models.StationDessert, models.ItemStatusReady),
		)}, nil
	}
	ingestion := newIngestion(f.snaps, f.orders, &fakeStock{}, nil, nil)
	ingestion.SetPromoter(f.svc)
	require.NoError(t, ingestion.Refresh(ctx))

	o, ok := f.snaps.Current().Order(1)
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusReady, o.Status)
	_, _, orders := f.orders.calls()
	assert.Equal(t, []models.OrderStatus{models.OrderStatusReady}, orders)

	dup, err := f.svc.UpdateItemStatus(ctx, 1, 11, models.ItemStatusReady, false)
	require.NoError(t, err)
	assert.True(t, dup.NoOp)
	assert.False(t, dup.OrderPromoted, "already ready")
	_, _, orders = f.orders.calls()
	assert.Len(t, orders, 1)
}
