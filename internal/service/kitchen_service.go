package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"kitchen-display/internal/display"
	"kitchen-display/internal/models"
	"kitchen-display/internal/snapshot"
	"kitchen-display/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// KitchenServiceConfig tunes the write path
type KitchenServiceConfig struct {
	RemoteTimeout time.Duration
	Parallelism   int
	BulkLockTTL   time.Duration
}

// KitchenService applies operator actions: optimistic local update first,
// then the remote call, rolling back when the order service rejects it.
type KitchenService struct {
	snaps     *snapshot.Store
	orders    OrderSource
	stock     StockRefresher
	locker    Locker
	publisher EventPublisher
	cfg       KitchenServiceConfig
	logger    *zap.Logger
}

// NewKitchenService creates a new kitchen service. locker and publisher may be nil.
func NewKitchenService(
	snaps *snapshot.Store,
	orders OrderSource,
	stock StockRefresher,
	locker Locker,
	publisher EventPublisher,
	cfg KitchenServiceConfig,
) *KitchenService {
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = 5 * time.Second
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.BulkLockTTL <= 0 {
		cfg.BulkLockTTL = 15 * time.Second
	}
	return &KitchenService{
		snaps:     snaps,
		orders:    orders,
		stock:     stock,
		locker:    locker,
		publisher: publisher,
		cfg:       cfg,
		logger:    util.GetLogger(),
	}
}

// ItemUpdateResult reports what an item status request did
type ItemUpdateResult struct {
	OrderID       int64              `json:"order_id"`
	ItemID        int64              `json:"item_id"`
	Status        models.ItemStatus  `json:"status"`
	Outcome       display.Outcome    `json:"outcome"`
	NoOp          bool               `json:"noop"`
	Advisory      *display.Advisory  `json:"advisory,omitempty"`
	OrderPromoted bool               `json:"order_promoted"`
	OrderStatus   models.OrderStatus `json:"order_status"`
}

// ItemFailure is one rejected item of a bulk action
type ItemFailure struct {
	ItemID int64  `json:"item_id"`
	Error  string `json:"error"`
}

// BatchResult reports a mark-all-ready run. The next snapshot is the source
// of truth; this only describes what the batch observed.
type BatchResult struct {
	OrderID       int64              `json:"order_id"`
	Updated       []int64            `json:"updated"`
	Failed        []ItemFailure      `json:"failed"`
	OrderPromoted bool               `json:"order_promoted"`
	OrderStatus   models.OrderStatus `json:"order_status"`
}

// UpdateItemStatus moves one item to status. Moving a pending item to
// preparing or beyond passes through the stock gate; a critical advisory
// yields ErrConfirmationRequired unless confirmed is set. A no-op still
// promotes the order when every item is already done.
func (s *KitchenService) UpdateItemStatus(ctx context.Context, orderID, itemID int64, status models.ItemStatus, confirmed bool) (*ItemUpdateResult, error) {
	ctx, span := util.StartSpan(ctx, "KitchenService.UpdateItemStatus",
		attribute.Int64("order_id", orderID),
		attribute.Int64("item_id", itemID),
		attribute.String("status", string(status)))
	defer span.End()

	snap := s.snaps.Current()
	order, ok := snap.Order(orderID)
	if !ok {
		return nil, ErrOrderNotFound
	}
	idx := order.FindItem(itemID)
	if idx < 0 {
		return nil, ErrItemNotFound
	}
	item := order.Items[idx]

	outcome, err := display.CheckTransition(item.Status, status)
	if err != nil {
		util.ItemTransitionsTotal.WithLabelValues(string(status), "invalid").Inc()
		return nil, err
	}

	result := &ItemUpdateResult{
		OrderID:     orderID,
		ItemID:      itemID,
		Status:      item.Status,
		Outcome:     outcome,
		OrderStatus: order.Status,
	}

	if outcome == display.OutcomeNoOp {
		util.ItemTransitionsTotal.WithLabelValues(string(status), "noop").Inc()
		result.NoOp = true
		promoted, orderStatus, err := s.promoteIfDone(ctx, orderID)
		result.OrderPromoted = promoted
		if orderStatus != "" {
			result.OrderStatus = orderStatus
		}
		if promoted {
			s.publish(ctx, order)
		}
		if err != nil {
			return result, err
		}
		return result, nil
	}

	if display.GatesTransition(item.Status, status) {
		gate := display.CheckGate(item, snap.Stock)
		if gate.Advisory != nil {
			result.Advisory = gate.Advisory
			util.GateAdvisoriesTotal.WithLabelValues(string(gate.Advisory.Level)).Inc()
		}
		if !gate.OK && !confirmed {
			util.ItemTransitionsTotal.WithLabelValues(string(status), "needs_confirmation").Inc()
			return result, ErrConfirmationRequired
		}
	}

	previous := item.Status
	s.snaps.Patch(snap.Generation, orderID, setItemStatus(itemID, status))

	rctx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	err = s.orders.UpdateItemStatus(rctx, orderID, itemID, status)
	cancel()
	if err != nil {
		s.rollbackItem(snap.Generation, orderID, itemID, status, previous)
		util.ItemTransitionsTotal.WithLabelValues(string(status), "rejected").Inc()
		s.logger.Error("Item status update rejected",
			zap.Int64("order_id", orderID),
			zap.Int64("item_id", itemID),
			zap.String("status", string(status)),
			zap.Error(err))
		return result, fmt.Errorf("%w: %w", ErrMutationRejected, err)
	}

	util.ItemTransitionsTotal.WithLabelValues(string(status), "applied").Inc()
	result.Status = status

	if display.GatesTransition(previous, status) && s.stock != nil {
		s.stock.RequestStockRefresh()
	}

	promoted, orderStatus, err := s.promoteIfDone(ctx, orderID)
	result.OrderPromoted = promoted
	if orderStatus != "" {
		result.OrderStatus = orderStatus
	}
	s.publish(ctx, order)
	if err != nil {
		return result, err
	}

	return result, nil
}

// MarkAllReady moves every pending or preparing item of an order to ready.
// Items are updated independently; failures are reported per item and do
// not abort the batch.
func (s *KitchenService) MarkAllReady(ctx context.Context, orderID int64) (*BatchResult, error) {
	ctx, span := util.StartSpan(ctx, "KitchenService.MarkAllReady",
		attribute.Int64("order_id", orderID))
	defer span.End()

	snap := s.snaps.Current()
	order, ok := snap.Order(orderID)
	if !ok {
		return nil, ErrOrderNotFound
	}

	release, err := s.lockBulk(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	ids := display.ItemsToMarkReady(order)
	previous := make(map[int64]models.ItemStatus, len(ids))
	for _, id := range ids {
		previous[id] = order.Items[order.FindItem(id)].Status
	}

	s.snaps.Patch(snap.Generation, orderID, func(o *models.Order) {
		for _, id := range ids {
			if i := o.FindItem(id); i >= 0 && o.Items[i].Status.IsActive() {
				o.Items[i].Status = models.ItemStatusReady
			}
		}
	})

	result := &BatchResult{
		OrderID:     orderID,
		Updated:     []int64{},
		Failed:      []ItemFailure{},
		OrderStatus: order.Status,
	}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.cfg.Parallelism)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
			err := s.orders.UpdateItemStatus(rctx, orderID, id, models.ItemStatusReady)
			cancel()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.rollbackItem(snap.Generation, orderID, id, models.ItemStatusReady, previous[id])
				util.ItemTransitionsTotal.WithLabelValues(string(models.ItemStatusReady), "rejected").Inc()
				s.logger.Error("Item status update rejected during mark all ready",
					zap.Int64("order_id", orderID),
					zap.Int64("item_id", id),
					zap.Error(err))
				result.Failed = append(result.Failed, ItemFailure{ItemID: id, Error: err.Error()})
				return nil
			}
			util.ItemTransitionsTotal.WithLabelValues(string(models.ItemStatusReady), "applied").Inc()
			result.Updated = append(result.Updated, id)
			return nil
		})
	}
	_ = g.Wait()

	sortIDs(result.Updated)
	sortFailures(result.Failed)

	if s.stock != nil {
		for _, id := range result.Updated {
			if previous[id] == models.ItemStatusPending {
				s.stock.RequestStockRefresh()
				break
			}
		}
	}

	s.logger.Info("Mark all ready finished",
		zap.Int64("order_id", orderID),
		zap.Int("updated", len(result.Updated)),
		zap.Int("failed", len(result.Failed)))

	if len(ids) > 0 && len(result.Updated) == 0 {
		return result, fmt.Errorf("%w: no item of order %d could be updated", ErrMutationRejected, orderID)
	}

	promoted, orderStatus, err := s.promoteIfDone(ctx, orderID)
	result.OrderPromoted = promoted
	if orderStatus != "" {
		result.OrderStatus = orderStatus
	}
	if len(result.Updated) > 0 || promoted {
		s.publish(ctx, order)
	}
	if err != nil {
		return result, err
	}
	return result, nil
}

// PromoteDue promotes every order of the current snapshot whose items are all
// ready or served. Rejected promotions are retried on the next snapshot.
func (s *KitchenService) PromoteDue(ctx context.Context) int {
	ctx, span := util.StartSpan(ctx, "KitchenService.PromoteDue")
	defer span.End()

	promoted := 0
	for _, order := range s.snaps.Current().Orders {
		if _, due := display.DerivedOrderStatus(order); !due {
			continue
		}
		ok, _, err := s.promoteIfDone(ctx, order.ID)
		if err != nil || !ok {
			continue
		}
		promoted++
		s.publish(ctx, order)
	}
	return promoted
}

// promoteIfDone applies the ready derivation to the order as it stands in the
// current snapshot and pushes it to the order service.
func (s *KitchenService) promoteIfDone(ctx context.Context, orderID int64) (bool, models.OrderStatus, error) {
	snap := s.snaps.Current()
	order, ok := snap.Order(orderID)
	if !ok {
		return false, "", nil
	}
	next, due := display.DerivedOrderStatus(order)
	if !due {
		return false, order.Status, nil
	}

	previous := order.Status
	s.snaps.Patch(snap.Generation, orderID, func(o *models.Order) { o.Status = next })

	rctx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	err := s.orders.UpdateOrderStatus(rctx, orderID, next)
	cancel()
	if err != nil {
		s.snaps.Patch(snap.Generation, orderID, func(o *models.Order) {
			if o.Status == next {
				o.Status = previous
			}
		})
		util.OrderPromotionsTotal.WithLabelValues("rejected").Inc()
		util.MutationRollbacksTotal.WithLabelValues("order").Inc()
		s.logger.Error("Order promotion rejected",
			zap.Int64("order_id", orderID),
			zap.Error(err))
		return false, previous, fmt.Errorf("%w: order promotion: %w", ErrMutationRejected, err)
	}

	util.OrderPromotionsTotal.WithLabelValues("applied").Inc()
	s.logger.Info("Order promoted", zap.Int64("order_id", orderID), zap.String("status", string(next)))
	return true, next, nil
}

// rollbackItem restores previous unless the item has moved on since the
// optimistic write.
func (s *KitchenService) rollbackItem(generation uint64, orderID, itemID int64, optimistic, previous models.ItemStatus) {
	s.snaps.Patch(generation, orderID, func(o *models.Order) {
		if i := o.FindItem(itemID); i >= 0 && o.Items[i].Status == optimistic {
			o.Items[i].Status = previous
		}
	})
	util.MutationRollbacksTotal.WithLabelValues("item").Inc()
}

func (s *KitchenService) lockBulk(ctx context.Context, orderID int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	key := "mark-all-ready:" + strconv.FormatInt(orderID, 10)
	token, ok, err := s.locker.AcquireLock(ctx, key, s.cfg.BulkLockTTL)
	if err != nil {
		s.logger.Warn("Bulk lock unavailable, continuing without it",
			zap.Int64("order_id", orderID),
			zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		return nil, ErrBulkInProgress
	}

	return func() {
		rctx, cancel := context.WithTimeout(context.Background(), s.cfg.RemoteTimeout)
		defer cancel()
		if err := s.locker.ReleaseLock(rctx, key, token); err != nil {
			s.logger.Warn("Failed to release bulk lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (s *KitchenService) publish(ctx context.Context, order models.Order) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishOrderStatusUpdated(ctx, order.ID, order.OrderNumber); err != nil {
		s.logger.Warn("Failed to publish order status event",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
}

func setItemStatus(itemID int64, status models.ItemStatus) func(*models.Order) {
	return func(o *models.Order) {
		if next, outcome, err := display.TransitionItem(*o, itemID, status); err == nil && outcome == display.OutcomeApplied {
			*o = next
		}
	}
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func sortFailures(f []ItemFailure) {
	sort.Slice(f, func(i, j int) bool { return f[i].ItemID < f[j].ItemID })
}
