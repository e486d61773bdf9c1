package service

import (
	"context"
	"fmt"
	"time"

	"kitchen-display/internal/models"
	"kitchen-display/internal/snapshot"
	"kitchen-display/internal/util"

	"go.uber.org/zap"
)

// IngestionConfig tunes the poll path
type IngestionConfig struct {
	LowStockThreshold int
	PrepTimeWindow    time.Duration
	FetchTimeout      time.Duration
}

// IngestionService keeps the snapshot store fed from the order and inventory
// collaborators. Push events only wake it up; every wake-up is a full fetch.
type IngestionService struct {
	snaps      *snapshot.Store
	orders     OrderSource
	stock      StockSource
	prep       PrepTimeSource
	checkpoint Checkpoint
	promoter   Promoter
	cfg        IngestionConfig
	now        func() time.Time

	trigger  chan struct{}
	stockReq chan struct{}
	logger   *zap.Logger
}

// NewIngestionService creates a new ingestion service. prep and checkpoint may be nil.
func NewIngestionService(
	snaps *snapshot.Store,
	orders OrderSource,
	stock StockSource,
	prep PrepTimeSource,
	checkpoint Checkpoint,
	cfg IngestionConfig,
) *IngestionService {
	if cfg.PrepTimeWindow <= 0 {
		cfg.PrepTimeWindow = 24 * time.Hour
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	return &IngestionService{
		snaps:      snaps,
		orders:     orders,
		stock:      stock,
		prep:       prep,
		checkpoint: checkpoint,
		cfg:        cfg,
		now:        time.Now,
		trigger:    make(chan struct{}, 1),
		stockReq:   make(chan struct{}, 1),
		logger:     util.GetLogger(),
	}
}

// SetPromoter registers the hook run after every full refresh to promote
// orders whose items are all done
func (s *IngestionService) SetPromoter(p Promoter) {
	s.promoter = p
}

// Refresh fetches the full active order list and stock levels and swaps them
// into the store. On failure the previous snapshot keeps serving reads.
func (s *IngestionService) Refresh(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "IngestionService.Refresh")
	defer span.End()

	start := time.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	orders, err := s.orders.GetOrders(fetchCtx, models.ActiveOrderStatuses)
	if err != nil {
		util.SnapshotRefreshTotal.WithLabelValues("full", "failed").Inc()
		s.logger.Warn("Order fetch failed, keeping last snapshot", zap.Error(err))
		return fmt.Errorf("failed to fetch orders: %w", err)
	}

	prev := s.snaps.Current()

	stock := prev.Stock
	if levels, err := s.stock.GetLowStockItems(fetchCtx, s.cfg.LowStockThreshold); err != nil {
		s.logger.Warn("Stock fetch failed, keeping previous stock levels", zap.Error(err))
	} else {
		stock = models.NewStockSnapshot(levels)
	}

	prep := prev.PrepTimes
	if s.prep != nil {
		if times, err := s.prep.AveragePrepTimes(fetchCtx, s.now().Add(-s.cfg.PrepTimeWindow)); err != nil {
			s.logger.Warn("Prep time fetch failed, keeping previous values", zap.Error(err))
		} else {
			prep = times
		}
	}

	next := s.snaps.Replace(activeOnly(orders), stock, prep, s.now())

	util.SnapshotRefreshTotal.WithLabelValues("full", "success").Inc()
	util.SnapshotRefreshLatency.Observe(time.Since(start).Seconds())
	util.SnapshotActiveOrders.Set(float64(len(next.Orders)))
	util.SnapshotLastSuccess.Set(float64(next.FetchedAt.Unix()))

	s.logger.Debug("Snapshot refreshed",
		zap.Uint64("generation", next.Generation),
		zap.Int("orders", len(next.Orders)),
		zap.Int("low_stock_items", len(next.Stock)))

	if s.checkpoint != nil {
		if err := s.checkpoint.Save(next); err != nil {
			s.logger.Warn("Failed to checkpoint snapshot", zap.Error(err))
		}
	}

	if s.promoter != nil {
		if n := s.promoter.PromoteDue(ctx); n > 0 {
			s.logger.Info("Promoted finished orders after refresh", zap.Int("orders", n))
		}
	}

	return nil
}

// RefreshStock replaces only the stock levels, bypassing the stock cache
func (s *IngestionService) RefreshStock(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "IngestionService.RefreshStock")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	if err := s.stock.Invalidate(ctx, s.cfg.LowStockThreshold); err != nil {
		s.logger.Warn("Failed to invalidate stock cache", zap.Error(err))
	}

	levels, err := s.stock.GetLowStockItems(ctx, s.cfg.LowStockThreshold)
	if err != nil {
		util.SnapshotRefreshTotal.WithLabelValues("stock", "failed").Inc()
		s.logger.Warn("Stock refresh failed", zap.Error(err))
		return fmt.Errorf("failed to fetch stock levels: %w", err)
	}

	s.snaps.ReplaceStock(models.NewStockSnapshot(levels))
	util.SnapshotRefreshTotal.WithLabelValues("stock", "success").Inc()
	return nil
}

// Trigger schedules an immediate full fetch. Calls made while one is already
// pending collapse into it.
func (s *IngestionService) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// RequestStockRefresh schedules an asynchronous stock-only refresh
func (s *IngestionService) RequestStockRefresh() {
	select {
	case s.stockReq <- struct{}{}:
	default:
	}
}

// HandleEvent treats a push event as a wake-up signal
func (s *IngestionService) HandleEvent(ctx context.Context, event models.OrderEvent) error {
	util.PushEventsTotal.WithLabelValues(event.Type).Inc()
	s.logger.Debug("Push event received",
		zap.String("type", event.Type),
		zap.Int64("order_id", event.OrderID))
	s.Trigger()
	return nil
}

// Run polls every interval and on every trigger until ctx is cancelled
func (s *IngestionService) Run(ctx context.Context, interval time.Duration) {
	s.logger.Info("Ingestion loop started", zap.Duration("interval", interval))

	_ = s.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Ingestion loop stopped")
			return
		case <-ticker.C:
			_ = s.Refresh(ctx)
		case <-s.trigger:
			_ = s.Refresh(ctx)
			ticker.Reset(interval)
		case <-s.stockReq:
			_ = s.RefreshStock(ctx)
		}
	}
}

// activeOnly drops orders the collaborator returned despite the status filter
func activeOnly(orders []models.Order) []models.Order {
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if o.Status.IsActive() {
			out = append(out, o)
		}
	}
	return out
}
