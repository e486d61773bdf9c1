package service

import (
	"sort"
	"strings"
	"sync"
	"time"

	"kitchen-display/internal/display"
	"kitchen-display/internal/models"
	"kitchen-display/internal/snapshot"
	"kitchen-display/internal/util"

	"go.uber.org/zap"
)

// BoardView is every station queue derived from one snapshot
type BoardView struct {
	Version   uint64                 `json:"version"`
	FetchedAt time.Time              `json:"fetched_at"`
	Stale     bool                   `json:"stale"`
	Stations  []display.StationQueue `json:"stations"`
}

// KitchenBoard is the multi-kitchen view
type KitchenBoard struct {
	Version   uint64                   `json:"version"`
	Summaries []display.KitchenSummary `json:"kitchens"`
	Warnings  []display.ConfigWarning  `json:"warnings"`
}

// OrderDetail is one order with its derived fields and stock advisories
type OrderDetail struct {
	Order      models.Order                `json:"order"`
	Meta       display.OrderMeta           `json:"meta"`
	Advisories map[int64]*display.Advisory `json:"advisories,omitempty"`
}

// BoardService derives the read views from the current snapshot
type BoardService struct {
	snaps    *snapshot.Store
	kitchens *KitchenRegistry
	now      func() time.Time

	warnMu  sync.Mutex
	lastKey string
	logger  *zap.Logger
}

// NewBoardService creates a new board service
func NewBoardService(snaps *snapshot.Store, kitchens *KitchenRegistry) *BoardService {
	return &BoardService{
		snaps:    snaps,
		kitchens: kitchens,
		now:      time.Now,
		logger:   util.GetLogger(),
	}
}

// Stations returns all station queues with the manual ordering applied.
// Known stations are always listed, in their fixed order, even when empty.
func (b *BoardService) Stations() BoardView {
	snap := b.snaps.Current()
	queues := display.Route(snap.Orders, b.now())

	names := append([]models.Station(nil), models.Stations...)
	var extra []models.Station
	for st := range queues {
		if !st.IsKnown() {
			extra = append(extra, st)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	names = append(names, extra...)

	view := BoardView{
		Version:   snap.Version,
		FetchedAt: snap.FetchedAt,
		Stale:     snap.Stale,
		Stations:  make([]display.StationQueue, 0, len(names)),
	}
	for _, st := range names {
		view.Stations = append(view.Stations, b.withOverlay(st, queues[st]))
	}
	return view
}

// Station returns one station queue with the manual ordering applied
func (b *BoardService) Station(station models.Station) display.StationQueue {
	station = models.NormalizeStation(station)
	snap := b.snaps.Current()
	queues := display.Route(snap.Orders, b.now())
	return b.withOverlay(station, queues[station])
}

// SetStationOrder stores a manual ordering for a station until the next full refresh
func (b *BoardService) SetStationOrder(station models.Station, orderIDs []int64) display.StationQueue {
	station = models.NormalizeStation(station)
	b.snaps.SetStationOrder(station, orderIDs)
	return b.Station(station)
}

func (b *BoardService) withOverlay(station models.Station, q display.StationQueue) display.StationQueue {
	q.Station = station
	if q.Entries == nil {
		q.Entries = []display.QueueEntry{}
	}
	return display.ApplyOrdering(q, b.snaps.StationOrder(station))
}

// Kitchens aggregates the current snapshot into the configured kitchens
func (b *BoardService) Kitchens() KitchenBoard {
	snap := b.snaps.Current()
	summaries, warnings := display.Aggregate(b.kitchens.List(), snap.Orders, b.now(), snap.PrepTimes)
	if warnings == nil {
		warnings = []display.ConfigWarning{}
	}
	b.reportWarnings(warnings)
	return KitchenBoard{
		Version:   snap.Version,
		Summaries: summaries,
		Warnings:  warnings,
	}
}

// reportWarnings logs configuration warnings once per distinct set
func (b *BoardService) reportWarnings(warnings []display.ConfigWarning) {
	util.KitchenConfigWarnings.Set(float64(len(warnings)))

	msgs := make([]string, len(warnings))
	for i, w := range warnings {
		msgs[i] = w.Message
	}
	key := strings.Join(msgs, "|")

	b.warnMu.Lock()
	defer b.warnMu.Unlock()
	if key == b.lastKey {
		return
	}
	b.lastKey = key
	for _, w := range warnings {
		b.logger.Warn("Kitchen configuration warning",
			zap.String("kind", string(w.Kind)),
			zap.String("station", string(w.Station)),
			zap.Strings("kitchen_ids", w.KitchenIDs))
	}
}

// Order returns one order with derived priority, estimate and advisories
func (b *BoardService) Order(orderID int64) (*OrderDetail, error) {
	snap := b.snaps.Current()
	order, ok := snap.Order(orderID)
	if !ok {
		return nil, ErrOrderNotFound
	}

	detail := &OrderDetail{
		Order: order,
		Meta:  display.MetaOf(order, b.now()),
	}
	for _, item := range order.Items {
		if item.Status != models.ItemStatusPending {
			continue
		}
		if gate := display.CheckGate(item, snap.Stock); gate.Advisory != nil {
			if detail.Advisories == nil {
				detail.Advisories = make(map[int64]*display.Advisory)
			}
			detail.Advisories[item.ID] = gate.Advisory
		}
	}
	return detail, nil
}

// Gate runs the stock gate for one item against the current stock levels
func (b *BoardService) Gate(orderID, itemID int64) (display.GateResult, error) {
	snap := b.snaps.Current()
	order, ok := snap.Order(orderID)
	if !ok {
		return display.GateResult{}, ErrOrderNotFound
	}
	idx := order.FindItem(itemID)
	if idx < 0 {
		return display.GateResult{}, ErrItemNotFound
	}
	return display.CheckGate(order.Items[idx], snap.Stock), nil
}

// Ready reports whether a snapshot has been loaded
func (b *BoardService) Ready() bool {
	return b.snaps.Ready()
}
