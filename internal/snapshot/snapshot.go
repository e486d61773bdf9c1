package snapshot

import (
	"sync"
	"sync/atomic"
	"time"

	"kitchen-display/internal/display"
	"kitchen-display/internal/models"
)

// Snapshot is an immutable view of the active orders and stock levels.
// Readers must never modify a Snapshot obtained from the Store.
type Snapshot struct {
	// Version increases on every change, including optimistic patches.
	Version uint64 `json:"version"`
	// Generation increases only when the order set is replaced by a full fetch.
	Generation uint64               `json:"generation"`
	Orders     []models.Order       `json:"orders"`
	Stock      models.StockSnapshot `json:"stock"`
	PrepTimes  display.PrepTimes    `json:"prep_times"`
	FetchedAt  time.Time            `json:"fetched_at"`
	// Stale is set while serving a checkpoint restored at startup.
	Stale bool `json:"stale"`
}

// Order returns the order with the given id.
func (s *Snapshot) Order(id int64) (models.Order, bool) {
	for _, o := range s.Orders {
		if o.ID == id {
			return o, true
		}
	}
	return models.Order{}, false
}

// Store holds the current snapshot behind an atomic pointer. Reads are lock
// free; writers are serialized and always publish a fresh Snapshot value.
type Store struct {
	current atomic.Pointer[Snapshot]
	writeMu sync.Mutex

	overlayMu  sync.RWMutex
	overlay    map[models.Station][]int64
	overlayGen uint64

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan uint64
}

// NewStore creates a store holding an empty snapshot.
func NewStore() *Store {
	s := &Store{
		overlay: make(map[models.Station][]int64),
		subs:    make(map[int]chan uint64),
	}
	s.current.Store(&Snapshot{Stock: models.StockSnapshot{}})
	return s
}

// Current returns the latest snapshot.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Ready reports whether any real data has been loaded yet.
func (s *Store) Ready() bool {
	cur := s.Current()
	return cur.Generation > 0 || cur.Stale
}

// Replace swaps in a full fetch result and discards the ordering overlay.
func (s *Store) Replace(orders []models.Order, stock models.StockSnapshot, prep display.PrepTimes, fetchedAt time.Time) *Snapshot {
	s.writeMu.Lock()
	prev := s.Current()
	if stock == nil {
		stock = models.StockSnapshot{}
	}
	next := &Snapshot{
		Version:    prev.Version + 1,
		Generation: prev.Generation + 1,
		Orders:     orders,
		Stock:      stock,
		PrepTimes:  prep,
		FetchedAt:  fetchedAt,
	}
	s.current.Store(next)
	s.writeMu.Unlock()

	s.resetOverlay(next.Generation)
	s.notify(next.Version)
	return next
}

// ReplaceStock swaps only the stock levels, keeping the order set.
func (s *Store) ReplaceStock(stock models.StockSnapshot) *Snapshot {
	s.writeMu.Lock()
	prev := s.Current()
	next := *prev
	next.Version = prev.Version + 1
	next.Stock = stock
	s.current.Store(&next)
	s.writeMu.Unlock()

	s.notify(next.Version)
	return &next
}

// Seed installs a restored snapshot, marked stale, if nothing newer exists.
func (s *Store) Seed(snap *Snapshot) bool {
	s.writeMu.Lock()
	if s.Current().Generation > 0 {
		s.writeMu.Unlock()
		return false
	}
	seeded := *snap
	seeded.Stale = true
	seeded.Version = s.Current().Version + 1
	seeded.Generation = 0
	if seeded.Stock == nil {
		seeded.Stock = models.StockSnapshot{}
	}
	s.current.Store(&seeded)
	s.writeMu.Unlock()

	s.notify(seeded.Version)
	return true
}

// Patch applies fn to a copy of one order and publishes the result as a new
// version. The patch is dropped, returning false, when the order is gone or
// the snapshot generation is no longer the one the caller observed.
func (s *Store) Patch(generation uint64, orderID int64, fn func(*models.Order)) bool {
	s.writeMu.Lock()
	prev := s.Current()
	if prev.Generation != generation {
		s.writeMu.Unlock()
		return false
	}

	idx := -1
	for i := range prev.Orders {
		if prev.Orders[i].ID == orderID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.writeMu.Unlock()
		return false
	}

	orders := make([]models.Order, len(prev.Orders))
	copy(orders, prev.Orders)
	patched := orders[idx].Clone()
	fn(&patched)
	orders[idx] = patched

	next := *prev
	next.Version = prev.Version + 1
	next.Orders = orders
	s.current.Store(&next)
	s.writeMu.Unlock()

	s.notify(next.Version)
	return true
}

// Subscribe returns a channel receiving the version of every change. Slow
// subscribers miss intermediate versions, never the latest one.
func (s *Store) Subscribe() (<-chan uint64, func()) {
	ch := make(chan uint64, 1)

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
		s.subMu.Unlock()
	}
}

func (s *Store) notify(version uint64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- version:
		default:
			// drop the stale pending value and keep the newest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- version:
			default:
			}
		}
	}
}
