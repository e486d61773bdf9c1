package countdown

import (
	"context"
	"sync"
	"time"

	"kitchen-display/internal/display"
	"kitchen-display/internal/models"
	"kitchen-display/internal/snapshot"
	"kitchen-display/internal/util"

	"go.uber.org/zap"
)

// Tick is one countdown update for a visible order
type Tick struct {
	OrderID        int64            `json:"order_id"`
	OrderNumber    string           `json:"order_number"`
	ElapsedSeconds int64            `json:"elapsed_seconds"`
	Priority       display.Priority `json:"priority"`
}

// Sink receives ticks; it is called from many task goroutines
type Sink interface {
	PublishCountdown(t Tick)
}

type task struct {
	order  models.Order
	clock  chan time.Time
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager keeps one countdown task per visible order. Tasks only read the
// order header captured at start and never touch the snapshot.
type Manager struct {
	snaps    *snapshot.Store
	sink     Sink
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	tasks  map[int64]*task
	logger *zap.Logger
}

// NewManager creates a countdown manager ticking every interval
func NewManager(snaps *snapshot.Store, sink Sink, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = time.Second
	}
	return &Manager{
		snaps:    snaps,
		sink:     sink,
		interval: interval,
		now:      time.Now,
		tasks:    make(map[int64]*task),
		logger:   util.GetLogger(),
	}
}

// Run drives the central clock and follows snapshot changes until ctx is
// cancelled, then stops every task.
func (m *Manager) Run(ctx context.Context) {
	changes, unsubscribe := m.snaps.Subscribe()
	defer unsubscribe()
	defer m.StopAll()

	m.Sync(m.snaps.Current())

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			m.Sync(m.snaps.Current())
		case <-ticker.C:
			m.tick(m.now())
		}
	}
}

// Sync starts tasks for newly visible orders and cancels tasks for orders
// that left the board
func (m *Manager) Sync(snap *snapshot.Snapshot) {
	visible := make(map[int64]models.Order)
	for _, o := range snap.Orders {
		if isVisible(o) {
			visible[o.ID] = o
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, t := range m.tasks {
		if _, ok := visible[id]; !ok {
			t.cancel()
			<-t.done
			delete(m.tasks, id)
		}
	}
	for id, o := range visible {
		if _, ok := m.tasks[id]; !ok {
			m.tasks[id] = m.start(o)
		}
	}

	util.ActiveCountdowns.Set(float64(len(m.tasks)))
}

// Active returns the number of running tasks
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// StopAll cancels every task and waits for them to exit
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tasks {
		t.cancel()
		<-t.done
		delete(m.tasks, id)
	}
	util.ActiveCountdowns.Set(0)
}

func (m *Manager) start(o models.Order) *task {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		order:  models.Order{ID: o.ID, OrderNumber: o.OrderNumber, CreatedAt: o.CreatedAt},
		clock:  make(chan time.Time, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.clock:
				m.sink.PublishCountdown(Tick{
					OrderID:        t.order.ID,
					OrderNumber:    t.order.OrderNumber,
					ElapsedSeconds: int64(display.Elapsed(t.order, now) / time.Second),
					Priority:       display.PriorityOf(t.order, now),
				})
			}
		}
	}()
	return t
}

// tick fans the clock out to every task. A task still busy with the previous
// tick skips this one.
func (m *Manager) tick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		select {
		case t.clock <- now:
		default:
		}
	}
}

// isVisible reports whether the order shows on any station queue
func isVisible(o models.Order) bool {
	if !o.Status.IsActive() {
		return false
	}
	for _, item := range o.Items {
		if item.Status.IsActive() {
			return true
		}
	}
	return false
}
