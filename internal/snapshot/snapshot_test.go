package snapshot

import (
	"sync"
	"testing"
	"time"

	"kitchen-display/internal/display"
	"kitchen-display/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrders() []models.Order {
	return []models.Order{
		{
			ID:          1,
			OrderNumber: "A-1",
			Status:      models.OrderStatusPreparing,
			CreatedAt:   time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC),
			Items: []models.OrderItem{
				{ID: 10, OrderID: 1, Station: models.StationGrill, Status: models.ItemStatusPending},
				{ID: 11, OrderID: 1, Station: models.StationSalad, Status: models.ItemStatusPending},
			},
		},
		{ID: 2, OrderNumber: "A-2", Status: models.OrderStatusPending},
	}
}

func TestStoreStartsEmpty(t *testing.T) {
	s := NewStore()
	cur := s.Current()
	require.NotNil(t, cur)
	assert.Empty(t, cur.Orders)
	assert.NotNil(t, cur.Stock)
	assert.False(t, s.Ready())
}

func TestReplaceBumpsGenerationAndVersion(t *testing.T) {
	s := NewStore()
	first := s.Replace(testOrders(), nil, nil, time.Now())
	assert.Equal(t, uint64(1), first.Generation)
	assert.Equal(t, uint64(1), first.Version)
	assert.True(t, s.Ready())

	second := s.Replace(testOrders()[:1], models.StockSnapshot{}, nil, time.Now())
	assert.Equal(t, uint64(2), second.Generation)
	assert.Len(t, first.Orders, 2, "old snapshot must be untouched")
	assert.Len(t, s.Current().Orders, 1)
}

func TestPatchCopiesOnWrite(t *testing.T) {
	s := NewStore()
	before := s.Replace(testOrders(), nil, nil, time.Now())

	ok := s.Patch(before.Generation, 1, func(o *models.Order) {
		o.Items[0].Status = models.ItemStatusPreparing
	})
	require.True(t, ok)

	after := s.Current()
	assert.Equal(t, before.Version+1, after.Version)
	assert.Equal(t, before.Generation, after.Generation)
	assert.Equal(t, models.ItemStatusPending, before.Orders[0].Items[0].Status)
	assert.Equal(t, models.ItemStatusPreparing, after.Orders[0].Items[0].Status)
}

func TestPatchDroppedAfterReplace(t *testing.T) {
	s := NewStore()
	old := s.Replace(testOrders(), nil, nil, time.Now())
	s.Replace(testOrders(), nil, nil, time.Now())

	ok := s.Patch(old.Generation, 1, func(o *models.Order) {
		o.Items[0].Status = models.ItemStatusReady
	})
	assert.False(t, ok)
	assert.Equal(t, models.ItemStatusPending, s.Current().Orders[0].Items[0].Status)

	assert.False(t, s.Patch(s.Current().Generation, 99, func(o *models.Order) {}))
}

func TestReplaceStockKeepsOrders(t *testing.T) {
	s := NewStore()
	s.Replace(testOrders(), nil, nil, time.Now())

	stock := models.NewStockSnapshot([]models.StockLevel{{MenuItemID: 3, PercentRemaining: decimal.NewFromInt(5)}})
	next := s.ReplaceStock(stock)
	assert.Len(t, next.Orders, 2)
	assert.Contains(t, next.Stock, int64(3))
	assert.Equal(t, uint64(1), next.Generation)
}

func TestSeedOnlyBeforeFirstFetch(t *testing.T) {
	s := NewStore()
	restored := &Snapshot{Orders: testOrders()}
	require.True(t, s.Seed(restored))
	assert.True(t, s.Current().Stale)
	assert.True(t, s.Ready())

	live := s.Replace(testOrders()[:1], nil, nil, time.Now())
	assert.False(t, live.Stale)
	assert.False(t, s.Seed(restored))
}

func TestOverlayResetOnReplace(t *testing.T) {
	s := NewStore()
	s.Replace(testOrders(), nil, nil, time.Now())

	s.SetStationOrder(models.StationGrill, []int64{2, 1})
	assert.Equal(t, []int64{2, 1}, s.StationOrder(models.StationGrill))
	assert.Nil(t, s.StationOrder(models.StationSalad))

	s.Patch(s.Current().Generation, 1, func(o *models.Order) {})
	assert.Equal(t, []int64{2, 1}, s.StationOrder(models.StationGrill), "patches keep the overlay")

	s.Replace(testOrders(), nil, nil, time.Now())
	assert.Nil(t, s.StationOrder(models.StationGrill))
}

func TestSubscribeReceivesLatestVersion(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe()
	defer cancel()

	s.Replace(testOrders(), nil, nil, time.Now())
	s.Replace(testOrders(), nil, nil, time.Now())
	last := s.Replace(testOrders(), nil, nil, time.Now())

	select {
	case v := <-ch:
		assert.Equal(t, last.Version, v)
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe()
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	s.Replace(nil, nil, nil, time.Now())
}

func TestConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	s := NewStore()
	s.Replace(testOrders(), nil, nil, time.Now())

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				cur := s.Current()
				queues := display.Route(cur.Orders, time.Now())
				for _, q := range queues {
					for _, e := range q.Entries {
						if len(e.Items) == 0 {
							t.Errorf("empty entry in version %d", cur.Version)
							return
						}
					}
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		gen := s.Current().Generation
		s.Patch(gen, 1, func(o *models.Order) {
			o.Items[0].Status = models.ItemStatusReady
		})
		s.Replace(testOrders(), nil, nil, time.Now())
	}
	close(stop)
	wg.Wait()
}
