package display

import (
	"sort"
	"time"

	"kitchen-display/internal/models"
)

// OrderMeta is the order header copied into every station bucket the order touches
type OrderMeta struct {
	OrderID       int64              `json:"order_id"`
	OrderNumber   string             `json:"order_number"`
	TableNumber   string             `json:"table_number"`
	CustomerName  string             `json:"customer_name"`
	WaiterName    string             `json:"waiter_name,omitempty"`
	Status        models.OrderStatus `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	Priority      Priority           `json:"priority"`
	EstimatedTime time.Duration      `json:"estimated_time"`
}

// QueueEntry is one order's share of work on a station
type QueueEntry struct {
	Order OrderMeta          `json:"order"`
	Items []models.OrderItem `json:"items"`
}

// StationQueue is the derived work list of a single station
type StationQueue struct {
	Station models.Station `json:"station"`
	Entries []QueueEntry   `json:"entries"`
}

// ItemCount returns the number of item lines in the queue.
func (q StationQueue) ItemCount() int {
	n := 0
	for _, e := range q.Entries {
		n += len(e.Items)
	}
	return n
}

// MetaOf builds the order header with derived priority and estimate.
func MetaOf(order models.Order, now time.Time) OrderMeta {
	return OrderMeta{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		TableNumber:   order.TableNumber,
		CustomerName:  order.CustomerName,
		WaiterName:    order.WaiterName,
		Status:        order.Status,
		CreatedAt:     order.CreatedAt,
		Priority:      PriorityOf(order, now),
		EstimatedTime: EstimatedTime(order),
	}
}

// Route splits the active items of every order into per-station queues.
// An order appears on a station iff it has at least one active item tagged
// for it. Entries are sorted most urgent first, then oldest, then by id, so
// the same input always yields the same output.
func Route(orders []models.Order, now time.Time) map[models.Station]StationQueue {
	queues := make(map[models.Station]StationQueue)

	for _, order := range orders {
		if !order.Status.IsActive() {
			continue
		}

		var buckets map[models.Station][]models.OrderItem
		var touched []models.Station
		for _, item := range order.Items {
			if !item.Status.IsActive() {
				continue
			}
			station := item.StationOrDefault()
			if buckets == nil {
				buckets = make(map[models.Station][]models.OrderItem)
			}
			if _, seen := buckets[station]; !seen {
				touched = append(touched, station)
			}
			buckets[station] = append(buckets[station], item)
		}
		if len(touched) == 0 {
			continue
		}

		meta := MetaOf(order, now)
		for _, station := range touched {
			q := queues[station]
			q.Station = station
			q.Entries = append(q.Entries, QueueEntry{Order: meta, Items: buckets[station]})
			queues[station] = q
		}
	}

	for station, q := range queues {
		sortEntries(q.Entries)
		queues[station] = q
	}
	return queues
}

func sortEntries(entries []QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Order, entries[j].Order
		if a.Priority.rank() != b.Priority.rank() {
			return a.Priority.rank() > b.Priority.rank()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.OrderID < b.OrderID
	})
}

// ApplyOrdering moves the listed orders to the front of the queue in the given
// order. Ids not present in the queue are ignored; unlisted entries keep their
// canonical order behind the listed ones.
func ApplyOrdering(q StationQueue, orderIDs []int64) StationQueue {
	if len(orderIDs) == 0 || len(q.Entries) == 0 {
		return q
	}

	byID := make(map[int64]int, len(q.Entries))
	for i, e := range q.Entries {
		byID[e.Order.OrderID] = i
	}

	out := StationQueue{Station: q.Station, Entries: make([]QueueEntry, 0, len(q.Entries))}
	used := make(map[int]bool, len(orderIDs))
	for _, id := range orderIDs {
		idx, ok := byID[id]
		if !ok || used[idx] {
			continue
		}
		used[idx] = true
		out.Entries = append(out.Entries, q.Entries[idx])
	}
	for i, e := range q.Entries {
		if !used[i] {
			out.Entries = append(out.Entries, e)
		}
	}
	return out
}
