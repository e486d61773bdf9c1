package display

import (
	"time"

	"kitchen-display/internal/models"
)

// Priority is the urgency tier of an order derived from its age
type Priority string

// Priority tiers
const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

const (
	highAfter   = 10 * time.Minute
	urgentAfter = 20 * time.Minute
)

// rank orders tiers for sorting, higher is more urgent.
func (p Priority) rank() int {
	switch p {
	case PriorityUrgent:
		return 2
	case PriorityHigh:
		return 1
	}
	return 0
}

// stationBaseTime is the fixed preparation estimate per item on each station.
var stationBaseTime = map[models.Station]time.Duration{
	models.StationGrill:    15 * time.Minute,
	models.StationSalad:    5 * time.Minute,
	models.StationDessert:  10 * time.Minute,
	models.StationBeverage: 3 * time.Minute,
	models.StationMain:     20 * time.Minute,
}

// Elapsed returns how long the order has been open, never negative.
func Elapsed(order models.Order, now time.Time) time.Duration {
	d := now.Sub(order.CreatedAt)
	if d < 0 {
		return 0
	}
	return d
}

// PriorityOf derives the priority tier from the order age at now.
func PriorityOf(order models.Order, now time.Time) Priority {
	elapsed := Elapsed(order, now)
	switch {
	case elapsed > urgentAfter:
		return PriorityUrgent
	case elapsed > highAfter:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// EstimatedTime sums the station base time of every item still needing work.
// Unknown station tags fall back to the main station estimate.
func EstimatedTime(order models.Order) time.Duration {
	var total time.Duration
	for _, item := range order.Items {
		if !item.Status.IsActive() {
			continue
		}
		total += BaseTime(item.StationOrDefault())
	}
	return total
}

// BaseTime returns the per-item estimate for a station.
func BaseTime(station models.Station) time.Duration {
	if d, ok := stationBaseTime[station]; ok {
		return d
	}
	return stationBaseTime[models.StationMain]
}
