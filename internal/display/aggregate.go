package display

import (
	"fmt"
	"sort"
	"time"

	"kitchen-display/internal/models"
)

// KitchenSummary holds the metrics of one configured kitchen
type KitchenSummary struct {
	KitchenID    string           `json:"kitchen_id"`
	Name         string           `json:"name"`
	Type         string           `json:"type"`
	Stations     []models.Station `json:"stations"`
	DisplayOrder int              `json:"display_order"`
	TotalOrders  int              `json:"total_orders"`
	Pending      int              `json:"pending_items"`
	Preparing    int              `json:"preparing_items"`
	Ready        int              `json:"ready_items"`
	Urgent       int              `json:"urgent_orders"`
	AvgPrepTime  time.Duration    `json:"avg_prep_time"`
}

// WarningKind classifies configuration warnings
type WarningKind string

const (
	WarningUnknownStation     WarningKind = "unknown_station"
	WarningOverlappingStation WarningKind = "overlapping_station"
)

// ConfigWarning flags a kitchen configuration that is tolerated but ambiguous
type ConfigWarning struct {
	Kind       WarningKind    `json:"kind"`
	Station    models.Station `json:"station"`
	KitchenIDs []string       `json:"kitchen_ids"`
	Message    string         `json:"message"`
}

// PrepTimes holds average preparation time per station as reported by analytics
type PrepTimes map[models.Station]time.Duration

// Aggregate computes a summary for each active kitchen. A station shared by
// several active kitchens is counted by each of them independently; the
// overlap is reported as a warning rather than deduplicated.
func Aggregate(kitchens []models.KitchenConfig, orders []models.Order, now time.Time, prep PrepTimes) ([]KitchenSummary, []ConfigWarning) {
	active := make([]models.KitchenConfig, 0, len(kitchens))
	for _, k := range kitchens {
		if k.Active {
			active = append(active, k)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].DisplayOrder != active[j].DisplayOrder {
			return active[i].DisplayOrder < active[j].DisplayOrder
		}
		return active[i].ID < active[j].ID
	})

	summaries := make([]KitchenSummary, 0, len(active))
	for _, k := range active {
		summaries = append(summaries, summarize(k, orders, now, prep))
	}
	return summaries, ValidateKitchens(active)
}

func summarize(k models.KitchenConfig, orders []models.Order, now time.Time, prep PrepTimes) KitchenSummary {
	stations := make(map[models.Station]bool, len(k.Stations))
	for _, s := range k.Stations {
		stations[models.NormalizeStation(s)] = true
	}

	sum := KitchenSummary{
		KitchenID:    k.ID,
		Name:         k.Name,
		Type:         k.Type,
		Stations:     k.Stations,
		DisplayOrder: k.DisplayOrder,
		AvgPrepTime:  averagePrep(k.Stations, prep),
	}

	for _, order := range orders {
		if !order.Status.IsActive() {
			continue
		}
		touches := false
		for _, item := range order.Items {
			if !stations[item.StationOrDefault()] {
				continue
			}
			switch item.Status {
			case models.ItemStatusPending:
				sum.Pending++
			case models.ItemStatusPreparing:
				sum.Preparing++
			case models.ItemStatusReady:
				sum.Ready++
			default:
				continue
			}
			touches = true
		}
		if !touches {
			continue
		}
		sum.TotalOrders++
		if PriorityOf(order, now) == PriorityUrgent {
			sum.Urgent++
		}
	}
	return sum
}

func averagePrep(stations []models.Station, prep PrepTimes) time.Duration {
	var total time.Duration
	n := 0
	for _, s := range stations {
		if d, ok := prep[s]; ok {
			total += d
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}

// ValidateKitchens reports unknown stations and stations claimed by more than
// one of the given kitchens. Callers pass only active kitchens.
func ValidateKitchens(kitchens []models.KitchenConfig) []ConfigWarning {
	var warnings []ConfigWarning
	owners := make(map[models.Station][]string)
	var order []models.Station

	for _, k := range kitchens {
		seen := make(map[models.Station]bool, len(k.Stations))
		for _, s := range k.Stations {
			if seen[s] {
				continue
			}
			seen[s] = true
			if !s.IsKnown() {
				warnings = append(warnings, ConfigWarning{
					Kind:       WarningUnknownStation,
					Station:    s,
					KitchenIDs: []string{k.ID},
					Message:    fmt.Sprintf("kitchen %q references unknown station %q", k.Name, s),
				})
				continue
			}
			if _, ok := owners[s]; !ok {
				order = append(order, s)
			}
			owners[s] = append(owners[s], k.ID)
		}
	}

	for _, s := range order {
		ids := owners[s]
		if len(ids) < 2 {
			continue
		}
		warnings = append(warnings, ConfigWarning{
			Kind:       WarningOverlappingStation,
			Station:    s,
			KitchenIDs: ids,
			Message:    fmt.Sprintf("station %q is assigned to %d active kitchens and is counted by each", s, len(ids)),
		})
	}
	return warnings
}
