package display

import (
	"errors"
	"fmt"

	"kitchen-display/internal/models"
)

var (
	ErrInvalidTransition = errors.New("invalid item status transition")
	ErrUnknownStatus     = errors.New("unknown item status")
)

// Outcome describes what a transition request resolved to
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeNoOp    Outcome = "noop"
)

// progress is the position of a status along pending -> preparing -> ready -> served.
var progress = map[models.ItemStatus]int{
	models.ItemStatusPending:   0,
	models.ItemStatusPreparing: 1,
	models.ItemStatusReady:     2,
	models.ItemStatusServed:    3,
}

// CheckTransition validates moving an item from one status to another.
//
// Forward moves along the chain are applied, including skips such as
// pending -> ready used by "mark all ready". Repeating the current status or
// moving backwards is a no-op. Cancellation is only possible from pending or
// preparing, and nothing leaves cancelled.
func CheckTransition(from, to models.ItemStatus) (Outcome, error) {
	if !isKnownItemStatus(to) {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if !isKnownItemStatus(from) {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, from)
	}
	if from == to {
		return OutcomeNoOp, nil
	}
	if from == models.ItemStatusCancelled {
		return "", fmt.Errorf("%w: item is cancelled", ErrInvalidTransition)
	}
	if to == models.ItemStatusCancelled {
		if from.IsActive() {
			return OutcomeApplied, nil
		}
		return "", fmt.Errorf("%w: cannot cancel a %s item", ErrInvalidTransition, from)
	}
	if progress[to] < progress[from] {
		return OutcomeNoOp, nil
	}
	return OutcomeApplied, nil
}

func isKnownItemStatus(s models.ItemStatus) bool {
	if s == models.ItemStatusCancelled {
		return true
	}
	_, ok := progress[s]
	return ok
}

// TransitionItem returns a copy of the order with the item moved to status.
// The input order is never modified.
func TransitionItem(order models.Order, itemID int64, to models.ItemStatus) (models.Order, Outcome, error) {
	idx := order.FindItem(itemID)
	if idx < 0 {
		return order, "", fmt.Errorf("item %d not in order %d", itemID, order.ID)
	}

	outcome, err := CheckTransition(order.Items[idx].Status, to)
	if err != nil || outcome == OutcomeNoOp {
		return order, outcome, err
	}

	next := order.Clone()
	next.Items[idx].Status = to
	return next, OutcomeApplied, nil
}

// AllItemsDone reports whether every item is ready or served. An order with
// no items is never considered done.
func AllItemsDone(order models.Order) bool {
	if len(order.Items) == 0 {
		return false
	}
	for _, item := range order.Items {
		if !item.Status.IsDone() {
			return false
		}
	}
	return true
}

// DerivedOrderStatus applies the only automatic order-level rule: once every
// item is ready or served the order is promoted to ready. The second return is
// false when no promotion is due.
func DerivedOrderStatus(order models.Order) (models.OrderStatus, bool) {
	if !AllItemsDone(order) {
		return order.Status, false
	}
	switch order.Status {
	case models.OrderStatusReady, models.OrderStatusServed, models.OrderStatusPaid, models.OrderStatusCancelled:
		return order.Status, false
	}
	return models.OrderStatusReady, true
}

// ItemsToMarkReady lists the items "mark all ready" should move.
// Cancelled items and items already done are skipped.
func ItemsToMarkReady(order models.Order) []int64 {
	var ids []int64
	for _, item := range order.Items {
		if item.Status.IsActive() {
			ids = append(ids, item.ID)
		}
	}
	return ids
}
