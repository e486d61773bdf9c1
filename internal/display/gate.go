package display

import (
	"fmt"
	"strings"

	"kitchen-display/internal/models"

	"github.com/shopspring/decimal"
)

// AdvisoryLevel grades a stock advisory
type AdvisoryLevel string

const (
	AdvisoryCritical AdvisoryLevel = "critical"
	AdvisoryLow      AdvisoryLevel = "low"
)

var (
	criticalBelow = decimal.NewFromInt(10)
	lowBelow      = decimal.NewFromInt(20)
)

// Advisory is an inventory warning attached to an item
type Advisory struct {
	Level                AdvisoryLevel   `json:"level"`
	MenuItemID           int64           `json:"menu_item_id"`
	Name                 string          `json:"name"`
	PercentRemaining     decimal.Decimal `json:"percent_remaining"`
	LowIngredients       []string        `json:"low_ingredients,omitempty"`
	RequiresConfirmation bool            `json:"requires_confirmation"`
	Message              string          `json:"message"`
}

// GateResult is the outcome of a stock gate check. OK is false only when the
// operator must confirm before the item may start preparing.
type GateResult struct {
	OK       bool      `json:"ok"`
	Advisory *Advisory `json:"advisory,omitempty"`
}

// CheckGate looks up the item's menu entry in the stock snapshot. Missing
// entries pass without advisory. Below 10% the operator must confirm; from 10%
// up to 20% an annotation is attached. The gate never blocks outright.
func CheckGate(item models.OrderItem, stock models.StockSnapshot) GateResult {
	if item.MenuItemID == nil {
		return GateResult{OK: true}
	}
	level, ok := stock[*item.MenuItemID]
	if !ok {
		return GateResult{OK: true}
	}

	pct := level.PercentRemaining
	switch {
	case pct.LessThan(criticalBelow):
		return GateResult{OK: false, Advisory: newAdvisory(AdvisoryCritical, level, true)}
	case pct.LessThan(lowBelow):
		return GateResult{OK: true, Advisory: newAdvisory(AdvisoryLow, level, false)}
	default:
		return GateResult{OK: true}
	}
}

func newAdvisory(lvl AdvisoryLevel, level models.StockLevel, confirm bool) *Advisory {
	msg := fmt.Sprintf("%s stock at %s%%", level.Name, level.PercentRemaining.StringFixed(1))
	if len(level.LowIngredients) > 0 {
		msg += " (low: " + strings.Join(level.LowIngredients, ", ") + ")"
	}
	return &Advisory{
		Level:                lvl,
		MenuItemID:           level.MenuItemID,
		Name:                 level.Name,
		PercentRemaining:     level.PercentRemaining,
		LowIngredients:       level.LowIngredients,
		RequiresConfirmation: confirm,
		Message:              msg,
	}
}

// GatesTransition reports whether moving from -> to takes a pending item into
// preparation, directly or by skipping ahead to ready or served.
func GatesTransition(from, to models.ItemStatus) bool {
	if from != models.ItemStatusPending {
		return false
	}
	p, ok := progress[to]
	return ok && p >= progress[models.ItemStatusPreparing]
}
