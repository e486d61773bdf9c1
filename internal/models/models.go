package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// OrderStatus is the order-level lifecycle status
type OrderStatus string

// Order statuses
const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusServed    OrderStatus = "served"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// ActiveOrderStatuses is the status filter used when polling the order service.
var ActiveOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusReady,
}

// IsActive reports whether the order still belongs to the kitchen working set.
func (s OrderStatus) IsActive() bool {
	switch s {
	case OrderStatusServed, OrderStatusPaid, OrderStatusCancelled:
		return false
	}
	return true
}

// ItemStatus is the per-item kitchen status
type ItemStatus string

// Item statuses
const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusPreparing ItemStatus = "preparing"
	ItemStatusReady     ItemStatus = "ready"
	ItemStatusServed    ItemStatus = "served"
	ItemStatusCancelled ItemStatus = "cancelled"
)

// IsActive reports whether an item still needs kitchen work.
func (s ItemStatus) IsActive() bool {
	return s == ItemStatusPending || s == ItemStatusPreparing
}

// IsDone reports whether the item counts as finished for order-level promotion.
func (s ItemStatus) IsDone() bool {
	return s == ItemStatusReady || s == ItemStatusServed
}

// Station is a kitchen work area an item is tagged to
type Station string

// Known stations
const (
	StationGrill    Station = "grill"
	StationSalad    Station = "salad"
	StationDessert  Station = "dessert"
	StationBeverage Station = "beverage"
	StationMain     Station = "main"
)

// Stations lists every known station in display order.
var Stations = []Station{StationGrill, StationSalad, StationDessert, StationBeverage, StationMain}

// NormalizeStation lowercases and trims a station tag. Empty tags map to main.
func NormalizeStation(s Station) Station {
	s = Station(strings.ToLower(strings.TrimSpace(string(s))))
	if s == "" {
		return StationMain
	}
	return s
}

// IsKnown reports whether s is one of the known stations.
func (s Station) IsKnown() bool {
	for _, known := range Stations {
		if s == known {
			return true
		}
	}
	return false
}

// Order represents a restaurant order as seen by the kitchen
type Order struct {
	ID           int64       `db:"id" json:"id"`
	OrderNumber  string      `db:"order_number" json:"order_number"`
	TableNumber  string      `db:"table_number" json:"table_number"`
	CustomerName string      `db:"customer_name" json:"customer_name"`
	WaiterID     *int64      `db:"waiter_id" json:"waiter_id,omitempty"`
	WaiterName   string      `db:"waiter_name" json:"waiter_name,omitempty"`
	Status       OrderStatus `db:"status" json:"status"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	Items        []OrderItem `db:"-" json:"items"`
}

// OrderItem represents one line of an order
type OrderItem struct {
	ID              int64          `db:"id" json:"id"`
	OrderID         int64          `db:"order_id" json:"order_id"`
	MenuItemID      *int64         `db:"menu_item_id" json:"menu_item_id,omitempty"`
	Name            string         `db:"name" json:"name"`
	Quantity        int            `db:"quantity" json:"quantity"`
	Station         Station        `db:"station" json:"station"`
	Status          ItemStatus     `db:"status" json:"status"`
	Modifiers       pq.StringArray `db:"modifiers" json:"modifiers"`
	SpecialRequests string         `db:"special_requests" json:"special_requests,omitempty"`
	Allergens       pq.StringArray `db:"allergens" json:"allergens"`
}

// StationOrDefault returns the item's normalized station, falling back to
// main when untagged.
func (i OrderItem) StationOrDefault() Station {
	return NormalizeStation(i.Station)
}

// FindItem returns the index of the item with the given id, or -1.
func (o *Order) FindItem(itemID int64) int {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the order safe to mutate.
func (o Order) Clone() Order {
	out := o
	out.Items = make([]OrderItem, len(o.Items))
	copy(out.Items, o.Items)
	return out
}

// StockLevel is one entry of the inventory snapshot
type StockLevel struct {
	MenuItemID       int64           `db:"menu_item_id" json:"menu_item_id"`
	Name             string          `db:"name" json:"name"`
	CurrentStock     decimal.Decimal `db:"current_stock" json:"current_stock"`
	MinStock         decimal.Decimal `db:"min_stock" json:"min_stock"`
	PercentRemaining decimal.Decimal `db:"percent_remaining" json:"percent_remaining"`
	LowIngredients   pq.StringArray  `db:"low_ingredients" json:"low_ingredients"`
}

// StockSnapshot maps menu item id to its stock level
type StockSnapshot map[int64]StockLevel

// NewStockSnapshot indexes stock levels by menu item id.
func NewStockSnapshot(levels []StockLevel) StockSnapshot {
	snap := make(StockSnapshot, len(levels))
	for _, l := range levels {
		snap[l.MenuItemID] = l
	}
	return snap
}

// PercentOf computes current/min*100, zero when min is not positive.
func PercentOf(current, minStock decimal.Decimal) decimal.Decimal {
	if !minStock.IsPositive() {
		return decimal.Zero
	}
	return current.Div(minStock).Mul(decimal.NewFromInt(100))
}

// KitchenConfig is an operator-defined grouping of stations
type KitchenConfig struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	Type                   string    `json:"type"`
	Stations               []Station `json:"stations"`
	Active                 bool      `json:"active"`
	DisplayOrder           int       `json:"display_order"`
	RefreshIntervalSeconds int       `json:"refresh_interval_seconds,omitempty"`
}
