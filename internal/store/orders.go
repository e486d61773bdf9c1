package store

import (
	"context"
	"fmt"

	"kitchen-display/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const ordersQuery = `
	SELECT o.id, o.order_number, o.table_number, o.customer_name, o.waiter_id,
	       COALESCE(w.name, '') AS waiter_name, o.status, o.created_at
	FROM orders o
	LEFT JOIN waiters w ON w.id = o.waiter_id
	WHERE o.status = ANY($1)
	ORDER BY o.created_at, o.id`

const itemsQuery = `
	SELECT id, order_id, menu_item_id, name, quantity, COALESCE(station, '') AS station, status,
	       COALESCE(modifiers, '{}') AS modifiers, COALESCE(special_requests, '') AS special_requests,
	       COALESCE(allergens, '{}') AS allergens
	FROM order_items
	WHERE order_id IN (?)
	ORDER BY order_id, id`

// GetOrders retrieves orders in the given statuses together with their items
func (s *Store) GetOrders(ctx context.Context, statuses []models.OrderStatus) ([]models.Order, error) {
	filter := make([]string, len(statuses))
	for i, st := range statuses {
		filter[i] = string(st)
	}

	var orders []models.Order
	if err := s.db.SelectContext(ctx, &orders, ordersQuery, pq.Array(filter)); err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	if len(orders) == 0 {
		return []models.Order{}, nil
	}

	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}

	query, args, err := sqlx.In(itemsQuery, ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var items []models.OrderItem
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}

	return attachItems(orders, items), nil
}

// attachItems distributes items onto their parent orders
func attachItems(orders []models.Order, items []models.OrderItem) []models.Order {
	index := make(map[int64]int, len(orders))
	for i := range orders {
		index[orders[i].ID] = i
		orders[i].Items = []models.OrderItem{}
	}
	for _, item := range items {
		if i, ok := index[item.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	return orders
}

// UpdateItemStatus sets an item status and stamps the kitchen timing columns
func (s *Store) UpdateItemStatus(ctx context.Context, orderID, itemID int64, status models.ItemStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE order_items
		SET status = $1,
		    preparing_at = CASE WHEN $1 = 'preparing' THEN NOW() ELSE preparing_at END,
		    ready_at = CASE WHEN $1 = 'ready' THEN NOW() ELSE ready_at END,
		    updated_at = NOW()
		WHERE id = $2 AND order_id = $3`,
		string(status), itemID, orderID)
	if err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}
	return expectOneRow(res.RowsAffected())
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		string(status), orderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return expectOneRow(res.RowsAffected())
}

func expectOneRow(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
