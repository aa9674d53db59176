package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"settlement-service/internal/models"
)

// CreateOrder creates a new order
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (buyer_id, subtotal_amount, shipping_amount, tax_amount, total_amount,
			currency, status, delivery_status, payment_status, shipping_address_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, order, query,
		order.BuyerID, order.SubtotalAmount, order.ShippingAmount, order.TaxAmount,
		order.TotalAmount, order.Currency, order.Status, order.DeliveryStatus,
		order.PaymentStatus, order.ShippingAddressID)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus updates the fulfillment status with a guard on the
// current value so concurrent transitions cannot leapfrog each other.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, from, to string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		to, orderID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkOrderDelivered stamps delivery and the auto-release deadline in one
// conditional write keyed on the current fulfillment status.
func (s *Store) MarkOrderDelivered(ctx context.Context, orderID int64, from string, deliveredAt, autoReleaseAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, delivery_status = $2, delivered_at = $3, auto_release_at = $4, updated_at = NOW()
		WHERE id = $5 AND status = $6 AND delivery_status <> $7`,
		models.OrderStatusDelivered, models.DeliveryStatusDelivered,
		deliveredAt, autoReleaseAt, orderID, from, models.DeliveryStatusDisputed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CASPaymentStatus moves payment_status from one value to another only if
// the order still holds the expected value. Zero rows means the caller
// lost the race (or the state never matched).
func (s *Store) CASPaymentStatus(ctx context.Context, orderID int64, from, to string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2 AND payment_status = $3",
		to, orderID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// HoldOrderPayment moves an order into escrow after a verified capture.
// Conditioned on the pre-hold states so webhook redelivery is a no-op.
func (s *Store) HoldOrderPayment(ctx context.Context, orderID int64, gateway, currency string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1, gateway = $2, currency = $3, updated_at = NOW()
		WHERE id = $4 AND payment_status IN ($5, $6)`,
		models.PaymentStatusHeld, gateway, currency, orderID,
		models.PaymentStatusUnpaid, models.PaymentStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkOrderDisputed flags the order as disputed with buyer evidence.
// Conditioned on held + not already disputed so double submission fails.
func (s *Store) MarkOrderDisputed(ctx context.Context, orderID int64, evidence string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET delivery_status = $1, dispute_evidence = $2, updated_at = NOW()
		WHERE id = $3 AND payment_status = $4 AND delivery_status <> $1`,
		models.DeliveryStatusDisputed, evidence, orderID, models.PaymentStatusHeld)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListDueForAutoRelease returns held, undisputed orders whose auto-release
// deadline has passed. The deadline is data, re-read here, never a timer.
func (s *Store) ListDueForAutoRelease(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE auto_release_at IS NOT NULL AND auto_release_at <= $1
		  AND payment_status = $2 AND delivery_status <> $3
		ORDER BY auto_release_at
		LIMIT $4`,
		now, models.PaymentStatusHeld, models.DeliveryStatusDisputed, limit)
	return orders, err
}

// ListDisputedOrders returns orders currently under dispute
func (s *Store) ListDisputedOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE delivery_status = $1 ORDER BY updated_at DESC",
		models.DeliveryStatusDisputed)
	return orders, err
}

// CreateOrderItem creates a new order item
func (s *Store) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, seller_id, quantity, price_at_purchase)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	return s.db.GetContext(ctx, &item.ID, query,
		item.OrderID, item.ProductID, item.SellerID, item.Quantity, item.PriceAtPurchase)
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}
