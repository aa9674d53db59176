package store

import (
	"context"
	"database/sql"
	"fmt"

	"settlement-service/internal/models"
)

// CreatePayment records a gateway payment attempt in status created
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, gateway, amount, currency, gateway_order_id, gateway_payment_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, payment, query,
		payment.OrderID, payment.Gateway, payment.Amount, payment.Currency,
		payment.GatewayOrderID, payment.GatewayPaymentID, payment.Status)
}

// GetPaymentByGatewayOrderID retrieves a payment by the gateway-assigned
// order identifier. Returns nil, nil when no local record exists yet.
func (s *Store) GetPaymentByGatewayOrderID(ctx context.Context, gateway, gatewayOrderID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE gateway = $1 AND gateway_order_id = $2",
		gateway, gatewayOrderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentsByOrderID retrieves all payment attempts for an order
func (s *Store) GetPaymentsByOrderID(ctx context.Context, orderID int64) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.SelectContext(ctx, &payments,
		"SELECT * FROM payments WHERE order_id = $1 ORDER BY created_at DESC", orderID)
	return payments, err
}

// HasActivePayment reports whether the order already has a created or
// succeeded payment attempt in flight.
func (s *Store) HasActivePayment(ctx context.Context, orderID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM payments
			WHERE order_id = $1 AND status IN ($2, $3))`,
		orderID, models.PaymentCreated, models.PaymentSucceeded)
	return exists, err
}

// UpsertPaymentFromWebhook folds a verified gateway event into the payment
// record keyed by (gateway, gateway_order_id). The insert path covers a
// webhook arriving before any local record exists; redelivery converges on
// the same row.
func (s *Store) UpsertPaymentFromWebhook(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, gateway, amount, currency, gateway_order_id, gateway_payment_id, status, raw_payload, signature)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (gateway, gateway_order_id) DO UPDATE SET
			status = EXCLUDED.status,
			gateway_payment_id = EXCLUDED.gateway_payment_id,
			raw_payload = EXCLUDED.raw_payload,
			signature = EXCLUDED.signature,
			updated_at = NOW()
		RETURNING id, order_id, created_at, updated_at`

	err := s.db.GetContext(ctx, payment, query,
		payment.OrderID, payment.Gateway, payment.Amount, payment.Currency,
		payment.GatewayOrderID, payment.GatewayPaymentID, payment.Status,
		payment.RawPayload, payment.Signature)
	if err != nil {
		return fmt.Errorf("failed to upsert payment: %w", err)
	}
	return nil
}

// FailPaymentsByOrder moves an order's non-failed payment attempts to
// failed, used when a refund rejects the captured payment.
func (s *Store) FailPaymentsByOrder(ctx context.Context, orderID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payments SET status = $1, updated_at = NOW() WHERE order_id = $2 AND status <> $1",
		models.PaymentFailed, orderID)
	return err
}
