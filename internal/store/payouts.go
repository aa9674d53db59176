package store

import (
	"context"
	"database/sql"
	"time"

	"settlement-service/internal/models"
)

// GetPayout retrieves the payout record for one (order, seller) pair.
// Returns nil, nil when no release has been attempted yet.
func (s *Store) GetPayout(ctx context.Context, orderID, sellerID int64) (*models.SellerPayout, error) {
	var payout models.SellerPayout
	err := s.db.GetContext(ctx, &payout,
		"SELECT * FROM seller_payouts WHERE order_id = $1 AND seller_id = $2",
		orderID, sellerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// UpsertPayoutReleased records one release per (order, seller). The unique
// key makes concurrent release attempts converge on the same row, and the
// released guard keeps the flag from ever being re-written once true.
func (s *Store) UpsertPayoutReleased(ctx context.Context, payout *models.SellerPayout, releasedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO seller_payouts (order_id, seller_id, amount, currency, gateway, released, released_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		ON CONFLICT (order_id, seller_id) DO UPDATE SET
			released = TRUE,
			released_at = EXCLUDED.released_at
		WHERE seller_payouts.released = FALSE`,
		payout.OrderID, payout.SellerID, payout.Amount, payout.Currency,
		payout.Gateway, releasedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListPayoutsByOrder retrieves all payout rows for an order
func (s *Store) ListPayoutsByOrder(ctx context.Context, orderID int64) ([]models.SellerPayout, error) {
	var payouts []models.SellerPayout
	err := s.db.SelectContext(ctx, &payouts,
		"SELECT * FROM seller_payouts WHERE order_id = $1 ORDER BY seller_id", orderID)
	return payouts, err
}
