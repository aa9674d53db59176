package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"settlement-service/internal/apperr"
	"settlement-service/internal/gateway"
	"settlement-service/internal/models"
	"settlement-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReleaseService is the payout ledger and release engine. It splits an
// order's escrowed funds across sellers and guarantees at-most-once
// release per (order, seller): the payout upsert converges concurrent
// attempts onto one row, and the final held -> released transition is a
// conditional write whose loss is reported as a conflict.
type ReleaseService struct {
	store     SettlementStore
	publisher Publisher
	gateways  *gateway.Registry
	logger    *zap.Logger
}

// NewReleaseService creates a new release service
func NewReleaseService(store SettlementStore, publisher Publisher, gateways *gateway.Registry) *ReleaseService {
	return &ReleaseService{
		store:     store,
		publisher: publisher,
		gateways:  gateways,
		logger:    util.GetLogger(),
	}
}

// BuyerRelease is the buyer's explicit confirm-and-release
func (rs *ReleaseService) BuyerRelease(ctx context.Context, buyerID, orderID int64) error {
	order, err := rs.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return apperr.NotFoundErr("order not found")
	}
	if order.BuyerID != buyerID {
		return apperr.ForbiddenErr("order does not belong to caller")
	}
	return rs.release(ctx, order, models.ReleaseTriggerBuyer, false)
}

// ForceRelease is the administrative release, bypassing the dispute gate
// by admin authority. The hold gate is never bypassed.
func (rs *ReleaseService) ForceRelease(ctx context.Context, orderID int64) error {
	order, err := rs.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return apperr.NotFoundErr("order not found")
	}
	return rs.release(ctx, order, models.ReleaseTriggerAdmin, true)
}

// AutoRelease is invoked by the sweeper once the stored deadline passes
func (rs *ReleaseService) AutoRelease(ctx context.Context, orderID int64) error {
	order, err := rs.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return apperr.NotFoundErr("order not found")
	}
	return rs.release(ctx, order, models.ReleaseTriggerAuto, false)
}

func (rs *ReleaseService) release(ctx context.Context, order *models.Order, trigger string, force bool) error {
	ctx, span := util.StartSpan(ctx, "ReleaseService.release")
	defer span.End()

	if !order.CanRelease(force) {
		switch {
		case order.PaymentStatus == models.PaymentStatusReleased:
			return apperr.ConflictErr("order already released")
		case order.DeliveryStatus == models.DeliveryStatusDisputed:
			return apperr.InvalidStateErr("order is disputed")
		default:
			return apperr.InvalidStateErr(fmt.Sprintf("cannot release order with payment status %s", order.PaymentStatus))
		}
	}

	gatewayPaymentID, err := rs.capturedPaymentID(ctx, order.ID)
	if err != nil {
		return err
	}

	gw, err := rs.gateways.Get(order.Gateway)
	if err != nil {
		return apperr.Wrap(err)
	}

	items, err := rs.store.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return apperr.Wrap(err)
	}
	if len(items) == 0 {
		return apperr.InvalidStateErr("order has no items to settle")
	}

	totals := models.SellerTotals(items)
	sellerIDs := make([]int64, 0, len(totals))
	for sellerID := range totals {
		sellerIDs = append(sellerIDs, sellerID)
	}
	sort.Slice(sellerIDs, func(i, j int) bool { return sellerIDs[i] < sellerIDs[j] })

	now := time.Now()
	payouts := make([]models.PayoutSummary, 0, len(sellerIDs))
	for _, sellerID := range sellerIDs {
		amount := totals[sellerID]

		existing, err := rs.store.GetPayout(ctx, order.ID, sellerID)
		if err != nil {
			return apperr.Wrap(err)
		}
		if existing != nil && existing.Released {
			// Already paid by an earlier attempt; skipping is what makes
			// repeated release attempts safe.
			rs.logger.Info("Seller payout already released, skipping",
				zap.Int64("order_id", order.ID),
				zap.Int64("seller_id", sellerID))
			continue
		}

		if err := gw.ReleaseToSeller(ctx, gatewayPaymentID, sellerID, amount, order.Currency); err != nil {
			return apperr.Wrap(fmt.Errorf("gateway release to seller %d: %w", sellerID, err))
		}

		payout := &models.SellerPayout{
			OrderID:  order.ID,
			SellerID: sellerID,
			Amount:   amount,
			Currency: order.Currency,
			Gateway:  order.Gateway,
		}
		recorded, err := rs.store.UpsertPayoutReleased(ctx, payout, now)
		if err != nil {
			return apperr.Wrap(err)
		}
		if recorded {
			util.PayoutAmountReleased.Add(float64(amount))
			payouts = append(payouts, models.PayoutSummary{SellerID: sellerID, Amount: amount})
		}
	}

	moved, err := rs.store.CASPaymentStatus(ctx, order.ID, models.PaymentStatusHeld, models.PaymentStatusReleased)
	if err != nil {
		return apperr.Wrap(err)
	}
	if !moved {
		// A concurrent release won the conditional update. Payout rows are
		// idempotent, so nothing was double-paid; report the lost race.
		util.ReleaseConflictsTotal.Inc()
		return apperr.ConflictErr("order already released")
	}

	util.ReleasesTotal.WithLabelValues(trigger).Inc()
	rs.logger.Info("Escrow released",
		zap.Int64("order_id", order.ID),
		zap.String("trigger", trigger),
		zap.Int("sellers", len(payouts)))

	event := &models.PayoutReleasedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePayoutReleased,
			Timestamp: now,
		},
		OrderID:     order.ID,
		Trigger:     trigger,
		TotalAmount: order.TotalAmount,
		Payouts:     payouts,
	}
	if err := rs.publisher.PublishPayoutReleased(ctx, event); err != nil {
		rs.logger.Error("Failed to publish PayoutReleased event", zap.Error(err))
	}
	return nil
}

// capturedPaymentID finds the gateway payment id of the successful capture
func (rs *ReleaseService) capturedPaymentID(ctx context.Context, orderID int64) (string, error) {
	payments, err := rs.store.GetPaymentsByOrderID(ctx, orderID)
	if err != nil {
		return "", apperr.Wrap(err)
	}
	for _, p := range payments {
		if p.Status == models.PaymentSucceeded && p.GatewayPaymentID != "" {
			return p.GatewayPaymentID, nil
		}
	}
	return "", apperr.InvalidStateErr("no captured payment on record")
}

// ListPayouts retrieves the payout ledger rows for an order
func (rs *ReleaseService) ListPayouts(ctx context.Context, orderID int64) ([]models.SellerPayout, error) {
	return rs.store.ListPayoutsByOrder(ctx, orderID)
}
