package service

import (
	"context"
	"fmt"
	"time"

	"settlement-service/internal/apperr"
	"settlement-service/internal/gateway"
	"settlement-service/internal/models"
	"settlement-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DisputeService handles buyer-initiated disputes and the admin
// resolutions that block or reverse escrow release.
type DisputeService struct {
	store     SettlementStore
	publisher Publisher
	gateways  *gateway.Registry
	releases  *ReleaseService
	logger    *zap.Logger
}

// NewDisputeService creates a new dispute service
func NewDisputeService(store SettlementStore, publisher Publisher, gateways *gateway.Registry, releases *ReleaseService) *DisputeService {
	return &DisputeService{
		store:     store,
		publisher: publisher,
		gateways:  gateways,
		releases:  releases,
		logger:    util.GetLogger(),
	}
}

// Open raises a dispute with buyer-supplied evidence. Legal only while
// funds are held and the order is not already disputed; the disputed flag
// is a hard gate blocking release.
func (ds *DisputeService) Open(ctx context.Context, buyerID, orderID int64, evidence string) error {
	ctx, span := util.StartSpan(ctx, "DisputeService.Open")
	defer span.End()

	if evidence == "" {
		return apperr.InvalidErr("dispute evidence is required")
	}

	order, err := ds.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return apperr.NotFoundErr("order not found")
	}
	if order.BuyerID != buyerID {
		return apperr.ForbiddenErr("order does not belong to caller")
	}
	if !order.CanDispute() {
		switch {
		case order.DeliveryStatus == models.DeliveryStatusDisputed:
			return apperr.InvalidStateErr("order is already disputed")
		case order.PaymentStatus == models.PaymentStatusRefunded:
			return apperr.InvalidStateErr("order is already refunded")
		default:
			return apperr.InvalidStateErr(fmt.Sprintf("cannot dispute order with payment status %s", order.PaymentStatus))
		}
	}

	flagged, err := ds.store.MarkOrderDisputed(ctx, orderID, evidence)
	if err != nil {
		return apperr.Wrap(err)
	}
	if !flagged {
		return apperr.ConflictErr("order state changed concurrently")
	}

	util.DisputesOpenedTotal.Inc()
	ds.logger.Info("Dispute opened",
		zap.Int64("order_id", orderID),
		zap.Int64("buyer_id", buyerID))

	event := &models.DisputeOpenedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeDisputeOpened,
			Timestamp: time.Now(),
		},
		OrderID:  orderID,
		BuyerID:  buyerID,
		Evidence: evidence,
	}
	if err := ds.publisher.PublishDisputeOpened(ctx, event); err != nil {
		ds.logger.Error("Failed to publish DisputeOpened event", zap.Error(err))
	}
	return nil
}

// Resolve settles a dispute with refund, partial_refund or release.
// Release delegates to the force path, bypassing the dispute gate by admin
// authority.
func (ds *DisputeService) Resolve(ctx context.Context, orderID int64, action string, amount int64) error {
	ctx, span := util.StartSpan(ctx, "DisputeService.Resolve")
	defer span.End()

	var err error
	switch action {
	case models.ResolveRelease:
		err = ds.releases.ForceRelease(ctx, orderID)
	case models.ResolveRefund:
		err = ds.Refund(ctx, orderID, 0, models.ResolveRefund)
	case models.ResolvePartialRefund:
		if amount <= 0 {
			return apperr.InvalidErr("partial_refund requires a positive amount")
		}
		err = ds.Refund(ctx, orderID, amount, models.ResolvePartialRefund)
	default:
		return apperr.InvalidErr(fmt.Sprintf("unknown resolution action: %s", action))
	}
	if err != nil {
		return err
	}

	util.DisputesResolvedTotal.WithLabelValues(action).Inc()
	event := &models.DisputeResolvedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeDisputeResolved,
			Timestamp: time.Now(),
		},
		OrderID: orderID,
		Action:  action,
	}
	if err := ds.publisher.PublishDisputeResolved(ctx, event); err != nil {
		ds.logger.Error("Failed to publish DisputeResolved event", zap.Error(err))
	}
	return nil
}

// Refund returns escrowed funds to the buyer. Only held orders can be
// refunded; released funds are gone and refunded orders are terminal. The
// held -> refunded claim is a conditional write taken before the gateway
// call so a racing release cannot double-spend the escrow.
func (ds *DisputeService) Refund(ctx context.Context, orderID int64, amount int64, kind string) error {
	ctx, span := util.StartSpan(ctx, "DisputeService.Refund")
	defer span.End()

	order, err := ds.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return apperr.NotFoundErr("order not found")
	}
	if !order.CanRefund() {
		if order.PaymentStatus == models.PaymentStatusRefunded {
			return apperr.InvalidStateErr("order is already refunded")
		}
		return apperr.InvalidStateErr(fmt.Sprintf("cannot refund order with payment status %s", order.PaymentStatus))
	}

	gatewayPaymentID, err := ds.capturedPaymentID(ctx, orderID)
	if err != nil {
		return err
	}
	gw, err := ds.gateways.Get(order.Gateway)
	if err != nil {
		return apperr.Wrap(err)
	}

	moved, err := ds.store.CASPaymentStatus(ctx, orderID, models.PaymentStatusHeld, models.PaymentStatusRefunded)
	if err != nil {
		return apperr.Wrap(err)
	}
	if !moved {
		return apperr.ConflictErr("order state changed concurrently")
	}

	// The partial amount is recorded and forwarded to the adapter; a zero
	// amount means a full refund.
	if err := gw.Refund(ctx, gatewayPaymentID, amount); err != nil {
		ds.logger.Error("Gateway refund failed after state transition",
			zap.Int64("order_id", orderID),
			zap.Error(err))
		return apperr.Wrap(fmt.Errorf("gateway refund: %w", err))
	}

	if err := ds.store.FailPaymentsByOrder(ctx, orderID); err != nil {
		ds.logger.Error("Failed to reject payment records", zap.Error(err))
	}

	util.RefundsTotal.WithLabelValues(kind).Inc()
	ds.logger.Info("Order refunded",
		zap.Int64("order_id", orderID),
		zap.String("kind", kind))

	event := &models.OrderRefundedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderRefunded,
			Timestamp: time.Now(),
		},
		OrderID: orderID,
		BuyerID: order.BuyerID,
		Amount:  order.TotalAmount,
		Kind:    kind,
	}
	if err := ds.publisher.PublishOrderRefunded(ctx, event); err != nil {
		ds.logger.Error("Failed to publish OrderRefunded event", zap.Error(err))
	}
	return nil
}

// ListDisputes returns orders currently under dispute
func (ds *DisputeService) ListDisputes(ctx context.Context) ([]models.Order, error) {
	return ds.store.ListDisputedOrders(ctx)
}

func (ds *DisputeService) capturedPaymentID(ctx context.Context, orderID int64) (string, error) {
	payments, err := ds.store.GetPaymentsByOrderID(ctx, orderID)
	if err != nil {
		return "", apperr.Wrap(err)
	}
	for _, p := range payments {
		if p.GatewayPaymentID != "" && (p.Status == models.PaymentSucceeded || p.Status == models.PaymentFailed) {
			return p.GatewayPaymentID, nil
		}
	}
	return "", apperr.InvalidStateErr("no captured payment on record")
}
