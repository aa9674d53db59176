package service

import (
	"context"
	"fmt"
	"time"

	"settlement-service/internal/apperr"
	"settlement-service/internal/gateway"
	"settlement-service/internal/models"
	"settlement-service/internal/util"

	"go.uber.org/zap"
)

// PaymentService opens gateway payment intents for unpaid orders
type PaymentService struct {
	store       SettlementStore
	coordinator Coordinator
	gateways    *gateway.Registry
	gatewayName string
	guardTTL    time.Duration
	logger      *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	store SettlementStore,
	coordinator Coordinator,
	gateways *gateway.Registry,
	gatewayName string,
	guardTTL time.Duration,
) *PaymentService {
	return &PaymentService{
		store:       store,
		coordinator: coordinator,
		gateways:    gateways,
		gatewayName: gatewayName,
		guardTTL:    guardTTL,
		logger:      util.GetLogger(),
	}
}

// IntentResponse is returned to the buyer's client to complete payment
// out-of-band at the gateway.
type IntentResponse struct {
	OrderID        int64  `json:"order_id"`
	Gateway        string `json:"gateway"`
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

// CreateIntent opens a gateway-side payment intent for an unpaid order and
// persists the created Payment record. A short-lived Redis guard collapses
// concurrent requests for the same order to one gateway call.
func (ps *PaymentService) CreateIntent(ctx context.Context, buyerID, orderID int64) (*IntentResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CreateIntent")
	defer span.End()

	order, err := ps.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, apperr.NotFoundErr("order not found")
	}
	if order.BuyerID != buyerID {
		return nil, apperr.ForbiddenErr("order does not belong to caller")
	}
	if order.PaymentStatus != models.PaymentStatusUnpaid {
		return nil, apperr.InvalidStateErr("order already has payment in progress")
	}

	active, err := ps.store.HasActivePayment(ctx, orderID)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if active {
		return nil, apperr.InvalidStateErr("order already has payment in progress")
	}

	claimed, err := ps.coordinator.GuardPaymentIntent(ctx, orderID, ps.guardTTL)
	if err != nil {
		ps.logger.Warn("Intent guard unavailable, proceeding on store state",
			zap.Int64("order_id", orderID),
			zap.Error(err))
	} else if !claimed {
		return nil, apperr.ConflictErr("payment intent already being created")
	}

	gw, err := ps.gateways.Get(ps.gatewayName)
	if err != nil {
		return nil, apperr.Wrap(err)
	}

	receipt := fmt.Sprintf("order-%d", orderID)
	gatewayOrderID, err := gw.CreateOrder(ctx, receipt, order.TotalAmount, order.Currency)
	if err != nil {
		if rerr := ps.coordinator.ReleasePaymentIntentGuard(ctx, orderID); rerr != nil {
			ps.logger.Warn("Failed to release intent guard", zap.Error(rerr))
		}
		return nil, apperr.Wrap(fmt.Errorf("gateway create order: %w", err))
	}

	payment := &models.Payment{
		OrderID:        orderID,
		Gateway:        gw.Name(),
		Amount:         order.TotalAmount,
		Currency:       order.Currency,
		GatewayOrderID: gatewayOrderID,
		Status:         models.PaymentCreated,
	}
	if err := ps.store.CreatePayment(ctx, payment); err != nil {
		return nil, apperr.Wrap(fmt.Errorf("failed to create payment record: %w", err))
	}

	moved, err := ps.store.CASPaymentStatus(ctx, orderID, models.PaymentStatusUnpaid, models.PaymentStatusPending)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if !moved {
		// A concurrent intent won the transition; the payment row above
		// stays as attempt history.
		return nil, apperr.ConflictErr("payment intent already created")
	}

	util.PaymentIntentsTotal.Inc()
	ps.logger.Info("Payment intent created",
		zap.Int64("order_id", orderID),
		zap.String("gateway", gw.Name()),
		zap.String("gateway_order_id", gatewayOrderID))

	return &IntentResponse{
		OrderID:        orderID,
		Gateway:        gw.Name(),
		GatewayOrderID: gatewayOrderID,
		Amount:         order.TotalAmount,
		Currency:       order.Currency,
	}, nil
}

// GetPayments retrieves the payment attempt history for an order
func (ps *PaymentService) GetPayments(ctx context.Context, orderID int64) ([]models.Payment, error) {
	return ps.store.GetPaymentsByOrderID(ctx, orderID)
}
