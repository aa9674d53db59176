package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"settlement-service/internal/apperr"
	"settlement-service/internal/gateway"
	"settlement-service/internal/models"
	"settlement-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WebhookService reconciles inbound gateway events into the Payment
// record store and the order escrow state. Delivery is at-least-once, so
// every apply path is idempotent: payments upsert on gateway identifiers
// and the order hold is a conditional write.
type WebhookService struct {
	store       SettlementStore
	coordinator Coordinator
	publisher   Publisher
	gateways    *gateway.Registry
	claimTTL    time.Duration
	logger      *zap.Logger
}

// NewWebhookService creates a new webhook reconciler
func NewWebhookService(
	store SettlementStore,
	coordinator Coordinator,
	publisher Publisher,
	gateways *gateway.Registry,
) *WebhookService {
	return &WebhookService{
		store:       store,
		coordinator: coordinator,
		publisher:   publisher,
		gateways:    gateways,
		claimTTL:    24 * time.Hour,
		logger:      util.GetLogger(),
	}
}

// Process verifies and folds one webhook delivery. A signature mismatch is
// a hard rejection; unknown event types are accepted and ignored so the
// gateway never retries events this service does not understand.
func (ws *WebhookService) Process(ctx context.Context, gatewayName string, body []byte, signature string) error {
	ctx, span := util.StartSpan(ctx, "WebhookService.Process")
	defer span.End()

	gw, err := ws.gateways.Get(gatewayName)
	if err != nil {
		return apperr.NotFoundErr("unknown gateway")
	}

	ev, err := gw.VerifyWebhook(body, signature)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			util.WebhookSignatureFailures.Inc()
			ws.logger.Warn("Webhook signature verification failed",
				zap.String("gateway", gatewayName))
			return apperr.InvalidSignatureErr("invalid signature")
		}
		return apperr.InvalidErr("malformed webhook payload")
	}

	util.WebhooksReceivedTotal.WithLabelValues(gatewayName, ev.Type).Inc()

	switch ev.Type {
	case gateway.EventPaymentCaptured, gateway.EventPaymentFailed:
	default:
		ws.logger.Info("Ignoring webhook event type",
			zap.String("gateway", gatewayName),
			zap.String("type", ev.Type))
		return nil
	}

	// Fast-path redelivery drop. Best effort: if Redis is down we fall
	// through and rely on the conditional writes below.
	claimed, err := ws.coordinator.ClaimWebhookEvent(ctx, gatewayName, ev.EventID, ws.claimTTL)
	if err != nil {
		ws.logger.Warn("Webhook dedup unavailable, relying on store",
			zap.Error(err))
	} else if !claimed {
		util.WebhookDuplicatesTotal.Inc()
		ws.logger.Info("Duplicate webhook delivery dropped",
			zap.String("gateway", gatewayName),
			zap.String("event_id", ev.EventID))
		return nil
	}

	var applyErr error
	switch ev.Type {
	case gateway.EventPaymentCaptured:
		applyErr = ws.applyCaptured(ctx, gw.Name(), ev, body, signature)
	case gateway.EventPaymentFailed:
		applyErr = ws.applyFailed(ctx, gw.Name(), ev, body, signature)
	}

	if applyErr != nil {
		// Drop the claim so the gateway's redelivery gets another apply.
		if rerr := ws.coordinator.ReleaseWebhookEvent(ctx, gatewayName, ev.EventID); rerr != nil {
			ws.logger.Warn("Failed to release webhook claim", zap.Error(rerr))
		}
		return applyErr
	}
	return nil
}

// applyCaptured upserts the payment to succeeded and conditionally moves
// the order into escrow. Redelivery finds the order already held and the
// conditional write affects zero rows.
func (ws *WebhookService) applyCaptured(ctx context.Context, gatewayName string, ev *gateway.Event, body []byte, signature string) error {
	orderID, err := ws.resolveOrderID(ctx, gatewayName, ev)
	if err != nil {
		return err
	}

	payment := &models.Payment{
		OrderID:          orderID,
		Gateway:          gatewayName,
		Amount:           ev.Amount,
		Currency:         ev.Currency,
		GatewayOrderID:   ev.GatewayOrderID,
		GatewayPaymentID: ev.GatewayPaymentID,
		Status:           models.PaymentSucceeded,
		RawPayload:       body,
		Signature:        signature,
	}
	if err := ws.store.UpsertPaymentFromWebhook(ctx, payment); err != nil {
		return apperr.Wrap(err)
	}

	held, err := ws.store.HoldOrderPayment(ctx, orderID, gatewayName, ev.Currency)
	if err != nil {
		return apperr.Wrap(err)
	}
	if !held {
		ws.logger.Info("Order already held, capture folded as no-op",
			zap.Int64("order_id", orderID),
			zap.String("gateway_payment_id", ev.GatewayPaymentID))
		return nil
	}

	util.PaymentsHeldTotal.Inc()
	ws.logger.Info("Payment captured, funds held in escrow",
		zap.Int64("order_id", orderID),
		zap.String("gateway", gatewayName),
		zap.String("gateway_payment_id", ev.GatewayPaymentID))

	order, err := ws.store.GetOrderByID(ctx, orderID)
	if err != nil {
		ws.logger.Error("Failed to reload order for event publish", zap.Error(err))
		return nil
	}

	event := &models.PaymentHeldEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentHeld,
			Timestamp: time.Now(),
		},
		OrderID:          orderID,
		BuyerID:          order.BuyerID,
		Gateway:          gatewayName,
		GatewayPaymentID: ev.GatewayPaymentID,
		Amount:           ev.Amount,
		Currency:         ev.Currency,
	}
	if err := ws.publisher.PublishPaymentHeld(ctx, event); err != nil {
		ws.logger.Error("Failed to publish PaymentHeld event", zap.Error(err))
	}
	return nil
}

// applyFailed upserts the payment to failed and leaves the order untouched
// so the buyer can retry payment.
func (ws *WebhookService) applyFailed(ctx context.Context, gatewayName string, ev *gateway.Event, body []byte, signature string) error {
	orderID, err := ws.resolveOrderID(ctx, gatewayName, ev)
	if err != nil {
		return err
	}

	payment := &models.Payment{
		OrderID:          orderID,
		Gateway:          gatewayName,
		Amount:           ev.Amount,
		Currency:         ev.Currency,
		GatewayOrderID:   ev.GatewayOrderID,
		GatewayPaymentID: ev.GatewayPaymentID,
		Status:           models.PaymentFailed,
		RawPayload:       body,
		Signature:        signature,
	}
	if err := ws.store.UpsertPaymentFromWebhook(ctx, payment); err != nil {
		return apperr.Wrap(err)
	}

	util.PaymentsFailedTotal.Inc()
	ws.logger.Warn("Payment failed at gateway",
		zap.Int64("order_id", orderID),
		zap.String("reason", ev.Reason))

	event := &models.PaymentFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentFailed,
			Timestamp: time.Now(),
		},
		OrderID:          orderID,
		Gateway:          gatewayName,
		GatewayPaymentID: ev.GatewayPaymentID,
		Reason:           ev.Reason,
	}
	if err := ws.publisher.PublishPaymentFailed(ctx, event); err != nil {
		ws.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
	}
	return nil
}

// resolveOrderID ties a gateway event back to the local order: normally
// through the payment record created at intent time, falling back to the
// receipt carried in the event when the webhook outran the local write.
func (ws *WebhookService) resolveOrderID(ctx context.Context, gatewayName string, ev *gateway.Event) (int64, error) {
	if ev.GatewayOrderID != "" {
		payment, err := ws.store.GetPaymentByGatewayOrderID(ctx, gatewayName, ev.GatewayOrderID)
		if err != nil {
			return 0, apperr.Wrap(err)
		}
		if payment != nil {
			return payment.OrderID, nil
		}
	}

	if strings.HasPrefix(ev.Receipt, "order-") {
		orderID, err := strconv.ParseInt(strings.TrimPrefix(ev.Receipt, "order-"), 10, 64)
		if err == nil && orderID > 0 {
			ws.logger.Warn("Webhook arrived before local payment record",
				zap.String("gateway_order_id", ev.GatewayOrderID),
				zap.Int64("order_id", orderID))
			return orderID, nil
		}
	}

	return 0, apperr.InvalidErr(fmt.Sprintf("no matching payment for gateway order %s", ev.GatewayOrderID))
}
