package service

import (
	"context"
	"fmt"
	"time"

	"settlement-service/internal/apperr"
	"settlement-service/internal/models"
	"settlement-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService owns the fulfillment state machine and the delivery
// trigger that starts the auto-release countdown. Transitions are
// conditional writes; side effects are emitted as events and executed by
// the notification worker, not inline.
type OrderService struct {
	store            SettlementStore
	publisher        Publisher
	autoReleaseAfter time.Duration
	logger           *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store SettlementStore, publisher Publisher, autoReleaseAfter time.Duration) *OrderService {
	return &OrderService{
		store:            store,
		publisher:        publisher,
		autoReleaseAfter: autoReleaseAfter,
		logger:           util.GetLogger(),
	}
}

// CreateOrderRequest represents a buyer checkout handed to this subsystem.
// Item prices are snapshots taken by the catalog collaborator.
type CreateOrderRequest struct {
	BuyerID           int64              `json:"buyer_id" binding:"required"`
	Currency          string             `json:"currency" binding:"required,len=3"`
	ShippingAddressID int64              `json:"shipping_address_id" binding:"required"`
	Items             []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

// OrderItemRequest represents one line item at checkout
type OrderItemRequest struct {
	ProductID       int64 `json:"product_id" binding:"required"`
	SellerID        int64 `json:"seller_id" binding:"required"`
	Quantity        int   `json:"quantity" binding:"required,min=1"`
	PriceAtPurchase int64 `json:"price_at_purchase" binding:"required,min=1"`
}

// CreateOrder creates an unpaid order with immutable price snapshots
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	var subtotal int64
	for _, item := range req.Items {
		subtotal += item.PriceAtPurchase * int64(item.Quantity)
	}
	shipping, tax, total := models.ComputeTotals(subtotal)

	order := &models.Order{
		BuyerID:           req.BuyerID,
		SubtotalAmount:    subtotal,
		ShippingAmount:    shipping,
		TaxAmount:         tax,
		TotalAmount:       total,
		Currency:          req.Currency,
		Status:            models.OrderStatusPending,
		DeliveryStatus:    models.DeliveryStatusUndelivered,
		PaymentStatus:     models.PaymentStatusUnpaid,
		ShippingAddressID: req.ShippingAddressID,
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, apperr.Wrap(fmt.Errorf("failed to create order: %w", err))
	}

	for _, item := range req.Items {
		orderItem := &models.OrderItem{
			OrderID:         order.ID,
			ProductID:       item.ProductID,
			SellerID:        item.SellerID,
			Quantity:        item.Quantity,
			PriceAtPurchase: item.PriceAtPurchase,
		}
		if err := s.store.CreateOrderItem(ctx, orderItem); err != nil {
			return nil, apperr.Wrap(fmt.Errorf("failed to create order item: %w", err))
		}
	}

	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("total_amount", total))
	return order, nil
}

// GetOrder retrieves an order with its items
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, apperr.NotFoundErr("order not found")
	}
	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, apperr.Wrap(err)
	}
	return order, items, nil
}

// TransitionStatus moves the fulfillment status through
// pending -> confirmed -> shipped, or to cancelled from any non-terminal
// state. Delivery goes through MarkDelivered instead.
func (s *OrderService) TransitionStatus(ctx context.Context, orderID int64, to string) error {
	ctx, span := util.StartSpan(ctx, "OrderService.TransitionStatus")
	defer span.End()

	if to == models.OrderStatusDelivered {
		return apperr.InvalidErr("use the delivered operation to mark delivery")
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return apperr.NotFoundErr("order not found")
	}
	if !models.CanTransitionStatus(order.Status, to) {
		return apperr.InvalidStateErr(fmt.Sprintf("cannot transition from %s to %s", order.Status, to))
	}

	moved, err := s.store.UpdateOrderStatus(ctx, orderID, order.Status, to)
	if err != nil {
		return apperr.Wrap(err)
	}
	if !moved {
		return apperr.ConflictErr("order state changed concurrently")
	}

	s.logger.Info("Order status transitioned",
		zap.Int64("order_id", orderID),
		zap.String("from", order.Status),
		zap.String("to", to))
	return nil
}

// MarkDelivered stamps delivery, computes the auto-release deadline and
// publishes the OrderDelivered event that drives the buyer warning email.
// The deadline is stored data; whatever evaluates it later re-reads it.
func (s *OrderService) MarkDelivered(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.MarkDelivered")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, apperr.NotFoundErr("order not found")
	}
	if !models.CanTransitionStatus(order.Status, models.OrderStatusDelivered) {
		return nil, apperr.InvalidStateErr(fmt.Sprintf("cannot deliver order in status %s", order.Status))
	}

	deliveredAt := time.Now()
	autoReleaseAt := deliveredAt.Add(s.autoReleaseAfter)

	moved, err := s.store.MarkOrderDelivered(ctx, orderID, order.Status, deliveredAt, autoReleaseAt)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if !moved {
		return nil, apperr.ConflictErr("order state changed concurrently")
	}

	s.logger.Info("Order delivered, auto-release scheduled",
		zap.Int64("order_id", orderID),
		zap.Time("auto_release_at", autoReleaseAt))

	event := &models.OrderDeliveredEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderDelivered,
			Timestamp: deliveredAt,
		},
		OrderID:       orderID,
		BuyerID:       order.BuyerID,
		AutoReleaseAt: autoReleaseAt,
	}
	if err := s.publisher.PublishOrderDelivered(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderDelivered event", zap.Error(err))
	}

	order.Status = models.OrderStatusDelivered
	order.DeliveryStatus = models.DeliveryStatusDelivered
	order.DeliveredAt = &deliveredAt
	order.AutoReleaseAt = &autoReleaseAt
	return order, nil
}
