package service

import (
	"context"
	"time"

	"settlement-service/internal/models"
)

// SettlementStore is the durable-store surface the settlement services
// depend on. *store.Store satisfies it; tests substitute fakes so the
// state machine is exercised without a database.
type SettlementStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, from, to string) (bool, error)
	MarkOrderDelivered(ctx context.Context, orderID int64, from string, deliveredAt, autoReleaseAt time.Time) (bool, error)
	CASPaymentStatus(ctx context.Context, orderID int64, from, to string) (bool, error)
	HoldOrderPayment(ctx context.Context, orderID int64, gateway, currency string) (bool, error)
	MarkOrderDisputed(ctx context.Context, orderID int64, evidence string) (bool, error)
	ListDueForAutoRelease(ctx context.Context, now time.Time, limit int) ([]models.Order, error)
	ListDisputedOrders(ctx context.Context) ([]models.Order, error)

	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)

	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByGatewayOrderID(ctx context.Context, gateway, gatewayOrderID string) (*models.Payment, error)
	GetPaymentsByOrderID(ctx context.Context, orderID int64) ([]models.Payment, error)
	HasActivePayment(ctx context.Context, orderID int64) (bool, error)
	UpsertPaymentFromWebhook(ctx context.Context, payment *models.Payment) error
	FailPaymentsByOrder(ctx context.Context, orderID int64) error

	GetPayout(ctx context.Context, orderID, sellerID int64) (*models.SellerPayout, error)
	UpsertPayoutReleased(ctx context.Context, payout *models.SellerPayout, releasedAt time.Time) (bool, error)
	ListPayoutsByOrder(ctx context.Context, orderID int64) ([]models.SellerPayout, error)
}

// Publisher is the settlement-event publishing surface, satisfied by
// *broker.EventPublisher. Publish failures are logged by callers; the
// durable state transition is never rolled back for one.
type Publisher interface {
	PublishPaymentHeld(ctx context.Context, event *models.PaymentHeldEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
	PublishOrderDelivered(ctx context.Context, event *models.OrderDeliveredEvent) error
	PublishPayoutReleased(ctx context.Context, event *models.PayoutReleasedEvent) error
	PublishOrderRefunded(ctx context.Context, event *models.OrderRefundedEvent) error
	PublishDisputeOpened(ctx context.Context, event *models.DisputeOpenedEvent) error
	PublishDisputeResolved(ctx context.Context, event *models.DisputeResolvedEvent) error
}

// Coordinator is the Redis-backed fast-path coordination surface,
// satisfied by *redisclient.Client. Best effort only; conditional writes
// in the store remain the correctness backstop.
type Coordinator interface {
	ClaimWebhookEvent(ctx context.Context, gatewayName, eventID string, ttl time.Duration) (bool, error)
	ReleaseWebhookEvent(ctx context.Context, gatewayName, eventID string) error
	GuardPaymentIntent(ctx context.Context, orderID int64, ttl time.Duration) (bool, error)
	ReleasePaymentIntentGuard(ctx context.Context, orderID int64) error
}
