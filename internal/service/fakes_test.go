package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"settlement-service/internal/gateway"
	"settlement-service/internal/models"
)

// fakeStore is an in-memory SettlementStore mirroring the conditional
// write semantics of the SQL layer.
type fakeStore struct {
	mu       sync.Mutex
	orders   map[int64]*models.Order
	items    map[int64][]models.OrderItem
	payments map[string]*models.Payment // keyed gateway|gateway_order_id
	payouts  map[string]*models.SellerPayout
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:   make(map[int64]*models.Order),
		items:    make(map[int64][]models.OrderItem),
		payments: make(map[string]*models.Payment),
		payouts:  make(map[string]*models.SellerPayout),
		nextID:   1,
	}
}

func payoutKey(orderID, sellerID int64) string {
	return fmt.Sprintf("%d|%d", orderID, sellerID)
}

func paymentKey(gatewayName, gatewayOrderID string) string {
	return gatewayName + "|" + gatewayOrderID
}

func (f *fakeStore) CreateOrder(_ context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order.ID = f.nextID
	f.nextID++
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	cp := *order
	f.orders[order.ID] = &cp
	return nil
}

func (f *fakeStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	cp := *order
	return &cp, nil
}

func (f *fakeStore) UpdateOrderStatus(_ context.Context, orderID int64, from, to string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	return true, nil
}

func (f *fakeStore) MarkOrderDelivered(_ context.Context, orderID int64, from string, deliveredAt, autoReleaseAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok || order.Status != from || order.DeliveryStatus == models.DeliveryStatusDisputed {
		return false, nil
	}
	order.Status = models.OrderStatusDelivered
	order.DeliveryStatus = models.DeliveryStatusDelivered
	order.DeliveredAt = &deliveredAt
	order.AutoReleaseAt = &autoReleaseAt
	return true, nil
}

func (f *fakeStore) CASPaymentStatus(_ context.Context, orderID int64, from, to string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok || order.PaymentStatus != from {
		return false, nil
	}
	order.PaymentStatus = to
	return true, nil
}

func (f *fakeStore) HoldOrderPayment(_ context.Context, orderID int64, gatewayName, currency string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return false, nil
	}
	if order.PaymentStatus != models.PaymentStatusUnpaid && order.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	order.PaymentStatus = models.PaymentStatusHeld
	order.Gateway = gatewayName
	order.Currency = currency
	return true, nil
}

func (f *fakeStore) MarkOrderDisputed(_ context.Context, orderID int64, evidence string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok || order.PaymentStatus != models.PaymentStatusHeld || order.DeliveryStatus == models.DeliveryStatusDisputed {
		return false, nil
	}
	order.DeliveryStatus = models.DeliveryStatusDisputed
	order.DisputeEvidence = evidence
	return true, nil
}

func (f *fakeStore) ListDueForAutoRelease(_ context.Context, now time.Time, limit int) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []models.Order
	for _, order := range f.orders {
		if order.AutoReleaseAt != nil && !order.AutoReleaseAt.After(now) &&
			order.PaymentStatus == models.PaymentStatusHeld &&
			order.DeliveryStatus != models.DeliveryStatusDisputed {
			due = append(due, *order)
		}
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

func (f *fakeStore) ListDisputedOrders(_ context.Context) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var disputed []models.Order
	for _, order := range f.orders {
		if order.DeliveryStatus == models.DeliveryStatusDisputed {
			disputed = append(disputed, *order)
		}
	}
	return disputed, nil
}

func (f *fakeStore) CreateOrderItem(_ context.Context, item *models.OrderItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.ID = f.nextID
	f.nextID++
	f.items[item.OrderID] = append(f.items[item.OrderID], *item)
	return nil
}

func (f *fakeStore) GetOrderItemsByOrderID(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OrderItem(nil), f.items[orderID]...), nil
}

func (f *fakeStore) CreatePayment(_ context.Context, payment *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	payment.ID = f.nextID
	f.nextID++
	payment.CreatedAt = time.Now()
	cp := *payment
	f.payments[paymentKey(payment.Gateway, payment.GatewayOrderID)] = &cp
	return nil
}

func (f *fakeStore) GetPaymentByGatewayOrderID(_ context.Context, gatewayName, gatewayOrderID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payment, ok := f.payments[paymentKey(gatewayName, gatewayOrderID)]
	if !ok {
		return nil, nil
	}
	cp := *payment
	return &cp, nil
}

func (f *fakeStore) GetPaymentsByOrderID(_ context.Context, orderID int64) ([]models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var payments []models.Payment
	for _, payment := range f.payments {
		if payment.OrderID == orderID {
			payments = append(payments, *payment)
		}
	}
	return payments, nil
}

func (f *fakeStore) HasActivePayment(_ context.Context, orderID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, payment := range f.payments {
		if payment.OrderID == orderID &&
			(payment.Status == models.PaymentCreated || payment.Status == models.PaymentSucceeded) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) UpsertPaymentFromWebhook(_ context.Context, payment *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := paymentKey(payment.Gateway, payment.GatewayOrderID)
	if existing, ok := f.payments[key]; ok {
		existing.Status = payment.Status
		existing.GatewayPaymentID = payment.GatewayPaymentID
		existing.RawPayload = payment.RawPayload
		existing.Signature = payment.Signature
		payment.ID = existing.ID
		payment.OrderID = existing.OrderID
		return nil
	}
	payment.ID = f.nextID
	f.nextID++
	cp := *payment
	f.payments[key] = &cp
	return nil
}

func (f *fakeStore) FailPaymentsByOrder(_ context.Context, orderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, payment := range f.payments {
		if payment.OrderID == orderID {
			payment.Status = models.PaymentFailed
		}
	}
	return nil
}

func (f *fakeStore) GetPayout(_ context.Context, orderID, sellerID int64) (*models.SellerPayout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payout, ok := f.payouts[payoutKey(orderID, sellerID)]
	if !ok {
		return nil, nil
	}
	cp := *payout
	return &cp, nil
}

func (f *fakeStore) UpsertPayoutReleased(_ context.Context, payout *models.SellerPayout, releasedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := payoutKey(payout.OrderID, payout.SellerID)
	if existing, ok := f.payouts[key]; ok {
		if existing.Released {
			return false, nil
		}
		existing.Released = true
		existing.ReleasedAt = &releasedAt
		return true, nil
	}
	cp := *payout
	cp.ID = f.nextID
	f.nextID++
	cp.Released = true
	cp.ReleasedAt = &releasedAt
	f.payouts[key] = &cp
	return true, nil
}

func (f *fakeStore) ListPayoutsByOrder(_ context.Context, orderID int64) ([]models.SellerPayout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var payouts []models.SellerPayout
	for _, payout := range f.payouts {
		if payout.OrderID == orderID {
			payouts = append(payouts, *payout)
		}
	}
	return payouts, nil
}

// fakePublisher records published events
type fakePublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func (f *fakePublisher) record(event interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) PublishPaymentHeld(_ context.Context, e *models.PaymentHeldEvent) error {
	return f.record(e)
}
func (f *fakePublisher) PublishPaymentFailed(_ context.Context, e *models.PaymentFailedEvent) error {
	return f.record(e)
}
func (f *fakePublisher) PublishOrderDelivered(_ context.Context, e *models.OrderDeliveredEvent) error {
	return f.record(e)
}
func (f *fakePublisher) PublishPayoutReleased(_ context.Context, e *models.PayoutReleasedEvent) error {
	return f.record(e)
}
func (f *fakePublisher) PublishOrderRefunded(_ context.Context, e *models.OrderRefundedEvent) error {
	return f.record(e)
}
func (f *fakePublisher) PublishDisputeOpened(_ context.Context, e *models.DisputeOpenedEvent) error {
	return f.record(e)
}
func (f *fakePublisher) PublishDisputeResolved(_ context.Context, e *models.DisputeResolvedEvent) error {
	return f.record(e)
}

func (f *fakePublisher) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []string
	for _, event := range f.events {
		switch e := event.(type) {
		case *models.PaymentHeldEvent:
			types = append(types, e.EventType)
		case *models.PaymentFailedEvent:
			types = append(types, e.EventType)
		case *models.OrderDeliveredEvent:
			types = append(types, e.EventType)
		case *models.PayoutReleasedEvent:
			types = append(types, e.EventType)
		case *models.OrderRefundedEvent:
			types = append(types, e.EventType)
		case *models.DisputeOpenedEvent:
			types = append(types, e.EventType)
		case *models.DisputeResolvedEvent:
			types = append(types, e.EventType)
		}
	}
	return types
}

// fakeCoordinator mimics the Redis fast paths
type fakeCoordinator struct {
	mu     sync.Mutex
	claims map[string]bool
	down   bool
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{claims: make(map[string]bool)}
}

func (f *fakeCoordinator) ClaimWebhookEvent(_ context.Context, gatewayName, eventID string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return false, fmt.Errorf("redis unavailable")
	}
	key := "webhook:" + gatewayName + ":" + eventID
	if f.claims[key] {
		return false, nil
	}
	f.claims[key] = true
	return true, nil
}

func (f *fakeCoordinator) ReleaseWebhookEvent(_ context.Context, gatewayName, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claims, "webhook:"+gatewayName+":"+eventID)
	return nil
}

func (f *fakeCoordinator) GuardPaymentIntent(_ context.Context, orderID int64, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return false, fmt.Errorf("redis unavailable")
	}
	key := fmt.Sprintf("intent:%d", orderID)
	if f.claims[key] {
		return false, nil
	}
	f.claims[key] = true
	return true, nil
}

func (f *fakeCoordinator) ReleasePaymentIntentGuard(_ context.Context, orderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claims, fmt.Sprintf("intent:%d", orderID))
	return nil
}

// fakeGateway records adapter calls without touching the network
type fakeGateway struct {
	mu          sync.Mutex
	name        string
	transfers   []fakeTransfer
	refunds     []fakeRefund
	failCalls   bool
	verifyEvent *gateway.Event
	verifyErr   error
}

type fakeTransfer struct {
	GatewayPaymentID string
	SellerID         int64
	Amount           int64
	Currency         string
}

type fakeRefund struct {
	GatewayPaymentID string
	Amount           int64
}

func newFakeGateway(name string) *fakeGateway {
	return &fakeGateway{name: name}
}

func (f *fakeGateway) Name() string { return f.name }

func (f *fakeGateway) CreateOrder(_ context.Context, receipt string, _ int64, _ string) (string, error) {
	if f.failCalls {
		return "", fmt.Errorf("gateway down")
	}
	return "gw_" + receipt, nil
}

func (f *fakeGateway) VerifyWebhook(_ []byte, _ string) (*gateway.Event, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	if f.verifyEvent == nil {
		return nil, fmt.Errorf("no event configured")
	}
	cp := *f.verifyEvent
	return &cp, nil
}

func (f *fakeGateway) ReleaseToSeller(_ context.Context, gatewayPaymentID string, sellerID int64, amount int64, currency string) error {
	if f.failCalls {
		return fmt.Errorf("gateway down")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, fakeTransfer{gatewayPaymentID, sellerID, amount, currency})
	return nil
}

func (f *fakeGateway) Refund(_ context.Context, gatewayPaymentID string, amount int64) error {
	if f.failCalls {
		return fmt.Errorf("gateway down")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds = append(f.refunds, fakeRefund{gatewayPaymentID, amount})
	return nil
}
