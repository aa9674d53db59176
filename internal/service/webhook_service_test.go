package service

import (
	"context"
	"testing"

	"settlement-service/internal/apperr"
	"settlement-service/internal/gateway"
	"settlement-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWebhookFixture(t *testing.T) (*WebhookService, *fakeStore, *fakePublisher, *fakeCoordinator, *fakeGateway) {
	t.Helper()
	st := newFakeStore()
	pub := &fakePublisher{}
	coord := newFakeCoordinator()
	gw := newFakeGateway("razorpay")
	svc := NewWebhookService(st, coord, pub, gateway.NewRegistry(gw))
	return svc, st, pub, coord, gw
}

func seedPendingOrder(t *testing.T, st *fakeStore) *models.Order {
	t.Helper()
	order := &models.Order{
		BuyerID:        7,
		SubtotalAmount: 10000,
		TaxAmount:      1500,
		TotalAmount:    11500,
		Currency:       "USD",
		Status:         models.OrderStatusPending,
		DeliveryStatus: models.DeliveryStatusUndelivered,
		PaymentStatus:  models.PaymentStatusPending,
	}
	require.NoError(t, st.CreateOrder(context.Background(), order))
	require.NoError(t, st.CreatePayment(context.Background(), &models.Payment{
		OrderID:        order.ID,
		Gateway:        "razorpay",
		Amount:         order.TotalAmount,
		Currency:       "USD",
		GatewayOrderID: "gw_ord_1",
		Status:         models.PaymentCreated,
	}))
	return order
}

func capturedEvent(orderGatewayID string) *gateway.Event {
	return &gateway.Event{
		EventID:          "evt_1",
		Type:             gateway.EventPaymentCaptured,
		GatewayOrderID:   orderGatewayID,
		GatewayPaymentID: "pay_1",
		Amount:           11500,
		Currency:         "USD",
	}
}

func TestProcessCapturedHoldsOrder(t *testing.T) {
	svc, st, pub, _, gw := newWebhookFixture(t)
	order := seedPendingOrder(t, st)
	gw.verifyEvent = capturedEvent("gw_ord_1")

	err := svc.Process(context.Background(), "razorpay", []byte(`{}`), "sig")
	require.NoError(t, err)

	updated, err := st.GetOrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusHeld, updated.PaymentStatus)
	assert.Equal(t, "razorpay", updated.Gateway)

	payment, err := st.GetPaymentByGatewayOrderID(context.Background(), "razorpay", "gw_ord_1")
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, models.PaymentSucceeded, payment.Status)
	assert.Equal(t, "pay_1", payment.GatewayPaymentID)

	assert.Equal(t, []string{models.EventTypePaymentHeld}, pub.eventTypes())
}

func TestProcessDuplicateDeliveryIsNoOp(t *testing.T) {
	svc, st, pub, _, gw := newWebhookFixture(t)
	order := seedPendingOrder(t, st)
	gw.verifyEvent = capturedEvent("gw_ord_1")

	require.NoError(t, svc.Process(context.Background(), "razorpay", []byte(`{}`), "sig"))
	// Same event id redelivered: dropped on the dedup fast path.
	require.NoError(t, svc.Process(context.Background(), "razorpay", []byte(`{}`), "sig"))

	updated, err := st.GetOrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusHeld, updated.PaymentStatus)
	assert.Equal(t, []string{models.EventTypePaymentHeld}, pub.eventTypes())
}

func TestProcessDuplicateWithoutDedupFastPath(t *testing.T) {
	svc, st, pub, coord, gw := newWebhookFixture(t)
	order := seedPendingOrder(t, st)
	gw.verifyEvent = capturedEvent("gw_ord_1")
	coord.down = true

	// Redis down: both deliveries reach the store, the conditional hold
	// makes the second one a no-op.
	require.NoError(t, svc.Process(context.Background(), "razorpay", []byte(`{}`), "sig"))
	require.NoError(t, svc.Process(context.Background(), "razorpay", []byte(`{}`), "sig"))

	updated, err := st.GetOrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusHeld, updated.PaymentStatus)
	assert.Equal(t, []string{models.EventTypePaymentHeld}, pub.eventTypes())
}

func TestProcessFailedLeavesOrderUntouched(t *testing.T) {
	svc, st, pub, _, gw := newWebhookFixture(t)
	order := seedPendingOrder(t, st)
	gw.verifyEvent = &gateway.Event{
		EventID:          "evt_2",
		Type:             gateway.EventPaymentFailed,
		GatewayOrderID:   "gw_ord_1",
		GatewayPaymentID: "pay_1",
		Reason:           "card_declined",
	}

	require.NoError(t, svc.Process(context.Background(), "razorpay", []byte(`{}`), "sig"))

	updated, err := st.GetOrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, updated.PaymentStatus)

	payment, err := st.GetPaymentByGatewayOrderID(context.Background(), "razorpay", "gw_ord_1")
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, models.PaymentFailed, payment.Status)

	assert.Equal(t, []string{models.EventTypePaymentFailed}, pub.eventTypes())
}

func TestProcessUnknownEventTypeIgnored(t *testing.T) {
	svc, st, pub, _, gw := newWebhookFixture(t)
	order := seedPendingOrder(t, st)
	gw.verifyEvent = &gateway.Event{
		EventID:        "evt_3",
		Type:           "payment.authorized",
		GatewayOrderID: "gw_ord_1",
	}

	require.NoError(t, svc.Process(context.Background(), "razorpay", []byte(`{}`), "sig"))

	updated, err := st.GetOrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, updated.PaymentStatus)
	assert.Empty(t, pub.eventTypes())
}

func TestProcessInvalidSignatureRejected(t *testing.T) {
	svc, st, pub, _, gw := newWebhookFixture(t)
	order := seedPendingOrder(t, st)
	gw.verifyErr = gateway.ErrInvalidSignature

	err := svc.Process(context.Background(), "razorpay", []byte(`{}`), "bad")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.InvalidSignature))

	updated, err := st.GetOrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, updated.PaymentStatus)
	assert.Empty(t, pub.eventTypes())
}

func TestProcessUnknownGateway(t *testing.T) {
	svc, _, _, _, _ := newWebhookFixture(t)

	err := svc.Process(context.Background(), "stripe", []byte(`{}`), "sig")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestProcessCapturedBeforeLocalRecord(t *testing.T) {
	// The webhook outran the intent write: no payment row matches the
	// gateway order id, so the order id comes from the receipt.
	svc, st, pub, _, gw := newWebhookFixture(t)
	order := &models.Order{
		BuyerID:        7,
		TotalAmount:    11500,
		Currency:       "USD",
		Status:         models.OrderStatusPending,
		DeliveryStatus: models.DeliveryStatusUndelivered,
		PaymentStatus:  models.PaymentStatusUnpaid,
	}
	require.NoError(t, st.CreateOrder(context.Background(), order))

	ev := capturedEvent("gw_ord_unseen")
	ev.Receipt = "order-1"
	gw.verifyEvent = ev

	require.NoError(t, svc.Process(context.Background(), "razorpay", []byte(`{}`), "sig"))

	updated, err := st.GetOrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusHeld, updated.PaymentStatus)
	assert.Equal(t, []string{models.EventTypePaymentHeld}, pub.eventTypes())
}

func TestProcessCapturedUnresolvableOrder(t *testing.T) {
	svc, _, pub, coord, gw := newWebhookFixture(t)
	ev := capturedEvent("gw_ord_unseen")
	ev.Receipt = "not-an-order-receipt"
	gw.verifyEvent = ev

	err := svc.Process(context.Background(), "razorpay", []byte(`{}`), "sig")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Invalid))
	assert.Empty(t, pub.eventTypes())

	// The claim was released, so the gateway's redelivery gets another try.
	claimed, err := coord.ClaimWebhookEvent(context.Background(), "razorpay", ev.EventID, 0)
	require.NoError(t, err)
	assert.True(t, claimed)
}
