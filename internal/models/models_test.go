package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanRelease(t *testing.T) {
	tests := []struct {
		name           string
		paymentStatus  string
		deliveryStatus string
		force          bool
		want           bool
	}{
		{"held and undelivered", PaymentStatusHeld, DeliveryStatusUndelivered, false, true},
		{"held and delivered", PaymentStatusHeld, DeliveryStatusDelivered, false, true},
		{"held but disputed", PaymentStatusHeld, DeliveryStatusDisputed, false, false},
		{"held and disputed with force", PaymentStatusHeld, DeliveryStatusDisputed, true, true},
		{"already released", PaymentStatusReleased, DeliveryStatusDelivered, false, false},
		{"already released with force", PaymentStatusReleased, DeliveryStatusDelivered, true, false},
		{"refunded", PaymentStatusRefunded, DeliveryStatusDelivered, false, false},
		{"refunded with force", PaymentStatusRefunded, DeliveryStatusDisputed, true, false},
		{"unpaid", PaymentStatusUnpaid, DeliveryStatusUndelivered, false, false},
		{"pending", PaymentStatusPending, DeliveryStatusUndelivered, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := &Order{PaymentStatus: tt.paymentStatus, DeliveryStatus: tt.deliveryStatus}
			assert.Equal(t, tt.want, order.CanRelease(tt.force))
		})
	}
}

func TestCanDispute(t *testing.T) {
	tests := []struct {
		name           string
		paymentStatus  string
		deliveryStatus string
		want           bool
	}{
		{"held and delivered", PaymentStatusHeld, DeliveryStatusDelivered, true},
		{"held and undelivered", PaymentStatusHeld, DeliveryStatusUndelivered, true},
		{"already disputed", PaymentStatusHeld, DeliveryStatusDisputed, false},
		{"released", PaymentStatusReleased, DeliveryStatusDelivered, false},
		{"refunded", PaymentStatusRefunded, DeliveryStatusDelivered, false},
		{"unpaid", PaymentStatusUnpaid, DeliveryStatusUndelivered, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := &Order{PaymentStatus: tt.paymentStatus, DeliveryStatus: tt.deliveryStatus}
			assert.Equal(t, tt.want, order.CanDispute())
		})
	}
}

func TestCanRefund(t *testing.T) {
	assert.True(t, (&Order{PaymentStatus: PaymentStatusHeld}).CanRefund())
	assert.False(t, (&Order{PaymentStatus: PaymentStatusReleased}).CanRefund())
	assert.False(t, (&Order{PaymentStatus: PaymentStatusRefunded}).CanRefund())
	assert.False(t, (&Order{PaymentStatus: PaymentStatusUnpaid}).CanRefund())
	assert.False(t, (&Order{PaymentStatus: PaymentStatusPending}).CanRefund())
}

func TestCanTransitionStatus(t *testing.T) {
	tests := []struct {
		from string
		to   string
		want bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusConfirmed, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusDelivered, true},

		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusPending, OrderStatusDelivered, false},
		{OrderStatusConfirmed, OrderStatusDelivered, false},
		{OrderStatusShipped, OrderStatusConfirmed, false},
		{OrderStatusDelivered, OrderStatusShipped, false},

		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusConfirmed, OrderStatusCancelled, true},
		{OrderStatusShipped, OrderStatusCancelled, true},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusCancelled, false},

		{OrderStatusCancelled, OrderStatusConfirmed, false},
		{OrderStatusDelivered, OrderStatusDelivered, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransitionStatus(tt.from, tt.to),
			"transition %s -> %s", tt.from, tt.to)
	}
}

func TestSellerTotals(t *testing.T) {
	items := []OrderItem{
		{SellerID: 1, Quantity: 2, PriceAtPurchase: 2000},
		{SellerID: 1, Quantity: 1, PriceAtPurchase: 2000},
		{SellerID: 2, Quantity: 4, PriceAtPurchase: 1000},
	}

	totals := SellerTotals(items)

	assert.Len(t, totals, 2)
	assert.Equal(t, int64(6000), totals[1])
	assert.Equal(t, int64(4000), totals[2])
}

func TestSellerTotalsEmpty(t *testing.T) {
	assert.Empty(t, SellerTotals(nil))
}

func TestComputeTotals(t *testing.T) {
	// $100 subtotal: shipping waived, 15% tax, $115 total
	shipping, tax, total := ComputeTotals(10000)
	assert.Equal(t, int64(0), shipping)
	assert.Equal(t, int64(1500), tax)
	assert.Equal(t, int64(11500), total)

	// below the free-shipping threshold
	shipping, tax, total = ComputeTotals(9999)
	assert.Equal(t, int64(1000), shipping)
	assert.Equal(t, int64(1499), tax)
	assert.Equal(t, int64(12498), total)

	shipping, tax, total = ComputeTotals(2000)
	assert.Equal(t, int64(1000), shipping)
	assert.Equal(t, int64(300), tax)
	assert.Equal(t, int64(3300), total)
}
