package models

import "time"

// Order statuses (fulfillment axis)
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// Delivery statuses (settlement axis)
const (
	DeliveryStatusUndelivered = "undelivered"
	DeliveryStatusDelivered   = "delivered"
	DeliveryStatusDisputed    = "disputed"
)

// Payment statuses on the order (escrow lifecycle)
const (
	PaymentStatusUnpaid   = "unpaid"
	PaymentStatusPending  = "pending"
	PaymentStatusHeld     = "held"
	PaymentStatusReleased = "released"
	PaymentStatusRefunded = "refunded"
)

// Payment record statuses (per gateway attempt)
const (
	PaymentCreated   = "created"
	PaymentSucceeded = "succeeded"
	PaymentFailed    = "failed"
)

// Release triggers
const (
	ReleaseTriggerBuyer = "buyer"
	ReleaseTriggerAdmin = "admin"
	ReleaseTriggerAuto  = "auto"
)

// Dispute resolution actions
const (
	ResolveRefund        = "refund"
	ResolvePartialRefund = "partial_refund"
	ResolveRelease       = "release"
)

// Order represents one buyer's purchase. Amounts are minor units.
type Order struct {
	ID                int64      `db:"id" json:"id"`
	BuyerID           int64      `db:"buyer_id" json:"buyer_id"`
	SubtotalAmount    int64      `db:"subtotal_amount" json:"subtotal_amount"`
	ShippingAmount    int64      `db:"shipping_amount" json:"shipping_amount"`
	TaxAmount         int64      `db:"tax_amount" json:"tax_amount"`
	TotalAmount       int64      `db:"total_amount" json:"total_amount"`
	Currency          string     `db:"currency" json:"currency"`
	Status            string     `db:"status" json:"status"`
	DeliveryStatus    string     `db:"delivery_status" json:"delivery_status"`
	PaymentStatus     string     `db:"payment_status" json:"payment_status"`
	Gateway           string     `db:"gateway" json:"gateway,omitempty"`
	DeliveredAt       *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	AutoReleaseAt     *time.Time `db:"auto_release_at" json:"auto_release_at,omitempty"`
	DisputeEvidence   string     `db:"dispute_evidence" json:"dispute_evidence,omitempty"`
	ShippingAddressID int64      `db:"shipping_address_id" json:"shipping_address_id"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// OrderItem is a line item with the unit price snapshotted at order time.
type OrderItem struct {
	ID              int64 `db:"id" json:"id"`
	OrderID         int64 `db:"order_id" json:"order_id"`
	ProductID       int64 `db:"product_id" json:"product_id"`
	SellerID        int64 `db:"seller_id" json:"seller_id"`
	Quantity        int   `db:"quantity" json:"quantity"`
	PriceAtPurchase int64 `db:"price_at_purchase" json:"price_at_purchase"`
}

// Payment is one record per gateway payment attempt. The raw webhook
// payload and signature are kept for audit and replay.
type Payment struct {
	ID               int64     `db:"id" json:"id"`
	OrderID          int64     `db:"order_id" json:"order_id"`
	Gateway          string    `db:"gateway" json:"gateway"`
	Amount           int64     `db:"amount" json:"amount"`
	Currency         string    `db:"currency" json:"currency"`
	GatewayOrderID   string    `db:"gateway_order_id" json:"gateway_order_id"`
	GatewayPaymentID string    `db:"gateway_payment_id" json:"gateway_payment_id,omitempty"`
	Status           string    `db:"status" json:"status"`
	RawPayload       []byte    `db:"raw_payload" json:"-"`
	Signature        string    `db:"signature" json:"-"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// SellerPayout tracks whether escrowed funds for one (order, seller) pair
// have been transferred out. Released flips false->true exactly once.
type SellerPayout struct {
	ID         int64      `db:"id" json:"id"`
	OrderID    int64      `db:"order_id" json:"order_id"`
	SellerID   int64      `db:"seller_id" json:"seller_id"`
	Amount     int64      `db:"amount" json:"amount"`
	Currency   string     `db:"currency" json:"currency"`
	Gateway    string     `db:"gateway" json:"gateway"`
	Released   bool       `db:"released" json:"released"`
	ReleasedAt *time.Time `db:"released_at" json:"released_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// BuyerContact is the read-only collaborator view used for notifications.
type BuyerContact struct {
	ID    int64  `db:"id" json:"id"`
	Email string `db:"email" json:"email"`
	Name  string `db:"name" json:"name"`
}

// CanRelease reports whether escrowed funds may be released to sellers.
// Admin force-release bypasses only the dispute gate, never the hold gate.
func (o *Order) CanRelease(force bool) bool {
	if o.PaymentStatus != PaymentStatusHeld {
		return false
	}
	if o.DeliveryStatus == DeliveryStatusDisputed && !force {
		return false
	}
	return true
}

// CanDispute reports whether the buyer may open a dispute.
func (o *Order) CanDispute() bool {
	return o.PaymentStatus == PaymentStatusHeld &&
		o.DeliveryStatus != DeliveryStatusDisputed
}

// CanRefund reports whether funds may still be returned to the buyer.
// Released funds are gone; refunded orders are terminal.
func (o *Order) CanRefund() bool {
	return o.PaymentStatus == PaymentStatusHeld
}

// CanTransitionStatus validates fulfillment transitions. Cancellation is
// allowed from any non-terminal state.
func CanTransitionStatus(from, to string) bool {
	if to == OrderStatusCancelled {
		return from != OrderStatusCancelled && from != OrderStatusDelivered
	}
	switch from {
	case OrderStatusPending:
		return to == OrderStatusConfirmed
	case OrderStatusConfirmed:
		return to == OrderStatusShipped
	case OrderStatusShipped:
		return to == OrderStatusDelivered
	default:
		return false
	}
}

// SellerTotals groups an order's items by seller and sums
// price_at_purchase * quantity per seller.
func SellerTotals(items []OrderItem) map[int64]int64 {
	totals := make(map[int64]int64)
	for _, item := range items {
		totals[item.SellerID] += item.PriceAtPurchase * int64(item.Quantity)
	}
	return totals
}

// Pricing rules applied at order creation time.
const (
	FlatShippingAmount    = 1000  // $10.00 in minor units
	FreeShippingThreshold = 10000 // shipping waived at or above $100.00 subtotal
	TaxRatePercent        = 15
)

// ComputeTotals derives shipping, tax and total from a subtotal.
func ComputeTotals(subtotal int64) (shipping, tax, total int64) {
	shipping = FlatShippingAmount
	if subtotal >= FreeShippingThreshold {
		shipping = 0
	}
	tax = subtotal * TaxRatePercent / 100
	total = subtotal + shipping + tax
	return shipping, tax, total
}
