package models

import "time"

// Event types
const (
	EventTypePaymentHeld     = "PAYMENT_HELD"
	EventTypePaymentFailed   = "PAYMENT_FAILED"
	EventTypeOrderDelivered  = "ORDER_DELIVERED"
	EventTypePayoutReleased  = "PAYOUT_RELEASED"
	EventTypeOrderRefunded   = "ORDER_REFUNDED"
	EventTypeDisputeOpened   = "DISPUTE_OPENED"
	EventTypeDisputeResolved = "DISPUTE_RESOLVED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentHeldEvent published when a verified capture moves an order into escrow
type PaymentHeldEvent struct {
	BaseEvent
	OrderID          int64  `json:"order_id"`
	BuyerID          int64  `json:"buyer_id"`
	Gateway          string `json:"gateway"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
}

// PaymentFailedEvent published when the gateway reports a failed capture
type PaymentFailedEvent struct {
	BaseEvent
	OrderID          int64  `json:"order_id"`
	Gateway          string `json:"gateway"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Reason           string `json:"reason"`
}

// OrderDeliveredEvent published when a seller marks delivery; starts the
// auto-release countdown and drives the buyer warning email
type OrderDeliveredEvent struct {
	BaseEvent
	OrderID       int64     `json:"order_id"`
	BuyerID       int64     `json:"buyer_id"`
	AutoReleaseAt time.Time `json:"auto_release_at"`
}

// PayoutReleasedEvent published after escrow is released to sellers
type PayoutReleasedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	Trigger     string          `json:"trigger"`
	TotalAmount int64           `json:"total_amount"`
	Payouts     []PayoutSummary `json:"payouts"`
}

// PayoutSummary is the per-seller slice of a release
type PayoutSummary struct {
	SellerID int64 `json:"seller_id"`
	Amount   int64 `json:"amount"`
}

// OrderRefundedEvent published when escrowed funds are returned to the buyer
type OrderRefundedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	BuyerID int64  `json:"buyer_id"`
	Amount  int64  `json:"amount"`
	Kind    string `json:"kind"`
}

// DisputeOpenedEvent published when a buyer disputes a held order
type DisputeOpenedEvent struct {
	BaseEvent
	OrderID  int64  `json:"order_id"`
	BuyerID  int64  `json:"buyer_id"`
	Evidence string `json:"evidence"`
}

// DisputeResolvedEvent published when an admin resolves a dispute
type DisputeResolvedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Action  string `json:"action"`
}
