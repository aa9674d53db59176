package gateway

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidSignature is returned when a webhook body fails HMAC
// verification. Callers must reject the delivery, never process it.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Webhook event types understood by the reconciler. Gateways may emit
// other types; adapters pass them through and the reconciler ignores them.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
)

// Event is a gateway webhook event normalized to a common shape
type Event struct {
	EventID          string
	Type             string
	GatewayOrderID   string
	GatewayPaymentID string
	Amount           int64
	Currency         string
	Receipt          string
	Reason           string
}

// Gateway wraps one external payment gateway behind a uniform capability
// set. Implementations are thin and swappable; idempotency and state
// legality live in the layers above.
type Gateway interface {
	Name() string

	// CreateOrder opens a gateway-side payment intent and returns the
	// gateway-assigned order identifier.
	CreateOrder(ctx context.Context, receipt string, amount int64, currency string) (string, error)

	// VerifyWebhook recomputes an HMAC over the exact bytes received and
	// returns ErrInvalidSignature on mismatch; otherwise the parsed event.
	VerifyWebhook(body []byte, signature string) (*Event, error)

	// ReleaseToSeller transfers captured funds out of escrow to a seller
	ReleaseToSeller(ctx context.Context, gatewayPaymentID string, sellerID int64, amount int64, currency string) error

	// Refund returns captured funds to the buyer. A zero amount refunds
	// the full capture.
	Refund(ctx context.Context, gatewayPaymentID string, amount int64) error
}

// Registry maps gateway names to adapters so a second gateway can be added
// without touching the state machine.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway)}
	for _, g := range gateways {
		r.gateways[g.Name()] = g
	}
	return r
}

func (r *Registry) Get(name string) (Gateway, error) {
	g, ok := r.gateways[name]
	if !ok {
		return nil, fmt.Errorf("unknown gateway: %s", name)
	}
	return g, nil
}
