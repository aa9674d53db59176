package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SignatureHeader carries the webhook HMAC for Razorpay deliveries
const SignatureHeader = "X-Razorpay-Signature"

// Razorpay is the adapter for the Razorpay REST API
type Razorpay struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	client        *http.Client
}

func NewRazorpay(keyID, keySecret, webhookSecret, baseURL string) *Razorpay {
	return &Razorpay{
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

func (r *Razorpay) Name() string { return "razorpay" }

// CreateOrder opens a payment intent. The local order reference travels in
// the receipt and notes so webhook events can be tied back even when no
// local payment row exists yet.
func (r *Razorpay) CreateOrder(ctx context.Context, receipt string, amount int64, currency string) (string, error) {
	reqBody := map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
		"notes":    map[string]string{"receipt": receipt},
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := r.post(ctx, "/orders", reqBody, &resp); err != nil {
		return "", fmt.Errorf("razorpay create order: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("razorpay create order: empty order id")
	}
	return resp.ID, nil
}

// razorpayWebhook mirrors the wire shape of Razorpay webhook payloads
type razorpayWebhook struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID               string            `json:"id"`
				OrderID          string            `json:"order_id"`
				Amount           int64             `json:"amount"`
				Currency         string            `json:"currency"`
				ErrorDescription string            `json:"error_description"`
				Notes            map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
	CreatedAt int64 `json:"created_at"`
}

// VerifyWebhook checks the HMAC-SHA256 of the raw body against the
// signature header value, then parses the event. Verification runs over
// the exact bytes received, never the re-encoded JSON.
func (r *Razorpay) VerifyWebhook(body []byte, signature string) (*Event, error) {
	mac := hmac.New(sha256.New, []byte(r.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, ErrInvalidSignature
	}

	var wh razorpayWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return nil, fmt.Errorf("malformed webhook payload: %w", err)
	}
	if wh.Event == "" {
		return nil, fmt.Errorf("malformed webhook payload: missing event type")
	}

	entity := wh.Payload.Payment.Entity
	ev := &Event{
		EventID:          fmt.Sprintf("%s:%s:%d", wh.Event, entity.ID, wh.CreatedAt),
		Type:             wh.Event,
		GatewayOrderID:   entity.OrderID,
		GatewayPaymentID: entity.ID,
		Amount:           entity.Amount,
		Currency:         entity.Currency,
		Receipt:          entity.Notes["receipt"],
		Reason:           entity.ErrorDescription,
	}
	return ev, nil
}

// ReleaseToSeller routes captured funds to the seller's linked account
func (r *Razorpay) ReleaseToSeller(ctx context.Context, gatewayPaymentID string, sellerID int64, amount int64, currency string) error {
	reqBody := map[string]interface{}{
		"transfers": []map[string]interface{}{
			{
				"account":  fmt.Sprintf("acc_seller_%d", sellerID),
				"amount":   amount,
				"currency": currency,
			},
		},
	}

	path := fmt.Sprintf("/payments/%s/transfers", gatewayPaymentID)
	if err := r.post(ctx, path, reqBody, nil); err != nil {
		return fmt.Errorf("razorpay transfer: %w", err)
	}
	return nil
}

// Refund returns captured funds to the buyer
func (r *Razorpay) Refund(ctx context.Context, gatewayPaymentID string, amount int64) error {
	reqBody := map[string]interface{}{}
	if amount > 0 {
		reqBody["amount"] = amount
	}

	path := fmt.Sprintf("/payments/%s/refund", gatewayPaymentID)
	if err := r.post(ctx, path, reqBody, nil); err != nil {
		return fmt.Errorf("razorpay refund: %w", err)
	}
	return nil
}

func (r *Razorpay) post(ctx context.Context, path string, reqBody interface{}, out interface{}) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.SetBasicAuth(r.keyID, r.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
