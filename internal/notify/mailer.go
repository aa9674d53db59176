package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Mailer is the outbound email capability consumed by the settlement
// workers. The transport is an external collaborator; send failures are
// logged by callers, never allowed to fail a state transition.
type Mailer interface {
	Send(to, toName, subject, textBody string) error
}

// HTTPMailer posts transactional mail through an HTTP mail API
type HTTPMailer struct {
	apiURL    string
	apiToken  string
	fromEmail string
	fromName  string
	client    *http.Client
}

func NewHTTPMailer(apiURL, apiToken, fromEmail, fromName string) *HTTPMailer {
	return &HTTPMailer{
		apiURL:    apiURL,
		apiToken:  apiToken,
		fromEmail: fromEmail,
		fromName:  fromName,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type person struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type mailPayload struct {
	From     person   `json:"from"`
	To       []person `json:"to"`
	Subject  string   `json:"subject"`
	Text     string   `json:"text"`
	Category string   `json:"category,omitempty"`
}

func (m *HTTPMailer) Send(to, toName, subject, textBody string) error {
	if m.apiURL == "" || m.apiToken == "" {
		return fmt.Errorf("mailer credentials not configured")
	}

	payload := mailPayload{
		From:     person{Email: m.fromEmail, Name: m.fromName},
		To:       []person{{Email: to, Name: toName}},
		Subject:  subject,
		Text:     textBody,
		Category: "Transactional",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, m.apiURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", m.apiToken))
	req.Header.Set("Content-Type", "application/json")

	res, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return fmt.Errorf("mail API error: %d", res.StatusCode)
	}
	return nil
}

// AutoReleaseWarning composes the buyer warning sent when an order is
// marked delivered and the auto-release countdown starts.
func AutoReleaseWarning(buyerName string, orderID int64, deadline time.Time) (subject, textBody string) {
	subject = fmt.Sprintf("Order #%d delivered - funds release on %s", orderID, deadline.Format("Jan 2, 15:04 MST"))
	textBody = fmt.Sprintf(
		"Hi %s,\n\nYour order #%d was marked as delivered. Unless you confirm receipt or open a dispute, "+
			"payment will be automatically released to the seller(s) at %s.\n\n"+
			"If anything is wrong with the order, please open a dispute before that time.",
		buyerName, orderID, deadline.Format(time.RFC1123))
	return subject, textBody
}

// RefundNotice composes the buyer notice sent after a refund is issued
func RefundNotice(buyerName string, orderID int64, amount int64, currency string) (subject, textBody string) {
	subject = fmt.Sprintf("Order #%d refunded", orderID)
	textBody = fmt.Sprintf(
		"Hi %s,\n\nYour payment for order #%d has been refunded (%d %s, minor units). "+
			"Depending on your bank it may take a few days to appear.",
		buyerName, orderID, amount, currency)
	return subject, textBody
}
