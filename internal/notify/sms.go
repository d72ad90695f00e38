package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vyhan.org/internal/obs"
	"vyhan.org/internal/shipment"
	"vyhan.org/internal/tenant"
)

// SMSSender delivers a text message to a phone number.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}

// GatewayClient posts messages to an external SMS gateway.
type GatewayClient struct {
	baseURL string
	client  *http.Client
}

// NewGatewayClient constructs the client. The timeout bounds each delivery
// attempt; booking latency never waits on it.
func NewGatewayClient(baseURL string, timeout time.Duration) *GatewayClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GatewayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (g *GatewayClient) Send(ctx context.Context, phone, message string) error {
	form := url.Values{}
	form.Set("to", phone)
	form.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/send", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway: status %d", resp.StatusCode)
	}
	return nil
}

// BookingNotifier texts booking confirmations to sender and receiver and
// drops an inbox message for the destination branch owner so incoming
// shipments surface without polling. It satisfies shipment.Notifier.
type BookingNotifier struct {
	sms         SMSSender
	messages    MessageStore
	branches    tenant.BranchStore
	trackingURL string
	now         func() time.Time
}

var _ shipment.Notifier = (*BookingNotifier)(nil)

// NotifierOption configures optional notifier behavior.
type NotifierOption func(*BookingNotifier)

// WithTrackingBaseURL appends a public tracking link to the booking SMS.
func WithTrackingBaseURL(baseURL string) NotifierOption {
	return func(n *BookingNotifier) { n.trackingURL = strings.TrimRight(baseURL, "/") }
}

// NewBookingNotifier wires SMS delivery with the inbox. The SMS sender may
// be nil (no gateway configured); inbox recording still runs.
func NewBookingNotifier(sms SMSSender, messages MessageStore, branches tenant.BranchStore, opts ...NotifierOption) *BookingNotifier {
	n := &BookingNotifier{sms: sms, messages: messages, branches: branches, now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ShipmentBooked notifies both parties and the destination branch. Failures
// are logged and counted, never surfaced to the booking flow.
func (n *BookingNotifier) ShipmentBooked(ctx context.Context, sh *shipment.Shipment) {
	body := fmt.Sprintf("Your shipment %s from %s to %s has been booked.",
		sh.TrackingID, sh.SourceBranchTitle, sh.DestinationTitle)
	if n.trackingURL != "" {
		body += fmt.Sprintf(" Track it at %s/%s", n.trackingURL, sh.TrackingID)
	}
	n.sendSMS(ctx, sh, sh.SenderPhone, body)
	n.sendSMS(ctx, sh, sh.ReceiverPhone, body)

	n.recordInbox(ctx, sh)
}

func (n *BookingNotifier) sendSMS(ctx context.Context, sh *shipment.Shipment, phone, body string) {
	if n.sms == nil || phone == "" {
		return
	}
	if err := n.sms.Send(ctx, phone, body); err != nil {
		obs.ObserveNotification("failed")
		obs.LogError("notify.sms", err, map[string]any{"tracking_id": sh.TrackingID})
		return
	}
	obs.ObserveNotification("sent")
}

func (n *BookingNotifier) recordInbox(ctx context.Context, sh *shipment.Shipment) {
	if n.messages == nil || n.branches == nil {
		return
	}
	dest, err := n.branches.Find(ctx, sh.DestinationBranchID)
	if err != nil {
		obs.LogError("notify.inbox", err, map[string]any{"tracking_id": sh.TrackingID})
		return
	}
	if dest.OwnerID == "" {
		return
	}
	msg := &Message{
		UserID:     dest.OwnerID,
		TrackingID: sh.TrackingID,
		Body: fmt.Sprintf("Incoming shipment %s booked at %s for %s.",
			sh.TrackingID, sh.SourceBranchTitle, sh.ReceiverName),
		CreatedAt: n.now().UTC(),
	}
	if err := n.messages.Create(ctx, msg); err != nil {
		obs.LogError("notify.inbox", err, map[string]any{"tracking_id": sh.TrackingID})
	}
}
