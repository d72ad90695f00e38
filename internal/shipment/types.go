package shipment

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"
	"unicode"
)

var (
	ErrNotFound      = errors.New("shipment: not found")
	ErrForbidden     = errors.New("shipment: access denied")
	ErrInvalidInput  = errors.New("shipment: invalid input")
	ErrInvalidStatus = errors.New("shipment: unknown status")
	ErrConflict      = errors.New("shipment: resource conflict")
)

// Status is the lifecycle state of a shipment. Transitions are permissive:
// any known status may follow any other, including re-entry.
type Status string

const (
	StatusBooked    Status = "BOOKED"
	StatusInTransit Status = "IN_TRANSIT"
	StatusArrived   Status = "ARRIVED"
)

// ParseStatus validates a client-supplied status value.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusBooked, StatusInTransit, StatusArrived:
		return Status(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// PaymentMode records who pays the shipping charge.
type PaymentMode string

const (
	PaySender   PaymentMode = "SENDER_PAYS"
	PayReceiver PaymentMode = "RECEIVER_PAYS"
)

// ParsePaymentMode validates a client-supplied payment mode.
func ParsePaymentMode(raw string) (PaymentMode, error) {
	switch PaymentMode(raw) {
	case PaySender, PayReceiver:
		return PaymentMode(raw), nil
	}
	return "", fmt.Errorf("%w: payment mode %q", ErrInvalidInput, raw)
}

// Shipment is a booked consignment between two branches of one organization.
type Shipment struct {
	ID                  string      `json:"id"`
	TrackingID          string      `json:"tracking_id"`
	OrganizationID      string      `json:"-"`
	SourceBranchID      string      `json:"source_branch_id"`
	SourceBranchTitle   string      `json:"source_branch"`
	DestinationBranchID string      `json:"destination_branch_id"`
	DestinationTitle    string      `json:"destination_branch"`
	BusID               string      `json:"bus_id,omitempty"`
	SenderName          string      `json:"sender_name"`
	SenderPhone         string      `json:"sender_phone"`
	ReceiverName        string      `json:"receiver_name"`
	ReceiverPhone       string      `json:"receiver_phone"`
	GoodsDescription    string      `json:"goods_description"`
	Quantity            int         `json:"quantity"`
	WeightKG            float64     `json:"weight_kg"`
	// Charge is the shipping fee in minor currency units.
	Charge      int64       `json:"charge"`
	PaymentMode PaymentMode `json:"payment_mode"`
	Status      Status      `json:"status"`
	// Day is the business day the shipment was booked under, normalized to
	// midnight UTC.
	Day time.Time `json:"day"`
	// History holds the movement trail, newest entry first.
	History   []*HistoryEntry `json:"history,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// HistoryEntry is one row of the append-only movement trail. Entries are
// never updated or deleted.
type HistoryEntry struct {
	ID         string    `json:"id"`
	ShipmentID string    `json:"-"`
	Status     Status    `json:"status"`
	Location   string    `json:"location"`
	Remarks    string    `json:"remarks,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// StatusEvent is published on every lifecycle change for live consumers.
type StatusEvent struct {
	TrackingID     string    `json:"tracking_id"`
	OrganizationID string    `json:"-"`
	Status         Status    `json:"status"`
	Location       string    `json:"location"`
	Remarks        string    `json:"remarks,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewTrackingID derives a public tracking id from the destination branch
// title: its first letter upper-cased, a dash, and six random digits.
func NewTrackingID(destinationTitle string) (string, error) {
	prefix := byte('X')
	for _, r := range destinationTitle {
		u := unicode.ToUpper(r)
		if u >= 'A' && u <= 'Z' {
			prefix = byte(u)
		}
		break
	}
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("tracking id entropy: %w", err)
	}
	digits := make([]byte, 6)
	for i, b := range buf {
		digits[i] = '0' + b%10
	}
	return fmt.Sprintf("%c-%s", prefix, digits), nil
}
