package models

import "time"

type GeoPosition struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PickupSlot is the user-chosen collection window. Date is the calendar
// day (YYYY-MM-DD or display form); Slot is the free-text window, e.g.
// "9:00 AM - 12:00 PM".
type PickupSlot struct {
	DayName   string `json:"day_name,omitempty"`
	Date      string `json:"date"`
	Slot      string `json:"slot"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Status is the pickup lifecycle. Transitions are monotonic.
type Status string

const (
	StatusAccepted         Status = "accepted"
	StatusPickedUp         Status = "picked_up"
	StatusPaymentPending   Status = "payment_pending"
	StatusPaymentCompleted Status = "payment_completed"
	StatusCompleted        Status = "completed"
)

// Rank orders lifecycle states so "more advanced" is comparable.
// Unknown statuses rank lowest and never win a reconciliation.
func (s Status) Rank() int {
	switch s {
	case StatusAccepted:
		return 1
	case StatusPickedUp:
		return 2
	case StatusPaymentPending:
		return 3
	case StatusPaymentCompleted:
		return 4
	case StatusCompleted:
		return 5
	}
	return 0
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Assignment is one scrapper's claim on one pickup order.
type Assignment struct {
	ID            string        `json:"id"`
	OrderID       string        `json:"order_id"`
	ScrapperID    string        `json:"scrapper_id"`
	UserID        string        `json:"user_id"`
	PickupSlot    *PickupSlot   `json:"pickup_slot,omitempty"`
	PreferredTime string        `json:"preferred_time,omitempty"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	FinalAmount   float64       `json:"final_amount,omitempty"`
	PaidAmount    float64       `json:"paid_amount,omitempty"`
	AcceptedAt    time.Time     `json:"accepted_at"`
	PickedUpAt    *time.Time    `json:"picked_up_at,omitempty"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	ArchivedAt    *time.Time    `json:"archived_at,omitempty"`
	Version       int64         `json:"version"`
}

// BackendStatus derives the coarse two-field shape the legacy order API
// speaks (accepted / in_progress / completed plus a payment flag). The
// five-state enum stays internal; this mapping lives only at the API
// boundary.
func (a *Assignment) BackendStatus() (string, PaymentStatus) {
	switch a.Status {
	case StatusAccepted:
		return "accepted", a.PaymentStatus
	case StatusCompleted:
		return "completed", a.PaymentStatus
	default:
		return "in_progress", a.PaymentStatus
	}
}

// LocationUpdate is the wire form of a scrapper position report.
type LocationUpdate struct {
	OrderID    string      `json:"order_id"`
	ScrapperID string      `json:"scrapper_id"`
	Position   GeoPosition `json:"position"`
	Heading    float64     `json:"heading"`
	CapturedAt time.Time   `json:"captured_at"`
}

// LiveTrackSample is one breadcrumb point; held only in the bounded
// trail buffer, never persisted.
type LiveTrackSample struct {
	Position   GeoPosition `json:"position"`
	Heading    float64     `json:"heading"`
	CapturedAt time.Time   `json:"captured_at"`
}

// RouteStats is derived display data from the route provider.
type RouteStats struct {
	DistanceText    string  `json:"distance_text"`
	DurationText    string  `json:"duration_text"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}
