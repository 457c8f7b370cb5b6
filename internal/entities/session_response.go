package entities

import (
	"time"

	"parkhere/internal/db"
)

type SessionResponse struct {
	ID            string     `json:"id"`
	LocationID    string     `json:"location_id"`
	VehicleID     string     `json:"vehicle_id"`
	Category      string     `json:"category"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	FeeCents      int64      `json:"fee_cents"`
	PaymentStatus string     `json:"payment_status,omitempty"`
}

func NewSessionResponse(s *db.ParkingSession) *SessionResponse {
	return &SessionResponse{
		ID:            s.ID,
		LocationID:    s.LocationID,
		VehicleID:     s.VehicleID,
		Category:      string(s.Category),
		Status:        string(s.Status),
		StartedAt:     s.StartedAt,
		EndedAt:       s.EndedAt,
		FeeCents:      s.FeeCents,
		PaymentStatus: s.PaymentStatus,
	}
}

// ReceiptResponse is returned by session end: the completed session plus
// the fee and, when payments are configured, a checkout link.
type ReceiptResponse struct {
	Session      SessionResponse `json:"session"`
	LocationName string          `json:"location_name"`
	FeeCents     int64           `json:"fee_cents"`
	CheckoutURL  string          `json:"checkout_url,omitempty"`
}
