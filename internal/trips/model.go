package trips

import (
	"time"

	"github.com/example/trip-capture/internal/geo"
	"github.com/example/trip-capture/internal/tripstate"
)

// CapturedLocation is one confirmed endpoint of a trip. Coordinate is nil
// until the passenger has confirmed a map position for it.
type CapturedLocation struct {
	Coordinate  *geo.Coordinate `json:"coordinate"`
	TextAddress string          `json:"text_address"`
	PhoneNumber string          `json:"phone_number"`
	Description string          `json:"description"`
}

// Captured reports whether a coordinate has been confirmed.
func (l CapturedLocation) Captured() bool { return l.Coordinate != nil }

type Trip struct {
	ID           string           `json:"id"`
	PassengerID  string           `json:"passenger_id"`
	Status       tripstate.Status `json:"status"`
	Origin       CapturedLocation `json:"origin"`
	Destination  CapturedLocation `json:"destination"`
	FareEstimate int64            `json:"fare_estimate"` // minor currency units
	PaymentHold  string           `json:"payment_hold,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// PermittedStep projects the trip onto the next capture step.
func (t *Trip) PermittedStep() tripstate.Step {
	return tripstate.PermittedStep(t.Status, t.Origin.Captured(), t.Destination.Captured())
}
