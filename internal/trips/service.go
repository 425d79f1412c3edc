package trips

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/trip-capture/internal/fare"
	"github.com/example/trip-capture/internal/observability"
	"github.com/example/trip-capture/internal/tripstate"
)

var (
	ErrNoCoordinate   = errors.New("location has no confirmed coordinate")
	ErrOriginRequired = errors.New("origin must be captured before destination")
	ErrTripClosed     = errors.New("trip is already closed")
	ErrBadTransition  = errors.New("status transition not permitted")
)

// FareHolder places and settles upfront fare authorization holds.
type FareHolder interface {
	Hold(ctx context.Context, amount int64, currency, customerID string) (string, error)
	Capture(ctx context.Context, holdID string) error
	Release(ctx context.Context, holdID string) error
}

// CaptureEvent is emitted once per successfully persisted location capture.
type CaptureEvent struct {
	TripID     string                   `json:"trip_id"`
	Context    tripstate.CaptureContext `json:"context"`
	Lat        float64                  `json:"lat"`
	Lng        float64                  `json:"lng"`
	CapturedAt time.Time                `json:"captured_at"`
}

// CapturePublisher hands capture events to the event stream.
type CapturePublisher interface {
	PublishCapture(ev CaptureEvent) error
}

// CaptureNotifier pushes "capture completed" to live subscribers.
type CaptureNotifier interface {
	CaptureCompleted(tripID string, which tripstate.CaptureContext, t *Trip)
}

// Service owns trip lifecycle writes. It is the only component that mutates
// trip records; everything else reads.
type Service struct {
	Store     Store
	Holder    FareHolder       // optional
	Publisher CapturePublisher // optional, best-effort
	Notifier  CaptureNotifier  // optional
	Fare      fare.Estimator
	Currency  string
	Logger    *slog.Logger
}

func (s *Service) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Service) CreateTrip(ctx context.Context, passengerID string) (*Trip, error) {
	now := time.Now()
	t := &Trip{
		ID:          newID(),
		PassengerID: passengerID,
		Status:      tripstate.StatusWaitingInfo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.CreateTrip(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) GetTrip(ctx context.Context, id string) (*Trip, error) {
	return s.Store.GetTrip(ctx, id)
}

// CompleteInfo marks the passenger-info step done.
func (s *Service) CompleteInfo(ctx context.Context, tripID string) (*Trip, error) {
	return s.transition(ctx, tripID, tripstate.StatusWaitingLocation)
}

// Start moves a fully-captured trip into the riding phase.
func (s *Service) Start(ctx context.Context, tripID string) (*Trip, error) {
	return s.transition(ctx, tripID, tripstate.StatusInTrip)
}

// Complete finishes the trip and captures any fare hold.
func (s *Service) Complete(ctx context.Context, tripID string) (*Trip, error) {
	t, err := s.transition(ctx, tripID, tripstate.StatusDone)
	if err != nil {
		return nil, err
	}
	if s.Holder != nil && t.PaymentHold != "" {
		if err := s.Holder.Capture(ctx, t.PaymentHold); err != nil {
			s.log().Error("fare hold capture failed", "trip_id", tripID, "error", err)
		}
	}
	return t, nil
}

// Cancel cancels the trip from any non-terminal phase and releases any hold.
func (s *Service) Cancel(ctx context.Context, tripID string) (*Trip, error) {
	t, err := s.transition(ctx, tripID, tripstate.StatusCanceled)
	if err != nil {
		return nil, err
	}
	if s.Holder != nil && t.PaymentHold != "" {
		if err := s.Holder.Release(ctx, t.PaymentHold); err != nil {
			s.log().Error("fare hold release failed", "trip_id", tripID, "error", err)
		}
	}
	return t, nil
}

func (s *Service) transition(ctx context.Context, tripID string, to tripstate.Status) (*Trip, error) {
	t, err := s.Store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !tripstate.CanTransition(t.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrBadTransition, t.Status, to)
	}
	if err := s.Store.UpdateStatus(ctx, tripID, to); err != nil {
		return nil, err
	}
	t.Status = to
	return t, nil
}

// ApplyLocation persists a confirmed capture for one endpoint of the trip.
// It enforces the capture ordering (origin before destination), advances the
// trip to waiting_start once both endpoints are set, places the fare hold,
// and emits the capture-completed event.
func (s *Service) ApplyLocation(ctx context.Context, tripID string, which tripstate.CaptureContext, loc CapturedLocation) (*Trip, error) {
	if loc.Coordinate == nil {
		return nil, ErrNoCoordinate
	}
	if err := loc.Coordinate.Validate(); err != nil {
		return nil, err
	}
	t, err := s.Store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if t.Status.Terminal() || t.Status == tripstate.StatusInTrip {
		return nil, fmt.Errorf("%w: status %s", ErrTripClosed, t.Status)
	}
	if which == tripstate.ContextDestination && !tripstate.DestinationAllowed(t.Status, t.Origin.Captured()) {
		return nil, ErrOriginRequired
	}
	if err := s.Store.SetLocation(ctx, tripID, which, loc); err != nil {
		return nil, err
	}
	if which == tripstate.ContextDestination {
		t.Destination = loc
	} else {
		t.Origin = loc
	}
	t.UpdatedAt = time.Now()

	// captures may land before the info step; walk the chain rather than
	// assuming the single hop to waiting_start is available
	if t.Status == tripstate.StatusWaitingInfo {
		if err := s.Store.UpdateStatus(ctx, tripID, tripstate.StatusWaitingLocation); err != nil {
			return nil, err
		}
		t.Status = tripstate.StatusWaitingLocation
	}
	if t.Origin.Captured() && t.Destination.Captured() &&
		tripstate.CanTransition(t.Status, tripstate.StatusWaitingStart) {
		if err := s.Store.UpdateStatus(ctx, tripID, tripstate.StatusWaitingStart); err != nil {
			return nil, err
		}
		t.Status = tripstate.StatusWaitingStart
		s.placeHold(ctx, t)
	}

	observability.CapturesCompleted.WithLabelValues(string(which)).Inc()
	s.emitCaptured(t, which, loc)
	return t, nil
}

func (s *Service) placeHold(ctx context.Context, t *Trip) {
	estimate := s.Fare.Estimate(*t.Origin.Coordinate, *t.Destination.Coordinate)
	t.FareEstimate = estimate
	if s.Holder == nil {
		_ = s.Store.SetPaymentHold(ctx, t.ID, "", estimate)
		return
	}
	holdID, err := s.Holder.Hold(ctx, estimate, s.Currency, t.PassengerID)
	if err != nil {
		// the capture itself already succeeded; proceed without a hold
		s.log().Error("fare hold failed", "trip_id", t.ID, "error", err)
		_ = s.Store.SetPaymentHold(ctx, t.ID, "", estimate)
		return
	}
	t.PaymentHold = holdID
	if err := s.Store.SetPaymentHold(ctx, t.ID, holdID, estimate); err != nil {
		s.log().Error("recording fare hold failed", "trip_id", t.ID, "error", err)
	}
}

func (s *Service) emitCaptured(t *Trip, which tripstate.CaptureContext, loc CapturedLocation) {
	if s.Publisher != nil {
		ev := CaptureEvent{
			TripID:     t.ID,
			Context:    which,
			Lat:        loc.Coordinate.Lat,
			Lng:        loc.Coordinate.Lng,
			CapturedAt: time.Now(),
		}
		if err := s.Publisher.PublishCapture(ev); err != nil {
			s.log().Error("capture event publish failed", "trip_id", t.ID, "error", err)
		}
	}
	if s.Notifier != nil {
		s.Notifier.CaptureCompleted(t.ID, which, t)
	}
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
