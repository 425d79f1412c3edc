// Package capture orchestrates the pick-confirm-describe-submit sequence
// for one endpoint of a trip.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/example/trip-capture/internal/geo"
	"github.com/example/trip-capture/internal/mapview"
	"github.com/example/trip-capture/internal/observability"
	"github.com/example/trip-capture/internal/projector"
	"github.com/example/trip-capture/internal/trips"
	"github.com/example/trip-capture/internal/tripstate"
)

// Stage is the session's position in the capture protocol.
type Stage string

const (
	StageSelecting  Stage = "selecting"
	StageDescribing Stage = "describing"
	StageSubmitting Stage = "submitting"
	StageDone       Stage = "done"
)

var (
	ErrWrongStage   = errors.New("operation not valid in current stage")
	ErrSessionDone  = errors.New("capture session already completed")
	ErrNoCoordinate = errors.New("no confirmed coordinate")
)

// Form is the passenger-editable location description.
type Form struct {
	Address     string `json:"address"`
	PhoneNumber string `json:"phone_number"`
	Description string `json:"description"`
}

// Submitter persists a finished capture. Implemented by trips.Service.
type Submitter interface {
	ApplyLocation(ctx context.Context, tripID string, which tripstate.CaptureContext, loc trips.CapturedLocation) (*trips.Trip, error)
}

// Geocoder is the reverse-lookup subset the session needs.
type Geocoder interface {
	Reverse(ctx context.Context, c geo.Coordinate) (string, error)
}

// Session drives one capture flow. It is the only component that calls the
// trip store (through Submitter); the coordinator and projector stay pure.
type Session struct {
	TripID string
	Which  tripstate.CaptureContext

	// OnStage and OnMarker push protocol progress to the transport layer.
	// Invoked without the internal lock held; may be nil.
	OnStage  func(Stage)
	OnMarker func(anchor *geo.Coordinate)

	view     mapview.View
	geocoder Geocoder
	submit   Submitter
	logger   *slog.Logger

	mu         sync.Mutex
	stage      Stage
	confirming bool // re-entrancy guard for Confirm
	coordinate *geo.Coordinate
	marker     *geo.Coordinate
	form       Form
	persisted  Form // the trip's previously saved values, restored on cancel
}

// NewSession opens a capture flow for one endpoint of the trip. Opening a
// destination session without a captured origin is refused structurally.
func NewSession(t *trips.Trip, which tripstate.CaptureContext, view mapview.View, g Geocoder, submit Submitter, logger *slog.Logger) (*Session, error) {
	if which == tripstate.ContextDestination && !tripstate.DestinationAllowed(t.Status, t.Origin.Captured()) {
		return nil, trips.ErrOriginRequired
	}
	prior := t.Origin
	if which == tripstate.ContextDestination {
		prior = t.Destination
	}
	persisted := Form{Address: prior.TextAddress, PhoneNumber: prior.PhoneNumber, Description: prior.Description}
	if logger == nil {
		logger = slog.Default()
	}
	observability.CaptureSessionsOpen.Inc()
	return &Session{
		TripID:    t.ID,
		Which:     which,
		view:      view,
		geocoder:  g,
		submit:    submit,
		logger:    logger,
		stage:     StageSelecting,
		form:      persisted,
		persisted: persisted,
	}, nil
}

func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

func (s *Session) Form() Form {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form
}

// Marker returns the glyph anchor coordinate, nil when nothing is placed.
func (s *Session) Marker() *geo.Coordinate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.marker == nil {
		return nil
	}
	cp := *s.marker
	return &cp
}

// Pan records a map drag. Visual feedback only: no lookups, no data effects.
func (s *Session) Pan(center geo.Coordinate) error {
	return s.view.SetCenter(center)
}

// Confirm captures the coordinate under the marker tip and advances to the
// describing stage. A second call while one is in flight is ignored. A
// not-yet-laid-out map defers the whole operation with ErrNotReady.
func (s *Session) Confirm(ctx context.Context) error {
	s.mu.Lock()
	if s.stage == StageDone {
		s.mu.Unlock()
		return ErrSessionDone
	}
	if s.confirming || s.stage != StageSelecting {
		// ignored, not an error: double-tap while in flight
		s.mu.Unlock()
		return nil
	}
	if !s.view.Ready() {
		s.mu.Unlock()
		return mapview.ErrNotReady
	}
	s.confirming = true
	s.mu.Unlock()

	coord, err := projector.ResolveCaptureCoordinate(s.view, projector.MarkerTipOffsetY)
	if err != nil {
		s.mu.Lock()
		s.confirming = false
		s.mu.Unlock()
		return err
	}
	anchor, err := projector.GlyphPlacement(s.view, coord, projector.MarkerAnchorOffsetY)
	if err != nil {
		s.mu.Lock()
		s.confirming = false
		s.mu.Unlock()
		return err
	}

	// reverse-geocode failure degrades to an empty address; it never blocks
	// the passenger from describing the location by hand
	address, err := s.geocoder.Reverse(ctx, coord)
	if err != nil {
		observability.ReverseGeocodeFailures.Inc()
		s.logger.Warn("reverse geocode failed", "trip_id", s.TripID, "error", err)
		address = ""
	}

	s.mu.Lock()
	s.confirming = false
	s.coordinate = &coord
	s.marker = &anchor
	s.form.Address = address
	s.stage = StageDescribing
	s.mu.Unlock()

	observability.CapturesConfirmed.Inc()
	s.notifyMarker(&anchor)
	s.notifyStage(StageDescribing)
	return nil
}

// UpdateForm edits the staged description. Describing stage only; no
// network traffic happens here.
func (s *Session) UpdateForm(f Form) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != StageDescribing {
		return ErrWrongStage
	}
	s.form = f
	return nil
}

// Submit persists the capture. A missing coordinate is rejected before any
// I/O. On failure the stage stays at describing with the form intact so the
// passenger can retry without data loss.
func (s *Session) Submit(ctx context.Context) (*trips.Trip, error) {
	s.mu.Lock()
	if s.stage == StageDone {
		s.mu.Unlock()
		return nil, ErrSessionDone
	}
	if s.stage != StageDescribing {
		s.mu.Unlock()
		return nil, ErrWrongStage
	}
	if s.coordinate == nil {
		s.mu.Unlock()
		return nil, ErrNoCoordinate
	}
	coord := *s.coordinate
	form := s.form
	s.stage = StageSubmitting
	s.mu.Unlock()
	s.notifyStage(StageSubmitting)

	loc := trips.CapturedLocation{
		Coordinate:  &coord,
		TextAddress: form.Address,
		PhoneNumber: form.PhoneNumber,
		Description: form.Description,
	}
	t, err := s.submit.ApplyLocation(ctx, s.TripID, s.Which, loc)
	if err != nil {
		s.mu.Lock()
		s.stage = StageDescribing
		s.mu.Unlock()
		s.notifyStage(StageDescribing)
		return nil, err
	}

	s.mu.Lock()
	s.stage = StageDone
	s.mu.Unlock()
	observability.CaptureSessionsOpen.Dec()
	s.notifyStage(StageDone)
	return t, nil
}

// Cancel abandons a confirm: the marker is removed, the form returns to the
// trip's previously persisted values, and the session is back to selecting.
// Only the describing stage can be abandoned; a cancel racing an in-flight
// submit is ignored rather than fighting the submit's own stage changes.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.stage != StageDescribing {
		s.mu.Unlock()
		return
	}
	s.coordinate = nil
	s.marker = nil
	s.form = s.persisted
	s.stage = StageSelecting
	s.mu.Unlock()
	s.notifyMarker(nil)
	s.notifyStage(StageSelecting)
}

// Close tears the session down regardless of stage.
func (s *Session) Close() {
	s.mu.Lock()
	if s.stage == StageDone {
		s.mu.Unlock()
		return
	}
	s.stage = StageDone
	s.coordinate = nil
	s.marker = nil
	s.mu.Unlock()
	observability.CaptureSessionsOpen.Dec()
}

func (s *Session) notifyStage(st Stage) {
	if s.OnStage != nil {
		s.OnStage(st)
	}
}

func (s *Session) notifyMarker(anchor *geo.Coordinate) {
	if s.OnMarker != nil {
		s.OnMarker(anchor)
	}
}
