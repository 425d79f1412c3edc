package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/trip-capture/internal/geo"
	"github.com/example/trip-capture/internal/mapview"
	"github.com/example/trip-capture/internal/trips"
	"github.com/example/trip-capture/internal/tripstate"
)

type fakeReverser struct {
	mu    sync.Mutex
	addr  string
	err   error
	block chan struct{} // when non-nil, Reverse waits on it
	calls int
}

func (f *fakeReverser) Reverse(ctx context.Context, c geo.Coordinate) (string, error) {
	f.mu.Lock()
	f.calls++
	addr, err, block := f.addr, f.err, f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return addr, err
}

type fakeSubmitter struct {
	mu    sync.Mutex
	err   error
	block chan struct{} // when non-nil, ApplyLocation waits on it
	calls int
	last  trips.CapturedLocation
}

func (f *fakeSubmitter) ApplyLocation(ctx context.Context, tripID string, which tripstate.CaptureContext, loc trips.CapturedLocation) (*trips.Trip, error) {
	f.mu.Lock()
	f.calls++
	f.last = loc
	err, block := f.err, f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	t := &trips.Trip{ID: tripID, Status: tripstate.StatusWaitingLocation}
	if which == tripstate.ContextDestination {
		t.Destination = loc
	} else {
		t.Origin = loc
	}
	return t, nil
}

func readyView(t *testing.T) *mapview.Viewport {
	t.Helper()
	v := mapview.NewViewport()
	if err := v.Layout(400, 700, geo.Coordinate{Lat: 35.7, Lng: 51.4}, 15); err != nil {
		t.Fatal(err)
	}
	return v
}

func originTrip() *trips.Trip {
	return &trips.Trip{
		ID:     "t1",
		Status: tripstate.StatusWaitingLocation,
		Origin: trips.CapturedLocation{
			TextAddress: "saved address",
			PhoneNumber: "0912",
			Description: "second gate",
		},
	}
}

func newTestSession(t *testing.T, view mapview.View, r *fakeReverser, sub *fakeSubmitter) *Session {
	t.Helper()
	s, err := NewSession(originTrip(), tripstate.ContextOrigin, view, r, sub, nil)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestDestinationSessionRequiresOrigin(t *testing.T) {
	trip := &trips.Trip{ID: "t1", Status: tripstate.StatusWaitingLocation}
	_, err := NewSession(trip, tripstate.ContextDestination, readyView(t), &fakeReverser{}, &fakeSubmitter{}, nil)
	if !errors.Is(err, trips.ErrOriginRequired) {
		t.Fatalf("expected ErrOriginRequired, got %v", err)
	}

	trip.Origin.Coordinate = &geo.Coordinate{Lat: 35.7, Lng: 51.4}
	if _, err := NewSession(trip, tripstate.ContextDestination, readyView(t), &fakeReverser{}, &fakeSubmitter{}, nil); err != nil {
		t.Fatalf("unexpected error with origin captured: %v", err)
	}
}

func TestConfirmDefersUntilMapReady(t *testing.T) {
	s := newTestSession(t, mapview.NewViewport(), &fakeReverser{}, &fakeSubmitter{})
	err := s.Confirm(context.Background())
	if !errors.Is(err, mapview.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if s.Stage() != StageSelecting {
		t.Fatalf("stage moved to %s on a deferred confirm", s.Stage())
	}
}

func TestConfirmResolvesAndDescribes(t *testing.T) {
	view := readyView(t)
	r := &fakeReverser{addr: "Azadi Square, Tehran"}
	s := newTestSession(t, view, r, &fakeSubmitter{})

	if err := s.Confirm(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Stage() != StageDescribing {
		t.Fatalf("stage = %s", s.Stage())
	}
	if got := s.Form().Address; got != "Azadi Square, Tehran" {
		t.Fatalf("address = %q", got)
	}
	if s.Marker() == nil {
		t.Fatal("no marker placed")
	}
}

func TestConfirmReverseFailureDegrades(t *testing.T) {
	r := &fakeReverser{err: errors.New("provider down")}
	s := newTestSession(t, readyView(t), r, &fakeSubmitter{})
	if err := s.Confirm(context.Background()); err != nil {
		t.Fatalf("reverse failure must not fail the confirm: %v", err)
	}
	if s.Stage() != StageDescribing {
		t.Fatalf("stage = %s, want describing despite reverse failure", s.Stage())
	}
	if got := s.Form().Address; got != "" {
		t.Fatalf("address = %q, want empty placeholder", got)
	}
}

func TestConfirmReentrancyIgnored(t *testing.T) {
	r := &fakeReverser{addr: "a", block: make(chan struct{})}
	s := newTestSession(t, readyView(t), r, &fakeSubmitter{})

	done := make(chan error, 1)
	go func() { done <- s.Confirm(context.Background()) }()

	// wait until the first confirm is inside the reverse lookup
	deadline := time.Now().Add(2 * time.Second)
	for {
		r.mu.Lock()
		n := r.calls
		r.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first confirm never reached reverse lookup")
		}
		time.Sleep(2 * time.Millisecond)
	}

	if err := s.Confirm(context.Background()); err != nil {
		t.Fatalf("second confirm should be silently ignored, got %v", err)
	}
	close(r.block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls != 1 {
		t.Fatalf("re-entrant confirm reached the geocoder: %d calls", r.calls)
	}
}

func TestSubmitBeforeConfirmRejected(t *testing.T) {
	sub := &fakeSubmitter{}
	s := newTestSession(t, readyView(t), &fakeReverser{}, sub)
	if _, err := s.Submit(context.Background()); !errors.Is(err, ErrWrongStage) {
		t.Fatalf("expected ErrWrongStage, got %v", err)
	}
	if sub.calls != 0 {
		t.Fatal("submit reached persistence without a coordinate")
	}
}

func TestSubmitFailureKeepsForm(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("503 from api")}
	s := newTestSession(t, readyView(t), &fakeReverser{addr: "x"}, sub)
	if err := s.Confirm(context.Background()); err != nil {
		t.Fatal(err)
	}
	form := Form{Address: "edited", PhoneNumber: "0935", Description: "third floor"}
	if err := s.UpdateForm(form); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Submit(context.Background()); err == nil {
		t.Fatal("expected submit error")
	}
	if s.Stage() != StageDescribing {
		t.Fatalf("stage = %s, want describing after failure", s.Stage())
	}
	if s.Form() != form {
		t.Fatalf("form lost on failure: %+v", s.Form())
	}

	// retry succeeds without re-entering data
	sub.mu.Lock()
	sub.err = nil
	sub.mu.Unlock()
	tr, err := s.Submit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tr.Origin.PhoneNumber != "0935" {
		t.Fatalf("persisted %+v", tr.Origin)
	}
	if s.Stage() != StageDone {
		t.Fatalf("stage = %s", s.Stage())
	}
}

func TestCancelRestoresPersistedValues(t *testing.T) {
	s := newTestSession(t, readyView(t), &fakeReverser{addr: "fresh"}, &fakeSubmitter{})
	if err := s.Confirm(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateForm(Form{Address: "scratch", PhoneNumber: "000", Description: "tmp"}); err != nil {
		t.Fatal(err)
	}
	s.Cancel()
	if s.Stage() != StageSelecting {
		t.Fatalf("stage = %s", s.Stage())
	}
	if s.Marker() != nil {
		t.Fatal("marker not removed on cancel")
	}
	got := s.Form()
	want := Form{Address: "saved address", PhoneNumber: "0912", Description: "second gate"}
	if got != want {
		t.Fatalf("form = %+v, want previously persisted values", got)
	}
}

func TestCancelIgnoredDuringSubmit(t *testing.T) {
	sub := &fakeSubmitter{block: make(chan struct{})}
	s := newTestSession(t, readyView(t), &fakeReverser{addr: "a"}, sub)
	if err := s.Confirm(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background())
		done <- err
	}()

	// wait until the submit is in flight
	deadline := time.Now().Add(2 * time.Second)
	for s.Stage() != StageSubmitting {
		if time.Now().After(deadline) {
			t.Fatal("submit never entered the submitting stage")
		}
		time.Sleep(2 * time.Millisecond)
	}

	s.Cancel()
	if s.Stage() != StageSubmitting {
		t.Fatalf("cancel during submit moved stage to %s", s.Stage())
	}

	close(sub.block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if s.Stage() != StageDone {
		t.Fatalf("stage = %s after submit completed", s.Stage())
	}
}

func TestUpdateFormOnlyWhileDescribing(t *testing.T) {
	s := newTestSession(t, readyView(t), &fakeReverser{}, &fakeSubmitter{})
	if err := s.UpdateForm(Form{Address: "x"}); !errors.Is(err, ErrWrongStage) {
		t.Fatalf("expected ErrWrongStage, got %v", err)
	}
}
