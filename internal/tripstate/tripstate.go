// Package tripstate holds the trip lifecycle enum and the pure projection
// that gates which capture step the passenger may take next.
package tripstate

import (
	"errors"
	"fmt"
)

// Status is the persisted trip lifecycle phase.
type Status string

const (
	StatusWaitingInfo     Status = "waiting_info"
	StatusWaitingLocation Status = "waiting_location"
	StatusWaitingStart    Status = "waiting_start"
	StatusInTrip          Status = "in_trip"
	StatusDone            Status = "done"
	StatusCanceled        Status = "canceled"
)

var ErrUnknownStatus = errors.New("unknown trip status")

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusWaitingInfo, StatusWaitingLocation, StatusWaitingStart, StatusInTrip, StatusDone, StatusCanceled:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

func (s Status) String() string { return string(s) }

func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// Terminal reports whether the trip can no longer change phase.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusCanceled
}

// CanTransition reports whether the lifecycle permits moving from one status
// to another. The chain is linear; canceled is reachable from any
// non-terminal phase; done only from in_trip.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	if to == StatusCanceled {
		return true
	}
	switch from {
	case StatusWaitingInfo:
		return to == StatusWaitingLocation
	case StatusWaitingLocation:
		return to == StatusWaitingStart
	case StatusWaitingStart:
		return to == StatusInTrip
	case StatusInTrip:
		return to == StatusDone
	}
	return false
}

// Step is the capture step the UI should offer next.
type Step string

const (
	StepCaptureOrigin      Step = "capture_origin"
	StepCaptureDestination Step = "capture_destination"
	StepReview             Step = "review"
)

// Label is the next-step button text for the step.
func (s Step) Label() string {
	switch s {
	case StepCaptureOrigin:
		return "set pickup point"
	case StepCaptureDestination:
		return "set destination"
	default:
		return "review trip"
	}
}

// PermittedStep projects the persisted status plus the local capture flags
// onto the step the passenger is allowed to take. It is recomputed whenever
// the trip record or the flags change; there is no transition API here.
//
// Destination capture is never permitted while the origin is uncaptured,
// whatever the status says: the persisted status only distinguishes "info
// missing" from "location fully set" and cannot encode the ordering on its
// own.
func PermittedStep(status Status, originCaptured, destinationCaptured bool) Step {
	if !originCaptured {
		return StepCaptureOrigin
	}
	if !destinationCaptured {
		return StepCaptureDestination
	}
	return StepReview
}

// DestinationAllowed reports whether entering a destination capture context
// is permitted. It is false whenever the origin is uncaptured, for every
// status value.
func DestinationAllowed(status Status, originCaptured bool) bool {
	return originCaptured
}

// CaptureContext identifies which endpoint of the trip is being captured.
type CaptureContext string

const (
	ContextOrigin      CaptureContext = "origin"
	ContextDestination CaptureContext = "destination"
)

func ParseContext(s string) (CaptureContext, error) {
	switch CaptureContext(s) {
	case ContextOrigin, ContextDestination:
		return CaptureContext(s), nil
	}
	return "", fmt.Errorf("unknown capture context %q", s)
}
