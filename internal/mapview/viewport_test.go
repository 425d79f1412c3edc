package mapview

import (
	"errors"
	"math"
	"testing"

	"github.com/example/trip-capture/internal/geo"
)

func TestViewportNotReady(t *testing.T) {
	v := NewViewport()
	if v.Ready() {
		t.Fatal("fresh viewport should not be ready")
	}
	if _, err := v.Project(geo.Coordinate{Lat: 35.7, Lng: 51.4}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if _, err := v.Unproject(geo.Pixel{X: 10, Y: 10}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestProjectCenterIsScreenCenter(t *testing.T) {
	v := NewViewport()
	center := geo.Coordinate{Lat: 35.7, Lng: 51.4}
	if err := v.Layout(400, 700, center, 15); err != nil {
		t.Fatal(err)
	}
	p, err := v.Project(center)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(p.X-200) > 1e-6 || math.Abs(p.Y-350) > 1e-6 {
		t.Fatalf("center projected to (%f,%f), want (200,350)", p.X, p.Y)
	}
}

func TestProjectUnprojectRoundTrip(t *testing.T) {
	v := NewViewport()
	if err := v.Layout(400, 700, geo.Coordinate{Lat: 35.7, Lng: 51.4}, 16); err != nil {
		t.Fatal(err)
	}
	cases := []geo.Coordinate{
		{Lat: 35.7, Lng: 51.4},
		{Lat: 35.6997, Lng: 51.3380},
		{Lat: 35.71, Lng: 51.42},
	}
	for _, c := range cases {
		p, err := v.Project(c)
		if err != nil {
			t.Fatalf("project %v: %v", c, err)
		}
		back, err := v.Unproject(p)
		if err != nil {
			t.Fatalf("unproject %v: %v", p, err)
		}
		if math.Abs(back.Lat-c.Lat) > 1e-9 || math.Abs(back.Lng-c.Lng) > 1e-9 {
			t.Fatalf("round trip drift: %v -> %v", c, back)
		}
	}
}

func TestProjectRejectsInvalidCoordinate(t *testing.T) {
	v := NewViewport()
	if err := v.Layout(400, 700, geo.Coordinate{Lat: 35.7, Lng: 51.4}, 15); err != nil {
		t.Fatal(err)
	}
	if _, err := v.Project(geo.Coordinate{Lat: 120, Lng: 51.4}); !errors.Is(err, geo.ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
	}
}
