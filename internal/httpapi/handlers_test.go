package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/example/trip-capture/internal/fare"
	"github.com/example/trip-capture/internal/geo"
	"github.com/example/trip-capture/internal/geocode"
	"github.com/example/trip-capture/internal/logging"
	"github.com/example/trip-capture/internal/notify"
	"github.com/example/trip-capture/internal/search"
	"github.com/example/trip-capture/internal/trips"
	"github.com/example/trip-capture/internal/tripstate"
)

type stubGeocoder struct {
	searches int
	results  []geocode.Result
}

func (s *stubGeocoder) Search(ctx context.Context, term string, bias geo.Coordinate) ([]geocode.Result, error) {
	s.searches++
	return s.results, nil
}

func (s *stubGeocoder) Reverse(ctx context.Context, c geo.Coordinate) (string, error) {
	return "stub address", nil
}

func newTestServer(g *stubGeocoder) *Server {
	logger := logging.NewLogger("error")
	registry := notify.NewRegistry(logger)
	svc := &trips.Service{
		Store:    trips.NewMemoryStore(),
		Notifier: registry,
		Fare:     fare.Estimator{BaseMinor: 50000, PerKmMinor: 80000},
		Currency: "irr",
		Logger:   logger,
	}
	s := &Server{
		Trips:     svc,
		Geocoder:  g,
		Registry:  registry,
		SearchCfg: search.Config{MinQueryRunes: 3},
		logger:    logger,
		mux:       mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	out := map[string]json.RawMessage{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func createReadyTrip(t *testing.T, s *Server) string {
	t.Helper()
	w, out := doJSON(t, s, "POST", "/api/v1/trips", map[string]string{"passenger_id": "p1"})
	if w.Code != http.StatusOK {
		t.Fatalf("create trip: %d %s", w.Code, w.Body.String())
	}
	var tr trips.Trip
	if err := json.Unmarshal(out["trip"], &tr); err != nil {
		t.Fatal(err)
	}
	if w, _ := doJSON(t, s, "POST", "/api/v1/trips/"+tr.ID+"/info", nil); w.Code != http.StatusOK {
		t.Fatalf("complete info: %d", w.Code)
	}
	return tr.ID
}

func TestCreateTripStartsAtOriginStep(t *testing.T) {
	s := newTestServer(&stubGeocoder{})
	_, out := doJSON(t, s, "POST", "/api/v1/trips", map[string]string{"passenger_id": "p1"})
	var step tripstate.Step
	if err := json.Unmarshal(out["next_step"], &step); err != nil {
		t.Fatal(err)
	}
	if step != tripstate.StepCaptureOrigin {
		t.Fatalf("next_step = %s", step)
	}
}

func TestPutLocationFlow(t *testing.T) {
	s := newTestServer(&stubGeocoder{})
	id := createReadyTrip(t, s)

	// destination before origin is refused
	w, _ := doJSON(t, s, "PUT", "/api/v1/trips/"+id+"/location", putLocationRequest{
		Context: "destination", Latitude: 35.71, Longitude: 51.41,
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("destination-first: %d", w.Code)
	}

	// invalid coordinate rejected
	w, _ = doJSON(t, s, "PUT", "/api/v1/trips/"+id+"/location", putLocationRequest{
		Context: "origin", Latitude: 95, Longitude: 51.41,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid coordinate: %d", w.Code)
	}

	// origin then destination advances to review
	w, _ = doJSON(t, s, "PUT", "/api/v1/trips/"+id+"/location", putLocationRequest{
		Context: "origin", Latitude: 35.70, Longitude: 51.40, TextAddress: "a", PhoneNumber: "0912",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("origin: %d %s", w.Code, w.Body.String())
	}
	w, out := doJSON(t, s, "PUT", "/api/v1/trips/"+id+"/location", putLocationRequest{
		Context: "destination", Latitude: 35.75, Longitude: 51.45,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("destination: %d %s", w.Code, w.Body.String())
	}
	var step tripstate.Step
	if err := json.Unmarshal(out["next_step"], &step); err != nil {
		t.Fatal(err)
	}
	if step != tripstate.StepReview {
		t.Fatalf("next_step = %s", step)
	}
	var tr trips.Trip
	if err := json.Unmarshal(out["trip"], &tr); err != nil {
		t.Fatal(err)
	}
	if tr.Status != tripstate.StatusWaitingStart {
		t.Fatalf("status = %s", tr.Status)
	}
}

func TestGetUnknownTrip(t *testing.T) {
	s := newTestServer(&stubGeocoder{})
	w, _ := doJSON(t, s, "GET", "/api/v1/trips/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGeocodeSearchMinLength(t *testing.T) {
	g := &stubGeocoder{results: []geocode.Result{{Title: "x"}}}
	s := newTestServer(g)

	w, _ := doJSON(t, s, "GET", "/api/v1/geocode/search?q="+`%D8%A2%D8%B2`, nil) // "آز", 2 runes
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if g.searches != 0 {
		t.Fatalf("short query reached the provider: %d calls", g.searches)
	}

	w, _ = doJSON(t, s, "GET", "/api/v1/geocode/search?q=vanak&lat=35.7&lng=51.4", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if g.searches != 1 {
		t.Fatalf("expected 1 provider call, got %d", g.searches)
	}
}

func TestGeocodeSearchRejectsBadBias(t *testing.T) {
	g := &stubGeocoder{}
	s := newTestServer(g)

	for _, query := range []string{
		"q=vanak&lat=999&lng=51.4",
		"q=vanak&lat=35.7&lng=181",
		"q=vanak&lat=abc",
	} {
		w, _ := doJSON(t, s, "GET", "/api/v1/geocode/search?"+query, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", query, w.Code)
		}
	}
	if g.searches != 0 {
		t.Fatalf("bad bias reached the provider: %d calls", g.searches)
	}
}
