package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gorilla/mux"

	"github.com/example/trip-capture/internal/geo"
	"github.com/example/trip-capture/internal/observability"
	"github.com/example/trip-capture/internal/trips"
	"github.com/example/trip-capture/internal/tripstate"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, trips.ErrTripNotFound):
		status = http.StatusNotFound
	case errors.Is(err, trips.ErrNoCoordinate), errors.Is(err, geo.ErrInvalidCoordinate):
		status = http.StatusBadRequest
	case errors.Is(err, trips.ErrOriginRequired), errors.Is(err, trips.ErrTripClosed), errors.Is(err, trips.ErrBadTransition):
		status = http.StatusConflict
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

type tripResponse struct {
	Trip  *trips.Trip    `json:"trip"`
	Step  tripstate.Step `json:"next_step"`
	Label string         `json:"next_step_label"`
}

func (s *Server) writeTrip(w http.ResponseWriter, t *trips.Trip) {
	step := t.PermittedStep()
	s.writeJSON(w, http.StatusOK, tripResponse{Trip: t, Step: step, Label: step.Label()})
}

func (s *Server) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PassengerID string `json:"passenger_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.PassengerID == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "passenger_id required"})
		return
	}
	t, err := s.Trips.CreateTrip(r.Context(), req.PassengerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeTrip(w, t)
}

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	t, err := s.Trips.GetTrip(r.Context(), mux.Vars(r)["trip_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeTrip(w, t)
}

func (s *Server) handleCompleteInfo(w http.ResponseWriter, r *http.Request) {
	t, err := s.Trips.CompleteInfo(r.Context(), mux.Vars(r)["trip_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeTrip(w, t)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	t, err := s.Trips.Start(r.Context(), mux.Vars(r)["trip_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeTrip(w, t)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	t, err := s.Trips.Complete(r.Context(), mux.Vars(r)["trip_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeTrip(w, t)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	t, err := s.Trips.Cancel(r.Context(), mux.Vars(r)["trip_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeTrip(w, t)
}

type putLocationRequest struct {
	Context     string  `json:"context"` // origin | destination, defaults to origin
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	TextAddress string  `json:"text_address"`
	PhoneNumber string  `json:"phone_number"`
	Description string  `json:"description"`
}

// handlePutLocation is the direct persistence path used by non-interactive
// clients; interactive map capture goes through the WebSocket session and
// ends in the same ApplyLocation call.
func (s *Server) handlePutLocation(w http.ResponseWriter, r *http.Request) {
	var req putLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	which := tripstate.ContextOrigin
	if req.Context != "" {
		var err error
		if which, err = tripstate.ParseContext(req.Context); err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}
	loc := trips.CapturedLocation{
		Coordinate:  &geo.Coordinate{Lat: req.Latitude, Lng: req.Longitude},
		TextAddress: req.TextAddress,
		PhoneNumber: req.PhoneNumber,
		Description: req.Description,
	}
	t, err := s.Trips.ApplyLocation(r.Context(), mux.Vars(r)["trip_id"], which, loc)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeTrip(w, t)
}

// handleGeocodeSearch proxies a one-shot forward search. The minimum-length
// floor applies here just as it does in the interactive coordinator.
func (s *Server) handleGeocodeSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if utf8.RuneCountInString(q) < s.SearchCfg.MinQueryRunes {
		observability.SearchesSuppressed.Inc()
		s.writeJSON(w, http.StatusOK, map[string]any{"results": []any{}})
		return
	}
	bias := geo.Coordinate{}
	if lat := r.URL.Query().Get("lat"); lat != "" {
		v, err := strconv.ParseFloat(lat, 64)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid lat"})
			return
		}
		bias.Lat = v
	}
	if lng := r.URL.Query().Get("lng"); lng != "" {
		v, err := strconv.ParseFloat(lng, 64)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid lng"})
			return
		}
		bias.Lng = v
	}
	if err := bias.Validate(); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	observability.SearchesIssued.Inc()
	results, err := s.Geocoder.Search(r.Context(), q, bias)
	if err != nil {
		s.writeJSON(w, http.StatusBadGateway, errorResponse{Error: "geocoding provider unavailable"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
