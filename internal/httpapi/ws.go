package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/trip-capture/internal/capture"
	"github.com/example/trip-capture/internal/geo"
	"github.com/example/trip-capture/internal/geocode"
	"github.com/example/trip-capture/internal/mapview"
	"github.com/example/trip-capture/internal/search"
	"github.com/example/trip-capture/internal/trips"
	"github.com/example/trip-capture/internal/tripstate"
)

var upgrader = websocket.Upgrader{}

// clientFrame is what the map UI sends over the capture channel.
type clientFrame struct {
	Type   string          `json:"type"`
	Width  float64         `json:"width,omitempty"`
	Height float64         `json:"height,omitempty"`
	Center *geo.Coordinate `json:"center,omitempty"`
	Zoom   float64         `json:"zoom,omitempty"`
	Text   string          `json:"text,omitempty"`
	Result *geocode.Result `json:"result,omitempty"`
	Form   *capture.Form   `json:"form,omitempty"`
}

// wsConn serializes writes; callbacks and the read loop share it.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteJSON(v)
}

func (c *wsConn) sendError(msg string) {
	c.send(map[string]any{"type": "error", "message": msg})
}

// handleSubscribe attaches a read-only observer to a trip's capture events.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	tripID := mux.Vars(r)["trip_id"]
	if _, err := s.Trips.GetTrip(r.Context(), tripID); err != nil {
		s.writeError(w, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sess := s.Registry.Add(tripID, conn)
	defer s.Registry.Remove(tripID, sess)
	// drain until the client goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// handleCaptureWS hosts one interactive capture flow: a viewport mirroring
// the client's map, a search coordinator for the text box, and a capture
// session for the confirm/describe/submit protocol.
func (s *Server) handleCaptureWS(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tripID := vars["trip_id"]

	which, err := tripstate.ParseContext(vars["context"])
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	trip, err := s.Trips.GetTrip(r.Context(), tripID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	view := mapview.NewViewport()
	session, err := capture.NewSession(trip, which, view, s.Geocoder, s.Trips, s.logger)
	if err != nil {
		// destination before origin: refused structurally, not attempted
		s.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		session.Close()
		return
	}
	ws := &wsConn{conn: conn}
	defer conn.Close()
	defer session.Close()

	coordinator := search.NewCoordinator(s.Geocoder, s.SearchCfg)
	defer coordinator.Close()
	coordinator.OnResults = func(results []geocode.Result) {
		ws.send(map[string]any{"type": "results", "results": results, "open": len(results) > 0})
	}
	coordinator.OnLoading = func(v bool) {
		ws.send(map[string]any{"type": "loading", "loading": v})
	}
	session.OnStage = func(st capture.Stage) {
		ws.send(map[string]any{"type": "stage", "stage": st, "form": session.Form()})
	}
	session.OnMarker = func(anchor *geo.Coordinate) {
		ws.send(map[string]any{"type": "marker", "anchor": anchor})
	}

	ws.send(map[string]any{"type": "stage", "stage": session.Stage(), "form": session.Form()})

	ctx := context.Background()
	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		switch frame.Type {
		case "layout":
			if frame.Center == nil {
				ws.sendError("layout requires a center")
				continue
			}
			if err := view.Layout(frame.Width, frame.Height, *frame.Center, frame.Zoom); err != nil {
				ws.sendError(err.Error())
				continue
			}
			coordinator.SetBias(*frame.Center)
		case "pan":
			if frame.Center == nil {
				continue
			}
			if err := session.Pan(*frame.Center); err != nil {
				ws.sendError(err.Error())
				continue
			}
			coordinator.SetBias(*frame.Center)
		case "zoom":
			if err := view.SetZoom(frame.Zoom); err != nil {
				ws.sendError(err.Error())
			}
		case "query":
			coordinator.SetQueryText(frame.Text)
		case "select":
			if frame.Result == nil {
				continue
			}
			coordinator.SelectResult(*frame.Result)
			if view.Ready() {
				if err := view.SetCenter(frame.Result.Location); err != nil {
					ws.sendError(err.Error())
					continue
				}
				coordinator.SetBias(frame.Result.Location)
			}
		case "confirm":
			// confirm reverse-geocodes; run it off the read loop so a
			// cancel frame can still arrive. The session ignores
			// re-entrant confirms on its own.
			go func() {
				if err := session.Confirm(ctx); err != nil {
					if errors.Is(err, mapview.ErrNotReady) {
						ws.send(map[string]any{"type": "deferred", "reason": "map_not_ready"})
						return
					}
					ws.sendError(err.Error())
				}
			}()
		case "form":
			if frame.Form == nil {
				continue
			}
			if err := session.UpdateForm(*frame.Form); err != nil {
				ws.sendError(err.Error())
			}
		case "submit":
			t, err := session.Submit(ctx)
			if err != nil {
				ws.sendError(submitErrorMessage(err))
				continue
			}
			step := t.PermittedStep()
			ws.send(map[string]any{
				"type": "completed", "trip": t,
				"next_step": step, "next_step_label": step.Label(),
			})
			return
		case "cancel":
			session.Cancel()
		default:
			ws.sendError("unknown frame type " + frame.Type)
		}
	}
}

func submitErrorMessage(err error) string {
	switch {
	case errors.Is(err, capture.ErrNoCoordinate), errors.Is(err, capture.ErrWrongStage):
		return "confirm a location on the map first"
	case errors.Is(err, trips.ErrOriginRequired):
		return "set the pickup point before the destination"
	default:
		return "could not save the location, please try again"
	}
}
