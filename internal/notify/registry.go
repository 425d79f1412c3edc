package notify

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/trip-capture/internal/trips"
	"github.com/example/trip-capture/internal/tripstate"
)

// CaptureNotice is the sole outward event of the capture subsystem: one
// endpoint of a trip was captured and persisted.
type CaptureNotice struct {
	Type    string                   `json:"type"` // always "capture_completed"
	TripID  string                   `json:"trip_id"`
	Context tripstate.CaptureContext `json:"context"`
	Step    tripstate.Step           `json:"next_step"`
	Label   string                   `json:"next_step_label"`
}

// Session is one subscriber connection for a trip.
type Session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *Session) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Registry holds live subscriber sessions keyed by trip ID. Other screens of
// the app (status page, driver assignment) subscribe here to observe capture
// progress.
type Registry struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	sessions map[string][]*Session
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger, sessions: make(map[string][]*Session)}
}

func (r *Registry) Add(tripID string, conn *websocket.Conn) *Session {
	s := &Session{conn: conn}
	r.mu.Lock()
	r.sessions[tripID] = append(r.sessions[tripID], s)
	r.mu.Unlock()
	return s
}

func (r *Registry) Remove(tripID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.sessions[tripID]
	for i, cur := range list {
		if cur == s {
			r.sessions[tripID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.sessions[tripID]) == 0 {
		delete(r.sessions, tripID)
	}
}

// CaptureCompleted implements trips.CaptureNotifier.
func (r *Registry) CaptureCompleted(tripID string, which tripstate.CaptureContext, t *trips.Trip) {
	step := t.PermittedStep()
	notice := CaptureNotice{
		Type:    "capture_completed",
		TripID:  tripID,
		Context: which,
		Step:    step,
		Label:   step.Label(),
	}
	r.mu.RLock()
	list := append([]*Session(nil), r.sessions[tripID]...)
	r.mu.RUnlock()
	for _, s := range list {
		if err := s.send(notice); err != nil {
			r.logger.Warn("notify send failed", "trip_id", tripID, "error", err)
		}
	}
}
