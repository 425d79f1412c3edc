package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/trip-capture/internal/config"
	"github.com/example/trip-capture/internal/events"
	"github.com/example/trip-capture/internal/fare"
	"github.com/example/trip-capture/internal/geocode"
	"github.com/example/trip-capture/internal/logging"
	"github.com/example/trip-capture/internal/notify"
	"github.com/example/trip-capture/internal/payments"
	"github.com/example/trip-capture/internal/search"
	"github.com/example/trip-capture/internal/trips"
)

type Server struct {
	Trips     *trips.Service
	Geocoder  geocode.Geocoder
	Registry  *notify.Registry
	SearchCfg search.Config

	logger *slog.Logger
	mux    *mux.Router
}

// NewServer wires collaborators from configuration with sensible fallbacks:
// memory store without PG_DSN, in-process geocode cache without REDIS_ADDR,
// no event stream without KAFKA_BROKERS, no fare holds without a Stripe key.
func NewServer(cfg config.ServerConfig) *Server {
	logger := logging.NewLogger(cfg.LogLevel)

	var store trips.Store
	if cfg.PGDSN != "" {
		if ps, err := trips.NewPostgresStore(cfg.PGDSN); err == nil {
			store = ps
		} else {
			logger.Error("postgres unavailable, falling back to memory store", "error", err)
		}
	}
	if store == nil {
		store = trips.NewMemoryStore()
	}

	var cacheStore geocode.CacheStore
	if cfg.RedisAddr != "" {
		cacheStore = geocode.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword)
	} else {
		cacheStore = geocode.NewMemoryStore()
	}
	var coder geocode.Geocoder = geocode.NewHTTPGeocoder(cfg.GeocoderEndpoint, cfg.GeocoderAPIKey)
	coder = geocode.NewCached(coder, cacheStore, cfg.GeocodeCacheTTL)

	var publisher trips.CapturePublisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	var holder trips.FareHolder
	if cfg.StripeAPIKey != "" {
		holder = payments.NewStripeHolder(cfg.StripeAPIKey)
	}

	registry := notify.NewRegistry(logger)
	svc := &trips.Service{
		Store:     store,
		Holder:    holder,
		Publisher: publisher,
		Notifier:  registry,
		Fare:      fare.Estimator{BaseMinor: cfg.FareBase, PerKmMinor: cfg.FarePerKm},
		Currency:  cfg.FareCurrency,
		Logger:    logger,
	}

	s := &Server{
		Trips:    svc,
		Geocoder: coder,
		Registry: registry,
		SearchCfg: search.Config{
			MinQueryRunes:  cfg.SearchMinRunes,
			ShortDebounce:  cfg.SearchShortDebounce,
			NormalDebounce: cfg.SearchDebounce,
		},
		logger: logger,
		mux:    mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/trips", s.handleCreateTrip).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips/{trip_id}", s.handleGetTrip).Methods("GET")
	s.mux.HandleFunc("/api/v1/trips/{trip_id}/info", s.handleCompleteInfo).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips/{trip_id}/location", s.handlePutLocation).Methods("PUT")
	s.mux.HandleFunc("/api/v1/trips/{trip_id}/start", s.handleStart).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips/{trip_id}/complete", s.handleComplete).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips/{trip_id}/cancel", s.handleCancel).Methods("POST")
	s.mux.HandleFunc("/api/v1/geocode/search", s.handleGeocodeSearch).Methods("GET")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/trips/{trip_id}", s.handleSubscribe)
	s.mux.HandleFunc("/ws/trips/{trip_id}/capture/{context}", s.handleCaptureWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }
