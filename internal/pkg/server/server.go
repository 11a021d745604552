package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/anicoll/homgar-integration/internal/pkg/model"
	"github.com/anicoll/homgar-integration/internal/pkg/poller"
	"github.com/anicoll/homgar-integration/pkg/sockets"
)

var errBadTimeRange = errors.New("from and to must both be RFC3339 timestamps")

type topologySource interface {
	Topology() model.Topology
	Available() bool
	State() poller.State
}

type readingStore interface {
	GetLatestProperties(ctx context.Context) (model.Properties, error)
	GetProperties(ctx context.Context, identifier, slug string, from, to *time.Time) (model.Properties, error)
}

// TopologyView is the JSON body of the topology endpoint and of every websocket message.
type TopologyView struct {
	Available bool         `json:"available"`
	State     string       `json:"state"`
	Nodes     []model.Node `json:"nodes"`
}

type HealthView struct {
	Status    string `json:"status"`
	Available bool   `json:"available"`
	State     string `json:"state"`
}

type server struct {
	source   topologySource
	readings readingStore
	gatherer prometheus.Gatherer
	hub      *sockets.Hub
	logger   *zap.Logger
}

type Option func(s *server)

// WithReadings enables /api/readings.
func WithReadings(r readingStore) Option {
	return func(s *server) {
		s.readings = r
	}
}

func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *server) {
		s.gatherer = g
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *server) {
		s.logger = l
	}
}

func New(source topologySource, opts ...Option) *server {
	s := &server{
		source:   source,
		gatherer: prometheus.DefaultGatherer,
		logger:   zap.L(), // returns the global logger.
	}
	for _, o := range opts {
		o(s)
	}
	s.hub = sockets.New(sockets.WithLogger(s.logger), sockets.OnConnected(s.greet))
	return s
}

func (s *server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/topology", s.GetTopology).Methods(http.MethodGet)
	r.HandleFunc("/api/health", s.GetHealth).Methods(http.MethodGet)
	if s.readings != nil {
		r.HandleFunc("/api/readings", s.GetReadings).Methods(http.MethodGet)
	}
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.Handle("/ws", s.hub).Methods(http.MethodGet)
	r.Use(LoggingMiddleware)
	return r
}

// Broadcast pushes the current topology to every websocket client.
func (s *server) Broadcast() error {
	payload, err := json.Marshal(s.view())
	if err != nil {
		return err
	}
	return s.hub.Broadcast(payload)
}

func (s *server) Close() error {
	return s.hub.Close()
}

func (s *server) GetTopology(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.view())
}

func (s *server) GetHealth(w http.ResponseWriter, _ *http.Request) {
	health := HealthView{
		Status:    "ok",
		Available: s.source.Available(),
		State:     s.source.State().String(),
	}
	status := http.StatusOK
	if !health.Available {
		health.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}

// GetReadings returns the latest stored value of every sensor, or the history of
// one sensor when identifier and slug are given.
func (s *server) GetReadings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	identifier, slug := q.Get("identifier"), q.Get("slug")
	if identifier == "" || slug == "" {
		props, err := s.readings.GetLatestProperties(r.Context())
		if err != nil {
			s.handleError(w, http.StatusInternalServerError, err)
			return
		}
		s.writeJSON(w, http.StatusOK, props)
		return
	}

	from, to, err := timeRange(q.Get("from"), q.Get("to"))
	if err != nil {
		s.handleError(w, http.StatusBadRequest, err)
		return
	}
	props, err := s.readings.GetProperties(r.Context(), identifier, slug, from, to)
	if err != nil {
		s.handleError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, props)
}

func (s *server) view() TopologyView {
	return TopologyView{
		Available: s.source.Available(),
		State:     s.source.State().String(),
		Nodes:     s.source.Topology().Nodes(),
	}
}

func (s *server) greet(ws *websocket.Conn) {
	if err := ws.WriteJSON(s.view()); err != nil {
		s.logger.Debug("failed to send initial topology", zap.Error(err))
	}
}

func timeRange(from, to string) (*time.Time, *time.Time, error) {
	if from == "" && to == "" {
		return nil, nil, nil
	}
	f, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return nil, nil, errBadTimeRange
	}
	t, err := time.Parse(time.RFC3339, to)
	if err != nil {
		return nil, nil, errBadTimeRange
	}
	return &f, &t, nil
}

func (s *server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to write response", zap.Error(err))
	}
}

func (s *server) handleError(w http.ResponseWriter, status int, err error) {
	s.logger.Warn("request failed", zap.Int("status", status), zap.Error(err))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, werr := w.Write([]byte(err.Error())); werr != nil {
		s.logger.Error("failed to write error response", zap.Error(werr))
	}
}
