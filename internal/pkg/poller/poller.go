// Package poller turns rate-limited vendor calls into a published topology and
// tracks whether the vendor is currently reachable.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/homgar-integration/internal/pkg/homgar"
	"github.com/anicoll/homgar-integration/internal/pkg/model"
	"github.com/anicoll/homgar-integration/internal/pkg/topology"
)

const DefaultMinInterval = 120 * time.Second

type State int32

const (
	StateIdle State = iota
	StateRefreshing
	StateCooldown
)

func (s State) String() string {
	switch s {
	case StateRefreshing:
		return "refreshing"
	case StateCooldown:
		return "cooldown"
	default:
		return "idle"
	}
}

type api interface {
	EnsureLoggedIn(ctx context.Context, username, password string) error
	ListHomes(ctx context.Context) ([]model.Home, error)
	ListDevices(ctx context.Context, hid int64) ([]model.Hub, error)
	GetDeviceStatus(ctx context.Context, hub *model.Hub) error
	ResetSession()
}

type recorder interface {
	PollSkipped()
	PollFinished(d time.Duration, err error)
	SetAvailable(available bool)
	SetSubDevices(n int)
}

type service struct {
	api         api
	creds       model.Credentials
	cache       *topology.Cache
	minInterval time.Duration
	now         func() time.Time
	logger      *zap.Logger
	metrics     recorder

	mu        sync.Mutex   // held for the whole Refreshing state
	lastPoll  atomic.Int64 // unix nanos of the last finished refresh, 0 before the first
	state     atomic.Int32
	available atomic.Bool
}

type Option func(s *service)

func WithMinInterval(d time.Duration) Option {
	return func(s *service) {
		s.minInterval = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *service) {
		s.logger = l
	}
}

func WithMetrics(r recorder) Option {
	return func(s *service) {
		s.metrics = r
	}
}

func WithCache(c *topology.Cache) Option {
	return func(s *service) {
		s.cache = c
	}
}

func New(a api, creds model.Credentials, opts ...Option) *service {
	s := &service{
		api:         a,
		creds:       creds,
		cache:       topology.New(),
		minInterval: DefaultMinInterval,
		now:         time.Now,
		logger:      zap.L(), // returns the global logger.
		metrics:     nopRecorder{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Topology is the last complete snapshot, empty until the first successful poll.
func (s *service) Topology() model.Topology {
	return s.cache.Snapshot()
}

func (s *service) Available() bool {
	return s.available.Load()
}

func (s *service) State() State {
	st := State(s.state.Load())
	if st == StateCooldown && !s.inCooldown() {
		return StateIdle
	}
	return st
}

// Authenticate logs in eagerly, it is used to validate credentials.
func (s *service) Authenticate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.api.EnsureLoggedIn(ctx, s.creds.Username, s.creds.Password); err != nil {
		s.logger.Error("error authenticating to homgar api", zap.Error(err))
		s.markUnavailable()
		return err
	}
	s.setAvailable(true)
	return nil
}

// Poll refreshes the topology unless the previous refresh finished less than the
// minimum interval ago or another refresh is in flight; both cases return false, nil.
// A failed refresh keeps the previous topology, marks the vendor unavailable,
// drops the session and still starts the cooldown.
func (s *service) Poll(ctx context.Context) (bool, error) {
	if !s.mu.TryLock() {
		s.logger.Debug("poll already in flight, skipping")
		s.metrics.PollSkipped()
		return false, nil
	}
	defer s.mu.Unlock()

	if s.inCooldown() {
		s.metrics.PollSkipped()
		return false, nil
	}

	s.logger.Debug("polling homgar api")
	s.state.Store(int32(StateRefreshing))
	start := time.Now()
	next, err := s.refresh(ctx)
	s.metrics.PollFinished(time.Since(start), err)
	s.lastPoll.Store(s.now().UnixNano())
	s.state.Store(int32(StateCooldown))

	if err != nil {
		s.logger.Error("error polling homgar api", zap.Error(err))
		s.markUnavailable()
		return true, err
	}

	s.cache.Replace(next)
	s.metrics.SetSubDevices(len(next.Nodes()))
	s.setAvailable(true)
	return true, nil
}

// refresh builds a new topology from scratch. Nothing is published from here.
func (s *service) refresh(ctx context.Context) (model.Topology, error) {
	if err := s.api.EnsureLoggedIn(ctx, s.creds.Username, s.creds.Password); err != nil {
		return nil, err
	}

	homes, err := s.api.ListHomes(ctx)
	if err != nil {
		return nil, err
	}

	next := model.Topology{}
	for _, home := range homes {
		s.logger.Debug("home", zap.Int64("hid", home.HID), zap.String("name", home.Name))
		hubs, err := s.api.ListDevices(ctx, home.HID)
		if errors.Is(err, homgar.ErrNotFound) {
			s.logger.Warn("home vanished during poll, dropping it", zap.Int64("hid", home.HID), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		next.AddHome(home.HID)

		for i := range hubs {
			hub := &hubs[i]
			s.logger.Debug("hub", zap.Int64("hid", home.HID), zap.Int64("mid", hub.MID), zap.String("name", hub.Name))
			err := s.api.GetDeviceStatus(ctx, hub)
			if errors.Is(err, homgar.ErrNotFound) {
				s.logger.Warn("hub vanished during poll, dropping it", zap.Int64("hid", home.HID), zap.Int64("mid", hub.MID), zap.Error(err))
				continue
			}
			if err != nil {
				return nil, err
			}
			for _, d := range hub.SubDevices {
				s.logger.Debug("sub-device", zap.Int64("mid", hub.MID), zap.Int("address", d.Address), zap.String("name", d.Name), zap.Stringer("kind", d.Kind))
			}
			next.AddHub(*hub)
		}
	}
	return next, nil
}

func (s *service) inCooldown() bool {
	last := s.lastPoll.Load()
	return last != 0 && s.now().Sub(time.Unix(0, last)) < s.minInterval
}

func (s *service) markUnavailable() {
	s.setAvailable(false)
	s.api.ResetSession()
}

func (s *service) setAvailable(v bool) {
	s.available.Store(v)
	s.metrics.SetAvailable(v)
}

type nopRecorder struct{}

func (nopRecorder) PollSkipped() {}

func (nopRecorder) PollFinished(time.Duration, error) {}

func (nopRecorder) SetAvailable(bool) {}

func (nopRecorder) SetSubDevices(int) {}
