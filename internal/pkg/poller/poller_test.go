package poller

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/anicoll/homgar-integration/internal/pkg/homgar"
	"github.com/anicoll/homgar-integration/internal/pkg/model"
)

var readingTime = time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedAPI serves 1 home, 1 hub and 2 water flow meters with fixed readings.
func scriptedAPI() *MockAPI {
	return &MockAPI{
		ListHomesFunc: func(context.Context) ([]model.Home, error) {
			return []model.Home{{HID: 1, Name: "Garden"}}, nil
		},
		ListDevicesFunc: func(_ context.Context, hid int64) ([]model.Hub, error) {
			return []model.Hub{{
				HID:  hid,
				MID:  100,
				Name: "Mini Box",
				SubDevices: []model.SubDevice{
					{Address: 2, Name: "Front", Kind: model.KindWaterFlowMeter},
					{Address: 3, Name: "Back", Kind: model.KindWaterFlowMeter},
				},
			}}, nil
		},
		GetDeviceStatusFunc: func(_ context.Context, hub *model.Hub) error {
			usage := map[int]float64{2: 1534.5, 3: 20.25}
			rssi := map[int]int{2: -62, 3: -71}
			for i := range hub.SubDevices {
				d := &hub.SubDevices[i]
				d.Reading = model.Reading{
					Reported:  true,
					Timestamp: readingTime,
					RFRSSI:    rssi[d.Address],
					Flow:      &model.FlowReading{TotalUsage: usage[d.Address]},
				}
			}
			return nil
		},
	}
}

func newTestService(t *testing.T, a api, clock *fakeClock, opts ...Option) *service {
	t.Helper()
	opts = append([]Option{
		WithClock(clock.Now),
		WithLogger(zaptest.NewLogger(t)),
	}, opts...)
	return New(a, model.Credentials{Username: "user@example.com", Password: "password"}, opts...)
}

func snapshotJSON(t *testing.T, s *service) string {
	t.Helper()
	data, err := json.Marshal(s.Topology())
	require.NoError(t, err)
	return string(data)
}

func TestPoll_RoundTrip(t *testing.T) {
	mock := scriptedAPI()
	var gotUser, gotPass string
	mock.EnsureLoggedInFunc = func(_ context.Context, u, p string) error {
		gotUser, gotPass = u, p
		return nil
	}
	s := newTestService(t, mock, newFakeClock())

	assert.Empty(t, s.Topology())
	assert.False(t, s.Available())
	assert.Equal(t, StateIdle, s.State())

	refreshed, err := s.Poll(context.Background())
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.True(t, s.Available())
	assert.Equal(t, "user@example.com", gotUser)
	assert.Equal(t, "password", gotPass)

	topo := s.Topology()
	front, ok := topo.Lookup(1, 100, 2)
	require.True(t, ok)
	flow, ok := front.FlowReading()
	require.True(t, ok)
	assert.Equal(t, 1534.5, flow.TotalUsage)
	assert.Equal(t, -62, front.Reading.RFRSSI)
	assert.True(t, readingTime.Equal(front.Reading.Timestamp))

	back, ok := topo.Lookup(1, 100, 3)
	require.True(t, ok)
	flow, ok = back.FlowReading()
	require.True(t, ok)
	assert.Equal(t, 20.25, flow.TotalUsage)
	assert.Equal(t, -71, back.Reading.RFRSSI)

	assert.Len(t, topo.Nodes(), 2)
	assert.Equal(t, StateCooldown, s.State())
}

func TestPoll_SuppressedWithinMinInterval(t *testing.T) {
	mock := scriptedAPI()
	clock := newFakeClock()
	s := newTestService(t, mock, clock)
	ctx := context.Background()

	refreshed, err := s.Poll(ctx)
	require.NoError(t, err)
	require.True(t, refreshed)
	before := snapshotJSON(t, s)

	for _, step := range []time.Duration{0, time.Second, 60 * time.Second, 58 * time.Second} {
		clock.Advance(step)
		refreshed, err := s.Poll(ctx)
		require.NoError(t, err)
		assert.False(t, refreshed)
		assert.Equal(t, before, snapshotJSON(t, s))
		assert.True(t, s.Available())
	}
	assert.Equal(t, 1, mock.Calls("EnsureLoggedIn"))
	assert.Equal(t, 1, mock.Calls("ListHomes"))
	assert.Equal(t, 1, mock.Calls("GetDeviceStatus"))

	clock.Advance(time.Second) // 120s since the refresh
	assert.Equal(t, StateIdle, s.State())
	refreshed, err = s.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, 2, mock.Calls("ListHomes"))
}

func TestPoll_FailureKeepsPreviousTopology(t *testing.T) {
	tests := map[string]error{
		"network": &homgar.NetworkError{Path: "/app/device/getDeviceStatus", Err: context.DeadlineExceeded},
		"api":     &homgar.APIError{Path: "/app/device/getDeviceStatus", Code: 3, Message: "busy"},
		"auth":    homgar.ErrAuth,
	}
	for name, failure := range tests {
		t.Run(name, func(t *testing.T) {
			mock := scriptedAPI()
			clock := newFakeClock()
			s := newTestService(t, mock, clock)
			ctx := context.Background()

			_, err := s.Poll(ctx)
			require.NoError(t, err)
			before := snapshotJSON(t, s)

			mock.GetDeviceStatusFunc = func(_ context.Context, hub *model.Hub) error {
				// half-populate the hub before failing
				hub.SubDevices[0].Reading = model.Reading{Reported: true, RFRSSI: -1}
				return failure
			}
			clock.Advance(DefaultMinInterval)

			refreshed, err := s.Poll(ctx)
			assert.True(t, refreshed)
			require.ErrorIs(t, err, failure)
			assert.False(t, s.Available())
			assert.Equal(t, before, snapshotJSON(t, s))
			assert.Equal(t, 1, mock.Calls("ResetSession"))

			// the failed refresh still starts the cooldown
			refreshed, err = s.Poll(ctx)
			assert.False(t, refreshed)
			assert.NoError(t, err)
			assert.Equal(t, 2, mock.Calls("ListHomes"))
		})
	}
}

func TestPoll_FirstPollNetworkFailureLeavesEmptyTopology(t *testing.T) {
	mock := scriptedAPI()
	mock.GetDeviceStatusFunc = func(context.Context, *model.Hub) error {
		return &homgar.NetworkError{Path: "/app/device/getDeviceStatus", Err: context.DeadlineExceeded}
	}
	s := newTestService(t, mock, newFakeClock())

	_, err := s.Poll(context.Background())
	require.ErrorIs(t, err, homgar.ErrNetwork)
	assert.Empty(t, s.Topology())
	assert.False(t, s.Available())
}

func TestPoll_LoginFailureStopsEarly(t *testing.T) {
	mock := scriptedAPI()
	mock.EnsureLoggedInFunc = func(context.Context, string, string) error {
		return homgar.ErrAuth
	}
	s := newTestService(t, mock, newFakeClock())

	_, err := s.Poll(context.Background())
	require.ErrorIs(t, err, homgar.ErrAuth)
	assert.Equal(t, 0, mock.Calls("ListHomes"))
	assert.Equal(t, 1, mock.Calls("ResetSession"))
	assert.False(t, s.Available())
}

func TestPoll_NotFoundDropsBranch(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	mock := scriptedAPI()
	mock.ListHomesFunc = func(context.Context) ([]model.Home, error) {
		return []model.Home{{HID: 1}, {HID: 2}, {HID: 3}}, nil
	}
	scripted := mock.ListDevicesFunc
	mock.ListDevicesFunc = func(ctx context.Context, hid int64) ([]model.Hub, error) {
		if hid == 2 {
			return nil, homgar.ErrNotFound
		}
		hubs, err := scripted(ctx, hid)
		if hid == 3 {
			hubs[0].MID = 300
		}
		return hubs, err
	}
	status := mock.GetDeviceStatusFunc
	mock.GetDeviceStatusFunc = func(ctx context.Context, hub *model.Hub) error {
		if hub.MID == 300 {
			return homgar.ErrNotFound
		}
		return status(ctx, hub)
	}
	s := newTestService(t, mock, newFakeClock(), WithLogger(zap.New(core)))

	refreshed, err := s.Poll(context.Background())
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.True(t, s.Available())

	topo := s.Topology()
	assert.Len(t, topo[1], 1)
	assert.NotContains(t, topo, int64(2))
	assert.Empty(t, topo[3])
	assert.Len(t, topo.Nodes(), 2)
	assert.Equal(t, 2, logs.FilterMessageSnippet("vanished").Len())
}

func TestPoll_ConcurrentCallIsNoOp(t *testing.T) {
	mock := scriptedAPI()
	inFlight := make(chan struct{})
	release := make(chan struct{})
	status := mock.GetDeviceStatusFunc
	mock.GetDeviceStatusFunc = func(ctx context.Context, hub *model.Hub) error {
		close(inFlight)
		<-release
		return status(ctx, hub)
	}
	s := newTestService(t, mock, newFakeClock())

	done := make(chan error, 1)
	go func() {
		_, err := s.Poll(context.Background())
		done <- err
	}()

	<-inFlight
	assert.Equal(t, StateRefreshing, s.State())
	refreshed, err := s.Poll(context.Background())
	assert.NoError(t, err)
	assert.False(t, refreshed)
	assert.Empty(t, s.Topology(), "nothing is published while refreshing")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, mock.Calls("ListHomes"))
	assert.Len(t, s.Topology().Nodes(), 2)
}

func TestAuthenticate(t *testing.T) {
	mock := &MockAPI{}
	s := newTestService(t, mock, newFakeClock())

	require.NoError(t, s.Authenticate(context.Background()))
	assert.True(t, s.Available())
	assert.Equal(t, 0, mock.Calls("ResetSession"))

	mock.EnsureLoggedInFunc = func(context.Context, string, string) error {
		return homgar.ErrAuth
	}
	err := s.Authenticate(context.Background())
	assert.ErrorIs(t, err, homgar.ErrAuth)
	assert.False(t, s.Available())
	assert.Equal(t, 1, mock.Calls("ResetSession"))
	assert.Equal(t, 0, mock.Calls("ListHomes"))
}

type MockRecorder struct {
	skipped   int
	finished  []error
	available []bool
	devices   int
}

func (m *MockRecorder) PollSkipped() { m.skipped++ }

func (m *MockRecorder) PollFinished(_ time.Duration, err error) { m.finished = append(m.finished, err) }

func (m *MockRecorder) SetAvailable(v bool) { m.available = append(m.available, v) }

func (m *MockRecorder) SetSubDevices(n int) { m.devices = n }

func TestPoll_RecordsMetrics(t *testing.T) {
	rec := &MockRecorder{}
	s := newTestService(t, scriptedAPI(), newFakeClock(), WithMetrics(rec))

	_, err := s.Poll(context.Background())
	require.NoError(t, err)
	_, err = s.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rec.skipped)
	assert.Equal(t, []error{nil}, rec.finished)
	assert.Equal(t, []bool{true}, rec.available)
	assert.Equal(t, 2, rec.devices)
}
