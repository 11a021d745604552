package poller

import (
	"context"
	"sync"

	"github.com/anicoll/homgar-integration/internal/pkg/model"
)

// MockAPI is a scripted vendor client. Calls are counted per method.
type MockAPI struct {
	EnsureLoggedInFunc  func(ctx context.Context, username, password string) error
	ListHomesFunc       func(ctx context.Context) ([]model.Home, error)
	ListDevicesFunc     func(ctx context.Context, hid int64) ([]model.Hub, error)
	GetDeviceStatusFunc func(ctx context.Context, hub *model.Hub) error

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockAPI) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[name]++
}

func (m *MockAPI) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *MockAPI) EnsureLoggedIn(ctx context.Context, username, password string) error {
	m.record("EnsureLoggedIn")
	if m.EnsureLoggedInFunc != nil {
		return m.EnsureLoggedInFunc(ctx, username, password)
	}
	return nil
}

func (m *MockAPI) ListHomes(ctx context.Context) ([]model.Home, error) {
	m.record("ListHomes")
	if m.ListHomesFunc != nil {
		return m.ListHomesFunc(ctx)
	}
	return nil, nil
}

func (m *MockAPI) ListDevices(ctx context.Context, hid int64) ([]model.Hub, error) {
	m.record("ListDevices")
	if m.ListDevicesFunc != nil {
		return m.ListDevicesFunc(ctx, hid)
	}
	return nil, nil
}

func (m *MockAPI) GetDeviceStatus(ctx context.Context, hub *model.Hub) error {
	m.record("GetDeviceStatus")
	if m.GetDeviceStatusFunc != nil {
		return m.GetDeviceStatusFunc(ctx, hub)
	}
	return nil
}

func (m *MockAPI) ResetSession() {
	m.record("ResetSession")
}
