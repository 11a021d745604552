package cmd

import (
	"context"
	"sync"

	"github.com/anicoll/homgar-integration/internal/pkg/model"
	"github.com/anicoll/homgar-integration/internal/pkg/poller"
)

// MockPollService is a mock implementation of the PollService interface.
type MockPollService struct {
	AuthenticateFunc func(ctx context.Context) error
	PollFunc         func(ctx context.Context) (bool, error)
	Topo             model.Topology

	mu    sync.Mutex
	polls int
}

func (m *MockPollService) Authenticate(ctx context.Context) error {
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx)
	}
	return nil
}

func (m *MockPollService) Poll(ctx context.Context) (bool, error) {
	m.mu.Lock()
	m.polls++
	m.mu.Unlock()
	if m.PollFunc != nil {
		return m.PollFunc(ctx)
	}
	return true, nil
}

func (m *MockPollService) Polls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls
}

func (m *MockPollService) Topology() model.Topology {
	if m.Topo == nil {
		return model.Topology{}
	}
	return m.Topo
}

func (m *MockPollService) Available() bool {
	return true
}

func (m *MockPollService) State() poller.State {
	return poller.StateIdle
}

type MockBroadcaster struct {
	mu    sync.Mutex
	calls int
}

func (m *MockBroadcaster) Broadcast() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return nil
}
