package server

import (
	"context"
	"sync"
	"time"

	"github.com/anicoll/homgar-integration/internal/pkg/model"
	"github.com/anicoll/homgar-integration/internal/pkg/poller"
)

type MockSource struct {
	mu    sync.Mutex
	Topo  model.Topology
	Avail bool
	St    poller.State
}

func (m *MockSource) Set(topo model.Topology, available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Topo, m.Avail = topo, available
}

func (m *MockSource) Topology() model.Topology {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Topo
}

func (m *MockSource) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Avail
}

func (m *MockSource) State() poller.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.St
}

type MockReadings struct {
	GetLatestPropertiesFunc func(ctx context.Context) (model.Properties, error)
	GetPropertiesFunc       func(ctx context.Context, identifier, slug string, from, to *time.Time) (model.Properties, error)
}

func (m *MockReadings) GetLatestProperties(ctx context.Context) (model.Properties, error) {
	return m.GetLatestPropertiesFunc(ctx)
}

func (m *MockReadings) GetProperties(ctx context.Context, identifier, slug string, from, to *time.Time) (model.Properties, error) {
	return m.GetPropertiesFunc(ctx, identifier, slug, from, to)
}
