// Package topology holds the last published home/hub/sub-device snapshot.
package topology

import (
	"sync/atomic"

	"github.com/anicoll/homgar-integration/internal/pkg/model"
)

// Cache exposes a single mutation, Replace. Readers always get a complete snapshot.
type Cache struct {
	current atomic.Pointer[model.Topology]
}

func New() *Cache {
	c := &Cache{}
	empty := model.Topology{}
	c.current.Store(&empty)
	return c
}

// Replace publishes t. The caller must not modify t afterwards.
func (c *Cache) Replace(t model.Topology) {
	if t == nil {
		t = model.Topology{}
	}
	c.current.Store(&t)
}

// Snapshot returns the current topology, empty until the first Replace.
func (c *Cache) Snapshot() model.Topology {
	return *c.current.Load()
}
