package cmd

import (
	"context"

	"github.com/anicoll/homgar-integration/internal/pkg/model"
	"github.com/anicoll/homgar-integration/internal/pkg/poller"
)

// PollService defines what run expects from the poll orchestrator.
type PollService interface {
	Authenticate(ctx context.Context) error
	Poll(ctx context.Context) (bool, error)
	// Methods needed by server.New(pollSvc)
	Topology() model.Topology
	Available() bool
	State() poller.State
}
