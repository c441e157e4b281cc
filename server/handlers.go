package server

import (
	"github.com/onnwee/live-herald/monitor"
)

// StatusSource provides the notifier's current state.
type StatusSource interface {
	Snapshot() monitor.Snapshot
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	status StatusSource
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(status StatusSource) *Handlers {
	return &Handlers{status: status}
}
