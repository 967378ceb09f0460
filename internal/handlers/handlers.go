package handlers

import "github.com/soundtrace/soundtrace/internal/container"

// Handlers contains all HTTP handlers for the API.
// Uses dependency injection via container for all service dependencies.
type Handlers struct {
	kernel *container.Container
}

// NewHandlers creates a new handlers instance with dependency injection.
// All service dependencies are accessed through the container.
func NewHandlers(c *container.Container) *Handlers {
	return &Handlers{
		kernel: c,
	}
}

// Container returns the underlying dependency injection container.
// Used for testing and access to all services.
func (h *Handlers) Container() *container.Container {
	return h.kernel
}
