// Package channels defines the contract every chat-platform connector
// implements and a registry the gateway uses to look adapters up by
// channel type. The adapters here are thin: they construct each
// platform's client and deliver outbound messages; full inbound feature
// surfaces belong to the external connector processes.
package channels

import (
	"context"
	"sync"
	"time"

	"github.com/cratos-run/cratos/pkg/models"
)

// Adapter is the minimal contract for a channel connector.
type Adapter interface {
	Type() models.ChannelType
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg *models.Message) error
	Status() Status
	HealthCheck(ctx context.Context) HealthStatus
}

// Status reports an adapter's connection state.
type Status struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
	LastPing  int64  `json:"last_ping,omitempty"` // Unix timestamp
}

// HealthStatus is the result of an active health probe.
type HealthStatus struct {
	Healthy  bool          `json:"healthy"`
	Latency  time.Duration `json:"latency,omitempty"`
	Message  string        `json:"message,omitempty"`
	Degraded bool          `json:"degraded,omitempty"`
}

// Registry holds the configured adapters, indexed by channel type.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.ChannelType]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.ChannelType]Adapter)}
}

// Register adds an adapter, replacing any previous one of the same type.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Type()] = adapter
}

// Get looks an adapter up by channel type.
func (r *Registry) Get(channel models.ChannelType) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[channel]
	return adapter, ok
}

// All returns a snapshot of the registered adapters.
func (r *Registry) All() map[models.ChannelType]Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[models.ChannelType]Adapter, len(r.adapters))
	for channel, adapter := range r.adapters {
		out[channel] = adapter
	}
	return out
}

// StartAll starts every adapter, stopping at the first failure.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, adapter := range r.All() {
		if err := adapter.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every adapter, returning the first error seen.
func (r *Registry) StopAll(ctx context.Context) error {
	var firstErr error
	for _, adapter := range r.All() {
		if err := adapter.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
