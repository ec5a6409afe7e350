package whatsapp

import (
	"context"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

// TopicSessionState is the bus topic carrying session Snapshots on every
// lifecycle transition.
const TopicSessionState = "whatsapp.session.state"

// Registry is the single source of truth mapping company id to session. It is
// constructed once at startup and injected into the HTTP handlers.
type Registry struct {
	factory ClientFactory
	bus     EventBus.Bus
	qrSize  int

	mu       sync.Mutex
	sessions map[string]*Connector
}

func NewRegistry(factory ClientFactory, qrSize int) *Registry {
	return &Registry{
		factory:  factory,
		bus:      EventBus.New(),
		qrSize:   qrSize,
		sessions: make(map[string]*Connector),
	}
}

// Bus exposes the lifecycle event bus for subscribers such as the audit
// recorder. Subscribers must not mutate session state.
func (r *Registry) Bus() EventBus.Bus {
	return r.bus
}

// GetOrCreate returns the tenant's session, constructing and dialing a new one
// when none exists. The check-and-register step is atomic under r.mu, so
// concurrent callers for the same tenant always receive the same Connector.
// Dialing happens in the background; the caller gets the current snapshot
// immediately and polls for progress.
//
// A session resting in disconnected or error is reused in place: it is moved
// back to connecting and re-dialed, so callers never poll a dead session that
// will not recover on its own.
func (r *Registry) GetOrCreate(ctx context.Context, companyID string) *Connector {
	r.mu.Lock()
	if c, ok := r.sessions[companyID]; ok {
		st := c.Status()
		if st == StatusDisconnected || st == StatusError {
			prev, old := c.markConnecting()
			r.mu.Unlock()
			// The session owns exactly one handle; close the stale one
			// before the fresh dial attaches a replacement.
			if old != nil {
				old.Disconnect()
			}
			zap.L().Info("whatsapp: re-dialing resting session",
				zap.String("company_id", companyID), zap.String("previous", string(prev)))
			go r.dial(c)
			return c
		}
		r.mu.Unlock()
		return c
	}
	c := newConnector(companyID, r.qrSize, func(snap Snapshot) {
		r.bus.Publish(TopicSessionState, snap)
	})
	r.sessions[companyID] = c
	r.mu.Unlock()

	c.announce()
	zap.L().Info("whatsapp: session created", zap.String("company_id", companyID))
	go r.dial(c)
	return c
}

// Get is a pure lookup with no side effects.
func (r *Registry) Get(companyID string) (*Connector, bool) {
	r.mu.Lock()
	c, ok := r.sessions[companyID]
	r.mu.Unlock()
	return c, ok
}

// Snapshots returns the current state of every registered session.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	conns := make([]*Connector, 0, len(r.sessions))
	for _, c := range r.sessions {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.Snapshot())
	}
	return out
}

// dial allocates the network handle and starts the handshake. Failures land on
// the session as an error transition; they are observable only by polling.
func (r *Registry) dial(c *Connector) {
	handle, err := r.factory.Dial(context.Background(), c)
	if err != nil {
		zap.L().Warn("whatsapp: dial failed",
			zap.String("company_id", c.CompanyID()), zap.Error(err))
		c.Apply(Event{Kind: EventFailure, Payload: err.Error()})
		return
	}
	c.attach(handle)
	if err := handle.Connect(); err != nil {
		zap.L().Warn("whatsapp: connect failed",
			zap.String("company_id", c.CompanyID()), zap.Error(err))
		c.Apply(Event{Kind: EventFailure, Payload: err.Error()})
	}
}

// SweepStale fails sessions parked in a transient handshake state for longer
// than maxWait. The underlying pairing challenge has long expired by then, so
// polling clients get a retryable error instead of spinning forever.
func (r *Registry) SweepStale(maxWait time.Duration) int {
	deadline := time.Now().Add(-maxWait)
	var stale []*Connector
	r.mu.Lock()
	for _, c := range r.sessions {
		if c.stuckSince(deadline) {
			stale = append(stale, c)
		}
	}
	r.mu.Unlock()

	for _, c := range stale {
		zap.L().Warn("whatsapp: pairing window expired",
			zap.String("company_id", c.CompanyID()))
		c.Apply(Event{Kind: EventFailure, Payload: "pairing window expired"})
		c.disconnect()
	}
	return len(stale)
}

// Shutdown disconnects every live handle. Session credentials persist in the
// client library's own store, so paired tenants reconnect without re-scanning.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	conns := make([]*Connector, 0, len(r.sessions))
	for _, c := range r.sessions {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.disconnect()
	}
	zap.L().Info("whatsapp: registry shut down", zap.Int("sessions", len(conns)))
}
