package whatsapp

import (
	"context"
	"sync"
	"time"

	"github.com/loyaltyhub/wagateway/pkg/qrimg"
	"go.uber.org/zap"
)

// NetworkClient is the live handle to the external messaging network. It is
// exclusively owned by its Connector; production code wraps *whatsmeow.Client.
type NetworkClient interface {
	Connect() error
	Disconnect()
	SendText(ctx context.Context, to string, text string) error
}

// ClientFactory allocates network handles. Dial may be slow; the registry
// always calls it off the request path.
type ClientFactory interface {
	Dial(ctx context.Context, c *Connector) (NetworkClient, error)
}

// Connector tracks one tenant's connection lifecycle. Every state change goes
// through apply so the invariants hold in a single place:
//
//	qrCodeURL != "" only while status == waiting_qr
//	lastError != "" only while status == error
type Connector struct {
	companyID string
	qrSize    int
	notify    func(Snapshot)

	// notifyMu is held across a transition and its snapshot publication so
	// observers always see snapshots in transition order.
	notifyMu sync.Mutex

	mu        sync.RWMutex
	status    Status
	qrCodeURL string
	lastError string
	jid       string
	handle    NetworkClient
	changedAt time.Time
}

func newConnector(companyID string, qrSize int, notify func(Snapshot)) *Connector {
	return &Connector{
		companyID: companyID,
		qrSize:    qrSize,
		notify:    notify,
		status:    StatusConnecting,
		changedAt: time.Now(),
	}
}

func (c *Connector) CompanyID() string {
	return c.companyID
}

// Snapshot returns the current observable state.
func (c *Connector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// snapshotLocked copies the observable state. c.mu must be held.
func (c *Connector) snapshotLocked() Snapshot {
	return Snapshot{
		CompanyID: c.companyID,
		Status:    c.status,
		QRCodeURL: c.qrCodeURL,
		LastError: c.lastError,
		Jid:       c.jid,
	}
}

func (c *Connector) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Sender returns the network handle while the session is connected, nil
// otherwise. Callers may send through it but never mutate lifecycle state.
func (c *Connector) Sender() NetworkClient {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.status != StatusConnected {
		return nil
	}
	return c.handle
}

// SetJid records the device identity assigned by the network after pairing.
func (c *Connector) SetJid(jid string) {
	c.mu.Lock()
	c.jid = jid
	c.mu.Unlock()
}

// Apply runs one lifecycle event through the transition table.
func (c *Connector) Apply(evt Event) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.mu.Lock()
	prev := c.status
	switch evt.Kind {
	case EventPairingCode:
		if c.status != StatusConnecting && c.status != StatusWaitingQR {
			// Stale challenge after the session settled; nothing to show.
			c.mu.Unlock()
			zap.L().Debug("whatsapp: ignoring pairing code outside handshake",
				zap.String("company_id", c.companyID), zap.String("status", string(prev)))
			return
		}
		uri, err := qrimg.Encode(evt.Payload, c.qrSize)
		if err != nil {
			c.setStateLocked(StatusError, "", err.Error())
			break
		}
		// Re-emission while already waiting replaces the expired artifact.
		c.setStateLocked(StatusWaitingQR, uri, "")
	case EventAuthenticated:
		c.setStateLocked(StatusConnected, "", "")
	case EventDisconnected:
		if c.status == StatusError {
			// Keep the recorded failure; a plain disconnect must not mask it.
			c.mu.Unlock()
			return
		}
		c.setStateLocked(StatusDisconnected, "", "")
	case EventFailure:
		c.setStateLocked(StatusError, "", evt.Payload)
	default:
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	zap.L().Info("whatsapp: session transition",
		zap.String("company_id", c.companyID),
		zap.String("event", evt.Kind.String()),
		zap.String("from", string(prev)),
		zap.String("to", string(snap.Status)))
	if c.notify != nil {
		c.notify(snap)
	}
}

// setStateLocked mutates the state fields. c.mu must be held.
func (c *Connector) setStateLocked(status Status, qrCodeURL, lastError string) {
	c.status = status
	c.qrCodeURL = qrCodeURL
	c.lastError = lastError
	c.changedAt = time.Now()
}

// markConnecting rearms the session for a fresh dial and detaches the previous
// network handle; the caller must disconnect it. The session owns at most one
// live handle, so the old one may never survive a re-dial. The connecting
// snapshot is published like any other transition.
func (c *Connector) markConnecting() (Status, NetworkClient) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.mu.Lock()
	prev := c.status
	old := c.handle
	c.handle = nil
	c.setStateLocked(StatusConnecting, "", "")
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if c.notify != nil {
		c.notify(snap)
	}
	return prev, old
}

// announce publishes the current state without a transition, used when a
// session is first registered.
func (c *Connector) announce() {
	if c.notify == nil {
		return
	}
	c.notifyMu.Lock()
	c.notify(c.Snapshot())
	c.notifyMu.Unlock()
}

func (c *Connector) attach(handle NetworkClient) {
	c.mu.Lock()
	old := c.handle
	c.handle = handle
	c.mu.Unlock()
	// A replaced handle is closed, never orphaned.
	if old != nil {
		old.Disconnect()
	}
}

func (c *Connector) disconnect() {
	c.mu.RLock()
	handle := c.handle
	c.mu.RUnlock()
	if handle != nil {
		handle.Disconnect()
	}
}

// stuckSince reports whether the session has been stuck in a transient
// handshake state since before the deadline.
func (c *Connector) stuckSince(deadline time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.status != StatusWaitingQR && c.status != StatusConnecting {
		return false
	}
	return c.changedAt.Before(deadline)
}
