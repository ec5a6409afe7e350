package whatsapp

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// requireInvariants checks the artifact and error invariants that must hold
// after every transition.
func requireInvariants(t *testing.T, snap Snapshot) {
	t.Helper()
	if snap.QRCodeURL != "" {
		require.Equal(t, StatusWaitingQR, snap.Status, "artifact present outside waiting_qr")
	}
	if snap.Status != StatusWaitingQR {
		require.Empty(t, snap.QRCodeURL)
	}
	if snap.LastError != "" {
		require.Equal(t, StatusError, snap.Status, "lastError present outside error")
	}
	if snap.Status != StatusError {
		require.Empty(t, snap.LastError)
	}
}

func newTestConnector() *Connector {
	return newConnector("acme", 128, nil)
}

func TestConnectorPairingFlow(t *testing.T) {
	c := newTestConnector()
	require.Equal(t, StatusConnecting, c.Status())

	c.Apply(Event{Kind: EventPairingCode, Payload: "1@abc"})
	snap := c.Snapshot()
	require.Equal(t, StatusWaitingQR, snap.Status)
	require.True(t, strings.HasPrefix(snap.QRCodeURL, "data:image/png;base64,"))
	requireInvariants(t, snap)

	c.Apply(Event{Kind: EventAuthenticated})
	snap = c.Snapshot()
	require.Equal(t, StatusConnected, snap.Status)
	require.Empty(t, snap.QRCodeURL)
	require.Empty(t, snap.LastError)
	requireInvariants(t, snap)
}

func TestConnectorReemitsReplacementArtifact(t *testing.T) {
	c := newTestConnector()
	c.Apply(Event{Kind: EventPairingCode, Payload: "1@first"})
	first := c.Snapshot().QRCodeURL

	// Pairing challenges are single-use; a re-emission replaces the expired
	// artifact without leaving waiting_qr.
	c.Apply(Event{Kind: EventPairingCode, Payload: "1@second"})
	snap := c.Snapshot()
	require.Equal(t, StatusWaitingQR, snap.Status)
	require.NotEqual(t, first, snap.QRCodeURL)
	requireInvariants(t, snap)
}

func TestConnectorIgnoresStalePairingCode(t *testing.T) {
	c := newTestConnector()
	c.Apply(Event{Kind: EventPairingCode, Payload: "1@abc"})
	c.Apply(Event{Kind: EventAuthenticated})

	c.Apply(Event{Kind: EventPairingCode, Payload: "1@late"})
	snap := c.Snapshot()
	require.Equal(t, StatusConnected, snap.Status)
	require.Empty(t, snap.QRCodeURL)
}

func TestConnectorFailure(t *testing.T) {
	c := newTestConnector()
	c.Apply(Event{Kind: EventPairingCode, Payload: "1@abc"})
	c.Apply(Event{Kind: EventFailure, Payload: "bad creds"})

	snap := c.Snapshot()
	require.Equal(t, StatusError, snap.Status)
	require.Equal(t, "bad creds", snap.LastError)
	require.Empty(t, snap.QRCodeURL)
	requireInvariants(t, snap)

	// A recovery clears the recorded failure.
	c.Apply(Event{Kind: EventAuthenticated})
	snap = c.Snapshot()
	require.Equal(t, StatusConnected, snap.Status)
	require.Empty(t, snap.LastError)
	requireInvariants(t, snap)
}

func TestConnectorDisconnect(t *testing.T) {
	c := newTestConnector()
	c.Apply(Event{Kind: EventPairingCode, Payload: "1@abc"})
	c.Apply(Event{Kind: EventAuthenticated})
	c.Apply(Event{Kind: EventDisconnected})

	snap := c.Snapshot()
	require.Equal(t, StatusDisconnected, snap.Status)
	require.Empty(t, snap.QRCodeURL)
	require.Empty(t, snap.LastError)
}

func TestConnectorDisconnectDoesNotMaskError(t *testing.T) {
	c := newTestConnector()
	c.Apply(Event{Kind: EventFailure, Payload: "logged out by server"})
	c.Apply(Event{Kind: EventDisconnected})

	snap := c.Snapshot()
	require.Equal(t, StatusError, snap.Status)
	require.Equal(t, "logged out by server", snap.LastError)
}

func TestConnectorEncodingFailureBecomesError(t *testing.T) {
	c := newTestConnector()
	// An empty pairing payload cannot be rendered; the encoder error must
	// surface as an error transition, not be swallowed.
	c.Apply(Event{Kind: EventPairingCode, Payload: ""})

	snap := c.Snapshot()
	require.Equal(t, StatusError, snap.Status)
	require.NotEmpty(t, snap.LastError)
	require.Empty(t, snap.QRCodeURL)
}

func TestConnectorNotifiesOnTransitions(t *testing.T) {
	var seen []Status
	c := newConnector("acme", 128, func(snap Snapshot) {
		seen = append(seen, snap.Status)
	})
	c.Apply(Event{Kind: EventPairingCode, Payload: "1@abc"})
	c.Apply(Event{Kind: EventAuthenticated})
	c.Apply(Event{Kind: EventDisconnected})

	require.Equal(t, []Status{StatusWaitingQR, StatusConnected, StatusDisconnected}, seen)
}

func TestConnectorPublishesInTransitionOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []Snapshot
	c := newConnector("acme", 128, func(snap Snapshot) {
		mu.Lock()
		seen = append(seen, snap)
		mu.Unlock()
	})

	// Hammer the connector from both directions; whatever state it settles
	// in, the last published snapshot must describe it. An out-of-order
	// publication would leave observers persisting stale state.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Apply(Event{Kind: EventAuthenticated})
		}()
		go func() {
			defer wg.Done()
			c.Apply(Event{Kind: EventDisconnected})
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	require.Equal(t, c.Snapshot(), seen[len(seen)-1])
}

func TestConnectorSenderOnlyWhileConnected(t *testing.T) {
	c := newTestConnector()
	handle := &fakeClient{}
	c.attach(handle)
	require.Nil(t, c.Sender())

	c.Apply(Event{Kind: EventAuthenticated})
	require.NotNil(t, c.Sender())

	c.Apply(Event{Kind: EventDisconnected})
	require.Nil(t, c.Sender())
}
