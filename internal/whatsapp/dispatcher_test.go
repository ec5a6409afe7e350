package whatsapp

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func connectedSession(t *testing.T, reg *Registry, factory *fakeFactory, companyID string) (*Connector, *fakeClient) {
	t.Helper()
	c := reg.GetOrCreate(context.Background(), companyID)
	require.Eventually(t, func() bool {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.handle != nil
	}, time.Second, 10*time.Millisecond)
	c.Apply(Event{Kind: EventAuthenticated})
	return c, factory.lastClient()
}

func TestDispatcherEnqueue(t *testing.T) {
	factory := &fakeFactory{}
	reg := NewRegistry(factory, 128)
	d, err := NewDispatcher(reg, nil, 2)
	require.NoError(t, err)
	defer d.Release()

	_, cl := connectedSession(t, reg, factory, "acme")

	id, err := d.Enqueue("acme", "5215512345678", "hola")
	require.NoError(t, err)
	require.NotZero(t, id)
	require.Eventually(t, func() bool { return cl.sentCount() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestDispatcherRefusesUnknownTenant(t *testing.T) {
	reg := NewRegistry(&fakeFactory{}, 128)
	d, err := NewDispatcher(reg, nil, 2)
	require.NoError(t, err)
	defer d.Release()

	_, err = d.Enqueue("ghost", "5215512345678", "hola")
	require.ErrorIs(t, err, ErrSessionNotConnected)
}

func TestDispatcherRefusesUnconnectedSession(t *testing.T) {
	factory := &fakeFactory{}
	reg := NewRegistry(factory, 128)
	d, err := NewDispatcher(reg, nil, 2)
	require.NoError(t, err)
	defer d.Release()

	// Session exists but is still mid-handshake.
	reg.GetOrCreate(context.Background(), "acme")
	_, err = d.Enqueue("acme", "5215512345678", "hola")
	require.ErrorIs(t, err, ErrSessionNotConnected)
}

func TestDispatcherSendFailureIsAsync(t *testing.T) {
	factory := &fakeFactory{}
	reg := NewRegistry(factory, 128)
	d, err := NewDispatcher(reg, nil, 2)
	require.NoError(t, err)
	defer d.Release()

	_, cl := connectedSession(t, reg, factory, "acme")
	cl.mu.Lock()
	cl.sendErr = fmt.Errorf("socket closed")
	cl.mu.Unlock()

	// Enqueue succeeds; the delivery failure is only recorded asynchronously.
	_, err = d.Enqueue("acme", "5215512345678", "hola")
	require.NoError(t, err)
}
