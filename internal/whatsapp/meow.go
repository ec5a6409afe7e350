package whatsapp

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// tenantMarker tags a whatsmeow store device with the owning company so the
// factory can find it again across restarts.
func tenantMarker(companyID string) string {
	return "tenant:" + companyID
}

// MeowFactory dials whatsmeow-backed sessions. All tenants share one sqlstore
// container layered over the application's database connection, so device
// credentials land in the same database as everything else and paired tenants
// reconnect without re-scanning.
type MeowFactory struct {
	container *sqlstore.Container
}

// NewMeowFactory wraps the given database handle for whatsmeow storage and
// runs the library's schema migrations. driver is "sqlite3" or "postgres".
func NewMeowFactory(sqlDB *sql.DB, driver string) (*MeowFactory, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		driver = "sqlite3"
		// Foreign keys are off by default in some sqlite builds and the
		// sqlstore migrations depend on them.
		if _, err := sqlDB.ExecContext(context.Background(), "PRAGMA foreign_keys = ON;"); err != nil {
			zap.L().Warn("whatsapp: unable to enable sqlite foreign_keys pragma", zap.Error(err))
		}
	case "postgres", "postgresql":
		driver = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	container := sqlstore.NewWithDB(sqlDB, driver, nil)
	if err := container.Upgrade(context.Background()); err != nil {
		return nil, fmt.Errorf("sqlstore upgrade failed: %w", err)
	}
	return &MeowFactory{container: container}, nil
}

// Dial returns a handle for the tenant's device, creating and persisting a new
// device on first pairing. Lifecycle events from whatsmeow are translated into
// connector events; all state logic stays in Connector.Apply.
func (f *MeowFactory) Dial(ctx context.Context, c *Connector) (NetworkClient, error) {
	device, err := f.deviceFor(ctx, c.CompanyID())
	if err != nil {
		return nil, err
	}

	client := whatsmeow.NewClient(device, nil)
	client.AddEventHandler(func(raw interface{}) {
		switch evt := raw.(type) {
		case *events.QR:
			if len(evt.Codes) == 0 {
				return
			}
			c.Apply(Event{Kind: EventPairingCode, Payload: evt.Codes[0]})
		case *events.PairSuccess:
			zap.L().Info("whatsapp: pair success",
				zap.String("company_id", c.CompanyID()), zap.String("jid", evt.ID.String()))
		case *events.Connected:
			if jid := client.Store.GetJID(); !jid.IsEmpty() {
				c.SetJid(jid.String())
			}
			c.Apply(Event{Kind: EventAuthenticated})
		case *events.Disconnected:
			c.Apply(Event{Kind: EventDisconnected})
		case *events.LoggedOut:
			c.Apply(Event{
				Kind:    EventFailure,
				Payload: fmt.Sprintf("logged out by server: %v", evt.Reason),
			})
		case *events.ConnectFailure:
			c.Apply(Event{
				Kind:    EventFailure,
				Payload: fmt.Sprintf("connect failure: %v %s", evt.Reason, evt.Message),
			})
		default:
			zap.L().Debug("whatsapp event",
				zap.String("type", fmt.Sprintf("%T", raw)),
				zap.String("company_id", c.CompanyID()))
		}
	})
	return &meowClient{client: client}, nil
}

// deviceFor finds the tenant's persisted device or provisions a fresh one.
func (f *MeowFactory) deviceFor(ctx context.Context, companyID string) (*store.Device, error) {
	marker := tenantMarker(companyID)
	devices, err := f.container.GetAllDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlstore list devices failed: %w", err)
	}
	for _, d := range devices {
		if d != nil && d.BusinessName == marker {
			return d, nil
		}
	}

	device := f.container.NewDevice()
	device.BusinessName = marker
	// Best effort: an unpersisted device can still pair, it just will not
	// survive a restart until the JID is known and stored.
	if err := f.container.PutDevice(ctx, device); err != nil {
		zap.L().Warn("whatsapp: PutDevice failed, continuing with in-memory device",
			zap.Error(err), zap.String("company_id", companyID))
	}
	return device, nil
}

type meowClient struct {
	client *whatsmeow.Client
}

func (m *meowClient) Connect() error {
	return m.client.Connect()
}

func (m *meowClient) Disconnect() {
	m.client.Disconnect()
}

// SendText delivers a plain conversation message. to may be a full JID
// ("5215512345678@s.whatsapp.net") or a bare phone number.
func (m *meowClient) SendText(ctx context.Context, to string, text string) error {
	if !strings.Contains(to, "@") {
		to = to + "@" + waTypes.DefaultUserServer
	}
	jid, err := waTypes.ParseJID(to)
	if err != nil {
		return fmt.Errorf("invalid destination jid %q: %w", to, err)
	}
	msg := &waE2E.Message{Conversation: proto.String(text)}
	if _, err := m.client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	return nil
}
