package whatsapp

// Status is the lifecycle state of one tenant's messaging session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusWaitingQR    Status = "waiting_qr"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// EventKind identifies a lifecycle event reported by the messaging network.
type EventKind int

const (
	// EventPairingCode carries the one-time pairing challenge text.
	EventPairingCode EventKind = iota
	// EventAuthenticated means the device completed pairing / login.
	EventAuthenticated
	// EventDisconnected means the network connection dropped.
	EventDisconnected
	// EventFailure carries an unrecoverable error message.
	EventFailure
)

func (k EventKind) String() string {
	switch k {
	case EventPairingCode:
		return "pairing_code"
	case EventAuthenticated:
		return "authenticated"
	case EventDisconnected:
		return "disconnected"
	case EventFailure:
		return "failure"
	}
	return "unknown"
}

// Event is a single lifecycle event applied to a Connector. Payload is the
// pairing challenge text for EventPairingCode and the error message for
// EventFailure; empty otherwise.
type Event struct {
	Kind    EventKind
	Payload string
}

// Snapshot is a point-in-time copy of a session's observable state.
type Snapshot struct {
	CompanyID string `json:"company_id"`
	Status    Status `json:"status"`
	QRCodeURL string `json:"qr_code_url"` // empty unless Status == waiting_qr
	LastError string `json:"last_error"`  // empty unless Status == error
	Jid       string `json:"jid"`
}
