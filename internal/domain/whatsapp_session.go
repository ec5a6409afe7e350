package domain

import "time"

// WhatsAppSession mirrors the runtime state of one tenant's messaging session.
// Rows are upserted from lifecycle events so the dashboard backend can read
// session state without hitting the gateway API.
type WhatsAppSession struct {
	ID        int64     `json:"id,string" gorm:"primaryKey"`
	CompanyID string    `json:"company_id" gorm:"uniqueIndex;size:64"`
	Jid       string    `json:"jid"` // populated once pairing completes
	Status    string    `json:"status"`
	LastError string    `json:"last_error"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (WhatsAppSession) TableName() string {
	return "whatsapp_session"
}
