package domain

import "time"

// WhatsAppMessageLog is the audit record for one outbound message.
type WhatsAppMessageLog struct {
	ID        int64     `json:"id,string" gorm:"primaryKey"`
	CompanyID string    `json:"company_id" gorm:"index;size:64"`
	Jid       string    `json:"jid"` // destination JID
	Text      string    `json:"text"`
	Status    string    `json:"status"` // queued, sent, failed
	ErrMsg    string    `json:"err_msg"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (WhatsAppMessageLog) TableName() string {
	return "whatsapp_message_log"
}
