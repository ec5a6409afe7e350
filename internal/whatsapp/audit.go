package whatsapp

import (
	"errors"
	"time"

	"github.com/loyaltyhub/wagateway/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuditRecorder mirrors session lifecycle transitions into the
// whatsapp_session table so the dashboard backend can read state from the
// database. It observes the registry bus and never mutates session state.
type AuditRecorder struct {
	db *gorm.DB
}

func NewAuditRecorder(db *gorm.DB) *AuditRecorder {
	return &AuditRecorder{db: db}
}

// Attach subscribes the recorder to the registry's lifecycle topic. The
// subscription is asynchronous so slow database writes never block a
// transition.
func (r *AuditRecorder) Attach(reg *Registry) error {
	return reg.Bus().SubscribeAsync(TopicSessionState, r.record, false)
}

func (r *AuditRecorder) record(snap Snapshot) {
	var row domain.WhatsAppSession
	err := r.db.Where("company_id = ?", snap.CompanyID).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := r.db.Create(&domain.WhatsAppSession{
			CompanyID: snap.CompanyID,
			Jid:       snap.Jid,
			Status:    string(snap.Status),
			LastError: snap.LastError,
		}).Error; err != nil {
			zap.L().Warn("whatsapp: failed to create session audit row",
				zap.String("company_id", snap.CompanyID), zap.Error(err))
		}
	case err != nil:
		zap.L().Warn("whatsapp: failed to query session audit row",
			zap.String("company_id", snap.CompanyID), zap.Error(err))
	default:
		updates := map[string]interface{}{
			"status":     string(snap.Status),
			"last_error": snap.LastError,
			"updated_at": time.Now(),
		}
		if snap.Jid != "" {
			updates["jid"] = snap.Jid
		}
		if err := r.db.Model(&domain.WhatsAppSession{}).Where("id = ?", row.ID).
			Updates(updates).Error; err != nil {
			zap.L().Warn("whatsapp: failed to update session audit row",
				zap.String("company_id", snap.CompanyID), zap.Error(err))
		}
	}
}
