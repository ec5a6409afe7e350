package whatsapp

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/loyaltyhub/wagateway/internal/domain"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sendTimeout = 30 * time.Second

// ErrSessionNotConnected is returned when a tenant tries to send before the
// pairing handshake has completed.
var ErrSessionNotConnected = fmt.Errorf("session not connected")

// Dispatcher queues outbound text messages onto a shared worker pool and
// records an audit row per message.
type Dispatcher struct {
	registry *Registry
	db       *gorm.DB
	pool     *ants.Pool
	idgen    *snowflake.Node
}

func NewDispatcher(registry *Registry, db *gorm.DB, workers int) (*Dispatcher, error) {
	if workers <= 0 {
		workers = 8
	}
	pool, err := ants.NewPool(workers, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("create send pool: %w", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		pool.Release()
		return nil, fmt.Errorf("create id generator: %w", err)
	}
	return &Dispatcher{registry: registry, db: db, pool: pool, idgen: node}, nil
}

// Enqueue validates that the tenant's session is connected, writes a queued
// audit row and submits the send to the pool. The returned id identifies the
// audit row; delivery outcome is recorded asynchronously.
func (d *Dispatcher) Enqueue(companyID, to, text string) (int64, error) {
	c, ok := d.registry.Get(companyID)
	if !ok {
		return 0, ErrSessionNotConnected
	}
	sender := c.Sender()
	if sender == nil {
		return 0, ErrSessionNotConnected
	}

	row := &domain.WhatsAppMessageLog{
		ID:        d.idgen.Generate().Int64(),
		CompanyID: companyID,
		Jid:       to,
		Text:      text,
		Status:    "queued",
	}
	if d.db != nil {
		if err := d.db.Create(row).Error; err != nil {
			return 0, fmt.Errorf("record message: %w", err)
		}
	}

	err := d.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := sender.SendText(ctx, to, text); err != nil {
			zap.L().Warn("whatsapp: send failed",
				zap.String("company_id", companyID), zap.Int64("msg_id", row.ID), zap.Error(err))
			d.mark(row.ID, "failed", err.Error())
			return
		}
		zap.L().Info("whatsapp: message sent",
			zap.String("company_id", companyID), zap.Int64("msg_id", row.ID))
		d.mark(row.ID, "sent", "")
	})
	if err != nil {
		d.mark(row.ID, "failed", err.Error())
		return row.ID, fmt.Errorf("submit send: %w", err)
	}
	return row.ID, nil
}

func (d *Dispatcher) mark(id int64, status, errMsg string) {
	if d.db == nil {
		return
	}
	err := d.db.Model(&domain.WhatsAppMessageLog{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "err_msg": errMsg}).Error
	if err != nil {
		zap.L().Warn("whatsapp: failed to update message log", zap.Int64("msg_id", id), zap.Error(err))
	}
}

// PurgeLogs deletes message audit rows older than the retention window.
func (d *Dispatcher) PurgeLogs(retention time.Duration) {
	if d.db == nil {
		return
	}
	cutoff := time.Now().Add(-retention)
	res := d.db.Where("created_at < ?", cutoff).Delete(&domain.WhatsAppMessageLog{})
	if res.Error != nil {
		zap.L().Warn("whatsapp: message log purge failed", zap.Error(res.Error))
		return
	}
	if res.RowsAffected > 0 {
		zap.L().Info("whatsapp: purged message logs", zap.Int64("rows", res.RowsAffected))
	}
}

// Release stops the worker pool. Pending jobs are dropped.
func (d *Dispatcher) Release() {
	d.pool.Release()
}
