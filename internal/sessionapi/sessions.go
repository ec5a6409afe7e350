// Package sessionapi exposes the session control surface consumed by the
// dashboard UI.
package sessionapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/loyaltyhub/wagateway/internal/whatsapp"
	"go.uber.org/zap"
)

const msgCompanyIDRequired = "company_id requerido"

// Handler carries the injected collaborators; no package globals.
type Handler struct {
	registry   *whatsapp.Registry
	dispatcher *whatsapp.Dispatcher
}

func NewHandler(registry *whatsapp.Registry, dispatcher *whatsapp.Dispatcher) *Handler {
	return &Handler{registry: registry, dispatcher: dispatcher}
}

// Register mounts the session routes on the given router.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/sessions", h.startSession)
	e.GET("/sessions", h.listSessions)
	e.GET("/sessions/status", h.queryStatus)
	e.POST("/messages", h.sendMessage)
}

// sessionResponse is the snapshot envelope returned by the session endpoints.
// qrCodeUrl and error are null unless the session is waiting for a scan or
// has failed.
type sessionResponse struct {
	Success   bool            `json:"success"`
	Status    whatsapp.Status `json:"status"`
	QRCodeURL *string         `json:"qrCodeUrl"`
	Error     *string         `json:"error"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func snapshotResponse(snap whatsapp.Snapshot) sessionResponse {
	resp := sessionResponse{Success: true, Status: snap.Status}
	if snap.QRCodeURL != "" {
		resp.QRCodeURL = &snap.QRCodeURL
	}
	if snap.LastError != "" {
		resp.Error = &snap.LastError
	}
	return resp
}

// startSession starts or reuses the tenant's session and returns the current
// snapshot immediately. The handshake continues in the background; clients
// poll /sessions/status until they observe a rest state.
func (h *Handler) startSession(c echo.Context) error {
	var payload struct {
		CompanyID string `json:"company_id"`
	}
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: msgCompanyIDRequired})
	}
	companyID := strings.TrimSpace(payload.CompanyID)
	if companyID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: msgCompanyIDRequired})
	}

	sess := h.registry.GetOrCreate(c.Request().Context(), companyID)
	return c.JSON(http.StatusOK, snapshotResponse(sess.Snapshot()))
}

// queryStatus is a blind read. A tenant that never started a session gets a
// synthetic disconnected snapshot; "no session yet" is not an error.
func (h *Handler) queryStatus(c echo.Context) error {
	companyID := strings.TrimSpace(c.QueryParam("company_id"))
	if companyID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: msgCompanyIDRequired})
	}

	sess, ok := h.registry.Get(companyID)
	if !ok {
		return c.JSON(http.StatusOK, sessionResponse{
			Success: true,
			Status:  whatsapp.StatusDisconnected,
		})
	}
	return c.JSON(http.StatusOK, snapshotResponse(sess.Snapshot()))
}

// listSessions returns snapshots of every registered session.
func (h *Handler) listSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"sessions": h.registry.Snapshots(),
	})
}

// sendMessage queues a text message on the tenant's connected session.
func (h *Handler) sendMessage(c echo.Context) error {
	var payload struct {
		CompanyID string `json:"company_id"`
		To        string `json:"to"`
		Text      string `json:"text"`
	}
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "solicitud inválida"})
	}
	if strings.TrimSpace(payload.CompanyID) == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: msgCompanyIDRequired})
	}
	if strings.TrimSpace(payload.To) == "" || payload.Text == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "to y text requeridos"})
	}

	id, err := h.dispatcher.Enqueue(payload.CompanyID, payload.To, payload.Text)
	if err != nil {
		if errors.Is(err, whatsapp.ErrSessionNotConnected) {
			return c.JSON(http.StatusConflict, errorResponse{Message: "sesión no conectada"})
		}
		zap.L().Warn("sessionapi: enqueue failed",
			zap.String("company_id", payload.CompanyID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorResponse{Message: "no se pudo encolar el mensaje"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "id": id})
}
