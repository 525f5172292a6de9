package httpapi

import (
	"net/http"

	"hydro-events/internal/domain"
	"hydro-events/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertHandler 报警处理器
type AlertHandler struct {
	alertSvc *service.AlertService
	logger   *zap.Logger
}

// NewAlertHandler 创建报警处理器
func NewAlertHandler(alertSvc *service.AlertService, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{alertSvc: alertSvc, logger: logger}
}

// raiseAlertRequest 创建报警请求体
type raiseAlertRequest struct {
	ZoneID  string `json:"zone_id"`
	NodeID  string `json:"node_id,omitempty"`
	Type    string `json:"type"`
	Level   string `json:"level"`
	Message string `json:"message,omitempty"`
}

// RaiseAlert 创建报警
func (h *AlertHandler) RaiseAlert(w http.ResponseWriter, r *http.Request) {
	var req raiseAlertRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if req.ZoneID == "" || req.Type == "" {
		writeJSON(w, http.StatusBadRequest, Fail("zone_id and type are required"))
		return
	}
	if req.Level == "" {
		req.Level = "warning"
	}

	alert := &domain.Alert{
		ID:      uuid.New().String(),
		ZoneID:  req.ZoneID,
		NodeID:  req.NodeID,
		Type:    req.Type,
		Level:   req.Level,
		Status:  domain.AlertStatusActive,
		Message: req.Message,
	}
	if err := h.alertSvc.RaiseAlert(r.Context(), alert); err != nil {
		h.logger.Error("Failed to raise alert",
			zap.String("zone_id", req.ZoneID),
			zap.String("type", req.Type),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to raise alert"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(alert))
}

// updateAlertStatusRequest 报警状态更新请求体
type updateAlertStatusRequest struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// UpdateStatus 更新报警状态（确认/解除）
func (h *AlertHandler) UpdateStatus(w http.ResponseWriter, r *http.Request, alertID string) {
	var req updateAlertStatusRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	switch req.Status {
	case domain.AlertStatusActive, domain.AlertStatusAcknowledged, domain.AlertStatusResolved:
	default:
		writeJSON(w, http.StatusBadRequest, Fail("unknown alert status: "+req.Status))
		return
	}

	alert, err := h.alertSvc.UpdateAlertStatus(r.Context(), alertID, req.Status, req.Message)
	if err != nil {
		h.logger.Error("Failed to update alert status",
			zap.String("alert_id", alertID),
			zap.String("status", req.Status),
			zap.Error(err),
		)
		writeJSON(w, http.StatusNotFound, Fail("alert not found or update failed"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(alert))
}
