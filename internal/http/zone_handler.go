package httpapi

import (
	"net/http"

	"hydro-events/internal/domain"
	"hydro-events/internal/service"

	"go.uber.org/zap"
)

// ZoneHandler 区域快照/台账/摄入处理器
type ZoneHandler struct {
	snapshotSvc  *service.SnapshotService
	telemetrySvc *service.TelemetryService
	commandSvc   *service.CommandService
	alertSvc     *service.AlertService
	cycleSvc     *service.CycleService
	logger       *zap.Logger
}

// NewZoneHandler 创建区域处理器
func NewZoneHandler(
	snapshotSvc *service.SnapshotService,
	telemetrySvc *service.TelemetryService,
	commandSvc *service.CommandService,
	alertSvc *service.AlertService,
	cycleSvc *service.CycleService,
	logger *zap.Logger,
) *ZoneHandler {
	return &ZoneHandler{
		snapshotSvc:  snapshotSvc,
		telemetrySvc: telemetrySvc,
		commandSvc:   commandSvc,
		alertSvc:     alertSvc,
		cycleSvc:     cycleSvc,
		logger:       logger,
	}
}

// GetSnapshot 获取区域状态快照（对账入口）
func (h *ZoneHandler) GetSnapshot(w http.ResponseWriter, r *http.Request, zoneID string) {
	snapshot, err := h.snapshotSvc.Snapshot(r.Context(), zoneID)
	if err != nil {
		h.logger.Error("Failed to build snapshot",
			zap.String("zone_id", zoneID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to build snapshot"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(snapshot))
}

// ListEvents 台账增量读取
func (h *ZoneHandler) ListEvents(w http.ResponseWriter, r *http.Request, zoneID string) {
	afterEventID := parseUint64(r.URL.Query().Get("after_event_id"), 0)
	limit := parseInt(r.URL.Query().Get("limit"), 0)

	events, err := h.snapshotSvc.ListEventsSince(r.Context(), zoneID, afterEventID, limit)
	if err != nil {
		h.logger.Error("Failed to list zone events",
			zap.String("zone_id", zoneID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list zone events"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(events))
}

// IngestTelemetry HTTP 批量遥测摄入（MQTT 之外的备用上报通道）
func (h *ZoneHandler) IngestTelemetry(w http.ResponseWriter, r *http.Request, zoneID string) {
	var body struct {
		Samples []domain.TelemetrySample `json:"samples"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if len(body.Samples) == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("samples is required"))
		return
	}

	for i := range body.Samples {
		if body.Samples[i].ZoneID == "" {
			body.Samples[i].ZoneID = zoneID
		}
	}

	accepted, err := h.telemetrySvc.IngestBatch(r.Context(), body.Samples)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, Fail("failed to ingest telemetry"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]int{"accepted": accepted}))
}

// NotifyCycle 上游周期服务通知周期已更新
func (h *ZoneHandler) NotifyCycle(w http.ResponseWriter, r *http.Request, zoneID string) {
	var payload domain.CyclePayload
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	stamp, err := h.cycleSvc.NotifyCycleUpdated(r.Context(), zoneID, payload)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(stamp))
}

// ListCommands 拉取区域最近命令
func (h *ZoneHandler) ListCommands(w http.ResponseWriter, r *http.Request, zoneID string) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	commands, err := h.commandSvc.ListRecent(r.Context(), zoneID, limit)
	if err != nil {
		h.logger.Error("Failed to list commands",
			zap.String("zone_id", zoneID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list commands"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(commands))
}

// ListAlerts 拉取区域活跃报警
func (h *ZoneHandler) ListAlerts(w http.ResponseWriter, r *http.Request, zoneID string) {
	alerts, err := h.alertSvc.ListActive(r.Context(), zoneID)
	if err != nil {
		h.logger.Error("Failed to list alerts",
			zap.String("zone_id", zoneID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list alerts"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(alerts))
}
