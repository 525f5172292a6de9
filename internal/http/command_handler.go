package httpapi

import (
	"encoding/json"
	"net/http"

	"hydro-events/internal/domain"
	"hydro-events/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CommandHandler 命令生命周期处理器
type CommandHandler struct {
	commandSvc *service.CommandService
	logger     *zap.Logger
}

// NewCommandHandler 创建命令处理器
func NewCommandHandler(commandSvc *service.CommandService, logger *zap.Logger) *CommandHandler {
	return &CommandHandler{commandSvc: commandSvc, logger: logger}
}

// createCommandRequest 创建命令请求体
type createCommandRequest struct {
	ZoneID string          `json:"zone_id"`
	NodeID string          `json:"node_id,omitempty"`
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

// CreateCommand 创建命令（初始状态 QUEUED）
func (h *CommandHandler) CreateCommand(w http.ResponseWriter, r *http.Request) {
	var req createCommandRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if req.ZoneID == "" || req.Type == "" {
		writeJSON(w, http.StatusBadRequest, Fail("zone_id and type are required"))
		return
	}

	cmd := &domain.Command{
		ID:     uuid.New().String(),
		ZoneID: req.ZoneID,
		NodeID: req.NodeID,
		Type:   req.Type,
		Status: domain.CommandQueued,
		Params: req.Params,
	}
	if err := h.commandSvc.CreateCommand(r.Context(), cmd); err != nil {
		h.logger.Error("Failed to create command",
			zap.String("zone_id", req.ZoneID),
			zap.String("type", req.Type),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to create command"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(cmd))
}

// updateStatusRequest 状态上报请求体（执行端回调）
type updateStatusRequest struct {
	Status       domain.CommandStatus `json:"status"`
	ErrorMessage string               `json:"error_message,omitempty"`
}

// UpdateStatus 应用执行端上报的状态跳变
// 重复上报同一状态为无操作，返回当前命令
func (h *CommandHandler) UpdateStatus(w http.ResponseWriter, r *http.Request, commandID string) {
	var req updateStatusRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if !req.Status.IsValid() {
		writeJSON(w, http.StatusBadRequest, Fail("unknown command status: "+string(req.Status)))
		return
	}

	cmd, err := h.commandSvc.UpdateCommandStatus(r.Context(), commandID, req.Status, req.ErrorMessage)
	if err != nil {
		h.logger.Error("Failed to update command status",
			zap.String("command_id", commandID),
			zap.String("status", string(req.Status)),
			zap.Error(err),
		)
		writeJSON(w, http.StatusNotFound, Fail("command not found or update failed"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(cmd))
}
