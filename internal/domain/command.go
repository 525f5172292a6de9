package domain

import "time"

// CommandStatus 设备命令状态
type CommandStatus string

const (
	CommandQueued     CommandStatus = "QUEUED"
	CommandSent       CommandStatus = "SENT"
	CommandAck        CommandStatus = "ACK"
	CommandDone       CommandStatus = "DONE"
	CommandNoEffect   CommandStatus = "NO_EFFECT"
	CommandError      CommandStatus = "ERROR"
	CommandInvalid    CommandStatus = "INVALID"
	CommandBusy       CommandStatus = "BUSY"
	CommandTimeout    CommandStatus = "TIMEOUT"
	CommandSendFailed CommandStatus = "SEND_FAILED"
)

// IsValid 检查状态是否属于封闭集合
func (s CommandStatus) IsValid() bool {
	switch s {
	case CommandQueued, CommandSent, CommandAck, CommandDone, CommandNoEffect,
		CommandError, CommandInvalid, CommandBusy, CommandTimeout, CommandSendFailed:
		return true
	}
	return false
}

// IsTerminal 是否为终态（终态命令不再变更，触发时延指标记录）
func (s CommandStatus) IsTerminal() bool {
	switch s {
	case CommandDone, CommandNoEffect, CommandError, CommandInvalid,
		CommandBusy, CommandTimeout, CommandSendFailed:
		return true
	}
	return false
}

// IsFailure 是否为错误/拒绝终态（触发 command_failed 事件）
func (s CommandStatus) IsFailure() bool {
	switch s {
	case CommandError, CommandInvalid, CommandBusy, CommandTimeout, CommandSendFailed:
		return true
	}
	return false
}

// StatusMessage 状态对应的用户可读描述
func (s CommandStatus) StatusMessage() string {
	switch s {
	case CommandQueued:
		return "Command queued"
	case CommandSent:
		return "Command sent to node"
	case CommandAck:
		return "Command acknowledged by node"
	case CommandDone:
		return "Command completed"
	case CommandNoEffect:
		return "Command had no effect"
	case CommandError:
		return "Command failed on node"
	case CommandInvalid:
		return "Command rejected as invalid"
	case CommandBusy:
		return "Node busy, command rejected"
	case CommandTimeout:
		return "Command timed out"
	case CommandSendFailed:
		return "Failed to send command"
	default:
		return "Command status: " + string(s)
	}
}

// Command 设备命令
// 状态沿状态机单调推进；对同一变更不重复应用（通过"状态是否实际变化"判定幂等）
type Command struct {
	ID           string        `json:"id"`
	ZoneID       string        `json:"zone_id"`
	NodeID       string        `json:"node_id,omitempty"`
	Type         string        `json:"type"`
	Status       CommandStatus `json:"status"`
	Params       []byte        `json:"params,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
