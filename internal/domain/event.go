package domain

import (
	"encoding/json"
	"time"
)

// EventKind 事件类型（封闭枚举，payload 结构与类型一一对应）
type EventKind string

const (
	EventKindCommandCreated   EventKind = "command_created"
	EventKindCommandStatus    EventKind = "command_status"
	EventKindCommandFailed    EventKind = "command_failed"
	EventKindAlertCreated     EventKind = "alert_created"
	EventKindAlertUpdated     EventKind = "alert_updated"
	EventKindTelemetryUpdated EventKind = "telemetry_updated"
	EventKindCycleUpdated     EventKind = "cycle_updated"
	EventKindNodeStatus       EventKind = "node_status"
)

// IsValid 检查事件类型是否属于封闭集合
func (k EventKind) IsValid() bool {
	switch k {
	case EventKindCommandCreated, EventKindCommandStatus, EventKindCommandFailed,
		EventKindAlertCreated, EventKindAlertUpdated,
		EventKindTelemetryUpdated, EventKindCycleUpdated, EventKindNodeStatus:
		return true
	}
	return false
}

// IsCommand 是否为命令相关事件（额外发布到全局 commands 频道）
func (k EventKind) IsCommand() bool {
	return k == EventKindCommandCreated || k == EventKindCommandStatus || k == EventKindCommandFailed
}

// IsAlert 是否为报警相关事件（额外发布到全局 alerts 频道）
func (k EventKind) IsAlert() bool {
	return k == EventKindAlertCreated || k == EventKindAlertUpdated
}

// EventStamp 事件戳：全局唯一且全序的 (event_id, server_ts) 对
// event_id 严格递增；server_ts 为服务端毫秒时间戳，随 event_id 非递减
type EventStamp struct {
	EventID  uint64 `json:"event_id"`
	ServerTS uint64 `json:"server_ts"`
}

// Envelope 推送消息信封（广播到 Redis 频道的格式）
// Payload 为类型对应的最小去范式化负载，客户端无需额外查询即可更新视图
type Envelope struct {
	EventID    uint64          `json:"event_id"`
	ServerTS   uint64          `json:"server_ts"`
	Kind       EventKind       `json:"kind"`
	ZoneID     string          `json:"zone_id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload"`
}

// ZoneEvent 区域事件台账行（append-only）
// 不变量：payload 中的 event_id 与广播消息携带的完全一致，台账与推送可互相追溯
type ZoneEvent struct {
	ID         int64           `json:"id"`
	ZoneID     string          `json:"zone_id"`
	Kind       EventKind       `json:"kind"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload"`
	EventID    uint64          `json:"event_id"`
	ServerTS   uint64          `json:"server_ts"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ============================================
// 各事件类型的 payload 结构
// ============================================

// CommandStatusPayload command_created / command_status / command_failed 负载
type CommandStatusPayload struct {
	CommandID    string        `json:"command_id"`
	NodeID       string        `json:"node_id,omitempty"`
	CommandType  string        `json:"command_type"`
	Status       CommandStatus `json:"status"`
	Message      string        `json:"message"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// AlertPayload alert_created / alert_updated 负载
type AlertPayload struct {
	AlertID  string `json:"alert_id"`
	Type     string `json:"type"`
	Level    string `json:"level"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	NodeID   string `json:"node_id,omitempty"`
}

// TelemetryPayload telemetry_updated 负载
type TelemetryPayload struct {
	NodeID     string  `json:"node_id,omitempty"`
	MetricType string  `json:"metric_type"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit,omitempty"`
	MeasuredAt int64   `json:"measured_at"`
}

// CyclePayload cycle_updated 负载
type CyclePayload struct {
	CycleID string `json:"cycle_id"`
	Stage   string `json:"stage"`
	Day     int    `json:"day"`
}

// NodeStatusPayload node_status 负载
type NodeStatusPayload struct {
	NodeID string `json:"node_id"`
	Status string `json:"status"`
}
