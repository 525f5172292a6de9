package domain

// ZoneSnapshot 区域状态快照（按需构建，不落库）
// server_ts 与事件戳同源，客户端据此丢弃 server_ts 更小的缓冲推送消息
type ZoneSnapshot struct {
	SnapshotID     string             `json:"snapshot_id"`
	ServerTS       uint64             `json:"server_ts"`
	ZoneID         string             `json:"zone_id"`
	Telemetry      []*TelemetryLatest `json:"telemetry"`
	ActiveAlerts   []*Alert           `json:"active_alerts"`
	RecentCommands []*Command         `json:"recent_commands"`
	Nodes          []*Node            `json:"nodes"`
}
