package domain

import "time"

// 报警状态
const (
	AlertStatusActive       = "active"
	AlertStatusAcknowledged = "acknowledged"
	AlertStatusResolved     = "resolved"
)

// Alert 区域报警
type Alert struct {
	ID        string    `json:"id"`
	ZoneID    string    `json:"zone_id"`
	NodeID    string    `json:"node_id,omitempty"`
	Type      string    `json:"type"`  // 如 temp_high / ph_out_of_range / node_offline
	Level     string    `json:"level"` // info / warning / critical
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
