package domain

import "time"

// TelemetrySample 单条遥测样本（MQTT/HTTP 批量上报的元素）
type TelemetrySample struct {
	ZoneID     string  `json:"zone_id"`
	NodeID     string  `json:"node_id,omitempty"`
	MetricType string  `json:"metric_type"` // 如 temperature / humidity / ph / ec / co2
	Value      float64 `json:"value"`
	Unit       string  `json:"unit,omitempty"`
	MeasuredAt int64   `json:"measured_at"` // Unix 毫秒时间戳，0 表示使用服务端时间
}

// TelemetryLatest 每区域每指标的最新物化值（快照读取用）
type TelemetryLatest struct {
	ZoneID     string    `json:"zone_id"`
	NodeID     string    `json:"node_id,omitempty"`
	MetricType string    `json:"metric_type"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit,omitempty"`
	MeasuredAt time.Time `json:"measured_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
