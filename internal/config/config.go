package config

import (
	"os"
	"strconv"
	"time"

	commoncfg "hydro-events/common/config"
)

// Config hydro-events 服务配置
type Config struct {
	HTTP struct {
		Addr string
	}
	Database commoncfg.DatabaseConfig
	Redis    commoncfg.RedisConfig
	MQTT     struct {
		Enabled bool
		commoncfg.MQTTConfig
		TelemetryTopic string // 遥测上报主题（如 "hydro/+/telemetry"）
	}
	Log struct {
		Level  string
		Format string
	}
	Sequencer struct {
		// memory 仅限单实例部署；多实例必须用 postgres
		Backend string // "postgres" | "memory"
	}
	Sweeper struct {
		Enabled  bool
		Interval time.Duration
		Timeout  time.Duration
	}
	Retention struct {
		Enabled bool
		MaxAge  time.Duration // 台账行保留时长
	}
	AlertWebhookURL string
	PprofEnabled    bool
}

// Load 从环境变量加载配置
func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "hydro")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "20"), 20)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "hydro-events")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.TelemetryTopic = getEnv("MQTT_TELEMETRY_TOPIC", "hydro/+/telemetry")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Sequencer.Backend = getEnv("SEQUENCER_BACKEND", "postgres")

	cfg.Sweeper.Enabled = getEnv("SWEEPER_ENABLED", "true") == "true"
	cfg.Sweeper.Interval = parseDuration(getEnv("SWEEPER_INTERVAL", "1m"), time.Minute)
	cfg.Sweeper.Timeout = parseDuration(getEnv("COMMAND_TIMEOUT", "5m"), 5*time.Minute)

	cfg.Retention.Enabled = getEnv("RETENTION_ENABLED", "false") == "true"
	cfg.Retention.MaxAge = parseDuration(getEnv("RETENTION_MAX_AGE", "720h"), 720*time.Hour)

	cfg.AlertWebhookURL = getEnv("ALERT_WEBHOOK_URL", "")
	cfg.PprofEnabled = getEnv("PPROF_ENABLED", "false") == "true"

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
