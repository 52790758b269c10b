package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// ThresholdConfig 状态判定阈值配置
//
// 静止分级采用单层策略：静止 >= StillWarning 升级为 WARNING，
// 静止 >= StillEmergency 升级为 EMERGENCY（见 DESIGN.md 的策略说明）
type ThresholdConfig struct {
	Movement       float64       // 加速度相对静息(1g)的偏差阈值，单位 g
	StillWarning   time.Duration // 静止升级为 WARNING 的时长
	StillEmergency time.Duration // 静止升级为 EMERGENCY 的时长
	TempWarning    float64       // 温度 WARNING 阈值（摄氏度）
	TempCritical   float64       // 温度 EMERGENCY 阈值（摄氏度）
	Debounce       time.Duration // SOS按键去抖间隔
}

// DeviceConfig 设备端配置
type DeviceConfig struct {
	DeviceID string

	SampleInterval  time.Duration // 采样评估周期
	PublishInterval time.Duration // 遥测发布周期
	PublishTimeout  time.Duration // 单次发布尝试的超时

	Thresholds ThresholdConfig

	// Transport 发布通道："mqtt" 或 "http"
	Transport string
	MQTT      MQTTConfig
	HTTP      struct {
		Endpoint string // 控制台 /telemetry 地址
	}

	Log struct {
		Level  string
		Format string
	}
}

// ConsoleConfig 控制台服务配置
type ConsoleConfig struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	HTTPAddr string

	// Stream 遥测流水线配置
	Stream struct {
		Name          string
		ConsumerGroup string
		ConsumerName  string
		BatchSize     int64
	}

	// Telemetry 消费侧判定配置
	Telemetry struct {
		LivenessTimeout  time.Duration // 超过该时长未收到信封则覆盖显示为 OFFLINE
		SweepInterval    time.Duration // 在线状态扫描周期
		WindowCapacity   int           // 滚动窗口容量
		AlertLogCapacity int           // 报警日志容量（超出淘汰最旧）
		MQTTTopic        string        // 设备遥测订阅主题
	}

	// Cache 最新状态缓存配置
	Cache struct {
		LatestKeyPrefix string // 如 "wearable:device:"
		LatestSuffix    string // 如 ":latest"
		LatestTTL       int    // TTL（秒）
	}

	Log struct {
		Level  string
		Format string
	}
}

// LoadDevice 加载设备端配置
func LoadDevice() (*DeviceConfig, error) {
	cfg := &DeviceConfig{}

	cfg.DeviceID = getEnv("DEVICE_ID", "wearable-001")

	cfg.SampleInterval = getEnvDuration("SAMPLE_INTERVAL", 250*time.Millisecond)
	cfg.PublishInterval = getEnvDuration("PUBLISH_INTERVAL", 3*time.Second)
	cfg.PublishTimeout = getEnvDuration("PUBLISH_TIMEOUT", 2*time.Second)

	cfg.Thresholds.Movement = getEnvFloat("MOVEMENT_THRESHOLD", 0.15)
	cfg.Thresholds.StillWarning = getEnvDuration("STILL_WARNING", 5*time.Second)
	cfg.Thresholds.StillEmergency = getEnvDuration("STILL_EMERGENCY", 15*time.Second)
	cfg.Thresholds.TempWarning = getEnvFloat("TEMP_WARNING", 40.0)
	cfg.Thresholds.TempCritical = getEnvFloat("TEMP_CRITICAL", 50.0)
	cfg.Thresholds.Debounce = getEnvDuration("SOS_DEBOUNCE", 200*time.Millisecond)

	cfg.Transport = getEnv("TRANSPORT", "mqtt")
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", cfg.DeviceID)
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1
	cfg.HTTP.Endpoint = getEnv("HTTP_ENDPOINT", "http://localhost:8080/telemetry")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if cfg.Transport != "mqtt" && cfg.Transport != "http" {
		return nil, fmt.Errorf("invalid TRANSPORT: %s", cfg.Transport)
	}

	return cfg, nil
}

// LoadConsole 加载控制台服务配置
func LoadConsole() (*ConsoleConfig, error) {
	cfg := &ConsoleConfig{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "wearable")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-console")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	cfg.Stream.Name = getEnv("STREAM_NAME", "wearable:telemetry")
	cfg.Stream.ConsumerGroup = getEnv("STREAM_CONSUMER_GROUP", "wearable-console")
	cfg.Stream.ConsumerName = getEnv("STREAM_CONSUMER_NAME", "console-1")
	cfg.Stream.BatchSize = int64(getEnvInt("STREAM_BATCH_SIZE", 10))

	cfg.Telemetry.LivenessTimeout = getEnvDuration("LIVENESS_TIMEOUT", 10*time.Second)
	cfg.Telemetry.SweepInterval = getEnvDuration("SWEEP_INTERVAL", time.Second)
	cfg.Telemetry.WindowCapacity = getEnvInt("WINDOW_CAPACITY", 60)
	cfg.Telemetry.AlertLogCapacity = getEnvInt("ALERT_LOG_CAPACITY", 100)
	cfg.Telemetry.MQTTTopic = getEnv("TELEMETRY_TOPIC", "wearable/+/telemetry")

	cfg.Cache.LatestKeyPrefix = getEnv("CACHE_LATEST_PREFIX", "wearable:device:")
	cfg.Cache.LatestSuffix = ":latest"
	cfg.Cache.LatestTTL = getEnvInt("CACHE_LATEST_TTL", 30)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
