package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the root of ytfetchd's configuration tree, loaded once at
// process start by every cmd/ytfetchd-* entry point.
type Config struct {
	Comm     CommConfig
	Server   ServerConfig
	Client   ClientConfig
	Kafka    KafkaConfig
	Database DatabaseConfig
	Redis    RedisConfig
	SMTP     SMTPConfig
	Watchdog WatchdogConfig
	Digest   DigestConfig
}

// CommConfig is where the server listens and where a client dials.
type CommConfig struct {
	IP   string
	Port int
}

func (c CommConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.IP, c.Port)
}

// ServerConfig holds the daemon's worker pool and persistence settings.
type ServerConfig struct {
	NumThreads   int
	DataDir      string
	Cookies      string
	Descriptions bool

	// Worker pool sizing, same knobs the teacher exposes for its own pool.
	WorkerCount  int
	JobQueueSize int
}

// ClientConfig holds cmd/ytfetchd-client's request timeouts.
type ClientConfig struct {
	ResponseTimeoutSec      int
	LongResponseTimeoutSec  int
	ShortResponseTimeoutSec int
}

func (c ClientConfig) ResponseTimeout() time.Duration {
	return time.Duration(c.ResponseTimeoutSec) * time.Second
}

func (c ClientConfig) LongResponseTimeout() time.Duration {
	return time.Duration(c.LongResponseTimeoutSec) * time.Second
}

func (c ClientConfig) ShortResponseTimeout() time.Duration {
	return time.Duration(c.ShortResponseTimeoutSec) * time.Second
}

// KafkaConfig configures the job-lifecycle event bus.
type KafkaConfig struct {
	Brokers       []string
	TopicJobs     string
	TopicAlarms   string
	NumPartitions int

	BatchSize    int
	BatchTimeout time.Duration
	Compression  string
	RequiredAcks int
}

// DatabaseConfig is the audit log's Postgres connection.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// RedisConfig is the backlog watchdog's state store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SMTPConfig configures the notifier's outgoing email.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// WatchdogConfig parameterizes the backlog alarm evaluator.
type WatchdogConfig struct {
	BacklogThreshold int
	SustainMinutes   int
	NotifyTo         string
}

func (w WatchdogConfig) SustainDuration() time.Duration {
	return time.Duration(w.SustainMinutes) * time.Minute
}

// DigestConfig parameterizes the hourly/daily job-throughput rollups.
type DigestConfig struct {
	HourlyDelay time.Duration
	DailyTime   string
}

// Load reads an optional .env file, then env vars over the defaults below.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Comm: CommConfig{
			IP:   getEnv("YTFETCHD_IP", "0.0.0.0"),
			Port: getEnvAsInt("YTFETCHD_PORT", 9090),
		},
		Server: ServerConfig{
			NumThreads:   getEnvAsInt("YTFETCHD_NUM_THREADS", 4),
			DataDir:      getEnv("YTFETCHD_DATA_DIR", "./data"),
			Cookies:      getEnv("YTFETCHD_COOKIES", ""),
			Descriptions: getEnvAsBool("YTFETCHD_DESCRIPTIONS", false),
			WorkerCount:  getEnvAsInt("YTFETCHD_WORKER_COUNT", 4),
			JobQueueSize: getEnvAsInt("YTFETCHD_JOB_QUEUE_SIZE", 1000),
		},
		Client: ClientConfig{
			ResponseTimeoutSec:      getEnvAsInt("YTFETCHD_RESPONSE_TIMEOUT_SEC", 10),
			LongResponseTimeoutSec:  getEnvAsInt("YTFETCHD_LONG_RESPONSE_TIMEOUT_SEC", 120),
			ShortResponseTimeoutSec: getEnvAsInt("YTFETCHD_SHORT_RESPONSE_TIMEOUT_SEC", 3),
		},
		Kafka: KafkaConfig{
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicJobs:     getEnv("KAFKA_TOPIC_JOBS", "ytfetchd.jobs"),
			TopicAlarms:   getEnv("KAFKA_TOPIC_ALARMS", "ytfetchd.alarms"),
			NumPartitions: getEnvAsInt("KAFKA_NUM_PARTITIONS", 10),
			BatchSize:     getEnvAsInt("KAFKA_BATCH_SIZE", 100),
			BatchTimeout:  getEnvAsDuration("KAFKA_BATCH_TIMEOUT", 100*time.Millisecond),
			Compression:   getEnv("KAFKA_COMPRESSION", "snappy"),
			RequiredAcks:  getEnvAsInt("KAFKA_REQUIRED_ACKS", 1),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "ytfetchd"),
			Password: getEnv("DB_PASSWORD", "ytfetchd"),
			DBName:   getEnv("DB_NAME", "ytfetchd"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "ytfetchd@example.com"),
			To:       getEnv("SMTP_TO", "admin@example.com"),
		},
		Watchdog: WatchdogConfig{
			BacklogThreshold: getEnvAsInt("WATCHDOG_BACKLOG_THRESHOLD", 50),
			SustainMinutes:   getEnvAsInt("WATCHDOG_SUSTAIN_MINUTES", 15),
			NotifyTo:         getEnv("WATCHDOG_NOTIFY_TO", ""),
		},
		Digest: DigestConfig{
			HourlyDelay: getEnvAsDuration("DIGEST_HOURLY_DELAY", 5*time.Minute),
			DailyTime:   getEnv("DIGEST_DAILY_TIME", "00:05"),
		},
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
