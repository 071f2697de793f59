package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort int
	Log        LogConfig
	Database   DatabaseConfig
	Storage    StorageConfig
	Events     EventsConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	UseSSL      bool
	AutoMigrate bool
}

// StorageConfig selects where message attachments are written.
type StorageConfig struct {
	// Backend is one of "local", "minio", "gcs" or "s3".
	Backend string
	// Prefix is prepended to the object key to form the attachment reference.
	Prefix         string
	MaxUploadBytes int64
	Local          LocalConfig
	Minio          MinioConfig
	GCS            GCSConfig
	S3             S3Config
}

type LocalConfig struct {
	Dir string
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// EventsConfig selects the broker that receives message-sent notifications.
type EventsConfig struct {
	// Backend is one of "none", "rabbitmq" or "pubsub".
	Backend  string
	Topic    string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:        getEnv("DB_HOST", "localhost"),
		Port:        getEnvInt("DB_PORT", 5432),
		User:        getEnv("DB_USER", "messageapi"),
		Password:    getEnv("DB_PASSWORD", "password"),
		DBName:      getEnv("DB_NAME", "messageapi_db"),
		UseSSL:      getEnvBool("DB_USE_SSL", false),
		AutoMigrate: getEnvBool("DB_AUTO_MIGRATE", false),
	}

	storageConfig := StorageConfig{
		Backend:        strings.ToLower(getEnv("STORAGE_BACKEND", "local")),
		Prefix:         getEnv("ATTACHMENT_PREFIX", "uploads"),
		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 32<<20),
		Local: LocalConfig{
			Dir: getEnv("UPLOAD_DIR", "uploads"),
		},
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "attachments"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
		S3: S3Config{
			Bucket:    getEnv("S3_BUCKET", ""),
			Region:    getEnv("S3_REGION", "us-east-1"),
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
		},
	}

	eventsConfig := EventsConfig{
		Backend: strings.ToLower(getEnv("EVENTS_BACKEND", "none")),
		Topic:   getEnv("EVENTS_TOPIC", "messages.sent"),
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
	}

	return Config{
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
		Database: dbConfig,
		Storage:  storageConfig,
		Events:   eventsConfig,
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.Atoi(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseInt(strings.TrimSpace(valueStr), 10, 64)
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}
