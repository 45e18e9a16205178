package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreBackendDynamoDB = "dynamodb"
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"

	MQBackendNone     = "none"
	MQBackendRabbitMQ = "rabbitmq"
	MQBackendPubSub   = "pubsub"

	CatalogBackendNone  = "none"
	CatalogBackendMinio = "minio"
	CatalogBackendGCS   = "gcs"
)

type Config struct {
	ServerPort     int
	StoreBackend   string
	StoreTimeout   time.Duration
	StaticDir      string
	CORSOrigins    []string
	Auth           AuthConfig
	DynamoDB       DynamoDBConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	IdempotencyTTL time.Duration
	MQBackend      string
	RabbitMQ       RabbitMQConfig
	PubSub         PubSubConfig
	OrderEvents    string
	Catalog        CatalogConfig
	Minio          MinioConfig
	GCS            GCSConfig
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	// Required enforces bearer tokens on tenant and order routes.
	Required bool
}

type DynamoDBConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	TableName       string
	// Endpoint overrides the service endpoint, e.g. for DynamoDB Local.
	Endpoint string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RabbitMQConfig struct {
	URL             string
	PrefetchCount   int
	QueueDurable    bool
	QueueAutoDelete bool
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type CatalogConfig struct {
	Backend   string
	ObjectKey string
	// Refresh is the reload interval; zero disables the background job.
	Refresh time.Duration
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

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	port := getEnvInt("SERVER_PORT", 4000)
	if _, exists := os.LookupEnv("PORT"); exists {
		port = getEnvInt("PORT", port)
	}

	return Config{
		ServerPort:   port,
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", StoreBackendDynamoDB)),
		StoreTimeout: getEnvDuration("STORE_TIMEOUT", 10*time.Second),
		StaticDir:    getEnv("STATIC_DIR", ""),
		CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"http://localhost:3000"}),
		Auth: AuthConfig{
			JWTSecret: strings.TrimSpace(getEnv("JWT_SECRET", "")),
			TokenTTL:  getEnvDuration("TOKEN_TTL", 24*time.Hour),
			Required:  getEnvBool("AUTH_REQUIRED", false),
		},
		DynamoDB: DynamoDBConfig{
			Region:          getEnv("AWS_REGION", "ap-south-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			TableName:       getEnv("DYNAMODB_TABLE_NAME", "TenantsTable"),
			Endpoint:        getEnv("DYNAMODB_ENDPOINT", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "tenantcart"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "tenantcart"),
			UseSSL:   getEnvBool("DB_SSL", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		IdempotencyTTL: getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		MQBackend:      strings.ToLower(getEnv("MQ_BACKEND", MQBackendNone)),
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
		OrderEvents: getEnv("ORDER_EVENTS_CHANNEL", "orders.placed"),
		Catalog: CatalogConfig{
			Backend:   strings.ToLower(getEnv("CATALOG_BACKEND", CatalogBackendNone)),
			ObjectKey: getEnv("CATALOG_OBJECT_KEY", "catalog.json"),
			Refresh:   getEnvDuration("CATALOG_REFRESH", 5*time.Minute),
		},
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
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
		var value int
		if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}
