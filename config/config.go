package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreBackendPostgres = "postgres"
	StoreBackendMongo    = "mongo"

	MQBackendNone     = ""
	MQBackendRabbitMQ = "rabbitmq"
	MQBackendPubSub   = "pubsub"

	StorageBackendNone  = ""
	StorageBackendMinio = "minio"
	StorageBackendGCS   = "gcs"
)

type Config struct {
	Env          string
	ServerPort   int
	StoreBackend string
	Database     DatabaseConfig
	Mongo        MongoConfig
	Auth         AuthConfig
	MQ           MQConfig
	Storage      StorageConfig
	SMTP         SMTPConfig
	CORSOrigins  []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

type AuthConfig struct {
	JWTSecret      string
	TokenTTL       time.Duration
	BcryptCost     int
	GoogleClientID string
}

type MQConfig struct {
	Backend        string
	WelcomeChannel string
	RabbitMQ       RabbitMQConfig
	PubSub         PubSubConfig
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

type StorageConfig struct {
	Backend            string
	WelcomeTemplateKey string
	Minio              MinioConfig
	GCS                GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	ProjectID       string
	Bucket          string
	CredentialsFile string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether enough SMTP settings are present to send mail.
func (c SMTPConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != "" && strings.TrimSpace(c.From) != ""
}

func LoadConfig() Config {
	env := getEnv("ENV", "production")
	if env == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "accounts"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "accounts_db"),
		UseSSL:   getEnvBool("DB_USE_SSL", false),
	}

	mongoConfig := MongoConfig{
		URI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		Database:   getEnv("MONGO_DB", "accounts"),
		Collection: getEnv("MONGO_COLLECTION", "users"),
	}

	authConfig := AuthConfig{
		JWTSecret:      strings.TrimSpace(getEnv("JWT_SECRET", "")),
		TokenTTL:       getEnvDuration("TOKEN_TTL", 7*24*time.Hour),
		BcryptCost:     getEnvInt("BCRYPT_COST", 10),
		GoogleClientID: strings.TrimSpace(getEnv("GOOGLE_CLIENT_ID", "")),
	}

	mqConfig := MQConfig{
		Backend:        strings.ToLower(strings.TrimSpace(getEnv("MQ_BACKEND", MQBackendNone))),
		WelcomeChannel: getEnv("MQ_WELCOME_CHANNEL", "account.welcome"),
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

	storageConfig := StorageConfig{
		Backend:            strings.ToLower(strings.TrimSpace(getEnv("STORAGE_BACKEND", StorageBackendNone))),
		WelcomeTemplateKey: getEnv("WELCOME_TEMPLATE_KEY", "templates/welcome.html"),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			Bucket:          getEnv("GCS_BUCKET", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
	}

	smtpConfig := SMTPConfig{
		Host:     getEnv("SMTP_HOST", ""),
		Port:     getEnvInt("SMTP_PORT", 465),
		Username: getEnv("SMTP_USERNAME", ""),
		Password: getEnv("SMTP_PASSWORD", ""),
		From:     getEnv("SMTP_FROM", ""),
	}

	return Config{
		Env:          env,
		ServerPort:   getEnvInt("SERVER_PORT", 8080),
		StoreBackend: strings.ToLower(strings.TrimSpace(getEnv("STORE_BACKEND", StoreBackendPostgres))),
		Database:     dbConfig,
		Mongo:        mongoConfig,
		Auth:         authConfig,
		MQ:           mqConfig,
		Storage:      storageConfig,
		SMTP:         smtpConfig,
		CORSOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}
}

// Validate checks the settings the API server cannot run without.
func (c Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if c.Auth.GoogleClientID == "" {
		return errors.New("GOOGLE_CLIENT_ID is required")
	}
	switch c.StoreBackend {
	case StoreBackendPostgres, StoreBackendMongo:
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.MQ.Backend {
	case MQBackendNone, MQBackendRabbitMQ, MQBackendPubSub:
	default:
		return fmt.Errorf("unsupported MQ_BACKEND %q", c.MQ.Backend)
	}
	return nil
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
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(valueStr)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := time.ParseDuration(strings.TrimSpace(valueStr))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var values []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
