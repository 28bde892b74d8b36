package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"catalog-service/database"
	awspkg "catalog-service/pkg/aws"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config holds all environment driven settings of the catalog service.
type Config struct {
	Port   string
	Env    string
	AppURL string // public origin used in image URLs

	JWTSecret string
	JWTTTL    time.Duration

	DBDriver string // postgres, sqlite or dynamodb
	DB       database.Options
	DDBTable string

	RedisURL string

	StorageDriver string // local or s3
	StorageRoot   string
	S3Bucket      string
	S3Prefix      string
	S3Endpoint    string
	CDNDomain     string

	AWS awspkg.Options

	QueueDriver      string // memory, redis or sqs
	QueueName        string
	QueueWorkers     int
	QueueCapacity    int
	QueueMaxAttempts int
	QueueBackoff     time.Duration
	SQSQueueURL      string
	SQSDeadLetterURL string

	SNSTopicArn string

	Categories     string
	UploadMaxBytes int64
	Seed           bool

	CloudWatchEnabled bool
	MetricsEnabled    bool
	AllowedOrigins    string
	LoginRatePerMin   int
}

// LoadConfig reads .env (if present) and the environment, applies defaults
// and validates the result. With AWS_USE_SECRETS=true the JWT secret is
// taken from Secrets Manager, falling back to JWT_SECRET.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:   getEnv("PORT", "8080"),
		Env:    getEnv("APP_ENV", "development"),
		AppURL: strings.TrimRight(getEnv("APP_URL", "http://localhost:8080"), "/"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		DBDriver: strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DB: database.Options{
			Host:       os.Getenv("POSTGRES_HOST"),
			Port:       os.Getenv("POSTGRES_PORT"),
			User:       os.Getenv("POSTGRES_USER"),
			Password:   os.Getenv("POSTGRES_PASSWORD"),
			Name:       getEnv("POSTGRES_DB", "catalog"),
			SSLMode:    os.Getenv("POSTGRES_SSLMODE"),
			SQLitePath: getEnv("SQLITE_PATH", "data/catalog.db"),
		},
		DDBTable: getEnv("DDB_TABLE_PRODUCTS", "Products"),

		RedisURL: os.Getenv("REDIS_URL"),

		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", "local")),
		StorageRoot:   getEnv("STORAGE_ROOT", "storage"),
		S3Bucket:      os.Getenv("AWS_S3_BUCKET"),
		S3Prefix:      os.Getenv("AWS_S3_PREFIX"),
		S3Endpoint:    os.Getenv("AWS_S3_ENDPOINT"),
		CDNDomain:     os.Getenv("AWS_CLOUDFRONT_DOMAIN"),

		AWS: awspkg.Options{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			Endpoint:        os.Getenv("AWS_ENDPOINT"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		},

		QueueDriver:      strings.ToLower(getEnv("QUEUE_DRIVER", "memory")),
		QueueName:        getEnv("QUEUE_NAME", "queue:uploads"),
		SQSQueueURL:      os.Getenv("SQS_UPLOAD_QUEUE_URL"),
		SQSDeadLetterURL: os.Getenv("SQS_DEAD_LETTER_QUEUE_URL"),

		SNSTopicArn: os.Getenv("SNS_PRODUCT_TOPIC_ARN"),

		Categories:     os.Getenv("PRODUCT_CATEGORIES"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),
	}
	cfg.DB.Driver = cfg.DBDriver
	if cfg.S3Endpoint == "" {
		cfg.S3Endpoint = cfg.AWS.Endpoint
	}

	var err error
	if cfg.JWTTTL, err = getDuration("JWT_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.QueueBackoff, err = getDuration("QUEUE_RETRY_BACKOFF", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.QueueWorkers, err = getInt("QUEUE_WORKERS", 2); err != nil {
		return nil, err
	}
	if cfg.QueueCapacity, err = getInt("QUEUE_CAPACITY", 100); err != nil {
		return nil, err
	}
	if cfg.QueueMaxAttempts, err = getInt("QUEUE_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.LoginRatePerMin, err = getInt("LOGIN_RATE_PER_MINUTE", 10); err != nil {
		return nil, err
	}
	maxBytes, err := getInt("UPLOAD_MAX_BYTES", 2<<20)
	if err != nil {
		return nil, err
	}
	cfg.UploadMaxBytes = int64(maxBytes)
	cfg.Seed = getBool("SEED")
	cfg.CloudWatchEnabled = getBool("CLOUDWATCH_ENABLED")
	cfg.MetricsEnabled = getBool("METRICS_ENABLED")

	if getBool("AWS_USE_SECRETS") {
		awsCfg, err := awspkg.LoadAWSConfig(context.Background(), cfg.AWS)
		if err != nil {
			zap.L().Warn("failed to load AWS config for secrets, using env", zap.Error(err))
		} else {
			sm := awspkg.NewSecretsClient(awsCfg)
			cfg.JWTSecret = sm.Resolve(context.Background(), getEnv("JWT_SECRET_REF", "catalog/JWT_SECRET"), cfg.JWTSecret)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.DBDriver {
	case "postgres", "sqlite", "dynamodb":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres, sqlite or dynamodb, got %q", c.DBDriver)
	}
	switch c.StorageDriver {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("AWS_S3_BUCKET is required when STORAGE_DRIVER=s3")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be local or s3, got %q", c.StorageDriver)
	}
	switch c.QueueDriver {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when QUEUE_DRIVER=redis")
		}
	case "sqs":
		if c.SQSQueueURL == "" {
			return fmt.Errorf("SQS_UPLOAD_QUEUE_URL is required when QUEUE_DRIVER=sqs")
		}
	default:
		return fmt.Errorf("QUEUE_DRIVER must be memory, redis or sqs, got %q", c.QueueDriver)
	}
	if c.QueueMaxAttempts < 1 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// usesAWS reports whether any configured component talks to AWS.
func (c *Config) usesAWS() bool {
	return c.DBDriver == "dynamodb" || c.StorageDriver == "s3" || c.QueueDriver == "sqs" ||
		c.SNSTopicArn != "" || c.CloudWatchEnabled || c.MetricsEnabled
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}

func getBool(key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return b
}
