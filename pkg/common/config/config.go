package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerHost     string
	TrainingPort   string
	ServingPort    string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RegistryTTL   time.Duration

	// Kafka
	KafkaBrokers         []string
	KafkaGroupID         string
	RunEventsTopic       string
	TrainingRequestTopic string

	// Data locations
	RawDataDir     string
	InterimDataDir string
	ArtifactDir    string
	RawMarker      string
	IngestOrder    string

	// Training
	RunFile            string
	TrainingSchedule   string
	TrainingMaxWorkers int
}

func Load() *Config {
	return &Config{
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		TrainingPort:   getEnv("TRAINING_PORT", "8088"),
		ServingPort:    getEnv("SERVING_PORT", "8089"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "rigcast"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "rigcast"),
		PostgresDB:       getEnv("POSTGRES_DB", "rigcast"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		RegistryTTL:   getDuration("REGISTRY_TTL", 0),

		KafkaBrokers:         getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:         getEnv("KAFKA_GROUP_ID", "rigcast"),
		RunEventsTopic:       getEnv("RUN_EVENTS_TOPIC", "training-runs"),
		TrainingRequestTopic: getEnv("TRAINING_REQUEST_TOPIC", "training-requests"),

		RawDataDir:     getEnv("RAW_DATA_DIR", "./data/raw"),
		InterimDataDir: getEnv("INTERIM_DATA_DIR", "./data/interim"),
		ArtifactDir:    getEnv("ARTIFACT_DIR", "./artifacts"),
		RawMarker:      getEnv("RAW_MARKER", "RAW"),
		IngestOrder:    getEnv("INGEST_ORDER", "name"),

		RunFile:            getEnv("RUN_FILE", ""),
		TrainingSchedule:   getEnv("TRAINING_SCHEDULE", ""),
		TrainingMaxWorkers: getIntEnv("TRAINING_MAX_WORKERS", 1),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
