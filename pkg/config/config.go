// Package config loads and validates the ingestion service configuration from
// a YAML file, an optional .env file and KI_* environment-variable overrides.
// It provides typed structs for every subsystem (Server, Postgres, Kafka,
// Redis, Storage, Ingestion, Vector indexes, AI, Auth, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Storage   StorageConfig   `yaml:"storage"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Vector    VectorConfig    `yaml:"vector"`
	AI        AIConfig        `yaml:"ai"`
	Auth      AuthConfig      `yaml:"auth"`
	CORS      CORSConfig      `yaml:"cors"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IngestJobs string `yaml:"ingestJobs"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables Redis
// and the service falls back to in-process document locks.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	LockTTL  time.Duration `yaml:"lockTTL"`
}

// StorageConfig selects the backing file store for originals and extracted
// text, and where knowledge files are registered.
type StorageConfig struct {
	Backend         string `yaml:"backend"` // local | s3
	LocalDir        string `yaml:"localDir"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	AccessKey       string `yaml:"accessKey"`
	SecretKey       string `yaml:"secretKey"`
	KnowledgeBucket string `yaml:"knowledgeBucket"`
	KnowledgePrefix string `yaml:"knowledgePrefix"`
}

// IngestionConfig tunes the background pipeline.
type IngestionConfig struct {
	TargetChunkSize   int           `yaml:"targetChunkSize"`
	OverlapRatio      float64       `yaml:"overlapRatio"`
	SemanticSplitter  bool          `yaml:"semanticSplitter"`
	StageTimeout      time.Duration `yaml:"stageTimeout"`
	PipelineTimeout   time.Duration `yaml:"pipelineTimeout"`
	Workers           int           `yaml:"workers"`
	Dispatcher        string        `yaml:"dispatcher"` // pool | kafka
	MaxUploadBytes    int64         `yaml:"maxUploadBytes"`
	AllowedMediaTypes []string      `yaml:"allowedMediaTypes"`
}

// VectorConfig lists the remote indexes chunks are replicated to. Exactly one
// of them is the default used when a query names an unknown index.
type VectorConfig struct {
	Default string              `yaml:"default"`
	TopK    int                 `yaml:"topK"`
	Indexes []VectorIndexConfig `yaml:"indexes"`
}

// VectorIndexConfig describes one named, URL-addressed remote index.
type VectorIndexConfig struct {
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"` // pgvector | records | memory
	URL        string `yaml:"url"`
	APIKey     string `yaml:"apiKey"`
	Namespace  string `yaml:"namespace"`
	Table      string `yaml:"table"`
	Dimensions int    `yaml:"dimensions"`
}

// AIConfig selects the embedding provider used by pgvector indexes.
// Provider "openai" talks to any OpenAI-compatible endpoint at BaseURL.
type AIConfig struct {
	Provider   string `yaml:"provider"` // gemini | openai
	APIKey     string `yaml:"apiKey"`
	BaseURL    string `yaml:"baseURL"`
	EmbedModel string `yaml:"embedModel"`
}

// AuthConfig holds the HS256 secret used to verify bearer tokens and the
// per-user request budget. RequestsPerMinute <= 0 disables rate limiting.
type AuthConfig struct {
	JWTSecret         string `yaml:"jwtSecret"`
	RequestsPerMinute int    `yaml:"requestsPerMinute"`
}

// CORSConfig lists the origins allowed to call the HTTP API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), loads a .env file when one
// exists and applies environment-variable overrides. Missing values keep
// their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	_ = godotenv.Load()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that defaults cannot fix.
func (c *Config) Validate() error {
	if c.Ingestion.TargetChunkSize <= 0 {
		return fmt.Errorf("ingestion.targetChunkSize must be positive, got %d", c.Ingestion.TargetChunkSize)
	}
	if c.Ingestion.OverlapRatio < 0 || c.Ingestion.OverlapRatio >= 1 {
		return fmt.Errorf("ingestion.overlapRatio must be in [0, 1), got %v", c.Ingestion.OverlapRatio)
	}
	switch c.Ingestion.Dispatcher {
	case "pool", "kafka":
	default:
		return fmt.Errorf("ingestion.dispatcher must be pool or kafka, got %q", c.Ingestion.Dispatcher)
	}
	switch c.Storage.Backend {
	case "local", "s3":
	default:
		return fmt.Errorf("storage.backend must be local or s3, got %q", c.Storage.Backend)
	}
	if len(c.Vector.Indexes) == 0 {
		return fmt.Errorf("vector.indexes must configure at least one index")
	}
	seen := make(map[string]struct{}, len(c.Vector.Indexes))
	for _, idx := range c.Vector.Indexes {
		if idx.Name == "" {
			return fmt.Errorf("vector index without a name")
		}
		if _, dup := seen[idx.Name]; dup {
			return fmt.Errorf("vector index %q configured twice", idx.Name)
		}
		seen[idx.Name] = struct{}{}
	}
	if c.Vector.Default == "" {
		c.Vector.Default = c.Vector.Indexes[0].Name
	}
	if _, ok := seen[c.Vector.Default]; !ok {
		return fmt.Errorf("vector.default %q is not a configured index", c.Vector.Default)
	}
	return nil
}

// Default returns a Config with local-development defaults. Chunking uses
// the deterministic paragraph chunker unless ingestion.semanticSplitter is
// turned on.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8081,
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "knowledge",
			User:            "knowledge",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "knowledge-ingest",
			Topics: KafkaTopics{
				IngestJobs: "document-ingest-jobs",
			},
		},
		Redis: RedisConfig{
			PoolSize: 10,
			LockTTL:  15 * time.Minute,
		},
		Storage: StorageConfig{
			Backend:         "local",
			LocalDir:        "./data/uploads",
			Region:          "us-east-2",
			KnowledgePrefix: "knowledge",
		},
		Ingestion: IngestionConfig{
			TargetChunkSize: 1000,
			OverlapRatio:    0.1,
			StageTimeout:    2 * time.Minute,
			PipelineTimeout: 10 * time.Minute,
			Workers:         8,
			Dispatcher:      "pool",
			MaxUploadBytes:  50 << 20,
			AllowedMediaTypes: []string{
				"application/pdf",
				"application/msword",
				"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
				"application/vnd.oasis.opendocument.text",
				"application/rtf",
				"text/plain",
				"text/markdown",
				"text/html",
				"text/csv",
			},
		},
		Vector: VectorConfig{
			Default: "default",
			TopK:    3,
			Indexes: []VectorIndexConfig{
				{Name: "default", Kind: "memory"},
			},
		},
		AI: AIConfig{
			Provider:   "gemini",
			EmbedModel: "text-embedding-004",
		},
		Auth: AuthConfig{
			RequestsPerMinute: 120,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads KI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KI_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("KI_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("KI_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("KI_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("KI_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("KI_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("KI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("KI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("KI_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("KI_STORAGE_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("KI_AWS_REGION"); v != "" {
		cfg.Storage.Region = v
	}
	if v := os.Getenv("KI_AWS_ACCESS_KEY"); v != "" {
		cfg.Storage.AccessKey = v
	}
	if v := os.Getenv("KI_AWS_SECRET_KEY"); v != "" {
		cfg.Storage.SecretKey = v
	}
	if v := os.Getenv("KI_INGESTION_DISPATCHER"); v != "" {
		cfg.Ingestion.Dispatcher = v
	}
	if v := os.Getenv("KI_INGESTION_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingestion.Workers = n
		}
	}
	if v := os.Getenv("KI_GEMINI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("KI_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("KI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("KI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
