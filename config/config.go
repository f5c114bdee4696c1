package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	once sync.Once
	cfg  *Config
)

// Config aggregates every concern's configuration. Values come from an
// optional YAML file (DOCUCHAT_CONFIG) with environment variables taking
// precedence; a .env file is loaded first when present.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Redis   RedisConfig   `yaml:"redis"`
	Storage StorageConfig `yaml:"storage"`
	Qdrant  QdrantConfig  `yaml:"qdrant"`
	LLM     LLMConfig     `yaml:"llm"`
	Worker  WorkerConfig  `yaml:"worker"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	MaxUploadSize   int64         `yaml:"maxUploadSize"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// ActivateOnUpload enqueues an indexing job right after a successful
	// upload instead of waiting for an explicit activation call.
	ActivateOnUpload bool `yaml:"activateOnUpload"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

type StorageConfig struct {
	// Backend is one of "local", "minio", "s3".
	Backend   string `yaml:"backend"`
	LocalDir  string `yaml:"localDir"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"useSSL"`
	// MapPath is the durable id -> storage key map file.
	MapPath string `yaml:"mapPath"`
}

type QdrantConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"apiKey"`
	Timeout time.Duration `yaml:"timeout"`
}

type LLMConfig struct {
	BaseURL        string        `yaml:"baseURL"`
	APIKey         string        `yaml:"apiKey"`
	ChatModel      string        `yaml:"chatModel"`
	EmbedModel     string        `yaml:"embedModel"`
	EmbedBatchSize int           `yaml:"embedBatchSize"`
	MaxPassageLen  int           `yaml:"maxPassageLen"`
	TopK           int           `yaml:"topK"`
	Timeout        time.Duration `yaml:"timeout"`
}

type WorkerConfig struct {
	Concurrency int            `yaml:"concurrency"`
	Queues      map[string]int `yaml:"queues"`
}

// Get returns the process-wide configuration, loading it on first use.
func Get() *Config {
	once.Do(func() {
		var err error
		cfg, err = Load()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
	})
	return cfg
}

// Load builds a Config from defaults, an optional YAML file and the
// environment, in that order of increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, falling back to environment variables")
	}

	c := defaults()

	if path := os.Getenv("DOCUCHAT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(c)
	return c, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			MaxUploadSize:   50 * 1024 * 1024, // 50MB
			ShutdownTimeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Storage: StorageConfig{
			Backend:  "local",
			LocalDir: "data/files",
			MapPath:  "data/file_map.json",
		},
		Qdrant: QdrantConfig{
			URL:     "http://localhost:6333",
			Timeout: 15 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL:        "https://api.openai.com/v1",
			ChatModel:      "gpt-4o-mini",
			EmbedModel:     "text-embedding-3-small",
			EmbedBatchSize: 100,
			MaxPassageLen:  2000,
			TopK:           2,
			Timeout:        60 * time.Second,
		},
		Worker: WorkerConfig{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	}
}

func applyEnv(c *Config) {
	setString(&c.Server.Addr, "SERVER_ADDR")
	setInt64(&c.Server.MaxUploadSize, "SERVER_MAX_UPLOAD_SIZE")
	setDuration(&c.Server.ShutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT")
	setBool(&c.Server.ActivateOnUpload, "ACTIVATE_ON_UPLOAD")

	setString(&c.Redis.Addr, "REDIS_ADDR")
	setInt(&c.Redis.DB, "REDIS_DB")

	setString(&c.Storage.Backend, "STORAGE_BACKEND")
	setString(&c.Storage.LocalDir, "STORAGE_LOCAL_DIR")
	setString(&c.Storage.MapPath, "STORAGE_MAP_PATH")
	setString(&c.Storage.Endpoint, "STORAGE_ENDPOINT")
	setString(&c.Storage.AccessKey, "STORAGE_ACCESS_KEY")
	setString(&c.Storage.SecretKey, "STORAGE_SECRET_KEY")
	setString(&c.Storage.Bucket, "STORAGE_BUCKET")
	setString(&c.Storage.Region, "STORAGE_REGION")
	setBool(&c.Storage.UseSSL, "STORAGE_USE_SSL")

	setString(&c.Qdrant.URL, "QDRANT_URL")
	setString(&c.Qdrant.APIKey, "QDRANT_API_KEY")
	setDuration(&c.Qdrant.Timeout, "QDRANT_TIMEOUT")

	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.ChatModel, "LLM_CHAT_MODEL")
	setString(&c.LLM.EmbedModel, "LLM_EMBED_MODEL")
	setInt(&c.LLM.EmbedBatchSize, "LLM_EMBED_BATCH_SIZE")
	setInt(&c.LLM.MaxPassageLen, "LLM_MAX_PASSAGE_LEN")
	setInt(&c.LLM.TopK, "LLM_TOP_K")
	setDuration(&c.LLM.Timeout, "LLM_TIMEOUT")

	setInt(&c.Worker.Concurrency, "WORKER_CONCURRENCY")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
