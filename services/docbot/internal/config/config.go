package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is read when Load is called with an empty path.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML, .env and the environment.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
	LogsDir  string `yaml:"logsDir"`

	DatabaseURL   string `yaml:"databaseURL"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	SessionSecret   string `yaml:"sessionSecret"`
	SessionTTLHours int    `yaml:"sessionTTLHours"`
	CookieSecure    bool   `yaml:"cookieSecure"`

	ChunkSize    int `yaml:"chunkSize"`
	ChunkOverlap int `yaml:"chunkOverlap"`
	TopK         int `yaml:"topK"`

	LLMProvider    string  `yaml:"llmProvider"`
	LLMBaseURL     string  `yaml:"llmBaseURL"`
	LLMAPIKey      string  `yaml:"llmAPIKey"`
	LLMModel       string  `yaml:"llmModel"`
	LLMTemperature float64 `yaml:"llmTemperature"`
	LLMMaxTokens   int     `yaml:"llmMaxTokens"`

	OllamaURL            string `yaml:"ollamaURL"`
	EmbeddingProvider    string `yaml:"embeddingProvider"`
	EmbeddingBaseURL     string `yaml:"embeddingBaseURL"`
	EmbeddingAPIKey      string `yaml:"embeddingAPIKey"`
	EmbeddingModel       string `yaml:"embeddingModel"`
	EmbeddingDim         int    `yaml:"embeddingDim"`
	EmbeddingBatchSize   int    `yaml:"embeddingBatchSize"`
	EmbeddingConcurrency int    `yaml:"embeddingConcurrency"`

	CollectionConflict      string `yaml:"collectionConflict"`
	ReadinessTimeoutSeconds int    `yaml:"readinessTimeoutSeconds"`

	StorageBackend string `yaml:"storageBackend"`
	StorageDir     string `yaml:"storageDir"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	MaxUploadBytes int64  `yaml:"maxUploadBytes"`

	TrustedProxyCIDRs        []string `yaml:"trustedProxyCidrs"`
	SignupRateLimitPerMinute int      `yaml:"signupRateLimitPerMinute"`
	LoginRateLimitPerMinute  int      `yaml:"loginRateLimitPerMinute"`
	ChatRateLimitPerMinute   int      `yaml:"chatRateLimitPerMinute"`
}

// Load reads .env (optional), then path (optional, defaults to config.yaml),
// applies defaults and environment overrides, and validates the result.
func Load(path string) (FileConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return FileConfig{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	applyDefaults(&cfg)
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	setString(&cfg.Port, "8000")
	setString(&cfg.LogLevel, "info")
	setInt(&cfg.SessionTTLHours, 168)
	setInt(&cfg.ChunkSize, 500)
	setInt(&cfg.ChunkOverlap, 50)
	setInt(&cfg.TopK, 5)
	setString(&cfg.LLMProvider, "openai")
	setString(&cfg.LLMBaseURL, "https://api.groq.com/openai/v1")
	setString(&cfg.LLMModel, "llama-3.1-8b-instant")
	if cfg.LLMTemperature == 0 {
		cfg.LLMTemperature = 0.2
	}
	setInt(&cfg.LLMMaxTokens, 1024)
	setString(&cfg.OllamaURL, "http://127.0.0.1:11434")
	setString(&cfg.EmbeddingProvider, "ollama")
	setString(&cfg.EmbeddingModel, "all-minilm")
	setInt(&cfg.EmbeddingDim, 384)
	setInt(&cfg.EmbeddingBatchSize, 16)
	setInt(&cfg.EmbeddingConcurrency, 2)
	setString(&cfg.CollectionConflict, "migrate")
	setInt(&cfg.ReadinessTimeoutSeconds, 30)
	setString(&cfg.StorageBackend, "disk")
	setString(&cfg.StorageDir, "uploads")
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	setInt(&cfg.SignupRateLimitPerMinute, 5)
	setInt(&cfg.LoginRateLimitPerMinute, 10)
	setInt(&cfg.ChatRateLimitPerMinute, 30)
}

func applyEnv(cfg *FileConfig) error {
	envString("PORT", &cfg.Port)
	envString("LOG_LEVEL", &cfg.LogLevel)
	envString("LOGS_DIR", &cfg.LogsDir)
	envString("DATABASE_URL", &cfg.DatabaseURL)
	envString("REDIS_ADDR", &cfg.RedisAddr)
	envString("REDIS_PASSWORD", &cfg.RedisPassword)
	envString("SESSION_SECRET", &cfg.SessionSecret)
	envString("LLM_PROVIDER", &cfg.LLMProvider)
	envString("LLM_BASE_URL", &cfg.LLMBaseURL)
	envString("GROQ_API", &cfg.LLMAPIKey)
	envString("LLM_API_KEY", &cfg.LLMAPIKey)
	envString("LLM_MODEL", &cfg.LLMModel)
	envString("OLLAMA_URL", &cfg.OllamaURL)
	envString("EMBEDDING_PROVIDER", &cfg.EmbeddingProvider)
	envString("EMBEDDING_BASE_URL", &cfg.EmbeddingBaseURL)
	envString("EMBEDDING_API_KEY", &cfg.EmbeddingAPIKey)
	envString("EMBEDDING_MODEL", &cfg.EmbeddingModel)
	envString("COLLECTION_CONFLICT", &cfg.CollectionConflict)
	envString("STORAGE_BACKEND", &cfg.StorageBackend)
	envString("STORAGE_DIR", &cfg.StorageDir)
	envString("MINIO_ENDPOINT", &cfg.MinioEndpoint)
	envString("MINIO_ACCESS_KEY", &cfg.MinioAccessKey)
	envString("MINIO_SECRET_KEY", &cfg.MinioSecretKey)
	envString("MINIO_BUCKET", &cfg.MinioBucket)
	if v := os.Getenv("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"SESSION_TTL_HOURS", &cfg.SessionTTLHours},
		{"CHUNK_SIZE", &cfg.ChunkSize},
		{"CHUNK_OVERLAP", &cfg.ChunkOverlap},
		{"TOP_K", &cfg.TopK},
		{"LLM_MAX_TOKENS", &cfg.LLMMaxTokens},
		{"EMBEDDING_DIM", &cfg.EmbeddingDim},
		{"EMBEDDING_BATCH_SIZE", &cfg.EmbeddingBatchSize},
		{"EMBEDDING_CONCURRENCY", &cfg.EmbeddingConcurrency},
		{"READINESS_TIMEOUT_SECONDS", &cfg.ReadinessTimeoutSeconds},
		{"SIGNUP_RATE_LIMIT_PER_MINUTE", &cfg.SignupRateLimitPerMinute},
		{"LOGIN_RATE_LIMIT_PER_MINUTE", &cfg.LoginRateLimitPerMinute},
		{"CHAT_RATE_LIMIT_PER_MINUTE", &cfg.ChatRateLimitPerMinute},
	}
	for _, it := range ints {
		if v := strings.TrimSpace(os.Getenv(it.key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("config: %s must be an integer: %w", it.key, err)
			}
			*it.dst = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_UPLOAD_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: MAX_UPLOAD_BYTES must be an integer: %w", err)
		}
		cfg.MaxUploadBytes = n
	}
	if v := strings.TrimSpace(os.Getenv("LLM_TEMPERATURE")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: LLM_TEMPERATURE must be a number: %w", err)
		}
		cfg.LLMTemperature = f
	}
	for key, dst := range map[string]*bool{
		"COOKIE_SECURE": &cfg.CookieSecure,
		"MINIO_USE_SSL": &cfg.MinioUseSSL,
	} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("config: %s must be a boolean: %w", key, err)
			}
			*dst = b
		}
	}
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.EmbeddingProvider = strings.ToLower(strings.TrimSpace(cfg.EmbeddingProvider))
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	cfg.CollectionConflict = strings.ToLower(strings.TrimSpace(cfg.CollectionConflict))
	return nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if strings.TrimSpace(cfg.SessionSecret) == "" {
		return errors.New("config: sessionSecret is required (set in config.yaml or SESSION_SECRET)")
	}
	if cfg.SessionTTLHours <= 0 {
		return errors.New("config: sessionTTLHours must be > 0")
	}
	if cfg.ChunkSize <= 0 || cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return fmt.Errorf("config: chunkOverlap (%d) must be >= 0 and < chunkSize (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}
	if cfg.TopK <= 0 {
		return errors.New("config: topK must be > 0")
	}
	switch cfg.LLMProvider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("config: unknown llmProvider %q (want openai or ollama)", cfg.LLMProvider)
	}
	if cfg.LLMTemperature < 0 || cfg.LLMTemperature > 2 {
		return fmt.Errorf("config: llmTemperature must be within [0,2], got %v", cfg.LLMTemperature)
	}
	if cfg.LLMMaxTokens <= 0 {
		return errors.New("config: llmMaxTokens must be > 0")
	}
	switch cfg.EmbeddingProvider {
	case "ollama":
	case "openai":
		if strings.TrimSpace(cfg.EmbeddingBaseURL) == "" {
			return errors.New("config: embeddingBaseURL is required for the openai embedding provider")
		}
	default:
		return fmt.Errorf("config: unknown embeddingProvider %q (want ollama or openai)", cfg.EmbeddingProvider)
	}
	if strings.TrimSpace(cfg.EmbeddingModel) == "" || cfg.EmbeddingDim <= 0 {
		return errors.New("config: embeddingModel and a positive embeddingDim are required")
	}
	if cfg.EmbeddingBatchSize <= 0 || cfg.EmbeddingConcurrency <= 0 {
		return errors.New("config: embeddingBatchSize and embeddingConcurrency must be > 0")
	}
	switch cfg.CollectionConflict {
	case "migrate", "reject":
	default:
		return fmt.Errorf("config: unknown collectionConflict %q (want migrate or reject)", cfg.CollectionConflict)
	}
	if cfg.ReadinessTimeoutSeconds <= 0 {
		return errors.New("config: readinessTimeoutSeconds must be > 0")
	}
	switch cfg.StorageBackend {
	case "disk":
		if strings.TrimSpace(cfg.StorageDir) == "" {
			return errors.New("config: storageDir is required for disk storage")
		}
	case "minio":
		if strings.TrimSpace(cfg.MinioEndpoint) == "" || strings.TrimSpace(cfg.MinioBucket) == "" {
			return errors.New("config: minioEndpoint and minioBucket are required for minio storage")
		}
	default:
		return fmt.Errorf("config: unknown storageBackend %q (want disk or minio)", cfg.StorageBackend)
	}
	if cfg.MaxUploadBytes <= 0 {
		return errors.New("config: maxUploadBytes must be > 0")
	}
	if cfg.SignupRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 || cfg.ChatRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	return nil
}

func setString(dst *string, def string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func envString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
