package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	PartialStoreFile     = "file"
	PartialStorePostgres = "postgres"
	PartialStoreRedis    = "redis"

	EmbedModeExiftool = "exiftool"
	EmbedModeSidecar  = "sidecar"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	MaxUploadBytes     int64
	CORSAllowedOrigins []string

	DescribeProvider string
	GeminiAPIKeys    []string
	GeminiModel      string
	GeminiBaseURL    string
	OpenAIAPIKeys    []string
	OpenAIModel      string
	OpenAIBaseURL    string

	BatchSize                  int
	Workers                    int
	MaxAttempts                int
	RetryDelay                 time.Duration
	CallTimeout                time.Duration
	CredentialFailureThreshold int

	MaxItemsPerRun int
	DailyItemQuota int

	VectorTargetWidth  int
	VectorTargetHeight int

	DefaultCategory string
	DefaultReleases string
	EmbedMode       string
	ExiftoolPath    string

	StoragePath  string
	PartialStore string
	DatabaseURL  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioLinkTTL   time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 60)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 600)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_MB", 512)) * 1024 * 1024,
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),

		DescribeProvider: strings.ToLower(getEnv("DESCRIBE_PROVIDER", ProviderGemini)),
		GeminiAPIKeys:    getEnvList("GEMINI_API_KEYS"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		OpenAIAPIKeys:    getEnvList("OPENAI_API_KEYS"),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),

		BatchSize:                  getEnvInt("BATCH_SIZE", 6),
		Workers:                    getEnvInt("WORKERS", 4),
		MaxAttempts:                getEnvInt("MAX_ATTEMPTS", 3),
		RetryDelay:                 getEnvDuration("RETRY_DELAY_MS", time.Millisecond, 2000),
		CallTimeout:                getEnvDuration("CALL_TIMEOUT_SECONDS", time.Second, 60),
		CredentialFailureThreshold: getEnvInt("CREDENTIAL_FAILURE_THRESHOLD", 3),

		MaxItemsPerRun: getEnvInt("MAX_ITEMS_PER_RUN", 100),
		DailyItemQuota: getEnvInt("DAILY_ITEM_QUOTA", 0),

		VectorTargetWidth:  getEnvInt("VECTOR_TARGET_WIDTH", 2048),
		VectorTargetHeight: getEnvInt("VECTOR_TARGET_HEIGHT", 0),

		DefaultCategory: getEnv("DEFAULT_CATEGORY", "3"),
		DefaultReleases: getEnv("DEFAULT_RELEASES", "Placeholder Name 1, Placeholder Name 2"),
		EmbedMode:       strings.ToLower(getEnv("EMBED_MODE", EmbedModeExiftool)),
		ExiftoolPath:    os.Getenv("EXIFTOOL_PATH"),

		StoragePath:  getEnv("STORAGE_PATH", "./storage"),
		PartialStore: strings.ToLower(getEnv("PARTIAL_STORE", PartialStoreFile)),
		DatabaseURL:  os.Getenv("DATABASE_URL"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "metapro"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioLinkTTL:   getEnvDuration("MINIO_LINK_TTL_MINUTES", time.Minute, 60*24),
	}

	if single := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); single != "" {
		cfg.GeminiAPIKeys = appendUnique(cfg.GeminiAPIKeys, single)
	}
	if single := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); single != "" {
		cfg.OpenAIAPIKeys = appendUnique(cfg.OpenAIAPIKeys, single)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DescribeProvider {
	case ProviderGemini:
	case ProviderOpenAI:
		if len(c.OpenAIAPIKeys) == 0 {
			return fmt.Errorf("OPENAI_API_KEYS is required when DESCRIBE_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("unsupported DESCRIBE_PROVIDER %q", c.DescribeProvider)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be at least 1, got %d", c.BatchSize)
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be at least 1, got %d", c.MaxAttempts)
	}
	switch c.PartialStore {
	case PartialStoreFile:
	case PartialStorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when PARTIAL_STORE=postgres")
		}
	case PartialStoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when PARTIAL_STORE=redis")
		}
	default:
		return fmt.Errorf("unsupported PARTIAL_STORE %q", c.PartialStore)
	}
	switch c.EmbedMode {
	case EmbedModeExiftool, EmbedModeSidecar:
	default:
		return fmt.Errorf("unsupported EMBED_MODE %q", c.EmbedMode)
	}
	return nil
}

// ProviderKeys returns the configured credentials of the active describe provider.
func (c *Config) ProviderKeys() []string {
	if c.DescribeProvider == ProviderOpenAI {
		return c.OpenAIAPIKeys
	}
	return c.GeminiAPIKeys
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, unit time.Duration, fallback int) time.Duration {
	return unit * time.Duration(getEnvInt(key, fallback))
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		out = appendUnique(out, part)
	}
	return out
}

func appendUnique(list []string, value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return list
	}
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}
