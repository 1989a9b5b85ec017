package app

import (
	"strings"
	"time"

	"github.com/yungbote/ideaforge-backend/internal/observability"
	"github.com/yungbote/ideaforge-backend/internal/platform/envutil"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

type Config struct {
	Env         string
	Version     string
	LogMode     string
	Addr        string
	ServiceName string
	Otel        observability.OtelConfig

	DBDriver     string
	DatabaseURL  string
	LogSQL       bool
	EmbeddingDim int

	LLMProvider        string
	EmbeddingProvider  string
	EmbeddingCacheSize int

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	OpenAIEmbedModel string
	OpenAITimeout    time.Duration
	OpenAIMaxRetries int

	GeminiAPIKey     string
	GeminiModel      string
	GeminiEmbedModel string

	AnthropicAPIKey string
	AnthropicModel  string

	ProfilesDir    string
	DefaultProfile string
	WatchProfiles  bool

	DuplicateThreshold float64
	DuplicateTopK      int

	MaxSlots         int
	SchedulerEnabled bool
	SchedulerTick    time.Duration

	StreamPollInterval time.Duration
	StreamGrace        time.Duration

	AuthDisabled bool
	JWTSecretKey string
	JWTIssuer    string
	CORSOrigins  []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string

	ShutdownTimeout time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Env:         envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),
		LogMode:     envutil.String("LOG_MODE", "development"),
		Addr:        ":" + envutil.String("PORT", "8080"),
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "ideaforge"),

		DBDriver:     envutil.String("DB_DRIVER", "postgres"),
		DatabaseURL:  envutil.String("DATABASE_URL", ""),
		LogSQL:       envutil.Bool("DB_LOG_SQL", false),
		EmbeddingDim: envutil.Int("EMBEDDING_DIM", 1536),

		LLMProvider:        envutil.String("LLM_PROVIDER", "openai"),
		EmbeddingProvider:  envutil.String("EMBEDDING_PROVIDER", "openai"),
		EmbeddingCacheSize: envutil.Int("EMBEDDING_CACHE_SIZE", 1024),

		OpenAIAPIKey:     envutil.String("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    envutil.String("OPENAI_BASE_URL", ""),
		OpenAIModel:      envutil.String("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIEmbedModel: envutil.String("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		OpenAITimeout:    envutil.Duration("OPENAI_TIMEOUT", 120*time.Second),
		OpenAIMaxRetries: envutil.Int("OPENAI_MAX_RETRIES", 0),

		GeminiAPIKey:     envutil.String("GEMINI_API_KEY", ""),
		GeminiModel:      envutil.String("GEMINI_MODEL", ""),
		GeminiEmbedModel: envutil.String("GEMINI_EMBED_MODEL", ""),

		AnthropicAPIKey: envutil.String("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envutil.String("ANTHROPIC_MODEL", ""),

		ProfilesDir:    envutil.String("PROFILES_DIR", "configs/profiles"),
		DefaultProfile: envutil.String("DEFAULT_PROFILE", "default"),
		WatchProfiles:  envutil.Bool("PROFILES_WATCH", true),

		DuplicateThreshold: envutil.Float("DUPLICATE_SIMILARITY_THRESHOLD", 0.85),
		DuplicateTopK:      envutil.Int("DUPLICATE_TOP_K", 5),

		MaxSlots:         envutil.Int("MAX_SLOTS", 10),
		SchedulerEnabled: envutil.Bool("SCHEDULER_ENABLED", true),
		SchedulerTick:    envutil.Duration("SCHEDULER_TICK", 15*time.Second),

		StreamPollInterval: envutil.Duration("STREAM_POLL_INTERVAL", 500*time.Millisecond),
		StreamGrace:        envutil.Duration("STREAM_GRACE", 5*time.Second),

		AuthDisabled: envutil.Bool("AUTH_DISABLED", false),
		JWTSecretKey: envutil.String("JWT_SECRET_KEY", ""),
		JWTIssuer:    envutil.String("JWT_ISSUER", ""),
		CORSOrigins:  splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),

		RedisAddr:     envutil.String("REDIS_ADDR", ""),
		RedisPassword: envutil.String("REDIS_PASSWORD", ""),
		RedisDB:       envutil.Int("REDIS_DB", 0),
		RedisChannel:  envutil.String("REDIS_EVENTS_CHANNEL", "ideaforge:events"),

		ShutdownTimeout: envutil.Duration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
	cfg.Otel = observability.OtelConfig{
		Enabled:     envutil.Bool("OTEL_ENABLED", false),
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Version:     cfg.Version,
		Endpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Insecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
		Headers:     observability.ParseHeaders(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "")),
		SampleRatio: envutil.Float("OTEL_SAMPLER_RATIO", 0.1),
	}
	if cfg.MaxSlots < 1 || cfg.MaxSlots > 10 {
		log.Warn("MAX_SLOTS out of range; clamping", "value", cfg.MaxSlots)
		cfg.MaxSlots = min(max(cfg.MaxSlots, 1), 10)
	}
	if cfg.AuthDisabled {
		log.Warn("Authentication is disabled (AUTH_DISABLED=true)")
	}
	return cfg
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
