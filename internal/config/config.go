package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// PostgresConfig configures the authoritative relational Chunk Store pool
// and pgvector distance metric.
type PostgresConfig struct {
	ConnectionString string `yaml:"connection_string"`
	MinConns         int32  `yaml:"min_conns"`
	MaxConns         int32  `yaml:"max_conns"`
	VectorMetric     string `yaml:"vector_metric"` // cosine|l2|ip
	DefaultANNProbes int    `yaml:"default_ann_probes"`
}

// SecondaryIndexConfig configures the qdrant-backed secondary ANN mirror.
// Chunks and images are mirrored into separate collections since they carry
// different embedders/dimensions.
type SecondaryIndexConfig struct {
	DSN                 string  `yaml:"dsn"`
	Collection          string  `yaml:"collection"`
	Dimensions          int     `yaml:"dimensions"`
	ImageCollection     string  `yaml:"image_collection"`
	ImageDimensions     int     `yaml:"image_dimensions"`
	Metric              string  `yaml:"metric"`
	ForceRecreate       bool    `yaml:"force_recreate"`
	RecencyHalfLifeDays float64 `yaml:"recency_half_life_days"`
	RecencyBoost        float64 `yaml:"recency_boost"`
}

// TenantCacheConfig configures the per-tenant Redis result cache.
type TenantCacheConfig struct {
	Addr                    string        `yaml:"addr"`
	Password                string        `yaml:"password,omitempty"`
	DB                      int           `yaml:"db"`
	TLSInsecureSkipVerify   bool          `yaml:"tls_insecure_skip_verify,omitempty"`
	Namespace               string        `yaml:"namespace"`
	SchemaVersion           int           `yaml:"schema_version"`
	DefaultTTL              time.Duration `yaml:"default_ttl"`
	BreakerFailureThreshold int           `yaml:"breaker_failure_threshold"`
	BreakerCooldown         time.Duration `yaml:"breaker_cooldown"`
}

// TuningConfig seeds the runtime-adjustable retrieval knobs.
type TuningConfig struct {
	DefaultTopK       int64   `yaml:"default_top_k"`
	ANNProbes         int64   `yaml:"ann_probes"`
	ANNNumCandidates  int64   `yaml:"ann_num_candidates"`
	ImageVectorWeight float64 `yaml:"image_vector_weight"`
	ImageTextWeight   float64 `yaml:"image_text_weight"`
}

// DeepResearchConfig tunes the Deep Research orchestrator's turn pipeline.
type DeepResearchConfig struct {
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
	LocalTopK       int     `yaml:"local_top_k"`
	RetryLoops      int     `yaml:"retry_loops"`
	MissingLoops    int     `yaml:"missing_loops"`
	MissingTopK     int     `yaml:"missing_top_k"`
	ConfidenceFloor float64 `yaml:"confidence_floor"`
	RelevanceMin    float64 `yaml:"relevance_min"`
	KeepMessages    int     `yaml:"keep_messages"`
	MaxReferences   int     `yaml:"max_references"`
}

// WebSearchConfig configures the SearXNG-backed web research agent.
type WebSearchConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SearXNGURL string `yaml:"searxng_url"`
	TopK       int    `yaml:"top_k"`
	ForceWeb   bool   `yaml:"force_web,omitempty"`
}

// ObjectStoreConfig configures the S3-compatible object store used for
// uploaded source documents and image assets.
type ObjectStoreConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	UsePathStyle    bool   `yaml:"use_path_style,omitempty"`
	LocalDir        string `yaml:"local_dir,omitempty"`
	PARExpiry       int    `yaml:"par_expiry_seconds,omitempty"`
}

// EmbeddingConfig configures the HTTP embedding service. The text endpoint
// returns D_text vectors; the image endpoints return D_img vectors from the
// cross-modal encoder, so text-to-image queries land in the same space as
// indexed images.
type EmbeddingConfig struct {
	BaseURL         string            `yaml:"base_url"`
	Path            string            `yaml:"path"`
	ImagePath       string            `yaml:"image_path,omitempty"`
	ImageTextPath   string            `yaml:"image_text_path,omitempty"`
	Model           string            `yaml:"model"`
	ImageModel      string            `yaml:"image_model,omitempty"`
	APIKey          string            `yaml:"api_key,omitempty"`
	APIHeader       string            `yaml:"api_header,omitempty"`
	Headers         map[string]string `yaml:"headers,omitempty"`
	Timeout         int               `yaml:"timeout_seconds,omitempty"`
	TextDimensions  int               `yaml:"text_dimensions"`
	ImageDimensions int               `yaml:"image_dimensions"`
}

// OpenAIConfig configures the OpenAI (or OpenAI-compatible self-hosted)
// chat-completion client. Self-hosted servers are pointed at via base_url.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
}

// AnthropicConfig configures the Anthropic chat-completion client.
type AnthropicConfig struct {
	APIKey            string `yaml:"api_key,omitempty"`
	BaseURL           string `yaml:"base_url,omitempty"`
	Model             string `yaml:"model"`
	MaxTokens         int64  `yaml:"max_tokens,omitempty"`
	CacheSystemPrompt bool   `yaml:"cache_system_prompt,omitempty"`
}

// GoogleConfig configures the Gemini chat-completion client.
type GoogleConfig struct {
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
	Timeout int    `yaml:"timeout_seconds,omitempty"`
}

// LLMClientConfig selects and configures the chat-completion provider used by
// the RAG Answerer and the Deep Research orchestrator. OCI and Ollama are
// accepted provider names with no dedicated sub-config: both resolve to stub
// providers (see internal/llm/oci.go, internal/llm/ollama.go) since neither
// has a client in the adopted dependency set.
type LLMClientConfig struct {
	Provider  string          `yaml:"provider"` // openai|anthropic|google|oci|ollama
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Google    GoogleConfig    `yaml:"google"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Endpoint       string `yaml:"endpoint"`
	Insecure       bool   `yaml:"insecure"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version,omitempty"`
	Environment    string `yaml:"environment,omitempty"`
}

// ChunkerConfig configures the document chunker shared by upload ingestion
// and the external URL ingestor.
type ChunkerConfig struct {
	Strategy string `yaml:"strategy"` // fixed|markdown|recursive
	Size     int    `yaml:"size"`
	Overlap  int    `yaml:"overlap"`
}

type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DataPath string `yaml:"data_path"`
	LogPath  string `yaml:"log_path,omitempty"`
	LogLevel string `yaml:"log_level,omitempty"`

	Postgres       PostgresConfig       `yaml:"postgres"`
	SecondaryIndex SecondaryIndexConfig `yaml:"secondary_index"`
	TenantCache    TenantCacheConfig    `yaml:"tenant_cache"`
	Tuning         TuningConfig         `yaml:"tuning"`
	DeepResearch   DeepResearchConfig   `yaml:"deep_research"`
	WebSearch      WebSearchConfig      `yaml:"web_search"`
	ObjectStore    ObjectStoreConfig    `yaml:"object_store"`
	Embedding      EmbeddingConfig      `yaml:"embedding"`
	Chunker        ChunkerConfig        `yaml:"chunker"`
	LLMClient      LLMClientConfig      `yaml:"llm_client"`
	OTel           TelemetryConfig      `yaml:"otel"`
}

// LoadConfig reads the YAML configuration, applies defaults, and resolves
// secret values from the environment when the file leaves them empty.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		log.Error().Err(err).Str("file", filename).Msg("error reading config file")
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		log.Error().Err(err).Msg("error unmarshaling config")
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	config.applyDefaults()
	config.applyEnvOverrides()

	log.Info().Msg("configuration loaded successfully")
	return &config, nil
}

func (config *Config) applyDefaults() {
	if config.OTel.ServiceName == "" {
		config.OTel.ServiceName = "spaces-ai"
	}

	if config.Postgres.VectorMetric == "" {
		config.Postgres.VectorMetric = "cosine"
	}
	if config.Postgres.MinConns <= 0 {
		config.Postgres.MinConns = 2
	}
	if config.Postgres.MaxConns <= 0 {
		config.Postgres.MaxConns = 10
	}
	if config.Postgres.DefaultANNProbes <= 0 {
		config.Postgres.DefaultANNProbes = 10
	}

	if config.SecondaryIndex.Metric == "" {
		config.SecondaryIndex.Metric = "cosine"
	}
	if config.SecondaryIndex.RecencyHalfLifeDays <= 0 {
		config.SecondaryIndex.RecencyHalfLifeDays = 30
	}

	if config.TenantCache.Namespace == "" {
		config.TenantCache.Namespace = "spaces-ai"
	}
	if config.TenantCache.SchemaVersion <= 0 {
		config.TenantCache.SchemaVersion = 1
	}
	if config.TenantCache.DefaultTTL <= 0 {
		config.TenantCache.DefaultTTL = 10 * time.Minute
	}
	if config.TenantCache.BreakerFailureThreshold <= 0 {
		config.TenantCache.BreakerFailureThreshold = 5
	}
	if config.TenantCache.BreakerCooldown <= 0 {
		config.TenantCache.BreakerCooldown = 30 * time.Second
	}

	if config.Tuning.DefaultTopK <= 0 {
		config.Tuning.DefaultTopK = 10
	}
	if config.Tuning.ANNProbes <= 0 {
		config.Tuning.ANNProbes = 10
	}
	if config.Tuning.ANNNumCandidates <= 0 {
		config.Tuning.ANNNumCandidates = 100
	}
	if config.Tuning.ImageVectorWeight <= 0 {
		config.Tuning.ImageVectorWeight = 0.7
	}
	if config.Tuning.ImageTextWeight <= 0 {
		config.Tuning.ImageTextWeight = 0.3
	}

	// These defaults are independent of deepresearch.Config.normalized(),
	// which applies its own, partly different fallbacks to fields that reach
	// the orchestrator as zero.
	if config.DeepResearch.TimeoutSeconds <= 0 {
		config.DeepResearch.TimeoutSeconds = 120
	}
	if config.DeepResearch.LocalTopK <= 0 {
		config.DeepResearch.LocalTopK = 8
	}
	if config.DeepResearch.RetryLoops <= 0 {
		config.DeepResearch.RetryLoops = 2
	}
	if config.DeepResearch.MissingLoops <= 0 {
		config.DeepResearch.MissingLoops = 2
	}
	if config.DeepResearch.MissingTopK <= 0 {
		config.DeepResearch.MissingTopK = 4
	}
	if config.DeepResearch.ConfidenceFloor <= 0 {
		config.DeepResearch.ConfidenceFloor = 0.35
	}
	if config.DeepResearch.RelevanceMin <= 0 {
		config.DeepResearch.RelevanceMin = 0.2
	}
	if config.DeepResearch.KeepMessages <= 0 {
		config.DeepResearch.KeepMessages = 20
	}
	if config.DeepResearch.MaxReferences <= 0 {
		config.DeepResearch.MaxReferences = 12
	}

	if config.WebSearch.TopK <= 0 {
		config.WebSearch.TopK = 5
	}

	if config.Embedding.Path == "" {
		config.Embedding.Path = "/v1/embeddings"
	}
	if config.Embedding.Timeout <= 0 {
		config.Embedding.Timeout = 30
	}

	if config.Chunker.Strategy == "" {
		config.Chunker.Strategy = "fixed"
	}
	if config.Chunker.Size <= 0 {
		config.Chunker.Size = 1200
	}
	if config.Chunker.Overlap < 0 {
		config.Chunker.Overlap = 0
	}

	if config.LLMClient.Provider == "" {
		config.LLMClient.Provider = "openai"
	}
	if config.LLMClient.OpenAI.Model == "" {
		config.LLMClient.OpenAI.Model = "gpt-4o-mini"
	}
}

// applyEnvOverrides fills secrets left empty in the file from the
// environment, so config files can be committed without credentials.
func (config *Config) applyEnvOverrides() {
	envOr := func(current *string, key string) {
		if *current == "" {
			if v := os.Getenv(key); v != "" {
				*current = v
			}
		}
	}
	envOr(&config.Postgres.ConnectionString, "SPACES_AI_POSTGRES_DSN")
	envOr(&config.TenantCache.Password, "SPACES_AI_REDIS_PASSWORD")
	envOr(&config.Embedding.APIKey, "SPACES_AI_EMBEDDING_API_KEY")
	envOr(&config.LLMClient.OpenAI.APIKey, "OPENAI_API_KEY")
	envOr(&config.LLMClient.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	envOr(&config.LLMClient.Google.APIKey, "GEMINI_API_KEY")
	envOr(&config.ObjectStore.AccessKeyID, "AWS_ACCESS_KEY_ID")
	envOr(&config.ObjectStore.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
}
