// Package config defines the application configuration struct and its
// viper-backed loader, in the teacher's style: struct-tagged sections,
// environment-variable overrides, ${VAR} substitution inside the file.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the application's top-level configuration.
type Config struct {
	Server    *ServerConfig    `yaml:"server" json:"server"`
	Retrieval *RetrievalConfig `yaml:"retrieval" json:"retrieval"`
	Cache     *CacheConfig     `yaml:"cache" json:"cache"`
	BM25      *BM25Config      `yaml:"bm25" json:"bm25"`
	Agent     *AgentConfig     `yaml:"agent" json:"agent"`
	Models    []ModelConfig    `yaml:"models" json:"models"`
	Asynq     *AsynqConfig     `yaml:"asynq" json:"asynq"`
}

// ServerConfig carries process-level settings the core relies on even
// though HTTP framing itself is out of scope.
type ServerConfig struct {
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" default:"30s"`
}

// RetrievalConfig configures the RetrievalPipeline's default feature
// toggles and the recommended timeouts of spec.md §5.
type RetrievalConfig struct {
	DefaultTopK          int           `yaml:"default_top_k" json:"default_top_k"`
	DefaultRerankTopK    int           `yaml:"default_rerank_top_k" json:"default_rerank_top_k"`
	MinFanoutK           int           `yaml:"min_fanout_k" json:"min_fanout_k"` // max(top_k, this) per spec.md §4.1 step 3
	RRFConstant          int           `yaml:"rrf_constant" json:"rrf_constant"` // k=60 per spec.md §4.1 step 4
	EmbeddingTimeout     time.Duration `yaml:"embedding_timeout" json:"embedding_timeout"`
	VectorSearchTimeout  time.Duration `yaml:"vector_search_timeout" json:"vector_search_timeout"`
	BM25SearchTimeout    time.Duration `yaml:"bm25_search_timeout" json:"bm25_search_timeout"`
	LLMTimeout           time.Duration `yaml:"llm_timeout" json:"llm_timeout"`
	LLMStreamTimeout     time.Duration `yaml:"llm_stream_timeout" json:"llm_stream_timeout"`
	LLMStreamIdleTimeout time.Duration `yaml:"llm_stream_idle_timeout" json:"llm_stream_idle_timeout"`
	CancelPropagation    time.Duration `yaml:"cancel_propagation_timeout" json:"cancel_propagation_timeout"`
	ChatModelID          string        `yaml:"chat_model_id" json:"chat_model_id"`
	HyDEPrompt           string        `yaml:"hyde_prompt" json:"hyde_prompt"`
	AnswerPromptSystem   string        `yaml:"answer_prompt_system" json:"answer_prompt_system"`
	AnswerPromptUser     string        `yaml:"answer_prompt_user" json:"answer_prompt_user"`
	NoMatchAnswer        string        `yaml:"no_match_answer" json:"no_match_answer"`
	MergeExcerpts        bool          `yaml:"merge_excerpts" json:"merge_excerpts"` // optional post-rerank span merge
}

// CacheConfig configures the two-tier cache of spec.md §4.3.
type CacheConfig struct {
	LocalCapacity int           `yaml:"local_capacity" json:"local_capacity"` // N=1024 default
	LocalTTL      time.Duration `yaml:"local_ttl" json:"local_ttl"`
	SharedTTL     time.Duration `yaml:"shared_ttl" json:"shared_ttl"`
	ReadTimeout   time.Duration `yaml:"read_timeout" json:"read_timeout"` // not read: cache reads carry no deadline of their own
	Shards        int           `yaml:"shards" json:"shards"`             // not read: the local tier always uses 16 shards
	Redis         RedisConfig   `yaml:"redis" json:"redis"`
}

// RedisConfig is the shared-tier backing store's connection info.
type RedisConfig struct {
	Address  string `yaml:"address" json:"address"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// BM25Config configures the in-process keyword index of spec.md §4.2.
type BM25Config struct {
	K1                float64       `yaml:"k1" json:"k1"`
	B                 float64       `yaml:"b" json:"b"`
	RefreshInterval   time.Duration `yaml:"refresh_interval" json:"refresh_interval"`
	FullRebuildPeriod time.Duration `yaml:"full_rebuild_period" json:"full_rebuild_period"`
	IndexWorkerPool   int           `yaml:"index_worker_pool" json:"index_worker_pool"`
}

// AgentConfig configures the tool-calling session state machine of
// spec.md §4.5.
type AgentConfig struct {
	MaxToolIterations int           `yaml:"max_tool_iterations" json:"max_tool_iterations" default:"3"`
	CancelGrace       time.Duration `yaml:"cancel_grace" json:"cancel_grace"` // bounded propagation, <=1s per spec.md §5
}

// AsynqConfig configures the background job runner that drives BM25's
// periodic refresh/rebuild, grounded on the teacher's internal/common/asyncq.go.
type AsynqConfig struct {
	Addr         string        `yaml:"addr" json:"addr"`
	Username     string        `yaml:"username" json:"username"`
	Password     string        `yaml:"password" json:"password"`
	Concurrency  int           `yaml:"concurrency" json:"concurrency"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// ModelConfig describes one configured embedding/chat/rerank model.
type ModelConfig struct {
	Type       string                 `yaml:"type" json:"type"` // "embedding" | "chat" | "rerank"
	Source     string                 `yaml:"source" json:"source"`
	ModelID    string                 `yaml:"model_id" json:"model_id"`
	ModelName  string                 `yaml:"model_name" json:"model_name"`
	BaseURL    string                 `yaml:"base_url" json:"base_url"`
	APIKey     string                 `yaml:"api_key" json:"api_key"`
	Dimensions int                    `yaml:"dimensions" json:"dimensions"`
	Parameters map[string]interface{} `yaml:"parameters" json:"parameters"`
}

// LoadConfig reads config.yaml (or $HOME/.ragcore, /etc/ragcore) with
// environment-variable overrides and ${VAR} substitution, exactly as the
// teacher's config.LoadConfig does.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("$HOME/.ragcore")
	viper.AddConfigPath("/etc/ragcore/")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	configFileContent, err := os.ReadFile(viper.ConfigFileUsed())
	if err != nil {
		return nil, fmt.Errorf("error reading config file content: %w", err)
	}

	re := regexp.MustCompile(`\${([^}]+)}`)
	result := re.ReplaceAllStringFunc(string(configFileContent), func(match string) string {
		envVar := match[2 : len(match)-1]
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})

	if err := viper.ReadConfig(strings.NewReader(result)); err != nil {
		return nil, fmt.Errorf("error re-reading substituted config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return &cfg, nil
}
