// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server           ServerConfig           `mapstructure:"server"`
	Database         DatabaseConfig         `mapstructure:"database"`
	JWT              JWTConfig              `mapstructure:"jwt"`
	Log              LogConfig              `mapstructure:"log"`
	Store            StoreConfig            `mapstructure:"store"`
	Kafka            KafkaConfig            `mapstructure:"kafka"`
	Elasticsearch    ElasticsearchConfig    `mapstructure:"elasticsearch"`
	MinIO            MinIOConfig            `mapstructure:"minio"`
	Embedding        EmbeddingConfig        `mapstructure:"embedding"`
	Index            IndexConfig            `mapstructure:"index"`
	PreferenceSource PreferenceSourceConfig `mapstructure:"preference_source"`
	Intent           IntentConfig           `mapstructure:"intent"`
	Scoring          ScoringConfig          `mapstructure:"scoring"`
	Learning         LearningConfig         `mapstructure:"learning"`
	Pipeline         PipelineConfig         `mapstructure:"pipeline"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// 每个客户端每秒允许的聊天请求数，0 表示不限流
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。DSN 为空时不连接。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空时会话与画像只使用进程内存储。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// 单次操作超时（秒）
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// StoreConfig 会话与画像存储的配置。
type StoreConfig struct {
	SessionTTLSeconds      int `mapstructure:"session_ttl_seconds"`
	HistorySize            int `mapstructure:"history_size"`
	CleanupIntervalSeconds int `mapstructure:"cleanup_interval_seconds"`
	ProfileTTLSeconds      int `mapstructure:"profile_ttl_seconds"`
	// 偏好服务不可用时默认画像的缓存时间
	DefaultProfileTTLSeconds int `mapstructure:"default_profile_ttl_seconds"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时商品索引任务同步执行。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置，用于保存向量索引快照。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	Dimensions     int    `mapstructure:"dimensions"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// IndexConfig 向量索引的配置。
type IndexConfig struct {
	// memory 或 elasticsearch
	Backend        string `mapstructure:"backend"`
	TopK           int    `mapstructure:"top_k"`
	SnapshotObject string `mapstructure:"snapshot_object"`
	// 启动时从 MySQL 商品表全量索引
	SeedFromCatalog bool `mapstructure:"seed_from_catalog"`
}

// PreferenceSourceConfig 用户偏好图服务的配置。BaseURL 为空时总是使用默认画像。
type PreferenceSourceConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	// 连续失败多少次后熔断
	FailureThreshold uint32 `mapstructure:"failure_threshold"`
	OpenSeconds      int    `mapstructure:"open_seconds"`
}

// IntentPattern 是意图表中的一个模式及其权重。
type IntentPattern struct {
	Pattern string  `mapstructure:"pattern"`
	Weight  float64 `mapstructure:"weight"`
}

// IntentConfig 意图分类器的配置。Patterns 为空时使用内置表。
type IntentConfig struct {
	Threshold float64                    `mapstructure:"threshold"`
	Patterns  map[string][]IntentPattern `mapstructure:"patterns"`
}

// ScoringConfig 混合打分权重。
type ScoringConfig struct {
	TextWeight    float64 `mapstructure:"text_weight"`
	ProfileWeight float64 `mapstructure:"profile_weight"`
}

// LearningConfig 异步偏好学习的配置。
type LearningConfig struct {
	QueueSize int `mapstructure:"queue_size"`
	Workers   int `mapstructure:"workers"`
}

// PipelineConfig 对话流水线的配置。
type PipelineConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// 上下文窗口中保留的商品数量
	ContextWindow int `mapstructure:"context_window"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.redis.timeout_seconds", 2)
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("store.session_ttl_seconds", 3600)
	v.SetDefault("store.history_size", 10)
	v.SetDefault("store.cleanup_interval_seconds", 300)
	v.SetDefault("store.profile_ttl_seconds", 3600)
	v.SetDefault("store.default_profile_ttl_seconds", 60)
	v.SetDefault("kafka.topic", "catalog-index")
	v.SetDefault("kafka.group_id", "myreprise-chatbot-indexer")
	v.SetDefault("elasticsearch.index_name", "offers_vectors")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.timeout_seconds", 8)
	v.SetDefault("index.backend", "memory")
	v.SetDefault("index.top_k", 5)
	v.SetDefault("index.snapshot_object", "index/offers.snapshot")
	v.SetDefault("preference_source.timeout_seconds", 10)
	v.SetDefault("preference_source.failure_threshold", 5)
	v.SetDefault("preference_source.open_seconds", 30)
	v.SetDefault("intent.threshold", 0.7)
	v.SetDefault("scoring.text_weight", 0.3)
	v.SetDefault("scoring.profile_weight", 0.7)
	v.SetDefault("learning.queue_size", 256)
	v.SetDefault("learning.workers", 2)
	v.SetDefault("pipeline.timeout_seconds", 15)
	v.SetDefault("pipeline.context_window", 5)
}

// Load 从指定路径读取 YAML 配置，环境变量 CHATBOT_* 可覆盖文件中的值。
// path 为空时只使用默认值和环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CHATBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return &cfg, nil
}
