// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，供 cmd/server 使用。组件本身只接收显式传入的配置值。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	RAG           RAGConfig           `mapstructure:"rag"`
	VectorStore   VectorStoreConfig   `mapstructure:"vector_store"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// MaxUploadMB 限制单个上传文件的大小。
	MaxUploadMB int `mapstructure:"max_upload_mb"`
	// SeedDir 下的文件在启动时自动导入，已存在同名文档则跳过。为空表示不导入。
	SeedDir string `mapstructure:"seed_dir"`
}

// DatabaseConfig 存储所有数据库连接的配置。
// Driver 选择 gorm 方言：mysql 或 sqlite。Mongo 仅在 vector_store.backend=mongo 时用于存储分块。
type DatabaseConfig struct {
	Driver string       `mapstructure:"driver"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
	Mongo  MongoConfig  `mapstructure:"mongo"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// SQLiteConfig 存储本地 SQLite 数据库文件路径。
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// MongoConfig 存储 MongoDB 的配置。
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。令牌由宿主应用签发，本服务只做校验。
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

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
// 同一部署生命周期内 Model 必须固定，否则相似度比较失去意义。
type EmbeddingConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	Dimensions        int           `mapstructure:"dimensions"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// RAGConfig 存储分块、批量向量化与检索相关的参数。
type RAGConfig struct {
	ChunkSize          int           `mapstructure:"chunk_size"`
	ChunkOverlap       int           `mapstructure:"chunk_overlap"`
	EmbedBatchSize     int           `mapstructure:"embed_batch_size"`
	ContextTopK        int           `mapstructure:"context_top_k"`
	SearchDefaultLimit int           `mapstructure:"search_default_limit"`
	SearchMaxLimit     int           `mapstructure:"search_max_limit"`
	StoreTimeout       time.Duration `mapstructure:"store_timeout"`
}

// VectorStoreConfig 选择分块存储与相似度检索的后端：
// database、mongo（进程内全量余弦）或 elasticsearch（script_score 精确余弦）。
type VectorStoreConfig struct {
	Backend string `mapstructure:"backend"`
}

// Load 从指定路径读取 YAML 配置，叠加环境变量（前缀 IEP_），并填充默认值。
func Load(configPath string) (*Config, error) {
	// .env 文件可选，不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("IEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Init 初始化全局配置 Conf，失败时 panic，与 cmd/server 的启动方式保持一致。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8081"
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = 50
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "iep-rag-ingest"
	}
	if c.Elasticsearch.IndexName == "" {
		c.Elasticsearch.IndexName = "iep_chunks"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Timeout <= 0 {
		c.Embedding.Timeout = 30 * time.Second
	}
	c.RAG.applyDefaults()
	if c.VectorStore.Backend == "" {
		c.VectorStore.Backend = "database"
	}
}

func (r *RAGConfig) applyDefaults() {
	if r.ChunkSize <= 0 {
		r.ChunkSize = 800
	}
	if r.ChunkOverlap <= 0 {
		r.ChunkOverlap = 100
	}
	if r.EmbedBatchSize <= 0 {
		r.EmbedBatchSize = 50
	}
	if r.ContextTopK <= 0 {
		r.ContextTopK = 8
	}
	if r.SearchDefaultLimit <= 0 {
		r.SearchDefaultLimit = 10
	}
	if r.SearchMaxLimit <= 0 {
		r.SearchMaxLimit = 50
	}
	if r.StoreTimeout <= 0 {
		r.StoreTimeout = 10 * time.Second
	}
}

// DefaultRAGConfig 返回填充了默认值的 RAGConfig，供 CLI 与测试使用。
func DefaultRAGConfig() RAGConfig {
	var r RAGConfig
	r.applyDefaults()
	return r
}

// Validate 检查互相矛盾或缺失的关键配置。
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver)
	}
	switch c.VectorStore.Backend {
	case "database", "mongo", "elasticsearch":
	default:
		return fmt.Errorf("不支持的向量存储后端: %q", c.VectorStore.Backend)
	}
	if c.Embedding.BaseURL == "" {
		return errors.New("embedding.base_url 不能为空")
	}
	if c.RAG.SearchDefaultLimit > c.RAG.SearchMaxLimit {
		return fmt.Errorf("rag.search_default_limit (%d) 大于 rag.search_max_limit (%d)", c.RAG.SearchDefaultLimit, c.RAG.SearchMaxLimit)
	}
	return nil
}
