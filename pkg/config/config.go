package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	SQLite  SQLiteConfig
	Milvus  MilvusConfig
	Redis   RedisConfig
	Kafka   KafkaConfig
	AI      AIConfig
	Search  SearchConfig
	Chat    ChatConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Sessions bool
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type AIConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	EmbeddingDim   int
	Temperature    float32
	MaxTokens      int
}

type SearchConfig struct {
	Endpoint  string
	APIToken  string
	IndexName string
	Enabled   bool
}

type ChatConfig struct {
	MaxSessionTurns int
	HistoryReplay   int
	MaxSources      int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/signal")

	viper.SetEnvPrefix("SIGNAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/signal.db")

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "feedback_embeddings")
	viper.SetDefault("milvus.vectorDim", 768)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.sessions", false)

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic", "signal-feedback-queue")

	viper.SetDefault("ai.model", "gpt-4o-mini")
	viper.SetDefault("ai.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("ai.embeddingDim", 768)
	viper.SetDefault("ai.temperature", 0.7)
	viper.SetDefault("ai.maxTokens", 1000)

	viper.SetDefault("search.indexName", "signal-knowledge")
	viper.SetDefault("search.enabled", true)

	viper.SetDefault("chat.maxSessionTurns", 50)
	viper.SetDefault("chat.historyReplay", 10)
	viper.SetDefault("chat.maxSources", 10)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
