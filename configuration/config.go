package configuration

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/skysweep/skysweep/pkg/logger"
)

type SinksConfig struct {
	FilesystemSink    *FileSystemSink
	ElasticsearchSink *ElasticsearchSink
}

type FileSystemSink struct {
	FilePath string
}

type ElasticsearchSink struct {
	Address   string
	Username  string
	Password  string
	IndexName string
}

type RetryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxElapsedTime  time.Duration
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

type EngineConfig struct {
	MaxWorkers          int
	ProviderConcurrency int
	Retry               RetryConfig
	RateLimit           RateLimitConfig
}

type KubernetesProvider struct {
	Enabled        bool
	KubeConfigFile string
	ClusterName    string
}

type StaticProvider struct {
	Enabled     bool
	FixturesDir string
	Providers   []string
}

type ProvidersConfig struct {
	Kubernetes KubernetesProvider
	Static     StaticProvider
}

type ComplianceConfig struct {
	FrameworksDir string
}

type Config struct {
	LogLevel string

	Engine     EngineConfig
	Providers  ProvidersConfig
	Compliance ComplianceConfig
	Sinks      SinksConfig
}

// GetConfiguration loads the scanner configuration from the TOML file at
// filePath. Keys can be overridden through the environment, dots replaced by
// underscores.
func GetConfiguration(filePath string) Config {
	dir, file := filepath.Split(filePath)

	viper.AutomaticEnv()
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.SetConfigName(file)
	viper.SetConfigType("toml")
	viper.AddConfigPath(dir)

	err := viper.ReadInConfig()
	if err != nil {
		logger.Fatal(err)
	}
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("engine.maxWorkers", 25)
	viper.SetDefault("engine.providerConcurrency", 5)
	viper.SetDefault("engine.retry.maxRetries", 4)
	viper.SetDefault("engine.retry.initialInterval", 500*time.Millisecond)
	viper.SetDefault("engine.retry.maxElapsedTime", 2*time.Minute)
	viper.SetDefault("engine.rateLimit.requestsPerSecond", 10.0)
	viper.SetDefault("engine.rateLimit.burst", 20)
	viper.SetDefault("providers.kubernetes.clusterName", "in-cluster")
	viper.SetDefault("compliance.frameworksDir", "frameworks")

	c := Config{}

	err = viper.Unmarshal(&c)
	if err != nil {
		logger.Fatal(err)
	}

	return c
}
