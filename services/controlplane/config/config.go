package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the controlplane service.
type Config struct {
	LogLevel     string
	HTTPPort     string
	MetricsAddr  string
	OTelEndpoint string

	KafkaBrokers string
	RedisAddr    string
	PostgresDSN  string

	AccountsFile string

	KubeAPIURL   string
	KubeToken    string
	KubeInsecure bool

	RateLimit       int
	RateLimitWindow time.Duration

	TaskRetention  time.Duration
	ReaperSchedule string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:     v.GetString("log_level"),
		HTTPPort:     v.GetString("http_port"),
		MetricsAddr:  v.GetString("metrics_addr"),
		OTelEndpoint: v.GetString("otel_endpoint"),

		KafkaBrokers: v.GetString("kafka_brokers"),
		RedisAddr:    v.GetString("redis_addr"),
		PostgresDSN:  v.GetString("postgres_dsn"),

		AccountsFile: v.GetString("accounts_file"),

		KubeAPIURL:   v.GetString("kube_api_url"),
		KubeToken:    v.GetString("kube_token"),
		KubeInsecure: v.GetBool("kube_insecure"),

		RateLimit:       v.GetInt("rate_limit"),
		RateLimitWindow: v.GetDuration("rate_limit_window"),

		TaskRetention:  v.GetDuration("task_retention"),
		ReaperSchedule: v.GetString("reaper_schedule"),
	}
}
