package config

import "fmt"

type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Camunda       CamundaConfig      `mapstructure:"camunda"`
	Database      DatabaseConfig     `mapstructure:"database"`
	LLM           LLMConfig          `mapstructure:"llm"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Business      BusinessConfig     `mapstructure:"business"`
	LinkTracker   LinkTrackerConfig  `mapstructure:"link_tracker"`
	Workers       WorkersConfig      `mapstructure:"workers"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type LLMConfig struct {
	BaseURL             string  `mapstructure:"base_url"` // OpenAI-compatible endpoint
	APIKey              string  `mapstructure:"api_key"`
	Model               string  `mapstructure:"model"`
	Timeout             int     `mapstructure:"timeout"` // milliseconds
	MaxTokens           int     `mapstructure:"max_tokens"`
	Temperature         float64 `mapstructure:"temperature"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
}

type NotificationConfig struct {
	AWSRegion    string `mapstructure:"aws_region"`
	SNSTopicARN  string `mapstructure:"sns_topic_arn"`
	EmailEnabled bool   `mapstructure:"email_enabled"`
	EmailFrom    string `mapstructure:"email_from"`
	EmailTo      string `mapstructure:"email_to"`
}

type BusinessConfig struct {
	HomeCity      string `mapstructure:"home_city"`
	HomeState     string `mapstructure:"home_state"`
	OpenHour      int    `mapstructure:"open_hour"`  // local time, inclusive
	CloseHour     int    `mapstructure:"close_hour"` // local time, exclusive
	OpenSaturday  bool   `mapstructure:"open_saturday"`
	Currency      string `mapstructure:"currency"`
	CatalogURL    string `mapstructure:"catalog_url"`
	StoreLocation string `mapstructure:"store_location"`
}

type LinkTrackerConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
}

type WorkersConfig struct {
	ResolveMessage WorkerConfig `mapstructure:"resolve_message"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
