/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT             = "5001"
	DEFAULT_MONITORING_PORT  = "5004"
	DEFAULT_CURRENCY         = "USD"
	DEFAULT_PROVIDER_TIMEOUT = 30

	ProviderEnvProduction = "production"
	ProviderEnvSandbox    = "sandbox"
	ProviderEnvMock       = "mock"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"PAYOUTS_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"PAYOUTS_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"PAYOUTS_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"PAYOUTS_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"PAYOUTS_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"PAYOUTS_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns             string        `json:"dns" envconfig:"PAYOUTS_DATA_SOURCE_DNS"`
	MaxOpenConns    int           `json:"max_open_conns" envconfig:"PAYOUTS_DATA_SOURCE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" envconfig:"PAYOUTS_DATA_SOURCE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" envconfig:"PAYOUTS_DATA_SOURCE_CONN_MAX_LIFETIME"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"PAYOUTS_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"PAYOUTS_REDIS_SKIP_TLS_VERIFY"`
}

// ProviderConfig holds credentials and behaviour for the external payment provider.
// Environment selects the client and must be set: production and sandbox
// talk HTTP to BaseURL, mock runs fully in memory.
type ProviderConfig struct {
	Environment         string `json:"environment" envconfig:"PAYOUTS_PROVIDER_ENVIRONMENT"`
	BaseURL             string `json:"base_url" envconfig:"PAYOUTS_PROVIDER_BASE_URL"`
	Key                 string `json:"key" envconfig:"PAYOUTS_PROVIDER_KEY"`
	Secret              string `json:"secret" envconfig:"PAYOUTS_PROVIDER_SECRET"`
	WebhookSecret       string `json:"webhook_secret" envconfig:"PAYOUTS_PROVIDER_WEBHOOK_SECRET"`
	TimeoutSeconds      int    `json:"timeout_seconds" envconfig:"PAYOUTS_PROVIDER_TIMEOUT_SECONDS"`
	Currency            string `json:"currency" envconfig:"PAYOUTS_PROVIDER_CURRENCY"`
	MasterFundingSource string `json:"master_funding_source" envconfig:"PAYOUTS_PROVIDER_MASTER_FUNDING_SOURCE"`
}

func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

type MailerConfig struct {
	Url            string            `json:"url" envconfig:"PAYOUTS_MAILER_URL"`
	From           string            `json:"from" envconfig:"PAYOUTS_MAILER_FROM"`
	TimeoutSeconds int               `json:"timeout_seconds" envconfig:"PAYOUTS_MAILER_TIMEOUT_SECONDS"`
	Headers        map[string]string `json:"headers"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"PAYOUTS_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"PAYOUTS_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"PAYOUTS_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"PAYOUTS_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url" envconfig:"PAYOUTS_WEBHOOK_URL"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type QueueConfig struct {
	ProviderEventQueue string `json:"provider_event_queue" envconfig:"PAYOUTS_QUEUE_PROVIDER_EVENTS"`
	NotificationQueue  string `json:"notification_queue" envconfig:"PAYOUTS_QUEUE_NOTIFICATIONS"`
	WebhookQueue       string `json:"webhook_queue" envconfig:"PAYOUTS_QUEUE_WEBHOOKS"`
	NumberOfWorkers    int    `json:"number_of_workers" envconfig:"PAYOUTS_QUEUE_NUMBER_OF_WORKERS"`
	MaxRetry           int    `json:"max_retry" envconfig:"PAYOUTS_QUEUE_MAX_RETRY"`
	MonitoringPort     string `json:"monitoring_port" envconfig:"PAYOUTS_QUEUE_MONITORING_PORT"`
}

type SweeperConfig struct {
	Enabled           bool `json:"enabled" envconfig:"PAYOUTS_SWEEPER_ENABLED"`
	IntervalSeconds   int  `json:"interval_seconds" envconfig:"PAYOUTS_SWEEPER_INTERVAL_SECONDS"`
	StuckAfterSeconds int  `json:"stuck_after_seconds" envconfig:"PAYOUTS_SWEEPER_STUCK_AFTER_SECONDS"`
	BatchSize         int  `json:"batch_size" envconfig:"PAYOUTS_SWEEPER_BATCH_SIZE"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"PAYOUTS_PROJECT_NAME"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Provider        ProviderConfig   `json:"provider"`
	Mailer          MailerConfig     `json:"mailer"`
	Notification    Notification     `json:"notification"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
	Queue           QueueConfig      `json:"queue"`
	Sweeper         SweeperConfig    `json:"sweeper"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"PAYOUTS_ENABLE_TELEMETRY"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("payouts", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called payouts.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Payouts Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Provider.Environment = strings.ToLower(strings.TrimSpace(cnf.Provider.Environment))
	cnf.Provider.BaseURL = strings.TrimRight(strings.TrimSpace(cnf.Provider.BaseURL), "/")

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if err := cnf.Provider.validateAndAddDefaults(); err != nil {
		return err
	}

	if cnf.Mailer.TimeoutSeconds <= 0 {
		cnf.Mailer.TimeoutSeconds = 10
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}

	// Set default cleanup interval if not specified
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
		log.Printf("Warning: Rate limit cleanup interval not specified. Setting default value: %d seconds", defaultCleanup)
	}

	cnf.Queue.addDefaults()
	cnf.Sweeper.addDefaults()

	return nil
}

func (p *ProviderConfig) validateAndAddDefaults() error {
	switch p.Environment {
	case "":
		log.Println("Error: Provider environment is empty. It's a required field.")
		return errors.New("provider environment is required: production, sandbox or mock")
	case ProviderEnvProduction, ProviderEnvSandbox:
		if p.BaseURL == "" {
			return fmt.Errorf("provider base url is required for the %s environment", p.Environment)
		}
		if p.Key == "" || p.Secret == "" {
			return fmt.Errorf("provider key and secret are required for the %s environment", p.Environment)
		}
	case ProviderEnvMock:
	default:
		return fmt.Errorf("unknown provider environment %q", p.Environment)
	}

	if p.TimeoutSeconds <= 0 {
		p.TimeoutSeconds = DEFAULT_PROVIDER_TIMEOUT
	}
	if p.Currency == "" {
		p.Currency = DEFAULT_CURRENCY
	}
	p.Currency = strings.ToUpper(p.Currency)
	return nil
}

func (q *QueueConfig) addDefaults() {
	if q.ProviderEventQueue == "" {
		q.ProviderEventQueue = "payouts:provider_events"
	}
	if q.NotificationQueue == "" {
		q.NotificationQueue = "payouts:notifications"
	}
	if q.WebhookQueue == "" {
		q.WebhookQueue = "payouts:webhooks"
	}
	if q.NumberOfWorkers <= 0 {
		q.NumberOfWorkers = 10
	}
	if q.MaxRetry <= 0 {
		q.MaxRetry = 5
	}
	if q.MonitoringPort == "" {
		q.MonitoringPort = DEFAULT_MONITORING_PORT
	}
}

func (s *SweeperConfig) addDefaults() {
	if s.IntervalSeconds <= 0 {
		s.IntervalSeconds = 300
	}
	if s.StuckAfterSeconds <= 0 {
		s.StuckAfterSeconds = 3600
	}
	if s.BatchSize <= 0 {
		s.BatchSize = 50
	}
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
