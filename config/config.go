/*
Copyright 2024 Earnly Authors.

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
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5002"

	EnvProduction = "production"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"EARNLY_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"EARNLY_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"EARNLY_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"EARNLY_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"EARNLY_REDIS_DNS"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"EARNLY_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"EARNLY_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"EARNLY_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

// ProviderConfig holds the verification settings for one reward network.
// ObserveOnly downgrades an HMAC mismatch to a logged warning instead of a
// rejection; it exists for soft-launching an integration whose documented
// canonicalization has not been confirmed byte-for-byte.
type ProviderConfig struct {
	Secret      string `json:"secret"`
	ObserveOnly bool   `json:"observe_only"`
}

type ProvidersConfig struct {
	Kiwiwall        ProviderConfig `json:"kiwiwall"`
	AdGateMedia     ProviderConfig `json:"adgatemedia"`
	AdGem           ProviderConfig `json:"adgem"`
	OfferToro       ProviderConfig `json:"offertoro"`
	AyetStudios     ProviderConfig `json:"ayetstudios"`
	CPXResearch     ProviderConfig `json:"cpxresearch"`
	BitLabs         ProviderConfig `json:"bitlabs"`
	Pollfish        ProviderConfig `json:"pollfish"`
	TheoremReach    ProviderConfig `json:"theoremreach"`
	Wannads         ProviderConfig `json:"wannads"`
	Lootably        ProviderConfig `json:"lootably"`
	RevenueUniverse ProviderConfig `json:"revenueuniverse"`
}

// Get returns the configuration for a provider identifier. Unknown providers
// get a zero config, which the authenticator treats as fail-closed.
func (p ProvidersConfig) Get(provider string) ProviderConfig {
	switch provider {
	case "kiwiwall":
		return p.Kiwiwall
	case "adgatemedia":
		return p.AdGateMedia
	case "adgem":
		return p.AdGem
	case "offertoro":
		return p.OfferToro
	case "ayetstudios":
		return p.AyetStudios
	case "cpxresearch":
		return p.CPXResearch
	case "bitlabs":
		return p.BitLabs
	case "pollfish":
		return p.Pollfish
	case "theoremreach":
		return p.TheoremReach
	case "wannads":
		return p.Wannads
	case "lootably":
		return p.Lootably
	case "revenueuniverse":
		return p.RevenueUniverse
	}
	return ProviderConfig{}
}

type BonusServiceConfig struct {
	Url     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

type QueueConfig struct {
	BonusPointsQueue string `json:"bonus_points_queue" envconfig:"EARNLY_QUEUE_BONUS_POINTS"`
	WebhookQueue     string `json:"webhook_queue" envconfig:"EARNLY_QUEUE_WEBHOOK"`
	NumberOfQueues   int    `json:"number_of_queues" envconfig:"EARNLY_NUMBER_OF_QUEUES"`
}

type Configuration struct {
	ProjectName  string             `json:"project_name" envconfig:"EARNLY_PROJECT_NAME"`
	Environment  string             `json:"environment" envconfig:"EARNLY_ENVIRONMENT"`
	Server       ServerConfig       `json:"server"`
	DataSource   DataSourceConfig   `json:"data_source"`
	Redis        RedisConfig        `json:"redis"`
	Notification Notification       `json:"notification"`
	RateLimit    RateLimitConfig    `json:"rate_limit"`
	Providers    ProvidersConfig    `json:"providers"`
	BonusService BonusServiceConfig `json:"bonus_service"`
	Queue        QueueConfig        `json:"queue"`
}

// IsProduction reports whether the engine should apply production security
// posture. A provider with no configured secret fails closed in production
// and open everywhere else.
func (cnf *Configuration) IsProduction() bool {
	return strings.EqualFold(cnf.Environment, EnvProduction)
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("earnly", &cnf)
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
		return nil, errors.New("config not loaded from file. Create a json file called earnly.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Earnly Server"
	}

	if cnf.Environment == "" {
		log.Println("Warning: Environment not specified. Defaulting to development.")
		cnf.Environment = "development"
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
	cnf.Environment = strings.TrimSpace(cnf.Environment)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Queue.BonusPointsQueue == "" {
		cnf.Queue.BonusPointsQueue = "new:bonus_points"
	}
	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = "new:webhook"
	}
	if cnf.Queue.NumberOfQueues == 0 {
		cnf.Queue.NumberOfQueues = 1
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

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
