package main

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/RidiculousBuffal/TCSA/internal/errorutil"
	"github.com/RidiculousBuffal/TCSA/internal/tocc"
)

type (
	ServiceConfig struct {
		Environment string

		SentryDSN string `env:"TCSA_SENTRY_DSN"`
		LogLevel  string `env:"TCSA_LOG_LEVEL"`

		StorageURL string `env:"TCSA_STORAGE_URL"`

		KafkaBrokers               []string `env:"TCSA_KAFKA_BROKERS" env-separator:","`
		ContentionGroupsKafkaTopic string   `env:"TCSA_CONTENTION_GROUPS_KAFKA_TOPIC"`

		// DurationThreshold applies to requests without a threshold.
		DurationThreshold int   `env:"TCSA_DURATION_THRESHOLD"`
		Workers           int   `env:"TCSA_WORKERS"`
		MaxBodyBytes      int64 `env:"TCSA_MAX_BODY_BYTES"`
		// DocumentCacheSize is the number of reports kept in memory, 0
		// disables the cache.
		DocumentCacheSize int64 `env:"TCSA_DOCUMENT_CACHE_SIZE"`
	}
)

var (
	serviceConfigs = map[string]ServiceConfig{
		"production": {
			LogLevel:                   "info",
			StorageURL:                 "gs://tcsa-analyses",
			KafkaBrokers:               []string{"kafka.service.consul:9092"},
			ContentionGroupsKafkaTopic: "contention-groups",
			DurationThreshold:          tocc.MeanThreshold,
			MaxBodyBytes:               256 << 20,
			DocumentCacheSize:          1000,
		},
		"development": {
			LogLevel:                   "debug",
			StorageURL:                 "badger://",
			ContentionGroupsKafkaTopic: "contention-groups",
			DurationThreshold:          tocc.MeanThreshold,
			MaxBodyBytes:               64 << 20,
			DocumentCacheSize:          100,
		},
	}
)

// loadServiceConfig returns the static config of an environment, overridden
// by the TCSA_* environment variables.
func loadServiceConfig(envName string) (ServiceConfig, error) {
	config, exists := serviceConfigs[envName]
	if !exists {
		return ServiceConfig{}, fmt.Errorf("%w: service config for environment %v does not exist", errorutil.ErrInvalidConfig, envName)
	}
	config.Environment = envName
	if err := cleanenv.ReadEnv(&config); err != nil {
		return ServiceConfig{}, fmt.Errorf("%w: %v", errorutil.ErrInvalidConfig, err)
	}
	if config.DurationThreshold < tocc.MeanThreshold || config.Workers < 0 || config.MaxBodyBytes <= 0 || config.DocumentCacheSize < 0 {
		return ServiceConfig{}, fmt.Errorf("%w: invalid analysis limits in service config", errorutil.ErrInvalidConfig)
	}
	return config, nil
}
