package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sohal70760/islamicai-webui/internal/services"
)

const defaultBackendURL = "https://islamicai.sohal70760.workers.dev"

type streamingConfig struct {
	EnableStreaming bool `yaml:"enableStreaming"`
	ChunkSize       int  `yaml:"chunkSize"`
	Delay           int  `yaml:"delay"`
}

type advancedConfig struct {
	EnableLearning           bool `yaml:"enableLearning"`
	EnableNewsIntegration    bool `yaml:"enableNewsIntegration"`
	EnableMemoryOptimization bool `yaml:"enableMemoryOptimization"`
}

type config struct {
	Port                   string          `yaml:"port"`
	BackendURL             string          `yaml:"backendUrl"`
	MaxSessions            int             `yaml:"maxSessions"`
	ExchangeTimeoutSeconds int             `yaml:"exchangeTimeoutSeconds"`
	ManualIP               string          `yaml:"manualIp"`
	Streaming              streamingConfig `yaml:"streaming"`
	Advanced               advancedConfig  `yaml:"advanced"`
}

func (c config) exchangeTimeout() time.Duration {
	return time.Duration(c.ExchangeTimeoutSeconds) * time.Second
}

func defaultConfig() config {
	return config{
		Port:       "8080",
		BackendURL: defaultBackendURL,
		Streaming: streamingConfig{
			EnableStreaming: true,
			ChunkSize:       50,
			Delay:           30,
		},
		Advanced: advancedConfig{
			EnableLearning:           true,
			EnableNewsIntegration:    true,
			EnableMemoryOptimization: true,
		},
	}
}

// loadConfig reads the yaml config file, falling back to defaults when the
// file does not exist.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return config{}, fmt.Errorf("error decoding config file: %w", err)
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.BackendURL == "" {
		cfg.BackendURL = defaultBackendURL
	}
	return cfg, nil
}

func (c config) streamingOptions() services.StreamingOptions {
	return services.StreamingOptions{
		EnableStreaming: c.Streaming.EnableStreaming,
		ChunkSize:       c.Streaming.ChunkSize,
		Delay:           c.Streaming.Delay,
		IncludeMetadata: true,
	}
}

func (c config) advancedFeatures() *services.AdvancedFeatures {
	return &services.AdvancedFeatures{
		EnableLearning:           c.Advanced.EnableLearning,
		EnableNewsIntegration:    c.Advanced.EnableNewsIntegration,
		EnableMemoryOptimization: c.Advanced.EnableMemoryOptimization,
		IntelligenceLevel:        "maximum",
		AdaptiveResponse:         true,
	}
}
