package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultTopic is the topic trigger messages are published on when the
// configuration does not name one.
const DefaultTopic = "pipeline.triggered"

type fileConfig struct {
	Watermill SubscriberConfig `yaml:"watermill" toml:"watermill"`
}

// LoadSubscriberConfig reads the watermill section of a YAML or TOML
// configuration file. Environment variables are expanded first.
func LoadSubscriberConfig(path string) (SubscriberConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg.Watermill, err
	}
	expanded := []byte(os.ExpandEnv(string(data)))
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(expanded, &cfg)
	} else {
		err = yaml.Unmarshal(expanded, &cfg)
	}
	if err != nil {
		return cfg.Watermill, fmt.Errorf("parse %s: %w", path, err)
	}
	applySubscriberDefaults(&cfg.Watermill)
	return cfg.Watermill, nil
}

// LoadTopicsFromConfig returns the topics trigger messages are published on.
func LoadTopicsFromConfig(path string) ([]string, error) {
	cfg, err := LoadSubscriberConfig(path)
	if err != nil {
		return nil, err
	}
	return []string{cfg.Topic}, nil
}

func applySubscriberDefaults(cfg *SubscriberConfig) {
	if cfg.Driver == "" && len(cfg.Drivers) == 0 {
		cfg.Driver = "gochannel"
	}
	cfg.Topic = strings.TrimSpace(cfg.Topic)
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.GoChannel.OutputChannelBuffer == 0 {
		cfg.GoChannel.OutputChannelBuffer = 64
	}
	if cfg.NATS.ClientIDSuffix == "" {
		cfg.NATS.ClientIDSuffix = "-worker"
	}
	if cfg.RiverQueue.Queue == "" {
		cfg.RiverQueue.Queue = "default"
	}
	if cfg.RiverQueue.MaxWorkers <= 0 {
		cfg.RiverQueue.MaxWorkers = 5
	}
}
