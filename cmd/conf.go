package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/scitags/gonl/genetlink"
	"github.com/scitags/gonl/metrics"
	"github.com/scitags/gonl/transport"
	"github.com/scitags/gonl/uevent"
)

type Config struct {
	Transport *transport.Config `yaml:"transport"`
	Genetlink *genetlink.Config `yaml:"genetlink"`
	Metrics   *metrics.Config   `yaml:"metrics"`
	Uevent    *uevent.Config    `yaml:"uevent"`
}

func (c Config) String() string {
	m, err := yaml.MarshalWithOptions(c, yaml.Indent(2), yaml.IndentSequence(true))
	if err != nil {
		return "marshalling error..."
	}
	return string(m)
}

// fill points every missing section at a copy of its defaults.
func (c *Config) fill() {
	if c.Transport == nil {
		d := transport.DefaultConfig
		c.Transport = &d
	}
	if c.Genetlink == nil {
		d := genetlink.DefaultConfig
		c.Genetlink = &d
	}
	if c.Metrics == nil {
		d := metrics.DefaultConfig
		c.Metrics = &d
	}
	if c.Uevent == nil {
		d := uevent.DefaultConfig
		c.Uevent = &d
	}
}

func ReadConf(path string) (*Config, error) {
	r, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading the configuration file: %w", err)
	}

	conf := Config{}
	if err := yaml.Unmarshal(r, &conf); err != nil {
		return nil, fmt.Errorf("error unmarshaling the configuration: %w", err)
	}

	return &conf, nil
}
