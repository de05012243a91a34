package uevent

import "github.com/goccy/go-yaml"

type Config struct {
	Log bool `yaml:"log"`

	Groups []uint32 `yaml:"groups"`

	// Subsystems restricts the events Next returns. Empty means all of them.
	Subsystems []string `yaml:"subsystems"`

	ReceiveBufferSize int `yaml:"receiveBufferSize"`
}

var DefaultConfig = Config{
	Log:               false,
	Groups:            []uint32{KernelGroup},
	Subsystems:        nil,
	ReceiveBufferSize: 1 << 20,
}

func (c *Config) UnmarshalYAML(b []byte) error {
	// Needed to break recursive calls into UnmarshalYAML
	type config Config

	def := config(DefaultConfig)

	if err := yaml.Unmarshal(b, &def); err != nil {
		return err
	}

	*c = Config(def)

	return nil
}
