package metrics

import (
	"github.com/goccy/go-yaml"
)

type Config struct {
	Log         bool   `yaml:"log"`
	BindAddress string `yaml:"bindAddress"`

	// Port 0 disables the exporter altogether.
	Port uint16 `yaml:"port"`
}

var DefaultConfig = Config{
	Log:         true,
	BindAddress: "127.0.0.1",
	Port:        0,
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
