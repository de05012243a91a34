package genetlink

import "github.com/goccy/go-yaml"

type Config struct {
	Log bool `yaml:"log"`

	// NotificationBuffer is the capacity of the channel returned by
	// Client.Notifications.
	NotificationBuffer int `yaml:"notificationBuffer"`

	// Families are resolved up front by Client.Preload.
	Families []string `yaml:"families"`
}

var DefaultConfig = Config{
	Log:                false,
	NotificationBuffer: 64,
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
