package transport

import "github.com/goccy/go-yaml"

type Config struct {
	Log bool `yaml:"log"`

	// Multicast groups joined right after binding the socket.
	Groups []uint32 `yaml:"groups"`

	// ReceiveBufferSize sets SO_RCVBUF in bytes. It's capped at
	// net.core.rmem_max and 0 keeps the kernel's default.
	ReceiveBufferSize int `yaml:"receiveBufferSize"`

	// NotificationBuffer is the capacity of the notification channel.
	// Notifications arriving while it's full are dropped.
	NotificationBuffer int `yaml:"notificationBuffer"`

	// ExtendedAck asks the kernel for NETLINK_EXT_ACK error messages.
	ExtendedAck bool `yaml:"extendedAck"`

	// StrictCheck enables NETLINK_GET_STRICT_CHK.
	StrictCheck bool `yaml:"strictCheck"`
}

var DefaultConfig = Config{
	Log:                false,
	Groups:             nil,
	ReceiveBufferSize:  0,
	NotificationBuffer: 128,
	ExtendedAck:        true,
	StrictCheck:        false,
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
