package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"i4.energy/across/lmsgw/laser"
)

// Config holds the application configuration
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
	NATS    NATSConfig    `yaml:"nats"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Redis   RedisConfig   `yaml:"redis"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// DeviceConfig selects the scanner link. Address wins over SerialPort.
type DeviceConfig struct {
	// Address is the scanner's CoLa-A endpoint (e.g. "192.168.0.1:2111")
	Address string `yaml:"address"`
	// SerialPort is the path to the auxiliary serial port (e.g. "/dev/ttyUSB0")
	SerialPort string `yaml:"serial_port"`
	// BaudRate is the baud rate of the serial port
	BaudRate        int           `yaml:"baud_rate"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	SendTimeout     time.Duration `yaml:"send_timeout"`
	ReconnectDelay  time.Duration `yaml:"reconnect_delay"`
	MaxTelegramSize int           `yaml:"max_telegram_size"`
	// AutoStart enables continuous scan output once connected
	AutoStart bool `yaml:"auto_start"`
	// WatchNetwork polls the host interfaces and drops the link when the
	// network goes away
	WatchNetwork bool `yaml:"watch_network"`
}

type HTTPConfig struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address"`
	// Token, if set, is required as "Authorization: Bearer <token>"
	Token string `yaml:"token"`
}

type LogConfig struct {
	// Level is one of trace, debug, info, warn, error, disabled
	Level string `yaml:"level"`
	// Format is json or console
	Format string `yaml:"format"`
}

type NATSConfig struct {
	// URL of the NATS server, empty disables publishing
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type MQTTConfig struct {
	// Broker URL (e.g. "tcp://localhost:1883"), empty disables MQTT
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
}

type RedisConfig struct {
	// Addr of the Redis server, empty disables the state store
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.Device.BaudRate = 57600
		c.Device.ConnectTimeout = laser.DefaultConnectTimeout
		c.Device.SendTimeout = laser.DefaultSendTimeout
		c.Device.ReconnectDelay = laser.DefaultReconnectDelay
		c.Device.AutoStart = true
		c.HTTP.BindAddress = "0.0.0.0:8080"
		c.Log.Level = "info"
		c.Log.Format = "json"
		c.NATS.Subject = "lms"
		c.MQTT.ClientID = "lmsgw-1"
		c.MQTT.Topic = "lms"
		c.Redis.Key = "lms"
		c.Redis.TTL = 24 * time.Hour
		c.Metrics.Enabled = true
		return nil
	}
}

// WithFile overlays a YAML file. An empty path is ignored.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		setString(&c.Device.Address, "LMS_ADDRESS")
		setString(&c.Device.SerialPort, "LMS_SERIAL_PORT")
		if err := setInt(&c.Device.BaudRate, "LMS_BAUD_RATE"); err != nil {
			return err
		}
		if err := setDuration(&c.Device.ConnectTimeout, "LMS_CONNECT_TIMEOUT"); err != nil {
			return err
		}
		if err := setDuration(&c.Device.SendTimeout, "LMS_SEND_TIMEOUT"); err != nil {
			return err
		}
		if err := setDuration(&c.Device.ReconnectDelay, "LMS_RECONNECT_DELAY"); err != nil {
			return err
		}
		if err := setBool(&c.Device.AutoStart, "LMS_AUTO_START"); err != nil {
			return err
		}

		setString(&c.HTTP.BindAddress, "BIND_ADDRESS")
		setString(&c.HTTP.Token, "HTTP_TOKEN")
		setString(&c.Log.Level, "LOG_LEVEL")
		setString(&c.Log.Format, "LOG_FORMAT")
		setString(&c.NATS.URL, "NATS_URL")
		setString(&c.NATS.Subject, "NATS_SUBJECT")
		setString(&c.MQTT.Broker, "MQTT_BROKER")
		setString(&c.MQTT.ClientID, "MQTT_CLIENT_ID")
		setString(&c.MQTT.Username, "MQTT_USERNAME")
		setString(&c.MQTT.Password, "MQTT_PASSWORD")
		setString(&c.MQTT.Topic, "MQTT_TOPIC")
		setString(&c.Redis.Addr, "REDIS_ADDR")
		setString(&c.Redis.Password, "REDIS_PASSWORD")
		setString(&c.Redis.Key, "REDIS_KEY")
		return nil
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = b
	return nil
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		var err error
		fSet.Visit(func(f *flag.Flag) {
			v := f.Value.String()
			switch f.Name {
			case "address":
				c.Device.Address = v
			case "serial-port":
				c.Device.SerialPort = v
			case "baud-rate":
				if b, perr := strconv.Atoi(v); perr == nil {
					c.Device.BaudRate = b
				} else {
					err = fmt.Errorf("config: -baud-rate: %w", perr)
				}
			case "auto-start":
				c.Device.AutoStart = v == "true"
			case "bind-address":
				c.HTTP.BindAddress = v
			case "log-level":
				c.Log.Level = v
			case "log-format":
				c.Log.Format = v
			case "nats-url":
				c.NATS.URL = v
			case "mqtt-broker":
				c.MQTT.Broker = v
			case "redis-addr":
				c.Redis.Addr = v
			}
		})
		return err
	}
}

// Validate checks the assembled configuration. It does not modify it.
func (c *Config) Validate() error {
	var errs []error
	if c.Device.Address == "" && c.Device.SerialPort == "" {
		errs = append(errs, errors.New("device: address or serial_port is required"))
	}
	if c.Device.Address == "" && c.Device.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("device: invalid baud_rate %d", c.Device.BaudRate))
	}
	if c.Device.ReconnectDelay < 0 {
		errs = append(errs, fmt.Errorf("device: negative reconnect_delay %s", c.Device.ReconnectDelay))
	}
	if c.HTTP.BindAddress == "" {
		errs = append(errs, errors.New("http: bind_address is required"))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log: unknown format %q", c.Log.Format))
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		errs = append(errs, errors.New("nats: subject is required"))
	}
	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		errs = append(errs, errors.New("mqtt: topic is required"))
	}
	if c.Redis.Addr != "" && c.Redis.Key == "" {
		errs = append(errs, errors.New("redis: key is required"))
	}
	return errors.Join(errs...)
}
