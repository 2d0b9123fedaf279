package laser

import (
	"time"

	"github.com/rs/zerolog"

	"i4.energy/across/lmsgw/cola"
	"i4.energy/across/lmsgw/sopas"
)

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultSendTimeout    = 2 * time.Second
	DefaultReconnectDelay = 2 * time.Second
)

// Config holds the settings of a Session. Use NewConfigBuilder to create
// one.
type Config struct {
	dialer          Dialer
	connectTimeout  time.Duration
	sendTimeout     time.Duration
	maxTelegramSize int
	errorTable      sopas.ErrorTable
	monitor         NetworkMonitor
	logger          zerolog.Logger
}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.connectTimeout <= 0 {
		c.connectTimeout = DefaultConnectTimeout
	}
	if c.sendTimeout <= 0 {
		c.sendTimeout = DefaultSendTimeout
	}
	if c.maxTelegramSize <= 0 {
		c.maxTelegramSize = cola.DefaultMaxTelegramSize
	}
	if c.errorTable == nil {
		c.errorTable = sopas.DefaultErrorTable
	}
}

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{config: Config{logger: zerolog.Nop()}}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

// WithConnectTimeout bounds each connection attempt.
func (b *ConfigBuilder) WithConnectTimeout(d time.Duration) *ConfigBuilder {
	b.config.connectTimeout = d
	return b
}

// WithSendTimeout sets the delay after which a pending send is reported
// with a send_timeout event.
func (b *ConfigBuilder) WithSendTimeout(d time.Duration) *ConfigBuilder {
	b.config.sendTimeout = d
	return b
}

func (b *ConfigBuilder) WithMaxTelegramSize(n int) *ConfigBuilder {
	b.config.maxTelegramSize = n
	return b
}

func (b *ConfigBuilder) WithErrorTable(t sopas.ErrorTable) *ConfigBuilder {
	b.config.errorTable = t
	return b
}

// WithNetworkMonitor enables network_dead / network_alive reporting.
func (b *ConfigBuilder) WithNetworkMonitor(m NetworkMonitor) *ConfigBuilder {
	b.config.monitor = m
	return b
}

func (b *ConfigBuilder) WithLogger(l zerolog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

// Build validates the configuration and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
