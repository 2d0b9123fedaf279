package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"

	"i4.energy/across/lmsgw/laser"
)

func main() {
	configFile := flag.String("config", "", "Path to a YAML configuration file")
	flag.String("address", "", "Scanner CoLa-A address (host[:port])")
	flag.String("serial-port", "", "Serial port of the scanner, used when no address is set")
	flag.Int("baud-rate", 57600, "Baud rate for serial communication")
	flag.Bool("auto-start", true, "Start continuous scan output once connected")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	flag.String("log-format", "json", "Log format (json, console)")
	flag.String("nats-url", "", "NATS server URL, empty disables NATS")
	flag.String("mqtt-broker", "", "MQTT broker URL, empty disables MQTT")
	flag.String("redis-addr", "", "Redis address, empty disables the state store")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configFile), WithEnv(), WithFlags(flag.CommandLine))
	if err == nil {
		err = config.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(config.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(config, logger); err != nil {
		logger.Error().Err(err).Msg("Gateway failed")
		os.Exit(1)
	}
}

func run(config *Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialer := newDialer(config.Device)
	addr := fmt.Sprint(dialer)
	gateway := NewGateway(config.Device, logger.With().Str("component", "gateway").Logger())
	notifiers := laser.Notifiers{gateway}
	g, gctx := errgroup.WithContext(ctx)

	var metrics *Metrics
	if config.Metrics.Enabled {
		metrics = NewMetrics()
		notifiers = append(notifiers, metrics)
	}

	var publisher *NATSPublisher
	if config.NATS.URL != "" {
		conn, err := connectNATS(config.NATS, logger)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer conn.Drain()
		logger.Info().Str("url", config.NATS.URL).Msg("Connected to NATS")
		publisher = NewNATSPublisher(conn, config.NATS.Subject, addr, logger)
		notifiers = append(notifiers, publisher)
	}

	var bridge *MQTTBridge
	if config.MQTT.Broker != "" {
		bridge = NewMQTTBridge(config.MQTT, addr, gateway, logger)
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := bridge.Connect(connectCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("connect mqtt: %w", err)
		}
		defer bridge.Close()
		notifiers = append(notifiers, bridge)
	}

	if config.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		defer client.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		logger.Info().Str("addr", config.Redis.Addr).Msg("Connected to Redis")

		store := NewStateStore(client, config.Redis, addr, logger)
		notifiers = append(notifiers, store)
		g.Go(func() error { return store.Run(gctx) })
	}

	builder := laser.NewConfigBuilder().
		WithDialer(dialer).
		WithConnectTimeout(config.Device.ConnectTimeout).
		WithSendTimeout(config.Device.SendTimeout).
		WithMaxTelegramSize(config.Device.MaxTelegramSize).
		WithLogger(logger)
	if config.Device.WatchNetwork {
		builder = builder.WithNetworkMonitor(&laser.InterfaceMonitor{Interval: time.Second})
	}
	sessionConfig, err := builder.Build()
	if err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	session, err := laser.New(sessionConfig, notifiers)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	gateway.Attach(session)

	if publisher != nil {
		sub, err := publisher.Subscribe(gateway)
		if err != nil {
			session.Close()
			return fmt.Errorf("subscribe nats: %w", err)
		}
		defer sub.Unsubscribe()
	}

	logger.Info().Str("address", addr).Msg("Starting LMS gateway")
	if err := gateway.Start(ctx); err != nil {
		session.Close()
		return fmt.Errorf("connect: %w", err)
	}

	httpServer := &http.Server{
		Addr: config.HTTP.BindAddress,
		Handler: &Server{
			Logger:  logger.With().Str("component", "server").Logger(),
			Device:  session,
			Token:   config.HTTP.Token,
			Metrics: metrics,
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info().Str("address", httpServer.Addr).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down")

		logger.Info().Msg("Closing scanner session")
		if err := session.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close session")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		logger.Info().Msg("Closing HTTP server")
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newDialer(cfg DeviceConfig) laser.Dialer {
	if cfg.Address != "" {
		return laser.TCPDialer{Address: cfg.Address}
	}
	return laser.SerialDialer{
		PortName: cfg.SerialPort,
		Mode: &serial.Mode{
			BaudRate: cfg.BaudRate,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		},
	}
}
