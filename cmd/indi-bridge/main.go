// Command indi-bridge mirrors an INDI server onto NATS and Redis.
//
// Every property update is published as JSON on
// <prefix>.<device>.<property>, the latest state of each property is kept
// in Redis hashes, and JSON commands received on <prefix>.cmd are sent to
// the INDI server. The INDI connection is re-established automatically.
//
// Usage:
//
//	indi-bridge [flags]
//
// Flags:
//
//	-config string        YAML configuration file
//	-server string        INDI server host:port (overrides the config)
//	-log-level string     Log level (overrides the config)
//	-stats duration       Interval for logging bridge counters (default 1m)
//
// Examples:
//
//	# Bridge a local server with the default NATS and Redis addresses
//	indi-bridge
//
//	# Use a configuration file
//	indi-bridge -config /etc/indi/bridge.yaml
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/indi-protocol/indi-go/internal/cli"
	"github.com/indi-protocol/indi-go/pkg/bridge"
	"github.com/indi-protocol/indi-go/pkg/client"
	"github.com/indi-protocol/indi-go/pkg/config"
	"github.com/indi-protocol/indi-go/pkg/connection"
	"github.com/indi-protocol/indi-go/pkg/log"
)

var (
	configPath    = flag.String("config", "", "YAML configuration file")
	serverFlag    = flag.String("server", "", "INDI server host:port (overrides the config)")
	logLevelFlag  = flag.String("log-level", "", "Log level (overrides the config)")
	statsInterval = flag.Duration("stats", time.Minute, "Interval for logging bridge counters")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		cli.Fatal("%v", err)
	}

	logger, err := cli.NewLogger(os.Stderr, cfg.Log.Level)
	if err != nil {
		cli.Fatal("%v", err)
	}
	pl, closeLog, err := cli.ProtocolLog(cfg.Log.ProtocolFile, log.FileOptions{SkipFrames: cfg.Log.SkipFrames}, logger)
	if err != nil {
		cli.Fatal("%v", err)
	}
	defer closeLog()

	ctx, cancel := cli.SignalContext()
	defer cancel()

	bcfg := bridge.Config{
		Prefix:      cfg.NATS.Prefix,
		MaxBLOBSize: cfg.BLOB.MaxPublishSize,
		Logger:      logger,
	}

	if cfg.NATS.URL != "" {
		pub, err := bridge.DialNATS(cfg.NATS.URL, cfg.NATS.Name, logger)
		if err != nil {
			cli.Fatal("%v", err)
		}
		defer pub.Close()
		bcfg.Publisher = pub
		logger.Info("publishing to NATS", "url", cfg.NATS.URL, "prefix", cfg.NATS.Prefix)
	}

	if cfg.Redis.Addr != "" {
		timeout := cfg.Server.ConnectTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		rctx, rcancel := context.WithTimeout(ctx, timeout)
		store, err := bridge.DialRedis(rctx, bridge.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
		})
		rcancel()
		if err != nil {
			cli.Fatal("%v", err)
		}
		defer store.Close()
		bcfg.Store = store
		logger.Info("caching state in Redis", "addr", cfg.Redis.Addr)
	}

	cc := client.DefaultConfig()
	cc.Transport = cfg.TransportConfig()
	cc.ProtocolLogger = pl
	cc.Logger = logger

	mgr := connection.NewManager(connection.Config{
		Address:        cfg.Server.Address,
		Client:         cc,
		Init:           sessionInit(cfg),
		Backoff:        cfg.Backoff,
		ConnectTimeout: cfg.Server.ConnectTimeout,
		Logger:         logger,
	})
	defer mgr.Close()

	bcfg.Commander = bridge.CommanderFunc(func(device, name string, values map[string]string) error {
		c := mgr.Client()
		if c == nil {
			return connection.ErrNotConnected
		}
		return c.SetValues(device, name, values)
	})
	b := bridge.New(bcfg)

	mgr.OnConnected(func(c *client.Client) {
		logger.Info("connected", "server", cfg.Server.Address)
		c.Store().OnChange(b.HandleChange)
		if len(cfg.Server.Devices) == 0 {
			c.Store().OnChange(blobEnabler(c, cfg.BLOB.Mode, logger))
		}
	})
	mgr.OnStateChange(func(oldState, newState connection.State) {
		logger.Debug("connection state", "from", oldState, "to", newState)
	})
	mgr.OnReconnecting(func(attempt int, delay time.Duration, err error) {
		logger.Warn("connection lost", "error", err, "attempt", attempt, "retryIn", delay)
	})

	if err := b.Start(); err != nil {
		cli.Fatal("%v", err)
	}
	defer b.Stop()

	if *statsInterval > 0 {
		go logStats(ctx, b, *statsInterval, logger)
	}

	logger.Info("bridge running", "server", cfg.Server.Address)
	if err := mgr.Run(ctx, b.HandleMessage); err != nil {
		logger.Error("connection manager stopped", "error", err)
	}
	logStatsOnce(b, logger)
}

// loadConfig reads -config, or the defaults plus environment when no file
// is given, then applies flag overrides.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if *configPath != "" {
		c, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	} else {
		cfg = config.Default()
		if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
			return nil, err
		}
	}
	if *serverFlag != "" {
		cfg.Server.Address = *serverFlag
	}
	if *logLevelFlag != "" {
		cfg.Log.Level = *logLevelFlag
	}
	return cfg, cfg.Validate()
}

func logStats(ctx context.Context, b *bridge.Bridge, every time.Duration, logger *slog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			logStatsOnce(b, logger)
		}
	}
}

func logStatsOnce(b *bridge.Bridge, logger *slog.Logger) {
	s := b.Stats()
	logger.Info("bridge stats",
		"published", s.Published,
		"cached", s.Cached,
		"commands", s.Commands,
		"commandErrors", s.CommandErrors,
		"errors", s.Errors)
}
