// Command indi-client is an interactive INDI client.
//
// It keeps a session with an INDI server open, reconnecting when the
// server goes away, and offers a shell for browsing and setting
// properties.
//
// Usage:
//
//	indi-client [flags]
//
// Flags:
//
//	-server string        INDI server host:port (default "localhost:7624")
//	-device string        Only request properties of this device
//	-history string       Command history file
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Capture protocol events to an .ilog file
//
// Example session:
//
//	indi> devices
//	indi> show CCD Simulator.CCD_EXPOSURE
//	indi> set CCD Simulator.CCD_EXPOSURE.CCD_EXPOSURE_VALUE=2
//	indi> watch on
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/indi-protocol/indi-go/cmd/indi-client/interactive"
	"github.com/indi-protocol/indi-go/internal/cli"
	"github.com/indi-protocol/indi-go/pkg/client"
	"github.com/indi-protocol/indi-go/pkg/connection"
	"github.com/indi-protocol/indi-go/pkg/log"
	"github.com/indi-protocol/indi-go/pkg/transport"
)

var (
	server      = flag.String("server", transport.Address("localhost", transport.DefaultPort), "INDI server host:port")
	device      = flag.String("device", "", "Only request properties of this device")
	history     = flag.String("history", defaultHistory(), "Command history file")
	logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	protocolLog = flag.String("protocol-log", "", "Capture protocol events to an .ilog file")
)

func main() {
	flag.Parse()

	ctx, cancel := cli.SignalContext()
	defer cancel()

	backend := &interactive.ManagerBackend{Address: *server}
	shell, err := interactive.New(backend, interactive.Config{HistoryFile: *history})
	if err != nil {
		cli.Fatal("%v", err)
	}

	// Logs share the terminal with the prompt.
	logger, err := cli.NewLogger(shell.Stdout(), *logLevel)
	if err != nil {
		cli.Fatal("%v", err)
	}
	pl, closeLog, err := cli.ProtocolLog(*protocolLog, log.FileOptions{}, logger)
	if err != nil {
		cli.Fatal("%v", err)
	}
	defer closeLog()

	cc := client.DefaultConfig()
	cc.Logger = logger
	cc.ProtocolLogger = pl

	mgr := connection.NewManager(connection.Config{
		Address: *server,
		Client:  cc,
		Init: func(c *client.Client) error {
			if *device != "" {
				c.SetDevice(*device)
			}
			return c.GetProperties(*device, "")
		},
		Logger: logger,
	})
	backend.Manager = mgr

	mgr.OnConnected(func(c *client.Client) {
		logger.Info("connected", "server", *server)
		c.Store().OnChange(shell.HandleChange)
	})
	mgr.OnReconnecting(func(attempt int, delay time.Duration, err error) {
		logger.Warn("connection lost", "error", err, "attempt", attempt, "retryIn", delay)
	})

	fmt.Fprintf(shell.Stdout(), "INDI client for %s\n", *server)

	done := make(chan error, 1)
	go func() { done <- mgr.Run(ctx, shell.HandleMessage) }()

	shell.Run(ctx, cancel)
	mgr.Close()
	if err := <-done; err != nil {
		logger.Error("connection manager", "error", err)
	}
}

func defaultHistory() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".indi_client_history")
}
