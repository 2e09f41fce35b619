// Command indi-probe connects to an INDI server, collects the properties it
// defines and prints them.
//
// Usage:
//
//	indi-probe [flags]
//
// Flags:
//
//	-server string        INDI server host:port (default "localhost:7624")
//	-device string        Only probe this device
//	-discover             Browse mDNS for _indi._tcp servers first
//	-instance string      With -discover, probe the server announced under this name
//	-wait duration        How long to collect definitions (default 2s)
//	-check                Compare properties with the standard catalogue
//	-watch duration       Keep printing property changes for this long
//	-log-level string     Log level: debug, info, warn, error (default "warn")
//	-protocol-log string  Capture protocol events to an .ilog file
//
// Examples:
//
//	# List everything a local server offers
//	indi-probe
//
//	# Find servers on the LAN and probe the first one
//	indi-probe -discover
//
//	# Probe one device and check it against the standard properties
//	indi-probe -server observatory.local:7624 -device "CCD Simulator" -check
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/indi-protocol/indi-go/internal/cli"
	"github.com/indi-protocol/indi-go/pkg/client"
	"github.com/indi-protocol/indi-go/pkg/discovery"
	"github.com/indi-protocol/indi-go/pkg/inspect"
	"github.com/indi-protocol/indi-go/pkg/log"
	"github.com/indi-protocol/indi-go/pkg/property"
	"github.com/indi-protocol/indi-go/pkg/transport"
	"github.com/indi-protocol/indi-go/pkg/version"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

var (
	server      = flag.String("server", transport.Address("localhost", transport.DefaultPort), "INDI server host:port")
	device      = flag.String("device", "", "Only probe this device")
	discover    = flag.Bool("discover", false, "Browse mDNS for _indi._tcp servers first")
	instance    = flag.String("instance", "", "With -discover, probe the server announced under this name")
	wait        = flag.Duration("wait", 2*time.Second, "How long to collect definitions")
	check       = flag.Bool("check", false, "Compare properties with the standard catalogue")
	watch       = flag.Duration("watch", 0, "Keep printing property changes for this long")
	logLevel    = flag.String("log-level", "warn", "Log level: debug, info, warn, error")
	protocolLog = flag.String("protocol-log", "", "Capture protocol events to an .ilog file")
)

func main() {
	flag.Parse()

	logger, err := cli.NewLogger(os.Stderr, *logLevel)
	if err != nil {
		cli.Fatal("%v", err)
	}

	ctx, cancel := cli.SignalContext()
	defer cancel()

	address := *server
	if *discover && *instance != "" {
		s, err := findInstance(ctx, *instance, logger)
		if err != nil {
			cli.Fatal("discovery: %v", err)
		}
		address = s.Address()
	} else if *discover {
		servers, err := discoverServers(ctx, logger)
		if err != nil {
			cli.Fatal("discovery: %v", err)
		}
		if len(servers) == 0 {
			cli.Fatal("no INDI servers found")
		}
		if !flagSet("server") {
			address = servers[0].Address()
		}
	}

	pl, closeLog, err := cli.ProtocolLog(*protocolLog, log.FileOptions{}, logger)
	if err != nil {
		cli.Fatal("%v", err)
	}
	defer closeLog()

	cfg := client.DefaultConfig()
	cfg.ProtocolLogger = pl
	cfg.Logger = logger

	c, err := client.Dial(ctx, address, cfg)
	if err != nil {
		cli.Fatal("%v", err)
	}
	defer c.Close()

	if *device != "" {
		c.SetDevice(*device)
	}
	if err := c.GetProperties(*device, ""); err != nil {
		cli.Fatal("getProperties: %v", err)
	}

	f := inspect.NewFormatter()
	if err := collect(ctx, c, *wait, f); err != nil {
		cli.Fatal("%v", err)
	}

	insp := inspect.NewInspector(c.Store(), c)
	devices := insp.Devices()
	if len(devices) == 0 {
		fmt.Printf("No devices defined by %s within %s\n", address, *wait)
		os.Exit(2)
	}

	fmt.Printf("Server %s\n\n", address)
	fmt.Println(f.FormatDeviceTable(devices))
	for _, d := range devices {
		props, err := c.Store().Properties(d.Name)
		if err != nil {
			continue
		}
		fmt.Print(f.FormatDevice(d.Name, props))
		fmt.Println()
	}

	if *check {
		if err := checkDevices(insp, devices); err != nil {
			cli.Fatal("%v", err)
		}
	}

	if *watch > 0 {
		c.Store().OnChange(func(ch property.Change) {
			fmt.Println(f.FormatChange(ch))
		})
		wctx, wcancel := context.WithTimeout(ctx, *watch)
		defer wcancel()
		if err := c.Run(wctx, printNotice(f)); err != nil {
			cli.Fatal("%v", err)
		}
	}
}

// collect reads until d elapses, printing server notices on the way.
func collect(ctx context.Context, c *client.Client, d time.Duration, f *inspect.Formatter) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	err := c.Run(ctx, printNotice(f))
	if errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func printNotice(f *inspect.Formatter) func(wire.Message) {
	return func(m wire.Message) {
		if m.Tag() == wire.TagMessage {
			fmt.Println(f.FormatMessage(m))
		}
	}
}

func discoverServers(ctx context.Context, logger *slog.Logger) ([]*discovery.Server, error) {
	cfg := discovery.DefaultBrowserConfig()
	b, err := discovery.NewMDNSBrowser(cfg)
	if err != nil {
		return nil, err
	}
	defer b.Stop()

	logger.Info("browsing", "service", discovery.ServiceType, "timeout", cfg.BrowseTimeout)
	servers, err := b.Find(ctx)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Found %d INDI server(s):\n", len(servers))
	for i, s := range servers {
		fmt.Printf("  %d. %-24s %s\n", i+1, s.Instance, s.Address())
	}
	fmt.Println()
	return servers, nil
}

func findInstance(ctx context.Context, name string, logger *slog.Logger) (*discovery.Server, error) {
	b, err := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
	if err != nil {
		return nil, err
	}
	defer b.Stop()

	logger.Info("looking for server", "instance", name)
	return b.FindInstance(ctx, name)
}

func checkDevices(insp *inspect.Inspector, devices []inspect.DeviceInfo) error {
	cat, err := version.LoadCurrentCatalogue()
	if err != nil {
		return err
	}
	fmt.Printf("Standard property check (protocol %s)\n", cat.Version)
	for _, d := range devices {
		res, err := insp.Check(d.Name, cat)
		if err != nil {
			return err
		}
		fmt.Printf("  %s: %d standard, %d custom\n", d.Name, res.Standard, res.Custom)
		for _, w := range res.Warnings {
			fmt.Printf("    warning: %s\n", w)
		}
	}
	return nil
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
