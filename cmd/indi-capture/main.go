// Command indi-capture takes one exposure with an INDI camera and saves the
// image it returns.
//
// The camera is connected if needed, BLOB delivery is enabled for the
// device, CCD_EXPOSURE is set and the first BLOB received on the image
// property is decoded (".z" payloads are decompressed) and written to disk.
//
// Usage:
//
//	indi-capture [flags]
//
// Examples:
//
//	# 2.5 second exposure with the simulator, saved as capture.fits
//	indi-capture -device "CCD Simulator" -exposure 2.5
//
//	# Remote camera, custom file name
//	indi-capture -server observatory.local:7624 -device "ZWO CCD" -o m42
//
//	# Full-frame camera sending images larger than the default buffer
//	indi-capture -device "ZWO CCD" -max-buffer 512
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/indi-protocol/indi-go/internal/cli"
	"github.com/indi-protocol/indi-go/pkg/blob"
	"github.com/indi-protocol/indi-go/pkg/client"
	"github.com/indi-protocol/indi-go/pkg/inspect"
	"github.com/indi-protocol/indi-go/pkg/log"
	"github.com/indi-protocol/indi-go/pkg/property"
	"github.com/indi-protocol/indi-go/pkg/transport"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// Standard camera properties.
const (
	propExposure  = "CCD_EXPOSURE"
	elemExposure  = "CCD_EXPOSURE_VALUE"
	defaultImage  = "CCD1"
	defaultDevice = "CCD Simulator"

	// defaultMaxBufferMB holds a base64 image of roughly 190 MB raw.
	defaultMaxBufferMB = 256
)

var (
	server      = flag.String("server", transport.Address("localhost", transport.DefaultPort), "INDI server host:port")
	device      = flag.String("device", defaultDevice, "Camera device name")
	exposure    = flag.Float64("exposure", 1, "Exposure time in seconds")
	image       = flag.String("blob", defaultImage, "BLOB property carrying the image")
	output      = flag.String("o", "capture", "Output file name; the BLOB format is appended")
	timeout     = flag.Duration("timeout", time.Minute, "Time allowed on top of the exposure")
	logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	protocolLog = flag.String("protocol-log", "", "Capture protocol events to an .ilog file")
	maxBuffer   = flag.Int("max-buffer", defaultMaxBufferMB, "Largest message accepted, in MB (an image arrives as one message)")
)

func main() {
	flag.Parse()

	logger, err := cli.NewLogger(os.Stderr, *logLevel)
	if err != nil {
		cli.Fatal("%v", err)
	}
	if *exposure <= 0 {
		cli.Fatal("exposure must be positive")
	}

	ctx, cancel := cli.SignalContext()
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout+time.Duration(*exposure*float64(time.Second)))
	defer cancelTimeout()

	pl, closeLog, err := cli.ProtocolLog(*protocolLog, log.FileOptions{SkipFrames: true}, logger)
	if err != nil {
		cli.Fatal("%v", err)
	}
	defer closeLog()

	cfg, err := clientConfig(*maxBuffer, pl, logger)
	if err != nil {
		cli.Fatal("%v", err)
	}

	c, err := client.Dial(ctx, *server, cfg)
	if err != nil {
		cli.Fatal("%v", err)
	}
	defer c.Close()

	path, err := capture(ctx, c, logger)
	if err != nil {
		c.Close()
		cli.Fatal("%v", err)
	}
	fmt.Println(path)
}

// clientConfig builds the client configuration with a reassembly bound of
// maxBufferMB megabytes.
func clientConfig(maxBufferMB int, pl log.Logger, logger *slog.Logger) (client.Config, error) {
	if maxBufferMB <= 0 {
		return client.Config{}, fmt.Errorf("max-buffer must be positive, got %d", maxBufferMB)
	}
	cfg := client.DefaultConfig()
	cfg.Transport.MaxBufferSize = maxBufferMB << 20
	cfg.ProtocolLogger = pl
	cfg.Logger = logger
	return cfg, nil
}

func capture(ctx context.Context, c *client.Client, logger *slog.Logger) (string, error) {
	c.SetDevice(*device)
	if err := c.GetProperties(*device, ""); err != nil {
		return "", err
	}

	conn, err := c.WaitProperty(ctx, *device, client.PropConnection, nil)
	if err != nil {
		return "", err
	}
	if !isConnected(conn) {
		logger.Info("connecting camera", "device", *device)
		if err := c.ConnectDevice(*device); err != nil {
			return "", err
		}
		if _, err := c.WaitProperty(ctx, *device, client.PropConnection, func(p *property.Property) bool {
			return isConnected(p) && p.State == wire.StateOk
		}); err != nil {
			return "", err
		}
	}

	if _, err := c.WaitProperty(ctx, *device, propExposure, nil); err != nil {
		return "", err
	}
	if err := c.EnableBLOB(*device, "", wire.BLOBAlso); err != nil {
		return "", err
	}

	logger.Info("exposing", "device", *device, "seconds", *exposure)
	if err := c.SetNumbers(*device, propExposure, map[string]float64{elemExposure: *exposure}); err != nil {
		return "", err
	}

	e, err := c.WaitBLOB(ctx, *device, *image)
	if err != nil {
		return "", err
	}
	payload, err := blob.FromElement(e)
	if err != nil {
		return "", err
	}
	logger.Info("image received",
		"format", payload.Format.Raw,
		"size", inspect.FormatSize(len(payload.Data)))

	return payload.Save(*output)
}

func isConnected(p *property.Property) bool {
	e, ok := p.Element(client.ElemConnect)
	return ok && e.On()
}
