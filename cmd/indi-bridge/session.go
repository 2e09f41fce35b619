package main

import (
	"log/slog"
	"sync"

	"github.com/indi-protocol/indi-go/pkg/client"
	"github.com/indi-protocol/indi-go/pkg/config"
	"github.com/indi-protocol/indi-go/pkg/property"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// sessionInit returns the handshake run after every connect: one
// getProperties per configured device (or one for all) and, for
// configured devices, the BLOB mode.
func sessionInit(cfg *config.Config) func(c *client.Client) error {
	devices := cfg.Server.Devices
	mode := cfg.BLOB.Mode
	return func(c *client.Client) error {
		if len(devices) == 0 {
			return c.GetProperties("", "")
		}
		for _, d := range devices {
			if err := c.GetProperties(d, ""); err != nil {
				return err
			}
			if mode != wire.BLOBNever {
				if err := c.EnableBLOB(d, "", mode); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

// blobSender is the part of client.Client blobEnabler needs.
type blobSender interface {
	EnableBLOB(device, name, mode string) error
}

// blobEnabler sends enableBLOB once per device, when the device defines
// its first BLOB property. It is used when all devices are followed and
// their names are not known up front.
func blobEnabler(c blobSender, mode string, logger *slog.Logger) func(property.Change) {
	if mode == wire.BLOBNever {
		return func(property.Change) {}
	}
	var mu sync.Mutex
	enabled := make(map[string]bool)
	return func(ch property.Change) {
		p := ch.Property
		if ch.Kind != property.ChangeDefined || p == nil || p.Type != property.TypeBLOB {
			return
		}
		mu.Lock()
		done := enabled[p.Device]
		enabled[p.Device] = true
		mu.Unlock()
		if done {
			return
		}
		if err := c.EnableBLOB(p.Device, "", mode); err != nil {
			logger.Warn("enableBLOB failed", "device", p.Device, "error", err)
			return
		}
		logger.Debug("BLOBs enabled", "device", p.Device, "mode", mode)
	}
}
