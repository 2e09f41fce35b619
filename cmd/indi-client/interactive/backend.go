package interactive

import (
	"fmt"

	"github.com/indi-protocol/indi-go/pkg/client"
	"github.com/indi-protocol/indi-go/pkg/connection"
	"github.com/indi-protocol/indi-go/pkg/inspect"
)

// Backend is the INDI session the shell drives.
type Backend interface {
	// Source returns the current property view, or nil while disconnected.
	Source() inspect.PropertySource

	SetValues(device, name string, values map[string]string) error
	GetProperties(device, name string) error
	ConnectDevice(device string) error
	DisconnectDevice(device string) error
	EnableBLOB(device, name, mode string) error

	// Status describes the connection for the status command.
	Status() string
}

// ManagerBackend runs shell commands on the active session of a
// connection.Manager.
type ManagerBackend struct {
	Manager *connection.Manager
	Address string
}

// Source returns the store of the active session.
func (b *ManagerBackend) Source() inspect.PropertySource {
	c := b.Manager.Client()
	if c == nil {
		return nil
	}
	return c.Store()
}

func (b *ManagerBackend) client() (*client.Client, error) {
	c := b.Manager.Client()
	if c == nil {
		return nil, connection.ErrNotConnected
	}
	return c, nil
}

// SetValues implements Backend.
func (b *ManagerBackend) SetValues(device, name string, values map[string]string) error {
	c, err := b.client()
	if err != nil {
		return err
	}
	return c.SetValues(device, name, values)
}

// GetProperties implements Backend.
func (b *ManagerBackend) GetProperties(device, name string) error {
	c, err := b.client()
	if err != nil {
		return err
	}
	return c.GetProperties(device, name)
}

// ConnectDevice implements Backend.
func (b *ManagerBackend) ConnectDevice(device string) error {
	c, err := b.client()
	if err != nil {
		return err
	}
	return c.ConnectDevice(device)
}

// DisconnectDevice implements Backend.
func (b *ManagerBackend) DisconnectDevice(device string) error {
	c, err := b.client()
	if err != nil {
		return err
	}
	return c.DisconnectDevice(device)
}

// EnableBLOB implements Backend.
func (b *ManagerBackend) EnableBLOB(device, name, mode string) error {
	c, err := b.client()
	if err != nil {
		return err
	}
	return c.EnableBLOB(device, name, mode)
}

// Status implements Backend.
func (b *ManagerBackend) Status() string {
	s := fmt.Sprintf("Server: %s\nState:  %s", b.Address, b.Manager.State())
	if n := b.Manager.BackoffAttempts(); n > 0 {
		s += fmt.Sprintf("\nRetries since last connect: %d", n)
	}
	if c := b.Manager.Client(); c != nil {
		s += fmt.Sprintf("\nProperties: %d", c.Store().Len())
	}
	return s
}
