package client

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/indi-protocol/indi-go/pkg/log"
	"github.com/indi-protocol/indi-go/pkg/property"
	"github.com/indi-protocol/indi-go/pkg/transport"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// Standard property and element names used by the helpers.
const (
	PropConnection = "CONNECTION"
	ElemConnect    = "CONNECT"
	ElemDisconnect = "DISCONNECT"
)

// DefaultPollInterval is how long one GetMessages call waits by default.
const DefaultPollInterval = 500 * time.Millisecond

// Config configures a Client.
type Config struct {
	// Transport configures the underlying connection.
	Transport transport.ClientConfig

	// PollInterval is how long one GetMessages call waits for data
	// (default: 500ms).
	PollInterval time.Duration

	// ProtocolLogger receives protocol events from the connection and the
	// property store (optional).
	ProtocolLogger log.Logger

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		Transport:    transport.DefaultClientConfig(),
		PollInterval: DefaultPollInterval,
	}
}

// Client is a connection to an INDI server plus the property state it has
// announced. Methods may be called from multiple goroutines, but only one
// goroutine should read (GetMessages, WaitMessages, Run, Wait*) at a time.
type Client struct {
	config Config
	conn   transport.ClientConnection
	store  *property.Store
	logger *slog.Logger
}

// Dial connects to an INDI server.
func Dial(ctx context.Context, address string, config Config) (*Client, error) {
	config.Transport.ProtocolLogger = config.ProtocolLogger
	conn, err := transport.Dial(ctx, address, config.Transport)
	if err != nil {
		return nil, err
	}
	c := New(conn, config)
	c.debugLog("connected", "address", address, "connID", conn.ID())
	return c, nil
}

// New wraps an established connection.
func New(conn transport.ClientConnection, config Config) *Client {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	return &Client{
		config: config,
		conn:   conn,
		logger: config.Logger,
		store: property.NewStore(property.StoreConfig{
			Logger: config.ProtocolLogger,
			ConnID: conn.ID(),
		}),
	}
}

// Store returns the property store kept up to date by received messages.
func (c *Client) Store() *property.Store {
	return c.store
}

// SetDevice restricts received messages to one device. An empty name
// accepts every device.
func (c *Client) SetDevice(device string) {
	c.conn.SetDevice(device)
}

// Send validates, encodes and writes a message.
func (c *Client) Send(m wire.Message) error {
	if err := c.conn.Send(m); err != nil {
		return err
	}
	c.debugLog("sent", "tag", m.Tag(), "device", m.Device(), "name", m.Name())
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// GetMessages waits up to the poll interval and returns the messages
// completed in that time, which may be none.
func (c *Client) GetMessages() ([]wire.Message, error) {
	msgs, err := c.conn.Receive(c.config.PollInterval)
	for _, m := range msgs {
		c.apply(m)
	}
	return msgs, err
}

// WaitMessages polls until at least one message arrives or ctx ends.
func (c *Client) WaitMessages(ctx context.Context) ([]wire.Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msgs, err := c.GetMessages()
		if len(msgs) > 0 || err != nil {
			return msgs, err
		}
	}
}

// Run reads until ctx ends or the connection fails, passing each message
// to handler after the store has been updated. It returns nil when ctx
// ends.
func (c *Client) Run(ctx context.Context, handler func(wire.Message)) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		msgs, err := c.GetMessages()
		for _, m := range msgs {
			if handler != nil {
				handler(m)
			}
		}
		if err != nil {
			return err
		}
	}
}

// WaitMessage reads until a message satisfying match arrives. Messages
// read on the way still update the store.
func (c *Client) WaitMessage(ctx context.Context, match func(wire.Message) bool) (wire.Message, error) {
	for {
		msgs, err := c.WaitMessages(ctx)
		for _, m := range msgs {
			if match(m) {
				return m, nil
			}
		}
		if err != nil {
			return nil, err
		}
	}
}

// WaitProperty reads until the named property exists and satisfies cond
// (nil accepts any state), then returns a copy of it.
func (c *Client) WaitProperty(ctx context.Context, device, name string, cond func(*property.Property) bool) (*property.Property, error) {
	check := func() (*property.Property, bool) {
		p, ok := c.store.Get(device, name)
		if !ok || (cond != nil && !cond(p)) {
			return nil, false
		}
		return p, true
	}
	if p, ok := check(); ok {
		return p, nil
	}
	for {
		if _, err := c.WaitMessages(ctx); err != nil {
			if p, ok := check(); ok {
				return p, nil
			}
			return nil, fmt.Errorf("waiting for %s.%s: %w", device, name, err)
		}
		if p, ok := check(); ok {
			return p, nil
		}
	}
}

// WaitBLOB reads until a setBLOBVector for the property arrives and returns
// its first element.
func (c *Client) WaitBLOB(ctx context.Context, device, name string) (*wire.Element, error) {
	m, err := c.WaitMessage(ctx, func(m wire.Message) bool {
		v, ok := m.(*wire.Vector)
		return ok && v.Tag() == wire.TagSetBLOBVector &&
			v.Device() == device && v.Name() == name && v.Len() > 0
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for BLOB %s.%s: %w", device, name, err)
	}
	return m.(*wire.Vector).Child(0), nil
}

// GetProperties asks the server to define properties. Empty device or name
// widen the query.
func (c *Client) GetProperties(device, name string) error {
	return c.Send(wire.GetProperties(device, name))
}

// ConnectDevice switches the device's CONNECTION property to CONNECT.
func (c *Client) ConnectDevice(device string) error {
	return c.SetSwitches(device, PropConnection, map[string]bool{ElemConnect: true, ElemDisconnect: false})
}

// DisconnectDevice switches the device's CONNECTION property to DISCONNECT.
func (c *Client) DisconnectDevice(device string) error {
	return c.SetSwitches(device, PropConnection, map[string]bool{ElemConnect: false, ElemDisconnect: true})
}

// EnableBLOB selects BLOB delivery (wire.BLOBNever, BLOBAlso or BLOBOnly)
// for a device, or for one property when name is set.
func (c *Client) EnableBLOB(device, name, mode string) error {
	return c.Send(wire.EnableBLOB(device, name, mode))
}

// SetNumbers sends a newNumberVector. Elements are sent in name order.
func (c *Client) SetNumbers(device, name string, values map[string]float64) error {
	members := make([]*wire.Element, 0, len(values))
	for _, k := range sortedKeys(values) {
		members = append(members, wire.OneNumber(k, values[k]))
	}
	v, err := wire.NewNumberVector(device, name, members...)
	if err != nil {
		return err
	}
	return c.Send(v)
}

// SetSwitches sends a newSwitchVector. Elements are sent in name order.
func (c *Client) SetSwitches(device, name string, values map[string]bool) error {
	members := make([]*wire.Element, 0, len(values))
	for _, k := range sortedKeys(values) {
		members = append(members, wire.OneSwitch(k, values[k]))
	}
	v, err := wire.NewSwitchVector(device, name, members...)
	if err != nil {
		return err
	}
	return c.Send(v)
}

// SetTexts sends a newTextVector. Elements are sent in name order.
func (c *Client) SetTexts(device, name string, values map[string]string) error {
	members := make([]*wire.Element, 0, len(values))
	for _, k := range sortedKeys(values) {
		members = append(members, wire.OneText(k, values[k]))
	}
	v, err := wire.NewTextVector(device, name, members...)
	if err != nil {
		return err
	}
	return c.Send(v)
}

// SetValues sends a new*Vector for a known property, converting each value
// from text according to the property type.
func (c *Client) SetValues(device, name string, values map[string]string) error {
	p, ok := c.store.Get(device, name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", property.ErrUnknownProperty, device, name)
	}
	tag, ok := wire.NewCommand(commandSource(p.Type))
	if !ok {
		return fmt.Errorf("%s.%s: %s properties are read-only", device, name, p.Type)
	}
	members := make([]*wire.Element, 0, len(values))
	for _, k := range sortedKeys(values) {
		if _, ok := p.Element(k); !ok {
			return fmt.Errorf("%w: %s.%s has no element %q", property.ErrUnknownProperty, device, name, k)
		}
		e, err := wire.Member(tag, k, values[k])
		if err != nil {
			return fmt.Errorf("%s.%s.%s: %w", device, name, k, err)
		}
		members = append(members, e)
	}
	v, err := wire.NewVector(tag, wire.Attrs{"device": device, "name": name}, members...)
	if err != nil {
		return err
	}
	return c.Send(v)
}

func commandSource(t property.Type) wire.Tag {
	switch t {
	case property.TypeText:
		return wire.TagDefTextVector
	case property.TypeNumber:
		return wire.TagDefNumberVector
	case property.TypeSwitch:
		return wire.TagDefSwitchVector
	case property.TypeBLOB:
		return wire.TagDefBLOBVector
	}
	return wire.TagDefLightVector
}

func (c *Client) apply(m wire.Message) {
	if _, err := c.store.Apply(m); err != nil {
		c.debugLog("store update skipped", "tag", m.Tag(), "error", err)
	}
}

func (c *Client) debugLog(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
