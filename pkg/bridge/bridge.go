package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/indi-protocol/indi-go/pkg/property"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// Bridge errors.
var (
	ErrNoCommander    = errors.New("no INDI connection")
	ErrInvalidCommand = errors.New("invalid command")
	ErrAlreadyStarted = errors.New("bridge already started")
)

// Publisher sends uplink events and receives commands. It is implemented
// by NATSPublisher.
type Publisher interface {
	Publish(subject string, data []byte) error

	// Subscribe delivers every message on subject to handler. A non-nil
	// return value is sent back when the message carries a reply subject.
	Subscribe(subject string, handler func(data []byte) []byte) (Subscription, error)
}

// Subscription is an active subscription.
type Subscription interface {
	Unsubscribe() error
}

// StateStore caches the latest state of every property. It is implemented
// by RedisStore.
type StateStore interface {
	Put(ctx context.Context, device, name string, fields map[string]any) error
	Delete(ctx context.Context, device, name string) error
}

// Commander forwards element values to the INDI server.
// It is implemented by client.Client.
type Commander interface {
	SetValues(device, name string, values map[string]string) error
}

// CommanderFunc adapts a function to Commander.
type CommanderFunc func(device, name string, values map[string]string) error

// SetValues calls f.
func (f CommanderFunc) SetValues(device, name string, values map[string]string) error {
	return f(device, name, values)
}

// Config configures a Bridge.
type Config struct {
	// Prefix is the first subject token (default: "indi").
	Prefix string

	// Publisher receives events. Nil disables publishing and commands.
	Publisher Publisher

	// Store caches property state. Nil disables caching.
	Store StateStore

	// Commander executes downlink commands. Nil rejects commands.
	Commander Commander

	// MaxBLOBSize is the largest BLOB payload included in events.
	MaxBLOBSize int

	// StoreTimeout bounds each cache write (default: 2s).
	StoreTimeout time.Duration

	// Logger is the optional logger for debug output.
	Logger *slog.Logger
}

// Stats counts bridge activity.
type Stats struct {
	Published     uint64
	Cached        uint64
	Commands      uint64
	CommandErrors uint64
	Errors        uint64
}

// Bridge forwards property changes and notices to a Publisher and a
// StateStore, and relays commands from the command subject to the INDI
// server.
type Bridge struct {
	config Config
	logger *slog.Logger

	mu  sync.Mutex
	sub Subscription

	published     atomic.Uint64
	cached        atomic.Uint64
	commands      atomic.Uint64
	commandErrors atomic.Uint64
	errors        atomic.Uint64
}

// New creates a bridge.
func New(config Config) *Bridge {
	if config.Prefix == "" {
		config.Prefix = "indi"
	}
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = 2 * time.Second
	}
	return &Bridge{config: config, logger: config.Logger}
}

// Subject returns the uplink subject of a property: <prefix>.<device>.<name>.
func (b *Bridge) Subject(device, name string) string {
	return b.config.Prefix + "." + SubjectToken(device) + "." + SubjectToken(name)
}

// CommandSubject returns the downlink subject: <prefix>.cmd.
func (b *Bridge) CommandSubject() string {
	return b.config.Prefix + ".cmd"
}

// Start subscribes to the command subject.
func (b *Bridge) Start() error {
	if b.config.Publisher == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return ErrAlreadyStarted
	}
	sub, err := b.config.Publisher.Subscribe(b.CommandSubject(), b.handleCommand)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.CommandSubject(), err)
	}
	b.sub = sub
	b.debugLog("listening for commands", "subject", b.CommandSubject())
	return nil
}

// Stop removes the command subscription.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub == nil {
		return nil
	}
	err := b.sub.Unsubscribe()
	b.sub = nil
	return err
}

// HandleChange publishes and caches one property change. It is meant to be
// registered with property.Store.OnChange.
func (b *Bridge) HandleChange(c property.Change) {
	if c.Property == nil {
		return
	}
	ev := eventFromChange(c, b.config.MaxBLOBSize)
	b.publish(b.Subject(ev.Device, ev.Property), ev)
	b.cache(c)
}

// HandleMessage publishes <message> notices. Other messages are ignored;
// property traffic reaches the bridge through HandleChange.
func (b *Bridge) HandleMessage(m wire.Message) {
	if m.Tag() != wire.TagMessage {
		return
	}
	ev := eventFromMessage(m)
	device := ev.Device
	if device == "" {
		device = "_server"
	}
	b.publish(b.config.Prefix+"."+SubjectToken(device)+".message", ev)
}

// Stats returns activity counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Published:     b.published.Load(),
		Cached:        b.cached.Load(),
		Commands:      b.commands.Load(),
		CommandErrors: b.commandErrors.Load(),
		Errors:        b.errors.Load(),
	}
}

func (b *Bridge) publish(subject string, ev Event) {
	if b.config.Publisher == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		b.errors.Add(1)
		b.warn("failed to encode event", "subject", subject, "error", err)
		return
	}
	if err := b.config.Publisher.Publish(subject, data); err != nil {
		b.errors.Add(1)
		b.warn("publish failed", "subject", subject, "error", err)
		return
	}
	b.published.Add(1)
}

func (b *Bridge) cache(c property.Change) {
	if b.config.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.config.StoreTimeout)
	defer cancel()

	p := c.Property
	var err error
	if c.Kind == property.ChangeDeleted {
		err = b.config.Store.Delete(ctx, p.Device, p.Name)
	} else {
		err = b.config.Store.Put(ctx, p.Device, p.Name, stateFields(p))
	}
	if err != nil {
		b.errors.Add(1)
		b.warn("state cache failed", "device", p.Device, "property", p.Name, "error", err)
		return
	}
	b.cached.Add(1)
}

// handleCommand executes one downlink command and returns the JSON reply.
func (b *Bridge) handleCommand(data []byte) []byte {
	b.commands.Add(1)
	err := b.execute(data)
	reply := Reply{OK: err == nil}
	if err != nil {
		b.commandErrors.Add(1)
		reply.Error = err.Error()
		b.warn("command failed", "error", err)
	}
	out, _ := json.Marshal(reply)
	return out
}

func (b *Bridge) execute(data []byte) error {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if cmd.Device == "" || cmd.Property == "" || len(cmd.Values) == 0 {
		return fmt.Errorf("%w: device, property and values are required", ErrInvalidCommand)
	}
	if b.config.Commander == nil {
		return ErrNoCommander
	}
	b.debugLog("command", "device", cmd.Device, "property", cmd.Property, "values", len(cmd.Values))
	return b.config.Commander.SetValues(cmd.Device, cmd.Property, cmd.Values)
}

// stateFields flattens a property into hash fields. Element values are
// stored as text under "el:<name>"; BLOB payloads are never cached.
func stateFields(p *property.Property) map[string]any {
	fields := map[string]any{
		"type":  string(p.Type),
		"state": p.State,
		"perm":  p.Perm,
		"label": p.Label,
		"group": p.Group,
	}
	if !p.Timestamp.IsZero() {
		fields["timestamp"] = wire.FormatTimestamp(p.Timestamp)
	}
	if p.Message != "" {
		fields["message"] = p.Message
	}
	for _, e := range p.Elements {
		key := "el:" + e.Name
		switch {
		case p.Type == property.TypeBLOB:
			fields[key] = fmt.Sprintf("%d %s", e.Size, e.Format)
		case e.Value == nil:
			fields[key] = ""
		default:
			fields[key] = wire.FormatValue(e.Value)
		}
	}
	return fields
}

func (b *Bridge) debugLog(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, args...)
	}
}

func (b *Bridge) warn(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, args...)
	}
}
