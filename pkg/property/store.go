package property

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/indi-protocol/indi-go/pkg/log"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// Store errors.
var (
	ErrNotAProperty    = errors.New("message does not describe a property")
	ErrUnknownProperty = errors.New("unknown property")
	ErrUnknownDevice   = errors.New("unknown device")
)

// ChangeKind identifies what happened to a property.
type ChangeKind uint8

const (
	// ChangeDefined means a property was defined or redefined.
	ChangeDefined ChangeKind = iota

	// ChangeUpdated means state or values of a property changed.
	ChangeUpdated

	// ChangeDeleted means a property was removed.
	ChangeDeleted
)

// String returns the change kind name.
func (k ChangeKind) String() string {
	switch k {
	case ChangeDefined:
		return "DEFINED"
	case ChangeUpdated:
		return "UPDATED"
	case ChangeDeleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// Change describes one property change. Property is a copy of the property
// after the change, or before it for deletions.
type Change struct {
	Kind     ChangeKind
	Property *Property
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// Logger receives a state event per definition and deletion (optional).
	Logger log.Logger

	// ConnID tags log events.
	ConnID string
}

// Store holds the latest known state of every property. It is safe for
// concurrent use.
type Store struct {
	config StoreConfig
	logger log.Logger

	mu      sync.RWMutex
	devices map[string]map[string]*Property

	handlersMu sync.RWMutex
	handlers   []func(Change)
}

// NewStore creates an empty store.
func NewStore(config StoreConfig) *Store {
	return &Store{
		config:  config,
		logger:  log.OrNoop(config.Logger),
		devices: make(map[string]map[string]*Property),
	}
}

// OnChange registers fn to be called after every change. Callbacks run on
// the goroutine calling Apply, outside the store lock.
func (s *Store) OnChange(fn func(Change)) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers = append(s.handlers, fn)
}

// Apply updates the store from a received message and reports whether it
// changed anything. Messages that do not concern properties are ignored.
// An update for an undefined property returns ErrUnknownProperty.
func (s *Store) Apply(m wire.Message) (bool, error) {
	var changes []Change
	var err error

	switch m.Tag() {
	case wire.TagDefTextVector, wire.TagDefNumberVector, wire.TagDefSwitchVector,
		wire.TagDefLightVector, wire.TagDefBLOBVector:
		changes, err = s.define(m)
	case wire.TagSetTextVector, wire.TagSetNumberVector, wire.TagSetSwitchVector,
		wire.TagSetLightVector, wire.TagSetBLOBVector:
		changes, err = s.update(m)
	case wire.TagDelProperty:
		changes = s.delete(m.Device(), m.Name())
	default:
		return false, nil
	}
	if err != nil {
		return false, err
	}

	for _, c := range changes {
		if c.Kind != ChangeUpdated {
			s.logChange(c)
		}
		s.notify(c)
	}
	return len(changes) > 0, nil
}

func (s *Store) define(m wire.Message) ([]Change, error) {
	v, ok := m.(*wire.Vector)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAProperty, m.Tag())
	}
	p, err := fromDefinition(v)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	props, ok := s.devices[p.Device]
	if !ok {
		props = make(map[string]*Property)
		s.devices[p.Device] = props
	}
	props[p.Name] = p
	snapshot := p.Clone()
	s.mu.Unlock()

	return []Change{{Kind: ChangeDefined, Property: snapshot}}, nil
}

func (s *Store) update(m wire.Message) ([]Change, error) {
	v, ok := m.(*wire.Vector)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAProperty, m.Tag())
	}

	s.mu.Lock()
	p, ok := s.devices[v.Device()][v.Name()]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownProperty, v.Device(), v.Name())
	}
	applyUpdate(p, v)
	snapshot := p.Clone()
	s.mu.Unlock()

	return []Change{{Kind: ChangeUpdated, Property: snapshot}}, nil
}

// delete removes one property, or every property of the device when name
// is empty.
func (s *Store) delete(device, name string) []Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	props, ok := s.devices[device]
	if !ok {
		return nil
	}

	var changes []Change
	if name != "" {
		p, ok := props[name]
		if !ok {
			return nil
		}
		delete(props, name)
		changes = append(changes, Change{Kind: ChangeDeleted, Property: p})
	} else {
		for _, n := range sortedNames(props) {
			changes = append(changes, Change{Kind: ChangeDeleted, Property: props[n]})
		}
		props = nil
	}
	if len(props) == 0 {
		delete(s.devices, device)
	}
	return changes
}

// Get returns a copy of a property.
func (s *Store) Get(device, name string) (*Property, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.devices[device][name]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Element returns a copy of one element of a property.
func (s *Store) Element(device, name, element string) (Element, error) {
	p, ok := s.Get(device, name)
	if !ok {
		return Element{}, fmt.Errorf("%w: %s.%s", ErrUnknownProperty, device, name)
	}
	e, ok := p.Element(element)
	if !ok {
		return Element{}, fmt.Errorf("%w: %s.%s has no element %q", ErrUnknownProperty, device, name, element)
	}
	return e, nil
}

// Devices returns the names of all known devices, sorted.
func (s *Store) Devices() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.devices))
	for d := range s.devices {
		names = append(names, d)
	}
	sort.Strings(names)
	return names
}

// Properties returns copies of a device's properties sorted by group, then
// name.
func (s *Store) Properties(device string) ([]*Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	props, ok := s.devices[device]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, device)
	}
	out := make([]*Property, 0, len(props))
	for _, p := range props {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Len returns the number of known properties across all devices.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, props := range s.devices {
		n += len(props)
	}
	return n
}

// Reset forgets everything, typically after a reconnect.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = make(map[string]map[string]*Property)
}

func (s *Store) notify(c Change) {
	s.handlersMu.RLock()
	handlers := s.handlers
	s.handlersMu.RUnlock()
	for _, fn := range handlers {
		fn(c)
	}
}

func (s *Store) logChange(c Change) {
	state := "DEFINED"
	old := ""
	if c.Kind == ChangeDeleted {
		state, old = "DELETED", "DEFINED"
	}
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.config.ConnID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerClient,
		Category:     log.CategoryState,
		Device:       c.Property.Device,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityProperty,
			OldState: old,
			NewState: state,
			Reason:   c.Property.Name,
		},
	})
}

func sortedNames(props map[string]*Property) []string {
	names := make([]string, 0, len(props))
	for n := range props {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
