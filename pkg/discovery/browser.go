package discovery

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Browser finds INDI servers.
type Browser interface {
	// Browse emits each server once, when it is first seen. The channel is
	// closed when ctx ends or the browser is stopped.
	Browse(ctx context.Context) (<-chan *Server, error)

	// Find collects the servers seen before ctx ends or the browse timeout
	// elapses. Running out of time is not an error.
	Find(ctx context.Context) ([]*Server, error)

	// FindInstance returns the first server whose instance name matches.
	FindInstance(ctx context.Context, instance string) (*Server, error)

	// Stop ends all active browse operations.
	Stop()
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds Find when ctx has no deadline.
	// Default: 5 seconds.
	BrowseTimeout time.Duration

	// Interface restricts browsing to one network interface.
	// Empty string means all interfaces.
	Interface string

	// Logger receives debug output (optional).
	Logger *slog.Logger
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
	}
}

// MDNSBrowser implements Browser using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig

	// browse starts the underlying mDNS query. Replaced in tests.
	browse func(ctx context.Context, entries, removed chan<- *zeroconf.ServiceEntry) error

	mu      sync.Mutex
	stopped bool
	cancels map[int]context.CancelFunc
	nextID  int
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) (*MDNSBrowser, error) {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = BrowseTimeout
	}
	b := &MDNSBrowser{
		config:  config,
		cancels: make(map[int]context.CancelFunc),
	}
	b.browse = func(ctx context.Context, entries, removed chan<- *zeroconf.ServiceEntry) error {
		return zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.browserOptions()...)
	}
	return b, nil
}

// Browse streams servers as they are discovered. Answers for one instance on
// several interfaces are merged; a server whose addresses all disappear is
// forgotten and emitted again if it comes back. Emitted values are copies
// and are not updated afterwards.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *Server, error) {
	ctx, done, err := b.track(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan *Server)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)
		defer done()

		agg := newAggregator()
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc, isNew := agg.add(entry)
				if !isNew {
					continue
				}
				b.debugLog("server found", "instance", svc.Instance, "address", svc.Address())
				select {
				case out <- svc.clone():
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					removed = nil
					continue
				}
				if agg.remove(entry) {
					b.debugLog("server gone", "instance", entry.Instance)
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		if err := b.browse(ctx, entries, removed); err != nil {
			b.debugLog("browse failed", "error", err)
		}
	}()

	return out, nil
}

// Find returns every server seen before the deadline, sorted by instance.
func (b *MDNSBrowser) Find(ctx context.Context) ([]*Server, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.BrowseTimeout)
		defer cancel()
	}

	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	servers := []*Server{}
	for svc := range results {
		servers = append(servers, svc)
	}
	sortServers(servers)
	return servers, nil
}

// FindInstance returns the named server, or ErrNotFound when the deadline
// passes first.
func (b *MDNSBrowser) FindInstance(ctx context.Context, instance string) (*Server, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.BrowseTimeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	for svc := range results {
		if svc.Instance == instance {
			return svc, nil
		}
	}
	return nil, ErrNotFound
}

// Stop cancels all active browse operations. Later calls to Browse fail.
func (b *MDNSBrowser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	for id, cancel := range b.cancels {
		cancel()
		delete(b.cancels, id)
	}
}

// track derives a cancellable context registered with Stop.
func (b *MDNSBrowser) track(ctx context.Context) (context.Context, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return nil, nil, ErrBrowserStopped
	}
	ctx, cancel := context.WithCancel(ctx)
	id := b.nextID
	b.nextID++
	b.cancels[id] = cancel

	done := func() {
		cancel()
		b.mu.Lock()
		delete(b.cancels, id)
		b.mu.Unlock()
	}
	return ctx, done, nil
}

// browserOptions returns zeroconf client options based on config.
func (b *MDNSBrowser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption

	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		} else {
			b.debugLog("interface not found, using all", "interface", b.config.Interface, "error", err)
		}
	}

	return opts
}

func (b *MDNSBrowser) debugLog(msg string, args ...any) {
	if b.config.Logger != nil {
		b.config.Logger.Debug(msg, args...)
	}
}

// aggregator merges zeroconf answers by instance name.
type aggregator struct {
	servers map[string]*Server
}

func newAggregator() *aggregator {
	return &aggregator{servers: make(map[string]*Server)}
}

// add records an entry. It reports true the first time an instance is seen.
func (a *aggregator) add(entry *zeroconf.ServiceEntry) (*Server, bool) {
	svc := entryToServer(entry)
	if existing, ok := a.servers[svc.Instance]; ok {
		existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
		return existing, false
	}
	a.servers[svc.Instance] = svc
	return svc, true
}

// remove drops the entry's addresses. It reports true when the server has no
// addresses left and is forgotten.
func (a *aggregator) remove(entry *zeroconf.ServiceEntry) bool {
	existing, ok := a.servers[entry.Instance]
	if !ok {
		return false
	}
	existing.Addresses = removeAddresses(existing.Addresses, entry)
	if len(existing.Addresses) == 0 {
		delete(a.servers, entry.Instance)
		return true
	}
	return false
}

// entryToServer converts a zeroconf entry.
func entryToServer(entry *zeroconf.ServiceEntry) *Server {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return &Server{
		Instance:  entry.Instance,
		Host:      entry.HostName,
		Port:      entry.Port,
		Addresses: addrs,
		Text:      ParseTXT(entry.Text),
	}
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}

	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses removes the entry's addresses from the list.
func removeAddresses(addresses []string, entry *zeroconf.ServiceEntry) []string {
	toRemove := make(map[string]bool)
	for _, ip := range entry.AddrIPv4 {
		toRemove[ip.String()] = true
	}
	for _, ip := range entry.AddrIPv6 {
		toRemove[ip.String()] = true
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}

// Ensure MDNSBrowser implements Browser interface.
var _ Browser = (*MDNSBrowser)(nil)
