package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(instance string, port int, ips ...string) *zeroconf.ServiceEntry {
	e := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{
			Instance: instance,
			Service:  ServiceType,
			Domain:   Domain,
		},
		HostName: "observatory.local.",
		Port:     port,
		Text:     []string{"version=1.7"},
	}
	for _, s := range ips {
		ip := net.ParseIP(s)
		if ip.To4() != nil {
			e.AddrIPv4 = append(e.AddrIPv4, ip)
		} else {
			e.AddrIPv6 = append(e.AddrIPv6, ip)
		}
	}
	return e
}

// event is one answer replayed by fakeBrowser.
type event struct {
	entry   *zeroconf.ServiceEntry
	removed bool
}

// fakeBrowser returns a browser whose mDNS query replays events in order.
func fakeBrowser(t *testing.T, events ...event) *MDNSBrowser {
	t.Helper()
	b, err := NewMDNSBrowser(DefaultBrowserConfig())
	require.NoError(t, err)
	b.browse = func(ctx context.Context, entries, removed chan<- *zeroconf.ServiceEntry) error {
		for _, ev := range events {
			ch := entries
			if ev.removed {
				ch = removed
			}
			select {
			case ch <- ev.entry:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		<-ctx.Done()
		return ctx.Err()
	}
	return b
}

func TestServerAddress(t *testing.T) {
	tests := []struct {
		name string
		svc  Server
		want string
	}{
		{"FirstAddress", Server{Host: "h.local.", Port: 7625, Addresses: []string{"10.0.0.2", "10.0.0.3"}}, "10.0.0.2:7625"},
		{"HostFallback", Server{Host: "h.local.", Port: 7624}, "h.local:7624"},
		{"DefaultPort", Server{Addresses: []string{"10.0.0.2"}}, "10.0.0.2:7624"},
		{"IPv6", Server{Port: 7624, Addresses: []string{"fe80::1"}}, "[fe80::1]:7624"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.svc.Address())
		})
	}
}

func TestParseTXT(t *testing.T) {
	got := ParseTXT([]string{"version=1.7", "flag", "=orphan", "k=a=b"})
	assert.Equal(t, map[string]string{"version": "1.7", "flag": "", "k": "a=b"}, got)
}

func TestAggregatorMergesInterfaces(t *testing.T) {
	agg := newAggregator()

	svc, isNew := agg.add(testEntry("INDI Server", 7624, "192.168.1.10"))
	require.True(t, isNew)
	assert.Equal(t, []string{"192.168.1.10"}, svc.Addresses)
	assert.Equal(t, "1.7", svc.Text["version"])

	again, isNew := agg.add(testEntry("INDI Server", 7624, "192.168.1.10", "fe80::10"))
	assert.False(t, isNew)
	assert.Same(t, svc, again)
	assert.Equal(t, []string{"192.168.1.10", "fe80::10"}, svc.Addresses)

	assert.False(t, agg.remove(testEntry("INDI Server", 7624, "fe80::10")))
	assert.Equal(t, []string{"192.168.1.10"}, svc.Addresses)

	assert.True(t, agg.remove(testEntry("INDI Server", 7624, "192.168.1.10")))
	assert.False(t, agg.remove(testEntry("Unknown", 7624, "192.168.1.10")))

	_, isNew = agg.add(testEntry("INDI Server", 7624, "192.168.1.10"))
	assert.True(t, isNew, "forgotten server is new again")
}

func TestBrowseEmitsOncePerInstance(t *testing.T) {
	b := fakeBrowser(t,
		event{entry: testEntry("Scope", 7624, "10.0.0.1")},
		event{entry: testEntry("Scope", 7624, "fe80::1")},
		event{entry: testEntry("Dome", 7625, "10.0.0.2")},
	)
	defer b.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	results, err := b.Browse(ctx)
	require.NoError(t, err)

	var names []string
	for svc := range results {
		names = append(names, svc.Instance)
		if len(names) == 2 {
			cancel()
		}
	}
	assert.Equal(t, []string{"Scope", "Dome"}, names)
}

func TestFindCollectsSorted(t *testing.T) {
	b := fakeBrowser(t,
		event{entry: testEntry("Scope", 7624, "10.0.0.1")},
		event{entry: testEntry("Dome", 7625, "10.0.0.2")},
		event{entry: testEntry("Gone", 7626, "10.0.0.3")},
		event{entry: testEntry("Gone", 7626, "10.0.0.3"), removed: true},
	)
	defer b.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	servers, err := b.Find(ctx)
	require.NoError(t, err)
	require.Len(t, servers, 3, "removal after emission does not retract")
	assert.Equal(t, "Dome", servers[0].Instance)
	assert.Equal(t, "10.0.0.2:7625", servers[0].Address())
	assert.Equal(t, "Gone", servers[1].Instance)
	assert.Equal(t, "Scope", servers[2].Instance)
}

func TestFindTimeoutEmpty(t *testing.T) {
	b := fakeBrowser(t)
	b.config.BrowseTimeout = 50 * time.Millisecond
	defer b.Stop()

	servers, err := b.Find(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, servers)
}

func TestFindInstance(t *testing.T) {
	b := fakeBrowser(t,
		event{entry: testEntry("Scope", 7624, "10.0.0.1")},
		event{entry: testEntry("Dome", 7625, "10.0.0.2")},
	)
	defer b.Stop()

	svc, err := b.FindInstance(context.Background(), "Dome")
	require.NoError(t, err)
	assert.Equal(t, 7625, svc.Port)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = b.FindInstance(ctx, "Focuser")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStopEndsBrowse(t *testing.T) {
	b := fakeBrowser(t)

	results, err := b.Browse(context.Background())
	require.NoError(t, err)

	b.Stop()
	select {
	case _, ok := <-results:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("browse did not end after Stop")
	}

	_, err = b.Browse(context.Background())
	assert.ErrorIs(t, err, ErrBrowserStopped)
}
