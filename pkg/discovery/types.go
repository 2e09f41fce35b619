package discovery

import (
	"errors"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// ServiceType is the DNS-SD service type announced by indiserver.
	ServiceType = "_indi._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultPort is the standard INDI server port.
	DefaultPort = 7624

	// BrowseTimeout is the default duration of Find.
	BrowseTimeout = 5 * time.Second
)

// Errors returned by the browser.
var (
	ErrBrowserStopped = errors.New("browser stopped")
	ErrNotFound       = errors.New("server not found")
)

// Server is one INDI server seen on the network.
type Server struct {
	// Instance is the DNS-SD instance name.
	Instance string

	// Host is the advertised host name.
	Host string

	// Port is the advertised TCP port.
	Port int

	// Addresses lists the IPv4 addresses first, then IPv6.
	Addresses []string

	// Text holds the TXT record as key/value pairs.
	Text map[string]string
}

// Address returns a host:port suitable for transport.Dial. It prefers the
// first resolved address and falls back to the host name.
func (s *Server) Address() string {
	port := s.Port
	if port == 0 {
		port = DefaultPort
	}
	host := strings.TrimSuffix(s.Host, ".")
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (s *Server) clone() *Server {
	c := *s
	c.Addresses = append([]string(nil), s.Addresses...)
	c.Text = make(map[string]string, len(s.Text))
	for k, v := range s.Text {
		c.Text[k] = v
	}
	return &c
}

// ParseTXT parses "key=value" strings. A bare key maps to "".
func ParseTXT(strs []string) map[string]string {
	txt := make(map[string]string, len(strs))
	for _, s := range strs {
		k, v, _ := strings.Cut(s, "=")
		if k == "" {
			continue
		}
		txt[k] = v
	}
	return txt
}

// sortServers orders servers by instance name.
func sortServers(servers []*Server) {
	sort.Slice(servers, func(i, j int) bool {
		return servers[i].Instance < servers[j].Instance
	})
}
