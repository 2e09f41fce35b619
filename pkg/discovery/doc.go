// Package discovery finds INDI servers on the local network with mDNS/DNS-SD.
//
// indiserver instances announced through Avahi or Bonjour use the service
// type _indi._tcp in the local domain. Instance names are free text chosen by
// the host (usually "INDI Server on <hostname>") and TXT records are optional.
//
// # Browsing
//
// MDNSBrowser.Browse streams servers as they are seen. Answers for the same
// instance that arrive on several interfaces are merged into one Server, so
// every server is emitted once. Find collects everything seen until the
// context ends or BrowseTimeout elapses:
//
//	b, _ := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
//	servers, err := b.Find(ctx)
//	for _, s := range servers {
//		fmt.Println(s.Instance, s.Address())
//	}
package discovery
