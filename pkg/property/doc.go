// Package property keeps a client's view of the devices and properties
// announced by an INDI server.
//
// A Store is fed every received message. Definitions (def*Vector) create or
// replace a property, updates (set*Vector) change state and element values,
// and delProperty removes one property or a whole device. Other messages are
// ignored.
//
// Readers always receive copies, so a Property returned by Get stays stable
// while the store keeps changing.
package property
