// Package connection keeps an INDI client session alive across server
// restarts and network failures.
//
// The core transport never retries: a dropped stream ends the session.
// Manager wraps a client.Client in a retry loop with exponential backoff:
//
//  1. Initial delay: 500ms
//  2. Doubling: 1s, 2s, 4s, ...
//  3. Maximum delay: 30 seconds
//  4. Reset to the initial delay after a successful connect
//
// # Jitter
//
// To keep several clients from reconnecting in lockstep:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// # Resynchronisation
//
// A new session starts with an empty property store. The Init hook (by
// default a getProperties for all devices) asks the server to define every
// property again, and usually also re-enables BLOBs and the device filter.
package connection
