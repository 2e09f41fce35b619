// Package bridge mirrors INDI property traffic to NATS and Redis.
//
// Every property change seen by a client's property store is published as
// a JSON Event on <prefix>.<device>.<property>, and <message> notices go to
// <prefix>.<device>.message. The latest state of each property is cached
// in Redis so late subscribers can read it without waiting for the next
// update. Commands published on <prefix>.cmd are decoded and forwarded to
// the INDI server as new*Vector messages:
//
//	{"device": "CCD Simulator", "property": "CCD_EXPOSURE",
//	 "values": {"CCD_EXPOSURE_VALUE": "2.5"}}
//
// Wiring a bridge to a connection manager:
//
//	b := bridge.New(bridge.Config{Publisher: pub, Store: store, Commander: cmd})
//	mgr.OnConnected(func(c *client.Client) {
//	    c.Store().OnChange(b.HandleChange)
//	})
//	_ = b.Start()
//	mgr.Run(ctx, b.HandleMessage)
package bridge
