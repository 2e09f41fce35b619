// Package client is a high-level INDI client.
//
// A Client owns one connection to an INDI server and a property.Store fed
// by everything it receives. It can be driven by polling (GetMessages,
// WaitMessages) or by Run, which reads until its context ends and passes
// each message to a handler.
//
// Typical use:
//
//	c, err := client.Dial(ctx, "localhost:7624", client.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	c.SetDevice("CCD Simulator")
//	c.GetProperties("CCD Simulator", "")
//	c.ConnectDevice("CCD Simulator")
//	c.SetNumbers("CCD Simulator", "CCD_EXPOSURE", map[string]float64{"CCD_EXPOSURE_VALUE": 2})
package client
