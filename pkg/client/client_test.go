package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indi-protocol/indi-go/pkg/property"
	"github.com/indi-protocol/indi-go/pkg/transport"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// fakeServer is the server end of a pipe. It decodes whatever the client
// sends with a Reassembler of its own.
type fakeServer struct {
	t        *testing.T
	conn     net.Conn
	received chan wire.Message
}

func newTestClient(t *testing.T) (*Client, *fakeServer) {
	t.Helper()
	clientSide, serverSide := net.Pipe()

	cfg := DefaultConfig()
	cfg.PollInterval = 20 * time.Millisecond
	c := New(transport.NewClientConn(clientSide, cfg.Transport), cfg)

	s := &fakeServer{t: t, conn: serverSide, received: make(chan wire.Message, 32)}
	go s.readLoop()

	t.Cleanup(func() {
		c.Close()
		serverSide.Close()
	})
	return c, s
}

func (s *fakeServer) readLoop() {
	r := transport.NewReassembler(transport.ReassemblerConfig{})
	buf := make([]byte, 4096)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			msgs, _ := r.Feed(buf[:n])
			for _, m := range msgs {
				s.received <- m
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *fakeServer) send(xml string) {
	go s.conn.Write([]byte(xml))
}

func (s *fakeServer) next() wire.Message {
	s.t.Helper()
	select {
	case m := <-s.received:
		return m
	case <-time.After(2 * time.Second):
		s.t.Fatal("timed out waiting for a client message")
		return nil
	}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

const switchDef = `<defSwitchVector device="CCD Simulator" name="CONNECTION" state="Idle" perm="rw" rule="OneOfMany">
  <defSwitch name="CONNECT">Off</defSwitch>
  <defSwitch name="DISCONNECT">On</defSwitch>
</defSwitchVector>`

const numberDef = `<defNumberVector device="CCD Simulator" name="CCD_EXPOSURE" state="Idle" perm="rw">
  <defNumber name="CCD_EXPOSURE_VALUE" format="%5.2f" min="0" max="3600" step="1">1</defNumber>
</defNumberVector>`

func TestGetProperties(t *testing.T) {
	c, s := newTestClient(t)

	require.NoError(t, c.GetProperties("CCD Simulator", ""))

	m := s.next()
	assert.Equal(t, wire.TagGetProperties, m.Tag())
	assert.Equal(t, "CCD Simulator", m.Device())
	assert.Equal(t, "1.7", m.AttrString("version"))
}

func TestConnectDevice(t *testing.T) {
	c, s := newTestClient(t)

	require.NoError(t, c.ConnectDevice("CCD Simulator"))

	m := s.next()
	v, ok := m.(*wire.Vector)
	require.True(t, ok)
	assert.Equal(t, wire.TagNewSwitchVector, v.Tag())
	assert.Equal(t, PropConnection, v.Name())
	require.Equal(t, 2, v.Len())
	assert.True(t, v.Find(ElemConnect).Bool())
	assert.False(t, v.Find(ElemDisconnect).Bool())

	require.NoError(t, c.DisconnectDevice("CCD Simulator"))
	v = s.next().(*wire.Vector)
	assert.True(t, v.Find(ElemDisconnect).Bool())
}

func TestSetters(t *testing.T) {
	c, s := newTestClient(t)

	require.NoError(t, c.SetNumbers("Telescope", "EQUATORIAL_EOD_COORD", map[string]float64{"RA": 5.5, "DEC": -10}))
	v := s.next().(*wire.Vector)
	assert.Equal(t, wire.TagNewNumberVector, v.Tag())
	require.Equal(t, 2, v.Len())
	assert.Equal(t, "DEC", v.Child(0).Name(), "elements are sent in name order")
	f, err := v.Child(1).Float()
	require.NoError(t, err)
	assert.Equal(t, 5.5, f)

	require.NoError(t, c.SetTexts("Telescope", "SITE", map[string]string{"NAME": "Backyard"}))
	v = s.next().(*wire.Vector)
	assert.Equal(t, wire.TagNewTextVector, v.Tag())
	assert.Equal(t, "Backyard", v.Child(0).Text())

	require.NoError(t, c.EnableBLOB("CCD Simulator", "", wire.BLOBAlso))
	e := s.next().(*wire.Element)
	assert.Equal(t, wire.TagEnableBLOB, e.Tag())
	assert.Equal(t, wire.BLOBAlso, e.Text())
}

func TestGetMessagesUpdatesStore(t *testing.T) {
	c, s := newTestClient(t)

	s.send(switchDef + numberDef)
	msgs, err := c.WaitMessages(testContext(t))
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	assert.Equal(t, 2, c.Store().Len())
	p, ok := c.Store().Get("CCD Simulator", "CCD_EXPOSURE")
	require.True(t, ok)
	assert.Equal(t, property.TypeNumber, p.Type)
}

func TestGetMessagesTimeout(t *testing.T) {
	c, _ := newTestClient(t)

	msgs, err := c.GetMessages()
	assert.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestWaitMessagesContext(t *testing.T) {
	c, _ := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.WaitMessages(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitProperty(t *testing.T) {
	c, s := newTestClient(t)

	s.send(switchDef)
	go func() {
		time.Sleep(30 * time.Millisecond)
		s.conn.Write([]byte(`<setSwitchVector device="CCD Simulator" name="CONNECTION" state="Ok"><oneSwitch name="CONNECT">On</oneSwitch><oneSwitch name="DISCONNECT">Off</oneSwitch></setSwitchVector>`))
	}()

	p, err := c.WaitProperty(testContext(t), "CCD Simulator", PropConnection, func(p *property.Property) bool {
		return p.State == wire.StateOk
	})
	require.NoError(t, err)
	e, ok := p.Element(ElemConnect)
	require.True(t, ok)
	assert.True(t, e.On())
}

func TestWaitPropertyAlreadyKnown(t *testing.T) {
	c, s := newTestClient(t)
	s.send(switchDef)
	_, err := c.WaitMessages(testContext(t))
	require.NoError(t, err)

	p, err := c.WaitProperty(testContext(t), "CCD Simulator", PropConnection, nil)
	require.NoError(t, err)
	assert.Equal(t, wire.RuleOneOfMany, p.Rule)
}

func TestWaitBLOB(t *testing.T) {
	c, s := newTestClient(t)

	s.send(`<message device="CCD Simulator" message="exposure done"/>` +
		`<setBLOBVector device="CCD Simulator" name="CCD1" state="Ok"><oneBLOB name="CCD1" size="5" format=".fits">aGVsbG8=</oneBLOB></setBLOBVector>`)

	e, err := c.WaitBLOB(testContext(t), "CCD Simulator", "CCD1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), e.Bytes())
	assert.Equal(t, ".fits", e.AttrString("format"))
}

func TestSetValues(t *testing.T) {
	c, s := newTestClient(t)

	err := c.SetValues("CCD Simulator", "CCD_EXPOSURE", map[string]string{"CCD_EXPOSURE_VALUE": "2"})
	assert.ErrorIs(t, err, property.ErrUnknownProperty)

	s.send(numberDef)
	_, err = c.WaitMessages(testContext(t))
	require.NoError(t, err)

	require.NoError(t, c.SetValues("CCD Simulator", "CCD_EXPOSURE", map[string]string{"CCD_EXPOSURE_VALUE": "0:30"}))
	v := s.next().(*wire.Vector)
	assert.Equal(t, wire.TagNewNumberVector, v.Tag())
	f, err := v.Child(0).Float()
	require.NoError(t, err)
	assert.Equal(t, 0.5, f)

	err = c.SetValues("CCD Simulator", "CCD_EXPOSURE", map[string]string{"NOPE": "1"})
	assert.ErrorIs(t, err, property.ErrUnknownProperty)

	err = c.SetValues("CCD Simulator", "CCD_EXPOSURE", map[string]string{"CCD_EXPOSURE_VALUE": "soon"})
	assert.ErrorIs(t, err, wire.ErrInvalidAttributeValue)
}

func TestRun(t *testing.T) {
	c, s := newTestClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan wire.Message, 4)
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, func(m wire.Message) { got <- m })
	}()

	s.send(switchDef)
	select {
	case m := <-got:
		assert.Equal(t, wire.TagDefSwitchVector, m.Tag())
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunPeerClose(t *testing.T) {
	c, s := newTestClient(t)

	s.conn.Close()
	err := c.Run(testContext(t), nil)
	assert.ErrorIs(t, err, transport.ErrConnectionClosed)
}

func TestDialLoopback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte(switchDef))
		time.Sleep(100 * time.Millisecond)
	}()

	c, err := Dial(testContext(t), ln.Addr().String(), DefaultConfig())
	require.NoError(t, err)
	defer c.Close()

	c.SetDevice("CCD Simulator")
	msgs, err := c.WaitMessages(testContext(t))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "CONNECTION", msgs[0].Name())
}
