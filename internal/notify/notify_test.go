package notify

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/scgolang/osc"
)

// fakeConn records outgoing messages and lets tests deliver confirmations
type fakeConn struct {
	mu         sync.Mutex
	sent       []osc.Message
	dispatcher osc.Dispatcher
	served     chan struct{}
	closed     chan struct{}
	onSend     func(osc.Message)
}

func newFakeConn() *fakeConn {
	return &fakeConn{served: make(chan struct{}), closed: make(chan struct{})}
}

func (c *fakeConn) SendTo(_ net.Addr, p osc.Packet) error {
	m := p.(osc.Message)
	c.mu.Lock()
	c.sent = append(c.sent, m)
	hook := c.onSend
	c.mu.Unlock()
	if hook != nil {
		hook(m)
	}
	return nil
}

func (c *fakeConn) Serve(_ int, d osc.Dispatcher) error {
	c.mu.Lock()
	c.dispatcher = d
	c.mu.Unlock()
	close(c.served)
	<-c.closed
	return nil
}

func (c *fakeConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 57999}
}

func (c *fakeConn) Close() error {
	close(c.closed)
	return nil
}

func (c *fakeConn) confirm(t *testing.T, path string) {
	t.Helper()
	<-c.served
	c.mu.Lock()
	dispatcher := c.dispatcher
	c.mu.Unlock()
	d, ok := dispatcher.(osc.PatternMatching)
	if !ok {
		t.Errorf("dispatcher is %T, want osc.PatternMatching", dispatcher)
		return
	}
	err := d[AddrSamplesLoaded].Handle(osc.Message{
		Address:   AddrSamplesLoaded,
		Arguments: osc.Arguments{osc.String(path)},
	})
	if err != nil {
		t.Errorf("Handle() error = %v", err)
	}
}

func TestListenerRoutesConfirmations(t *testing.T) {
	_, conn := newTestNotifier(t)
	<-conn.served

	conn.mu.Lock()
	dispatcher := conn.dispatcher
	conn.mu.Unlock()

	d, ok := dispatcher.(osc.PatternMatching)
	if !ok {
		t.Fatalf("dispatcher is %T, want osc.PatternMatching", dispatcher)
	}
	if _, ok := d[AddrSamplesLoaded]; !ok {
		t.Errorf("no handler for %s", AddrSamplesLoaded)
	}
}

func (c *fakeConn) messages() []osc.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]osc.Message(nil), c.sent...)
}

var engineAddr = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 57120}

func newTestNotifier(t *testing.T) (*Notifier, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	n := NewWithConn(engineAddr, conn, nil)
	t.Cleanup(func() { n.Close() })
	return n, conn
}

func readRequest(t *testing.T, m osc.Message) (string, int32) {
	t.Helper()
	if m.Address != AddrLoadSamples || len(m.Arguments) != 2 {
		t.Fatalf("unexpected message %+v", m)
	}
	path, err := m.Arguments[0].ReadString()
	if err != nil {
		t.Fatal(err)
	}
	port, err := m.Arguments[1].ReadInt32()
	if err != nil {
		t.Fatal(err)
	}
	return path, port
}

func TestNotifyWithoutChannel(t *testing.T) {
	n, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer n.Close()

	start := time.Now()
	if n.NotifyReload(context.Background(), "/samples/bd", time.Second) {
		t.Error("NotifyReload() = true without a control channel")
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("NotifyReload() should return immediately without a channel")
	}
}

func TestNotifyFireAndForget(t *testing.T) {
	n, conn := newTestNotifier(t)

	if !n.NotifyReload(context.Background(), "/samples/bd", 0) {
		t.Fatal("NotifyReload() = false")
	}

	sent := conn.messages()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	path, port := readRequest(t, sent[0])
	if path != "/samples/bd" || port != 0 {
		t.Errorf("request = (%q, %d), want (/samples/bd, 0)", path, port)
	}
	if n.Pending() != 0 {
		t.Error("fire-and-forget left a pending confirmation")
	}
}

func TestNotifyTimesOut(t *testing.T) {
	n, _ := newTestNotifier(t)

	start := time.Now()
	if n.NotifyReload(context.Background(), "/samples/piano", 100*time.Millisecond) {
		t.Error("NotifyReload() = true without a reply")
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond || elapsed > time.Second {
		t.Errorf("timeout after %v, want ~100ms", elapsed)
	}
	if n.Pending() != 0 {
		t.Error("timed out confirmation still pending")
	}
}

func TestNotifyConfirmed(t *testing.T) {
	n, conn := newTestNotifier(t)
	conn.onSend = func(m osc.Message) {
		path, _ := readRequest(t, m)
		go conn.confirm(t, path)
	}

	if !n.NotifyReload(context.Background(), "/samples/gm_piano", 2*time.Second) {
		t.Fatal("NotifyReload() = false despite confirmation")
	}

	_, port := readRequest(t, conn.messages()[0])
	if port != 57999 {
		t.Errorf("reply port = %d, want listener port 57999", port)
	}
}

func TestConfirmationMatchesExactPath(t *testing.T) {
	n, conn := newTestNotifier(t)
	conn.onSend = func(osc.Message) {
		go conn.confirm(t, "/samples/other")
	}

	if n.NotifyReload(context.Background(), "/samples/bd", 100*time.Millisecond) {
		t.Error("confirmation for another path resolved the wait")
	}
}

func TestLateConfirmationIsNoop(t *testing.T) {
	n, conn := newTestNotifier(t)

	if n.NotifyReload(context.Background(), "/samples/hh", 20*time.Millisecond) {
		t.Fatal("unexpected confirmation")
	}
	conn.confirm(t, "/samples/hh")
	if n.Pending() != 0 {
		t.Error("late confirmation changed pending state")
	}
}

func TestNotifyOverUDP(t *testing.T) {
	engine, err := osc.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Skipf("udp unavailable: %v", err)
	}
	defer engine.Close()

	go engine.Serve(1, osc.PatternMatching{
		AddrLoadSamples: osc.Method(func(m osc.Message) error {
			path, err := m.Arguments[0].ReadString()
			if err != nil {
				return nil
			}
			port, err := m.Arguments[1].ReadInt32()
			if err != nil || port == 0 {
				return nil
			}
			reply := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: int(port)}
			return engine.SendTo(reply, osc.Message{
				Address:   AddrSamplesLoaded,
				Arguments: osc.Arguments{osc.String(path)},
			})
		}),
	})

	n, err := New(Config{EngineAddr: engine.LocalAddr().String()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer n.Close()

	if !n.NotifyReload(context.Background(), "/tmp/samples/bd", 2*time.Second) {
		t.Error("NotifyReload() over UDP not confirmed")
	}
}
