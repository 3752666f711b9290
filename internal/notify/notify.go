// Package notify tells the synthesis engine to rescan a sample folder and
// waits, bounded, for its confirmation.
package notify

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/scgolang/osc"
)

// OSC addresses of the reload handshake
const (
	AddrLoadSamples   = "/strudel/loadSamples"
	AddrSamplesLoaded = "/strudel/samplesLoaded"
)

// DefaultReplyAddr binds the confirmation listener to an ephemeral local port
const DefaultReplyAddr = "127.0.0.1:0"

const closeWait = time.Second

// Conn is the datagram socket the notifier sends from and listens on.
// *osc.UDPConn satisfies it.
type Conn interface {
	SendTo(addr net.Addr, p osc.Packet) error
	Serve(numWorkers int, dispatcher osc.Dispatcher) error
	LocalAddr() net.Addr
	Close() error
}

var _ Conn = (*osc.UDPConn)(nil)

// Config configures a Notifier
type Config struct {
	EngineAddr string // host:port of the engine; empty disables notifications
	ReplyAddr  string // local listen address for confirmations
	Logger     *slog.Logger
}

// Notifier sends reload requests and matches confirmations to waiters by path
type Notifier struct {
	engine    net.Addr
	conn      Conn
	replyPort int32
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string][]chan struct{}
	done    chan struct{}
}

// New opens the control channel described by cfg. With no EngineAddr the
// notifier is inert and NotifyReload reports false.
func New(cfg Config) (*Notifier, error) {
	if cfg.EngineAddr == "" {
		return newNotifier(nil, nil, cfg.Logger), nil
	}

	engine, err := net.ResolveUDPAddr("udp", cfg.EngineAddr)
	if err != nil {
		return nil, errors.Wrap(err, "resolving engine address")
	}
	replyAddr := cfg.ReplyAddr
	if replyAddr == "" {
		replyAddr = DefaultReplyAddr
	}
	laddr, err := net.ResolveUDPAddr("udp", replyAddr)
	if err != nil {
		return nil, errors.Wrap(err, "resolving reply address")
	}
	conn, err := osc.ListenUDP("udp", laddr)
	if err != nil {
		return nil, errors.Wrap(err, "listening for confirmations")
	}
	return NewWithConn(engine, conn, cfg.Logger), nil
}

// NewWithConn builds a notifier over an existing socket and starts serving
// confirmations on it
func NewWithConn(engine net.Addr, conn Conn, logger *slog.Logger) *Notifier {
	n := newNotifier(engine, conn, logger)
	if udp, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		n.replyPort = int32(udp.Port)
	}

	go func() {
		defer close(n.done)
		err := conn.Serve(1, osc.PatternMatching{
			AddrSamplesLoaded: osc.Method(n.handleLoaded),
		})
		if err != nil {
			n.logger.Debug("confirmation listener stopped", "error", err)
		}
	}()
	return n
}

func newNotifier(engine net.Addr, conn Conn, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	done := make(chan struct{})
	if conn == nil {
		close(done)
	}
	return &Notifier{
		engine:  engine,
		conn:    conn,
		logger:  logger,
		pending: make(map[string][]chan struct{}),
		done:    done,
	}
}

// Enabled reports whether a control channel is configured
func (n *Notifier) Enabled() bool {
	return n != nil && n.conn != nil && n.engine != nil
}

// NotifyReload asks the engine to reload path. A timeout <= 0 returns true
// as soon as the request is sent. Otherwise it reports whether a matching
// confirmation arrived before the timeout; a timeout means "probably
// reloaded, unconfirmed". Without a control channel it returns false.
func (n *Notifier) NotifyReload(ctx context.Context, path string, timeout time.Duration) bool {
	if !n.Enabled() {
		return false
	}

	if timeout <= 0 {
		if err := n.send(path, 0); err != nil {
			n.logger.Warn("reload request failed", "path", path, "error", err)
			return false
		}
		return true
	}

	ch := n.register(path)
	defer n.unregister(path, ch)

	if err := n.send(path, n.replyPort); err != nil {
		n.logger.Warn("reload request failed", "path", path, "error", err)
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		n.logger.Debug("reload not confirmed", "path", path, "timeout", timeout)
		return false
	case <-ctx.Done():
		return false
	}
}

// Pending returns how many confirmations are awaited
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, waiters := range n.pending {
		count += len(waiters)
	}
	return count
}

// Close stops the listener
func (n *Notifier) Close() error {
	if n == nil || n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	select {
	case <-n.done:
	case <-time.After(closeWait):
		n.logger.Debug("confirmation listener did not stop")
	}
	return err
}

func (n *Notifier) send(path string, replyPort int32) error {
	err := n.conn.SendTo(n.engine, osc.Message{
		Address: AddrLoadSamples,
		Arguments: osc.Arguments{
			osc.String(path),
			osc.Int(replyPort),
		},
	})
	return errors.Wrap(err, "sending "+AddrLoadSamples)
}

func (n *Notifier) register(path string) chan struct{} {
	ch := make(chan struct{})
	n.mu.Lock()
	n.pending[path] = append(n.pending[path], ch)
	n.mu.Unlock()
	return ch
}

// unregister drops ch if it is still waiting; resolved waiters are already gone
func (n *Notifier) unregister(path string, ch chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	waiters := n.pending[path]
	for i, w := range waiters {
		if w == ch {
			waiters = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(waiters) == 0 {
		delete(n.pending, path)
	} else {
		n.pending[path] = waiters
	}
}

// handleLoaded never returns an error: a failing handler would stop Serve
func (n *Notifier) handleLoaded(m osc.Message) error {
	path, err := confirmedPath(m)
	if err != nil {
		n.logger.Warn("malformed confirmation", "error", err)
		return nil
	}

	n.mu.Lock()
	waiters := n.pending[path]
	delete(n.pending, path)
	n.mu.Unlock()

	if len(waiters) == 0 {
		n.logger.Debug("confirmation without waiter", "path", path)
		return nil
	}
	for _, ch := range waiters {
		close(ch)
	}
	return nil
}

func confirmedPath(m osc.Message) (string, error) {
	if len(m.Arguments) < 1 {
		return "", errors.Errorf("expected a path argument, got %d arguments", len(m.Arguments))
	}
	path, err := m.Arguments[0].ReadString()
	if err != nil {
		return "", errors.Wrap(err, "reading path")
	}
	return path, nil
}
