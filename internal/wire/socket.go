// Package wire wraps net.Conn/net.Listener with explicit state flags and
// typed results, so the dispatch loop above it can poll connections
// non-blockingly one tick at a time instead of dedicating a goroutine per
// socket. Deadline-driven non-blocking reads (SetReadDeadline) stand in
// for an O_NONBLOCK + EWOULDBLOCK/EAGAIN dance.
package wire

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/ocx/drawserver/internal/protocol"
)

// Result is the typed outcome of a socket operation. Every operation
// returns one of these instead of a bare error, so the dispatch loop can
// switch on outcome per tick.
type Result int

const (
	Success Result = iota
	ErrCreateSocket
	ErrBindSocket
	ErrConnect
	ErrListen
	ErrAccept
	ErrSocketDead
	ErrSendFailed
	ErrReceiveFailed
	NoData
	// Disconnected reports that the peer sent a graceful Disconnect frame.
	// The caller should read the decoder's disconnect code before tearing
	// the connection down.
	Disconnected
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case ErrCreateSocket:
		return "create socket failed"
	case ErrBindSocket:
		return "bind failed"
	case ErrConnect:
		return "connect failed"
	case ErrListen:
		return "listen failed"
	case ErrAccept:
		return "accept failed"
	case ErrSocketDead:
		return "socket dead"
	case ErrSendFailed:
		return "send failed"
	case ErrReceiveFailed:
		return "receive failed"
	case NoData:
		return "no data"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown result"
	}
}

// DefaultConnectionTimeout is how long a connection may sit waiting on a
// heartbeat reply before it is declared dead, matching TCPSocket's
// default 5-second connectionTimeout.
const DefaultConnectionTimeout = 5 * time.Second

// ListenSocket accepts inbound connections non-blockingly.
type ListenSocket struct {
	mu        sync.Mutex
	ln        *net.TCPListener
	bound     bool
	listening bool
}

// NewListenSocket returns an unbound listen socket.
func NewListenSocket() *ListenSocket {
	return &ListenSocket{}
}

// Bind resolves the address the socket will listen on. ip empty means any
// interface.
func (s *ListenSocket) Bind(port uint16, ip string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := net.JoinHostPort(ip, strconv.Itoa(int(port)))
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return ErrBindSocket
	}

	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return ErrBindSocket
	}
	s.ln = ln
	s.bound = true
	return Success
}

// Listen marks the socket as ready to accept. ListenTCP already put the
// socket into the listening backlog during Bind; this records the state
// flag the dispatch loop checks.
func (s *ListenSocket) Listen() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.bound {
		return ErrListen
	}
	s.listening = true
	return Success
}

// TryAccept polls for one pending connection without blocking, returning
// NoData if none is waiting. A near-zero accept deadline stands in for an
// EWOULDBLOCK/EAGAIN check.
func (s *ListenSocket) TryAccept() (*Conn, Result) {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return nil, ErrAccept
	}

	if err := ln.SetDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return nil, ErrAccept
	}
	conn, err := ln.Accept()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, NoData
		}
		return nil, ErrAccept
	}

	return newConn(conn), Success
}

// Addr returns the address the socket is bound to, once Bind has
// succeeded.
func (s *ListenSocket) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Close shuts the listen socket down.
func (s *ListenSocket) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		s.ln.Close()
		s.ln = nil
	}
	s.bound = false
	s.listening = false
}

func (s *ListenSocket) Bound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

func (s *ListenSocket) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// Conn is one accepted or dialed connection.
type Conn struct {
	mu sync.Mutex

	raw net.Conn

	connected bool
	dead      bool
	waiting   bool

	lastHeard         time.Time
	connectionTimeout time.Duration
}

func newConn(raw net.Conn) *Conn {
	return &Conn{
		raw:               raw,
		connected:         true,
		connectionTimeout: DefaultConnectionTimeout,
	}
}

// Dial connects out to a server, used by test harnesses and any future
// peer-to-peer client role.
func Dial(addr string) (*Conn, Result) {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, ErrConnect
	}
	return newConn(c), Success
}

// SetConnectionTimeout overrides the heartbeat-wait deadline.
func (c *Conn) SetConnectionTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectionTimeout = d
}

// Connected reports whether the connection is still considered live.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && !c.dead
}

// Dead reports whether the connection has been declared dead, either by
// a failed send or an overdue heartbeat reply.
func (c *Conn) Dead() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dead
}

// Waiting reports whether a heartbeat has been sent and no reply has
// arrived yet.
func (c *Conn) Waiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting
}

// Send writes an already-encoded frame (see protocol.Message.Encode /
// protocol.EncryptedMessage.Encode) to the connection. A broken pipe
// transitions the socket to dead; every later Send short-circuits with
// ErrSocketDead.
func (c *Conn) Send(stream []byte) Result {
	c.mu.Lock()
	if c.dead {
		c.mu.Unlock()
		return ErrSocketDead
	}
	raw := c.raw
	c.mu.Unlock()

	_, err := raw.Write(stream)
	if err != nil {
		if isBrokenPipe(err) {
			c.mu.Lock()
			c.dead = true
			c.mu.Unlock()
			return ErrSocketDead
		}
		return ErrSendFailed
	}
	return Success
}

func isBrokenPipe(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.EPIPE)
}

// Receive reads at most one ChunkSize chunk without blocking and feeds it
// into dec, returning NoData if nothing was waiting. It also runs the
// waiting-for-heartbeat liveness check: no inbound traffic within the
// connection timeout while waiting kills the socket.
func (c *Conn) Receive(dec *protocol.Decoder) (Result, protocol.DecodeStatus) {
	c.mu.Lock()
	if c.waiting {
		if time.Since(c.lastHeard) > c.connectionTimeout {
			c.dead = true
			c.mu.Unlock()
			return ErrSocketDead, protocol.DecodeError
		}
	}
	raw := c.raw
	c.mu.Unlock()

	if err := raw.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return ErrReceiveFailed, protocol.DecodeError
	}

	buf := make([]byte, protocol.ChunkSize)
	n, err := raw.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return NoData, protocol.DecodeError
		}
		return ErrReceiveFailed, protocol.DecodeError
	}
	if n == 0 {
		return NoData, protocol.DecodeError
	}

	status, decErr := dec.Feed(buf[:n])

	// Any inbound traffic is proof of life, clearing a pending heartbeat
	// wait regardless of what it turns out to be.
	c.mu.Lock()
	c.waiting = false
	c.mu.Unlock()

	if decErr != nil {
		dec.Reset()
		return ErrReceiveFailed, protocol.DecodeError
	}

	if status == protocol.Decoded && dec.Tag() == protocol.TagDisconnect {
		return Disconnected, status
	}

	return Success, status
}

// WaitFor blocks (cooperatively polling) until a full frame has been
// decoded or the socket dies.
func (c *Conn) WaitFor(dec *protocol.Decoder) (Result, protocol.DecodeStatus) {
	for {
		res, status := c.Receive(dec)
		if res == NoData || (res == Success && status == protocol.Decoding) {
			continue
		}
		return res, status
	}
}

// Heartbeat sends a heartbeat frame and marks the connection as waiting
// for the client's reply.
func (c *Conn) Heartbeat() Result {
	msg, err := protocol.NewMessage(protocol.TagHeartbeat, []byte{0})
	if err != nil {
		return ErrSendFailed
	}
	res := c.Send(msg.Encode())
	if res != Success {
		return res
	}
	c.mu.Lock()
	c.waiting = true
	c.lastHeard = time.Now()
	c.mu.Unlock()
	return Success
}

// Close shuts the connection down.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.raw != nil {
		c.raw.Close()
	}
	c.connected = false
}
