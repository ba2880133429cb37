package session

import (
	"context"
	"sync"

	"github.com/ocx/drawserver/internal/auth"
	"github.com/ocx/drawserver/internal/cryptoutil"
	"github.com/ocx/drawserver/internal/logging"
	"github.com/ocx/drawserver/internal/wire"
)

// Manager owns every live Connection in a handle-keyed table split by
// phase (waiting for step 5 versus fully connected).
type Manager struct {
	mu            sync.Mutex
	waiting       map[Handle]*Connection
	connected     map[Handle]*Connection
	handshake     Handshake
	authenticator Authenticator
	log           *logging.Logger
}

// NewManager builds a Manager around the server's two keypairs and the
// credential sources step 5 checks against.
func NewManager(serverKey cryptoutil.KeyPair, serverSig cryptoutil.SignatureKeyPair, validator *auth.JWTValidator, tokens *auth.RepeatTokenTable, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.Default()
	}
	return &Manager{
		waiting:   make(map[Handle]*Connection),
		connected: make(map[Handle]*Connection),
		handshake: Handshake{ServerKey: serverKey, ServerSignature: serverSig},
		authenticator: Authenticator{
			Validator: validator,
			Tokens:    tokens,
		},
		log: log,
	}
}

// Accept runs the handshake against a freshly accepted socket on a
// separate goroutine and waits for it at most HandshakeTimeout, closing
// the socket on timeout; on success it registers the resulting
// Connection as waiting for step 5. Accept blocks until then, so call it
// in its own goroutine per TryAccept result.
func (m *Manager) Accept(conn *wire.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), HandshakeTimeout)
	defer cancel()

	result := make(chan *Connection, 1)
	go func() {
		c, err := m.handshake.Run(conn)
		if err != nil {
			result <- nil
			return
		}
		result <- c
	}()

	select {
	case c := <-result:
		if c == nil {
			return
		}
		m.registerWaiting(c)
	case <-ctx.Done():
		conn.Close()
	}
}

func (m *Manager) registerWaiting(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Handle = AllocateHandle(m.allHandlesLocked())
	m.waiting[c.Handle] = c
}

func (m *Manager) allHandlesLocked() []Handle {
	handles := make([]Handle, 0, len(m.waiting)+len(m.connected))
	for h := range m.waiting {
		handles = append(handles, h)
	}
	for h := range m.connected {
		handles = append(handles, h)
	}
	return handles
}

// Tick drives one iteration of the handshake-completion loop: every
// waiting connection gets one non-blocking attempt at step 5.
func (m *Manager) Tick() {
	m.mu.Lock()
	waiting := make([]*Connection, 0, len(m.waiting))
	for _, c := range m.waiting {
		waiting = append(waiting, c)
	}
	m.mu.Unlock()

	for _, c := range waiting {
		outcome := m.authenticator.TryAuthenticate(c)
		switch outcome {
		case AuthSucceeded:
			m.mu.Lock()
			delete(m.waiting, c.Handle)
			m.connected[c.Handle] = c
			m.mu.Unlock()
			m.log.Log("client %s successfully authenticated themselves", c.Email)
		case AuthFailed:
			m.mu.Lock()
			delete(m.waiting, c.Handle)
			m.mu.Unlock()
			m.log.Log("client failed to authenticate themselves, handle %d", c.Handle)
		case AuthConnectionDead:
			m.mu.Lock()
			delete(m.waiting, c.Handle)
			m.mu.Unlock()
		case AuthPending:
			// nothing to do this tick
		}
	}
}

// WaitingCount reports how many connections are parked between handshake
// step 4 and step 5.
func (m *Manager) WaitingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiting)
}

// Connected returns a snapshot of every authenticated connection.
func (m *Manager) Connected() []*Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Connection, 0, len(m.connected))
	for _, c := range m.connected {
		out = append(out, c)
	}
	return out
}

// Get returns the connection for handle, whether waiting or connected.
func (m *Manager) Get(h Handle) (*Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.connected[h]; ok {
		return c, true
	}
	c, ok := m.waiting[h]
	return c, ok
}

// Disconnect closes and forgets a connected client (timeout, explicit
// disconnect message, or protocol error).
func (m *Manager) Disconnect(h Handle) {
	m.mu.Lock()
	c, ok := m.connected[h]
	if ok {
		delete(m.connected, h)
	}
	m.mu.Unlock()
	if ok {
		c.Conn.Close()
	}
}

// Heartbeat sends a heartbeat frame to every connected client.
func (m *Manager) Heartbeat() {
	for _, c := range m.Connected() {
		c.Conn.Heartbeat()
	}
}

// PruneDead closes and removes any connected client whose socket has been
// marked dead (heartbeat timeout), returning their handles for the
// caller to log.
func (m *Manager) PruneDead() []Handle {
	m.mu.Lock()
	var dead []Handle
	var conns []*Connection
	for h, c := range m.connected {
		if c.Conn.Dead() {
			dead = append(dead, h)
			conns = append(conns, c)
			delete(m.connected, h)
		}
	}
	m.mu.Unlock()
	for _, c := range conns {
		c.Conn.Close()
	}
	return dead
}
