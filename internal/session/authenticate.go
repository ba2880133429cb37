package session

import (
	"strconv"

	"github.com/ocx/drawserver/internal/auth"
	"github.com/ocx/drawserver/internal/protocol"
	"github.com/ocx/drawserver/internal/wire"
)

// AuthMode selects which credential the client is presenting in
// handshake step 5.
type AuthMode uint8

const (
	AuthModeJWT AuthMode = iota
	AuthModeRepeatToken
)

// AuthOutcome reports what TryAuthenticate decided this tick.
type AuthOutcome int

const (
	// AuthPending means no message arrived yet; try again next tick.
	AuthPending AuthOutcome = iota
	// AuthSucceeded means the connection moved to PhaseAuthenticated.
	AuthSucceeded
	// AuthFailed means the connection was rejected and closed.
	AuthFailed
	// AuthConnectionDead means the socket itself died while waiting.
	AuthConnectionDead
)

// Authenticator resolves step 5 of the handshake: a JWT or a repeat
// token, arriving as one AES frame prefixed by an AuthMode byte.
type Authenticator struct {
	Validator *auth.JWTValidator
	Tokens    *auth.RepeatTokenTable
}

// TryAuthenticate polls c's socket once, without blocking; the dispatch
// loop calls it once per tick per waiting connection.
func (a Authenticator) TryAuthenticate(c *Connection) AuthOutcome {
	if c.authDec == nil {
		c.authDec = protocol.NewDecoder(true)
	}
	dec := c.authDec
	res, status := c.Conn.Receive(dec)

	switch res {
	case wire.NoData:
		return AuthPending
	case wire.ErrSocketDead:
		c.Phase = PhaseDisconnected
		return AuthConnectionDead
	}

	if status != protocol.Decoded {
		return AuthPending
	}
	c.authDec = nil

	em, err := dec.EncryptedMessage()
	if err != nil {
		a.reject(c)
		return AuthFailed
	}
	plaintext, err := em.Decrypt(c.SessionKey)
	if err != nil || len(plaintext) < 1 {
		a.reject(c)
		return AuthFailed
	}

	mode := AuthMode(plaintext[0])
	payload := plaintext[1:]

	switch mode {
	case AuthModeJWT:
		email, state := a.Validator.Validate(string(payload), strconv.FormatUint(uint64(c.AuthNonce), 10))
		if state != auth.Authenticated {
			a.reject(c)
			return AuthFailed
		}
		c.Email = email
	case AuthModeRepeatToken:
		if len(payload) != auth.RepeatTokenSize {
			a.reject(c)
			return AuthFailed
		}
		var tok auth.RepeatToken
		copy(tok[:], payload)
		email, ok := a.Tokens.Lookup(tok)
		if !ok {
			a.reject(c)
			return AuthFailed
		}
		// Repeat tokens are one-shot: consume on success so a replay
		// needs a freshly issued token.
		a.Tokens.Revoke(tok)
		c.Email = email
	default:
		a.reject(c)
		return AuthFailed
	}

	c.Phase = PhaseAuthenticated
	a.accept(c)
	return AuthSucceeded
}

func (a Authenticator) accept(c *Connection) {
	msg, err := protocol.NewMessage(protocol.TagConnectionResponse, []byte{byte(protocol.ConnectionAccepted)})
	if err != nil {
		return
	}
	c.Conn.Send(msg.Encode())
}

func (a Authenticator) reject(c *Connection) {
	c.Phase = PhaseDisconnected
	msg, err := protocol.NewMessage(protocol.TagConnectionResponse, []byte{byte(protocol.ConnectionRejected)})
	if err == nil {
		c.Conn.Send(msg.Encode())
	}
	c.Conn.Close()
}
