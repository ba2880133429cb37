package session

import (
	"time"

	"github.com/ocx/drawserver/internal/cryptoutil"
	"github.com/ocx/drawserver/internal/protocol"
	"github.com/ocx/drawserver/internal/wire"
)

// Phase tracks where a connection is in the five-step handshake; a
// Connection moves between the Manager's waiting and connected tables by
// phase.
type Phase int

const (
	PhaseHandshaking Phase = iota
	PhaseAwaitingAuth
	PhaseAuthenticated
	PhaseDisconnected
)

// Connection is the Go analogue of ClientData: one accepted socket plus
// everything the handshake negotiated for it.
type Connection struct {
	Handle Handle
	Conn   *wire.Conn
	Phase  Phase

	ClientPublicKey cryptoutil.PublicKey
	SessionKey      cryptoutil.AesKey
	SessionToken    uint64
	AuthNonce       uint32

	Email string

	AcceptedAt time.Time

	// authDec reassembles the step-5 frame across ticks: a JWT payload
	// spans several chunks, each delivered by a separate TryAuthenticate
	// poll.
	authDec *protocol.Decoder
}
