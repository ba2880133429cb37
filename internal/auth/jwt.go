package auth

import (
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
)

// applicationIDClaim is the audience every JWT this server accepts must
// carry: the drawing client's registered application id.
const applicationIDClaim = "e89163c2-86fd-4675-ad9e-0d0e7632b9a8"

// AuthState is the outcome of validating a step-5 credential, letting
// the dispatch loop choose its log line and wire response per case.
type AuthState int

const (
	Authenticated AuthState = iota
	ReceivedErroneousToken
	NoMatchingKey
	InvalidToken
	InvalidSignature
)

// accountClaims is the subset of a Microsoft-issued ID token this server
// inspects.
type accountClaims struct {
	josejwt.Claims
	Email string `json:"email"`
	Nonce string `json:"nonce"`
}

// JWTValidator checks a signed JWT against a JSON Web Key Set and the
// handshake nonce the client was issued in step 4.
type JWTValidator struct {
	keys JWKSource
}

// JWKSource resolves the signing key for a token by key ID, backed in
// production by a cached fetch against the identity provider's JWKS
// endpoint; tests supply a static map.
type JWKSource interface {
	Key(keyID string) (any, bool)
}

// NewJWTValidator wraps a key source.
func NewJWTValidator(keys JWKSource) *JWTValidator {
	return &JWTValidator{keys: keys}
}

// Validate parses token, verifies its signature against the matching JWKS
// entry, and checks audience and nonce, returning the account email on
// success.
func (v *JWTValidator) Validate(token string, expectedNonce string) (string, AuthState) {
	parsed, err := josejwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return "", ReceivedErroneousToken
	}

	if len(parsed.Headers) == 0 {
		return "", InvalidToken
	}
	key, ok := v.keys.Key(parsed.Headers[0].KeyID)
	if !ok {
		return "", NoMatchingKey
	}

	var claims accountClaims
	if err := parsed.Claims(key, &claims); err != nil {
		return "", InvalidSignature
	}

	if err := claims.Validate(josejwt.Expected{
		AnyAudience: josejwt.Audience{applicationIDClaim},
		Time:        time.Now(),
	}); err != nil {
		return "", InvalidToken
	}

	if claims.Nonce != expectedNonce {
		return "", InvalidToken
	}
	if claims.Email == "" {
		return "", InvalidToken
	}

	return claims.Email, Authenticated
}

func (s AuthState) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case ReceivedErroneousToken:
		return "erroneous token"
	case NoMatchingKey:
		return "no matching key"
	case InvalidToken:
		return "invalid token"
	case InvalidSignature:
		return "invalid signature"
	default:
		return fmt.Sprintf("AuthState(%d)", int(s))
	}
}
