package cryptoutil

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// rsaPublicExponent is the fixed public exponent used for every generated
// keypair, matching the conventional choice stdlib RSA also defaults to.
const rsaPublicExponent = 65537

// generateRawRSA produces an RSA-2048 modulus/exponent/private-exponent
// triple suitable for the size-preserving raw transform below.
func generateRawRSA() (n, e, d *big.Int, err error) {
	one := big.NewInt(1)
	e = big.NewInt(rsaPublicExponent)

	for {
		p, err := rand.Prime(rand.Reader, RSABits/2)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("cryptoutil: generate prime: %w", err)
		}
		q, err := rand.Prime(rand.Reader, RSABits/2)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("cryptoutil: generate prime: %w", err)
		}
		if p.Cmp(q) == 0 {
			continue
		}

		n = new(big.Int).Mul(p, q)
		if n.BitLen() != RSABits {
			continue
		}

		pMinus1 := new(big.Int).Sub(p, one)
		qMinus1 := new(big.Int).Sub(q, one)
		phi := new(big.Int).Mul(pMinus1, qMinus1)

		d = new(big.Int).ModInverse(e, phi)
		if d == nil {
			continue
		}
		return n, e, d, nil
	}
}

// transform applies raw (unpadded) modular exponentiation to a
// RSABytes-wide block: out = in^exp mod n, re-padded on the left with
// zeroes to stay exactly RSABytes wide.
//
// This is deliberately textbook RSA rather than OAEP/PKCS1v15 padded
// encryption: the handshake layers a signature and
// an encryption on the same fixed 2048-bit block without growing it, which
// only a size-preserving transform supports. Padded RSA is used nowhere
// else in this protocol, so the security properties padding would add
// (semantic security against chosen-plaintext, in particular) aren't
// relied upon beyond what the handshake's own nonce/signature layering
// already provides. See DESIGN.md for the full justification.
func transform(block []byte, n, exp *big.Int) ([]byte, error) {
	if len(block) != RSABytes {
		return nil, fmt.Errorf("cryptoutil: block must be %d bytes, got %d", RSABytes, len(block))
	}
	m := new(big.Int).SetBytes(block)
	if m.Cmp(n) >= 0 {
		return nil, fmt.Errorf("cryptoutil: block value exceeds modulus")
	}
	out := new(big.Int).Exp(m, exp, n)
	buf := make([]byte, RSABytes)
	out.FillBytes(buf)
	return buf, nil
}

// Encrypt applies the public transform: used both for ordinary RSA
// encryption and, in the handshake, to wrap an already-signed block under
// the recipient's encryption public key.
func Encrypt(pub PublicKey, block []byte) ([]byte, error) {
	return transform(block, pub.N, pub.E)
}

// Decrypt applies the private transform, inverting Encrypt.
func Decrypt(priv PrivateKey, block []byte) ([]byte, error) {
	return transform(block, priv.N, priv.D)
}

// Sign applies the private transform of a signature keypair. Because the
// transform is size-preserving and its own inverse under the matching
// public exponent, Sign and Decrypt share an implementation but are kept
// as distinct named operations so call sites read as intent, not
// mechanism.
func Sign(sig SignatureKeyPair, block []byte) ([]byte, error) {
	return transform(block, sig.Private.N, sig.Private.D)
}

// Open applies the public transform of a signature keypair, recovering the
// block Sign was given.
func Open(sig SignatureKeyPair, block []byte) ([]byte, error) {
	return transform(block, sig.Public.N, sig.Public.E)
}

// FitsModulus reports whether block, read as a big-endian integer, is
// strictly below pub's modulus — whether Encrypt can accept it. Layered
// sign-then-encrypt needs this check: a signature is uniform below the
// signing modulus and may exceed the recipient's.
func FitsModulus(block []byte, pub PublicKey) bool {
	return new(big.Int).SetBytes(block).Cmp(pub.N) < 0
}
