package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"fmt"

	"github.com/droidlink/droidlink/pkg/wire"
)

// Signer signs device auth tokens and exports the matching public key.
// The connection layer treats it as opaque: it never inspects key
// material, only forwards signatures and the exported key blob.
type Signer interface {
	// Sign signs the 20-byte token from an AUTH(TOKEN) message.
	Sign(token []byte) ([]byte, error)

	// PublicKey returns the key in the format the device expects inside
	// an AUTH(RSAPUBLICKEY) payload.
	PublicKey() ([]byte, error)
}

// rsaSigner signs tokens with RSA PKCS#1 v1.5.
//
// The device token is a random 20-byte value, not a hash computed by
// the host. adbd verifies it as if it were a SHA-1 digest, so the
// signature uses the SHA-1 DigestInfo encoding over the raw token.
type rsaSigner struct {
	key     *rsa.PrivateKey
	comment string
}

// NewSigner wraps an RSA private key as a Signer. The comment is
// appended to the exported public key (conventionally "user@host").
func NewSigner(key *rsa.PrivateKey, comment string) (Signer, error) {
	if key == nil {
		return nil, ErrNoKey
	}
	if key.Size() != ModulusSize {
		return nil, fmt.Errorf("%w: %d-bit modulus", ErrUnsupportedKeySize, key.N.BitLen())
	}
	if comment == "" {
		comment = "droidlink@localhost"
	}
	return &rsaSigner{key: key, comment: comment}, nil
}

func (s *rsaSigner) Sign(token []byte) ([]byte, error) {
	if len(token) != wire.AuthTokenSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadToken, len(token))
	}
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA1, token)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}
	return sig, nil
}

func (s *rsaSigner) PublicKey() ([]byte, error) {
	return EncodePublicKey(&s.key.PublicKey, s.comment)
}
