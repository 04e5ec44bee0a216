package keybroker

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/gogo/protobuf/proto"
	"golang.org/x/crypto/nacl/secretbox"
)

// InstanceSecret is the symmetric key every token this instance issues is
// encrypted under.
type InstanceSecret [32]byte

// Encryptor versions, serializes, and seals every proto message KeyBroker
// hands out, mirroring broker.rs's Encryptor: a leading version byte
// (never to be silently reused for a different wire shape), a random
// nonce, and a secretbox-sealed ciphertext, all base64-encoded for
// inclusion in a bearer string.
type Encryptor struct {
	secret InstanceSecret
}

// NewEncryptor builds an Encryptor from an instance secret.
func NewEncryptor(secret InstanceSecret) *Encryptor {
	return &Encryptor{secret: secret}
}

// EncodeProto marshals msg, prefixes it with version, and seals the
// result with a fresh random nonce.
func (e *Encryptor) EncodeProto(version byte, msg proto.Message) (string, error) {
	plain, err := proto.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("keybroker: marshaling proto: %w", err)
	}
	plain = append([]byte{version}, plain...)

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("keybroker: generating nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], plain, &nonce, (*[32]byte)(&e.secret))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// DecodeProto opens and unmarshals a token produced by EncodeProto,
// rejecting it outright if its version byte doesn't match the expected
// version — a version mismatch always means "wrong kind of token",
// never "old but compatible".
func (e *Encryptor) DecodeProto(version byte, token string, out proto.Message) error {
	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return fmt.Errorf("keybroker: decoding token: %w", err)
	}
	if len(sealed) < 24 {
		return fmt.Errorf("keybroker: token too short")
	}

	var nonce [24]byte
	copy(nonce[:], sealed[:24])

	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, (*[32]byte)(&e.secret))
	if !ok {
		return fmt.Errorf("keybroker: failed to decrypt token")
	}
	if len(plain) < 1 {
		return fmt.Errorf("keybroker: token missing version byte")
	}
	if plain[0] != version {
		return fmt.Errorf("keybroker: token version %d does not match expected %d", plain[0], version)
	}

	return proto.Unmarshal(plain[1:], out)
}
