// pkg/snapshot/seal.go

package snapshot

import (
	"crypto/rand"
	"encoding/json"

	cerr "github.com/cockroachdb/errors"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// sealed is the on-disk envelope of an encrypted snapshot. The marker
// field distinguishes sealed files from plaintext ones, so stores created
// before encryption was enabled stay readable.
type sealed struct {
	Marker string `json:"metis_sealed"`
	Salt   []byte `json:"salt"`
	Nonce  []byte `json:"nonce"`
	Data   []byte `json:"data"`
}

const sealMarker = "v1"

// WithEncryption returns a store that seals snapshot payloads with a key
// derived from the passphrase. The passphrase comes from the secrets
// collaborator; key management is not this package's concern.
func (s *Store) WithEncryption(passphrase string) *Store {
	out := *s
	out.passphrase = []byte(passphrase)
	return &out
}

func (s *Store) seal(plaintext []byte) ([]byte, error) {
	if len(s.passphrase) == 0 {
		return plaintext, nil
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, cerr.Wrap(err, "failed to generate salt")
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, cerr.Wrap(err, "failed to generate nonce")
	}

	key, err := deriveKey(s.passphrase, salt)
	if err != nil {
		return nil, err
	}

	box := secretbox.Seal(nil, plaintext, &nonce, key)
	return json.Marshal(sealed{
		Marker: sealMarker,
		Salt:   salt,
		Nonce:  nonce[:],
		Data:   box,
	})
}

func (s *Store) open(data []byte) ([]byte, error) {
	var env sealed
	if err := json.Unmarshal(data, &env); err != nil || env.Marker == "" {
		// Plaintext snapshot from before encryption was enabled.
		return data, nil
	}
	if len(s.passphrase) == 0 {
		return nil, cerr.New("snapshot is sealed but no passphrase is configured")
	}

	key, err := deriveKey(s.passphrase, env.Salt)
	if err != nil {
		return nil, err
	}
	var nonce [24]byte
	copy(nonce[:], env.Nonce)

	plaintext, ok := secretbox.Open(nil, env.Data, &nonce, key)
	if !ok {
		return nil, cerr.New("failed to open sealed snapshot: wrong passphrase or corrupt data")
	}
	return plaintext, nil
}

func deriveKey(passphrase, salt []byte) (*[32]byte, error) {
	raw, err := scrypt.Key(passphrase, salt, 1<<15, 8, 1, 32)
	if err != nil {
		return nil, cerr.Wrap(err, "failed to derive snapshot key")
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}
