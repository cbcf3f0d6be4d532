// keystore.go - Filesystem keystore for account signing keys.
//
// One JSON file per key, named by the public key. Parties run their own
// keystore directory; a key that was never registered surfaces as
// ErrMissingKey, which is how "this party cannot authorize for that
// account" is reported everywhere.

package keystore

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	bls12377_fr "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
)

// ErrMissingKey reports that no secret key is registered for a public key.
var ErrMissingKey = errors.New("keystore: no secret key for public key")

// KeyID is the stable identifier of a public key: the hex of its
// compressed encoding.
func KeyID(pk PublicKey) string {
	raw := pk.Bytes()
	return hex.EncodeToString(raw[:])
}

// FilesystemKeyStore stores Schnorr secret keys under a directory.
type FilesystemKeyStore struct {
	dir string
}

// NewFilesystemKeyStore opens (creating if needed) a keystore directory.
func NewFilesystemKeyStore(dir string) (*FilesystemKeyStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	return &FilesystemKeyStore{dir: dir}, nil
}

type keyFile struct {
	Scalar string `json:"scalar"`
	Public string `json:"public"`
}

func (ks *FilesystemKeyStore) path(id string) string {
	return filepath.Join(ks.dir, id+".json")
}

// AddKey registers a secret key.
func (ks *FilesystemKeyStore) AddKey(sk *SecretKey) error {
	pub := sk.Public()
	scalarBytes := sk.scalar.Bytes()
	f, err := os.OpenFile(ks.path(KeyID(pub)), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("keystore: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(keyFile{
		Scalar: hex.EncodeToString(scalarBytes[:]),
		Public: KeyID(pub),
	})
}

// GetKey loads the secret key for a public key, or ErrMissingKey.
func (ks *FilesystemKeyStore) GetKey(pk PublicKey) (*SecretKey, error) {
	f, err := os.Open(ks.path(KeyID(pk)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingKey, KeyID(pk)[:16])
		}
		return nil, fmt.Errorf("keystore: %w", err)
	}
	defer f.Close()
	var raw keyFile
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	scalarBytes, err := hex.DecodeString(raw.Scalar)
	if err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	var sk SecretKey
	var scalar bls12377_fr.Element
	scalar.SetBytes(scalarBytes)
	sk.scalar = scalar
	sk.pub = pk
	return &sk, nil
}

// HasKey reports whether a secret key is registered for pk.
func (ks *FilesystemKeyStore) HasKey(pk PublicKey) bool {
	_, err := os.Stat(ks.path(KeyID(pk)))
	return err == nil
}
