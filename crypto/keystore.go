package crypto

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

var errEmptyKeystorePath = errors.New("crypto: empty keystore path")

// ScryptParams selects the keystore KDF cost.
type ScryptParams struct {
	N int
	P int
}

var (
	// StandardScrypt is the cost used for keys written by SaveToKeystore.
	StandardScrypt = ScryptParams{N: keystore.StandardScryptN, P: keystore.StandardScryptP}
	// LightScrypt is cheap enough for tests and must not protect real keys.
	LightScrypt = ScryptParams{N: keystore.LightScryptN, P: keystore.LightScryptP}
)

// SaveToKeystore encrypts key into an Ethereum v3 keystore file at path using
// StandardScrypt. The parent directory is created with 0700 permissions and
// the file ends up 0600.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	return SaveToKeystoreWith(path, key, passphrase, StandardScrypt)
}

// SaveToKeystoreWith is SaveToKeystore with an explicit KDF cost.
func SaveToKeystoreWith(path string, key *PrivateKey, passphrase string, params ScryptParams) error {
	if params.N <= 0 || params.P <= 0 {
		return errors.New("crypto: invalid scrypt parameters")
	}
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errEmptyKeystorePath
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	// The go-ethereum keystore names files itself; stage in a scratch dir and
	// move the single output into place.
	scratch, err := os.MkdirTemp(dir, "keystore-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	ks := keystore.NewKeyStore(scratch, params.N, params.P)
	if _, err := ks.ImportECDSA(key.PrivateKey, passphrase); err != nil {
		return err
	}
	entries, err := os.ReadDir(scratch)
	if err != nil {
		return err
	}
	if len(entries) != 1 {
		return errors.New("crypto: keystore export produced no file")
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(filepath.Join(scratch, entries[0].Name()), path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// LoadFromKeystore decrypts the keystore file at path.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errEmptyKeystorePath
	}
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}
