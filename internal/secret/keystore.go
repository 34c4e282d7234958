package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/heytcass/jasper/internal/jasperr"
)

// KeystoreBackend resolves secrets from a single AES-GCM encrypted JSON
// file on disk, existence-checked via os.Stat before the file is trusted.
type KeystoreBackend struct {
	path string
	key  []byte
}

func NewKeystoreBackend(path string, key []byte) *KeystoreBackend {
	return &KeystoreBackend{path: path, key: key}
}

type keystoreFile struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func (k *KeystoreBackend) Resolve(ref Ref) (string, error) {
	if _, err := os.Stat(k.path); err != nil {
		return "", jasperr.Wrap(jasperr.ConfigInvalid, "secret.KeystoreBackend.Resolve", fmt.Errorf("keystore file %s: %w", k.path, err))
	}

	values, err := k.decryptAll()
	if err != nil {
		return "", err
	}
	v, ok := values[ref.Key]
	if !ok {
		return "", jasperr.New(jasperr.ConfigInvalid, "secret.KeystoreBackend.Resolve", fmt.Sprintf("key %q not present in keystore", ref.Key))
	}
	return v, nil
}

func (k *KeystoreBackend) decryptAll() (map[string]string, error) {
	raw, err := os.ReadFile(k.path)
	if err != nil {
		return nil, jasperr.Wrap(jasperr.ConfigInvalid, "secret.KeystoreBackend.decryptAll", err)
	}

	var file keystoreFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, jasperr.Wrap(jasperr.ConfigInvalid, "secret.KeystoreBackend.decryptAll", err)
	}

	block, err := aes.NewCipher(k.key)
	if err != nil {
		return nil, jasperr.Wrap(jasperr.ConfigInvalid, "secret.KeystoreBackend.decryptAll", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, jasperr.Wrap(jasperr.ConfigInvalid, "secret.KeystoreBackend.decryptAll", err)
	}
	plaintext, err := gcm.Open(nil, file.Nonce, file.Ciphertext, nil)
	if err != nil {
		return nil, jasperr.Wrap(jasperr.ConfigInvalid, "secret.KeystoreBackend.decryptAll", fmt.Errorf("decrypt keystore: %w", err))
	}

	var values map[string]string
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, jasperr.Wrap(jasperr.ConfigInvalid, "secret.KeystoreBackend.decryptAll", err)
	}
	return values, nil
}

// Seal encrypts values with key and writes them to path, for tests and for
// the (external) CLI wrapper that provisions the keystore.
func Seal(path string, key []byte, values map[string]string) error {
	plaintext, err := json.Marshal(values)
	if err != nil {
		return err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	raw, err := json.Marshal(keystoreFile{Nonce: nonce, Ciphertext: ciphertext})
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}
