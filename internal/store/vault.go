package store

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"github.com/unkn0wn-root/restbridge/internal/errdef"
)

const vaultKeyEnv = "RESTBRIDGE_VAULT_KEY"

// Vault stores secret variable values encrypted at rest, keyed by
// "<environment-id>/<variable-name>". The cipher key is derived with scrypt
// from either the RESTBRIDGE_VAULT_KEY environment variable or, when unset,
// a generated key file next to the vault.
type Vault struct {
	path    string
	keyPath string

	mu     sync.Mutex
	loaded bool
	salt   []byte
	values map[string]string
}

type vaultFile struct {
	Salt   string            `json:"salt"`
	Values map[string]string `json:"values"`
}

func NewVault(dir string) *Vault {
	return &Vault{
		path:    filepath.Join(dir, "vault.json"),
		keyPath: filepath.Join(dir, "vault.key"),
	}
}

func (v *Vault) Get(key string) (string, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoadedLocked(); err != nil {
		return "", false, err
	}
	encoded, ok := v.values[key]
	if !ok {
		return "", false, nil
	}
	plain, err := v.decryptLocked(encoded)
	if err != nil {
		return "", false, err
	}
	return plain, true, nil
}

func (v *Vault) Set(key, value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoadedLocked(); err != nil {
		return err
	}
	encoded, err := v.encryptLocked(value)
	if err != nil {
		return err
	}
	v.values[key] = encoded
	return v.persistLocked()
}

func (v *Vault) Delete(key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoadedLocked(); err != nil {
		return err
	}
	if _, ok := v.values[key]; !ok {
		return nil
	}
	delete(v.values, key)
	return v.persistLocked()
}

// DeletePrefix drops every value under the prefix; used when an environment
// is deleted so no orphaned secrets stay behind.
func (v *Vault) DeletePrefix(prefix string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoadedLocked(); err != nil {
		return err
	}
	changed := false
	for key := range v.values {
		if strings.HasPrefix(key, prefix) {
			delete(v.values, key)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return v.persistLocked()
}

func (v *Vault) ensureLoadedLocked() error {
	if v.loaded {
		return nil
	}
	v.values = make(map[string]string)

	data, err := os.ReadFile(v.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		v.salt = make([]byte, 16)
		if _, err := rand.Read(v.salt); err != nil {
			return errdef.Wrap(errdef.CodeVault, err, "generate vault salt")
		}
	case err != nil:
		return errdef.Wrap(errdef.CodeVault, err, "read vault")
	default:
		var file vaultFile
		if err := json.Unmarshal(data, &file); err != nil {
			return errdef.Wrap(errdef.CodeVault, err, "parse vault")
		}
		salt, err := base64.StdEncoding.DecodeString(file.Salt)
		if err != nil {
			return errdef.Wrap(errdef.CodeVault, err, "decode vault salt")
		}
		v.salt = salt
		if file.Values != nil {
			v.values = file.Values
		}
	}

	v.loaded = true
	return nil
}

func (v *Vault) cipherKeyLocked() ([]byte, error) {
	passphrase := os.Getenv(vaultKeyEnv)
	if passphrase == "" {
		keyData, err := os.ReadFile(v.keyPath)
		if errors.Is(err, os.ErrNotExist) {
			keyData, err = v.generateKeyFile()
		}
		if err != nil {
			return nil, errdef.Wrap(errdef.CodeVault, err, "read vault key file")
		}
		passphrase = strings.TrimSpace(string(keyData))
	}
	key, err := scrypt.Key([]byte(passphrase), v.salt, 1<<15, 8, 1, chacha20poly1305.KeySize)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeVault, err, "derive vault key")
	}
	return key, nil
}

func (v *Vault) generateKeyFile() ([]byte, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	encoded := []byte(base64.StdEncoding.EncodeToString(raw))
	if err := os.MkdirAll(filepath.Dir(v.keyPath), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(v.keyPath, encoded, 0o600); err != nil {
		return nil, err
	}
	return encoded, nil
}

func (v *Vault) encryptLocked(plain string) (string, error) {
	key, err := v.cipherKeyLocked()
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", errdef.Wrap(errdef.CodeVault, err, "init cipher")
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", errdef.Wrap(errdef.CodeVault, err, "generate nonce")
	}
	sealed := aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (v *Vault) decryptLocked(encoded string) (string, error) {
	key, err := v.cipherKeyLocked()
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", errdef.Wrap(errdef.CodeVault, err, "init cipher")
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errdef.Wrap(errdef.CodeVault, err, "decode vault value")
	}
	if len(sealed) < aead.NonceSize() {
		return "", errdef.New(errdef.CodeVault, "vault value too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errdef.Wrap(errdef.CodeVault, err, "decrypt vault value")
	}
	return string(plain), nil
}

func (v *Vault) persistLocked() error {
	file := vaultFile{
		Salt:   base64.StdEncoding.EncodeToString(v.salt),
		Values: v.values,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return errdef.Wrap(errdef.CodeVault, err, "encode vault")
	}
	if err := os.MkdirAll(filepath.Dir(v.path), 0o700); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "create vault dir")
	}
	tmp := v.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "write vault tmp")
	}
	if err := os.Rename(tmp, v.path); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "replace vault file")
	}
	return nil
}
