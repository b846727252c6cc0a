// Package secrets stores the access token used to authenticate against
// the SQL statement service. The system keyring is preferred; hosts
// without one fall back to an AES-GCM encrypted file keyed off machine
// identity.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/pbkdf2"

	"viewflow/internal/common"
	"viewflow/pkg/errors"
)

const (
	keyringService = "viewflow"

	// EnvToken short-circuits storage entirely: CI sets it, nothing
	// touches the keyring or disk.
	EnvToken = "VIEWFLOW_TOKEN"
	// EnvUseKeyring set to "false" forces the encrypted-file fallback.
	EnvUseKeyring = "VIEWFLOW_USE_KEYRING"

	saltSize         = 32
	keySize          = 32
	pbkdf2Iterations = 100_000
	tokenExt         = ".tok"
)

// Store persists named tokens, one per target host.
type Store struct {
	useKeyring bool
	dir        string
	masterKey  []byte
}

// NewStore builds a store rooted at ~/.viewflow/credentials.
func NewStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCredentialStore, "cannot locate home directory")
	}
	return NewStoreAt(filepath.Join(home, ".viewflow", "credentials"))
}

// NewStoreAt builds a store rooted at dir; the encrypted-file fallback
// keeps its master key there too.
func NewStoreAt(dir string) (*Store, error) {
	s := &Store{
		useKeyring: keyringAvailable(),
		dir:        dir,
	}
	if !s.useKeyring {
		key, err := s.loadOrCreateMasterKey()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCredentialStore, "failed to initialize master key")
		}
		s.masterKey = key
	}
	return s, nil
}

// Set stores a token under name.
func (s *Store) Set(name, token string) error {
	if s.useKeyring {
		if err := keyring.Set(keyringService, name, token); err != nil {
			return errors.Wrap(err, errors.ErrCodeCredentialStore, "failed to store token in keyring")
		}
		return nil
	}

	path, err := s.tokenPath(name)
	if err != nil {
		return err
	}
	encrypted, err := s.encrypt(token)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCredentialStore, "failed to encrypt token")
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return errors.Wrap(err, errors.ErrCodeCredentialStore, "failed to create credentials directory")
	}
	if err := os.WriteFile(path, []byte(encrypted), 0600); err != nil {
		return errors.Wrap(err, errors.ErrCodeCredentialStore, "failed to write token file")
	}
	return nil
}

// Get returns the token stored under name.
func (s *Store) Get(name string) (string, error) {
	if s.useKeyring {
		token, err := keyring.Get(keyringService, name)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeCredentialStore,
				fmt.Sprintf("no token stored for %q", name))
		}
		return token, nil
	}

	path, err := s.tokenPath(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeCredentialStore,
			fmt.Sprintf("no token stored for %q", name))
	}
	token, err := s.decrypt(string(data))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeCredentialStore, "failed to decrypt token")
	}
	return token, nil
}

// Delete removes the token stored under name. Missing tokens are not
// an error.
func (s *Store) Delete(name string) error {
	if s.useKeyring {
		err := keyring.Delete(keyringService, name)
		if err != nil && err != keyring.ErrNotFound {
			return errors.Wrap(err, errors.ErrCodeCredentialStore, "failed to delete token from keyring")
		}
		return nil
	}

	path, err := s.tokenPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.ErrCodeCredentialStore, "failed to delete token file")
	}
	return nil
}

// List names every stored token. Keyring backends cannot enumerate, so
// listing is only supported by the file fallback.
func (s *Store) List() ([]string, error) {
	if s.useKeyring {
		return nil, errors.New(errors.ErrCodeCredentialStore,
			"listing is not supported by the system keyring")
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeCredentialStore, "failed to read credentials directory")
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), tokenExt) {
			names = append(names, strings.TrimSuffix(entry.Name(), tokenExt))
		}
	}
	return names, nil
}

// ResolveToken finds the token for name: the VIEWFLOW_TOKEN environment
// variable wins, then stored tokens.
func ResolveToken(name string) (string, error) {
	if token := os.Getenv(EnvToken); token != "" {
		return token, nil
	}

	store, err := NewStore()
	if err != nil {
		return "", err
	}
	return store.Get(name)
}

// tokenPath maps a token name to its file, confined to the store
// directory. Names come from user input, so a traversal like ../../x
// must not escape.
func (s *Store) tokenPath(name string) (string, error) {
	path, err := common.ValidatePath(filepath.Join(s.dir, name+tokenExt), s.dir)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeCredentialStore,
			fmt.Sprintf("invalid token name %q", name))
	}
	return path, nil
}

func (s *Store) encrypt(plaintext string) (string, error) {
	gcm, err := s.cipher()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Store) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	gcm, err := s.cipher()
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (s *Store) cipher() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.masterKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (s *Store) loadOrCreateMasterKey() ([]byte, error) {
	keyPath := filepath.Join(s.dir, ".master")

	data, err := os.ReadFile(keyPath)
	if err == nil {
		if len(data) != saltSize+keySize {
			return nil, fmt.Errorf("invalid master key file size")
		}
		return data[saltSize:], nil
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := pbkdf2.Key([]byte(machineID()), salt, pbkdf2Iterations, keySize, sha256.New)

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyPath, append(salt, key...), 0600); err != nil {
		return nil, err
	}
	return key, nil
}

func keyringAvailable() bool {
	if os.Getenv(EnvUseKeyring) == "false" {
		return false
	}
	switch runtime.GOOS {
	case "darwin", "windows":
		return true
	case "linux":
		if os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != "" {
			return true
		}
	}
	return false
}

func machineID() string {
	hostname, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%s-%s-%s", hostname, user, runtime.GOOS, runtime.GOARCH)))
	return base64.StdEncoding.EncodeToString(sum[:])
}
