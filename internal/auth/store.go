package auth

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"

	"golang.org/x/crypto/scrypt"
)

// Store file layout: a small JSON envelope with base64 fields so the file
// stays inspectable without exposing the plaintext.
type storeEnvelope struct {
	Salt  string `json:"salt"`
	Nonce string `json:"nonce"`
	Data  string `json:"data"`
}

const storeKeyLen = 32

// DefaultStorePath returns the on-disk location of the encrypted store.
func DefaultStorePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "pushgate", "credentials.enc")
	}
	return ".pushgate-credentials.enc"
}

// StoreSource decrypts a token from a local encrypted store. The
// passphrase comes from PUSHGATE_PASSPHRASE, falling back to one derived
// deterministically from machine and user identity. When the store is
// unlocked with the environment passphrase, the entry is re-encrypted
// under the derived passphrase so later runs work without it.
type StoreSource struct {
	Path   string
	logger *slog.Logger
}

// NewStoreSource creates the encrypted-store credential source.
func NewStoreSource(path string, logger *slog.Logger) *StoreSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSource{Path: path, logger: logger}
}

func (s *StoreSource) Name() Source { return SourceEncryptedStore }

func (s *StoreSource) Token(ctx context.Context) (string, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read credential store: %w", err)
	}

	envPassphrase := os.Getenv("PUSHGATE_PASSPHRASE")
	derived, deriveErr := derivedPassphrase()

	if envPassphrase != "" {
		token, err := decrypt(data, envPassphrase)
		if err == nil {
			if deriveErr == nil {
				if werr := SaveToken(s.Path, token, derived); werr != nil {
					s.logger.Warn("failed to refresh credential store", "error", werr)
				}
			}
			return token, nil
		}
	}

	if deriveErr != nil {
		return "", fmt.Errorf("no usable store passphrase: %w", deriveErr)
	}
	return decrypt(data, derived)
}

// SaveToken encrypts token under passphrase and writes the store file.
func SaveToken(path, token, passphrase string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	data, err := encrypt(token, passphrase)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credential store: %w", err)
	}
	return nil
}

// derivedPassphrase builds a deterministic last-resort passphrase from
// machine and user identity. It keeps the store unreadable off-host
// without requiring the operator to manage another secret.
func derivedPassphrase() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to read hostname: %w", err)
	}
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("failed to read current user: %w", err)
	}
	return fmt.Sprintf("pushgate:%s:%s:%s", hostname, u.Uid, u.Username), nil
}

func encrypt(plaintext, passphrase string) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	envelope := storeEnvelope{
		Salt:  base64.StdEncoding.EncodeToString(salt),
		Nonce: base64.StdEncoding.EncodeToString(nonce),
		Data:  base64.StdEncoding.EncodeToString(sealed),
	}
	out, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal store envelope: %w", err)
	}
	return append(out, '\n'), nil
}

func decrypt(data []byte, passphrase string) (string, error) {
	var envelope storeEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", fmt.Errorf("credential store is corrupt: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(envelope.Salt)
	if err != nil {
		return "", fmt.Errorf("credential store is corrupt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(envelope.Nonce)
	if err != nil {
		return "", fmt.Errorf("credential store is corrupt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(envelope.Data)
	if err != nil {
		return "", fmt.Errorf("credential store is corrupt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credential store: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, 1<<15, 8, 1, storeKeyLen)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AEAD: %w", err)
	}
	return gcm, nil
}
