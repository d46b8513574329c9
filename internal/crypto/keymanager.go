// Package crypto stores the exchange API private key encrypted at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	currentVersion   = 1
)

// ErrWrongPassword is returned when the key file does not authenticate.
var ErrWrongPassword = errors.New("crypto: decryption failed (wrong password?)")

// encryptedKeyFile is the on-disk format. All byte fields are base64.
type encryptedKeyFile struct {
	Version    int    `json:"version"`
	KeyID      string `json:"key_id,omitempty"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeySource says where to find the PEM private key. PEMPath wins over
// EncryptedPath.
type KeySource struct {
	PEMPath       string
	EncryptedPath string
	Password      string
}

// Configured reports whether any key source is set.
func (s KeySource) Configured() bool {
	return s.PEMPath != "" || s.EncryptedPath != ""
}

// EncryptKey seals a PEM private key with password using PBKDF2-HMAC-SHA256
// and AES-256-GCM. keyID is stored in clear so the file is self-describing.
func EncryptKey(pemBytes []byte, keyID, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	if block, _ := pem.Decode(pemBytes); block == nil {
		return nil, errors.New("crypto: input is not PEM encoded")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	out := encryptedKeyFile{
		Version:    currentVersion,
		KeyID:      keyID,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, pemBytes, []byte(keyID))),
	}
	return json.MarshalIndent(out, "", "  ")
}

// DecryptKey opens a file produced by EncryptKey and returns the PEM bytes
// and the stored key id.
func DecryptKey(data []byte, password string) (pemBytes []byte, keyID string, err error) {
	if password == "" {
		return nil, "", errors.New("crypto: password must not be empty")
	}
	var stored encryptedKeyFile
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, "", fmt.Errorf("crypto: parsing encrypted key file: %w", err)
	}
	if stored.Version != currentVersion {
		return nil, "", fmt.Errorf("crypto: unsupported version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return nil, "", fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return nil, "", fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return nil, "", fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, "", fmt.Errorf("crypto: nonce has %d bytes, want %d", len(nonce), gcm.NonceSize())
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, []byte(stored.KeyID))
	if err != nil {
		return nil, "", ErrWrongPassword
	}
	return plain, stored.KeyID, nil
}

// LoadKey returns the PEM bytes named by src.
func LoadKey(src KeySource) ([]byte, error) {
	if src.PEMPath != "" {
		data, err := os.ReadFile(src.PEMPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: reading private key: %w", err)
		}
		return data, nil
	}
	if src.EncryptedPath != "" {
		data, err := os.ReadFile(src.EncryptedPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: reading encrypted key file: %w", err)
		}
		pemBytes, _, err := DecryptKey(data, src.Password)
		return pemBytes, err
	}
	return nil, errors.New("crypto: no private key source configured")
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}
