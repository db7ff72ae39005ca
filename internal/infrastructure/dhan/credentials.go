package dhan

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	mathrand "math/rand"
	"strings"

	"exchange/internal/domain"
)

const credentialDelimiter = ":"

// CredentialFactory expands raw encrypted vendor secrets into the flat pool
// of usable connection identities. The vendor permits a fixed number of
// concurrent sockets per key, so each decrypted credential is duplicated
// once per allowed connection slot.
type CredentialFactory struct {
	creds []domain.Credential
}

// NewCredentialFactory decrypts every raw secret with the given key and
// builds the credential pool. A secret that does not decrypt to exactly one
// "clientId:apiKey" pair is a configuration error.
func NewCredentialFactory(rawCredentials []string, allowedConnections int, encryptionKey string) (*CredentialFactory, error) {
	if allowedConnections < 1 {
		allowedConnections = 1
	}

	creds := make([]domain.Credential, 0, len(rawCredentials)*allowedConnections)
	for _, raw := range rawCredentials {
		cred, err := decryptCredential(raw, encryptionKey)
		if err != nil {
			return nil, err
		}
		for i := 0; i < allowedConnections; i++ {
			creds = append(creds, cred)
		}
	}
	return &CredentialFactory{creds: creds}, nil
}

// Credentials returns a copy of the expanded credential list.
func (f *CredentialFactory) Credentials() []domain.Credential {
	out := make([]domain.Credential, len(f.creds))
	copy(out, f.creds)
	return out
}

// RandomCredential picks one credential uniformly at random, used for
// lazily created connections.
func (f *CredentialFactory) RandomCredential() (domain.Credential, error) {
	if len(f.creds) == 0 {
		return domain.Credential{}, fmt.Errorf("%w: no vendor credentials configured", domain.ErrConfiguration)
	}
	return f.creds[mathrand.Intn(len(f.creds))], nil
}

func decryptCredential(raw, encryptionKey string) (domain.Credential, error) {
	plain, err := decryptSecret(raw, encryptionKey)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("%w: decrypt credential: %v", domain.ErrConfiguration, err)
	}
	if strings.Count(plain, credentialDelimiter) != 1 {
		return domain.Credential{}, fmt.Errorf("%w: credential must contain exactly one %q delimiter", domain.ErrConfiguration, credentialDelimiter)
	}
	parts := strings.SplitN(plain, credentialDelimiter, 2)
	clientID := strings.TrimSpace(parts[0])
	apiKey := strings.TrimSpace(parts[1])
	if clientID == "" || apiKey == "" {
		return domain.Credential{}, fmt.Errorf("%w: credential has empty client id or api key", domain.ErrConfiguration)
	}
	return domain.Credential{ClientID: clientID, APIKey: apiKey}, nil
}

// Secrets are AES-256-GCM sealed with a key derived from the configured
// passphrase, then base64 encoded with the nonce prepended.

func decryptSecret(raw, encryptionKey string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}
	gcm, err := newGCM(encryptionKey)
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("open ciphertext: %w", err)
	}
	return string(plain), nil
}

// EncryptSecret seals a plaintext credential for storage in configuration.
// The inverse of the factory's decryption; used by provisioning tooling.
func EncryptSecret(plain, encryptionKey string) (string, error) {
	gcm, err := newGCM(encryptionKey)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func newGCM(encryptionKey string) (cipher.AEAD, error) {
	key := sha256.Sum256([]byte(encryptionKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, nil
}
