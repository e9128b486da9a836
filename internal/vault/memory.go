package vault

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
)

// Memory seals credential payloads with XChaCha20-Poly1305 under a
// process-wide key and keeps the sealed records in memory.
type Memory struct {
	aead cipher.AEAD

	mu    sync.Mutex
	creds map[string]Credential
}

// NewMemory requires a 32-byte key.
func NewMemory(key []byte) (*Memory, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init credential cipher: %w", err)
	}
	return &Memory{
		aead:  aead,
		creds: make(map[string]Credential),
	}, nil
}

func (m *Memory) Store(ctx context.Context, workspaceID string, def CredentialDef, actor string) (string, error) {
	sealed, err := m.seal([]byte(def.Value))
	if err != nil {
		return "", fmt.Errorf("seal credential %q: %w", def.Name, err)
	}

	cred := Credential{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Type:        def.Type,
		Name:        def.Name,
		SealedValue: sealed,
		CreatedBy:   actor,
	}

	m.mu.Lock()
	m.creds[cred.ID] = cred
	m.mu.Unlock()

	return cred.ID, nil
}

func (m *Memory) Get(ctx context.Context, credentialID string) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, ok := m.creds[credentialID]
	if !ok {
		return Credential{}, ErrCredentialNotFound
	}
	return cred, nil
}

func (m *Memory) Delete(ctx context.Context, credentialID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.creds[credentialID]; !ok {
		return ErrCredentialNotFound
	}
	delete(m.creds, credentialID)
	return nil
}

// Reveal decrypts a stored credential's payload.
func (m *Memory) Reveal(ctx context.Context, credentialID string) (string, error) {
	cred, err := m.Get(ctx, credentialID)
	if err != nil {
		return "", err
	}

	plaintext, err := m.open(cred.SealedValue)
	if err != nil {
		return "", fmt.Errorf("unseal credential %s: %w", credentialID, err)
	}
	return string(plaintext), nil
}

// Count returns the number of stored credentials.
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.creds)
}

func (m *Memory) seal(plaintext []byte) (string, error) {
	nonce := make([]byte, m.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := m.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (m *Memory) open(sealed string) ([]byte, error) {
	data, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("decode sealed value: %w", err)
	}
	if len(data) < m.aead.NonceSize() {
		return nil, fmt.Errorf("sealed value too short")
	}

	nonce, ciphertext := data[:m.aead.NonceSize()], data[m.aead.NonceSize():]
	return m.aead.Open(nil, nonce, ciphertext, nil)
}
