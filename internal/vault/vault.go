package vault

import (
	"context"
	"errors"
)

var ErrCredentialNotFound = errors.New("credential not found")

// CredentialDef is a tenant credential as supplied to ignition; Value
// is plaintext and must never be stored or transmitted as-is.
type CredentialDef struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Credential is a stored credential. SealedValue is the encrypted
// payload; the plaintext never leaves the vault.
type Credential struct {
	ID          string
	WorkspaceID string
	Type        string
	Name        string
	SealedValue string
	CreatedBy   string
}

// Vault stores tenant secrets encrypted at rest.
type Vault interface {
	Store(ctx context.Context, workspaceID string, def CredentialDef, actor string) (string, error)
	Get(ctx context.Context, credentialID string) (Credential, error)
	Delete(ctx context.Context, credentialID string) error
}
