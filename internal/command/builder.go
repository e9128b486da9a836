package command

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// Audience is the fixed identifier every sidecar agent accepts
	// tokens for.
	Audience = "ignition-agent"

	// DefaultIssuer identifies the control plane.
	DefaultIssuer = "ignition-control"

	// MaxTTL is the policy ceiling on a command token's validity
	// window. The verifier deliberately does not enforce this; it only
	// checks that exp is in the future. Keeping the policy on the
	// issuing side means a rotated or misconfigured issuer cannot be
	// "fixed" by fleet-wide agent updates.
	MaxTTL = 5 * time.Minute

	defaultTTL = 2 * time.Minute
)

// Claims are the registered claims plus the command binding: the action
// being authorized and the droplet it is addressed to.
type Claims struct {
	jwt.RegisteredClaims
	Action    Action `json:"act"`
	DropletID string `json:"droplet_id"`
}

// SignedCommand pairs a minted token with its plaintext envelope.
type SignedCommand struct {
	Token     string
	Envelope  Envelope
	JTI       string
	ExpiresAt time.Time
}

// Builder mints short-lived single-use command tokens. Each Build call
// generates a fresh JTI, so issuing the same logical command twice
// yields two independently replayable-once tokens.
type Builder struct {
	privateKey *rsa.PrivateKey
	issuer     string
	ttl        time.Duration
}

type BuilderOption func(*Builder)

func WithIssuer(issuer string) BuilderOption {
	return func(b *Builder) { b.issuer = issuer }
}

// WithTTL overrides the default validity window. NewBuilder rejects
// values above MaxTTL.
func WithTTL(ttl time.Duration) BuilderOption {
	return func(b *Builder) { b.ttl = ttl }
}

func NewBuilder(privateKey *rsa.PrivateKey, opts ...BuilderOption) (*Builder, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	b := &Builder{
		privateKey: privateKey,
		issuer:     DefaultIssuer,
		ttl:        defaultTTL,
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.ttl <= 0 {
		return nil, fmt.Errorf("token TTL must be positive")
	}
	if b.ttl > MaxTTL {
		return nil, fmt.Errorf("token TTL %s exceeds policy maximum %s", b.ttl, MaxTTL)
	}

	return b, nil
}

// Build signs a command addressed to one droplet in one workspace. The
// payload is marshalled into the plaintext envelope; it is not part of
// the token itself.
func (b *Builder) Build(workspaceID, dropletID string, action Action, payload any) (*SignedCommand, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("workspace ID is required")
	}
	if dropletID == "" {
		return nil, fmt.Errorf("droplet ID is required")
	}

	var rawPayload json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		rawPayload = data
	}

	now := time.Now()
	jti := uuid.NewString()
	expiresAt := now.Add(b.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    b.issuer,
			Subject:   workspaceID,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
		Action:    action,
		DropletID: dropletID,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(b.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign command token: %w", err)
	}

	return &SignedCommand{
		Token: token,
		Envelope: Envelope{
			Action:  action,
			Payload: rawPayload,
		},
		JTI:       jti,
		ExpiresAt: expiresAt,
	}, nil
}
