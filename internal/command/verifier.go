package command

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed         = errors.New("malformed command token")
	ErrAlgorithm         = errors.New("unexpected signing algorithm")
	ErrSignature         = errors.New("invalid token signature")
	ErrExpired           = errors.New("token expired")
	ErrIssuer            = errors.New("invalid issuer")
	ErrAudience          = errors.New("invalid audience")
	ErrWorkspaceMismatch = errors.New("Workspace mismatch")
	ErrDropletMismatch   = errors.New("Droplet mismatch")
	ErrReplay            = errors.New("replay attack detected")
)

// Verifier validates inbound command tokens on a sidecar agent. It is
// bound at construction to one workspace and one droplet; a token
// addressed anywhere else is rejected regardless of signature validity.
//
// Checks run in a fixed order and the first failure wins: parse,
// algorithm, signature, expiry, issuer, audience, workspace, droplet,
// replay. The JTI replay cache is per-process; entries are retained at
// least until the token's own expiry.
type Verifier struct {
	publicKey   *rsa.PublicKey
	issuer      string
	audience    string
	workspaceID string
	dropletID   string

	mu   sync.Mutex
	seen map[string]time.Time // jti -> token expiry
}

type VerifierOption func(*Verifier)

func WithExpectedIssuer(issuer string) VerifierOption {
	return func(v *Verifier) { v.issuer = issuer }
}

func NewVerifier(publicKey *rsa.PublicKey, workspaceID, dropletID string, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		publicKey:   publicKey,
		issuer:      DefaultIssuer,
		audience:    Audience,
		workspaceID: workspaceID,
		dropletID:   dropletID,
		seen:        make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify validates a command token and returns its claims. A token that
// passes all checks has its JTI recorded; presenting it again fails
// with ErrReplay.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	// Claims validation is done by hand below so the check order is
	// explicit; the library only handles parse + signature here.
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("%w: %s", ErrAlgorithm, t.Method.Alg())
		}
		return v.publicKey, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrAlgorithm):
			return nil, fmt.Errorf("%w: %s", ErrAlgorithm, algOf(tokenString))
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if !token.Valid {
		return nil, ErrSignature
	}

	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(time.Now()) {
		return nil, ErrExpired
	}
	if claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: got %q", ErrIssuer, claims.Issuer)
	}
	if !containsAudience(claims.Audience, v.audience) {
		return nil, fmt.Errorf("%w: got %v", ErrAudience, []string(claims.Audience))
	}
	if claims.Subject != v.workspaceID {
		return nil, fmt.Errorf("%w: token is for workspace %q", ErrWorkspaceMismatch, claims.Subject)
	}
	if claims.DropletID != v.dropletID {
		return nil, fmt.Errorf("%w: token is for droplet %q", ErrDropletMismatch, claims.DropletID)
	}

	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing token ID", ErrMalformed)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, replayed := v.seen[claims.ID]; replayed {
		return nil, fmt.Errorf("%w: token %s already used", ErrReplay, claims.ID)
	}
	v.seen[claims.ID] = claims.ExpiresAt.Time

	return claims, nil
}

// StartCleanup periodically evicts replay-cache entries whose tokens
// have expired. A JTI is never evicted before its token's exp, so an
// expired-then-replayed token still fails (on the expiry check).
func (v *Verifier) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.cleanup()
		}
	}
}

func (v *Verifier) cleanup() {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := time.Now()
	removed := 0
	for jti, exp := range v.seen {
		if now.After(exp) {
			delete(v.seen, jti)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("Evicted expired replay-cache entries", "removed", removed)
	}
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

// algOf extracts the alg header for error reporting, without trusting
// anything else about the token.
func algOf(tokenString string) string {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil || token == nil {
		return "unknown"
	}
	return token.Method.Alg()
}
