package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("invalid token")

// VerifierConfig holds configuration for JWT verification.
type VerifierConfig struct {
	// Algorithm is "HS256" or "RS256".
	Algorithm string

	// SecretKey is the HS256 shared secret.
	SecretKey string

	// PublicKeyPEM is the RS256 public key in PKIX PEM form.
	PublicKeyPEM string
}

// tokenClaims is the JWT payload.
type tokenClaims struct {
	Roles  []string `json:"roles"`
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// Verifier checks token signatures and claims.
type Verifier struct {
	alg    string
	key    interface{}
	parser *jwt.Parser
}

// NewVerifier creates a verifier for the configured algorithm.
func NewVerifier(config VerifierConfig) (*Verifier, error) {
	v := &Verifier{alg: config.Algorithm}

	switch config.Algorithm {
	case "HS256":
		if config.SecretKey == "" {
			return nil, errors.New("HS256 requires secret key")
		}
		v.key = []byte(config.SecretKey)
	case "RS256":
		key, err := parsePublicKey(config.PublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to load public key from PEM: %w", err)
		}
		v.key = key
	default:
		return nil, fmt.Errorf("unsupported algorithm: %q", config.Algorithm)
	}

	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{config.Algorithm}),
		jwt.WithExpirationRequired(),
	)
	return v, nil
}

// VerifyToken verifies a token and returns its claims.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	var tc tokenClaims
	token, err := v.parser.ParseWithClaims(tokenString, &tc, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if tc.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	if len(tc.Scopes) == 0 {
		return nil, fmt.Errorf("%w: missing scopes claim", ErrInvalidToken)
	}
	for _, s := range tc.Scopes {
		if !validScopes[s] {
			return nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidToken, s)
		}
	}

	return &Claims{Subject: tc.Subject, Roles: tc.Roles, Scopes: tc.Scopes}, nil
}

var validScopes = map[string]bool{
	ScopeRead:      true,
	ScopeControl:   true,
	ScopeTelemetry: true,
}

func parsePublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return rsaPub, nil
}
