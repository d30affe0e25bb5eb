package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key"

func generateTestRSAKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}

	der, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		t.Fatalf("Failed to marshal public key: %v", err)
	}
	return privateKey, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func testClaims(scopes ...string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":    "operator-1",
		"roles":  []string{"viewer"},
		"scopes": scopes,
		"iat":    time.Now().Unix(),
		"exp":    time.Now().Add(time.Hour).Unix(),
	}
}

func signHS256(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return s
}

func TestNewVerifier(t *testing.T) {
	_, pubPEM := generateTestRSAKey(t)

	tests := []struct {
		name    string
		config  VerifierConfig
		wantErr bool
	}{
		{"HS256 with secret", VerifierConfig{Algorithm: "HS256", SecretKey: testSecret}, false},
		{"HS256 without secret", VerifierConfig{Algorithm: "HS256"}, true},
		{"RS256 with PEM", VerifierConfig{Algorithm: "RS256", PublicKeyPEM: pubPEM}, false},
		{"RS256 with garbage PEM", VerifierConfig{Algorithm: "RS256", PublicKeyPEM: "not a key"}, true},
		{"unsupported algorithm", VerifierConfig{Algorithm: "ES256"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewVerifier(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewVerifier() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && v == nil {
				t.Error("NewVerifier() returned nil verifier")
			}
		})
	}
}

func TestVerifyHS256Token(t *testing.T) {
	v, err := NewVerifier(VerifierConfig{Algorithm: "HS256", SecretKey: testSecret})
	if err != nil {
		t.Fatalf("NewVerifier() failed: %v", err)
	}

	expired := testClaims(ScopeRead)
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	noExp := testClaims(ScopeRead)
	delete(noExp, "exp")

	noSub := testClaims(ScopeRead)
	delete(noSub, "sub")

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid", signHS256(t, testClaims(ScopeRead, ScopeTelemetry), testSecret), false},
		{"wrong secret", signHS256(t, testClaims(ScopeRead), "other"), true},
		{"expired", signHS256(t, expired, testSecret), true},
		{"no expiry", signHS256(t, noExp, testSecret), true},
		{"no subject", signHS256(t, noSub, testSecret), true},
		{"no scopes", signHS256(t, testClaims(), testSecret), true},
		{"unknown scope", signHS256(t, testClaims("admin"), testSecret), true},
		{"empty", "", true},
		{"garbage", "a.b.c", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := v.VerifyToken(tt.token)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidToken) {
					t.Errorf("VerifyToken() = %v, want ErrInvalidToken", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("VerifyToken() failed: %v", err)
			}
			if claims.Subject != "operator-1" || !claims.HasScope(ScopeTelemetry) {
				t.Errorf("claims = %+v", claims)
			}
		})
	}
}

func TestVerifyRS256Token(t *testing.T) {
	key, pubPEM := generateTestRSAKey(t)
	v, err := NewVerifier(VerifierConfig{Algorithm: "RS256", PublicKeyPEM: pubPEM})
	if err != nil {
		t.Fatalf("NewVerifier() failed: %v", err)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, testClaims(ScopeRead)).SignedString(key)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	claims, err := v.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken() failed: %v", err)
	}
	if !claims.HasScope(ScopeRead) || claims.HasScope(ScopeTelemetry) {
		t.Errorf("scopes = %v", claims.Scopes)
	}

	// An HS256 token signed with the PEM text must not pass as RS256.
	forged := signHS256(t, testClaims(ScopeRead), pubPEM)
	if _, err := v.VerifyToken(forged); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifyToken(forged) = %v, want ErrInvalidToken", err)
	}
}
