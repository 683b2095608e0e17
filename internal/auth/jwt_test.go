package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testJWTConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
}

func TestAuthenticate_ValidToken(t *testing.T) {
	cfg := testJWTConfig()
	token, err := GenerateToken(cfg, "u1", "alice")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	id, err := NewAuthenticator(cfg).Authenticate(token)
	if err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if id.UserID != "u1" || id.Name != "alice" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestAuthenticate_MissingToken(t *testing.T) {
	if _, err := NewAuthenticator(testJWTConfig()).Authenticate("  "); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestAuthenticate_RejectsWrongSecret(t *testing.T) {
	cfg := testJWTConfig()
	other := *cfg
	other.Secret = []byte("another-secret")

	token, err := GenerateToken(&other, "u1", "")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := NewAuthenticator(cfg).Authenticate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAuthenticate_RejectsIssuerAndAudienceMismatch(t *testing.T) {
	cfg := testJWTConfig()

	wrongIssuer := *cfg
	wrongIssuer.Issuer = "elsewhere"
	token, _ := GenerateToken(&wrongIssuer, "u1", "")
	if _, err := NewAuthenticator(cfg).Authenticate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected issuer mismatch to fail, got %v", err)
	}

	wrongAudience := *cfg
	wrongAudience.Audience = "mobile"
	token, _ = GenerateToken(&wrongAudience, "u1", "")
	if _, err := NewAuthenticator(cfg).Authenticate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected audience mismatch to fail, got %v", err)
	}
}

func TestAuthenticate_RejectsExpiredToken(t *testing.T) {
	cfg := testJWTConfig()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewAuthenticator(cfg).Authenticate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestAuthenticate_RequiresSubject(t *testing.T) {
	cfg := testJWTConfig()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewAuthenticator(cfg).Authenticate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected missing subject to fail, got %v", err)
	}
}

func TestAuthenticate_RejectsNoneAlgorithm(t *testing.T) {
	cfg := testJWTConfig()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: cfg.Issuer}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewAuthenticator(cfg).Authenticate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected unsigned token to fail, got %v", err)
	}
}

func TestGenerateToken_RequiresUserID(t *testing.T) {
	if _, err := GenerateToken(testJWTConfig(), " ", ""); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestAuthenticate_TrimsSubject(t *testing.T) {
	cfg := testJWTConfig()
	token, err := GenerateToken(cfg, " u1 ", "")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	id, err := NewAuthenticator(cfg).Authenticate(token)
	if err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if id.UserID != "u1" {
		t.Fatalf("expected trimmed subject, got %q", id.UserID)
	}
}
