package httpserver

import (
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func signClaims(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestJWTVerifier_ValidToken(t *testing.T) {
	claims, err := JWTVerifier{Secret: []byte(testSecret)}.Parse(makeToken(t, "ash", "admin"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "ash" || claims.Role != "admin" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestJWTVerifier_Expired(t *testing.T) {
	tok := signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ash",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	if _, err := (JWTVerifier{Secret: []byte(testSecret)}).Parse(tok); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestJWTVerifier_WrongSecret(t *testing.T) {
	if _, err := (JWTVerifier{Secret: []byte("another-secret-entirely")}).Parse(makeToken(t, "ash", "")); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestJWTVerifier_RejectsOtherAlgorithms(t *testing.T) {
	tok := signClaims(t, jwt.SigningMethodHS512, []byte(testSecret), Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "ash"},
	})
	if _, err := (JWTVerifier{Secret: []byte(testSecret)}).Parse(tok); err == nil {
		t.Fatal("expected error for HS512 token")
	}
}

func TestJWTVerifier_TamperedPayload(t *testing.T) {
	parts := strings.Split(makeToken(t, "ash", ""), ".")
	if len(parts) != 3 {
		t.Fatal("expected 3 JWT parts")
	}
	other := strings.Split(makeToken(t, "misty", "admin"), ".")
	tampered := parts[0] + "." + other[1] + "." + parts[2]
	if _, err := (JWTVerifier{Secret: []byte(testSecret)}).Parse(tampered); err == nil {
		t.Fatal("expected error for tampered payload")
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]struct {
		header string
		token  string
		ok     bool
	}{
		"valid":      {"Bearer abc", "abc", true},
		"lowercase":  {"bearer abc", "abc", true},
		"empty":      {"", "", false},
		"no token":   {"Bearer ", "", false},
		"basic auth": {"Basic abc", "", false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			token, ok := bearerToken(tc.header)
			if ok != tc.ok || token != tc.token {
				t.Fatalf("bearerToken(%q) = (%q, %v), want (%q, %v)", tc.header, token, ok, tc.token, tc.ok)
			}
		})
	}
}
