package token

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func signTestToken(t *testing.T, claims Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := tok.SignedString([]byte("test-signing-key"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return raw
}

func TestDecodePrincipalExtractsRepositoryGrants(t *testing.T) {
	raw := signTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"},
		Access: []ResourceActions{
			{Type: "repository", Name: "library/app", Actions: []string{"pull", "push"}},
			{Type: "registry", Name: "catalog", Actions: []string{"*"}},
		},
	})

	p, err := DecodePrincipal(raw)
	if err != nil {
		t.Fatalf("DecodePrincipal: %v", err)
	}
	if p.Subject != "alice" {
		t.Fatalf("Subject = %q, want alice", p.Subject)
	}
	if len(p.Grants) != 1 {
		t.Fatalf("Grants = %d, want 1 (registry-typed entry should be ignored)", len(p.Grants))
	}
	if !p.Allows("library/app", "pull") || !p.Allows("library/app", "push") {
		t.Fatal("expected pull and push grants on library/app")
	}
}

func TestDecodePrincipalMalformed(t *testing.T) {
	if _, err := DecodePrincipal("not-a-jwt"); err == nil {
		t.Fatal("expected ErrMalformedToken")
	}
}
