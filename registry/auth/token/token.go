// Package token decodes a bearer token's claims into an auth.Principal,
// grounded on distribution/distribution/registry/auth/token's ClaimSet and
// ResourceActions shape. Signature verification against a trusted key is
// the protocol edge's job (spec §6.3); this package only extracts claims
// from an already-trusted token using golang-jwt/jwt/v5.
package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/distribution-core/registry/registry/auth"
)

// ErrMalformedToken is returned when raw isn't a well-formed JWT.
var ErrMalformedToken = errors.New("token: malformed")

// ResourceActions mirrors one element of a token's "access" claim: the
// actions granted on a single named, typed resource.
type ResourceActions struct {
	Type    string   `json:"type"`
	Name    string   `json:"name"`
	Actions []string `json:"actions"`
}

// Claims is this registry's JWT claim set: the registered claims plus the
// private "access" claim distribution's auth spec defines.
type Claims struct {
	jwt.RegisteredClaims
	Access []ResourceActions `json:"access"`
}

// DecodePrincipal parses raw's claims (without verifying its signature) and
// builds the auth.Principal they describe. Only "repository"-typed access
// entries become Grants; other resource types are ignored since the core
// only authorizes repository scopes.
func DecodePrincipal(raw string) (auth.Principal, error) {
	var claims Claims
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return auth.Principal{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	p := auth.Principal{Subject: claims.Subject}
	for _, ra := range claims.Access {
		if ra.Type != "repository" {
			continue
		}
		actions := make([]auth.Action, 0, len(ra.Actions))
		for _, a := range ra.Actions {
			actions = append(actions, auth.Action(a))
		}
		p.Grants = append(p.Grants, auth.Grant{Repo: ra.Name, Actions: actions})
	}
	return p, nil
}
