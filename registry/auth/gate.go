package auth

import (
	"fmt"
	"net/http"
)

// Challenge is the parameters of a WWW-Authenticate: Bearer challenge, per
// RFC 6750 §3, matching the realm/service/scope triad
// token.authChallenge.SetHeaders builds in the teacher's token backend.
type Challenge struct {
	Realm   string
	Service string
	Scope   string
}

// SetHeader writes this challenge onto h as a WWW-Authenticate header.
func (c Challenge) SetHeader(h http.Header) {
	h.Set("WWW-Authenticate", fmt.Sprintf("Bearer realm=%q,service=%q,scope=%q", c.Realm, c.Service, c.Scope))
}

// ErrUnauthorized means no principal (or an anonymous one lacking
// permission) presented credentials for a resource that requires them: the
// caller should respond 401 with Challenge's header set.
type ErrUnauthorized struct {
	Challenge Challenge
}

func (e ErrUnauthorized) Error() string { return "auth: unauthorized" }

// ErrDenied means an authenticated principal lacks the scope for the
// requested action: the caller should respond 403.
type ErrDenied struct {
	Repo   string
	Action Action
}

func (e ErrDenied) Error() string {
	return fmt.Sprintf("auth: principal denied %s on %s", e.Action, e.Repo)
}

// GateConfig configures a Gate's anonymous-pull policy (spec §4.F).
type GateConfig struct {
	// AllowAnonymousPull permits pull with no principal when IsPublic
	// reports the repo public. Defaults to false (deny) when unset.
	AllowAnonymousPull bool
	// IsPublic reports whether repo is marked public. A nil IsPublic
	// treats every repo as private.
	IsPublic func(repo string) bool
	Realm    string
	Service  string
}

// Gate is the Authorization Gate of spec §4.F: given a principal and a
// requested (repo, action) scope, it decides allow or deny.
type Gate struct {
	cfg GateConfig
}

// NewGate constructs a Gate from cfg.
func NewGate(cfg GateConfig) *Gate {
	if cfg.IsPublic == nil {
		cfg.IsPublic = func(string) bool { return false }
	}
	return &Gate{cfg: cfg}
}

// Authorize returns nil if p may perform action on repo, ErrUnauthorized if
// p is anonymous and anonymous access isn't permitted, or ErrDenied if p is
// known but lacks the matching grant.
func (g *Gate) Authorize(p Principal, repo string, action Action) error {
	if p.Admin {
		return nil
	}

	if p.Anonymous {
		if action == ActionPull && g.cfg.AllowAnonymousPull && g.cfg.IsPublic(repo) {
			return nil
		}
		return ErrUnauthorized{Challenge: Challenge{
			Realm:   g.cfg.Realm,
			Service: g.cfg.Service,
			Scope:   fmt.Sprintf("repository:%s:%s", repo, action),
		}}
	}

	if p.Allows(repo, action) {
		return nil
	}

	return ErrDenied{Repo: repo, Action: action}
}
