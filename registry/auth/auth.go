// Package auth defines the Principal this registry's core authorizes
// against and the actions it can be granted, grounded on
// distribution/distribution/registry/auth's Resource/AccessController shape
// but replacing its pluggable AccessController backends with a single
// Authorization Gate (spec §4.F): the core never talks to an IdP, it only
// consumes an already-decoded Principal.
package auth

// Action is one of the three operations the gate decides on.
type Action string

// Actions recognized by the gate, matching the scopes a bearer token grants.
const (
	ActionPull   Action = "pull"
	ActionPush   Action = "push"
	ActionDelete Action = "delete"
)

// Grant authorizes Actions on a single repository.
type Grant struct {
	Repo    string
	Actions []Action
}

func (g Grant) allows(action Action) bool {
	for _, a := range g.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Principal is the verified caller identity the core consumes. It carries
// no secrets: signature verification against a trusted key happens at the
// protocol edge (§6.3); by the time a Principal reaches the gate it is
// already trusted.
type Principal struct {
	Subject   string
	Anonymous bool
	Admin     bool
	Grants    []Grant
}

// AnonymousPrincipal is the Principal for a request that presented no
// bearer token.
func AnonymousPrincipal() Principal {
	return Principal{Anonymous: true}
}

// Allows reports whether p has an explicit grant for action on repo. It does
// not apply the gate's anonymous-pull or admin-short-circuit policy; see
// Gate.Authorize for the full decision.
func (p Principal) Allows(repo string, action Action) bool {
	for _, g := range p.Grants {
		if g.Repo == repo && g.allows(action) {
			return true
		}
	}
	return false
}
