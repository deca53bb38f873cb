package auth

import "testing"

func TestGateAdminShortCircuits(t *testing.T) {
	gate := NewGate(GateConfig{})
	p := Principal{Admin: true}
	if err := gate.Authorize(p, "library/app", ActionDelete); err != nil {
		t.Fatalf("admin should bypass all checks, got %v", err)
	}
}

func TestGateAnonymousPullDeniedByDefault(t *testing.T) {
	gate := NewGate(GateConfig{})
	p := AnonymousPrincipal()
	err := gate.Authorize(p, "library/app", ActionPull)
	if _, ok := err.(ErrUnauthorized); !ok {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
}

func TestGateAnonymousPullAllowedForPublicRepo(t *testing.T) {
	gate := NewGate(GateConfig{
		AllowAnonymousPull: true,
		IsPublic:           func(repo string) bool { return repo == "library/app" },
	})
	p := AnonymousPrincipal()

	if err := gate.Authorize(p, "library/app", ActionPull); err != nil {
		t.Fatalf("expected public pull to succeed, got %v", err)
	}
	if err := gate.Authorize(p, "library/private", ActionPull); err == nil {
		t.Fatal("expected private repo pull to fail for anonymous")
	}
}

func TestGateGrantedActionAllowed(t *testing.T) {
	gate := NewGate(GateConfig{})
	p := Principal{Subject: "alice", Grants: []Grant{
		{Repo: "library/app", Actions: []Action{ActionPull, ActionPush}},
	}}

	if err := gate.Authorize(p, "library/app", ActionPush); err != nil {
		t.Fatalf("expected granted push to succeed, got %v", err)
	}

	err := gate.Authorize(p, "library/app", ActionDelete)
	if _, ok := err.(ErrDenied); !ok {
		t.Fatalf("got %v, want ErrDenied for ungranted action", err)
	}
}

func TestGateUnauthorizedSetsChallengeHeader(t *testing.T) {
	gate := NewGate(GateConfig{Realm: "https://auth.example.com/token", Service: "registry.example.com"})
	err := gate.Authorize(AnonymousPrincipal(), "library/app", ActionPull)
	unauth, ok := err.(ErrUnauthorized)
	if !ok {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
	if unauth.Challenge.Scope != "repository:library/app:pull" {
		t.Fatalf("Challenge.Scope = %q", unauth.Challenge.Scope)
	}
}
