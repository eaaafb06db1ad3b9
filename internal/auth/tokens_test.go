package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/verdantlab/plantarium/internal/domain/authz"
	apperrors "github.com/verdantlab/plantarium/internal/platform/errors"
)

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()
	tokens := NewTokens([]byte("test-secret"), time.Hour)
	identity := authz.Identity{
		Username: "frank",
		Roles:    []authz.Role{authz.RoleProducer, authz.RoleConsumer},
	}

	token, err := tokens.Issue(identity)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	got, err := tokens.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got.Username != "frank" {
		t.Fatalf("Verify() username = %q, want %q", got.Username, "frank")
	}
	if len(got.Roles) != 2 || got.Roles[0] != authz.RoleProducer {
		t.Fatalf("Verify() roles = %v, want [producer consumer]", got.Roles)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	t.Parallel()
	token, err := NewTokens([]byte("secret-a"), time.Hour).Issue(authz.Identity{Username: "frank"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	_, err = NewTokens([]byte("secret-b"), time.Hour).Verify(token)
	if !errors.Is(err, apperrors.New(apperrors.CodeTokenInvalid, "")) {
		t.Fatalf("Verify() error = %v, want CodeTokenInvalid", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	t.Parallel()
	tokens := NewTokens([]byte("test-secret"), time.Minute)
	tokens.clock = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }

	token, err := tokens.Issue(authz.Identity{Username: "frank"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	tokens.clock = func() time.Time { return time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC) }
	_, err = tokens.Verify(token)
	if !errors.Is(err, apperrors.New(apperrors.CodeTokenExpired, "")) {
		t.Fatalf("Verify() error = %v, want CodeTokenExpired", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	t.Parallel()
	tokens := NewTokens([]byte("test-secret"), time.Hour)
	if _, err := tokens.Verify("not-a-token"); err == nil {
		t.Fatal("Verify() error = nil, want error")
	}
}
