package services

import (
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/normgate/normgate-backend/internal/access"
	"github.com/normgate/normgate-backend/internal/pkg/apierr"
)

func TestProvision_HashesPasswordAndAssignsRoles(t *testing.T) {
	env := newTestEnv(t)
	ctx := actorCtx(access.RoleAdmin)

	user, err := env.userService.Provision(ctx, ProvisionUserInput{
		Email:     "Reviewer@Example.com",
		Password:  "correct horse",
		FirstName: "Rem",
		LastName:  "Viewer",
		Roles:     []access.Role{access.RoleReviewer},
	})
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if user.Email != "reviewer@example.com" {
		t.Fatalf("email = %q, want lowercased", user.Email)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("correct horse")); err != nil {
		t.Fatalf("stored password is not a valid bcrypt hash of the input: %v", err)
	}
	if !user.HasRole(access.RoleReviewer) {
		t.Fatalf("roles = %s, want REVIEWER", user.Roles)
	}

	reviewers, err := env.userService.ListReviewers(ctx)
	if err != nil {
		t.Fatalf("ListReviewers: %v", err)
	}
	if len(reviewers) != 1 || reviewers[0].ID != user.ID {
		t.Fatalf("reviewers = %v, want the provisioned user", reviewers)
	}
}

func TestProvision_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := actorCtx(access.RoleAdmin)

	cases := []struct {
		name  string
		input ProvisionUserInput
		kind  apierr.Kind
	}{
		{"bad email", ProvisionUserInput{Email: "not-an-email", Password: "longenough"}, apierr.KindValidation},
		{"short password", ProvisionUserInput{Email: "a@b.example", Password: "short"}, apierr.KindValidation},
		{"unknown role", ProvisionUserInput{Email: "a@b.example", Password: "longenough", Roles: []access.Role{"WIZARD"}}, apierr.KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.userService.Provision(ctx, tc.input); !apierr.IsKind(err, tc.kind) {
				t.Fatalf("got %v, want %s error", err, tc.kind)
			}
		})
	}

	if _, err := env.userService.Provision(ctx, ProvisionUserInput{Email: "dup@b.example", Password: "longenough"}); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if _, err := env.userService.Provision(ctx, ProvisionUserInput{Email: "dup@b.example", Password: "longenough"}); !apierr.IsKind(err, apierr.KindConflict) {
		t.Fatalf("duplicate email: got %v, want conflict error", err)
	}

	if _, err := env.userService.Provision(actorCtx(access.RoleEditor), ProvisionUserInput{Email: "x@b.example", Password: "longenough"}); !apierr.IsKind(err, apierr.KindForbidden) {
		t.Fatalf("non-admin: got %v, want forbidden error", err)
	}
}
