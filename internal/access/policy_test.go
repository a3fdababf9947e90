package access

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPolicy_DefaultGrants(t *testing.T) {
	policy := NewPolicy()

	cases := []struct {
		name  string
		roles []Role
		op    Operation
		want  bool
	}{
		{"admin can do anything", []Role{RoleAdmin}, OpDeleteRelease, true},
		{"release manager creates releases", []Role{RoleReleaseManager}, OpCreateRelease, true},
		{"release manager finalizes", []Role{RoleReleaseManager}, OpFinalizeAlignment, true},
		{"release manager cannot review", []Role{RoleReleaseManager}, OpSubmitReview, false},
		{"reviewer submits reviews", []Role{RoleReviewer}, OpSubmitReview, true},
		{"reviewer cannot create releases", []Role{RoleReviewer}, OpCreateRelease, false},
		{"editor edits requirements", []Role{RoleEditor}, OpEditRequirement, true},
		{"editor cannot finalize", []Role{RoleEditor}, OpFinalizeAlignment, false},
		{"no roles denies", nil, OpCreateRelease, false},
		{"multiple roles union", []Role{RoleReviewer, RoleEditor}, OpDeleteRequirement, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := policy.Allowed(tc.roles, tc.op); got != tc.want {
				t.Fatalf("Allowed(%v, %s) = %v, want %v", tc.roles, tc.op, got, tc.want)
			}
		})
	}
}

func TestPolicy_OverlayWidensOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	overlay := "grants:\n  EDITOR:\n    - release.create\n"
	if err := os.WriteFile(path, []byte(overlay), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}

	policy := NewPolicy()
	if err := policy.LoadOverlay(path); err != nil {
		t.Fatalf("LoadOverlay: %v", err)
	}
	if !policy.Allowed([]Role{RoleEditor}, OpCreateRelease) {
		t.Fatalf("overlay grant not applied")
	}
	// Defaults survive the overlay.
	if !policy.Allowed([]Role{RoleEditor}, OpEditRequirement) {
		t.Fatalf("default grant lost after overlay")
	}
}

func TestPolicy_OverlayMissingFileIsNoop(t *testing.T) {
	policy := NewPolicy()
	if err := policy.LoadOverlay(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing overlay must not error, got %v", err)
	}
}

func TestKnownRole(t *testing.T) {
	for _, role := range []Role{RoleAdmin, RoleReleaseManager, RoleReviewer, RoleEditor} {
		if !KnownRole(role) {
			t.Fatalf("%s should be known", role)
		}
	}
	if KnownRole(Role("INTERN")) {
		t.Fatalf("unknown role accepted")
	}
}
