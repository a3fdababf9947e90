package access

// Role is a role name as resolved by the auth collaborator. Names follow the
// uppercase convention of the upstream user store.
type Role string

const (
	RoleAdmin          Role = "ADMIN"
	RoleReleaseManager Role = "RELEASE_MANAGER"
	RoleReviewer       Role = "REVIEWER"
	RoleEditor         Role = "EDITOR"
)

// Operation names one guarded engine operation.
type Operation string

const (
	OpCreateRelease     Operation = "release.create"
	OpDeleteRelease     Operation = "release.delete"
	OpArchiveRelease    Operation = "release.archive"
	OpStartAlignment    Operation = "alignment.start"
	OpCancelAlignment   Operation = "alignment.cancel"
	OpFinalizeAlignment Operation = "alignment.finalize"
	OpSendReminders     Operation = "alignment.remind"
	OpSubmitReview      Operation = "alignment.review.submit"
	OpCompleteReview    Operation = "alignment.review.complete"
	OpEditRequirement   Operation = "requirement.edit"
	OpDeleteRequirement Operation = "requirement.delete"
	OpProvisionUser     Operation = "user.provision"
)

// defaultGrants maps each non-admin role to the operations it may perform.
// ADMIN is allowed everything and is handled in Allowed directly.
var defaultGrants = map[Role][]Operation{
	RoleReleaseManager: {
		OpCreateRelease,
		OpDeleteRelease,
		OpArchiveRelease,
		OpStartAlignment,
		OpCancelAlignment,
		OpFinalizeAlignment,
		OpSendReminders,
	},
	RoleReviewer: {
		OpSubmitReview,
		OpCompleteReview,
	},
	RoleEditor: {
		OpEditRequirement,
		OpDeleteRequirement,
	},
}

// Policy is the compiled role/operation table. The zero value denies all.
type Policy struct {
	grants map[Role]map[Operation]bool
}

func NewPolicy() *Policy {
	p := &Policy{grants: make(map[Role]map[Operation]bool)}
	for role, ops := range defaultGrants {
		for _, op := range ops {
			p.grant(role, op)
		}
	}
	return p
}

func (p *Policy) grant(role Role, op Operation) {
	if p.grants[role] == nil {
		p.grants[role] = make(map[Operation]bool)
	}
	p.grants[role][op] = true
}

// Allowed reports whether any of the actor's roles grants the operation.
func (p *Policy) Allowed(roles []Role, op Operation) bool {
	for _, role := range roles {
		if role == RoleAdmin {
			return true
		}
		if p.grants[role][op] {
			return true
		}
	}
	return false
}

// KnownRole reports whether the name is one of the recognized roles.
func KnownRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleReleaseManager, RoleReviewer, RoleEditor:
		return true
	}
	return false
}

func HasRole(roles []Role, want Role) bool {
	for _, role := range roles {
		if role == want || role == RoleAdmin {
			return true
		}
	}
	return false
}
