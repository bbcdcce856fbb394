package rbac

// Reason classifies an authorization decision for callers and audit logs.
type Reason string

const (
	ReasonUnauthenticated    Reason = "unauthenticated"
	ReasonSuperuserBypass    Reason = "superuser_bypass"
	ReasonPermissionGranted  Reason = "permission_granted"
	ReasonMissingPermissions Reason = "missing_permissions"
	ReasonRoleAccepted       Reason = "role_accepted"
	ReasonRoleRejected       Reason = "role_rejected"
	ReasonOwnershipRequired  Reason = "ownership_required"
)

// AuditRecord captures which permissions a policy checked and which the
// principal actually held. The transport layer attaches it to the request
// context; the engine never persists it.
type AuditRecord struct {
	Checked []string `json:"checked"`
	Held    []string `json:"held"`
}

// Decision is the typed admit/deny outcome of a policy. Denies are values,
// not errors; only internal faults (e.g. a principal with no role) surface
// as errors from Authorize.
type Decision struct {
	Allowed bool
	Reason  Reason
	// Missing lists required permissions absent from the effective set.
	Missing []string
	// NeedsOwnership is set when admission depends on the caller owning the
	// targeted resource. The ownership check itself belongs to the
	// resource's collaborator, not this engine.
	NeedsOwnership bool
	Audit          *AuditRecord
}

// Policy is a declarative admission rule evaluated against a principal.
type Policy interface {
	Evaluate(p *Principal) (Decision, error)
}

// PermissionPolicy admits principals whose effective set covers the required
// permissions: all of them when RequireAll is set, at least one otherwise.
// The superuser capability is checked before resolution and, unless
// disabled, admits unconditionally.
type PermissionPolicy struct {
	Required   []string
	RequireAll bool
	// NoSuperuserBypass disables the unconditional superuser admit.
	NoSuperuserBypass bool
}

func (pp PermissionPolicy) Evaluate(p *Principal) (Decision, error) {
	if p == nil || p.User == nil {
		return Decision{Reason: ReasonUnauthenticated}, nil
	}
	if !pp.NoSuperuserBypass && p.Superuser() {
		return Decision{Allowed: true, Reason: ReasonSuperuserBypass}, nil
	}

	effective, err := Resolve(p)
	if err != nil {
		return Decision{}, err
	}

	held := make([]string, 0, len(pp.Required))
	missing := make([]string, 0)
	for _, id := range pp.Required {
		if effective.Has(id) {
			held = append(held, id)
		} else {
			missing = append(missing, id)
		}
	}

	// An empty requirement list admits in both modes: a policy that requires
	// nothing has nothing to deny on.
	allowed := len(missing) == 0
	if !pp.RequireAll && len(pp.Required) > 0 {
		allowed = len(held) > 0
	}

	if !allowed {
		return Decision{Reason: ReasonMissingPermissions, Missing: missing}, nil
	}

	return Decision{
		Allowed: true,
		Reason:  ReasonPermissionGranted,
		Audit:   &AuditRecord{Checked: pp.Required, Held: held},
	}, nil
}

// RolePolicy admits principals whose role name appears in the accepted list.
// No resolution happens; this is a pure name comparison.
type RolePolicy struct {
	Roles []string
}

func (rp RolePolicy) Evaluate(p *Principal) (Decision, error) {
	if p == nil || p.User == nil {
		return Decision{Reason: ReasonUnauthenticated}, nil
	}
	if p.Role == nil {
		return Decision{}, ErrMissingRole
	}

	for _, name := range rp.Roles {
		if p.Role.Id == name {
			return Decision{Allowed: true, Reason: ReasonRoleAccepted}, nil
		}
	}

	return Decision{Reason: ReasonRoleRejected}, nil
}

// OwnershipPolicy admits superusers and holders of any override permission
// outright. For everyone else it defers: the decision reports that an
// ownership check against the targeted resource is still required.
type OwnershipPolicy struct {
	// Override lists permissions that admit regardless of ownership.
	Override []string
}

func (op OwnershipPolicy) Evaluate(p *Principal) (Decision, error) {
	if p == nil || p.User == nil {
		return Decision{Reason: ReasonUnauthenticated}, nil
	}
	if p.Superuser() {
		return Decision{Allowed: true, Reason: ReasonSuperuserBypass}, nil
	}

	effective, err := Resolve(p)
	if err != nil {
		return Decision{}, err
	}

	if effective.HasAny(op.Override) {
		held := make([]string, 0, len(op.Override))
		for _, id := range op.Override {
			if effective.Has(id) {
				held = append(held, id)
			}
		}
		return Decision{
			Allowed: true,
			Reason:  ReasonPermissionGranted,
			Audit:   &AuditRecord{Checked: op.Override, Held: held},
		}, nil
	}

	return Decision{Reason: ReasonOwnershipRequired, NeedsOwnership: true}, nil
}

// Authorize evaluates a policy for a principal. Deny decisions come back as
// values; an error means the engine could not decide and the caller must
// fail closed with an internal error, never a silent admit.
func Authorize(p *Principal, policy Policy) (Decision, error) {
	return policy.Evaluate(p)
}
