package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"access-service/internal/rbac"
	"access-service/internal/session"
)

type contextKey string

const (
	principalContextKey contextKey = "principal"
	auditContextKey     contextKey = "audit"
)

// PrincipalFromContext returns the authenticated principal, or nil for
// anonymous requests.
func PrincipalFromContext(ctx context.Context) *rbac.Principal {
	principal, _ := ctx.Value(principalContextKey).(*rbac.Principal)
	return principal
}

// AuditFromContext returns the permission-check record attached by an
// admitting permission policy, if any.
func AuditFromContext(ctx context.Context) *rbac.AuditRecord {
	record, _ := ctx.Value(auditContextKey).(*rbac.AuditRecord)
	return record
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	return token, found && token != ""
}

func authFailureMessage(err error) (string, string) {
	switch {
	case errors.Is(err, session.ErrTokenExpired):
		return codeAuthenticationRequired, "session has expired, please log in again"
	case errors.Is(err, session.ErrTokenInvalid):
		return codeAuthenticationRequired, "invalid session token"
	case errors.Is(err, session.ErrPrincipalNotFound):
		return codeAuthenticationRequired, "account no longer exists"
	case errors.Is(err, session.ErrAccountDeactivated):
		return codeAccountDeactivated, "account is deactivated"
	case errors.Is(err, session.ErrAccountLocked):
		return codeAccountLocked, "account is temporarily locked"
	}
	return codeAuthenticationRequired, "authentication failed"
}

// authenticate resolves the bearer credential to a principal and rejects the
// request when it cannot. All rejections here are 401-class; a consistency
// fault (e.g. dangling role) is a 500, logged loudly.
func (h *handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			h.writeError(w, http.StatusUnauthorized, codeAuthenticationRequired, "missing bearer credential")
			return
		}

		principal, err := h.sessions.Validate(r.Context(), token)
		if err != nil {
			if session.IsAuthenticationError(err) {
				code, message := authFailureMessage(err)
				h.writeError(w, http.StatusUnauthorized, code, message)
				return
			}
			h.logger.Errorw("failed to validate session", "error", err)
			h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticateOptional attaches a principal when the credential checks out
// and proceeds anonymously otherwise. Used by endpoints with public and
// enhanced-for-authenticated behaviour.
func (h *handler) authenticateOptional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := h.sessions.Validate(r.Context(), token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *handler) writeDecision(w http.ResponseWriter, decision rbac.Decision) {
	switch decision.Reason {
	case rbac.ReasonUnauthenticated:
		h.writeError(w, http.StatusUnauthorized, codeAuthenticationRequired, "authentication required")
	case rbac.ReasonMissingPermissions:
		h.writeJSON(w, http.StatusForbidden, errorResponse{
			Code:    codePermissionDenied,
			Message: "missing required permissions",
			Missing: decision.Missing,
		})
	case rbac.ReasonRoleRejected:
		h.writeError(w, http.StatusForbidden, codeRoleRejected, "role not permitted")
	case rbac.ReasonOwnershipRequired:
		h.writeError(w, http.StatusForbidden, codeNotOwner, "not the owner of this resource")
	default:
		h.writeError(w, http.StatusForbidden, codePermissionDenied, "access denied")
	}
}

func (h *handler) authorize(w http.ResponseWriter, r *http.Request, policy rbac.Policy) (rbac.Decision, bool) {
	decision, err := rbac.Authorize(PrincipalFromContext(r.Context()), policy)
	if err != nil {
		// Never a silent admit or deny: an engine fault is an internal
		// error, surfaced as such.
		h.logger.Errorw("authorization fault", "error", err, "path", r.URL.Path)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return decision, false
	}
	return decision, true
}

// requirePermissions gates a route on a permission policy and attaches the
// audit record to the request context on admission.
func (h *handler) requirePermissions(policy rbac.PermissionPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, ok := h.authorize(w, r, policy)
			if !ok {
				return
			}
			if !decision.Allowed {
				h.writeDecision(w, decision)
				return
			}

			ctx := r.Context()
			if decision.Audit != nil {
				ctx = context.WithValue(ctx, auditContextKey, decision.Audit)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireRoles gates a route on the caller's role name.
func (h *handler) requireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, ok := h.authorize(w, r, rbac.RolePolicy{Roles: roles})
			if !ok {
				return
			}
			if !decision.Allowed {
				h.writeDecision(w, decision)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OwnershipChecker decides whether the principal owns the targeted resource.
// Ownership semantics belong to the resource, not to the engine.
type OwnershipChecker func(ctx context.Context, principalId, resourceId string) (bool, error)

// selfOwnership treats a user resource as owned by the user it describes.
func selfOwnership(_ context.Context, principalId, resourceId string) (bool, error) {
	return principalId == resourceId, nil
}

// requireOwnershipOr admits superusers, holders of an override permission,
// or the owner of the resource identified by the named URL parameter.
func (h *handler) requireOwnershipOr(ownerParam string, check OwnershipChecker, override ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, ok := h.authorize(w, r, rbac.OwnershipPolicy{Override: override})
			if !ok {
				return
			}

			ctx := r.Context()
			if decision.Allowed {
				if decision.Audit != nil {
					ctx = context.WithValue(ctx, auditContextKey, decision.Audit)
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if decision.NeedsOwnership {
				principal := PrincipalFromContext(ctx)
				owns, err := check(ctx, principal.User.Id.String(), chi.URLParam(r, ownerParam))
				if err != nil {
					h.logger.Errorw("ownership check failed", "error", err, "path", r.URL.Path)
					h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
					return
				}
				if owns {
					next.ServeHTTP(w, r)
					return
				}
			}

			h.writeDecision(w, decision)
		})
	}
}
