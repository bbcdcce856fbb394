package service

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"

	"access-service/internal/notifier"
	"access-service/internal/repository/model"
)

func (h *handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.repo.GetAllRoles(r.Context())
	if err != nil {
		h.logger.Errorw("failed to list roles", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	// isActive is a display filter only; ?active=true trims the listing but
	// inactive roles keep resolving for their holders.
	if r.URL.Query().Get("active") == "true" {
		filtered := make([]*model.Role, 0, len(roles))
		for _, role := range roles {
			if role.IsActive {
				filtered = append(filtered, role)
			}
		}
		roles = filtered
	}

	if roles == nil {
		roles = []*model.Role{}
	}
	h.writeJSON(w, http.StatusOK, roles)
}

func (h *handler) handleGetRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.repo.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			h.writeError(w, http.StatusNotFound, codeNotFound, "role not found")
			return
		}
		h.logger.Errorw("failed to load role", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	h.writeJSON(w, http.StatusOK, role)
}

type createRoleRequest struct {
	Id          string   `json:"id" validate:"required,min=2,max=64"`
	DisplayName *string  `json:"displayName,omitempty"`
	Permissions []string `json:"permissions"`
	IsSystem    bool     `json:"isSystem"`
	Superuser   bool     `json:"superuser"`
	IsActive    *bool    `json:"isActive,omitempty"`
}

// verifyPermissionsExist rejects role edits that would reference permissions
// missing from the catalog.
func (h *handler) verifyPermissionsExist(w http.ResponseWriter, r *http.Request, ids []string) bool {
	for _, id := range ids {
		if _, err := h.repo.GetPermission(r.Context(), id); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				h.writeError(w, http.StatusBadRequest, codeValidationFailed, "unknown permission "+id)
				return false
			}
			h.logger.Errorw("failed to load permission", "error", err)
			h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
			return false
		}
	}
	return true
}

func (h *handler) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	// The bypass capability and system flag are set at creation time, and
	// only by a superuser.
	if (req.Superuser || req.IsSystem) && !PrincipalFromContext(r.Context()).Superuser() {
		h.writeError(w, http.StatusForbidden, codePermissionDenied, "only a superuser can create system or superuser roles")
		return
	}

	if !h.verifyPermissionsExist(w, r, req.Permissions) {
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	permissions := req.Permissions
	if permissions == nil {
		permissions = []string{}
	}

	role := &model.Role{
		Id:          req.Id,
		DisplayName: req.DisplayName,
		Permissions: permissions,
		IsSystem:    req.IsSystem,
		IsActive:    isActive,
		Superuser:   req.Superuser,
	}

	if err := h.repo.CreateRole(r.Context(), role); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			h.writeError(w, http.StatusConflict, codeAlreadyExists, "role already exists")
			return
		}
		h.logger.Errorw("failed to create role", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	if err := h.notif.RoleUpdate(r.Context(), role, notifier.ChangeTypeCreate); err != nil {
		h.logger.Errorw("failed to send role update", "error", err)
	}

	h.writeJSON(w, http.StatusCreated, role)
}

type updateRoleRequest struct {
	DisplayName *string  `json:"displayName,omitempty"`
	IsActive    *bool    `json:"isActive,omitempty"`
	// SetPermissions adds permissions not already in the role's list.
	SetPermissions []string `json:"setPermissions,omitempty"`
	// UnsetPermissions removes permissions from the role's list.
	UnsetPermissions []string `json:"unsetPermissions,omitempty"`
}

func (h *handler) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	role, err := h.repo.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			h.writeError(w, http.StatusNotFound, codeNotFound, "role not found")
			return
		}
		h.logger.Errorw("failed to load role", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	// Non-superusers cannot rename a system role or shrink its membership.
	if role.IsSystem && !PrincipalFromContext(r.Context()).Superuser() {
		if req.DisplayName != nil || len(req.UnsetPermissions) > 0 {
			h.writeError(w, http.StatusForbidden, codePermissionDenied, "system roles can only be reduced by a superuser")
			return
		}
	}

	if !h.verifyPermissionsExist(w, r, req.SetPermissions) {
		return
	}

	if req.DisplayName != nil {
		role.DisplayName = req.DisplayName
	}
	if req.IsActive != nil {
		role.IsActive = *req.IsActive
	}

	for _, perm := range req.UnsetPermissions {
		for i, existing := range role.Permissions {
			if existing == perm {
				role.Permissions = append(role.Permissions[:i], role.Permissions[i+1:]...)
				break
			}
		}
	}

	// Append new permissions, preserving the existing display order.
	for _, perm := range req.SetPermissions {
		if !role.HasPermission(perm) {
			role.Permissions = append(role.Permissions, perm)
		}
	}

	if err := h.repo.UpdateRole(r.Context(), role); err != nil {
		h.logger.Errorw("failed to update role", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	if err := h.notif.RoleUpdate(r.Context(), role, notifier.ChangeTypeModify); err != nil {
		h.logger.Errorw("failed to send role update", "error", err)
	}

	h.writeJSON(w, http.StatusOK, role)
}

// handleDeleteRole refuses to delete a role while any user still holds it.
func (h *handler) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	role, err := h.repo.GetRole(r.Context(), id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			h.writeError(w, http.StatusNotFound, codeNotFound, "role not found")
			return
		}
		h.logger.Errorw("failed to load role", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	if role.IsSystem && !PrincipalFromContext(r.Context()).Superuser() {
		h.writeError(w, http.StatusForbidden, codePermissionDenied, "system roles can only be deleted by a superuser")
		return
	}

	holders, err := h.repo.CountUsersWithRole(r.Context(), id)
	if err != nil {
		h.logger.Errorw("failed to count role holders", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}
	if holders > 0 {
		h.writeError(w, http.StatusConflict, codeInUse, "role is still assigned to users")
		return
	}

	if err := h.repo.DeleteRole(r.Context(), id); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			h.writeError(w, http.StatusNotFound, codeNotFound, "role not found")
			return
		}
		h.logger.Errorw("failed to delete role", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	if err := h.notif.RoleUpdate(r.Context(), role, notifier.ChangeTypeDelete); err != nil {
		h.logger.Errorw("failed to send role update", "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}
