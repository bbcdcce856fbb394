package service

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"

	"access-service/internal/notifier"
	"access-service/internal/repository/model"
)

func (h *handler) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	permissions, err := h.repo.GetPermissions(r.Context())
	if err != nil {
		h.logger.Errorw("failed to list permissions", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	if permissions == nil {
		permissions = []*model.Permission{}
	}
	h.writeJSON(w, http.StatusOK, permissions)
}

type createPermissionRequest struct {
	Id          string  `json:"id" validate:"required"`
	Description *string `json:"description,omitempty"`
	IsSystem    bool    `json:"isSystem"`
}

func (h *handler) handleCreatePermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := model.ValidatePermissionId(req.Id); err != nil {
		h.writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	permission := &model.Permission{
		Id:          req.Id,
		Description: req.Description,
		IsSystem:    req.IsSystem,
	}

	if err := h.repo.CreatePermission(r.Context(), permission); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			h.writeError(w, http.StatusConflict, codeAlreadyExists, "permission already exists")
			return
		}
		h.logger.Errorw("failed to create permission", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	if err := h.notif.PermissionUpdate(r.Context(), permission, notifier.ChangeTypeCreate); err != nil {
		h.logger.Errorw("failed to send permission update", "error", err)
	}

	h.writeJSON(w, http.StatusCreated, permission)
}

// handleDeletePermission refuses to delete a permission while any role or
// user override still references it.
func (h *handler) handleDeletePermission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	permission, err := h.repo.GetPermission(r.Context(), id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			h.writeError(w, http.StatusNotFound, codeNotFound, "permission not found")
			return
		}
		h.logger.Errorw("failed to load permission", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	if permission.IsSystem && !PrincipalFromContext(r.Context()).Superuser() {
		h.writeError(w, http.StatusForbidden, codePermissionDenied, "system permissions can only be deleted by a superuser")
		return
	}

	referenced, err := h.repo.IsPermissionReferenced(r.Context(), id)
	if err != nil {
		h.logger.Errorw("failed to check permission references", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}
	if referenced {
		h.writeError(w, http.StatusConflict, codeInUse, "permission is still referenced by a role or user")
		return
	}

	if err := h.repo.DeletePermission(r.Context(), id); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			h.writeError(w, http.StatusNotFound, codeNotFound, "permission not found")
			return
		}
		h.logger.Errorw("failed to delete permission", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	if err := h.notif.PermissionUpdate(r.Context(), permission, notifier.ChangeTypeDelete); err != nil {
		h.logger.Errorw("failed to send permission update", "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}
