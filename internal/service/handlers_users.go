package service

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	"access-service/internal/notifier"
	"access-service/internal/repository"
)

func (h *handler) userIdParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userId, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, codeValidationFailed, "invalid user id")
		return uuid.UUID{}, false
	}
	return userId, true
}

func (h *handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userId, ok := h.userIdParam(w, r)
	if !ok {
		return
	}

	user, err := h.repo.GetUser(r.Context(), userId)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			h.writeError(w, http.StatusNotFound, codeNotFound, "user not found")
			return
		}
		h.logger.Errorw("failed to load user", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	h.writeJSON(w, http.StatusOK, user)
}

type setUserRoleRequest struct {
	RoleId string `json:"roleId" validate:"required"`
}

func (h *handler) handleSetUserRole(w http.ResponseWriter, r *http.Request) {
	userId, ok := h.userIdParam(w, r)
	if !ok {
		return
	}

	var req setUserRoleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	exists, err := h.repo.DoesRoleExist(r.Context(), req.RoleId)
	if err != nil {
		h.logger.Errorw("failed to check role", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}
	if !exists {
		h.writeError(w, http.StatusNotFound, codeNotFound, "role not found")
		return
	}

	if err := h.repo.SetUserRole(r.Context(), userId, req.RoleId); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			h.writeError(w, http.StatusNotFound, codeNotFound, "user not found")
			return
		}
		h.logger.Errorw("failed to set user role", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	if err := h.notif.UserAccessUpdate(r.Context(), notifier.AccessChange{
		UserId:     userId.String(),
		RoleId:     req.RoleId,
		ChangeType: notifier.ChangeTypeModify,
	}); err != nil {
		h.logger.Errorw("failed to send user access update", "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

type overrideRequest struct {
	PermissionId string `json:"permissionId" validate:"required"`
}

// handleGrantPermission adds a per-user grant on top of the role. The
// complementary revoke entry, if any, is cleared in the same storage update.
func (h *handler) handleGrantPermission(w http.ResponseWriter, r *http.Request) {
	h.handleOverride(w, r, true)
}

// handleRevokePermission subtracts a permission from the user's effective
// set regardless of role membership or prior grants.
func (h *handler) handleRevokePermission(w http.ResponseWriter, r *http.Request) {
	h.handleOverride(w, r, false)
}

func (h *handler) handleOverride(w http.ResponseWriter, r *http.Request, grant bool) {
	userId, ok := h.userIdParam(w, r)
	if !ok {
		return
	}

	var req overrideRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	// Overrides may only reference catalogued permissions.
	if _, err := h.repo.GetPermission(r.Context(), req.PermissionId); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			h.writeError(w, http.StatusNotFound, codeNotFound, "permission not found")
			return
		}
		h.logger.Errorw("failed to load permission", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	var err error
	if grant {
		err = h.repo.GrantPermission(r.Context(), userId, req.PermissionId)
	} else {
		err = h.repo.RevokePermission(r.Context(), userId, req.PermissionId)
	}
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			h.writeError(w, http.StatusNotFound, codeNotFound, "user not found")
		case errors.Is(err, repository.AlreadyGrantedError):
			h.writeError(w, http.StatusConflict, codeAlreadyExists, "permission already granted")
		case errors.Is(err, repository.AlreadyRevokedError):
			h.writeError(w, http.StatusConflict, codeAlreadyExists, "permission already revoked")
		default:
			h.logger.Errorw("failed to update permission override", "error", err)
			h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		}
		return
	}

	change := notifier.AccessChange{UserId: userId.String(), ChangeType: notifier.ChangeTypeModify}
	if grant {
		change.Granted = req.PermissionId
	} else {
		change.Revoked = req.PermissionId
	}
	if err := h.notif.UserAccessUpdate(r.Context(), change); err != nil {
		h.logger.Errorw("failed to send user access update", "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

type setUserActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (h *handler) handleSetUserActive(w http.ResponseWriter, r *http.Request) {
	userId, ok := h.userIdParam(w, r)
	if !ok {
		return
	}

	var req setUserActiveRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.repo.SetUserActive(r.Context(), userId, *req.Active); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			h.writeError(w, http.StatusNotFound, codeNotFound, "user not found")
			return
		}
		h.logger.Errorw("failed to set user active flag", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	if err := h.notif.UserAccessUpdate(r.Context(), notifier.AccessChange{
		UserId:     userId.String(),
		ChangeType: notifier.ChangeTypeModify,
	}); err != nil {
		h.logger.Errorw("failed to send user access update", "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}
