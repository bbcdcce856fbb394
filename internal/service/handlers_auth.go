package service

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	"access-service/internal/notifier"
	"access-service/internal/rbac"
	"access-service/internal/repository/model"
	"access-service/internal/security"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.repo.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Unknown usernames get the same answer as bad passwords.
			h.writeError(w, http.StatusUnauthorized, codeInvalidCredentials, "invalid credentials")
			return
		}
		h.logger.Errorw("failed to load user for login", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	if !user.IsActive {
		h.writeError(w, http.StatusUnauthorized, codeAccountDeactivated, "account is deactivated")
		return
	}

	if h.tracker.IsLocked(user) {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{
			Code:        codeAccountLocked,
			Message:     "account is temporarily locked",
			LockedUntil: user.Security.LockUntil,
		})
		return
	}

	if err := h.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		state, err := h.tracker.RecordFailure(r.Context(), user)
		if err != nil && !errors.Is(err, security.ErrAccountLocked) {
			h.logger.Errorw("failed to record login failure", "error", err, "user", user.Id)
			h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
			return
		}

		// A lock triggered by this attempt is reported in this response.
		resp := errorResponse{Code: codeInvalidCredentials, Message: "invalid credentials"}
		if state.LockUntil != nil {
			resp.Code = codeAccountLocked
			resp.Message = "account is temporarily locked"
			resp.LockedUntil = state.LockUntil
		}
		h.writeJSON(w, http.StatusUnauthorized, resp)
		return
	}

	if _, err := h.tracker.RecordSuccess(r.Context(), user); err != nil {
		h.logger.Errorw("failed to reset login attempts", "error", err, "user", user.Id)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	token, expiresAt, err := h.sessions.Issue(user.Id)
	if err != nil {
		h.logger.Errorw("failed to issue token", "error", err, "user", user.Id)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	h.writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

type myPermissionsResponse struct {
	Role        string   `json:"role"`
	Superuser   bool     `json:"superuser"`
	Permissions []string `json:"permissions"`
}

// handleMyPermissions returns the caller's resolved effective set. The set
// is computed fresh for this request; role edits are visible immediately.
func (h *handler) handleMyPermissions(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())

	effective, err := rbac.Resolve(principal)
	if err != nil {
		h.logger.Errorw("failed to resolve permissions", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	h.writeJSON(w, http.StatusOK, myPermissionsResponse{
		Role:        principal.Role.Id,
		Superuser:   principal.Superuser(),
		Permissions: effective.Sorted(),
	})
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	// RoleId is honoured only for callers allowed to edit users; everyone
	// else gets the default assignment.
	RoleId string `json:"roleId,omitempty"`
}

func (h *handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	count, err := h.repo.CountUsers(r.Context())
	if err != nil {
		h.logger.Errorw("failed to count users", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	// The first user becomes the superuser; everyone else starts default.
	// Count-then-create is not serialized: two registrations racing an empty
	// users collection could both win the bootstrap. The window exists only
	// before the first account and the outcome is correctable via the role
	// endpoints, so it is left unguarded.
	roleId := model.DefaultRoleId
	if count == 0 {
		roleId = model.SuperuserRoleId
	}

	if req.RoleId != "" && req.RoleId != roleId {
		principal := PrincipalFromContext(r.Context())
		allowed := false
		if principal != nil {
			allowed, err = rbac.HasPermission(principal, rbac.PermUsersEdit)
			if err != nil {
				h.logger.Errorw("failed to check permission", "error", err)
				h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
				return
			}
			allowed = allowed || principal.Superuser()
		}
		if !allowed {
			h.writeError(w, http.StatusForbidden, codePermissionDenied, "not allowed to assign roles")
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
		roleId = req.RoleId
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		h.logger.Errorw("failed to hash password", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	user := &model.User{
		Id:           uuid.New(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		RoleId:       roleId,
		IsActive:     true,
		CustomPermissions: model.CustomPermissions{
			Granted: []string{},
			Revoked: []string{},
		},
	}

	if err := h.repo.CreateUser(r.Context(), user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			h.writeError(w, http.StatusConflict, codeAlreadyExists, "username already taken")
			return
		}
		h.logger.Errorw("failed to create user", "error", err)
		h.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	if err := h.notif.UserAccessUpdate(r.Context(), notifier.AccessChange{
		UserId:     user.Id.String(),
		RoleId:     roleId,
		ChangeType: notifier.ChangeTypeCreate,
	}); err != nil {
		h.logger.Errorw("failed to send user access update", "error", err)
	}

	h.writeJSON(w, http.StatusCreated, user)
}
