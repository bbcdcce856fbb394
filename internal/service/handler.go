package service

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"access-service/internal/notifier"
	"access-service/internal/rbac"
	"access-service/internal/repository"
	"access-service/internal/repository/model"
	"access-service/internal/security"
	"access-service/internal/session"
)

// PasswordHasher is the pluggable credential-hashing capability. The engine
// does not care which algorithm backs it.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

type bcryptHasher struct{}

func (bcryptHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func (bcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

type handler struct {
	logger   *zap.SugaredLogger
	repo     repository.Repository
	notif    notifier.Notifier
	tracker  *security.Tracker
	sessions *session.Manager
	hasher   PasswordHasher
	validate *validator.Validate
}

func newHandler(logger *zap.SugaredLogger, repo repository.Repository, notif notifier.Notifier,
	tracker *security.Tracker, sessions *session.Manager) *handler {

	return &handler{
		logger:   logger,
		repo:     repo,
		notif:    notif,
		tracker:  tracker,
		sessions: sessions,
		hasher:   bcryptHasher{},
		validate: validator.New(),
	}
}

func (h *handler) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(10, time.Minute))
		r.Post("/auth/login", h.handleLogin)
		r.With(h.authenticateOptional).Post("/users", h.handleRegister)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)

		r.Get("/auth/me/permissions", h.handleMyPermissions)

		r.Route("/permissions", func(r chi.Router) {
			view := h.requirePermissions(rbac.PermissionPolicy{Required: []string{rbac.PermPermissionsView}})
			edit := h.requirePermissions(rbac.PermissionPolicy{Required: []string{rbac.PermPermissionsEdit}})

			r.With(view).Get("/", h.handleListPermissions)
			r.With(edit).Post("/", h.handleCreatePermission)
			r.With(edit).Delete("/{id}", h.handleDeletePermission)
		})

		r.Route("/roles", func(r chi.Router) {
			view := h.requirePermissions(rbac.PermissionPolicy{Required: []string{rbac.PermRolesView}})
			edit := h.requirePermissions(rbac.PermissionPolicy{Required: []string{rbac.PermRolesEdit}})

			r.With(view).Get("/", h.handleListRoles)
			r.With(view).Get("/{id}", h.handleGetRole)
			r.With(edit).Post("/", h.handleCreateRole)
			r.With(edit).Patch("/{id}", h.handleUpdateRole)
			r.With(edit).Delete("/{id}", h.handleDeleteRole)
		})

		r.Route("/users", func(r chi.Router) {
			edit := h.requirePermissions(rbac.PermissionPolicy{Required: []string{rbac.PermUsersEdit}})

			r.With(h.requireOwnershipOr("id", selfOwnership, rbac.PermUsersView)).Get("/{id}", h.handleGetUser)
			r.With(edit).Put("/{id}/role", h.handleSetUserRole)
			r.With(edit).Post("/{id}/permissions/grant", h.handleGrantPermission)
			r.With(edit).Post("/{id}/permissions/revoke", h.handleRevokePermission)
			r.With(h.requireRoles(model.SuperuserRoleId)).Put("/{id}/active", h.handleSetUserActive)
		})
	})

	return r
}

// Error codes surfaced to clients.
const (
	codeAuthenticationRequired = "authentication_required"
	codeInvalidCredentials     = "invalid_credentials"
	codeAccountLocked          = "account_locked"
	codeAccountDeactivated     = "account_deactivated"
	codePermissionDenied       = "permission_denied"
	codeRoleRejected           = "role_rejected"
	codeNotOwner               = "not_owner"
	codeNotFound               = "not_found"
	codeAlreadyExists          = "already_exists"
	codeInUse                  = "in_use"
	codeValidationFailed       = "validation_failed"
	codeInternal               = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Missing names the permissions absent from the caller's effective set.
	Missing []string `json:"missingPermissions,omitempty"`
	// LockedUntil reports a running or freshly triggered account lock.
	LockedUntil *time.Time `json:"lockedUntil,omitempty"`
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Errorw("failed to encode response", "error", err)
	}
}

func (h *handler) writeError(w http.ResponseWriter, status int, code string, message string) {
	h.writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// decodeAndValidate parses the JSON body into dst and runs struct
// validation, writing a 400 on failure.
func (h *handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, codeValidationFailed, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return false
	}
	return true
}
