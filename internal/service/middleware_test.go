package service

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"access-service/internal/notifier"
	"access-service/internal/rbac"
	"access-service/internal/repository"
	"access-service/internal/repository/model"
	"access-service/internal/security"
	"access-service/internal/session"
)

type testEnv struct {
	handler *handler
	repo    *repository.MockRepository
	notif   *notifier.MockNotifier
	router  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	mockCntrl := gomock.NewController(t)
	repo := repository.NewMockRepository(mockCntrl)
	notif := notifier.NewMockNotifier(mockCntrl)

	tracker := security.NewTracker(repo, 5, 15*time.Minute, nil)
	sessions := session.NewManager(repo, "test-secret", time.Hour)
	h := newHandler(zap.NewNop().Sugar(), repo, notif, tracker, sessions)

	return &testEnv{
		handler: h,
		repo:    repo,
		notif:   notif,
		router:  h.routes(),
	}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// tokenFor mints a token and primes the repository for the session load the
// next authenticated request performs.
func (e *testEnv) tokenFor(t *testing.T, user *model.User, role *model.Role) string {
	t.Helper()

	token, _, err := e.handler.sessions.Issue(user.Id)
	require.NoError(t, err)

	e.repo.EXPECT().GetUser(gomock.Any(), user.Id).Return(user, nil)
	e.repo.EXPECT().GetRole(gomock.Any(), user.RoleId).Return(role, nil)
	return token
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	return decodeJSON[errorResponse](t, rec)
}

func testUser(roleId string) *model.User {
	return &model.User{
		Id:       uuid.New(),
		Username: "tester",
		Email:    "tester@example.com",
		RoleId:   roleId,
		IsActive: true,
		CustomPermissions: model.CustomPermissions{
			Granted: []string{},
			Revoked: []string{},
		},
	}
}

func TestAuthenticate_MissingToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/roles/", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, codeAuthenticationRequired, decodeError(t, rec).Code)
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/roles/", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, codeAuthenticationRequired, decodeError(t, rec).Code)
}

// A user referencing a role that no longer exists is a consistency fault,
// surfaced as an internal error instead of a deny.
func TestAuthenticate_DanglingRoleIsInternalError(t *testing.T) {
	env := newTestEnv(t)

	user := testUser("ghost")
	token, _, err := env.handler.sessions.Issue(user.Id)
	require.NoError(t, err)
	env.repo.EXPECT().GetUser(gomock.Any(), user.Id).Return(user, nil)
	env.repo.EXPECT().GetRole(gomock.Any(), "ghost").Return(nil, mongo.ErrNoDocuments)

	rec := env.request(t, http.MethodGet, "/roles/", nil, token)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, codeInternal, decodeError(t, rec).Code)
}

func TestRequirePermissions_DenyNamesMissing(t *testing.T) {
	env := newTestEnv(t)

	user := testUser("viewer")
	role := &model.Role{Id: "viewer", Permissions: []string{rbac.PermUsersView}, IsActive: true}
	token := env.tokenFor(t, user, role)

	rec := env.request(t, http.MethodGet, "/roles/", nil, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	resp := decodeError(t, rec)
	assert.Equal(t, codePermissionDenied, resp.Code)
	assert.Equal(t, []string{rbac.PermRolesView}, resp.Missing)
}

func TestRequirePermissions_Admit(t *testing.T) {
	env := newTestEnv(t)

	user := testUser("viewer")
	role := &model.Role{Id: "viewer", Permissions: []string{rbac.PermRolesView}, IsActive: true}
	token := env.tokenFor(t, user, role)

	env.repo.EXPECT().GetAllRoles(gomock.Any()).Return([]*model.Role{role}, nil)

	rec := env.request(t, http.MethodGet, "/roles/", nil, token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// The superuser capability admits even though the role grants nothing.
func TestRequirePermissions_SuperuserBypass(t *testing.T) {
	env := newTestEnv(t)

	user := testUser(model.SuperuserRoleId)
	role := &model.Role{Id: model.SuperuserRoleId, Permissions: []string{}, IsSystem: true, IsActive: true, Superuser: true}
	token := env.tokenFor(t, user, role)

	env.repo.EXPECT().GetAllRoles(gomock.Any()).Return(nil, nil)

	rec := env.request(t, http.MethodGet, "/roles/", nil, token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// A revoked permission denies even when the role still carries it.
func TestRequirePermissions_RevokeWins(t *testing.T) {
	env := newTestEnv(t)

	user := testUser("viewer")
	user.CustomPermissions.Revoked = []string{rbac.PermRolesView}
	role := &model.Role{Id: "viewer", Permissions: []string{rbac.PermRolesView}, IsActive: true}
	token := env.tokenFor(t, user, role)

	rec := env.request(t, http.MethodGet, "/roles/", nil, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRoles(t *testing.T) {
	env := newTestEnv(t)

	user := testUser("editor")
	role := &model.Role{Id: "editor", Permissions: []string{}, IsActive: true}
	token := env.tokenFor(t, user, role)

	rec := env.request(t, http.MethodPut, "/users/"+uuid.NewString()+"/active",
		map[string]interface{}{"active": false}, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, codeRoleRejected, decodeError(t, rec).Code)
}

func TestRequireOwnershipOr_Owner(t *testing.T) {
	env := newTestEnv(t)

	user := testUser(model.DefaultRoleId)
	role := &model.Role{Id: model.DefaultRoleId, Permissions: []string{}, IsSystem: true, IsActive: true}
	token := env.tokenFor(t, user, role)

	env.repo.EXPECT().GetUser(gomock.Any(), user.Id).Return(user, nil)

	rec := env.request(t, http.MethodGet, "/users/"+user.Id.String(), nil, token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireOwnershipOr_StrangerDenied(t *testing.T) {
	env := newTestEnv(t)

	user := testUser(model.DefaultRoleId)
	role := &model.Role{Id: model.DefaultRoleId, Permissions: []string{}, IsSystem: true, IsActive: true}
	token := env.tokenFor(t, user, role)

	rec := env.request(t, http.MethodGet, "/users/"+uuid.NewString(), nil, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, codeNotOwner, decodeError(t, rec).Code)
}

func TestRequireOwnershipOr_OverridePermission(t *testing.T) {
	env := newTestEnv(t)

	caller := testUser("support")
	role := &model.Role{Id: "support", Permissions: []string{rbac.PermUsersView}, IsActive: true}
	token := env.tokenFor(t, caller, role)

	target := testUser(model.DefaultRoleId)
	env.repo.EXPECT().GetUser(gomock.Any(), target.Id).Return(target, nil)

	rec := env.request(t, http.MethodGet, "/users/"+target.Id.String(), nil, token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMyPermissions_ResolvedSet(t *testing.T) {
	env := newTestEnv(t)

	user := testUser("editor")
	user.CustomPermissions.Granted = []string{"post.delete"}
	user.CustomPermissions.Revoked = []string{"post.read"}
	role := &model.Role{Id: "editor", Permissions: []string{"post.create", "post.read"}, IsActive: true}
	token := env.tokenFor(t, user, role)

	rec := env.request(t, http.MethodGet, "/auth/me/permissions", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp myPermissionsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "editor", resp.Role)
	assert.False(t, resp.Superuser)
	assert.Equal(t, []string{"post.create", "post.delete"}, resp.Permissions)
}
