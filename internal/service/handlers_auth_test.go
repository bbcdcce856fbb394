package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"access-service/internal/rbac"
	"access-service/internal/repository/model"
	"access-service/internal/utils"
)

func hashedPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcryptHasher{}.Hash(password)
	require.NoError(t, err)
	return hash
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)

	user := testUser(model.DefaultRoleId)
	user.PasswordHash = hashedPassword(t, "hunter22hunter22")

	env.repo.EXPECT().GetUserByUsername(gomock.Any(), "tester").Return(user, nil)
	env.repo.EXPECT().ResetLoginAttempts(gomock.Any(), user.Id).Return(nil)

	rec := env.request(t, http.MethodPost, "/auth/login",
		loginRequest{Username: "tester", Password: "hunter22hunter22"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[loginResponse](t, rec)
	assert.NotEmpty(t, resp.Token)
	assert.True(t, resp.ExpiresAt.After(time.Now()))
}

func TestLogin_UnknownUsername(t *testing.T) {
	env := newTestEnv(t)

	env.repo.EXPECT().GetUserByUsername(gomock.Any(), "nobody").Return(nil, mongo.ErrNoDocuments)

	rec := env.request(t, http.MethodPost, "/auth/login",
		loginRequest{Username: "nobody", Password: "whatever1"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, codeInvalidCredentials, decodeError(t, rec).Code)
}

func TestLogin_DeactivatedAccount(t *testing.T) {
	env := newTestEnv(t)

	user := testUser(model.DefaultRoleId)
	user.PasswordHash = hashedPassword(t, "hunter22hunter22")
	user.IsActive = false

	env.repo.EXPECT().GetUserByUsername(gomock.Any(), "tester").Return(user, nil)

	rec := env.request(t, http.MethodPost, "/auth/login",
		loginRequest{Username: "tester", Password: "hunter22hunter22"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, codeAccountDeactivated, decodeError(t, rec).Code)
}

func TestLogin_WrongPasswordCountsAttempt(t *testing.T) {
	env := newTestEnv(t)

	user := testUser(model.DefaultRoleId)
	user.PasswordHash = hashedPassword(t, "hunter22hunter22")

	env.repo.EXPECT().GetUserByUsername(gomock.Any(), "tester").Return(user, nil)
	env.repo.EXPECT().IncrementLoginAttempts(gomock.Any(), user.Id, 5, gomock.Any()).
		Return(model.SecurityState{LoginAttempts: 1}, nil)

	rec := env.request(t, http.MethodPost, "/auth/login",
		loginRequest{Username: "tester", Password: "wrong-password"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	resp := decodeError(t, rec)
	assert.Equal(t, codeInvalidCredentials, resp.Code)
	assert.Nil(t, resp.LockedUntil)
}

// The failure that crosses the threshold reports the lock deadline in the
// same response.
func TestLogin_FinalFailureReportsLock(t *testing.T) {
	env := newTestEnv(t)

	user := testUser(model.DefaultRoleId)
	user.PasswordHash = hashedPassword(t, "hunter22hunter22")
	user.Security.LoginAttempts = 4

	lockedUntil := time.Now().Add(15 * time.Minute)
	env.repo.EXPECT().GetUserByUsername(gomock.Any(), "tester").Return(user, nil)
	env.repo.EXPECT().IncrementLoginAttempts(gomock.Any(), user.Id, 5, gomock.Any()).
		Return(model.SecurityState{LoginAttempts: 5, LockUntil: &lockedUntil}, nil)

	rec := env.request(t, http.MethodPost, "/auth/login",
		loginRequest{Username: "tester", Password: "wrong-password"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	resp := decodeError(t, rec)
	assert.Equal(t, codeAccountLocked, resp.Code)
	require.NotNil(t, resp.LockedUntil)
	assert.True(t, resp.LockedUntil.After(time.Now()))
}

func TestLogin_LockedAccountRejected(t *testing.T) {
	env := newTestEnv(t)

	user := testUser(model.DefaultRoleId)
	user.PasswordHash = hashedPassword(t, "hunter22hunter22")
	user.Security = model.SecurityState{
		LoginAttempts: 5,
		LockUntil:     utils.PointerOf(time.Now().Add(10 * time.Minute)),
	}

	// No attempt is recorded against a running lock, even with the right
	// password.
	env.repo.EXPECT().GetUserByUsername(gomock.Any(), "tester").Return(user, nil)

	rec := env.request(t, http.MethodPost, "/auth/login",
		loginRequest{Username: "tester", Password: "hunter22hunter22"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	resp := decodeError(t, rec)
	assert.Equal(t, codeAccountLocked, resp.Code)
	require.NotNil(t, resp.LockedUntil)
	assert.Equal(t, user.Security.LockUntil.Unix(), resp.LockedUntil.Unix())
}

func TestRegister_FirstUserBecomesSuperuser(t *testing.T) {
	env := newTestEnv(t)

	env.repo.EXPECT().CountUsers(gomock.Any()).Return(int64(0), nil)

	var created *model.User
	env.repo.EXPECT().CreateUser(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, user *model.User) { created = user }).
		Return(nil)
	env.notif.EXPECT().UserAccessUpdate(gomock.Any(), gomock.Any()).Return(nil)

	rec := env.request(t, http.MethodPost, "/users", registerRequest{
		Username: "founder",
		Email:    "founder@example.com",
		Password: "hunter22hunter22",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NotNil(t, created)
	assert.Equal(t, model.SuperuserRoleId, created.RoleId)
	assert.True(t, created.IsActive)
	assert.NotEqual(t, "hunter22hunter22", created.PasswordHash)
}

func TestRegister_LaterUsersGetDefaultRole(t *testing.T) {
	env := newTestEnv(t)

	env.repo.EXPECT().CountUsers(gomock.Any()).Return(int64(3), nil)

	var created *model.User
	env.repo.EXPECT().CreateUser(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, user *model.User) { created = user }).
		Return(nil)
	env.notif.EXPECT().UserAccessUpdate(gomock.Any(), gomock.Any()).Return(nil)

	rec := env.request(t, http.MethodPost, "/users", registerRequest{
		Username: "newcomer",
		Email:    "newcomer@example.com",
		Password: "hunter22hunter22",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NotNil(t, created)
	assert.Equal(t, model.DefaultRoleId, created.RoleId)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	env := newTestEnv(t)

	env.repo.EXPECT().CountUsers(gomock.Any()).Return(int64(3), nil)
	env.repo.EXPECT().CreateUser(gomock.Any(), gomock.Any()).
		Return(mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}})

	rec := env.request(t, http.MethodPost, "/users", registerRequest{
		Username: "taken",
		Email:    "taken@example.com",
		Password: "hunter22hunter22",
	}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, codeAlreadyExists, decodeError(t, rec).Code)
}

func TestRegister_AnonymousCannotPickRole(t *testing.T) {
	env := newTestEnv(t)

	env.repo.EXPECT().CountUsers(gomock.Any()).Return(int64(3), nil)

	rec := env.request(t, http.MethodPost, "/users", registerRequest{
		Username: "sneaky",
		Email:    "sneaky@example.com",
		Password: "hunter22hunter22",
		RoleId:   model.SuperuserRoleId,
	}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, codePermissionDenied, decodeError(t, rec).Code)
}

func TestRegister_UserEditorCanPickRole(t *testing.T) {
	env := newTestEnv(t)

	caller := testUser("manager")
	role := &model.Role{Id: "manager", Permissions: []string{rbac.PermUsersEdit}, IsActive: true}
	token := env.tokenFor(t, caller, role)

	env.repo.EXPECT().CountUsers(gomock.Any()).Return(int64(3), nil)
	env.repo.EXPECT().DoesRoleExist(gomock.Any(), "editor").Return(true, nil)

	var created *model.User
	env.repo.EXPECT().CreateUser(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, user *model.User) { created = user }).
		Return(nil)
	env.notif.EXPECT().UserAccessUpdate(gomock.Any(), gomock.Any()).Return(nil)

	rec := env.request(t, http.MethodPost, "/users", registerRequest{
		Username: "hired",
		Email:    "hired@example.com",
		Password: "hunter22hunter22",
		RoleId:   "editor",
	}, token)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NotNil(t, created)
	assert.Equal(t, "editor", created.RoleId)
}
