package session

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"access-service/internal/repository"
	"access-service/internal/repository/model"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(repo repository.Repository) *Manager {
	m := NewManager(repo, "test-secret", time.Hour)
	m.now = func() time.Time { return testNow }
	return m
}

func activeUser() *model.User {
	return &model.User{
		Id:       uuid.New(),
		Username: "tester",
		RoleId:   "editor",
		IsActive: true,
	}
}

func TestManager_IssueAndValidate(t *testing.T) {
	mockCntrl := gomock.NewController(t)
	mockRepo := repository.NewMockRepository(mockCntrl)
	manager := newTestManager(mockRepo)

	user := activeUser()
	role := &model.Role{Id: "editor", Permissions: []string{"post.read"}, IsActive: true}

	token, expiresAt, err := manager.Issue(user.Id)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(time.Hour), expiresAt)

	mockRepo.EXPECT().GetUser(context.Background(), user.Id).Return(user, nil)
	mockRepo.EXPECT().GetRole(context.Background(), "editor").Return(role, nil)

	principal, err := manager.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, user, principal.User)
	assert.Equal(t, role, principal.Role)
}

func TestManager_ExpiredToken(t *testing.T) {
	mockCntrl := gomock.NewController(t)
	mockRepo := repository.NewMockRepository(mockCntrl)
	manager := newTestManager(mockRepo)

	user := activeUser()
	token, _, err := manager.Issue(user.Id)
	require.NoError(t, err)

	manager.now = func() time.Time { return testNow.Add(2 * time.Hour) }

	_, err = manager.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestManager_InvalidToken(t *testing.T) {
	mockCntrl := gomock.NewController(t)
	manager := newTestManager(repository.NewMockRepository(mockCntrl))

	_, err := manager.Validate(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// Token signed with a different secret.
	other := NewManager(repository.NewMockRepository(mockCntrl), "other-secret", time.Hour)
	other.now = func() time.Time { return testNow }
	token, _, err := other.Issue(uuid.New())
	require.NoError(t, err)

	_, err = manager.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestManager_PrincipalNotFound(t *testing.T) {
	mockCntrl := gomock.NewController(t)
	mockRepo := repository.NewMockRepository(mockCntrl)
	manager := newTestManager(mockRepo)

	userId := uuid.New()
	token, _, err := manager.Issue(userId)
	require.NoError(t, err)

	mockRepo.EXPECT().GetUser(context.Background(), userId).Return(nil, mongo.ErrNoDocuments)

	_, err = manager.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
}

// Deactivated accounts are stopped here: the role is never loaded, so the
// resolver cannot run for them.
func TestManager_DeactivatedAccount(t *testing.T) {
	mockCntrl := gomock.NewController(t)
	mockRepo := repository.NewMockRepository(mockCntrl)
	manager := newTestManager(mockRepo)

	user := activeUser()
	user.IsActive = false
	token, _, err := manager.Issue(user.Id)
	require.NoError(t, err)

	// No GetRole expectation: loading the role here would fail the test.
	mockRepo.EXPECT().GetUser(context.Background(), user.Id).Return(user, nil)

	_, err = manager.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrAccountDeactivated)
}

func TestManager_LockedAccount(t *testing.T) {
	mockCntrl := gomock.NewController(t)
	mockRepo := repository.NewMockRepository(mockCntrl)
	manager := newTestManager(mockRepo)

	user := activeUser()
	until := testNow.Add(10 * time.Minute)
	user.Security = model.SecurityState{LoginAttempts: 5, LockUntil: &until}
	token, _, err := manager.Issue(user.Id)
	require.NoError(t, err)

	mockRepo.EXPECT().GetUser(context.Background(), user.Id).Return(user, nil)

	_, err = manager.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrAccountLocked)
}

// A user whose role no longer exists is a data-integrity fault, not an
// authentication failure.
func TestManager_DanglingRole(t *testing.T) {
	mockCntrl := gomock.NewController(t)
	mockRepo := repository.NewMockRepository(mockCntrl)
	manager := newTestManager(mockRepo)

	user := activeUser()
	token, _, err := manager.Issue(user.Id)
	require.NoError(t, err)

	mockRepo.EXPECT().GetUser(context.Background(), user.Id).Return(user, nil)
	mockRepo.EXPECT().GetRole(context.Background(), "editor").Return(nil, mongo.ErrNoDocuments)

	_, err = manager.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrDanglingRole)
	assert.False(t, IsAuthenticationError(err))
}

func TestIsAuthenticationError(t *testing.T) {
	for _, err := range []error{ErrTokenExpired, ErrTokenInvalid, ErrPrincipalNotFound, ErrAccountDeactivated, ErrAccountLocked} {
		assert.True(t, IsAuthenticationError(err))
	}
	assert.False(t, IsAuthenticationError(ErrDanglingRole))
	assert.False(t, IsAuthenticationError(assert.AnError))
}
