package users

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-admin/meridian-admin/internal/permissions"
	"github.com/meridian-admin/meridian-admin/internal/shared"
)

type stubRepo struct {
	users      map[int64]User
	profiles   map[int64]Profile
	roles      map[int64][]RoleSummary
	superRoles map[int64]bool
	nextID     int64
}

func newStubRepo(users ...User) *stubRepo {
	repo := &stubRepo{
		users:      make(map[int64]User),
		profiles:   make(map[int64]Profile),
		roles:      make(map[int64][]RoleSummary),
		superRoles: make(map[int64]bool),
		nextID:     1,
	}
	for _, user := range users {
		repo.users[user.ID] = user
		if user.ID >= repo.nextID {
			repo.nextID = user.ID + 1
		}
	}
	return repo
}

func (r *stubRepo) List(_ context.Context, _ ListFilters, limit, offset int) ([]User, int, error) {
	all := make([]User, 0, len(r.users))
	for id := int64(1); id < r.nextID; id++ {
		if user, ok := r.users[id]; ok {
			all = append(all, user)
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *stubRepo) GetByID(_ context.Context, id int64) (User, error) {
	user, ok := r.users[id]
	if !ok {
		return User{}, fmt.Errorf("%w: user %d", shared.ErrNotFound, id)
	}
	return user, nil
}

func (r *stubRepo) GetByUsername(_ context.Context, username string) (User, error) {
	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return User{}, fmt.Errorf("%w: user %q", shared.ErrNotFound, username)
}

func (r *stubRepo) Create(_ context.Context, username, passwordHash string, enable bool, roleIDs []int64) (User, error) {
	for _, user := range r.users {
		if user.Username == username {
			return User{}, fmt.Errorf("%w: username taken", shared.ErrConflict)
		}
	}
	user := User{ID: r.nextID, Username: username, PasswordHash: passwordHash, Enable: enable}
	r.nextID++
	r.users[user.ID] = user
	r.profiles[user.ID] = Profile{ID: user.ID, UserID: user.ID, Avatar: DefaultAvatar}
	roles := make([]RoleSummary, 0, len(roleIDs))
	for _, id := range roleIDs {
		roles = append(roles, RoleSummary{ID: id, Code: fmt.Sprintf("R%d", id), Name: fmt.Sprintf("Role %d", id), Enable: true})
	}
	r.roles[user.ID] = roles
	return user, nil
}

func (r *stubRepo) Update(_ context.Context, user User) (User, error) {
	if _, ok := r.users[user.ID]; !ok {
		return User{}, fmt.Errorf("%w: user %d", shared.ErrNotFound, user.ID)
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *stubRepo) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	user, ok := r.users[id]
	if !ok {
		return fmt.Errorf("%w: user %d", shared.ErrNotFound, id)
	}
	user.PasswordHash = passwordHash
	r.users[id] = user
	return nil
}

func (r *stubRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.users[id]; !ok {
		return fmt.Errorf("%w: user %d", shared.ErrNotFound, id)
	}
	delete(r.users, id)
	delete(r.profiles, id)
	delete(r.roles, id)
	return nil
}

func (r *stubRepo) GetProfile(_ context.Context, userID int64) (Profile, error) {
	profile, ok := r.profiles[userID]
	if !ok {
		return Profile{}, fmt.Errorf("%w: profile for user %d", shared.ErrNotFound, userID)
	}
	return profile, nil
}

func (r *stubRepo) UpsertProfile(_ context.Context, p Profile) (Profile, error) {
	r.profiles[p.UserID] = p
	return p, nil
}

func (r *stubRepo) ListRoles(_ context.Context, userID int64) ([]RoleSummary, error) {
	return r.roles[userID], nil
}

func (r *stubRepo) IsSuperuserRole(_ context.Context, roleID int64) (bool, error) {
	return r.superRoles[roleID], nil
}

func (r *stubRepo) ReplaceRoles(_ context.Context, userID int64, roleIDs []int64) error {
	roles := make([]RoleSummary, 0, len(roleIDs))
	for _, id := range roleIDs {
		roles = append(roles, RoleSummary{ID: id, Enable: true})
	}
	r.roles[userID] = roles
	return nil
}

type stubPerms struct {
	summaries map[int64][]permissions.Summary
}

func (p stubPerms) PermissionSummaries(_ context.Context, userID int64) ([]permissions.Summary, error) {
	return p.summaries[userID], nil
}

func fixtureService(users ...User) (*Service, *stubRepo) {
	repo := newStubRepo(users...)
	return NewService(repo, stubPerms{summaries: map[int64][]permissions.Summary{}}), repo
}

func TestCreateHashesPassword(t *testing.T) {
	svc, repo := fixtureService()

	user, err := svc.Create(context.Background(), CreateInput{Username: " alice ", Password: "s3cret", Enable: true})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	stored := repo.users[user.ID]
	assert.NotEqual(t, "s3cret", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("s3cret")))
}

func TestCreateRequiresUsernameAndPassword(t *testing.T) {
	svc, _ := fixtureService()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Password: "s3cret"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.Create(ctx, CreateInput{Username: "alice"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestCreateDuplicateUsernameConflicts(t *testing.T) {
	svc, _ := fixtureService(User{ID: 1, Username: "alice", Enable: true})

	_, err := svc.Create(context.Background(), CreateInput{Username: "alice", Password: "s3cret"})
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestFindPrincipalCarriesEnableFlag(t *testing.T) {
	svc, _ := fixtureService(
		User{ID: 1, Username: "alice", Enable: true},
		User{ID: 2, Username: "bob", Enable: false},
	)
	ctx := context.Background()

	principal, err := svc.FindPrincipal(ctx, 1)
	require.NoError(t, err)
	assert.True(t, principal.Enabled)

	principal, err = svc.FindPrincipal(ctx, 2)
	require.NoError(t, err)
	assert.False(t, principal.Enabled)

	_, err = svc.FindPrincipal(ctx, 99)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDetailPrefersSuperuserRoleAsCurrent(t *testing.T) {
	svc, repo := fixtureService(User{ID: 1, Username: "alice", Enable: true})
	repo.roles[1] = []RoleSummary{
		{ID: 10, Code: "EDITOR", Name: "Editor", Enable: true},
		{ID: 11, Code: shared.RoleSuperAdmin, Name: "Super Admin", Enable: true},
	}
	repo.superRoles[11] = true

	detail, err := svc.Detail(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, detail.CurrentRole)
	assert.Equal(t, int64(11), detail.CurrentRole.ID)
	assert.Equal(t, []string{"Editor", "Super Admin"}, detail.RoleNames)
}

func TestDetailFallsBackToFirstRole(t *testing.T) {
	svc, repo := fixtureService(User{ID: 1, Username: "alice", Enable: true})
	repo.roles[1] = []RoleSummary{
		{ID: 10, Code: "EDITOR", Name: "Editor", Enable: true},
		{ID: 12, Code: "VIEWER", Name: "Viewer", Enable: true},
	}

	detail, err := svc.Detail(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, detail.CurrentRole)
	assert.Equal(t, int64(10), detail.CurrentRole.ID)
}

func TestDetailWithoutRolesOrProfile(t *testing.T) {
	svc, _ := fixtureService(User{ID: 1, Username: "alice", Enable: true})

	detail, err := svc.Detail(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, detail.CurrentRole)
	assert.Nil(t, detail.Profile)
	assert.NotNil(t, detail.Roles)
	assert.Empty(t, detail.Roles)
	assert.NotNil(t, detail.Permissions)
}

func TestUpdateProfileMergesFields(t *testing.T) {
	svc, repo := fixtureService(User{ID: 1, Username: "alice", Enable: true})
	email := "old@example.com"
	repo.profiles[1] = Profile{ID: 1, UserID: 1, Avatar: DefaultAvatar, Email: &email}

	newEmail := "new@example.com"
	updated, err := svc.UpdateProfile(context.Background(), 1, ProfileInput{Email: &newEmail})
	require.NoError(t, err)
	require.NotNil(t, updated.Email)
	assert.Equal(t, "new@example.com", *updated.Email)
	assert.Equal(t, DefaultAvatar, updated.Avatar)
}

func TestUpdateProfileCreatesWhenMissing(t *testing.T) {
	svc, _ := fixtureService(User{ID: 1, Username: "alice", Enable: true})

	nick := "ally"
	updated, err := svc.UpdateProfile(context.Background(), 1, ProfileInput{NickName: &nick})
	require.NoError(t, err)
	assert.Equal(t, DefaultAvatar, updated.Avatar)
	require.NotNil(t, updated.NickName)
	assert.Equal(t, "ally", *updated.NickName)
}

func TestResetPasswordRehashes(t *testing.T) {
	svc, repo := fixtureService(User{ID: 1, Username: "alice", Enable: true, PasswordHash: "old"})

	require.NoError(t, svc.ResetPassword(context.Background(), 1, "newpass"))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users[1].PasswordHash), []byte("newpass")))

	assert.ErrorIs(t, svc.ResetPassword(context.Background(), 1, ""), shared.ErrInvalidInput)
}

func TestReplaceRolesDedupes(t *testing.T) {
	svc, repo := fixtureService(User{ID: 1, Username: "alice", Enable: true})

	require.NoError(t, svc.ReplaceRoles(context.Background(), 1, []int64{2, 1, 2}))
	require.Len(t, repo.roles[1], 2)
	assert.Equal(t, int64(2), repo.roles[1][0].ID)
	assert.Equal(t, int64(1), repo.roles[1][1].ID)

	assert.ErrorIs(t, svc.ReplaceRoles(context.Background(), 99, []int64{1}), shared.ErrNotFound)
}

func TestListDetailedAnnotatesRolesAndProfile(t *testing.T) {
	svc, repo := fixtureService(
		User{ID: 1, Username: "alice", Enable: true},
		User{ID: 2, Username: "bob", Enable: true},
	)
	repo.roles[1] = []RoleSummary{{ID: 10, Code: "EDITOR", Name: "Editor", Enable: true}}
	avatar := "https://static.meridian.local/avatars/alice.png"
	repo.profiles[1] = Profile{ID: 1, UserID: 1, Avatar: avatar}

	detailed, pagination, err := svc.ListDetailed(context.Background(), ListFilters{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, pagination.Total)
	require.Len(t, detailed, 2)

	assert.Equal(t, avatar, detailed[0].Avatar)
	require.Len(t, detailed[0].Roles, 1)

	// No profile falls back to the default avatar; no roles to an empty set.
	assert.Equal(t, DefaultAvatar, detailed[1].Avatar)
	assert.NotNil(t, detailed[1].Roles)
	assert.Empty(t, detailed[1].Roles)
}
