package roles

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-admin/meridian-admin/internal/permissions"
	"github.com/meridian-admin/meridian-admin/internal/shared"
)

type stubRepo struct {
	roles     map[int64]Role
	grants    map[int64][]int64
	members   map[int64][]Member
	nextID    int64
	userCount int
	permCount int
}

func newStubRepo(roles ...Role) *stubRepo {
	repo := &stubRepo{
		roles:   make(map[int64]Role),
		grants:  make(map[int64][]int64),
		members: make(map[int64][]Member),
		nextID:  1,
	}
	for _, role := range roles {
		repo.roles[role.ID] = role
		if role.ID >= repo.nextID {
			repo.nextID = role.ID + 1
		}
	}
	return repo
}

func (r *stubRepo) List(_ context.Context, _ ListFilters, limit, offset int) ([]Role, int, error) {
	all := make([]Role, 0, len(r.roles))
	for id := int64(1); id < r.nextID; id++ {
		if role, ok := r.roles[id]; ok {
			all = append(all, role)
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

func (r *stubRepo) GetByID(_ context.Context, id int64) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("%w: role %d", shared.ErrNotFound, id)
	}
	return role, nil
}

func (r *stubRepo) Create(_ context.Context, role Role) (Role, error) {
	for _, existing := range r.roles {
		if existing.Code == role.Code || existing.Name == role.Name {
			return Role{}, fmt.Errorf("%w: role exists", shared.ErrConflict)
		}
	}
	role.ID = r.nextID
	r.nextID++
	r.roles[role.ID] = role
	return role, nil
}

func (r *stubRepo) Update(_ context.Context, role Role) (Role, error) {
	if _, ok := r.roles[role.ID]; !ok {
		return Role{}, fmt.Errorf("%w: role %d", shared.ErrNotFound, role.ID)
	}
	r.roles[role.ID] = role
	return role, nil
}

func (r *stubRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.roles[id]; !ok {
		return fmt.Errorf("%w: role %d", shared.ErrNotFound, id)
	}
	delete(r.roles, id)
	delete(r.grants, id)
	delete(r.members, id)
	return nil
}

func (r *stubRepo) ListPermissions(_ context.Context, roleID int64) ([]permissions.Summary, error) {
	out := make([]permissions.Summary, 0, len(r.grants[roleID]))
	for _, id := range r.grants[roleID] {
		out = append(out, permissions.Summary{ID: id})
	}
	return out, nil
}

func (r *stubRepo) ListPermissionIDs(_ context.Context, roleIDs []int64) (map[int64][]int64, error) {
	out := make(map[int64][]int64, len(roleIDs))
	for _, id := range roleIDs {
		if granted, ok := r.grants[id]; ok {
			out[id] = granted
		}
	}
	return out, nil
}

func (r *stubRepo) ReplacePermissions(_ context.Context, roleID int64, permissionIDs []int64) error {
	r.grants[roleID] = permissionIDs
	return nil
}

func (r *stubRepo) AddPermissions(_ context.Context, roleID int64, permissionIDs []int64) error {
	seen := make(map[int64]struct{})
	for _, id := range r.grants[roleID] {
		seen[id] = struct{}{}
	}
	for _, id := range permissionIDs {
		if _, ok := seen[id]; !ok {
			r.grants[roleID] = append(r.grants[roleID], id)
		}
	}
	return nil
}

func (r *stubRepo) ListMembers(_ context.Context, roleID int64) ([]Member, error) {
	return r.members[roleID], nil
}

func (r *stubRepo) CountRoles(context.Context) (int, int, error) {
	active := 0
	for _, role := range r.roles {
		if role.Enable {
			active++
		}
	}
	return len(r.roles), active, nil
}

func (r *stubRepo) CountUsers(context.Context) (int, error)       { return r.userCount, nil }
func (r *stubRepo) CountPermissions(context.Context) (int, error) { return r.permCount, nil }

func TestCreateTrimsAndValidates(t *testing.T) {
	svc := NewService(newStubRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Code: "  ", Name: "Editor"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	role, err := svc.Create(ctx, CreateInput{Code: " EDITOR ", Name: " Editor ", Enable: true})
	require.NoError(t, err)
	assert.Equal(t, "EDITOR", role.Code)
	assert.Equal(t, "Editor", role.Name)
}

func TestCreateDuplicateCodeConflicts(t *testing.T) {
	repo := newStubRepo(Role{ID: 1, Code: "EDITOR", Name: "Editor", Enable: true})
	svc := NewService(repo)

	_, err := svc.Create(context.Background(), CreateInput{Code: "EDITOR", Name: "Other"})
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestUpdateCannotGrantSuperuser(t *testing.T) {
	repo := newStubRepo(Role{ID: 1, Code: "EDITOR", Name: "Editor", Enable: true})
	svc := NewService(repo)

	updated, err := svc.Update(context.Background(), 1, UpdateInput{Name: strp("Publisher")})
	require.NoError(t, err)
	assert.Equal(t, "Publisher", updated.Name)
	assert.False(t, updated.IsSuperuser)
}

func TestReplacePermissionsDedupesAndChecksRole(t *testing.T) {
	repo := newStubRepo(Role{ID: 1, Code: "EDITOR", Name: "Editor", Enable: true})
	svc := NewService(repo)
	ctx := context.Background()

	err := svc.ReplacePermissions(ctx, 99, []int64{1})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, svc.ReplacePermissions(ctx, 1, []int64{3, 1, 3, 2, 1}))
	assert.Equal(t, []int64{3, 1, 2}, repo.grants[1])

	// Replace is a swap, not a merge.
	require.NoError(t, svc.ReplacePermissions(ctx, 1, []int64{5}))
	assert.Equal(t, []int64{5}, repo.grants[1])
}

func TestAddPermissionsMerges(t *testing.T) {
	repo := newStubRepo(Role{ID: 1, Code: "EDITOR", Name: "Editor", Enable: true})
	svc := NewService(repo)
	ctx := context.Background()

	require.NoError(t, svc.ReplacePermissions(ctx, 1, []int64{1, 2}))
	require.NoError(t, svc.AddPermissions(ctx, 1, []int64{2, 3}))
	assert.Equal(t, []int64{1, 2, 3}, repo.grants[1])
}

func TestListWithPermissionIDsAnnotatesEachRole(t *testing.T) {
	repo := newStubRepo(
		Role{ID: 1, Code: "EDITOR", Name: "Editor", Enable: true},
		Role{ID: 2, Code: "VIEWER", Name: "Viewer", Enable: true},
	)
	repo.grants[1] = []int64{10, 11}
	svc := NewService(repo)

	annotated, pagination, err := svc.ListWithPermissionIDs(context.Background(), ListFilters{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, pagination.Total)
	require.Len(t, annotated, 2)
	assert.Equal(t, []int64{10, 11}, annotated[0].PermissionIDs)
	// A role with no grants reports an empty set, not null.
	assert.NotNil(t, annotated[1].PermissionIDs)
	assert.Empty(t, annotated[1].PermissionIDs)
}

func TestStatsAggregatesCounts(t *testing.T) {
	repo := newStubRepo(
		Role{ID: 1, Code: "EDITOR", Name: "Editor", Enable: true},
		Role{ID: 2, Code: "VIEWER", Name: "Viewer", Enable: false},
	)
	repo.userCount = 7
	repo.permCount = 42
	svc := NewService(repo)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 7, stats.Users)
	assert.Equal(t, 42, stats.Permissions)
}

func strp(s string) *string { return &s }
