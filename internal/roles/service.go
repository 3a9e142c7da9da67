package roles

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-admin/meridian-admin/internal/permissions"
	"github.com/meridian-admin/meridian-admin/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	List(ctx context.Context, filters ListFilters, limit, offset int) ([]Role, int, error)
	GetByID(ctx context.Context, id int64) (Role, error)
	Create(ctx context.Context, role Role) (Role, error)
	Update(ctx context.Context, role Role) (Role, error)
	Delete(ctx context.Context, id int64) error
	ListPermissions(ctx context.Context, roleID int64) ([]permissions.Summary, error)
	ListPermissionIDs(ctx context.Context, roleIDs []int64) (map[int64][]int64, error)
	ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	AddPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	ListMembers(ctx context.Context, roleID int64) ([]Member, error)
	CountRoles(ctx context.Context) (total, active int, err error)
	CountUsers(ctx context.Context) (int, error)
	CountPermissions(ctx context.Context) (int, error)
}

// Service handles role business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateInput carries the fields accepted on role creation.
type CreateInput struct {
	Code   string
	Name   string
	Enable bool
}

// UpdateInput carries partial updates; nil fields are left unchanged.
type UpdateInput struct {
	Code   *string
	Name   *string
	Enable *bool
}

// Create inserts a new role. Code and name are each globally unique.
func (s *Service) Create(ctx context.Context, input CreateInput) (Role, error) {
	input.Code = strings.TrimSpace(input.Code)
	input.Name = strings.TrimSpace(input.Name)
	if input.Code == "" || input.Name == "" {
		return Role{}, fmt.Errorf("%w: code and name required", shared.ErrInvalidInput)
	}
	return s.repo.Create(ctx, Role{Code: input.Code, Name: input.Name, Enable: input.Enable})
}

// Get fetches a role by id.
func (s *Service) Get(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetByID(ctx, id)
}

// Update applies a partial update. The superuser capability flag is not
// settable over the API; it belongs to the seeded superuser role.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Role, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if input.Code != nil {
		current.Code = strings.TrimSpace(*input.Code)
	}
	if input.Name != nil {
		current.Name = strings.TrimSpace(*input.Name)
	}
	if input.Enable != nil {
		current.Enable = *input.Enable
	}
	if current.Code == "" || current.Name == "" {
		return Role{}, fmt.Errorf("%w: code and name required", shared.ErrInvalidInput)
	}
	return s.repo.Update(ctx, current)
}

// Delete removes a role and its associations.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// List returns a filtered page plus pagination metadata.
func (s *Service) List(ctx context.Context, filters ListFilters, page, perPage int) ([]Role, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	roles, total, err := s.repo.List(ctx, filters, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return roles, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// ListWithPermissionIDs returns a page of roles, each annotated with its
// permission id set.
func (s *Service) ListWithPermissionIDs(ctx context.Context, filters ListFilters, page, perPage int) ([]RoleWithPermissionIDs, shared.Pagination, error) {
	roles, pagination, err := s.List(ctx, filters, page, perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}

	ids := make([]int64, len(roles))
	for i, role := range roles {
		ids[i] = role.ID
	}
	permIDs, err := s.repo.ListPermissionIDs(ctx, ids)
	if err != nil {
		return nil, shared.Pagination{}, err
	}

	result := make([]RoleWithPermissionIDs, len(roles))
	for i, role := range roles {
		granted := permIDs[role.ID]
		if granted == nil {
			granted = []int64{}
		}
		result[i] = RoleWithPermissionIDs{Role: role, PermissionIDs: granted}
	}
	return result, pagination, nil
}

// Permissions returns the permission summaries granted to a role.
func (s *Service) Permissions(ctx context.Context, roleID int64) ([]permissions.Summary, error) {
	if _, err := s.repo.GetByID(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListPermissions(ctx, roleID)
}

// ReplacePermissions swaps the role's permission set atomically.
func (s *Service) ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if _, err := s.repo.GetByID(ctx, roleID); err != nil {
		return err
	}
	return s.repo.ReplacePermissions(ctx, roleID, dedupe(permissionIDs))
}

// AddPermissions merges permissions into the role's existing set.
func (s *Service) AddPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if _, err := s.repo.GetByID(ctx, roleID); err != nil {
		return err
	}
	return s.repo.AddPermissions(ctx, roleID, dedupe(permissionIDs))
}

// Members returns the users holding a role.
func (s *Service) Members(ctx context.Context, roleID int64) ([]Member, error) {
	if _, err := s.repo.GetByID(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, roleID)
}

// Stats fans the four dashboard counts out concurrently.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		total, active, err := s.repo.CountRoles(ctx)
		stats.Total, stats.Active = total, active
		return err
	})
	g.Go(func() error {
		n, err := s.repo.CountUsers(ctx)
		stats.Users = n
		return err
	})
	g.Go(func() error {
		n, err := s.repo.CountPermissions(ctx)
		stats.Permissions = n
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
