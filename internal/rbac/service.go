package rbac

import (
	"context"
	"fmt"

	"github.com/meridian-admin/meridian-admin/internal/permissions"
	"github.com/meridian-admin/meridian-admin/internal/shared"
)

// RepositoryPort defines association lookups for the aggregator.
type RepositoryPort interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
	ListUserRoles(ctx context.Context, userID int64) ([]RoleRef, error)
	ListGrantedPermissions(ctx context.Context, userID int64) ([]permissions.Summary, error)
}

// TreeBuilder supplies the full permission forest for scoping.
type TreeBuilder interface {
	FullTree(ctx context.Context) ([]*permissions.Node, error)
	MenuTree(ctx context.Context) ([]*permissions.Node, error)
}

// Service resolves a principal's effective permission set across all of
// their roles. A permission reachable through any assigned enabled role
// is granted; there is no deny or priority semantics.
type Service struct {
	repo          RepositoryPort
	trees         TreeBuilder
	noRolesPolicy shared.NoRolesPolicy
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, trees TreeBuilder, noRolesPolicy shared.NoRolesPolicy) *Service {
	if !noRolesPolicy.Valid() {
		noRolesPolicy = shared.NoRolesReturnFull
	}
	return &Service{repo: repo, trees: trees, noRolesPolicy: noRolesPolicy}
}

// UserRoles returns every role assigned to the principal.
func (s *Service) UserRoles(ctx context.Context, userID int64) ([]RoleRef, error) {
	if err := s.checkPrincipal(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListUserRoles(ctx, userID)
}

// EffectivePermissionIDs returns the union of permission ids granted
// through all of the principal's enabled roles.
func (s *Service) EffectivePermissionIDs(ctx context.Context, userID int64) (map[int64]struct{}, error) {
	summaries, err := s.effective(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make(map[int64]struct{}, len(summaries))
	for _, summary := range summaries {
		ids[summary.ID] = struct{}{}
	}
	return ids, nil
}

// PermissionSummaries returns the deduplicated permission summaries for
// display. Dedup is by id; the first-seen summary wins on overlap.
func (s *Service) PermissionSummaries(ctx context.Context, userID int64) ([]permissions.Summary, error) {
	return s.effective(ctx, userID)
}

// ScopedPermissionTree intersects the full permission forest with the
// principal's effective set. When the principal has no enabled roles at
// all the configured no-roles policy decides between the historical
// fail-open full tree and an empty forest.
func (s *Service) ScopedPermissionTree(ctx context.Context, userID int64) ([]*permissions.Node, error) {
	if err := s.checkPrincipal(ctx, userID); err != nil {
		return nil, err
	}

	forest, err := s.trees.FullTree(ctx)
	if err != nil {
		return nil, err
	}

	roles, err := s.repo.ListUserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !anyEnabled(roles) {
		if s.noRolesPolicy == shared.NoRolesReturnEmpty {
			return []*permissions.Node{}, nil
		}
		return forest, nil
	}

	granted, err := s.EffectivePermissionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return permissions.Filter(forest, granted), nil
}

// ScopedMenuTree is the routing menu variant of ScopedPermissionTree:
// the visible-menu forest filtered by the effective set, with the same
// no-roles policy.
func (s *Service) ScopedMenuTree(ctx context.Context, userID int64) ([]*permissions.Node, error) {
	if err := s.checkPrincipal(ctx, userID); err != nil {
		return nil, err
	}

	forest, err := s.trees.MenuTree(ctx)
	if err != nil {
		return nil, err
	}

	roles, err := s.repo.ListUserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !anyEnabled(roles) {
		if s.noRolesPolicy == shared.NoRolesReturnEmpty {
			return []*permissions.Node{}, nil
		}
		return forest, nil
	}

	granted, err := s.EffectivePermissionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return permissions.Filter(forest, granted), nil
}

// Authorize succeeds when the principal holds the superuser capability or
// any of the required role codes through an enabled role. An empty
// requirement set succeeds for any authenticated principal.
func (s *Service) Authorize(ctx context.Context, userID int64, requiredCodes []string) error {
	roles, err := s.UserRoles(ctx, userID)
	if err != nil {
		return err
	}
	if len(requiredCodes) == 0 {
		return nil
	}

	required := make(map[string]struct{}, len(requiredCodes))
	for _, code := range requiredCodes {
		required[code] = struct{}{}
	}
	for _, role := range roles {
		if !role.Enable {
			continue
		}
		if role.IsSuperuser {
			return nil
		}
		if _, ok := required[role.Code]; ok {
			return nil
		}
	}
	return shared.ErrForbidden
}

func (s *Service) effective(ctx context.Context, userID int64) ([]permissions.Summary, error) {
	if err := s.checkPrincipal(ctx, userID); err != nil {
		return nil, err
	}
	granted, err := s.repo.ListGrantedPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(granted))
	deduped := make([]permissions.Summary, 0, len(granted))
	for _, summary := range granted {
		if _, ok := seen[summary.ID]; ok {
			continue
		}
		seen[summary.ID] = struct{}{}
		deduped = append(deduped, summary)
	}
	return deduped, nil
}

func (s *Service) checkPrincipal(ctx context.Context, userID int64) error {
	exists, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: user %d", shared.ErrNotFound, userID)
	}
	return nil
}

func anyEnabled(roles []RoleRef) bool {
	for _, role := range roles {
		if role.Enable {
			return true
		}
	}
	return false
}
