package permissions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/meridian-admin/meridian-admin/internal/shared"
)

// RepositoryPort defines data access methods for permissions.
type RepositoryPort interface {
	ListAll(ctx context.Context) ([]Permission, error)
	List(ctx context.Context, filters ListFilters, limit, offset int) ([]Permission, int, error)
	GetByID(ctx context.Context, id int64) (Permission, error)
	ListByIDs(ctx context.Context, ids []int64) ([]Permission, error)
	ListButtons(ctx context.Context, menuID int64) ([]Permission, error)
	Create(ctx context.Context, p Permission) (Permission, error)
	Update(ctx context.Context, p Permission) (Permission, error)
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (Stats, error)
}

// Service handles permission business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateInput carries the fields accepted on permission creation.
type CreateInput struct {
	Name        string
	Code        string
	Kind        Kind
	ParentID    *int64
	Path        *string
	Redirect    *string
	Icon        *string
	Component   *string
	Layout      *string
	KeepAlive   *int
	Method      *string
	Description *string
	Show        bool
	Enable      bool
	Order       *int
}

// UpdateInput carries partial updates; nil fields are left unchanged.
// ParentID distinguishes "not provided" (SetParent false) from "set to
// root" (SetParent true, ParentID nil).
type UpdateInput struct {
	Name        *string
	Code        *string
	Kind        *Kind
	SetParent   bool
	ParentID    *int64
	Path        *string
	Redirect    *string
	Icon        *string
	Component   *string
	Layout      *string
	KeepAlive   *int
	Method      *string
	Description *string
	Show        *bool
	Enable      *bool
	Order       *int
}

// Create validates and inserts a new permission. The declared parent must
// exist and be enabled; rejecting that at write time keeps the read-time
// orphan-drop a defensive measure instead of the primary contract.
func (s *Service) Create(ctx context.Context, input CreateInput) (Permission, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Code = strings.TrimSpace(input.Code)
	if input.Name == "" || input.Code == "" {
		return Permission{}, fmt.Errorf("%w: name and code required", shared.ErrInvalidInput)
	}
	if input.Kind != KindMenu && input.Kind != KindButton {
		return Permission{}, fmt.Errorf("%w: unknown permission kind %q", shared.ErrInvalidInput, input.Kind)
	}
	if input.ParentID != nil {
		if err := s.checkParent(ctx, *input.ParentID, input.Enable); err != nil {
			return Permission{}, err
		}
	}

	return s.repo.Create(ctx, Permission{
		Name:        input.Name,
		Code:        input.Code,
		Kind:        input.Kind,
		ParentID:    input.ParentID,
		Path:        input.Path,
		Redirect:    input.Redirect,
		Icon:        input.Icon,
		Component:   input.Component,
		Layout:      input.Layout,
		KeepAlive:   input.KeepAlive,
		Method:      input.Method,
		Description: input.Description,
		Show:        input.Show,
		Enable:      input.Enable,
		Order:       input.Order,
	})
}

// Get fetches a permission by id.
func (s *Service) Get(ctx context.Context, id int64) (Permission, error) {
	return s.repo.GetByID(ctx, id)
}

// Update applies a partial update. Parent changes are validated for
// existence, enablement and acyclicity before anything is written.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Permission, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Permission{}, err
	}

	if input.Name != nil {
		current.Name = strings.TrimSpace(*input.Name)
	}
	if input.Code != nil {
		current.Code = strings.TrimSpace(*input.Code)
	}
	if input.Kind != nil {
		if *input.Kind != KindMenu && *input.Kind != KindButton {
			return Permission{}, fmt.Errorf("%w: unknown permission kind %q", shared.ErrInvalidInput, *input.Kind)
		}
		current.Kind = *input.Kind
	}
	if input.SetParent {
		current.ParentID = input.ParentID
	}
	if input.Path != nil {
		current.Path = input.Path
	}
	if input.Redirect != nil {
		current.Redirect = input.Redirect
	}
	if input.Icon != nil {
		current.Icon = input.Icon
	}
	if input.Component != nil {
		current.Component = input.Component
	}
	if input.Layout != nil {
		current.Layout = input.Layout
	}
	if input.KeepAlive != nil {
		current.KeepAlive = input.KeepAlive
	}
	if input.Method != nil {
		current.Method = input.Method
	}
	if input.Description != nil {
		current.Description = input.Description
	}
	if input.Show != nil {
		current.Show = *input.Show
	}
	if input.Enable != nil {
		current.Enable = *input.Enable
	}
	if input.Order != nil {
		current.Order = input.Order
	}
	if current.Name == "" || current.Code == "" {
		return Permission{}, fmt.Errorf("%w: name and code required", shared.ErrInvalidInput)
	}

	if current.ParentID != nil {
		if *current.ParentID == id {
			return Permission{}, fmt.Errorf("%w: permission cannot be its own parent", shared.ErrInvalidInput)
		}
		if err := s.checkParent(ctx, *current.ParentID, current.Enable); err != nil {
			return Permission{}, err
		}
		if err := s.checkAcyclic(ctx, id, *current.ParentID); err != nil {
			return Permission{}, err
		}
	}

	return s.repo.Update(ctx, current)
}

// Delete removes a permission by id.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// List returns a filtered page plus pagination metadata.
func (s *Service) List(ctx context.Context, filters ListFilters, page, perPage int) ([]Permission, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	perms, total, err := s.repo.List(ctx, filters, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return perms, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// FullTree builds the forest over every permission, any kind or state.
func (s *Service) FullTree(ctx context.Context) ([]*Node, error) {
	return s.tree(ctx, All)
}

// MenuTree builds the routing forest: enabled, visible menus only.
func (s *Service) MenuTree(ctx context.Context) ([]*Node, error) {
	return s.tree(ctx, VisibleMenus)
}

// ResourceMenuTree builds the management forest: menus in any state.
func (s *Service) ResourceMenuTree(ctx context.Context) ([]*Node, error) {
	return s.tree(ctx, AnyMenus)
}

// Buttons lists the enabled button permissions under a menu.
func (s *Service) Buttons(ctx context.Context, menuID int64) ([]Permission, error) {
	return s.repo.ListButtons(ctx, menuID)
}

// Stats returns aggregate counts for the dashboard.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx)
}

func (s *Service) tree(ctx context.Context, pred Predicate) ([]*Node, error) {
	perms, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return Build(perms, pred), nil
}

func (s *Service) checkParent(ctx context.Context, parentID int64, childEnabled bool) error {
	parent, err := s.repo.GetByID(ctx, parentID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: parent permission %d does not exist", shared.ErrInvalidInput, parentID)
		}
		return err
	}
	if childEnabled && !parent.Enable {
		return fmt.Errorf("%w: parent permission %d is disabled", shared.ErrInvalidInput, parentID)
	}
	return nil
}

// checkAcyclic walks the ancestor chain from newParentID and rejects the
// update if id appears, which would make the node its own ancestor. The
// walk is bounded so a pre-existing cycle in stored data cannot hang it.
func (s *Service) checkAcyclic(ctx context.Context, id, newParentID int64) error {
	const maxDepth = 1000
	seen := make(map[int64]struct{})
	cursor := newParentID
	for depth := 0; depth < maxDepth; depth++ {
		if cursor == id {
			return fmt.Errorf("%w: permission %d would become its own ancestor", shared.ErrInvalidInput, id)
		}
		if _, ok := seen[cursor]; ok {
			return fmt.Errorf("%w: permission parent chain contains a cycle", shared.ErrInvalidInput)
		}
		seen[cursor] = struct{}{}

		ancestor, err := s.repo.GetByID(ctx, cursor)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil
			}
			return err
		}
		if ancestor.ParentID == nil {
			return nil
		}
		cursor = *ancestor.ParentID
	}
	return fmt.Errorf("%w: permission parent chain too deep", shared.ErrInvalidInput)
}
