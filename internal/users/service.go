package users

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-admin/meridian-admin/internal/permissions"
	"github.com/meridian-admin/meridian-admin/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	List(ctx context.Context, filters ListFilters, limit, offset int) ([]User, int, error)
	GetByID(ctx context.Context, id int64) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	Create(ctx context.Context, username, passwordHash string, enable bool, roleIDs []int64) (User, error)
	Update(ctx context.Context, user User) (User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	Delete(ctx context.Context, id int64) error
	GetProfile(ctx context.Context, userID int64) (Profile, error)
	UpsertProfile(ctx context.Context, p Profile) (Profile, error)
	ListRoles(ctx context.Context, userID int64) ([]RoleSummary, error)
	IsSuperuserRole(ctx context.Context, roleID int64) (bool, error)
	ReplaceRoles(ctx context.Context, userID int64, roleIDs []int64) error
}

// PermissionLister resolves a user's effective permission summaries.
// Wired to the RBAC aggregator.
type PermissionLister interface {
	PermissionSummaries(ctx context.Context, userID int64) ([]permissions.Summary, error)
}

// Service handles user business logic.
type Service struct {
	repo  RepositoryPort
	perms PermissionLister
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, perms PermissionLister) *Service {
	return &Service{repo: repo, perms: perms}
}

// CreateInput carries the fields accepted on user creation.
type CreateInput struct {
	Username string
	Password string
	Enable   bool
	RoleIDs  []int64
}

// UpdateInput carries partial updates; nil fields are left unchanged.
type UpdateInput struct {
	Username *string
	Enable   *bool
}

// ProfileInput carries partial profile updates.
type ProfileInput struct {
	Gender   *int
	Avatar   *string
	Email    *string
	Phone    *string
	NickName *string
}

// Detail is the full user view for the management UI.
type Detail struct {
	ID          int64                 `json:"id"`
	Username    string                `json:"username"`
	Enable      bool                  `json:"enable"`
	Roles       []RoleSummary         `json:"roles"`
	RoleNames   []string              `json:"roleNames"`
	Permissions []permissions.Summary `json:"permissions"`
	Profile     *Profile              `json:"profile"`
	CurrentRole *RoleSummary          `json:"currentRole"`
}

// Create registers a new user with a hashed credential, an empty profile
// and the optional initial role set.
func (s *Service) Create(ctx context.Context, input CreateInput) (User, error) {
	input.Username = strings.TrimSpace(input.Username)
	if input.Username == "" || input.Password == "" {
		return User{}, fmt.Errorf("%w: username and password required", shared.ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	return s.repo.Create(ctx, input.Username, string(hash), input.Enable, input.RoleIDs)
}

// Get fetches a user by id.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByUsername fetches a user by unique username.
func (s *Service) GetByUsername(ctx context.Context, username string) (User, error) {
	return s.repo.GetByUsername(ctx, username)
}

// FindPrincipal resolves a token subject to a principal. Used by the
// access guard; a missing user maps to NotFound which the guard folds
// into its single unauthorized outcome.
func (s *Service) FindPrincipal(ctx context.Context, id int64) (*shared.Principal, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &shared.Principal{ID: user.ID, Username: user.Username, Enabled: user.Enable}, nil
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (User, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if input.Username != nil {
		current.Username = strings.TrimSpace(*input.Username)
	}
	if input.Enable != nil {
		current.Enable = *input.Enable
	}
	if current.Username == "" {
		return User{}, fmt.Errorf("%w: username required", shared.ErrInvalidInput)
	}
	return s.repo.Update(ctx, current)
}

// Delete removes a user and their associations.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// List returns a filtered page plus pagination metadata.
func (s *Service) List(ctx context.Context, filters ListFilters, page, perPage int) ([]User, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	users, total, err := s.repo.List(ctx, filters, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// ListDetailed returns a page of users annotated with roles and profile
// attributes.
func (s *Service) ListDetailed(ctx context.Context, filters ListFilters, page, perPage int) ([]DetailedUser, shared.Pagination, error) {
	users, pagination, err := s.List(ctx, filters, page, perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}

	detailed := make([]DetailedUser, len(users))
	for i, user := range users {
		roles, err := s.repo.ListRoles(ctx, user.ID)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		if roles == nil {
			roles = []RoleSummary{}
		}
		d := DetailedUser{User: user, Roles: roles, Avatar: DefaultAvatar}
		if profile, err := s.repo.GetProfile(ctx, user.ID); err == nil {
			d.Gender = profile.Gender
			d.Avatar = profile.Avatar
			d.Email = profile.Email
		}
		detailed[i] = d
	}
	return detailed, pagination, nil
}

// Detail assembles the full user view: roles, effective permissions,
// profile and the preferred current role (superuser role first).
func (s *Service) Detail(ctx context.Context, id int64) (Detail, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Detail{}, err
	}

	roles, err := s.repo.ListRoles(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	if roles == nil {
		roles = []RoleSummary{}
	}
	roleNames := make([]string, len(roles))
	for i, role := range roles {
		roleNames[i] = role.Name
	}

	perms, err := s.perms.PermissionSummaries(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	if perms == nil {
		perms = []permissions.Summary{}
	}

	detail := Detail{
		ID:          user.ID,
		Username:    user.Username,
		Enable:      user.Enable,
		Roles:       roles,
		RoleNames:   roleNames,
		Permissions: perms,
	}

	if profile, err := s.repo.GetProfile(ctx, id); err == nil {
		detail.Profile = &profile
	}

	for i := range roles {
		super, err := s.repo.IsSuperuserRole(ctx, roles[i].ID)
		if err == nil && super {
			detail.CurrentRole = &roles[i]
			break
		}
	}
	if detail.CurrentRole == nil && len(roles) > 0 {
		detail.CurrentRole = &roles[0]
	}
	return detail, nil
}

// Profile fetches the user's profile.
func (s *Service) Profile(ctx context.Context, userID int64) (Profile, error) {
	if _, err := s.repo.GetByID(ctx, userID); err != nil {
		return Profile{}, err
	}
	return s.repo.GetProfile(ctx, userID)
}

// UpdateProfile upserts the user's profile.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, input ProfileInput) (Profile, error) {
	if _, err := s.repo.GetByID(ctx, userID); err != nil {
		return Profile{}, err
	}

	current, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		current = Profile{UserID: userID, Avatar: DefaultAvatar}
	}
	if input.Gender != nil {
		current.Gender = input.Gender
	}
	if input.Avatar != nil {
		current.Avatar = *input.Avatar
	}
	if input.Email != nil {
		current.Email = input.Email
	}
	if input.Phone != nil {
		current.Phone = input.Phone
	}
	if input.NickName != nil {
		current.NickName = input.NickName
	}
	return s.repo.UpsertProfile(ctx, current)
}

// ResetPassword replaces the credential hash without checking the old
// one. Caller authorization is the guard's concern.
func (s *Service) ResetPassword(ctx context.Context, userID int64, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: password required", shared.ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, userID, string(hash))
}

// ReplaceRoles swaps the user's role set atomically.
func (s *Service) ReplaceRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	if _, err := s.repo.GetByID(ctx, userID); err != nil {
		return err
	}
	seen := make(map[int64]struct{}, len(roleIDs))
	deduped := make([]int64, 0, len(roleIDs))
	for _, id := range roleIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		deduped = append(deduped, id)
	}
	return s.repo.ReplaceRoles(ctx, userID, deduped)
}

// Roles lists the user's role summaries.
func (s *Service) Roles(ctx context.Context, userID int64) ([]RoleSummary, error) {
	if _, err := s.repo.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListRoles(ctx, userID)
}
