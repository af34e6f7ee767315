package user

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

var (
	// errors
	ErrNotFound    = errors.New("user not found")
	ErrUserExists  = errors.New("a user with this username or email already exists")
	ErrEmailExists = errors.New("a user with this email already exists")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, tenant, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, tenant, email string) (User, error)
		GetUserByUsernameOrEmail(ctx context.Context, tenant, uname string) (User, error)
		// FilterUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		FilterUsers(ctx context.Context, tenant string, filter QueryFilter) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	tenant, err := core.TenantFromContext(ctx)
	if err != nil {
		return err
	}
	if err := svc.repo.CheckUsernameUniqueness(ctx, tenant, uname, email, exclUsers...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUserExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	tenant, err := core.TenantFromContext(ctx)
	if err != nil {
		return User{}, err
	}

	now := time.Now().UTC()
	usr := User{
		Tenant:    tenant,
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

// CreateExternal creates a User from a validated roster record. The account is
// active but has no password.
func (svc *Service) CreateExternal(ctx context.Context, eu ExternalUser) (User, error) {
	tenant, err := core.TenantFromContext(ctx)
	if err != nil {
		return User{}, err
	}
	if err := eu.Validate(); err != nil {
		return User{}, err
	}
	if err := svc.CheckUniqueness(ctx, "", eu.Email); err != nil {
		return User{}, err
	}

	now := time.Now().UTC()
	usr := User{
		Tenant:    tenant,
		Name:      eu.Name,
		Email:     eu.Email,
		IsActive:  true,
		Roles:     eu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	tenant, err := core.TenantFromContext(ctx)
	if err != nil {
		return User{}, err
	}
	return svc.repo.GetUserByEmail(ctx, tenant, core.CleanString(email, true /* lower */))
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	tenant, err := core.TenantFromContext(ctx)
	if err != nil {
		return User{}, err
	}
	return svc.repo.GetUserByUsernameOrEmail(ctx, tenant, core.CleanString(uname, true /* lower */))
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter) ([]User, error) {
	tenant, err := core.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	filter.Clean()
	return svc.repo.FilterUsers(ctx, tenant, filter)
}

func (svc *Service) Update(ctx context.Context, usr User) (User, error) {
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}
