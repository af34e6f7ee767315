package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(tenant, uname, email, pwd string, isAdmin bool) error {
	ctx := core.WithTenant(context.Background(), tenant)
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	repo := sqlxrepos.NewUserRepository(cli.sdb)

	usr, err := repo.GetUserByUsernameOrEmail(ctx, tenant, uname)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		now := time.Now().UTC()
		usr = user.User{
			Tenant:    tenant,
			Name:      uname,
			Username:  uname,
			Email:     email,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	if isAdmin {
		usr.Roles = user.AllRoles
	}
	usr.IsActive = true
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}

	if usr.ID == "" {
		_, err = repo.CreateUser(ctx, usr)
	} else {
		usr.UpdatedAt = time.Now().UTC()
		_, err = repo.UpdateUser(ctx, usr)
	}
	return err
}
