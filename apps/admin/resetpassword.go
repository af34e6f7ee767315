package main

import (
	"context"
	"time"

	"github.com/trezcool/shule/core"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
)

func (cli *commandLine) resetPassword(tenant, uname, pwd string) error {
	ctx := core.WithTenant(context.Background(), tenant)
	repo := sqlxrepos.NewUserRepository(cli.sdb)

	usr, err := repo.GetUserByUsernameOrEmail(ctx, tenant, core.CleanString(uname, true /* lower */))
	if err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = time.Now().UTC()
	if _, err := repo.UpdateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
