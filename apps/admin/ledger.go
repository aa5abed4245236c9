package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	echoapi "github.com/trezcool/feeledger/apps/api/echo"
	"github.com/trezcool/feeledger/core/user"
)

var errInvalidRoles = errors.New("invalid roles")

// token prints a signed API token for an operator or an integration.
func (cli *commandLine) token(uname, name, email string, roles []string) error {
	if len(roles) == 0 {
		return errInvalidRoles
	}
	for _, role := range roles {
		if !user.IsValidRole(role) {
			return errors.Wrapf(errInvalidRoles, "%q", role)
		}
	}
	usr := user.User{ID: uname, Name: name, Username: uname, Email: email, Roles: roles}

	token, err := echoapi.GenerateToken(cli.conf, echoapi.GetUserClaims(cli.conf, usr))
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}

func (cli *commandLine) cancelPayment(ctx context.Context, id, reason string) error {
	p, err := cli.ledgerSvc.CancelPayment(ctx, user.System, id, reason)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "payment %s of %s (%s) cancelled\n", p.ReceiptNo, p.TotalAmount.StringFixed(2), p.PaymentMethod)
	return nil
}

func (cli *commandLine) recalc(ctx context.Context, id string) error {
	e, err := cli.ledgerSvc.RecalculateEnrollment(ctx, id)
	if err != nil {
		return err
	}
	net := e.Totals.NetAmount
	fmt.Fprintf(cli.out, "enrollment %s: total %s, paid %s, due %s (%s)\n",
		e.ID, net.Total.StringFixed(2), net.Paid.StringFixed(2), net.Due.StringFixed(2), e.FeeStatus.Status)
	return nil
}
