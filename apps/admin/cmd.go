package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/ledger"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf      *core.Config
	db        *sql.DB
	ledgerSvc *ledger.Service
	out       io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                                   - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  token -username USERNAME -roles ROLE[,ROLE] [-name NAME] - print a signed API token")
	fmt.Fprintln(cli.out, "  cancelpayment -id PAYMENT_ID -reason REASON              - cancel a payment as the system administrator")
	fmt.Fprintln(cli.out, "  recalc -enrollment ENROLLMENT_ID                         - recompute the totals and status of an enrollment")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenUname := tokenCmd.String("username", "", "The username the token is issued to.")
	tokenName := tokenCmd.String("name", "", "The user's full name.")
	tokenEmail := tokenCmd.String("email", "", "The user's email.")
	tokenRoles := tokenCmd.String("roles", "", "Comma separated roles, ie. admin:,bursar:")

	cancelCmd := flag.NewFlagSet("cancelpayment", flag.ContinueOnError)
	cancelID := cancelCmd.String("id", "", "The payment ID.")
	cancelReason := cancelCmd.String("reason", "", "Why the payment is cancelled.")

	recalcCmd := flag.NewFlagSet("recalc", flag.ContinueOnError)
	recalcID := recalcCmd.String("enrollment", "", "The enrollment ID.")

	for _, fs := range []*flag.FlagSet{tokenCmd, cancelCmd, recalcCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenUname == "" || *tokenRoles == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenUname, *tokenName, *tokenEmail, core.CleanStrings(strings.Split(*tokenRoles, ",")))
	case "cancelpayment":
		if err := cancelCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *cancelID == "" || *cancelReason == "" {
			cancelCmd.Usage()
			return errHelp
		}
		return cli.cancelPayment(context.Background(), *cancelID, *cancelReason)
	case "recalc":
		if err := recalcCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *recalcID == "" {
			recalcCmd.Usage()
			return errHelp
		}
		return cli.recalc(context.Background(), *recalcID)
	default:
		cli.printUsage()
		return errHelp
	}
}
