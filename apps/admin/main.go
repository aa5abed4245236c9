package main

import (
	"log"
	"os"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/catalog"
	"github.com/trezcool/feeledger/core/ledger"
	"github.com/trezcool/feeledger/core/user"
	emailsvc "github.com/trezcool/feeledger/services/email"
	logsvc "github.com/trezcool/feeledger/services/logger"
	"github.com/trezcool/feeledger/storage/database"
	sqlxrepos "github.com/trezcool/feeledger/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()
	appLogger := logsvc.NewRollbarLogger(logger, conf)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	errAndDie(database.PrepareMigrations())

	// set up services
	validate := core.NewValidator()
	user.InitValidators(validate.Engine(), validate.Translator())
	catalog.InitValidators(validate.Engine(), validate.Translator())
	ledger.InitValidators(validate.Engine(), validate.Translator())

	conf.Ledger.SendReceipts = false
	ledgerSvc := ledger.NewService(
		sqlxrepos.NewLedgerStore(db),
		sqlxrepos.NewCatalogRepository(db),
		sqlxrepos.NewDirectory(db),
		emailsvc.NewConsoleService(conf, appLogger),
		appLogger,
		validate,
		conf,
	)

	// start CLI
	cli := commandLine{
		conf:      conf,
		db:        db.DB,
		ledgerSvc: ledgerSvc,
		out:       os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
