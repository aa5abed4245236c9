package dig_container

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/feeledger/apps/api/echo"
	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/catalog"
	"github.com/trezcool/feeledger/core/ledger"
	"github.com/trezcool/feeledger/core/user"
	emailsvc "github.com/trezcool/feeledger/services/email"
	logsvc "github.com/trezcool/feeledger/services/logger"
	"github.com/trezcool/feeledger/storage/database"
	dummydb "github.com/trezcool/feeledger/storage/database/dummy"
	sqlxrepos "github.com/trezcool/feeledger/storage/database/sqlx"
)

type Options struct {
	// InMemory replaces Postgres with the in-memory store, seeded with a demo student directory.
	InMemory bool
}

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Stores are the repositories the services run on.
type Stores struct {
	dig.Out
	Catalog   catalog.Repository
	Ledger    ledger.Store
	Directory ledger.Directory
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// newValidator returns the validator knowing the custom tags of every domain package.
func newValidator() *core.Validator {
	validate := core.NewValidator()
	user.InitValidators(validate.Engine(), validate.Translator())
	catalog.InitValidators(validate.Engine(), validate.Translator())
	ledger.InitValidators(validate.Engine(), validate.Translator())
	return validate
}

func newSQLStores(db *sqlx.DB) Stores {
	return Stores{
		Catalog:   sqlxrepos.NewCatalogRepository(db),
		Ledger:    sqlxrepos.NewLedgerStore(db),
		Directory: sqlxrepos.NewDirectory(db),
	}
}

func newMemoryStores(loggerParam DBLoggerParam) Stores {
	db, err := dummydb.Open()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("opening in-memory database: %v", err), err)
	}
	dir := dummydb.NewDirectory(db)
	seedDemoDirectory(dir)
	loggerParam.Logger.Info("using the in-memory database; nothing will be persisted")

	return Stores{
		Catalog:   dummydb.NewCatalogRepository(db),
		Ledger:    dummydb.NewLedgerStore(db),
		Directory: dir,
	}
}

func seedDemoDirectory(dir *dummydb.Directory) {
	year := time.Now().UTC().Year()
	dir.PutAcademicYear(ledger.AcademicYear{
		ID:        "demo-year",
		Name:      fmt.Sprintf("AY %d/%02d", year, (year+1)%100),
		StartDate: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
	})
	dir.PutClass(ledger.Class{ID: "demo-class-1", Name: "Class 1", Grade: "1"})
	dir.PutClass(ledger.Class{ID: "demo-class-2", Name: "Class 2", Grade: "2"})
	dir.PutStudent(ledger.Student{
		ID:            "demo-student-1",
		Name:          "Demo Student",
		AdmissionNo:   "DEMO-001",
		GuardianName:  "Demo Guardian",
		GuardianEmail: "guardian@example.com",
		Status:        ledger.StudentActive,
	})
}

func newLedgerService(
	store ledger.Store,
	templates catalog.Repository,
	directory ledger.Directory,
	mailSvc core.EmailService,
	logger core.Logger,
	validate *core.Validator,
	conf *core.Config,
) *ledger.Service {
	return ledger.NewService(store, templates, directory, mailSvc, logger, validate, conf)
}

// New returns a new dependency injection dig.Container
func New(opts Options) *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	if opts.InMemory {
		must(c.Provide(newMemoryStores))
	} else {
		must(c.Provide(newDB))
		must(c.Provide(newSQLStores))
	}
	must(c.Provide(newEmailService))
	must(c.Provide(newValidator))
	must(c.Provide(catalog.NewService))
	must(c.Provide(newLedgerService))
	must(c.Provide(echoapi.NewServer))

	return c
}

// Visualize writes the dependency graph of c in DOT format.
func Visualize(c *dig.Container) error {
	return dig.Visualize(c, os.Stdout)
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
