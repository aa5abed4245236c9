package testutil

import (
	"context"
	"io/ioutil"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/catalog"
	"github.com/trezcool/feeledger/core/ledger"
	"github.com/trezcool/feeledger/core/user"
	"github.com/trezcool/feeledger/services/email"
	"github.com/trezcool/feeledger/services/logger"
	"github.com/trezcool/feeledger/storage/database/dummy"
)

// Directory records seeded by NewEnv.
const (
	YearID     = "ay-2025"
	Class5ID   = "class-5"
	Class6ID   = "class-6"
	StudentID  = "stu-001"
	Student2ID = "stu-002"
)

var (
	Admin  = user.User{ID: "u-admin", Name: "Ada Admin", Username: "admin", Email: "admin@school.test", Roles: []string{user.RoleAdminOwner}}
	Bursar = user.User{ID: "u-bursar", Name: "Bob Bursar", Username: "bursar", Email: "bursar@school.test", Roles: []string{user.RoleBursar}}
)

// Env bundles the services and the in-memory database shared by a test.
type Env struct {
	Conf      *core.Config
	Logger    core.Logger
	Validator *core.Validator
	MailSvc   core.EmailService

	DB        *dummydb.DB
	Store     ledger.Store
	Catalog   catalog.Repository
	Directory *dummydb.Directory

	CatalogSvc *catalog.Service
	LedgerSvc  *ledger.Service
}

// NewValidator returns a validator knowing every custom tag of the domain packages.
func NewValidator() *core.Validator {
	v := core.NewValidator()
	user.InitValidators(v.Engine(), v.Translator())
	catalog.InitValidators(v.Engine(), v.Translator())
	ledger.InitValidators(v.Engine(), v.Translator())
	return v
}

func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), conf)
}

func NewEnv(t *testing.T) *Env {
	t.Helper()

	conf := core.NewTestConfig()
	logger := NewLogger(conf)
	core.ParseEmailTemplates(conf, logger)

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	dir := dummydb.NewDirectory(db)
	dir.PutAcademicYear(ledger.AcademicYear{
		ID:        YearID,
		Name:      "AY 2025/26",
		StartDate: time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC),
	})
	dir.PutClass(ledger.Class{ID: Class5ID, Name: "Class 5", Grade: "5"})
	dir.PutClass(ledger.Class{ID: Class6ID, Name: "Class 6", Grade: "6"})
	dir.PutStudent(ledger.Student{
		ID:            StudentID,
		Name:          "Amani Juma",
		AdmissionNo:   "ADM-001",
		GuardianName:  "Neema Juma",
		GuardianEmail: "neema@family.test",
		Status:        ledger.StudentActive,
	})
	dir.PutStudent(ledger.Student{ID: Student2ID, Name: "Baraka Ali", AdmissionNo: "ADM-002", Status: ledger.StudentActive})

	validate := NewValidator()
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	catRepo := dummydb.NewCatalogRepository(db)
	store := dummydb.NewLedgerStore(db)

	return &Env{
		Conf:       conf,
		Logger:     logger,
		Validator:  validate,
		MailSvc:    mailSvc,
		DB:         db,
		Store:      store,
		Catalog:    catRepo,
		Directory:  dir,
		CatalogSvc: catalog.NewService(catRepo, validate),
		LedgerSvc:  ledger.NewService(store, catRepo, dir, mailSvc, logger, validate, conf),
	}
}

func (env *Env) CreateFeeTemplate(t *testing.T, name, category string, order int) catalog.FeeTemplate {
	t.Helper()
	tmpl, err := env.CatalogSvc.CreateFeeTemplate(context.Background(), catalog.NewFeeTemplate{
		Name:         name,
		Category:     category,
		DisplayOrder: order,
	})
	if err != nil {
		t.Fatalf("CreateFeeTemplate() failed: %v", err)
	}
	return tmpl
}

func (env *Env) CreateScholarshipTemplate(t *testing.T, name, typ string, order int) catalog.ScholarshipTemplate {
	t.Helper()
	tmpl, err := env.CatalogSvc.CreateScholarshipTemplate(context.Background(), catalog.NewScholarshipTemplate{
		Name:         name,
		Type:         typ,
		DisplayOrder: order,
	})
	if err != nil {
		t.Fatalf("CreateScholarshipTemplate() failed: %v", err)
	}
	return tmpl
}

func (env *Env) CreateStructure(t *testing.T, nfs ledger.NewFeeStructure) ledger.FeeStructure {
	t.Helper()
	fs, err := env.LedgerSvc.CreateFeeStructure(context.Background(), Admin, nfs)
	if err != nil {
		t.Fatalf("CreateFeeStructure() failed: %v", err)
	}
	return fs
}

// Scenario is the fee setup most ledger tests start from:
// Class 5 pays School 1000 (compulsory) and Van 500 (optional), less an auto-applied Merit scholarship of 200.
type Scenario struct {
	School, Van, Exam catalog.FeeTemplate
	Merit, Sports     catalog.ScholarshipTemplate
	Class5, Class6    ledger.FeeStructure
}

func (env *Env) SeedScenario(t *testing.T) Scenario {
	t.Helper()
	var sc Scenario
	sc.School = env.CreateFeeTemplate(t, "School Fee", catalog.CategoryRegular, 1)
	sc.Van = env.CreateFeeTemplate(t, "Van Fee", catalog.CategoryOptional, 2)
	sc.Exam = env.CreateFeeTemplate(t, "Exam Fee", catalog.CategoryExamination, 3)
	sc.Merit = env.CreateScholarshipTemplate(t, "Merit Scholarship", catalog.TypeMerit, 1)
	sc.Sports = env.CreateScholarshipTemplate(t, "Sports Scholarship", catalog.TypeSports, 2)

	no, yes := false, true
	sc.Class5 = env.CreateStructure(t, ledger.NewFeeStructure{
		AcademicYearID: YearID,
		ClassID:        Class5ID,
		Name:           "Class 5 fees",
		FeeItems: []ledger.FeeItemInput{
			{TemplateID: sc.School.ID, Amount: Money("1000")},
			{TemplateID: sc.Van.ID, Amount: Money("500"), IsCompulsory: &no, IsEditableDuringEnrollment: &yes},
		},
		ScholarshipItems: []ledger.ScholarshipItemInput{
			{TemplateID: sc.Merit.ID, Amount: Money("200"), IsAutoApplied: &yes},
			{TemplateID: sc.Sports.ID, Amount: Money("100"), IsEditableDuringEnrollment: &yes},
		},
	})
	sc.Class6 = env.CreateStructure(t, ledger.NewFeeStructure{
		AcademicYearID: YearID,
		ClassID:        Class6ID,
		Name:           "Class 6 fees",
		FeeItems: []ledger.FeeItemInput{
			{TemplateID: sc.School.ID, Amount: Money("1200")},
			{TemplateID: sc.Exam.ID, Amount: Money("150")},
		},
		ScholarshipItems: []ledger.ScholarshipItemInput{
			{TemplateID: sc.Merit.ID, Amount: Money("250"), IsAutoApplied: &yes},
		},
	})
	return sc
}

func (env *Env) Enroll(t *testing.T, studentID, classID string) ledger.Enrollment {
	t.Helper()
	e, err := env.LedgerSvc.Enroll(context.Background(), Bursar, ledger.NewEnrollment{
		StudentID:      studentID,
		AcademicYearID: YearID,
		ClassID:        classID,
		Section:        "A",
	})
	if err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
	return e
}

// Collect pays amounts (keyed by fee template id) against an enrollment.
func (env *Env) Collect(t *testing.T, e ledger.Enrollment, amounts map[string]string) ledger.Payment {
	t.Helper()
	np := ledger.NewPayment{EnrollmentID: e.ID, PaymentMethod: ledger.MethodCash}
	total := decimal.Zero
	for _, f := range e.Fees {
		if a, ok := amounts[f.TemplateID]; ok {
			np.Items = append(np.Items, ledger.PaymentItemInput{FeeID: f.ID, Amount: Money(a)})
			total = total.Add(Money(a))
		}
	}
	np.TotalAmount = total
	p, err := env.LedgerSvc.CollectPayment(context.Background(), Bursar, np)
	if err != nil {
		t.Fatalf("CollectPayment() failed: %v", err)
	}
	return p
}

// Money parses a decimal literal, panicking on malformed input.
func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
