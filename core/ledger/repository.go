package ledger

import (
	"context"
	"time"

	"github.com/trezcool/feeledger/core/catalog"
)

type (
	// Directory reads the student records owned by the rest of the school system.
	Directory interface {
		GetStudent(ctx context.Context, id string) (Student, error)
		GetClass(ctx context.Context, id string) (Class, error)
		GetAcademicYear(ctx context.Context, id string) (AcademicYear, error)
	}

	StructureRepository interface {
		// CreateStructure fails with a core.ConflictError if an active structure exists for the same (year, class).
		CreateStructure(ctx context.Context, fs FeeStructure) (FeeStructure, error)
		// UpdateStructure stores fs only if its Version matches the stored one and returns it with the Version bumped.
		// core.ErrWriteConflict is returned otherwise, and a core.ConflictError when activating a structure
		// whose (year, class) already has one.
		UpdateStructure(ctx context.Context, fs FeeStructure) (FeeStructure, error)
		GetStructure(ctx context.Context, id string) (FeeStructure, error)
		// GetActiveStructure returns a core.NotFoundError if no active structure exists for the pair.
		GetActiveStructure(ctx context.Context, academicYearID, classID string) (FeeStructure, error)
		QueryStructures(ctx context.Context, filter StructureFilter) ([]FeeStructure, error)
	}

	EnrollmentRepository interface {
		// CreateEnrollment fails with a core.ConflictError if the student is already enrolled for the year.
		CreateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
		// GetEnrollment locks the enrollment until the end of the transaction when forUpdate is set.
		GetEnrollment(ctx context.Context, id string, forUpdate bool) (Enrollment, error)
		GetEnrollmentByStudent(ctx context.Context, studentID, academicYearID string) (Enrollment, error)
		// UpdateEnrollment stores e only if its Version matches the stored one and returns it with the Version bumped.
		// core.ErrWriteConflict is returned otherwise.
		UpdateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
		QueryEnrollments(ctx context.Context, filter EnrollmentFilter) ([]Enrollment, error)
	}

	PaymentRepository interface {
		CreatePayment(ctx context.Context, p Payment) (Payment, error)
		GetPayment(ctx context.Context, id string, forUpdate bool) (Payment, error)
		GetPaymentByReceipt(ctx context.Context, receiptNo string) (Payment, error)
		// CancelPayment persists the cancellation fields of p.
		// core.ErrWriteConflict is returned if the stored payment is no longer active.
		CancelPayment(ctx context.Context, p Payment) (Payment, error)
		// QueryPayments returns payments ordered by academic year then receipt sequence.
		QueryPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error)
	}

	ReceiptCounter interface {
		// NextReceiptSequence atomically increments and returns the receipt counter of the academic year.
		// Sequences are never handed out twice.
		NextReceiptSequence(ctx context.Context, academicYearID string) (int64, error)
	}

	// Repositories groups the ledger repositories bound to one unit of work.
	Repositories interface {
		Structures() StructureRepository
		Enrollments() EnrollmentRepository
		Payments() PaymentRepository
		Receipts() ReceiptCounter
	}

	// Store gives access to the ledger repositories.
	// Repositories obtained outside WithinTx commit every write on its own.
	Store interface {
		Repositories
		// WithinTx runs fn in a single transaction: every write made through tx is committed when fn returns nil,
		// and none is when it returns an error.
		WithinTx(ctx context.Context, fn func(tx Repositories) error) error
	}

	// TemplateSource resolves the templates referenced by fee structures.
	TemplateSource interface {
		GetFeeTemplate(ctx context.Context, id string) (catalog.FeeTemplate, error)
		GetScholarshipTemplate(ctx context.Context, id string) (catalog.ScholarshipTemplate, error)
	}
)

type StructureFilter struct {
	AcademicYearID string `query:"academic_year_id"`
	ClassID        string `query:"class_id"`
	IsActive       *bool  `query:"is_active"`
}

func (f StructureFilter) Match(fs FeeStructure) bool {
	if f.AcademicYearID != "" && fs.AcademicYearID != f.AcademicYearID {
		return false
	}
	if f.ClassID != "" && fs.ClassID != f.ClassID {
		return false
	}
	if f.IsActive != nil && fs.IsActive != *f.IsActive {
		return false
	}
	return true
}

type EnrollmentFilter struct {
	AcademicYearID string `query:"academic_year_id"`
	ClassID        string `query:"class_id"`
	Section        string `query:"section"`
	StudentID      string `query:"student_id"`
	IsActive       *bool  `query:"is_active"`
}

func (f EnrollmentFilter) Match(e Enrollment) bool {
	if f.AcademicYearID != "" && e.AcademicYearID != f.AcademicYearID {
		return false
	}
	if f.ClassID != "" && e.ClassID != f.ClassID {
		return false
	}
	if f.Section != "" && e.Section != f.Section {
		return false
	}
	if f.StudentID != "" && e.StudentID != f.StudentID {
		return false
	}
	if f.IsActive != nil && e.IsActive != *f.IsActive {
		return false
	}
	return true
}

type PaymentFilter struct {
	EnrollmentID   string
	AcademicYearID string
	Status         string
	Method         string
	From           time.Time // inclusive, on PaymentDate
	To             time.Time // exclusive, on PaymentDate
}

func (f PaymentFilter) Match(p Payment) bool {
	if f.EnrollmentID != "" && p.EnrollmentID != f.EnrollmentID {
		return false
	}
	if f.AcademicYearID != "" && p.AcademicYearID != f.AcademicYearID {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.Method != "" && p.PaymentMethod != f.Method {
		return false
	}
	if !f.From.IsZero() && p.PaymentDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !p.PaymentDate.Before(f.To) {
		return false
	}
	return true
}
