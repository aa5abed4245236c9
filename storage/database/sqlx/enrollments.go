package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/ledger"
)

const enrollmentColumns = `id, student_id, academic_year_id, class_id, section, is_active, fee_status, net_due,
	last_payment_date, version, doc, created_at, updated_at`

type enrollmentRow struct {
	ID              string          `db:"id"`
	StudentID       string          `db:"student_id"`
	AcademicYearID  string          `db:"academic_year_id"`
	ClassID         string          `db:"class_id"`
	Section         string          `db:"section"`
	IsActive        bool            `db:"is_active"`
	FeeStatus       string          `db:"fee_status"`
	NetDue          decimal.Decimal `db:"net_due"`
	LastPaymentDate null.Time       `db:"last_payment_date"`
	Version         int64           `db:"version"`
	Doc             []byte          `db:"doc"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

// newEnrollmentRow copies the queryable fields of e out of its document.
func newEnrollmentRow(e ledger.Enrollment) (enrollmentRow, error) {
	doc, err := marshalDoc(e)
	if err != nil {
		return enrollmentRow{}, err
	}
	return enrollmentRow{
		ID:              e.ID,
		StudentID:       e.StudentID,
		AcademicYearID:  e.AcademicYearID,
		ClassID:         e.ClassID,
		Section:         e.Section,
		IsActive:        e.IsActive,
		FeeStatus:       e.FeeStatus.Status,
		NetDue:          e.Totals.NetAmount.Due,
		LastPaymentDate: null.TimeFromPtr(e.FeeStatus.LastPaymentDate),
		Version:         e.Version,
		Doc:             doc,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}, nil
}

func (row enrollmentRow) toEnrollment() (ledger.Enrollment, error) {
	var e ledger.Enrollment
	if err := json.Unmarshal(row.Doc, &e); err != nil {
		return ledger.Enrollment{}, errors.Wrapf(err, "decoding enrollment %s", row.ID)
	}
	e.Version = row.Version
	return e, nil
}

func (r *repos) CreateEnrollment(ctx context.Context, e ledger.Enrollment) (ledger.Enrollment, error) {
	e.Version = 1
	row, err := newEnrollmentRow(e)
	if err != nil {
		return ledger.Enrollment{}, err
	}
	q := `INSERT INTO enrollments (` + enrollmentColumns + `) VALUES (:id, :student_id, :academic_year_id, :class_id,
		:section, :is_active, :fee_status, :net_due, :last_payment_date, :version, :doc, :created_at, :updated_at)`
	if _, err = sqlx.NamedExecContext(ctx, r.q, q, row); err != nil {
		return ledger.Enrollment{}, mapErr(err, "enrollment for this student and academic year")
	}
	return e, nil
}

func (r *repos) GetEnrollment(ctx context.Context, id string, forUpdate bool) (ledger.Enrollment, error) {
	q := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var row enrollmentRow
	if err := sqlx.GetContext(ctx, r.q, &row, q, id); err != nil {
		return ledger.Enrollment{}, mapErr(err, "enrollment", id)
	}
	return row.toEnrollment()
}

func (r *repos) GetEnrollmentByStudent(ctx context.Context, studentID, academicYearID string) (ledger.Enrollment, error) {
	q := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE student_id = $1 AND academic_year_id = $2`
	var row enrollmentRow
	if err := sqlx.GetContext(ctx, r.q, &row, q, studentID, academicYearID); err != nil {
		return ledger.Enrollment{}, mapErr(err, "enrollment")
	}
	return row.toEnrollment()
}

func (r *repos) UpdateEnrollment(ctx context.Context, e ledger.Enrollment) (ledger.Enrollment, error) {
	expected := e.Version
	e.Version++
	row, err := newEnrollmentRow(e)
	if err != nil {
		return ledger.Enrollment{}, err
	}

	res, err := r.q.ExecContext(ctx, `
		UPDATE enrollments SET class_id = $3, section = $4, is_active = $5, fee_status = $6, net_due = $7,
			last_payment_date = $8, version = $9, doc = $10, updated_at = $11
		WHERE id = $1 AND version = $2`,
		row.ID, expected, row.ClassID, row.Section, row.IsActive, row.FeeStatus, row.NetDue,
		row.LastPaymentDate, row.Version, row.Doc, row.UpdatedAt,
	)
	if err != nil {
		return ledger.Enrollment{}, mapErr(err, "enrollment")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ledger.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	if n == 0 {
		var exists bool
		q := `SELECT EXISTS (SELECT 1 FROM enrollments WHERE id = $1)`
		if err := sqlx.GetContext(ctx, r.q, &exists, q, e.ID); err != nil {
			return ledger.Enrollment{}, errors.Wrap(err, "checking enrollment")
		}
		if !exists {
			return ledger.Enrollment{}, core.NewNotFoundError("enrollment", e.ID)
		}
		return ledger.Enrollment{}, core.ErrWriteConflict
	}
	return e, nil
}

func (r *repos) QueryEnrollments(ctx context.Context, filter ledger.EnrollmentFilter) ([]ledger.Enrollment, error) {
	var w where
	if filter.AcademicYearID != "" {
		w.add("academic_year_id = $%d", filter.AcademicYearID)
	}
	if filter.ClassID != "" {
		w.add("class_id = $%d", filter.ClassID)
	}
	if filter.Section != "" {
		w.add("section = $%d", filter.Section)
	}
	if filter.StudentID != "" {
		w.add("student_id = $%d", filter.StudentID)
	}
	if filter.IsActive != nil {
		w.add("is_active = $%d", *filter.IsActive)
	}

	var rows []enrollmentRow
	q := `SELECT ` + enrollmentColumns + ` FROM enrollments` + w.String() + ` ORDER BY doc->'student'->>'name', id`
	if err := sqlx.SelectContext(ctx, r.q, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting enrollments")
	}

	enrollments := make([]ledger.Enrollment, 0, len(rows))
	for _, row := range rows {
		e, err := row.toEnrollment()
		if err != nil {
			return nil, err
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, nil
}
