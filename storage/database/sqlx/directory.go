package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeledger/core/ledger"
)

// directory reads the student records tables maintained by the school administration system.
type directory struct {
	db *sqlx.DB
}

var _ ledger.Directory = (*directory)(nil) // interface compliance check

func NewDirectory(db *sqlx.DB) *directory {
	return &directory{db: db}
}

func (dir *directory) GetStudent(ctx context.Context, id string) (ledger.Student, error) {
	var s struct {
		ID            string `db:"id"`
		Name          string `db:"name"`
		AdmissionNo   string `db:"admission_no"`
		GuardianName  string `db:"guardian_name"`
		GuardianEmail string `db:"guardian_email"`
		GuardianPhone string `db:"guardian_phone"`
		Status        string `db:"status"`
	}
	q := `
		SELECT id, name, admission_no, guardian_name, guardian_email, guardian_phone, status
		FROM students WHERE id = $1`
	if err := dir.db.GetContext(ctx, &s, q, id); err != nil {
		return ledger.Student{}, mapErr(err, "student", id)
	}
	return ledger.Student(s), nil
}

func (dir *directory) GetClass(ctx context.Context, id string) (ledger.Class, error) {
	var c struct {
		ID    string `db:"id"`
		Name  string `db:"name"`
		Grade string `db:"grade"`
	}
	if err := dir.db.GetContext(ctx, &c, `SELECT id, name, grade FROM classes WHERE id = $1`, id); err != nil {
		return ledger.Class{}, mapErr(err, "class", id)
	}
	return ledger.Class(c), nil
}

func (dir *directory) GetAcademicYear(ctx context.Context, id string) (ledger.AcademicYear, error) {
	var y struct {
		ID        string    `db:"id"`
		Name      string    `db:"name"`
		StartDate null.Time `db:"start_date"`
		EndDate   null.Time `db:"end_date"`
	}
	q := `SELECT id, name, start_date, end_date FROM academic_years WHERE id = $1`
	if err := dir.db.GetContext(ctx, &y, q, id); err != nil {
		return ledger.AcademicYear{}, mapErr(err, "academic year", id)
	}
	return ledger.AcademicYear{ID: y.ID, Name: y.Name, StartDate: y.StartDate.Time, EndDate: y.EndDate.Time}, nil
}
