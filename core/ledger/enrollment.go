package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/user"
)

type (
	// NewEnrollment contains information needed to enroll a student for an academic year.
	// Overrides are keyed by the fee structure line id; they only apply to lines editable during enrollment.
	NewEnrollment struct {
		StudentID              string                     `json:"student_id" validate:"required"`
		AcademicYearID         string                     `json:"academic_year_id" validate:"required"`
		ClassID                string                     `json:"class_id" validate:"required"`
		Section                string                     `json:"section" validate:"max=20"`
		FeeOverrides           map[string]decimal.Decimal `json:"custom_fee_overrides" validate:"omitempty,dive,gte=0"`
		ScholarshipOverrides   map[string]decimal.Decimal `json:"custom_scholarship_overrides" validate:"omitempty,dive,gte=0"`
		SelectedScholarshipIDs []string                   `json:"selected_scholarship_ids"`
	}

	// UpdateEnrollment re-prices an enrollment against the active structure of ClassID.
	UpdateEnrollment struct {
		ClassID                string                     `json:"class_id" validate:"required"`
		Section                string                     `json:"section" validate:"max=20"`
		FeeOverrides           map[string]decimal.Decimal `json:"custom_fee_overrides" validate:"omitempty,dive,gte=0"`
		ScholarshipOverrides   map[string]decimal.Decimal `json:"custom_scholarship_overrides" validate:"omitempty,dive,gte=0"`
		SelectedScholarshipIDs []string                   `json:"selected_scholarship_ids"`
	}
)

func (ne *NewEnrollment) Clean() {
	ne.StudentID = core.CleanString(ne.StudentID)
	ne.AcademicYearID = core.CleanString(ne.AcademicYearID)
	ne.ClassID = core.CleanString(ne.ClassID)
	ne.Section = core.CleanString(ne.Section)
	ne.SelectedScholarshipIDs = core.CleanStrings(ne.SelectedScholarshipIDs)
}

func (ue *UpdateEnrollment) Clean() {
	ue.ClassID = core.CleanString(ue.ClassID)
	ue.Section = core.CleanString(ue.Section)
	ue.SelectedScholarshipIDs = core.CleanStrings(ue.SelectedScholarshipIDs)
}

// Enroll materializes the active fee structure of (year, class) into a new enrollment for the student.
func (svc *Service) Enroll(ctx context.Context, actor user.User, ne NewEnrollment) (Enrollment, error) {
	ne.Clean()
	if err := svc.validate.Struct(ne); err != nil {
		return Enrollment{}, err
	}

	student, err := svc.directory.GetStudent(ctx, ne.StudentID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "finding student")
	}
	year, err := svc.directory.GetAcademicYear(ctx, ne.AcademicYearID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "finding academic year")
	}
	class, err := svc.directory.GetClass(ctx, ne.ClassID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "finding class")
	}

	var enrollment Enrollment
	err = svc.runInTx(ctx, "enrolling student", func(tx Repositories) error {
		_, err := tx.Enrollments().GetEnrollmentByStudent(ctx, student.ID, year.ID)
		switch {
		case err == nil:
			return core.NewConflictError("student %s is already enrolled for %s", student.AdmissionNo, year.Name)
		case !core.IsNotFound(err):
			return errors.Wrap(err, "finding existing enrollment")
		}

		fs, err := activeStructure(ctx, tx, year.ID, class.ID)
		if err != nil {
			return err
		}

		now := svc.now()
		fees, err := materializeFees(fs, ne.FeeOverrides, nil)
		if err != nil {
			return err
		}
		schols, err := materializeScholarships(fs, ne.ScholarshipOverrides, ne.SelectedScholarshipIDs, nil, actor, now)
		if err != nil {
			return err
		}

		e := Enrollment{
			ID:             newID(),
			StudentID:      student.ID,
			AcademicYearID: year.ID,
			ClassID:        class.ID,
			Section:        ne.Section,
			FeeStructureID: fs.ID,
			Student:        studentSnapshot(student),
			Class:          classSnapshot(class, ne.Section),
			AcademicYear:   yearSnapshot(year),
			Fees:           fees,
			Scholarships:   schols,
			IsActive:       true,
			CreatedBy:      actor.DisplayName(),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		e.Recalculate()
		if err := e.CheckInvariants(); err != nil {
			return err
		}

		enrollment, err = tx.Enrollments().CreateEnrollment(ctx, e)
		return err
	})
	if err != nil {
		return Enrollment{}, err
	}
	return enrollment, nil
}

// UpdateEnrollment rebuilds the fee and scholarship lines from the active structure of the (possibly new) class.
// Fee lines are matched to the old ones by template so that amounts already paid are carried over.
func (svc *Service) UpdateEnrollment(ctx context.Context, actor user.User, id string, ue UpdateEnrollment) (Enrollment, error) {
	ue.Clean()
	if err := svc.validate.Struct(ue); err != nil {
		return Enrollment{}, err
	}

	class, err := svc.directory.GetClass(ctx, ue.ClassID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "finding class")
	}

	var enrollment Enrollment
	err = svc.runInTx(ctx, "updating enrollment", func(tx Repositories) error {
		e, err := tx.Enrollments().GetEnrollment(ctx, id, true)
		if err != nil {
			return err
		}
		if !e.IsActive {
			return core.NewInvalidStateError("enrollment is inactive")
		}

		fs, err := activeStructure(ctx, tx, e.AcademicYearID, class.ID)
		if err != nil {
			return err
		}

		now := svc.now()
		fees, err := materializeFees(fs, ue.FeeOverrides, e.Fees)
		if err != nil {
			return err
		}
		schols, err := materializeScholarships(fs, ue.ScholarshipOverrides, ue.SelectedScholarshipIDs, e.Scholarships, actor, now)
		if err != nil {
			return err
		}

		e.ClassID = class.ID
		e.Section = ue.Section
		e.Class = classSnapshot(class, ue.Section)
		e.FeeStructureID = fs.ID
		e.Fees = fees
		e.Scholarships = schols
		e.UpdatedAt = now
		e.Recalculate()
		if err := e.CheckInvariants(); err != nil {
			return err
		}

		enrollment, err = tx.Enrollments().UpdateEnrollment(ctx, e)
		return err
	})
	if err != nil {
		return Enrollment{}, err
	}
	return enrollment, nil
}

// DeactivateEnrollment soft-deletes an enrollment. Its lines and payment history are kept.
func (svc *Service) DeactivateEnrollment(ctx context.Context, id string) (Enrollment, error) {
	return svc.setEnrollmentActive(ctx, id, false)
}

func (svc *Service) ReactivateEnrollment(ctx context.Context, id string) (Enrollment, error) {
	return svc.setEnrollmentActive(ctx, id, true)
}

func (svc *Service) setEnrollmentActive(ctx context.Context, id string, active bool) (Enrollment, error) {
	return svc.mutateEnrollment(ctx, "toggling enrollment", id, func(e *Enrollment) error {
		e.IsActive = active
		if active {
			e.Student.Status = StudentActive
		} else {
			e.Student.Status = StudentInactive
		}
		return nil
	})
}

// SetScholarshipActive switches one scholarship line of an enrollment on or off.
func (svc *Service) SetScholarshipActive(ctx context.Context, actor user.User, enrollmentID, lineID string, active bool) (Enrollment, error) {
	return svc.mutateEnrollment(ctx, "toggling scholarship", enrollmentID, func(e *Enrollment) error {
		for i := range e.Scholarships {
			s := &e.Scholarships[i]
			if s.ID != lineID {
				continue
			}
			if s.IsActive != active && active {
				s.AppliedDate = svc.now()
				s.AppliedBy = actor.DisplayName()
			}
			s.IsActive = active
			return nil
		}
		return core.NewNotFoundError("scholarship line", lineID)
	})
}

// RecalculateEnrollment re-derives the balances, totals and status of an enrollment from its lines.
func (svc *Service) RecalculateEnrollment(ctx context.Context, id string) (Enrollment, error) {
	return svc.mutateEnrollment(ctx, "recalculating enrollment", id, func(*Enrollment) error { return nil })
}

func (svc *Service) GetEnrollment(ctx context.Context, id string) (Enrollment, error) {
	return svc.store.Enrollments().GetEnrollment(ctx, id, false)
}

// mutateEnrollment locks the enrollment, applies fn and stores the recalculated result.
func (svc *Service) mutateEnrollment(ctx context.Context, op, id string, fn func(e *Enrollment) error) (Enrollment, error) {
	var enrollment Enrollment
	err := svc.runInTx(ctx, op, func(tx Repositories) error {
		e, err := tx.Enrollments().GetEnrollment(ctx, id, true)
		if err != nil {
			return err
		}
		if err := fn(&e); err != nil {
			return err
		}
		e.UpdatedAt = svc.now()
		e.Recalculate()
		if err := e.CheckInvariants(); err != nil {
			return err
		}
		enrollment, err = tx.Enrollments().UpdateEnrollment(ctx, e)
		return err
	})
	if err != nil {
		return Enrollment{}, err
	}
	return enrollment, nil
}

func activeStructure(ctx context.Context, tx Repositories, academicYearID, classID string) (FeeStructure, error) {
	fs, err := tx.Structures().GetActiveStructure(ctx, academicYearID, classID)
	if err != nil {
		if core.IsNotFound(err) {
			return FeeStructure{}, core.NewInvalidStateError("no active fee structure for this academic year and class")
		}
		return FeeStructure{}, errors.Wrap(err, "finding active fee structure")
	}
	return fs, nil
}

// materializeFees builds the enrollment fee lines of fs.
// When old lines are given, a line with the same template keeps its id and amount paid.
func materializeFees(fs FeeStructure, overrides map[string]decimal.Decimal, old []EnrollmentFee) ([]EnrollmentFee, error) {
	lineIDs := make(map[string]bool, len(fs.FeeItems))
	for _, it := range fs.FeeItems {
		lineIDs[it.ID] = true
	}
	if err := checkOverrideKeys("custom_fee_overrides", overrides, lineIDs); err != nil {
		return nil, err
	}

	prev := make(map[string]EnrollmentFee, len(old))
	for _, f := range old {
		prev[f.TemplateID] = f
	}

	fees := make([]EnrollmentFee, 0, len(fs.FeeItems))
	for _, it := range fs.FeeItems {
		amount := it.Amount
		if ov, ok := overrides[it.ID]; ok && it.IsEditableDuringEnrollment {
			amount = money(ov)
		}

		line := EnrollmentFee{
			ID:               newID(),
			FeeItemID:        it.ID,
			TemplateID:       it.TemplateID,
			TemplateName:     it.TemplateName,
			TemplateCategory: it.TemplateCategory,
			Amount:           amount,
			OriginalAmount:   it.Amount,
			AmountPaid:       decimal.Zero,
			IsCompulsory:     it.IsCompulsory,
		}
		if p, ok := prev[it.TemplateID]; ok {
			if p.AmountPaid.GreaterThan(amount) {
				return nil, core.NewInvalidStateError(
					"%s: %s already paid exceeds the new amount %s", it.TemplateName, p.AmountPaid, amount,
				)
			}
			line.ID = p.ID
			line.AmountPaid = p.AmountPaid
			delete(prev, it.TemplateID)
		}
		line.AmountDue = nonNegative(line.Amount.Sub(line.AmountPaid))
		fees = append(fees, line)
	}

	for _, p := range prev {
		if p.AmountPaid.IsPositive() {
			return nil, core.NewInvalidStateError("%s has payments but is not part of the new fee structure", p.TemplateName)
		}
	}
	return fees, nil
}

// materializeScholarships builds the scholarship lines of fs: auto-applied lines plus the selected ones.
// When old lines are given, a line for the same structure item keeps its id, applied date and active flag.
func materializeScholarships(
	fs FeeStructure,
	overrides map[string]decimal.Decimal,
	selectedIDs []string,
	old []EnrollmentScholarship,
	actor user.User,
	now time.Time,
) ([]EnrollmentScholarship, error) {
	lineIDs := make(map[string]bool, len(fs.ScholarshipItems))
	for _, it := range fs.ScholarshipItems {
		lineIDs[it.ID] = true
	}
	if err := checkOverrideKeys("custom_scholarship_overrides", overrides, lineIDs); err != nil {
		return nil, err
	}

	selected := make(map[string]bool, len(selectedIDs))
	for i, id := range selectedIDs {
		if !lineIDs[id] {
			return nil, core.NewFieldError(fmt.Sprintf("selected_scholarship_ids[%d]", i), "unknown scholarship item")
		}
		selected[id] = true
	}

	prev := make(map[string]EnrollmentScholarship, len(old))
	for _, s := range old {
		prev[s.ScholarshipItemID] = s
	}

	schols := make([]EnrollmentScholarship, 0, len(fs.ScholarshipItems))
	for _, it := range fs.ScholarshipItems {
		if !it.IsAutoApplied && !selected[it.ID] {
			continue
		}

		amount := it.Amount
		if ov, ok := overrides[it.ID]; ok && !it.IsAutoApplied && it.IsEditableDuringEnrollment {
			amount = money(ov)
		}

		line := EnrollmentScholarship{
			ID:                newID(),
			ScholarshipItemID: it.ID,
			TemplateID:        it.TemplateID,
			TemplateName:      it.TemplateName,
			TemplateType:      it.TemplateType,
			Amount:            amount,
			OriginalAmount:    it.Amount,
			AppliedDate:       now,
			AppliedBy:         actor.DisplayName(),
			IsActive:          true,
			IsAutoApplied:     it.IsAutoApplied,
		}
		if p, ok := prev[it.ID]; ok {
			line.ID = p.ID
			line.AppliedDate = p.AppliedDate
			line.AppliedBy = p.AppliedBy
			line.IsActive = p.IsActive
		}
		schols = append(schols, line)
	}
	return schols, nil
}

func checkOverrideKeys(field string, overrides map[string]decimal.Decimal, lineIDs map[string]bool) error {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		if !lineIDs[k] {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	return core.NewFieldError(fmt.Sprintf("%s[%s]", field, keys[0]), "unknown fee structure line")
}

func studentSnapshot(s Student) StudentSnapshot {
	return StudentSnapshot{
		Name:          s.Name,
		AdmissionNo:   s.AdmissionNo,
		GuardianName:  s.GuardianName,
		GuardianEmail: s.GuardianEmail,
		GuardianPhone: s.GuardianPhone,
		Status:        StudentActive,
	}
}

func classSnapshot(c Class, section string) ClassSnapshot {
	return ClassSnapshot{Name: c.Name, Grade: c.Grade, Section: section}
}

func yearSnapshot(y AcademicYear) AcademicYearSnapshot {
	return AcademicYearSnapshot{Name: y.Name, StartDate: y.StartDate, EndDate: y.EndDate}
}
