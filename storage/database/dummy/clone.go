package dummydb

import (
	"time"

	"github.com/trezcool/feeledger/core/ledger"
)

// Records are copied in and out of the tables so that callers never share slices with stored rows.

func cloneStructure(fs ledger.FeeStructure) ledger.FeeStructure {
	if fs.FeeItems != nil {
		fs.FeeItems = append(make([]ledger.FeeItem, 0, len(fs.FeeItems)), fs.FeeItems...)
	}
	if fs.ScholarshipItems != nil {
		fs.ScholarshipItems = append(make([]ledger.ScholarshipItem, 0, len(fs.ScholarshipItems)), fs.ScholarshipItems...)
	}
	return fs
}

func cloneEnrollment(e ledger.Enrollment) ledger.Enrollment {
	if e.Fees != nil {
		e.Fees = append(make([]ledger.EnrollmentFee, 0, len(e.Fees)), e.Fees...)
	}
	if e.Scholarships != nil {
		e.Scholarships = append(make([]ledger.EnrollmentScholarship, 0, len(e.Scholarships)), e.Scholarships...)
	}
	e.FeeStatus.LastPaymentDate = cloneTime(e.FeeStatus.LastPaymentDate)
	e.FeeStatus.NextDueDate = cloneTime(e.FeeStatus.NextDueDate)
	return e
}

func clonePayment(p ledger.Payment) ledger.Payment {
	if p.PaymentItems != nil {
		p.PaymentItems = append(make([]ledger.PaymentItem, 0, len(p.PaymentItems)), p.PaymentItems...)
	}
	p.CancelledAt = cloneTime(p.CancelledAt)
	return p
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
