package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type (
	OutstandingFilter struct {
		AcademicYearID  string
		ClassID         string
		Section         string
		Statuses        []string        // any of PARTIAL, OVERDUE; empty means both
		MinDue          decimal.Decimal // rows owing less are skipped
		IncludeInactive bool
	}

	OutstandingRow struct {
		EnrollmentID    string          `json:"enrollment_id"`
		StudentID       string          `json:"student_id"`
		StudentName     string          `json:"student_name"`
		AdmissionNo     string          `json:"admission_no"`
		ClassName       string          `json:"class_name"`
		Section         string          `json:"section"`
		NetTotal        decimal.Decimal `json:"net_total"`
		Paid            decimal.Decimal `json:"paid"`
		Due             decimal.Decimal `json:"due"`
		Status          string          `json:"status"`
		LastPaymentDate *time.Time      `json:"last_payment_date"`
	}

	OutstandingReport struct {
		Rows      []OutstandingRow `json:"rows"`
		Count     int              `json:"count"`
		TotalNet  decimal.Decimal  `json:"total_net"`
		TotalPaid decimal.Decimal  `json:"total_paid"`
		TotalDue  decimal.Decimal  `json:"total_due"`
	}

	CollectionFilter struct {
		AcademicYearID string
		Method         string
		From           time.Time // inclusive
		To             time.Time // exclusive
	}

	FeeCollection struct {
		TemplateID   string          `json:"template_id"`
		TemplateName string          `json:"template_name"`
		Amount       decimal.Decimal `json:"amount"`
	}

	CollectionSummary struct {
		Count          int                        `json:"count"`
		Total          decimal.Decimal            `json:"total"`
		ByMethod       map[string]decimal.Decimal `json:"by_method"`
		ByFee          []FeeCollection            `json:"by_fee"`
		CancelledCount int                        `json:"cancelled_count"`
		CancelledTotal decimal.Decimal            `json:"cancelled_total"`
	}
)

// GetOutstanding lists the enrollments that still owe money, largest balance first.
func (svc *Service) GetOutstanding(ctx context.Context, filter OutstandingFilter) (OutstandingReport, error) {
	ef := EnrollmentFilter{
		AcademicYearID: filter.AcademicYearID,
		ClassID:        filter.ClassID,
		Section:        filter.Section,
	}
	if !filter.IncludeInactive {
		active := true
		ef.IsActive = &active
	}
	enrollments, err := svc.store.Enrollments().QueryEnrollments(ctx, ef)
	if err != nil {
		return OutstandingReport{}, errors.Wrap(err, "querying enrollments")
	}

	statuses := make(map[string]bool, len(filter.Statuses))
	for _, s := range filter.Statuses {
		statuses[s] = true
	}

	report := OutstandingReport{Rows: []OutstandingRow{}}
	for _, e := range enrollments {
		net := e.Totals.NetAmount
		if !net.Due.IsPositive() || net.Due.LessThan(filter.MinDue) {
			continue
		}
		if len(statuses) > 0 && !statuses[e.FeeStatus.Status] {
			continue
		}
		report.Rows = append(report.Rows, OutstandingRow{
			EnrollmentID:    e.ID,
			StudentID:       e.StudentID,
			StudentName:     e.Student.Name,
			AdmissionNo:     e.Student.AdmissionNo,
			ClassName:       e.Class.Name,
			Section:         e.Section,
			NetTotal:        net.Total,
			Paid:            net.Paid,
			Due:             net.Due,
			Status:          e.FeeStatus.Status,
			LastPaymentDate: e.FeeStatus.LastPaymentDate,
		})
		report.TotalNet = report.TotalNet.Add(net.Total)
		report.TotalPaid = report.TotalPaid.Add(net.Paid)
		report.TotalDue = report.TotalDue.Add(net.Due)
	}

	sort.SliceStable(report.Rows, func(i, j int) bool {
		a, b := report.Rows[i], report.Rows[j]
		if !a.Due.Equal(b.Due) {
			return a.Due.GreaterThan(b.Due)
		}
		return a.StudentName < b.StudentName
	})
	report.Count = len(report.Rows)
	return report, nil
}

// GetPaymentsForEnrollment returns every payment of an enrollment, cancelled ones included, in receipt order.
func (svc *Service) GetPaymentsForEnrollment(ctx context.Context, enrollmentID string) ([]Payment, error) {
	if _, err := svc.store.Enrollments().GetEnrollment(ctx, enrollmentID, false); err != nil {
		return nil, err
	}
	payments, err := svc.store.Payments().QueryPayments(ctx, PaymentFilter{EnrollmentID: enrollmentID})
	if err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	return payments, nil
}

// GetCollectionSummary sums the payments collected over a period.
func (svc *Service) GetCollectionSummary(ctx context.Context, filter CollectionFilter) (CollectionSummary, error) {
	payments, err := svc.store.Payments().QueryPayments(ctx, PaymentFilter{
		AcademicYearID: filter.AcademicYearID,
		Method:         filter.Method,
		From:           filter.From,
		To:             filter.To,
	})
	if err != nil {
		return CollectionSummary{}, errors.Wrap(err, "querying payments")
	}

	summary := CollectionSummary{ByMethod: make(map[string]decimal.Decimal), ByFee: []FeeCollection{}}
	byFee := make(map[string]int)
	for _, p := range payments {
		if p.IsCancelled() {
			summary.CancelledCount++
			summary.CancelledTotal = summary.CancelledTotal.Add(p.TotalAmount)
			continue
		}
		summary.Count++
		summary.Total = summary.Total.Add(p.TotalAmount)
		summary.ByMethod[p.PaymentMethod] = summary.ByMethod[p.PaymentMethod].Add(p.TotalAmount)

		for _, it := range p.PaymentItems {
			i, ok := byFee[it.FeeTemplateID]
			if !ok {
				i = len(summary.ByFee)
				byFee[it.FeeTemplateID] = i
				summary.ByFee = append(summary.ByFee, FeeCollection{
					TemplateID:   it.FeeTemplateID,
					TemplateName: it.FeeTemplateName,
				})
			}
			summary.ByFee[i].Amount = summary.ByFee[i].Amount.Add(it.Amount)
		}
	}

	sort.SliceStable(summary.ByFee, func(i, j int) bool {
		return summary.ByFee[i].TemplateName < summary.ByFee[j].TemplateName
	})
	return summary, nil
}
