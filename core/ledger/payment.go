package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/user"
)

type (
	PaymentItemInput struct {
		FeeID  string          `json:"fee_id" validate:"required"`
		Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	}

	// NewPayment contains information needed to collect a payment against an enrollment.
	NewPayment struct {
		EnrollmentID  string             `json:"student_enrollment_id" validate:"required"`
		Items         []PaymentItemInput `json:"payment_items" validate:"required,min=1,dive"`
		TotalAmount   decimal.Decimal    `json:"total_amount" validate:"gt=0"`
		PaymentMethod string             `json:"payment_method" validate:"required,paymentmethod"`
		PaymentDate   *time.Time         `json:"payment_date"` // defaults to now
		Remarks       string             `json:"remarks" validate:"max=500"`
	}
)

func (np *NewPayment) Clean() {
	np.EnrollmentID = core.CleanString(np.EnrollmentID)
	np.PaymentMethod = strings.ToUpper(core.CleanString(np.PaymentMethod))
	np.Remarks = core.CleanString(np.Remarks)
	np.TotalAmount = money(np.TotalAmount)
	for i := range np.Items {
		np.Items[i].FeeID = core.CleanString(np.Items[i].FeeID)
		np.Items[i].Amount = money(np.Items[i].Amount)
	}
}

// check runs the input checks that do not need the enrollment.
func (np NewPayment) check() error {
	seen := make(map[string]bool, len(np.Items))
	sum := decimal.Zero
	for i, it := range np.Items {
		if seen[it.FeeID] {
			return core.NewFieldError(fmt.Sprintf("payment_items[%d].fee_id", i), "fee item listed more than once")
		}
		seen[it.FeeID] = true
		sum = sum.Add(it.Amount)
	}
	if sum.Sub(np.TotalAmount).Abs().GreaterThan(Epsilon) {
		return core.NewFieldError("total_amount", fmt.Sprintf("total mismatch: items add up to %s", sum))
	}
	return nil
}

// CollectPayment applies a payment to the fee lines of an enrollment and records it under a new receipt number.
// Every check is made against the locked enrollment before anything is written.
func (svc *Service) CollectPayment(ctx context.Context, actor user.User, np NewPayment) (Payment, error) {
	np.Clean()
	if err := svc.validate.Struct(np); err != nil {
		return Payment{}, err
	}
	if err := np.check(); err != nil {
		return Payment{}, err
	}

	now := svc.now()
	payDate := now
	if np.PaymentDate != nil && !np.PaymentDate.IsZero() {
		payDate = np.PaymentDate.UTC()
	}

	var (
		payment    Payment
		enrollment Enrollment
	)
	err := svc.runInTx(ctx, "collecting payment", func(tx Repositories) error {
		e, err := tx.Enrollments().GetEnrollment(ctx, np.EnrollmentID, true)
		if err != nil {
			return err
		}
		if !e.IsActive {
			return core.NewInvalidStateError("enrollment is inactive")
		}

		idx := e.feeIndex()
		for i, it := range np.Items {
			j, ok := idx[it.FeeID]
			if !ok {
				return core.NewFieldError(fmt.Sprintf("payment_items[%d].fee_id", i), "fee item invalid")
			}
			if due := e.Fees[j].AmountDue; it.Amount.GreaterThan(due) {
				return core.NewFieldError(
					fmt.Sprintf("payment_items[%d].amount", i),
					fmt.Sprintf("%s exceeds the %s due on %s", it.Amount, due, e.Fees[j].TemplateName),
				)
			}
		}

		seq, err := tx.Receipts().NextReceiptSequence(ctx, e.AcademicYearID)
		if err != nil {
			return errors.Wrap(err, "generating receipt number")
		}

		items := make([]PaymentItem, 0, len(np.Items))
		for _, it := range np.Items {
			f := &e.Fees[idx[it.FeeID]]
			items = append(items, PaymentItem{
				FeeID:           f.ID,
				FeeTemplateID:   f.TemplateID,
				FeeTemplateName: f.TemplateName,
				Amount:          it.Amount,
				FeeBalance:      f.AmountDue.Sub(it.Amount),
			})
			f.AmountPaid = f.AmountPaid.Add(it.Amount)
		}

		e.FeeStatus.LastPaymentDate = &payDate
		e.UpdatedAt = now
		e.Recalculate()
		if err := e.CheckInvariants(); err != nil {
			return err
		}

		p := Payment{
			ID:             newID(),
			ReceiptNo:      receiptNumber(svc.conf.Ledger.ReceiptPrefix, e.AcademicYear.Name, seq),
			Sequence:       seq,
			EnrollmentID:   e.ID,
			StudentID:      e.StudentID,
			AcademicYearID: e.AcademicYearID,
			ClassID:        e.ClassID,
			TotalAmount:    np.TotalAmount,
			PaymentMethod:  np.PaymentMethod,
			PaymentDate:    payDate,
			Remarks:        np.Remarks,
			Student:        e.Student,
			Class:          e.Class,
			AcademicYear:   e.AcademicYear,
			PaymentItems:   items,
			Status:         PaymentActive,
			CreatedBy:      actor.DisplayName(),
			CreatedAt:      now,
		}
		if payment, err = tx.Payments().CreatePayment(ctx, p); err != nil {
			return err
		}
		enrollment, err = tx.Enrollments().UpdateEnrollment(ctx, e)
		return err
	})
	if err != nil {
		return Payment{}, err
	}

	svc.logger.Info(
		fmt.Sprintf("payment %s of %s collected for enrollment %s", payment.ReceiptNo, payment.TotalAmount, payment.EnrollmentID),
		actor,
	)
	svc.sendReceipt(payment, enrollment)
	return payment, nil
}

// CancelPayment reverses a payment on its enrollment and marks it cancelled. The payment record is kept.
// Only administrators may cancel; cancelling twice returns ErrPaymentAlreadyCancelled.
func (svc *Service) CancelPayment(ctx context.Context, actor user.User, id, reason string) (Payment, error) {
	if !actor.IsAdmin() {
		return Payment{}, errNotAllowedToCancel
	}
	if reason = core.CleanString(reason); reason == "" {
		return Payment{}, core.NewFieldError("reason", "this field is required")
	}

	var payment Payment
	err := svc.runInTx(ctx, "cancelling payment", func(tx Repositories) error {
		p, err := tx.Payments().GetPayment(ctx, id, true)
		if err != nil {
			return err
		}
		if p.IsCancelled() {
			return ErrPaymentAlreadyCancelled
		}

		e, err := tx.Enrollments().GetEnrollment(ctx, p.EnrollmentID, true)
		if err != nil {
			return err
		}

		idx := e.feeIndex()
		for _, it := range p.PaymentItems {
			j, ok := idx[it.FeeID]
			if !ok {
				return core.NewInvalidStateError("fee line %s of payment %s is no longer on the enrollment", it.FeeTemplateName, p.ReceiptNo)
			}
			f := &e.Fees[j]
			paid := nonNegative(f.AmountPaid.Sub(it.Amount))
			if paid.GreaterThan(f.Amount) {
				paid = f.Amount
			}
			f.AmountPaid = paid
		}

		others, err := tx.Payments().QueryPayments(ctx, PaymentFilter{EnrollmentID: e.ID, Status: PaymentActive})
		if err != nil {
			return errors.Wrap(err, "finding remaining payments")
		}
		e.FeeStatus.LastPaymentDate = lastPaymentDate(others, p.ID)

		now := svc.now()
		e.UpdatedAt = now
		e.Recalculate()
		if err := e.CheckInvariants(); err != nil {
			return err
		}

		p.Status = PaymentCancelled
		p.CancelledAt = &now
		p.CancelledBy = actor.DisplayName()
		p.CancellationReason = reason
		if p.Remarks == "" {
			p.Remarks = "Cancelled: " + reason
		} else {
			p.Remarks += "\nCancelled: " + reason
		}

		if payment, err = tx.Payments().CancelPayment(ctx, p); err != nil {
			return err
		}
		_, err = tx.Enrollments().UpdateEnrollment(ctx, e)
		return err
	})
	if err != nil {
		return Payment{}, err
	}

	svc.logger.Info(fmt.Sprintf("payment %s cancelled: %s", payment.ReceiptNo, reason), actor)
	return payment, nil
}

func (svc *Service) GetPayment(ctx context.Context, id string) (Payment, error) {
	return svc.store.Payments().GetPayment(ctx, id, false)
}

func (svc *Service) GetPaymentByReceipt(ctx context.Context, receiptNo string) (Payment, error) {
	return svc.store.Payments().GetPaymentByReceipt(ctx, core.CleanString(receiptNo))
}

// lastPaymentDate returns the payment date of the most recently collected payment, skipping excludeID.
func lastPaymentDate(payments []Payment, excludeID string) *time.Time {
	var last *Payment
	for i := range payments {
		p := &payments[i]
		if p.ID == excludeID || p.IsCancelled() {
			continue
		}
		if last == nil || p.Sequence > last.Sequence {
			last = p
		}
	}
	if last == nil {
		return nil
	}
	date := last.PaymentDate
	return &date
}
