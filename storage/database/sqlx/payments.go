package sqlxrepos

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/ledger"
)

type paymentRow struct {
	ID          string      `db:"id"`
	Status      string      `db:"status"`
	CancelledAt null.Time   `db:"cancelled_at"`
	CancelledBy null.String `db:"cancelled_by"`
	Doc         []byte      `db:"doc"`
}

func (row paymentRow) toPayment() (ledger.Payment, error) {
	var p ledger.Payment
	if err := json.Unmarshal(row.Doc, &p); err != nil {
		return ledger.Payment{}, errors.Wrapf(err, "decoding payment %s", row.ID)
	}
	p.Status = row.Status
	p.CancelledAt = row.CancelledAt.Ptr()
	p.CancelledBy = row.CancelledBy.String
	return p, nil
}

const paymentColumns = `id, status, cancelled_at, cancelled_by, doc`

func (r *repos) CreatePayment(ctx context.Context, p ledger.Payment) (ledger.Payment, error) {
	doc, err := marshalDoc(p)
	if err != nil {
		return ledger.Payment{}, err
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO payments (id, receipt_no, sequence, enrollment_id, academic_year_id, status, payment_method,
			total_amount, payment_date, cancelled_at, cancelled_by, doc, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.ReceiptNo, p.Sequence, p.EnrollmentID, p.AcademicYearID, p.Status, p.PaymentMethod,
		p.TotalAmount, p.PaymentDate, null.TimeFromPtr(p.CancelledAt), null.NewString(p.CancelledBy, p.CancelledBy != ""),
		doc, p.CreatedAt,
	)
	if err != nil {
		return ledger.Payment{}, mapErr(err, "receipt "+p.ReceiptNo)
	}
	return p, nil
}

func (r *repos) GetPayment(ctx context.Context, id string, forUpdate bool) (ledger.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var row paymentRow
	if err := sqlx.GetContext(ctx, r.q, &row, q, id); err != nil {
		return ledger.Payment{}, mapErr(err, "payment", id)
	}
	return row.toPayment()
}

func (r *repos) GetPaymentByReceipt(ctx context.Context, receiptNo string) (ledger.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE receipt_no = $1`
	var row paymentRow
	if err := sqlx.GetContext(ctx, r.q, &row, q, receiptNo); err != nil {
		return ledger.Payment{}, mapErr(err, "payment", receiptNo)
	}
	return row.toPayment()
}

func (r *repos) CancelPayment(ctx context.Context, p ledger.Payment) (ledger.Payment, error) {
	doc, err := marshalDoc(p)
	if err != nil {
		return ledger.Payment{}, err
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE payments SET status = $2, cancelled_at = $3, cancelled_by = $4, doc = $5
		WHERE id = $1 AND status = $6`,
		p.ID, p.Status, null.TimeFromPtr(p.CancelledAt), null.NewString(p.CancelledBy, p.CancelledBy != ""), doc,
		ledger.PaymentActive,
	)
	if err != nil {
		return ledger.Payment{}, mapErr(err, "payment")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ledger.Payment{}, errors.Wrap(err, "cancelling payment")
	}
	if n == 0 {
		if _, err := r.GetPayment(ctx, p.ID, false); err != nil {
			return ledger.Payment{}, err
		}
		return ledger.Payment{}, core.ErrWriteConflict
	}
	return p, nil
}

func (r *repos) QueryPayments(ctx context.Context, filter ledger.PaymentFilter) ([]ledger.Payment, error) {
	var w where
	if filter.EnrollmentID != "" {
		w.add("enrollment_id = $%d", filter.EnrollmentID)
	}
	if filter.AcademicYearID != "" {
		w.add("academic_year_id = $%d", filter.AcademicYearID)
	}
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}
	if filter.Method != "" {
		w.add("payment_method = $%d", filter.Method)
	}
	if !filter.From.IsZero() {
		w.add("payment_date >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		w.add("payment_date < $%d", filter.To)
	}

	var rows []paymentRow
	q := `SELECT ` + paymentColumns + ` FROM payments` + w.String() + ` ORDER BY academic_year_id, sequence`
	if err := sqlx.SelectContext(ctx, r.q, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting payments")
	}

	payments := make([]ledger.Payment, 0, len(rows))
	for _, row := range rows {
		p, err := row.toPayment()
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, nil
}

// NextReceiptSequence runs within the caller's transaction: a rolled back collect does not consume a number.
func (r *repos) NextReceiptSequence(ctx context.Context, academicYearID string) (int64, error) {
	var seq int64
	q := `
		INSERT INTO receipt_counters (academic_year_id, value) VALUES ($1, 1)
		ON CONFLICT (academic_year_id) DO UPDATE SET value = receipt_counters.value + 1
		RETURNING value`
	if err := sqlx.GetContext(ctx, r.q, &seq, q, academicYearID); err != nil {
		return 0, mapErr(errors.Wrap(err, "incrementing receipt counter"), "")
	}
	return seq, nil
}
