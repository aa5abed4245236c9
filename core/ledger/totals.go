package ledger

import "github.com/shopspring/decimal"

// Epsilon is the tolerance used when comparing a client supplied total with the sum of its items.
var Epsilon = decimal.New(1, -2)

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// money normalizes an input amount to cents.
func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ComputeStatus derives the fee status from the net amounts.
// The status is never stored independently of the totals it is computed from.
func ComputeStatus(netPaid, netDue decimal.Decimal) string {
	switch {
	case netDue.Sign() <= 0:
		return StatusPaid
	case netPaid.IsZero():
		return StatusOverdue
	default:
		return StatusPartial
	}
}

// ComputeTotals recomputes the structure-level totals from its items.
func (fs *FeeStructure) ComputeTotals() {
	var fees FeeTotals
	for _, it := range fs.FeeItems {
		if it.IsCompulsory {
			fees.Compulsory = fees.Compulsory.Add(it.Amount)
		} else {
			fees.Optional = fees.Optional.Add(it.Amount)
		}
		fees.Total = fees.Total.Add(it.Amount)
	}

	var schols ScholarshipTotals
	for _, it := range fs.ScholarshipItems {
		if it.IsAutoApplied {
			schols.AutoApplied = schols.AutoApplied.Add(it.Amount)
		} else {
			schols.Manual = schols.Manual.Add(it.Amount)
		}
		schols.Total = schols.Total.Add(it.Amount)
	}

	fs.TotalFees = fees
	fs.TotalScholarships = schols
}

// Recalculate re-derives every line balance, the totals block and the fee status from the lines.
// lastPaymentDate and nextDueDate are left untouched.
func (e *Enrollment) Recalculate() {
	var fees AmountTotals
	for i := range e.Fees {
		f := &e.Fees[i]
		f.AmountDue = nonNegative(f.Amount.Sub(f.AmountPaid))
		fees.Total = fees.Total.Add(f.Amount)
		fees.Paid = fees.Paid.Add(f.AmountPaid)
		fees.Due = fees.Due.Add(f.AmountDue)
	}

	var applied decimal.Decimal
	for _, s := range e.Scholarships {
		if s.IsActive {
			applied = applied.Add(s.Amount)
		}
	}

	netTotal := fees.Total.Sub(applied)
	net := AmountTotals{
		Total: netTotal,
		Paid:  fees.Paid,
		Due:   nonNegative(netTotal.Sub(fees.Paid)),
	}

	e.Totals = EnrollmentTotals{
		Fees:         fees,
		Scholarships: AppliedTotals{Applied: applied},
		NetAmount:    net,
	}

	e.FeeStatus.Status = ComputeStatus(net.Paid, net.Due)
	if e.FeeStatus.Status == StatusOverdue {
		e.FeeStatus.OverdueAmount = net.Due
	} else {
		e.FeeStatus.OverdueAmount = decimal.Zero
	}
}

// CheckInvariants verifies that the derived fields of e agree with its lines.
func (e Enrollment) CheckInvariants() error {
	recomputed := e
	recomputed.Fees = append([]EnrollmentFee(nil), e.Fees...)
	recomputed.Recalculate()

	for i, f := range e.Fees {
		if f.AmountPaid.GreaterThan(f.Amount) {
			return invariantErr("fees[%d] amount_paid %s exceeds amount %s", i, f.AmountPaid, f.Amount)
		}
		if f.AmountPaid.IsNegative() {
			return invariantErr("fees[%d] amount_paid %s is negative", i, f.AmountPaid)
		}
		if !f.AmountDue.Equal(recomputed.Fees[i].AmountDue) {
			return invariantErr("fees[%d] amount_due %s, want %s", i, f.AmountDue, recomputed.Fees[i].AmountDue)
		}
	}

	got, want := e.Totals, recomputed.Totals
	checks := []struct {
		name      string
		got, want decimal.Decimal
	}{
		{"fees.total", got.Fees.Total, want.Fees.Total},
		{"fees.paid", got.Fees.Paid, want.Fees.Paid},
		{"fees.due", got.Fees.Due, want.Fees.Due},
		{"scholarships.applied", got.Scholarships.Applied, want.Scholarships.Applied},
		{"net_amount.total", got.NetAmount.Total, want.NetAmount.Total},
		{"net_amount.paid", got.NetAmount.Paid, want.NetAmount.Paid},
		{"net_amount.due", got.NetAmount.Due, want.NetAmount.Due},
	}
	for _, c := range checks {
		if c.got.Sub(c.want).Abs().GreaterThan(Epsilon) {
			return invariantErr("totals.%s = %s, want %s", c.name, c.got, c.want)
		}
	}
	if e.FeeStatus.Status != recomputed.FeeStatus.Status {
		return invariantErr("fee_status.status = %s, want %s", e.FeeStatus.Status, recomputed.FeeStatus.Status)
	}
	return nil
}
