package ledger_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/catalog"
	"github.com/trezcool/feeledger/core/ledger"
	emailsvc "github.com/trezcool/feeledger/services/email"
	testutil "github.com/trezcool/feeledger/tests"
)

func TestService_CollectPayment_Scenario(t *testing.T) {
	env := testutil.NewEnv(t)
	sc := env.SeedScenario(t)
	ctx := context.Background()

	e := env.Enroll(t, testutil.StudentID, testutil.Class5ID)

	p1 := env.Collect(t, e, map[string]string{sc.School.ID: "1000"})
	e, err := env.LedgerSvc.GetEnrollment(ctx, e.ID)
	require.NoError(t, err)
	assertMoney(t, "1000", e.Totals.Fees.Paid)
	assertMoney(t, "1000", e.Totals.NetAmount.Paid)
	assertMoney(t, "300", e.Totals.NetAmount.Due)
	assert.Equal(t, ledger.StatusPartial, e.FeeStatus.Status)
	assertMoney(t, "0", e.FeeStatus.OverdueAmount)

	p2 := env.Collect(t, e, map[string]string{sc.Van.ID: "300"})
	e, err = env.LedgerSvc.GetEnrollment(ctx, e.ID)
	require.NoError(t, err)
	assertMoney(t, "0", e.Totals.NetAmount.Due)
	assert.Equal(t, ledger.StatusPaid, e.FeeStatus.Status)
	assertMoney(t, "200", feeLine(t, e, sc.Van.ID).AmountDue, "line balances are not reduced by scholarships")
	require.NoError(t, e.CheckInvariants())

	payments, err := env.LedgerSvc.GetPaymentsForEnrollment(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, p1.ID, payments[0].ID)
	assert.Equal(t, p2.ID, payments[1].ID)
	assert.NotEqual(t, p1.ReceiptNo, p2.ReceiptNo)
	assert.Less(t, p1.Sequence, p2.Sequence)
	assert.Equal(t, "RCT/AY-2025-26/000001", p1.ReceiptNo)
	assert.Equal(t, "RCT/AY-2025-26/000002", p2.ReceiptNo)
}

func TestService_CollectPayment_Record(t *testing.T) {
	env := testutil.NewEnv(t)
	sc := env.SeedScenario(t)
	ctx := context.Background()

	now := time.Date(2025, time.July, 14, 9, 30, 0, 0, time.UTC)
	defer ledger.SetNowFunc(func() time.Time { return now })()

	e := env.Enroll(t, testutil.StudentID, testutil.Class5ID)
	school := feeLine(t, e, sc.School.ID)
	van := feeLine(t, e, sc.Van.ID)

	p, err := env.LedgerSvc.CollectPayment(ctx, testutil.Bursar, ledger.NewPayment{
		EnrollmentID: e.ID,
		Items: []ledger.PaymentItemInput{
			{FeeID: school.ID, Amount: testutil.Money("400.004")},
			{FeeID: van.ID, Amount: testutil.Money("100")},
		},
		TotalAmount:   testutil.Money("500"),
		PaymentMethod: " online ",
		Remarks:       "first term",
	})
	require.NoError(t, err)

	assert.Equal(t, ledger.PaymentActive, p.Status)
	assert.Equal(t, ledger.MethodOnline, p.PaymentMethod)
	assert.True(t, p.PaymentDate.Equal(now), "payment date defaults to now")
	assert.Equal(t, "first term", p.Remarks)
	assert.Equal(t, testutil.Bursar.DisplayName(), p.CreatedBy)
	assert.Equal(t, e.ID, p.EnrollmentID)
	assert.Equal(t, testutil.StudentID, p.StudentID)
	assert.Equal(t, "Amani Juma", p.Student.Name)
	assert.Equal(t, "Class 5", p.Class.Name)
	require.Len(t, p.PaymentItems, 2)
	assert.Equal(t, "School Fee", p.PaymentItems[0].FeeTemplateName)
	assertMoney(t, "400", p.PaymentItems[0].Amount, "amounts are rounded to cents")
	assertMoney(t, "600", p.PaymentItems[0].FeeBalance)
	assertMoney(t, "400", p.PaymentItems[1].FeeBalance)

	byReceipt, err := env.LedgerSvc.GetPaymentByReceipt(ctx, p.ReceiptNo)
	require.NoError(t, err)
	assert.Equal(t, p.ID, byReceipt.ID)

	e, err = env.LedgerSvc.GetEnrollment(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, e.FeeStatus.LastPaymentDate)
	assert.True(t, e.FeeStatus.LastPaymentDate.Equal(now))

	backdated := now.AddDate(0, 0, -10)
	p, err = env.LedgerSvc.CollectPayment(ctx, testutil.Bursar, ledger.NewPayment{
		EnrollmentID:  e.ID,
		Items:         []ledger.PaymentItemInput{{FeeID: school.ID, Amount: testutil.Money("50")}},
		TotalAmount:   testutil.Money("50"),
		PaymentMethod: ledger.MethodCheque,
		PaymentDate:   &backdated,
	})
	require.NoError(t, err)
	assert.True(t, p.PaymentDate.Equal(backdated))
}

func TestService_CollectPayment_Errors(t *testing.T) {
	env := testutil.NewEnv(t)
	sc := env.SeedScenario(t)
	ctx := context.Background()

	e := env.Enroll(t, testutil.StudentID, testutil.Class5ID)
	other := env.Enroll(t, testutil.Student2ID, testutil.Class6ID)
	school := feeLine(t, e, sc.School.ID).ID
	van := feeLine(t, e, sc.Van.ID).ID

	item := func(feeID, amount string) ledger.PaymentItemInput {
		return ledger.PaymentItemInput{FeeID: feeID, Amount: testutil.Money(amount)}
	}
	tests := []struct {
		name    string
		np      ledger.NewPayment
		field   string
		errFunc func(error) bool
	}{
		{
			name:    "no items",
			np:      ledger.NewPayment{EnrollmentID: e.ID, TotalAmount: testutil.Money("10"), PaymentMethod: ledger.MethodCash},
			field:   "payment_items",
			errFunc: core.IsValidation,
		},
		{
			name: "unknown method",
			np: ledger.NewPayment{
				EnrollmentID: e.ID, Items: []ledger.PaymentItemInput{item(school, "10")},
				TotalAmount: testutil.Money("10"), PaymentMethod: "BITCOIN",
			},
			field:   "payment_method",
			errFunc: core.IsValidation,
		},
		{
			name: "zero amount",
			np: ledger.NewPayment{
				EnrollmentID: e.ID, Items: []ledger.PaymentItemInput{item(school, "0"), item(van, "10")},
				TotalAmount: testutil.Money("10"), PaymentMethod: ledger.MethodCash,
			},
			field:   "payment_items[0].amount",
			errFunc: core.IsValidation,
		},
		{
			name: "total mismatch",
			np: ledger.NewPayment{
				EnrollmentID: e.ID, Items: []ledger.PaymentItemInput{item(school, "10"), item(van, "10")},
				TotalAmount: testutil.Money("25"), PaymentMethod: ledger.MethodCash,
			},
			field:   "total_amount",
			errFunc: core.IsValidation,
		},
		{
			name: "duplicate fee line",
			np: ledger.NewPayment{
				EnrollmentID: e.ID, Items: []ledger.PaymentItemInput{item(school, "10"), item(school, "10")},
				TotalAmount: testutil.Money("20"), PaymentMethod: ledger.MethodCash,
			},
			field:   "payment_items[1].fee_id",
			errFunc: core.IsValidation,
		},
		{
			name: "fee line of another enrollment",
			np: ledger.NewPayment{
				EnrollmentID: e.ID, Items: []ledger.PaymentItemInput{item(other.Fees[0].ID, "10")},
				TotalAmount: testutil.Money("10"), PaymentMethod: ledger.MethodCash,
			},
			field:   "payment_items[0].fee_id",
			errFunc: core.IsValidation,
		},
		{
			name: "amount above the line balance",
			np: ledger.NewPayment{
				EnrollmentID: e.ID, Items: []ledger.PaymentItemInput{item(school, "100"), item(van, "500.01")},
				TotalAmount: testutil.Money("600.01"), PaymentMethod: ledger.MethodCash,
			},
			field:   "payment_items[1].amount",
			errFunc: core.IsValidation,
		},
		{
			name: "unknown enrollment",
			np: ledger.NewPayment{
				EnrollmentID: "missing", Items: []ledger.PaymentItemInput{item(school, "10")},
				TotalAmount: testutil.Money("10"), PaymentMethod: ledger.MethodCash,
			},
			errFunc: core.IsNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.LedgerSvc.CollectPayment(ctx, testutil.Bursar, tt.np)
			if !assert.Error(t, err) {
				return
			}
			assert.True(t, tt.errFunc(err), "unexpected error: %v", err)
			if tt.field != "" {
				var verr *core.ValidationError
				if assert.True(t, errors.As(err, &verr)) && assert.NotEmpty(t, verr.Fields) {
					assert.Equal(t, tt.field, verr.Fields[0].Field)
				}
			}
		})
	}

	// nothing was written by the rejected payments
	e, err := env.LedgerSvc.GetEnrollment(ctx, e.ID)
	require.NoError(t, err)
	assertMoney(t, "0", e.Totals.Fees.Paid)
	payments, err := env.LedgerSvc.GetPaymentsForEnrollment(ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestService_CancelPayment_RoundTrip(t *testing.T) {
	env := testutil.NewEnv(t)
	sc := env.SeedScenario(t)
	ctx := context.Background()

	before := env.Enroll(t, testutil.StudentID, testutil.Class5ID)
	p := env.Collect(t, before, map[string]string{sc.School.ID: "1000", sc.Van.ID: "250"})

	cancelled, err := env.LedgerSvc.CancelPayment(ctx, testutil.Admin, p.ID, "cheque bounced")
	require.NoError(t, err)
	assert.Equal(t, ledger.PaymentCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, testutil.Admin.DisplayName(), cancelled.CancelledBy)
	assert.Equal(t, "cheque bounced", cancelled.CancellationReason)
	assert.Equal(t, "Cancelled: cheque bounced", cancelled.Remarks)
	assert.Equal(t, p.ReceiptNo, cancelled.ReceiptNo)

	after, err := env.LedgerSvc.GetEnrollment(ctx, before.ID)
	require.NoError(t, err)
	assertSameBalances(t, before, after)
	assert.Nil(t, after.FeeStatus.LastPaymentDate)

	// the record is kept
	payments, err := env.LedgerSvc.GetPaymentsForEnrollment(ctx, before.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.True(t, payments[0].IsCancelled())

	// cancelling again changes nothing
	_, err = env.LedgerSvc.CancelPayment(ctx, testutil.Admin, p.ID, "again")
	assert.True(t, errors.Is(err, ledger.ErrPaymentAlreadyCancelled), "unexpected error: %v", err)
	again, err := env.LedgerSvc.GetEnrollment(ctx, before.ID)
	require.NoError(t, err)
	assertSameBalances(t, before, again)
	stored, err := env.LedgerSvc.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "cheque bounced", stored.CancellationReason)
}

func assertSameBalances(t *testing.T, want, got ledger.Enrollment) {
	t.Helper()
	type balances struct {
		Fees      []ledger.EnrollmentFee  `json:"fees"`
		Totals    ledger.EnrollmentTotals `json:"totals"`
		FeeStatus string                  `json:"fee_status"`
	}
	w, err := json.Marshal(balances{want.Fees, want.Totals, want.FeeStatus.Status})
	require.NoError(t, err)
	g, err := json.Marshal(balances{got.Fees, got.Totals, got.FeeStatus.Status})
	require.NoError(t, err)
	assert.JSONEq(t, string(w), string(g))
}

func TestService_CancelPayment_Errors(t *testing.T) {
	env := testutil.NewEnv(t)
	sc := env.SeedScenario(t)
	ctx := context.Background()

	e := env.Enroll(t, testutil.StudentID, testutil.Class5ID)
	p := env.Collect(t, e, map[string]string{sc.School.ID: "100"})

	_, err := env.LedgerSvc.CancelPayment(ctx, testutil.Bursar, p.ID, "typo")
	assert.True(t, core.IsAuthorization(err), "only admins may cancel: %v", err)

	_, err = env.LedgerSvc.CancelPayment(ctx, testutil.Admin, p.ID, "   ")
	assert.True(t, core.IsValidation(err), "a reason is required: %v", err)

	_, err = env.LedgerSvc.CancelPayment(ctx, testutil.Admin, "missing", "typo")
	assert.True(t, core.IsNotFound(err))

	stored, err := env.LedgerSvc.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PaymentActive, stored.Status)
}

func TestService_StatusTransitions(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	tuition := env.CreateFeeTemplate(t, "Tuition Fee", catalog.CategoryRegular, 1)
	env.CreateStructure(t, ledger.NewFeeStructure{
		AcademicYearID: testutil.YearID,
		ClassID:        testutil.Class5ID,
		Name:           "Class 5",
		FeeItems:       []ledger.FeeItemInput{{TemplateID: tuition.ID, Amount: testutil.Money("1000")}},
	})
	e := env.Enroll(t, testutil.StudentID, testutil.Class5ID)
	assert.Equal(t, ledger.StatusOverdue, e.FeeStatus.Status)

	first := env.Collect(t, e, map[string]string{tuition.ID: "400"})
	e, err := env.LedgerSvc.GetEnrollment(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPartial, e.FeeStatus.Status)

	second := env.Collect(t, e, map[string]string{tuition.ID: "600"})
	e, err = env.LedgerSvc.GetEnrollment(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPaid, e.FeeStatus.Status)

	_, err = env.LedgerSvc.CancelPayment(ctx, testutil.Admin, second.ID, "wrong student")
	require.NoError(t, err)
	e, err = env.LedgerSvc.GetEnrollment(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPartial, e.FeeStatus.Status)
	assertMoney(t, "400", e.Totals.NetAmount.Paid)
	require.NotNil(t, e.FeeStatus.LastPaymentDate)
	assert.True(t, e.FeeStatus.LastPaymentDate.Equal(first.PaymentDate), "last payment date falls back to the remaining payment")

	_, err = env.LedgerSvc.CancelPayment(ctx, testutil.Admin, first.ID, "wrong student")
	require.NoError(t, err)
	e, err = env.LedgerSvc.GetEnrollment(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusOverdue, e.FeeStatus.Status)
}

func TestService_CollectPayment_Concurrent(t *testing.T) {
	env := testutil.NewEnv(t)
	sc := env.SeedScenario(t)
	ctx := context.Background()

	e := env.Enroll(t, testutil.StudentID, testutil.Class5ID)
	school := feeLine(t, e, sc.School.ID).ID

	const workers = 15 // 100 each against a balance of 1000
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		receipts = make(map[string]bool)
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := env.LedgerSvc.CollectPayment(ctx, testutil.Bursar, ledger.NewPayment{
				EnrollmentID:  e.ID,
				Items:         []ledger.PaymentItemInput{{FeeID: school, Amount: testutil.Money("100")}},
				TotalAmount:   testutil.Money("100"),
				PaymentMethod: ledger.MethodCash,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if core.IsValidation(err) {
					rejected++
				}
				return
			}
			receipts[p.ReceiptNo] = true
		}()
	}
	wg.Wait()

	assert.Len(t, receipts, 10, "receipt numbers are unique")
	assert.Equal(t, workers-10, rejected)

	e, err := env.LedgerSvc.GetEnrollment(ctx, e.ID)
	require.NoError(t, err)
	line := feeLine(t, e, sc.School.ID)
	assertMoney(t, "1000", line.AmountPaid)
	assertMoney(t, "0", line.AmountDue)
	require.NoError(t, e.CheckInvariants())

	payments, err := env.LedgerSvc.GetPaymentsForEnrollment(ctx, e.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 10)
}

func TestService_CollectPayment_SendsReceipt(t *testing.T) {
	env := testutil.NewEnv(t)
	sc := env.SeedScenario(t)
	emailsvc.ResetSentMessages()
	defer emailsvc.ResetSentMessages()

	e := env.Enroll(t, testutil.StudentID, testutil.Class5ID)
	p := env.Collect(t, e, map[string]string{sc.School.ID: "1000"})

	sent := emailsvc.SentMessagesCopy()
	require.Len(t, sent, 1)
	msg := sent[0]
	require.Len(t, msg.To, 1)
	assert.Equal(t, "neema@family.test", msg.To[0].Address)
	assert.Equal(t, "Neema Juma", msg.To[0].Name)
	assert.Equal(t, "Payment receipt "+p.ReceiptNo, msg.Subject)
	assert.Equal(t, []string{"payment-receipt"}, msg.Categories)
	assert.Equal(t, p.ReceiptNo, msg.Args["receipt_no"])
	assert.Equal(t, p.ID, msg.Args["payment_id"])
	assert.Equal(t, e.ID, msg.Args["enrollment_id"])
	assert.True(t, strings.Contains(msg.TextContent, p.ReceiptNo), msg.TextContent)
	assert.True(t, strings.Contains(msg.TextContent, "School Fee: 1000.00 (balance 0.00)"), msg.TextContent)
	assert.True(t, strings.Contains(msg.TextContent, "Outstanding balance: 300.00"), msg.TextContent)

	// no guardian email, no receipt
	other := env.Enroll(t, testutil.Student2ID, testutil.Class5ID)
	env.Collect(t, other, map[string]string{sc.School.ID: "10"})
	assert.Len(t, emailsvc.SentMessagesCopy(), 1)

	env.Conf.Ledger.SendReceipts = false
	env.Collect(t, e, map[string]string{sc.Van.ID: "10"})
	assert.Len(t, emailsvc.SentMessagesCopy(), 1)
}
