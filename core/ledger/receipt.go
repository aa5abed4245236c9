package ledger

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"github.com/trezcool/feeledger/core"
)

const (
	receiptTemplate = "payment_receipt"
	receiptCategory = "payment-receipt"
)

// receiptNumber formats a receipt number as PREFIX/YEAR-CODE/000042.
func receiptNumber(prefix, yearName string, seq int64) string {
	if prefix = core.CleanString(prefix); prefix == "" {
		prefix = "RCT"
	}
	return fmt.Sprintf("%s/%s/%06d", strings.ToUpper(prefix), yearCode(yearName), seq)
}

// yearCode turns an academic year name into a receipt-safe code, ie. "AY 2025/26" -> "AY-2025-26".
func yearCode(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToUpper(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	code := strings.TrimSuffix(b.String(), "-")
	if code == "" {
		return "NA"
	}
	return code
}

type (
	receiptLine struct {
		Name    string
		Amount  string
		Balance string
	}

	receiptData struct {
		GuardianName  string
		StudentName   string
		AdmissionNo   string
		ClassName     string
		AcademicYear  string
		ReceiptNo     string
		PaymentDate   string
		PaymentMethod string
		TotalAmount   string
		Items         []receiptLine
		NetDue        string
	}
)

// sendReceipt mails the receipt of a collected payment to the student's guardian.
// Delivery is asynchronous and its failures are only logged.
func (svc *Service) sendReceipt(p Payment, e Enrollment) {
	if svc.mailSvc == nil || !svc.conf.Ledger.SendReceipts || p.Student.GuardianEmail == "" {
		return
	}
	to, err := mail.ParseAddress(p.Student.GuardianEmail)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("receipt %s: invalid guardian email %q", p.ReceiptNo, p.Student.GuardianEmail), err)
		return
	}
	if to.Name == "" {
		to.Name = p.Student.GuardianName
	}

	data := receiptData{
		GuardianName:  p.Student.GuardianName,
		StudentName:   p.Student.Name,
		AdmissionNo:   p.Student.AdmissionNo,
		ClassName:     p.Class.Name,
		AcademicYear:  p.AcademicYear.Name,
		ReceiptNo:     p.ReceiptNo,
		PaymentDate:   p.PaymentDate.Format("02 Jan 2006"),
		PaymentMethod: p.PaymentMethod,
		TotalAmount:   p.TotalAmount.StringFixed(2),
		NetDue:        e.Totals.NetAmount.Due.StringFixed(2),
	}
	if data.GuardianName == "" {
		data.GuardianName = "Parent/Guardian"
	}
	for _, it := range p.PaymentItems {
		data.Items = append(data.Items, receiptLine{
			Name:    it.FeeTemplateName,
			Amount:  it.Amount.StringFixed(2),
			Balance: it.FeeBalance.StringFixed(2),
		})
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{*to},
		Subject:      fmt.Sprintf("Payment receipt %s", p.ReceiptNo),
		Categories:   []string{receiptCategory},
		Args: map[string]string{
			"receipt_no":       p.ReceiptNo,
			"payment_id":       p.ID,
			"enrollment_id":    p.EnrollmentID,
			"academic_year_id": p.AcademicYearID,
		},
		TemplateName: receiptTemplate,
		TemplateData: data,
	}
	svc.mailSvc.SendMessages(msg)
}
