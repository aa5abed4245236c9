package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fee statuses
const (
	StatusPaid    = "PAID"
	StatusPartial = "PARTIAL"
	StatusOverdue = "OVERDUE"
)

// Payment methods
const (
	MethodCash   = "CASH"
	MethodOnline = "ONLINE"
	MethodCheque = "CHEQUE"
)

// Payment statuses
const (
	PaymentActive    = "ACTIVE"
	PaymentCancelled = "CANCELLED"
)

// Student statuses mirrored on enrollments
const (
	StudentActive   = "active"
	StudentInactive = "inactive"
)

var PaymentMethods = []string{MethodCash, MethodOnline, MethodCheque}

// Directory records (owned by the student records system)

type (
	AcademicYear struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		StartDate time.Time `json:"start_date"`
		EndDate   time.Time `json:"end_date"`
	}

	Class struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Grade string `json:"grade"`
	}

	Student struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		AdmissionNo   string `json:"admission_no"`
		GuardianName  string `json:"guardian_name"`
		GuardianEmail string `json:"guardian_email"`
		GuardianPhone string `json:"guardian_phone"`
		Status        string `json:"status"`
	}
)

// Snapshots are copied into enrollments and payments at write time and never refreshed.

type (
	StudentSnapshot struct {
		Name          string `json:"name"`
		AdmissionNo   string `json:"admission_no"`
		GuardianName  string `json:"guardian_name,omitempty"`
		GuardianEmail string `json:"guardian_email,omitempty"`
		GuardianPhone string `json:"guardian_phone,omitempty"`
		Status        string `json:"status"`
	}

	ClassSnapshot struct {
		Name    string `json:"name"`
		Grade   string `json:"grade,omitempty"`
		Section string `json:"section,omitempty"`
	}

	AcademicYearSnapshot struct {
		Name      string    `json:"name"`
		StartDate time.Time `json:"start_date"`
		EndDate   time.Time `json:"end_date"`
	}
)

// Fee Structure

type (
	FeeItem struct {
		ID                         string          `json:"id"`
		TemplateID                 string          `json:"template_id"`
		TemplateName               string          `json:"template_name"`
		TemplateCategory           string          `json:"template_category"`
		Amount                     decimal.Decimal `json:"amount"`
		IsCompulsory               bool            `json:"is_compulsory"`
		IsEditableDuringEnrollment bool            `json:"is_editable_during_enrollment"`
		Order                      int             `json:"order"`
	}

	ScholarshipItem struct {
		ID                         string          `json:"id"`
		TemplateID                 string          `json:"template_id"`
		TemplateName               string          `json:"template_name"`
		TemplateType               string          `json:"template_type"`
		Amount                     decimal.Decimal `json:"amount"`
		IsAutoApplied              bool            `json:"is_auto_applied"`
		IsEditableDuringEnrollment bool            `json:"is_editable_during_enrollment"`
		Order                      int             `json:"order"`
	}

	FeeTotals struct {
		Compulsory decimal.Decimal `json:"compulsory"`
		Optional   decimal.Decimal `json:"optional"`
		Total      decimal.Decimal `json:"total"`
	}

	ScholarshipTotals struct {
		AutoApplied decimal.Decimal `json:"auto_applied"`
		Manual      decimal.Decimal `json:"manual"`
		Total       decimal.Decimal `json:"total"`
	}

	FeeStructure struct {
		ID                string            `json:"id"`
		AcademicYearID    string            `json:"academic_year_id"`
		ClassID           string            `json:"class_id"`
		Name              string            `json:"name"`
		FeeItems          []FeeItem         `json:"fee_items"`
		ScholarshipItems  []ScholarshipItem `json:"scholarship_items"`
		TotalFees         FeeTotals         `json:"total_fees"`
		TotalScholarships ScholarshipTotals `json:"total_scholarships"`
		IsActive          bool              `json:"is_active"`
		Version           int64             `json:"version"`
		CreatedBy         string            `json:"created_by"`
		CreatedAt         time.Time         `json:"created_at"` // UTC
		UpdatedAt         time.Time         `json:"updated_at"` // UTC
	}
)

// Student Enrollment

type (
	EnrollmentFee struct {
		ID               string          `json:"id"`
		FeeItemID        string          `json:"fee_item_id"`
		TemplateID       string          `json:"template_id"`
		TemplateName     string          `json:"template_name"`
		TemplateCategory string          `json:"template_category"`
		Amount           decimal.Decimal `json:"amount"`
		OriginalAmount   decimal.Decimal `json:"original_amount"`
		AmountPaid       decimal.Decimal `json:"amount_paid"`
		AmountDue        decimal.Decimal `json:"amount_due"`
		IsCompulsory     bool            `json:"is_compulsory"`
	}

	EnrollmentScholarship struct {
		ID                string          `json:"id"`
		ScholarshipItemID string          `json:"scholarship_item_id"`
		TemplateID        string          `json:"template_id"`
		TemplateName      string          `json:"template_name"`
		TemplateType      string          `json:"template_type"`
		Amount            decimal.Decimal `json:"amount"`
		OriginalAmount    decimal.Decimal `json:"original_amount"`
		AppliedDate       time.Time       `json:"applied_date"`
		AppliedBy         string          `json:"applied_by"`
		IsActive          bool            `json:"is_active"`
		IsAutoApplied     bool            `json:"is_auto_applied"`
	}

	AmountTotals struct {
		Total decimal.Decimal `json:"total"`
		Paid  decimal.Decimal `json:"paid"`
		Due   decimal.Decimal `json:"due"`
	}

	AppliedTotals struct {
		Applied decimal.Decimal `json:"applied"`
	}

	EnrollmentTotals struct {
		Fees         AmountTotals  `json:"fees"`
		Scholarships AppliedTotals `json:"scholarships"`
		NetAmount    AmountTotals  `json:"net_amount"`
	}

	FeeStatus struct {
		Status          string          `json:"status"`
		LastPaymentDate *time.Time      `json:"last_payment_date"`
		NextDueDate     *time.Time      `json:"next_due_date"`
		OverdueAmount   decimal.Decimal `json:"overdue_amount"`
	}

	Enrollment struct {
		ID             string                  `json:"id"`
		StudentID      string                  `json:"student_id"`
		AcademicYearID string                  `json:"academic_year_id"`
		ClassID        string                  `json:"class_id"`
		Section        string                  `json:"section"`
		FeeStructureID string                  `json:"fee_structure_id"`
		Student        StudentSnapshot         `json:"student"`
		Class          ClassSnapshot           `json:"class"`
		AcademicYear   AcademicYearSnapshot    `json:"academic_year"`
		Fees           []EnrollmentFee         `json:"fees"`
		Scholarships   []EnrollmentScholarship `json:"scholarships"`
		Totals         EnrollmentTotals        `json:"totals"`
		FeeStatus      FeeStatus               `json:"fee_status"`
		IsActive       bool                    `json:"is_active"`
		Version        int64                   `json:"version"`
		CreatedBy      string                  `json:"created_by"`
		CreatedAt      time.Time               `json:"created_at"` // UTC
		UpdatedAt      time.Time               `json:"updated_at"` // UTC
	}
)

func (e Enrollment) feeIndex() map[string]int {
	idx := make(map[string]int, len(e.Fees))
	for i, f := range e.Fees {
		idx[f.ID] = i
	}
	return idx
}

// Payment

type (
	PaymentItem struct {
		FeeID           string          `json:"fee_id"`
		FeeTemplateID   string          `json:"fee_template_id"`
		FeeTemplateName string          `json:"fee_template_name"`
		Amount          decimal.Decimal `json:"amount"`
		FeeBalance      decimal.Decimal `json:"fee_balance"` // line balance right after this payment
	}

	Payment struct {
		ID                 string               `json:"id"`
		ReceiptNo          string               `json:"receipt_no"`
		Sequence           int64                `json:"sequence"`
		EnrollmentID       string               `json:"student_enrollment_id"`
		StudentID          string               `json:"student_id"`
		AcademicYearID     string               `json:"academic_year_id"`
		ClassID            string               `json:"class_id"`
		TotalAmount        decimal.Decimal      `json:"total_amount"`
		PaymentMethod      string               `json:"payment_method"`
		PaymentDate        time.Time            `json:"payment_date"`
		Remarks            string               `json:"remarks"`
		Student            StudentSnapshot      `json:"student"`
		Class              ClassSnapshot        `json:"class"`
		AcademicYear       AcademicYearSnapshot `json:"academic_year"`
		PaymentItems       []PaymentItem        `json:"payment_items"`
		Status             string               `json:"status"`
		CancelledAt        *time.Time           `json:"cancelled_at,omitempty"`
		CancelledBy        string               `json:"cancelled_by,omitempty"`
		CancellationReason string               `json:"cancellation_reason,omitempty"`
		CreatedBy          string               `json:"created_by"`
		CreatedAt          time.Time            `json:"created_at"` // UTC
	}
)

func (p Payment) IsCancelled() bool { return p.Status == PaymentCancelled }
