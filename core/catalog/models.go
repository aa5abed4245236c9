package catalog

import (
	"strings"
	"time"

	"github.com/trezcool/feeledger/core"
)

// Fee categories
const (
	CategoryRegular     = "REGULAR"
	CategoryOptional    = "OPTIONAL"
	CategoryActivity    = "ACTIVITY"
	CategoryExamination = "EXAMINATION"
	CategoryLateFee     = "LATE_FEE"
)

// Scholarship types
const (
	TypeMerit      = "MERIT"
	TypeNeedBased  = "NEED_BASED"
	TypeGovernment = "GOVERNMENT"
	TypeSports     = "SPORTS"
	TypeMinority   = "MINORITY"
	TypeGeneral    = "GENERAL"
)

var (
	FeeCategories    = []string{CategoryRegular, CategoryOptional, CategoryActivity, CategoryExamination, CategoryLateFee}
	ScholarshipTypes = []string{TypeMerit, TypeNeedBased, TypeGovernment, TypeSports, TypeMinority, TypeGeneral}
)

type FeeTemplate struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	IsActive     bool      `json:"is_active"`
	DisplayOrder int       `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

type ScholarshipTemplate struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	IsActive     bool      `json:"is_active"`
	DisplayOrder int       `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

// NewFeeTemplate contains information needed to create a new FeeTemplate.
type NewFeeTemplate struct {
	Name         string `json:"name" validate:"required,max=100"`
	Category     string `json:"category" validate:"required,feecategory"`
	DisplayOrder int    `json:"display_order" validate:"gte=0"`
}

func (nt *NewFeeTemplate) Clean() {
	nt.Name = core.CleanString(nt.Name)
	nt.Category = strings.ToUpper(core.CleanString(nt.Category))
}

// NewScholarshipTemplate contains information needed to create a new ScholarshipTemplate.
type NewScholarshipTemplate struct {
	Name         string `json:"name" validate:"required,max=100"`
	Type         string `json:"type" validate:"required,scholarshiptype"`
	DisplayOrder int    `json:"display_order" validate:"gte=0"`
}

func (nt *NewScholarshipTemplate) Clean() {
	nt.Name = core.CleanString(nt.Name)
	nt.Type = strings.ToUpper(core.CleanString(nt.Type))
}

// UpdateTemplate defines what may be changed on an existing template.
// Kind is the category of a FeeTemplate or the type of a ScholarshipTemplate; it is frozen once referenced.
type UpdateTemplate struct {
	Name         *string `json:"name" validate:"omitempty,min=1,max=100"`
	Kind         *string `json:"kind"`
	DisplayOrder *int    `json:"display_order" validate:"omitempty,gte=0"`
	IsActive     *bool   `json:"is_active"`
}

func (ut *UpdateTemplate) Clean() {
	if ut.Name != nil {
		name := core.CleanString(*ut.Name)
		ut.Name = &name
	}
	if ut.Kind != nil {
		kind := strings.ToUpper(core.CleanString(*ut.Kind))
		ut.Kind = &kind
	}
}

type QueryFilter struct {
	Search   string   `query:"search"`
	IsActive *bool    `query:"is_active"`
	Kinds    []string `query:"kind"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	kinds := core.CleanStrings(qf.Kinds)
	for i := range kinds {
		kinds[i] = strings.ToUpper(kinds[i])
	}
	qf.Kinds = kinds
}

// Match reports whether a template with the given fields passes the filter.
func (qf QueryFilter) Match(name, kind string, isActive bool) bool {
	if qf.Search != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(qf.Search)) {
		return false
	}
	if qf.IsActive != nil && *qf.IsActive != isActive {
		return false
	}
	if len(qf.Kinds) > 0 && !contains(qf.Kinds, kind) {
		return false
	}
	return true
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
