package catalog

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/feeledger/core"
)

var (
	feeCategoryTag  = "feecategory"
	feeCategoryText = "must be one of REGULAR, OPTIONAL, ACTIVITY, EXAMINATION, LATE_FEE"

	scholarshipTypeTag  = "scholarshiptype"
	scholarshipTypeText = "must be one of MERIT, NEED_BASED, GOVERNMENT, SPORTS, MINORITY, GENERAL"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(feeCategoryTag, oneOfValidation(FeeCategories))
	core.RegisterCustomTranslation(validate, translator, feeCategoryTag, feeCategoryText)

	_ = validate.RegisterValidation(scholarshipTypeTag, oneOfValidation(ScholarshipTypes))
	core.RegisterCustomTranslation(validate, translator, scholarshipTypeTag, scholarshipTypeText)
}

func oneOfValidation(allowed []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return contains(allowed, fl.Field().String())
	}
}

func IsFeeCategory(s string) bool     { return contains(FeeCategories, s) }
func IsScholarshipType(s string) bool { return contains(ScholarshipTypes, s) }
