package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/user"
)

type (
	FeeItemInput struct {
		ID                         string          `json:"id"` // existing line, updates only
		TemplateID                 string          `json:"template_id" validate:"required"`
		Amount                     decimal.Decimal `json:"amount" validate:"gte=0"`
		IsCompulsory               *bool           `json:"is_compulsory"`
		IsEditableDuringEnrollment *bool           `json:"is_editable_during_enrollment"`
		Order                      *int            `json:"order" validate:"omitempty,gte=0"`
	}

	ScholarshipItemInput struct {
		ID                         string          `json:"id"` // existing line, updates only
		TemplateID                 string          `json:"template_id" validate:"required"`
		Amount                     decimal.Decimal `json:"amount" validate:"gte=0"`
		IsAutoApplied              *bool           `json:"is_auto_applied"`
		IsEditableDuringEnrollment *bool           `json:"is_editable_during_enrollment"`
		Order                      *int            `json:"order" validate:"omitempty,gte=0"`
	}

	// NewFeeStructure contains information needed to create a new FeeStructure.
	NewFeeStructure struct {
		AcademicYearID   string                 `json:"academic_year_id" validate:"required"`
		ClassID          string                 `json:"class_id" validate:"required"`
		Name             string                 `json:"name" validate:"required,max=150"`
		FeeItems         []FeeItemInput         `json:"fee_items" validate:"required,min=1,dive"`
		ScholarshipItems []ScholarshipItemInput `json:"scholarship_items" validate:"omitempty,dive"`
	}

	// UpdateFeeStructure replaces the name and/or item lists of a FeeStructure. Nil fields are left unchanged.
	// Items whose ID and template match an existing line keep that line's template snapshot.
	UpdateFeeStructure struct {
		Name             *string                `json:"name" validate:"omitempty,min=1,max=150"`
		FeeItems         []FeeItemInput         `json:"fee_items" validate:"omitempty,dive"`
		ScholarshipItems []ScholarshipItemInput `json:"scholarship_items" validate:"omitempty,dive"`
	}
)

func (nfs *NewFeeStructure) Clean() {
	nfs.AcademicYearID = core.CleanString(nfs.AcademicYearID)
	nfs.ClassID = core.CleanString(nfs.ClassID)
	nfs.Name = core.CleanString(nfs.Name)
	cleanFeeInputs(nfs.FeeItems)
	cleanScholarshipInputs(nfs.ScholarshipItems)
}

func (ufs *UpdateFeeStructure) Clean() {
	if ufs.Name != nil {
		name := core.CleanString(*ufs.Name)
		ufs.Name = &name
	}
	cleanFeeInputs(ufs.FeeItems)
	cleanScholarshipInputs(ufs.ScholarshipItems)
}

func cleanFeeInputs(items []FeeItemInput) {
	for i := range items {
		items[i].ID = core.CleanString(items[i].ID)
		items[i].TemplateID = core.CleanString(items[i].TemplateID)
	}
}

func cleanScholarshipInputs(items []ScholarshipItemInput) {
	for i := range items {
		items[i].ID = core.CleanString(items[i].ID)
		items[i].TemplateID = core.CleanString(items[i].TemplateID)
	}
}

func (svc *Service) CreateFeeStructure(ctx context.Context, actor user.User, nfs NewFeeStructure) (FeeStructure, error) {
	nfs.Clean()
	if err := svc.validate.Struct(nfs); err != nil {
		return FeeStructure{}, err
	}
	if _, err := svc.directory.GetAcademicYear(ctx, nfs.AcademicYearID); err != nil {
		return FeeStructure{}, errors.Wrap(err, "finding academic year")
	}
	if _, err := svc.directory.GetClass(ctx, nfs.ClassID); err != nil {
		return FeeStructure{}, errors.Wrap(err, "finding class")
	}

	feeItems, err := svc.buildFeeItems(ctx, nfs.FeeItems, nil)
	if err != nil {
		return FeeStructure{}, err
	}
	scholItems, err := svc.buildScholarshipItems(ctx, nfs.ScholarshipItems, nil)
	if err != nil {
		return FeeStructure{}, err
	}

	now := svc.now()
	fs := FeeStructure{
		ID:               newID(),
		AcademicYearID:   nfs.AcademicYearID,
		ClassID:          nfs.ClassID,
		Name:             nfs.Name,
		FeeItems:         feeItems,
		ScholarshipItems: scholItems,
		IsActive:         true,
		CreatedBy:        actor.DisplayName(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	fs.ComputeTotals()

	err = svc.runInTx(ctx, "creating fee structure", func(tx Repositories) error {
		if err := ensureNoActiveStructure(ctx, tx, fs.AcademicYearID, fs.ClassID, ""); err != nil {
			return err
		}
		created, err := tx.Structures().CreateStructure(ctx, fs)
		if err != nil {
			return err
		}
		fs = created
		return nil
	})
	if err != nil {
		return FeeStructure{}, err
	}
	return fs, nil
}

func (svc *Service) UpdateFeeStructure(ctx context.Context, id string, ufs UpdateFeeStructure) (FeeStructure, error) {
	ufs.Clean()
	if err := svc.validate.Struct(ufs); err != nil {
		return FeeStructure{}, err
	}
	if ufs.FeeItems != nil && len(ufs.FeeItems) == 0 {
		return FeeStructure{}, core.NewFieldError("fee_items", "a fee structure needs at least one fee item")
	}

	var fs FeeStructure
	err := svc.runInTx(ctx, "updating fee structure", func(tx Repositories) error {
		current, err := tx.Structures().GetStructure(ctx, id)
		if err != nil {
			return err
		}
		if ufs.Name != nil {
			current.Name = *ufs.Name
		}
		if ufs.FeeItems != nil {
			if current.FeeItems, err = svc.buildFeeItems(ctx, ufs.FeeItems, current.FeeItems); err != nil {
				return err
			}
		}
		if ufs.ScholarshipItems != nil {
			if current.ScholarshipItems, err = svc.buildScholarshipItems(ctx, ufs.ScholarshipItems, current.ScholarshipItems); err != nil {
				return err
			}
		}
		current.ComputeTotals()
		current.UpdatedAt = svc.now()

		fs, err = tx.Structures().UpdateStructure(ctx, current)
		return err
	})
	if err != nil {
		return FeeStructure{}, err
	}
	return fs, nil
}

// DeactivateFeeStructure takes a structure out of use. Existing enrollments are not touched.
func (svc *Service) DeactivateFeeStructure(ctx context.Context, id string) (FeeStructure, error) {
	return svc.setStructureActive(ctx, id, false)
}

// ActivateFeeStructure puts a structure back in use, provided its (year, class) has no other active structure.
func (svc *Service) ActivateFeeStructure(ctx context.Context, id string) (FeeStructure, error) {
	return svc.setStructureActive(ctx, id, true)
}

func (svc *Service) setStructureActive(ctx context.Context, id string, active bool) (FeeStructure, error) {
	var fs FeeStructure
	err := svc.runInTx(ctx, "toggling fee structure", func(tx Repositories) error {
		current, err := tx.Structures().GetStructure(ctx, id)
		if err != nil {
			return err
		}
		if current.IsActive == active {
			fs = current
			return nil
		}
		if active {
			if err := ensureNoActiveStructure(ctx, tx, current.AcademicYearID, current.ClassID, current.ID); err != nil {
				return err
			}
		}
		current.IsActive = active
		current.UpdatedAt = svc.now()
		fs, err = tx.Structures().UpdateStructure(ctx, current)
		return err
	})
	if err != nil {
		return FeeStructure{}, err
	}
	return fs, nil
}

func (svc *Service) GetFeeStructure(ctx context.Context, id string) (FeeStructure, error) {
	return svc.store.Structures().GetStructure(ctx, id)
}

func (svc *Service) QueryFeeStructures(ctx context.Context, filter StructureFilter) ([]FeeStructure, error) {
	structures, err := svc.store.Structures().QueryStructures(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying fee structures")
	}
	return structures, nil
}

func ensureNoActiveStructure(ctx context.Context, tx Repositories, academicYearID, classID, exceptID string) error {
	existing, err := tx.Structures().GetActiveStructure(ctx, academicYearID, classID)
	switch {
	case err == nil:
		if existing.ID == exceptID {
			return nil
		}
		return core.NewConflictError("an active fee structure already exists for this academic year and class (%s)", existing.ID)
	case core.IsNotFound(err):
		return nil
	default:
		return errors.Wrap(err, "finding active fee structure")
	}
}

// buildFeeItems resolves fee item inputs into structure lines.
// An input naming an existing line (same ID and template) keeps that line's snapshot; any other input re-resolves its template.
func (svc *Service) buildFeeItems(ctx context.Context, inputs []FeeItemInput, existing []FeeItem) ([]FeeItem, error) {
	prev := make(map[string]FeeItem, len(existing))
	for _, it := range existing {
		prev[it.ID] = it
	}

	seen := make(map[string]bool, len(inputs))
	items := make([]FeeItem, 0, len(inputs))
	for i, in := range inputs {
		field := fmt.Sprintf("fee_items[%d]", i)
		if seen[in.TemplateID] {
			return nil, core.NewFieldError(field+".template_id", "fee template listed more than once")
		}
		seen[in.TemplateID] = true

		var item FeeItem
		if old, ok := prev[in.ID]; ok && in.ID != "" && old.TemplateID == in.TemplateID {
			item = old
		} else {
			tmpl, err := svc.templates.GetFeeTemplate(ctx, in.TemplateID)
			if err != nil {
				return nil, errors.Wrapf(err, "resolving %s", field)
			}
			if !tmpl.IsActive {
				return nil, core.NewInvalidStateError("fee template %q is inactive", tmpl.Name)
			}
			item = FeeItem{
				ID:               newID(),
				TemplateID:       tmpl.ID,
				TemplateName:     tmpl.Name,
				TemplateCategory: tmpl.Category,
				IsCompulsory:     true,
				Order:            tmpl.DisplayOrder,
			}
		}

		item.Amount = money(in.Amount)
		if in.IsCompulsory != nil {
			item.IsCompulsory = *in.IsCompulsory
		}
		if in.IsEditableDuringEnrollment != nil {
			item.IsEditableDuringEnrollment = *in.IsEditableDuringEnrollment
		}
		if in.Order != nil {
			item.Order = *in.Order
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Order < items[j].Order })
	return items, nil
}

func (svc *Service) buildScholarshipItems(ctx context.Context, inputs []ScholarshipItemInput, existing []ScholarshipItem) ([]ScholarshipItem, error) {
	prev := make(map[string]ScholarshipItem, len(existing))
	for _, it := range existing {
		prev[it.ID] = it
	}

	seen := make(map[string]bool, len(inputs))
	items := make([]ScholarshipItem, 0, len(inputs))
	for i, in := range inputs {
		field := fmt.Sprintf("scholarship_items[%d]", i)
		if seen[in.TemplateID] {
			return nil, core.NewFieldError(field+".template_id", "scholarship template listed more than once")
		}
		seen[in.TemplateID] = true

		var item ScholarshipItem
		if old, ok := prev[in.ID]; ok && in.ID != "" && old.TemplateID == in.TemplateID {
			item = old
		} else {
			tmpl, err := svc.templates.GetScholarshipTemplate(ctx, in.TemplateID)
			if err != nil {
				return nil, errors.Wrapf(err, "resolving %s", field)
			}
			if !tmpl.IsActive {
				return nil, core.NewInvalidStateError("scholarship template %q is inactive", tmpl.Name)
			}
			item = ScholarshipItem{
				ID:           newID(),
				TemplateID:   tmpl.ID,
				TemplateName: tmpl.Name,
				TemplateType: tmpl.Type,
				Order:        tmpl.DisplayOrder,
			}
		}

		item.Amount = money(in.Amount)
		if in.IsAutoApplied != nil {
			item.IsAutoApplied = *in.IsAutoApplied
		}
		if in.IsEditableDuringEnrollment != nil {
			item.IsEditableDuringEnrollment = *in.IsEditableDuringEnrollment
		}
		if in.Order != nil {
			item.Order = *in.Order
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Order < items[j].Order })
	return items, nil
}
