package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
)

var (
	nowFunc = time.Now // mockable
	newID   = func() string { return uuid.New().String() }

	ErrTemplateInUse = errors.New("template is referenced by a fee structure; deactivate it instead")
)

type Repository interface {
	CreateFeeTemplate(ctx context.Context, tmpl FeeTemplate) (FeeTemplate, error)
	UpdateFeeTemplate(ctx context.Context, tmpl FeeTemplate) (FeeTemplate, error)
	GetFeeTemplate(ctx context.Context, id string) (FeeTemplate, error)
	QueryFeeTemplates(ctx context.Context, filter QueryFilter) ([]FeeTemplate, error)
	// DeleteFeeTemplate deletes the template in one step with the usage check,
	// returning ErrTemplateInUse when a fee structure references it.
	DeleteFeeTemplate(ctx context.Context, id string) error
	// FeeTemplateInUse reports whether any fee structure (active or not) references the template.
	FeeTemplateInUse(ctx context.Context, id string) (bool, error)

	CreateScholarshipTemplate(ctx context.Context, tmpl ScholarshipTemplate) (ScholarshipTemplate, error)
	UpdateScholarshipTemplate(ctx context.Context, tmpl ScholarshipTemplate) (ScholarshipTemplate, error)
	GetScholarshipTemplate(ctx context.Context, id string) (ScholarshipTemplate, error)
	QueryScholarshipTemplates(ctx context.Context, filter QueryFilter) ([]ScholarshipTemplate, error)
	// DeleteScholarshipTemplate behaves like DeleteFeeTemplate.
	DeleteScholarshipTemplate(ctx context.Context, id string) error
	ScholarshipTemplateInUse(ctx context.Context, id string) (bool, error)
}

type Service struct {
	repo     Repository
	validate *core.Validator
}

func NewService(repo Repository, validate *core.Validator) *Service {
	return &Service{repo: repo, validate: validate}
}

// Fee Templates

func (svc *Service) CreateFeeTemplate(ctx context.Context, nt NewFeeTemplate) (FeeTemplate, error) {
	nt.Clean()
	if err := svc.validate.Struct(nt); err != nil {
		return FeeTemplate{}, err
	}

	now := nowFunc().UTC()
	tmpl := FeeTemplate{
		ID:           newID(),
		Name:         nt.Name,
		Category:     nt.Category,
		IsActive:     true,
		DisplayOrder: nt.DisplayOrder,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tmpl, err := svc.repo.CreateFeeTemplate(ctx, tmpl)
	return tmpl, errors.Wrap(err, "creating fee template")
}

func (svc *Service) GetFeeTemplate(ctx context.Context, id string) (FeeTemplate, error) {
	return svc.repo.GetFeeTemplate(ctx, id)
}

func (svc *Service) QueryFeeTemplates(ctx context.Context, filter QueryFilter) ([]FeeTemplate, error) {
	filter.Clean()
	tmpls, err := svc.repo.QueryFeeTemplates(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying fee templates")
	}
	sort.SliceStable(tmpls, func(i, j int) bool {
		return lessByOrder(tmpls[i].DisplayOrder, tmpls[j].DisplayOrder, tmpls[i].Name, tmpls[j].Name)
	})
	return tmpls, nil
}

func (svc *Service) UpdateFeeTemplate(ctx context.Context, id string, ut UpdateTemplate) (FeeTemplate, error) {
	ut.Clean()
	if err := svc.validate.Struct(ut); err != nil {
		return FeeTemplate{}, err
	}
	if ut.Kind != nil && !IsFeeCategory(*ut.Kind) {
		return FeeTemplate{}, core.NewFieldError("kind", feeCategoryText)
	}

	tmpl, err := svc.repo.GetFeeTemplate(ctx, id)
	if err != nil {
		return FeeTemplate{}, err
	}
	if ut.Kind != nil && *ut.Kind != tmpl.Category {
		inUse, err := svc.repo.FeeTemplateInUse(ctx, id)
		if err != nil {
			return FeeTemplate{}, errors.Wrap(err, "checking fee template usage")
		}
		if inUse {
			return FeeTemplate{}, core.NewInvalidStateError("the category of a referenced fee template cannot change")
		}
		tmpl.Category = *ut.Kind
	}
	if ut.Name != nil {
		tmpl.Name = *ut.Name
	}
	if ut.DisplayOrder != nil {
		tmpl.DisplayOrder = *ut.DisplayOrder
	}
	if ut.IsActive != nil {
		tmpl.IsActive = *ut.IsActive
	}
	tmpl.UpdatedAt = nowFunc().UTC()

	tmpl, err = svc.repo.UpdateFeeTemplate(ctx, tmpl)
	return tmpl, errors.Wrap(err, "updating fee template")
}

func (svc *Service) DeactivateFeeTemplate(ctx context.Context, id string) (FeeTemplate, error) {
	inactive := false
	return svc.UpdateFeeTemplate(ctx, id, UpdateTemplate{IsActive: &inactive})
}

// DeleteFeeTemplate hard-deletes a template that no fee structure references.
func (svc *Service) DeleteFeeTemplate(ctx context.Context, id string) error {
	if _, err := svc.repo.GetFeeTemplate(ctx, id); err != nil {
		return err
	}
	return deleteErr(svc.repo.DeleteFeeTemplate(ctx, id), "deleting fee template")
}

// Scholarship Templates

func (svc *Service) CreateScholarshipTemplate(ctx context.Context, nt NewScholarshipTemplate) (ScholarshipTemplate, error) {
	nt.Clean()
	if err := svc.validate.Struct(nt); err != nil {
		return ScholarshipTemplate{}, err
	}

	now := nowFunc().UTC()
	tmpl := ScholarshipTemplate{
		ID:           newID(),
		Name:         nt.Name,
		Type:         nt.Type,
		IsActive:     true,
		DisplayOrder: nt.DisplayOrder,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tmpl, err := svc.repo.CreateScholarshipTemplate(ctx, tmpl)
	return tmpl, errors.Wrap(err, "creating scholarship template")
}

func (svc *Service) GetScholarshipTemplate(ctx context.Context, id string) (ScholarshipTemplate, error) {
	return svc.repo.GetScholarshipTemplate(ctx, id)
}

func (svc *Service) QueryScholarshipTemplates(ctx context.Context, filter QueryFilter) ([]ScholarshipTemplate, error) {
	filter.Clean()
	tmpls, err := svc.repo.QueryScholarshipTemplates(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying scholarship templates")
	}
	sort.SliceStable(tmpls, func(i, j int) bool {
		return lessByOrder(tmpls[i].DisplayOrder, tmpls[j].DisplayOrder, tmpls[i].Name, tmpls[j].Name)
	})
	return tmpls, nil
}

func (svc *Service) UpdateScholarshipTemplate(ctx context.Context, id string, ut UpdateTemplate) (ScholarshipTemplate, error) {
	ut.Clean()
	if err := svc.validate.Struct(ut); err != nil {
		return ScholarshipTemplate{}, err
	}
	if ut.Kind != nil && !IsScholarshipType(*ut.Kind) {
		return ScholarshipTemplate{}, core.NewFieldError("kind", scholarshipTypeText)
	}

	tmpl, err := svc.repo.GetScholarshipTemplate(ctx, id)
	if err != nil {
		return ScholarshipTemplate{}, err
	}
	if ut.Kind != nil && *ut.Kind != tmpl.Type {
		inUse, err := svc.repo.ScholarshipTemplateInUse(ctx, id)
		if err != nil {
			return ScholarshipTemplate{}, errors.Wrap(err, "checking scholarship template usage")
		}
		if inUse {
			return ScholarshipTemplate{}, core.NewInvalidStateError("the type of a referenced scholarship template cannot change")
		}
		tmpl.Type = *ut.Kind
	}
	if ut.Name != nil {
		tmpl.Name = *ut.Name
	}
	if ut.DisplayOrder != nil {
		tmpl.DisplayOrder = *ut.DisplayOrder
	}
	if ut.IsActive != nil {
		tmpl.IsActive = *ut.IsActive
	}
	tmpl.UpdatedAt = nowFunc().UTC()

	tmpl, err = svc.repo.UpdateScholarshipTemplate(ctx, tmpl)
	return tmpl, errors.Wrap(err, "updating scholarship template")
}

func (svc *Service) DeactivateScholarshipTemplate(ctx context.Context, id string) (ScholarshipTemplate, error) {
	inactive := false
	return svc.UpdateScholarshipTemplate(ctx, id, UpdateTemplate{IsActive: &inactive})
}

func (svc *Service) DeleteScholarshipTemplate(ctx context.Context, id string) error {
	if _, err := svc.repo.GetScholarshipTemplate(ctx, id); err != nil {
		return err
	}
	return deleteErr(svc.repo.DeleteScholarshipTemplate(ctx, id), "deleting scholarship template")
}

func deleteErr(err error, op string) error {
	if errors.Cause(err) == ErrTemplateInUse {
		return core.NewConflictError(ErrTemplateInUse.Error())
	}
	return errors.Wrap(err, op)
}

func lessByOrder(o1, o2 int, n1, n2 string) bool {
	if o1 != o2 {
		return o1 < o2
	}
	return n1 < n2
}
