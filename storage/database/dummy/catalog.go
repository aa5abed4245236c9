package dummydb

import (
	"context"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/catalog"
	"github.com/trezcool/feeledger/core/ledger"
)

type catalogRepository struct {
	db *DB
}

var (
	_ catalog.Repository    = (*catalogRepository)(nil) // interface compliance check
	_ ledger.TemplateSource = (*catalogRepository)(nil)
)

func NewCatalogRepository(db *DB) *catalogRepository {
	return &catalogRepository{db: db}
}

// Fee Templates

func (repo *catalogRepository) CreateFeeTemplate(_ context.Context, tmpl catalog.FeeTemplate) (catalog.FeeTemplate, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.feeTemplates[tmpl.ID] = tmpl
	return tmpl, nil
}

func (repo *catalogRepository) UpdateFeeTemplate(_ context.Context, tmpl catalog.FeeTemplate) (catalog.FeeTemplate, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if _, ok := repo.db.feeTemplates[tmpl.ID]; !ok {
		return catalog.FeeTemplate{}, core.NewNotFoundError("fee template", tmpl.ID)
	}
	repo.db.feeTemplates[tmpl.ID] = tmpl
	return tmpl, nil
}

func (repo *catalogRepository) GetFeeTemplate(_ context.Context, id string) (catalog.FeeTemplate, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if tmpl, ok := repo.db.feeTemplates[id]; ok {
		return tmpl, nil
	}
	return catalog.FeeTemplate{}, core.NewNotFoundError("fee template", id)
}

func (repo *catalogRepository) QueryFeeTemplates(_ context.Context, filter catalog.QueryFilter) ([]catalog.FeeTemplate, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	tmpls := make([]catalog.FeeTemplate, 0, len(repo.db.feeTemplates))
	for _, tmpl := range repo.db.feeTemplates {
		if filter.Match(tmpl.Name, tmpl.Category, tmpl.IsActive) {
			tmpls = append(tmpls, tmpl)
		}
	}
	return tmpls, nil
}

func (repo *catalogRepository) DeleteFeeTemplate(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	if repo.db.feeTemplateInUse(id) {
		return catalog.ErrTemplateInUse
	}
	delete(repo.db.feeTemplates, id)
	return nil
}

func (repo *catalogRepository) FeeTemplateInUse(_ context.Context, id string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.feeTemplateInUse(id), nil
}

// Scholarship Templates

func (repo *catalogRepository) CreateScholarshipTemplate(_ context.Context, tmpl catalog.ScholarshipTemplate) (catalog.ScholarshipTemplate, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.scholTemplates[tmpl.ID] = tmpl
	return tmpl, nil
}

func (repo *catalogRepository) UpdateScholarshipTemplate(_ context.Context, tmpl catalog.ScholarshipTemplate) (catalog.ScholarshipTemplate, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if _, ok := repo.db.scholTemplates[tmpl.ID]; !ok {
		return catalog.ScholarshipTemplate{}, core.NewNotFoundError("scholarship template", tmpl.ID)
	}
	repo.db.scholTemplates[tmpl.ID] = tmpl
	return tmpl, nil
}

func (repo *catalogRepository) GetScholarshipTemplate(_ context.Context, id string) (catalog.ScholarshipTemplate, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if tmpl, ok := repo.db.scholTemplates[id]; ok {
		return tmpl, nil
	}
	return catalog.ScholarshipTemplate{}, core.NewNotFoundError("scholarship template", id)
}

func (repo *catalogRepository) QueryScholarshipTemplates(_ context.Context, filter catalog.QueryFilter) ([]catalog.ScholarshipTemplate, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	tmpls := make([]catalog.ScholarshipTemplate, 0, len(repo.db.scholTemplates))
	for _, tmpl := range repo.db.scholTemplates {
		if filter.Match(tmpl.Name, tmpl.Type, tmpl.IsActive) {
			tmpls = append(tmpls, tmpl)
		}
	}
	return tmpls, nil
}

func (repo *catalogRepository) DeleteScholarshipTemplate(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	if repo.db.scholarshipTemplateInUse(id) {
		return catalog.ErrTemplateInUse
	}
	delete(repo.db.scholTemplates, id)
	return nil
}

func (repo *catalogRepository) ScholarshipTemplateInUse(_ context.Context, id string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.scholarshipTemplateInUse(id), nil
}

// The caller holds the db lock.

func (db *DB) feeTemplateInUse(id string) bool {
	for _, fs := range db.structures {
		for _, it := range fs.FeeItems {
			if it.TemplateID == id {
				return true
			}
		}
	}
	return false
}

func (db *DB) scholarshipTemplateInUse(id string) bool {
	for _, fs := range db.structures {
		for _, it := range fs.ScholarshipItems {
			if it.TemplateID == id {
				return true
			}
		}
	}
	return false
}
