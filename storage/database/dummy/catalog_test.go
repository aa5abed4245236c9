package dummydb

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/catalog"
	"github.com/trezcool/feeledger/core/ledger"
)

func TestCatalogRepository_DeleteTemplateInUse(t *testing.T) {
	db, _ := Open()
	repo := NewCatalogRepository(db)
	store := NewLedgerStore(db)
	ctx := context.Background()

	_, err := repo.CreateFeeTemplate(ctx, catalog.FeeTemplate{ID: "ft-school", Name: "School Fee", IsActive: true})
	require.NoError(t, err)
	_, err = repo.CreateFeeTemplate(ctx, catalog.FeeTemplate{ID: "ft-spare", Name: "Spare", IsActive: true})
	require.NoError(t, err)
	_, err = repo.CreateScholarshipTemplate(ctx, catalog.ScholarshipTemplate{ID: "st-merit", Name: "Merit", IsActive: true})
	require.NoError(t, err)

	_, err = store.Structures().CreateStructure(ctx, ledger.FeeStructure{
		ID: "fs1", AcademicYearID: "ay", ClassID: "c5", Name: "Class 5", IsActive: true,
		FeeItems:         []ledger.FeeItem{{ID: "fi1", TemplateID: "ft-school", Amount: decimal.NewFromInt(1000), IsCompulsory: true}},
		ScholarshipItems: []ledger.ScholarshipItem{{ID: "si1", TemplateID: "st-merit", Amount: decimal.NewFromInt(200)}},
	})
	require.NoError(t, err)

	err = repo.DeleteFeeTemplate(ctx, "ft-school")
	assert.Equal(t, catalog.ErrTemplateInUse, errors.Cause(err))
	_, err = repo.GetFeeTemplate(ctx, "ft-school")
	assert.NoError(t, err, "a template in use is kept")

	err = repo.DeleteScholarshipTemplate(ctx, "st-merit")
	assert.Equal(t, catalog.ErrTemplateInUse, errors.Cause(err))
	_, err = repo.GetScholarshipTemplate(ctx, "st-merit")
	assert.NoError(t, err, "a template in use is kept")

	require.NoError(t, repo.DeleteFeeTemplate(ctx, "ft-spare"))
	_, err = repo.GetFeeTemplate(ctx, "ft-spare")
	assert.True(t, core.IsNotFound(err))
}

func TestLedgerStore_StructureCommit_TemplateDeleted(t *testing.T) {
	db, _ := Open()
	repo := NewCatalogRepository(db)
	store := NewLedgerStore(db)
	ctx := context.Background()

	_, err := repo.CreateFeeTemplate(ctx, catalog.FeeTemplate{ID: "ft-van", Name: "Van", IsActive: true})
	require.NoError(t, err)

	// the template goes away after the structure resolved it but before the commit
	err = store.WithinTx(ctx, func(tx ledger.Repositories) error {
		if _, err := repo.GetFeeTemplate(ctx, "ft-van"); err != nil {
			return err
		}
		if _, err := tx.Structures().CreateStructure(ctx, ledger.FeeStructure{
			ID: "fs1", AcademicYearID: "ay", ClassID: "c5", Name: "Class 5", IsActive: true,
			FeeItems: []ledger.FeeItem{{ID: "fi1", TemplateID: "ft-van", Amount: decimal.NewFromInt(500)}},
		}); err != nil {
			return err
		}
		return repo.DeleteFeeTemplate(ctx, "ft-van")
	})
	assert.True(t, core.IsNotFound(err), "unexpected error: %v", err)

	_, err = store.Structures().GetStructure(ctx, "fs1")
	assert.True(t, core.IsNotFound(err), "the structure is not committed")

	_, err = store.Structures().CreateStructure(ctx, ledger.FeeStructure{
		ID: "fs2", AcademicYearID: "ay", ClassID: "c5", Name: "Class 5", IsActive: true,
		ScholarshipItems: []ledger.ScholarshipItem{{ID: "si1", TemplateID: "st-gone", Amount: decimal.NewFromInt(100)}},
	})
	assert.True(t, core.IsNotFound(err), "unexpected error: %v", err)
}
