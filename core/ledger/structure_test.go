package ledger_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/catalog"
	"github.com/trezcool/feeledger/core/ledger"
	testutil "github.com/trezcool/feeledger/tests"
)

func TestService_CreateFeeStructure(t *testing.T) {
	env := testutil.NewEnv(t)
	sc := env.SeedScenario(t)

	fs := sc.Class5
	assert.True(t, fs.IsActive)
	assert.Equal(t, testutil.Admin.DisplayName(), fs.CreatedBy)
	require.Len(t, fs.FeeItems, 2)
	require.Len(t, fs.ScholarshipItems, 2)

	school, van := fs.FeeItems[0], fs.FeeItems[1]
	assert.Equal(t, sc.School.ID, school.TemplateID)
	assert.Equal(t, "School Fee", school.TemplateName)
	assert.Equal(t, catalog.CategoryRegular, school.TemplateCategory)
	assert.True(t, school.IsCompulsory)
	assert.False(t, school.IsEditableDuringEnrollment)
	assert.False(t, van.IsCompulsory)
	assert.True(t, van.IsEditableDuringEnrollment)
	assert.NotEqual(t, school.ID, van.ID)

	assert.True(t, fs.TotalFees.Total.Equal(testutil.Money("1500")))
	assert.True(t, fs.TotalFees.Compulsory.Equal(testutil.Money("1000")))
	assert.True(t, fs.TotalFees.Optional.Equal(testutil.Money("500")))
	assert.True(t, fs.TotalScholarships.AutoApplied.Equal(testutil.Money("200")))
	assert.True(t, fs.TotalScholarships.Manual.Equal(testutil.Money("100")))

	got, err := env.LedgerSvc.GetFeeStructure(context.Background(), fs.ID)
	require.NoError(t, err)
	assert.Equal(t, fs.ID, got.ID)
	assert.Len(t, got.FeeItems, 2)
}

func TestService_CreateFeeStructure_Errors(t *testing.T) {
	env := testutil.NewEnv(t)
	sc := env.SeedScenario(t)
	ctx := context.Background()

	inactive := env.CreateFeeTemplate(t, "Old Fee", catalog.CategoryActivity, 9)
	_, err := env.CatalogSvc.DeactivateFeeTemplate(ctx, inactive.ID)
	require.NoError(t, err)

	item := func(id, amount string) ledger.FeeItemInput {
		return ledger.FeeItemInput{TemplateID: id, Amount: testutil.Money(amount)}
	}
	tests := []struct {
		name    string
		nfs     ledger.NewFeeStructure
		errFunc func(error) bool
	}{
		{
			name:    "missing name and items",
			nfs:     ledger.NewFeeStructure{AcademicYearID: testutil.YearID, ClassID: "class-7"},
			errFunc: core.IsValidation,
		},
		{
			name: "negative amount",
			nfs: ledger.NewFeeStructure{
				AcademicYearID: testutil.YearID, ClassID: testutil.Class5ID, Name: "x",
				FeeItems: []ledger.FeeItemInput{item(sc.School.ID, "-1")},
			},
			errFunc: core.IsValidation,
		},
		{
			name: "template listed twice",
			nfs: ledger.NewFeeStructure{
				AcademicYearID: testutil.YearID, ClassID: testutil.Class6ID, Name: "x",
				FeeItems: []ledger.FeeItemInput{item(sc.Exam.ID, "10"), item(sc.Exam.ID, "20")},
			},
			errFunc: core.IsValidation,
		},
		{
			name: "unknown class",
			nfs: ledger.NewFeeStructure{
				AcademicYearID: testutil.YearID, ClassID: "class-404", Name: "x",
				FeeItems: []ledger.FeeItemInput{item(sc.School.ID, "10")},
			},
			errFunc: core.IsNotFound,
		},
		{
			name: "unknown template",
			nfs: ledger.NewFeeStructure{
				AcademicYearID: testutil.YearID, ClassID: testutil.Class5ID, Name: "x",
				FeeItems: []ledger.FeeItemInput{item("tmpl-404", "10")},
			},
			errFunc: core.IsNotFound,
		},
		{
			name: "inactive template",
			nfs: ledger.NewFeeStructure{
				AcademicYearID: testutil.YearID, ClassID: testutil.Class5ID, Name: "x",
				FeeItems: []ledger.FeeItemInput{item(inactive.ID, "10")},
			},
			errFunc: core.IsInvalidState,
		},
		{
			name: "second active structure for the pair",
			nfs: ledger.NewFeeStructure{
				AcademicYearID: testutil.YearID, ClassID: testutil.Class5ID, Name: "Class 5 again",
				FeeItems: []ledger.FeeItemInput{item(sc.School.ID, "900")},
			},
			errFunc: core.IsConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.LedgerSvc.CreateFeeStructure(ctx, testutil.Admin, tt.nfs)
			if assert.Error(t, err) {
				assert.True(t, tt.errFunc(err), "unexpected error: %v", err)
			}
		})
	}
}

func TestService_UpdateFeeStructure(t *testing.T) {
	env := testutil.NewEnv(t)
	sc := env.SeedScenario(t)
	ctx := context.Background()

	// renaming the template must not leak into the existing line snapshot
	newName := "Tuition"
	_, err := env.CatalogSvc.UpdateFeeTemplate(ctx, sc.School.ID, catalog.UpdateTemplate{Name: &newName})
	require.NoError(t, err)

	school := sc.Class5.FeeItems[0]
	name := "Class 5 (revised)"
	fs, err := env.LedgerSvc.UpdateFeeStructure(ctx, sc.Class5.ID, ledger.UpdateFeeStructure{
		Name: &name,
		FeeItems: []ledger.FeeItemInput{
			{ID: school.ID, TemplateID: sc.School.ID, Amount: testutil.Money("1100")},
			{TemplateID: sc.Exam.ID, Amount: testutil.Money("80")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, name, fs.Name)
	require.Len(t, fs.FeeItems, 2)
	assert.Equal(t, school.ID, fs.FeeItems[0].ID)
	assert.Equal(t, "School Fee", fs.FeeItems[0].TemplateName)
	assert.Equal(t, "Exam Fee", fs.FeeItems[1].TemplateName)
	assert.True(t, fs.TotalFees.Total.Equal(testutil.Money("1180")))
	assert.Len(t, fs.ScholarshipItems, 2, "scholarship items are left unchanged")

	_, err = env.LedgerSvc.UpdateFeeStructure(ctx, sc.Class5.ID, ledger.UpdateFeeStructure{FeeItems: []ledger.FeeItemInput{}})
	assert.True(t, core.IsValidation(err), "an empty fee item list is rejected: %v", err)

	_, err = env.LedgerSvc.UpdateFeeStructure(ctx, "fs-404", ledger.UpdateFeeStructure{Name: &name})
	assert.True(t, core.IsNotFound(err))
}

func TestService_UpdateFeeStructure_Concurrent(t *testing.T) {
	env := testutil.NewEnv(t)
	sc := env.SeedScenario(t)
	ctx := context.Background()
	assert.Equal(t, int64(1), sc.Class5.Version)

	const workers = 3
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("Class 5 rev %d", i)
			_, errs[i] = env.LedgerSvc.UpdateFeeStructure(ctx, sc.Class5.ID, ledger.UpdateFeeStructure{Name: &name})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		assert.NoError(t, err, "worker %d", i)
	}

	fs, err := env.LedgerSvc.GetFeeStructure(ctx, sc.Class5.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1+workers), fs.Version, "every update is applied on top of the previous one")
	assert.Contains(t, fs.Name, "Class 5 rev ")
	assertMoney(t, "1500", fs.TotalFees.Total)
}

func TestService_ActivateFeeStructure(t *testing.T) {
	env := testutil.NewEnv(t)
	sc := env.SeedScenario(t)
	ctx := context.Background()

	fs, err := env.LedgerSvc.DeactivateFeeStructure(ctx, sc.Class5.ID)
	require.NoError(t, err)
	assert.False(t, fs.IsActive)

	replacement := env.CreateStructure(t, ledger.NewFeeStructure{
		AcademicYearID: testutil.YearID,
		ClassID:        testutil.Class5ID,
		Name:           "Class 5 v2",
		FeeItems:       []ledger.FeeItemInput{{TemplateID: sc.School.ID, Amount: testutil.Money("1050")}},
	})
	assert.True(t, replacement.IsActive)

	_, err = env.LedgerSvc.ActivateFeeStructure(ctx, sc.Class5.ID)
	assert.True(t, core.IsConflict(err), "two active structures for one pair: %v", err)

	_, err = env.LedgerSvc.DeactivateFeeStructure(ctx, replacement.ID)
	require.NoError(t, err)
	fs, err = env.LedgerSvc.ActivateFeeStructure(ctx, sc.Class5.ID)
	require.NoError(t, err)
	assert.True(t, fs.IsActive)

	active := true
	list, err := env.LedgerSvc.QueryFeeStructures(ctx, ledger.StructureFilter{ClassID: testutil.Class5ID, IsActive: &active})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, sc.Class5.ID, list[0].ID)
}

func TestService_DeleteTemplateInUse(t *testing.T) {
	env := testutil.NewEnv(t)
	sc := env.SeedScenario(t)
	ctx := context.Background()

	err := env.CatalogSvc.DeleteFeeTemplate(ctx, sc.School.ID)
	assert.True(t, core.IsConflict(err), "referenced template cannot be deleted: %v", err)

	unused := env.CreateFeeTemplate(t, "Library Fee", catalog.CategoryActivity, 5)
	require.NoError(t, env.CatalogSvc.DeleteFeeTemplate(ctx, unused.ID))
	_, err = env.CatalogSvc.GetFeeTemplate(ctx, unused.ID)
	assert.True(t, core.IsNotFound(err))
}
