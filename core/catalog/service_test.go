package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/catalog"
	"github.com/trezcool/feeledger/core/ledger"
	testutil "github.com/trezcool/feeledger/tests"
)

func TestService_CreateFeeTemplate(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		nt      catalog.NewFeeTemplate
		wantErr bool
	}{
		{"valid", catalog.NewFeeTemplate{Name: "  Tuition Fee ", Category: "regular"}, false},
		{"missing name", catalog.NewFeeTemplate{Category: catalog.CategoryRegular}, true},
		{"unknown category", catalog.NewFeeTemplate{Name: "Bus", Category: "TRANSPORT"}, true},
		{"negative order", catalog.NewFeeTemplate{Name: "Bus", Category: catalog.CategoryOptional, DisplayOrder: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := env.CatalogSvc.CreateFeeTemplate(ctx, tt.nt)
			if tt.wantErr {
				assert.True(t, core.IsValidation(err), "unexpected error: %v", err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, tmpl.ID)
			assert.Equal(t, "Tuition Fee", tmpl.Name)
			assert.Equal(t, catalog.CategoryRegular, tmpl.Category)
			assert.True(t, tmpl.IsActive)
		})
	}
}

func TestService_QueryFeeTemplates(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	tuition := env.CreateFeeTemplate(t, "Tuition Fee", catalog.CategoryRegular, 2)
	van := env.CreateFeeTemplate(t, "Van Fee", catalog.CategoryOptional, 1)
	exam := env.CreateFeeTemplate(t, "Exam Fee", catalog.CategoryExamination, 2)
	_, err := env.CatalogSvc.DeactivateFeeTemplate(ctx, van.ID)
	require.NoError(t, err)

	active := true
	tests := []struct {
		name   string
		filter catalog.QueryFilter
		want   []string
	}{
		{"all, by order then name", catalog.QueryFilter{}, []string{van.ID, exam.ID, tuition.ID}},
		{"active only", catalog.QueryFilter{IsActive: &active}, []string{exam.ID, tuition.ID}},
		{"search", catalog.QueryFilter{Search: "TUI"}, []string{tuition.ID}},
		{"by kind", catalog.QueryFilter{Kinds: []string{"optional", "examination"}}, []string{van.ID, exam.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpls, err := env.CatalogSvc.QueryFeeTemplates(ctx, tt.filter)
			require.NoError(t, err)
			got := make([]string, 0, len(tmpls))
			for _, tmpl := range tmpls {
				got = append(got, tmpl.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_UpdateFeeTemplate(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	tmpl := env.CreateFeeTemplate(t, "Tuition Fee", catalog.CategoryRegular, 1)
	name, kind, order := "Tuition", "activity", 4
	updated, err := env.CatalogSvc.UpdateFeeTemplate(ctx, tmpl.ID, catalog.UpdateTemplate{Name: &name, Kind: &kind, DisplayOrder: &order})
	require.NoError(t, err)
	assert.Equal(t, "Tuition", updated.Name)
	assert.Equal(t, catalog.CategoryActivity, updated.Category)
	assert.Equal(t, 4, updated.DisplayOrder)

	bad := "SOMETHING"
	_, err = env.CatalogSvc.UpdateFeeTemplate(ctx, tmpl.ID, catalog.UpdateTemplate{Kind: &bad})
	assert.True(t, core.IsValidation(err))

	_, err = env.CatalogSvc.UpdateFeeTemplate(ctx, "missing", catalog.UpdateTemplate{Name: &name})
	assert.True(t, core.IsNotFound(err))

	// the category is frozen once a structure references the template
	env.CreateStructure(t, ledger.NewFeeStructure{
		AcademicYearID: testutil.YearID,
		ClassID:        testutil.Class5ID,
		Name:           "Class 5",
		FeeItems:       []ledger.FeeItemInput{{TemplateID: tmpl.ID, Amount: testutil.Money("100")}},
	})
	regular := catalog.CategoryRegular
	_, err = env.CatalogSvc.UpdateFeeTemplate(ctx, tmpl.ID, catalog.UpdateTemplate{Kind: &regular})
	assert.True(t, core.IsInvalidState(err), "unexpected error: %v", err)
}

func TestService_ScholarshipTemplates(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	_, err := env.CatalogSvc.CreateScholarshipTemplate(ctx, catalog.NewScholarshipTemplate{Name: "Lottery", Type: "LUCK"})
	assert.True(t, core.IsValidation(err))

	merit := env.CreateScholarshipTemplate(t, "Merit Scholarship", catalog.TypeMerit, 1)
	got, err := env.CatalogSvc.GetScholarshipTemplate(ctx, merit.ID)
	require.NoError(t, err)
	assert.Equal(t, merit, got)

	merit, err = env.CatalogSvc.DeactivateScholarshipTemplate(ctx, merit.ID)
	require.NoError(t, err)
	assert.False(t, merit.IsActive)

	tmpls, err := env.CatalogSvc.QueryScholarshipTemplates(ctx, catalog.QueryFilter{Kinds: []string{"merit"}})
	require.NoError(t, err)
	assert.Len(t, tmpls, 1)

	require.NoError(t, env.CatalogSvc.DeleteScholarshipTemplate(ctx, merit.ID))
	err = env.CatalogSvc.DeleteScholarshipTemplate(ctx, merit.ID)
	assert.True(t, core.IsNotFound(err))
}
