package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/catalog"
	"github.com/trezcool/feeledger/core/ledger"
)

type (
	catalogRepository struct {
		db *sqlx.DB
	}

	feeTemplateRow struct {
		ID           string    `db:"id"`
		Name         string    `db:"name"`
		Category     string    `db:"category"`
		IsActive     bool      `db:"is_active"`
		DisplayOrder int       `db:"display_order"`
		CreatedAt    time.Time `db:"created_at"`
		UpdatedAt    time.Time `db:"updated_at"`
	}

	scholarshipTemplateRow struct {
		ID           string    `db:"id"`
		Name         string    `db:"name"`
		Type         string    `db:"type"`
		IsActive     bool      `db:"is_active"`
		DisplayOrder int       `db:"display_order"`
		CreatedAt    time.Time `db:"created_at"`
		UpdatedAt    time.Time `db:"updated_at"`
	}
)

var (
	_ catalog.Repository    = (*catalogRepository)(nil) // interface compliance check
	_ ledger.TemplateSource = (*catalogRepository)(nil)
)

func NewCatalogRepository(db *sqlx.DB) *catalogRepository {
	return &catalogRepository{db: db}
}

// templateQuery builds the SELECT of a template table; kindCol is `category` or `type`.
func templateQuery(table, kindCol string, filter catalog.QueryFilter) (string, []interface{}) {
	var w where
	if filter.Search != "" {
		w.add("name ILIKE $%d", "%"+filter.Search+"%")
	}
	if filter.IsActive != nil {
		w.add("is_active = $%d", *filter.IsActive)
	}
	if len(filter.Kinds) > 0 {
		w.add(kindCol+" = ANY($%d)", pq.Array(filter.Kinds))
	}
	q := `SELECT id, name, ` + kindCol + `, is_active, display_order, created_at, updated_at FROM ` + table + w.String()
	return q, w.args
}

// Fee Templates

func (repo *catalogRepository) CreateFeeTemplate(ctx context.Context, tmpl catalog.FeeTemplate) (catalog.FeeTemplate, error) {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO fee_templates (id, name, category, is_active, display_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tmpl.ID, tmpl.Name, tmpl.Category, tmpl.IsActive, tmpl.DisplayOrder, tmpl.CreatedAt, tmpl.UpdatedAt,
	)
	if err != nil {
		return catalog.FeeTemplate{}, mapErr(err, "fee template")
	}
	return tmpl, nil
}

func (repo *catalogRepository) UpdateFeeTemplate(ctx context.Context, tmpl catalog.FeeTemplate) (catalog.FeeTemplate, error) {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE fee_templates SET name = $2, category = $3, is_active = $4, display_order = $5, updated_at = $6
		WHERE id = $1`,
		tmpl.ID, tmpl.Name, tmpl.Category, tmpl.IsActive, tmpl.DisplayOrder, tmpl.UpdatedAt,
	)
	if err != nil {
		return catalog.FeeTemplate{}, mapErr(err, "fee template")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return catalog.FeeTemplate{}, core.NewNotFoundError("fee template", tmpl.ID)
	}
	return tmpl, nil
}

func (repo *catalogRepository) GetFeeTemplate(ctx context.Context, id string) (catalog.FeeTemplate, error) {
	var tmpl feeTemplateRow
	q := `SELECT id, name, category, is_active, display_order, created_at, updated_at FROM fee_templates WHERE id = $1`
	if err := repo.db.GetContext(ctx, &tmpl, q, id); err != nil {
		return catalog.FeeTemplate{}, mapErr(err, "fee template", id)
	}
	return catalog.FeeTemplate(tmpl), nil
}

func (repo *catalogRepository) QueryFeeTemplates(ctx context.Context, filter catalog.QueryFilter) ([]catalog.FeeTemplate, error) {
	q, args := templateQuery("fee_templates", "category", filter)
	var rows []feeTemplateRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting fee templates")
	}
	tmpls := make([]catalog.FeeTemplate, 0, len(rows))
	for _, row := range rows {
		tmpls = append(tmpls, catalog.FeeTemplate(row))
	}
	return tmpls, nil
}

func (repo *catalogRepository) DeleteFeeTemplate(ctx context.Context, id string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM fee_templates WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return catalog.ErrTemplateInUse
	}
	return errors.Wrap(err, "deleting fee template")
}

func (repo *catalogRepository) FeeTemplateInUse(ctx context.Context, id string) (bool, error) {
	return repo.inUse(ctx, "fee_structure_fee_templates", id)
}

// Scholarship Templates

func (repo *catalogRepository) CreateScholarshipTemplate(ctx context.Context, tmpl catalog.ScholarshipTemplate) (catalog.ScholarshipTemplate, error) {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO scholarship_templates (id, name, type, is_active, display_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tmpl.ID, tmpl.Name, tmpl.Type, tmpl.IsActive, tmpl.DisplayOrder, tmpl.CreatedAt, tmpl.UpdatedAt,
	)
	if err != nil {
		return catalog.ScholarshipTemplate{}, mapErr(err, "scholarship template")
	}
	return tmpl, nil
}

func (repo *catalogRepository) UpdateScholarshipTemplate(ctx context.Context, tmpl catalog.ScholarshipTemplate) (catalog.ScholarshipTemplate, error) {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE scholarship_templates SET name = $2, type = $3, is_active = $4, display_order = $5, updated_at = $6
		WHERE id = $1`,
		tmpl.ID, tmpl.Name, tmpl.Type, tmpl.IsActive, tmpl.DisplayOrder, tmpl.UpdatedAt,
	)
	if err != nil {
		return catalog.ScholarshipTemplate{}, mapErr(err, "scholarship template")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return catalog.ScholarshipTemplate{}, core.NewNotFoundError("scholarship template", tmpl.ID)
	}
	return tmpl, nil
}

func (repo *catalogRepository) GetScholarshipTemplate(ctx context.Context, id string) (catalog.ScholarshipTemplate, error) {
	var tmpl scholarshipTemplateRow
	q := `SELECT id, name, type, is_active, display_order, created_at, updated_at FROM scholarship_templates WHERE id = $1`
	if err := repo.db.GetContext(ctx, &tmpl, q, id); err != nil {
		return catalog.ScholarshipTemplate{}, mapErr(err, "scholarship template", id)
	}
	return catalog.ScholarshipTemplate(tmpl), nil
}

func (repo *catalogRepository) QueryScholarshipTemplates(ctx context.Context, filter catalog.QueryFilter) ([]catalog.ScholarshipTemplate, error) {
	q, args := templateQuery("scholarship_templates", "type", filter)
	var rows []scholarshipTemplateRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting scholarship templates")
	}
	tmpls := make([]catalog.ScholarshipTemplate, 0, len(rows))
	for _, row := range rows {
		tmpls = append(tmpls, catalog.ScholarshipTemplate(row))
	}
	return tmpls, nil
}

func (repo *catalogRepository) DeleteScholarshipTemplate(ctx context.Context, id string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM scholarship_templates WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return catalog.ErrTemplateInUse
	}
	return errors.Wrap(err, "deleting scholarship template")
}

func (repo *catalogRepository) ScholarshipTemplateInUse(ctx context.Context, id string) (bool, error) {
	return repo.inUse(ctx, "fee_structure_scholarship_templates", id)
}

// inUse reports whether the reference table lists the template for any fee structure.
func (repo *catalogRepository) inUse(ctx context.Context, refTable, templateID string) (bool, error) {
	var inUse bool
	q := `SELECT EXISTS (SELECT 1 FROM ` + refTable + ` WHERE template_id = $1)`
	if err := repo.db.GetContext(ctx, &inUse, q, templateID); err != nil {
		return false, errors.Wrap(err, "checking template usage")
	}
	return inUse, nil
}
