package sqlxrepos

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/ledger"
)

type structureRow struct {
	ID             string `db:"id"`
	AcademicYearID string `db:"academic_year_id"`
	ClassID        string `db:"class_id"`
	IsActive       bool   `db:"is_active"`
	Version        int64  `db:"version"`
	Doc            []byte `db:"doc"`
}

const structureColumns = `id, academic_year_id, class_id, is_active, version, doc`

func (row structureRow) toStructure() (ledger.FeeStructure, error) {
	var fs ledger.FeeStructure
	if err := json.Unmarshal(row.Doc, &fs); err != nil {
		return ledger.FeeStructure{}, errors.Wrapf(err, "decoding fee structure %s", row.ID)
	}
	fs.IsActive = row.IsActive
	fs.Version = row.Version
	return fs, nil
}

func (r *repos) CreateStructure(ctx context.Context, fs ledger.FeeStructure) (ledger.FeeStructure, error) {
	fs.Version = 1
	doc, err := marshalDoc(fs)
	if err != nil {
		return ledger.FeeStructure{}, err
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO fee_structures (id, academic_year_id, class_id, is_active, version, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		fs.ID, fs.AcademicYearID, fs.ClassID, fs.IsActive, fs.Version, doc, fs.CreatedAt, fs.UpdatedAt,
	)
	if err != nil {
		return ledger.FeeStructure{}, mapErr(err, "active fee structure")
	}
	if err := r.syncTemplateRefs(ctx, fs); err != nil {
		return ledger.FeeStructure{}, err
	}
	return fs, nil
}

func (r *repos) UpdateStructure(ctx context.Context, fs ledger.FeeStructure) (ledger.FeeStructure, error) {
	expected := fs.Version
	fs.Version++
	doc, err := marshalDoc(fs)
	if err != nil {
		return ledger.FeeStructure{}, err
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE fee_structures SET is_active = $3, version = $4, doc = $5, updated_at = $6
		WHERE id = $1 AND version = $2`,
		fs.ID, expected, fs.IsActive, fs.Version, doc, fs.UpdatedAt,
	)
	if err != nil {
		return ledger.FeeStructure{}, mapErr(err, "active fee structure")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ledger.FeeStructure{}, errors.Wrap(err, "updating fee structure")
	}
	if n == 0 {
		var exists bool
		q := `SELECT EXISTS (SELECT 1 FROM fee_structures WHERE id = $1)`
		if err := sqlx.GetContext(ctx, r.q, &exists, q, fs.ID); err != nil {
			return ledger.FeeStructure{}, errors.Wrap(err, "checking fee structure")
		}
		if !exists {
			return ledger.FeeStructure{}, core.NewNotFoundError("fee structure", fs.ID)
		}
		return ledger.FeeStructure{}, core.ErrWriteConflict
	}
	if err := r.syncTemplateRefs(ctx, fs); err != nil {
		return ledger.FeeStructure{}, err
	}
	return fs, nil
}

// syncTemplateRefs rewrites the template references of fs.
// A template deleted since the structure resolved it fails the foreign key and comes back as a core.NotFoundError.
func (r *repos) syncTemplateRefs(ctx context.Context, fs ledger.FeeStructure) error {
	refs := []struct {
		table    string
		resource string
		ids      []string
	}{
		{table: "fee_structure_fee_templates", resource: "fee template"},
		{table: "fee_structure_scholarship_templates", resource: "scholarship template"},
	}
	for _, it := range fs.FeeItems {
		refs[0].ids = append(refs[0].ids, it.TemplateID)
	}
	for _, it := range fs.ScholarshipItems {
		refs[1].ids = append(refs[1].ids, it.TemplateID)
	}

	for _, ref := range refs {
		if _, err := r.q.ExecContext(ctx, `DELETE FROM `+ref.table+` WHERE structure_id = $1`, fs.ID); err != nil {
			return errors.Wrapf(err, "clearing %s references", ref.resource)
		}
		for _, id := range ref.ids {
			_, err := r.q.ExecContext(ctx, `
				INSERT INTO `+ref.table+` (structure_id, template_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`,
				fs.ID, id,
			)
			if isForeignKeyViolation(err) {
				return core.NewNotFoundError(ref.resource, id)
			}
			if err != nil {
				return errors.Wrapf(err, "referencing %s %s", ref.resource, id)
			}
		}
	}
	return nil
}

func (r *repos) GetStructure(ctx context.Context, id string) (ledger.FeeStructure, error) {
	var row structureRow
	q := `SELECT ` + structureColumns + ` FROM fee_structures WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.q, &row, q, id); err != nil {
		return ledger.FeeStructure{}, mapErr(err, "fee structure", id)
	}
	return row.toStructure()
}

func (r *repos) GetActiveStructure(ctx context.Context, academicYearID, classID string) (ledger.FeeStructure, error) {
	var row structureRow
	q := `
		SELECT ` + structureColumns + ` FROM fee_structures
		WHERE academic_year_id = $1 AND class_id = $2 AND is_active`
	if err := sqlx.GetContext(ctx, r.q, &row, q, academicYearID, classID); err != nil {
		return ledger.FeeStructure{}, mapErr(err, "active fee structure")
	}
	return row.toStructure()
}

func (r *repos) QueryStructures(ctx context.Context, filter ledger.StructureFilter) ([]ledger.FeeStructure, error) {
	var w where
	if filter.AcademicYearID != "" {
		w.add("academic_year_id = $%d", filter.AcademicYearID)
	}
	if filter.ClassID != "" {
		w.add("class_id = $%d", filter.ClassID)
	}
	if filter.IsActive != nil {
		w.add("is_active = $%d", *filter.IsActive)
	}

	var rows []structureRow
	q := `SELECT ` + structureColumns + ` FROM fee_structures` + w.String() + ` ORDER BY created_at, id`
	if err := sqlx.SelectContext(ctx, r.q, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting fee structures")
	}

	structures := make([]ledger.FeeStructure, 0, len(rows))
	for _, row := range rows {
		fs, err := row.toStructure()
		if err != nil {
			return nil, err
		}
		structures = append(structures, fs)
	}
	return structures, nil
}
