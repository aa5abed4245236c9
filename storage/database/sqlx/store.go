package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/ledger"
)

// Postgres error codes
const (
	codeForeignKeyViolation  = "23503"
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

type (
	ledgerStore struct {
		*repos
		db *sqlx.DB
	}

	// repos runs the ledger queries against either the database or an open transaction.
	repos struct {
		q sqlx.ExtContext
	}
)

var (
	_ ledger.Store                = (*ledgerStore)(nil) // interface compliance check
	_ ledger.StructureRepository  = (*repos)(nil)
	_ ledger.EnrollmentRepository = (*repos)(nil)
	_ ledger.PaymentRepository    = (*repos)(nil)
	_ ledger.ReceiptCounter       = (*repos)(nil)
)

func NewLedgerStore(db *sqlx.DB) *ledgerStore {
	return &ledgerStore{repos: &repos{q: db}, db: db}
}

func (store *ledgerStore) WithinTx(ctx context.Context, fn func(tx ledger.Repositories) error) error {
	tx, err := store.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(&repos{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return mapErr(errors.Wrap(err, "committing transaction"), "")
	}
	return nil
}

func (r *repos) Structures() ledger.StructureRepository   { return r }
func (r *repos) Enrollments() ledger.EnrollmentRepository { return r }
func (r *repos) Payments() ledger.PaymentRepository       { return r }
func (r *repos) Receipts() ledger.ReceiptCounter          { return r }

// mapErr translates driver errors into core errors. resource names the record for sql.ErrNoRows.
func mapErr(err error, resource string, id ...string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		var key string
		if len(id) > 0 {
			key = id[0]
		}
		return core.NewNotFoundError(resource, key)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeUniqueViolation:
			return core.NewConflictError("%s already exists (%s)", resourceOr(resource, "record"), pqErr.Constraint)
		case codeSerializationFailure, codeDeadlockDetected:
			return core.ErrWriteConflict
		}
	}
	return err
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeForeignKeyViolation
}

func resourceOr(resource, fallback string) string {
	if resource == "" {
		return fallback
	}
	return resource
}

// where accumulates the conditions of a dynamic query.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func marshalDoc(v interface{}) ([]byte, error) {
	doc, err := json.Marshal(v)
	return doc, errors.Wrap(err, "encoding document")
}
