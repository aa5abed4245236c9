package dummydb

import (
	"context"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/ledger"
)

// Directory serves the student records seeded with the Put methods.
type Directory struct {
	db *DB
}

var _ ledger.Directory = (*Directory)(nil) // interface compliance check

func NewDirectory(db *DB) *Directory {
	return &Directory{db: db}
}

func (dir *Directory) GetStudent(_ context.Context, id string) (ledger.Student, error) {
	dir.db.RLock()
	defer dir.db.RUnlock()
	if s, ok := dir.db.students[id]; ok {
		return s, nil
	}
	return ledger.Student{}, core.NewNotFoundError("student", id)
}

func (dir *Directory) GetClass(_ context.Context, id string) (ledger.Class, error) {
	dir.db.RLock()
	defer dir.db.RUnlock()
	if c, ok := dir.db.classes[id]; ok {
		return c, nil
	}
	return ledger.Class{}, core.NewNotFoundError("class", id)
}

func (dir *Directory) GetAcademicYear(_ context.Context, id string) (ledger.AcademicYear, error) {
	dir.db.RLock()
	defer dir.db.RUnlock()
	if y, ok := dir.db.years[id]; ok {
		return y, nil
	}
	return ledger.AcademicYear{}, core.NewNotFoundError("academic year", id)
}

// The Put methods stand in for the student records system.

func (dir *Directory) PutStudent(s ledger.Student) {
	dir.db.Lock()
	defer dir.db.Unlock()
	dir.db.students[s.ID] = s
}

func (dir *Directory) PutClass(c ledger.Class) {
	dir.db.Lock()
	defer dir.db.Unlock()
	dir.db.classes[c.ID] = c
}

func (dir *Directory) PutAcademicYear(y ledger.AcademicYear) {
	dir.db.Lock()
	defer dir.db.Unlock()
	dir.db.years[y.ID] = y
}
