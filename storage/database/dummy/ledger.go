package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/ledger"
)

type (
	ledgerStore struct {
		*session
	}

	// session reads and writes the ledger tables.
	// Outside a transaction (tx == nil) every write commits on its own.
	session struct {
		db *DB
		tx *txState
	}

	// txState holds the writes staged by a transaction until it commits.
	txState struct {
		structures  map[string]ledger.FeeStructure
		enrollments map[string]ledger.Enrollment
		payments    map[string]ledger.Payment

		newStructures  map[string]bool
		newEnrollments map[string]bool
		newPayments    map[string]bool
		baseVersions   map[string]int64 // committed version each updated enrollment was read at
		structureBases map[string]int64 // same, for updated fee structures
		cancellations  map[string]bool

		held map[string]bool
	}
)

var (
	_ ledger.Store                = (*ledgerStore)(nil) // interface compliance check
	_ ledger.StructureRepository  = (*session)(nil)
	_ ledger.EnrollmentRepository = (*session)(nil)
	_ ledger.PaymentRepository    = (*session)(nil)
	_ ledger.ReceiptCounter       = (*session)(nil)
)

func NewLedgerStore(db *DB) *ledgerStore {
	return &ledgerStore{session: &session{db: db}}
}

func (store *ledgerStore) WithinTx(ctx context.Context, fn func(tx ledger.Repositories) error) error {
	return store.db.withinTx(ctx, func(s *session) error { return fn(s) })
}

func (db *DB) withinTx(ctx context.Context, fn func(s *session) error) error {
	s := &session{
		db: db,
		tx: &txState{
			structures:     make(map[string]ledger.FeeStructure),
			enrollments:    make(map[string]ledger.Enrollment),
			payments:       make(map[string]ledger.Payment),
			newStructures:  make(map[string]bool),
			newEnrollments: make(map[string]bool),
			newPayments:    make(map[string]bool),
			baseVersions:   make(map[string]int64),
			structureBases: make(map[string]int64),
			cancellations:  make(map[string]bool),
			held:           make(map[string]bool),
		},
	}
	defer s.releaseLocks()

	if err := fn(s); err != nil {
		return err
	}
	return s.commit()
}

func (s *session) Structures() ledger.StructureRepository   { return s }
func (s *session) Enrollments() ledger.EnrollmentRepository { return s }
func (s *session) Payments() ledger.PaymentRepository       { return s }
func (s *session) Receipts() ledger.ReceiptCounter          { return s }

// write runs fn in the session's transaction, or in its own one outside a transaction.
func (s *session) write(ctx context.Context, fn func(tx *session) error) error {
	if s.tx != nil {
		return fn(s)
	}
	return s.db.withinTx(ctx, fn)
}

func (s *session) lock(ctx context.Context, key string) error {
	if s.tx == nil || s.tx.held[key] {
		return nil
	}
	if err := s.db.locks.acquire(ctx, key); err != nil {
		return err
	}
	s.tx.held[key] = true
	return nil
}

func (s *session) releaseLocks() {
	for key := range s.tx.held {
		s.db.locks.release(key)
	}
	s.tx.held = nil
}

// commit checks the staged writes against the committed state and applies them all, or none.
func (s *session) commit() error {
	db, tx := s.db, s.tx
	db.Lock()
	defer db.Unlock()

	for id, fs := range tx.structures {
		if tx.newStructures[id] {
			if _, ok := db.structures[id]; ok {
				return core.NewConflictError("fee structure %s already exists", id)
			}
		} else if cur, ok := db.structures[id]; !ok || cur.Version != tx.structureBases[id] {
			return core.ErrWriteConflict
		}
		// templates deleted since the structure resolved them
		for _, it := range fs.FeeItems {
			if _, ok := db.feeTemplates[it.TemplateID]; !ok {
				return core.NewNotFoundError("fee template", it.TemplateID)
			}
		}
		for _, it := range fs.ScholarshipItems {
			if _, ok := db.scholTemplates[it.TemplateID]; !ok {
				return core.NewNotFoundError("scholarship template", it.TemplateID)
			}
		}
		if !fs.IsActive {
			continue
		}
		for _, other := range db.structures {
			if other.ID == fs.ID || !other.IsActive || other.AcademicYearID != fs.AcademicYearID || other.ClassID != fs.ClassID {
				continue
			}
			if staged, ok := tx.structures[other.ID]; ok && !staged.IsActive {
				continue
			}
			return core.NewConflictError("an active fee structure already exists for this academic year and class (%s)", other.ID)
		}
	}

	for id, e := range tx.enrollments {
		if tx.newEnrollments[id] {
			for _, other := range db.enrollments {
				if other.ID == id || (other.StudentID == e.StudentID && other.AcademicYearID == e.AcademicYearID) {
					return core.NewConflictError("student is already enrolled for this academic year")
				}
			}
			continue
		}
		cur, ok := db.enrollments[id]
		if !ok || cur.Version != tx.baseVersions[id] {
			return core.ErrWriteConflict
		}
	}

	for id, p := range tx.payments {
		if tx.newPayments[id] {
			for _, other := range db.payments {
				if other.ID == id || other.ReceiptNo == p.ReceiptNo {
					return core.NewConflictError("receipt %s already exists", p.ReceiptNo)
				}
			}
			continue
		}
		if tx.cancellations[id] {
			if cur, ok := db.payments[id]; !ok || cur.IsCancelled() {
				return core.ErrWriteConflict
			}
		}
	}

	for id, fs := range tx.structures {
		db.structures[id] = fs
	}
	for id, e := range tx.enrollments {
		db.enrollments[id] = e
	}
	for id, p := range tx.payments {
		db.payments[id] = p
	}
	return nil
}

// Reads see the staged writes of the session's transaction first. Callers hold the DB read lock.

func (s *session) structure(id string) (ledger.FeeStructure, bool) {
	if s.tx != nil {
		if fs, ok := s.tx.structures[id]; ok {
			return fs, true
		}
	}
	fs, ok := s.db.structures[id]
	return fs, ok
}

func (s *session) structures() []ledger.FeeStructure {
	all := make([]ledger.FeeStructure, 0, len(s.db.structures))
	for id, fs := range s.db.structures {
		if s.tx != nil {
			if staged, ok := s.tx.structures[id]; ok {
				fs = staged
			}
		}
		all = append(all, fs)
	}
	if s.tx != nil {
		for id := range s.tx.newStructures {
			all = append(all, s.tx.structures[id])
		}
	}
	return all
}

func (s *session) enrollment(id string) (ledger.Enrollment, bool) {
	if s.tx != nil {
		if e, ok := s.tx.enrollments[id]; ok {
			return e, true
		}
	}
	e, ok := s.db.enrollments[id]
	return e, ok
}

func (s *session) enrollments() []ledger.Enrollment {
	all := make([]ledger.Enrollment, 0, len(s.db.enrollments))
	for id, e := range s.db.enrollments {
		if s.tx != nil {
			if staged, ok := s.tx.enrollments[id]; ok {
				e = staged
			}
		}
		all = append(all, e)
	}
	if s.tx != nil {
		for id := range s.tx.newEnrollments {
			all = append(all, s.tx.enrollments[id])
		}
	}
	return all
}

func (s *session) payment(id string) (ledger.Payment, bool) {
	if s.tx != nil {
		if p, ok := s.tx.payments[id]; ok {
			return p, true
		}
	}
	p, ok := s.db.payments[id]
	return p, ok
}

func (s *session) payments() []ledger.Payment {
	all := make([]ledger.Payment, 0, len(s.db.payments))
	for id, p := range s.db.payments {
		if s.tx != nil {
			if staged, ok := s.tx.payments[id]; ok {
				p = staged
			}
		}
		all = append(all, p)
	}
	if s.tx != nil {
		for id := range s.tx.newPayments {
			all = append(all, s.tx.payments[id])
		}
	}
	return all
}

// Fee Structures

func (s *session) activeStructureConflict(fs ledger.FeeStructure) error {
	if !fs.IsActive {
		return nil
	}
	for _, other := range s.structures() {
		if other.ID != fs.ID && other.IsActive && other.AcademicYearID == fs.AcademicYearID && other.ClassID == fs.ClassID {
			return core.NewConflictError("an active fee structure already exists for this academic year and class (%s)", other.ID)
		}
	}
	return nil
}

func (s *session) CreateStructure(ctx context.Context, fs ledger.FeeStructure) (ledger.FeeStructure, error) {
	fs.Version = 1
	err := s.write(ctx, func(tx *session) error {
		tx.db.RLock()
		defer tx.db.RUnlock()
		if _, ok := tx.structure(fs.ID); ok {
			return core.NewConflictError("fee structure %s already exists", fs.ID)
		}
		if err := tx.activeStructureConflict(fs); err != nil {
			return err
		}
		tx.tx.structures[fs.ID] = cloneStructure(fs)
		tx.tx.newStructures[fs.ID] = true
		return nil
	})
	if err != nil {
		return ledger.FeeStructure{}, err
	}
	return fs, nil
}

func (s *session) UpdateStructure(ctx context.Context, fs ledger.FeeStructure) (ledger.FeeStructure, error) {
	err := s.write(ctx, func(tx *session) error {
		tx.db.RLock()
		defer tx.db.RUnlock()
		cur, ok := tx.structure(fs.ID)
		if !ok {
			return core.NewNotFoundError("fee structure", fs.ID)
		}
		if cur.Version != fs.Version {
			return core.ErrWriteConflict
		}
		if err := tx.activeStructureConflict(fs); err != nil {
			return err
		}
		if _, staged := tx.tx.structures[fs.ID]; !staged {
			tx.tx.structureBases[fs.ID] = cur.Version
		}
		fs.Version++
		tx.tx.structures[fs.ID] = cloneStructure(fs)
		return nil
	})
	if err != nil {
		return ledger.FeeStructure{}, err
	}
	return fs, nil
}

func (s *session) GetStructure(_ context.Context, id string) (ledger.FeeStructure, error) {
	s.db.RLock()
	defer s.db.RUnlock()
	if fs, ok := s.structure(id); ok {
		return cloneStructure(fs), nil
	}
	return ledger.FeeStructure{}, core.NewNotFoundError("fee structure", id)
}

func (s *session) GetActiveStructure(_ context.Context, academicYearID, classID string) (ledger.FeeStructure, error) {
	s.db.RLock()
	defer s.db.RUnlock()
	for _, fs := range s.structures() {
		if fs.IsActive && fs.AcademicYearID == academicYearID && fs.ClassID == classID {
			return cloneStructure(fs), nil
		}
	}
	return ledger.FeeStructure{}, core.NewNotFoundError("active fee structure", "")
}

func (s *session) QueryStructures(_ context.Context, filter ledger.StructureFilter) ([]ledger.FeeStructure, error) {
	s.db.RLock()
	defer s.db.RUnlock()
	structures := make([]ledger.FeeStructure, 0)
	for _, fs := range s.structures() {
		if filter.Match(fs) {
			structures = append(structures, cloneStructure(fs))
		}
	}
	sort.Slice(structures, func(i, j int) bool {
		if !structures[i].CreatedAt.Equal(structures[j].CreatedAt) {
			return structures[i].CreatedAt.Before(structures[j].CreatedAt)
		}
		return structures[i].ID < structures[j].ID
	})
	return structures, nil
}

// Enrollments

func (s *session) CreateEnrollment(ctx context.Context, e ledger.Enrollment) (ledger.Enrollment, error) {
	e.Version = 1
	err := s.write(ctx, func(tx *session) error {
		tx.db.RLock()
		defer tx.db.RUnlock()
		for _, other := range tx.enrollments() {
			if other.ID == e.ID || (other.StudentID == e.StudentID && other.AcademicYearID == e.AcademicYearID) {
				return core.NewConflictError("student is already enrolled for this academic year")
			}
		}
		tx.tx.enrollments[e.ID] = cloneEnrollment(e)
		tx.tx.newEnrollments[e.ID] = true
		return nil
	})
	if err != nil {
		return ledger.Enrollment{}, err
	}
	return e, nil
}

func (s *session) GetEnrollment(ctx context.Context, id string, forUpdate bool) (ledger.Enrollment, error) {
	if forUpdate {
		if err := s.lock(ctx, "enrollment:"+id); err != nil {
			return ledger.Enrollment{}, err
		}
	}
	s.db.RLock()
	defer s.db.RUnlock()
	if e, ok := s.enrollment(id); ok {
		return cloneEnrollment(e), nil
	}
	return ledger.Enrollment{}, core.NewNotFoundError("enrollment", id)
}

func (s *session) GetEnrollmentByStudent(_ context.Context, studentID, academicYearID string) (ledger.Enrollment, error) {
	s.db.RLock()
	defer s.db.RUnlock()
	for _, e := range s.enrollments() {
		if e.StudentID == studentID && e.AcademicYearID == academicYearID {
			return cloneEnrollment(e), nil
		}
	}
	return ledger.Enrollment{}, core.NewNotFoundError("enrollment", "")
}

func (s *session) UpdateEnrollment(ctx context.Context, e ledger.Enrollment) (ledger.Enrollment, error) {
	err := s.write(ctx, func(tx *session) error {
		tx.db.RLock()
		defer tx.db.RUnlock()
		cur, ok := tx.enrollment(e.ID)
		if !ok {
			return core.NewNotFoundError("enrollment", e.ID)
		}
		if cur.Version != e.Version {
			return core.ErrWriteConflict
		}
		if _, staged := tx.tx.enrollments[e.ID]; !staged {
			tx.tx.baseVersions[e.ID] = cur.Version
		}
		e.Version++
		tx.tx.enrollments[e.ID] = cloneEnrollment(e)
		return nil
	})
	if err != nil {
		return ledger.Enrollment{}, err
	}
	return e, nil
}

func (s *session) QueryEnrollments(_ context.Context, filter ledger.EnrollmentFilter) ([]ledger.Enrollment, error) {
	s.db.RLock()
	defer s.db.RUnlock()
	enrollments := make([]ledger.Enrollment, 0)
	for _, e := range s.enrollments() {
		if filter.Match(e) {
			enrollments = append(enrollments, cloneEnrollment(e))
		}
	}
	sort.Slice(enrollments, func(i, j int) bool {
		if enrollments[i].Student.Name != enrollments[j].Student.Name {
			return enrollments[i].Student.Name < enrollments[j].Student.Name
		}
		return enrollments[i].ID < enrollments[j].ID
	})
	return enrollments, nil
}

// Payments

func (s *session) CreatePayment(ctx context.Context, p ledger.Payment) (ledger.Payment, error) {
	err := s.write(ctx, func(tx *session) error {
		tx.db.RLock()
		defer tx.db.RUnlock()
		for _, other := range tx.payments() {
			if other.ID == p.ID || other.ReceiptNo == p.ReceiptNo {
				return core.NewConflictError("receipt %s already exists", p.ReceiptNo)
			}
		}
		tx.tx.payments[p.ID] = clonePayment(p)
		tx.tx.newPayments[p.ID] = true
		return nil
	})
	if err != nil {
		return ledger.Payment{}, err
	}
	return p, nil
}

func (s *session) GetPayment(ctx context.Context, id string, forUpdate bool) (ledger.Payment, error) {
	if forUpdate {
		if err := s.lock(ctx, "payment:"+id); err != nil {
			return ledger.Payment{}, err
		}
	}
	s.db.RLock()
	defer s.db.RUnlock()
	if p, ok := s.payment(id); ok {
		return clonePayment(p), nil
	}
	return ledger.Payment{}, core.NewNotFoundError("payment", id)
}

func (s *session) GetPaymentByReceipt(_ context.Context, receiptNo string) (ledger.Payment, error) {
	s.db.RLock()
	defer s.db.RUnlock()
	for _, p := range s.payments() {
		if p.ReceiptNo == receiptNo {
			return clonePayment(p), nil
		}
	}
	return ledger.Payment{}, core.NewNotFoundError("payment", receiptNo)
}

func (s *session) CancelPayment(ctx context.Context, p ledger.Payment) (ledger.Payment, error) {
	err := s.write(ctx, func(tx *session) error {
		tx.db.RLock()
		defer tx.db.RUnlock()
		cur, ok := tx.payment(p.ID)
		if !ok {
			return core.NewNotFoundError("payment", p.ID)
		}
		if cur.IsCancelled() {
			return core.ErrWriteConflict
		}
		// only the cancellation fields change
		cur.Status = p.Status
		cur.CancelledAt = p.CancelledAt
		cur.CancelledBy = p.CancelledBy
		cur.CancellationReason = p.CancellationReason
		cur.Remarks = p.Remarks
		tx.tx.payments[p.ID] = clonePayment(cur)
		if !tx.tx.newPayments[p.ID] {
			tx.tx.cancellations[p.ID] = true
		}
		p = cur
		return nil
	})
	if err != nil {
		return ledger.Payment{}, err
	}
	return clonePayment(p), nil
}

func (s *session) QueryPayments(_ context.Context, filter ledger.PaymentFilter) ([]ledger.Payment, error) {
	s.db.RLock()
	defer s.db.RUnlock()
	payments := make([]ledger.Payment, 0)
	for _, p := range s.payments() {
		if filter.Match(p) {
			payments = append(payments, clonePayment(p))
		}
	}
	sort.Slice(payments, func(i, j int) bool {
		if payments[i].AcademicYearID != payments[j].AcademicYearID {
			return payments[i].AcademicYearID < payments[j].AcademicYearID
		}
		return payments[i].Sequence < payments[j].Sequence
	})
	return payments, nil
}

// NextReceiptSequence increments the counter right away: a sequence handed to a transaction that rolls back is lost.
func (s *session) NextReceiptSequence(_ context.Context, academicYearID string) (int64, error) {
	s.db.Lock()
	defer s.db.Unlock()
	s.db.counters[academicYearID]++
	return s.db.counters[academicYearID], nil
}
