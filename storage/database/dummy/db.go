package dummydb

import (
	"context"
	"sync"

	"github.com/trezcool/feeledger/core/catalog"
	"github.com/trezcool/feeledger/core/ledger"
)

type (
	// DB is an in-memory database. Every table is guarded by the same lock.
	DB struct {
		sync.RWMutex

		years    map[string]ledger.AcademicYear
		classes  map[string]ledger.Class
		students map[string]ledger.Student

		feeTemplates   map[string]catalog.FeeTemplate
		scholTemplates map[string]catalog.ScholarshipTemplate

		structures  map[string]ledger.FeeStructure
		enrollments map[string]ledger.Enrollment
		payments    map[string]ledger.Payment
		counters    map[string]int64

		locks *keyLocks
	}

	// keyLocks hands out one lock per key. Waiting for a lock honours context cancellation.
	keyLocks struct {
		mu    sync.Mutex
		locks map[string]chan struct{}
	}
)

func Open() (*DB, error) {
	db := &DB{
		years:          make(map[string]ledger.AcademicYear),
		classes:        make(map[string]ledger.Class),
		students:       make(map[string]ledger.Student),
		feeTemplates:   make(map[string]catalog.FeeTemplate),
		scholTemplates: make(map[string]catalog.ScholarshipTemplate),
		structures:     make(map[string]ledger.FeeStructure),
		enrollments:    make(map[string]ledger.Enrollment),
		payments:       make(map[string]ledger.Payment),
		counters:       make(map[string]int64),
		locks:          &keyLocks{locks: make(map[string]chan struct{})},
	}
	return db, nil
}

func (kl *keyLocks) acquire(ctx context.Context, key string) error {
	kl.mu.Lock()
	ch, ok := kl.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		kl.locks[key] = ch
	}
	kl.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (kl *keyLocks) release(key string) {
	kl.mu.Lock()
	ch := kl.locks[key]
	kl.mu.Unlock()
	<-ch
}
