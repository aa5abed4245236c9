package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
)

var (
	nowFunc = time.Now // mockable
	newID   = func() string { return uuid.New().String() }

	// ErrPaymentAlreadyCancelled is returned when cancelling a cancelled payment.
	ErrPaymentAlreadyCancelled = core.NewInvalidStateError("payment is already cancelled")

	errNotAllowedToCancel = core.NewAuthorizationError("only administrators can cancel payments")
)

type Service struct {
	store     Store
	templates TemplateSource
	directory Directory
	mailSvc   core.EmailService
	logger    core.Logger
	validate  *core.Validator
	conf      *core.Config
}

func NewService(
	store Store,
	templates TemplateSource,
	directory Directory,
	mailSvc core.EmailService,
	logger core.Logger,
	validate *core.Validator,
	conf *core.Config,
) *Service {
	return &Service{
		store:     store,
		templates: templates,
		directory: directory,
		mailSvc:   mailSvc,
		logger:    logger,
		validate:  validate,
		conf:      conf,
	}
}

// runInTx runs fn in a transaction, retrying it on core.ErrWriteConflict.
// fn must read everything it needs through tx so that each attempt works on fresh data.
func (svc *Service) runInTx(ctx context.Context, op string, fn func(tx Repositories) error) error {
	retries := svc.conf.Ledger.MaxWriteRetries
	if retries < 0 {
		retries = 0
	}

	var err error
	for attempt := 1; attempt <= retries+1; attempt++ {
		err = svc.store.WithinTx(ctx, fn)
		if !core.IsWriteConflict(err) {
			break
		}
		svc.logger.Warn(fmt.Sprintf("%s: write conflict (attempt %d of %d)", op, attempt, retries+1), err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrap(ctxErr, op)
		}
	}
	return errors.Wrap(err, op)
}

func (svc *Service) now() time.Time {
	return nowFunc().UTC()
}

func invariantErr(format string, args ...interface{}) error {
	return errors.Errorf("invariant violated: "+format, args...)
}
