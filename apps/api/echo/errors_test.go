package echoapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/ledger"
	"github.com/trezcool/feeledger/tests"
)

func Test_appHTTPErrorHandler(t *testing.T) {
	logger := testutil.NewLogger(core.NewTestConfig())

	tests := []struct {
		name         string
		err          error
		wantCode     int
		wantData     string
		wantShutdown bool
	}{
		{
			name:     "Field Validation",
			err:      errors.Wrap(core.NewFieldError("payment_items[0].amount", "exceeds the amount due"), "collecting payment"),
			wantCode: http.StatusBadRequest,
			wantData: `{"payment_items[0].amount": "exceeds the amount due"}`,
		},
		{
			name:     "Validation Without Fields",
			err:      core.NewValidationError(errors.New("invalid input")),
			wantCode: http.StatusBadRequest,
			wantData: `{"error": "invalid input"}`,
		},
		{
			name:     "Invalid State",
			err:      errors.Wrap(core.NewInvalidStateError("enrollment is inactive"), "collecting payment"),
			wantCode: http.StatusBadRequest,
			wantData: `{"error": "enrollment is inactive"}`,
		},
		{
			name:     "Already Cancelled",
			err:      errors.Wrap(ledger.ErrPaymentAlreadyCancelled, "cancelling payment"),
			wantCode: http.StatusConflict,
			wantData: `{"error": "payment is already cancelled"}`,
		},
		{
			name:     "Not Found",
			err:      errors.Wrap(core.NewNotFoundError("payment", "p-1"), "cancelling payment"),
			wantCode: http.StatusNotFound,
			wantData: `{"error": "payment \"p-1\" not found"}`,
		},
		{
			name:     "Conflict",
			err:      core.NewConflictError("an active fee structure already exists"),
			wantCode: http.StatusConflict,
			wantData: `{"error": "an active fee structure already exists"}`,
		},
		{
			name:     "Write Conflict",
			err:      errors.Wrap(core.ErrWriteConflict, "collecting payment"),
			wantCode: http.StatusConflict,
			wantData: `{"error": "concurrent modification, please retry", "retry": true}`,
		},
		{
			name:     "Authorization",
			err:      core.NewAuthorizationError("only administrators can cancel payments"),
			wantCode: http.StatusForbidden,
			wantData: `{"error": "only administrators can cancel payments"}`,
		},
		{
			name:     "Missing JWT",
			err:      middleware.ErrJWTMissing,
			wantCode: http.StatusUnauthorized,
			wantData: `{"error": "missing or malformed jwt"}`,
		},
		{
			name:     "HTTP Error",
			err:      echo.NewHTTPError(http.StatusBadRequest, "malformed receipt number"),
			wantCode: http.StatusBadRequest,
			wantData: `{"error": "malformed receipt number"}`,
		},
		{
			name:     "Internal",
			err:      errors.Wrap(errors.New("connection reset"), "querying payments"),
			wantCode: http.StatusInternalServerError,
			wantData: `{"error": "Internal Server Error"}`,
		},
		{
			name:         "Shutdown",
			err:          errors.Wrap(core.NewShutdownError("database is gone"), "querying payments"),
			wantCode:     http.StatusInternalServerError,
			wantData:     `{"error": "Internal Server Error"}`,
			wantShutdown: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var shutdown bool
			handler := newAppHTTPErrorHandler(logger, func() { shutdown = true })

			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/v1/payments", nil)
			rec := httptest.NewRecorder()
			handler(tt.err, e.NewContext(req, rec))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantData, rec.Body.String())
			assert.Equal(t, tt.wantShutdown, shutdown)
		})
	}
}
