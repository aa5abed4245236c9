package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/ledger"
)

type enrollmentApi struct {
	svc *ledger.Service
}

type scholarshipToggle struct {
	IsActive *bool `json:"is_active"`
}

func registerEnrollmentAPI(g *echo.Group, svc *ledger.Service) {
	api := enrollmentApi{svc: svc}

	eg := g.Group("/enrollments")
	eg.POST("", api.create, collectorMiddleware())
	eg.GET("/:id", api.retrieve)
	eg.PUT("/:id", api.update, collectorMiddleware())
	eg.POST("/:id/deactivate", api.deactivate, collectorMiddleware())
	eg.POST("/:id/reactivate", api.reactivate, collectorMiddleware())
	eg.GET("/:id/payments", api.payments)
	eg.PUT("/:id/scholarships/:lineId", api.toggleScholarship, collectorMiddleware())
	eg.POST("/:id/recalculate", api.recalculate, adminMiddleware())
}

func (api *enrollmentApi) create(ctx echo.Context) error {
	var data ledger.NewEnrollment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollment")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	e, err := api.svc.Enroll(ctx.Request().Context(), usr, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (api *enrollmentApi) retrieve(ctx echo.Context) error {
	e, err := api.svc.GetEnrollment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *enrollmentApi) update(ctx echo.Context) error {
	var data ledger.UpdateEnrollment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateEnrollment")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	e, err := api.svc.UpdateEnrollment(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *enrollmentApi) deactivate(ctx echo.Context) error {
	e, err := api.svc.DeactivateEnrollment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *enrollmentApi) reactivate(ctx echo.Context) error {
	e, err := api.svc.ReactivateEnrollment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *enrollmentApi) payments(ctx echo.Context) error {
	payments, err := api.svc.GetPaymentsForEnrollment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if payments == nil {
		payments = []ledger.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *enrollmentApi) toggleScholarship(ctx echo.Context) error {
	var data scholarshipToggle
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to scholarshipToggle")
	}
	if data.IsActive == nil {
		return core.NewFieldError("is_active", "this field is required")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	e, err := api.svc.SetScholarshipActive(ctx.Request().Context(), usr, ctx.Param("id"), ctx.Param("lineId"), *data.IsActive)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *enrollmentApi) recalculate(ctx echo.Context) error {
	e, err := api.svc.RecalculateEnrollment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, e)
}
