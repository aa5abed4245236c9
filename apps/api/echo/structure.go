package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/ledger"
)

type structureApi struct {
	svc *ledger.Service
}

func registerStructureAPI(g *echo.Group, svc *ledger.Service) {
	api := structureApi{svc: svc}

	sg := g.Group("/fee-structures")
	sg.GET("", api.query)
	sg.POST("", api.create, adminMiddleware())
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id", api.update, adminMiddleware())
	sg.POST("/:id/activate", api.activate, adminMiddleware())
	sg.POST("/:id/deactivate", api.deactivate, adminMiddleware())
}

func (api *structureApi) create(ctx echo.Context) error {
	var data ledger.NewFeeStructure
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFeeStructure")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	fs, err := api.svc.CreateFeeStructure(ctx.Request().Context(), usr, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, fs)
}

func (api *structureApi) query(ctx echo.Context) error {
	isActive, err := queryBool(ctx, "is_active")
	if err != nil {
		return err
	}
	filter := ledger.StructureFilter{
		AcademicYearID: core.CleanString(ctx.QueryParam("academic_year_id")),
		ClassID:        core.CleanString(ctx.QueryParam("class_id")),
		IsActive:       isActive,
	}
	structures, err := api.svc.QueryFeeStructures(ctx.Request().Context(), filter)
	if err != nil {
		return err
	}
	if structures == nil {
		structures = []ledger.FeeStructure{}
	}
	return ctx.JSON(http.StatusOK, structures)
}

func (api *structureApi) retrieve(ctx echo.Context) error {
	fs, err := api.svc.GetFeeStructure(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, fs)
}

func (api *structureApi) update(ctx echo.Context) error {
	var data ledger.UpdateFeeStructure
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateFeeStructure")
	}
	fs, err := api.svc.UpdateFeeStructure(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, fs)
}

func (api *structureApi) activate(ctx echo.Context) error {
	fs, err := api.svc.ActivateFeeStructure(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, fs)
}

func (api *structureApi) deactivate(ctx echo.Context) error {
	fs, err := api.svc.DeactivateFeeStructure(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, fs)
}
