package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core/catalog"
)

type catalogApi struct {
	svc *catalog.Service
}

func registerCatalogAPI(g *echo.Group, svc *catalog.Service) {
	api := catalogApi{svc: svc}

	fg := g.Group("/fee-templates")
	fg.GET("", api.queryFeeTemplates)
	fg.POST("", api.createFeeTemplate, adminMiddleware())
	fg.GET("/:id", api.retrieveFeeTemplate)
	fg.PUT("/:id", api.updateFeeTemplate, adminMiddleware())
	fg.DELETE("/:id", api.destroyFeeTemplate, adminMiddleware())
	fg.POST("/:id/deactivate", api.deactivateFeeTemplate, adminMiddleware())

	sg := g.Group("/scholarship-templates")
	sg.GET("", api.queryScholarshipTemplates)
	sg.POST("", api.createScholarshipTemplate, adminMiddleware())
	sg.GET("/:id", api.retrieveScholarshipTemplate)
	sg.PUT("/:id", api.updateScholarshipTemplate, adminMiddleware())
	sg.DELETE("/:id", api.destroyScholarshipTemplate, adminMiddleware())
	sg.POST("/:id/deactivate", api.deactivateScholarshipTemplate, adminMiddleware())
}

func bindQueryFilter(ctx echo.Context) (catalog.QueryFilter, error) {
	isActive, err := queryBool(ctx, "is_active")
	if err != nil {
		return catalog.QueryFilter{}, err
	}
	return catalog.QueryFilter{
		Search:   ctx.QueryParam("search"),
		IsActive: isActive,
		Kinds:    queryStrings(ctx, "kind"),
	}, nil
}

// Fee Templates

func (api *catalogApi) createFeeTemplate(ctx echo.Context) error {
	var data catalog.NewFeeTemplate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFeeTemplate")
	}
	tmpl, err := api.svc.CreateFeeTemplate(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, tmpl)
}

func (api *catalogApi) queryFeeTemplates(ctx echo.Context) error {
	filter, err := bindQueryFilter(ctx)
	if err != nil {
		return err
	}
	tmpls, err := api.svc.QueryFeeTemplates(ctx.Request().Context(), filter)
	if err != nil {
		return err
	}
	if tmpls == nil {
		tmpls = []catalog.FeeTemplate{}
	}
	return ctx.JSON(http.StatusOK, tmpls)
}

func (api *catalogApi) retrieveFeeTemplate(ctx echo.Context) error {
	tmpl, err := api.svc.GetFeeTemplate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

func (api *catalogApi) updateFeeTemplate(ctx echo.Context) error {
	var data catalog.UpdateTemplate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTemplate")
	}
	tmpl, err := api.svc.UpdateFeeTemplate(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

func (api *catalogApi) deactivateFeeTemplate(ctx echo.Context) error {
	tmpl, err := api.svc.DeactivateFeeTemplate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

func (api *catalogApi) destroyFeeTemplate(ctx echo.Context) error {
	if err := api.svc.DeleteFeeTemplate(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Scholarship Templates

func (api *catalogApi) createScholarshipTemplate(ctx echo.Context) error {
	var data catalog.NewScholarshipTemplate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewScholarshipTemplate")
	}
	tmpl, err := api.svc.CreateScholarshipTemplate(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, tmpl)
}

func (api *catalogApi) queryScholarshipTemplates(ctx echo.Context) error {
	filter, err := bindQueryFilter(ctx)
	if err != nil {
		return err
	}
	tmpls, err := api.svc.QueryScholarshipTemplates(ctx.Request().Context(), filter)
	if err != nil {
		return err
	}
	if tmpls == nil {
		tmpls = []catalog.ScholarshipTemplate{}
	}
	return ctx.JSON(http.StatusOK, tmpls)
}

func (api *catalogApi) retrieveScholarshipTemplate(ctx echo.Context) error {
	tmpl, err := api.svc.GetScholarshipTemplate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

func (api *catalogApi) updateScholarshipTemplate(ctx echo.Context) error {
	var data catalog.UpdateTemplate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTemplate")
	}
	tmpl, err := api.svc.UpdateScholarshipTemplate(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

func (api *catalogApi) deactivateScholarshipTemplate(ctx echo.Context) error {
	tmpl, err := api.svc.DeactivateScholarshipTemplate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

func (api *catalogApi) destroyScholarshipTemplate(ctx echo.Context) error {
	if err := api.svc.DeleteScholarshipTemplate(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
