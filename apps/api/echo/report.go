package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/ledger"
)

type reportApi struct {
	svc *ledger.Service
}

func registerReportAPI(g *echo.Group, svc *ledger.Service) {
	api := reportApi{svc: svc}

	rg := g.Group("/reports")
	rg.GET("/outstanding", api.outstanding)
	rg.GET("/collections", api.collections, collectorMiddleware())
}

func (api *reportApi) outstanding(ctx echo.Context) error {
	minDue, err := queryDecimal(ctx, "min_due")
	if err != nil {
		return err
	}
	inactive, err := queryBool(ctx, "include_inactive")
	if err != nil {
		return err
	}
	filter := ledger.OutstandingFilter{
		AcademicYearID:  core.CleanString(ctx.QueryParam("academic_year_id")),
		ClassID:         core.CleanString(ctx.QueryParam("class_id")),
		Section:         core.CleanString(ctx.QueryParam("section")),
		Statuses:        queryStrings(ctx, "status"),
		MinDue:          minDue,
		IncludeInactive: inactive != nil && *inactive,
	}
	report, err := api.svc.GetOutstanding(ctx.Request().Context(), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *reportApi) collections(ctx echo.Context) error {
	from, err := queryTime(ctx, "from")
	if err != nil {
		return err
	}
	to, err := queryTime(ctx, "to")
	if err != nil {
		return err
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return core.NewFieldError("to", "must be after from")
	}
	filter := ledger.CollectionFilter{
		AcademicYearID: core.CleanString(ctx.QueryParam("academic_year_id")),
		Method:         strings.ToUpper(core.CleanString(ctx.QueryParam("method"))),
		From:           from,
		To:             to,
	}
	summary, err := api.svc.GetCollectionSummary(ctx.Request().Context(), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, summary)
}
