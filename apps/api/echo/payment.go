package echoapi

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core/ledger"
)

type paymentApi struct {
	svc *ledger.Service
}

type cancelPaymentRequest struct {
	Reason string `json:"reason"`
}

func registerPaymentAPI(g *echo.Group, svc *ledger.Service) {
	api := paymentApi{svc: svc}

	pg := g.Group("/payments")
	pg.POST("", api.collect, collectorMiddleware())
	pg.GET("/receipt/:receiptNo", api.retrieveByReceipt)
	pg.GET("/:id", api.retrieve)
	pg.POST("/:id/cancel", api.cancel, adminMiddleware())
}

func (api *paymentApi) collect(ctx echo.Context) error {
	var data ledger.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	p, err := api.svc.CollectPayment(ctx.Request().Context(), usr, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *paymentApi) retrieve(ctx echo.Context) error {
	p, err := api.svc.GetPayment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

// retrieveByReceipt expects the receipt number path-escaped (RCT%2FAY-2025-26%2F000001).
func (api *paymentApi) retrieveByReceipt(ctx echo.Context) error {
	receiptNo, err := url.PathUnescape(ctx.Param("receiptNo"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed receipt number")
	}
	p, err := api.svc.GetPaymentByReceipt(ctx.Request().Context(), receiptNo)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *paymentApi) cancel(ctx echo.Context) error {
	var data cancelPaymentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to cancelPaymentRequest")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	p, err := api.svc.CancelPayment(ctx.Request().Context(), usr, ctx.Param("id"), data.Reason)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}
