package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feeledger/core"
)

// query params are parsed by hand: the echo binder knows neither *bool nor time.Time.

func queryBool(ctx echo.Context, name string) (*bool, error) {
	val := strings.TrimSpace(ctx.QueryParam(name))
	if val == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return nil, core.NewFieldError(name, "must be a boolean")
	}
	return &b, nil
}

// queryTime accepts RFC 3339 timestamps and plain dates (midnight UTC).
func queryTime(ctx echo.Context, name string) (time.Time, error) {
	val := strings.TrimSpace(ctx.QueryParam(name))
	if val == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, val); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, core.NewFieldError(name, "must be a date (YYYY-MM-DD) or an RFC 3339 timestamp")
}

func queryDecimal(ctx echo.Context, name string) (decimal.Decimal, error) {
	val := strings.TrimSpace(ctx.QueryParam(name))
	if val == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, core.NewFieldError(name, "must be a number")
	}
	return d, nil
}

// queryStrings collects a repeated parameter of enum codes, upper-cased.
// Each value may also be a comma separated list.
func queryStrings(ctx echo.Context, name string) []string {
	var vals []string
	for _, v := range ctx.QueryParams()[name] {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				vals = append(vals, strings.ToUpper(s))
			}
		}
	}
	return vals
}
