package handler

import (
	"errors"

	"paylink/internal/services"

	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo/v4"
	"github.com/samber/do"
)

type groupClaim struct {
	container *do.Injector
}

func (gr *groupClaim) Show(c echo.Context) error {
	ctx := c.Request().Context()

	claims, err := do.Invoke[*services.ServiceClaims](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	claim, err := claims.Get(ctx, c.Param("token"))
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	return httpx.RestAbort(c, claim, nil)
}

type redeemRequest struct {
	ClaimerAddress string `json:"claimerAddress"`
}

func (gr *groupClaim) Redeem(c echo.Context) error {
	ctx := c.Request().Context()

	var payload redeemRequest
	if err := c.Bind(&payload); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}
	if payload.ClaimerAddress == "" {
		return httpx.RestAbort(c, nil, errorx.Wrap(errors.New("claimerAddress required"), errorx.Invalid))
	}

	claims, err := do.Invoke[*services.ServiceClaims](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	res, err := claims.Redeem(ctx, c.Param("token"), payload.ClaimerAddress)
	return abortSubmit(c, res, nil, err)
}
