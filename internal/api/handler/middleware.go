package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"paylink/internal/interfaces"
	"paylink/internal/services"

	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo/v4"
	"github.com/samber/do"
)

type ctxKey string

var ctxKeyAuthSender ctxKey = "AUTH_SENDER"

func Authn(verifier interface {
	Validate(token string) (string, error)
},
) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return next(c)
			}

			parts := strings.Split(header, "Bearer")
			if len(parts) != 2 {
				return next(c)
			}

			token := strings.TrimSpace(parts[1])
			if len(token) == 0 {
				return next(c)
			}

			address, err := verifier.Validate(token)
			if err != nil {
				// a client error, but we don't leak details
				//nolint:errcheck
				httpx.Abort(c, errorx.Wrap(errors.New("invalid access token"), errorx.Authn), -1)
				return nil
			}

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, ctxKeyAuthSender, address)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// ResolveSender returns the authenticated sender address or an authn error.
func ResolveSender(ctx context.Context) (string, error) {
	address, ok := ctx.Value(ctxKeyAuthSender).(string)
	if !ok || address == "" {
		return "", errorx.Wrap(errors.New("missing session"), errorx.Authn)
	}
	return address, nil
}

// middlewareRateLimit applies the route class's quota keyed by the
// authenticated sender, falling back to the caller IP. The limiter fails
// open when its store is down, so this never turns an outage into a 429.
func middlewareRateLimit(container *do.Injector, routeClass string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			limiter, err := do.Invoke[interfaces.Limiter](container)
			if err != nil {
				return err
			}

			identity, err := ResolveSender(c.Request().Context())
			if err != nil {
				identity = c.RealIP()
			}

			res, err := limiter.Allow(c.Request().Context(), services.LimitKeyRoute(identity, routeClass), services.RouteLimits[routeClass])
			if err != nil {
				if res != nil {
					c.Response().Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
				}
				//nolint:errcheck
				httpx.Abort(c, errorx.Wrap(err, errorx.RateLimiting), -1)
				return nil
			}

			return next(c)
		}
	}
}
