package handler

import (
	"net/http"

	"paylink/internal/services"

	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/do"
)

type Config struct {
	Container *do.Injector
	Mode      string
	Origins   []string
}

func New(cfg *Config) (http.Handler, error) {
	r := echo.New()
	r.Pre(middleware.RemoveTrailingSlash())
	if cfg.Mode == "debug" {
		r.Debug = true
		pprof.Register(r)
	}

	r.JSONSerializer = httpx.SegmentJSONSerializer{}
	r.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339}\t${method}\t${uri}\t${status}\t${latency_human}\n",
	}))
	r.Use(middleware.Recover())

	r.GET("", func(c echo.Context) error {
		return c.String(http.StatusOK, "💸")
	})

	routesAPIv1 := r.Group("/api/v1")
	{
		authentication, err := do.Invoke[*services.Authentication](cfg.Container)
		if err != nil {
			return nil, err
		}

		cors := middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.Origins,
			AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
			AllowCredentials: true,
			MaxAge:           60 * 60,
		})

		routesAPIv1.Use(cors)
		routesAPIv1.Use(Authn(authentication)) // Authn will NOT terminate unauthenticated requests.

		t := groupTransfer{cfg.Container}
		routesAPIv1.GET("/resolve", t.Resolve, middlewareRateLimit(cfg.Container, services.RouteClassRead))
		routesAPIv1.POST("/transfer/prepare", t.Prepare, middlewareRateLimit(cfg.Container, services.RouteClassRead))
		// The transfer route class is enforced inside the relayer, before
		// any ledger interaction.
		routesAPIv1.POST("/transfer", t.Submit)

		cl := groupClaim{cfg.Container}
		routesAPIv1.GET("/claim/:token", cl.Show, middlewareRateLimit(cfg.Container, services.RouteClassRead))
		routesAPIv1.POST("/claim/:token/redeem", cl.Redeem)
	}

	return r, nil
}
