package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/abinesh-lmsace/pulse/core/reaction"
)

type reactionApi struct {
	svc *reaction.Service
}

// registerReactionAPI mounts the one-click reaction endpoint at the site root
// so the links embedded in reminder messages resolve without a version prefix.
func registerReactionAPI(e *echo.Echo, svc *reaction.Service) {
	api := reactionApi{svc: svc}
	e.GET("/reactions/:rid", api.apply)
}

func (api *reactionApi) apply(ctx echo.Context) error {
	rating := 0
	if v := ctx.QueryParam("rating"); v != "" {
		var err error
		if rating, err = strconv.Atoi(v); err != nil {
			return reaction.ErrInvalidToken
		}
	}

	err := api.svc.Apply(ctx.Request().Context(), ctx.Param("rid"), ctx.QueryParam("token"), rating)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"status": "applied"})
}
