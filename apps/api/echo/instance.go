package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/abinesh-lmsace/pulse/core"
	"github.com/abinesh-lmsace/pulse/core/automation"
)

type instanceApi struct {
	svc    *automation.Service
	ledger automation.LedgerRepository
}

func registerInstanceAPI(g *echo.Group, svc *automation.Service, ledger automation.LedgerRepository) {
	api := instanceApi{svc: svc, ledger: ledger}

	ig := g.Group("/instances")
	ig.POST("", api.create)

	dg := ig.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/invitation-reset", api.resetInvitations)
	dg.GET("/report", api.report)
}

func (api *instanceApi) create(ctx echo.Context) error {
	var data instancePayload
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to instancePayload")
	}
	if err := core.Validate.Struct(&data); err != nil {
		return err
	}

	inst, err := api.svc.Create(ctx.Request().Context(), data.toInstance(0))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, toInstanceResponse(inst))
}

func (api *instanceApi) retrieve(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	inst, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, toInstanceResponse(inst))
}

func (api *instanceApi) update(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}

	var data instancePayload
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to instancePayload")
	}
	if err = core.Validate.Struct(&data); err != nil {
		return err
	}

	inst, err := api.svc.Update(ctx.Request().Context(), data.toInstance(id))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, toInstanceResponse(inst))
}

func (api *instanceApi) destroy(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *instanceApi) resetInvitations(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	// ensure the instance exists before touching the ledger
	if _, err = api.svc.Get(ctx.Request().Context(), id); err != nil {
		return err
	}
	if err = api.svc.ResetInvitations(ctx.Request().Context(), id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *instanceApi) report(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	inst, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	records, err := api.ledger.Records(ctx.Request().Context(), id)
	if err != nil {
		return err
	}

	report := reportResponse{
		InstanceID: inst.ID,
		Name:       inst.Name,
		Delivered:  make(map[string]int),
		Pending:    make(map[string]int),
		Records:    make([]deliveryResponse, 0, len(records)),
	}
	for _, rec := range records {
		typ := string(rec.Key.Type)
		if rec.Status == automation.StatusDelivered {
			report.Delivered[typ]++
		} else {
			report.Pending[typ]++
		}
		report.Records = append(report.Records, deliveryResponse{
			UserID:      rec.Key.UserID,
			Type:        typ,
			ForUserID:   rec.Key.ForUserID,
			Status:      statusName(rec.Status),
			DeliveredAt: rec.DeliveredAt,
		})
	}
	return ctx.JSON(http.StatusOK, report)
}

func pathID(ctx echo.Context) (int, error) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return 0, errHttpNotFound
	}
	return id, nil
}
